package weaviate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// gqlServer answers /v1/graphql with scripted responses, one per request,
// and records the queries it received.
type gqlServer struct {
	responses []string
	queries   []string
}

func (g *gqlServer) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/graphql" {
			http.NotFound(w, r)
			return
		}
		body, _ := io.ReadAll(r.Body)
		var req struct {
			Query string `json:"query"`
		}
		_ = json.Unmarshal(body, &req)
		g.queries = append(g.queries, req.Query)

		if len(g.responses) == 0 {
			http.Error(w, "no scripted response", http.StatusInternalServerError)
			return
		}
		resp := g.responses[0]
		g.responses = g.responses[1:]
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(resp))
	})
}

func getPayload(class string, objects string) string {
	return fmt.Sprintf(`{"data": {"Get": {%q: %s}}}`, class, objects)
}

const unknownDistance = `{"data": null, "errors": [{"message": "Unknown argument \"distance\" on field \"_additional\""}]}`
const unknownCertainty = `{"data": null, "errors": [{"message": "Cannot query field \"certainty\" on type \"AdditionalProperties\""}]}`

func TestQueryNearVector_DistanceShape(t *testing.T) {
	g := &gqlServer{responses: []string{
		getPayload(DefaultClass, `[
			{"content": "first", "pageId": "98439", "chunkIndex": 0, "_additional": {"id": "id-a", "distance": 0.12}},
			{"content": "second", "pageId": "98439", "chunkIndex": 1, "_additional": {"id": "id-b", "distance": 0.34}}
		]`),
	}}
	srv := httptest.NewServer(g.handler())
	defer srv.Close()

	c := testClient(srv.URL)
	matches, err := c.QueryNearVector(context.Background(), []float32{0.1, 0.2}, 2, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(g.queries) != 1 {
		t.Fatalf("expected a single query, got %d", len(g.queries))
	}
	if !strings.Contains(g.queries[0], "nearVector") || !strings.Contains(g.queries[0], "limit: 2") {
		t.Errorf("query missing nearVector/limit: %s", g.queries[0])
	}

	if len(matches) != 2 {
		t.Fatalf("expected 2 matches, got %d", len(matches))
	}
	if matches[0].ID != "id-a" || matches[0].Distance != 0.12 {
		t.Errorf("first match: %+v", matches[0])
	}
	if matches[0].Properties["content"] != "first" {
		t.Errorf("properties not carried: %+v", matches[0].Properties)
	}
	if _, ok := matches[0].Properties["_additional"]; ok {
		t.Error("_additional must not leak into properties")
	}
	if matches[1].Distance <= matches[0].Distance {
		t.Errorf("expected store order preserved: %v then %v", matches[0].Distance, matches[1].Distance)
	}
}

func TestQueryNearVector_FallsBackToCertainty(t *testing.T) {
	g := &gqlServer{responses: []string{
		unknownDistance,
		getPayload(DefaultClass, `[
			{"content": "hit", "_additional": {"id": "id-a", "certainty": 0.9}}
		]`),
	}}
	srv := httptest.NewServer(g.handler())
	defer srv.Close()

	c := testClient(srv.URL)
	matches, err := c.QueryNearVector(context.Background(), []float32{1}, 1, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(g.queries) != 2 {
		t.Fatalf("expected fallback to issue a second query, got %d", len(g.queries))
	}
	if !strings.Contains(g.queries[1], "certainty") {
		t.Errorf("second query should use the certainty shape: %s", g.queries[1])
	}
	if len(matches) != 1 {
		t.Fatalf("expected 1 match, got %d", len(matches))
	}
	// distance = 2 * (1 - certainty)
	if math.Abs(matches[0].Distance-0.2) > 1e-9 {
		t.Errorf("certainty 0.9 should convert to distance 0.2, got %v", matches[0].Distance)
	}
}

func TestQueryNearVector_AllShapesRejected(t *testing.T) {
	g := &gqlServer{responses: []string{unknownDistance, unknownCertainty}}
	srv := httptest.NewServer(g.handler())
	defer srv.Close()

	c := testClient(srv.URL)
	_, err := c.QueryNearVector(context.Background(), []float32{1}, 1, nil)

	var ce *CompatibilityError
	if !errors.As(err, &ce) {
		t.Fatalf("expected *CompatibilityError, got %v", err)
	}
	if len(ce.Attempts) != 2 {
		t.Errorf("expected one rejection per shape, got %v", ce.Attempts)
	}
}

func TestQueryNearVector_GenuineErrorNotRetriedAsShape(t *testing.T) {
	g := &gqlServer{responses: []string{
		`{"data": null, "errors": [{"message": "vector lengths don't match: 1024 vs 768"}]}`,
	}}
	srv := httptest.NewServer(g.handler())
	defer srv.Close()

	c := testClient(srv.URL)
	_, err := c.QueryNearVector(context.Background(), []float32{1}, 1, nil)
	if err == nil {
		t.Fatal("expected error")
	}
	var ce *CompatibilityError
	if errors.As(err, &ce) {
		t.Fatal("a non-structural error must not be treated as shape drift")
	}
	if len(g.queries) != 1 {
		t.Errorf("a genuine query failure must not trigger the next shape, got %d queries", len(g.queries))
	}
}

func TestQueryNearVector_ZeroK(t *testing.T) {
	c := testClient("http://unreachable.invalid")
	matches, err := c.QueryNearVector(context.Background(), []float32{1}, 0, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(matches) != 0 {
		t.Errorf("expected no matches, got %d", len(matches))
	}
}

func TestQueryNearVector_EmptyStore(t *testing.T) {
	g := &gqlServer{responses: []string{getPayload(DefaultClass, `[]`)}}
	srv := httptest.NewServer(g.handler())
	defer srv.Close()

	c := testClient(srv.URL)
	matches, err := c.QueryNearVector(context.Background(), []float32{1}, 5, nil)
	if err != nil {
		t.Fatalf("an empty store is not an error: %v", err)
	}
	if len(matches) != 0 {
		t.Errorf("expected no matches, got %d", len(matches))
	}
}

func TestFetchObjects_Pagination(t *testing.T) {
	g := &gqlServer{responses: []string{
		getPayload(DefaultClass, `[
			{"content": "a", "_additional": {"id": "id-1"}},
			{"content": "b", "_additional": {"id": "id-2"}}
		]`),
		getPayload(DefaultClass, `[
			{"content": "c", "_additional": {"id": "id-3"}}
		]`),
	}}
	srv := httptest.NewServer(g.handler())
	defer srv.Close()

	c := testClient(srv.URL)

	var ids []string
	cursor := ""
	for {
		objects, next, err := c.FetchObjects(context.Background(), PageOptions{Limit: 2, Cursor: cursor})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		for _, obj := range objects {
			ids = append(ids, obj.ID)
		}
		if next == "" {
			break
		}
		cursor = next
	}

	if strings.Join(ids, ",") != "id-1,id-2,id-3" {
		t.Errorf("pagination must walk every object once: %v", ids)
	}
	if len(g.queries) != 2 {
		t.Fatalf("expected 2 pages, got %d queries", len(g.queries))
	}
	if strings.Contains(g.queries[0], "after:") {
		t.Errorf("first page must not carry a cursor: %s", g.queries[0])
	}
	if !strings.Contains(g.queries[1], `after: "id-2"`) {
		t.Errorf("second page must resume after the last id: %s", g.queries[1])
	}
}

func TestFetchObjects_PageFilter(t *testing.T) {
	g := &gqlServer{responses: []string{getPayload(DefaultClass, `[]`)}}
	srv := httptest.NewServer(g.handler())
	defer srv.Close()

	c := testClient(srv.URL)
	if _, _, err := c.FetchObjects(context.Background(), PageOptions{PageID: "98439", Limit: 10}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	q := g.queries[0]
	if !strings.Contains(q, `path: ["pageId"]`) || !strings.Contains(q, `valueText: "98439"`) {
		t.Errorf("missing pageId filter: %s", q)
	}
}

func TestFetchObjects_IncludeVector(t *testing.T) {
	g := &gqlServer{responses: []string{
		getPayload(DefaultClass, `[
			{"content": "a", "_additional": {"id": "id-1", "vector": [0.25, 0.5]}}
		]`),
	}}
	srv := httptest.NewServer(g.handler())
	defer srv.Close()

	c := testClient(srv.URL)
	objects, _, err := c.FetchObjects(context.Background(), PageOptions{Limit: 10, IncludeVector: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(objects) != 1 {
		t.Fatalf("expected 1 object, got %d", len(objects))
	}
	if len(objects[0].Vector) != 2 || objects[0].Vector[0] != 0.25 {
		t.Errorf("vector not decoded: %v", objects[0].Vector)
	}
}

func TestCount(t *testing.T) {
	g := &gqlServer{responses: []string{
		fmt.Sprintf(`{"data": {"Aggregate": {%q: [{"meta": {"count": 42}}]}}}`, DefaultClass),
	}}
	srv := httptest.NewServer(g.handler())
	defer srv.Close()

	c := testClient(srv.URL)
	n, err := c.Count(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 42 {
		t.Errorf("count: got %d", n)
	}
	if !strings.Contains(g.queries[0], "Aggregate") {
		t.Errorf("expected an aggregate query: %s", g.queries[0])
	}
}

func TestGraphQL_TransientStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	_, err := c.Count(context.Background())

	var te *TransientError
	if !errors.As(err, &te) {
		t.Fatalf("expected *TransientError, got %v", err)
	}
	if te.Status != http.StatusBadGateway {
		t.Errorf("status: got %d", te.Status)
	}
}
