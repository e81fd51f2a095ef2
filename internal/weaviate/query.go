package weaviate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/confrag/confrag/internal/transport"
)

// Match is one near-vector search result in the uniform shape callers see,
// regardless of which query shape the store accepted.
type Match struct {
	ID         string
	Properties map[string]any
	Distance   float64
}

// Object is one stored record returned by paginated listing.
type Object struct {
	ID         string
	Properties map[string]any
	Vector     []float32
}

// PageOptions controls a FetchObjects call.
type PageOptions struct {
	PageID        string // filter to one document, empty for all
	Cursor        string // id of the last object of the previous page, empty for the first
	Limit         int
	Fields        []string // properties to return
	IncludeVector bool
}

// DefaultReturnFields are the properties fetched for search results.
var DefaultReturnFields = []string{"pageId", "title", "url", "updatedAt", "content", "chunkIndex"}

// The GraphQL query API has drifted across store versions: newer servers
// report a raw distance in _additional, older ones only a certainty score.
// Both shapes are tried in order; the first one the server accepts wins.
// Callers always receive a distance (certainty is converted).
type queryShape struct {
	name       string
	additional string
	distance   func(add map[string]any) (float64, bool)
}

var queryShapes = []queryShape{
	{
		name:       "distance",
		additional: "id distance",
		distance: func(add map[string]any) (float64, bool) {
			d, ok := add["distance"].(float64)
			return d, ok
		},
	},
	{
		name:       "certainty",
		additional: "id certainty",
		distance: func(add map[string]any) (float64, bool) {
			certainty, ok := add["certainty"].(float64)
			if !ok {
				return 0, false
			}
			// certainty = (2 - distance) / 2 for cosine metrics
			return 2 * (1 - certainty), true
		},
	},
}

// QueryNearVector returns up to k stored records nearest to vector, each
// annotated with a scalar distance, ordered as the store returned them
// (nearest first). k <= 0 yields an empty result without a network call.
func (c *Client) QueryNearVector(ctx context.Context, vector []float32, k int, fields []string) ([]Match, error) {
	if k <= 0 {
		return nil, nil
	}
	if len(fields) == 0 {
		fields = DefaultReturnFields
	}

	vec, err := json.Marshal(vector)
	if err != nil {
		return nil, err
	}

	var rejections []string
	for _, shape := range queryShapes {
		query := fmt.Sprintf(
			`{ Get { %s(limit: %d, nearVector: {vector: %s}) { %s _additional { %s } } } }`,
			c.class, k, vec, strings.Join(fields, " "), shape.additional,
		)

		raw, gqlErrs, err := c.graphql(ctx, query)
		if err != nil {
			return nil, err
		}
		if len(gqlErrs) > 0 {
			msg := gqlErrs[0]
			if !structuralRejection(msg) {
				return nil, fmt.Errorf("weaviate: near-vector query: %s", msg)
			}
			rejections = append(rejections, fmt.Sprintf("%s shape: %s", shape.name, msg))
			continue
		}

		objects, err := c.decodeGet(raw)
		if err != nil {
			return nil, err
		}

		matches := make([]Match, 0, len(objects))
		for _, obj := range objects {
			m := Match{Properties: obj}
			if add, ok := obj["_additional"].(map[string]any); ok {
				delete(obj, "_additional")
				m.ID, _ = add["id"].(string)
				m.Distance, _ = shape.distance(add)
			}
			matches = append(matches, m)
		}
		return matches, nil
	}

	return nil, &CompatibilityError{Attempts: rejections}
}

// FetchObjects returns one page of stored records plus the cursor for the
// next page (empty when this page is the last). The store guarantees no
// object is skipped or repeated across pages.
func (c *Client) FetchObjects(ctx context.Context, opts PageOptions) ([]Object, string, error) {
	if opts.Limit <= 0 {
		opts.Limit = 100
	}
	fields := opts.Fields
	if len(fields) == 0 {
		fields = DefaultReturnFields
	}

	var args []string
	args = append(args, fmt.Sprintf("limit: %d", opts.Limit))
	if opts.Cursor != "" {
		args = append(args, fmt.Sprintf("after: %q", opts.Cursor))
	}
	if opts.PageID != "" {
		args = append(args, fmt.Sprintf(`where: {path: ["pageId"], operator: Equal, valueText: %q}`, opts.PageID))
	}

	additional := "id"
	if opts.IncludeVector {
		additional = "id vector"
	}
	query := fmt.Sprintf(
		`{ Get { %s(%s) { %s _additional { %s } } } }`,
		c.class, strings.Join(args, ", "), strings.Join(fields, " "), additional,
	)

	raw, gqlErrs, err := c.graphql(ctx, query)
	if err != nil {
		return nil, "", err
	}
	if len(gqlErrs) > 0 {
		return nil, "", fmt.Errorf("weaviate: fetch objects: %s", gqlErrs[0])
	}

	decoded, err := c.decodeGet(raw)
	if err != nil {
		return nil, "", err
	}

	objects := make([]Object, 0, len(decoded))
	for _, props := range decoded {
		obj := Object{Properties: props}
		if add, ok := props["_additional"].(map[string]any); ok {
			delete(props, "_additional")
			obj.ID, _ = add["id"].(string)
			if vec, ok := add["vector"].([]any); ok {
				obj.Vector = make([]float32, len(vec))
				for i, v := range vec {
					f, _ := v.(float64)
					obj.Vector[i] = float32(f)
				}
			}
		}
		objects = append(objects, obj)
	}

	next := ""
	if len(objects) == opts.Limit && len(objects) > 0 {
		next = objects[len(objects)-1].ID
	}
	return objects, next, nil
}

// Count returns the total number of stored records in the class.
func (c *Client) Count(ctx context.Context) (int, error) {
	query := fmt.Sprintf(`{ Aggregate { %s { meta { count } } } }`, c.class)

	raw, gqlErrs, err := c.graphql(ctx, query)
	if err != nil {
		return 0, err
	}
	if len(gqlErrs) > 0 {
		return 0, fmt.Errorf("weaviate: aggregate count: %s", gqlErrs[0])
	}

	var data struct {
		Aggregate map[string][]struct {
			Meta struct {
				Count int `json:"count"`
			} `json:"meta"`
		} `json:"Aggregate"`
	}
	if err := json.Unmarshal(raw, &data); err != nil {
		return 0, fmt.Errorf("weaviate: decode aggregate: %w", err)
	}
	rows := data.Aggregate[c.class]
	if len(rows) == 0 {
		return 0, nil
	}
	return rows[0].Meta.Count, nil
}

// graphql posts a query and returns the raw data payload and any GraphQL
// errors. Transport-level transient failures have already been retried.
func (c *Client) graphql(ctx context.Context, query string) (json.RawMessage, []string, error) {
	body, err := json.Marshal(map[string]string{"query": query})
	if err != nil {
		return nil, nil, err
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/v1/graphql", bytes.NewReader(body))
	if err != nil {
		return nil, nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("weaviate: graphql: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("weaviate: graphql: %w", err)
	}
	if resp.StatusCode >= 400 {
		if transport.Retryable(resp.StatusCode) {
			return nil, nil, &TransientError{Op: "graphql", Status: resp.StatusCode}
		}
		return nil, nil, fmt.Errorf("weaviate: graphql: status %d: %s", resp.StatusCode, truncate(string(respBody), 800))
	}

	var parsed struct {
		Data   json.RawMessage `json:"data"`
		Errors []struct {
			Message string `json:"message"`
		} `json:"errors"`
	}
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, nil, fmt.Errorf("weaviate: decode graphql response: %w", err)
	}

	msgs := make([]string, 0, len(parsed.Errors))
	for _, e := range parsed.Errors {
		msgs = append(msgs, e.Message)
	}
	return parsed.Data, msgs, nil
}

// decodeGet unwraps {"Get": {"<Class>": [...]}} into the object list.
func (c *Client) decodeGet(raw json.RawMessage) ([]map[string]any, error) {
	var data struct {
		Get map[string][]map[string]any `json:"Get"`
	}
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("weaviate: decode query result: %w", err)
	}
	return data.Get[c.class], nil
}

// structuralRejection reports whether a GraphQL error message indicates the
// query shape itself is unknown to this store version, as opposed to a
// genuine query failure.
func structuralRejection(msg string) bool {
	lower := strings.ToLower(msg)
	for _, marker := range []string{"unknown argument", "cannot query field", "unknown field", "unrecognized"} {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}
