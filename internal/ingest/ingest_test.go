package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/confrag/confrag/internal/confluence"
	"github.com/confrag/confrag/internal/embed"
	"github.com/confrag/confrag/internal/identity"
)

type fakeSource struct {
	pages map[string]*confluence.Page
	errs  map[string]error
}

func (f *fakeSource) GetPage(_ context.Context, pageID string) (*confluence.Page, error) {
	if err := f.errs[pageID]; err != nil {
		return nil, err
	}
	p, ok := f.pages[pageID]
	if !ok {
		return nil, &confluence.FetchError{PageID: pageID, Status: 404}
	}
	return p, nil
}

type fakeEmbedder struct {
	dims  int
	err   error
	calls [][]string
}

func (f *fakeEmbedder) EmbedPassages(_ context.Context, texts []string) ([][]float32, error) {
	f.calls = append(f.calls, texts)
	if f.err != nil {
		return nil, f.err
	}
	dims := f.dims
	if dims == 0 {
		dims = 4
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = make([]float32, dims)
	}
	return out, nil
}

type upsertCall struct {
	id    string
	props Properties
	vec   []float32
}

type fakeStore struct {
	calls   []upsertCall
	failIDs map[string]error
}

func (f *fakeStore) Upsert(_ context.Context, id string, props Properties, vector []float32) error {
	if err := f.failIDs[id]; err != nil {
		return err
	}
	f.calls = append(f.calls, upsertCall{id: id, props: props, vec: vector})
	return nil
}

func page(id, title, body string) *confluence.Page {
	return &confluence.Page{
		ID:        id,
		Title:     title,
		Body:      body,
		UpdatedAt: "2025-05-01T10:00:00.000Z",
		URL:       "https://wiki.example.com/pages/" + id,
	}
}

func storageBody(paragraphs int) string {
	var b strings.Builder
	for i := 0; i < paragraphs; i++ {
		fmt.Fprintf(&b, "<p>paragraph %d with some document text in it</p>", i)
	}
	return b.String()
}

func newTestPipeline(src *fakeSource, emb *fakeEmbedder, st *fakeStore) *Pipeline {
	return New(src, emb, st, Options{ChunkSize: 50, ChunkOverlap: 10})
}

func TestIngestPage(t *testing.T) {
	src := &fakeSource{pages: map[string]*confluence.Page{
		"98439": page("98439", "Deploy Guide", storageBody(8)),
	}}
	emb := &fakeEmbedder{}
	st := &fakeStore{}

	pm, err := newTestPipeline(src, emb, st).IngestPage(context.Background(), "98439")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if pm.ChunkCount == 0 || pm.Upserted != pm.ChunkCount {
		t.Fatalf("expected all chunks upserted: %+v", pm)
	}
	if pm.Title != "Deploy Guide" {
		t.Errorf("title: got %q", pm.Title)
	}
	if len(st.calls) != pm.ChunkCount {
		t.Fatalf("store calls: got %d, want %d", len(st.calls), pm.ChunkCount)
	}

	for i, call := range st.calls {
		if call.id != identity.ChunkID("98439", i) {
			t.Errorf("chunk %d: wrong id %s", i, call.id)
		}
		if call.props.PageID != "98439" || call.props.ChunkIndex != i {
			t.Errorf("chunk %d: props %+v", i, call.props)
		}
		if call.props.Title != "Deploy Guide" || call.props.URL == "" {
			t.Errorf("chunk %d: provenance missing: %+v", i, call.props)
		}
		if strings.Contains(call.props.Content, "<p>") {
			t.Errorf("chunk %d: markup leaked into content", i)
		}
	}
}

func TestIngestPage_EmitsPipelineSpans(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	src := &fakeSource{pages: map[string]*confluence.Page{
		"98439": page("98439", "Deploy Guide", storageBody(8)),
	}}

	_, err := newTestPipeline(src, &fakeEmbedder{}, &fakeStore{}).IngestPage(context.Background(), "98439")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ended := map[string]bool{}
	for _, s := range recorder.Ended() {
		ended[s.Name()] = true
	}
	for _, want := range []string{"ingest.page", "embed.passages", "store.upsert"} {
		if !ended[want] {
			t.Errorf("span %q was not emitted (got %v)", want, ended)
		}
	}
}

func TestIngestPage_EmptyPageSkipped(t *testing.T) {
	src := &fakeSource{pages: map[string]*confluence.Page{
		"empty": page("empty", "Blank", "<p>   </p>"),
	}}
	emb := &fakeEmbedder{}
	st := &fakeStore{}

	pm, err := newTestPipeline(src, emb, st).IngestPage(context.Background(), "empty")
	if err != nil {
		t.Fatalf("an empty page is skipped, not failed: %v", err)
	}
	if pm.ChunkCount != 0 || len(st.calls) != 0 || len(emb.calls) != 0 {
		t.Errorf("nothing should be embedded or stored for an empty page")
	}
}

func TestIngestPage_FetchError(t *testing.T) {
	src := &fakeSource{errs: map[string]error{
		"gone": &confluence.FetchError{PageID: "gone", Status: 404},
	}}
	st := &fakeStore{}

	pm, err := newTestPipeline(src, &fakeEmbedder{}, st).IngestPage(context.Background(), "gone")

	var fe *confluence.FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("expected fetch error, got %v", err)
	}
	if pm.Error == "" {
		t.Error("page metrics should carry the error")
	}
	if len(st.calls) != 0 {
		t.Error("nothing should be stored on fetch failure")
	}
}

func TestIngestPage_PartialUpsertFailure(t *testing.T) {
	src := &fakeSource{pages: map[string]*confluence.Page{
		"98439": page("98439", "T", storageBody(8)),
	}}
	st := &fakeStore{failIDs: map[string]error{
		identity.ChunkID("98439", 1): errors.New("create rejected"),
	}}

	pm, err := newTestPipeline(src, &fakeEmbedder{}, st).IngestPage(context.Background(), "98439")
	if err == nil {
		t.Fatal("expected error for the failed chunk")
	}
	if pm.Upserted != pm.ChunkCount-1 {
		t.Errorf("remaining chunks should still be written: %+v", pm)
	}
}

func TestIngestAll_IsolatesPageFailures(t *testing.T) {
	src := &fakeSource{
		pages: map[string]*confluence.Page{
			"a": page("a", "A", storageBody(4)),
			"c": page("c", "C", storageBody(4)),
		},
		errs: map[string]error{"b": &confluence.FetchError{PageID: "b", Status: 500}},
	}
	st := &fakeStore{}

	run, err := newTestPipeline(src, &fakeEmbedder{}, st).IngestAll(context.Background(), []string{"a", "b", "c"})
	if err != nil {
		t.Fatalf("one bad page must not fail the run: %v", err)
	}

	if len(run.Pages) != 3 {
		t.Fatalf("expected 3 page entries, got %d", len(run.Pages))
	}
	if run.Succeeded() != 2 {
		t.Errorf("succeeded: got %d", run.Succeeded())
	}
	if len(run.Errors) != 1 {
		t.Errorf("expected one recorded error, got %v", run.Errors)
	}
	if st.calls[len(st.calls)-1].props.PageID != "c" {
		t.Error("pages after the failure should still be ingested")
	}
}

func TestIngestAll_DimensionMismatchAborts(t *testing.T) {
	src := &fakeSource{pages: map[string]*confluence.Page{
		"a": page("a", "A", storageBody(4)),
		"b": page("b", "B", storageBody(4)),
	}}
	emb := &fakeEmbedder{dims: 768}
	st := &fakeStore{}

	// Wrap the fake in the real batcher so it enforces dimensionality.
	batcher := embed.NewBatcher(rawEmbedder{emb})
	p := New(src, batcher, st, Options{ChunkSize: 50, ChunkOverlap: 10})

	run, err := p.IngestAll(context.Background(), []string{"a", "b"})

	var dimErr *embed.DimensionError
	if !errors.As(err, &dimErr) {
		t.Fatalf("expected dimension error to abort the run, got %v", err)
	}
	if len(run.Pages) != 1 {
		t.Errorf("run must stop at the first systemic failure, got %d pages", len(run.Pages))
	}
	if len(st.calls) != 0 {
		t.Error("nothing should be stored when vectors are malformed")
	}
}

// rawEmbedder exposes the fake through the model-call interface the
// batcher drives.
type rawEmbedder struct{ f *fakeEmbedder }

func (r rawEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return r.f.EmbedPassages(ctx, texts)
}

func TestIngestAll_ContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	src := &fakeSource{errs: map[string]error{"a": context.Canceled}}
	cancel()

	_, err := newTestPipeline(src, &fakeEmbedder{}, &fakeStore{}).IngestAll(ctx, []string{"a", "b"})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation to stop the run, got %v", err)
	}
}
