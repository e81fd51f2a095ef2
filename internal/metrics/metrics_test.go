package metrics

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestIngestMetrics(t *testing.T) {
	m := New()
	if m.StartedAt.IsZero() {
		t.Fatal("expected start time to be set")
	}

	m.AddPage(PageMetrics{PageID: "98439", ChunkCount: 12, Upserted: 12, Duration: 100 * time.Millisecond})
	m.AddPage(PageMetrics{PageID: "98440", ChunkCount: 3, Upserted: 1, Error: "create object rejected"})
	m.Finish()

	if m.TotalChunks() != 15 {
		t.Errorf("total chunks: got %d", m.TotalChunks())
	}
	if m.TotalUpserted() != 13 {
		t.Errorf("total upserted: got %d", m.TotalUpserted())
	}
	if m.Succeeded() != 1 {
		t.Errorf("succeeded: got %d", m.Succeeded())
	}
	if len(m.Errors) != 1 || !strings.Contains(m.Errors[0], "98440") {
		t.Errorf("errors: %v", m.Errors)
	}
	if m.Duration <= 0 {
		t.Error("expected positive duration after Finish")
	}
}

func TestPrintSummary(t *testing.T) {
	m := New()
	m.AddPage(PageMetrics{PageID: "98439", ChunkCount: 5, Upserted: 5})
	m.AddPage(PageMetrics{PageID: "98440", Error: "fetch failed"})
	m.Finish()

	var buf bytes.Buffer
	m.PrintSummary(&buf)
	out := buf.String()

	for _, want := range []string{"INGEST REPORT", "98439", "98440", "FAILED", "ERRORS"} {
		if !strings.Contains(out, want) {
			t.Errorf("summary missing %q:\n%s", want, out)
		}
	}
}

func TestJSON(t *testing.T) {
	m := New()
	m.AddPage(PageMetrics{PageID: "98439", ChunkCount: 2, Upserted: 2})
	m.Finish()

	data, err := m.JSON()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	pages, _ := decoded["pages"].([]any)
	if len(pages) != 1 {
		t.Errorf("expected 1 page entry, got %v", decoded["pages"])
	}
}
