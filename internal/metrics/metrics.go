// Package metrics collects statistics for ingestion and search runs.
package metrics

import (
	"encoding/json"
	"fmt"
	"io"
	"time"
)

// IngestMetrics collects statistics for a full ingestion run.
type IngestMetrics struct {
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at,omitempty"`
	Duration   time.Duration `json:"duration_ms,omitempty"`
	Pages      []PageMetrics `json:"pages"`
	Errors     []string      `json:"errors,omitempty"`
}

// PageMetrics records one document's trip through the pipeline.
type PageMetrics struct {
	PageID     string        `json:"page_id"`
	Title      string        `json:"title,omitempty"`
	TextRunes  int           `json:"text_runes"`
	ChunkCount int           `json:"chunk_count"`
	Upserted   int           `json:"upserted"`
	Duration   time.Duration `json:"duration_ms"`
	Error      string        `json:"error,omitempty"`
}

// New starts tracking an ingestion run.
func New() *IngestMetrics {
	return &IngestMetrics{StartedAt: time.Now()}
}

// AddPage records a single page's outcome.
func (m *IngestMetrics) AddPage(p PageMetrics) {
	m.Pages = append(m.Pages, p)
	if p.Error != "" {
		m.Errors = append(m.Errors, fmt.Sprintf("page %s: %s", p.PageID, p.Error))
	}
}

// Finish marks the run as complete.
func (m *IngestMetrics) Finish() {
	m.FinishedAt = time.Now()
	m.Duration = m.FinishedAt.Sub(m.StartedAt)
}

// TotalChunks returns the number of chunks produced across all pages.
func (m *IngestMetrics) TotalChunks() int {
	n := 0
	for _, p := range m.Pages {
		n += p.ChunkCount
	}
	return n
}

// TotalUpserted returns the number of chunks actually written to the store.
func (m *IngestMetrics) TotalUpserted() int {
	n := 0
	for _, p := range m.Pages {
		n += p.Upserted
	}
	return n
}

// Succeeded returns how many pages completed without an error.
func (m *IngestMetrics) Succeeded() int {
	n := 0
	for _, p := range m.Pages {
		if p.Error == "" {
			n++
		}
	}
	return n
}

// PrintSummary writes a human-readable summary.
func (m *IngestMetrics) PrintSummary(w io.Writer) {
	fmt.Fprintf(w, "\n╔══════════════════════════════════════╗\n")
	fmt.Fprintf(w, "║        CONFRAG INGEST REPORT         ║\n")
	fmt.Fprintf(w, "╠══════════════════════════════════════╣\n")
	fmt.Fprintf(w, "║ Duration:    %-23s║\n", m.Duration.Round(time.Millisecond))
	fmt.Fprintf(w, "║ Pages:       %-23s║\n", fmt.Sprintf("%d/%d ok", m.Succeeded(), len(m.Pages)))
	fmt.Fprintf(w, "║ Chunks:      %-23s║\n", fmt.Sprintf("%d (%d upserted)", m.TotalChunks(), m.TotalUpserted()))
	fmt.Fprintf(w, "╠══════════════════════════════════════╣\n")
	fmt.Fprintf(w, "║ PAGES\n")
	for _, p := range m.Pages {
		status := "OK"
		if p.Error != "" {
			status = "FAILED"
		}
		fmt.Fprintf(w, "║   %-12s %4d chunks %8s  %s\n", p.PageID, p.ChunkCount, p.Duration.Round(time.Millisecond), status)
	}
	if len(m.Errors) > 0 {
		fmt.Fprintf(w, "╠══════════════════════════════════════╣\n")
		fmt.Fprintf(w, "║ ERRORS\n")
		for _, e := range m.Errors {
			fmt.Fprintf(w, "║   • %s\n", e)
		}
	}
	fmt.Fprintf(w, "╚══════════════════════════════════════╝\n")
}

// JSON returns the metrics as formatted JSON.
func (m *IngestMetrics) JSON() ([]byte, error) {
	return json.MarshalIndent(m, "", "  ")
}
