// Package weaviate is the vector-store gateway. It upserts chunk records
// keyed by deterministic UUIDs, runs near-vector queries, and paginates
// stored objects over the Weaviate v1 REST and GraphQL APIs. Transient
// failures are retried with exponential backoff; version drift in the query
// API is absorbed here and never leaks to callers.
package weaviate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/confrag/confrag/internal/transport"
)

// DefaultClass is the collection holding ingested chunks.
const DefaultClass = "ConfluenceChunk"

// Properties is the typed payload stored with each chunk record.
type Properties struct {
	PageID     string `json:"pageId"`
	Title      string `json:"title"`
	URL        string `json:"url"`
	UpdatedAt  string `json:"updatedAt,omitempty"`
	Content    string `json:"content"`
	ChunkIndex int    `json:"chunkIndex"`
}

// Config configures a Client.
type Config struct {
	URL    string // base URL, e.g. http://localhost:8080
	APIKey string // optional bearer token
	Class  string // defaults to DefaultClass

	// HTTPClient overrides the default retrying client. Tests use it to
	// shrink backoff delays.
	HTTPClient *http.Client
}

// Client talks to one Weaviate instance.
type Client struct {
	baseURL string
	apiKey  string
	class   string
	http    *http.Client
}

// New creates a Client.
func New(cfg Config) *Client {
	class := cfg.Class
	if class == "" {
		class = DefaultClass
	}
	h := cfg.HTTPClient
	if h == nil {
		h = &http.Client{
			Transport: transport.New(nil),
			Timeout:   60 * time.Second,
		}
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.URL, "/"),
		apiKey:  cfg.APIKey,
		class:   class,
		http:    h,
	}
}

// Class returns the collection name this client writes to.
func (c *Client) Class() string { return c.class }

// Close releases idle connections.
func (c *Client) Close() error {
	c.http.CloseIdleConnections()
	return nil
}

// Upsert replaces the record with the given id: a best-effort delete of any
// existing object (absence is not an error) followed by a strict create.
// A create rejected with a client or server error is fatal for the record
// and is returned as *UpsertError; the store may then hold no record for
// the id until the document is re-ingested.
func (c *Client) Upsert(ctx context.Context, id string, props Properties, vector []float32) error {
	// Old object first. Any failure here is ignored: either the object
	// never existed or the create below will surface the real problem.
	req, err := c.newRequest(ctx, http.MethodDelete, fmt.Sprintf("/v1/objects/%s?class=%s", id, c.class), nil)
	if err == nil {
		if resp, derr := c.http.Do(req); derr == nil {
			_, _ = io.Copy(io.Discard, resp.Body)
			_ = resp.Body.Close()
		}
	}

	create := map[string]any{
		"id":         id,
		"class":      c.class,
		"properties": props,
		"vector":     vector,
	}
	body, err := json.Marshal(create)
	if err != nil {
		return err
	}

	req, err = c.newRequest(ctx, http.MethodPost, "/v1/objects", bytes.NewReader(body))
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("weaviate: create object %s: %w", id, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		if transport.Retryable(resp.StatusCode) {
			return &TransientError{Op: "create object", Status: resp.StatusCode}
		}
		respBody, _ := io.ReadAll(resp.Body)
		return &UpsertError{ID: id, Status: resp.StatusCode, Body: truncate(string(respBody), 800)}
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	return req, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
