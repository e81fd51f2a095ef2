// Package confluence fetches pages from a Confluence instance and converts
// their storage-format bodies to plain text for indexing.
package confluence

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/confrag/confrag/internal/transport"
)

// Page is an immutable snapshot of a Confluence page at fetch time.
type Page struct {
	ID        string
	Title     string
	Body      string // storage-format markup
	UpdatedAt string // version timestamp as reported by the API
	URL       string // canonical web URL, empty if the API returned none
}

// FetchError reports a failed page fetch. It is fatal for the page but not
// for the rest of an ingestion run.
type FetchError struct {
	PageID string
	Status int
	Body   string
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("confluence: fetch page %s: status %d: %s", e.PageID, e.Status, e.Body)
}

// Client talks to the Confluence REST API using basic auth.
type Client struct {
	baseURL  string
	email    string
	apiToken string
	http     *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the underlying HTTP client. Useful for tests
// that need a shorter retry backoff.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// New creates a Client for the instance at baseURL. Transient HTTP failures
// are retried with exponential backoff.
func New(baseURL, email, apiToken string, opts ...Option) *Client {
	c := &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		email:    email,
		apiToken: apiToken,
		http: &http.Client{
			Transport: transport.New(nil),
			Timeout:   60 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GetPage fetches one page by id with its storage body and version expanded.
// The returned Page carries the canonical URL, resolved by joining the
// API's webui link to the instance base URL when the link is root-relative.
func (c *Client) GetPage(ctx context.Context, pageID string) (*Page, error) {
	q := url.Values{}
	q.Set("expand", "body.storage,version,ancestors,metadata.labels")
	endpoint := fmt.Sprintf("%s/rest/api/content/%s?%s", c.baseURL, url.PathEscape(pageID), q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.SetBasicAuth(c.email, c.apiToken)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("confluence: fetch page %s: %w", pageID, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("confluence: read page %s: %w", pageID, err)
	}
	if resp.StatusCode >= 400 {
		return nil, &FetchError{PageID: pageID, Status: resp.StatusCode, Body: truncate(string(body), 800)}
	}

	var result struct {
		Title string `json:"title"`
		Body  struct {
			Storage struct {
				Value string `json:"value"`
			} `json:"storage"`
		} `json:"body"`
		Version struct {
			When string `json:"when"`
		} `json:"version"`
		Links struct {
			WebUI string `json:"webui"`
		} `json:"_links"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("confluence: decode page %s: %w", pageID, err)
	}

	return &Page{
		ID:        pageID,
		Title:     result.Title,
		Body:      result.Body.Storage.Value,
		UpdatedAt: result.Version.When,
		URL:       c.resolveURL(result.Links.WebUI),
	}, nil
}

// resolveURL joins a root-relative webui path to the base URL. Absolute or
// non-root-relative links are passed through untouched.
func (c *Client) resolveURL(webui string) string {
	if webui == "" {
		return ""
	}
	if strings.HasPrefix(webui, "/") {
		return c.baseURL + webui
	}
	return webui
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
