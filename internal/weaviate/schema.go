package weaviate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// EnsureClass creates the chunk class with vectorization disabled: vectors
// are always supplied explicitly by the ingestion pipeline. When recreate
// is true any existing class is dropped first, discarding all stored
// records. Creating a class that already exists is not an error.
func (c *Client) EnsureClass(ctx context.Context, recreate bool) error {
	if recreate {
		req, err := c.newRequest(ctx, http.MethodDelete, "/v1/schema/"+c.class, nil)
		if err != nil {
			return err
		}
		resp, err := c.http.Do(req)
		if err != nil {
			return fmt.Errorf("weaviate: drop class %s: %w", c.class, err)
		}
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}

	schema := map[string]any{
		"class":      c.class,
		"vectorizer": "none",
		"properties": []map[string]any{
			{"name": "pageId", "dataType": []string{"text"}},
			{"name": "title", "dataType": []string{"text"}},
			{"name": "url", "dataType": []string{"text"}},
			{"name": "updatedAt", "dataType": []string{"date"}},
			{"name": "content", "dataType": []string{"text"}},
			{"name": "chunkIndex", "dataType": []string{"int"}},
		},
	}
	body, err := json.Marshal(schema)
	if err != nil {
		return err
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/v1/schema", bytes.NewReader(body))
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("weaviate: create class %s: %w", c.class, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		respBody, _ := io.ReadAll(resp.Body)
		if strings.Contains(strings.ToLower(string(respBody)), "already exists") {
			return nil
		}
		return fmt.Errorf("weaviate: create class %s: status %d: %s", c.class, resp.StatusCode, truncate(string(respBody), 800))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
