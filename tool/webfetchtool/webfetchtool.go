// Package webfetchtool provides an HTTP GET tool exercising spec.md §8's
// dependency-fault scenario: a fetch that times out or returns a 5xx must
// surface as a retriable DependencyFault, not a hard failure.
package webfetchtool

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"turnengine/tool"
)

// Fetch implements tool.Adapter for a bounded HTTP GET.
type Fetch struct {
	Client *http.Client
	// MaxBytes caps how much of the response body is read, since tool
	// results are appended to the session event log verbatim.
	MaxBytes int64
}

func (Fetch) Name() string        { return "web_fetch" }
func (Fetch) Description() string { return "Fetches a URL over HTTP GET and returns the response body." }

func (Fetch) Schema() map[string]any {
	return map[string]any{
		"type":     "object",
		"required": []any{"url"},
		"properties": map[string]any{
			"url": map[string]any{"type": "string", "format": "uri"},
		},
	}
}

func (f Fetch) Invoke(ctx context.Context, args map[string]any, _ tool.SessionContext) ([]tool.ContentPart, error) {
	url, _ := args["url"].(string)
	if url == "" {
		return nil, fmt.Errorf("webfetchtool: url is required")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("webfetchtool: build request: %w", err)
	}
	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("webfetchtool: fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return nil, fmt.Errorf("webfetchtool: %s returned %d", url, resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("webfetchtool: %s returned %d (not retriable)", url, resp.StatusCode)
	}

	limit := f.MaxBytes
	if limit <= 0 {
		limit = 64 * 1024
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, limit))
	if err != nil {
		return nil, fmt.Errorf("webfetchtool: read body: %w", err)
	}
	return []tool.ContentPart{{Kind: tool.PartText, Text: string(body)}}, nil
}
