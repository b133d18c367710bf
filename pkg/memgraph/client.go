// pkg/memgraph/client.go
package memgraph

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client talks to the graph-memory service. The gateway treats it as an
// opaque authenticated HTTP API: request and response bodies pass through
// without interpretation beyond JSON decoding.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// New constructs a client bound to one base URL and API key.
func New(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

// BaseURL reports the bound endpoint; used by tests and diagnostics.
func (c *Client) BaseURL() string { return c.baseURL }

func (c *Client) do(ctx context.Context, method, path string, body any, out any) error {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("memory service %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("memory service %s %s: status %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(b)))
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("memory service %s %s: decode: %w", method, path, err)
		}
	}
	return nil
}

// Episode is one unit of ingested memory.
type Episode struct {
	ID        string         `json:"id,omitempty"`
	GroupID   string         `json:"group_id"`
	Name      string         `json:"name,omitempty"`
	Body      string         `json:"body"`
	Source    string         `json:"source,omitempty"`
	CreatedAt string         `json:"created_at,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// SearchResult is a scored graph fact returned by Search.
type SearchResult struct {
	Fact    string  `json:"fact"`
	UUID    string  `json:"uuid"`
	Score   float64 `json:"score"`
	Valid   bool    `json:"valid"`
	GroupID string  `json:"group_id"`
}

func (c *Client) AddEpisode(ctx context.Context, ep Episode) (Episode, error) {
	var out Episode
	err := c.do(ctx, http.MethodPost, "/v1/episodes", ep, &out)
	return out, err
}

func (c *Client) Search(ctx context.Context, groupID, query string, limit int) ([]SearchResult, error) {
	var out struct {
		Results []SearchResult `json:"results"`
	}
	body := map[string]any{"group_id": groupID, "query": query, "limit": limit}
	err := c.do(ctx, http.MethodPost, "/v1/search", body, &out)
	return out.Results, err
}

func (c *Client) ListEpisodes(ctx context.Context, groupID string, limit int) ([]Episode, error) {
	var out struct {
		Episodes []Episode `json:"episodes"`
	}
	path := fmt.Sprintf("/v1/episodes?group_id=%s&limit=%d", url.QueryEscape(groupID), limit)
	err := c.do(ctx, http.MethodGet, path, nil, &out)
	return out.Episodes, err
}

func (c *Client) GetEpisode(ctx context.Context, id string) (Episode, error) {
	var out Episode
	err := c.do(ctx, http.MethodGet, "/v1/episodes/"+url.PathEscape(id), nil, &out)
	return out, err
}

func (c *Client) DeleteEpisode(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/v1/episodes/"+url.PathEscape(id), nil, nil)
}

func (c *Client) DeleteEntityEdge(ctx context.Context, uuid string) error {
	return c.do(ctx, http.MethodDelete, "/v1/entity-edges/"+url.PathEscape(uuid), nil, nil)
}
