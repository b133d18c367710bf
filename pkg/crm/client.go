// pkg/crm/client.go
package crm

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

// Client talks to the CRM vendor API. Records are untyped maps: the gateway
// never interprets vendor field lists, it only moves them.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

func New(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *Client) BaseURL() string { return c.baseURL }

// Record is a CRM record of some object type, shape owned by the vendor.
type Record = map[string]any

// Page is a list response with an opaque continuation cursor.
type Page struct {
	Records []Record `json:"records"`
	Cursor  string   `json:"cursor,omitempty"`
}

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
		return fmt.Errorf("crm %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("crm %s %s: status %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(b)))
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("crm %s %s: decode: %w", method, path, err)
		}
	}
	return nil
}

func objectPath(objectType string) string {
	return "/v1/objects/" + url.PathEscape(objectType) + "/records"
}

func (c *Client) CreateRecord(ctx context.Context, objectType string, fields Record) (Record, error) {
	var out Record
	err := c.do(ctx, http.MethodPost, objectPath(objectType), map[string]any{"fields": fields}, &out)
	return out, err
}

func (c *Client) GetRecord(ctx context.Context, objectType, id string) (Record, error) {
	var out Record
	err := c.do(ctx, http.MethodGet, objectPath(objectType)+"/"+url.PathEscape(id), nil, &out)
	return out, err
}

func (c *Client) ListRecords(ctx context.Context, objectType string, limit int, cursor string) (Page, error) {
	var out Page
	path := fmt.Sprintf("%s?limit=%d", objectPath(objectType), limit)
	if cursor != "" {
		path += "&cursor=" + url.QueryEscape(cursor)
	}
	err := c.do(ctx, http.MethodGet, path, nil, &out)
	return out, err
}

func (c *Client) UpdateRecord(ctx context.Context, objectType, id string, fields Record) (Record, error) {
	var out Record
	err := c.do(ctx, http.MethodPatch, objectPath(objectType)+"/"+url.PathEscape(id), map[string]any{"fields": fields}, &out)
	return out, err
}

func (c *Client) DeleteRecord(ctx context.Context, objectType, id string) error {
	return c.do(ctx, http.MethodDelete, objectPath(objectType)+"/"+url.PathEscape(id), nil, nil)
}

func (c *Client) Search(ctx context.Context, objectType, query string, limit int) (Page, error) {
	var out Page
	body := map[string]any{"object_type": objectType, "query": query, "limit": limit}
	err := c.do(ctx, http.MethodPost, "/v1/search", body, &out)
	return out, err
}

// CreateNote attaches a note to a parent record.
func (c *Client) CreateNote(ctx context.Context, parentType, parentID, title, content string) (Record, error) {
	var out Record
	body := map[string]any{
		"parent_object": parentType,
		"parent_id":     parentID,
		"title":         title,
		"content":       content,
	}
	err := c.do(ctx, http.MethodPost, "/v1/notes", body, &out)
	return out, err
}
