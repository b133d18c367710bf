// pkg/directory/remote.go
package directory

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

	"go.uber.org/zap"
)

// remote implements Service against the directory's HTTP API.
type remote struct {
	baseURL string
	apiKey  string
	client  *http.Client
	log     *zap.SugaredLogger
}

// NewRemote constructs a directory client for the given base URL and API key.
func NewRemote(baseURL, apiKey string, log *zap.SugaredLogger) Service {
	return &remote{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: 15 * time.Second},
		log:     log,
	}
}

func (d *remote) do(ctx context.Context, method, path string, body any, out any) error {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, d.baseURL+path, rd)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+d.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("directory %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("directory %s %s: status %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(b)))
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("directory %s %s: decode: %w", method, path, err)
		}
	}
	return nil
}

func (d *remote) Organization(ctx context.Context, orgID string) (Organization, error) {
	var org Organization
	err := d.do(ctx, http.MethodGet, "/v1/organizations/"+url.PathEscape(orgID), nil, &org)
	return org, err
}

func (d *remote) OrgMembership(ctx context.Context, orgID, userID string) (Membership, error) {
	var out struct {
		Data []Membership `json:"data"`
	}
	path := "/v1/organization_memberships?organization_id=" + url.QueryEscape(orgID) + "&user_id=" + url.QueryEscape(userID)
	if err := d.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return Membership{}, err
	}
	if len(out.Data) == 0 {
		return Membership{}, ErrNotFound
	}
	return out.Data[0], nil
}

func (d *remote) ListMemberships(ctx context.Context, userID string) ([]Membership, error) {
	var out struct {
		Data []Membership `json:"data"`
	}
	err := d.do(ctx, http.MethodGet, "/v1/organization_memberships?user_id="+url.QueryEscape(userID), nil, &out)
	return out.Data, err
}

func (d *remote) ListOrgMembers(ctx context.Context, orgID string) ([]Membership, error) {
	var out struct {
		Data []Membership `json:"data"`
	}
	err := d.do(ctx, http.MethodGet, "/v1/organization_memberships?organization_id="+url.QueryEscape(orgID), nil, &out)
	return out.Data, err
}

func (d *remote) OrgMetadata(ctx context.Context, orgID string) (map[string]any, error) {
	org, err := d.Organization(ctx, orgID)
	if err != nil {
		return nil, err
	}
	return org.Metadata, nil
}

func (d *remote) SetOrgMetadata(ctx context.Context, orgID string, patch map[string]any) error {
	body := map[string]any{"metadata": patch}
	return d.do(ctx, http.MethodPatch, "/v1/organizations/"+url.PathEscape(orgID), body, nil)
}

func (d *remote) UserMetadata(ctx context.Context, userID string) (map[string]any, error) {
	var out struct {
		Metadata map[string]any `json:"metadata"`
	}
	err := d.do(ctx, http.MethodGet, "/v1/users/"+url.PathEscape(userID), nil, &out)
	return out.Metadata, err
}

func (d *remote) SetUserMetadata(ctx context.Context, userID string, patch map[string]any) error {
	body := map[string]any{"metadata": patch}
	return d.do(ctx, http.MethodPatch, "/v1/users/"+url.PathEscape(userID), body, nil)
}
