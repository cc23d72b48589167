// Package contentful reads Bloom Library collection definitions from the
// Contentful Content Delivery API.
package contentful

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"bloom-api/internal/config"
)

const (
	defaultBaseURL        = "https://cdn.contentful.com"
	collectionContentType = "collection"
)

var ErrNotConfigured = errors.New("contentful: not configured")

// Collection is a curated set of books. Filter is a Parse where-clause
// selecting the member books; Administrators may edit those books.
type Collection struct {
	ID             string          `json:"id"`
	URLKey         string          `json:"urlKey"`
	Label          string          `json:"label"`
	Filter         json.RawMessage `json:"filter,omitempty"`
	Administrators []string        `json:"administrators"`
}

type Client struct {
	cfg        config.ContentfulConfig
	baseURL    string
	httpClient *http.Client
}

func NewClient(cfg config.ContentfulConfig) *Client {
	base := cfg.BaseURL
	if base == "" {
		base = defaultBaseURL
	}
	if cfg.Environment == "" {
		cfg.Environment = "master"
	}
	return &Client{
		cfg:     cfg,
		baseURL: strings.TrimRight(base, "/"),
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

func (c *Client) configured() bool {
	return c.cfg.SpaceID != "" && c.cfg.AccessToken != ""
}

type entriesResponse struct {
	Items []struct {
		Sys struct {
			ID string `json:"id"`
		} `json:"sys"`
		Fields struct {
			URLKey         string          `json:"urlKey"`
			Label          string          `json:"label"`
			Filter         json.RawMessage `json:"filter"`
			Administrators json.RawMessage `json:"administrators"`
		} `json:"fields"`
	} `json:"items"`
}

// CollectionsAdministeredBy returns the collections whose administrators
// include email (case-insensitive).
func (c *Client) CollectionsAdministeredBy(ctx context.Context, email string) ([]Collection, error) {
	if !c.configured() {
		return nil, ErrNotConfigured
	}
	email = strings.TrimSpace(email)
	if email == "" {
		return nil, nil
	}

	q := url.Values{}
	q.Set("content_type", collectionContentType)
	q.Set("fields.administrators[match]", email)
	q.Set("select", "sys.id,fields.urlKey,fields.label,fields.filter,fields.administrators")
	q.Set("limit", "1000")

	endpoint := fmt.Sprintf("%s/spaces/%s/environments/%s/entries?%s",
		c.baseURL, url.PathEscape(c.cfg.SpaceID), url.PathEscape(c.cfg.Environment), q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.AccessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call Contentful: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("contentful: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var entries entriesResponse
	if err := json.Unmarshal(body, &entries); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	var collections []Collection
	for _, item := range entries.Items {
		admins := parseAdministrators(item.Fields.Administrators)
		if !containsFold(admins, email) {
			// [match] is a full-text search and can over-match
			continue
		}
		collections = append(collections, Collection{
			ID:             item.Sys.ID,
			URLKey:         item.Fields.URLKey,
			Label:          item.Fields.Label,
			Filter:         item.Fields.Filter,
			Administrators: admins,
		})
	}
	return collections, nil
}

// parseAdministrators accepts either a list field or a single text field
// with comma/semicolon/space separated addresses.
func parseAdministrators(raw json.RawMessage) []string {
	if len(raw) == 0 {
		return nil
	}

	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		return normalize(list)
	}

	var text string
	if err := json.Unmarshal(raw, &text); err != nil {
		return nil
	}
	return normalize(strings.FieldsFunc(text, func(r rune) bool {
		return r == ',' || r == ';' || r == ' ' || r == '\n' || r == '\t'
	}))
}

func normalize(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func containsFold(list []string, s string) bool {
	for _, v := range list {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}
