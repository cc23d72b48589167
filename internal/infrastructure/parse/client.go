// Package parse is a small REST client for the Parse Server that stores
// Bloom Library's books, users, languages and roles.
package parse

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"bloom-api/internal/config"
)

// Parse error codes we care about.
const (
	codeObjectNotFound = 101
	codeInvalidSession = 209
)

var (
	ErrObjectNotFound     = errors.New("parse: object not found")
	ErrInvalidSession     = errors.New("parse: invalid session token")
	ErrEnvNotConfigured   = errors.New("parse: environment not configured")
	ErrUnexpectedResponse = errors.New("parse: unexpected response")
)

// Error is a non-2xx answer from the server.
type Error struct {
	StatusCode int    `json:"-"`
	Code       int    `json:"code"`
	Message    string `json:"error"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("parse: status %d code %d: %s", e.StatusCode, e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	switch e.Code {
	case codeObjectNotFound:
		return ErrObjectNotFound
	case codeInvalidSession:
		return ErrInvalidSession
	}
	return nil
}

// Auth selects the credential sent with a request.
type Auth struct {
	SessionToken string
	MasterKey    bool
}

func AsSession(token string) Auth { return Auth{SessionToken: token} }
func AsMaster() Auth              { return Auth{MasterKey: true} }

// User is the subset of _User the API needs.
type User struct {
	ObjectID     string `json:"objectId"`
	Username     string `json:"username"`
	Email        string `json:"email"`
	SessionToken string `json:"sessionToken,omitempty"`
}

// Client talks to one Parse server.
type Client struct {
	cfg        config.ParseConfig
	baseURL    string
	httpClient *http.Client
}

func NewClient(cfg config.ParseConfig) *Client {
	return &Client{
		cfg:     cfg,
		baseURL: strings.TrimRight(cfg.URL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Clients holds one client per configured environment.
type Clients map[config.Environment]*Client

func NewClients(cfgs map[config.Environment]config.ParseConfig) Clients {
	clients := make(Clients, len(cfgs))
	for env, cfg := range cfgs {
		if cfg.IsConfigured() {
			clients[env] = NewClient(cfg)
		}
	}
	return clients
}

func (c Clients) For(env config.Environment) (*Client, error) {
	client, ok := c[env]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrEnvNotConfigured, env)
	}
	return client, nil
}

// GetObject loads /classes/{class}/{id} into dest.
func (c *Client) GetObject(ctx context.Context, class, id string, auth Auth, dest interface{}) error {
	return c.do(ctx, http.MethodGet, classPath(class, id), nil, nil, auth, dest)
}

// CreateObject stores fields as a new object and returns its objectId.
func (c *Client) CreateObject(ctx context.Context, class string, fields map[string]interface{}, auth Auth) (string, error) {
	var resp struct {
		ObjectID string `json:"objectId"`
	}
	if err := c.do(ctx, http.MethodPost, classPath(class, ""), nil, fields, auth, &resp); err != nil {
		return "", err
	}
	if resp.ObjectID == "" {
		return "", fmt.Errorf("%w: create %s returned no objectId", ErrUnexpectedResponse, class)
	}
	return resp.ObjectID, nil
}

// UpdateObject applies fields (including Parse operators such as
// {"__op":"Delete"}) to an existing object.
func (c *Client) UpdateObject(ctx context.Context, class, id string, fields map[string]interface{}, auth Auth) error {
	return c.do(ctx, http.MethodPut, classPath(class, id), nil, fields, auth, nil)
}

// Query runs a where-clause and decodes the results array into dest, which
// must point to a slice.
func (c *Client) Query(ctx context.Context, class string, where interface{}, limit int, auth Auth, dest interface{}) error {
	q, err := whereQuery(where)
	if err != nil {
		return err
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}

	var resp struct {
		Results json.RawMessage `json:"results"`
	}
	if err := c.do(ctx, http.MethodGet, classPath(class, ""), q, nil, auth, &resp); err != nil {
		return err
	}
	if len(resp.Results) == 0 {
		return fmt.Errorf("%w: query %s returned no results field", ErrUnexpectedResponse, class)
	}
	return json.Unmarshal(resp.Results, dest)
}

// Count returns how many objects of class match where.
func (c *Client) Count(ctx context.Context, class string, where interface{}, auth Auth) (int, error) {
	q, err := whereQuery(where)
	if err != nil {
		return 0, err
	}
	q.Set("count", "1")
	q.Set("limit", "0")

	var resp struct {
		Count int `json:"count"`
	}
	if err := c.do(ctx, http.MethodGet, classPath(class, ""), q, nil, auth, &resp); err != nil {
		return 0, err
	}
	return resp.Count, nil
}

// CurrentUser resolves a session token to its user.
func (c *Client) CurrentUser(ctx context.Context, sessionToken string) (*User, error) {
	if sessionToken == "" {
		return nil, ErrInvalidSession
	}
	var user User
	if err := c.do(ctx, http.MethodGet, "/users/me", nil, nil, AsSession(sessionToken), &user); err != nil {
		return nil, err
	}
	user.SessionToken = sessionToken
	return &user, nil
}

// LoginAs opens a session for userID using the master key.
func (c *Client) LoginAs(ctx context.Context, userID string) (string, error) {
	var user User
	body := map[string]interface{}{"userId": userID}
	if err := c.do(ctx, http.MethodPost, "/loginAs", nil, body, AsMaster(), &user); err != nil {
		return "", err
	}
	if user.SessionToken == "" {
		return "", fmt.Errorf("%w: loginAs returned no session", ErrUnexpectedResponse)
	}
	return user.SessionToken, nil
}

// IsInRole reports whether userID belongs to the named _Role.
func (c *Client) IsInRole(ctx context.Context, userID, role string) (bool, error) {
	where := map[string]interface{}{
		"name":  role,
		"users": Pointer("_User", userID),
	}
	q, err := whereQuery(where)
	if err != nil {
		return false, err
	}
	q.Set("count", "1")
	q.Set("limit", "0")

	var resp struct {
		Count int `json:"count"`
	}
	if err := c.do(ctx, http.MethodGet, "/roles", q, nil, AsMaster(), &resp); err != nil {
		return false, err
	}
	return resp.Count > 0, nil
}

// HealthCheck calls the server's /health endpoint.
func (c *Client) HealthCheck(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/health", nil, nil, Auth{}, nil)
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body interface{}, auth Auth, dest interface{}) error {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		bodyJSON, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(bodyJSON)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("failed to create HTTP request: %w", err)
	}
	req.Header.Set("X-Parse-Application-Id", c.cfg.AppID)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if auth.MasterKey {
		req.Header.Set("X-Parse-Master-Key", c.cfg.MasterKey)
	}
	if auth.SessionToken != "" {
		req.Header.Set("X-Parse-Session-Token", auth.SessionToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call Parse %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		perr := &Error{StatusCode: resp.StatusCode}
		if jsonErr := json.Unmarshal(bodyBytes, perr); jsonErr != nil || perr.Message == "" {
			perr.Message = strings.TrimSpace(string(bodyBytes))
		}
		if resp.StatusCode == http.StatusNotFound && perr.Code == 0 {
			perr.Code = codeObjectNotFound
		}
		return perr
	}

	if dest == nil {
		return nil
	}
	if err := json.Unmarshal(bodyBytes, dest); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return nil
}

func classPath(class, id string) string {
	p := "/classes/" + url.PathEscape(class)
	if id != "" {
		p += "/" + url.PathEscape(id)
	}
	return p
}

func whereQuery(where interface{}) (url.Values, error) {
	q := url.Values{}
	if where == nil {
		return q, nil
	}
	whereJSON, err := json.Marshal(where)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal where: %w", err)
	}
	q.Set("where", string(whereJSON))
	return q, nil
}
