// Package jira provides the authenticated REST client for the remote
// issue tracker that kanbo mirrors.
//
// The client covers the endpoints the sync pipeline needs: identity lookup,
// board and sprint resolution, paginated issue search (JQL), sprint and
// backlog issue listings, and the write-through operations (issue update,
// transition listing and execution).
//
// All calls take a context and are bounded by a per-call timeout. Response
// bodies are decoded as UTF-8 explicitly, independent of the transport's
// content-type: status labels and summaries routinely mix scripts, and a
// mis-decoded label silently corrupts status normalization downstream.
package jira

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
	"unicode/utf8"
)

// DefaultTimeout bounds a single remote round trip.
const DefaultTimeout = 30 * time.Second

// Config holds the connection settings for a Client.
type Config struct {
	// BaseURL is the root of the remote tracker, e.g. "https://acme.atlassian.net".
	BaseURL string

	// Email and APIToken form the basic-auth credential pair.
	Email    string
	APIToken string

	// Timeout bounds each call (default: DefaultTimeout).
	Timeout time.Duration

	// HTTPClient overrides the transport (default: http.DefaultClient's
	// transport with no client-level timeout; the per-call context bounds it).
	HTTPClient *http.Client
}

// Client talks to the remote issue tracker.
type Client struct {
	baseURL  string
	email    string
	apiToken string
	timeout  time.Duration
	httpc    *http.Client
}

// NewClient creates a Client from config.
//
// Returns ErrNotConfigured if the base URL or credential pair is missing.
func NewClient(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" || cfg.Email == "" || cfg.APIToken == "" {
		return nil, fmt.Errorf("%w: base URL, email, and API token are required", ErrNotConfigured)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	httpc := cfg.HTTPClient
	if httpc == nil {
		httpc = &http.Client{}
	}

	return &Client{
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		email:    cfg.Email,
		apiToken: cfg.APIToken,
		timeout:  timeout,
		httpc:    httpc,
	}, nil
}

// Myself verifies the credential pair and returns the authenticated identity.
func (c *Client) Myself(ctx context.Context) (*Identity, error) {
	var identity Identity
	if err := c.do(ctx, http.MethodGet, "/rest/api/2/myself", nil, nil, &identity); err != nil {
		return nil, fmt.Errorf("failed to look up identity: %w", err)
	}
	return &identity, nil
}

// Search runs a JQL query and returns one page of results plus the total
// match count reported by the remote.
func (c *Client) Search(ctx context.Context, jql string, fields []string, startAt, maxResults int) (*SearchResult, error) {
	query := url.Values{}
	query.Set("jql", jql)
	if len(fields) > 0 {
		query.Set("fields", strings.Join(fields, ","))
	}
	query.Set("startAt", strconv.Itoa(startAt))
	query.Set("maxResults", strconv.Itoa(maxResults))

	var result SearchResult
	if err := c.do(ctx, http.MethodGet, "/rest/api/2/search", query, nil, &result); err != nil {
		return nil, fmt.Errorf("failed to search issues: %w", err)
	}
	return &result, nil
}

// GetIssue retrieves a single issue by key.
func (c *Client) GetIssue(ctx context.Context, key string) (*Issue, error) {
	var issue Issue
	if err := c.do(ctx, http.MethodGet, "/rest/api/2/issue/"+url.PathEscape(key), nil, nil, &issue); err != nil {
		return nil, fmt.Errorf("failed to get issue %s: %w", key, err)
	}
	return &issue, nil
}

// UpdateIssue writes the given fields on an issue. Field keys are remote
// field ids (including deployment-specific custom field ids).
func (c *Client) UpdateIssue(ctx context.Context, key string, fields map[string]interface{}) error {
	body := map[string]interface{}{"fields": fields}
	if err := c.do(ctx, http.MethodPut, "/rest/api/2/issue/"+url.PathEscape(key), nil, body, nil); err != nil {
		return fmt.Errorf("failed to update issue %s: %w", key, err)
	}
	return nil
}

// GetTransitions lists the workflow moves currently available for an issue.
func (c *Client) GetTransitions(ctx context.Context, key string) ([]Transition, error) {
	var result struct {
		Transitions []Transition `json:"transitions"`
	}
	path := "/rest/api/2/issue/" + url.PathEscape(key) + "/transitions"
	if err := c.do(ctx, http.MethodGet, path, nil, nil, &result); err != nil {
		return nil, fmt.Errorf("failed to get transitions for %s: %w", key, err)
	}
	return result.Transitions, nil
}

// ApplyTransition executes a workflow move on an issue.
//
// A transition the remote rejects for a missing required field surfaces
// as a *ValidationError naming that field.
func (c *Client) ApplyTransition(ctx context.Context, key, transitionID string) error {
	body := map[string]interface{}{
		"transition": map[string]string{"id": transitionID},
	}
	path := "/rest/api/2/issue/" + url.PathEscape(key) + "/transitions"
	if err := c.do(ctx, http.MethodPost, path, nil, body, nil); err != nil {
		return fmt.Errorf("failed to apply transition %s on %s: %w", transitionID, key, err)
	}
	return nil
}

// Boards lists all agile boards associated with a project.
func (c *Client) Boards(ctx context.Context, projectKey string) ([]Board, error) {
	query := url.Values{}
	query.Set("projectKeyOrId", projectKey)

	var result struct {
		Values []Board `json:"values"`
	}
	if err := c.do(ctx, http.MethodGet, "/rest/agile/1.0/board", query, nil, &result); err != nil {
		return nil, fmt.Errorf("failed to list boards for project %s: %w", projectKey, err)
	}
	return result.Values, nil
}

// Sprints lists a board's sprints in the given state (active, future, closed).
func (c *Client) Sprints(ctx context.Context, boardID int, state string) ([]Sprint, error) {
	query := url.Values{}
	query.Set("state", state)

	path := fmt.Sprintf("/rest/agile/1.0/board/%d/sprint", boardID)
	var result struct {
		Values []Sprint `json:"values"`
	}
	if err := c.do(ctx, http.MethodGet, path, query, nil, &result); err != nil {
		return nil, fmt.Errorf("failed to list %s sprints for board %d: %w", state, boardID, err)
	}
	return result.Values, nil
}

// SprintIssues returns one page of a sprint's issues, optionally filtered
// by a JQL expression.
func (c *Client) SprintIssues(ctx context.Context, sprintID int, jql string, fields []string, startAt, maxResults int) (*SearchResult, error) {
	query := url.Values{}
	if jql != "" {
		query.Set("jql", jql)
	}
	if len(fields) > 0 {
		query.Set("fields", strings.Join(fields, ","))
	}
	query.Set("startAt", strconv.Itoa(startAt))
	query.Set("maxResults", strconv.Itoa(maxResults))

	path := fmt.Sprintf("/rest/agile/1.0/sprint/%d/issue", sprintID)
	var result SearchResult
	if err := c.do(ctx, http.MethodGet, path, query, nil, &result); err != nil {
		return nil, fmt.Errorf("failed to list issues for sprint %d: %w", sprintID, err)
	}
	return &result, nil
}

// BacklogIssues returns one page of a board's backlog, optionally filtered
// by a JQL expression.
func (c *Client) BacklogIssues(ctx context.Context, boardID int, jql string, fields []string, startAt, maxResults int) (*SearchResult, error) {
	query := url.Values{}
	if jql != "" {
		query.Set("jql", jql)
	}
	if len(fields) > 0 {
		query.Set("fields", strings.Join(fields, ","))
	}
	query.Set("startAt", strconv.Itoa(startAt))
	query.Set("maxResults", strconv.Itoa(maxResults))

	path := fmt.Sprintf("/rest/agile/1.0/board/%d/backlog", boardID)
	var result SearchResult
	if err := c.do(ctx, http.MethodGet, path, query, nil, &result); err != nil {
		return nil, fmt.Errorf("failed to list backlog for board %d: %w", boardID, err)
	}
	return &result, nil
}

// do performs one authenticated round trip and decodes the response into out.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out interface{}) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reqBody io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		reqBody = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reqBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.SetBasicAuth(c.email, c.apiToken)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return classifyTransportError(err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return classifyTransportError(err)
	}

	// Decode as UTF-8 regardless of what the transport claims. A payload
	// that isn't valid UTF-8 is an error, never silently transcoded.
	raw, err = decodeUTF8(raw)
	if err != nil {
		return err
	}

	if resp.StatusCode >= 400 {
		return classifyStatusError(resp.StatusCode, raw)
	}

	if out != nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}

	return nil
}

// decodeUTF8 strips a leading BOM and verifies the payload is valid UTF-8.
func decodeUTF8(raw []byte) ([]byte, error) {
	raw = bytes.TrimPrefix(raw, []byte{0xEF, 0xBB, 0xBF})
	if !utf8.Valid(raw) {
		return nil, fmt.Errorf("response body is not valid UTF-8")
	}
	return raw, nil
}

// classifyTransportError maps transport failures onto the error taxonomy.
func classifyTransportError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}

	var timeoutErr interface{ Timeout() bool }
	if errors.As(err, &timeoutErr) && timeoutErr.Timeout() {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}

	return fmt.Errorf("%w: %v", ErrNetwork, err)
}

// errorBody is the error envelope the remote returns on 4xx responses.
type errorBody struct {
	ErrorMessages []string          `json:"errorMessages"`
	Errors        map[string]string `json:"errors"`
}

// classifyStatusError maps HTTP error statuses onto the error taxonomy.
func classifyStatusError(status int, raw []byte) error {
	var body errorBody
	_ = json.Unmarshal(raw, &body)

	message := strings.Join(body.ErrorMessages, "; ")
	if message == "" {
		message = strings.TrimSpace(string(raw))
	}

	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return fmt.Errorf("%w (HTTP %d): %s", ErrAuthFailed, status, message)
	case status == http.StatusNotFound:
		return fmt.Errorf("%w (HTTP %d): %s", ErrNotFound, status, message)
	case status == http.StatusBadRequest:
		// Field-specific errors win over the generic message list.
		for field, msg := range body.Errors {
			return &ValidationError{Field: field, Message: msg}
		}
		return &ValidationError{Message: message}
	case status >= 500:
		return &ServerError{Status: status, Message: message}
	default:
		return &ServerError{Status: status, Message: message}
	}
}
