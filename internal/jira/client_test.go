package jira

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

// testClient returns a Client pointed at the given test server.
func testClient(t *testing.T, srv *httptest.Server) *Client {
	t.Helper()
	client, err := NewClient(Config{
		BaseURL:  srv.URL,
		Email:    "dev@example.com",
		APIToken: "token-123",
	})
	if err != nil {
		t.Fatalf("NewClient() failed: %v", err)
	}
	return client
}

// TestNewClient_NotConfigured tests that missing settings are rejected.
func TestNewClient_NotConfigured(t *testing.T) {
	_, err := NewClient(Config{BaseURL: "https://example.com"})
	if !errors.Is(err, ErrNotConfigured) {
		t.Errorf("NewClient() error = %v, want ErrNotConfigured", err)
	}
}

// TestMyself_Success tests identity lookup and basic auth headers.
func TestMyself_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/rest/api/2/myself" {
			t.Errorf("path = %q, want /rest/api/2/myself", r.URL.Path)
		}
		user, pass, ok := r.BasicAuth()
		if !ok || user != "dev@example.com" || pass != "token-123" {
			t.Errorf("basic auth = %q/%q (ok=%v)", user, pass, ok)
		}
		json.NewEncoder(w).Encode(Identity{
			AccountID:   "abc123",
			DisplayName: "Dev User",
		})
	}))
	defer srv.Close()

	client := testClient(t, srv)
	identity, err := client.Myself(context.Background())
	if err != nil {
		t.Fatalf("Myself() failed: %v", err)
	}
	if identity.AccountID != "abc123" {
		t.Errorf("AccountID = %q, want %q", identity.AccountID, "abc123")
	}
}

// TestMyself_AuthFailed tests 401 classification.
func TestMyself_AuthFailed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"errorMessages":["Invalid credentials"]}`))
	}))
	defer srv.Close()

	client := testClient(t, srv)
	_, err := client.Myself(context.Background())
	if !errors.Is(err, ErrAuthFailed) {
		t.Errorf("Myself() error = %v, want ErrAuthFailed", err)
	}
	if IsRetryable(err) {
		t.Error("auth failure should not be retryable")
	}
	if !IsFatal(err) {
		t.Error("auth failure should be fatal")
	}
}

// TestGetIssue_NotFound tests 404 classification.
func TestGetIssue_NotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"errorMessages":["Issue does not exist"]}`))
	}))
	defer srv.Close()

	client := testClient(t, srv)
	_, err := client.GetIssue(context.Background(), "X-404")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("GetIssue() error = %v, want ErrNotFound", err)
	}
}

// TestSearch_DecodesEnvelope tests the pagination envelope and multi-script
// payloads survive decoding intact.
func TestSearch_DecodesEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("jql"); got != `assignee = "dev"` {
			t.Errorf("jql = %q", got)
		}
		if got := r.URL.Query().Get("startAt"); got != "10" {
			t.Errorf("startAt = %q, want 10", got)
		}
		// Content-type deliberately wrong: decoding must not depend on it.
		w.Header().Set("Content-Type", "text/plain; charset=iso-8859-1")
		w.Write([]byte(`{
			"startAt": 10, "maxResults": 50, "total": 123,
			"issues": [
				{"key": "X-1", "fields": {"summary": "修复登录", "status": {"name": "进行中"}}}
			]
		}`))
	}))
	defer srv.Close()

	client := testClient(t, srv)
	result, err := client.Search(context.Background(), `assignee = "dev"`, []string{"summary", "status"}, 10, 50)
	if err != nil {
		t.Fatalf("Search() failed: %v", err)
	}
	if result.Total != 123 {
		t.Errorf("Total = %d, want 123", result.Total)
	}
	if len(result.Issues) != 1 {
		t.Fatalf("len(Issues) = %d, want 1", len(result.Issues))
	}
	issue := result.Issues[0]
	if issue.Key != "X-1" {
		t.Errorf("Key = %q, want X-1", issue.Key)
	}
	if issue.Fields.Status.Name != "进行中" {
		t.Errorf("Status = %q, want 进行中", issue.Fields.Status.Name)
	}
	if issue.Fields.Summary != "修复登录" {
		t.Errorf("Summary = %q, want 修复登录", issue.Fields.Summary)
	}
}

// TestDo_StripsBOM tests that a byte-order mark before the payload is dropped.
func TestDo_StripsBOM(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(append([]byte{0xEF, 0xBB, 0xBF}, []byte(`{"accountId":"bom"}`)...))
	}))
	defer srv.Close()

	client := testClient(t, srv)
	identity, err := client.Myself(context.Background())
	if err != nil {
		t.Fatalf("Myself() failed: %v", err)
	}
	if identity.AccountID != "bom" {
		t.Errorf("AccountID = %q, want bom", identity.AccountID)
	}
}

// TestDo_RejectsInvalidUTF8 tests that a mis-encoded body is an error, not
// silently corrupted input for the normalizer.
func TestDo_RejectsInvalidUTF8(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Latin-1 encoded payload: invalid as UTF-8.
		w.Write([]byte{'{', '"', 'a', '"', ':', '"', 0xE9, '"', '}'})
	}))
	defer srv.Close()

	client := testClient(t, srv)
	_, err := client.Myself(context.Background())
	if err == nil {
		t.Fatal("Myself() succeeded on invalid UTF-8 body")
	}
}

// TestDo_Timeout tests deadline classification.
func TestDo_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(500 * time.Millisecond)
	}))
	defer srv.Close()

	client, err := NewClient(Config{
		BaseURL:  srv.URL,
		Email:    "dev@example.com",
		APIToken: "token-123",
		Timeout:  20 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("NewClient() failed: %v", err)
	}

	_, err = client.Myself(context.Background())
	if !errors.Is(err, ErrTimeout) {
		t.Errorf("Myself() error = %v, want ErrTimeout", err)
	}
	if !IsRetryable(err) {
		t.Error("timeout should be retryable")
	}
}

// TestDo_ServerError tests 5xx classification.
func TestDo_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte(`{"errorMessages":["upstream unavailable"]}`))
	}))
	defer srv.Close()

	client := testClient(t, srv)
	_, err := client.Myself(context.Background())

	var serverErr *ServerError
	if !errors.As(err, &serverErr) {
		t.Fatalf("Myself() error = %v, want *ServerError", err)
	}
	if serverErr.Status != http.StatusBadGateway {
		t.Errorf("Status = %d, want 502", serverErr.Status)
	}
	if !IsRetryable(err) {
		t.Error("5xx should be retryable")
	}
}

// TestApplyTransition_ValidationError tests that a rejected transition
// names the field at fault.
func TestApplyTransition_ValidationError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %q, want POST", r.Method)
		}
		var body struct {
			Transition struct {
				ID string `json:"id"`
			} `json:"transition"`
		}
		json.NewDecoder(r.Body).Decode(&body)
		if body.Transition.ID != "31" {
			t.Errorf("transition id = %q, want 31", body.Transition.ID)
		}
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"errors":{"resolution":"Resolution is required"}}`))
	}))
	defer srv.Close()

	client := testClient(t, srv)
	err := client.ApplyTransition(context.Background(), "X-1", "31")

	var valErr *ValidationError
	if !errors.As(err, &valErr) {
		t.Fatalf("ApplyTransition() error = %v, want *ValidationError", err)
	}
	if valErr.Field != "resolution" {
		t.Errorf("Field = %q, want resolution", valErr.Field)
	}
}

// TestGetTransitions_Success tests transition listing.
func TestGetTransitions_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"transitions":[
			{"id":"11","name":"Start","to":{"name":"In Progress"}},
			{"id":"31","name":"Finish","to":{"name":"Done"}}
		]}`))
	}))
	defer srv.Close()

	client := testClient(t, srv)
	transitions, err := client.GetTransitions(context.Background(), "X-1")
	if err != nil {
		t.Fatalf("GetTransitions() failed: %v", err)
	}
	if len(transitions) != 2 {
		t.Fatalf("len(transitions) = %d, want 2", len(transitions))
	}
	if transitions[1].To.Name != "Done" {
		t.Errorf("To.Name = %q, want Done", transitions[1].To.Name)
	}
}

// TestIssue_CustomFields tests custom field access by configured field id.
func TestIssue_CustomFields(t *testing.T) {
	var issue Issue
	raw := `{"key":"X-9","fields":{
		"summary":"estimate me",
		"customfield_10016": 5,
		"customfield_10040": "2025-11-01",
		"customfield_10050": null
	}}`
	if err := json.Unmarshal([]byte(raw), &issue); err != nil {
		t.Fatalf("Unmarshal() failed: %v", err)
	}

	points, ok := issue.CustomNumber("customfield_10016")
	if !ok || points != 5 {
		t.Errorf("CustomNumber() = %v, %v; want 5, true", points, ok)
	}

	due, ok := issue.CustomString("customfield_10040")
	if !ok || due != "2025-11-01" {
		t.Errorf("CustomString() = %q, %v; want 2025-11-01, true", due, ok)
	}

	if _, ok := issue.CustomNumber("customfield_10050"); ok {
		t.Error("CustomNumber() on null field should report false")
	}
	if _, ok := issue.CustomNumber("customfield_99999"); ok {
		t.Error("CustomNumber() on absent field should report false")
	}
}

// TestIssue_InSprint tests the sprint-association guard input.
func TestIssue_InSprint(t *testing.T) {
	var inSprint Issue
	json.Unmarshal([]byte(`{"key":"X-1","fields":{"sprint":{"id":7,"name":"Sprint 7","state":"active"}}}`), &inSprint)
	if !inSprint.InSprint() {
		t.Error("issue with active sprint should report InSprint")
	}

	var closed Issue
	json.Unmarshal([]byte(`{"key":"X-2","fields":{"closedSprint":[{"id":3,"name":"Sprint 3","state":"closed"}]}}`), &closed)
	if !closed.InSprint() {
		t.Error("issue with closed sprint should report InSprint")
	}

	var free Issue
	json.Unmarshal([]byte(`{"key":"X-3","fields":{"summary":"backlog item"}}`), &free)
	if free.InSprint() {
		t.Error("issue with no sprint association should not report InSprint")
	}
}
