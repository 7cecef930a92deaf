package agents

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func newTestClient(srv *httptest.Server, retries int) *Client {
	return NewClient(ClientOptions{
		Endpoint:   srv.URL,
		APIVersion: "2025-05-01",
		Timeout:    2 * time.Second,
		Retries:    retries,
		Backoff:    time.Millisecond,
	}, StaticToken("test-token"))
}

func TestCreateAgentRequestShape(t *testing.T) {
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/assistants" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		if got := r.URL.Query().Get("api-version"); got != "2025-05-01" {
			t.Errorf("api-version = %q", got)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-token" {
			t.Errorf("authorization = %q", got)
		}
		if r.Header.Get("x-ms-client-request-id") == "" {
			t.Errorf("missing client request id")
		}
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode body: %v", err)
		}
		_ = json.NewEncoder(w).Encode(Agent{ID: "asst_1", Name: "my-research-agent"})
	}))
	defer srv.Close()

	c := newTestClient(srv, 0)
	tool := NewDeepResearchTool("o3-deep-research", "conn_1")
	agent, err := c.CreateAgent(context.Background(), CreateAgentParams{
		Model:        "gpt-4o",
		Name:         "my-research-agent",
		Instructions: "do research",
		Tools:        []ToolDefinition{tool},
	})
	if err != nil {
		t.Fatalf("CreateAgent: %v", err)
	}
	if agent.ID != "asst_1" {
		t.Fatalf("agent id = %q", agent.ID)
	}
	if gotBody["model"] != "gpt-4o" {
		t.Fatalf("body model = %v", gotBody["model"])
	}
	tools, ok := gotBody["tools"].([]any)
	if !ok || len(tools) != 1 {
		t.Fatalf("body tools = %v", gotBody["tools"])
	}
	toolMap := tools[0].(map[string]any)
	if toolMap["type"] != "deep_research" {
		t.Fatalf("tool type = %v", toolMap["type"])
	}
	dr := toolMap["deep_research"].(map[string]any)
	conns := dr["bing_grounding_connections"].([]any)
	if len(conns) != 1 || conns[0].(map[string]any)["connection_id"] != "conn_1" {
		t.Fatalf("grounding connections = %v", dr["bing_grounding_connections"])
	}
}

func TestGetMessageParsesContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/threads/th_1/messages/msg_1" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		_, _ = io.WriteString(w, `{
			"id": "msg_1",
			"role": "assistant",
			"content": [
				{"type": "text", "text": {"value": "first part", "annotations": [
					{"type": "url_citation", "url_citation": {"url": "https://a.example", "title": "A"}}
				]}},
				{"type": "image_file"},
				{"type": "text", "text": {"value": "second part", "annotations": [
					{"type": "url_citation", "url_citation": {"url": "https://b.example"}}
				]}}
			]
		}`)
	}))
	defer srv.Close()

	c := newTestClient(srv, 0)
	msg, err := c.GetMessage(context.Background(), "th_1", "msg_1")
	if err != nil {
		t.Fatalf("GetMessage: %v", err)
	}
	segs := msg.TextSegments()
	if len(segs) != 2 || segs[0] != "first part" || segs[1] != "second part" {
		t.Fatalf("segments = %v", segs)
	}
	if got := msg.Text(); got != "first part\nsecond part" {
		t.Fatalf("text = %q", got)
	}
	cits := msg.Citations()
	if len(cits) != 2 {
		t.Fatalf("citations = %v", cits)
	}
	if cits[0].URL != "https://a.example" || cits[0].Title != "A" {
		t.Fatalf("first citation = %+v", cits[0])
	}
	if cits[1].URL != "https://b.example" || cits[1].Title != "" {
		t.Fatalf("second citation = %+v", cits[1])
	}
}

func TestLastMessageByRole(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/threads/th_1/messages" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("order"); got != "desc" {
			t.Errorf("order = %q", got)
		}
		_, _ = io.WriteString(w, `{"data": [
			{"id": "msg_3", "role": "user", "content": []},
			{"id": "msg_2", "role": "assistant", "content": [{"type": "text", "text": {"value": "latest"}}]},
			{"id": "msg_1", "role": "assistant", "content": [{"type": "text", "text": {"value": "older"}}]}
		]}`)
	}))
	defer srv.Close()

	c := newTestClient(srv, 0)
	msg, err := c.LastMessageByRole(context.Background(), "th_1", RoleAssistant)
	if err != nil {
		t.Fatalf("LastMessageByRole: %v", err)
	}
	if msg == nil || msg.ID != "msg_2" {
		t.Fatalf("message = %+v", msg)
	}
}

func TestLastMessageByRoleEmptyThread(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"data": []}`)
	}))
	defer srv.Close()

	c := newTestClient(srv, 0)
	msg, err := c.LastMessageByRole(context.Background(), "th_1", RoleAssistant)
	if err != nil {
		t.Fatalf("LastMessageByRole: %v", err)
	}
	if msg != nil {
		t.Fatalf("expected nil message, got %+v", msg)
	}
}

func TestRetryOnServerErrorResendsBody(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		body, _ := io.ReadAll(r.Body)
		if len(body) == 0 {
			t.Errorf("attempt %d: empty body", n)
		}
		if n < 3 {
			http.Error(w, "upstream hiccup", http.StatusBadGateway)
			return
		}
		_ = json.NewEncoder(w).Encode(Run{ID: "run_1", Status: StatusQueued})
	}))
	defer srv.Close()

	c := newTestClient(srv, 2)
	run, err := c.CreateRun(context.Background(), "th_1", CreateRunParams{AgentID: "asst_1"})
	if err != nil {
		t.Fatalf("CreateRun: %v", err)
	}
	if run.ID != "run_1" {
		t.Fatalf("run = %+v", run)
	}
	if got := calls.Load(); got != 3 {
		t.Fatalf("calls = %d, want 3", got)
	}
}

func TestNoRetryOnClientError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, `{"error": "bad request"}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	c := newTestClient(srv, 3)
	_, err := c.GetRun(context.Background(), "th_1", "run_1")
	if err == nil {
		t.Fatalf("expected error")
	}
	if got := calls.Load(); got != 1 {
		t.Fatalf("calls = %d, want 1", got)
	}
}

func TestClientCredentialCachesToken(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		if got := r.PostForm.Get("grant_type"); got != "client_credentials" {
			t.Errorf("grant_type = %q", got)
		}
		if got := r.PostForm.Get("scope"); got != DefaultScope {
			t.Errorf("scope = %q", got)
		}
		_, _ = io.WriteString(w, `{"access_token": "tok-1", "expires_in": 3600, "token_type": "Bearer"}`)
	}))
	defer srv.Close()

	cred := NewClientCredential("tenant", "client", "secret")
	cred.TokenURL = srv.URL

	for i := 0; i < 3; i++ {
		tok, err := cred.Token(context.Background())
		if err != nil {
			t.Fatalf("Token: %v", err)
		}
		if tok != "tok-1" {
			t.Fatalf("token = %q", tok)
		}
	}
	if got := calls.Load(); got != 1 {
		t.Fatalf("token endpoint calls = %d, want 1", got)
	}
}

func TestResolveTokenSource(t *testing.T) {
	if _, err := ResolveTokenSource("", "", "", ""); err == nil {
		t.Fatalf("expected error with no auth material")
	}
	src, err := ResolveTokenSource("tok", "", "", "")
	if err != nil {
		t.Fatalf("ResolveTokenSource: %v", err)
	}
	if _, ok := src.(StaticToken); !ok {
		t.Fatalf("expected static token, got %T", src)
	}
	src, err = ResolveTokenSource("tok", "tenant", "client", "secret")
	if err != nil {
		t.Fatalf("ResolveTokenSource: %v", err)
	}
	if _, ok := src.(*ClientCredential); !ok {
		t.Fatalf("expected client credential, got %T", src)
	}
}

func TestRunInFlight(t *testing.T) {
	for _, status := range []string{StatusQueued, StatusInProgress} {
		if !(Run{Status: status}).InFlight() {
			t.Fatalf("%s should be in flight", status)
		}
	}
	for _, status := range []string{StatusCompleted, StatusFailed, StatusCancelled, StatusExpired, StatusRequiresAction} {
		if (Run{Status: status}).InFlight() {
			t.Fatalf("%s should be terminal", status)
		}
	}
}
