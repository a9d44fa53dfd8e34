package app

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newTestServer(t *testing.T) (*httptest.Server, *Service, *memStore) {
	t.Helper()
	mem := newMemStore()
	svc := New(testConfig(), mem, mem)
	if err := svc.Bootstrap(context.Background()); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	if err := svc.RefreshSnapshot(context.Background()); err != nil {
		t.Fatalf("refresh snapshot: %v", err)
	}
	server := httptest.NewServer(NewHTTPServer(svc, "*").Handler())
	t.Cleanup(server.Close)
	return server, svc, mem
}

func doJSON(t *testing.T, method, url, token string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req, err := http.NewRequest(method, url, &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer resp.Body.Close()
	var payload map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&payload)
	return resp, payload
}

func signUpEditor(t *testing.T, server *httptest.Server) string {
	t.Helper()
	resp, payload := doJSON(t, http.MethodPost, server.URL+"/api/auth/signup", "", map[string]any{
		"email":    "editor@example.com",
		"password": "correct-horse",
		"fullName": "Eddie Editor",
		"role":     "editor",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("signup status %d: %v", resp.StatusCode, payload)
	}
	token, _ := payload["token"].(string)
	if token == "" {
		t.Fatalf("signup returned no token: %v", payload)
	}
	return token
}

func TestMiddlewareRecoversFromPanic(t *testing.T) {
	server := NewHTTPServer(nil, "*")
	handler := server.withMiddleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/articles", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status %d, want 500", rec.Code)
	}
	var payload map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&payload); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if payload["code"] != "SERVER_ERROR" {
		t.Fatalf("expected SERVER_ERROR, got %v", payload)
	}
}

func TestHealthEndpoint(t *testing.T) {
	server, _, _ := newTestServer(t)
	resp, payload := doJSON(t, http.MethodGet, server.URL+"/api/health", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d", resp.StatusCode)
	}
	if ok, _ := payload["ok"].(bool); !ok {
		t.Fatalf("expected ok: %v", payload)
	}
}

func TestArticlesRequireAuthentication(t *testing.T) {
	server, _, _ := newTestServer(t)
	resp, payload := doJSON(t, http.MethodGet, server.URL+"/api/articles", "", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status %d, want 401", resp.StatusCode)
	}
	if payload["code"] != "UNAUTHENTICATED" {
		t.Fatalf("expected UNAUTHENTICATED, got %v", payload)
	}
}

func TestCreateAndFilterArticlesOverHTTP(t *testing.T) {
	server, svc, _ := newTestServer(t)
	token := signUpEditor(t, server)
	workspaceID := firstWorkspaceID(t, svc)

	for _, title := range []string{"Deploy Runbook", "Design Notes"} {
		resp, payload := doJSON(t, http.MethodPost, server.URL+"/api/articles", token, map[string]any{
			"workspaceId": workspaceID,
			"title":       title,
			"content":     "body of " + title,
		})
		if resp.StatusCode != http.StatusCreated {
			t.Fatalf("create %q status %d: %v", title, resp.StatusCode, payload)
		}
		if payload["currentVersion"] != float64(1) {
			t.Fatalf("expected currentVersion 1, got %v", payload["currentVersion"])
		}
	}

	resp, payload := doJSON(t, http.MethodGet, server.URL+"/api/articles?q=runbook", token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list status %d", resp.StatusCode)
	}
	articles, _ := payload["articles"].([]any)
	if len(articles) != 1 {
		t.Fatalf("expected 1 filtered article, got %d", len(articles))
	}
	first, _ := articles[0].(map[string]any)
	if first["title"] != "Deploy Runbook" {
		t.Fatalf("unexpected article: %v", first)
	}
}

func TestUpdateArticleVersionsOverHTTP(t *testing.T) {
	server, svc, _ := newTestServer(t)
	token := signUpEditor(t, server)

	resp, created := doJSON(t, http.MethodPost, server.URL+"/api/articles", token, map[string]any{
		"workspaceId": firstWorkspaceID(t, svc),
		"title":       "Runbook",
		"content":     "v1 content",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status %d", resp.StatusCode)
	}
	articleID, _ := created["id"].(string)

	resp, updated := doJSON(t, http.MethodPatch, server.URL+"/api/articles/"+articleID, token, map[string]any{
		"content": "v2 content",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("update status %d: %v", resp.StatusCode, updated)
	}
	if updated["currentVersion"] != float64(2) {
		t.Fatalf("expected currentVersion 2, got %v", updated["currentVersion"])
	}

	resp, payload := doJSON(t, http.MethodGet, server.URL+"/api/articles/"+articleID+"/versions", token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("versions status %d", resp.StatusCode)
	}
	versions, _ := payload["versions"].([]any)
	if len(versions) != 1 {
		t.Fatalf("expected 1 version, got %d", len(versions))
	}
	version, _ := versions[0].(map[string]any)
	if version["content"] != "v1 content" || version["versionNumber"] != float64(1) {
		t.Fatalf("unexpected version payload: %v", version)
	}
}

func TestReplyToClosedDiscussionOverHTTP(t *testing.T) {
	server, svc, _ := newTestServer(t)
	token := signUpEditor(t, server)

	resp, created := doJSON(t, http.MethodPost, server.URL+"/api/discussions", token, map[string]any{
		"workspaceId": firstWorkspaceID(t, svc),
		"title":       "Naming",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status %d", resp.StatusCode)
	}
	discussionID, _ := created["id"].(string)

	if resp, _ := doJSON(t, http.MethodPost, server.URL+"/api/discussions/"+discussionID+"/close", token, nil); resp.StatusCode != http.StatusOK {
		t.Fatalf("close status %d", resp.StatusCode)
	}

	resp, payload := doJSON(t, http.MethodPost, server.URL+"/api/discussions/"+discussionID+"/replies", token, map[string]any{
		"content": "too late",
	})
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("status %d, want 422", resp.StatusCode)
	}
	if payload["code"] != "INVALID_STATE" {
		t.Fatalf("expected INVALID_STATE, got %v", payload)
	}
}

func TestArticleHTMLEndpoint(t *testing.T) {
	server, svc, _ := newTestServer(t)
	token := signUpEditor(t, server)

	resp, created := doJSON(t, http.MethodPost, server.URL+"/api/articles", token, map[string]any{
		"workspaceId": firstWorkspaceID(t, svc),
		"title":       "Doc",
		"content":     "# Hello",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status %d", resp.StatusCode)
	}
	articleID, _ := created["id"].(string)

	resp, payload := doJSON(t, http.MethodGet, server.URL+"/api/articles/"+articleID+"/html", token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("html status %d", resp.StatusCode)
	}
	rendered, _ := payload["html"].(string)
	if rendered == "" || !bytes.Contains([]byte(rendered), []byte("<h1")) {
		t.Fatalf("expected rendered heading, got %q", rendered)
	}
}

func TestSummaryEndpoint(t *testing.T) {
	server, svc, _ := newTestServer(t)
	token := signUpEditor(t, server)
	workspaceID := firstWorkspaceID(t, svc)

	if resp, _ := doJSON(t, http.MethodPost, server.URL+"/api/articles", token, map[string]any{
		"workspaceId": workspaceID, "title": "Draft One",
	}); resp.StatusCode != http.StatusCreated {
		t.Fatalf("create article failed: %d", resp.StatusCode)
	}
	if resp, _ := doJSON(t, http.MethodPost, server.URL+"/api/discussions", token, map[string]any{
		"workspaceId": workspaceID, "title": "Open Thread",
	}); resp.StatusCode != http.StatusCreated {
		t.Fatalf("create discussion failed: %d", resp.StatusCode)
	}

	resp, payload := doJSON(t, http.MethodGet, server.URL+"/api/summary", token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("summary status %d", resp.StatusCode)
	}
	if payload["articles"] != float64(1) || payload["drafts"] != float64(1) || payload["openDiscussions"] != float64(1) {
		t.Fatalf("unexpected summary: %v", payload)
	}
}
