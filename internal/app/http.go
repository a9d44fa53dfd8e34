package app

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"slatework/api/internal/auth"
	"slatework/api/internal/authpw"
	"slatework/api/internal/search"
	"slatework/api/internal/store"
)

type HTTPServer struct {
	service    *Service
	corsOrigin string
}

func NewHTTPServer(service *Service, corsOrigin string) *HTTPServer {
	return &HTTPServer{service: service, corsOrigin: corsOrigin}
}

func (s *HTTPServer) Handler() http.Handler {
	return s.withMiddleware(http.HandlerFunc(s.handle))
}

func (s *HTTPServer) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		writeJSON(w, http.StatusNoContent, map[string]any{})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/health" {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/ready" {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		statusCode := http.StatusOK
		checks := map[string]any{
			"database": map[string]any{"status": "ok"},
			"snapshot": map[string]any{"status": "ok"},
		}
		if err := s.service.Ping(ctx); err != nil {
			statusCode = http.StatusServiceUnavailable
			checks["database"] = map[string]any{"status": "error", "error": err.Error()}
		}
		if !s.service.SnapshotLoaded() {
			statusCode = http.StatusServiceUnavailable
			checks["snapshot"] = map[string]any{"status": "not_loaded"}
		}
		writeJSON(w, statusCode, map[string]any{"ok": statusCode == http.StatusOK, "checks": checks})
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/auth/signup" {
		var body struct {
			Email    string `json:"email"`
			Password string `json:"password"`
			FullName string `json:"fullName"`
			Role     string `json:"role"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		session, err := s.service.SignUp(r.Context(), authpw.SignUpRequest{
			Email:    body.Email,
			Password: body.Password,
			FullName: body.FullName,
			Role:     body.Role,
		})
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusCreated, sessionResponse(session))
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/auth/signin" {
		var body struct {
			Email    string `json:"email"`
			Password string `json:"password"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		session, err := s.service.SignIn(r.Context(), body.Email, body.Password)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, sessionResponse(session))
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/session" {
		token := bearerToken(r)
		if token == "" {
			writeJSON(w, http.StatusOK, map[string]any{"authenticated": false})
			return
		}
		session, err := s.service.SessionFromToken(r.Context(), token)
		if err != nil {
			writeJSON(w, http.StatusOK, map[string]any{"authenticated": false})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"authenticated": true,
			"userId":        session.UserID,
			"userName":      session.UserName,
			"initials":      session.Initials,
			"role":          session.Role,
		})
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/session/refresh" {
		var body struct {
			RefreshToken string `json:"refreshToken"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		session, err := s.service.Refresh(r.Context(), body.RefreshToken)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, sessionResponse(session))
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/session/logout" {
		session := Session{}
		if token := bearerToken(r); token != "" {
			if parsed, err := s.service.SessionFromToken(r.Context(), token); err == nil {
				session = parsed
			}
		}
		var body struct {
			RefreshToken string `json:"refreshToken"`
		}
		_ = decodeBody(r, &body)
		_ = s.service.Logout(r.Context(), session, body.RefreshToken)
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	parts := splitPath(r.URL.Path)
	if len(parts) < 2 || parts[0] != "api" {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return
	}

	session, ok := s.requireSession(w, r)
	if !ok {
		return
	}

	switch parts[1] {
	case "articles":
		s.handleArticles(w, r, session, parts[2:])
	case "discussions":
		s.handleDiscussions(w, r, session, parts[2:])
	case "workspaces":
		s.handleWorkspaces(w, r, session, parts[2:])
	case "tags":
		s.handleTags(w, r, session, parts[2:])
	case "summary":
		s.handleSummary(w, r)
	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

func (s *HTTPServer) handleArticles(w http.ResponseWriter, r *http.Request, session Session, parts []string) {
	switch {
	case len(parts) == 0 && r.Method == http.MethodGet:
		query := r.URL.Query().Get("q")
		items := s.service.Articles(query)
		responses := make([]map[string]any, 0, len(items))
		for _, item := range items {
			response := articleResponse(item)
			if strings.TrimSpace(query) != "" {
				response["titleSegments"] = search.Highlight(item.Title, query)
			}
			responses = append(responses, response)
		}
		writeJSON(w, http.StatusOK, map[string]any{"articles": responses})

	case len(parts) == 0 && r.Method == http.MethodPost:
		var input CreateArticleInput
		if err := decodeBody(r, &input); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		item, err := s.service.CreateArticle(r.Context(), session, input)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusCreated, articleResponse(item))

	case len(parts) == 1 && r.Method == http.MethodGet:
		item, err := s.service.store.GetArticle(r.Context(), parts[0])
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, articleResponse(item))

	case len(parts) == 1 && r.Method == http.MethodPatch:
		var input UpdateArticleInput
		if err := decodeBody(r, &input); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		item, err := s.service.UpdateArticle(r.Context(), session, parts[0], input)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, articleResponse(item))

	case len(parts) == 1 && r.Method == http.MethodDelete:
		if err := s.service.DeleteArticle(r.Context(), session, parts[0]); err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})

	case len(parts) == 2 && parts[1] == "archive" && r.Method == http.MethodPost:
		item, err := s.service.ArchiveArticle(r.Context(), session, parts[0])
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, articleResponse(item))

	case len(parts) == 2 && parts[1] == "restore" && r.Method == http.MethodPost:
		item, err := s.service.RestoreArticle(r.Context(), session, parts[0])
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, articleResponse(item))

	case len(parts) == 2 && parts[1] == "versions" && r.Method == http.MethodGet:
		versions, err := s.service.ArticleVersions(r.Context(), parts[0])
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		responses := make([]map[string]any, 0, len(versions))
		for _, version := range versions {
			responses = append(responses, versionResponse(version))
		}
		writeJSON(w, http.StatusOK, map[string]any{"versions": responses})

	case len(parts) == 2 && parts[1] == "html" && r.Method == http.MethodGet:
		rendered, err := s.service.ArticleHTML(r.Context(), parts[0])
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"html": rendered})

	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

func (s *HTTPServer) handleDiscussions(w http.ResponseWriter, r *http.Request, session Session, parts []string) {
	switch {
	case len(parts) == 0 && r.Method == http.MethodGet:
		query := r.URL.Query().Get("q")
		items := s.service.Discussions(query)
		responses := make([]map[string]any, 0, len(items))
		for _, item := range items {
			response := discussionResponse(item)
			if strings.TrimSpace(query) != "" {
				response["titleSegments"] = search.Highlight(item.Title, query)
			}
			responses = append(responses, response)
		}
		writeJSON(w, http.StatusOK, map[string]any{"discussions": responses})

	case len(parts) == 0 && r.Method == http.MethodPost:
		var input CreateDiscussionInput
		if err := decodeBody(r, &input); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		item, err := s.service.CreateDiscussion(r.Context(), session, input)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusCreated, discussionResponse(item))

	case len(parts) == 1 && r.Method == http.MethodGet:
		item, err := s.service.store.GetDiscussion(r.Context(), parts[0])
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, discussionResponse(item))

	case len(parts) == 2 && parts[1] == "replies" && r.Method == http.MethodPost:
		var body struct {
			Content string `json:"content"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		item, err := s.service.AddReply(r.Context(), session, parts[0], body.Content)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusCreated, discussionResponse(item))

	case len(parts) == 2 && r.Method == http.MethodPost:
		var item store.Discussion
		var err error
		switch parts[1] {
		case "resolve":
			item, err = s.service.ResolveDiscussion(r.Context(), session, parts[0])
		case "close":
			item, err = s.service.CloseDiscussion(r.Context(), session, parts[0])
		case "reopen":
			item, err = s.service.ReopenDiscussion(r.Context(), session, parts[0])
		default:
			writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
			return
		}
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, discussionResponse(item))

	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

func (s *HTTPServer) handleWorkspaces(w http.ResponseWriter, r *http.Request, session Session, parts []string) {
	switch {
	case len(parts) == 0 && r.Method == http.MethodGet:
		items := s.service.Workspaces()
		responses := make([]map[string]any, 0, len(items))
		for _, item := range items {
			responses = append(responses, workspaceResponse(item))
		}
		writeJSON(w, http.StatusOK, map[string]any{"workspaces": responses})

	case len(parts) == 0 && r.Method == http.MethodPost:
		var input CreateWorkspaceInput
		if err := decodeBody(r, &input); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		item, err := s.service.CreateWorkspace(r.Context(), session, input)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusCreated, workspaceResponse(item))

	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

func (s *HTTPServer) handleTags(w http.ResponseWriter, r *http.Request, session Session, parts []string) {
	switch {
	case len(parts) == 0 && r.Method == http.MethodGet:
		items := s.service.Tags()
		responses := make([]map[string]any, 0, len(items))
		for _, item := range items {
			responses = append(responses, tagResponse(item))
		}
		writeJSON(w, http.StatusOK, map[string]any{"tags": responses})

	case len(parts) == 0 && r.Method == http.MethodPost:
		var input CreateTagInput
		if err := decodeBody(r, &input); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		item, err := s.service.CreateTag(r.Context(), session, input)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusCreated, tagResponse(item))

	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

func (s *HTTPServer) handleSummary(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return
	}
	counts, err := s.service.Summary(r.Context())
	if err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"articles":        counts.Articles,
		"published":       counts.Published,
		"drafts":          counts.Drafts,
		"openDiscussions": counts.OpenDiscussions,
	})
}

// ---- response shaping ----

func sessionResponse(session Session) map[string]any {
	return map[string]any{
		"token":        session.Token,
		"refreshToken": session.RefreshToken,
		"userId":       session.UserID,
		"userName":     session.UserName,
		"initials":     session.Initials,
		"role":         session.Role,
	}
}

func profileResponse(profile store.Profile) map[string]any {
	return map[string]any{
		"id":        profile.ID,
		"fullName":  profile.FullName,
		"initials":  profile.Initials,
		"role":      profile.Role,
		"avatarUrl": profile.AvatarURL,
	}
}

func articleResponse(item store.Article) map[string]any {
	tags := make([]map[string]any, 0, len(item.Tags))
	for _, tag := range item.Tags {
		tags = append(tags, tagResponse(tag))
	}
	return map[string]any{
		"id":             item.ID,
		"workspaceId":    item.WorkspaceID,
		"title":          item.Title,
		"content":        item.Content,
		"author":         profileResponse(item.Author),
		"status":         item.Status,
		"currentVersion": item.CurrentVersion,
		"tags":           tags,
		"createdAt":      item.CreatedAt.Format(time.RFC3339),
		"updatedAt":      item.UpdatedAt.Format(time.RFC3339),
	}
}

func versionResponse(version store.ArticleVersion) map[string]any {
	return map[string]any{
		"id":            version.ID,
		"articleId":     version.ArticleID,
		"title":         version.Title,
		"content":       version.Content,
		"author":        profileResponse(version.Author),
		"versionNumber": version.VersionNumber,
		"createdAt":     version.CreatedAt.Format(time.RFC3339),
	}
}

func discussionResponse(item store.Discussion) map[string]any {
	replies := make([]map[string]any, 0, len(item.Replies))
	for _, reply := range item.Replies {
		replies = append(replies, map[string]any{
			"id":        reply.ID,
			"content":   reply.Content,
			"author":    profileResponse(reply.Author),
			"createdAt": reply.CreatedAt.Format(time.RFC3339),
		})
	}
	return map[string]any{
		"id":          item.ID,
		"workspaceId": item.WorkspaceID,
		"title":       item.Title,
		"content":     item.Content,
		"author":      profileResponse(item.Author),
		"status":      item.Status,
		"replyCount":  item.ReplyCount,
		"replies":     replies,
		"createdAt":   item.CreatedAt.Format(time.RFC3339),
		"updatedAt":   item.UpdatedAt.Format(time.RFC3339),
	}
}

func workspaceResponse(item store.Workspace) map[string]any {
	return map[string]any{
		"id":          item.ID,
		"name":        item.Name,
		"description": item.Description,
		"status":      item.Status,
		"createdAt":   item.CreatedAt.Format(time.RFC3339),
	}
}

func tagResponse(item store.Tag) map[string]any {
	return map[string]any{
		"id":          item.ID,
		"workspaceId": item.WorkspaceID,
		"name":        item.Name,
		"color":       item.Color,
	}
}

// ---- plumbing ----

func (s *HTTPServer) requireSession(w http.ResponseWriter, r *http.Request) (Session, bool) {
	token := bearerToken(r)
	if token == "" {
		writeError(w, http.StatusUnauthorized, "UNAUTHENTICATED", "Unauthorized", nil)
		return Session{}, false
	}
	session, err := s.service.SessionFromToken(r.Context(), token)
	if err != nil {
		if errors.Is(err, auth.ErrExpiredToken) || errors.Is(err, auth.ErrInvalidToken) {
			writeError(w, http.StatusUnauthorized, "UNAUTHENTICATED", "Unauthorized", nil)
			return Session{}, false
		}
		writeError(w, http.StatusInternalServerError, "SERVER_ERROR", "Session lookup failed", nil)
		return Session{}, false
	}
	return session, true
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = randomRequestID()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		setCORSHeaders(writer.Header(), s.corsOrigin)
		writer.Header().Set("X-Request-ID", requestID)

		defer func() {
			log.Printf(`{"request_id":"%s","method":"%s","path":"%s","status":%d,"duration_ms":%d}`,
				requestID,
				r.Method,
				r.URL.Path,
				writer.status,
				time.Since(started).Milliseconds(),
			)
		}()
		defer func() {
			if recovered := recover(); recovered != nil {
				log.Printf(`{"request_id":"%s","panic":"%v"}`, requestID, recovered)
				if !writer.wrote {
					writeError(writer, http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil)
				}
			}
		}()

		next.ServeHTTP(writer, r)
	})
}

type requestIDKey struct{}

type statusRecorder struct {
	http.ResponseWriter
	status int
	wrote  bool
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.wrote = true
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Write(p []byte) (int, error) {
	r.wrote = true
	return r.ResponseWriter.Write(p)
}

func randomRequestID() string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

func setCORSHeaders(header http.Header, corsOrigin string) {
	header.Set("Access-Control-Allow-Origin", corsOrigin)
	header.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
	header.Set("Access-Control-Allow-Methods", "GET,POST,PATCH,DELETE,OPTIONS")
	header.Set("Cache-Control", "no-store")
	header.Set("Content-Type", "application/json")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	response := map[string]any{
		"code":  code,
		"error": message,
	}
	if details != nil {
		response["details"] = details
	}
	writeJSON(w, status, response)
}

func decodeBody(r *http.Request, target any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, http.ErrBodyReadAfterClose) {
			return nil
		}
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
}

func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}
	if errors.Is(err, sql.ErrNoRows) {
		return http.StatusNotFound, "NOT_FOUND", "Not found", nil
	}
	if errors.Is(err, auth.ErrInvalidToken) || errors.Is(err, auth.ErrExpiredToken) {
		return http.StatusUnauthorized, "UNAUTHENTICATED", "Unauthorized", nil
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}
