package app

import (
	"context"
	"net/http"
	"strings"
	"time"

	"slatework/api/internal/auth"
	"slatework/api/internal/authpw"
	"slatework/api/internal/config"
	"slatework/api/internal/markdown"
	"slatework/api/internal/rbac"
	"slatework/api/internal/search"
	"slatework/api/internal/store"
	"slatework/api/internal/util"
)

type Session struct {
	Token        string
	RefreshToken string
	UserID       string
	UserName     string
	Initials     string
	Role         string
	JTI          string
	ExpiresAt    time.Time
}

type CreateArticleInput struct {
	WorkspaceID string   `json:"workspaceId"`
	Title       string   `json:"title"`
	Content     string   `json:"content"`
	Status      string   `json:"status"`
	TagIDs      []string `json:"tagIds"`
}

type UpdateArticleInput struct {
	Title       *string `json:"title"`
	Content     *string `json:"content"`
	Status      *string `json:"status"`
	BaseVersion *int    `json:"baseVersion"`
}

type CreateDiscussionInput struct {
	WorkspaceID string `json:"workspaceId"`
	Title       string `json:"title"`
	Content     string `json:"content"`
}

type CreateWorkspaceInput struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type CreateTagInput struct {
	WorkspaceID string `json:"workspaceId"`
	Name        string `json:"name"`
	Color       string `json:"color"`
}

type dataStore interface {
	GetProfileByEmail(context.Context, string) (store.Profile, error)
	GetProfileByID(context.Context, string) (store.Profile, error)
	CreateProfile(context.Context, store.Profile) error
	RevokeAccessToken(context.Context, string, time.Time) error
	IsAccessTokenRevoked(context.Context, string) (bool, error)

	ListArticles(context.Context) ([]store.Article, error)
	GetArticle(context.Context, string) (store.Article, error)
	InsertArticle(context.Context, store.Article) error
	LinkArticleTags(context.Context, string, []string) error
	UpdateArticleStatus(context.Context, string, string) error
	ApplyArticleEdit(context.Context, store.ArticleEdit) (bool, error)
	DeleteArticle(context.Context, string) error
	ListArticleVersions(context.Context, string) ([]store.ArticleVersion, error)

	ListDiscussions(context.Context) ([]store.Discussion, error)
	GetDiscussion(context.Context, string) (store.Discussion, error)
	InsertDiscussion(context.Context, store.Discussion) error
	InsertReply(context.Context, store.Reply) error
	UpdateDiscussionStatus(context.Context, string, string) error

	ListWorkspaces(context.Context) ([]store.Workspace, error)
	InsertWorkspace(context.Context, store.Workspace) error
	WorkspaceCount(context.Context) (int, error)
	ListTags(context.Context) ([]store.Tag, error)
	InsertTag(context.Context, store.Tag) error

	Summary(context.Context) (store.SummaryCounts, error)
	Ping(ctx context.Context) error
}

type sessionStore interface {
	SaveRefreshSession(ctx context.Context, tokenHash, profileID string, expiresAt time.Time) error
	LookupRefreshSession(ctx context.Context, tokenHash string) (string, error)
	RevokeRefreshSession(ctx context.Context, tokenHash string) error
}

type Service struct {
	cfg      config.Config
	store    dataStore
	sessions sessionStore
	accounts *authpw.Service
	snapshot *Snapshot
	renderer *markdown.Renderer
}

func New(cfg config.Config, dataStore dataStore, sessions sessionStore) *Service {
	return &Service{
		cfg:      cfg,
		store:    dataStore,
		sessions: sessions,
		accounts: authpw.NewService(dataStore),
		snapshot: NewSnapshot(),
		renderer: markdown.NewRenderer(),
	}
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// RefreshSnapshot reloads the read snapshot from the store.
func (s *Service) RefreshSnapshot(ctx context.Context) error {
	return s.snapshot.Refresh(ctx, s.store)
}

// SnapshotLoaded reports whether the read snapshot has been loaded at least
// once since startup.
func (s *Service) SnapshotLoaded() bool {
	return s.snapshot.Loaded()
}

// Bootstrap seeds default workspaces and tags on an empty database so the
// first sign-in lands on something usable.
func (s *Service) Bootstrap(ctx context.Context) error {
	count, err := s.store.WorkspaceCount(ctx)
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	owner := store.Profile{
		ID:           util.NewID("usr"),
		Email:        "system@slatework.local",
		PasswordHash: "!", // not a valid bcrypt hash, so nobody can sign in as system
		FullName:     "Slatework System",
		Initials:     "SS",
		Role:         string(rbac.RoleAdmin),
	}
	if err := s.store.CreateProfile(ctx, owner); err != nil {
		return err
	}

	workspaces := []store.Workspace{
		{ID: util.NewID("ws"), Name: "Engineering", Description: "Technical docs, runbooks, and architecture notes", Status: "active", CreatedBy: owner.ID},
		{ID: util.NewID("ws"), Name: "Product", Description: "Specs, research, and planning", Status: "active", CreatedBy: owner.ID},
		{ID: util.NewID("ws"), Name: "General", Description: "Company-wide knowledge", Status: "active", CreatedBy: owner.ID},
	}
	for _, ws := range workspaces {
		if err := s.store.InsertWorkspace(ctx, ws); err != nil {
			return err
		}
	}

	tags := []store.Tag{
		{ID: util.NewID("tag"), WorkspaceID: workspaces[0].ID, Name: "architecture", Color: "#6366f1"},
		{ID: util.NewID("tag"), WorkspaceID: workspaces[0].ID, Name: "runbook", Color: "#f59e0b"},
		{ID: util.NewID("tag"), WorkspaceID: workspaces[1].ID, Name: "research", Color: "#10b981"},
		{ID: util.NewID("tag"), WorkspaceID: workspaces[2].ID, Name: "onboarding", Color: "#ec4899"},
	}
	for _, tag := range tags {
		if err := s.store.InsertTag(ctx, tag); err != nil {
			return err
		}
	}
	return nil
}

// ---- sessions ----

func (s *Service) SignUp(ctx context.Context, req authpw.SignUpRequest) (Session, error) {
	profile, err := s.accounts.SignUp(ctx, req)
	if err != nil {
		if err == authpw.ErrEmailTaken {
			return Session{}, domainError(http.StatusConflict, "CONFLICT", "Email already registered", nil)
		}
		return Session{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", err.Error(), nil)
	}
	return s.issueSession(ctx, profile)
}

func (s *Service) SignIn(ctx context.Context, email, password string) (Session, error) {
	profile, err := s.accounts.SignIn(ctx, email, password)
	if err != nil {
		return Session{}, domainError(http.StatusUnauthorized, "UNAUTHENTICATED", "Invalid email or password", nil)
	}
	return s.issueSession(ctx, profile)
}

// Refresh rotates a refresh token: the presented token is revoked and a new
// session is issued.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	tokenHash := auth.HashToken(refreshToken)
	profileID, err := s.sessions.LookupRefreshSession(ctx, tokenHash)
	if err != nil {
		return Session{}, domainError(http.StatusUnauthorized, "UNAUTHENTICATED", "Refresh token invalid", nil)
	}
	profile, err := s.store.GetProfileByID(ctx, profileID)
	if err != nil {
		return Session{}, domainError(http.StatusUnauthorized, "UNAUTHENTICATED", "Refresh token invalid", nil)
	}
	if err := s.sessions.RevokeRefreshSession(ctx, tokenHash); err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, profile)
}

func (s *Service) issueSession(ctx context.Context, profile store.Profile) (Session, error) {
	now := time.Now()
	expiresAt := now.Add(s.cfg.AccessTTL)
	jti := util.NewID("jti")

	token, err := auth.IssueToken([]byte(s.cfg.TokenSecret), auth.Claims{
		Sub:  profile.ID,
		Name: profile.FullName,
		Role: profile.Role,
		JTI:  jti,
		Exp:  expiresAt.Unix(),
	})
	if err != nil {
		return Session{}, err
	}

	refresh := util.NewToken()
	if err := s.sessions.SaveRefreshSession(ctx, auth.HashToken(refresh), profile.ID, now.Add(s.cfg.RefreshTTL)); err != nil {
		return Session{}, err
	}

	return Session{
		Token:        token,
		RefreshToken: refresh,
		UserID:       profile.ID,
		UserName:     profile.FullName,
		Initials:     profile.Initials,
		Role:         profile.Role,
		JTI:          jti,
		ExpiresAt:    expiresAt,
	}, nil
}

func (s *Service) SessionFromToken(ctx context.Context, token string) (Session, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.TokenSecret), token)
	if err != nil {
		return Session{}, err
	}
	revoked, err := s.store.IsAccessTokenRevoked(ctx, claims.JTI)
	if err != nil {
		return Session{}, err
	}
	if revoked {
		return Session{}, auth.ErrInvalidToken
	}

	profile, err := s.store.GetProfileByID(ctx, claims.Sub)
	if err != nil {
		return Session{}, err
	}

	return Session{
		Token:     token,
		UserID:    profile.ID,
		UserName:  profile.FullName,
		Initials:  profile.Initials,
		Role:      profile.Role,
		JTI:       claims.JTI,
		ExpiresAt: time.Unix(claims.Exp, 0),
	}, nil
}

func (s *Service) Logout(ctx context.Context, session Session, refreshToken string) error {
	if session.JTI != "" {
		_ = s.store.RevokeAccessToken(ctx, session.JTI, session.ExpiresAt)
	}
	if refreshToken != "" {
		_ = s.sessions.RevokeRefreshSession(ctx, auth.HashToken(refreshToken))
	}
	return nil
}

func (s *Service) Can(role string, action rbac.Action) bool {
	return rbac.Can(rbac.Normalize(role), action)
}

func (s *Service) requireAction(session Session, action rbac.Action) error {
	if !s.Can(session.Role, action) {
		return domainError(http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
	}
	return nil
}

// ---- articles ----

// Articles returns the snapshot filtered by the query. The filter never
// touches the database.
func (s *Service) Articles(query string) []store.Article {
	return search.FilterArticles(s.snapshot.Articles(), query)
}

func (s *Service) CreateArticle(ctx context.Context, session Session, input CreateArticleInput) (store.Article, error) {
	if err := s.requireAction(session, rbac.ActionWrite); err != nil {
		return store.Article{}, err
	}
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return store.Article{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "title is required", nil)
	}
	if strings.TrimSpace(input.WorkspaceID) == "" {
		return store.Article{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "workspaceId is required", nil)
	}

	status := input.Status
	if status == "" {
		status = store.ArticleDraft
	}
	// Publishing directly at creation skips review, so it needs approve.
	switch status {
	case store.ArticleDraft, store.ArticleInReview:
	case store.ArticlePublished:
		if err := s.requireAction(session, rbac.ActionApprove); err != nil {
			return store.Article{}, err
		}
	default:
		return store.Article{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "invalid status "+status, nil)
	}

	item := store.Article{
		ID:             util.NewID("art"),
		WorkspaceID:    input.WorkspaceID,
		Title:          title,
		Content:        input.Content,
		AuthorID:       session.UserID,
		Status:         status,
		CurrentVersion: 1,
	}
	if err := s.store.InsertArticle(ctx, item); err != nil {
		return store.Article{}, err
	}
	if len(input.TagIDs) > 0 {
		if err := s.store.LinkArticleTags(ctx, item.ID, input.TagIDs); err != nil {
			return store.Article{}, err
		}
	}
	if err := s.RefreshSnapshot(ctx); err != nil {
		return store.Article{}, err
	}
	return s.store.GetArticle(ctx, item.ID)
}

// UpdateArticle applies a content edit, a status change, or both. A content
// edit snapshots the previous state into the version history and bumps
// current_version; a status-only change does neither.
func (s *Service) UpdateArticle(ctx context.Context, session Session, articleID string, input UpdateArticleInput) (store.Article, error) {
	current, err := s.store.GetArticle(ctx, articleID)
	if err != nil {
		return store.Article{}, err
	}

	newTitle := current.Title
	if input.Title != nil {
		newTitle = strings.TrimSpace(*input.Title)
	}
	newContent := current.Content
	if input.Content != nil {
		newContent = *input.Content
	}
	contentChanged := newTitle != current.Title || newContent != current.Content

	newStatus := current.Status
	if input.Status != nil && *input.Status != current.Status {
		if !validArticleStatus(*input.Status) {
			return store.Article{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "invalid status "+*input.Status, nil)
		}
		action, legal := ArticleTransitionAction(current.Status, *input.Status)
		if !legal {
			return store.Article{}, domainError(http.StatusUnprocessableEntity, "INVALID_STATE",
				"cannot move article from "+current.Status+" to "+*input.Status, nil)
		}
		if err := s.requireAction(session, action); err != nil {
			return store.Article{}, err
		}
		newStatus = *input.Status
	}

	if !contentChanged {
		if newStatus == current.Status {
			return current, nil
		}
		if err := s.store.UpdateArticleStatus(ctx, articleID, newStatus); err != nil {
			return store.Article{}, err
		}
		if err := s.RefreshSnapshot(ctx); err != nil {
			return store.Article{}, err
		}
		return s.store.GetArticle(ctx, articleID)
	}

	if err := s.requireAction(session, rbac.ActionWrite); err != nil {
		return store.Article{}, err
	}
	if newTitle == "" {
		return store.Article{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "title is required", nil)
	}
	if input.BaseVersion != nil && *input.BaseVersion != current.CurrentVersion {
		return store.Article{}, domainError(http.StatusConflict, "CONFLICT",
			"article was modified by someone else", map[string]any{"currentVersion": current.CurrentVersion})
	}

	ok, err := s.store.ApplyArticleEdit(ctx, store.ArticleEdit{
		ArticleID:   articleID,
		PrevTitle:   current.Title,
		PrevContent: current.Content,
		PrevAuthor:  current.AuthorID,
		PrevVersion: current.CurrentVersion,
		NewTitle:    newTitle,
		NewContent:  newContent,
		NewStatus:   newStatus,
	})
	if err != nil {
		return store.Article{}, err
	}
	if !ok {
		return store.Article{}, domainError(http.StatusConflict, "CONFLICT",
			"article was modified by someone else", nil)
	}
	if err := s.RefreshSnapshot(ctx); err != nil {
		return store.Article{}, err
	}
	return s.store.GetArticle(ctx, articleID)
}

func (s *Service) setArticleStatus(ctx context.Context, session Session, articleID, target string) (store.Article, error) {
	current, err := s.store.GetArticle(ctx, articleID)
	if err != nil {
		return store.Article{}, err
	}
	action, legal := ArticleTransitionAction(current.Status, target)
	if !legal {
		return store.Article{}, domainError(http.StatusUnprocessableEntity, "INVALID_STATE",
			"cannot move article from "+current.Status+" to "+target, nil)
	}
	if err := s.requireAction(session, action); err != nil {
		return store.Article{}, err
	}
	if err := s.store.UpdateArticleStatus(ctx, articleID, target); err != nil {
		return store.Article{}, err
	}
	if err := s.RefreshSnapshot(ctx); err != nil {
		return store.Article{}, err
	}
	return s.store.GetArticle(ctx, articleID)
}

func (s *Service) ArchiveArticle(ctx context.Context, session Session, articleID string) (store.Article, error) {
	return s.setArticleStatus(ctx, session, articleID, store.ArticleArchived)
}

// RestoreArticle moves an archived article back to draft.
func (s *Service) RestoreArticle(ctx context.Context, session Session, articleID string) (store.Article, error) {
	return s.setArticleStatus(ctx, session, articleID, store.ArticleDraft)
}

// DeleteArticle removes an article and, through cascades, its versions and
// tag links.
func (s *Service) DeleteArticle(ctx context.Context, session Session, articleID string) error {
	if err := s.requireAction(session, rbac.ActionWrite); err != nil {
		return err
	}
	if _, err := s.store.GetArticle(ctx, articleID); err != nil {
		return err
	}
	if err := s.store.DeleteArticle(ctx, articleID); err != nil {
		return err
	}
	return s.RefreshSnapshot(ctx)
}

func (s *Service) ArticleVersions(ctx context.Context, articleID string) ([]store.ArticleVersion, error) {
	if _, err := s.store.GetArticle(ctx, articleID); err != nil {
		return nil, err
	}
	return s.store.ListArticleVersions(ctx, articleID)
}

// ArticleHTML renders the article's current markdown content to sanitized HTML.
func (s *Service) ArticleHTML(ctx context.Context, articleID string) (string, error) {
	item, err := s.store.GetArticle(ctx, articleID)
	if err != nil {
		return "", err
	}
	return s.renderer.Render(item.Content)
}

// ---- discussions ----

func (s *Service) Discussions(query string) []store.Discussion {
	return search.FilterDiscussions(s.snapshot.Discussions(), query)
}

func (s *Service) CreateDiscussion(ctx context.Context, session Session, input CreateDiscussionInput) (store.Discussion, error) {
	if err := s.requireAction(session, rbac.ActionComment); err != nil {
		return store.Discussion{}, err
	}
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return store.Discussion{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "title is required", nil)
	}
	if strings.TrimSpace(input.WorkspaceID) == "" {
		return store.Discussion{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "workspaceId is required", nil)
	}

	item := store.Discussion{
		ID:          util.NewID("dis"),
		WorkspaceID: input.WorkspaceID,
		Title:       title,
		Content:     input.Content,
		AuthorID:    session.UserID,
		Status:      store.DiscussionOpen,
	}
	if err := s.store.InsertDiscussion(ctx, item); err != nil {
		return store.Discussion{}, err
	}
	if err := s.RefreshSnapshot(ctx); err != nil {
		return store.Discussion{}, err
	}
	return s.store.GetDiscussion(ctx, item.ID)
}

// AddReply appends a reply to an open discussion. Resolved and closed
// discussions do not accept replies.
func (s *Service) AddReply(ctx context.Context, session Session, discussionID, content string) (store.Discussion, error) {
	if err := s.requireAction(session, rbac.ActionComment); err != nil {
		return store.Discussion{}, err
	}
	if strings.TrimSpace(content) == "" {
		return store.Discussion{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "content is required", nil)
	}

	current, err := s.store.GetDiscussion(ctx, discussionID)
	if err != nil {
		return store.Discussion{}, err
	}
	if current.Status != store.DiscussionOpen {
		return store.Discussion{}, domainError(http.StatusUnprocessableEntity, "INVALID_STATE",
			"discussion is "+current.Status+" and does not accept replies", nil)
	}

	if err := s.store.InsertReply(ctx, store.Reply{
		ID:           util.NewID("rpl"),
		DiscussionID: discussionID,
		Content:      content,
		AuthorID:     session.UserID,
	}); err != nil {
		return store.Discussion{}, err
	}
	if err := s.RefreshSnapshot(ctx); err != nil {
		return store.Discussion{}, err
	}
	return s.store.GetDiscussion(ctx, discussionID)
}

func (s *Service) setDiscussionStatus(ctx context.Context, session Session, discussionID, target string) (store.Discussion, error) {
	current, err := s.store.GetDiscussion(ctx, discussionID)
	if err != nil {
		return store.Discussion{}, err
	}
	action, legal := DiscussionTransitionAction(current.Status, target)
	if !legal {
		return store.Discussion{}, domainError(http.StatusUnprocessableEntity, "INVALID_STATE",
			"cannot move discussion from "+current.Status+" to "+target, nil)
	}
	if err := s.requireAction(session, action); err != nil {
		return store.Discussion{}, err
	}
	if err := s.store.UpdateDiscussionStatus(ctx, discussionID, target); err != nil {
		return store.Discussion{}, err
	}
	if err := s.RefreshSnapshot(ctx); err != nil {
		return store.Discussion{}, err
	}
	return s.store.GetDiscussion(ctx, discussionID)
}

func (s *Service) ResolveDiscussion(ctx context.Context, session Session, discussionID string) (store.Discussion, error) {
	return s.setDiscussionStatus(ctx, session, discussionID, store.DiscussionResolved)
}

func (s *Service) CloseDiscussion(ctx context.Context, session Session, discussionID string) (store.Discussion, error) {
	return s.setDiscussionStatus(ctx, session, discussionID, store.DiscussionClosed)
}

func (s *Service) ReopenDiscussion(ctx context.Context, session Session, discussionID string) (store.Discussion, error) {
	return s.setDiscussionStatus(ctx, session, discussionID, store.DiscussionOpen)
}

// ---- workspaces / tags / summary ----

func (s *Service) Workspaces() []store.Workspace {
	return s.snapshot.Workspaces()
}

func (s *Service) CreateWorkspace(ctx context.Context, session Session, input CreateWorkspaceInput) (store.Workspace, error) {
	if err := s.requireAction(session, rbac.ActionWrite); err != nil {
		return store.Workspace{}, err
	}
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return store.Workspace{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "name is required", nil)
	}

	item := store.Workspace{
		ID:          util.NewID("ws"),
		Name:        name,
		Description: input.Description,
		Status:      "active",
		CreatedBy:   session.UserID,
	}
	if err := s.store.InsertWorkspace(ctx, item); err != nil {
		return store.Workspace{}, err
	}
	if err := s.RefreshSnapshot(ctx); err != nil {
		return store.Workspace{}, err
	}
	return item, nil
}

func (s *Service) Tags() []store.Tag {
	return s.snapshot.Tags()
}

func (s *Service) CreateTag(ctx context.Context, session Session, input CreateTagInput) (store.Tag, error) {
	if err := s.requireAction(session, rbac.ActionWrite); err != nil {
		return store.Tag{}, err
	}
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return store.Tag{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "name is required", nil)
	}
	if strings.TrimSpace(input.WorkspaceID) == "" {
		return store.Tag{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "workspaceId is required", nil)
	}

	color := input.Color
	if color == "" {
		color = "#64748b"
	}
	item := store.Tag{
		ID:          util.NewID("tag"),
		WorkspaceID: input.WorkspaceID,
		Name:        name,
		Color:       color,
	}
	if err := s.store.InsertTag(ctx, item); err != nil {
		return store.Tag{}, err
	}
	if err := s.RefreshSnapshot(ctx); err != nil {
		return store.Tag{}, err
	}
	return item, nil
}

func (s *Service) Summary(ctx context.Context) (store.SummaryCounts, error) {
	return s.store.Summary(ctx)
}
