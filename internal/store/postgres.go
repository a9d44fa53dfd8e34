package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"slatework/api/internal/util"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

// Ping verifies the database connection is alive
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// ---- profiles ----

const profileColumns = `id, email, password_hash, full_name, initials, role, COALESCE(avatar_url, ''), created_at`

func scanProfile(row interface{ Scan(...any) error }, p *Profile) error {
	return row.Scan(&p.ID, &p.Email, &p.PasswordHash, &p.FullName, &p.Initials, &p.Role, &p.AvatarURL, &p.CreatedAt)
}

func (s *PostgresStore) CreateProfile(ctx context.Context, profile Profile) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO profiles (id, email, password_hash, full_name, initials, role, avatar_url)
		VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''))
	`, profile.ID, profile.Email, profile.PasswordHash, profile.FullName, profile.Initials, profile.Role, profile.AvatarURL)
	if err != nil {
		return fmt.Errorf("create profile: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetProfileByEmail(ctx context.Context, email string) (Profile, error) {
	var profile Profile
	err := scanProfile(s.db.QueryRowContext(ctx, `
		SELECT `+profileColumns+` FROM profiles WHERE email=$1
	`, email), &profile)
	if err != nil {
		return Profile{}, err
	}
	return profile, nil
}

func (s *PostgresStore) GetProfileByID(ctx context.Context, profileID string) (Profile, error) {
	var profile Profile
	err := scanProfile(s.db.QueryRowContext(ctx, `
		SELECT `+profileColumns+` FROM profiles WHERE id=$1
	`, profileID), &profile)
	if err != nil {
		return Profile{}, err
	}
	return profile, nil
}

// ---- refresh sessions (Postgres fallback when Redis is not configured) ----

func (s *PostgresStore) SaveRefreshSession(ctx context.Context, tokenHash, profileID string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO refresh_sessions (token_hash, profile_id, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (token_hash) DO UPDATE SET profile_id=EXCLUDED.profile_id, expires_at=EXCLUDED.expires_at, revoked_at=NULL
	`, tokenHash, profileID, expiresAt)
	if err != nil {
		return fmt.Errorf("save refresh session: %w", err)
	}
	return nil
}

// LookupRefreshSession resolves a refresh token hash to the profile ID it was
// issued for. Revoked and expired sessions do not resolve.
func (s *PostgresStore) LookupRefreshSession(ctx context.Context, tokenHash string) (string, error) {
	var profileID string
	err := s.db.QueryRowContext(ctx, `
		SELECT profile_id FROM refresh_sessions
		WHERE token_hash = $1
			AND revoked_at IS NULL
			AND expires_at > NOW()
	`, tokenHash).Scan(&profileID)
	if err != nil {
		return "", err
	}
	return profileID, nil
}

func (s *PostgresStore) RevokeRefreshSession(ctx context.Context, tokenHash string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE refresh_sessions SET revoked_at=NOW() WHERE token_hash=$1`, tokenHash)
	if err != nil {
		return fmt.Errorf("revoke refresh session: %w", err)
	}
	return nil
}

func (s *PostgresStore) RevokeAccessToken(ctx context.Context, jti string, exp time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO revoked_access_tokens (jti, expires_at)
		VALUES ($1, $2)
		ON CONFLICT (jti) DO NOTHING
	`, jti, exp)
	if err != nil {
		return fmt.Errorf("revoke access token: %w", err)
	}
	return nil
}

func (s *PostgresStore) IsAccessTokenRevoked(ctx context.Context, jti string) (bool, error) {
	var revoked bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM revoked_access_tokens WHERE jti=$1)`, jti).Scan(&revoked)
	if err != nil {
		return false, fmt.Errorf("check revoked token: %w", err)
	}
	return revoked, nil
}

// ---- articles ----

const articleSelect = `
	SELECT a.id, a.workspace_id, a.title, a.content, a.author_id, a.status, a.current_version, a.created_at, a.updated_at,
		p.id, p.email, p.password_hash, p.full_name, p.initials, p.role, COALESCE(p.avatar_url, ''), p.created_at
	FROM articles a
	JOIN profiles p ON p.id = a.author_id
`

func scanArticle(row interface{ Scan(...any) error }) (Article, error) {
	var item Article
	err := row.Scan(
		&item.ID,
		&item.WorkspaceID,
		&item.Title,
		&item.Content,
		&item.AuthorID,
		&item.Status,
		&item.CurrentVersion,
		&item.CreatedAt,
		&item.UpdatedAt,
		&item.Author.ID,
		&item.Author.Email,
		&item.Author.PasswordHash,
		&item.Author.FullName,
		&item.Author.Initials,
		&item.Author.Role,
		&item.Author.AvatarURL,
		&item.Author.CreatedAt,
	)
	return item, err
}

func (s *PostgresStore) ListArticles(ctx context.Context) ([]Article, error) {
	rows, err := s.db.QueryContext(ctx, articleSelect+` ORDER BY a.updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list articles: %w", err)
	}
	defer rows.Close()

	items := make([]Article, 0)
	for rows.Next() {
		item, err := scanArticle(rows)
		if err != nil {
			return nil, fmt.Errorf("scan article: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate articles: %w", err)
	}
	if err := s.attachTags(ctx, items); err != nil {
		return nil, err
	}
	return items, nil
}

func (s *PostgresStore) GetArticle(ctx context.Context, articleID string) (Article, error) {
	item, err := scanArticle(s.db.QueryRowContext(ctx, articleSelect+` WHERE a.id=$1`, articleID))
	if err != nil {
		return Article{}, err
	}
	single := []Article{item}
	if err := s.attachTags(ctx, single); err != nil {
		return Article{}, err
	}
	return single[0], nil
}

func (s *PostgresStore) attachTags(ctx context.Context, articles []Article) error {
	if len(articles) == 0 {
		return nil
	}
	index := make(map[string]int, len(articles))
	for i := range articles {
		articles[i].Tags = make([]Tag, 0)
		index[articles[i].ID] = i
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT at.article_id, t.id, t.workspace_id, t.name, t.color
		FROM article_tags at
		JOIN tags t ON t.id = at.tag_id
		ORDER BY t.name ASC
	`)
	if err != nil {
		return fmt.Errorf("list article tags: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var articleID string
		var tag Tag
		if err := rows.Scan(&articleID, &tag.ID, &tag.WorkspaceID, &tag.Name, &tag.Color); err != nil {
			return fmt.Errorf("scan article tag: %w", err)
		}
		if i, ok := index[articleID]; ok {
			articles[i].Tags = append(articles[i].Tags, tag)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate article tags: %w", err)
	}
	return nil
}

func (s *PostgresStore) InsertArticle(ctx context.Context, item Article) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO articles (id, workspace_id, title, content, author_id, status, current_version)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, item.ID, item.WorkspaceID, item.Title, item.Content, item.AuthorID, item.Status, item.CurrentVersion)
	if err != nil {
		return fmt.Errorf("insert article: %w", err)
	}
	return nil
}

func (s *PostgresStore) LinkArticleTags(ctx context.Context, articleID string, tagIDs []string) error {
	for _, tagID := range tagIDs {
		if _, err := s.db.ExecContext(ctx, `
			INSERT INTO article_tags (article_id, tag_id)
			VALUES ($1, $2)
			ON CONFLICT (article_id, tag_id) DO NOTHING
		`, articleID, tagID); err != nil {
			return fmt.Errorf("link article tag: %w", err)
		}
	}
	return nil
}

// UpdateArticleStatus applies a status-only update: no version row is written
// and current_version is untouched. updated_at is always refreshed.
func (s *PostgresStore) UpdateArticleStatus(ctx context.Context, articleID, status string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE articles SET status=$2, updated_at=NOW() WHERE id=$1
	`, articleID, status)
	if err != nil {
		return fmt.Errorf("update article status: %w", err)
	}
	return nil
}

// ApplyArticleEdit runs the snapshot-then-update sequence as one transaction:
// it inserts a version row holding the pre-edit state, then bumps the article
// with a compare-and-swap on current_version. Returns false without writing
// anything when the row changed since it was read.
func (s *PostgresStore) ApplyArticleEdit(ctx context.Context, edit ArticleEdit) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin article edit: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	result, err := tx.ExecContext(ctx, `
		UPDATE articles
		SET title=$2, content=$3, status=$4, current_version=current_version+1, updated_at=NOW()
		WHERE id=$1 AND current_version=$5
	`, edit.ArticleID, edit.NewTitle, edit.NewContent, edit.NewStatus, edit.PrevVersion)
	if err != nil {
		return false, fmt.Errorf("update article: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("update article rows: %w", err)
	}
	if affected == 0 {
		return false, nil
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO article_versions (id, article_id, title, content, author_id, version_number)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, util.NewID("ver"), edit.ArticleID, edit.PrevTitle, edit.PrevContent, edit.PrevAuthor, edit.PrevVersion); err != nil {
		return false, fmt.Errorf("insert article version: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit article edit: %w", err)
	}
	return true, nil
}

func (s *PostgresStore) DeleteArticle(ctx context.Context, articleID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM articles WHERE id=$1`, articleID)
	if err != nil {
		return fmt.Errorf("delete article: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListArticleVersions(ctx context.Context, articleID string) ([]ArticleVersion, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT v.id, v.article_id, v.title, v.content, v.author_id, v.version_number, v.created_at,
			p.id, p.email, p.password_hash, p.full_name, p.initials, p.role, COALESCE(p.avatar_url, ''), p.created_at
		FROM article_versions v
		JOIN profiles p ON p.id = v.author_id
		WHERE v.article_id=$1
		ORDER BY v.version_number DESC
	`, articleID)
	if err != nil {
		return nil, fmt.Errorf("list article versions: %w", err)
	}
	defer rows.Close()

	items := make([]ArticleVersion, 0)
	for rows.Next() {
		var item ArticleVersion
		if err := rows.Scan(
			&item.ID,
			&item.ArticleID,
			&item.Title,
			&item.Content,
			&item.AuthorID,
			&item.VersionNumber,
			&item.CreatedAt,
			&item.Author.ID,
			&item.Author.Email,
			&item.Author.PasswordHash,
			&item.Author.FullName,
			&item.Author.Initials,
			&item.Author.Role,
			&item.Author.AvatarURL,
			&item.Author.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan article version: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate article versions: %w", err)
	}
	return items, nil
}

// ---- discussions ----

const discussionSelect = `
	SELECT d.id, d.workspace_id, d.title, d.content, d.author_id, d.status, d.created_at, d.updated_at,
		p.id, p.email, p.password_hash, p.full_name, p.initials, p.role, COALESCE(p.avatar_url, ''), p.created_at
	FROM discussions d
	JOIN profiles p ON p.id = d.author_id
`

func scanDiscussion(row interface{ Scan(...any) error }) (Discussion, error) {
	var item Discussion
	err := row.Scan(
		&item.ID,
		&item.WorkspaceID,
		&item.Title,
		&item.Content,
		&item.AuthorID,
		&item.Status,
		&item.CreatedAt,
		&item.UpdatedAt,
		&item.Author.ID,
		&item.Author.Email,
		&item.Author.PasswordHash,
		&item.Author.FullName,
		&item.Author.Initials,
		&item.Author.Role,
		&item.Author.AvatarURL,
		&item.Author.CreatedAt,
	)
	return item, err
}

func (s *PostgresStore) ListDiscussions(ctx context.Context) ([]Discussion, error) {
	rows, err := s.db.QueryContext(ctx, discussionSelect+` ORDER BY d.updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list discussions: %w", err)
	}
	defer rows.Close()

	items := make([]Discussion, 0)
	for rows.Next() {
		item, err := scanDiscussion(rows)
		if err != nil {
			return nil, fmt.Errorf("scan discussion: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate discussions: %w", err)
	}
	if err := s.attachReplies(ctx, items); err != nil {
		return nil, err
	}
	return items, nil
}

func (s *PostgresStore) GetDiscussion(ctx context.Context, discussionID string) (Discussion, error) {
	item, err := scanDiscussion(s.db.QueryRowContext(ctx, discussionSelect+` WHERE d.id=$1`, discussionID))
	if err != nil {
		return Discussion{}, err
	}
	single := []Discussion{item}
	if err := s.attachReplies(ctx, single); err != nil {
		return Discussion{}, err
	}
	return single[0], nil
}

func (s *PostgresStore) attachReplies(ctx context.Context, discussions []Discussion) error {
	if len(discussions) == 0 {
		return nil
	}
	index := make(map[string]int, len(discussions))
	for i := range discussions {
		discussions[i].Replies = make([]Reply, 0)
		index[discussions[i].ID] = i
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT r.id, r.discussion_id, r.content, r.author_id, r.created_at,
			p.id, p.email, p.password_hash, p.full_name, p.initials, p.role, COALESCE(p.avatar_url, ''), p.created_at
		FROM replies r
		JOIN profiles p ON p.id = r.author_id
		ORDER BY r.created_at ASC
	`)
	if err != nil {
		return fmt.Errorf("list replies: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var reply Reply
		if err := rows.Scan(
			&reply.ID,
			&reply.DiscussionID,
			&reply.Content,
			&reply.AuthorID,
			&reply.CreatedAt,
			&reply.Author.ID,
			&reply.Author.Email,
			&reply.Author.PasswordHash,
			&reply.Author.FullName,
			&reply.Author.Initials,
			&reply.Author.Role,
			&reply.Author.AvatarURL,
			&reply.Author.CreatedAt,
		); err != nil {
			return fmt.Errorf("scan reply: %w", err)
		}
		if i, ok := index[reply.DiscussionID]; ok {
			discussions[i].Replies = append(discussions[i].Replies, reply)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate replies: %w", err)
	}

	// replyCount is derived, never stored, so it cannot drift
	for i := range discussions {
		discussions[i].ReplyCount = len(discussions[i].Replies)
	}
	return nil
}

func (s *PostgresStore) InsertDiscussion(ctx context.Context, item Discussion) error {
	status := item.Status
	if status == "" {
		status = DiscussionOpen
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO discussions (id, workspace_id, title, content, author_id, status)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, item.ID, item.WorkspaceID, item.Title, item.Content, item.AuthorID, status)
	if err != nil {
		return fmt.Errorf("insert discussion: %w", err)
	}
	return nil
}

// InsertReply appends a reply and refreshes the parent discussion's
// updated_at in the same transaction.
func (s *PostgresStore) InsertReply(ctx context.Context, reply Reply) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin insert reply: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO replies (id, discussion_id, content, author_id)
		VALUES ($1, $2, $3, $4)
	`, reply.ID, reply.DiscussionID, reply.Content, reply.AuthorID); err != nil {
		return fmt.Errorf("insert reply: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE discussions SET updated_at=NOW() WHERE id=$1
	`, reply.DiscussionID); err != nil {
		return fmt.Errorf("touch discussion: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit insert reply: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateDiscussionStatus(ctx context.Context, discussionID, status string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE discussions SET status=$2, updated_at=NOW() WHERE id=$1
	`, discussionID, status)
	if err != nil {
		return fmt.Errorf("update discussion status: %w", err)
	}
	return nil
}

// ---- workspaces / tags ----

func (s *PostgresStore) ListWorkspaces(ctx context.Context) ([]Workspace, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, COALESCE(description, ''), status, created_by, created_at
		FROM workspaces
		WHERE status='active'
		ORDER BY name ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list workspaces: %w", err)
	}
	defer rows.Close()

	items := make([]Workspace, 0)
	for rows.Next() {
		var item Workspace
		if err := rows.Scan(&item.ID, &item.Name, &item.Description, &item.Status, &item.CreatedBy, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan workspace: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate workspaces: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) InsertWorkspace(ctx context.Context, item Workspace) error {
	status := item.Status
	if status == "" {
		status = "active"
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO workspaces (id, name, description, status, created_by)
		VALUES ($1, $2, $3, $4, $5)
	`, item.ID, item.Name, item.Description, status, item.CreatedBy)
	if err != nil {
		return fmt.Errorf("insert workspace: %w", err)
	}
	return nil
}

func (s *PostgresStore) WorkspaceCount(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM workspaces`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count workspaces: %w", err)
	}
	return count, nil
}

func (s *PostgresStore) ListTags(ctx context.Context) ([]Tag, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, workspace_id, name, color
		FROM tags
		ORDER BY name ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list tags: %w", err)
	}
	defer rows.Close()

	items := make([]Tag, 0)
	for rows.Next() {
		var item Tag
		if err := rows.Scan(&item.ID, &item.WorkspaceID, &item.Name, &item.Color); err != nil {
			return nil, fmt.Errorf("scan tag: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tags: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) InsertTag(ctx context.Context, item Tag) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tags (id, workspace_id, name, color)
		VALUES ($1, $2, $3, $4)
	`, item.ID, item.WorkspaceID, item.Name, item.Color)
	if err != nil {
		return fmt.Errorf("insert tag: %w", err)
	}
	return nil
}

// ---- summary ----

func (s *PostgresStore) Summary(ctx context.Context) (SummaryCounts, error) {
	var counts SummaryCounts
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM articles`).Scan(&counts.Articles); err != nil {
		return SummaryCounts{}, fmt.Errorf("count articles: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM articles WHERE status='published'`).Scan(&counts.Published); err != nil {
		return SummaryCounts{}, fmt.Errorf("count published: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM articles WHERE status='draft'`).Scan(&counts.Drafts); err != nil {
		return SummaryCounts{}, fmt.Errorf("count drafts: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM discussions WHERE status='open'`).Scan(&counts.OpenDiscussions); err != nil {
		return SummaryCounts{}, fmt.Errorf("count open discussions: %w", err)
	}
	return counts, nil
}
