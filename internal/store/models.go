package store

import "time"

// Article statuses.
const (
	ArticleDraft     = "draft"
	ArticleInReview  = "in_review"
	ArticlePublished = "published"
	ArticleArchived  = "archived"
)

// Discussion statuses.
const (
	DiscussionOpen     = "open"
	DiscussionResolved = "resolved"
	DiscussionClosed   = "closed"
)

type Profile struct {
	ID           string
	Email        string
	PasswordHash string
	FullName     string
	Initials     string
	Role         string
	AvatarURL    string
	CreatedAt    time.Time
}

type Workspace struct {
	ID          string
	Name        string
	Description string
	Status      string
	CreatedBy   string
	CreatedAt   time.Time
}

type Tag struct {
	ID          string
	WorkspaceID string
	Name        string
	Color       string
}

type Article struct {
	ID             string
	WorkspaceID    string
	Title          string
	Content        string
	AuthorID       string
	Author         Profile
	Status         string
	CurrentVersion int
	Tags           []Tag
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// ArticleVersion is an immutable snapshot of an article's title/content taken
// just before the edit that superseded it. VersionNumber equals the article's
// current_version at snapshot time.
type ArticleVersion struct {
	ID            string
	ArticleID     string
	Title         string
	Content       string
	AuthorID      string
	Author        Profile
	VersionNumber int
	CreatedAt     time.Time
}

type Discussion struct {
	ID          string
	WorkspaceID string
	Title       string
	Content     string
	AuthorID    string
	Author      Profile
	Status      string
	ReplyCount  int // always len(Replies), recomputed on load
	Replies     []Reply
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type Reply struct {
	ID           string
	DiscussionID string
	Content      string
	AuthorID     string
	Author       Profile
	CreatedAt    time.Time
}

// ArticleEdit carries the full snapshot-then-update sequence for a versioned
// article edit. Prev* fields are the persisted values read before the edit;
// the update is applied only if current_version still equals PrevVersion.
type ArticleEdit struct {
	ArticleID   string
	PrevTitle   string
	PrevContent string
	PrevAuthor  string
	PrevVersion int
	NewTitle    string
	NewContent  string
	NewStatus   string
}

// SummaryCounts feeds the dashboard stat cards.
type SummaryCounts struct {
	Articles        int
	Published       int
	Drafts          int
	OpenDiscussions int
}
