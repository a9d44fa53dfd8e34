package app

import (
	"context"
	"sync"

	"slatework/api/internal/store"
)

// Snapshot is an in-memory read model of the collections served by list
// endpoints. It is replaced wholesale by Refresh after every successful
// mutation, so readers always see a consistent set; they never observe a
// half-applied change.
type Snapshot struct {
	mu          sync.RWMutex
	articles    []store.Article
	discussions []store.Discussion
	workspaces  []store.Workspace
	tags        []store.Tag
	loaded      bool
}

type snapshotSource interface {
	ListArticles(ctx context.Context) ([]store.Article, error)
	ListDiscussions(ctx context.Context) ([]store.Discussion, error)
	ListWorkspaces(ctx context.Context) ([]store.Workspace, error)
	ListTags(ctx context.Context) ([]store.Tag, error)
}

func NewSnapshot() *Snapshot {
	return &Snapshot{}
}

// Refresh reloads every collection from the source. All four loads must
// succeed before the snapshot is swapped; a failed reload leaves the
// previous snapshot in place.
func (s *Snapshot) Refresh(ctx context.Context, source snapshotSource) error {
	articles, err := source.ListArticles(ctx)
	if err != nil {
		return err
	}
	discussions, err := source.ListDiscussions(ctx)
	if err != nil {
		return err
	}
	workspaces, err := source.ListWorkspaces(ctx)
	if err != nil {
		return err
	}
	tags, err := source.ListTags(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.articles = articles
	s.discussions = discussions
	s.workspaces = workspaces
	s.tags = tags
	s.loaded = true
	s.mu.Unlock()
	return nil
}

// Loaded reports whether at least one Refresh has completed.
func (s *Snapshot) Loaded() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loaded
}

func (s *Snapshot) Articles() []store.Article {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]store.Article, len(s.articles))
	copy(out, s.articles)
	return out
}

func (s *Snapshot) Discussions() []store.Discussion {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]store.Discussion, len(s.discussions))
	copy(out, s.discussions)
	return out
}

func (s *Snapshot) Workspaces() []store.Workspace {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]store.Workspace, len(s.workspaces))
	copy(out, s.workspaces)
	return out
}

func (s *Snapshot) Tags() []store.Tag {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]store.Tag, len(s.tags))
	copy(out, s.tags)
	return out
}
