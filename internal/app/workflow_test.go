package app

import (
	"testing"

	"slatework/api/internal/rbac"
	"slatework/api/internal/store"
)

func TestArticleTransitions(t *testing.T) {
	cases := []struct {
		from, to   string
		legal      bool
		wantAction rbac.Action
	}{
		{store.ArticleDraft, store.ArticleInReview, true, rbac.ActionWrite},
		{store.ArticleInReview, store.ArticlePublished, true, rbac.ActionApprove},
		{store.ArticleInReview, store.ArticleDraft, true, rbac.ActionApprove},
		{store.ArticlePublished, store.ArticleArchived, true, rbac.ActionWrite},
		{store.ArticleArchived, store.ArticleDraft, true, rbac.ActionWrite},
		{store.ArticleDraft, store.ArticlePublished, false, ""},
		{store.ArticleArchived, store.ArticlePublished, false, ""},
		{store.ArticlePublished, store.ArticleInReview, false, ""},
		{store.ArticleArchived, store.ArticleArchived, false, ""},
	}
	for _, tc := range cases {
		action, ok := ArticleTransitionAction(tc.from, tc.to)
		if ok != tc.legal {
			t.Errorf("%s -> %s: legal=%v, want %v", tc.from, tc.to, ok, tc.legal)
			continue
		}
		if ok && action != tc.wantAction {
			t.Errorf("%s -> %s: action=%s, want %s", tc.from, tc.to, action, tc.wantAction)
		}
	}
}

func TestApproveTransitionsRequireEditorOrAdmin(t *testing.T) {
	action, ok := ArticleTransitionAction(store.ArticleInReview, store.ArticlePublished)
	if !ok {
		t.Fatal("in_review -> published must be a legal transition")
	}
	if rbac.Can(rbac.RoleMember, action) {
		t.Error("member must not be able to publish")
	}
	if !rbac.Can(rbac.RoleEditor, action) || !rbac.Can(rbac.RoleAdmin, action) {
		t.Error("editor and admin must be able to publish")
	}
}

func TestDiscussionTransitions(t *testing.T) {
	legal := [][2]string{
		{store.DiscussionOpen, store.DiscussionResolved},
		{store.DiscussionOpen, store.DiscussionClosed},
		{store.DiscussionResolved, store.DiscussionOpen},
		{store.DiscussionClosed, store.DiscussionOpen},
	}
	for _, pair := range legal {
		if _, ok := DiscussionTransitionAction(pair[0], pair[1]); !ok {
			t.Errorf("%s -> %s should be legal", pair[0], pair[1])
		}
	}
	if _, ok := DiscussionTransitionAction(store.DiscussionOpen, store.DiscussionOpen); ok {
		t.Error("self-transition should be illegal")
	}
	if _, ok := DiscussionTransitionAction(store.DiscussionOpen, "bogus"); ok {
		t.Error("unknown status should be illegal")
	}
}
