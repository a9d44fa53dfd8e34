package app

import (
	"slatework/api/internal/rbac"
	"slatework/api/internal/store"
)

// articleTransitions maps each legal from→to status pair to the action the
// caller must hold. Anything absent is an illegal transition regardless of
// role.
var articleTransitions = map[[2]string]rbac.Action{
	{store.ArticleDraft, store.ArticleInReview}:     rbac.ActionWrite,
	{store.ArticleInReview, store.ArticlePublished}: rbac.ActionApprove,
	{store.ArticleInReview, store.ArticleDraft}:     rbac.ActionApprove,
	{store.ArticleDraft, store.ArticleArchived}:     rbac.ActionWrite,
	{store.ArticleInReview, store.ArticleArchived}:  rbac.ActionWrite,
	{store.ArticlePublished, store.ArticleArchived}: rbac.ActionWrite,
	{store.ArticleArchived, store.ArticleDraft}:     rbac.ActionWrite,
}

var discussionTransitions = map[[2]string]rbac.Action{
	{store.DiscussionOpen, store.DiscussionResolved}:   rbac.ActionComment,
	{store.DiscussionOpen, store.DiscussionClosed}:     rbac.ActionComment,
	{store.DiscussionResolved, store.DiscussionOpen}:   rbac.ActionComment,
	{store.DiscussionResolved, store.DiscussionClosed}: rbac.ActionComment,
	{store.DiscussionClosed, store.DiscussionOpen}:     rbac.ActionComment,
	{store.DiscussionClosed, store.DiscussionResolved}: rbac.ActionComment,
}

// ArticleTransitionAction returns the action required for an article status
// change, or false when the transition itself is illegal.
func ArticleTransitionAction(from, to string) (rbac.Action, bool) {
	action, ok := articleTransitions[[2]string{from, to}]
	return action, ok
}

// DiscussionTransitionAction returns the action required for a discussion
// status change, or false when the transition itself is illegal.
func DiscussionTransitionAction(from, to string) (rbac.Action, bool) {
	action, ok := discussionTransitions[[2]string{from, to}]
	return action, ok
}

func validArticleStatus(status string) bool {
	switch status {
	case store.ArticleDraft, store.ArticleInReview, store.ArticlePublished, store.ArticleArchived:
		return true
	}
	return false
}
