// Package search implements the substring filter layer used by list
// endpoints. Matching is case-insensitive and purely in-memory; a blank
// query returns the input unchanged.
package search

import (
	"strings"

	"slatework/api/internal/store"
)

// MatchArticle reports whether an article matches the query. Title, content,
// author full name, and tag names are all searched.
func MatchArticle(item store.Article, query string) bool {
	q := normalize(query)
	if q == "" {
		return true
	}
	if contains(item.Title, q) || contains(item.Content, q) || contains(item.Author.FullName, q) {
		return true
	}
	for _, tag := range item.Tags {
		if contains(tag.Name, q) {
			return true
		}
	}
	return false
}

// MatchDiscussion reports whether a discussion matches the query. Title,
// content, and author full name are searched; replies are not.
func MatchDiscussion(item store.Discussion, query string) bool {
	q := normalize(query)
	if q == "" {
		return true
	}
	return contains(item.Title, q) || contains(item.Content, q) || contains(item.Author.FullName, q)
}

// FilterArticles returns the articles matching query, preserving input order.
func FilterArticles(items []store.Article, query string) []store.Article {
	if normalize(query) == "" {
		return items
	}
	out := make([]store.Article, 0, len(items))
	for _, item := range items {
		if MatchArticle(item, query) {
			out = append(out, item)
		}
	}
	return out
}

// FilterDiscussions returns the discussions matching query, preserving input order.
func FilterDiscussions(items []store.Discussion, query string) []store.Discussion {
	if normalize(query) == "" {
		return items
	}
	out := make([]store.Discussion, 0, len(items))
	for _, item := range items {
		if MatchDiscussion(item, query) {
			out = append(out, item)
		}
	}
	return out
}

func normalize(query string) string {
	return strings.ToLower(strings.TrimSpace(query))
}

func contains(haystack, loweredNeedle string) bool {
	return strings.Contains(strings.ToLower(haystack), loweredNeedle)
}
