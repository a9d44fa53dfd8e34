package search

import (
	"strings"
	"testing"

	"slatework/api/internal/store"
)

func sampleArticles() []store.Article {
	return []store.Article{
		{
			ID:      "art_1",
			Title:   "Onboarding Guide",
			Content: "Welcome to the team. Start with the setup checklist.",
			Author:  store.Profile{FullName: "Sarah Chen"},
			Tags:    []store.Tag{{Name: "process"}},
		},
		{
			ID:      "art_2",
			Title:   "Release Checklist",
			Content: "Cut the branch, tag, deploy.",
			Author:  store.Profile{FullName: "Marcus Webb"},
			Tags:    []store.Tag{{Name: "engineering"}},
		},
		{
			ID:      "art_3",
			Title:   "Design Principles",
			Content: "Keep interfaces small.",
			Author:  store.Profile{FullName: "Priya Patel"},
		},
	}
}

func TestFilterArticlesBlankQueryReturnsAll(t *testing.T) {
	items := sampleArticles()
	for _, q := range []string{"", "   "} {
		got := FilterArticles(items, q)
		if len(got) != len(items) {
			t.Fatalf("query %q: expected %d items, got %d", q, len(items), len(got))
		}
	}
}

func TestFilterArticlesMatchesAcrossFields(t *testing.T) {
	items := sampleArticles()
	cases := []struct {
		query string
		want  []string
	}{
		{"checklist", []string{"art_1", "art_2"}}, // title and content
		{"SARAH", []string{"art_1"}},              // author, case-insensitive
		{"engineering", []string{"art_2"}},        // tag name
		{"nope-nothing", nil},
	}
	for _, tc := range cases {
		got := FilterArticles(items, tc.query)
		if len(got) != len(tc.want) {
			t.Fatalf("query %q: expected %d items, got %d", tc.query, len(tc.want), len(got))
		}
		for i, item := range got {
			if item.ID != tc.want[i] {
				t.Fatalf("query %q: expected %s at %d, got %s", tc.query, tc.want[i], i, item.ID)
			}
		}
	}
}

func TestFilterDiscussionsIgnoresReplies(t *testing.T) {
	items := []store.Discussion{
		{
			ID:      "dis_1",
			Title:   "API naming",
			Content: "Should we rename the endpoint?",
			Author:  store.Profile{FullName: "Sarah Chen"},
			Replies: []store.Reply{{Content: "zanzibar"}},
		},
	}
	if got := FilterDiscussions(items, "naming"); len(got) != 1 {
		t.Fatalf("expected title match, got %d items", len(got))
	}
	if got := FilterDiscussions(items, "zanzibar"); len(got) != 0 {
		t.Fatalf("reply content must not match, got %d items", len(got))
	}
}

func TestHighlightRoundTrip(t *testing.T) {
	cases := []struct{ text, query string }{
		{"The quick brown fox", "quick"},
		{"aaa", "a"},
		{"No match here", "xyz"},
		{"Case INSENSITIVE case", "case"},
		{"", "query"},
		{"text", ""},
		// lowercasing changes byte length for these runes
		{"Ⱥb", "b"},
		{"İstanbul Bridge", "bridge"},
		{"ȺȺȺ end", "end"},
	}
	for _, tc := range cases {
		segments := Highlight(tc.text, tc.query)
		var rebuilt strings.Builder
		for _, seg := range segments {
			rebuilt.WriteString(seg.Text)
		}
		if rebuilt.String() != tc.text {
			t.Fatalf("Highlight(%q, %q) does not round-trip: %q", tc.text, tc.query, rebuilt.String())
		}
	}
}

func TestHighlightMarksMatches(t *testing.T) {
	segments := Highlight("Case INSENSITIVE case", "case")
	var matches []string
	for _, seg := range segments {
		if seg.Match {
			matches = append(matches, seg.Text)
		}
	}
	if len(matches) != 2 || matches[0] != "Case" || matches[1] != "case" {
		t.Fatalf("unexpected matches: %v", matches)
	}
}

func TestHighlightOffsetsSurviveMultibyteLowercasing(t *testing.T) {
	segments := Highlight("İstanbul Bridge", "bridge")
	var matches []string
	for _, seg := range segments {
		if seg.Match {
			matches = append(matches, seg.Text)
		}
	}
	if len(matches) != 1 || matches[0] != "Bridge" {
		t.Fatalf("expected exactly [Bridge], got %v", matches)
	}

	segments = Highlight("Ⱥb", "b")
	if len(segments) != 2 || segments[1].Text != "b" || !segments[1].Match {
		t.Fatalf("unexpected segments: %v", segments)
	}
}
