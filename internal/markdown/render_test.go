package markdown

import (
	"strings"
	"testing"
)

func TestRenderBasicMarkdown(t *testing.T) {
	r := NewRenderer()

	out, err := r.Render("# Heading\n\n- one\n- two\n")
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if !strings.Contains(out, "<h1") || !strings.Contains(out, "Heading") {
		t.Fatalf("expected heading in output: %s", out)
	}
	if !strings.Contains(out, "<li>one</li>") {
		t.Fatalf("expected list items in output: %s", out)
	}
}

func TestRenderStripsScript(t *testing.T) {
	r := NewRenderer()

	out, err := r.Render("hello <script>alert('x')</script> world")
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	// the script element is dropped; its text content survives as inert,
	// escaped plain text
	if strings.Contains(out, "<script") {
		t.Fatalf("script element survived sanitization: %s", out)
	}
	if strings.Contains(out, "alert('x')") {
		t.Fatalf("script text not escaped: %s", out)
	}
	if !strings.Contains(out, "hello") || !strings.Contains(out, "world") {
		t.Fatalf("surrounding text lost: %s", out)
	}
}

func TestRenderTable(t *testing.T) {
	r := NewRenderer()

	out, err := r.Render("| a | b |\n|---|---|\n| 1 | 2 |\n")
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if !strings.Contains(out, "<table") {
		t.Fatalf("expected table in output: %s", out)
	}
}
