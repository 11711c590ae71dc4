package hook

import (
	"strings"
	"testing"

	"github.com/feedhook/feedhook/app/database"
)

func TestSplitRunes(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		maxLen    int
		maxChunks int
		expected  []string
	}{
		{"empty", "", 10, 3, nil},
		{"fits in one", "hello", 10, 3, []string{"hello"}},
		{"splits evenly", "aabbcc", 2, 5, []string{"aa", "bb", "cc"}},
		{"chunk cap drops remainder", "aabbccdd", 2, 2, []string{"aa", "bb"}},
		{"rune aware", "日本語あり", 2, 5, []string{"日本", "語あ", "り"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := splitRunes(tt.input, tt.maxLen, tt.maxChunks)
			if len(got) != len(tt.expected) {
				t.Fatalf("Expected %v, got %v", tt.expected, got)
			}
			for i := range got {
				if got[i] != tt.expected[i] {
					t.Errorf("Expected %v, got %v", tt.expected, got)
					break
				}
			}
		})
	}
}

func TestBuildMessagesMerged(t *testing.T) {
	f := &database.Feed{Title: "Example Feed"}
	articles := []*database.Article{
		{Title: "First", Link: "https://example.com/1", Content: "<p>one</p>"},
		{Title: "Second", Link: "https://example.com/2", Content: "<p>two</p>"},
	}

	msgs := buildMessages(f, articles, &NotificationConfig{IsMergePush: true, MaxLength: 4096})
	if len(msgs) != 1 {
		t.Fatalf("Expected one merged message, got %d", len(msgs))
	}
	if msgs[0].Title != "Example Feed" {
		t.Errorf("Expected feed title, got %q", msgs[0].Title)
	}
	if !strings.Contains(msgs[0].Body, "First") || !strings.Contains(msgs[0].Body, "Second") {
		t.Errorf("Expected both articles in merged body, got %q", msgs[0].Body)
	}
}

func TestBuildMessagesPerArticleChunking(t *testing.T) {
	f := &database.Feed{Title: "Example Feed"}
	articles := []*database.Article{
		{Title: "Long", Content: strings.Repeat("x", 500)},
	}

	// maxLength 100 over ~500 chars would be five chunks; the per-article
	// cap keeps three.
	msgs := buildMessages(f, articles, &NotificationConfig{MaxLength: 100})
	if len(msgs) != maxArticleChunks {
		t.Fatalf("Expected %d chunks, got %d", maxArticleChunks, len(msgs))
	}
	for _, m := range msgs {
		if m.Title != "Long" {
			t.Errorf("Expected article title on every chunk, got %q", m.Title)
		}
		if len([]rune(m.Body)) > 100 {
			t.Errorf("Chunk exceeds max length: %d", len([]rune(m.Body)))
		}
	}
}

func TestBuildMessagesTitleCap(t *testing.T) {
	f := &database.Feed{Title: "Example"}
	articles := []*database.Article{
		{Title: strings.Repeat("t", 300), Content: "short"},
	}

	msgs := buildMessages(f, articles, &NotificationConfig{MaxLength: 4096})
	if len(msgs) != 1 {
		t.Fatalf("Expected one message, got %d", len(msgs))
	}
	if got := len([]rune(msgs[0].Title)); got != titleMaxRunes {
		t.Errorf("Expected title capped at %d runes, got %d", titleMaxRunes, got)
	}
}

func TestRenderContentModes(t *testing.T) {
	a := &database.Article{
		Content:        "<p>Full <b>content</b></p>",
		ContentSnippet: "snippet",
		Summary:        "summary",
		AISummary:      "ai summary",
	}

	if got := renderContent(a, &NotificationConfig{}); got != "Full content" {
		t.Errorf("Expected plain text content, got %q", got)
	}
	if got := renderContent(a, &NotificationConfig{IsSnippet: true}); got != "snippet" {
		t.Errorf("Expected snippet, got %q", got)
	}
	if got := renderContent(a, &NotificationConfig{UseAISummary: true}); got != "ai summary" {
		t.Errorf("Expected AI summary, got %q", got)
	}
	got := renderContent(a, &NotificationConfig{IsMarkdown: true})
	if !strings.Contains(got, "**content**") {
		t.Errorf("Expected markdown conversion, got %q", got)
	}
}
