package hook

import (
	"log/slog"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"

	"github.com/feedhook/feedhook/app/database"
	"github.com/feedhook/feedhook/app/feed"
)

const (
	titleMaxRunes    = 256
	maxMergedChunks  = 5
	maxArticleChunks = 3
)

// message is one push payload ready for delivery.
type message struct {
	Title string
	Body  string
}

var mdConverter = md.NewConverter("", true, nil)

// renderContent turns an article's HTML into the configured body text.
func renderContent(a *database.Article, cfg *NotificationConfig) string {
	content := a.Content
	if cfg.IsSnippet {
		return a.ContentSnippet
	}
	if cfg.OnlySummary {
		content = a.Summary
	}
	if cfg.UseAISummary && a.AISummary != "" {
		if cfg.AppendAISummary {
			content = a.AISummary + "\n\n" + content
		} else {
			content = a.AISummary
		}
	}
	if cfg.IsMarkdown {
		converted, err := mdConverter.ConvertString(content)
		if err != nil {
			slog.Warn("Markdown conversion failed, falling back to plain text", "error", err)
			return feed.PlainText(content)
		}
		return converted
	}
	return feed.PlainText(content)
}

// formatArticle renders one article as a body block: title, link, content.
func formatArticle(a *database.Article, cfg *NotificationConfig) string {
	var b strings.Builder
	if cfg.IsMarkdown {
		b.WriteString("## ")
	}
	b.WriteString(a.Title)
	b.WriteString("\n")
	if a.Link != "" {
		b.WriteString(a.Link)
		b.WriteString("\n")
	}
	b.WriteString(renderContent(a, cfg))
	return b.String()
}

// buildMessages shapes the matched articles into push payloads. Merged mode
// joins all articles into one body sliced into at most five chunks; per
// article mode yields up to three chunks each. Titles are capped at 256 runes.
func buildMessages(f *database.Feed, articles []*database.Article, cfg *NotificationConfig) []message {
	var messages []message

	if cfg.IsMergePush {
		blocks := make([]string, 0, len(articles))
		for _, a := range articles {
			blocks = append(blocks, formatArticle(a, cfg))
		}
		body := strings.Join(blocks, "\n\n---\n\n")
		title := truncateRunes(f.Title, titleMaxRunes)
		for _, chunk := range splitRunes(body, cfg.MaxLength, maxMergedChunks) {
			messages = append(messages, message{Title: title, Body: chunk})
		}
		return messages
	}

	for _, a := range articles {
		title := truncateRunes(a.Title, titleMaxRunes)
		for _, chunk := range splitRunes(formatArticle(a, cfg), cfg.MaxLength, maxArticleChunks) {
			messages = append(messages, message{Title: title, Body: chunk})
		}
	}
	return messages
}

func truncateRunes(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}

// splitRunes slices s into rune-bounded chunks of at most maxLen, keeping at
// most maxChunks; the remainder past the last chunk is dropped.
func splitRunes(s string, maxLen, maxChunks int) []string {
	if s == "" {
		return nil
	}
	runes := []rune(s)
	if len(runes) <= maxLen {
		return []string{s}
	}
	var chunks []string
	for start := 0; start < len(runes) && len(chunks) < maxChunks; start += maxLen {
		end := start + maxLen
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, string(runes[start:end]))
	}
	return chunks
}
