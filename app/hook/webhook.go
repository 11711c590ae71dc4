package hook

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/feedhook/feedhook/app/database"
	"github.com/feedhook/feedhook/app/fetch"
)

// WebhookSink posts matched articles (or a failure payload) to a user URL.
type WebhookSink struct {
	client  *fetch.Client
	logRepo database.WebhookLogRepository
}

func NewWebhookSink(client *fetch.Client, logRepo database.WebhookLogRepository) *WebhookSink {
	return &WebhookSink{client: client, logRepo: logRepo}
}

func (s *WebhookSink) Handle(ctx context.Context, f *database.Feed, h *database.Hook, articles []*database.Article) error {
	config, err := decodeConfig[WebhookConfig](h.Config)
	if err != nil {
		return err
	}
	if config.URL == "" {
		return &ConfigError{Reason: "webhook url is empty"}
	}

	payload := map[string]any{
		"feed": map[string]any{
			"id":    f.ID,
			"title": f.Title,
			"url":   f.URL,
		},
		"articles": articlePayloads(articles),
	}
	return s.post(ctx, f, h, config, payload)
}

// HandleReverse posts the poll failure instead of articles.
func (s *WebhookSink) HandleReverse(ctx context.Context, f *database.Feed, h *database.Hook, cause error, includeDetail bool) error {
	config, err := decodeConfig[WebhookConfig](h.Config)
	if err != nil {
		return err
	}
	if config.URL == "" {
		return &ConfigError{Reason: "webhook url is empty"}
	}

	detail := "feed poll failed"
	if includeDetail {
		detail = cause.Error()
	}
	payload := map[string]any{
		"feed": map[string]any{
			"id":    f.ID,
			"title": f.Title,
			"url":   f.URL,
		},
		"error": detail,
	}
	return s.post(ctx, f, h, config, payload)
}

func (s *WebhookSink) post(ctx context.Context, f *database.Feed, h *database.Hook,
	config *WebhookConfig, payload map[string]any) error {

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode webhook payload: %w", err)
	}

	method := config.Method
	if method == "" {
		method = "POST"
	}
	headers := map[string]string{"Content-Type": "application/json"}
	for k, v := range config.Headers {
		headers[k] = v
	}

	resp, err := s.client.Do(ctx, config.URL, fetch.Options{
		Method:   method,
		ProxyURL: h.ProxyURL,
		Timeout:  timeoutOrDefault(config.Timeout, fetch.DefaultTimeout),
		Headers:  headers,
		Body:     body,
	})
	if err != nil {
		slog.Error("Webhook call failed", "hook_id", h.ID, "url", config.URL, "error", err)
	}
	recordOutcome(s.logRepo, f, h, database.HookTypeWebhook, resp, err)
	return nil
}

func articlePayloads(articles []*database.Article) []map[string]any {
	payloads := make([]map[string]any, 0, len(articles))
	for _, a := range articles {
		payloads = append(payloads, map[string]any{
			"id":             a.ID,
			"guid":           a.GUID,
			"link":           a.Link,
			"title":          a.Title,
			"content":        a.Content,
			"contentSnippet": a.ContentSnippet,
			"summary":        a.Summary,
			"aiSummary":      a.AISummary,
			"author":         a.Author,
			"categories":     a.Categories,
			"publishedAt":    a.PublishedAt,
		})
	}
	return payloads
}
