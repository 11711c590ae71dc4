package hook

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/feedhook/feedhook/app/ai"
	"github.com/feedhook/feedhook/app/database"
	"github.com/feedhook/feedhook/app/feed"
	"github.com/feedhook/feedhook/app/pool"
)

const defaultAITimeout = 120 * time.Second

// AISink fills Article.AISummary for matched articles.
type AISink struct {
	completer   ai.Completer
	articleRepo database.ArticleRepository
	pools       *pool.Set
}

func NewAISink(completer ai.Completer, articleRepo database.ArticleRepository, pools *pool.Set) *AISink {
	return &AISink{
		completer:   completer,
		articleRepo: articleRepo,
		pools:       pools,
	}
}

func (s *AISink) Handle(ctx context.Context, f *database.Feed, h *database.Hook, articles []*database.Article) error {
	config, err := decodeAIConfig(h.Config)
	if err != nil {
		return err
	}

	budget := config.MaxTokens - ai.EstimateTokens(config.Prompt)
	if budget <= 0 {
		return &ConfigError{Reason: fmt.Sprintf(
			"prompt consumes the whole token budget (maxTokens %d)", config.MaxTokens)}
	}

	for _, a := range articles {
		if config.IsOnlySummaryEmpty && a.AISummary != "" {
			continue
		}
		content := a.Content
		if config.ContentType != "html" {
			content = feed.PlainText(content)
		}
		if len([]rune(content)) < config.MinContentLength {
			slog.Debug("Article content below summarization threshold", "article_id", a.ID)
			continue
		}
		if config.IsIncludeTitle {
			content = a.Title + "\n\n" + content
		}

		article := a
		err := s.pools.AI.Do(ctx, func(ctx context.Context) error {
			return s.summarize(ctx, article, content, config, budget)
		})
		if err != nil {
			slog.Error("Summarization failed", "hook_id", h.ID, "article_id", article.ID, "error", err)
		}
	}
	return nil
}

// summarize produces the summary for one article. Long content is optionally
// split into token-bounded chunks handled sequentially; a failed chunk
// contributes nothing instead of failing the article.
func (s *AISink) summarize(ctx context.Context, article *database.Article, content string,
	config *AIConfig, budget int) error {

	ctx, cancel := context.WithTimeout(ctx, timeoutOrDefault(config.Timeout, defaultAITimeout))
	defer cancel()

	var chunks []string
	if config.IsSplit {
		chunks = ai.SplitTokens(content, budget)
	} else {
		chunks = []string{ai.LimitTokens(content, budget)}
	}

	parts := make([]string, 0, len(chunks))
	for i, chunk := range chunks {
		result, err := s.completer.Complete(ctx, ai.Request{
			System:      config.Prompt,
			Content:     chunk,
			Model:       config.Model,
			MaxTokens:   config.MaxTokens,
			Temperature: config.Temperature,
		})
		if err != nil {
			slog.Warn("Chunk summarization failed", "article_id", article.ID, "chunk", i, "error", err)
			continue
		}
		parts = append(parts, result)
	}

	summary := strings.TrimSpace(strings.Join(parts, "\n\n"))
	if summary == "" {
		return fmt.Errorf("no summary produced for article %d", article.ID)
	}

	article.AISummary = summary
	return s.articleRepo.UpdateArticleSummary(article)
}
