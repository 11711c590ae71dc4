package hook

import (
	"context"
	"log/slog"
	"regexp"

	"github.com/feedhook/feedhook/app/database"
)

// RegularSink rewrites article content with a user-supplied pattern and
// replacement. Every matched article is persisted, modified or not.
type RegularSink struct {
	articleRepo database.ArticleRepository
	regexes     *regexCache
}

func NewRegularSink(articleRepo database.ArticleRepository) *RegularSink {
	return &RegularSink{
		articleRepo: articleRepo,
		regexes:     newRegexCache(),
	}
}

func (s *RegularSink) Handle(ctx context.Context, f *database.Feed, h *database.Hook, articles []*database.Article) error {
	config, err := decodeConfig[RegularConfig](h.Config)
	if err != nil {
		return err
	}

	var re *regexp.Regexp
	if config.ContentRegular != "" {
		re, err = s.regexes.compile(config.ContentRegular)
		if err != nil {
			// Malformed pattern leaves articles unchanged, but they are
			// still written through.
			slog.Error("Invalid rewrite pattern", "hook_id", h.ID, "error", err)
			re = nil
		}
	}

	for _, a := range articles {
		if re != nil {
			a.Content = re.ReplaceAllString(a.Content, config.ContentReplace)
			a.ContentSnippet = re.ReplaceAllString(a.ContentSnippet, config.ContentReplace)
		}
		if err := s.articleRepo.UpdateArticleContent(a); err != nil {
			slog.Error("Failed to persist rewritten article", "article_id", a.ID, "error", err)
		}
	}
	return nil
}
