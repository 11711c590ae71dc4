package hook

import (
	"encoding/json"
	"fmt"
	"regexp"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/feedhook/feedhook/app/database"
)

const regexCacheSize = 256

// regexCache memoizes compiled patterns. Filters and rewrite hooks run on
// every poll, so the same user-supplied patterns compile over and over
// without it.
type regexCache struct {
	cache *lru.Cache[string, *regexp.Regexp]
}

func newRegexCache() *regexCache {
	cache, _ := lru.New[string, *regexp.Regexp](regexCacheSize)
	return &regexCache{cache: cache}
}

// compile returns a case-insensitive compiled pattern, cached by source text.
func (c *regexCache) compile(pattern string) (*regexp.Regexp, error) {
	key := "(?is)" + pattern
	if re, ok := c.cache.Get(key); ok {
		return re, nil
	}
	re, err := regexp.Compile(key)
	if err != nil {
		return nil, &ConfigError{Reason: fmt.Sprintf("invalid pattern %q: %v", pattern, err)}
	}
	c.cache.Add(key, re)
	return re, nil
}

// Filter is the per-hook article matching rule. Empty fields match
// everything; set fields are case-insensitive patterns that must all match.
type Filter struct {
	Title    string `json:"title"`
	Content  string `json:"content"`
	Category string `json:"category"`
	// Limit caps how many matched articles one trigger hands to the sink.
	// Zero means unlimited.
	Limit int `json:"limit"`
}

func decodeFilter(raw []byte) (*Filter, error) {
	var f Filter
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &f); err != nil {
			return nil, &ConfigError{Reason: fmt.Sprintf("failed to decode filter: %v", err)}
		}
	}
	return &f, nil
}

// apply returns the articles the filter matches, in input order.
func (f *Filter) apply(cache *regexCache, articles []*database.Article) ([]*database.Article, error) {
	matchers := make([]func(*database.Article) bool, 0, 3)

	if f.Title != "" {
		re, err := cache.compile(f.Title)
		if err != nil {
			return nil, err
		}
		matchers = append(matchers, func(a *database.Article) bool { return re.MatchString(a.Title) })
	}
	if f.Content != "" {
		re, err := cache.compile(f.Content)
		if err != nil {
			return nil, err
		}
		matchers = append(matchers, func(a *database.Article) bool {
			return re.MatchString(a.Content) || re.MatchString(a.ContentSnippet)
		})
	}
	if f.Category != "" {
		re, err := cache.compile(f.Category)
		if err != nil {
			return nil, err
		}
		matchers = append(matchers, func(a *database.Article) bool {
			for _, c := range a.Categories {
				if re.MatchString(c) {
					return true
				}
			}
			return false
		})
	}

	var matched []*database.Article
	for _, a := range articles {
		ok := true
		for _, m := range matchers {
			if !m(a) {
				ok = false
				break
			}
		}
		if ok {
			matched = append(matched, a)
			if f.Limit > 0 && len(matched) >= f.Limit {
				break
			}
		}
	}
	return matched, nil
}
