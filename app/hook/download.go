package hook

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/feedhook/feedhook/app/cfg"
	"github.com/feedhook/feedhook/app/database"
	"github.com/feedhook/feedhook/app/fetch"
	"github.com/feedhook/feedhook/app/pool"
)

// DownloadSink acquires files referenced by matched articles, deduplicated
// through the resource store.
type DownloadSink struct {
	client       *fetch.Client
	resourceRepo database.ResourceRepository
	pools        *pool.Set
	regexes      *regexCache
}

func NewDownloadSink(client *fetch.Client, resourceRepo database.ResourceRepository, pools *pool.Set) *DownloadSink {
	return &DownloadSink{
		client:       client,
		resourceRepo: resourceRepo,
		pools:        pools,
		regexes:      newRegexCache(),
	}
}

func (s *DownloadSink) Handle(ctx context.Context, f *database.Feed, h *database.Hook, articles []*database.Article) error {
	config, err := decodeConfig[DownloadConfig](h.Config)
	if err != nil {
		return err
	}
	if config.Suffixes == "" {
		return &ConfigError{Reason: "download suffixes pattern is empty"}
	}

	urls, err := s.extractURLs(articles, config.Suffixes)
	if err != nil {
		return err
	}
	if len(urls) == 0 {
		slog.Debug("No downloadable urls in matched articles", "hook_id", h.ID)
		return nil
	}

	for _, rawURL := range urls {
		err := s.pools.Download.Do(ctx, func(ctx context.Context) error {
			return s.acquire(ctx, f.UserID, rawURL, h.ProxyURL, config)
		})
		if err != nil {
			slog.Error("Download failed", "hook_id", h.ID, "url", rawURL, "error", err)
		}
	}
	return nil
}

// extractURLs pulls src/href attributes and enclosure urls out of the
// articles, keeping those whose path ends in one of the configured suffixes.
func (s *DownloadSink) extractURLs(articles []*database.Article, suffixes string) ([]string, error) {
	re, err := s.regexes.compile(`\.(` + suffixes + `)($|\?)`)
	if err != nil {
		return nil, err
	}

	var urls []string
	seen := make(map[string]struct{})
	add := func(rawURL string) {
		if rawURL == "" || !fetch.IsHTTPURL(rawURL) || !re.MatchString(rawURL) {
			return
		}
		if _, ok := seen[rawURL]; ok {
			return
		}
		seen[rawURL] = struct{}{}
		urls = append(urls, rawURL)
	}

	for _, a := range articles {
		add(a.EnclosureURL)
		doc, err := goquery.NewDocumentFromReader(strings.NewReader(a.Content))
		if err != nil {
			slog.Warn("Failed to parse article content", "article_id", a.ID, "error", err)
			continue
		}
		doc.Find("[src], [href]").Each(func(_ int, sel *goquery.Selection) {
			if v, ok := sel.Attr("src"); ok {
				add(v)
			}
			if v, ok := sel.Attr("href"); ok {
				add(v)
			}
		})
	}
	return urls, nil
}

// acquire runs the dedup ladder for one url: own record, cross-user clone,
// file already on disk, then an actual download. The attempted record is
// persisted no matter how the attempt ends.
func (s *DownloadSink) acquire(ctx context.Context, userID int64, rawURL, proxyURL string, config *DownloadConfig) error {
	if existing, err := s.resourceRepo.GetByURLAndUser(rawURL, userID); err != nil {
		return err
	} else if existing != nil {
		slog.Debug("Url already acquired for user", "url", rawURL, "user_id", userID)
		return nil
	}

	if shared, err := s.resourceRepo.GetSuccessByURL(rawURL); err != nil {
		return err
	} else if shared != nil {
		clone := &database.Resource{
			UserID: userID,
			URL:    shared.URL,
			Name:   shared.Name,
			Status: database.StatusSuccess,
			Size:   shared.Size,
			Type:   shared.Type,
			Hash:   shared.Hash,
		}
		if slices.Contains(config.SkipHashes, shared.Hash) {
			clone.Status = database.StatusSkip
		}
		slog.Debug("Cloned resource from another user", "url", rawURL, "hash", shared.Hash)
		return s.resourceRepo.InsertResource(clone)
	}

	name := fileNameFor(rawURL)
	path := filepath.Join(cfg.Get().DownloadDir, name)
	resource := &database.Resource{
		UserID: userID,
		URL:    rawURL,
		Name:   name,
		Path:   path,
		Status: database.StatusUnknown,
	}
	defer func() {
		if err := s.resourceRepo.InsertResource(resource); err != nil {
			slog.Error("Failed to persist resource record", "url", rawURL, "error", err)
		}
	}()

	if _, err := os.Stat(path); err == nil {
		// A prior partial run left the file behind; trust the bytes on disk.
		info, err := fetch.InspectFile(path)
		if err != nil {
			resource.Status = database.StatusFail
			return fmt.Errorf("failed to inspect existing file: %w", err)
		}
		s.finishDownload(resource, info, config)
		return nil
	}

	info, err := s.client.Download(ctx, rawURL, path, fetch.Options{
		ProxyURL: proxyURL,
		Timeout:  timeoutOrDefault(config.Timeout, fetch.DefaultTimeout),
	})
	if err != nil {
		resource.Status = database.StatusFail
		return err
	}
	s.finishDownload(resource, info, config)
	return nil
}

func (s *DownloadSink) finishDownload(resource *database.Resource, info *fetch.FileInfo, config *DownloadConfig) {
	resource.Size = info.Size
	resource.Type = info.Type
	resource.Hash = info.Hash
	if slices.Contains(config.SkipHashes, info.Hash) {
		resource.Status = database.StatusSkip
		if err := os.Remove(resource.Path); err != nil {
			slog.Warn("Failed to remove skipped file", "path", resource.Path, "error", err)
		}
		resource.Path = ""
		return
	}
	resource.Status = database.StatusSuccess
}

// fileNameFor derives a stable on-disk name: md5 of the url plus the url's
// extension, so re-running a partial download finds its previous file.
func fileNameFor(rawURL string) string {
	sum := md5.Sum([]byte(rawURL))
	name := hex.EncodeToString(sum[:])
	if u, err := url.Parse(rawURL); err == nil {
		if ext := filepath.Ext(u.Path); ext != "" {
			name += ext
		}
	}
	return name
}
