package hook

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/feedhook/feedhook/app/btclient"
	"github.com/feedhook/feedhook/app/database"
	"github.com/feedhook/feedhook/app/fetch"
	"github.com/feedhook/feedhook/app/pool"
	"github.com/feedhook/feedhook/app/retry"
)

const (
	evictRetries      = 3
	evictInitial      = 10 * time.Second
	evictInterval     = 10 * time.Minute
	removeRetries     = 10
	removeInitial     = 10 * time.Second
	removeInterval    = time.Hour
	sizeWaitRetries   = 10
	sizeWaitInitial   = 10 * time.Second
	sizeWaitInterval  = time.Hour
	clientTypeDefault = "qBittorrent"
)

var (
	errNoEvictableTorrents = errors.New("no torrents left to evict")
	errDiskSpaceLow        = errors.New("free disk space below minimum")
	errStillPresent        = errors.New("torrent still present")
	errSizeUnresolved      = errors.New("torrent size not yet resolved")
)

// BitTorrentSink acquires torrent enclosures through a qBittorrent instance,
// enforcing disk-space and per-torrent size limits.
type BitTorrentSink struct {
	fetchClient  *fetch.Client
	resourceRepo database.ResourceRepository
	articleRepo  database.ArticleRepository
	pools        *pool.Set

	// newClient is swapped in tests; defaults to btclient.New.
	newClient func(baseURL, username, password string) (btclient.Client, error)
	// detachCtx scopes the background size-resolution tasks to the process
	// lifetime rather than the triggering poll.
	detachCtx context.Context
	// sizeWaitBase is the first size-resolution poll interval; shortened
	// in tests.
	sizeWaitBase time.Duration
}

func NewBitTorrentSink(fetchClient *fetch.Client, resourceRepo database.ResourceRepository,
	articleRepo database.ArticleRepository, pools *pool.Set, detachCtx context.Context) *BitTorrentSink {
	if detachCtx == nil {
		detachCtx = context.Background()
	}
	return &BitTorrentSink{
		fetchClient:  fetchClient,
		resourceRepo: resourceRepo,
		articleRepo:  articleRepo,
		pools:        pools,
		newClient:    btclient.New,
		detachCtx:    detachCtx,
		sizeWaitBase: sizeWaitInitial,
	}
}

func (s *BitTorrentSink) Handle(ctx context.Context, f *database.Feed, h *database.Hook, articles []*database.Article) error {
	config, err := decodeConfig[BitTorrentConfig](h.Config)
	if err != nil {
		return err
	}
	if config.Type != "" && config.Type != clientTypeDefault {
		return &UnsupportedTypeError{Kind: "bittorrent client", Value: config.Type}
	}
	if config.BaseURL == "" {
		return &ConfigError{Reason: "bittorrent client baseUrl is empty"}
	}

	bt, err := s.newClient(config.BaseURL, config.Username, config.Password)
	if err != nil {
		return err
	}

	for _, a := range articles {
		if a.EnclosureType != database.MIMETypeBitTorrent || a.EnclosureURL == "" {
			continue
		}
		article := a
		err := s.pools.BitTorrent.Do(ctx, func(ctx context.Context) error {
			return s.acquire(ctx, bt, h, config, article)
		})
		if err != nil {
			slog.Error("Torrent acquisition failed",
				"hook_id", h.ID, "article_id", article.ID, "url", article.EnclosureURL, "error", err)
		}
	}
	return nil
}

func (s *BitTorrentSink) acquire(ctx context.Context, bt btclient.Client, h *database.Hook,
	config *BitTorrentConfig, article *database.Article) error {

	if config.AutoRemove && config.MinDiskSize > 0 {
		if err := s.ensureDiskSpace(ctx, bt, config.MinDiskSize); err != nil {
			slog.Warn("Could not free enough disk space", "error", err)
		}
	}

	enclosureURL := article.EnclosureURL

	var (
		infoHash    string
		displayName string
		tracker     string
		size        int64
		torrentData []byte
	)
	if btclient.IsMagnet(enclosureURL) {
		magnet, err := btclient.ParseMagnet(enclosureURL)
		if err != nil {
			return err
		}
		infoHash = magnet.InfoHash
		displayName = magnet.DisplayName
		tracker = magnet.Tracker
		size = magnet.Size
	} else {
		resp, err := s.fetchClient.Do(ctx, enclosureURL, fetch.Options{ProxyURL: h.ProxyURL})
		if err != nil {
			return fmt.Errorf("failed to download torrent file: %w", err)
		}
		torrentData = resp.Body
		infoHash, err = btclient.InfoHash(torrentData)
		if err != nil {
			return err
		}
	}

	if existing, err := s.resourceRepo.GetByHashAndUser(infoHash, h.UserID); err != nil {
		return err
	} else if existing != nil {
		slog.Debug("Torrent already known for user", "hash", infoHash, "user_id", h.UserID)
		s.backfillEnclosureLength(article, existing.Size)
		return nil
	}

	if torrentData != nil {
		if err := bt.AddTorrent(ctx, torrentData, config.DownloadPath); err != nil {
			return err
		}
	} else {
		if err := bt.AddMagnet(ctx, enclosureURL, config.DownloadPath); err != nil {
			return err
		}
	}

	// Read back the submitted torrent; magnets without metadata show up
	// with an unresolved size.
	if torrent, err := bt.Torrent(ctx, infoHash); err == nil {
		if torrent.SizeKnown() {
			size = torrent.TotalSize
		}
		if displayName == "" {
			displayName = torrent.Name
		}
		if tracker == "" {
			tracker = torrent.Tracker
		}
	} else if !errors.Is(err, btclient.ErrTorrentNotFound) {
		slog.Warn("Failed to read back torrent", "hash", infoHash, "error", err)
	}

	// Torrent-file enclosures keep their http source url so the torrent can
	// be re-fetched later; magnets are stored in canonical single-tracker
	// form.
	resourceURL := btclient.BuildMagnet(infoHash, displayName, tracker)
	if torrentData != nil && fetch.IsHTTPURL(enclosureURL) {
		resourceURL = enclosureURL
	}

	// A torrent without resolved metadata stays unknown until the deferred
	// resolution settles it.
	resource := &database.Resource{
		UserID: h.UserID,
		URL:    resourceURL,
		Name:   displayName,
		Status: database.StatusUnknown,
		Size:   size,
		Type:   database.MIMETypeBitTorrent,
		Hash:   infoHash,
	}

	if size > 0 {
		resource.Status = database.StatusSuccess
		if reason := s.limitExceeded(ctx, bt, config, size); reason != "" {
			slog.Info("Torrent over limit, removing", "hash", infoHash, "reason", reason)
			resource.Status = database.StatusSkip
			if err := s.removeConfirmed(ctx, bt, infoHash); err != nil {
				slog.Error("Failed to confirm torrent removal", "hash", infoHash, "error", err)
			}
		}
		s.backfillEnclosureLength(article, size)
	}

	if err := s.resourceRepo.InsertResource(resource); err != nil {
		return err
	}

	if resource.Status == database.StatusUnknown {
		go s.resolveSizeLater(bt, config, resource, article)
	}
	return nil
}

// ensureDiskSpace evicts the torrent with the most downloaded bytes until
// free space clears the floor. Each eviction is re-checked on the next
// attempt of the retry loop.
func (s *BitTorrentSink) ensureDiskSpace(ctx context.Context, bt btclient.Client, minFree int64) error {
	return retry.Do(ctx, func(ctx context.Context) error {
		free, err := bt.FreeDiskSpace(ctx)
		if err != nil {
			return err
		}
		if free >= minFree {
			return nil
		}
		torrents, err := bt.Torrents(ctx, "downloaded")
		if err != nil {
			return err
		}
		if len(torrents) == 0 {
			return errNoEvictableTorrents
		}
		// Sorted ascending by downloaded volume; the last is the biggest.
		victim := torrents[len(torrents)-1]
		slog.Info("Evicting torrent to free disk space",
			"hash", victim.Hash, "name", victim.Name, "downloaded", victim.Downloaded, "free", free)
		if err := bt.RemoveTorrent(ctx, victim.Hash, true); err != nil {
			return err
		}
		return errDiskSpaceLow
	}, retry.Options{
		MaxRetries:      evictRetries,
		InitialInterval: evictInitial,
		MaxInterval:     evictInterval,
		ShouldRetry: func(err error) bool {
			return !errors.Is(err, errNoEvictableTorrents)
		},
	})
}

// limitExceeded reports why a torrent of the given size may not stay: over
// the per-torrent cap, or bigger than the remaining disk space.
func (s *BitTorrentSink) limitExceeded(ctx context.Context, bt btclient.Client, config *BitTorrentConfig, size int64) string {
	if config.MaxSize > 0 && size > config.MaxSize {
		return fmt.Sprintf("size %d exceeds max %d", size, config.MaxSize)
	}
	free, err := bt.FreeDiskSpace(ctx)
	if err != nil {
		slog.Warn("Failed to read free disk space", "error", err)
		return ""
	}
	if size > free {
		return fmt.Sprintf("size %d exceeds free disk space %d", size, free)
	}
	return ""
}

// removeConfirmed removes a torrent and polls until the client no longer
// knows the hash.
func (s *BitTorrentSink) removeConfirmed(ctx context.Context, bt btclient.Client, hash string) error {
	if err := bt.RemoveTorrent(ctx, hash, true); err != nil {
		return err
	}
	return retry.Do(ctx, func(ctx context.Context) error {
		_, err := bt.Torrent(ctx, hash)
		if errors.Is(err, btclient.ErrTorrentNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		// Still listed; remove again and keep polling.
		if err := bt.RemoveTorrent(ctx, hash, true); err != nil {
			return err
		}
		return errStillPresent
	}, retry.Options{
		MaxRetries:      removeRetries,
		InitialInterval: removeInitial,
		MaxInterval:     removeInterval,
	})
}

// resolveSizeLater waits in the background for magnet metadata, then
// settles the unknown resource: success, or skip when the resolved size
// breaks a limit. Scoped to the process context, not the poll that
// spawned it.
func (s *BitTorrentSink) resolveSizeLater(bt btclient.Client, config *BitTorrentConfig,
	resource *database.Resource, article *database.Article) {

	ctx := s.detachCtx
	var torrent *btclient.Torrent
	err := retry.Do(ctx, func(ctx context.Context) error {
		t, err := bt.Torrent(ctx, resource.Hash)
		if err != nil {
			return err
		}
		if !t.SizeKnown() {
			return errSizeUnresolved
		}
		torrent = t
		return nil
	}, retry.Options{
		MaxRetries:      sizeWaitRetries,
		InitialInterval: s.sizeWaitBase,
		MaxInterval:     sizeWaitInterval,
		ShouldRetry: func(err error) bool {
			return !errors.Is(err, btclient.ErrTorrentNotFound)
		},
	})
	if err != nil {
		slog.Warn("Torrent size never resolved", "hash", resource.Hash, "error", err)
		return
	}

	resource.Size = torrent.TotalSize
	resource.Status = database.StatusSuccess
	if resource.Name == "" {
		resource.Name = torrent.Name
	}
	if reason := s.limitExceeded(ctx, bt, config, torrent.TotalSize); reason != "" {
		slog.Info("Resolved torrent over limit, removing", "hash", resource.Hash, "reason", reason)
		resource.Status = database.StatusSkip
		if err := s.removeConfirmed(ctx, bt, resource.Hash); err != nil {
			slog.Error("Failed to confirm torrent removal", "hash", resource.Hash, "error", err)
		}
	}
	if err := s.resourceRepo.UpdateResource(resource); err != nil {
		slog.Error("Failed to update resource size", "hash", resource.Hash, "error", err)
		return
	}
	s.backfillEnclosureLength(article, torrent.TotalSize)
}

// backfillEnclosureLength fills a missing enclosure length from the resource
// size so feeds rendered from stored articles report it.
func (s *BitTorrentSink) backfillEnclosureLength(article *database.Article, size int64) {
	if article.EnclosureLength > 0 || size <= 0 {
		return
	}
	article.EnclosureLength = size
	if err := s.articleRepo.UpdateArticleEnclosureLength(article); err != nil {
		slog.Warn("Failed to backfill enclosure length", "article_id", article.ID, "error", err)
	}
}
