package cfg

import (
	"cmp"
	"fmt"
	"time"

	"github.com/jessevdk/go-flags"
)

// Version is set at build time via -ldflags
var Version = "dev"

func GetVersion() string {
	return cmp.Or(Version, "unknown")
}

type rawCfg struct {
	// Storage configuration
	DataDir     string `long:"data-dir" env:"DATA_DIR" default:"./data" description:"Directory holding the sqlite database"`
	DownloadDir string `long:"download-dir" env:"DOWNLOAD_DIR" default:"./data/download" description:"Directory for downloaded resources"`

	// Application configuration
	Port                string `long:"port" env:"PORT" default:"8080" description:"HTTP server port"`
	FeedLimit           int    `long:"feed-limit" env:"FEED_LIMIT" default:"5" description:"Max concurrent feed fetches"`
	HookLimit           int    `long:"hook-limit" env:"HOOK_LIMIT" default:"10" description:"Max concurrent hook executions"`
	DownloadLimit       int    `long:"download-limit" env:"DOWNLOAD_LIMIT" default:"5" description:"Max concurrent file downloads"`
	BitTorrentLimit     int    `long:"bittorrent-limit" env:"BIT_TORRENT_LIMIT" default:"5" description:"Max concurrent BitTorrent operations"`
	AILimit             int    `long:"ai-limit" env:"AI_LIMIT" default:"3" description:"Max concurrent AI summarization calls"`
	NotificationLimit   int    `long:"notification-limit" env:"NOTIFICATION_LIMIT" default:"5" description:"Max concurrent notification sends"`
	ReverseTriggerLimit int    `long:"reverse-trigger-limit" env:"REVERSE_TRIGGER_LIMIT" default:"5" description:"Max reverse-trigger dispatches per feed per hour"`
	ArticleSaveDays     int    `long:"article-save-days" env:"ARTICLE_SAVE_DAYS" default:"90" description:"Days to keep articles"`
	ResourceSaveDays    int    `long:"resource-save-days" env:"RESOURCE_SAVE_DAYS" default:"30" description:"Days to keep downloaded resources"`
	LogSaveDays         int    `long:"log-save-days" env:"LOG_SAVE_DAYS" default:"30" description:"Days to keep webhook logs"`
	SeedFile            string `long:"seed-file" env:"SEED_FILE" default:"" description:"Optional YAML file with feeds and hooks imported at startup"`

	// Collaborator configuration
	GeminiAPIKey string `long:"gemini-api-key" env:"GEMINI_API_KEY" default:"" description:"API key for the Gemini summarization collaborator"`

	// Application metadata
	UserAgent string `long:"user-agent" env:"USER_AGENT" default:"Feedhook/1.0" description:"User agent string for HTTP requests"`
	Timezone  string `long:"timezone" env:"TZ" default:"UTC" description:"Timezone for schedules and daily aggregation (e.g. UTC, Asia/Shanghai)"`
	Debug     bool   `long:"debug" env:"DEBUG" description:"Enable debug logging"`
}

var globalCfg *Cfg

func Load() (*Cfg, error) {
	var raw rawCfg

	parser := flags.NewParser(&raw, flags.Default)

	if _, err := parser.Parse(); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok {
			if flagsErr.Type == flags.ErrHelp {
				return nil, nil
			}
		}
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	cfg := &Cfg{
		DataDir:             raw.DataDir,
		DownloadDir:         raw.DownloadDir,
		Port:                raw.Port,
		FeedLimit:           raw.FeedLimit,
		HookLimit:           raw.HookLimit,
		DownloadLimit:       raw.DownloadLimit,
		BitTorrentLimit:     raw.BitTorrentLimit,
		AILimit:             raw.AILimit,
		NotificationLimit:   raw.NotificationLimit,
		ReverseTriggerLimit: raw.ReverseTriggerLimit,
		ArticleSaveDays:     raw.ArticleSaveDays,
		ResourceSaveDays:    raw.ResourceSaveDays,
		LogSaveDays:         raw.LogSaveDays,
		SeedFile:            raw.SeedFile,
		GeminiAPIKey:        raw.GeminiAPIKey,
		UserAgent:           raw.UserAgent,
		Timezone:            raw.Timezone,
		Debug:               raw.Debug,
		Version:             GetVersion(),
	}

	if err := applyTimezone(cfg.Timezone); err != nil {
		fmt.Printf("Warning: Invalid timezone '%s', using system default: %v\n", cfg.Timezone, err)
	}

	globalCfg = cfg

	return cfg, nil
}

func Get() *Cfg {
	if globalCfg == nil {
		panic("configuration not loaded - call cfg.Load() first")
	}
	return globalCfg
}

// SetForTest installs a configuration without parsing flags. Test use only.
func SetForTest(c *Cfg) {
	globalCfg = c
}

func applyTimezone(timezone string) error {
	if timezone != "" {
		if loc, err := time.LoadLocation(timezone); err != nil {
			return err
		} else {
			time.Local = loc
		}
	}
	return nil
}
