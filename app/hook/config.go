package hook

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/feedhook/feedhook/app/push"
)

// Config payload shapes, one per hook type. Hook.Config holds the raw JSON;
// the dispatcher decodes it with the shape matching Hook.Type.

const (
	defaultNotificationMaxLength = 4096
	defaultAIMinContentLength    = 1024
	defaultAIMaxTokens           = 2048
)

// NotificationConfig drives the push-notification sink.
type NotificationConfig struct {
	IsMergePush     bool        `json:"isMergePush"`
	IsMarkdown      bool        `json:"isMarkdown"`
	IsSnippet       bool        `json:"isSnippet"`
	OnlySummary     bool        `json:"onlySummary"`
	UseAISummary    bool        `json:"useAiSummary"`
	AppendAISummary bool        `json:"appendAiSummary"`
	MaxLength       int         `json:"maxLength"`
	Push            push.Config `json:"push"`
}

// WebhookConfig drives the outbound-webhook sink.
type WebhookConfig struct {
	URL     string            `json:"url"`
	Method  string            `json:"method"`
	Headers map[string]string `json:"headers"`
	Timeout int               `json:"timeout"` // seconds
}

// DownloadConfig drives the file-download sink.
type DownloadConfig struct {
	// Suffixes is an alternation of file extensions, e.g. "mp3|m4a|pdf".
	Suffixes string `json:"suffixes"`
	// SkipHashes lists content hashes to acquire as skip instead of success.
	SkipHashes []string `json:"skipHashes"`
	Timeout    int      `json:"timeout"` // seconds
}

// BitTorrentConfig drives the torrent-acquisition sink.
type BitTorrentConfig struct {
	Type         string `json:"type"` // qBittorrent is the only supported value
	BaseURL      string `json:"baseUrl"`
	Username     string `json:"username"`
	Password     string `json:"password"`
	DownloadPath string `json:"downloadPath"`
	// MaxSize caps one torrent's total size in bytes. Zero disables the check.
	MaxSize int64 `json:"maxSize"`
	// MinDiskSize is the free-space floor in bytes below which the largest
	// torrent is evicted before adding new ones. Zero disables eviction.
	MinDiskSize int64 `json:"minDiskSize"`
	AutoRemove  bool  `json:"autoRemove"`
}

// AIConfig drives the summarization sink.
type AIConfig struct {
	MinContentLength   int     `json:"minContentLength"`
	MaxTokens          int     `json:"maxTokens"`
	Temperature        float64 `json:"temperature"`
	IsOnlySummaryEmpty bool    `json:"isOnlySummaryEmpty"`
	IsSplit            bool    `json:"isSplit"`
	IsIncludeTitle     bool    `json:"isIncludeTitle"`
	ContentType        string  `json:"contentType"` // html or text
	Model              string  `json:"model"`
	Prompt             string  `json:"prompt"`
	Timeout            int     `json:"timeout"` // seconds
}

// RegularConfig drives the regex-rewrite sink.
type RegularConfig struct {
	ContentRegular string `json:"contentRegular"`
	ContentReplace string `json:"contentReplace"`
}

func decodeConfig[T any](raw []byte) (*T, error) {
	var cfg T
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &cfg); err != nil {
			return nil, &ConfigError{Reason: fmt.Sprintf("failed to decode payload: %v", err)}
		}
	}
	return &cfg, nil
}

func decodeNotificationConfig(raw []byte) (*NotificationConfig, error) {
	cfg, err := decodeConfig[NotificationConfig](raw)
	if err != nil {
		return nil, err
	}
	if cfg.MaxLength <= 0 {
		cfg.MaxLength = defaultNotificationMaxLength
	}
	return cfg, nil
}

func decodeAIConfig(raw []byte) (*AIConfig, error) {
	cfg, err := decodeConfig[AIConfig](raw)
	if err != nil {
		return nil, err
	}
	if cfg.MinContentLength <= 0 {
		cfg.MinContentLength = defaultAIMinContentLength
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = defaultAIMaxTokens
	}
	return cfg, nil
}

// timeoutOrDefault turns a config's second count into a duration.
func timeoutOrDefault(seconds int, fallback time.Duration) time.Duration {
	if seconds <= 0 {
		return fallback
	}
	return time.Duration(seconds) * time.Second
}
