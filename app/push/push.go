// Package push implements the push-delivery collaborator. A notification is
// one title/body pair delivered to the user's configured channel.
package push

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/feedhook/feedhook/app/fetch"
)

// ErrUnsupportedChannel is returned for channel types outside the closed set.
var ErrUnsupportedChannel = errors.New("unsupported push channel")

const sendTimeout = 60 * time.Second

// Config selects and parameterizes the delivery channel.
type Config struct {
	// Channel is one of bark, ntfy, serverchan.
	Channel string `json:"channel"`
	// ServerURL is the channel server base URL (bark/ntfy).
	ServerURL string `json:"serverUrl,omitempty"`
	// Token is the device key (bark), topic (ntfy) or send key (serverchan).
	Token string `json:"token"`
}

// Sender delivers one notification. The returned response carries status,
// body and headers for the webhook log.
type Sender interface {
	Send(ctx context.Context, title, body string, cfg Config, proxyURL string) (*fetch.Response, error)
}

type sender struct {
	client *fetch.Client
}

func NewSender(client *fetch.Client) Sender {
	return &sender{client: client}
}

func (s *sender) Send(ctx context.Context, title, body string, cfg Config, proxyURL string) (*fetch.Response, error) {
	slog.Debug("Sending push notification", "channel", cfg.Channel)

	switch cfg.Channel {
	case "bark":
		payload, err := json.Marshal(map[string]string{
			"title":      title,
			"body":       body,
			"device_key": cfg.Token,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to encode bark payload: %w", err)
		}
		return s.client.Do(ctx, strings.TrimSuffix(cfg.ServerURL, "/")+"/push", fetch.Options{
			Method:   "POST",
			ProxyURL: proxyURL,
			Timeout:  sendTimeout,
			Headers:  map[string]string{"Content-Type": "application/json"},
			Body:     payload,
		})

	case "ntfy":
		return s.client.Do(ctx, strings.TrimSuffix(cfg.ServerURL, "/")+"/"+cfg.Token, fetch.Options{
			Method:   "POST",
			ProxyURL: proxyURL,
			Timeout:  sendTimeout,
			Headers:  map[string]string{"X-Title": title},
			Body:     []byte(body),
		})

	case "serverchan":
		form := url.Values{}
		form.Set("title", title)
		form.Set("desp", body)
		return s.client.Do(ctx, fmt.Sprintf("https://sctapi.ftqq.com/%s.send", cfg.Token), fetch.Options{
			Method:   "POST",
			ProxyURL: proxyURL,
			Timeout:  sendTimeout,
			Headers:  map[string]string{"Content-Type": "application/x-www-form-urlencoded"},
			Body:     []byte(form.Encode()),
		})

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedChannel, cfg.Channel)
	}
}
