// Package btclient implements a qBittorrent Web API client. It covers the
// subset of the v2 API the download pipeline needs: adding torrents, querying
// state and free disk space, and removing torrents.
package btclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const requestTimeout = 60 * time.Second

// ErrTorrentNotFound is returned when a hash lookup matches nothing.
var ErrTorrentNotFound = errors.New("torrent not found")

// Torrent is one entry from the torrents list.
type Torrent struct {
	Hash       string `json:"hash"`
	Name       string `json:"name"`
	State      string `json:"state"`
	TotalSize  int64  `json:"total_size"`
	Downloaded int64  `json:"downloaded"`
	AmountLeft int64  `json:"amount_left"`
	MagnetURI  string `json:"magnet_uri"`
	Tracker    string `json:"tracker"`
	SavePath   string `json:"save_path"`
}

// SizeKnown reports whether the torrent metadata has resolved. A magnet added
// without metadata reports a non-positive total size until peers supply it.
func (t *Torrent) SizeKnown() bool {
	return t.TotalSize > 0
}

// Client talks to one qBittorrent instance. Operations re-authenticate on
// session expiry.
type Client interface {
	AddMagnet(ctx context.Context, magnetURI, savePath string) error
	AddTorrent(ctx context.Context, torrent []byte, savePath string) error
	FreeDiskSpace(ctx context.Context) (int64, error)
	Torrents(ctx context.Context, sort string) ([]Torrent, error)
	Torrent(ctx context.Context, hash string) (*Torrent, error)
	RemoveTorrent(ctx context.Context, hash string, deleteFiles bool) error
}

type client struct {
	baseURL  string
	username string
	password string
	http     *http.Client
}

func New(baseURL, username, password string) (Client, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}
	return &client{
		baseURL:  strings.TrimSuffix(baseURL, "/"),
		username: username,
		password: password,
		http: &http.Client{
			Jar:     jar,
			Timeout: requestTimeout,
		},
	}, nil
}

func (c *client) login(ctx context.Context) error {
	form := url.Values{}
	form.Set("username", c.username)
	form.Set("password", c.password)

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/api/v2/auth/login", strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("failed to create login request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to log in: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK || strings.TrimSpace(string(body)) != "Ok." {
		return fmt.Errorf("login rejected: status %d body %q", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}

// do issues an authenticated request, logging in first when the session is
// missing or expired (403).
func (c *client) do(ctx context.Context, method, path string, contentType string, body []byte) ([]byte, error) {
	for attempt := 0; attempt < 2; attempt++ {
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		if contentType != "" {
			req.Header.Set("Content-Type", contentType)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, fmt.Errorf("failed to request %s: %w", path, err)
		}
		respBody, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			return nil, fmt.Errorf("failed to read response from %s: %w", path, readErr)
		}

		if resp.StatusCode == http.StatusForbidden && attempt == 0 {
			slog.Debug("Session expired, re-authenticating", "path", path)
			if err := c.login(ctx); err != nil {
				return nil, err
			}
			continue
		}
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("request %s failed: status %d body %q", path, resp.StatusCode, strings.TrimSpace(string(respBody)))
		}
		return respBody, nil
	}
	return nil, fmt.Errorf("request %s failed after re-authentication", path)
}

func (c *client) AddMagnet(ctx context.Context, magnetURI, savePath string) error {
	form := url.Values{}
	form.Set("urls", magnetURI)
	if savePath != "" {
		form.Set("savepath", savePath)
	}
	_, err := c.do(ctx, "POST", "/api/v2/torrents/add", "application/x-www-form-urlencoded", []byte(form.Encode()))
	if err != nil {
		return fmt.Errorf("failed to add magnet: %w", err)
	}
	return nil
}

func (c *client) AddTorrent(ctx context.Context, torrent []byte, savePath string) error {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	part, err := writer.CreateFormFile("torrents", "upload.torrent")
	if err != nil {
		return fmt.Errorf("failed to build torrent upload: %w", err)
	}
	if _, err := part.Write(torrent); err != nil {
		return fmt.Errorf("failed to build torrent upload: %w", err)
	}
	if savePath != "" {
		if err := writer.WriteField("savepath", savePath); err != nil {
			return fmt.Errorf("failed to build torrent upload: %w", err)
		}
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to build torrent upload: %w", err)
	}

	if _, err := c.do(ctx, "POST", "/api/v2/torrents/add", writer.FormDataContentType(), buf.Bytes()); err != nil {
		return fmt.Errorf("failed to add torrent file: %w", err)
	}
	return nil
}

func (c *client) FreeDiskSpace(ctx context.Context) (int64, error) {
	body, err := c.do(ctx, "GET", "/api/v2/sync/maindata", "", nil)
	if err != nil {
		return 0, err
	}
	var payload struct {
		ServerState struct {
			FreeSpaceOnDisk int64 `json:"free_space_on_disk"`
		} `json:"server_state"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return 0, fmt.Errorf("failed to decode maindata: %w", err)
	}
	return payload.ServerState.FreeSpaceOnDisk, nil
}

func (c *client) Torrents(ctx context.Context, sort string) ([]Torrent, error) {
	path := "/api/v2/torrents/info"
	if sort != "" {
		path += "?sort=" + url.QueryEscape(sort)
	}
	body, err := c.do(ctx, "GET", path, "", nil)
	if err != nil {
		return nil, err
	}
	var torrents []Torrent
	if err := json.Unmarshal(body, &torrents); err != nil {
		return nil, fmt.Errorf("failed to decode torrents list: %w", err)
	}
	return torrents, nil
}

func (c *client) Torrent(ctx context.Context, hash string) (*Torrent, error) {
	body, err := c.do(ctx, "GET", "/api/v2/torrents/info?hashes="+url.QueryEscape(strings.ToLower(hash)), "", nil)
	if err != nil {
		return nil, err
	}
	var torrents []Torrent
	if err := json.Unmarshal(body, &torrents); err != nil {
		return nil, fmt.Errorf("failed to decode torrent info: %w", err)
	}
	if len(torrents) == 0 {
		return nil, ErrTorrentNotFound
	}
	return &torrents[0], nil
}

func (c *client) RemoveTorrent(ctx context.Context, hash string, deleteFiles bool) error {
	form := url.Values{}
	form.Set("hashes", strings.ToLower(hash))
	form.Set("deleteFiles", strconv.FormatBool(deleteFiles))
	if _, err := c.do(ctx, "POST", "/api/v2/torrents/delete", "application/x-www-form-urlencoded", []byte(form.Encode())); err != nil {
		return fmt.Errorf("failed to remove torrent: %w", err)
	}
	return nil
}

var _ Client = (*client)(nil)
