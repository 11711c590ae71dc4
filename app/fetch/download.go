package fetch

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/gabriel-vasile/mimetype"
)

// FileInfo describes a file after download or re-inspection.
type FileInfo struct {
	Size int64
	Type string // detected MIME type
	Hash string // md5 hex
}

// Download streams the url into path, hashing as it writes. The partial
// file is removed on failure.
func (c *Client) Download(ctx context.Context, rawURL, path string, opts Options) (*FileInfo, error) {
	resp, err := c.open(ctx, rawURL, opts)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &HTTPError{StatusCode: resp.StatusCode, StatusText: resp.Status, Headers: resp.Header}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create download directory: %w", err)
	}

	out, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create file: %w", err)
	}

	hasher := md5.New()
	size, err := io.Copy(io.MultiWriter(out, hasher), resp.Body)
	closeErr := out.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("failed to download %s: %w", rawURL, err)
	}

	mime, err := mimetype.DetectFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to detect file type: %w", err)
	}

	return &FileInfo{
		Size: size,
		Type: mime.String(),
		Hash: hex.EncodeToString(hasher.Sum(nil)),
	}, nil
}

// InspectFile recomputes size, MIME type and md5 for an existing file,
// recovering resource records after a partial prior run.
func InspectFile(path string) (*FileInfo, error) {
	stat, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}

	mime, err := mimetype.DetectFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to detect file type: %w", err)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()

	hasher := md5.New()
	if _, err := io.Copy(hasher, f); err != nil {
		return nil, fmt.Errorf("failed to hash file: %w", err)
	}

	return &FileInfo{
		Size: stat.Size(),
		Type: mime.String(),
		Hash: hex.EncodeToString(hasher.Sum(nil)),
	}, nil
}
