package btclient

import (
	"bytes"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/jackpal/bencode-go"
)

// Magnet holds the fields of a magnet URI the pipeline cares about.
type Magnet struct {
	InfoHash    string
	DisplayName string
	Tracker     string
	Size        int64
}

// InfoHash computes the BitTorrent info hash of a .torrent file: the SHA-1 of
// the bencoded info dictionary. Bencoding is canonical, so decoding and
// re-encoding the dictionary reproduces the original bytes.
func InfoHash(torrent []byte) (string, error) {
	decoded, err := bencode.Decode(bytes.NewReader(torrent))
	if err != nil {
		return "", fmt.Errorf("failed to decode torrent file: %w", err)
	}
	dict, ok := decoded.(map[string]interface{})
	if !ok {
		return "", errors.New("torrent file is not a dictionary")
	}
	info, ok := dict["info"]
	if !ok {
		return "", errors.New("torrent file has no info dictionary")
	}

	var buf bytes.Buffer
	if err := bencode.Marshal(&buf, info); err != nil {
		return "", fmt.Errorf("failed to encode info dictionary: %w", err)
	}
	sum := sha1.Sum(buf.Bytes())
	return hex.EncodeToString(sum[:]), nil
}

// ParseMagnet extracts the info hash and optional metadata from a magnet URI.
// Only the first tracker is kept.
func ParseMagnet(magnetURI string) (*Magnet, error) {
	u, err := url.Parse(magnetURI)
	if err != nil {
		return nil, fmt.Errorf("failed to parse magnet URI: %w", err)
	}
	if u.Scheme != "magnet" {
		return nil, fmt.Errorf("not a magnet URI: %q", magnetURI)
	}

	query := u.Query()
	m := &Magnet{
		DisplayName: query.Get("dn"),
		Tracker:     query.Get("tr"),
	}
	if xl := query.Get("xl"); xl != "" {
		if size, err := strconv.ParseInt(xl, 10, 64); err == nil {
			m.Size = size
		}
	}
	for _, xt := range query["xt"] {
		if hash, ok := strings.CutPrefix(xt, "urn:btih:"); ok {
			m.InfoHash = strings.ToLower(hash)
			break
		}
	}
	if m.InfoHash == "" {
		return nil, fmt.Errorf("magnet URI has no info hash: %q", magnetURI)
	}
	return m, nil
}

// BuildMagnet renders a canonical magnet URI for an info hash. The tracker is
// optional; at most one is emitted.
func BuildMagnet(infoHash, displayName, tracker string) string {
	var b strings.Builder
	b.WriteString("magnet:?xt=urn:btih:")
	b.WriteString(strings.ToLower(infoHash))
	if displayName != "" {
		b.WriteString("&dn=")
		b.WriteString(url.QueryEscape(displayName))
	}
	if tracker != "" {
		b.WriteString("&tr=")
		b.WriteString(url.QueryEscape(tracker))
	}
	return b.String()
}

// IsMagnet reports whether a URL is a magnet URI.
func IsMagnet(rawURL string) bool {
	return strings.HasPrefix(rawURL, "magnet:")
}
