// Package fetch implements the outbound HTTP collaborator: plain fetches
// with optional proxy and per-call timeout, and streaming file downloads
// with content hashing.
package fetch

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const DefaultTimeout = 60 * time.Second

type Client struct {
	userAgent string
}

func NewClient(userAgent string) *Client {
	return &Client{userAgent: userAgent}
}

// Options configures one request.
type Options struct {
	Method   string // GET when empty
	ProxyURL string
	Timeout  time.Duration
	Headers  map[string]string
	Body     []byte
}

// Response carries everything sink handlers record into webhook logs.
type Response struct {
	StatusCode int
	StatusText string
	Body       []byte
	Headers    http.Header
}

// HTTPError is returned for non-2xx responses, keeping the response so
// failure logs can include downstream body and headers.
type HTTPError struct {
	StatusCode int
	StatusText string
	Body       []byte
	Headers    http.Header
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP error: %d %s", e.StatusCode, e.StatusText)
}

// Do performs the request and returns the full response body. Non-2xx
// statuses and transport failures are both errors.
func (c *Client) Do(ctx context.Context, rawURL string, opts Options) (*Response, error) {
	resp, err := c.open(ctx, rawURL, opts)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	statusText := strings.TrimSpace(strings.TrimPrefix(resp.Status, fmt.Sprintf("%d", resp.StatusCode)))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &HTTPError{
			StatusCode: resp.StatusCode,
			StatusText: statusText,
			Body:       body,
			Headers:    resp.Header,
		}
	}

	return &Response{
		StatusCode: resp.StatusCode,
		StatusText: statusText,
		Body:       body,
		Headers:    resp.Header,
	}, nil
}

// open issues the request and hands back the raw response without reading
// the body; the caller owns closing it.
func (c *Client) open(ctx context.Context, rawURL string, opts Options) (*http.Response, error) {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	reqCtx, cancel := context.WithTimeout(ctx, timeout)

	method := opts.Method
	if method == "" {
		method = http.MethodGet
	}

	var body io.Reader
	if len(opts.Body) > 0 {
		body = bytes.NewReader(opts.Body)
	}

	req, err := http.NewRequestWithContext(reqCtx, method, rawURL, body)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("User-Agent", c.userAgent)
	for k, v := range opts.Headers {
		req.Header.Set(k, v)
	}

	httpClient, err := c.httpClient(opts.ProxyURL)
	if err != nil {
		cancel()
		return nil, err
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to fetch %s: %w", rawURL, err)
	}

	// Tie the context's lifetime to the body.
	resp.Body = &cancelReadCloser{ReadCloser: resp.Body, cancel: cancel}
	return resp, nil
}

func (c *Client) httpClient(proxyURL string) (*http.Client, error) {
	if proxyURL == "" {
		return http.DefaultClient, nil
	}
	parsed, err := url.Parse(proxyURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse proxy url: %w", err)
	}
	return &http.Client{
		Transport: &http.Transport{Proxy: http.ProxyURL(parsed)},
	}, nil
}

type cancelReadCloser struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelReadCloser) Close() error {
	err := c.ReadCloser.Close()
	c.cancel()
	return err
}

// IsHTTPURL reports whether s is an http or https URL.
func IsHTTPURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}
