package push

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/feedhook/feedhook/app/fetch"
)

func TestSendBark(t *testing.T) {
	var gotPath string
	var gotPayload map[string]string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &gotPayload)
		w.Write([]byte(`{"code":200}`))
	}))
	defer server.Close()

	s := NewSender(fetch.NewClient("test"))
	resp, err := s.Send(context.Background(), "hello", "world", Config{
		Channel:   "bark",
		ServerURL: server.URL,
		Token:     "devkey123",
	}, "")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if resp.StatusCode != 200 {
		t.Errorf("expected status 200, got %d", resp.StatusCode)
	}
	if gotPath != "/push" {
		t.Errorf("expected path /push, got %q", gotPath)
	}
	if gotPayload["title"] != "hello" || gotPayload["body"] != "world" || gotPayload["device_key"] != "devkey123" {
		t.Errorf("unexpected payload: %v", gotPayload)
	}
}

func TestSendNtfy(t *testing.T) {
	var gotPath, gotTitle, gotBody string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotTitle = r.Header.Get("X-Title")
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)
	}))
	defer server.Close()

	s := NewSender(fetch.NewClient("test"))
	_, err := s.Send(context.Background(), "alert", "feed failed", Config{
		Channel:   "ntfy",
		ServerURL: server.URL,
		Token:     "mytopic",
	}, "")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if gotPath != "/mytopic" {
		t.Errorf("expected path /mytopic, got %q", gotPath)
	}
	if gotTitle != "alert" {
		t.Errorf("expected title header alert, got %q", gotTitle)
	}
	if gotBody != "feed failed" {
		t.Errorf("expected body 'feed failed', got %q", gotBody)
	}
}

func TestSendUnsupportedChannel(t *testing.T) {
	s := NewSender(fetch.NewClient("test"))
	_, err := s.Send(context.Background(), "t", "b", Config{Channel: "pigeon"}, "")
	if !errors.Is(err, ErrUnsupportedChannel) {
		t.Errorf("expected ErrUnsupportedChannel, got %v", err)
	}
}
