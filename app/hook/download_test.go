package hook

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/feedhook/feedhook/app/cfg"
	"github.com/feedhook/feedhook/app/database"
	"github.com/feedhook/feedhook/app/fetch"
)

func newDownloadFixture(t *testing.T) (*fixture, *DownloadSink, *httptest.Server, *atomic.Int32) {
	t.Helper()
	fx := newFixture(t)

	var fetches atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fetches.Add(1)
		w.Write([]byte("audio-bytes"))
	}))
	t.Cleanup(server.Close)

	sink := NewDownloadSink(fetch.NewClient("test"), fx.resourceRepo, fx.pools)
	return fx, sink, server, &fetches
}

func TestDownloadAcquiresAndRecords(t *testing.T) {
	fx, sink, server, fetches := newDownloadFixture(t)

	h := fx.addHook(t, database.HookTypeDownload, DownloadConfig{Suffixes: "mp3"}, nil, false)
	articles := fx.insertArticles(t, &database.Article{
		GUID: "g1", Title: "episode",
		Content: `<p>listen <a href="` + server.URL + `/ep1.mp3">here</a></p>`,
	})

	if err := sink.Handle(context.Background(), fx.feed, h, articles); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if fetches.Load() != 1 {
		t.Fatalf("Expected one fetch, got %d", fetches.Load())
	}

	resource, err := fx.resourceRepo.GetByURLAndUser(server.URL+"/ep1.mp3", fx.userID)
	if err != nil {
		t.Fatalf("Failed to look up resource: %v", err)
	}
	if resource == nil {
		t.Fatal("Expected a resource record")
	}
	if resource.Status != database.StatusSuccess {
		t.Errorf("Expected status success, got %q", resource.Status)
	}
	sum := md5.Sum([]byte("audio-bytes"))
	if resource.Hash != hex.EncodeToString(sum[:]) {
		t.Errorf("Expected md5 of the payload, got %q", resource.Hash)
	}
	if _, err := os.Stat(resource.Path); err != nil {
		t.Errorf("Expected downloaded file on disk: %v", err)
	}

	// A second trigger for the same user is a no-op.
	if err := sink.Handle(context.Background(), fx.feed, h, articles); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if fetches.Load() != 1 {
		t.Errorf("Expected no second fetch, got %d", fetches.Load())
	}
}

func TestDownloadCrossUserClone(t *testing.T) {
	fx, sink, server, fetches := newDownloadFixture(t)

	url := server.URL + "/shared.mp3"
	otherID := fx.addUser(t, "other")
	existing := &database.Resource{
		UserID: otherID, URL: url, Name: "abc.mp3", Path: "/elsewhere/abc.mp3",
		Status: database.StatusSuccess, Size: 11, Type: "audio/mpeg", Hash: "hash-1",
	}
	if err := fx.resourceRepo.InsertResource(existing); err != nil {
		t.Fatalf("Failed to seed shared resource: %v", err)
	}

	h := fx.addHook(t, database.HookTypeDownload, DownloadConfig{Suffixes: "mp3"}, nil, false)
	articles := fx.insertArticles(t, &database.Article{
		GUID: "g1", Content: `<audio src="` + url + `"></audio>`,
	})

	if err := sink.Handle(context.Background(), fx.feed, h, articles); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if fetches.Load() != 0 {
		t.Errorf("Expected no fetch for a cloned resource, got %d", fetches.Load())
	}

	clone, err := fx.resourceRepo.GetByURLAndUser(url, fx.userID)
	if err != nil {
		t.Fatalf("Failed to look up clone: %v", err)
	}
	if clone == nil {
		t.Fatal("Expected a cloned resource for the second user")
	}
	if clone.Status != database.StatusSuccess || clone.Hash != "hash-1" {
		t.Errorf("Expected success clone with shared hash, got %+v", clone)
	}
	if clone.Path != "" {
		t.Errorf("Expected clone without physical path, got %q", clone.Path)
	}
}

func TestDownloadCloneRespectsSkipList(t *testing.T) {
	fx, sink, server, _ := newDownloadFixture(t)

	url := server.URL + "/blocked.mp3"
	otherID := fx.addUser(t, "other")
	existing := &database.Resource{
		UserID: otherID, URL: url, Status: database.StatusSuccess, Hash: "blocked-hash",
	}
	if err := fx.resourceRepo.InsertResource(existing); err != nil {
		t.Fatalf("Failed to seed shared resource: %v", err)
	}

	h := fx.addHook(t, database.HookTypeDownload,
		DownloadConfig{Suffixes: "mp3", SkipHashes: []string{"blocked-hash"}}, nil, false)
	articles := fx.insertArticles(t, &database.Article{
		GUID: "g1", Content: `<a href="` + url + `">dl</a>`,
	})

	if err := sink.Handle(context.Background(), fx.feed, h, articles); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	clone, err := fx.resourceRepo.GetByURLAndUser(url, fx.userID)
	if err != nil || clone == nil {
		t.Fatalf("Expected a clone, got %+v, %v", clone, err)
	}
	if clone.Status != database.StatusSkip {
		t.Errorf("Expected status skip for a skip-listed hash, got %q", clone.Status)
	}
}

func TestDownloadSkipListDeletesFile(t *testing.T) {
	fx, sink, server, _ := newDownloadFixture(t)

	url := server.URL + "/unwanted.mp3"
	sum := md5.Sum([]byte("audio-bytes"))
	contentHash := hex.EncodeToString(sum[:])

	h := fx.addHook(t, database.HookTypeDownload,
		DownloadConfig{Suffixes: "mp3", SkipHashes: []string{contentHash}}, nil, false)
	articles := fx.insertArticles(t, &database.Article{
		GUID: "g1", Content: `<a href="` + url + `">dl</a>`,
	})

	if err := sink.Handle(context.Background(), fx.feed, h, articles); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	resource, err := fx.resourceRepo.GetByURLAndUser(url, fx.userID)
	if err != nil || resource == nil {
		t.Fatalf("Expected a resource record, got %+v, %v", resource, err)
	}
	if resource.Status != database.StatusSkip {
		t.Errorf("Expected status skip, got %q", resource.Status)
	}
	if resource.Path != "" {
		t.Errorf("Expected path cleared after deletion, got %q", resource.Path)
	}
	name := fileNameFor(url)
	if _, err := os.Stat(filepath.Join(cfg.Get().DownloadDir, name)); !os.IsNotExist(err) {
		t.Error("Expected skipped file removed from disk")
	}
}

func TestDownloadRecoversExistingFile(t *testing.T) {
	fx, sink, server, fetches := newDownloadFixture(t)

	url := server.URL + "/left-behind.mp3"
	name := fileNameFor(url)
	path := filepath.Join(cfg.Get().DownloadDir, name)
	if err := os.WriteFile(path, []byte("previous-bytes"), 0o644); err != nil {
		t.Fatalf("Failed to pre-create file: %v", err)
	}

	h := fx.addHook(t, database.HookTypeDownload, DownloadConfig{Suffixes: "mp3"}, nil, false)
	articles := fx.insertArticles(t, &database.Article{
		GUID: "g1", Content: `<a href="` + url + `">dl</a>`,
	})

	if err := sink.Handle(context.Background(), fx.feed, h, articles); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if fetches.Load() != 0 {
		t.Errorf("Expected no fetch when the file already exists, got %d", fetches.Load())
	}

	resource, err := fx.resourceRepo.GetByURLAndUser(url, fx.userID)
	if err != nil || resource == nil {
		t.Fatalf("Expected a resource record, got %+v, %v", resource, err)
	}
	if resource.Status != database.StatusSuccess {
		t.Errorf("Expected status success from recovered file, got %q", resource.Status)
	}
	sum := md5.Sum([]byte("previous-bytes"))
	if resource.Hash != hex.EncodeToString(sum[:]) {
		t.Errorf("Expected hash of the on-disk bytes, got %q", resource.Hash)
	}
}

func TestDownloadSuffixFilterAndEnclosure(t *testing.T) {
	fx, sink, server, fetches := newDownloadFixture(t)

	h := fx.addHook(t, database.HookTypeDownload, DownloadConfig{Suffixes: "mp3|m4a"}, nil, false)
	articles := fx.insertArticles(t, &database.Article{
		GUID:         "g1",
		EnclosureURL: server.URL + "/enclosed.m4a",
		Content:      `<a href="` + server.URL + `/page.html">not media</a>`,
	})

	if err := sink.Handle(context.Background(), fx.feed, h, articles); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if fetches.Load() != 1 {
		t.Errorf("Expected only the enclosure to download, got %d fetches", fetches.Load())
	}
}
