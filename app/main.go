package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/feedhook/feedhook/app/ai"
	"github.com/feedhook/feedhook/app/api"
	"github.com/feedhook/feedhook/app/cfg"
	"github.com/feedhook/feedhook/app/database"
	"github.com/feedhook/feedhook/app/feed"
	"github.com/feedhook/feedhook/app/fetch"
	"github.com/feedhook/feedhook/app/hook"
	"github.com/feedhook/feedhook/app/pool"
	"github.com/feedhook/feedhook/app/push"
	"github.com/feedhook/feedhook/app/scheduler"
	"github.com/feedhook/feedhook/app/seed"
)

func main() {
	appCfg, err := cfg.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if appCfg == nil {
		// Help was shown, exit gracefully
		return
	}

	setupLogger(appCfg.Debug)

	slog.Info("Starting Feedhook", "version", appCfg.Version)

	db, err := database.Open(appCfg.DataDir)
	if err != nil {
		slog.Error("Failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	version, dirty, err := database.RunMigrations(db)
	if err != nil {
		slog.Error("Failed to run migrations", "error", err)
		os.Exit(1)
	}
	slog.Info("Database ready", "schema_version", version, "dirty", dirty)

	if err := os.MkdirAll(appCfg.DownloadDir, 0o755); err != nil {
		slog.Error("Failed to create download directory", "error", err)
		os.Exit(1)
	}

	// Repositories
	feedRepo := database.NewFeedRepository(db)
	articleRepo := database.NewArticleRepository(db)
	resourceRepo := database.NewResourceRepository(db)
	logRepo := database.NewWebhookLogRepository(db)
	dailyRepo := database.NewDailyCountRepository(db)
	userRepo := database.NewUserRepository(db)
	hookRepo := database.NewHookRepository(db)

	if appCfg.SeedFile != "" {
		importer := seed.NewImporter(userRepo, feedRepo, hookRepo)
		if err := importer.ImportFile(appCfg.SeedFile); err != nil {
			slog.Error("Failed to import seed file", "path", appCfg.SeedFile, "error", err)
			os.Exit(1)
		}
	}

	// Collaborators and concurrency pools
	pools := pool.NewSet(appCfg.FeedLimit, appCfg.HookLimit, appCfg.DownloadLimit,
		appCfg.BitTorrentLimit, appCfg.AILimit, appCfg.NotificationLimit)
	fetchClient := fetch.NewClient(appCfg.UserAgent)
	pushSender := push.NewSender(fetchClient)
	completer := ai.NewCompleter(appCfg.GeminiAPIKey)

	// The scheduler carries the process lifetime; detached work such as
	// torrent size resolution hangs off its context. The dispatcher is
	// bound to the poller last because the three reference each other.
	poller := feed.NewPoller(feedRepo, articleRepo, fetchClient, feed.NewParser(), nil)
	feedScheduler := scheduler.NewScheduler(feedRepo, poller, pools)

	dispatcher := hook.NewDispatcher(feedRepo, userRepo, logRepo, pools,
		hook.NewNotificationSink(pushSender, articleRepo, logRepo, pools),
		hook.NewWebhookSink(fetchClient, logRepo),
		hook.NewDownloadSink(fetchClient, resourceRepo, pools),
		hook.NewBitTorrentSink(fetchClient, resourceRepo, articleRepo, pools, feedScheduler.Context()),
		hook.NewAISink(completer, articleRepo, pools),
		hook.NewRegularSink(articleRepo),
	)
	poller.SetDispatcher(dispatcher)

	if err := feedScheduler.Start(); err != nil {
		slog.Error("Failed to start scheduler", "error", err)
		os.Exit(1)
	}
	defer feedScheduler.Stop()

	maintenance := scheduler.NewMaintenance(articleRepo, resourceRepo, logRepo, dailyRepo)
	maintenance.Start()
	defer maintenance.Stop()

	// HTTP status surface
	handler := api.NewHandler(feedRepo, articleRepo, resourceRepo, logRepo, dailyRepo, feedScheduler)
	httpServer := &http.Server{
		Addr:         ":" + appCfg.Port,
		Handler:      api.NewServer(handler),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	serverErrChan := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "port", appCfg.Port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	slog.Info("Feedhook started", "scheduled_feeds", feedScheduler.JobCount())

	select {
	case sig := <-sigChan:
		slog.Info("Received signal", "signal", sig.String())
	case err := <-serverErrChan:
		slog.Error("Server error", "error", err)
	}

	slog.Info("Shutting down gracefully")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	// Scheduler and maintenance stop via defer, before db.Close.
	slog.Info("Shutdown complete")
}

func setupLogger(debug bool) {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})))
}
