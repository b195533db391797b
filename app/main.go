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

	"github.com/mlitvin/newssift/app/aggregator"
	"github.com/mlitvin/newssift/app/api"
	"github.com/mlitvin/newssift/app/cache"
	"github.com/mlitvin/newssift/app/cfg"
	"github.com/mlitvin/newssift/app/feed"
	"github.com/mlitvin/newssift/app/summarizer"
	"github.com/mlitvin/newssift/app/tasks"
	"github.com/mlitvin/newssift/app/websub"
)

func main() {
	appCfg, err := cfg.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	if appCfg == nil {
		// Help was shown, exit gracefully
		return
	}

	logLevel := slog.LevelInfo
	if appCfg.Debug {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})))

	slog.Info("Starting NewsSift server...", "version", appCfg.Version)

	sources, err := feed.LoadSources(appCfg.FeedsFile)
	if err != nil {
		slog.Error("Failed to load preset feeds", "file", appCfg.FeedsFile, "error", err)
		os.Exit(1)
	}
	slog.Info("Loaded preset feeds", "count", len(sources))

	httpClient := &http.Client{
		Timeout: 30 * time.Second,
	}

	var responseCache feed.ResponseCache
	if appCfg.RedisURL != "" {
		redisCache, err := cache.New(appCfg.RedisURL)
		if err != nil {
			slog.Error("Failed to connect to Redis", "error", err)
			os.Exit(1)
		}
		defer redisCache.Close()
		responseCache = redisCache
		slog.Info("Feed response cache enabled")
	} else {
		slog.Info("Feed response cache disabled (REDIS_URL not set)")
	}

	fetcher := feed.NewFetcher(httpClient, responseCache, appCfg.UserAgent)
	parser := feed.NewParser()
	loader := feed.NewLoader(fetcher, parser)

	registry := websub.NewRegistry()
	subscriber := websub.NewSubscriber(registry, loader, httpClient, appCfg.BaseUrl, sources, appCfg.LeaseSeconds)

	var summaryClient summarizer.Client
	if appCfg.GeminiAPIKey != "" {
		geminiClient, err := summarizer.NewGeminiClient(context.Background(), appCfg.GeminiAPIKey)
		if err != nil {
			slog.Error("Failed to initialize Gemini client", "error", err)
			os.Exit(1)
		}
		summaryClient = geminiClient
		slog.Info("LLM summarization enabled", "model", appCfg.SummaryModel)
	} else {
		slog.Info("LLM summarization disabled (GEMINI_API_KEY not set), using extractive summaries")
	}
	summaryService := summarizer.NewService(summaryClient, appCfg.SummaryModel)

	extractor := feed.NewContentExtractor(httpClient, appCfg.UserAgent)

	agg := aggregator.New(loader, summaryService, extractor)

	slog.Info("Starting background scheduler", "workers", appCfg.WorkerCount)
	scheduler := tasks.NewScheduler(registry, subscriber, sources)
	scheduler.Start()
	defer scheduler.Stop()

	apiHandler := api.NewHandler(agg, subscriber, registry, sources)
	server := api.NewServer(apiHandler, appCfg.APIAccessKey)

	httpServer := &http.Server{
		Addr:         ":" + appCfg.Port,
		Handler:      server,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	serverErrChan := make(chan error, 1)
	go func() {
		slog.Info("Starting HTTP server", "port", appCfg.Port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	slog.Info("NewsSift server started successfully")

	select {
	case sig := <-sigChan:
		slog.Info("Received signal", "signal", sig.String())
	case err := <-serverErrChan:
		slog.Error("Server error", "error", err)
	}

	slog.Info("Shutting down server gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	} else {
		slog.Info("HTTP server stopped")
	}

	slog.Info("NewsSift server shutdown complete")
}
