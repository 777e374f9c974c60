package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/natefinch/lumberjack.v2"

	"review-task-automation/internal/analysis"
	"review-task-automation/internal/bitbucket"
	"review-task-automation/internal/config"
	"review-task-automation/internal/domain"
	"review-task-automation/internal/processor"
	"review-task-automation/internal/publisher"
	"review-task-automation/internal/storage"
	"review-task-automation/internal/webhook"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {

	// Local development convenience; ignored when no .env exists
	_ = godotenv.Load()

	// Load configuration first
	cfg := config.LoadConfig()

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(1)
	}

	// Setup structured logging with configurable level, format, and output
	logger, logCleanup := setupLogger(cfg)
	defer logCleanup()
	slog.SetDefault(logger)

	// Bitbucket REST client
	bbClient := bitbucket.NewClient(cfg.Bitbucket)

	// Verify Bitbucket connectivity before accepting work
	if err := bbClient.Ping(context.Background()); err != nil {
		slog.Error("bitbucket health check failed", "error", err)
		os.Exit(1)
	}

	// Initialize storage
	var store storage.Repository
	if cfg.Storage.Driver == "sqlite" {
		var err error
		store, err = storage.NewSQLiteRepository(cfg.Storage.DSN)
		if err != nil {
			slog.Error("init storage failed", "error", err)
			os.Exit(1)
		}
		defer store.Close()
	} else if cfg.Storage.Driver != "" {
		slog.Warn("unknown storage driver", "driver", cfg.Storage.Driver)
	}

	// Analyzer pipeline and task publisher
	pipeline := analysis.Default(cfg.Analysis.VolumeThreshold)
	taskPublisher := publisher.New(bbClient)
	slog.Info("pipeline initialized", "analyzers", pipeline.Len())

	// Analysis processor
	proc := processor.NewAnalysisProcessor(bbClient, pipeline, taskPublisher, store, cfg.Analysis.DiffFetchConcurrency)

	// Webhook handler
	webhookHandler := webhook.NewHandler(cfg, proc)

	// Setup HTTP server
	mux := http.NewServeMux()
	mux.Handle("/webhook", webhookHandler)

	// Manual trigger for operators; reruns append tasks under the same
	// tracking comment
	mux.HandleFunc("/analyze", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var req struct {
			ProjectKey    string `json:"projectKey"`
			RepoSlug      string `json:"repoSlug"`
			PullRequestID string `json:"pullRequestId"`
		}
		if err := json.NewDecoder(io.LimitReader(r.Body, 4096)).Decode(&req); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
		ref := domain.ReviewRef{ProjectKey: req.ProjectKey, RepoSlug: req.RepoSlug, ID: req.PullRequestID}
		if !ref.IsValid() {
			http.Error(w, "projectKey, repoSlug and pullRequestId are required", http.StatusBadRequest)
			return
		}
		if !webhookHandler.Trigger(ref) {
			http.Error(w, "Server busy, please retry later", http.StatusTooManyRequests)
			return
		}
		slog.Info("manual analysis triggered", "review", ref.Key())
		w.WriteHeader(http.StatusAccepted)
		fmt.Fprintln(w, "Analysis queued")
	})

	// Run history
	mux.HandleFunc("/runs", func(w http.ResponseWriter, r *http.Request) {
		if store == nil {
			http.Error(w, "Run history disabled", http.StatusNotFound)
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), cfg.Storage.Timeout)
		defer cancel()

		var runs []*storage.RunRecord
		var err error
		ref := domain.ReviewRef{
			ProjectKey: r.URL.Query().Get("project"),
			RepoSlug:   r.URL.Query().Get("repo"),
			ID:         r.URL.Query().Get("pr"),
		}
		if ref.IsValid() {
			runs, err = store.ListRunsByReview(ctx, ref)
		} else {
			limit := 20
			if l, convErr := strconv.Atoi(r.URL.Query().Get("limit")); convErr == nil && l > 0 {
				limit = l
			}
			runs, err = store.ListRecentRuns(ctx, limit)
		}
		if err != nil {
			slog.Error("list runs failed", "error", err)
			http.Error(w, "Storage error", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(runs)
	})

	// Liveness probe (Kubernetes: startup/liveness)
	mux.HandleFunc("/health/live", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	// Readiness probe (Kubernetes: readiness)
	mux.HandleFunc("/health/ready", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		if err := bbClient.Ping(ctx); err != nil {
			slog.Warn("bitbucket unhealthy", "error", err)
			http.Error(w, "Bitbucket Unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("Ready"))
	})

	// Root path handler to catch misconfiguration (e.g. omitted /webhook in URL).
	// Logs a helpful warning but still returns 404 to be semantically correct.
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/" {
			slog.Warn("received request at root path",
				"path", r.URL.Path,
				"method", r.Method,
				"msg", "please configure webhook URL to path '/webhook'",
			)
		}
		http.NotFound(w, r)
	})

	// Prometheus Metrics Endpoint
	mux.Handle("/metrics", promhttp.Handler())

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      mux,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start server in a goroutine
	go func() {
		slog.Info("server starting", "port", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server start failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	slog.Info("server stopping")

	// Give the server 5 seconds to shutdown gracefully
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		slog.Error("server shutdown forced", "error", err)
		os.Exit(1)
	}

	// Wait for background analysis runs
	slog.Info("waiting for runs")
	done := make(chan struct{})
	go func() {
		webhookHandler.WaitForCompletion()
		close(done)
	}()

	select {
	case <-done:
		slog.Info("runs completed")
	case <-time.After(30 * time.Second):
		slog.Warn("run drain timeout, exiting")
	}

	slog.Info("server stopped")
}

// setupLogger creates a logger based on configuration
func setupLogger(cfg *config.Config) (*slog.Logger, func()) {
	var writers []io.Writer
	var closers []io.Closer
	outputs := strings.Split(cfg.Log.Output, ",")

	for _, output := range outputs {
		output = strings.TrimSpace(output)
		if output == "" {
			continue
		}

		var w io.Writer
		switch output {
		case "stderr":
			w = os.Stderr
		case "stdout":
			w = os.Stdout
		default:
			// Use lumberjack for log rotation
			l := &lumberjack.Logger{
				Filename:   output,
				MaxSize:    cfg.Log.Rotation.MaxSize,
				MaxBackups: cfg.Log.Rotation.MaxBackups,
				MaxAge:     cfg.Log.Rotation.MaxAge,
				Compress:   cfg.Log.Rotation.Compress,
			}
			w = l
			closers = append(closers, l)
		}
		writers = append(writers, w)
	}

	if len(writers) == 0 {
		writers = append(writers, os.Stdout)
	}

	multiWriter := io.MultiWriter(writers...)
	opts := &slog.HandlerOptions{Level: cfg.GetLogLevel()}

	var handler slog.Handler
	if cfg.Log.Format == "json" {
		handler = slog.NewJSONHandler(multiWriter, opts)
	} else {
		handler = slog.NewTextHandler(multiWriter, opts)
	}

	cleanup := func() {
		for _, c := range closers {
			c.Close()
		}
	}

	return slog.New(handler), cleanup
}
