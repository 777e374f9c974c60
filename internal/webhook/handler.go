// Package webhook receives Bitbucket Server webhook events and turns them
// into analysis runs.
package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"runtime/debug"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"review-task-automation/internal/config"
	"review-task-automation/internal/domain"
	"review-task-automation/internal/metrics"
	"review-task-automation/internal/processor"
	isync "review-task-automation/internal/sync"
)

// runTimeout bounds one background analysis run end to end.
const runTimeout = 5 * time.Minute

// Handler handles incoming Bitbucket webhook events.
//
// pr:opened triggers a run immediately; pr:from_ref_updated is debounced per
// review so a burst of pushes only runs the analysis once, after the burst
// settles. All other events are ignored.
type Handler struct {
	proc     processor.Processor
	config   *config.Config
	debounce *isync.Debouncer
	sem      chan struct{} // Semaphore to limit concurrent runs
	wg       sync.WaitGroup
}

// NewHandler creates a webhook handler.
func NewHandler(cfg *config.Config, proc processor.Processor) *Handler {
	return &Handler{
		proc:     proc,
		config:   cfg,
		debounce: isync.NewDebouncer(cfg.Webhook.DebounceDelay),
		sem:      make(chan struct{}, cfg.Server.ConcurrencyLimit),
	}
}

// WaitForCompletion blocks until all background analysis runs complete.
func (h *Handler) WaitForCompletion() {
	h.wg.Wait()
}

// ServeHTTP handles incoming webhook requests.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	slog.Debug("received webhook request", "method", r.Method, "content_length", r.ContentLength)
	metrics.WebhookRequests.WithLabelValues("received").Inc()

	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.config.Server.MaxBodySize)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		slog.Warn("read body failed", "error", err)
		http.Error(w, "Error reading request body", http.StatusBadRequest)
		metrics.WebhookRequests.WithLabelValues("error_read").Inc()
		return
	}

	if h.config.Server.WebhookSecret != "" {
		signature := r.Header.Get("X-Hub-Signature")
		if signature == "" || !verifySignature(body, signature, h.config.Server.WebhookSecret) {
			slog.Warn("webhook signature rejected")
			http.Error(w, "Invalid signature", http.StatusUnauthorized)
			metrics.WebhookRequests.WithLabelValues("invalid_signature").Inc()
			return
		}
	}

	if !utf8.Valid(body) {
		slog.Warn("request body is not valid utf-8")
		http.Error(w, "Invalid encoding", http.StatusBadRequest)
		metrics.WebhookRequests.WithLabelValues("invalid_encoding").Inc()
		return
	}

	ref, err := ParseReviewRef(body)
	if err != nil {
		slog.Error("payload parse failed", "error", err, "payload_preview", truncateForLog(body, 500))
		metrics.PayloadParseFailures.WithLabelValues("gjson").Inc()
		http.Error(w, "Unrecognized payload", http.StatusBadRequest)
		return
	}

	eventKey := EventKey(body)
	switch eventKey {
	case "pr:opened":
		if !h.Trigger(ref) {
			slog.Warn("concurrency limit, request dropped", "review", ref.Key())
			metrics.WebhookRequests.WithLabelValues("dropped_concurrency").Inc()
			http.Error(w, "Server busy, please retry later", http.StatusTooManyRequests)
			return
		}
	case "pr:from_ref_updated":
		h.debounce.Add(ref.Key(), func() {
			if !h.Trigger(ref) {
				slog.Warn("concurrency limit, debounced run dropped", "review", ref.Key())
				metrics.WebhookRequests.WithLabelValues("dropped_concurrency").Inc()
			}
		})
	default:
		slog.Info("ignoring event", "event_key", eventKey, "review", ref.Key())
		metrics.WebhookRequests.WithLabelValues("ignored_event").Inc()
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "Event ignored")
		return
	}

	metrics.WebhookRequests.WithLabelValues("accepted").Inc()
	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, "Review queued for analysis")
}

// Trigger starts a background analysis run for the review. It returns false
// when the concurrency limit is reached, in which case no run is started.
// Also used by the manual /analyze endpoint.
func (h *Handler) Trigger(ref domain.ReviewRef) bool {
	select {
	case h.sem <- struct{}{}:
	default:
		return false
	}

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		defer func() { <-h.sem }()

		defer func() {
			if r := recover(); r != nil {
				slog.Error("panic recovered in analysis run",
					"panic", r,
					"stack", string(debug.Stack()))
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), runTimeout)
		defer cancel()

		if err := h.proc.RunAnalysis(ctx, ref); err != nil {
			slog.Error("analysis run failed", "error", err, "review", ref.Key())
		}
	}()
	return true
}

// verifySignature validates the HMAC-SHA256 signature of a webhook request.
// Expected header format: sha256=<hex-encoded-signature>
func verifySignature(body []byte, signature, secret string) bool {
	parts := strings.SplitN(signature, "=", 2)
	if len(parts) != 2 {
		return false
	}

	algorithm := parts[0]
	providedSig := parts[1]

	if algorithm != "sha256" {
		slog.Warn("unsupported signature algorithm", "algorithm", algorithm)
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expectedSig := hex.EncodeToString(mac.Sum(nil))

	// Constant-time comparison to prevent timing attacks
	return hmac.Equal([]byte(expectedSig), []byte(providedSig))
}

func truncateForLog(b []byte, max int) string {
	if len(b) > max {
		return string(b[:max]) + "..."
	}
	return string(b)
}
