// Package processor orchestrates one analysis run: change retrieval, diff
// normalization, the analyzer pipeline, and task publication.
package processor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"review-task-automation/internal/analysis"
	"review-task-automation/internal/bitbucket"
	"review-task-automation/internal/diff"
	"review-task-automation/internal/domain"
	"review-task-automation/internal/metrics"
	"review-task-automation/internal/storage"
	isync "review-task-automation/internal/sync"

	"golang.org/x/sync/errgroup"
)

// Processor defines the trigger surface exposed to the HTTP layer.
type Processor interface {
	RunAnalysis(ctx context.Context, ref domain.ReviewRef) error
}

// ChangeSource retrieves the list of changed files and per-file diff content.
type ChangeSource interface {
	ListChangedFiles(ctx context.Context, ref domain.ReviewRef) ([]domain.ChangedFile, error)
	GetFileDiff(ctx context.Context, ref domain.ReviewRef, path string) (bitbucket.FileDiff, error)
}

// TaskPublisher persists findings as tasks under the tracking comment.
type TaskPublisher interface {
	EnsureTrackingComment(ctx context.Context, ref domain.ReviewRef) (*domain.TrackingComment, error)
	Publish(ctx context.Context, ref domain.ReviewRef, comment *domain.TrackingComment, findings []domain.Finding) error
}

// AnalysisProcessor runs the full pipeline for one review at a time per
// review key. Any step failing aborts the run; tasks already created by an
// aborted run are not rolled back, so a rerun appends under the same
// tracking comment.
type AnalysisProcessor struct {
	source      ChangeSource
	pipeline    *analysis.Pipeline
	publisher   TaskPublisher
	storage     storage.Repository
	concurrency int
	locks       *isync.KeyLock
}

// NewAnalysisProcessor creates a processor with dependencies injected.
// Storage may be nil; run history is then skipped. diffConcurrency bounds
// concurrent per-file diff fetches; 1 means strictly serial.
func NewAnalysisProcessor(source ChangeSource, pipeline *analysis.Pipeline, publisher TaskPublisher, store storage.Repository, diffConcurrency int) *AnalysisProcessor {
	if diffConcurrency < 1 {
		diffConcurrency = 1
	}
	return &AnalysisProcessor{
		source:      source,
		pipeline:    pipeline,
		publisher:   publisher,
		storage:     store,
		concurrency: diffConcurrency,
		locks:       isync.NewKeyLock(),
	}
}

// RunAnalysis executes one analysis run end to end: ensure tracking comment,
// fetch and normalize the change set, run the analyzers, then publish each
// finding as a task in display order.
func (p *AnalysisProcessor) RunAnalysis(ctx context.Context, ref domain.ReviewRef) error {
	// Two webhook deliveries for the same PR must not interleave task creation
	p.locks.Lock(ref.Key())
	defer p.locks.Unlock(ref.Key())

	start := time.Now()
	slog.Info("analysis run started", "review", ref.Key())
	metrics.AnalysisRunsTotal.WithLabelValues("started").Inc()

	findings, err := p.run(ctx, ref)
	status := "success"
	if err != nil {
		status = "error"
		metrics.AnalysisRunsTotal.WithLabelValues("failed").Inc()
	} else {
		metrics.AnalysisRunsTotal.WithLabelValues("success").Inc()
	}
	metrics.RunDuration.WithLabelValues(status).Observe(time.Since(start).Seconds())

	p.saveRun(ctx, ref, findings, status, time.Since(start))

	if err != nil {
		return err
	}
	slog.Info("analysis run completed", "review", ref.Key(), "findings", len(findings), "duration_ms", time.Since(start).Milliseconds())
	return nil
}

func (p *AnalysisProcessor) run(ctx context.Context, ref domain.ReviewRef) ([]domain.Finding, error) {
	comment, err := p.publisher.EnsureTrackingComment(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("ensure tracking comment: %w", err)
	}

	files, err := p.fetchChangeSet(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("fetch change set: %w", err)
	}

	findings := p.pipeline.Run(files)
	if len(findings) == 0 {
		slog.Info("no findings", "review", ref.Key(), "files", len(files))
		return nil, nil
	}

	if err := p.publisher.Publish(ctx, ref, comment, publishOrder(findings)); err != nil {
		return findings, err
	}
	return findings, nil
}

// fetchChangeSet lists the changed files and fills in each file's normalized
// line edits. Diff fetches run with bounded concurrency but results are
// written by index, so the final file order always matches the change
// listing and analyzer input stays deterministic.
func (p *AnalysisProcessor) fetchChangeSet(ctx context.Context, ref domain.ReviewRef) ([]domain.ChangedFile, error) {
	files, err := p.source.ListChangedFiles(ctx, ref)
	if err != nil {
		return nil, err
	}

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)

	for i := range files {
		i := i
		g.Go(func() error {
			fd, err := p.source.GetFileDiff(gCtx, ref, files[i].Path)
			if err != nil {
				return err
			}
			files[i].Lines = diff.Normalize(fd)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		// A partial file list is unsafe to analyze; abort the whole run
		return nil, err
	}
	return files, nil
}

// publishOrder is the explicit ordering policy at the publishing boundary:
// Bitbucket renders tasks newest-first, so findings are created in the exact
// reverse of pipeline order to make the task list read in analyzer order.
func publishOrder(findings []domain.Finding) []domain.Finding {
	out := make([]domain.Finding, len(findings))
	for i, f := range findings {
		out[len(findings)-1-i] = f
	}
	return out
}

// saveRun persists run history, non-blocking on failure.
func (p *AnalysisProcessor) saveRun(ctx context.Context, ref domain.ReviewRef, findings []domain.Finding, status string, elapsed time.Duration) {
	if p.storage == nil {
		return
	}
	record := &storage.RunRecord{
		ID:         fmt.Sprintf("%s-%s-%s-%d", ref.ProjectKey, ref.RepoSlug, ref.ID, time.Now().UnixNano()),
		Review:     ref,
		Findings:   findings,
		CreatedAt:  time.Now().UTC(),
		DurationMs: elapsed.Milliseconds(),
		Status:     status,
	}
	if err := p.storage.SaveRun(ctx, record); err != nil {
		slog.Error("save run failed", "error", err, "review", ref.Key())
		return
	}
	slog.Debug("run saved", "id", record.ID)
}
