// Package publisher turns analyzer findings into Bitbucket tasks anchored to
// a single deduplicated tracking comment.
package publisher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"review-task-automation/internal/bitbucket"
	"review-task-automation/internal/domain"
	"review-task-automation/internal/metrics"
)

// TrackingCommentText is the sentinel text of the comment that anchors all
// generated tasks. Lookup is by exact text match, so the comment survives
// restarts with no other persisted state. Changing this string orphans
// existing tracking comments.
const TrackingCommentText = "Automated review findings. Please work through the tasks attached to this comment."

// ErrTrackingCommentMissing means the sentinel comment could not be found in
// the activity feed even after creating it. Without it there is no anchor for
// tasks, so the run must abort.
var ErrTrackingCommentMissing = errors.New("tracking comment not found after creation")

// CommentStore is the slice of the Bitbucket client the publisher depends on.
type CommentStore interface {
	GetActivities(ctx context.Context, ref domain.ReviewRef) ([]bitbucket.Activity, error)
	CreateComment(ctx context.Context, ref domain.ReviewRef, text string) error
	CreateTask(ctx context.Context, ref domain.ReviewRef, commentID int64, text string) error
}

// Publisher persists findings as review tasks.
type Publisher struct {
	store CommentStore
}

// New creates a Publisher backed by the given store.
func New(store CommentStore) *Publisher {
	return &Publisher{store: store}
}

// EnsureTrackingComment finds the review's tracking comment, creating it
// first if absent. The create response is never trusted: after creating, the
// activity feed is re-read and the comment located by text again. Repeated
// calls are idempotent; once the comment exists it is always found, never
// recreated.
func (p *Publisher) EnsureTrackingComment(ctx context.Context, ref domain.ReviewRef) (*domain.TrackingComment, error) {
	comment, err := p.findTrackingComment(ctx, ref)
	if err != nil {
		return nil, err
	}
	if comment != nil {
		slog.Debug("tracking comment found", "review", ref.Key(), "comment_id", comment.ID)
		return comment, nil
	}

	slog.Info("creating tracking comment", "review", ref.Key())
	if err := p.store.CreateComment(ctx, ref, TrackingCommentText); err != nil {
		return nil, fmt.Errorf("create tracking comment: %w", err)
	}

	comment, err = p.findTrackingComment(ctx, ref)
	if err != nil {
		return nil, err
	}
	if comment == nil {
		return nil, ErrTrackingCommentMissing
	}
	return comment, nil
}

// Publish creates one OPEN task per finding, anchored to the tracking
// comment, in exactly the order given. Requests are issued strictly
// sequentially so that creation order at Bitbucket matches call order; the
// caller has already applied the display-order reversal.
func (p *Publisher) Publish(ctx context.Context, ref domain.ReviewRef, comment *domain.TrackingComment, findings []domain.Finding) error {
	for _, f := range findings {
		if err := p.store.CreateTask(ctx, ref, comment.ID, f.Message); err != nil {
			metrics.TaskCreateFailures.WithLabelValues("api_error").Inc()
			return fmt.Errorf("publish task: %w", err)
		}
	}
	slog.Info("tasks published", "review", ref.Key(), "count", len(findings))
	return nil
}

func (p *Publisher) findTrackingComment(ctx context.Context, ref domain.ReviewRef) (*domain.TrackingComment, error) {
	activities, err := p.store.GetActivities(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("scan activity feed: %w", err)
	}

	for _, a := range activities {
		if a.Comment == nil || a.Comment.Text != TrackingCommentText {
			continue
		}
		tc := &domain.TrackingComment{
			ID:   a.Comment.ID,
			Text: a.Comment.Text,
		}
		for _, t := range a.Comment.Tasks {
			tc.Tasks = append(tc.Tasks, domain.Task{Text: t.Text, State: domain.TaskState(t.State)})
		}
		return tc, nil
	}
	return nil, nil
}
