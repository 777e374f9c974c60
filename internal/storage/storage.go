package storage

import (
	"context"
	"time"

	"review-task-automation/internal/domain"
)

// RunRecord is one persisted analysis run.
type RunRecord struct {
	ID         string           `json:"id"`
	Review     domain.ReviewRef `json:"review"`
	Findings   []domain.Finding `json:"findings"`
	CreatedAt  time.Time        `json:"created_at"`
	DurationMs int64            `json:"duration_ms"`
	Status     string           `json:"status"` // success, error
}

// Repository persists analysis run history.
type Repository interface {
	SaveRun(ctx context.Context, record *RunRecord) error
	GetRun(ctx context.Context, id string) (*RunRecord, error)
	ListRunsByReview(ctx context.Context, ref domain.ReviewRef) ([]*RunRecord, error)
	ListRecentRuns(ctx context.Context, limit int) ([]*RunRecord, error)
	Close() error
}
