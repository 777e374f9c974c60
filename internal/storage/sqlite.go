package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"review-task-automation/internal/domain"

	_ "modernc.org/sqlite" // Pure Go driver, CGO-free, compatible with CGO_ENABLED=0
)

type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(dsn string) (*SQLiteRepository, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable wal: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func migrate(db *sql.DB) error {
	schema := `
    CREATE TABLE IF NOT EXISTS analysis_runs (
        id          TEXT PRIMARY KEY,
        project_key TEXT NOT NULL,
        repo_slug   TEXT NOT NULL,
        pr_id       TEXT NOT NULL,
        findings    TEXT NOT NULL,
        created_at  DATETIME DEFAULT CURRENT_TIMESTAMP,
        duration_ms INTEGER,
        status      TEXT NOT NULL
    );
    CREATE INDEX IF NOT EXISTS idx_runs_review ON analysis_runs(project_key, repo_slug, pr_id);
    CREATE INDEX IF NOT EXISTS idx_runs_created ON analysis_runs(created_at);
    `
	_, err := db.Exec(schema)
	return err
}

func (r *SQLiteRepository) SaveRun(ctx context.Context, record *RunRecord) error {
	findings, err := json.Marshal(record.Findings)
	if err != nil {
		return fmt.Errorf("marshal findings: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
        INSERT INTO analysis_runs (id, project_key, repo_slug, pr_id, findings, duration_ms, status, created_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?)
    `, record.ID, record.Review.ProjectKey, record.Review.RepoSlug, record.Review.ID,
		string(findings), record.DurationMs, record.Status, record.CreatedAt)
	return err
}

func (r *SQLiteRepository) GetRun(ctx context.Context, id string) (*RunRecord, error) {
	row := r.db.QueryRowContext(ctx, `
        SELECT id, project_key, repo_slug, pr_id, findings, created_at, duration_ms, status
        FROM analysis_runs WHERE id = ?
    `, id)
	return scanRun(row)
}

func (r *SQLiteRepository) ListRunsByReview(ctx context.Context, ref domain.ReviewRef) ([]*RunRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
        SELECT id, project_key, repo_slug, pr_id, findings, created_at, duration_ms, status
        FROM analysis_runs
        WHERE project_key = ? AND repo_slug = ? AND pr_id = ?
        ORDER BY created_at DESC
    `, ref.ProjectKey, ref.RepoSlug, ref.ID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRuns(rows)
}

func (r *SQLiteRepository) ListRecentRuns(ctx context.Context, limit int) ([]*RunRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
        SELECT id, project_key, repo_slug, pr_id, findings, created_at, duration_ms, status
        FROM analysis_runs
        ORDER BY created_at DESC
        LIMIT ?
    `, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRuns(rows)
}

func (r *SQLiteRepository) Close() error {
	return r.db.Close()
}

// Scanner interface to support both Row and Rows
type Scanner interface {
	Scan(dest ...any) error
}

func scanRun(s Scanner) (*RunRecord, error) {
	var id, projectKey, repoSlug, prID, findingsData, status string
	var createdAt time.Time
	var durationMs int64

	if err := s.Scan(&id, &projectKey, &repoSlug, &prID, &findingsData, &createdAt, &durationMs, &status); err != nil {
		return nil, err
	}

	var findings []domain.Finding
	if err := json.Unmarshal([]byte(findingsData), &findings); err != nil {
		return nil, fmt.Errorf("unmarshal findings: %w", err)
	}

	return &RunRecord{
		ID:         id,
		Review:     domain.ReviewRef{ProjectKey: projectKey, RepoSlug: repoSlug, ID: prID},
		Findings:   findings,
		CreatedAt:  createdAt,
		DurationMs: durationMs,
		Status:     status,
	}, nil
}

func collectRuns(rows *sql.Rows) ([]*RunRecord, error) {
	var runs []*RunRecord
	for rows.Next() {
		record, err := scanRun(rows)
		if err != nil {
			slog.Warn("scan run failed", "error", err)
			continue
		}
		runs = append(runs, record)
	}
	return runs, rows.Err()
}
