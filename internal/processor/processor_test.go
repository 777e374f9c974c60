package processor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"review-task-automation/internal/analysis"
	"review-task-automation/internal/bitbucket"
	"review-task-automation/internal/domain"

	"github.com/google/go-cmp/cmp"
)

type fakeSource struct {
	mu        sync.Mutex
	files     []domain.ChangedFile
	diffs     map[string]bitbucket.FileDiff
	listErr   error
	diffErr   error
	diffCalls int
}

func (f *fakeSource) ListChangedFiles(ctx context.Context, ref domain.ReviewRef) ([]domain.ChangedFile, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := make([]domain.ChangedFile, len(f.files))
	copy(out, f.files)
	return out, nil
}

func (f *fakeSource) GetFileDiff(ctx context.Context, ref domain.ReviewRef, path string) (bitbucket.FileDiff, error) {
	if f.diffErr != nil {
		return bitbucket.FileDiff{}, f.diffErr
	}
	f.mu.Lock()
	f.diffCalls++
	f.mu.Unlock()
	return f.diffs[path], nil
}

type fakePublisher struct {
	ensureErr  error
	publishErr error
	ensured    int
	published  []domain.Finding
}

func (f *fakePublisher) EnsureTrackingComment(ctx context.Context, ref domain.ReviewRef) (*domain.TrackingComment, error) {
	f.ensured++
	if f.ensureErr != nil {
		return nil, f.ensureErr
	}
	return &domain.TrackingComment{ID: 1}, nil
}

func (f *fakePublisher) Publish(ctx context.Context, ref domain.ReviewRef, comment *domain.TrackingComment, findings []domain.Finding) error {
	if f.publishErr != nil {
		return f.publishErr
	}
	f.published = append(f.published, findings...)
	return nil
}

var testRef = domain.ReviewRef{ProjectKey: "PROJ", RepoSlug: "repo", ID: "7"}

func addedDiff(lines ...string) bitbucket.FileDiff {
	seg := bitbucket.Segment{Type: "ADDED"}
	for _, l := range lines {
		seg.Lines = append(seg.Lines, bitbucket.SegmentLine{Line: l})
	}
	return bitbucket.FileDiff{Diffs: []bitbucket.Diff{{Hunks: []bitbucket.Hunk{{Segments: []bitbucket.Segment{seg}}}}}}
}

func generatedLines(n int) []string {
	lines := make([]string, n)
	for i := range lines {
		lines[i] = fmt.Sprintf("var x%d = %d;", i, i)
	}
	return lines
}

// The full pipeline against a change set that trips every analyzer: tasks
// must be created in the exact reverse of pipeline order so the Bitbucket
// task list reads in analyzer order.
func TestRunAnalysisPublishesInReversedPipelineOrder(t *testing.T) {
	source := &fakeSource{
		files: []domain.ChangedFile{
			{Path: "web/app.js", Name: "app.js", Extension: "js"},
			{Path: "db/mssql/create.sql", Name: "create.sql", Extension: "sql"},
			{Path: "src/Main.java", Name: "Main.java", Extension: "java"},
		},
		diffs: map[string]bitbucket.FileDiff{
			"web/app.js":          addedDiff(generatedLines(150)...),
			"db/mssql/create.sql": addedDiff("CREATE TABLE foo (id INT)"),
			"src/Main.java":       addedDiff("boolean same = x.equals(y);"),
		},
	}
	pub := &fakePublisher{}
	proc := NewAnalysisProcessor(source, analysis.Default(100), pub, nil, 1)

	if err := proc.RunAnalysis(context.Background(), testRef); err != nil {
		t.Fatalf("RunAnalysis() error = %v", err)
	}

	if len(pub.published) != 5 {
		t.Fatalf("published tasks = %d, want 5", len(pub.published))
	}

	// Reverse of [volume, mssql asymmetry, notify, missing drop, dot equals]
	wantOrder := []string{
		"StringUtils",
		"DROP TABLE",
		"notify the team",
		"Oracle",
		"test coverage",
	}
	for i, sub := range wantOrder {
		if !strings.Contains(pub.published[i].Message, sub) {
			t.Errorf("published[%d] = %q, want substring %q", i, pub.published[i].Message, sub)
		}
	}
}

func TestRunAnalysisSkipsPublishWhenNoFindings(t *testing.T) {
	source := &fakeSource{
		files: []domain.ChangedFile{{Path: "README.md", Name: "README.md", Extension: "md"}},
		diffs: map[string]bitbucket.FileDiff{"README.md": addedDiff("# hello")},
	}
	pub := &fakePublisher{}
	proc := NewAnalysisProcessor(source, analysis.Default(100), pub, nil, 1)

	if err := proc.RunAnalysis(context.Background(), testRef); err != nil {
		t.Fatalf("RunAnalysis() error = %v", err)
	}
	if pub.ensured != 1 {
		t.Errorf("tracking comment ensured %d times, want 1", pub.ensured)
	}
	if len(pub.published) != 0 {
		t.Errorf("published = %v, want none", pub.published)
	}
}

func TestRunAnalysisAbortsWhenTrackingCommentFails(t *testing.T) {
	source := &fakeSource{}
	pub := &fakePublisher{ensureErr: errors.New("feed unavailable")}
	proc := NewAnalysisProcessor(source, analysis.Default(100), pub, nil, 1)

	if err := proc.RunAnalysis(context.Background(), testRef); err == nil {
		t.Fatal("expected error, got nil")
	}
	if source.diffCalls != 0 {
		t.Errorf("diffs fetched after ensure failure = %d, want 0", source.diffCalls)
	}
}

func TestRunAnalysisAbortsOnDiffFailure(t *testing.T) {
	source := &fakeSource{
		files:   []domain.ChangedFile{{Path: "web/app.js", Extension: "js"}},
		diffErr: errors.New("diff fetch failed"),
	}
	pub := &fakePublisher{}
	proc := NewAnalysisProcessor(source, analysis.Default(100), pub, nil, 1)

	if err := proc.RunAnalysis(context.Background(), testRef); err == nil {
		t.Fatal("expected error, got nil")
	}
	if len(pub.published) != 0 {
		t.Errorf("published after diff failure = %v, want none", pub.published)
	}
}

// File order must stay deterministic even when diffs are fetched concurrently.
func TestFetchChangeSetPreservesOrderWithConcurrency(t *testing.T) {
	var files []domain.ChangedFile
	diffs := make(map[string]bitbucket.FileDiff)
	for i := 0; i < 20; i++ {
		path := fmt.Sprintf("src/file%02d.java", i)
		files = append(files, domain.ChangedFile{Path: path, Extension: "java"})
		diffs[path] = addedDiff(fmt.Sprintf("marker %02d", i))
	}
	source := &fakeSource{files: files, diffs: diffs}
	proc := NewAnalysisProcessor(source, analysis.Default(100), &fakePublisher{}, nil, 8)

	got, err := proc.fetchChangeSet(context.Background(), testRef)
	if err != nil {
		t.Fatalf("fetchChangeSet() error = %v", err)
	}

	for i, f := range got {
		want := fmt.Sprintf("marker %02d", i)
		if len(f.Lines) != 1 || f.Lines[0].Text != want {
			t.Errorf("file[%d] lines = %+v, want single line %q", i, f.Lines, want)
		}
	}
}

func TestPublishOrderIsExactReversal(t *testing.T) {
	in := []domain.Finding{{Message: "a"}, {Message: "b"}, {Message: "c"}}
	want := []domain.Finding{{Message: "c"}, {Message: "b"}, {Message: "a"}}

	if diff := cmp.Diff(want, publishOrder(in)); diff != "" {
		t.Errorf("publishOrder() mismatch (-want +got):\n%s", diff)
	}

	// Input must not be mutated
	if diff := cmp.Diff([]domain.Finding{{Message: "a"}, {Message: "b"}, {Message: "c"}}, in); diff != "" {
		t.Errorf("publishOrder() mutated input (-want +got):\n%s", diff)
	}

	if got := publishOrder(nil); len(got) != 0 {
		t.Errorf("publishOrder(nil) = %v, want empty", got)
	}
}
