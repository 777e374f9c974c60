package publisher

import (
	"context"
	"errors"
	"testing"

	"review-task-automation/internal/bitbucket"
	"review-task-automation/internal/domain"

	"github.com/google/go-cmp/cmp"
)

type fakeStore struct {
	activities     []bitbucket.Activity
	commentCreates int
	tasks          []string
	taskErr        error
	activitiesErr  error

	// When true, CreateComment makes the sentinel visible on the next
	// activity fetch, mimicking Bitbucket. When false the comment never
	// appears, mimicking a lookup that keeps missing it.
	createTakesEffect bool
}

func (f *fakeStore) GetActivities(ctx context.Context, ref domain.ReviewRef) ([]bitbucket.Activity, error) {
	if f.activitiesErr != nil {
		return nil, f.activitiesErr
	}
	return f.activities, nil
}

func (f *fakeStore) CreateComment(ctx context.Context, ref domain.ReviewRef, text string) error {
	f.commentCreates++
	if f.createTakesEffect {
		f.activities = append(f.activities, bitbucket.Activity{
			Comment: &bitbucket.Comment{ID: 42, Text: text},
		})
	}
	return nil
}

func (f *fakeStore) CreateTask(ctx context.Context, ref domain.ReviewRef, commentID int64, text string) error {
	if f.taskErr != nil {
		return f.taskErr
	}
	f.tasks = append(f.tasks, text)
	return nil
}

var testRef = domain.ReviewRef{ProjectKey: "PROJ", RepoSlug: "repo", ID: "7"}

func TestEnsureTrackingCommentFindsExisting(t *testing.T) {
	store := &fakeStore{
		activities: []bitbucket.Activity{
			{},
			{Comment: &bitbucket.Comment{ID: 11, Text: "unrelated comment"}},
			{Comment: &bitbucket.Comment{ID: 23, Text: TrackingCommentText, Tasks: []bitbucket.CommentTask{
				{Text: "older task", State: "RESOLVED"},
			}}},
		},
	}

	comment, err := New(store).EnsureTrackingComment(context.Background(), testRef)
	if err != nil {
		t.Fatalf("EnsureTrackingComment() error = %v", err)
	}
	if comment.ID != 23 {
		t.Errorf("comment id = %d, want 23", comment.ID)
	}
	if store.commentCreates != 0 {
		t.Errorf("create requests = %d, want 0", store.commentCreates)
	}
	if len(comment.Tasks) != 1 || comment.Tasks[0].State != domain.TaskResolved {
		t.Errorf("existing tasks not carried over: %+v", comment.Tasks)
	}
}

func TestEnsureTrackingCommentCreatesWhenAbsent(t *testing.T) {
	store := &fakeStore{createTakesEffect: true}

	comment, err := New(store).EnsureTrackingComment(context.Background(), testRef)
	if err != nil {
		t.Fatalf("EnsureTrackingComment() error = %v", err)
	}
	if comment.ID != 42 {
		t.Errorf("comment id = %d, want 42", comment.ID)
	}
	if store.commentCreates != 1 {
		t.Errorf("create requests = %d, want 1", store.commentCreates)
	}
}

func TestEnsureTrackingCommentIdempotent(t *testing.T) {
	store := &fakeStore{createTakesEffect: true}
	p := New(store)

	first, err := p.EnsureTrackingComment(context.Background(), testRef)
	if err != nil {
		t.Fatalf("first call error = %v", err)
	}
	second, err := p.EnsureTrackingComment(context.Background(), testRef)
	if err != nil {
		t.Fatalf("second call error = %v", err)
	}

	if first.ID != second.ID {
		t.Errorf("ids differ across calls: %d vs %d", first.ID, second.ID)
	}
	if store.commentCreates != 1 {
		t.Errorf("create requests = %d, want at most 1", store.commentCreates)
	}
}

func TestEnsureTrackingCommentMissingAfterCreate(t *testing.T) {
	store := &fakeStore{createTakesEffect: false}

	_, err := New(store).EnsureTrackingComment(context.Background(), testRef)
	if !errors.Is(err, ErrTrackingCommentMissing) {
		t.Errorf("error = %v, want ErrTrackingCommentMissing", err)
	}
}

func TestEnsureTrackingCommentPropagatesFeedFailure(t *testing.T) {
	store := &fakeStore{activitiesErr: errors.New("boom")}

	_, err := New(store).EnsureTrackingComment(context.Background(), testRef)
	if err == nil {
		t.Fatal("expected error, got nil")
	}
}

func TestPublishPreservesCallerOrder(t *testing.T) {
	store := &fakeStore{}
	comment := &domain.TrackingComment{ID: 5}
	findings := []domain.Finding{
		{Message: "third shown"},
		{Message: "second shown"},
		{Message: "first shown"},
	}

	if err := New(store).Publish(context.Background(), testRef, comment, findings); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	want := []string{"third shown", "second shown", "first shown"}
	if diff := cmp.Diff(want, store.tasks); diff != "" {
		t.Errorf("task creation order mismatch (-want +got):\n%s", diff)
	}
}

func TestPublishAbortsOnFirstFailure(t *testing.T) {
	store := &fakeStore{taskErr: errors.New("task create failed")}
	comment := &domain.TrackingComment{ID: 5}

	err := New(store).Publish(context.Background(), testRef, comment, []domain.Finding{{Message: "a"}, {Message: "b"}})
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if len(store.tasks) != 0 {
		t.Errorf("tasks created after failure = %d, want 0", len(store.tasks))
	}
}
