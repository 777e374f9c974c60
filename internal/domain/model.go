package domain

import "strings"

// ReviewRef identifies a pull request under review.
// It is derived once from the trigger payload and passed read-only through
// the whole run; every Bitbucket call is scoped by it.
type ReviewRef struct {
	ProjectKey string `json:"project_key"`
	RepoSlug   string `json:"repo_slug"`
	ID         string `json:"id"`
}

// IsValid reports whether all key fields required to address a review are present.
func (r ReviewRef) IsValid() bool {
	return r.ProjectKey != "" && r.RepoSlug != "" && r.ID != ""
}

// Key returns a stable identity string, used for per-review locking and debouncing.
func (r ReviewRef) Key() string {
	return r.ProjectKey + "/" + r.RepoSlug + "/" + r.ID
}

// LineKind classifies a single diff line.
type LineKind string

const (
	LineAdded   LineKind = "ADDED"
	LineRemoved LineKind = "REMOVED"
	LineContext LineKind = "CONTEXT"
)

// LineEdit is one line of a file's diff, in source-diff order.
type LineEdit struct {
	Kind LineKind
	Text string
}

// ChangedFile is one file touched by the review. Lines is populated by the
// diff normalizer after the change listing; analyzers must treat it as
// read-only.
type ChangedFile struct {
	Path      string
	Name      string
	Extension string // lower-cased, no dot
	Lines     []LineEdit
}

// Finding is one advisory observation produced by an analyzer.
// Findings are never deduplicated across analyzers.
type Finding struct {
	Message string `json:"message"`
}

// TaskState is the lifecycle state of a review task. The service only ever
// creates tasks in TaskOpen; resolving them is owned by Bitbucket.
type TaskState string

const (
	TaskOpen     TaskState = "OPEN"
	TaskResolved TaskState = "RESOLVED"
)

// Task is a persisted action item anchored to the tracking comment.
type Task struct {
	Text  string
	State TaskState
}

// TrackingComment is the single comment that anchors all generated tasks for
// a review. It is identified by exact text match, never by a stored id.
type TrackingComment struct {
	ID    int64
	Text  string
	Tasks []Task
}

// NormalizeExtension lower-cases a file extension and strips a leading dot.
// Analyzers compare extensions case-sensitively, so this must be applied at
// the change-listing boundary.
func NormalizeExtension(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}
