package bitbucket

// FileDiff is the raw per-file diff structure returned by Bitbucket Server.
// The nesting (diffs -> hunks -> segments -> lines) is preserved as-is; the
// diff normalizer flattens it. A file with no hunks (binary, rename-only)
// comes back with empty Diffs or empty Hunks.
type FileDiff struct {
	Diffs []Diff `json:"diffs"`
}

// Diff is one diff entry within a file diff response.
type Diff struct {
	Hunks []Hunk `json:"hunks"`
}

// Hunk is a contiguous changed region.
type Hunk struct {
	Segments []Segment `json:"segments"`
}

// Segment groups consecutive lines of one change type.
// Type is one of ADDED, REMOVED, CONTEXT.
type Segment struct {
	Type  string        `json:"type"`
	Lines []SegmentLine `json:"lines"`
}

// SegmentLine is a single diff line.
type SegmentLine struct {
	Line string `json:"line"`
}

// Activity is one entry of a pull request's activity feed. Only comment
// activities carry a Comment; everything else is ignored by this service.
type Activity struct {
	Comment *Comment `json:"comment,omitempty"`
}

// Comment is a pull request comment as returned by the activity feed.
type Comment struct {
	ID    int64         `json:"id"`
	Text  string        `json:"text"`
	Tasks []CommentTask `json:"tasks"`
}

// CommentTask is a task attached to a comment.
type CommentTask struct {
	Text  string `json:"text"`
	State string `json:"state"`
}

type pagedResponse[T any] struct {
	Values []T `json:"values"`
}

type changedFileEntry struct {
	Path struct {
		ToString  string `json:"toString"`
		Name      string `json:"name"`
		Extension string `json:"extension"`
	} `json:"path"`
}
