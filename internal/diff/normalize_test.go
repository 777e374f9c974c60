package diff

import (
	"testing"

	"review-task-automation/internal/bitbucket"
	"review-task-automation/internal/domain"

	"github.com/google/go-cmp/cmp"
)

func TestNormalize(t *testing.T) {
	fd := bitbucket.FileDiff{
		Diffs: []bitbucket.Diff{
			{
				Hunks: []bitbucket.Hunk{
					{
						Segments: []bitbucket.Segment{
							{Type: "CONTEXT", Lines: []bitbucket.SegmentLine{{Line: "package foo"}}},
							{Type: "REMOVED", Lines: []bitbucket.SegmentLine{{Line: "old line"}}},
							{Type: "ADDED", Lines: []bitbucket.SegmentLine{{Line: "new line 1"}, {Line: "new line 2"}}},
						},
					},
					{
						Segments: []bitbucket.Segment{
							{Type: "ADDED", Lines: []bitbucket.SegmentLine{{Line: "second hunk"}}},
						},
					},
				},
			},
		},
	}

	want := []domain.LineEdit{
		{Kind: domain.LineContext, Text: "package foo"},
		{Kind: domain.LineRemoved, Text: "old line"},
		{Kind: domain.LineAdded, Text: "new line 1"},
		{Kind: domain.LineAdded, Text: "new line 2"},
		{Kind: domain.LineAdded, Text: "second hunk"},
	}

	got := Normalize(fd)
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Normalize() mismatch (-want +got):\n%s", diff)
	}
}

func TestNormalizeEmptyDiff(t *testing.T) {
	tests := []struct {
		name string
		fd   bitbucket.FileDiff
	}{
		{name: "no diffs at all", fd: bitbucket.FileDiff{}},
		{name: "diff without hunks (binary or rename-only)", fd: bitbucket.FileDiff{Diffs: []bitbucket.Diff{{}}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Normalize(tt.fd); len(got) != 0 {
				t.Errorf("Normalize() = %v, want empty", got)
			}
		})
	}
}

func TestNormalizeUnknownSegmentType(t *testing.T) {
	fd := bitbucket.FileDiff{
		Diffs: []bitbucket.Diff{{
			Hunks: []bitbucket.Hunk{{
				Segments: []bitbucket.Segment{
					{Type: "SOMETHING_NEW", Lines: []bitbucket.SegmentLine{{Line: "x"}}},
				},
			}},
		}},
	}

	got := Normalize(fd)
	if len(got) != 1 || got[0].Kind != domain.LineContext {
		t.Errorf("Normalize() = %v, want one CONTEXT edit", got)
	}
}
