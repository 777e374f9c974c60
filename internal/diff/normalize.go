// Package diff flattens Bitbucket's nested per-file diff structure into the
// ordered line-edit sequence the analyzers consume.
package diff

import (
	"review-task-automation/internal/bitbucket"
	"review-task-automation/internal/domain"
)

// Normalize walks diffs -> hunks -> segments -> lines and flattens them into
// line edits, preserving source order. A diff with no hunks (binary file,
// rename-only change) yields nil rather than an error: the file simply
// contributes zero edits to the run.
func Normalize(fd bitbucket.FileDiff) []domain.LineEdit {
	var edits []domain.LineEdit
	for _, d := range fd.Diffs {
		if len(d.Hunks) == 0 {
			continue
		}
		for _, h := range d.Hunks {
			for _, s := range h.Segments {
				kind := lineKind(s.Type)
				for _, l := range s.Lines {
					edits = append(edits, domain.LineEdit{Kind: kind, Text: l.Line})
				}
			}
		}
	}
	return edits
}

func lineKind(segmentType string) domain.LineKind {
	switch segmentType {
	case "ADDED":
		return domain.LineAdded
	case "REMOVED":
		return domain.LineRemoved
	default:
		return domain.LineContext
	}
}
