package analysis

import (
	"fmt"

	"review-task-automation/internal/domain"
)

// ChangeVolume returns an analyzer that counts ADDED lines in js and java
// files (two passes, one shared threshold). When the combined count exceeds
// the threshold it emits a single finding asking for a test coverage check;
// a count exactly at the threshold emits nothing.
func ChangeVolume(threshold int) Analyzer {
	return func(files []domain.ChangedFile) []domain.Finding {
		total := countAddedLines(files, "js") + countAddedLines(files, "java")
		if total <= threshold {
			return nil
		}
		return []domain.Finding{{
			Message: fmt.Sprintf("More than %d lines of JavaScript or Java were added. Please check whether automated test coverage keeps up.", threshold),
		}}
	}
}
