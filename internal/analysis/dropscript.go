package analysis

import (
	"strings"

	"review-task-automation/internal/domain"
)

// MissingDropScript scans ADDED lines of sql files, case-insensitively, for
// "create table" and "drop table". A create without any drop anywhere in the
// added sql lines produces one finding.
func MissingDropScript(files []domain.ChangedFile) []domain.Finding {
	create := anyAddedLine(files, "sql", func(line string) bool {
		return strings.Contains(strings.ToLower(line), "create table")
	})
	drop := anyAddedLine(files, "sql", func(line string) bool {
		return strings.Contains(strings.ToLower(line), "drop table")
	})

	if create && !drop {
		return []domain.Finding{{
			Message: "A CREATE TABLE statement was added without a matching DROP TABLE. Do the drop scripts need updating?",
		}}
	}
	return nil
}
