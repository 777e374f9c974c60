package analysis

import (
	"strings"

	"review-task-automation/internal/domain"
)

// DotEqualsUsage looks for ADDED java lines that call .equals directly
// without going through StringUtils on the same line, and emits a single
// finding when any such line exists.
func DotEqualsUsage(files []domain.ChangedFile) []domain.Finding {
	hit := anyAddedLine(files, "java", func(line string) bool {
		return strings.Contains(line, ".equals") && !strings.Contains(line, "StringUtils")
	})

	if !hit {
		return nil
	}
	return []domain.Finding{{
		Message: "Direct .equals calls were added in Java code. Please review whether StringUtils.equals should be used instead.",
	}}
}
