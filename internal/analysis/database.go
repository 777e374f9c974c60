package analysis

import (
	"fmt"

	"review-task-automation/internal/domain"
)

// Path markers for the two database dialects. Substring matches against the
// full path on purpose: matching path segments instead would silently change
// behavior for nested layouts.
const (
	mssqlPathMarker  = "/mssql/"
	oraclePathMarker = "/oracle/"
)

// CrossDatabaseSynergy flags asymmetric database script changes. When exactly
// one of the mssql and oracle trees was touched it calls out the untouched
// dialect; whenever either was touched it additionally reminds the author to
// announce pending database changes.
func CrossDatabaseSynergy(files []domain.ChangedFile) []domain.Finding {
	mssql := anyPathContains(files, mssqlPathMarker)
	oracle := anyPathContains(files, oraclePathMarker)

	var findings []domain.Finding
	if mssql != oracle {
		untouched := "Oracle"
		if oracle {
			untouched = "MSSQL"
		}
		findings = append(findings, domain.Finding{
			Message: fmt.Sprintf("Only one database dialect was changed. Please check whether the %s scripts need the same change.", untouched),
		})
	}
	if mssql || oracle {
		findings = append(findings, domain.Finding{
			Message: "Database changes are part of this pull request. Please notify the team before merging.",
		})
	}
	return findings
}
