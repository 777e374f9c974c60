// Package analysis implements the heuristic checks that run over a review's
// change set. Each analyzer is an independent, stateless pass; the pipeline
// concatenates their findings in registration order.
package analysis

import (
	"strings"

	"review-task-automation/internal/domain"
	"review-task-automation/internal/metrics"
)

// Analyzer inspects the full change set and returns zero or more findings.
// Analyzers must not mutate the change set.
type Analyzer func(files []domain.ChangedFile) []domain.Finding

type registered struct {
	name string
	run  Analyzer
}

// Pipeline is an ordered registry of analyzers.
//
// Registration order matters one level up: Bitbucket renders tasks in reverse
// creation order, so the orchestrator publishes the concatenated findings in
// reverse. Register analyzers in the order their tasks should disappear from
// the top of the task list.
type Pipeline struct {
	analyzers []registered
}

// NewPipeline creates an empty pipeline.
func NewPipeline() *Pipeline {
	return &Pipeline{}
}

// Register appends an analyzer to the pipeline. The name labels the
// analyzer's findings counter.
func (p *Pipeline) Register(name string, a Analyzer) {
	p.analyzers = append(p.analyzers, registered{name: name, run: a})
}

// Default returns the pipeline with the built-in analyzers registered.
func Default(volumeThreshold int) *Pipeline {
	p := NewPipeline()
	p.Register("change_volume", ChangeVolume(volumeThreshold))
	p.Register("cross_database_synergy", CrossDatabaseSynergy)
	p.Register("missing_drop_script", MissingDropScript)
	p.Register("dot_equals_usage", DotEqualsUsage)
	return p
}

// Run executes every registered analyzer against the change set and
// concatenates their findings in registration order.
func (p *Pipeline) Run(files []domain.ChangedFile) []domain.Finding {
	var findings []domain.Finding
	for _, a := range p.analyzers {
		out := a.run(files)
		if len(out) > 0 {
			metrics.FindingsTotal.WithLabelValues(a.name).Add(float64(len(out)))
		}
		findings = append(findings, out...)
	}
	return findings
}

// Len returns the number of registered analyzers.
func (p *Pipeline) Len() int {
	return len(p.analyzers)
}

// countAddedLines counts ADDED lines across files with exactly the given
// extension.
func countAddedLines(files []domain.ChangedFile, ext string) int {
	count := 0
	for i := range files {
		if files[i].Extension != ext {
			continue
		}
		for _, e := range files[i].Lines {
			if e.Kind == domain.LineAdded {
				count++
			}
		}
	}
	return count
}

// anyAddedLine reports whether any ADDED line of a file with the given
// extension satisfies match.
func anyAddedLine(files []domain.ChangedFile, ext string, match func(string) bool) bool {
	for i := range files {
		if files[i].Extension != ext {
			continue
		}
		for _, e := range files[i].Lines {
			if e.Kind == domain.LineAdded && match(e.Text) {
				return true
			}
		}
	}
	return false
}

// anyPathContains reports whether any changed file's path contains the given
// substring. Deliberately a substring match, not a path-segment match.
func anyPathContains(files []domain.ChangedFile, sub string) bool {
	for i := range files {
		if strings.Contains(files[i].Path, sub) {
			return true
		}
	}
	return false
}
