package webhook

import (
	"fmt"

	"review-task-automation/internal/domain"

	"github.com/tidwall/gjson"
)

// ParseReviewRef extracts the review identity from a raw Bitbucket webhook
// payload using gjson path probing. Candidate paths are prioritized left to
// right to cope with the shape differences between Bitbucket Server versions.
func ParseReviewRef(body []byte) (domain.ReviewRef, error) {
	if !gjson.ValidBytes(body) {
		return domain.ReviewRef{}, fmt.Errorf("payload is not valid json")
	}

	pathsProjectKey := []string{
		"pullRequest.toRef.repository.project.key",
		"repository.project.key",
		"pullRequest.fromRef.repository.project.key",
		"project.key",
	}

	pathsRepoSlug := []string{
		"pullRequest.toRef.repository.slug",
		"repository.slug",
		"repository.name",
		"pullRequest.fromRef.repository.slug",
	}

	pathsID := []string{
		"pullRequest.id",
		"id",
	}

	ref := domain.ReviewRef{
		ProjectKey: probe(body, pathsProjectKey).String(),
		RepoSlug:   probe(body, pathsRepoSlug).String(),
		ID:         probe(body, pathsID).String(),
	}

	if !ref.IsValid() {
		return ref, fmt.Errorf("payload missing review identity fields: %+v", ref)
	}
	return ref, nil
}

// EventKey returns the Bitbucket event key of the payload, empty if absent.
func EventKey(body []byte) string {
	return gjson.GetBytes(body, "eventKey").String()
}

// probe returns the first existing result among the candidate paths.
func probe(body []byte, paths []string) gjson.Result {
	for _, p := range paths {
		if res := gjson.GetBytes(body, p); res.Exists() {
			return res
		}
	}
	return gjson.Result{}
}
