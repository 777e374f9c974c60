package webhook

import (
	"testing"

	"review-task-automation/internal/domain"

	"github.com/google/go-cmp/cmp"
)

func TestParseReviewRef(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    domain.ReviewRef
		wantErr bool
	}{
		{
			name: "bitbucket server shape",
			payload: `{
				"eventKey": "pr:opened",
				"pullRequest": {
					"id": 101,
					"toRef": {"repository": {"slug": "my-repo", "project": {"key": "PROJ"}}}
				}
			}`,
			want: domain.ReviewRef{ProjectKey: "PROJ", RepoSlug: "my-repo", ID: "101"},
		},
		{
			name: "flattened shape",
			payload: `{
				"id": "55",
				"repository": {"slug": "other", "project": {"key": "OPS"}}
			}`,
			want: domain.ReviewRef{ProjectKey: "OPS", RepoSlug: "other", ID: "55"},
		},
		{
			name:    "missing repository",
			payload: `{"pullRequest": {"id": 3}}`,
			wantErr: true,
		},
		{
			name:    "invalid json",
			payload: `{"pullRequest": `,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseReviewRef([]byte(tt.payload))
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParseReviewRef() = %+v, want error", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseReviewRef() error = %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("ParseReviewRef() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestEventKey(t *testing.T) {
	if got := EventKey([]byte(`{"eventKey":"pr:opened"}`)); got != "pr:opened" {
		t.Errorf("EventKey() = %q, want pr:opened", got)
	}
	if got := EventKey([]byte(`{}`)); got != "" {
		t.Errorf("EventKey() = %q, want empty", got)
	}
}
