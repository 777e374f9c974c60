// Package bitbucket implements the REST client for Bitbucket Server that the
// analysis run reads changes from and publishes tasks to.
package bitbucket

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"review-task-automation/internal/config"
	"review-task-automation/internal/domain"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// APIError is a non-2xx response from Bitbucket. Transport and
// deserialization failures are returned as plain wrapped errors; both are
// fatal to the current run, the caller never retries.
type APIError struct {
	StatusCode int
	Endpoint   string
	Message    string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("bitbucket %s: status %d: %s", e.Endpoint, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("bitbucket %s: status %d", e.Endpoint, e.StatusCode)
}

// Client talks to the Bitbucket Server 1.0 REST API.
type Client struct {
	baseURL       string
	httpClient    *http.Client
	activityLimit int
}

// NewClient creates a Client from configuration. The token is injected per
// request by TokenRoundTripper.
func NewClient(cfg config.BitbucketConfig) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		httpClient: &http.Client{
			Transport: &TokenRoundTripper{
				Base:       http.DefaultTransport,
				Token:      cfg.Token,
				AuthHeader: cfg.AuthHeader,
			},
			Timeout: cfg.HTTPTimeout,
		},
		activityLimit: cfg.ActivityPageLimit,
	}
}

func (c *Client) prURL(ref domain.ReviewRef, suffix string) string {
	return fmt.Sprintf("%s/rest/api/1.0/projects/%s/repos/%s/pull-requests/%s%s",
		c.baseURL,
		url.PathEscape(ref.ProjectKey),
		url.PathEscape(ref.RepoSlug),
		url.PathEscape(ref.ID),
		suffix)
}

// ListChangedFiles returns the files touched by the review, without diff
// content. Extensions are lower-cased here so analyzer matching stays
// case-sensitive downstream.
func (c *Client) ListChangedFiles(ctx context.Context, ref domain.ReviewRef) ([]domain.ChangedFile, error) {
	var page pagedResponse[changedFileEntry]
	if err := c.getJSON(ctx, c.prURL(ref, "/changes?limit=1000"), &page); err != nil {
		return nil, fmt.Errorf("list changed files: %w", err)
	}

	files := make([]domain.ChangedFile, 0, len(page.Values))
	for _, v := range page.Values {
		files = append(files, domain.ChangedFile{
			Path:      v.Path.ToString,
			Name:      v.Path.Name,
			Extension: domain.NormalizeExtension(v.Path.Extension),
		})
	}
	return files, nil
}

// GetFileDiff fetches the raw diff structure for one file. The path must be
// exactly as returned by ListChangedFiles.
func (c *Client) GetFileDiff(ctx context.Context, ref domain.ReviewRef, path string) (FileDiff, error) {
	var fd FileDiff
	u := c.prURL(ref, "/diff/"+escapeFilePath(path))
	if err := c.getJSON(ctx, u, &fd); err != nil {
		return FileDiff{}, fmt.Errorf("get diff for %s: %w", path, err)
	}
	return fd, nil
}

// GetActivities fetches the review's activity feed, newest first, up to the
// configured page limit.
func (c *Client) GetActivities(ctx context.Context, ref domain.ReviewRef) ([]Activity, error) {
	var page pagedResponse[Activity]
	u := c.prURL(ref, fmt.Sprintf("/activities?limit=%d", c.activityLimit))
	if err := c.getJSON(ctx, u, &page); err != nil {
		return nil, fmt.Errorf("get activities: %w", err)
	}
	return page.Values, nil
}

// CreateComment posts a top-level comment on the review. The response body
// is discarded: the caller must re-read the activity feed rather than trust
// the create payload.
func (c *Client) CreateComment(ctx context.Context, ref domain.ReviewRef, text string) error {
	body, err := sjson.Set("", "text", text)
	if err != nil {
		return fmt.Errorf("build comment body: %w", err)
	}
	if err := c.postJSON(ctx, c.prURL(ref, "/comments"), body); err != nil {
		return fmt.Errorf("create comment: %w", err)
	}
	return nil
}

// CreateTask creates one OPEN task anchored to the given comment.
func (c *Client) CreateTask(ctx context.Context, ref domain.ReviewRef, commentID int64, text string) error {
	body := ""
	for _, set := range []struct {
		path  string
		value interface{}
	}{
		{"anchor.id", commentID},
		{"anchor.type", "COMMENT"},
		{"reviewId", ref.ID},
		{"text", text},
		{"state", string(domain.TaskOpen)},
	} {
		var err error
		body, err = sjson.Set(body, set.path, set.value)
		if err != nil {
			return fmt.Errorf("build task body: %w", err)
		}
	}
	if err := c.postJSON(ctx, c.baseURL+"/rest/api/1.0/tasks", body); err != nil {
		return fmt.Errorf("create task: %w", err)
	}
	return nil
}

func (c *Client) getJSON(ctx context.Context, u string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return c.apiError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *Client) postJSON(ctx context.Context, u, body string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader([]byte(body)))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return c.apiError(resp)
	}
	// Drain so the connection can be reused
	io.Copy(io.Discard, resp.Body)
	return nil
}

// apiError extracts Bitbucket's {"errors":[{"message":...}]} shape when present.
func (c *Client) apiError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	msg := gjson.GetBytes(raw, "errors.0.message").String()
	slog.Debug("bitbucket request failed",
		"url", resp.Request.URL.Path,
		"status", resp.StatusCode,
		"message", msg)
	return &APIError{
		StatusCode: resp.StatusCode,
		Endpoint:   resp.Request.URL.Path,
		Message:    msg,
	}
}

// escapeFilePath escapes a repository file path for use in a URL while
// keeping the slashes that Bitbucket expects in diff endpoints.
func escapeFilePath(path string) string {
	parts := strings.Split(path, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}

// Ping verifies the configured base URL is reachable and the token is
// accepted. Used by the readiness probe.
func (c *Client) Ping(ctx context.Context) error {
	u := c.baseURL + "/rest/api/1.0/application-properties"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusOK {
		return &APIError{StatusCode: resp.StatusCode, Endpoint: "/rest/api/1.0/application-properties"}
	}
	return nil
}
