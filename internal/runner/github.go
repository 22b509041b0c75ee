package runner

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// DefaultAPIBaseURL is the public GitHub REST API endpoint.
const DefaultAPIBaseURL = "https://api.github.com"

const requestTimeout = 30 * time.Second

// HTTPError is returned when the runner API responds with a non-success
// status code.
type HTTPError struct {
	StatusCode int
	Message    string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("runner API returned %d: %s", e.StatusCode, e.Message)
}

// GitHubRunner executes workflows through the GitHub Actions REST API.
type GitHubRunner struct {
	baseURL    string
	owner      string
	repository string
	token      string
	client     *http.Client
}

// GitHubOption configures a GitHubRunner.
type GitHubOption func(*GitHubRunner)

// WithBaseURL points the runner at a non-default API endpoint.
func WithBaseURL(baseURL string) GitHubOption {
	return func(r *GitHubRunner) {
		r.baseURL = strings.TrimSuffix(baseURL, "/")
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(client *http.Client) GitHubOption {
	return func(r *GitHubRunner) {
		r.client = client
	}
}

// NewGitHubRunner creates a runner for the given "owner/name" repository.
func NewGitHubRunner(repository, token string, opts ...GitHubOption) (*GitHubRunner, error) {
	owner, name, ok := strings.Cut(repository, "/")
	if !ok || owner == "" || name == "" {
		return nil, fmt.Errorf("invalid repository %q, expected owner/name", repository)
	}

	r := &GitHubRunner{
		baseURL:    DefaultAPIBaseURL,
		owner:      owner,
		repository: name,
		token:      token,
		client:     &http.Client{Timeout: requestTimeout},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

type dispatchRequest struct {
	Ref    string            `json:"ref"`
	Inputs map[string]string `json:"inputs,omitempty"`
}

type workflowRun struct {
	ID         int64  `json:"id"`
	RunNumber  int64  `json:"run_number"`
	Status     string `json:"status"`
	Conclusion string `json:"conclusion"`
	HTMLURL    string `json:"html_url"`
}

type workflowRunsResponse struct {
	WorkflowRuns []workflowRun `json:"workflow_runs"`
}

// Dispatch triggers a workflow_dispatch event.
func (r *GitHubRunner) Dispatch(ctx context.Context, workflowFile, ref string, inputs map[string]string) error {
	path := fmt.Sprintf("/repos/%s/%s/actions/workflows/%s/dispatches", r.owner, r.repository, workflowFile)

	body, err := json.Marshal(dispatchRequest{Ref: ref, Inputs: inputs})
	if err != nil {
		return fmt.Errorf("failed to encode dispatch request: %w", err)
	}

	resp, err := r.do(ctx, http.MethodPost, path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	// A successful dispatch returns 204 with no body.
	if resp.StatusCode != http.StatusNoContent {
		return apiError(resp)
	}
	return nil
}

// ListRecentRuns returns the newest runs of a workflow.
func (r *GitHubRunner) ListRecentRuns(ctx context.Context, workflowFile string) ([]Run, error) {
	path := fmt.Sprintf("/repos/%s/%s/actions/workflows/%s/runs?per_page=5", r.owner, r.repository, workflowFile)

	resp, err := r.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, apiError(resp)
	}

	var payload workflowRunsResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to decode workflow runs: %w", err)
	}

	runs := make([]Run, 0, len(payload.WorkflowRuns))
	for _, wr := range payload.WorkflowRuns {
		runs = append(runs, toRun(wr))
	}
	return runs, nil
}

// GetRun returns the state of a single run.
func (r *GitHubRunner) GetRun(ctx context.Context, runID int64) (*Run, error) {
	path := fmt.Sprintf("/repos/%s/%s/actions/runs/%d", r.owner, r.repository, runID)

	resp, err := r.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, apiError(resp)
	}

	var wr workflowRun
	if err := json.NewDecoder(resp.Body).Decode(&wr); err != nil {
		return nil, fmt.Errorf("failed to decode workflow run: %w", err)
	}

	run := toRun(wr)
	return &run, nil
}

func (r *GitHubRunner) do(ctx context.Context, method, path string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, r.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("Authorization", "Bearer "+r.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("runner API request failed: %w", err)
	}
	return resp, nil
}

func toRun(wr workflowRun) Run {
	return Run{
		ID:         wr.ID,
		RunNumber:  wr.RunNumber,
		Status:     RunStatus(wr.Status),
		Conclusion: wr.Conclusion,
		URL:        wr.HTMLURL,
	}
}

func apiError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	message := strings.TrimSpace(string(data))
	var body struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(data, &body); err == nil && body.Message != "" {
		message = body.Message
	}
	return &HTTPError{StatusCode: resp.StatusCode, Message: message}
}
