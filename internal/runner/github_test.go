package runner

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewGitHubRunner(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		repository string
		wantErr    bool
	}{
		{name: "valid repository", repository: "acme/mirrors"},
		{name: "missing name", repository: "acme/", wantErr: true},
		{name: "missing owner", repository: "/mirrors", wantErr: true},
		{name: "no separator", repository: "mirrors", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			r, err := NewGitHubRunner(tt.repository, "token")
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "acme", r.owner)
			assert.Equal(t, "mirrors", r.repository)
		})
	}
}

func TestGitHubRunnerDispatch(t *testing.T) {
	t.Parallel()

	var gotBody dispatchRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/repos/acme/mirrors/actions/workflows/copy.yml/dispatches", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.Equal(t, "application/vnd.github+json", r.Header.Get("Accept"))

		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	r, err := NewGitHubRunner("acme/mirrors", "secret", WithBaseURL(srv.URL))
	require.NoError(t, err)

	err = r.Dispatch(context.Background(), "copy.yml", "main", map[string]string{
		"source_image": "nginx:latest",
	})
	require.NoError(t, err)
	assert.Equal(t, "main", gotBody.Ref)
	assert.Equal(t, "nginx:latest", gotBody.Inputs["source_image"])
}

func TestGitHubRunnerDispatchError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_ = json.NewEncoder(w).Encode(map[string]string{"message": "Workflow does not have 'workflow_dispatch' trigger"})
	}))
	defer srv.Close()

	r, err := NewGitHubRunner("acme/mirrors", "secret", WithBaseURL(srv.URL))
	require.NoError(t, err)

	err = r.Dispatch(context.Background(), "copy.yml", "main", nil)
	require.Error(t, err)

	var httpErr *HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusUnprocessableEntity, httpErr.StatusCode)
	assert.Contains(t, httpErr.Message, "workflow_dispatch")
}

func TestGitHubRunnerListRecentRuns(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/repos/acme/mirrors/actions/workflows/sync.yml/runs", r.URL.Path)
		assert.Equal(t, "5", r.URL.Query().Get("per_page"))

		_ = json.NewEncoder(w).Encode(workflowRunsResponse{
			WorkflowRuns: []workflowRun{
				{ID: 42, RunNumber: 7, Status: "in_progress", HTMLURL: "https://github.com/acme/mirrors/actions/runs/42"},
				{ID: 41, RunNumber: 6, Status: "completed", Conclusion: "success"},
			},
		})
	}))
	defer srv.Close()

	r, err := NewGitHubRunner("acme/mirrors", "secret", WithBaseURL(srv.URL))
	require.NoError(t, err)

	runs, err := r.ListRecentRuns(context.Background(), "sync.yml")
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, int64(42), runs[0].ID)
	assert.Equal(t, StatusInProgress, runs[0].Status)
	assert.Equal(t, "success", runs[1].Conclusion)
}

func TestGitHubRunnerGetRun(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/repos/acme/mirrors/actions/runs/42" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_ = json.NewEncoder(w).Encode(workflowRun{
			ID:         42,
			RunNumber:  7,
			Status:     "completed",
			Conclusion: "failure",
			HTMLURL:    "https://github.com/acme/mirrors/actions/runs/42",
		})
	}))
	defer srv.Close()

	r, err := NewGitHubRunner("acme/mirrors", "secret", WithBaseURL(srv.URL))
	require.NoError(t, err)

	run, err := r.GetRun(context.Background(), 42)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, run.Status)
	assert.Equal(t, "failure", run.Conclusion)
	assert.Equal(t, int64(7), run.RunNumber)

	_, err = r.GetRun(context.Background(), 99)
	var httpErr *HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusNotFound, httpErr.StatusCode)
}
