package runner

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRunner serves canned run lists, optionally after a number of empty
// responses.
type fakeRunner struct {
	mu         sync.Mutex
	runs       []Run
	listErr    error
	emptyLists int
	listCalls  int
}

func (f *fakeRunner) Dispatch(_ context.Context, _, _ string, _ map[string]string) error {
	return nil
}

func (f *fakeRunner) ListRecentRuns(_ context.Context, _ string) ([]Run, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.listCalls++
	if f.listErr != nil {
		return nil, f.listErr
	}
	if f.listCalls <= f.emptyLists {
		return nil, nil
	}
	return f.runs, nil
}

func (f *fakeRunner) GetRun(_ context.Context, runID int64) (*Run, error) {
	for _, run := range f.runs {
		if run.ID == runID {
			found := run
			return &found, nil
		}
	}
	return nil, &HTTPError{StatusCode: 404, Message: "not found"}
}

func fastBudget() DiscoverOption {
	return WithDiscoverBudget(time.Millisecond, 100*time.Millisecond)
}

func TestLatestRunID(t *testing.T) {
	t.Parallel()

	f := &fakeRunner{runs: []Run{{ID: 40}, {ID: 39}}}
	id, err := LatestRunID(context.Background(), f, "copy.yml")
	require.NoError(t, err)
	assert.Equal(t, int64(40), id)

	empty := &fakeRunner{}
	id, err = LatestRunID(context.Background(), empty, "copy.yml")
	require.NoError(t, err)
	assert.Zero(t, id)
}

func TestDiscoverNewRun(t *testing.T) {
	t.Parallel()

	t.Run("finds run newer than marker", func(t *testing.T) {
		t.Parallel()

		f := &fakeRunner{runs: []Run{{ID: 41, RunNumber: 6}, {ID: 40, RunNumber: 5}}}
		run, err := DiscoverNewRun(context.Background(), f, "copy.yml", 40, fastBudget())
		require.NoError(t, err)
		require.NotNil(t, run)
		assert.Equal(t, int64(41), run.ID)
	})

	t.Run("retries until run appears", func(t *testing.T) {
		t.Parallel()

		f := &fakeRunner{runs: []Run{{ID: 41}}, emptyLists: 2}
		run, err := DiscoverNewRun(context.Background(), f, "copy.yml", 0, fastBudget())
		require.NoError(t, err)
		require.NotNil(t, run)
		assert.GreaterOrEqual(t, f.listCalls, 3)
	})

	t.Run("returns nil when no new run within budget", func(t *testing.T) {
		t.Parallel()

		f := &fakeRunner{runs: []Run{{ID: 40}}}
		run, err := DiscoverNewRun(context.Background(), f, "copy.yml", 40, fastBudget())
		require.NoError(t, err)
		assert.Nil(t, run)
	})

	t.Run("list failure is permanent", func(t *testing.T) {
		t.Parallel()

		wantErr := errors.New("boom")
		f := &fakeRunner{listErr: wantErr}
		_, err := DiscoverNewRun(context.Background(), f, "copy.yml", 0, fastBudget())
		require.ErrorIs(t, err, wantErr)
		assert.Equal(t, 1, f.listCalls)
	})
}
