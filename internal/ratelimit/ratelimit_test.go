package ratelimit

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryLimiterCheck(t *testing.T) {
	t.Parallel()

	l := NewMemoryLimiter(time.Hour)
	t.Cleanup(l.Close)

	window := time.Minute

	for i := 0; i < 3; i++ {
		res := l.Check("client-a", window, 3)
		require.True(t, res.Allowed, "request %d should be admitted", i+1)
		assert.Equal(t, 2-i, res.Remaining)
		assert.False(t, res.ResetAt.IsZero())
	}

	res := l.Check("client-a", window, 3)
	assert.False(t, res.Allowed)
	assert.Equal(t, 0, res.Remaining)

	// Other keys are unaffected.
	other := l.Check("client-b", window, 3)
	assert.True(t, other.Allowed)
}

func TestMemoryLimiterWindowExpiry(t *testing.T) {
	t.Parallel()

	l := NewMemoryLimiter(time.Hour)
	t.Cleanup(l.Close)

	window := 20 * time.Millisecond

	for i := 0; i < 2; i++ {
		l.Check("client", window, 2)
	}
	assert.False(t, l.Check("client", window, 2).Allowed)

	time.Sleep(30 * time.Millisecond)

	res := l.Check("client", window, 2)
	assert.True(t, res.Allowed)
	assert.Equal(t, 1, res.Remaining)
}

func TestMemoryLimiterConcurrentAccess(t *testing.T) {
	t.Parallel()

	l := NewMemoryLimiter(time.Hour)
	t.Cleanup(l.Close)

	const (
		workers  = 10
		attempts = 20
		max      = 50
	)

	var wg sync.WaitGroup
	allowed := make([]int, workers)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < attempts; i++ {
				if l.Check("shared", time.Minute, max).Allowed {
					allowed[w]++
				}
			}
		}(w)
	}
	wg.Wait()

	total := 0
	for _, n := range allowed {
		total += n
	}
	assert.Equal(t, max, total)
}

func TestMemoryLimiterCloseIdempotent(t *testing.T) {
	t.Parallel()

	l := NewMemoryLimiter(time.Millisecond)
	l.Close()
	l.Close()
}
