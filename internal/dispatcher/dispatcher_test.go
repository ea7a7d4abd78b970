package dispatcher

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// TestEachRespectsLimit never lets more than the limit run at once.
func TestEachRespectsLimit(t *testing.T) {
	t.Parallel()

	d := New(2)
	var inFlight, peak atomic.Int32
	var done atomic.Int32
	Each(context.Background(), d, []int{1, 2, 3, 4, 5}, func(_ context.Context, _ int) {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		inFlight.Add(-1)
		done.Add(1)
	})

	require.Equal(t, int32(5), done.Load())
	require.LessOrEqual(t, peak.Load(), int32(2))
	require.Equal(t, int32(2), peak.Load())
}

// TestEachVisitsEveryItem waits for all tasks, one per item.
func TestEachVisitsEveryItem(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	seen := map[string]bool{}
	Each(context.Background(), New(3), []string{"a", "b", "c", "d"}, func(_ context.Context, s string) {
		mu.Lock()
		defer mu.Unlock()
		seen[s] = true
	})
	require.Len(t, seen, 4)
}

// TestNewClampsLimit falls back to one permit for non-positive values.
func TestNewClampsLimit(t *testing.T) {
	t.Parallel()

	require.Equal(t, 1, New(0).Limit())
	require.Equal(t, 1, New(-4).Limit())
	require.Equal(t, 7, New(7).Limit())
}

// TestEachEmpty returns immediately with no items.
func TestEachEmpty(t *testing.T) {
	t.Parallel()

	called := false
	Each(context.Background(), New(2), nil, func(context.Context, int) { called = true })
	require.False(t, called)
}
