package hyperliquid

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNonceMonotonicWithFrozenClock(t *testing.T) {
	fixed := time.UnixMilli(1_700_000_000_000)
	n := &Nonce{now: func() time.Time { return fixed }}

	require.EqualValues(t, 1_700_000_000_000, n.Next())
	require.EqualValues(t, 1_700_000_000_001, n.Next())
	require.EqualValues(t, 1_700_000_000_002, n.Next())

	n.FastForward(1_700_000_000_500)
	require.EqualValues(t, 1_700_000_000_501, n.Next())
	n.FastForward(10)
	require.EqualValues(t, 1_700_000_000_502, n.Next(), "fast forward never moves back")
}

func TestNonceUniqueAcrossGoroutines(t *testing.T) {
	n := NewNonce()
	const workers, per = 8, 2000

	var mu sync.Mutex
	seen := make(map[uint64]struct{}, workers*per)
	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			local := make([]uint64, 0, per)
			prev := uint64(0)
			for range per {
				v := n.Next()
				if v <= prev {
					t.Errorf("nonce went backwards: %d after %d", v, prev)
					return
				}
				prev = v
				local = append(local, v)
			}
			mu.Lock()
			for _, v := range local {
				seen[v] = struct{}{}
			}
			mu.Unlock()
		}()
	}
	wg.Wait()
	require.Len(t, seen, workers*per)
}
