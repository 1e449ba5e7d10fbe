package dispatcher

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubmit_PreservesOrderPerKey(t *testing.T) {
	d := New[int64]()

	var mu sync.Mutex
	got := map[int64][]int{}
	for i := 0; i < 200; i++ {
		key := int64(i % 4)
		n := i
		require.NoError(t, d.Submit(key, func() {
			if n%7 == 0 {
				time.Sleep(time.Millisecond)
			}
			mu.Lock()
			got[key] = append(got[key], n)
			mu.Unlock()
		}))
	}
	d.Close()

	for key, seq := range got {
		assert.Len(t, seq, 50, "key %d", key)
		for i := 1; i < len(seq); i++ {
			assert.Less(t, seq[i-1], seq[i], "key %d out of order", key)
		}
	}
}

func TestSubmit_NeverOverlapsForSameKey(t *testing.T) {
	d := New[int64]()

	var running, maxRunning int32
	for i := 0; i < 50; i++ {
		require.NoError(t, d.Submit(1, func() {
			n := atomic.AddInt32(&running, 1)
			for {
				m := atomic.LoadInt32(&maxRunning)
				if n <= m || atomic.CompareAndSwapInt32(&maxRunning, m, n) {
					break
				}
			}
			time.Sleep(100 * time.Microsecond)
			atomic.AddInt32(&running, -1)
		}))
	}
	d.Close()

	assert.Equal(t, int32(1), maxRunning)
}

func TestSubmit_DifferentKeysRunConcurrently(t *testing.T) {
	d := New[string]()

	release := make(chan struct{})
	started := make(chan string, 2)
	for _, key := range []string{"a", "b"} {
		k := key
		require.NoError(t, d.Submit(k, func() {
			started <- k
			<-release
		}))
	}

	for i := 0; i < 2; i++ {
		select {
		case <-started:
		case <-time.After(2 * time.Second):
			t.Fatal("jobs for different keys did not run concurrently")
		}
	}
	assert.Equal(t, 2, d.Pending())
	close(release)
	d.Close()
	assert.Zero(t, d.Pending())
}

func TestSubmit_AfterClose(t *testing.T) {
	d := New[int]()
	d.Close()
	assert.ErrorIs(t, d.Submit(1, func() {}), ErrClosed)
}
