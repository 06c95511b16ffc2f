package feed

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDedup_Window(t *testing.T) {
	d := NewDedup(50*time.Millisecond, 0)
	t0 := time.Unix(1700000000, 0)

	assert.False(t, d.Seen("X", t0))
	assert.True(t, d.Seen("X", t0.Add(3*time.Millisecond)))
	assert.True(t, d.Seen("X", t0.Add(49*time.Millisecond)))
	assert.False(t, d.Seen("X", t0.Add(50*time.Millisecond)), "key must be admitted again after the window")
	assert.False(t, d.Seen("Y", t0.Add(50*time.Millisecond)))
}

func TestDedup_ExpiresOldKeys(t *testing.T) {
	d := NewDedup(10*time.Millisecond, 0)
	t0 := time.Unix(1700000000, 0)

	for i := 0; i < 100; i++ {
		d.Seen(fmt.Sprintf("k%d", i), t0)
	}
	assert.Equal(t, 100, d.Len())

	d.Seen("late", t0.Add(time.Second))
	assert.Equal(t, 1, d.Len())
}

func TestDedup_ReinsertedKeySurvivesStaleEntry(t *testing.T) {
	d := NewDedup(10*time.Millisecond, 0)
	t0 := time.Unix(1700000000, 0)

	d.Seen("X", t0)
	assert.False(t, d.Seen("X", t0.Add(10*time.Millisecond)))
	// the first entry expires here, but the second insertion must remain
	assert.True(t, d.Seen("X", t0.Add(15*time.Millisecond)))
}

func TestDedup_MaxKeys(t *testing.T) {
	d := NewDedup(time.Hour, 3)
	t0 := time.Unix(1700000000, 0)

	for _, k := range []string{"a", "b", "c", "d"} {
		assert.False(t, d.Seen(k, t0))
	}
	assert.Equal(t, 3, d.Len())
	assert.False(t, d.Seen("a", t0), "oldest key is dropped at capacity")
	assert.True(t, d.Seen("d", t0))
}

func TestDedup_Concurrent(t *testing.T) {
	d := NewDedup(time.Second, 0)
	now := time.Now()

	var admitted atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for k := 0; k < 500; k++ {
				if !d.Seen(fmt.Sprintf("sig-%d", k), now) {
					admitted.Add(1)
				}
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(500), admitted.Load())
}
