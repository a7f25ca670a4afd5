package testutil

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSeqClock_Sequence(t *testing.T) {
	c := NewSeqClock()
	assert.Equal(t, int64(0), c.Current())
	assert.Equal(t, int64(1), c.Next())
	assert.Equal(t, int64(2), c.Next())
	assert.Equal(t, int64(2), c.Current())

	c.Reset()
	assert.Equal(t, int64(0), c.Current())
	assert.Equal(t, int64(1), c.Next())
}

func TestSeqClock_Concurrent(t *testing.T) {
	c := NewSeqClock()
	const workers, calls = 20, 50

	seen := make([]int64, 0, workers*calls)
	var mu sync.Mutex
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < calls; j++ {
				n := c.Next()
				mu.Lock()
				seen = append(seen, n)
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	unique := make(map[int64]bool, len(seen))
	for _, n := range seen {
		assert.False(t, unique[n], "duplicate %d", n)
		unique[n] = true
	}
	assert.Len(t, unique, workers*calls)
	assert.Equal(t, int64(workers*calls), c.Current())
}
