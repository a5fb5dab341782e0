package yoloprep

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestForEach(t *testing.T) {
	t.Parallel()

	for _, workers := range []int{0, 1, 3, 64} {
		workers := workers
		t.Run(fmt.Sprintf("workers=%d", workers), func(t *testing.T) {
			t.Parallel()
			items := make([]int, 100)
			for i := range items {
				items[i] = i + 1
			}

			var sum atomic.Int64
			forEach(workers, items, func(v int) {
				sum.Add(int64(v))
			})
			assert.Equal(t, int64(5050), sum.Load())
		})
	}
}

func TestForEach_NoItems(t *testing.T) {
	t.Parallel()
	called := false
	forEach(4, nil, func(string) { called = true })
	assert.False(t, called)
}

func TestForEach_BoundsConcurrency(t *testing.T) {
	t.Parallel()
	var mu sync.Mutex
	running, peak := 0, 0

	forEach(3, make([]struct{}, 50), func(struct{}) {
		mu.Lock()
		running++
		if running > peak {
			peak = running
		}
		mu.Unlock()

		mu.Lock()
		running--
		mu.Unlock()
	})
	assert.LessOrEqual(t, peak, 3)
}

func TestMissingLog(t *testing.T) {
	t.Parallel()
	m := NewMissingLog()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			m.Add(fmt.Sprintf("img%02d.jpg", i%10))
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 10, m.Len())
	names := m.Names()
	assert.Len(t, names, 10)
	assert.Equal(t, "img00.jpg", names[0])
	assert.Equal(t, "img09.jpg", names[9])
}
