package yoloprep

import (
	"runtime"
	"sync"
)

// defaultWorkers is the number of goroutines per stage when none is configured. Work items do
// file I/O, so the pool is larger than the CPU count.
func defaultWorkers() int {
	return 2 * runtime.NumCPU()
}

// forEach calls fn for every item using at most numWorkers goroutines and returns when all calls
// have finished.
func forEach[T any](numWorkers int, items []T, fn func(T)) {
	if numWorkers <= 0 {
		numWorkers = defaultWorkers()
	}
	if len(items) < numWorkers {
		numWorkers = len(items)
	}
	if numWorkers == 0 {
		return
	}

	workQueue := make(chan T, 2*numWorkers)
	var wg sync.WaitGroup

	wg.Add(numWorkers)
	for i := 0; i < numWorkers; i++ {
		go func() {
			defer wg.Done()
			for item := range workQueue {
				fn(item)
			}
		}()
	}

	// Feed the work queue.
	for _, item := range items {
		workQueue <- item
	}
	close(workQueue)

	wg.Wait()
}
