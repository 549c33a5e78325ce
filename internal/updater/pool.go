package updater

import "sync"

// runPool runs fn once per item in items, bounded to at most maxWorkers
// concurrent calls, and collects results in input order. It never
// returns early on an individual failure — fn is responsible for
// capturing its own error into the result value.
func runPool[T, R any](items []T, maxWorkers int, fn func(T) R) []R {
	if maxWorkers < 1 {
		maxWorkers = 1
	}

	results := make([]R, len(items))
	sem := make(chan struct{}, maxWorkers)
	var wg sync.WaitGroup

	for i, item := range items {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, item T) {
			defer wg.Done()
			defer func() { <-sem }()
			results[i] = fn(item)
		}(i, item)
	}

	wg.Wait()
	return results
}

// chunk splits items into slices of at most size elements, preserving
// order, matching the RACE_BATCH_SIZE batching used by Updaters U3-U5.
func chunk[T any](items []T, size int) [][]T {
	if size <= 0 {
		size = len(items)
		if size == 0 {
			return nil
		}
	}
	var chunks [][]T
	for start := 0; start < len(items); start += size {
		end := start + size
		if end > len(items) {
			end = len(items)
		}
		chunks = append(chunks, items[start:end])
	}
	return chunks
}
