// Package batch splits a large generation request into bounded sub-batches,
// runs them with a concurrency ceiling, and merges the results with
// first-occurrence deduplication.
package batch

import (
	"context"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// Exec performs one full request/response/parse cycle for a sub-batch and
// returns its items. index is the sub-batch position in submission order and
// size the item count it should request.
type Exec[T any] func(ctx context.Context, index, size int) ([]T, error)

// Options configure one orchestration run.
type Options struct {
	// BatchSize is the fixed per-sub-batch item count B. Every sub-batch
	// requests exactly B items, including the last one; overshoot beyond the
	// total is corrected at merge time.
	BatchSize int

	// Concurrency bounds the number of sub-batch requests in flight.
	Concurrency int

	Logger *zap.Logger
}

const (
	defaultBatchSize   = 20
	defaultConcurrency = 3
)

// Run generates up to total items. keyFn yields the dedup key for an item;
// the first occurrence of each key wins, in cross-batch submission order.
//
// A failing sub-batch contributes zero items: its error is logged and
// swallowed, and sibling sub-batches keep running. Run therefore never
// returns an error; a shortfall (including an empty result when every
// sub-batch fails) is a valid return the caller may treat as degraded
// success.
func Run[T any](ctx context.Context, total int, opts Options, exec Exec[T], keyFn func(T) string) []T {
	if total <= 0 {
		return nil
	}

	size := opts.BatchSize
	if size <= 0 {
		size = defaultBatchSize
	}
	ceiling := opts.Concurrency
	if ceiling <= 0 {
		ceiling = defaultConcurrency
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	numBatches := (total + size - 1) / size
	results := make([][]T, numBatches)

	sem := semaphore.NewWeighted(int64(ceiling))
	var wg sync.WaitGroup

	for i := 0; i < numBatches; i++ {
		wg.Add(1)
		go func(index int) {
			defer wg.Done()

			if err := sem.Acquire(ctx, 1); err != nil {
				logger.Warn("sub-batch skipped", zap.Int("index", index), zap.Error(err))
				return
			}
			defer sem.Release(1)

			items, err := exec(ctx, index, size)
			if err != nil {
				logger.Warn("sub-batch failed",
					zap.Int("index", index),
					zap.Int("size", size),
					zap.Error(err))
				return
			}
			results[index] = items
		}(i)
	}
	wg.Wait()

	return merge(results, total, keyFn)
}

// merge concatenates surviving sub-batch results in submission order,
// drops later duplicates of an already-seen dedup key, and trims to total.
func merge[T any](results [][]T, total int, keyFn func(T) string) []T {
	seen := make(map[string]struct{}, total)
	out := make([]T, 0, total)

	for _, items := range results {
		for _, item := range items {
			key := keyFn(item)
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, item)
			if len(out) == total {
				return out
			}
		}
	}
	return out
}
