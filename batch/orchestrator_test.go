package batch

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type item struct {
	Key   string
	Batch int
}

func keyOf(it item) string { return it.Key }

// makeExec returns an executor producing size unique items per sub-batch.
func makeExec(prefix string) Exec[item] {
	return func(ctx context.Context, index, size int) ([]item, error) {
		items := make([]item, size)
		for i := range items {
			items[i] = item{Key: fmt.Sprintf("%s-%d-%d", prefix, index, i), Batch: index}
		}
		return items, nil
	}
}

func TestRun_AllUnique(t *testing.T) {
	tests := []struct {
		name  string
		total int
		opts  Options
		want  int
	}{
		{"exact multiple", 40, Options{BatchSize: 20, Concurrency: 2}, 40},
		{"overshoot trimmed", 45, Options{BatchSize: 20, Concurrency: 2}, 45},
		{"single batch", 5, Options{BatchSize: 20, Concurrency: 2}, 5},
		{"defaults applied", 25, Options{}, 25},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Run(context.Background(), tt.total, tt.opts, makeExec("q"), keyOf)
			assert.Len(t, got, tt.want)
		})
	}
}

func TestRun_ZeroTotal(t *testing.T) {
	got := Run(context.Background(), 0, Options{}, makeExec("q"), keyOf)
	assert.Nil(t, got)
}

func TestRun_SubmissionOrderPreserved(t *testing.T) {
	// Stagger completion so later batches finish first; merge order must
	// still follow submission order, not completion order.
	exec := func(ctx context.Context, index, size int) ([]item, error) {
		time.Sleep(time.Duration(3-index) * 10 * time.Millisecond)
		items := make([]item, size)
		for i := range items {
			items[i] = item{Key: fmt.Sprintf("k-%d-%d", index, i), Batch: index}
		}
		return items, nil
	}

	got := Run(context.Background(), 30, Options{BatchSize: 10, Concurrency: 3}, exec, keyOf)
	require.Len(t, got, 30)
	for i, it := range got {
		assert.Equal(t, i/10, it.Batch, "item %d out of submission order", i)
	}
}

func TestRun_MiddleBatchFails(t *testing.T) {
	// N=45, B=20: three sub-batches of 20. Batch 1 fails entirely; the
	// result holds at most 40 items, drawn from batches 0 and 2 in order.
	exec := func(ctx context.Context, index, size int) ([]item, error) {
		if index == 1 {
			return nil, errors.New("upstream exploded")
		}
		return makeExec("q")(ctx, index, size)
	}

	got := Run(context.Background(), 45, Options{BatchSize: 20, Concurrency: 3}, exec, keyOf)
	require.Len(t, got, 40)
	for i, it := range got {
		assert.NotEqual(t, 1, it.Batch)
		if i < 20 {
			assert.Equal(t, 0, it.Batch)
		} else {
			assert.Equal(t, 2, it.Batch)
		}
	}
}

func TestRun_AllBatchesFail(t *testing.T) {
	exec := func(ctx context.Context, index, size int) ([]item, error) {
		return nil, errors.New("nope")
	}

	got := Run(context.Background(), 45, Options{BatchSize: 20, Concurrency: 2}, exec, keyOf)
	assert.Empty(t, got, "total failure is an empty result, not an error")
}

func TestRun_DuplicatesAcrossBatches(t *testing.T) {
	// Every batch emits the shared key first; only batch 0's copy survives.
	exec := func(ctx context.Context, index, size int) ([]item, error) {
		items := []item{{Key: "shared", Batch: index}}
		for i := 1; i < size; i++ {
			items = append(items, item{Key: fmt.Sprintf("u-%d-%d", index, i), Batch: index})
		}
		return items, nil
	}

	got := Run(context.Background(), 15, Options{BatchSize: 5, Concurrency: 3}, exec, keyOf)

	var shared []item
	for _, it := range got {
		if it.Key == "shared" {
			shared = append(shared, it)
		}
	}
	require.Len(t, shared, 1)
	assert.Equal(t, 0, shared[0].Batch, "first occurrence wins")
	assert.Len(t, got, 13, "two dropped duplicates leave a shortfall")
}

func TestRun_ConcurrencyCeiling(t *testing.T) {
	var inFlight, peak atomic.Int32

	exec := func(ctx context.Context, index, size int) ([]item, error) {
		cur := inFlight.Add(1)
		for {
			p := peak.Load()
			if cur <= p || peak.CompareAndSwap(p, cur) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		inFlight.Add(-1)
		return makeExec("q")(ctx, index, size)
	}

	Run(context.Background(), 50, Options{BatchSize: 10, Concurrency: 2}, exec, keyOf)
	assert.LessOrEqual(t, peak.Load(), int32(2),
		"no more than C sub-batches may be in flight simultaneously")
}

func TestRun_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	exec := func(ctx context.Context, index, size int) ([]item, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return makeExec("q")(ctx, index, size)
	}

	got := Run(ctx, 45, Options{BatchSize: 20, Concurrency: 2}, exec, keyOf)
	assert.Empty(t, got)
}
