package worker

import (
	"context"
	"sync"
	"time"

	"price-tracker/internal/models"
	"price-tracker/internal/util"

	"go.uber.org/zap"
)

// FetchFunc fetches one queue entry and returns its snapshot. A nil snapshot
// with a nil error means the product no longer exists at the source.
type FetchFunc func(ctx context.Context, entry models.QueueEntry) (*models.ProductSnapshot, error)

// Result pairs a queue entry with its fetch outcome
type Result struct {
	Entry    models.QueueEntry
	Snapshot *models.ProductSnapshot
	Err      error
}

// FetchPool runs fetches with bounded concurrency while spreading the work
// over a batch window. The feeder releases jobs in groups of the pool size
// and pauses between groups, so a batch of N entries takes roughly
// ceil(N/size) groups spaced spacing*size apart.
type FetchPool struct {
	size   int
	fetch  FetchFunc
	logger *zap.Logger

	// sleep is swapped out in tests
	sleep func(time.Duration)
}

func NewFetchPool(size int, fetch FetchFunc) *FetchPool {
	if size < 1 {
		size = 1
	}
	return &FetchPool{
		size:   size,
		fetch:  fetch,
		logger: util.GetLogger(),
		sleep:  time.Sleep,
	}
}

// Run fetches all entries and returns one result per entry that was started.
// Cancelling ctx stops feeding new jobs; in-flight fetches finish and their
// results are returned.
func (p *FetchPool) Run(ctx context.Context, entries []models.QueueEntry, spacing time.Duration) []Result {
	if len(entries) == 0 {
		return nil
	}

	jobs := make(chan models.QueueEntry)
	results := make(chan Result, len(entries))

	var wg sync.WaitGroup
	for i := 0; i < p.size; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for entry := range jobs {
				snap, err := p.fetch(ctx, entry)
				results <- Result{Entry: entry, Snapshot: snap, Err: err}
			}
		}()
	}

	go func() {
		defer close(jobs)
		for i, entry := range entries {
			select {
			case <-ctx.Done():
				p.logger.Info("fetch pool cancelled",
					zap.Int("fed", i), zap.Int("total", len(entries)))
				return
			case jobs <- entry:
			}

			// pause after each full group except the last
			if (i+1)%p.size == 0 && i+1 < len(entries) {
				p.sleep(spacing * time.Duration(p.size))
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	out := make([]Result, 0, len(entries))
	for r := range results {
		out = append(out, r)
	}
	return out
}
