package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"price-tracker/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeEntries(n int) []models.QueueEntry {
	entries := make([]models.QueueEntry, n)
	for i := range entries {
		entries[i] = models.QueueEntry{ProductID: int64(i + 1), Source: models.SourceBonpreu}
	}
	return entries
}

func TestRunFetchesAllEntries(t *testing.T) {
	var mu sync.Mutex
	fetched := make(map[int64]bool)

	pool := NewFetchPool(3, func(ctx context.Context, e models.QueueEntry) (*models.ProductSnapshot, error) {
		mu.Lock()
		fetched[e.ProductID] = true
		mu.Unlock()
		return &models.ProductSnapshot{ProductID: e.ProductID, Source: e.Source}, nil
	})
	pool.sleep = func(time.Duration) {}

	results := pool.Run(context.Background(), makeEntries(10), time.Second)

	require.Len(t, results, 10)
	assert.Len(t, fetched, 10)
	for _, r := range results {
		require.NoError(t, r.Err)
		require.NotNil(t, r.Snapshot)
		assert.Equal(t, r.Entry.ProductID, r.Snapshot.ProductID)
	}
}

func TestRunPausesBetweenGroups(t *testing.T) {
	var mu sync.Mutex
	var sleeps []time.Duration

	pool := NewFetchPool(4, func(ctx context.Context, e models.QueueEntry) (*models.ProductSnapshot, error) {
		return nil, nil
	})
	pool.sleep = func(d time.Duration) {
		mu.Lock()
		sleeps = append(sleeps, d)
		mu.Unlock()
	}

	spacing := 2 * time.Second
	results := pool.Run(context.Background(), makeEntries(10), spacing)
	require.Len(t, results, 10)

	// 10 entries in groups of 4 -> pauses after group 1 and 2, none after the
	// final partial group
	require.Len(t, sleeps, 2)
	for _, d := range sleeps {
		assert.Equal(t, spacing*4, d)
	}
}

func TestRunNoPauseForSingleGroup(t *testing.T) {
	var count int
	pool := NewFetchPool(15, func(ctx context.Context, e models.QueueEntry) (*models.ProductSnapshot, error) {
		return nil, nil
	})
	pool.sleep = func(time.Duration) { count++ }

	pool.Run(context.Background(), makeEntries(15), time.Second)
	assert.Zero(t, count)
}

func TestRunErrorIsolation(t *testing.T) {
	failing := errors.New("connection reset")

	pool := NewFetchPool(2, func(ctx context.Context, e models.QueueEntry) (*models.ProductSnapshot, error) {
		if e.ProductID%2 == 0 {
			return nil, failing
		}
		return &models.ProductSnapshot{ProductID: e.ProductID}, nil
	})
	pool.sleep = func(time.Duration) {}

	results := pool.Run(context.Background(), makeEntries(6), time.Second)
	require.Len(t, results, 6)

	failures := 0
	for _, r := range results {
		if r.Err != nil {
			failures++
			assert.Nil(t, r.Snapshot)
		}
	}
	assert.Equal(t, 3, failures)
}

func TestRunCancelStopsFeeding(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	var mu sync.Mutex
	started := 0

	pool := NewFetchPool(1, func(ctx context.Context, e models.QueueEntry) (*models.ProductSnapshot, error) {
		mu.Lock()
		started++
		mu.Unlock()
		return nil, nil
	})
	pool.sleep = func(time.Duration) { cancel() }

	results := pool.Run(ctx, makeEntries(100), time.Second)

	// the feeder stops at the first pause; only the jobs fed before the
	// cancel produce results
	assert.Less(t, len(results), 100)
	mu.Lock()
	assert.Equal(t, started, len(results))
	mu.Unlock()
}

func TestRunEmpty(t *testing.T) {
	pool := NewFetchPool(3, func(ctx context.Context, e models.QueueEntry) (*models.ProductSnapshot, error) {
		t.Fatal("fetch should not be called")
		return nil, nil
	})
	assert.Nil(t, pool.Run(context.Background(), nil, time.Second))
}
