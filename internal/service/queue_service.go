package service

import (
	"context"
	"errors"
	"fmt"

	"price-tracker/internal/models"
	"price-tracker/internal/store"
	"price-tracker/internal/util"

	"go.uber.org/zap"
)

var ErrNoValidIDs = errors.New("no valid product IDs provided")

// QueueService owns the scan queue business rules: what gets queued, in what
// order a batch drains, and how big a batch is.
type QueueService struct {
	store  *store.Store
	logger *zap.Logger
}

func NewQueueService(st *store.Store) *QueueService {
	return &QueueService{store: st, logger: util.GetLogger()}
}

// ValidIDs drops non-positive and duplicate IDs, preserving order
func ValidIDs(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	valid := make([]int64, 0, len(ids))
	for _, id := range ids {
		if id <= 0 {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		valid = append(valid, id)
	}
	return valid
}

// BatchSize returns the number of products one batch run should cover.
// A positive override wins; otherwise the size is a fraction of the queue,
// never less than one so a tiny queue still makes progress.
func BatchSize(total int, fraction float64, override int) int {
	if override > 0 {
		return override
	}
	size := int(float64(total) * fraction)
	if size < 1 {
		size = 1
	}
	return size
}

// SelectBatch partitions candidates into urgent entries (errors outstanding
// or never scanned) and routine re-scans, then fills the batch urgent-first.
// Relative order within each partition is preserved, so the store's
// priority/staleness ordering still decides ties.
func SelectBatch(candidates []models.QueueEntry, batchSize int) []models.QueueEntry {
	urgent := make([]models.QueueEntry, 0, len(candidates))
	routine := make([]models.QueueEntry, 0, len(candidates))
	for _, c := range candidates {
		if c.Urgent() {
			urgent = append(urgent, c)
		} else {
			routine = append(routine, c)
		}
	}

	if len(urgent) > batchSize {
		return urgent[:batchSize]
	}
	batch := urgent
	if remaining := batchSize - len(batch); remaining > 0 {
		if remaining > len(routine) {
			remaining = len(routine)
		}
		batch = append(batch, routine[:remaining]...)
	}
	return batch
}

// Enqueue adds products discovered in a sitemap to the scan queue and
// returns how many were new
func (s *QueueService) Enqueue(ctx context.Context, source string, productIDs []int64, priority int) (int, error) {
	if source == "" {
		return 0, errors.New("source is required")
	}
	valid := ValidIDs(productIDs)
	if len(valid) == 0 {
		return 0, ErrNoValidIDs
	}
	return s.store.UpsertQueueEntries(ctx, source, valid, priority)
}

// EnqueueOne queues a single product
func (s *QueueService) EnqueueOne(ctx context.Context, productID int64, source string, priority int) error {
	if productID <= 0 {
		return fmt.Errorf("invalid product ID: %d", productID)
	}
	if source == "" {
		return errors.New("source is required")
	}
	return s.store.UpsertQueueEntry(ctx, productID, source, priority)
}

// NextBatch picks the entries the next batch run should scan. It reads twice
// the batch size from the store so urgent entries further down the priority
// order can displace routine re-scans.
func (s *QueueService) NextBatch(ctx context.Context, source string, batchSize int) ([]models.QueueEntry, error) {
	if batchSize <= 0 {
		return nil, fmt.Errorf("batch size must be positive, got %d", batchSize)
	}
	candidates, err := s.store.CandidatesForScan(ctx, source, batchSize*2)
	if err != nil {
		return nil, err
	}
	return SelectBatch(candidates, batchSize), nil
}

// Stats returns the queue counters for one source
func (s *QueueService) Stats(ctx context.Context, source string) (models.QueueStats, error) {
	return s.store.QueueStats(ctx, source)
}

// HighPriority returns entries needing attention
func (s *QueueService) HighPriority(ctx context.Context, source string, limit int) ([]models.QueueEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	return s.store.HighPriorityEntries(ctx, source, limit)
}

// ResetError clears the error state of one entry
func (s *QueueService) ResetError(ctx context.Context, productID int64, source string) (bool, error) {
	return s.store.ResetErrorCount(ctx, productID, source)
}

// Remove deletes one entry from the queue
func (s *QueueService) Remove(ctx context.Context, productID int64, source string) (bool, error) {
	return s.store.RemoveQueueEntry(ctx, productID, source)
}

// Clear drops all entries for a source
func (s *QueueService) Clear(ctx context.Context, source string) (int64, error) {
	if source == "" {
		return 0, errors.New("source is required")
	}
	deleted, err := s.store.ClearQueue(ctx, source)
	if err != nil {
		return 0, err
	}
	s.logger.Info("queue cleared", zap.String("source", source), zap.Int64("deleted", deleted))
	return deleted, nil
}
