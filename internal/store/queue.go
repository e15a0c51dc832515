package store

import (
	"context"
	"database/sql"
	"fmt"

	"price-tracker/internal/models"

	"github.com/jmoiron/sqlx"
)

// upsertChunkSize bounds the number of IDs per bulk statement so very large
// sitemaps stay under the driver's parameter limit
const upsertChunkSize = 1000

// UpsertQueueEntry adds a single product to the scan queue or raises its
// priority if it is already queued
func (s *Store) UpsertQueueEntry(ctx context.Context, productID int64, source string, priority int) error {
	query := `
		INSERT INTO scan_queue (product_id, source, scan_priority, created_at, updated_at)
		VALUES ($1, $2, $3, NOW(), NOW())
		ON CONFLICT (product_id, source) DO UPDATE SET
			scan_priority = GREATEST(scan_queue.scan_priority, EXCLUDED.scan_priority),
			updated_at = NOW()`

	_, err := s.ext.ExecContext(ctx, query, productID, source, priority)
	if err != nil {
		return fmt.Errorf("failed to upsert queue entry %d/%s: %w", productID, source, err)
	}
	return nil
}

// UpsertQueueEntries bulk-adds products to the scan queue. Existing entries
// only have their priority raised (never lowered) and their updated_at
// touched. Returns the number of newly created entries.
//
// The write path is read-then-split: one SELECT finds the IDs already queued,
// new IDs go through a multi-row INSERT and existing ones through a single
// UPDATE, instead of a round trip per product.
func (s *Store) UpsertQueueEntries(ctx context.Context, source string, productIDs []int64, priority int) (int, error) {
	if len(productIDs) == 0 {
		return 0, nil
	}

	inserted := 0
	for start := 0; start < len(productIDs); start += upsertChunkSize {
		end := start + upsertChunkSize
		if end > len(productIDs) {
			end = len(productIDs)
		}

		n, err := s.upsertQueueChunk(ctx, source, productIDs[start:end], priority)
		if err != nil {
			return inserted, err
		}
		inserted += n
	}

	return inserted, nil
}

func (s *Store) upsertQueueChunk(ctx context.Context, source string, productIDs []int64, priority int) (int, error) {
	query, args, err := sqlx.In(
		"SELECT product_id FROM scan_queue WHERE source = ? AND product_id IN (?)",
		source, productIDs)
	if err != nil {
		return 0, err
	}
	query = s.ext.Rebind(query)

	var existingIDs []int64
	if err := sqlx.SelectContext(ctx, s.ext, &existingIDs, query, args...); err != nil {
		return 0, fmt.Errorf("failed to read existing queue entries: %w", err)
	}

	existing := make(map[int64]struct{}, len(existingIDs))
	for _, id := range existingIDs {
		existing[id] = struct{}{}
	}

	type newEntry struct {
		ProductID int64  `db:"product_id"`
		Source    string `db:"source"`
		Priority  int    `db:"scan_priority"`
	}

	newEntries := make([]newEntry, 0, len(productIDs))
	for _, id := range productIDs {
		if _, ok := existing[id]; !ok {
			newEntries = append(newEntries, newEntry{ProductID: id, Source: source, Priority: priority})
		}
	}

	if len(newEntries) > 0 {
		_, err = sqlx.NamedExecContext(ctx, s.ext, `
			INSERT INTO scan_queue (product_id, source, scan_priority, created_at, updated_at)
			VALUES (:product_id, :source, :scan_priority, NOW(), NOW())`, newEntries)
		if err != nil {
			return 0, fmt.Errorf("failed to insert queue entries: %w", err)
		}
	}

	if len(existingIDs) > 0 && priority > 0 {
		query, args, err = sqlx.In(`
			UPDATE scan_queue SET scan_priority = ?, updated_at = NOW()
			WHERE source = ? AND scan_priority < ? AND product_id IN (?)`,
			priority, source, priority, existingIDs)
		if err != nil {
			return 0, err
		}
		query = s.ext.Rebind(query)
		if _, err := s.ext.ExecContext(ctx, query, args...); err != nil {
			return 0, fmt.Errorf("failed to raise queue priorities: %w", err)
		}
	}

	return len(newEntries), nil
}

// CandidatesForScan returns up to limit queue entries ordered by priority
// descending, then least-recently scanned with never-scanned entries first.
// Callers fetch more than the batch size and partition urgent entries ahead
// of routine ones; see service.QueueService.SelectBatch.
func (s *Store) CandidatesForScan(ctx context.Context, source string, limit int) ([]models.QueueEntry, error) {
	var entries []models.QueueEntry
	err := sqlx.SelectContext(ctx, s.ext, &entries, `
		SELECT * FROM scan_queue
		WHERE source = $1
		ORDER BY scan_priority DESC, last_scanned ASC NULLS FIRST
		LIMIT $2`, source, limit)
	return entries, err
}

// RecordOutcome writes the result of one scan back to the queue. Success
// clears the error state; failure increments error_count and raises
// scan_priority by one so failing products resurface sooner. Returns false
// when no entry exists for the key.
func (s *Store) RecordOutcome(ctx context.Context, productID int64, source string, success bool, errorMessage string) (bool, error) {
	var (
		res sql.Result
		err error
	)

	if success {
		res, err = s.ext.ExecContext(ctx, `
			UPDATE scan_queue SET
				last_scanned = NOW(),
				scan_count = scan_count + 1,
				error_count = 0,
				last_error = NULL,
				updated_at = NOW()
			WHERE product_id = $1 AND source = $2`, productID, source)
	} else {
		res, err = s.ext.ExecContext(ctx, `
			UPDATE scan_queue SET
				last_scanned = NOW(),
				scan_count = scan_count + 1,
				error_count = error_count + 1,
				last_error = $3,
				scan_priority = scan_priority + 1,
				updated_at = NOW()
			WHERE product_id = $1 AND source = $2`, productID, source, errorMessage)
	}
	if err != nil {
		return false, fmt.Errorf("failed to record scan outcome for %d/%s: %w", productID, source, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// QueueStats returns the queue counters for one source
func (s *Store) QueueStats(ctx context.Context, source string) (models.QueueStats, error) {
	var stats models.QueueStats
	err := sqlx.GetContext(ctx, s.ext, &stats, `
		SELECT
			COUNT(*) AS total,
			COUNT(*) FILTER (WHERE last_scanned::date = CURRENT_DATE) AS scanned_today,
			COUNT(*) FILTER (WHERE error_count > 0) AS with_errors,
			COUNT(*) FILTER (WHERE last_scanned IS NULL) AS never_scanned
		FROM scan_queue
		WHERE source = $1`, source)
	return stats, err
}

// HighPriorityEntries returns entries needing attention: failing or never
// scanned, highest priority and most errors first
func (s *Store) HighPriorityEntries(ctx context.Context, source string, limit int) ([]models.QueueEntry, error) {
	var entries []models.QueueEntry
	err := sqlx.SelectContext(ctx, s.ext, &entries, `
		SELECT * FROM scan_queue
		WHERE source = $1 AND (error_count > 0 OR last_scanned IS NULL)
		ORDER BY scan_priority DESC, error_count DESC
		LIMIT $2`, source, limit)
	return entries, err
}

// ResetErrorCount clears the error state of one entry (manual intervention)
func (s *Store) ResetErrorCount(ctx context.Context, productID int64, source string) (bool, error) {
	res, err := s.ext.ExecContext(ctx, `
		UPDATE scan_queue SET error_count = 0, last_error = NULL, updated_at = NOW()
		WHERE product_id = $1 AND source = $2`, productID, source)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	return affected > 0, err
}

// RemoveQueueEntry deletes one entry from the scan queue
func (s *Store) RemoveQueueEntry(ctx context.Context, productID int64, source string) (bool, error) {
	res, err := s.ext.ExecContext(ctx,
		"DELETE FROM scan_queue WHERE product_id = $1 AND source = $2", productID, source)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	return affected > 0, err
}

// ClearQueue removes all entries for a source and returns how many were
// deleted
func (s *Store) ClearQueue(ctx context.Context, source string) (int64, error) {
	res, err := s.ext.ExecContext(ctx, "DELETE FROM scan_queue WHERE source = $1", source)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
