package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"price-tracker/internal/models"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

// CurrentPrice returns the open price observation for a product, or
// (nil, nil) when the product has no price history yet
func (s *Store) CurrentPrice(ctx context.Context, productID int64, source string) (*models.PriceObservation, error) {
	var obs models.PriceObservation
	err := sqlx.GetContext(ctx, s.ext, &obs, `
		SELECT * FROM price_history
		WHERE product_id = $1 AND source = $2 AND is_current = TRUE`,
		productID, source)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &obs, nil
}

// RecordPriceChange closes the current observation (when one exists) and
// opens a new one. Both sides of the transition share a single timestamp so
// valid_to of the old row equals valid_from of the new row and the history
// has no gaps. Must run inside a transaction together with the close so a
// failure cannot leave a product with zero current rows.
func (s *Store) RecordPriceChange(ctx context.Context, productID int64, source string,
	price, unitPrice decimal.NullDecimal, currency string, unitPriceUnit *string, closePrevious bool) (*models.PriceObservation, error) {

	now := time.Now().UTC()

	if closePrevious {
		_, err := s.ext.ExecContext(ctx, `
			UPDATE price_history SET is_current = FALSE, valid_to = $3
			WHERE product_id = $1 AND source = $2 AND is_current = TRUE`,
			productID, source, now)
		if err != nil {
			return nil, fmt.Errorf("failed to close current price for %d/%s: %w", productID, source, err)
		}
	}

	var obs models.PriceObservation
	err := sqlx.GetContext(ctx, s.ext, &obs, `
		INSERT INTO price_history (
			product_id, source, price_amount, currency,
			unit_price_amount, unit_price_unit, valid_from, valid_to, is_current
		) VALUES ($1, $2, $3, $4, $5, $6, $7, NULL, TRUE)
		RETURNING *`,
		productID, source, price, currency, unitPrice, unitPriceUnit, now)
	if err != nil {
		return nil, fmt.Errorf("failed to record price for %d/%s: %w", productID, source, err)
	}
	return &obs, nil
}

// PriceHistory returns the observations for a product, newest first
func (s *Store) PriceHistory(ctx context.Context, productID int64, source string, limit int) ([]models.PriceObservation, error) {
	var history []models.PriceObservation
	err := sqlx.SelectContext(ctx, s.ext, &history, `
		SELECT * FROM price_history
		WHERE product_id = $1 AND source = $2
		ORDER BY valid_from DESC
		LIMIT $3`, productID, source, limit)
	return history, err
}

// PriceTrend returns the observations of the last sinceDays days in
// chronological order, for charting
func (s *Store) PriceTrend(ctx context.Context, productID int64, source string, sinceDays int) ([]models.PriceObservation, error) {
	var trend []models.PriceObservation
	err := sqlx.SelectContext(ctx, s.ext, &trend, `
		SELECT * FROM price_history
		WHERE product_id = $1 AND source = $2
		  AND valid_from >= NOW() - make_interval(days => $3)
		ORDER BY valid_from ASC`, productID, source, sinceDays)
	return trend, err
}

// PriceChangesSince lists observations opened after the cutoff across all
// products of a source, newest first
func (s *Store) PriceChangesSince(ctx context.Context, source string, since time.Time, limit int) ([]models.PriceObservation, error) {
	var changes []models.PriceObservation
	err := sqlx.SelectContext(ctx, s.ext, &changes, `
		SELECT * FROM price_history
		WHERE source = $1 AND valid_from >= $2
		ORDER BY valid_from DESC
		LIMIT $3`, source, since, limit)
	return changes, err
}

// PriceChangesCount counts observations opened after the cutoff
func (s *Store) PriceChangesCount(ctx context.Context, source string, since time.Time) (int, error) {
	var count int
	err := sqlx.GetContext(ctx, s.ext, &count, `
		SELECT COUNT(*) FROM price_history
		WHERE source = $1 AND valid_from >= $2`, source, since)
	return count, err
}

// ProductsWithPriceChanges returns product IDs that have more than one
// observation in the window, i.e. whose price actually moved
func (s *Store) ProductsWithPriceChanges(ctx context.Context, source string, since time.Time) ([]int64, error) {
	var ids []int64
	err := sqlx.SelectContext(ctx, s.ext, &ids, `
		SELECT product_id FROM price_history
		WHERE source = $1 AND valid_from >= $2
		GROUP BY product_id
		HAVING COUNT(*) > 1
		ORDER BY product_id`, source, since)
	return ids, err
}

// PurgeHistoryOlderThan deletes closed observations whose validity ended
// before the cutoff. Current rows are never deleted, so every tracked product
// keeps its latest price regardless of age.
func (s *Store) PurgeHistoryOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.ext.ExecContext(ctx, `
		DELETE FROM price_history
		WHERE is_current = FALSE AND valid_to < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
