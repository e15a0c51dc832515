package service

import (
	"context"
	"time"

	"price-tracker/internal/models"
	"price-tracker/internal/store"
	"price-tracker/internal/util"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// PriceService owns change detection and the read side of the price ledger
type PriceService struct {
	store  *store.Store
	logger *zap.Logger
}

func NewPriceService(st *store.Store) *PriceService {
	return &PriceService{store: st, logger: util.GetLogger()}
}

// decimalsEqual treats two null decimals as equal; a null and a value differ
func decimalsEqual(a, b decimal.NullDecimal) bool {
	if a.Valid != b.Valid {
		return false
	}
	if !a.Valid {
		return true
	}
	return a.Decimal.Equal(b.Decimal)
}

// HasChanged reports whether a snapshot's price differs from the current
// ledger interval. A product with no current interval always counts as
// changed so first observations open the ledger.
func HasChanged(current *models.PriceObservation, snap *models.ProductSnapshot) bool {
	if current == nil {
		return true
	}
	if !decimalsEqual(current.PriceAmount, snap.PriceAmount) {
		return true
	}
	return !decimalsEqual(current.UnitPriceAmount, snap.UnitPriceAmount)
}

// RecordIfChanged compares the snapshot against the current ledger interval
// on st (which may be transaction-bound) and records a new interval when the
// price moved. Returns whether a change was recorded and the interval that
// was current before, nil for first observations.
func (s *PriceService) RecordIfChanged(ctx context.Context, st *store.Store, snap *models.ProductSnapshot) (bool, *models.PriceObservation, error) {
	current, err := st.CurrentPrice(ctx, snap.ProductID, snap.Source)
	if err != nil {
		return false, nil, err
	}
	if !HasChanged(current, snap) {
		return false, current, nil
	}

	_, err = st.RecordPriceChange(ctx, snap.ProductID, snap.Source,
		snap.PriceAmount, snap.UnitPriceAmount, snap.Currency, snap.UnitPriceUnit,
		current != nil)
	if err != nil {
		return false, nil, err
	}
	return true, current, nil
}

// History returns the newest observations for a product
func (s *PriceService) History(ctx context.Context, productID int64, source string, limit int) ([]models.PriceObservation, error) {
	if limit <= 0 {
		limit = 100
	}
	return s.store.PriceHistory(ctx, productID, source, limit)
}

// Trend returns the observations of the last days in chronological order
func (s *PriceService) Trend(ctx context.Context, productID int64, source string, days int) ([]models.PriceObservation, error) {
	if days <= 0 {
		days = 30
	}
	return s.store.PriceTrend(ctx, productID, source, days)
}

// ChangesSince lists source-wide observations of the last days
func (s *PriceService) ChangesSince(ctx context.Context, source string, days, limit int) ([]models.PriceObservation, error) {
	if days <= 0 {
		days = 7
	}
	if limit <= 0 {
		limit = 100
	}
	since := time.Now().UTC().AddDate(0, 0, -days)
	return s.store.PriceChangesSince(ctx, source, since, limit)
}

// ChangeCount counts source-wide observations of the last days
func (s *PriceService) ChangeCount(ctx context.Context, source string, days int) (int, error) {
	if days <= 0 {
		days = 7
	}
	since := time.Now().UTC().AddDate(0, 0, -days)
	return s.store.PriceChangesCount(ctx, source, since)
}

// ProductsWithChanges returns products whose price moved within the window
func (s *PriceService) ProductsWithChanges(ctx context.Context, source string, days int) ([]int64, error) {
	if days <= 0 {
		days = 7
	}
	since := time.Now().UTC().AddDate(0, 0, -days)
	return s.store.ProductsWithPriceChanges(ctx, source, since)
}

// ChangePercentage computes the relative price move between the oldest and
// newest observation in the window. Returns nil when there are fewer than two
// observations or either endpoint has no usable price.
func (s *PriceService) ChangePercentage(ctx context.Context, productID int64, source string, days int) (*float64, error) {
	trend, err := s.Trend(ctx, productID, source, days)
	if err != nil {
		return nil, err
	}
	return changePercentage(trend), nil
}

func changePercentage(trend []models.PriceObservation) *float64 {
	if len(trend) < 2 {
		return nil
	}
	oldest := trend[0].PriceAmount
	newest := trend[len(trend)-1].PriceAmount
	if !oldest.Valid || !newest.Valid || oldest.Decimal.IsZero() {
		return nil
	}
	pct, _ := newest.Decimal.Sub(oldest.Decimal).
		Div(oldest.Decimal).
		Mul(decimal.NewFromInt(100)).
		Float64()
	return &pct
}

// AveragePrice averages the priced observations in the window, nil when none
// carry a price
func (s *PriceService) AveragePrice(ctx context.Context, productID int64, source string, days int) (*decimal.Decimal, error) {
	trend, err := s.Trend(ctx, productID, source, days)
	if err != nil {
		return nil, err
	}

	sum := decimal.Zero
	count := 0
	for _, obs := range trend {
		if obs.PriceAmount.Valid {
			sum = sum.Add(obs.PriceAmount.Decimal)
			count++
		}
	}
	if count == 0 {
		return nil, nil
	}
	avg := sum.Div(decimal.NewFromInt(int64(count)))
	return &avg, nil
}

// Purge deletes closed observations older than the retention window and
// returns how many rows were removed
func (s *PriceService) Purge(ctx context.Context, retentionDays int) (int64, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -retentionDays)
	deleted, err := s.store.PurgeHistoryOlderThan(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if deleted > 0 {
		s.logger.Info("purged old price history",
			zap.Int64("deleted", deleted), zap.Int("retention_days", retentionDays))
	}
	return deleted, nil
}
