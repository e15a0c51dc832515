package service

import (
	"context"
	"fmt"
	"time"

	"price-tracker/config"
	"price-tracker/internal/broker"
	"price-tracker/internal/models"
	"price-tracker/internal/redisclient"
	"price-tracker/internal/scraper"
	"price-tracker/internal/store"
	"price-tracker/internal/util"
	"price-tracker/internal/worker"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// scanLockTTL bounds how long a crashed run can keep a source locked
const scanLockTTL = 30 * time.Minute

// ScheduleInfo is what the status endpoint needs to know about the scheduler.
// Implemented by scheduler.Scheduler; an interface here keeps the dependency
// pointing from the scheduler to the services.
type ScheduleInfo interface {
	IsRunning() bool
	NextBatchRun() *time.Time
	LastDiscovery(source string) *time.Time
}

// ScrapeService orchestrates discovery and batch runs. Fetches run
// concurrently through a fetch pool; all database writes of one run happen
// sequentially inside a single transaction, so a run either lands completely
// or not at all. Events go out only after the commit.
type ScrapeService struct {
	store    *store.Store
	redis    *redisclient.Client
	events   *broker.EventPublisher
	registry *scraper.Registry
	queues   *QueueService
	prices   *PriceService
	cfg      config.ScrapeConfig
	logger   *zap.Logger
}

func NewScrapeService(st *store.Store, rdb *redisclient.Client, events *broker.EventPublisher,
	registry *scraper.Registry, queues *QueueService, prices *PriceService, cfg config.ScrapeConfig) *ScrapeService {
	return &ScrapeService{
		store:    st,
		redis:    rdb,
		events:   events,
		registry: registry,
		queues:   queues,
		prices:   prices,
		cfg:      cfg,
		logger:   util.GetLogger(),
	}
}

func failure(msg string) *models.OperationResult {
	return &models.OperationResult{Success: false, Message: msg}
}

// ValidateSource rejects unknown sources before any work starts
func (s *ScrapeService) ValidateSource(source string) error {
	_, err := s.registry.Get(source)
	return err
}

// RunDiscovery refreshes the sitemap of one source and folds the product IDs
// into the scan queue
func (s *ScrapeService) RunDiscovery(ctx context.Context, source string) *models.OperationResult {
	ctx, span := util.StartSpan(ctx, "scrape.discovery")
	defer span.End()

	sc, err := s.registry.Get(source)
	if err != nil {
		return failure(err.Error())
	}

	acquired, err := s.redis.AcquireScanLock(ctx, source, scanLockTTL)
	if err != nil {
		return failure(fmt.Sprintf("failed to acquire scan lock: %v", err))
	}
	if !acquired {
		return failure("another scan is already running for this source")
	}
	defer func() {
		if err := s.redis.ReleaseScanLock(context.Background(), source); err != nil {
			s.logger.Warn("failed to release scan lock", zap.String("source", source), zap.Error(err))
		}
	}()

	s.logger.Info("starting sitemap discovery", zap.String("source", source))

	ids, err := sc.ListProductIDs(ctx)
	if err != nil {
		util.DiscoveryRunsTotal.WithLabelValues(source, "error").Inc()
		s.logger.Error("sitemap discovery failed", zap.String("source", source), zap.Error(err))
		return failure(err.Error())
	}

	valid := ValidIDs(ids)
	if len(valid) == 0 {
		util.DiscoveryRunsTotal.WithLabelValues(source, "empty").Inc()
		return failure("no products found in sitemap")
	}
	util.SitemapProducts.WithLabelValues(source).Set(float64(len(valid)))

	tx, err := s.store.Begin(ctx)
	if err != nil {
		util.DiscoveryRunsTotal.WithLabelValues(source, "error").Inc()
		return failure(err.Error())
	}
	added, err := s.store.WithTx(tx).UpsertQueueEntries(ctx, source, valid, 0)
	if err != nil {
		_ = tx.Rollback()
		util.DiscoveryRunsTotal.WithLabelValues(source, "error").Inc()
		s.logger.Error("queue update failed", zap.String("source", source), zap.Error(err))
		return failure(err.Error())
	}
	if err := tx.Commit(); err != nil {
		util.DiscoveryRunsTotal.WithLabelValues(source, "error").Inc()
		return failure(err.Error())
	}

	util.DiscoveryRunsTotal.WithLabelValues(source, "success").Inc()
	s.events.PublishSitemapRefreshed(ctx, source, len(valid), added)
	s.logger.Info("sitemap discovery completed",
		zap.String("source", source), zap.Int("products", len(valid)), zap.Int("new", added))

	return &models.OperationResult{
		Success:   true,
		Message:   fmt.Sprintf("sitemap refreshed: %d products, %d new", len(valid), added),
		Processed: len(valid),
		Updated:   added,
	}
}

// pendingPriceEvent defers PriceChanged publication until after the commit
type pendingPriceEvent struct {
	productID    int64
	name         string
	oldPrice     decimal.NullDecimal
	oldUnitPrice decimal.NullDecimal
	newPrice     decimal.NullDecimal
	newUnitPrice decimal.NullDecimal
	firstSeen    bool
}

// RunBatch scans the next slice of the queue for one source. The batch size
// follows the configured fraction of the queue, fetches are paced to spread
// over the batch window, and every outcome is written back to the queue.
func (s *ScrapeService) RunBatch(ctx context.Context, source string) *models.OperationResult {
	ctx, span := util.StartSpan(ctx, "scrape.batch")
	defer span.End()

	sc, err := s.registry.Get(source)
	if err != nil {
		return failure(err.Error())
	}

	acquired, err := s.redis.AcquireScanLock(ctx, source, scanLockTTL)
	if err != nil {
		return failure(fmt.Sprintf("failed to acquire scan lock: %v", err))
	}
	if !acquired {
		return failure("another scan is already running for this source")
	}
	defer func() {
		if err := s.redis.ReleaseScanLock(context.Background(), source); err != nil {
			s.logger.Warn("failed to release scan lock", zap.String("source", source), zap.Error(err))
		}
	}()

	stats, err := s.queues.Stats(ctx, source)
	if err != nil {
		return failure(err.Error())
	}
	if stats.Total == 0 {
		return &models.OperationResult{Success: true, Message: "no products to scan"}
	}

	batchSize := BatchSize(stats.Total, s.cfg.BatchSizeFraction, s.cfg.BatchSize)
	entries, err := s.queues.NextBatch(ctx, source, batchSize)
	if err != nil {
		return failure(err.Error())
	}
	if len(entries) == 0 {
		return &models.OperationResult{Success: true, Message: "no products to scan"}
	}

	duration := time.Duration(s.cfg.BatchDurationMinutes) * time.Minute
	spacing := duration / time.Duration(len(entries))

	s.logger.Info("starting batch run",
		zap.String("source", source),
		zap.Int("batch_size", len(entries)),
		zap.Duration("spacing", spacing))

	pool := worker.NewFetchPool(s.cfg.ConcurrentRequests, func(ctx context.Context, entry models.QueueEntry) (*models.ProductSnapshot, error) {
		start := time.Now()
		snap, err := sc.FetchProduct(ctx, entry.ProductID)
		util.ScanDuration.WithLabelValues(source).Observe(time.Since(start).Seconds())
		return snap, err
	})
	results := pool.Run(ctx, entries, spacing)

	result, pending, err := s.applyBatchResults(ctx, source, results)
	if err != nil {
		util.BatchRunsTotal.WithLabelValues(source, "error").Inc()
		s.logger.Error("batch run failed", zap.String("source", source), zap.Error(err))
		return failure(err.Error())
	}

	for _, p := range pending {
		util.PriceChangesTotal.WithLabelValues(source).Inc()
		s.events.PublishPriceChanged(ctx, source, p.productID, p.name,
			p.oldPrice, p.newPrice, p.oldUnitPrice, p.newUnitPrice, p.firstSeen)
	}
	s.events.PublishScanCompleted(ctx, source, result.Processed, result.Updated, result.Errors)
	util.BatchRunsTotal.WithLabelValues(source, "success").Inc()

	s.logger.Info("batch run completed",
		zap.String("source", source),
		zap.Int("processed", result.Processed),
		zap.Int("updated", result.Updated),
		zap.Int("errors", result.Errors))
	return result
}

// applyBatchResults writes all outcomes of one batch inside a single
// transaction. Fetch and parse failures count as per-product errors and are
// recorded against the queue; a database error aborts the whole batch and
// rolls everything back.
func (s *ScrapeService) applyBatchResults(ctx context.Context, source string, results []worker.Result) (*models.OperationResult, []pendingPriceEvent, error) {
	tx, err := s.store.Begin(ctx)
	if err != nil {
		return nil, nil, err
	}
	st := s.store.WithTx(tx)

	updated, errorCount := 0, 0
	var pending []pendingPriceEvent

	for _, r := range results {
		if r.Err != nil || r.Snapshot == nil {
			errorCount++
			msg := "product not found"
			if r.Err != nil {
				msg = r.Err.Error()
			}
			util.ProductScansTotal.WithLabelValues(source, "error").Inc()
			if _, err := st.RecordOutcome(ctx, r.Entry.ProductID, source, false, msg); err != nil {
				_ = tx.Rollback()
				return nil, nil, err
			}
			continue
		}

		changed, previous, err := s.prices.RecordIfChanged(ctx, st, r.Snapshot)
		if err != nil {
			_ = tx.Rollback()
			return nil, nil, err
		}
		if err := st.UpsertProduct(ctx, r.Snapshot); err != nil {
			_ = tx.Rollback()
			return nil, nil, err
		}
		if _, err := st.RecordOutcome(ctx, r.Entry.ProductID, source, true, ""); err != nil {
			_ = tx.Rollback()
			return nil, nil, err
		}

		updated++
		util.ProductScansTotal.WithLabelValues(source, "success").Inc()
		if changed {
			ev := pendingPriceEvent{
				productID:    r.Snapshot.ProductID,
				name:         r.Snapshot.Name,
				newPrice:     r.Snapshot.PriceAmount,
				newUnitPrice: r.Snapshot.UnitPriceAmount,
				firstSeen:    previous == nil,
			}
			if previous != nil {
				ev.oldPrice = previous.PriceAmount
				ev.oldUnitPrice = previous.UnitPriceAmount
			}
			pending = append(pending, ev)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, err
	}

	return &models.OperationResult{
		Success:   true,
		Message:   "batch processing completed",
		Processed: len(results),
		Updated:   updated,
		Errors:    errorCount,
	}, pending, nil
}

// RunSingleProduct scans one product immediately, outside any batch pacing
func (s *ScrapeService) RunSingleProduct(ctx context.Context, source string, productID int64) *models.OperationResult {
	ctx, span := util.StartSpan(ctx, "scrape.single")
	defer span.End()

	sc, err := s.registry.Get(source)
	if err != nil {
		return failure(err.Error())
	}

	snap, err := sc.FetchProduct(ctx, productID)
	if err != nil {
		if _, recErr := s.store.RecordOutcome(ctx, productID, source, false, err.Error()); recErr != nil {
			s.logger.Warn("failed to record scan outcome", zap.Error(recErr))
		}
		util.ProductScansTotal.WithLabelValues(source, "error").Inc()
		return failure(err.Error())
	}
	if snap == nil {
		if _, recErr := s.store.RecordOutcome(ctx, productID, source, false, "product not found"); recErr != nil {
			s.logger.Warn("failed to record scan outcome", zap.Error(recErr))
		}
		util.ProductScansTotal.WithLabelValues(source, "error").Inc()
		return failure("product not found")
	}

	tx, err := s.store.Begin(ctx)
	if err != nil {
		return failure(err.Error())
	}
	st := s.store.WithTx(tx)

	changed, previous, err := s.prices.RecordIfChanged(ctx, st, snap)
	if err == nil {
		err = st.UpsertProduct(ctx, snap)
	}
	if err == nil {
		_, err = st.RecordOutcome(ctx, productID, source, true, "")
	}
	if err != nil {
		_ = tx.Rollback()
		util.ProductScansTotal.WithLabelValues(source, "error").Inc()
		return failure(err.Error())
	}
	if err := tx.Commit(); err != nil {
		return failure(err.Error())
	}

	util.ProductScansTotal.WithLabelValues(source, "success").Inc()
	if changed {
		util.PriceChangesTotal.WithLabelValues(source).Inc()
		var oldPrice, oldUnit decimal.NullDecimal
		if previous != nil {
			oldPrice = previous.PriceAmount
			oldUnit = previous.UnitPriceAmount
		}
		s.events.PublishPriceChanged(ctx, source, productID, snap.Name,
			oldPrice, snap.PriceAmount, oldUnit, snap.UnitPriceAmount, previous == nil)
	}

	msg := "product updated"
	if changed {
		msg = "product updated, price changed"
	}
	return &models.OperationResult{Success: true, Message: msg, Processed: 1, Updated: 1}
}

// RunAllDiscoveries refreshes every registered source in sequence. A failing
// source does not stop the others.
func (s *ScrapeService) RunAllDiscoveries(ctx context.Context) map[string]*models.OperationResult {
	results := make(map[string]*models.OperationResult)
	for _, source := range s.registry.Sources() {
		results[source] = s.RunDiscovery(ctx, source)
	}
	return results
}

// RunAllBatches runs one batch per registered source in sequence
func (s *ScrapeService) RunAllBatches(ctx context.Context) map[string]*models.OperationResult {
	results := make(map[string]*models.OperationResult)
	for _, source := range s.registry.Sources() {
		results[source] = s.RunBatch(ctx, source)
	}
	return results
}

// Status reports per-source progress plus scheduler state
func (s *ScrapeService) Status(ctx context.Context, sched ScheduleInfo) ([]models.SourceStatus, error) {
	statuses := make([]models.SourceStatus, 0, len(s.registry.Sources()))
	for _, source := range s.registry.Sources() {
		stats, err := s.queues.Stats(ctx, source)
		if err != nil {
			return nil, err
		}
		count, err := s.store.CountProducts(ctx, source)
		if err != nil {
			return nil, err
		}

		status := models.SourceStatus{
			Source:        source,
			TotalProducts: count,
			ScannedToday:  stats.ScannedToday,
		}
		if sched != nil {
			status.IsRunning = sched.IsRunning()
			status.NextBatchRun = sched.NextBatchRun()
			status.LastDiscovery = sched.LastDiscovery(source)
		}
		statuses = append(statuses, status)
	}
	return statuses, nil
}

// CleanupHistory applies the retention window to the price ledger
func (s *ScrapeService) CleanupHistory(ctx context.Context) (int64, error) {
	return s.prices.Purge(ctx, s.cfg.HistoryRetentionDays)
}
