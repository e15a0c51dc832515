package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"price-tracker/config"
	"price-tracker/internal/models"
	"price-tracker/internal/util"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Runner is the slice of the scrape service the scheduler drives
type Runner interface {
	RunAllDiscoveries(ctx context.Context) map[string]*models.OperationResult
	RunAllBatches(ctx context.Context) map[string]*models.OperationResult
	CleanupHistory(ctx context.Context) (int64, error)
}

// Scheduler triggers the recurring runs: sitemap discovery once a day, a
// batch every interval and a nightly history cleanup. It only decides when;
// all the work lives in the runner.
type Scheduler struct {
	cron   *cron.Cron
	runner Runner
	cfg    config.SchedulerConfig
	logger *zap.Logger

	mu            sync.Mutex
	running       bool
	batchEntry    cron.EntryID
	lastDiscovery map[string]time.Time
}

func New(runner Runner, cfg config.SchedulerConfig) *Scheduler {
	return &Scheduler{
		cron:          cron.New(),
		runner:        runner,
		cfg:           cfg,
		logger:        util.GetLogger(),
		lastDiscovery: make(map[string]time.Time),
	}
}

// Start registers the jobs and starts the cron loop. Calling Start on a
// running scheduler is a no-op.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		s.logger.Warn("scheduler already running")
		return nil
	}

	discoverySpec := fmt.Sprintf("%d %d * * *", s.cfg.DiscoveryMinute, s.cfg.DiscoveryHour)
	if _, err := s.cron.AddFunc(discoverySpec, s.runDiscoveries); err != nil {
		return fmt.Errorf("failed to schedule discovery: %w", err)
	}

	batchSpec := fmt.Sprintf("@every %dm", s.cfg.BatchIntervalMinutes)
	batchEntry, err := s.cron.AddFunc(batchSpec, s.runBatches)
	if err != nil {
		return fmt.Errorf("failed to schedule batches: %w", err)
	}
	s.batchEntry = batchEntry

	if _, err := s.cron.AddFunc("30 3 * * *", s.runCleanup); err != nil {
		return fmt.Errorf("failed to schedule cleanup: %w", err)
	}

	s.cron.Start()
	s.running = true
	s.logger.Info("scheduler started",
		zap.String("discovery", discoverySpec),
		zap.String("batch", batchSpec))
	return nil
}

// Stop halts the cron loop and waits for any running job to finish.
// The wait happens outside the mutex: in-flight jobs take it to record
// their results, so holding it here would deadlock the shutdown.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	<-s.cron.Stop().Done()
	s.logger.Info("scheduler stopped")
}

// IsRunning reports whether the cron loop is active
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// NextBatchRun returns when the next batch job fires, nil when stopped
func (s *Scheduler) NextBatchRun() *time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return nil
	}
	next := s.cron.Entry(s.batchEntry).Next
	if next.IsZero() {
		return nil
	}
	return &next
}

// LastDiscovery returns when a source last completed discovery successfully,
// nil when it has not since startup
func (s *Scheduler) LastDiscovery(source string) *time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.lastDiscovery[source]
	if !ok {
		return nil
	}
	return &t
}

func (s *Scheduler) runDiscoveries() {
	s.logger.Info("scheduled discovery starting")
	results := s.runner.RunAllDiscoveries(context.Background())
	now := time.Now().UTC()

	s.mu.Lock()
	for source, result := range results {
		if result.Success {
			s.lastDiscovery[source] = now
		} else {
			s.logger.Error("scheduled discovery failed",
				zap.String("source", source), zap.String("message", result.Message))
		}
	}
	s.mu.Unlock()
}

func (s *Scheduler) runBatches() {
	s.logger.Info("scheduled batch run starting")
	results := s.runner.RunAllBatches(context.Background())
	for source, result := range results {
		if !result.Success {
			s.logger.Error("scheduled batch failed",
				zap.String("source", source), zap.String("message", result.Message))
		}
	}
}

func (s *Scheduler) runCleanup() {
	deleted, err := s.runner.CleanupHistory(context.Background())
	if err != nil {
		s.logger.Error("scheduled history cleanup failed", zap.Error(err))
		return
	}
	s.logger.Info("scheduled history cleanup completed", zap.Int64("deleted", deleted))
}
