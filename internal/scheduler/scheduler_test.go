package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"price-tracker/config"
	"price-tracker/internal/models"

	"github.com/robfig/cron/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubRunner struct {
	mu          sync.Mutex
	discoveries int
	batches     int
	cleanups    int
	results     map[string]*models.OperationResult
}

func (r *stubRunner) RunAllDiscoveries(ctx context.Context) map[string]*models.OperationResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.discoveries++
	return r.results
}

func (r *stubRunner) RunAllBatches(ctx context.Context) map[string]*models.OperationResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.batches++
	return r.results
}

func (r *stubRunner) CleanupHistory(ctx context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cleanups++
	return 0, nil
}

func testConfig() config.SchedulerConfig {
	return config.SchedulerConfig{
		DiscoveryHour:        2,
		DiscoveryMinute:      0,
		BatchIntervalMinutes: 30,
	}
}

func TestStartStop(t *testing.T) {
	sched := New(&stubRunner{}, testConfig())

	assert.False(t, sched.IsRunning())
	assert.Nil(t, sched.NextBatchRun())

	require.NoError(t, sched.Start())
	assert.True(t, sched.IsRunning())

	next := sched.NextBatchRun()
	require.NotNil(t, next)
	assert.True(t, next.After(time.Now()))
	assert.WithinDuration(t, time.Now().Add(30*time.Minute), *next, time.Minute)

	sched.Stop()
	assert.False(t, sched.IsRunning())
	assert.Nil(t, sched.NextBatchRun())
}

func TestStartTwiceIsNoop(t *testing.T) {
	sched := New(&stubRunner{}, testConfig())
	require.NoError(t, sched.Start())
	defer sched.Stop()

	require.NoError(t, sched.Start())
	assert.True(t, sched.IsRunning())
}

func TestStopWithoutStart(t *testing.T) {
	sched := New(&stubRunner{}, testConfig())
	sched.Stop()
	assert.False(t, sched.IsRunning())
}

func TestDiscoveryRecordsLastRun(t *testing.T) {
	runner := &stubRunner{results: map[string]*models.OperationResult{
		models.SourceBonpreu:   {Success: true, Message: "ok"},
		models.SourceMercadona: {Success: false, Message: "sitemap unreachable"},
	}}
	sched := New(runner, testConfig())

	assert.Nil(t, sched.LastDiscovery(models.SourceBonpreu))

	sched.runDiscoveries()

	// only the successful source gets a timestamp
	got := sched.LastDiscovery(models.SourceBonpreu)
	require.NotNil(t, got)
	assert.WithinDuration(t, time.Now().UTC(), *got, time.Second)
	assert.Nil(t, sched.LastDiscovery(models.SourceMercadona))

	runner.mu.Lock()
	assert.Equal(t, 1, runner.discoveries)
	runner.mu.Unlock()
}

func TestBatchesDelegateToRunner(t *testing.T) {
	runner := &stubRunner{results: map[string]*models.OperationResult{}}
	sched := New(runner, testConfig())

	sched.runBatches()
	sched.runCleanup()

	runner.mu.Lock()
	assert.Equal(t, 1, runner.batches)
	assert.Equal(t, 1, runner.cleanups)
	runner.mu.Unlock()
}

// blockingRunner holds a discovery mid-flight until release is closed
type blockingRunner struct {
	stubRunner
	startOnce sync.Once
	started   chan struct{}
	release   chan struct{}
}

func (r *blockingRunner) RunAllDiscoveries(ctx context.Context) map[string]*models.OperationResult {
	r.startOnce.Do(func() { close(r.started) })
	<-r.release
	return r.stubRunner.RunAllDiscoveries(ctx)
}

func TestStopWaitsForInFlightDiscovery(t *testing.T) {
	runner := &blockingRunner{
		stubRunner: stubRunner{results: map[string]*models.OperationResult{
			models.SourceBonpreu: {Success: true, Message: "ok"},
		}},
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
	sched := New(runner, testConfig())
	require.NoError(t, sched.Start())

	// fire a discovery on a tight interval so one is running when Stop hits
	sched.cron.Schedule(cron.Every(time.Second), cron.FuncJob(sched.runDiscoveries))

	select {
	case <-runner.started:
	case <-time.After(3 * time.Second):
		t.Fatal("discovery never started")
	}

	stopped := make(chan struct{})
	go func() {
		sched.Stop()
		close(stopped)
	}()

	// Stop must wait for the discovery, which is still blocked in the runner
	select {
	case <-stopped:
		t.Fatal("Stop returned while a discovery was still running")
	case <-time.After(100 * time.Millisecond):
	}

	close(runner.release)

	select {
	case <-stopped:
	case <-time.After(3 * time.Second):
		t.Fatal("Stop did not return after the discovery finished")
	}

	// the released discovery still got to record its result
	require.NotNil(t, sched.LastDiscovery(models.SourceBonpreu))
}

func TestInvalidDiscoverySpec(t *testing.T) {
	sched := New(&stubRunner{}, config.SchedulerConfig{
		DiscoveryHour:        99,
		DiscoveryMinute:      0,
		BatchIntervalMinutes: 30,
	})
	assert.Error(t, sched.Start())
	assert.False(t, sched.IsRunning())
}
