package jobs

import (
	"context"
	"sync"
	"time"

	"videowall/internal/metrics"
	"videowall/internal/registry"
	"videowall/internal/state"
	"videowall/pkg/logging"
)

// SnapshotJob mirrors the in-memory registry into Redis on a fixed cadence.
// Mutations are never written through individually; a restart rehydrates from
// the most recent mirror, and losing the tail of one interval is acceptable
// for heartbeat-driven state that clients re-announce anyway.
type SnapshotJob struct {
	coordinator *registry.Coordinator
	store       *state.SnapshotStore
	metrics     *metrics.Metrics
	logger      logging.Logger
	interval    time.Duration
	timeout     time.Duration
	stopCh      chan struct{}
	wg          sync.WaitGroup
}

// SnapshotConfig holds configuration for the snapshot job
type SnapshotConfig struct {
	Coordinator *registry.Coordinator
	Store       *state.SnapshotStore
	Metrics     *metrics.Metrics // optional
	Logger      logging.Logger
	Interval    time.Duration // How often to mirror state (default: 15 seconds)
	Timeout     time.Duration // Redis budget per snapshot (default: 10 seconds)
}

// NewSnapshotJob creates a new snapshot job
func NewSnapshotJob(cfg SnapshotConfig) *SnapshotJob {
	interval := cfg.Interval
	if interval == 0 {
		interval = 15 * time.Second
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &SnapshotJob{
		coordinator: cfg.Coordinator,
		store:       cfg.Store,
		metrics:     cfg.Metrics,
		logger:      cfg.Logger,
		interval:    interval,
		timeout:     timeout,
		stopCh:      make(chan struct{}),
	}
}

// Start begins the background snapshot loop
func (j *SnapshotJob) Start() {
	j.wg.Add(1)
	go j.run()
	j.logger.Info("Snapshot job started")
}

// Stop gracefully stops the job
func (j *SnapshotJob) Stop() {
	close(j.stopCh)
	j.wg.Wait()
	j.logger.Info("Snapshot job stopped")
}

func (j *SnapshotJob) run() {
	defer j.wg.Done()
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	// Run once at startup
	j.persist()

	for {
		select {
		case <-ticker.C:
			j.persist()
		case <-j.stopCh:
			return
		}
	}
}

func (j *SnapshotJob) persist() {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	if err := j.Flush(ctx); err != nil {
		j.logger.WithError(err).Warn("State snapshot failed")
		return
	}
	j.logger.Debug("State snapshot written")
}

// Flush writes one snapshot immediately. Shutdown calls this after the loop
// has stopped so the mirror carries everything up to the final moment.
func (j *SnapshotJob) Flush(ctx context.Context) error {
	start := time.Now()
	err := j.store.SaveAll(ctx, j.coordinator.ExportState())
	if j.metrics != nil {
		if j.metrics.SnapshotDuration != nil {
			j.metrics.SnapshotDuration.WithLabelValues("save").Observe(time.Since(start).Seconds())
		}
		if err != nil && j.metrics.SnapshotErrors != nil {
			j.metrics.SnapshotErrors.WithLabelValues("save").Inc()
		}
	}
	return err
}
