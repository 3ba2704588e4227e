package jobs

import (
	"sync"
	"time"

	"videowall/internal/registry"
	"videowall/pkg/logging"
)

// StatusSweepJob periodically re-stages client liveness and expires clients
// whose heartbeats stopped long enough ago that their seats should be freed.
// The staging thresholds themselves live in the registry; this job only
// provides the clock tick.
type StatusSweepJob struct {
	coordinator *registry.Coordinator
	events      registry.EventSink
	logger      logging.Logger
	interval    time.Duration
	stopCh      chan struct{}
	wg          sync.WaitGroup
}

// StatusSweepConfig holds configuration for the sweep job
type StatusSweepConfig struct {
	Coordinator *registry.Coordinator
	Events      registry.EventSink // optional, receives sweep summaries on the system channel
	Logger      logging.Logger
	Interval    time.Duration // How often to run (default: 30 seconds)
}

// NewStatusSweepJob creates a new status sweep job
func NewStatusSweepJob(cfg StatusSweepConfig) *StatusSweepJob {
	interval := cfg.Interval
	if interval == 0 {
		interval = 30 * time.Second
	}
	return &StatusSweepJob{
		coordinator: cfg.Coordinator,
		events:      cfg.Events,
		logger:      cfg.Logger,
		interval:    interval,
		stopCh:      make(chan struct{}),
	}
}

// Start begins the background sweep loop
func (j *StatusSweepJob) Start() {
	j.wg.Add(1)
	go j.run()
	j.logger.Info("Status sweep job started")
}

// Stop gracefully stops the job
func (j *StatusSweepJob) Stop() {
	close(j.stopCh)
	j.wg.Wait()
	j.logger.Info("Status sweep job stopped")
}

func (j *StatusSweepJob) run() {
	defer j.wg.Done()
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	// Run once at startup
	j.sweep()

	for {
		select {
		case <-ticker.C:
			j.sweep()
		case <-j.stopCh:
			return
		}
	}
}

func (j *StatusSweepJob) sweep() {
	res := j.coordinator.SweepClients()
	if len(res.Removed) == 0 {
		return
	}
	j.logger.WithFields(logging.Fields{
		"checked": res.Checked,
		"removed": len(res.Removed),
	}).Info("Swept expired clients")
	if j.events != nil {
		j.events.PublishEvent("sweep_completed", registry.ChannelSystem, map[string]interface{}{
			"checked": res.Checked,
			"removed": res.Removed,
		})
	}
}
