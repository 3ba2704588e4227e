package main

import (
	"context"
	"time"

	bosuncfg "videowall/internal/config"
	"videowall/internal/handlers"
	"videowall/internal/jobs"
	"videowall/internal/metrics"
	"videowall/internal/provision"
	"videowall/internal/registry"
	"videowall/internal/state"
	"videowall/internal/websocket"
	"videowall/pkg/config"
	"videowall/pkg/logging"
	"videowall/pkg/monitoring"
	"videowall/pkg/redis"
	"videowall/pkg/server"
	"videowall/pkg/version"
)

func main() {
	// Setup logger
	logger := logging.NewLoggerWithService("bosun")

	// Load environment variables
	config.LoadEnv(logger)

	logger.Info("Starting Bosun (video wall coordinator)")

	cfg := bosuncfg.Load()

	// Setup monitoring
	healthChecker := monitoring.NewHealthChecker("bosun", version.Version)
	metricsCollector := monitoring.NewMetricsCollector("bosun", version.Version, version.GitCommit)

	// Create custom metrics
	serviceMetrics := &metrics.Metrics{
		RegistrationsTotal: metricsCollector.NewCounter("client_registrations_total", "Client registrations by action", []string{"action"}),
		HeartbeatsTotal:    metricsCollector.NewCounter("client_heartbeats_total", "Client heartbeats by result", []string{"result"}),
		AssignmentsTotal:   metricsCollector.NewCounter("client_assignments_total", "Assignment operations by kind", []string{"kind"}),
		SweepRemovals:      metricsCollector.NewCounter("client_sweep_removals_total", "Clients removed by the status sweep", []string{"reason"}),
		ClientsGauge:       metricsCollector.NewGauge("registry_clients", "Registered clients by status", []string{"status"}),
		GroupsGauge:        metricsCollector.NewGauge("registry_groups", "Configured groups by status", []string{"status"}),
		SnapshotDuration:   metricsCollector.NewHistogram("state_snapshot_duration_seconds", "State snapshot duration", []string{"operation"}, nil),
		SnapshotErrors:     metricsCollector.NewCounter("state_snapshot_errors_total", "State snapshot failures", []string{"operation"}),
		HubConnections:     metricsCollector.NewGauge("websocket_hub_connections_active", "Active WebSocket hub connections", []string{"channel"}),
		HubMessages:        metricsCollector.NewCounter("websocket_hub_messages_total", "WebSocket hub messages", []string{"channel", "direction"}),
		EventsPublished:    metricsCollector.NewCounter("realtime_events_published_total", "Real-time events published", []string{"event_type", "channel"}),
	}

	// Initialize WebSocket hub with unified metrics
	hub := websocket.NewHub(logger, serviceMetrics)
	go hub.Run()

	// Initialize the coordinator; registry events flow into the hub
	coordinator := registry.NewCoordinator(registry.CoordinatorConfig{
		Logger:      logger,
		Thresholds:  cfg.Thresholds(),
		Metrics:     serviceMetrics,
		Events:      hub,
		FrameWidth:  cfg.FrameWidth,
		FrameHeight: cfg.FrameHeight,
	})

	// Optional Redis-backed state mirror
	var snapshots *jobs.SnapshotJob
	if cfg.RedisURL != "" {
		connectCtx, connectCancel := context.WithTimeout(context.Background(), 10*time.Second)
		redisClient, err := redis.NewClientFromURL(connectCtx, cfg.RedisURL)
		connectCancel()
		if err != nil {
			logger.WithError(err).Fatal("Failed to connect to Redis")
		}
		defer redisClient.Close()
		healthChecker.AddCheck("redis", monitoring.RedisHealthCheck(redisClient))

		store := state.NewSnapshotStore(redisClient, logger)
		loadCtx, loadCancel := context.WithTimeout(context.Background(), 10*time.Second)
		st, err := store.Load(loadCtx)
		loadCancel()
		if err != nil {
			logger.WithError(err).Fatal("Failed to load state snapshot")
		}
		coordinator.Rehydrate(st)
		logger.WithFields(logging.Fields{
			"clients": len(st.Clients),
			"groups":  len(st.Groups),
		}).Info("State rehydrated from snapshot")

		snapshots = jobs.NewSnapshotJob(jobs.SnapshotConfig{
			Coordinator: coordinator,
			Store:       store,
			Metrics:     serviceMetrics,
			Logger:      logger,
			Interval:    cfg.SnapshotInterval,
		})
	} else {
		healthChecker.AddCheck("redis", monitoring.RedisHealthCheck(nil))
		logger.Warn("REDIS_URL not set; state will not survive restarts")
	}

	// Provision groups from file before taking traffic. Errors are not
	// fatal: walls can always be created over the API.
	if cfg.ProvisionPath != "" {
		f, err := provision.Load(cfg.ProvisionPath)
		if err != nil {
			logger.WithError(err).Warn("Provisioning file not loaded")
		} else if len(f.Groups) > 0 {
			res := provision.Apply(coordinator, f, logger)
			logger.WithFields(logging.Fields{
				"path":    cfg.ProvisionPath,
				"created": res.Created,
				"skipped": res.Skipped,
			}).Info("Provisioning pass complete")
		}
	}

	// Background jobs
	sweeper := jobs.NewStatusSweepJob(jobs.StatusSweepConfig{
		Coordinator: coordinator,
		Events:      hub,
		Logger:      logger,
		Interval:    cfg.SweepInterval,
	})
	sweeper.Start()

	if snapshots != nil {
		snapshots.Start()
	}

	// Initialize handlers
	bosunHandlers := handlers.NewBosunHandlers(coordinator, hub, cfg.StreamHost, logger)

	// Setup router with unified monitoring
	router := server.SetupServiceRouter(logger, "bosun", healthChecker, metricsCollector)
	bosunHandlers.RegisterRoutes(router, cfg.ServiceToken)
	if cfg.ServiceToken == "" {
		logger.Warn("SERVICE_TOKEN not set; admin endpoints are unauthenticated")
	}

	// Start server with graceful shutdown
	serverConfig := server.DefaultConfig("bosun", cfg.Port)
	if err := server.Start(serverConfig, router, logger); err != nil {
		logger.WithError(err).Fatal("Server startup failed")
	}

	// HTTP is drained; stop the jobs, then write one last mirror so the
	// snapshot carries everything up to shutdown.
	sweeper.Stop()
	if snapshots != nil {
		snapshots.Stop()
		flushCtx, flushCancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := snapshots.Flush(flushCtx); err != nil {
			logger.WithError(err).Error("Final state snapshot failed")
		} else {
			logger.Info("Final state snapshot written")
		}
		flushCancel()
	}
}
