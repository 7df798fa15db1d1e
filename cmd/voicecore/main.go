package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/concord-chat/voicecore/internal/audio"
	"github.com/concord-chat/voicecore/internal/config"
	"github.com/concord-chat/voicecore/internal/group"
	"github.com/concord-chat/voicecore/internal/identity"
	"github.com/concord-chat/voicecore/internal/observability"
	"github.com/concord-chat/voicecore/internal/position"
	"github.com/concord-chat/voicecore/internal/security"
	"github.com/concord-chat/voicecore/internal/session"
	"github.com/concord-chat/voicecore/internal/signaling"
	"github.com/concord-chat/voicecore/internal/transport"
	"github.com/concord-chat/voicecore/pkg/version"
)

// Ambient operational thresholds for the generic memory/disk health checks.
// Neither is a §6.3 configuration key: they guard the process's own
// footprint, not anything spec-governed.
const (
	maxHealthyMemoryBytes uint64 = 2 << 30  // 2 GiB heap allocation
	minFreeDiskBytes      int64  = 100 << 20 // 100 MiB free on the working directory's filesystem
)

func main() {
	configPath := os.Getenv("VOICECORE_CONFIG")
	if configPath == "" {
		configPath = "config.json"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Printf("failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(observability.LoggerConfig{
		Level:        cfg.GetLogLevel(),
		Format:       cfg.Logging.Format,
		OutputPath:   cfg.Logging.OutputPath,
		ErrorPath:    cfg.Logging.ErrorPath,
		EnableCaller: cfg.Logging.EnableCaller,
		EnableStack:  cfg.Logging.EnableStack,
		Service:      "voicecore",
		Version:      version.Version,
	})

	logger.Info().
		Str("version", version.Version).
		Str("git_commit", version.GitCommit).
		Str("platform", version.Platform).
		Msg("starting voicecore signaling server")

	metrics := observability.NewMetrics()
	health := observability.NewHealthChecker(logger, version.Version)

	// --- Core subsystems ---
	identityMapper := identity.NewMapper()
	sessionStore := session.NewStore(cfg.Resume.Window)
	validator := security.NewValidator(cfg.Group.MaxNameLength)
	hasher := security.NewPasswordHasher()

	groups := group.NewManager(group.Event{
		Created: func(group.Snapshot) {
			if metrics != nil {
				metrics.GroupsActive.Inc()
			}
		},
		Deleted: func(string) {
			if metrics != nil {
				metrics.GroupsActive.Dec()
			}
		},
	})

	// Positions, presence, and auth codes are owned by the host game
	// integration in production; these in-memory stand-ins let the
	// server run standalone until that integration is wired in.
	positions := position.NewInMemoryTracker()
	presence := position.NewInMemoryPresence()
	authCodes := position.NewInMemoryAuthCodes()

	transportMgr, err := transport.NewManager(transport.Config{
		STUNServers: cfg.Signaling.STUNServers,
		SCTPPort:    cfg.WebRTC.SCTPPort,
	}, metrics, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize transport manager")
	}

	sigServer := signaling.NewServer(signaling.Deps{
		Config:    cfg,
		Groups:    groups,
		Identity:  identityMapper,
		Sessions:  sessionStore,
		Transport: transportMgr,
		Positions: positions,
		Presence:  presence,
		AuthCodes: authCodes,
		Validator: validator,
		Hasher:    hasher,
		Metrics:   metrics,
		Logger:    logger,
	})

	audioEngine := audio.NewEngine(
		groups,
		positions,
		sigServer,
		transportMgr,
		sigServer.LiveClientIDs,
		sigServer.CodecFor,
		audio.EngineConfig{
			Routing: audio.RoutingConfig{
				GroupGlobalVoice:         cfg.Group.GlobalVoice,
				GroupSpatialAudio:        cfg.Group.SpatialAudio,
				DefaultProximityDistance: cfg.Proximity.DefaultDistance,
			},
			Gain: audio.GainCurve{
				FadeStartRatio: cfg.Proximity.FadeStartRatio,
				RolloffFactor:  cfg.Proximity.RolloffFactor,
				GroupMinVolume: cfg.Group.MinVolume,
			},
			RadarEnabled:     cfg.Proximity.RadarEnabled,
			ServerSideVolume: cfg.Proximity.ServerSideVolume,
		},
		metrics,
		logger,
	)
	sigServer.SetAudioEngine(audioEngine)

	broadcastScheduler := &position.Scheduler{
		Tracker:       positions,
		Presence:      presence,
		Obfuscator:    sigServer,
		Ranges:        sigServer,
		Sink:          sigServer,
		Interval:      cfg.Broadcast.Interval,
		LiveClientIDs: sigServer.LiveClientIDs,
	}

	health.RegisterCheck("signaling_listener", observability.SignalingListenerHealthCheck(sigServer.IsListening))
	health.RegisterCheck("audio_queue", observability.AudioQueueHealthCheck(audioEngine.StalledCheck(2*time.Second)))
	health.RegisterCheck("heartbeat_monitor", observability.HeartbeatMonitorHealthCheck(sigServer.HeartbeatMonitorAlive))
	health.RegisterCheck("memory", observability.MemoryHealthCheck(maxHealthyMemoryBytes))
	health.RegisterCheck("disk_space", observability.DiskSpaceHealthCheck(".", minFreeDiskBytes))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go audioEngine.Run(ctx)
	go broadcastScheduler.Run(ctx)
	go sigServer.RunHeartbeatMonitor(ctx)

	router := chi.NewRouter()
	router.Get("/voice", sigServer.Handler())
	router.Get("/health", healthHandler(health))
	router.Get("/health/live", livenessHandler())
	router.Get("/health/ready", readinessHandler(health))
	router.Handle("/metrics", promhttp.Handler())

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Signaling.Port),
		Handler: router,
	}

	errCh := make(chan error, 1)
	go func() {
		var err error
		if cfg.TLS.Enabled {
			err = httpServer.ListenAndServeTLS(cfg.TLS.CertPath, cfg.TLS.KeyPath)
		} else {
			err = httpServer.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server error: %w", err)
		}
	}()

	logger.Info().Int("port", cfg.Signaling.Port).Msg("voicecore server started")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		logger.Info().Str("signal", sig.String()).Msg("shutdown signal received")
	case err := <-errCh:
		logger.Error().Err(err).Msg("server error, initiating shutdown")
	}

	logger.Info().Msg("starting graceful shutdown")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	sigServer.Shutdown()
	transportMgr.CloseAll()
	groups.Shutdown()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http server shutdown error")
	}

	logger.Info().Msg("voicecore server shut down successfully")
}

func healthHandler(health *observability.HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		result := health.Check(r.Context())
		w.Header().Set("Content-Type", "application/json")
		if result.IsUnhealthy() {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(result)
	}
}

func readinessHandler(health *observability.HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		result := health.Check(r.Context())
		if result.IsUnhealthy() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}

func livenessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}
}
