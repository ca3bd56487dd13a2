// Command vortex runs a single Vortex node: the TCP server, the journal
// durability layer, rotation, and an optional outbound peer mirror link.
// Flag handling follows the teacher's cmd/single/main.go shape (flag.Parse,
// then override an env-sourced Config), including the automaxprocs blank
// import for container-aware GOMAXPROCS.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	_ "go.uber.org/automaxprocs"

	"github.com/tom-oleson/vortex/internal/config"
	"github.com/tom-oleson/vortex/internal/journal"
	"github.com/tom-oleson/vortex/internal/peerlink"
	"github.com/tom-oleson/vortex/internal/platform"
	"github.com/tom-oleson/vortex/internal/processor"
	"github.com/tom-oleson/vortex/internal/server"
	"github.com/tom-oleson/vortex/internal/store"
	"github.com/tom-oleson/vortex/internal/telemetry"
	"github.com/tom-oleson/vortex/internal/workerpool"
)

// version is overridden at build time via -ldflags "-X main.version=...".
var version = "dev"

func main() {
	var (
		port        = flag.Int("p", 0, "listen port (0 = use config/env)")
		appLogLevel = flag.Int("l", -1, "application log level (0..8)")
		consoleLvl  = flag.Int("L", -1, "console log level (0..8)")
		rotateSecs  = flag.Int("i", 0, "rotation interval in seconds (clamped 60..86400)")
		keep        = flag.Int("k", -1, "retained journal segments (clamped 0..364)")
		peerAddr    = flag.String("c", "", "peer address host:port")
		name        = flag.String("n", "", "instance name")
		showVersion = flag.Bool("v", false, "print version and exit")
	)
	flag.Parse()

	if *showVersion {
		fmt.Println("vortex", version)
		return
	}

	bootLogger := telemetry.NewLogger(telemetry.LoggerConfig{Level: 4, Format: "pretty", InstanceName: "vortex"})

	cfg, err := config.Load(&bootLogger)
	if err != nil {
		bootLogger.Fatal().Err(err).Msg("failed to load configuration")
	}
	applyFlagOverrides(cfg, *port, *appLogLevel, *consoleLvl, *rotateSecs, *keep, *peerAddr, *name)
	if err := cfg.Validate(); err != nil {
		bootLogger.Fatal().Err(err).Msg("invalid configuration after flag overrides")
	}

	logger := telemetry.NewLogger(telemetry.LoggerConfig{
		Level:        cfg.AppLogLevel,
		Format:       cfg.LogFormat,
		InstanceName: cfg.InstanceName,
	})
	cfg.LogConfig(logger)

	j, err := journal.Open(cfg.JournalDir, cfg.RetainedJournals, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open journal")
	}
	defer j.Close()

	workerCount := platform.DefaultWorkerCount(cfg.WorkerCount)
	pool := workerpool.New(workerCount, cfg.WorkerQueueSize, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	pool.Start(ctx)

	srv := server.New(server.Config{
		Addr:           fmt.Sprintf(":%d", cfg.Port),
		MaxConnections: cfg.MaxConnections,
		RateLimit: server.RateLimiterConfig{
			IPBurst:     cfg.ConnRateLimitIPBurst,
			IPRate:      cfg.ConnRateLimitIPRate,
			GlobalBurst: cfg.ConnRateLimitGlobalBurst,
			GlobalRate:  cfg.ConnRateLimitGlobalRate,
		},
	}, j, pool, logger)

	if err := replayJournalOnStartup(j, srv.Store(), logger); err != nil {
		logger.Fatal().Err(err).Msg("failed to replay journal on startup")
	}

	if err := srv.Start(ctx); err != nil {
		logger.Fatal().Err(err).Msg("failed to start server")
	}

	stopRotation := startRotationLoop(ctx, cfg, j, srv, logger)
	defer stopRotation()

	if cfg.PeerAddr != "" {
		link := peerlink.New(cfg.PeerAddr, srv, logger)
		link.Start()
		defer link.Stop()
	}

	stopMetrics := startMetricsServer(cfg.MetricsAddr, logger)
	defer stopMetrics()

	waitForShutdownSignal()

	logger.Info().Msg("shutting down")
	if err := srv.Shutdown(10 * time.Second); err != nil {
		logger.Warn().Err(err).Msg("shutdown did not complete cleanly")
	}
	pool.Stop()
}

func applyFlagOverrides(cfg *config.Config, port, appLogLevel, consoleLvl, rotateSecs, keep int, peerAddr, name string) {
	if port > 0 {
		cfg.Port = port
	}
	if appLogLevel >= 0 {
		cfg.AppLogLevel = appLogLevel
	}
	if consoleLvl >= 0 {
		cfg.ConsoleLogLevel = consoleLvl
	}
	if rotateSecs > 0 {
		cfg.RotationIntervalSeconds = min(max(rotateSecs, 60), 86400)
	}
	if keep >= 0 {
		cfg.RetainedJournals = min(keep, 364)
	}
	if peerAddr != "" {
		cfg.PeerAddr = peerAddr
	}
	if name != "" {
		cfg.InstanceName = name
	}
}

func waitForShutdownSignal() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh
}

func startMetricsServer(addr string, logger zerolog.Logger) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", telemetry.Handler())
	httpSrv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Warn().Err(err).Msg("metrics server stopped")
		}
	}()
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		httpSrv.Shutdown(ctx)
	}
}

// replayJournalOnStartup scans the journal directory for *.log segments,
// sorts them chronologically, and replays each through a Replayer targeting
// the live store -- mutation only, no notifications, no journal append.
func replayJournalOnStartup(j *journal.Journal, s *store.Store, logger zerolog.Logger) error {
	segments, err := j.ListAllForStartup()
	if err != nil {
		return err
	}
	sort.Strings(segments)

	replayer := processor.NewReplayer(s)
	total := 0
	for _, path := range segments {
		lines, err := journal.ReadLines(path)
		if err != nil {
			return fmt.Errorf("replay %s: %w", path, err)
		}
		replayer.ApplyLines(lines)
		total += len(lines)
	}
	logger.Info().Int("segments", len(segments)).Int("records", total).Msg("startup journal replay complete")
	return nil
}

// startRotationLoop runs the periodic journal rotation: on each tick, the
// journal closes its active segment, and the rebuild callback replays every
// surviving segment into a scratch store that atomically swaps in for the
// live one -- the rotate-replay Processor variant never touches the
// Registry, so rebuilds are silently notification-free by construction.
func startRotationLoop(ctx context.Context, cfg *config.Config, j *journal.Journal, srv *server.Server, logger zerolog.Logger) func() {
	ticker := time.NewTicker(cfg.RotationInterval())
	done := make(chan struct{})

	rebuild := func(segments []string) error {
		scratch := store.New()
		replayer := processor.NewReplayer(scratch)
		for _, path := range segments {
			lines, err := journal.ReadLines(path)
			if err != nil {
				return fmt.Errorf("rebuild %s: %w", path, err)
			}
			replayer.ApplyLines(lines)
		}
		srv.Store().Swap(scratch)
		return nil
	}

	go func() {
		defer close(done)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := j.Rotate(rebuild); err != nil {
					logger.Warn().Err(err).Msg("journal rotation failed")
				} else {
					logger.Info().Msg("journal rotated")
				}
			}
		}
	}()

	return func() {
		ticker.Stop()
		<-done
	}
}
