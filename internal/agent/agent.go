package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/warfair1337/wn-dockctl/internal/accelerator"
	"github.com/warfair1337/wn-dockctl/internal/agent/version"
	"github.com/warfair1337/wn-dockctl/internal/api"
	"github.com/warfair1337/wn-dockctl/internal/collector"
	"github.com/warfair1337/wn-dockctl/internal/config"
	"github.com/warfair1337/wn-dockctl/internal/docker"
	"github.com/warfair1337/wn-dockctl/internal/docker/container"
	"github.com/warfair1337/wn-dockctl/internal/metrics"
	"github.com/warfair1337/wn-dockctl/internal/model"
	"github.com/warfair1337/wn-dockctl/internal/stream"
	"github.com/warfair1337/wn-dockctl/internal/system"
)

type Agent struct {
	cfg       config.Config
	logger    *slog.Logger
	conn      *docker.ConnManager
	server    *http.Server
	scheduler *collector.Scheduler
	sink      stream.Sink
	health    *HealthStatus
}

func New(cfg config.Config, logger *slog.Logger) (*Agent, error) {
	tlsCfg, err := cfg.TLSConfig()
	if err != nil {
		return nil, fmt.Errorf("tls config: %w", err)
	}

	sink, err := stream.NewSinkFromConfig(cfg, tlsCfg, logger)
	if err != nil {
		return nil, fmt.Errorf("stream sink: %w", err)
	}

	m := metrics.New()
	health := NewHealthStatus(version.Get(cfg))
	conn := docker.NewConnManager(cfg.DockerHost, cfg.ReconnectWait, logger)

	snapshots := &healthCollector{
		source: collector.NewSnapshotCollector(
			system.NewHostCollector(cfg.CPUSampleWindow, logger),
			accelerator.NewAccountant(cfg.NvidiaSMIPath, cfg.AccelTimeout, nil, logger),
			container.NewInspector(conn, cfg.InspectWorkers, cfg.RuntimeTimeout, logger),
			m,
			logger,
		),
		health: health,
	}
	controller := container.NewController(conn, cfg.ActionTimeout, logger)

	handler := api.NewServer(snapshots, controller, api.Options{
		StaticDir:      cfg.StaticDir,
		RequestTimeout: cfg.RequestTimeout,
		Health:         health,
		Metrics:        m,
		Logger:         logger,
	})

	a := &Agent{
		cfg:    cfg,
		logger: logger,
		conn:   conn,
		server: &http.Server{
			Addr:              cfg.ListenAddr(),
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		},
		health: health,
	}
	if sink != nil {
		a.sink = &healthSink{sink: sink, health: health}
		a.scheduler = collector.NewScheduler(logger, snapshots, a.sink, m, cfg.StreamInterval, cfg.StreamBackoff)
	}
	return a, nil
}

func (a *Agent) Run(ctx context.Context) error {
	a.logger.Info("starting wn-dockctl", "host_id", a.cfg.HostID, "listen_addr", a.cfg.ListenAddr(), "docker_host", a.cfg.DockerHost, "stream_mode", a.cfg.StreamMode)
	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()

	runErrCh := make(chan error, 1)
	go func() {
		runErrCh <- a.run(runCtx)
	}()

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	var runErr error
	select {
	case runErr = <-runErrCh:
	case sig := <-sigCh:
		a.logger.Info("shutdown signal received, starting graceful shutdown", "signal", sig.String(), "timeout", a.cfg.ShutdownTimeout)
		cancelRun()

		graceTimer := time.NewTimer(a.cfg.ShutdownTimeout)
		defer graceTimer.Stop()

		select {
		case runErr = <-runErrCh:
		case sig2 := <-sigCh:
			a.logger.Warn("second signal received, forcing immediate shutdown", "signal", sig2.String())
			runErr = context.Canceled
		case <-graceTimer.C:
			a.logger.Warn("graceful shutdown timeout reached, forcing shutdown", "timeout", a.cfg.ShutdownTimeout)
			runErr = context.DeadlineExceeded
		}
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancelShutdown()
	a.shutdown(shutdownCtx)

	if runErr != nil && !errors.Is(runErr, context.Canceled) && !errors.Is(runErr, context.DeadlineExceeded) {
		return runErr
	}
	a.logger.Info("wn-dockctl stopped")
	return nil
}

func BuildLogger(cfg config.Config) *slog.Logger {
	level := slog.LevelInfo
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	hOpts := &slog.HandlerOptions{Level: level}
	if cfg.LogJSON {
		return slog.New(slog.NewJSONHandler(os.Stdout, hOpts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, hOpts))
}

// healthCollector records snapshot outcomes on the health status.
type healthCollector struct {
	source collector.SnapshotSource
	health *HealthStatus
}

func (c *healthCollector) Collect(ctx context.Context) (model.Snapshot, error) {
	snap, err := c.source.Collect(ctx)
	if err != nil {
		if errors.Is(err, model.ErrRuntimeUnavailable) {
			c.health.SetRuntimeConnected(false)
		}
		return snap, err
	}
	c.health.SetRuntimeConnected(true)
	c.health.MarkSnapshot(snap.CollectedAt)
	return snap, nil
}

type healthSink struct {
	sink   stream.Sink
	health *HealthStatus
}

func (s *healthSink) SendSnapshot(ctx context.Context, snap model.Snapshot) error {
	err := s.sink.SendSnapshot(ctx, snap)
	s.health.SetStreamConnected(err == nil)
	return err
}

func (s *healthSink) Close(ctx context.Context) error {
	return s.sink.Close(ctx)
}
