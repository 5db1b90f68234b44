package collector

import (
	"context"
	"log/slog"
	"time"

	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/errgroup"

	"github.com/warfair1337/wn-dockctl/internal/metrics"
	"github.com/warfair1337/wn-dockctl/internal/model"
	"github.com/warfair1337/wn-dockctl/internal/telemetry"
)

type HostSource interface {
	Collect(ctx context.Context) (model.HostMetrics, error)
}

type AcceleratorSource interface {
	Summarize(ctx context.Context) ([]model.AcceleratorDevice, model.AcceleratorProcessMap, error)
}

type ContainerSource interface {
	Enumerate(ctx context.Context) ([]model.ContainerSample, error)
}

// SnapshotCollector queries host, accelerator and runtime concurrently and
// joins the results. Only host and runtime failures abort a snapshot.
type SnapshotCollector struct {
	host       HostSource
	accel      AcceleratorSource
	containers ContainerSource
	logger     *slog.Logger
	metrics    *metrics.Metrics
	now        func() time.Time
}

func NewSnapshotCollector(host HostSource, accel AcceleratorSource, containers ContainerSource, m *metrics.Metrics, logger *slog.Logger) *SnapshotCollector {
	return &SnapshotCollector{
		host:       host,
		accel:      accel,
		containers: containers,
		logger:     logger,
		metrics:    m,
		now:        time.Now,
	}
}

func (c *SnapshotCollector) Collect(ctx context.Context) (model.Snapshot, error) {
	started := c.now()

	var (
		host      model.HostMetrics
		devices   []model.AcceleratorDevice
		pidMemory model.AcceleratorProcessMap
		samples   []model.ContainerSample
		accelErr  error
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		host, err = c.host.Collect(gctx)
		if err != nil {
			c.metrics.SourceFailed(metrics.SourceHost)
		}
		return err
	})
	g.Go(func() error {
		devices, pidMemory, accelErr = c.accel.Summarize(gctx)
		return nil
	})
	g.Go(func() error {
		var err error
		samples, err = c.containers.Enumerate(gctx)
		if err != nil {
			c.metrics.SourceFailed(metrics.SourceRuntime)
		}
		return err
	})
	if err := g.Wait(); err != nil {
		c.logger.Error("snapshot collection failed", "error", err)
		return model.Snapshot{}, err
	}

	var warnings *multierror.Error
	if accelErr != nil {
		c.metrics.SourceFailed(metrics.SourceAccelerator)
		c.logger.Warn("accelerator query failed, reporting no devices", "error", accelErr)
		warnings = multierror.Append(warnings, accelErr)
		devices = nil
		pidMemory = model.AcceleratorProcessMap{}
	}
	for _, s := range samples {
		for _, f := range s.Failures {
			c.metrics.SourceFailed(metrics.SourceContainerStats)
			warnings = multierror.Append(warnings, f)
		}
	}

	snap := telemetry.Aggregate(telemetry.Input{
		Now:       c.now(),
		Host:      host,
		Devices:   devices,
		PIDMemory: pidMemory,
		Samples:   samples,
		Warnings:  warningStrings(warnings),
	})
	c.metrics.ObserveSnapshot(c.now().Sub(started))
	return snap, nil
}

func warningStrings(merr *multierror.Error) []string {
	if merr == nil {
		return nil
	}
	out := make([]string, 0, len(merr.Errors))
	for _, err := range merr.Errors {
		out = append(out, err.Error())
	}
	return out
}
