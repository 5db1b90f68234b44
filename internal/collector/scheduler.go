package collector

import (
	"context"
	"log/slog"
	"time"

	"github.com/warfair1337/wn-dockctl/internal/metrics"
	"github.com/warfair1337/wn-dockctl/internal/model"
	"github.com/warfair1337/wn-dockctl/internal/stream"
)

type SnapshotSource interface {
	Collect(ctx context.Context) (model.Snapshot, error)
}

// Scheduler periodically pushes snapshots to a stream sink.
type Scheduler struct {
	logger       *slog.Logger
	source       SnapshotSource
	sink         stream.Sink
	metrics      *metrics.Metrics
	interval     time.Duration
	errorBackoff time.Duration
}

func NewScheduler(logger *slog.Logger, source SnapshotSource, sink stream.Sink, m *metrics.Metrics, interval, errorBackoff time.Duration) *Scheduler {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	if errorBackoff <= 0 {
		errorBackoff = time.Second
	}
	return &Scheduler{
		logger:       logger,
		source:       source,
		sink:         sink,
		metrics:      m,
		interval:     interval,
		errorBackoff: errorBackoff,
	}
}

func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	if err := s.collectAndSend(ctx); err != nil {
		s.logger.Warn("initial snapshot push failed", "error", err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := s.collectAndSend(ctx); err != nil {
				s.logger.Error("snapshot collect/send failed", "error", err)
				s.sleepWithContext(ctx, s.errorBackoff)
			}
		}
	}
}

func (s *Scheduler) collectAndSend(ctx context.Context) error {
	snap, err := s.source.Collect(ctx)
	if err != nil {
		return err
	}
	err = s.sink.SendSnapshot(ctx, snap)
	s.metrics.StreamSent(err)
	return err
}

func (s *Scheduler) sleepWithContext(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
