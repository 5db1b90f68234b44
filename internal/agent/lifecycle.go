package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"
)

func (a *Agent) run(ctx context.Context) error {
	if err := a.conn.Connect(ctx); err != nil {
		a.logger.Warn("initial docker connect failed, serving degraded until the health loop reconnects", "error", err)
	} else {
		a.health.SetRuntimeConnected(true)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.runHTTPServer(gctx)
	})
	g.Go(func() error {
		return a.runHealthLoop(gctx)
	})
	if a.scheduler != nil {
		g.Go(func() error {
			return a.scheduler.Run(gctx)
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func (a *Agent) runHTTPServer(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("http server listening", "addr", a.server.Addr)
		errCh <- a.server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server %s: %w", a.server.Addr, err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
		defer cancel()
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			a.logger.Warn("http server shutdown failed", "error", err)
		}
		return nil
	}
}

func (a *Agent) runHealthLoop(ctx context.Context) error {
	t := time.NewTicker(a.cfg.HealthInterval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			if err := a.conn.Healthy(ctx); err != nil {
				a.logger.Warn("docker health check failed, reconnecting", "error", err)
				a.health.SetRuntimeConnected(false)
				if recErr := a.conn.Reconnect(ctx); recErr != nil {
					if ctx.Err() != nil {
						return nil
					}
					a.logger.Error("docker reconnect failed", "error", recErr)
					continue
				}
				a.logHealth("recovered")
				a.health.SetRuntimeConnected(true)
			} else {
				a.health.SetRuntimeConnected(true)
				a.logHealth("ok")
			}
		}
	}
}

func (a *Agent) logHealth(status string) {
	a.logger.Log(context.Background(), slog.LevelDebug, "agent health", "status", status, "snapshot", a.health.Snapshot())
}

func (a *Agent) shutdown(ctx context.Context) {
	if a.sink != nil {
		if err := a.sink.Close(ctx); err != nil {
			a.logger.Warn("stream sink close failed", "error", err)
		}
		a.health.SetStreamConnected(false)
	}
	if err := a.conn.Close(); err != nil {
		a.logger.Warn("docker client close failed", "error", err)
	}
	a.health.SetRuntimeConnected(false)
}
