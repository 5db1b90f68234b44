package docker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
)

const (
	DefaultHost        = "unix:///var/run/docker.sock"
	defaultPingTimeout = 5 * time.Second
)

// RuntimeAPI is the subset of the Docker SDK client used by this agent.
// *client.Client satisfies it and is safe for concurrent use.
type RuntimeAPI interface {
	ContainerList(ctx context.Context, options container.ListOptions) ([]types.Container, error)
	ContainerInspect(ctx context.Context, containerID string) (types.ContainerJSON, error)
	ContainerStats(ctx context.Context, containerID string, stream bool) (types.ContainerStats, error)
	ContainerTop(ctx context.Context, containerID string, arguments []string) (container.ContainerTopOKBody, error)
	ContainerStart(ctx context.Context, containerID string, options container.StartOptions) error
	ContainerStop(ctx context.Context, containerID string, options container.StopOptions) error
	ContainerRestart(ctx context.Context, containerID string, options container.StopOptions) error
}

// Provider hands out the current runtime client.
type Provider interface {
	Runtime(ctx context.Context) (RuntimeAPI, error)
}

// ConnManager owns the single Docker client shared by inspection and control.
type ConnManager struct {
	mu        sync.RWMutex
	client    *client.Client
	host      string
	logger    *slog.Logger
	retryWait time.Duration
	maxWait   time.Duration
}

func NewConnManager(host string, retryWait time.Duration, logger *slog.Logger) *ConnManager {
	if host == "" {
		host = DefaultHost
	}
	if retryWait <= 0 {
		retryWait = 3 * time.Second
	}
	return &ConnManager{
		host:      host,
		logger:    logger,
		retryWait: retryWait,
		maxWait:   10 * retryWait,
	}
}

// Runtime returns the connected client, dialing once if there is none yet.
func (m *ConnManager) Runtime(ctx context.Context) (RuntimeAPI, error) {
	m.mu.RLock()
	c := m.client
	m.mu.RUnlock()
	if c != nil {
		return c, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.connectLocked(ctx); err != nil {
		return nil, err
	}
	return m.client, nil
}

// Connect performs a single connection attempt.
func (m *ConnManager) Connect(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connectLocked(ctx)
}

// Reconnect drops the current client and retries with exponential backoff
// until it succeeds or ctx is done.
func (m *ConnManager) Reconnect(ctx context.Context) error {
	m.mu.Lock()
	if err := m.closeLocked(); err != nil {
		m.logger.Warn("docker client close failed", "error", err)
	}
	m.mu.Unlock()

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = m.retryWait
	b.MaxInterval = m.maxWait
	b.MaxElapsedTime = 0

	return backoff.RetryNotify(
		func() error { return m.Connect(ctx) },
		backoff.WithContext(b, ctx),
		func(err error, wait time.Duration) {
			m.logger.Error("docker connect failed", "host", m.host, "error", err, "retry_in", wait)
		},
	)
}

func (m *ConnManager) Healthy(ctx context.Context) error {
	m.mu.RLock()
	c := m.client
	m.mu.RUnlock()
	if c == nil {
		return fmt.Errorf("docker client not connected")
	}
	pctx, cancel := context.WithTimeout(ctx, defaultPingTimeout)
	defer cancel()
	if _, err := c.Ping(pctx); err != nil {
		return fmt.Errorf("docker ping failed: %w", err)
	}
	return nil
}

func (m *ConnManager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closeLocked()
}

func (m *ConnManager) closeLocked() error {
	if m.client == nil {
		return nil
	}
	err := m.client.Close()
	m.client = nil
	return err
}

func (m *ConnManager) connectLocked(ctx context.Context) error {
	if m.client != nil {
		return nil
	}

	c, err := client.NewClientWithOpts(
		client.FromEnv,
		client.WithHost(m.host),
		client.WithAPIVersionNegotiation(),
	)
	if err != nil {
		return fmt.Errorf("build docker client for %s: %w", m.host, err)
	}

	pctx, cancel := context.WithTimeout(ctx, defaultPingTimeout)
	defer cancel()
	if _, err := c.Ping(pctx); err != nil {
		_ = c.Close()
		return fmt.Errorf("ping docker at %s: %w", m.host, err)
	}

	m.client = c
	m.logger.Info("docker connected", "host", m.host, "api_version", c.ClientVersion())
	return nil
}
