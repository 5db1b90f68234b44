package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warfair1337/wn-dockctl/internal/agent/version"
	"github.com/warfair1337/wn-dockctl/internal/config"
	"github.com/warfair1337/wn-dockctl/internal/model"
)

type stubSource struct {
	snap model.Snapshot
	err  error
}

func (s stubSource) Collect(context.Context) (model.Snapshot, error) {
	return s.snap, s.err
}

type stubSink struct{ err error }

func (s stubSink) SendSnapshot(context.Context, model.Snapshot) error { return s.err }
func (s stubSink) Close(context.Context) error                        { return nil }

func TestHealthSnapshot(t *testing.T) {
	h := NewHealthStatus(version.Info{HostID: "box", AgentVersion: "v0.1.0", StreamMode: "none", ListenAddr: "0.0.0.0:3000"})

	got := h.Snapshot()
	assert.Equal(t, "box", got["host_id"])
	assert.Equal(t, "0.0.0.0:3000", got["listen_addr"])
	assert.WithinDuration(t, time.Now(), got["checked_at"].(time.Time), time.Minute)
	assert.Equal(t, false, got["runtime_connected"])
	assert.NotContains(t, got, "last_snapshot_at")

	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	h.SetRuntimeConnected(true)
	h.MarkSnapshot(at)
	got = h.Snapshot()
	assert.Equal(t, true, got["runtime_connected"])
	assert.Equal(t, at, got["last_snapshot_at"])
}

func TestHealthCollector(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	h := NewHealthStatus(version.Info{})

	ok := &healthCollector{source: stubSource{snap: model.Snapshot{CollectedAt: at}}, health: h}
	_, err := ok.Collect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, true, h.Snapshot()["runtime_connected"])
	assert.Equal(t, at, h.Snapshot()["last_snapshot_at"])

	down := &healthCollector{source: stubSource{err: fmt.Errorf("%w: list: refused", model.ErrRuntimeUnavailable)}, health: h}
	_, err = down.Collect(context.Background())
	assert.ErrorIs(t, err, model.ErrRuntimeUnavailable)
	assert.Equal(t, false, h.Snapshot()["runtime_connected"])

	hostDown := &healthCollector{source: stubSource{err: model.ErrHostUnavailable}, health: h}
	h.SetRuntimeConnected(true)
	_, err = hostDown.Collect(context.Background())
	assert.ErrorIs(t, err, model.ErrHostUnavailable)
	assert.Equal(t, true, h.Snapshot()["runtime_connected"])
}

func TestHealthSink(t *testing.T) {
	h := NewHealthStatus(version.Info{})

	require.NoError(t, (&healthSink{sink: stubSink{}, health: h}).SendSnapshot(context.Background(), model.Snapshot{}))
	assert.Equal(t, true, h.Snapshot()["stream_connected"])

	err := (&healthSink{sink: stubSink{err: errors.New("broken pipe")}, health: h}).SendSnapshot(context.Background(), model.Snapshot{})
	assert.Error(t, err)
	assert.Equal(t, false, h.Snapshot()["stream_connected"])
}

func TestBuildLogger(t *testing.T) {
	cfg := config.Defaults()
	cfg.LogLevel = "warn"
	logger := BuildLogger(cfg)
	assert.False(t, logger.Enabled(context.Background(), slog.LevelInfo))
	assert.True(t, logger.Enabled(context.Background(), slog.LevelWarn))

	cfg.LogLevel = "debug"
	cfg.LogJSON = true
	logger = BuildLogger(cfg)
	assert.True(t, logger.Enabled(context.Background(), slog.LevelDebug))
	_, isJSON := logger.Handler().(*slog.JSONHandler)
	assert.True(t, isJSON)
}

func TestNewWithoutStreaming(t *testing.T) {
	cfg := config.Defaults()
	cfg.ListenPort = 18080

	a, err := New(cfg, BuildLogger(cfg))
	require.NoError(t, err)
	assert.Nil(t, a.scheduler)
	assert.Nil(t, a.sink)
	assert.Equal(t, "0.0.0.0:18080", a.server.Addr)
	assert.NotNil(t, a.server.Handler)
}
