package collector

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warfair1337/wn-dockctl/internal/docker/container"
	"github.com/warfair1337/wn-dockctl/internal/docker/dockertest"
	"github.com/warfair1337/wn-dockctl/internal/metrics"
	"github.com/warfair1337/wn-dockctl/internal/model"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeHost struct {
	m   model.HostMetrics
	err error
}

func (f fakeHost) Collect(context.Context) (model.HostMetrics, error) {
	return f.m, f.err
}

type fakeAccel struct {
	devices []model.AcceleratorDevice
	pids    model.AcceleratorProcessMap
	err     error
}

func (f fakeAccel) Summarize(context.Context) ([]model.AcceleratorDevice, model.AcceleratorProcessMap, error) {
	return f.devices, f.pids, f.err
}

var testHost = model.HostMetrics{CPUModel: "Xeon", CPUCores: 8, CPUUtilization: 0.5, TotalMemoryMB: 1024, UsedMemoryMB: 512, FreeMemoryMB: 512, MemoryUtilization: 0.5}

func fixtureRuntime() *dockertest.Runtime {
	return dockertest.New(
		dockertest.Container{
			ID: "run1", Name: "trainer", State: "running", StartedAt: time.Now().Add(-time.Hour),
			Usage: 200 << 20, Stats: map[string]uint64{"cache": 50 << 20}, PIDs: []string{"4242", "4243"},
		},
		dockertest.Container{ID: "exit1", Name: "old", State: "exited"},
	)
}

func newCollector(host HostSource, accel AcceleratorSource, rt *dockertest.Runtime) *SnapshotCollector {
	return NewSnapshotCollector(host, accel, container.NewInspector(rt, 4, time.Second, discardLogger()), metrics.New(), discardLogger())
}

func TestCollectEndToEndFixture(t *testing.T) {
	accel := fakeAccel{
		devices: []model.AcceleratorDevice{{Index: "0", Name: "T4", MemoryTotalMB: 15360, MemoryUsedMB: 150, MemoryFreeMB: 15210}},
		pids:    model.AcceleratorProcessMap{"4242": 100, "4243": 50},
	}
	snap, err := newCollector(fakeHost{m: testHost}, accel, fixtureRuntime()).Collect(context.Background())
	require.NoError(t, err)

	require.Len(t, snap.Containers, 2)
	running, exited := snap.Containers[0], snap.Containers[1]
	assert.Equal(t, "trainer", running.Name)
	assert.Equal(t, model.Some[int64](150), running.GPUMemoryMB)
	assert.Equal(t, model.Some(150.0), running.MemoryMB)
	assert.True(t, running.Uptime.Valid())

	assert.Equal(t, model.ContainerStateExited, exited.State)
	assert.False(t, exited.Uptime.Valid())
	assert.False(t, exited.MemoryMB.Valid())
	assert.False(t, exited.GPUMemoryMB.Valid())

	assert.Len(t, snap.Devices, 1)
	assert.Equal(t, testHost, snap.Host)
	assert.Empty(t, snap.Warnings)
}

func TestCollectAcceleratorFailureDegrades(t *testing.T) {
	accel := fakeAccel{
		devices: []model.AcceleratorDevice{{Index: "0"}},
		pids:    model.AcceleratorProcessMap{"4242": 100},
		err:     errors.New("accelerator query failed: device row 0: expected 5 fields, got 2"),
	}
	snap, err := newCollector(fakeHost{m: testHost}, accel, fixtureRuntime()).Collect(context.Background())
	require.NoError(t, err)

	assert.NotNil(t, snap.Devices)
	assert.Empty(t, snap.Devices)
	assert.Equal(t, model.Some[int64](0), snap.Containers[0].GPUMemoryMB)
	assert.True(t, snap.Containers[0].MemoryMB.Valid())
	assert.Equal(t, testHost, snap.Host)
	require.Len(t, snap.Warnings, 1)
	assert.Contains(t, snap.Warnings[0], "expected 5 fields")
}

func TestCollectContainerFailureBecomesWarning(t *testing.T) {
	rt := dockertest.New(
		dockertest.Container{ID: "ok", Name: "ok", State: "running", StartedAt: time.Now(), PIDs: []string{"1"}},
		dockertest.Container{ID: "bad", Name: "bad", State: "running", StartedAt: time.Now(), TopErr: errors.New("top failed")},
	)

	snap, err := newCollector(fakeHost{m: testHost}, fakeAccel{pids: model.AcceleratorProcessMap{"1": 5}}, rt).Collect(context.Background())
	require.NoError(t, err)
	require.Len(t, snap.Containers, 2)
	assert.Equal(t, model.Some[int64](5), snap.Containers[0].GPUMemoryMB)
	assert.False(t, snap.Containers[1].GPUMemoryMB.Valid())
	assert.True(t, snap.Containers[1].MemoryMB.Valid())
	require.Len(t, snap.Warnings, 1)
	assert.Contains(t, snap.Warnings[0], "top failed")
}

func TestCollectFatalSources(t *testing.T) {
	_, err := newCollector(fakeHost{err: model.ErrHostUnavailable}, fakeAccel{}, fixtureRuntime()).Collect(context.Background())
	assert.ErrorIs(t, err, model.ErrHostUnavailable)

	rt := fixtureRuntime()
	rt.ListErr = errors.New("dial unix /var/run/docker.sock: connect: no such file or directory")
	_, err = newCollector(fakeHost{m: testHost}, fakeAccel{}, rt).Collect(context.Background())
	assert.ErrorIs(t, err, model.ErrRuntimeUnavailable)
}

type recordingSink struct {
	mu    sync.Mutex
	snaps []model.Snapshot
	err   error
}

func (s *recordingSink) SendSnapshot(_ context.Context, snap model.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snaps = append(s.snaps, snap)
	return s.err
}

func (s *recordingSink) Close(context.Context) error { return nil }

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.snaps)
}

func TestSchedulerPushesSnapshots(t *testing.T) {
	sink := &recordingSink{}
	source := newCollector(fakeHost{m: testHost}, fakeAccel{}, fixtureRuntime())
	s := NewScheduler(discardLogger(), source, sink, nil, 10*time.Millisecond, time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.Eventually(t, func() bool { return sink.count() >= 2 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	assert.NoError(t, <-done)
}
