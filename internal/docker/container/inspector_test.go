package container

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warfair1337/wn-dockctl/internal/docker"
	"github.com/warfair1337/wn-dockctl/internal/docker/dockertest"
	"github.com/warfair1337/wn-dockctl/internal/model"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type failingProvider struct{ err error }

func (p failingProvider) Runtime(context.Context) (docker.RuntimeAPI, error) {
	return nil, p.err
}

func TestEnumerateRunningAndExited(t *testing.T) {
	started := time.Date(2026, 10, 17, 9, 0, 0, 0, time.UTC)
	rt := dockertest.New(
		dockertest.Container{
			ID: "aaa", Name: "trainer", State: "running", StartedAt: started,
			Usage: 300 << 20, Stats: map[string]uint64{"cache": 100 << 20},
			PIDs: []string{"101", "102"},
		},
		dockertest.Container{ID: "bbb", Name: "old-job", State: "exited"},
	)

	samples, err := NewInspector(rt, 2, time.Second, discardLogger()).Enumerate(context.Background())
	require.NoError(t, err)
	require.Len(t, samples, 2)

	running := samples[0]
	assert.Equal(t, model.ContainerSummary{ID: "aaa", Name: "trainer", State: model.ContainerStateRunning}, running.ContainerSummary)
	gotStart, ok := running.StartedAt.Get()
	require.True(t, ok)
	assert.True(t, started.Equal(gotStart))
	assert.Equal(t, model.Some(model.MemoryUsage{UsageBytes: 300 << 20, CacheBytes: 100 << 20}), running.Memory)
	assert.Equal(t, model.Some([]string{"101", "102"}), running.PIDs)
	assert.Empty(t, running.Failures)

	exited := samples[1]
	assert.Equal(t, "old-job", exited.Name)
	assert.False(t, exited.StartedAt.Valid())
	assert.False(t, exited.Memory.Valid())
	assert.False(t, exited.PIDs.Valid())

	for _, call := range rt.Calls() {
		assert.NotContains(t, call, "bbb", "exited containers must not be inspected")
	}
}

func TestEnumerateIsolatesOneFailedContainer(t *testing.T) {
	var cs []dockertest.Container
	for i := 0; i < 5; i++ {
		c := dockertest.Container{
			ID: fmt.Sprintf("c%d", i), Name: fmt.Sprintf("job-%d", i), State: "running",
			StartedAt: time.Now().Add(-time.Minute), Usage: 10 << 20, PIDs: []string{fmt.Sprint(1000 + i)},
		}
		if i == 2 {
			c.StatsErr = errors.New("stats endpoint timed out")
		}
		cs = append(cs, c)
	}
	rt := dockertest.New(cs...)

	samples, err := NewInspector(rt, 3, time.Second, discardLogger()).Enumerate(context.Background())
	require.NoError(t, err)
	require.Len(t, samples, 5)

	for i, s := range samples {
		assert.Equal(t, fmt.Sprintf("c%d", i), s.ID, "runtime order is preserved")
		assert.True(t, s.StartedAt.Valid())
		assert.True(t, s.PIDs.Valid())
		if i == 2 {
			assert.False(t, s.Memory.Valid())
			require.Len(t, s.Failures, 1)
			assert.Equal(t, model.StepStats, s.Failures[0].Step)
			assert.ErrorIs(t, s.Failures[0], model.ErrContainerStatsFailed)
			continue
		}
		assert.True(t, s.Memory.Valid())
		assert.Empty(t, s.Failures)
	}
}

func TestEnumerateMissingPIDColumn(t *testing.T) {
	rt := dockertest.New(dockertest.Container{
		ID: "aaa", Name: "odd", State: "running", StartedAt: time.Now(),
		Titles: []string{"USER", "COMMAND"}, PIDs: []string{"1"},
	})

	samples, err := NewInspector(rt, 1, time.Second, discardLogger()).Enumerate(context.Background())
	require.NoError(t, err)
	require.Len(t, samples, 1)
	assert.False(t, samples[0].PIDs.Valid())
	require.Len(t, samples[0].Failures, 1)
	assert.ErrorIs(t, samples[0].Failures[0], errPIDColumnMissing)
}

func TestEnumeratePIDColumnIsCaseInsensitive(t *testing.T) {
	rt := dockertest.New(dockertest.Container{
		ID: "aaa", Name: "busybox", State: "running", StartedAt: time.Now(),
		Titles: []string{"Pid", "User", "Command"}, PIDs: []string{"77"},
	})

	samples, err := NewInspector(rt, 1, time.Second, discardLogger()).Enumerate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, model.Some([]string{"77"}), samples[0].PIDs)
}

func TestEnumerateCgroupV2UsesInactiveFile(t *testing.T) {
	rt := dockertest.New(dockertest.Container{
		ID: "aaa", Name: "v2", State: "running", StartedAt: time.Now(),
		Usage: 50 << 20, Stats: map[string]uint64{"inactive_file": 20 << 20},
	})

	samples, err := NewInspector(rt, 1, time.Second, discardLogger()).Enumerate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, model.Some(model.MemoryUsage{UsageBytes: 50 << 20, CacheBytes: 20 << 20}), samples[0].Memory)
}

func TestEnumerateListFailureIsFatal(t *testing.T) {
	rt := dockertest.New()
	rt.ListErr = errors.New("connection refused")

	_, err := NewInspector(rt, 1, time.Second, discardLogger()).Enumerate(context.Background())
	assert.ErrorIs(t, err, model.ErrRuntimeUnavailable)

	_, err = NewInspector(failingProvider{err: errors.New("no socket")}, 1, time.Second, discardLogger()).Enumerate(context.Background())
	assert.ErrorIs(t, err, model.ErrRuntimeUnavailable)
}

func TestSummarizeFallsBackToShortID(t *testing.T) {
	rt := dockertest.New(dockertest.Container{ID: "0123456789abcdef", Name: "", State: "Created"})
	samples, err := NewInspector(rt, 1, time.Second, discardLogger()).Enumerate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "0123456789ab", samples[0].Name)
	assert.Equal(t, model.ContainerStateCreated, samples[0].State)
}
