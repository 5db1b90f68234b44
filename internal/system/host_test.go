package system

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warfair1337/wn-dockctl/internal/model"
)

func newFakeHostCollector(t *testing.T) *HostCollector {
	t.Helper()
	c := NewHostCollector(10*time.Millisecond, slog.New(slog.NewTextHandler(io.Discard, nil)))
	c.cpuInfoPath = filepath.Join(t.TempDir(), "missing")
	c.percent = func(context.Context, time.Duration, bool) ([]float64, error) { return []float64{25}, nil }
	c.info = func(context.Context) ([]cpu.InfoStat, error) {
		return []cpu.InfoStat{{ModelName: "AMD EPYC 7763 64-Core Processor"}}, nil
	}
	c.counts = func(context.Context, bool) (int, error) { return 16, nil }
	c.virtualMemory = func(context.Context) (*mem.VirtualMemoryStat, error) {
		return &mem.VirtualMemoryStat{Total: 8192 * bytesPerMB, Free: 2048 * bytesPerMB}, nil
	}
	return c
}

func TestHostCollectorCollect(t *testing.T) {
	c := newFakeHostCollector(t)
	var gotWindow time.Duration
	c.percent = func(_ context.Context, d time.Duration, percpu bool) ([]float64, error) {
		gotWindow = d
		assert.False(t, percpu)
		return []float64{25}, nil
	}

	m, err := c.Collect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 10*time.Millisecond, gotWindow)
	assert.Equal(t, model.HostMetrics{
		CPUModel:          "AMD EPYC 7763 64-Core Processor",
		CPUCores:          16,
		CPUUtilization:    0.25,
		TotalMemoryMB:     8192,
		UsedMemoryMB:      6144,
		FreeMemoryMB:      2048,
		MemoryUtilization: 0.75,
	}, m)
}

func TestHostCollectorFallsBackToCPUInfo(t *testing.T) {
	c := newFakeHostCollector(t)
	c.info = func(context.Context) ([]cpu.InfoStat, error) { return []cpu.InfoStat{{}}, nil }
	c.cpuInfoPath = filepath.Join(t.TempDir(), "cpuinfo")
	require.NoError(t, os.WriteFile(c.cpuInfoPath, []byte("processor\t: 0\nBogoMIPS\t: 48.00\n\nHardware\t: BCM2835\n"), 0o644))

	m, err := c.Collect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "BCM2835", m.CPUModel)
}

func TestHostCollectorClampsUtilization(t *testing.T) {
	c := newFakeHostCollector(t)
	c.percent = func(context.Context, time.Duration, bool) ([]float64, error) { return []float64{100.4}, nil }

	m, err := c.Collect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1.0, m.CPUUtilization)
}

func TestHostCollectorFailuresAreHostUnavailable(t *testing.T) {
	boom := errors.New("boom")
	cases := map[string]func(*HostCollector){
		"counts": func(c *HostCollector) {
			c.counts = func(context.Context, bool) (int, error) { return 0, boom }
		},
		"zero cores": func(c *HostCollector) {
			c.counts = func(context.Context, bool) (int, error) { return 0, nil }
		},
		"memory": func(c *HostCollector) {
			c.virtualMemory = func(context.Context) (*mem.VirtualMemoryStat, error) { return nil, boom }
		},
		"zero memory": func(c *HostCollector) {
			c.virtualMemory = func(context.Context) (*mem.VirtualMemoryStat, error) { return &mem.VirtualMemoryStat{}, nil }
		},
		"percent": func(c *HostCollector) {
			c.percent = func(context.Context, time.Duration, bool) ([]float64, error) { return nil, boom }
		},
		"empty percent": func(c *HostCollector) {
			c.percent = func(context.Context, time.Duration, bool) ([]float64, error) { return nil, nil }
		},
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			c := newFakeHostCollector(t)
			mutate(c)
			_, err := c.Collect(context.Background())
			assert.ErrorIs(t, err, model.ErrHostUnavailable)
		})
	}
}

func TestReadCPUModelFromProcPrefersModelName(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cpuinfo")
	require.NoError(t, os.WriteFile(path, []byte("processor\t: 0\nvendor_id\t: GenuineIntel\nmodel name\t: Intel(R) Xeon(R) Gold 6338\n"), 0o644))

	name, err := readCPUModelFromProc(path)
	require.NoError(t, err)
	assert.Equal(t, "Intel(R) Xeon(R) Gold 6338", name)

	_, err = readCPUModelFromProc(filepath.Join(t.TempDir(), "nope"))
	assert.Error(t, err)
}
