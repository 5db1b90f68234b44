package system

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/warfair1337/wn-dockctl/internal/model"
)

const (
	bytesPerMB          = 1024 * 1024
	defaultSampleWindow = time.Second
)

// HostCollector reads host CPU and memory through gopsutil. The function
// fields exist so tests can replace the host probes.
type HostCollector struct {
	logger      *slog.Logger
	window      time.Duration
	cpuInfoPath string

	percent       func(ctx context.Context, interval time.Duration, percpu bool) ([]float64, error)
	info          func(ctx context.Context) ([]cpu.InfoStat, error)
	counts        func(ctx context.Context, logical bool) (int, error)
	virtualMemory func(ctx context.Context) (*mem.VirtualMemoryStat, error)
}

func NewHostCollector(window time.Duration, logger *slog.Logger) *HostCollector {
	if window <= 0 {
		window = defaultSampleWindow
	}
	return &HostCollector{
		logger:        logger,
		window:        window,
		cpuInfoPath:   procCPUInfo,
		percent:       cpu.PercentWithContext,
		info:          cpu.InfoWithContext,
		counts:        cpu.CountsWithContext,
		virtualMemory: mem.VirtualMemoryWithContext,
	}
}

// Collect samples CPU utilization over the configured window and reads the
// memory counters. Any failure is fatal to the snapshot.
func (c *HostCollector) Collect(ctx context.Context) (model.HostMetrics, error) {
	cores, err := c.counts(ctx, true)
	if err != nil {
		return model.HostMetrics{}, fmt.Errorf("%w: cpu count: %w", model.ErrHostUnavailable, err)
	}
	if cores <= 0 {
		return model.HostMetrics{}, fmt.Errorf("%w: cpu count is %d", model.ErrHostUnavailable, cores)
	}

	cpuModel := c.cpuModel(ctx)

	vm, err := c.virtualMemory(ctx)
	if err != nil {
		return model.HostMetrics{}, fmt.Errorf("%w: virtual memory: %w", model.ErrHostUnavailable, err)
	}
	if vm == nil || vm.Total == 0 {
		return model.HostMetrics{}, fmt.Errorf("%w: total memory not reported", model.ErrHostUnavailable)
	}

	pct, err := c.percent(ctx, c.window, false)
	if err != nil {
		return model.HostMetrics{}, fmt.Errorf("%w: cpu percent: %w", model.ErrHostUnavailable, err)
	}
	if len(pct) == 0 {
		return model.HostMetrics{}, fmt.Errorf("%w: empty cpu percent sample", model.ErrHostUnavailable)
	}

	free := vm.Free
	if free > vm.Total {
		free = vm.Total
	}
	used := vm.Total - free

	return model.HostMetrics{
		CPUModel:          cpuModel,
		CPUCores:          cores,
		CPUUtilization:    clampUnit(pct[0] / 100),
		TotalMemoryMB:     float64(vm.Total) / bytesPerMB,
		UsedMemoryMB:      float64(used) / bytesPerMB,
		FreeMemoryMB:      float64(free) / bytesPerMB,
		MemoryUtilization: clampUnit(float64(used) / float64(vm.Total)),
	}, nil
}

func (c *HostCollector) cpuModel(ctx context.Context) string {
	infos, err := c.info(ctx)
	if err != nil {
		c.logger.Debug("cpu info unavailable, falling back to cpuinfo", "error", err)
	}
	for _, info := range infos {
		if name := strings.TrimSpace(info.ModelName); name != "" {
			return name
		}
	}
	name, err := readCPUModelFromProc(c.cpuInfoPath)
	if err != nil {
		c.logger.Debug("read cpu model from cpuinfo failed", "path", c.cpuInfoPath, "error", err)
	}
	return name
}

func clampUnit(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
