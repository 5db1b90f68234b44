// Package telemetry joins the per-source samples of one request into a
// snapshot. It performs no I/O.
package telemetry

import (
	"math"
	"time"

	"github.com/warfair1337/wn-dockctl/internal/model"
)

const bytesPerMB = 1024 * 1024

// Input is everything fetched during one request cycle.
type Input struct {
	Now       time.Time
	Host      model.HostMetrics
	Devices   []model.AcceleratorDevice
	PIDMemory model.AcceleratorProcessMap
	Samples   []model.ContainerSample
	Warnings  []string
}

// Aggregate builds the snapshot. Containers keep the order of in.Samples.
// A running container's GPU memory is the sum of PIDMemory over its own pids;
// a nil or empty map yields zero for every running container.
func Aggregate(in Input) model.Snapshot {
	containers := make([]model.Container, 0, len(in.Samples))
	for _, s := range in.Samples {
		containers = append(containers, joinContainer(in.Now, s, in.PIDMemory))
	}

	devices := make([]model.AcceleratorDevice, len(in.Devices))
	copy(devices, in.Devices)

	var warnings []string
	if len(in.Warnings) > 0 {
		warnings = append(warnings, in.Warnings...)
	}

	return model.Snapshot{
		Containers:  containers,
		Devices:     devices,
		Host:        in.Host,
		Warnings:    warnings,
		CollectedAt: in.Now,
	}
}

func joinContainer(now time.Time, s model.ContainerSample, pidMemory model.AcceleratorProcessMap) model.Container {
	c := model.Container{ID: s.ID, Name: s.Name, State: s.State}
	if !s.Running() {
		return c
	}

	if startedAt, ok := s.StartedAt.Get(); ok {
		c.Uptime = model.Some(Uptime(now, startedAt))
	}
	if mem, ok := s.Memory.Get(); ok {
		c.MemoryMB = model.Some(ResidentMB(mem))
	}
	if pids, ok := s.PIDs.Get(); ok {
		c.GPUMemoryMB = model.Some(pidMemory.MemoryOf(pids))
	}
	return c
}

// Uptime truncates to whole seconds and never goes negative, which guards
// against clock skew between the daemon and this host.
func Uptime(now, startedAt time.Time) time.Duration {
	d := now.Sub(startedAt)
	if d < 0 {
		return 0
	}
	return d.Truncate(time.Second)
}

// ResidentMB is usage minus page cache in MiB, clamped at zero and rounded to
// one decimal place.
func ResidentMB(m model.MemoryUsage) float64 {
	if m.CacheBytes >= m.UsageBytes {
		return 0
	}
	mb := float64(m.UsageBytes-m.CacheBytes) / bytesPerMB
	return math.Round(mb*10) / 10
}
