package model

import (
	"fmt"
	"time"
)

type ContainerState string

const (
	ContainerStateCreated    ContainerState = "created"
	ContainerStateRunning    ContainerState = "running"
	ContainerStatePaused     ContainerState = "paused"
	ContainerStateRestarting ContainerState = "restarting"
	ContainerStateExited     ContainerState = "exited"
	ContainerStateDead       ContainerState = "dead"
)

// Container is one row of a snapshot. Uptime, MemoryMB and GPUMemoryMB are
// unavailable unless the container is running and the matching fetch succeeded.
type Container struct {
	ID          string             `json:"id"`
	Name        string             `json:"name"`
	State       ContainerState     `json:"state"`
	Uptime      Opt[time.Duration] `json:"uptime"`
	MemoryMB    Opt[float64]       `json:"memory_mb"`
	GPUMemoryMB Opt[int64]         `json:"gpu_memory_mb"`
}

type ContainerSummary struct {
	ID    string
	Name  string
	State ContainerState
}

// MemoryUsage is the raw runtime memory sample of one container.
type MemoryUsage struct {
	UsageBytes uint64
	CacheBytes uint64
}

// ContainerSample is what the runtime reported for one container within a
// single request cycle. Fields stay unavailable when the container is not
// running or when the fetch that feeds them failed; Failures records why.
type ContainerSample struct {
	ContainerSummary
	StartedAt Opt[time.Time]
	Memory    Opt[MemoryUsage]
	PIDs      Opt[[]string]
	Failures  []*ContainerStatsError
}

func (s ContainerSample) Running() bool {
	return s.State == ContainerStateRunning
}

// FormatUptime renders d as "3h 4m 5s".
func FormatUptime(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int64(d / time.Second)
	return fmt.Sprintf("%dh %dm %ds", total/3600, (total/60)%60, total%60)
}
