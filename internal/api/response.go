package api

import (
	"strconv"

	"github.com/warfair1337/wn-dockctl/internal/model"
)

type containersResponse struct {
	Containers []containerView `json:"containers"`
	GPUs       []gpuView       `json:"gpus"`
	CPU        cpuView         `json:"cpu"`
	System     systemView      `json:"system"`
	Warnings   []string        `json:"warnings,omitempty"`
}

type containerView struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	State       string            `json:"state"`
	Uptime      model.Opt[string] `json:"uptime"`
	MemoryMB    model.Opt[string] `json:"memoryMb"`
	GPUMemoryMB model.Opt[int64]  `json:"gpuMemoryMb"`
}

type gpuView struct {
	Index         string `json:"index"`
	Name          string `json:"name"`
	MemoryTotalMB int64  `json:"memoryTotalMb"`
	MemoryUsedMB  int64  `json:"memoryUsedMb"`
	MemoryFreeMB  int64  `json:"memoryFreeMb"`
}

type cpuView struct {
	Model       string  `json:"model"`
	Cores       int     `json:"cores"`
	Utilization float64 `json:"utilization"`
}

type systemView struct {
	TotalMB     string  `json:"totalMb"`
	UsedMB      string  `json:"usedMb"`
	FreeMB      string  `json:"freeMb"`
	Utilization float64 `json:"utilization"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func newContainersResponse(snap model.Snapshot) containersResponse {
	out := containersResponse{
		Containers: make([]containerView, 0, len(snap.Containers)),
		GPUs:       make([]gpuView, 0, len(snap.Devices)),
		CPU: cpuView{
			Model:       snap.Host.CPUModel,
			Cores:       snap.Host.CPUCores,
			Utilization: snap.Host.CPUUtilization,
		},
		System: systemView{
			TotalMB:     oneDecimal(snap.Host.TotalMemoryMB),
			UsedMB:      oneDecimal(snap.Host.UsedMemoryMB),
			FreeMB:      oneDecimal(snap.Host.FreeMemoryMB),
			Utilization: snap.Host.MemoryUtilization,
		},
		Warnings: snap.Warnings,
	}
	for _, c := range snap.Containers {
		v := containerView{
			ID:          c.ID,
			Name:        c.Name,
			State:       string(c.State),
			GPUMemoryMB: c.GPUMemoryMB,
		}
		if d, ok := c.Uptime.Get(); ok {
			v.Uptime = model.Some(model.FormatUptime(d))
		}
		if mb, ok := c.MemoryMB.Get(); ok {
			v.MemoryMB = model.Some(oneDecimal(mb))
		}
		out.Containers = append(out.Containers, v)
	}
	for _, d := range snap.Devices {
		out.GPUs = append(out.GPUs, gpuView{
			Index:         d.Index,
			Name:          d.Name,
			MemoryTotalMB: d.MemoryTotalMB,
			MemoryUsedMB:  d.MemoryUsedMB,
			MemoryFreeMB:  d.MemoryFreeMB,
		})
	}
	return out
}

func oneDecimal(v float64) string {
	return strconv.FormatFloat(v, 'f', 1, 64)
}
