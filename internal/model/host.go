package model

// HostMetrics is recomputed on every snapshot request.
type HostMetrics struct {
	CPUModel          string  `json:"cpu_model"`
	CPUCores          int     `json:"cpu_cores"`
	CPUUtilization    float64 `json:"cpu_utilization"`
	TotalMemoryMB     float64 `json:"total_memory_mb"`
	UsedMemoryMB      float64 `json:"used_memory_mb"`
	FreeMemoryMB      float64 `json:"free_memory_mb"`
	MemoryUtilization float64 `json:"memory_utilization"`
}
