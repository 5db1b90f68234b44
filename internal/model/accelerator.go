package model

type AcceleratorDevice struct {
	Index         string `json:"index"`
	Name          string `json:"name"`
	MemoryTotalMB int64  `json:"memory_total_mb"`
	MemoryUsedMB  int64  `json:"memory_used_mb"`
	MemoryFreeMB  int64  `json:"memory_free_mb"`
}

// AcceleratorProcessMap maps a host pid to the accelerator memory (MiB) used
// by that process. It is rebuilt for every snapshot and must not be shared
// across requests.
type AcceleratorProcessMap map[string]int64

// MemoryOf sums the accelerator memory of the given pids. Unknown pids count
// as zero.
func (m AcceleratorProcessMap) MemoryOf(pids []string) int64 {
	var total int64
	for _, pid := range pids {
		total += m[pid]
	}
	return total
}
