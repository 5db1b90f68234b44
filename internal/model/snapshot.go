package model

import "time"

// Snapshot is one complete, internally consistent telemetry view. It is built
// once per request and never mutated afterwards.
type Snapshot struct {
	Containers  []Container         `json:"containers"`
	Devices     []AcceleratorDevice `json:"devices"`
	Host        HostMetrics         `json:"host"`
	Warnings    []string            `json:"warnings,omitempty"`
	CollectedAt time.Time           `json:"collected_at"`
}
