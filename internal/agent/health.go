package agent

import (
	"sync/atomic"
	"time"

	"github.com/warfair1337/wn-dockctl/internal/agent/version"
)

type HealthStatus struct {
	info             version.Info
	runtimeConnected atomic.Bool
	streamConnected  atomic.Bool
	lastSnapshotAt   atomic.Int64
}

func NewHealthStatus(info version.Info) *HealthStatus {
	return &HealthStatus{info: info}
}

func (h *HealthStatus) SetRuntimeConnected(ok bool) {
	h.runtimeConnected.Store(ok)
}

func (h *HealthStatus) SetStreamConnected(ok bool) {
	h.streamConnected.Store(ok)
}

func (h *HealthStatus) MarkSnapshot(ts time.Time) {
	h.lastSnapshotAt.Store(ts.UnixNano())
}

func (h *HealthStatus) Snapshot() map[string]any {
	out := map[string]any{
		"host_id":           h.info.HostID,
		"agent_version":     h.info.AgentVersion,
		"stream_mode":       h.info.StreamMode,
		"listen_addr":       h.info.ListenAddr,
		"checked_at":        time.Now().UTC(),
		"runtime_connected": h.runtimeConnected.Load(),
		"stream_connected":  h.streamConnected.Load(),
	}
	if v := h.lastSnapshotAt.Load(); v > 0 {
		out["last_snapshot_at"] = time.Unix(0, v).UTC()
	}
	return out
}
