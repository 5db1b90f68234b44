package stream

import (
	"context"
	"encoding/json"

	"github.com/warfair1337/wn-dockctl/internal/model"
)

// Sink delivers snapshots to a remote backend.
type Sink interface {
	SendSnapshot(ctx context.Context, s model.Snapshot) error
	Close(ctx context.Context) error
}

type FrameType string

const FrameTypeSnapshot FrameType = "container_snapshot"

// SnapshotFrame is the transport framing shared by the grpc and websocket sinks.
type SnapshotFrame struct {
	Type          FrameType      `json:"type"`
	HostID        string         `json:"host_id"`
	TimestampUnix int64          `json:"timestamp_unix"`
	Snapshot      model.Snapshot `json:"snapshot"`
}

func NewSnapshotFrame(hostID string, s model.Snapshot) SnapshotFrame {
	return SnapshotFrame{
		Type:          FrameTypeSnapshot,
		HostID:        hostID,
		TimestampUnix: s.CollectedAt.Unix(),
		Snapshot:      s,
	}
}

func EncodeFrame(f SnapshotFrame) ([]byte, error) {
	return json.Marshal(f)
}
