package stream

import (
	"crypto/tls"
	"log/slog"

	"github.com/warfair1337/wn-dockctl/internal/config"
)

// NewSinkFromConfig returns nil when streaming is disabled.
func NewSinkFromConfig(cfg config.Config, tlsCfg *tls.Config, logger *slog.Logger) (Sink, error) {
	switch cfg.StreamMode {
	case config.StreamModeGRPC:
		return NewGRPCClient(cfg.BackendGRPCAddr, tlsCfg, cfg.BackendToken, cfg.GRPCMethod, cfg.HostID, logger), nil
	case config.StreamModeWebSocket:
		return NewWebSocketClient(cfg.BackendWSURL, cfg.BackendToken, cfg.HostID, tlsCfg, cfg.WSWriteTimeout, cfg.WSPingInterval, logger), nil
	default:
		return nil, nil
	}
}
