// Package version reports the build and identity of a running agent.
package version

import (
	"github.com/warfair1337/wn-dockctl/internal/config"
)

type Info struct {
	HostID       string `json:"host_id"`
	AgentVersion string `json:"agent_version"`
	StreamMode   string `json:"stream_mode"`
	ListenAddr   string `json:"listen_addr"`
}

func Get(cfg config.Config) Info {
	return Info{
		HostID:       cfg.HostID,
		AgentVersion: cfg.AgentVersion,
		StreamMode:   string(cfg.StreamMode),
		ListenAddr:   cfg.ListenAddr(),
	}
}
