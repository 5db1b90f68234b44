package main

import (
	"context"
	"errors"
	"log"
	"os"

	"github.com/spf13/pflag"

	"github.com/warfair1337/wn-dockctl/internal/agent"
	"github.com/warfair1337/wn-dockctl/internal/config"
)

func main() {
	cfg, err := config.Load(os.Args[1:])
	if errors.Is(err, pflag.ErrHelp) {
		return
	}
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger := agent.BuildLogger(cfg)
	a, err := agent.New(cfg, logger)
	if err != nil {
		logger.Error("agent initialization failed", "error", err)
		os.Exit(1)
	}

	if err := a.Run(context.Background()); err != nil {
		logger.Error("agent runtime failed", "error", err)
		os.Exit(1)
	}
}
