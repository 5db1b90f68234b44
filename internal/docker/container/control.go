package container

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	dockercontainer "github.com/docker/docker/api/types/container"

	"github.com/warfair1337/wn-dockctl/internal/docker"
	"github.com/warfair1337/wn-dockctl/internal/model"
)

const defaultActionTimeout = 30 * time.Second

// Controller forwards lifecycle actions to the runtime. It never retries.
type Controller struct {
	conns   docker.Provider
	logger  *slog.Logger
	timeout time.Duration
}

func NewController(conns docker.Provider, timeout time.Duration, logger *slog.Logger) *Controller {
	if timeout <= 0 {
		timeout = defaultActionTimeout
	}
	return &Controller{conns: conns, logger: logger, timeout: timeout}
}

// Apply validates action before touching the runtime. Unknown actions fail
// with model.ErrInvalidAction; runtime errors with model.ErrActionFailed.
func (c *Controller) Apply(ctx context.Context, containerID, rawAction string) error {
	action, err := model.ParseAction(rawAction)
	if err != nil {
		return err
	}
	containerID = strings.TrimSpace(containerID)
	if containerID == "" {
		return fmt.Errorf("%w: container id is required", model.ErrActionFailed)
	}

	api, err := c.conns.Runtime(ctx)
	if err != nil {
		return fmt.Errorf("%w: %w", model.ErrActionFailed, err)
	}

	actx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	switch action {
	case model.ActionStart:
		err = api.ContainerStart(actx, containerID, dockercontainer.StartOptions{})
	case model.ActionStop:
		err = api.ContainerStop(actx, containerID, dockercontainer.StopOptions{})
	case model.ActionRestart:
		err = api.ContainerRestart(actx, containerID, dockercontainer.StopOptions{})
	default:
		err = errors.New("unhandled action")
	}
	if err != nil {
		c.logger.Error("container action failed", "container_id", model.ShortID(containerID), "action", action, "error", err)
		return fmt.Errorf("%w: %s %s: %w", model.ErrActionFailed, action, model.ShortID(containerID), err)
	}
	c.logger.Info("container action applied", "container_id", model.ShortID(containerID), "action", action)
	return nil
}
