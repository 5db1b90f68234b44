package model

import (
	"errors"
	"fmt"
)

var (
	ErrHostUnavailable        = errors.New("host metrics unavailable")
	ErrRuntimeUnavailable     = errors.New("container runtime unavailable")
	ErrAcceleratorQueryFailed = errors.New("accelerator query failed")
	ErrContainerStatsFailed   = errors.New("container stats failed")
	ErrInvalidAction          = errors.New("invalid action")
	ErrActionFailed           = errors.New("container action failed")
)

// Steps of the per-container detail fetch.
const (
	StepInspect = "inspect"
	StepStats   = "stats"
	StepTop     = "top"
)

// ContainerStatsError scopes a detail fetch failure to one container and one step.
type ContainerStatsError struct {
	ContainerID string
	Step        string
	Err         error
}

func (e *ContainerStatsError) Error() string {
	return fmt.Sprintf("container %s: %s: %v", ShortID(e.ContainerID), e.Step, e.Err)
}

func (e *ContainerStatsError) Unwrap() []error {
	return []error{ErrContainerStatsFailed, e.Err}
}

// ShortID truncates a runtime id to the 12 characters docker prints.
func ShortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
