package model

import "fmt"

type Action string

const (
	ActionStart   Action = "start"
	ActionStop    Action = "stop"
	ActionRestart Action = "restart"
)

func ParseAction(raw string) (Action, error) {
	switch a := Action(raw); a {
	case ActionStart, ActionStop, ActionRestart:
		return a, nil
	default:
		return "", fmt.Errorf("%w %q", ErrInvalidAction, raw)
	}
}
