package game

import (
	"errors"
	"fmt"
)

// Status is a cycle's lifecycle state.
type Status uint8

const (
	StatusAlive Status = iota
	StatusDead
	StatusRespawning
	StatusBoosting
)

// ErrInvalidTransition is returned when a status change is not allowed.
var ErrInvalidTransition = errors.New("invalid status transition")

// String returns the wire name of the status.
func (s Status) String() string {
	switch s {
	case StatusAlive:
		return "ALIVE"
	case StatusDead:
		return "DEAD"
	case StatusRespawning:
		return "RESPAWNING"
	case StatusBoosting:
		return "BOOSTING"
	default:
		return "UNKNOWN"
	}
}

// ParseStatus is the inverse of String.
func ParseStatus(s string) (Status, bool) {
	switch s {
	case "ALIVE":
		return StatusAlive, true
	case "DEAD":
		return StatusDead, true
	case "RESPAWNING":
		return StatusRespawning, true
	case "BOOSTING":
		return StatusBoosting, true
	}
	return StatusAlive, false
}

// Active reports whether a cycle in this status moves and collides.
func (s Status) Active() bool {
	return s == StatusAlive || s == StatusBoosting
}

var transitions = map[Status][]Status{
	StatusAlive:      {StatusDead, StatusBoosting},
	StatusDead:       {StatusRespawning, StatusAlive},
	StatusRespawning: {StatusAlive},
	StatusBoosting:   {StatusAlive, StatusDead},
}

// CanTransition reports whether from → to is allowed.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

func transitionError(from, to Status) error {
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
}
