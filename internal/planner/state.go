package planner

import (
	"slices"

	"github.com/playperu/wayfinder/internal/directions"
)

// Status is the phase of a route request.
type Status string

const (
	StatusIdle    Status = "idle"
	StatusLoading Status = "loading"
	StatusLoaded  Status = "loaded"
	StatusFailed  Status = "failed"
)

// validTransitions defines the request lifecycle. loading→loading is a
// re-trigger that supersedes the in-flight lookup; →idle is a session reset.
var validTransitions = map[Status][]Status{
	StatusIdle:    {StatusLoading, StatusIdle},
	StatusLoading: {StatusLoading, StatusLoaded, StatusFailed, StatusIdle},
	StatusLoaded:  {StatusLoading, StatusIdle},
	StatusFailed:  {StatusLoading, StatusIdle},
}

// IsValid returns true if the status is a recognized request status.
func (s Status) IsValid() bool {
	_, exists := validTransitions[s]
	return exists
}

// CanTransitionTo returns true if a transition from this status to the target is allowed.
func (s Status) CanTransitionTo(target Status) bool {
	return slices.Contains(validTransitions[s], target)
}

func (s Status) String() string {
	return string(s)
}

// State is the request state of one planning session. Routes is set only
// when Status is loaded; Err only when it is failed.
type State struct {
	Status Status
	Routes []directions.Route
	Err    error
}

func idle() State { return State{Status: StatusIdle} }

// Query is the pair of free-text inputs of a planning session.
type Query struct {
	Start       string
	Destination string
}

// Snapshot is a consistent copy of a controller's query and state.
type Snapshot struct {
	Query Query
	State State
}
