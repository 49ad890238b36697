package asset

import "errors"

// Status represents the processing lifecycle of a media asset.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"

	// Terminal until a new process request arrives.
	StatusReady Status = "ready"
	StatusError Status = "error"
)

// ErrInvalidTransition is returned when a status transition is not allowed.
var ErrInvalidTransition = errors.New("invalid status transition")

// ValidTransitions defines allowed status transitions. Leaving ready or error
// requires an explicit re-process request, which always restarts at processing.
var ValidTransitions = map[Status][]Status{
	StatusPending:    {StatusProcessing},
	StatusProcessing: {StatusReady, StatusError},
	StatusReady:      {StatusProcessing},
	StatusError:      {StatusProcessing},
}

// IsTerminal reports whether no run is active for the status.
func (s Status) IsTerminal() bool {
	return s == StatusReady || s == StatusError
}

// IsValid reports whether s is a known status.
func (s Status) IsValid() bool {
	_, ok := ValidTransitions[s]
	return ok
}

func (s Status) String() string {
	return string(s)
}

// CanTransitionTo checks if a transition from current status to target status is valid.
func (s Status) CanTransitionTo(target Status) bool {
	for _, t := range ValidTransitions[s] {
		if t == target {
			return true
		}
	}
	return false
}

// TransitionTo attempts to transition to the target status and returns error if invalid.
func (s Status) TransitionTo(target Status) (Status, error) {
	if !s.CanTransitionTo(target) {
		return s, ErrInvalidTransition
	}
	return target, nil
}

// SourcesFor lists the statuses that may move to target.
func SourcesFor(target Status) []Status {
	var out []Status
	for _, from := range []Status{StatusPending, StatusProcessing, StatusReady, StatusError} {
		if from.CanTransitionTo(target) {
			out = append(out, from)
		}
	}
	return out
}
