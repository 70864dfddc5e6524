package transport

import "errors"

var (
	// ErrInsufficientAgents indicates fewer idle candidate agents than
	// fragments needing assignment.
	ErrInsufficientAgents = errors.New("insufficient agents")

	// ErrAgentConflict indicates an attempted double-assignment of one
	// agent. The CAS transitions make this impossible in normal operation;
	// observing it is a fatal invariant violation, not a retryable state.
	ErrAgentConflict = errors.New("agent conflict: double assignment")

	// ErrConstraintViolated indicates the destination set failed the geo
	// policy for the fragment set's remaining lifetime.
	ErrConstraintViolated = errors.New("geo constraint violated")

	// ErrAuthenticationFailed indicates a delivery handoff rejected by the
	// protocol-order authenticator. The wrapped message carries the
	// confidence for audit.
	ErrAuthenticationFailed = errors.New("authentication failed")

	// ErrUnknownAgent indicates an agent id with no registry entry.
	ErrUnknownAgent = errors.New("unknown agent")

	// ErrUnknownMission indicates a mission id with no record.
	ErrUnknownMission = errors.New("unknown mission")

	// ErrMissionClosed indicates an event for a mission already in a
	// terminal status.
	ErrMissionClosed = errors.New("mission closed")

	// ErrInvalidTransition indicates an event that does not apply to the
	// agent's current state.
	ErrInvalidTransition = errors.New("invalid agent state transition")

	// ErrNotAtDestination indicates an arrival report outside the assigned
	// destination's acceptance radius.
	ErrNotAtDestination = errors.New("agent not at assigned destination")

	// ErrNoFragmentAssigned indicates the agent carries nothing for this
	// mission.
	ErrNoFragmentAssigned = errors.New("no fragment assigned to agent")
)
