package concord

import "errors"

// Sentinel errors returned by the engine's mutation paths. Callers are
// expected to test them with errors.Is.
var (
	// ErrNotFound is returned when a proposal id is unknown.
	ErrNotFound = errors.New("proposal not found")
	// ErrInvalidStatus is returned when an operation is not legal in the
	// proposal's current lifecycle state.
	ErrInvalidStatus = errors.New("invalid proposal status")
	// ErrNotParticipant is returned when the acting agent is not registered
	// or not in the proposal's target set.
	ErrNotParticipant = errors.New("agent is not a participant")
	// ErrNotProposer is returned when someone other than the original
	// proposer attempts to cancel a proposal.
	ErrNotProposer = errors.New("only the proposer may cancel")
	// ErrUnknownProtocol is returned when a protocol name is not registered.
	ErrUnknownProtocol = errors.New("unknown protocol")
	// ErrProtocolDisabled is returned when the resolved protocol is disabled.
	ErrProtocolDisabled = errors.New("protocol is disabled")
	// ErrTooManyProposals is returned when a proposer exceeds its open
	// proposal budget.
	ErrTooManyProposals = errors.New("too many open proposals for agent")
	// ErrSuspended is returned when a suspended participant attempts to vote.
	ErrSuspended = errors.New("participant is suspended")
	// ErrBadSignature is returned when vote signature verification fails.
	ErrBadSignature = errors.New("vote signature verification failed")
	// ErrNoPlan is returned when execution is requested for a proposal
	// without an execution plan.
	ErrNoPlan = errors.New("proposal has no execution plan")
)
