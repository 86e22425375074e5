package concord

import "time"

// EventType names a lifecycle transition recorded in the audit log.
type EventType string

// The audited lifecycle transitions.
const (
	EventProposalCreated    EventType = "proposal_created"
	EventVotingStarted      EventType = "voting_started"
	EventVoteCast           EventType = "vote_cast"
	EventConsensusReached   EventType = "consensus_reached"
	EventProposalExpired    EventType = "proposal_expired"
	EventProposalCancelled  EventType = "proposal_cancelled"
	EventExecutionStarted   EventType = "execution_started"
	EventExecutionCompleted EventType = "execution_completed"
	EventExecutionFailed    EventType = "execution_failed"
	EventParticipantJoined  EventType = "participant_joined"
)

// Event is one append-only audit record.
type Event struct {
	Type      EventType      `json:"type"`
	Proposal  ProposalID     `json:"proposal,omitempty"`
	Agent     AgentID        `json:"agent,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	Data      map[string]any `json:"data,omitempty"`
}

// Typed events dispatched on the event loop. Metrics and the audit log
// observe these; emission never blocks the emitting component.

// ProposalCreatedEvent is dispatched when a proposal enters the store.
type ProposalCreatedEvent struct {
	Proposal ProposalID
	Type     ProposalType
	Proposer AgentID
	Protocol string
	Targets  int
}

// VotingStartedEvent is dispatched once the broadcast step has completed and
// the proposal accepts votes.
type VotingStartedEvent struct {
	Proposal ProposalID
}

// VoteCastEvent is dispatched for every accepted vote, including re-votes.
type VoteCastEvent struct {
	Proposal ProposalID
	Agent    AgentID
	Decision Decision
	Weight   float64
	Revote   bool
}

// ConsensusReachedEvent is dispatched when a proposal is finalized with a
// result, whether during voting or at expiry.
type ConsensusReachedEvent struct {
	Proposal ProposalID
	Protocol string
	Result   ConsensusResult
	Elapsed  time.Duration
	Targets  []AgentID
	Voters   []AgentID
}

// ProposalExpiredEvent is dispatched when a proposal times out without
// reaching its threshold. NonVoters lists the penalized target agents.
type ProposalExpiredEvent struct {
	Proposal  ProposalID
	Protocol  string
	NonVoters []AgentID
	Voters    []AgentID
}

// ProposalCancelledEvent is dispatched when the proposer withdraws a
// proposal.
type ProposalCancelledEvent struct {
	Proposal ProposalID
	Proposer AgentID
}

// ExecutionStartedEvent is dispatched when the queue worker picks up an
// approved proposal.
type ExecutionStartedEvent struct {
	Proposal ProposalID
	Steps    int
}

// ExecutionCompletedEvent is dispatched after every step of a plan succeeded.
type ExecutionCompletedEvent struct {
	Proposal ProposalID
	Elapsed  time.Duration
}

// ExecutionFailedEvent is dispatched when a step fails; the remaining steps
// of that plan were skipped.
type ExecutionFailedEvent struct {
	Proposal ProposalID
	Step     string
	Err      string
}

// ParticipantRegisteredEvent is dispatched when an agent joins the registry.
type ParticipantRegisteredEvent struct {
	Agent  AgentID
	Weight float64
}
