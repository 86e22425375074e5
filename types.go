// Package concord defines the core types shared by the consensus coordination
// engine. The engine collects votes from a set of registered agents on a
// proposal, decides the outcome according to a named protocol, and hands
// approved proposals to an execution pipeline.
//
// The packages under this module are wired together through the module system
// in the modules package, and communicate through typed events on the event
// loop in the eventloop package.
package concord

import (
	"fmt"
	"time"
)

// AgentID uniquely identifies a participating agent.
type AgentID string

// ProposalID uniquely identifies a proposal.
type ProposalID string

// ProposalType classifies what a proposal wants to change.
type ProposalType string

// The recognized proposal types.
const (
	MemoryUpdateProposal       ProposalType = "memory_update"
	PolicyChangeProposal       ProposalType = "policy_change"
	AgentActionProposal        ProposalType = "agent_action"
	ResourceAllocationProposal ProposalType = "resource_allocation"
	ConflictResolutionProposal ProposalType = "conflict_resolution"
	ConfigurationProposal      ProposalType = "configuration"
	EmergencyActionProposal    ProposalType = "emergency_action"
	CustomProposal             ProposalType = "custom"
)

// Decision is an agent's stance on a proposal.
type Decision string

// The possible vote decisions.
const (
	Approve Decision = "approve"
	Reject  Decision = "reject"
	Abstain Decision = "abstain"
)

// Status is the lifecycle state of a proposal.
type Status string

// The proposal lifecycle states.
const (
	StatusPending   Status = "pending"
	StatusVoting    Status = "voting"
	StatusPassed    Status = "passed"
	StatusRejected  Status = "rejected"
	StatusExpired   Status = "expired"
	StatusExecuting Status = "executing"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// transitions maps each status to the statuses it may move to.
// The lifecycle only moves forward; terminal states map to nothing.
var transitions = map[Status][]Status{
	StatusPending:   {StatusVoting, StatusCancelled},
	StatusVoting:    {StatusPassed, StatusRejected, StatusExpired, StatusCancelled},
	StatusPassed:    {StatusExecuting},
	StatusExecuting: {StatusCompleted},
}

// CanTransition reports whether the status may move to next.
func (s Status) CanTransition(next Status) bool {
	for _, t := range transitions[s] {
		if t == next {
			return true
		}
	}
	return false
}

// Terminal reports whether the status has no outgoing transitions.
func (s Status) Terminal() bool {
	return len(transitions[s]) == 0
}

// Valid reports whether s is one of the known lifecycle states.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusVoting, StatusPassed, StatusRejected,
		StatusExpired, StatusExecuting, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// Weight bounds for a participant's voting influence.
const (
	MinWeight = 0.1
	MaxWeight = 10.0
)

// ClampWeight forces w into the valid weight range [MinWeight, MaxWeight].
func ClampWeight(w float64) float64 {
	if w < MinWeight {
		return MinWeight
	}
	if w > MaxWeight {
		return MaxWeight
	}
	return w
}

// ParticipantStatus is the availability state of a registered agent.
type ParticipantStatus string

// The participant availability states.
const (
	ParticipantActive    ParticipantStatus = "active"
	ParticipantInactive  ParticipantStatus = "inactive"
	ParticipantSuspended ParticipantStatus = "suspended"
)

// Participant is a registered agent that is eligible to vote.
// Participants are never deleted, only deactivated or suspended.
type Participant struct {
	ID             AgentID           `json:"id"`
	Weight         float64           `json:"weight"`
	Reliability    float64           `json:"reliability"`
	Expertise      []string          `json:"expertise,omitempty"`
	Status         ParticipantStatus `json:"status"`
	VotesCast      uint64            `json:"votesCast"`
	MeanConfidence float64           `json:"meanConfidence"`
	Participation  float64           `json:"participation"`
	RegisteredAt   time.Time         `json:"registeredAt"`
	LastSeen       time.Time         `json:"lastSeen"`
}

// ReliabilityPenalty is the multiplier applied to a participant's reliability
// for each expired proposal they were targeted by but never voted on.
const ReliabilityPenalty = 0.95

// Vote is a single agent's recorded stance on a proposal.
// A later vote from the same agent replaces the earlier one.
type Vote struct {
	Agent      AgentID   `json:"agent"`
	Decision   Decision  `json:"decision"`
	Weight     float64   `json:"weight"`
	Confidence float64   `json:"confidence"`
	Reasoning  string    `json:"reasoning,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
	Signature  []byte    `json:"signature,omitempty"`
}

// Tally is the aggregated weight of the votes cast on a proposal.
// ParticipantCount counts votes cast, not target agents.
type Tally struct {
	Approve          float64 `json:"approve"`
	Reject           float64 `json:"reject"`
	Abstain          float64 `json:"abstain"`
	TotalWeight      float64 `json:"totalWeight"`
	ParticipantCount int     `json:"participantCount"`
}

// ProtocolType selects the evaluation rule used to resolve a tally.
type ProtocolType string

// The built-in protocol types.
const (
	SimpleMajority ProtocolType = "simple_majority"
	Supermajority  ProtocolType = "supermajority"
	Unanimous      ProtocolType = "unanimous"
	WeightedVoting ProtocolType = "weighted_voting"
)

// TieBreak selects how an exact approve/reject tie is resolved at expiry.
type TieBreak string

// The recognized tie-break rules. The empty value leaves ties unresolved.
const (
	TieBreakProposer TieBreak = "proposer"
	TieBreakReject   TieBreak = "reject"
	TieBreakRandom   TieBreak = "random"
)

// Protocol is a named consensus rule. Protocols are immutable after
// registration; a disabled protocol cannot be selected for new proposals.
type Protocol struct {
	Name       string        `json:"name"`
	Type       ProtocolType  `json:"type"`
	Threshold  float64       `json:"threshold"`
	Timeout    time.Duration `json:"timeout"`
	MaxRetries int           `json:"maxRetries"`
	TieBreaker TieBreak      `json:"tieBreaker,omitempty"`
	Disabled   bool          `json:"disabled,omitempty"`
}

func (p Protocol) String() string {
	return fmt.Sprintf("Protocol{ %s (%s) threshold=%.2f timeout=%s }", p.Name, p.Type, p.Threshold, p.Timeout)
}

// Outcome is the final decision recorded in a ConsensusResult.
type Outcome string

// The possible consensus outcomes.
const (
	OutcomeApproved Outcome = "approved"
	OutcomeRejected Outcome = "rejected"
)

// ConsensusResult is produced exactly once per proposal, at the moment
// consensus is first detected, either during active voting or at expiry.
type ConsensusResult struct {
	Outcome           Outcome        `json:"outcome"`
	Tally             Tally          `json:"tally"`
	Confidence        float64        `json:"confidence"`
	ParticipationRate float64        `json:"participationRate"`
	Quality           float64        `json:"quality"`
	Plan              *ExecutionPlan `json:"plan,omitempty"`
	ResolvedAt        time.Time      `json:"resolvedAt"`
}
