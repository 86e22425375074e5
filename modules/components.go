package modules

import (
	"context"
	"time"

	"github.com/concordlab/concord"
)

// This file declares the interfaces that tie the packages together without
// import cycles. Each interface is implemented by exactly one module in the
// default wiring, but tests may substitute fakes.

// Broadcaster delivers a proposal to its target agents. Delivery is
// fire-and-forget per target: a lost delivery only shows up as lower
// participation, never as an error.
type Broadcaster interface {
	Broadcast(ctx context.Context, proposal concord.Proposal, targets []concord.AgentID)
}

// TimeoutScheduler arms one expiry timer per proposal and cancels it when
// the proposal resolves early.
type TimeoutScheduler interface {
	Schedule(id concord.ProposalID, timeout time.Duration)
	Cancel(id concord.ProposalID)
}

// ExecutionPlanner turns an approved proposal into an ordered execution
// plan.
type ExecutionPlanner interface {
	BuildPlan(p *concord.Proposal) *concord.ExecutionPlan
}

// ExecutionQueue runs approved proposals' plans, one proposal at a time.
type ExecutionQueue interface {
	Enqueue(id concord.ProposalID, plan *concord.ExecutionPlan)
}

// VoteSigner produces and checks the authenticity tag attached to votes when
// participant verification is enabled.
type VoteSigner interface {
	Sign(id concord.ProposalID, vote *concord.Vote) error
	Verify(id concord.ProposalID, vote concord.Vote) error
}
