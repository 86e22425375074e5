// Package consensus collects votes into tallies and decides when a
// protocol's threshold is satisfied. The VotingMachine owns the vote casting
// path and the expiry path; both finalize a proposal at most once.
package consensus

import (
	"errors"
	"fmt"
	"time"

	"github.com/concordlab/concord"
	"github.com/concordlab/concord/catalog"
	"github.com/concordlab/concord/eventloop"
	"github.com/concordlab/concord/logging"
	"github.com/concordlab/concord/modules"
	"github.com/concordlab/concord/registry"
	"github.com/concordlab/concord/scheduler"
	"github.com/concordlab/concord/store"
)

// VotingMachine applies votes to proposals and finalizes them when their
// protocol's threshold is satisfied, either during voting or at expiry.
type VotingMachine struct {
	store     *store.Store
	registry  *registry.Registry
	catalog   *catalog.Catalog
	evaluator *Evaluator
	eventLoop *eventloop.EventLoop
	logger    logging.Logger
	opts      *modules.Options

	signer    modules.VoteSigner
	scheduler modules.TimeoutScheduler
	planner   modules.ExecutionPlanner
	queue     modules.ExecutionQueue
}

// NewVotingMachine returns a new VotingMachine.
func NewVotingMachine() *VotingMachine {
	return &VotingMachine{}
}

// InitModule gives the voting machine access to the other modules and
// registers its expiry handler.
func (vm *VotingMachine) InitModule(mods *modules.Core) {
	mods.Get(
		&vm.store,
		&vm.registry,
		&vm.catalog,
		&vm.evaluator,
		&vm.eventLoop,
		&vm.logger,
		&vm.opts,
		&vm.signer,
		&vm.scheduler,
		&vm.planner,
		&vm.queue,
	)

	vm.eventLoop.RegisterHandler(scheduler.TimeoutEvent{}, func(event any) {
		vm.OnTimeout(event.(scheduler.TimeoutEvent))
	})
}

// CastVote records the agent's vote on the proposal. A second vote from the
// same agent replaces the first. The vote's weight is taken from the
// participant record at cast time. If the vote satisfies the proposal's
// protocol, the proposal is finalized immediately.
func (vm *VotingMachine) CastVote(
	agent concord.AgentID,
	id concord.ProposalID,
	decision concord.Decision,
	confidence float64,
	reasoning string,
) error {
	participant, ok := vm.registry.Participant(agent)
	if !ok {
		return fmt.Errorf("%w: %s", concord.ErrNotParticipant, agent)
	}
	if participant.Status == concord.ParticipantSuspended {
		return fmt.Errorf("%w: %s", concord.ErrSuspended, agent)
	}
	if confidence < 0 {
		confidence = 0
	} else if confidence > 1 {
		confidence = 1
	}
	if vm.opts.ByzantineProtection() && confidence == 0 && decision != concord.Abstain {
		return fmt.Errorf("vote by %s discarded: zero confidence", agent)
	}

	var (
		finalized bool
		revote    bool
	)
	err := vm.store.Update(id, func(p *concord.Proposal) error {
		if p.Status != concord.StatusVoting {
			return fmt.Errorf("%w: cannot vote on %s proposal", concord.ErrInvalidStatus, p.Status)
		}
		if !p.IsTarget(agent) {
			return fmt.Errorf("%w: %s is not targeted by %s", concord.ErrNotParticipant, agent, p.ID)
		}

		vote := concord.Vote{
			Agent:      agent,
			Decision:   decision,
			Weight:     concord.ClampWeight(participant.Weight),
			Confidence: confidence,
			Reasoning:  reasoning,
			Timestamp:  time.Now(),
		}
		if vm.opts.ParticipantVerification() {
			if err := vm.signer.Sign(p.ID, &vote); err != nil {
				return fmt.Errorf("sign vote: %w", err)
			}
			if err := vm.signer.Verify(p.ID, vote); err != nil {
				return fmt.Errorf("%w: %s on %s", concord.ErrBadSignature, agent, p.ID)
			}
		}

		_, revote = p.VoteBy(agent)
		p.PutVote(vote)

		finalized = vm.tryFinalize(p, false)
		return nil
	})
	if err != nil {
		return err
	}

	// a replacing vote is not a new cast; history counts distinct voters
	if !revote {
		vm.registry.RecordVote(agent, confidence)
	}
	vm.eventLoop.AddEvent(concord.VoteCastEvent{
		Proposal: id,
		Agent:    agent,
		Decision: decision,
		Weight:   participant.Weight,
		Revote:   revote,
	})

	if finalized {
		vm.announce(id)
	}
	return nil
}

// OnTimeout handles a proposal's expiry timer firing. If the votes cast so
// far satisfy the threshold the proposal finalizes normally; otherwise it
// expires and the non-voting targets are penalized. A timer firing after the
// proposal resolved is a no-op.
func (vm *VotingMachine) OnTimeout(event scheduler.TimeoutEvent) {
	var (
		finalized bool
		expired   bool
		nonVoters []concord.AgentID
		voters    []concord.AgentID
		protocol  string
	)
	err := vm.store.Update(event.Proposal, func(p *concord.Proposal) error {
		if p.Status != concord.StatusVoting {
			return nil
		}
		finalized = vm.tryFinalize(p, true)
		if !finalized {
			if err := store.Advance(p, concord.StatusExpired); err != nil {
				return err
			}
			expired = true
			nonVoters = p.NonVoters()
			for _, v := range p.Votes {
				voters = append(voters, v.Agent)
			}
			protocol = p.Protocol
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, concord.ErrNotFound) {
			vm.logger.Warnf("timeout for unknown proposal %s", event.Proposal)
		} else {
			vm.logger.Errorf("timeout handling for %s: %v", event.Proposal, err)
		}
		return
	}

	if finalized {
		vm.announce(event.Proposal)
		return
	}
	if !expired {
		return
	}

	vm.logger.Infof("proposal %s expired with %d missing votes", event.Proposal, len(nonVoters))
	for _, agent := range nonVoters {
		vm.registry.PenalizeMissedVote(agent)
		vm.registry.RecordParticipation(agent, false)
	}
	for _, agent := range voters {
		vm.registry.RecordParticipation(agent, true)
	}
	vm.eventLoop.AddEvent(concord.ProposalExpiredEvent{
		Proposal:  event.Proposal,
		Protocol:  protocol,
		NonVoters: nonVoters,
		Voters:    voters,
	})
}

// tryFinalize evaluates the proposal and, if its threshold is satisfied,
// moves it to passed or rejected and stores the result. Must run inside a
// store.Update closure. The result is set at most once.
func (vm *VotingMachine) tryFinalize(p *concord.Proposal, atExpiry bool) bool {
	proto, err := vm.catalog.Get(p.Protocol)
	if err != nil {
		// unknown protocol: never reached
		vm.logger.Warnf("proposal %s uses unknown protocol %q", p.ID, p.Protocol)
		return false
	}

	reached, outcome := vm.evaluator.Evaluate(p, proto, atExpiry)
	if !reached {
		return false
	}

	result := vm.evaluator.BuildResult(p, outcome)
	next := concord.StatusRejected
	if outcome == concord.OutcomeApproved {
		result.Plan = vm.planner.BuildPlan(p)
		next = concord.StatusPassed
	}
	if err := store.Advance(p, next); err != nil {
		vm.logger.Errorf("finalize %s: %v", p.ID, err)
		return false
	}
	p.Result = &result
	return true
}

// announce publishes a finalized proposal: cancels its expiry timer, folds
// participation into the registry, emits the consensus event, and enqueues
// execution when enabled.
func (vm *VotingMachine) announce(id concord.ProposalID) {
	p, err := vm.store.Get(id)
	if err != nil || p.Result == nil {
		vm.logger.Errorf("announce %s: missing result", id)
		return
	}

	vm.scheduler.Cancel(id)

	var voters []concord.AgentID
	for _, v := range p.Votes {
		voters = append(voters, v.Agent)
	}
	for _, target := range p.Targets {
		_, voted := p.VoteBy(target)
		vm.registry.RecordParticipation(target, voted)
	}

	vm.eventLoop.AddEvent(concord.ConsensusReachedEvent{
		Proposal: id,
		Protocol: p.Protocol,
		Result:   *p.Result,
		Elapsed:  p.Result.ResolvedAt.Sub(p.CreatedAt),
		Targets:  p.Targets,
		Voters:   voters,
	})

	vm.logger.Infof("consensus on %s: %s (quality %.2f)", id, p.Result.Outcome, p.Result.Quality)

	if p.Result.Outcome == concord.OutcomeApproved && vm.opts.AutoExecute() {
		vm.queue.Enqueue(id, p.Result.Plan)
	}
}
