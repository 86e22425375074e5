// Package engine assembles the modules into a running consensus
// coordination engine and exposes the public API: proposal creation, vote
// casting, cancellation, execution, statistics and snapshots.
package engine

import (
	"context"
	"crypto/rand"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/concordlab/concord"
	"github.com/concordlab/concord/catalog"
	"github.com/concordlab/concord/consensus"
	"github.com/concordlab/concord/eventlog"
	"github.com/concordlab/concord/eventloop"
	"github.com/concordlab/concord/executor"
	"github.com/concordlab/concord/logging"
	"github.com/concordlab/concord/metrics"
	"github.com/concordlab/concord/modules"
	"github.com/concordlab/concord/registry"
	"github.com/concordlab/concord/scheduler"
	"github.com/concordlab/concord/security"
	"github.com/concordlab/concord/store"
)

const eventLoopBufferSize = 1024

// quorumFraction is the default fraction of targets that must vote before a
// proposal can be evaluated.
const quorumFraction = 0.67

// Engine coordinates agreement among a set of registered agents.
type Engine struct {
	eventLoop *eventloop.EventLoop
	logger    logging.Logger
	opts      *modules.Options

	store         *store.Store
	registry      *registry.Registry
	catalog       *catalog.Catalog
	votingMachine *consensus.VotingMachine
	scheduler     *scheduler.Scheduler
	queue         *executor.Queue
	aggregator    *metrics.Aggregator
	auditLog      *eventlog.Log
	broadcaster   modules.Broadcaster

	mut     sync.Mutex
	cancel  context.CancelFunc
	stopped chan struct{}
}

// New assembles an engine. The default wiring uses a local loopback
// broadcaster and no-op executors; override them with Options.
func New(opts ...Option) *Engine {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	builder := modules.NewBuilder()
	cfg.configure(builder.Options())

	e := &Engine{}
	builder.Add(
		logging.New("concord"),
		eventloop.New(eventLoopBufferSize),
		store.New(),
		registry.New(),
		catalog.New(),
		consensus.NewEvaluator(),
		consensus.NewVotingMachine(),
		scheduler.New(),
		executor.NewPlanner(),
		cfg.executors,
		executor.NewQueue(),
		metrics.New(),
		eventlog.New(),
		security.NewSigner(cfg.secret),
		cfg.broadcaster,
	)
	mods := builder.Build()

	mods.Get(
		&e.eventLoop,
		&e.logger,
		&e.opts,
		&e.store,
		&e.registry,
		&e.catalog,
		&e.votingMachine,
		&e.scheduler,
		&e.queue,
		&e.aggregator,
		&e.auditLog,
		&e.broadcaster,
	)
	return e
}

// Start runs the event loop and the execution queue worker until Stop is
// called or the context is cancelled.
func (e *Engine) Start(ctx context.Context) {
	e.mut.Lock()
	defer e.mut.Unlock()
	if e.cancel != nil {
		return
	}

	ctx, e.cancel = context.WithCancel(ctx)
	e.stopped = make(chan struct{})
	stopped := e.stopped

	e.queue.Start(ctx)
	go func() {
		e.eventLoop.Run(ctx)
		close(stopped)
	}()
}

// Stop shuts the engine down: timers are cancelled, the queue worker drains,
// and the event loop processes its remaining events before returning.
func (e *Engine) Stop() {
	e.mut.Lock()
	cancel, stopped := e.cancel, e.stopped
	e.cancel = nil
	e.mut.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	e.scheduler.Shutdown()
	e.queue.Wait()
	<-stopped
}

// CreateOptions overrides the defaults derived from the proposal type and
// the protocol catalog. Zero fields keep the derived values.
type CreateOptions struct {
	// Targets is the explicit target set. Empty means all active
	// registered agents except the proposer.
	Targets []concord.AgentID
	// Protocol names the protocol to use, overriding optimal selection.
	Protocol string
	// RequiredParticipants overrides the default vote quorum,
	// ceil(0.67 x targets).
	RequiredParticipants int
	// Threshold overrides the protocol's approval threshold. Nil keeps the
	// protocol's own value; zero is a valid override.
	Threshold *float64
	// Timeout overrides the protocol's voting timeout.
	Timeout time.Duration
}

// CreateProposal submits a proposal, broadcasts it to its targets, opens
// voting, and arms its expiry timer.
func (e *Engine) CreateProposal(
	proposer concord.AgentID,
	proposalType concord.ProposalType,
	title, description string,
	payload concord.Payload,
	opts CreateOptions,
) (concord.ProposalID, error) {
	if _, ok := e.registry.Participant(proposer); !ok {
		return "", fmt.Errorf("%w: proposer %s", concord.ErrNotParticipant, proposer)
	}
	if limit := e.opts.MaxProposalsPerAgent(); limit > 0 && e.store.OpenByProposer(proposer) >= limit {
		return "", fmt.Errorf("%w: %s already holds %d", concord.ErrTooManyProposals, proposer, limit)
	}

	targets := opts.Targets
	if len(targets) == 0 {
		targets = e.registry.ActiveAgents(proposer)
	}
	if len(targets) == 0 {
		return "", fmt.Errorf("no target agents for proposal by %s", proposer)
	}

	protocolName := opts.Protocol
	if protocolName == "" {
		protocolName = e.catalog.SelectOptimal(proposalType, len(targets))
	}
	protocol, err := e.catalog.Get(protocolName)
	if err != nil {
		return "", err
	}
	if protocol.Disabled {
		return "", fmt.Errorf("%w: %s", concord.ErrProtocolDisabled, protocolName)
	}

	required := opts.RequiredParticipants
	if required <= 0 {
		required = int(math.Ceil(quorumFraction * float64(len(targets))))
	}

	threshold := protocol.Threshold
	if opts.Threshold != nil {
		if *opts.Threshold < 0 || *opts.Threshold > 1 {
			return "", fmt.Errorf("threshold %.2f outside [0,1]", *opts.Threshold)
		}
		threshold = *opts.Threshold
	}

	timeout := protocol.Timeout
	if opts.Timeout != 0 {
		timeout = opts.Timeout
	}
	if timeout <= 0 {
		timeout = e.opts.DefaultTimeout()
	}

	p := &concord.Proposal{
		ID:                   concord.NewProposalID(),
		Type:                 proposalType,
		Proposer:             proposer,
		Title:                title,
		Description:          description,
		Payload:              payload,
		Targets:              targets,
		RequiredParticipants: required,
		Protocol:             protocolName,
		Threshold:            threshold,
		Timeout:              timeout,
		CreatedAt:            time.Now(),
		Status:               concord.StatusPending,
	}
	if err := e.store.Add(p); err != nil {
		return "", err
	}

	e.eventLoop.AddEvent(concord.ProposalCreatedEvent{
		Proposal: p.ID,
		Type:     proposalType,
		Proposer: proposer,
		Protocol: protocolName,
		Targets:  len(targets),
	})

	// Broadcast is fire-and-forget; lost deliveries only lower
	// participation.
	e.broadcaster.Broadcast(e.eventLoop.Context(), *p, targets)

	err = e.store.Update(p.ID, func(p *concord.Proposal) error {
		return store.Advance(p, concord.StatusVoting)
	})
	if err != nil {
		return "", err
	}
	e.eventLoop.AddEvent(concord.VotingStartedEvent{Proposal: p.ID})
	e.scheduler.Schedule(p.ID, timeout)

	e.logger.Infof("proposal %s (%s) open for voting: protocol=%s targets=%d quorum=%d",
		p.ID, proposalType, protocolName, len(targets), required)
	return p.ID, nil
}

// CastVote records the agent's vote on the proposal.
func (e *Engine) CastVote(
	agent concord.AgentID,
	id concord.ProposalID,
	decision concord.Decision,
	confidence float64,
	reasoning string,
) error {
	return e.votingMachine.CastVote(agent, id, decision, confidence, reasoning)
}

// CancelProposal withdraws a proposal. Only the original proposer may
// cancel, and only while the proposal is pending or voting.
func (e *Engine) CancelProposal(agent concord.AgentID, id concord.ProposalID) error {
	err := e.store.Update(id, func(p *concord.Proposal) error {
		if p.Proposer != agent {
			return fmt.Errorf("%w: %s is not the proposer of %s", concord.ErrNotProposer, agent, id)
		}
		return store.Advance(p, concord.StatusCancelled)
	})
	if err != nil {
		return err
	}

	e.scheduler.Cancel(id)
	e.eventLoop.AddEvent(concord.ProposalCancelledEvent{Proposal: id, Proposer: agent})
	e.logger.Infof("proposal %s cancelled by %s", id, agent)
	return nil
}

// Execute runs a passed proposal's plan synchronously. It is the manual
// alternative to the autoExecute path and shares its single-flight gate.
func (e *Engine) Execute(ctx context.Context, id concord.ProposalID) error {
	return e.queue.Execute(ctx, id)
}

// Proposal returns a copy of the proposal with the given id.
func (e *Engine) Proposal(id concord.ProposalID) (concord.Proposal, error) {
	return e.store.Get(id)
}

// Proposals returns copies of the proposals matching the filter, newest
// first.
func (e *Engine) Proposals(f store.Filter) []concord.Proposal {
	return e.store.Proposals(f)
}

// Events returns up to limit audit records, newest first, optionally
// restricted to one proposal.
func (e *Engine) Events(proposal concord.ProposalID, limit int) []concord.Event {
	return e.auditLog.Events(proposal, limit)
}

// RegisterParticipant adds a voting agent.
func (e *Engine) RegisterParticipant(id concord.AgentID, weight float64, expertise ...string) concord.Participant {
	return e.registry.Register(id, weight, expertise...)
}

// SetParticipantStatus updates an agent's availability.
func (e *Engine) SetParticipantStatus(id concord.AgentID, status concord.ParticipantStatus) error {
	return e.registry.SetStatus(id, status)
}

// Participant returns the participant record for id.
func (e *Engine) Participant(id concord.AgentID) (concord.Participant, bool) {
	return e.registry.Participant(id)
}

// RegisterProtocol adds a custom protocol to the catalog.
func (e *Engine) RegisterProtocol(p concord.Protocol) error {
	return e.catalog.Register(p)
}

// SetProtocolEnabled enables or disables a protocol for new proposals.
func (e *Engine) SetProtocolEnabled(name string, enabled bool) error {
	return e.catalog.SetEnabled(name, enabled)
}

// newSecret returns a random signing secret.
func newSecret() []byte {
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		panic(err)
	}
	return secret
}
