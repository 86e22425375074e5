// Package eventlog implements the bounded append-only audit trail. One
// record is appended per lifecycle transition; when the buffer exceeds its
// cap it is trimmed to the newest half.
package eventlog

import (
	"sync"
	"time"

	"github.com/concordlab/concord"
	"github.com/concordlab/concord/eventloop"
	"github.com/concordlab/concord/logging"
	"github.com/concordlab/concord/modules"
)

// Buffer bounds: the log holds at most maxEntries records and is trimmed to
// the newest keepEntries when the cap is exceeded.
const (
	maxEntries  = 10000
	keepEntries = 5000
)

// Log is the append-only audit trail. It observes the lifecycle events on
// the event loop and records one entry per transition.
type Log struct {
	eventLoop *eventloop.EventLoop
	logger    logging.Logger
	opts      *modules.Options

	mut     sync.Mutex
	entries []concord.Event
}

// New returns an empty log.
func New() *Log {
	return &Log{}
}

// InitModule registers the log's event observers.
func (l *Log) InitModule(mods *modules.Core) {
	mods.Get(&l.eventLoop, &l.logger, &l.opts)

	l.eventLoop.RegisterObserver(concord.ProposalCreatedEvent{}, func(event any) {
		e := event.(concord.ProposalCreatedEvent)
		l.Append(concord.Event{
			Type:     concord.EventProposalCreated,
			Proposal: e.Proposal,
			Agent:    e.Proposer,
			Data:     map[string]any{"type": string(e.Type), "protocol": e.Protocol, "targets": e.Targets},
		})
	})
	l.eventLoop.RegisterObserver(concord.VotingStartedEvent{}, func(event any) {
		e := event.(concord.VotingStartedEvent)
		l.Append(concord.Event{Type: concord.EventVotingStarted, Proposal: e.Proposal})
	})
	l.eventLoop.RegisterObserver(concord.VoteCastEvent{}, func(event any) {
		e := event.(concord.VoteCastEvent)
		l.Append(concord.Event{
			Type:     concord.EventVoteCast,
			Proposal: e.Proposal,
			Agent:    e.Agent,
			Data:     map[string]any{"decision": string(e.Decision), "revote": e.Revote},
		})
	})
	l.eventLoop.RegisterObserver(concord.ConsensusReachedEvent{}, func(event any) {
		e := event.(concord.ConsensusReachedEvent)
		l.Append(concord.Event{
			Type:     concord.EventConsensusReached,
			Proposal: e.Proposal,
			Data:     map[string]any{"outcome": string(e.Result.Outcome), "quality": e.Result.Quality},
		})
	})
	l.eventLoop.RegisterObserver(concord.ProposalExpiredEvent{}, func(event any) {
		e := event.(concord.ProposalExpiredEvent)
		l.Append(concord.Event{
			Type:     concord.EventProposalExpired,
			Proposal: e.Proposal,
			Data:     map[string]any{"nonVoters": len(e.NonVoters)},
		})
	})
	l.eventLoop.RegisterObserver(concord.ProposalCancelledEvent{}, func(event any) {
		e := event.(concord.ProposalCancelledEvent)
		l.Append(concord.Event{Type: concord.EventProposalCancelled, Proposal: e.Proposal, Agent: e.Proposer})
	})
	l.eventLoop.RegisterObserver(concord.ExecutionStartedEvent{}, func(event any) {
		e := event.(concord.ExecutionStartedEvent)
		l.Append(concord.Event{Type: concord.EventExecutionStarted, Proposal: e.Proposal})
	})
	l.eventLoop.RegisterObserver(concord.ExecutionCompletedEvent{}, func(event any) {
		e := event.(concord.ExecutionCompletedEvent)
		l.Append(concord.Event{Type: concord.EventExecutionCompleted, Proposal: e.Proposal})
	})
	l.eventLoop.RegisterObserver(concord.ExecutionFailedEvent{}, func(event any) {
		e := event.(concord.ExecutionFailedEvent)
		l.Append(concord.Event{
			Type:     concord.EventExecutionFailed,
			Proposal: e.Proposal,
			Data:     map[string]any{"step": e.Step, "error": e.Err},
		})
	})
	l.eventLoop.RegisterObserver(concord.ParticipantRegisteredEvent{}, func(event any) {
		e := event.(concord.ParticipantRegisteredEvent)
		l.Append(concord.Event{Type: concord.EventParticipantJoined, Agent: e.Agent})
	})
}

// Append records an event, stamping it if the caller did not. Appending is
// a no-op when event logging is disabled.
func (l *Log) Append(event concord.Event) {
	if l.opts != nil && !l.opts.EventLogging() {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	l.mut.Lock()
	defer l.mut.Unlock()
	l.entries = append(l.entries, event)
	if len(l.entries) > maxEntries {
		trimmed := make([]concord.Event, keepEntries)
		copy(trimmed, l.entries[len(l.entries)-keepEntries:])
		l.entries = trimmed
	}
}

// Events returns up to limit recorded events, newest first. A non-empty
// proposal id restricts the result to that proposal. limit <= 0 means no
// limit.
func (l *Log) Events(proposal concord.ProposalID, limit int) []concord.Event {
	l.mut.Lock()
	defer l.mut.Unlock()

	var out []concord.Event
	for i := len(l.entries) - 1; i >= 0; i-- {
		if proposal != "" && l.entries[i].Proposal != proposal {
			continue
		}
		out = append(out, l.entries[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

// Len returns the number of retained events.
func (l *Log) Len() int {
	l.mut.Lock()
	defer l.mut.Unlock()
	return len(l.entries)
}

// All returns the retained events in append order. It is used when exporting
// a snapshot.
func (l *Log) All() []concord.Event {
	l.mut.Lock()
	defer l.mut.Unlock()
	return append([]concord.Event(nil), l.entries...)
}

// Restore replaces the log contents. It is used when importing a snapshot.
func (l *Log) Restore(events []concord.Event) {
	l.mut.Lock()
	defer l.mut.Unlock()
	l.entries = append([]concord.Event(nil), events...)
}
