// Package metrics derives statistics from the engine's event stream. The
// aggregator is a pure observer: it registers handlers for the lifecycle
// events and never mutates engine state.
package metrics

import (
	"math"
	"sync"

	"github.com/concordlab/concord"
	"github.com/concordlab/concord/eventloop"
	"github.com/concordlab/concord/logging"
	"github.com/concordlab/concord/modules"
)

// ProtocolStats describes how one protocol has been used.
type ProtocolStats struct {
	Proposals     int     `json:"proposals"`
	Resolved      int     `json:"resolved"`
	Approved      int     `json:"approved"`
	UsageFraction float64 `json:"usageFraction"`
	Effectiveness float64 `json:"effectiveness"`
}

// Snapshot is a point-in-time view of the aggregated metrics.
type Snapshot struct {
	TotalProposals      int                      `json:"totalProposals"`
	ReachedConsensus    int                      `json:"reachedConsensus"`
	Approved            int                      `json:"approved"`
	Expired             int                      `json:"expired"`
	Cancelled           int                      `json:"cancelled"`
	VotesCast           int                      `json:"votesCast"`
	Executed            int                      `json:"executed"`
	ExecutionFailures   int                      `json:"executionFailures"`
	AvgConsensusSeconds float64                  `json:"avgConsensusSeconds"`
	AvgQuality          float64                  `json:"avgQuality"`
	QualityVariance     float64                  `json:"qualityVariance"`
	Protocols           map[string]ProtocolStats `json:"protocols"`
}

// Aggregator accumulates engine statistics from observed events.
type Aggregator struct {
	eventLoop *eventloop.EventLoop
	logger    logging.Logger

	mut              sync.Mutex
	totalProposals   int
	reached          int
	approved         int
	expired          int
	cancelled        int
	votes            int
	executed         int
	failures         int
	consensusSeconds onlineStats
	quality          onlineStats
	protoProposals   map[string]int
	protoResolved    map[string]int
	protoApproved    map[string]int
}

// New returns an empty aggregator.
func New() *Aggregator {
	return &Aggregator{
		protoProposals: make(map[string]int),
		protoResolved:  make(map[string]int),
		protoApproved:  make(map[string]int),
	}
}

// InitModule registers the aggregator's event observers.
func (a *Aggregator) InitModule(mods *modules.Core) {
	mods.Get(&a.eventLoop, &a.logger)

	a.eventLoop.RegisterObserver(concord.ProposalCreatedEvent{}, func(event any) {
		a.onCreated(event.(concord.ProposalCreatedEvent))
	})
	a.eventLoop.RegisterObserver(concord.VoteCastEvent{}, func(any) {
		a.mut.Lock()
		a.votes++
		a.mut.Unlock()
	})
	a.eventLoop.RegisterObserver(concord.ConsensusReachedEvent{}, func(event any) {
		a.onConsensus(event.(concord.ConsensusReachedEvent))
	})
	a.eventLoop.RegisterObserver(concord.ProposalExpiredEvent{}, func(any) {
		a.mut.Lock()
		a.expired++
		a.mut.Unlock()
	})
	a.eventLoop.RegisterObserver(concord.ProposalCancelledEvent{}, func(any) {
		a.mut.Lock()
		a.cancelled++
		a.mut.Unlock()
	})
	a.eventLoop.RegisterObserver(concord.ExecutionCompletedEvent{}, func(any) {
		a.mut.Lock()
		a.executed++
		a.mut.Unlock()
	})
	a.eventLoop.RegisterObserver(concord.ExecutionFailedEvent{}, func(any) {
		a.mut.Lock()
		a.failures++
		a.mut.Unlock()
	})
}

func (a *Aggregator) onCreated(event concord.ProposalCreatedEvent) {
	a.mut.Lock()
	defer a.mut.Unlock()
	a.totalProposals++
	a.protoProposals[event.Protocol]++
}

func (a *Aggregator) onConsensus(event concord.ConsensusReachedEvent) {
	a.mut.Lock()
	defer a.mut.Unlock()
	a.reached++
	a.protoResolved[event.Protocol]++
	if event.Result.Outcome == concord.OutcomeApproved {
		a.approved++
		a.protoApproved[event.Protocol]++
	}
	a.consensusSeconds.Add(event.Elapsed.Seconds())
	a.quality.Add(event.Result.Quality)
}

// Stats returns a snapshot of the aggregated metrics.
func (a *Aggregator) Stats() Snapshot {
	a.mut.Lock()
	defer a.mut.Unlock()

	qualityVar := a.quality.Variance()
	if math.IsNaN(qualityVar) {
		// fewer than two samples
		qualityVar = 0
	}

	snap := Snapshot{
		TotalProposals:      a.totalProposals,
		ReachedConsensus:    a.reached,
		Approved:            a.approved,
		Expired:             a.expired,
		Cancelled:           a.cancelled,
		VotesCast:           a.votes,
		Executed:            a.executed,
		ExecutionFailures:   a.failures,
		AvgConsensusSeconds: a.consensusSeconds.Mean(),
		AvgQuality:          a.quality.Mean(),
		QualityVariance:     qualityVar,
		Protocols:           make(map[string]ProtocolStats, len(a.protoProposals)),
	}
	for name, used := range a.protoProposals {
		stats := ProtocolStats{
			Proposals: used,
			Resolved:  a.protoResolved[name],
			Approved:  a.protoApproved[name],
		}
		if a.totalProposals > 0 {
			stats.UsageFraction = float64(used) / float64(a.totalProposals)
		}
		if used > 0 {
			stats.Effectiveness = float64(a.protoResolved[name]) / float64(used)
		}
		snap.Protocols[name] = stats
	}
	return snap
}
