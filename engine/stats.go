package engine

import (
	"github.com/concordlab/concord"
	"github.com/concordlab/concord/metrics"
	"github.com/concordlab/concord/store"
)

const (
	statsRecentProposals = 10
	statsTopParticipants = 5
)

// Stats is a point-in-time operational summary of the engine.
type Stats struct {
	Metrics         metrics.Snapshot     `json:"metrics"`
	Open            int                  `json:"open"`
	Recent          []concord.Proposal   `json:"recent"`
	TopParticipants []concord.Participant `json:"topParticipants"`
	Protocols       []concord.Protocol   `json:"protocolCatalog"`
}

// Stats reports aggregated metrics together with the most recent proposals,
// the best performing participants, and the protocol catalog.
func (e *Engine) Stats() Stats {
	open := len(e.store.Proposals(store.Filter{Status: concord.StatusVoting}))
	open += len(e.store.Proposals(store.Filter{Status: concord.StatusPending}))
	return Stats{
		Metrics:         e.aggregator.Stats(),
		Open:            open,
		Recent:          e.store.Proposals(store.Filter{Limit: statsRecentProposals}),
		TopParticipants: e.registry.Top(statsTopParticipants),
		Protocols:       e.catalog.Protocols(),
	}
}
