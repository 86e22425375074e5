// Package registry implements the participant registry. It tracks the agents
// eligible to vote, their weight, reliability, and voting history.
package registry

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/concordlab/concord"
	"github.com/concordlab/concord/eventloop"
	"github.com/concordlab/concord/logging"
	"github.com/concordlab/concord/modules"
)

// participationSmoothing is the decay factor of the per-agent participation
// rate: rate = rate*0.9 + 0.1 when the agent voted, rate = rate*0.9 otherwise,
// applied each time a proposal targeting the agent resolves.
const participationSmoothing = 0.9

// Registry tracks registered participants. Participants are never deleted,
// only deactivated or suspended.
type Registry struct {
	eventLoop *eventloop.EventLoop
	logger    logging.Logger

	mut          sync.Mutex
	participants map[concord.AgentID]*concord.Participant
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{
		participants: make(map[concord.AgentID]*concord.Participant),
	}
}

// InitModule gives the registry access to the other modules.
func (r *Registry) InitModule(mods *modules.Core) {
	mods.Get(&r.eventLoop, &r.logger)
}

// Register adds an agent to the registry with the given weight and expertise
// tags. The weight is clamped to the valid range. Registering an existing
// agent updates its weight and expertise and reactivates it.
func (r *Registry) Register(id concord.AgentID, weight float64, expertise ...string) concord.Participant {
	weight = concord.ClampWeight(weight)
	now := time.Now()

	r.mut.Lock()
	p, ok := r.participants[id]
	if !ok {
		p = &concord.Participant{
			ID:            id,
			Reliability:   1.0,
			Participation: 1.0,
			RegisteredAt:  now,
		}
		r.participants[id] = p
	}
	p.Weight = weight
	p.Expertise = expertise
	p.Status = concord.ParticipantActive
	p.LastSeen = now
	snapshot := *p
	r.mut.Unlock()

	if !ok {
		r.logger.Debugf("registered participant %s (weight %.2f)", id, weight)
		r.eventLoop.AddEvent(concord.ParticipantRegisteredEvent{Agent: id, Weight: weight})
	}
	return snapshot
}

// SetStatus updates the availability status of a participant.
func (r *Registry) SetStatus(id concord.AgentID, status concord.ParticipantStatus) error {
	r.mut.Lock()
	defer r.mut.Unlock()
	p, ok := r.participants[id]
	if !ok {
		return fmt.Errorf("%w: %s", concord.ErrNotParticipant, id)
	}
	p.Status = status
	p.LastSeen = time.Now()
	return nil
}

// Participant returns a copy of the participant record for id.
func (r *Registry) Participant(id concord.AgentID) (concord.Participant, bool) {
	r.mut.Lock()
	defer r.mut.Unlock()
	p, ok := r.participants[id]
	if !ok {
		return concord.Participant{}, false
	}
	return *p, true
}

// Participants returns copies of all participant records, sorted by id.
func (r *Registry) Participants() []concord.Participant {
	r.mut.Lock()
	out := make([]concord.Participant, 0, len(r.participants))
	for _, p := range r.participants {
		out = append(out, *p)
	}
	r.mut.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ActiveAgents returns the ids of all active participants except exclude,
// sorted by id. It is used to resolve a proposal's default target set.
func (r *Registry) ActiveAgents(exclude concord.AgentID) []concord.AgentID {
	r.mut.Lock()
	var out []concord.AgentID
	for id, p := range r.participants {
		if id != exclude && p.Status == concord.ParticipantActive {
			out = append(out, id)
		}
	}
	r.mut.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// RecordVote updates the voting history of a participant after a vote was
// accepted: vote count, running mean confidence, and last seen time.
func (r *Registry) RecordVote(id concord.AgentID, confidence float64) {
	r.mut.Lock()
	defer r.mut.Unlock()
	p, ok := r.participants[id]
	if !ok {
		return
	}
	p.VotesCast++
	p.MeanConfidence += (confidence - p.MeanConfidence) / float64(p.VotesCast)
	p.LastSeen = time.Now()
}

// RecordParticipation folds one resolved proposal into the agent's smoothed
// participation rate.
func (r *Registry) RecordParticipation(id concord.AgentID, voted bool) {
	r.mut.Lock()
	defer r.mut.Unlock()
	p, ok := r.participants[id]
	if !ok {
		return
	}
	p.Participation *= participationSmoothing
	if voted {
		p.Participation += 1 - participationSmoothing
	}
}

// PenalizeMissedVote applies the expiry penalty to a participant that never
// voted on an expired proposal. Reliability only decays; there is no reward
// path.
func (r *Registry) PenalizeMissedVote(id concord.AgentID) {
	r.mut.Lock()
	defer r.mut.Unlock()
	p, ok := r.participants[id]
	if !ok {
		return
	}
	p.Reliability *= concord.ReliabilityPenalty
}

// Top returns up to n participants ranked by reliability times participation.
func (r *Registry) Top(n int) []concord.Participant {
	all := r.Participants()
	sort.SliceStable(all, func(i, j int) bool {
		return all[i].Reliability*all[i].Participation > all[j].Reliability*all[j].Participation
	})
	if len(all) > n {
		all = all[:n]
	}
	return all
}

// Restore replaces the registry contents with the given records. It is used
// when importing a snapshot.
func (r *Registry) Restore(participants []concord.Participant) {
	r.mut.Lock()
	defer r.mut.Unlock()
	r.participants = make(map[concord.AgentID]*concord.Participant, len(participants))
	for i := range participants {
		p := participants[i]
		r.participants[p.ID] = &p
	}
}
