// Package store implements the proposal store. It owns all Proposal records
// and serializes mutation per proposal, because a vote and a timeout firing
// can race on the same record.
package store

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/concordlab/concord"
	"github.com/concordlab/concord/logging"
	"github.com/concordlab/concord/modules"
)

// record pairs a proposal with its mutation lock.
type record struct {
	mut sync.Mutex
	p   *concord.Proposal
}

// Store owns the proposal records. Proposals are never deleted; resolved
// proposals are retained for audit.
type Store struct {
	logger logging.Logger

	mut       sync.RWMutex
	proposals map[concord.ProposalID]*record
}

// New returns an empty store.
func New() *Store {
	return &Store{proposals: make(map[concord.ProposalID]*record)}
}

// InitModule gives the store access to the other modules.
func (s *Store) InitModule(mods *modules.Core) {
	mods.Get(&s.logger)
}

// Add inserts a new proposal.
func (s *Store) Add(p *concord.Proposal) error {
	s.mut.Lock()
	defer s.mut.Unlock()
	if _, ok := s.proposals[p.ID]; ok {
		return fmt.Errorf("proposal %s already exists", p.ID)
	}
	s.proposals[p.ID] = &record{p: p}
	return nil
}

// Update runs fn with exclusive access to the proposal. All mutation of a
// proposal must go through Update; fn must not retain the pointer.
func (s *Store) Update(id concord.ProposalID, fn func(p *concord.Proposal) error) error {
	s.mut.RLock()
	rec, ok := s.proposals[id]
	s.mut.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", concord.ErrNotFound, id)
	}

	rec.mut.Lock()
	defer rec.mut.Unlock()
	return fn(rec.p)
}

// Get returns a copy of the proposal with the given id.
func (s *Store) Get(id concord.ProposalID) (concord.Proposal, error) {
	s.mut.RLock()
	rec, ok := s.proposals[id]
	s.mut.RUnlock()
	if !ok {
		return concord.Proposal{}, fmt.Errorf("%w: %s", concord.ErrNotFound, id)
	}

	rec.mut.Lock()
	defer rec.mut.Unlock()
	return clone(rec.p), nil
}

// Advance moves the proposal to the next status, enforcing the forward-only
// state machine. It is meant to be called from within an Update closure.
func Advance(p *concord.Proposal, next concord.Status) error {
	if !p.Status.CanTransition(next) {
		return fmt.Errorf("%w: %s -> %s", concord.ErrInvalidStatus, p.Status, next)
	}
	p.Status = next
	return nil
}

// Filter restricts the result of Proposals. Zero fields match everything.
type Filter struct {
	Status      concord.Status
	Type        concord.ProposalType
	Proposer    concord.AgentID
	Participant concord.AgentID // matches proposals targeting this agent
	Since       time.Time
	Until       time.Time
	Limit       int
}

func (f Filter) match(p *concord.Proposal) bool {
	if f.Status != "" && p.Status != f.Status {
		return false
	}
	if f.Type != "" && p.Type != f.Type {
		return false
	}
	if f.Proposer != "" && p.Proposer != f.Proposer {
		return false
	}
	if f.Participant != "" && !p.IsTarget(f.Participant) {
		return false
	}
	if !f.Since.IsZero() && p.CreatedAt.Before(f.Since) {
		return false
	}
	if !f.Until.IsZero() && p.CreatedAt.After(f.Until) {
		return false
	}
	return true
}

// Proposals returns copies of the proposals matching the filter, newest
// first.
func (s *Store) Proposals(f Filter) []concord.Proposal {
	s.mut.RLock()
	recs := make([]*record, 0, len(s.proposals))
	for _, rec := range s.proposals {
		recs = append(recs, rec)
	}
	s.mut.RUnlock()

	var out []concord.Proposal
	for _, rec := range recs {
		rec.mut.Lock()
		if f.match(rec.p) {
			out = append(out, clone(rec.p))
		}
		rec.mut.Unlock()
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})

	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out
}

// OpenByProposer counts the unresolved proposals submitted by the agent.
func (s *Store) OpenByProposer(agent concord.AgentID) int {
	n := 0
	for _, p := range s.Proposals(Filter{Proposer: agent}) {
		if p.Status == concord.StatusPending || p.Status == concord.StatusVoting {
			n++
		}
	}
	return n
}

// Len returns the number of stored proposals.
func (s *Store) Len() int {
	s.mut.RLock()
	defer s.mut.RUnlock()
	return len(s.proposals)
}

// Restore replaces the store contents with the given proposals. It is used
// when importing a snapshot.
func (s *Store) Restore(proposals []concord.Proposal) {
	s.mut.Lock()
	defer s.mut.Unlock()
	s.proposals = make(map[concord.ProposalID]*record, len(proposals))
	for i := range proposals {
		p := clone(&proposals[i])
		s.proposals[p.ID] = &record{p: &p}
	}
}

// clone copies a proposal deeply enough that the caller can hold it without
// locking: the vote and target slices are copied, the result struct is
// copied. Plans are immutable after creation and may be shared.
func clone(p *concord.Proposal) concord.Proposal {
	out := *p
	out.Targets = append([]concord.AgentID(nil), p.Targets...)
	out.Votes = append([]concord.Vote(nil), p.Votes...)
	if p.Result != nil {
		res := *p.Result
		out.Result = &res
	}
	return out
}
