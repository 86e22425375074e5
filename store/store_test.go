package store

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/concordlab/concord"
)

func newProposal(id concord.ProposalID, proposer concord.AgentID, created time.Time) *concord.Proposal {
	return &concord.Proposal{
		ID:        id,
		Type:      concord.AgentActionProposal,
		Proposer:  proposer,
		Targets:   []concord.AgentID{"a", "b"},
		Protocol:  "simple_majority",
		Threshold: 0.51,
		CreatedAt: created,
		Status:    concord.StatusPending,
	}
}

func TestAddDuplicate(t *testing.T) {
	s := New()
	p := newProposal("p1", "a", time.Now())
	if err := s.Add(p); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := s.Add(p); err == nil {
		t.Error("adding the same id twice should fail")
	}
}

func TestGetReturnsCopy(t *testing.T) {
	s := New()
	if err := s.Add(newProposal("p1", "a", time.Now())); err != nil {
		t.Fatalf("Add: %v", err)
	}

	got, err := s.Get("p1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	got.Votes = append(got.Votes, concord.Vote{Agent: "a", Decision: concord.Approve})
	got.Targets[0] = "mallory"

	fresh, _ := s.Get("p1")
	if len(fresh.Votes) != 0 {
		t.Error("mutating a returned copy leaked into the store")
	}
	if fresh.Targets[0] != "a" {
		t.Error("mutating a returned target slice leaked into the store")
	}
}

func TestGetUnknown(t *testing.T) {
	s := New()
	if _, err := s.Get("ghost"); !errors.Is(err, concord.ErrNotFound) {
		t.Errorf("got %v, want ErrNotFound", err)
	}
	err := s.Update("ghost", func(*concord.Proposal) error { return nil })
	if !errors.Is(err, concord.ErrNotFound) {
		t.Errorf("got %v, want ErrNotFound", err)
	}
}

func TestAdvance(t *testing.T) {
	p := newProposal("p1", "a", time.Now())
	if err := Advance(p, concord.StatusVoting); err != nil {
		t.Fatalf("pending -> voting: %v", err)
	}
	if err := Advance(p, concord.StatusCompleted); !errors.Is(err, concord.ErrInvalidStatus) {
		t.Errorf("voting -> completed: got %v, want ErrInvalidStatus", err)
	}
	if p.Status != concord.StatusVoting {
		t.Errorf("failed transition must not change status, got %s", p.Status)
	}
}

func TestUpdateSerializesMutation(t *testing.T) {
	s := New()
	if err := s.Add(newProposal("p1", "a", time.Now())); err != nil {
		t.Fatalf("Add: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			err := s.Update("p1", func(p *concord.Proposal) error {
				p.Votes = append(p.Votes, concord.Vote{Agent: concord.AgentID(rune('a' + n))})
				return nil
			})
			if err != nil {
				t.Errorf("Update: %v", err)
			}
		}(i)
	}
	wg.Wait()

	p, _ := s.Get("p1")
	if len(p.Votes) != 50 {
		t.Errorf("got %d votes, want 50", len(p.Votes))
	}
}

func TestProposalsFilterAndOrder(t *testing.T) {
	s := New()
	base := time.Now()
	must := func(err error) {
		if err != nil {
			t.Fatal(err)
		}
	}
	must(s.Add(newProposal("p1", "a", base)))
	must(s.Add(newProposal("p2", "b", base.Add(time.Second))))
	must(s.Add(newProposal("p3", "a", base.Add(2*time.Second))))
	must(s.Update("p2", func(p *concord.Proposal) error {
		return Advance(p, concord.StatusVoting)
	}))

	all := s.Proposals(Filter{})
	if len(all) != 3 || all[0].ID != "p3" || all[2].ID != "p1" {
		t.Errorf("unexpected order: %v", ids(all))
	}

	byProposer := s.Proposals(Filter{Proposer: "a"})
	if len(byProposer) != 2 {
		t.Errorf("proposer filter matched %v", ids(byProposer))
	}

	voting := s.Proposals(Filter{Status: concord.StatusVoting})
	if len(voting) != 1 || voting[0].ID != "p2" {
		t.Errorf("status filter matched %v", ids(voting))
	}

	limited := s.Proposals(Filter{Limit: 2})
	if len(limited) != 2 || limited[0].ID != "p3" {
		t.Errorf("limit filter matched %v", ids(limited))
	}

	since := s.Proposals(Filter{Since: base.Add(time.Second)})
	if len(since) != 2 {
		t.Errorf("since filter matched %v", ids(since))
	}

	byTarget := s.Proposals(Filter{Participant: "b"})
	if len(byTarget) != 3 {
		t.Errorf("participant filter matched %v", ids(byTarget))
	}
}

func TestOpenByProposer(t *testing.T) {
	s := New()
	must := func(err error) {
		if err != nil {
			t.Fatal(err)
		}
	}
	must(s.Add(newProposal("p1", "a", time.Now())))
	must(s.Add(newProposal("p2", "a", time.Now())))
	must(s.Add(newProposal("p3", "a", time.Now())))
	must(s.Update("p1", func(p *concord.Proposal) error {
		return Advance(p, concord.StatusCancelled)
	}))
	must(s.Update("p2", func(p *concord.Proposal) error {
		return Advance(p, concord.StatusVoting)
	}))

	if got := s.OpenByProposer("a"); got != 2 {
		t.Errorf("OpenByProposer = %d, want 2", got)
	}
	if got := s.OpenByProposer("b"); got != 0 {
		t.Errorf("OpenByProposer(b) = %d, want 0", got)
	}
}

func TestRestore(t *testing.T) {
	s := New()
	if err := s.Add(newProposal("old", "a", time.Now())); err != nil {
		t.Fatal(err)
	}
	s.Restore([]concord.Proposal{*newProposal("p1", "b", time.Now())})

	if _, err := s.Get("old"); !errors.Is(err, concord.ErrNotFound) {
		t.Error("restore should drop prior proposals")
	}
	if s.Len() != 1 {
		t.Errorf("Len = %d, want 1", s.Len())
	}
}

func ids(ps []concord.Proposal) []concord.ProposalID {
	out := make([]concord.ProposalID, len(ps))
	for i := range ps {
		out[i] = ps[i].ID
	}
	return out
}
