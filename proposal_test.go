package concord

import (
	"encoding/json"
	"reflect"
	"testing"
	"time"
)

func TestPutVoteReplaces(t *testing.T) {
	p := &Proposal{}
	p.PutVote(Vote{Agent: "a", Decision: Approve, Weight: 1})
	p.PutVote(Vote{Agent: "b", Decision: Reject, Weight: 1})
	p.PutVote(Vote{Agent: "a", Decision: Reject, Weight: 1, Reasoning: "changed my mind"})

	if len(p.Votes) != 2 {
		t.Fatalf("got %d votes, want 2", len(p.Votes))
	}
	// the replacement keeps the agent's original position
	if p.Votes[0].Agent != "a" || p.Votes[0].Decision != Reject {
		t.Errorf("vote by a was not replaced: %+v", p.Votes[0])
	}
	if v, ok := p.VoteBy("a"); !ok || v.Reasoning != "changed my mind" {
		t.Errorf("VoteBy(a) = %+v, %v", v, ok)
	}
}

func TestCurrentTally(t *testing.T) {
	p := &Proposal{
		Targets: []AgentID{"a", "b", "c", "d"},
	}
	p.PutVote(Vote{Agent: "a", Decision: Approve, Weight: 2})
	p.PutVote(Vote{Agent: "b", Decision: Approve, Weight: 1})
	p.PutVote(Vote{Agent: "c", Decision: Reject, Weight: 0.5})
	p.PutVote(Vote{Agent: "d", Decision: Abstain, Weight: 1})

	tally := p.CurrentTally()
	if tally.Approve != 3 || tally.Reject != 0.5 || tally.Abstain != 1 {
		t.Errorf("tally = %+v", tally)
	}
	if tally.TotalWeight != 4.5 {
		t.Errorf("total weight = %v, want 4.5", tally.TotalWeight)
	}
	if tally.ParticipantCount != 4 {
		t.Errorf("participant count = %d, want 4", tally.ParticipantCount)
	}
}

func TestNonVoters(t *testing.T) {
	p := &Proposal{Targets: []AgentID{"a", "b", "c"}}
	p.PutVote(Vote{Agent: "b", Decision: Approve, Weight: 1})

	want := []AgentID{"a", "c"}
	if got := p.NonVoters(); !reflect.DeepEqual(got, want) {
		t.Errorf("NonVoters() = %v, want %v", got, want)
	}
}

func TestStatusTransitions(t *testing.T) {
	tests := []struct {
		from, to Status
		want     bool
	}{
		{StatusPending, StatusVoting, true},
		{StatusPending, StatusCancelled, true},
		{StatusPending, StatusPassed, false},
		{StatusVoting, StatusPassed, true},
		{StatusVoting, StatusRejected, true},
		{StatusVoting, StatusExpired, true},
		{StatusVoting, StatusCancelled, true},
		{StatusVoting, StatusCompleted, false},
		{StatusPassed, StatusExecuting, true},
		{StatusPassed, StatusCancelled, false},
		{StatusExecuting, StatusCompleted, true},
		{StatusCompleted, StatusVoting, false},
		{StatusRejected, StatusVoting, false},
		{StatusExpired, StatusVoting, false},
		{StatusCancelled, StatusVoting, false},
	}
	for _, test := range tests {
		if got := test.from.CanTransition(test.to); got != test.want {
			t.Errorf("%s -> %s = %v, want %v", test.from, test.to, got, test.want)
		}
	}
}

func TestTerminalStatuses(t *testing.T) {
	terminal := []Status{StatusRejected, StatusExpired, StatusCompleted, StatusCancelled}
	for _, s := range terminal {
		if !s.Terminal() {
			t.Errorf("%s should be terminal", s)
		}
	}
	open := []Status{StatusPending, StatusVoting, StatusPassed, StatusExecuting}
	for _, s := range open {
		if s.Terminal() {
			t.Errorf("%s should not be terminal", s)
		}
	}
}

func TestClampWeight(t *testing.T) {
	tests := []struct{ in, want float64 }{
		{0, MinWeight},
		{0.05, MinWeight},
		{0.1, 0.1},
		{1, 1},
		{10, 10},
		{11, MaxWeight},
		{-3, MinWeight},
	}
	for _, test := range tests {
		if got := ClampWeight(test.in); got != test.want {
			t.Errorf("ClampWeight(%v) = %v, want %v", test.in, got, test.want)
		}
	}
}

func TestProposalJSONRoundTrip(t *testing.T) {
	created := time.Now().UTC().Round(time.Second)
	p := &Proposal{
		ID:       "prop-1",
		Type:     MemoryUpdateProposal,
		Proposer: "a",
		Title:    "update shared key",
		Payload:  MemoryUpdate{Scope: "shared", Key: "k", Value: "v"},
		Targets:  []AgentID{"b", "c"},

		RequiredParticipants: 2,
		Protocol:             "simple_majority",
		Threshold:            0.51,
		Timeout:              5 * time.Minute,
		CreatedAt:            created,
		Status:               StatusVoting,
		Votes: []Vote{
			{Agent: "b", Decision: Approve, Weight: 1, Confidence: 0.9, Timestamp: created},
		},
	}

	data, err := json.Marshal(p)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var got Proposal
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	payload, ok := got.Payload.(MemoryUpdate)
	if !ok {
		t.Fatalf("payload type %T, want MemoryUpdate", got.Payload)
	}
	if payload.Key != "k" || payload.Value != "v" {
		t.Errorf("payload = %+v", payload)
	}
	got.Payload, p.Payload = nil, nil
	if !reflect.DeepEqual(&got, p) {
		t.Errorf("round trip mismatch:\ngot  %+v\nwant %+v", &got, p)
	}
}
