package consensus

import (
	"io"
	"math"
	"testing"

	"github.com/concordlab/concord"
	"github.com/concordlab/concord/logging"
)

func newTestEvaluator() *Evaluator {
	return &Evaluator{logger: logging.NewWithDest(io.Discard, "evaluator")}
}

func votingProposal(targets int, required int, threshold float64) *concord.Proposal {
	p := &concord.Proposal{
		ID:                   "p1",
		Proposer:             "proposer",
		RequiredParticipants: required,
		Threshold:            threshold,
		Status:               concord.StatusVoting,
	}
	for i := 0; i < targets; i++ {
		p.Targets = append(p.Targets, concord.AgentID('a'+rune(i)))
	}
	return p
}

func TestEvaluateQuorumGate(t *testing.T) {
	e := newTestEvaluator()
	proto := concord.Protocol{Type: concord.SimpleMajority}
	p := votingProposal(4, 3, 0.51)
	p.PutVote(concord.Vote{Agent: "a", Decision: concord.Approve, Weight: 1})
	p.PutVote(concord.Vote{Agent: "b", Decision: concord.Approve, Weight: 1})

	if reached, _ := e.Evaluate(p, proto, false); reached {
		t.Error("threshold met but quorum missing, must not be reached")
	}

	p.PutVote(concord.Vote{Agent: "c", Decision: concord.Approve, Weight: 1})
	reached, outcome := e.Evaluate(p, proto, false)
	if !reached || outcome != concord.OutcomeApproved {
		t.Errorf("reached = %v, outcome = %s", reached, outcome)
	}
}

func TestEvaluateAbstentionsCountTowardQuorumOnly(t *testing.T) {
	e := newTestEvaluator()
	proto := concord.Protocol{Type: concord.SimpleMajority}
	p := votingProposal(3, 3, 0.51)
	p.PutVote(concord.Vote{Agent: "a", Decision: concord.Approve, Weight: 1})
	p.PutVote(concord.Vote{Agent: "b", Decision: concord.Abstain, Weight: 1})
	p.PutVote(concord.Vote{Agent: "c", Decision: concord.Abstain, Weight: 1})

	// quorum is met by three votes; the ratio is computed over the single
	// decisive vote
	reached, outcome := e.Evaluate(p, proto, false)
	if !reached || outcome != concord.OutcomeApproved {
		t.Errorf("reached = %v, outcome = %s", reached, outcome)
	}
}

func TestEvaluateAllAbstainNeverReached(t *testing.T) {
	e := newTestEvaluator()
	proto := concord.Protocol{Type: concord.SimpleMajority}
	p := votingProposal(2, 2, 0.51)
	p.PutVote(concord.Vote{Agent: "a", Decision: concord.Abstain, Weight: 1})
	p.PutVote(concord.Vote{Agent: "b", Decision: concord.Abstain, Weight: 1})

	if reached, _ := e.Evaluate(p, proto, false); reached {
		t.Error("all abstentions must not reach consensus")
	}
}

func TestEvaluateUnknownProtocolType(t *testing.T) {
	e := newTestEvaluator()
	proto := concord.Protocol{Type: "quadratic"}
	p := votingProposal(2, 1, 0.5)
	p.PutVote(concord.Vote{Agent: "a", Decision: concord.Approve, Weight: 1})

	if reached, _ := e.Evaluate(p, proto, true); reached {
		t.Error("unknown protocol type must never reach consensus")
	}
}

func TestTieWaitsDuringVoting(t *testing.T) {
	e := newTestEvaluator()
	proto := concord.Protocol{Type: concord.SimpleMajority, TieBreaker: concord.TieBreakReject}
	p := votingProposal(4, 2, 0.51)
	p.PutVote(concord.Vote{Agent: "a", Decision: concord.Approve, Weight: 1})
	p.PutVote(concord.Vote{Agent: "b", Decision: concord.Reject, Weight: 1})

	if reached, _ := e.Evaluate(p, proto, false); reached {
		t.Error("mid-vote tie must wait for more votes")
	}
	reached, outcome := e.Evaluate(p, proto, true)
	if !reached || outcome != concord.OutcomeRejected {
		t.Errorf("expiry tie: reached = %v, outcome = %s", reached, outcome)
	}
}

func TestTieBreakProposer(t *testing.T) {
	e := newTestEvaluator()
	proto := concord.Protocol{Type: concord.SimpleMajority, TieBreaker: concord.TieBreakProposer}

	p := votingProposal(2, 2, 0.51)
	p.Targets = append(p.Targets, "proposer")
	p.PutVote(concord.Vote{Agent: "a", Decision: concord.Approve, Weight: 1})
	p.PutVote(concord.Vote{Agent: "proposer", Decision: concord.Reject, Weight: 1})

	reached, outcome := e.Evaluate(p, proto, true)
	if !reached || outcome != concord.OutcomeRejected {
		t.Errorf("proposer voted reject: reached = %v, outcome = %s", reached, outcome)
	}

	// a proposer that did not vote is assumed to back its own proposal
	p = votingProposal(2, 2, 0.51)
	p.PutVote(concord.Vote{Agent: "a", Decision: concord.Approve, Weight: 1})
	p.PutVote(concord.Vote{Agent: "b", Decision: concord.Reject, Weight: 1})
	reached, outcome = e.Evaluate(p, proto, true)
	if !reached || outcome != concord.OutcomeApproved {
		t.Errorf("absent proposer: reached = %v, outcome = %s", reached, outcome)
	}
}

func TestTieBreakRandomReturnsAnOutcome(t *testing.T) {
	e := newTestEvaluator()
	proto := concord.Protocol{Type: concord.SimpleMajority, TieBreaker: concord.TieBreakRandom}
	p := votingProposal(2, 2, 0.51)
	p.PutVote(concord.Vote{Agent: "a", Decision: concord.Approve, Weight: 1, Confidence: 0.9})
	p.PutVote(concord.Vote{Agent: "b", Decision: concord.Reject, Weight: 1, Confidence: 0.1})

	reached, outcome := e.Evaluate(p, proto, true)
	if !reached {
		t.Fatal("tie at expiry with a tie-breaker must be reached")
	}
	if outcome != concord.OutcomeApproved && outcome != concord.OutcomeRejected {
		t.Errorf("outcome = %q", outcome)
	}
}

func TestBuildResultScores(t *testing.T) {
	e := newTestEvaluator()
	p := votingProposal(4, 2, 0.51)
	p.PutVote(concord.Vote{Agent: "a", Decision: concord.Approve, Weight: 1, Confidence: 0.8})
	p.PutVote(concord.Vote{Agent: "b", Decision: concord.Approve, Weight: 1, Confidence: 0.6})
	p.PutVote(concord.Vote{Agent: "c", Decision: concord.Reject, Weight: 1, Confidence: 1.0})

	result := e.BuildResult(p, concord.OutcomeApproved)

	if math.Abs(result.ParticipationRate-0.75) > 1e-9 {
		t.Errorf("participation rate = %v, want 0.75", result.ParticipationRate)
	}
	// mean confidence 0.8, scaled by participation
	if math.Abs(result.Confidence-0.6) > 1e-9 {
		t.Errorf("confidence = %v, want 0.6", result.Confidence)
	}
	// quality = 0.3*0.75 + 0.4*(2/3) + 0.3*0.8
	want := 0.3*0.75 + 0.4*(2.0/3.0) + 0.3*0.8
	if math.Abs(result.Quality-want) > 1e-9 {
		t.Errorf("quality = %v, want %v", result.Quality, want)
	}
	if result.Tally.ParticipantCount != 3 {
		t.Errorf("participant count = %d, want 3", result.Tally.ParticipantCount)
	}
}
