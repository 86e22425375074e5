package consensus

import (
	"time"

	wr "github.com/mroth/weightedrand"

	"github.com/concordlab/concord"
	"github.com/concordlab/concord/logging"
	"github.com/concordlab/concord/modules"
)

// Quality score weights: participation, agreement strength, voter confidence.
const (
	participationWeight = 0.3
	agreementWeight     = 0.4
	confidenceWeight    = 0.3
)

// Evaluator decides whether a protocol's threshold is satisfied by the votes
// cast so far, and scores the resulting consensus.
type Evaluator struct {
	logger logging.Logger
}

// NewEvaluator returns a new evaluator.
func NewEvaluator() *Evaluator {
	return &Evaluator{}
}

// InitModule gives the evaluator access to the other modules.
func (e *Evaluator) InitModule(mods *modules.Core) {
	mods.Get(&e.logger)
}

// Evaluate checks the proposal's tally against its protocol. It returns
// whether consensus was reached and, if so, the outcome.
//
// Tie-breaking only applies at expiry: during active voting an exact tie
// simply waits for more votes.
func (e *Evaluator) Evaluate(p *concord.Proposal, proto concord.Protocol, atExpiry bool) (reached bool, outcome concord.Outcome) {
	tally := p.CurrentTally()
	if tally.ParticipantCount < p.RequiredParticipants {
		return false, ""
	}

	switch proto.Type {
	case concord.SimpleMajority, concord.Supermajority, concord.Unanimous:
		// Abstentions count toward participation but not toward the ratio.
		decisive := tally.Approve + tally.Reject
		if decisive > 0 {
			rate := tally.Approve / decisive
			if rate >= p.Threshold {
				return true, outcomeFor(rate)
			}
		}
	case concord.WeightedVoting:
		if tally.TotalWeight > 0 {
			rate := tally.Approve / tally.TotalWeight
			if rate >= p.Threshold {
				return true, outcomeFor(rate)
			}
		}
	default:
		// unknown protocol type: never reached
		return false, ""
	}

	if atExpiry && proto.TieBreaker != "" && tally.Approve > 0 && tally.Approve == tally.Reject {
		return true, e.breakTie(p, proto)
	}

	return false, ""
}

func outcomeFor(approvalRate float64) concord.Outcome {
	if approvalRate > 0.5 {
		return concord.OutcomeApproved
	}
	return concord.OutcomeRejected
}

// breakTie resolves an exact approve/reject tie at expiry according to the
// protocol's tie-break rule.
func (e *Evaluator) breakTie(p *concord.Proposal, proto concord.Protocol) concord.Outcome {
	switch proto.TieBreaker {
	case concord.TieBreakProposer:
		// the proposer's own vote decides; a proposer outside the target
		// set is assumed to want its proposal approved
		if v, ok := p.VoteBy(p.Proposer); ok && v.Decision == concord.Reject {
			return concord.OutcomeRejected
		}
		return concord.OutcomeApproved
	case concord.TieBreakRandom:
		return e.randomTie(p)
	default:
		return concord.OutcomeRejected
	}
}

// randomTie picks a side at random, weighted by the confidence mass behind
// each side. The weights differ even though the vote weights tied.
func (e *Evaluator) randomTie(p *concord.Proposal) concord.Outcome {
	var approveConf, rejectConf float64
	for _, v := range p.Votes {
		switch v.Decision {
		case concord.Approve:
			approveConf += v.Confidence
		case concord.Reject:
			rejectConf += v.Confidence
		}
	}

	chooser, err := wr.NewChooser(
		wr.Choice{Item: concord.OutcomeApproved, Weight: uint(approveConf*100) + 1},
		wr.Choice{Item: concord.OutcomeRejected, Weight: uint(rejectConf*100) + 1},
	)
	if err != nil {
		e.logger.Error("tie-break chooser: ", err)
		return concord.OutcomeRejected
	}
	return chooser.Pick().(concord.Outcome)
}

// BuildResult scores the finalized proposal. Confidence is the mean voter
// confidence scaled by participation; quality blends participation,
// agreement strength and confidence.
func (e *Evaluator) BuildResult(p *concord.Proposal, outcome concord.Outcome) concord.ConsensusResult {
	tally := p.CurrentTally()

	var meanConfidence float64
	for _, v := range p.Votes {
		meanConfidence += v.Confidence
	}
	if len(p.Votes) > 0 {
		meanConfidence /= float64(len(p.Votes))
	}

	participationRate := 0.0
	if len(p.Targets) > 0 {
		participationRate = float64(tally.ParticipantCount) / float64(len(p.Targets))
	}

	agreement := 0.0
	if total := tally.Approve + tally.Reject + tally.Abstain; total > 0 {
		agreement = tally.Approve
		if tally.Reject > agreement {
			agreement = tally.Reject
		}
		agreement /= total
	}

	return concord.ConsensusResult{
		Outcome:           outcome,
		Tally:             tally,
		Confidence:        meanConfidence * participationRate,
		ParticipationRate: participationRate,
		Quality: participationWeight*participationRate +
			agreementWeight*agreement +
			confidenceWeight*meanConfidence,
		ResolvedAt: time.Now(),
	}
}
