package concord

import (
	"encoding/json"
	"fmt"
	"time"
)

// Proposal is a pending decision requiring agreement from a set of agents.
// It is owned by the proposal store; all mutation goes through the store's
// API so that a vote and a timeout firing never race on the same record.
type Proposal struct {
	ID                   ProposalID    `json:"id"`
	Type                 ProposalType  `json:"type"`
	Proposer             AgentID       `json:"proposer"`
	Title                string        `json:"title"`
	Description          string        `json:"description,omitempty"`
	Payload              Payload       `json:"-"`
	Targets              []AgentID     `json:"targets"`
	RequiredParticipants int           `json:"requiredParticipants"`
	Protocol             string        `json:"protocol"`
	Threshold            float64       `json:"threshold"`
	Timeout              time.Duration `json:"timeout"`
	CreatedAt            time.Time     `json:"createdAt"`
	Status               Status        `json:"status"`

	// Votes holds at most one vote per agent, in first-cast order.
	// A re-vote overwrites the agent's entry in place.
	Votes []Vote `json:"votes"`

	// Result is set at most once, when consensus is first detected.
	Result *ConsensusResult `json:"result,omitempty"`
}

// VoteBy returns the vote cast by the given agent, if any.
func (p *Proposal) VoteBy(agent AgentID) (Vote, bool) {
	for _, v := range p.Votes {
		if v.Agent == agent {
			return v, true
		}
	}
	return Vote{}, false
}

// PutVote records the vote, replacing any earlier vote from the same agent.
func (p *Proposal) PutVote(v Vote) {
	for i := range p.Votes {
		if p.Votes[i].Agent == v.Agent {
			p.Votes[i] = v
			return
		}
	}
	p.Votes = append(p.Votes, v)
}

// IsTarget reports whether the agent is in the proposal's target set.
func (p *Proposal) IsTarget(agent AgentID) bool {
	for _, t := range p.Targets {
		if t == agent {
			return true
		}
	}
	return false
}

// NonVoters returns the target agents that have not cast a vote.
func (p *Proposal) NonVoters() []AgentID {
	var out []AgentID
	for _, t := range p.Targets {
		if _, ok := p.VoteBy(t); !ok {
			out = append(out, t)
		}
	}
	return out
}

// CurrentTally recomputes the weight sums over the votes cast so far.
func (p *Proposal) CurrentTally() Tally {
	t := Tally{ParticipantCount: len(p.Votes)}
	for _, v := range p.Votes {
		switch v.Decision {
		case Approve:
			t.Approve += v.Weight
		case Reject:
			t.Reject += v.Weight
		case Abstain:
			t.Abstain += v.Weight
		}
		t.TotalWeight += v.Weight
	}
	return t
}

func (p *Proposal) String() string {
	return fmt.Sprintf("Proposal{ %s (%s) by %s, status=%s, votes=%d/%d }",
		p.ID, p.Type, p.Proposer, p.Status, len(p.Votes), len(p.Targets))
}

// proposalJSON mirrors Proposal for serialization, adding the payload
// envelope that preserves the concrete payload variant across a round trip.
type proposalJSON struct {
	ID                   ProposalID       `json:"id"`
	Type                 ProposalType     `json:"type"`
	Proposer             AgentID          `json:"proposer"`
	Title                string           `json:"title"`
	Description          string           `json:"description,omitempty"`
	Payload              *payloadEnvelope `json:"payload,omitempty"`
	Targets              []AgentID        `json:"targets"`
	RequiredParticipants int              `json:"requiredParticipants"`
	Protocol             string           `json:"protocol"`
	Threshold            float64          `json:"threshold"`
	Timeout              time.Duration    `json:"timeout"`
	CreatedAt            time.Time        `json:"createdAt"`
	Status               Status           `json:"status"`
	Votes                []Vote           `json:"votes"`
	Result               *ConsensusResult `json:"result,omitempty"`
}

// MarshalJSON implements json.Marshaler.
func (p *Proposal) MarshalJSON() ([]byte, error) {
	env, err := wrapPayload(p.Payload)
	if err != nil {
		return nil, fmt.Errorf("proposal %s: %w", p.ID, err)
	}
	return json.Marshal(proposalJSON{
		ID:                   p.ID,
		Type:                 p.Type,
		Proposer:             p.Proposer,
		Title:                p.Title,
		Description:          p.Description,
		Payload:              env,
		Targets:              p.Targets,
		RequiredParticipants: p.RequiredParticipants,
		Protocol:             p.Protocol,
		Threshold:            p.Threshold,
		Timeout:              p.Timeout,
		CreatedAt:            p.CreatedAt,
		Status:               p.Status,
		Votes:                p.Votes,
		Result:               p.Result,
	})
}

// UnmarshalJSON implements json.Unmarshaler.
func (p *Proposal) UnmarshalJSON(data []byte) error {
	var pj proposalJSON
	if err := json.Unmarshal(data, &pj); err != nil {
		return err
	}
	payload, err := unwrapPayload(pj.Payload)
	if err != nil {
		return fmt.Errorf("proposal %s: %w", pj.ID, err)
	}
	*p = Proposal{
		ID:                   pj.ID,
		Type:                 pj.Type,
		Proposer:             pj.Proposer,
		Title:                pj.Title,
		Description:          pj.Description,
		Payload:              payload,
		Targets:              pj.Targets,
		RequiredParticipants: pj.RequiredParticipants,
		Protocol:             pj.Protocol,
		Threshold:            pj.Threshold,
		Timeout:              pj.Timeout,
		CreatedAt:            pj.CreatedAt,
		Status:               pj.Status,
		Votes:                pj.Votes,
		Result:               pj.Result,
	}
	return nil
}
