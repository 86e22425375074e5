package concord

import "time"

// ExecutionStep is one unit of side-effecting work in an execution plan.
type ExecutionStep struct {
	ID      string         `json:"id"`
	Target  AgentID        `json:"target"`
	Action  string         `json:"action"`
	Params  map[string]any `json:"params,omitempty"`
	Timeout time.Duration  `json:"timeout"`
	Retries int            `json:"retries"`
}

// ExecutionPlan is the ordered sequence of steps run after a proposal is
// approved. Rollback holds one advisory token per step; no compensating
// action is invoked automatically when a step fails.
type ExecutionPlan struct {
	Proposal          ProposalID      `json:"proposal"`
	Steps             []ExecutionStep `json:"steps"`
	EstimatedDuration time.Duration   `json:"estimatedDuration"`
	Rollback          []string        `json:"rollback,omitempty"`
}
