// Package executor turns approved proposals into execution plans and runs
// them, one proposal at a time.
package executor

import (
	"fmt"
	"time"

	"github.com/concordlab/concord"
	"github.com/concordlab/concord/catalog"
	"github.com/concordlab/concord/internal/idgen"
	"github.com/concordlab/concord/logging"
	"github.com/concordlab/concord/modules"
)

// Default per-step limits used when the proposal's protocol does not supply
// its own retry budget.
const (
	defaultStepTimeout = 30 * time.Second
	defaultStepRetries = 2
)

// Planner builds execution plans for approved proposals.
type Planner struct {
	logger  logging.Logger
	catalog *catalog.Catalog
}

// NewPlanner returns a new planner.
func NewPlanner() *Planner {
	return &Planner{}
}

// InitModule gives the planner access to the other modules.
func (pl *Planner) InitModule(mods *modules.Core) {
	mods.Get(&pl.logger, &pl.catalog)
}

// BuildPlan builds one step per unit of work for the proposal, selected by
// proposal type. The plan's rollback list holds one advisory token per step;
// nothing invokes them automatically.
func (pl *Planner) BuildPlan(p *concord.Proposal) *concord.ExecutionPlan {
	plan := &concord.ExecutionPlan{Proposal: p.ID}

	params := concord.PayloadParams(p.Payload)
	switch p.Type {
	case concord.MemoryUpdateProposal:
		plan.Steps = append(plan.Steps, pl.step(p, ActionUpdateMemory, params))
	case concord.PolicyChangeProposal:
		plan.Steps = append(plan.Steps, pl.step(p, ActionUpdatePolicy, params))
	case concord.ResourceAllocationProposal:
		plan.Steps = append(plan.Steps, pl.step(p, ActionAllocateResource, params))
	default:
		plan.Steps = append(plan.Steps, pl.step(p, ActionExecute, params))
	}

	for _, step := range plan.Steps {
		plan.EstimatedDuration += step.Timeout
		plan.Rollback = append(plan.Rollback, "rollback-"+step.ID)
	}

	pl.logger.Debugf("built plan for %s: %d step(s), est. %s", p.ID, len(plan.Steps), plan.EstimatedDuration)
	return plan
}

func (pl *Planner) step(p *concord.Proposal, action string, params map[string]any) concord.ExecutionStep {
	retries := defaultStepRetries
	if protocol, err := pl.catalog.Get(p.Protocol); err == nil {
		retries = protocol.MaxRetries
	}
	return concord.ExecutionStep{
		ID:      fmt.Sprintf("%s-step-%s", p.ID, idgen.New()),
		Target:  p.Proposer,
		Action:  action,
		Params:  params,
		Timeout: defaultStepTimeout,
		Retries: retries,
	}
}

var _ modules.ExecutionPlanner = (*Planner)(nil)
