package executor

import (
	"context"

	"github.com/concordlab/concord"
	"github.com/concordlab/concord/logging"
	"github.com/concordlab/concord/modules"
)

// The step actions the planner emits.
const (
	ActionUpdateMemory     = "updateMemory"
	ActionUpdatePolicy     = "updatePolicy"
	ActionAllocateResource = "allocateResource"
	ActionExecute          = "execute"
)

// An Executor applies one execution step. Executors are external
// collaborators; the engine imposes no contract beyond success or failure.
type Executor interface {
	Execute(ctx context.Context, stepID string, agent concord.AgentID, params map[string]any) error
}

// ExecutorFunc adapts a function to the Executor interface.
type ExecutorFunc func(ctx context.Context, stepID string, agent concord.AgentID, params map[string]any) error

// Execute implements Executor.
func (f ExecutorFunc) Execute(ctx context.Context, stepID string, agent concord.AgentID, params map[string]any) error {
	return f(ctx, stepID, agent, params)
}

// Registry maps step actions to the executors that handle them. Unknown
// actions fall back to the generic executor.
type Registry struct {
	logger logging.Logger

	memory  Executor
	policy  Executor
	generic Executor
}

// NewRegistry returns a registry where every action is handled by a logging
// no-op until a real executor is set.
func NewRegistry() *Registry {
	return &Registry{}
}

// InitModule gives the registry access to the other modules.
func (r *Registry) InitModule(mods *modules.Core) {
	mods.Get(&r.logger)
	nop := ExecutorFunc(func(_ context.Context, stepID string, agent concord.AgentID, _ map[string]any) error {
		r.logger.Debugf("no-op executor: step %s for %s", stepID, agent)
		return nil
	})
	if r.memory == nil {
		r.memory = nop
	}
	if r.policy == nil {
		r.policy = nop
	}
	if r.generic == nil {
		r.generic = nop
	}
}

// SetMemoryExecutor installs the executor for memory update steps.
func (r *Registry) SetMemoryExecutor(e Executor) { r.memory = e }

// SetPolicyExecutor installs the executor for policy update steps.
func (r *Registry) SetPolicyExecutor(e Executor) { r.policy = e }

// SetGenericExecutor installs the executor for all other steps.
func (r *Registry) SetGenericExecutor(e Executor) { r.generic = e }

// For returns the executor responsible for the given action.
func (r *Registry) For(action string) Executor {
	switch action {
	case ActionUpdateMemory:
		return r.memory
	case ActionUpdatePolicy:
		return r.policy
	default:
		return r.generic
	}
}
