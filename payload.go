package concord

import (
	"encoding/json"
	"fmt"

	"github.com/concordlab/concord/internal/idgen"
)

// Payload is the typed content of a proposal. The set of variants is closed;
// each variant carries the parameters the execution planner needs to build
// steps for it.
type Payload interface {
	payloadKind() string
}

// MemoryUpdate proposes a change to a shared memory entry.
type MemoryUpdate struct {
	Scope string `json:"scope,omitempty"`
	Key   string `json:"key"`
	Value any    `json:"value"`
}

// PolicyChange proposes replacing the rules of a named policy.
type PolicyChange struct {
	PolicyID string         `json:"policyId"`
	Rules    map[string]any `json:"rules"`
}

// ResourceAllocation proposes granting an amount of a resource to an agent.
type ResourceAllocation struct {
	Resource string  `json:"resource"`
	Amount   float64 `json:"amount"`
	Grantee  AgentID `json:"grantee"`
}

// ActionRequest is the generic payload for agent actions, configuration
// changes, conflict resolutions and emergency actions.
type ActionRequest struct {
	Action string         `json:"action"`
	Params map[string]any `json:"params,omitempty"`
}

// CustomPayload carries free-form parameters for custom proposal types.
type CustomPayload map[string]any

func (MemoryUpdate) payloadKind() string       { return "memory_update" }
func (PolicyChange) payloadKind() string       { return "policy_change" }
func (ResourceAllocation) payloadKind() string { return "resource_allocation" }
func (ActionRequest) payloadKind() string      { return "action" }
func (CustomPayload) payloadKind() string      { return "custom" }

// PayloadParams flattens the payload into the parameter map attached to
// execution steps.
func PayloadParams(p Payload) map[string]any {
	switch v := p.(type) {
	case MemoryUpdate:
		return map[string]any{"scope": v.Scope, "key": v.Key, "value": v.Value}
	case PolicyChange:
		return map[string]any{"policyId": v.PolicyID, "rules": v.Rules}
	case ResourceAllocation:
		return map[string]any{"resource": v.Resource, "amount": v.Amount, "grantee": string(v.Grantee)}
	case ActionRequest:
		params := map[string]any{"action": v.Action}
		for k, val := range v.Params {
			params[k] = val
		}
		return params
	case CustomPayload:
		params := make(map[string]any, len(v))
		for k, val := range v {
			params[k] = val
		}
		return params
	case nil:
		return nil
	default:
		return nil
	}
}

// payloadEnvelope tags a serialized payload with its variant so that
// unmarshaling can restore the concrete type.
type payloadEnvelope struct {
	Kind string          `json:"kind"`
	Data json.RawMessage `json:"data"`
}

func wrapPayload(p Payload) (*payloadEnvelope, error) {
	if p == nil {
		return nil, nil
	}
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	return &payloadEnvelope{Kind: p.payloadKind(), Data: data}, nil
}

func unwrapPayload(env *payloadEnvelope) (Payload, error) {
	if env == nil {
		return nil, nil
	}
	switch env.Kind {
	case "memory_update":
		var p MemoryUpdate
		return p, json.Unmarshal(env.Data, &p)
	case "policy_change":
		var p PolicyChange
		return p, json.Unmarshal(env.Data, &p)
	case "resource_allocation":
		var p ResourceAllocation
		return p, json.Unmarshal(env.Data, &p)
	case "action":
		var p ActionRequest
		return p, json.Unmarshal(env.Data, &p)
	case "custom":
		var p CustomPayload
		return p, json.Unmarshal(env.Data, &p)
	default:
		return nil, fmt.Errorf("unknown payload kind %q", env.Kind)
	}
}

// NewProposalID returns a fresh, unique proposal ID.
func NewProposalID() ProposalID {
	return ProposalID("prop-" + idgen.New())
}
