// Package broadcast implements the engine's side of the transport boundary.
// The engine only requires fire-and-forget delivery of proposals to their
// target agents; votes come back through the engine's CastVote API. A real
// deployment plugs a network transport in here. The Local broadcaster
// delivers to in-process subscribers and is used by the demo and the tests.
package broadcast

import (
	"context"
	"sync"

	"golang.org/x/time/rate"

	"github.com/concordlab/concord"
	"github.com/concordlab/concord/logging"
	"github.com/concordlab/concord/modules"
)

// Handler receives a proposal delivered to a subscribed agent.
type Handler func(p concord.Proposal)

// Local delivers proposals to in-process subscribers, pacing per-target
// deliveries with a rate limiter. A missing subscriber is not an error: the
// engine simply records lower participation.
type Local struct {
	logger logging.Logger

	limiter *rate.Limiter

	mut  sync.Mutex
	subs map[concord.AgentID]Handler
}

// NewLocal returns a local broadcaster delivering at most perSecond
// deliveries per second with the given burst.
func NewLocal(perSecond float64, burst int) *Local {
	return &Local{
		limiter: rate.NewLimiter(rate.Limit(perSecond), burst),
		subs:    make(map[concord.AgentID]Handler),
	}
}

// InitModule gives the broadcaster access to the other modules.
func (b *Local) InitModule(mods *modules.Core) {
	mods.Get(&b.logger)
}

// Subscribe registers the delivery handler for an agent, replacing any
// earlier handler.
func (b *Local) Subscribe(agent concord.AgentID, h Handler) {
	b.mut.Lock()
	defer b.mut.Unlock()
	b.subs[agent] = h
}

// Broadcast delivers the proposal to each target's subscriber. Delivery is
// asynchronous and fire-and-forget; it stops early if the context is
// cancelled.
func (b *Local) Broadcast(ctx context.Context, proposal concord.Proposal, targets []concord.AgentID) {
	go func() {
		for _, target := range targets {
			if err := b.limiter.Wait(ctx); err != nil {
				return
			}
			b.mut.Lock()
			h := b.subs[target]
			b.mut.Unlock()
			if h == nil {
				b.logger.Debugf("no subscriber for %s; dropping delivery of %s", target, proposal.ID)
				continue
			}
			h(proposal)
		}
	}()
}

var _ modules.Broadcaster = (*Local)(nil)

// Nop discards every broadcast. Useful in tests that drive voting directly.
type Nop struct{}

// Broadcast implements modules.Broadcaster.
func (Nop) Broadcast(context.Context, concord.Proposal, []concord.AgentID) {}

var _ modules.Broadcaster = Nop{}
