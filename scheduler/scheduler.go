// Package scheduler implements the per-proposal expiry timers. When a timer
// fires it adds a TimeoutEvent to the event loop; the consensus package
// decides whether the proposal can still be finalized or must expire.
package scheduler

import (
	"sync"
	"time"

	"github.com/concordlab/concord"
	"github.com/concordlab/concord/eventloop"
	"github.com/concordlab/concord/logging"
	"github.com/concordlab/concord/modules"
)

// TimeoutEvent is added to the event loop when a proposal's voting window
// elapses. It may arrive after the proposal has already resolved; handlers
// must treat it as a no-op in that case.
type TimeoutEvent struct {
	Proposal concord.ProposalID
}

// Scheduler arms one timer per proposal. Timers are cancelled when their
// proposal resolves early so that they cannot fire against stale state.
type Scheduler struct {
	eventLoop *eventloop.EventLoop
	logger    logging.Logger

	mut    sync.Mutex
	timers map[concord.ProposalID]*time.Timer
}

// New returns a scheduler with no armed timers.
func New() *Scheduler {
	return &Scheduler{timers: make(map[concord.ProposalID]*time.Timer)}
}

// InitModule gives the scheduler access to the other modules.
func (s *Scheduler) InitModule(mods *modules.Core) {
	mods.Get(&s.eventLoop, &s.logger)
}

// Schedule arms the expiry timer for the proposal. Scheduling an id twice
// replaces the earlier timer.
func (s *Scheduler) Schedule(id concord.ProposalID, timeout time.Duration) {
	timer := time.AfterFunc(timeout, func() {
		s.mut.Lock()
		delete(s.timers, id)
		s.mut.Unlock()
		s.eventLoop.AddEvent(TimeoutEvent{Proposal: id})
	})

	s.mut.Lock()
	if old, ok := s.timers[id]; ok {
		old.Stop()
	}
	s.timers[id] = timer
	s.mut.Unlock()

	s.logger.Debugf("armed %s timer for proposal %s", timeout, id)
}

// Cancel stops the timer for the proposal, if one is armed. A timer that
// already fired is gone; the resulting TimeoutEvent is harmless because the
// proposal has resolved.
func (s *Scheduler) Cancel(id concord.ProposalID) {
	s.mut.Lock()
	defer s.mut.Unlock()
	if timer, ok := s.timers[id]; ok {
		timer.Stop()
		delete(s.timers, id)
	}
}

// Shutdown stops every armed timer.
func (s *Scheduler) Shutdown() {
	s.mut.Lock()
	defer s.mut.Unlock()
	for id, timer := range s.timers {
		timer.Stop()
		delete(s.timers, id)
	}
}

var _ modules.TimeoutScheduler = (*Scheduler)(nil)
