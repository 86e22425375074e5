package executor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/multierr"

	"github.com/concordlab/concord"
	"github.com/concordlab/concord/eventloop"
	"github.com/concordlab/concord/logging"
	"github.com/concordlab/concord/modules"
	"github.com/concordlab/concord/store"
)

// item is one queued (proposal, plan) pair.
type item struct {
	id   concord.ProposalID
	plan *concord.ExecutionPlan
}

// Queue runs approved proposals' plans in FIFO order. A single-flight gate
// ensures at most one proposal executes at a time; this is a deliberate
// throughput limiter that keeps side effects strictly ordered, not an
// accidental serialization.
type Queue struct {
	store     *store.Store
	executors *Registry
	eventLoop *eventloop.EventLoop
	logger    logging.Logger

	mut     sync.Mutex
	pending []item
	wake    chan struct{}

	// execMut enforces global single-flight execution across the worker
	// and the synchronous Execute path.
	execMut sync.Mutex

	running sync.WaitGroup
}

// NewQueue returns an empty queue. Start must be called before enqueued
// plans are drained.
func NewQueue() *Queue {
	return &Queue{wake: make(chan struct{}, 1)}
}

// InitModule gives the queue access to the other modules.
func (q *Queue) InitModule(mods *modules.Core) {
	mods.Get(&q.store, &q.executors, &q.eventLoop, &q.logger)
}

// Enqueue adds an approved proposal's plan to the queue. The worker picks it
// up in FIFO order.
func (q *Queue) Enqueue(id concord.ProposalID, plan *concord.ExecutionPlan) {
	if plan == nil {
		q.logger.Warnf("refusing to enqueue %s without a plan", id)
		return
	}
	q.mut.Lock()
	q.pending = append(q.pending, item{id: id, plan: plan})
	q.mut.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// Start launches the queue worker. The worker drains the queue until the
// context is cancelled; a failing proposal never stops the worker.
func (q *Queue) Start(ctx context.Context) {
	q.running.Add(1)
	go func() {
		defer q.running.Done()
		for {
			for {
				it, ok := q.pop()
				if !ok {
					break
				}
				if err := q.run(ctx, it); err != nil {
					q.logger.Warnf("execution of %s failed: %v", it.id, err)
				}
			}
			select {
			case <-q.wake:
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Wait blocks until the worker has stopped. Call after cancelling the
// context passed to Start.
func (q *Queue) Wait() {
	q.running.Wait()
}

func (q *Queue) pop() (item, bool) {
	q.mut.Lock()
	defer q.mut.Unlock()
	if len(q.pending) == 0 {
		return item{}, false
	}
	it := q.pending[0]
	q.pending = q.pending[1:]
	return it, true
}

// Execute runs the proposal's plan synchronously, subject to the same
// single-flight gate as the worker. The proposal must be passed and must
// have a plan.
func (q *Queue) Execute(ctx context.Context, id concord.ProposalID) error {
	p, err := q.store.Get(id)
	if err != nil {
		return err
	}
	if p.Status != concord.StatusPassed {
		return fmt.Errorf("%w: cannot execute %s proposal", concord.ErrInvalidStatus, p.Status)
	}
	if p.Result == nil || p.Result.Plan == nil {
		return fmt.Errorf("%w: %s", concord.ErrNoPlan, id)
	}
	return q.run(ctx, item{id: id, plan: p.Result.Plan})
}

// run executes every step of the plan in order. The first failing step
// aborts the remaining steps; no rollback is invoked. On full success the
// proposal completes.
func (q *Queue) run(ctx context.Context, it item) error {
	q.execMut.Lock()
	defer q.execMut.Unlock()

	err := q.store.Update(it.id, func(p *concord.Proposal) error {
		return store.Advance(p, concord.StatusExecuting)
	})
	if err != nil {
		return fmt.Errorf("start execution of %s: %w", it.id, err)
	}

	q.eventLoop.AddEvent(concord.ExecutionStartedEvent{Proposal: it.id, Steps: len(it.plan.Steps)})
	started := time.Now()

	for _, step := range it.plan.Steps {
		if err := q.runStep(ctx, step); err != nil {
			q.eventLoop.AddEvent(concord.ExecutionFailedEvent{
				Proposal: it.id,
				Step:     step.ID,
				Err:      err.Error(),
			})
			return fmt.Errorf("step %s: %w", step.ID, err)
		}
	}

	err = q.store.Update(it.id, func(p *concord.Proposal) error {
		return store.Advance(p, concord.StatusCompleted)
	})
	if err != nil {
		return fmt.Errorf("complete execution of %s: %w", it.id, err)
	}

	q.eventLoop.AddEvent(concord.ExecutionCompletedEvent{
		Proposal: it.id,
		Elapsed:  time.Since(started),
	})
	q.logger.Infof("executed %s (%d steps)", it.id, len(it.plan.Steps))
	return nil
}

// runStep runs one step with its timeout, retrying up to the step's retry
// budget. The returned error aggregates every failed attempt.
func (q *Queue) runStep(ctx context.Context, step concord.ExecutionStep) error {
	exec := q.executors.For(step.Action)

	var errs error
	for attempt := 0; attempt <= step.Retries; attempt++ {
		stepCtx := ctx
		var cancel context.CancelFunc
		if step.Timeout > 0 {
			stepCtx, cancel = context.WithTimeout(ctx, step.Timeout)
		}
		err := exec.Execute(stepCtx, step.ID, step.Target, step.Params)
		if cancel != nil {
			cancel()
		}
		if err == nil {
			return nil
		}
		errs = multierr.Append(errs, fmt.Errorf("attempt %d: %w", attempt+1, err))
		if ctx.Err() != nil {
			break
		}
	}
	return errs
}

var _ modules.ExecutionQueue = (*Queue)(nil)
