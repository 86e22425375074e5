// Package testutil provides helpers for wiring modules in tests.
package testutil

import (
	"bytes"
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/concordlab/concord"
	"github.com/concordlab/concord/broadcast"
	"github.com/concordlab/concord/catalog"
	"github.com/concordlab/concord/consensus"
	"github.com/concordlab/concord/eventlog"
	"github.com/concordlab/concord/eventloop"
	"github.com/concordlab/concord/executor"
	"github.com/concordlab/concord/logging"
	"github.com/concordlab/concord/metrics"
	"github.com/concordlab/concord/modules"
	"github.com/concordlab/concord/registry"
	"github.com/concordlab/concord/scheduler"
	"github.com/concordlab/concord/security"
	"github.com/concordlab/concord/store"
)

// TestSecret is the vote signing secret used by cores built with NewBuilder.
var TestSecret = []byte("testing secret")

type testWriter struct {
	t testing.TB
}

func (w testWriter) Write(p []byte) (n int, err error) {
	w.t.Log(string(bytes.TrimRight(p, "\n")))
	return len(p), nil
}

// TestLogger returns a logger that writes to the test log.
func TestLogger(t testing.TB) logging.Logger {
	return logging.NewWithDest(testWriter{t}, t.Name())
}

// NewBuilder returns a builder preloaded with a full set of modules. Tests
// that need to replace a module add their own before calling Build; the
// last module of a type wins.
func NewBuilder(t testing.TB) modules.Builder {
	builder := modules.NewBuilder()
	builder.Add(
		TestLogger(t),
		eventloop.New(128),
		store.New(),
		registry.New(),
		catalog.New(),
		consensus.NewEvaluator(),
		consensus.NewVotingMachine(),
		scheduler.New(),
		executor.NewPlanner(),
		executor.NewRegistry(),
		executor.NewQueue(),
		metrics.New(),
		eventlog.New(),
		security.NewSigner(TestSecret),
		broadcast.Nop{},
	)
	return builder
}

// NewCore builds a core with the default test modules plus any extras.
func NewCore(t testing.TB, extra ...any) *modules.Core {
	builder := NewBuilder(t)
	builder.Add(extra...)
	return builder.Build()
}

// RegisterAgents registers n active agents named agent-1 through agent-n
// with unit weight and returns their ids.
func RegisterAgents(t testing.TB, r *registry.Registry, n int) []concord.AgentID {
	t.Helper()
	ids := make([]concord.AgentID, n)
	for i := range ids {
		ids[i] = concord.AgentID(fmt.Sprintf("agent-%d", i+1))
		r.Register(ids[i], 1.0)
	}
	return ids
}

// NewProposal returns a voting proposal with the given targets, stored and
// ready to receive votes. A required count of 0 uses the default quorum.
func NewProposal(t testing.TB, s *store.Store, proposer concord.AgentID, targets []concord.AgentID, protocol string, threshold float64, required int) concord.ProposalID {
	t.Helper()
	if required <= 0 {
		required = quorum(len(targets))
	}
	p := &concord.Proposal{
		ID:                   concord.NewProposalID(),
		Type:                 concord.AgentActionProposal,
		Proposer:             proposer,
		Title:                "test proposal",
		Targets:              targets,
		RequiredParticipants: required,
		Protocol:             protocol,
		Threshold:            threshold,
		Timeout:              time.Minute,
		CreatedAt:            time.Now(),
		Status:               concord.StatusPending,
	}
	if err := s.Add(p); err != nil {
		t.Fatalf("failed to add proposal: %v", err)
	}
	err := s.Update(p.ID, func(p *concord.Proposal) error {
		return store.Advance(p, concord.StatusVoting)
	})
	if err != nil {
		t.Fatalf("failed to open voting: %v", err)
	}
	return p.ID
}

func quorum(targets int) int {
	q := (targets*67 + 99) / 100
	if q < 1 {
		q = 1
	}
	return q
}

// RunEventLoop processes events in the background until the test ends.
func RunEventLoop(t testing.TB, el *eventloop.EventLoop) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		el.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}
