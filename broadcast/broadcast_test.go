package broadcast

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/concordlab/concord"
	"github.com/concordlab/concord/logging"
)

func newTestLocal() *Local {
	b := NewLocal(1000, 16)
	b.logger = logging.NewWithDest(io.Discard, "broadcast")
	return b
}

func TestBroadcastDeliversToTargets(t *testing.T) {
	b := newTestLocal()
	got := make(chan concord.AgentID, 2)
	for _, agent := range []concord.AgentID{"a", "b"} {
		agent := agent
		b.Subscribe(agent, func(p concord.Proposal) {
			if p.ID != "p1" {
				t.Errorf("delivered %s, want p1", p.ID)
			}
			got <- agent
		})
	}

	b.Broadcast(context.Background(), concord.Proposal{ID: "p1"}, []concord.AgentID{"a", "b"})

	seen := make(map[concord.AgentID]bool)
	for i := 0; i < 2; i++ {
		select {
		case agent := <-got:
			seen[agent] = true
		case <-time.After(time.Second):
			t.Fatalf("delivery %d never arrived", i)
		}
	}
	if !seen["a"] || !seen["b"] {
		t.Errorf("deliveries = %v", seen)
	}
}

func TestBroadcastSkipsMissingSubscriber(t *testing.T) {
	b := newTestLocal()
	got := make(chan concord.AgentID, 1)
	b.Subscribe("b", func(concord.Proposal) { got <- "b" })

	// "a" has no subscriber; delivery to "b" must still happen
	b.Broadcast(context.Background(), concord.Proposal{ID: "p1"}, []concord.AgentID{"a", "b"})

	select {
	case <-got:
	case <-time.After(time.Second):
		t.Fatal("delivery to b never arrived")
	}
}

func TestBroadcastStopsOnCancelledContext(t *testing.T) {
	b := NewLocal(0.001, 1) // first delivery consumes the burst
	b.logger = logging.NewWithDest(io.Discard, "broadcast")
	got := make(chan concord.AgentID, 2)
	b.Subscribe("a", func(concord.Proposal) { got <- "a" })
	b.Subscribe("b", func(concord.Proposal) { got <- "b" })

	ctx, cancel := context.WithCancel(context.Background())
	b.Broadcast(ctx, concord.Proposal{ID: "p1"}, []concord.AgentID{"a", "b"})

	select {
	case <-got:
	case <-time.After(time.Second):
		t.Fatal("first delivery never arrived")
	}
	cancel()
	select {
	case agent := <-got:
		t.Errorf("delivery to %s after cancel", agent)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSubscribeReplacesHandler(t *testing.T) {
	b := newTestLocal()
	got := make(chan int, 1)
	b.Subscribe("a", func(concord.Proposal) { got <- 1 })
	b.Subscribe("a", func(concord.Proposal) { got <- 2 })

	b.Broadcast(context.Background(), concord.Proposal{ID: "p1"}, []concord.AgentID{"a"})
	select {
	case n := <-got:
		if n != 2 {
			t.Errorf("handler %d ran, want the replacement", n)
		}
	case <-time.After(time.Second):
		t.Fatal("delivery never arrived")
	}
}
