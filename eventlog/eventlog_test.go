package eventlog

import (
	"fmt"
	"testing"

	"github.com/concordlab/concord"
	"github.com/concordlab/concord/modules"
)

func TestAppendAndQuery(t *testing.T) {
	l := New()
	l.Append(concord.Event{Type: concord.EventProposalCreated, Proposal: "p1"})
	l.Append(concord.Event{Type: concord.EventVoteCast, Proposal: "p1", Agent: "a"})
	l.Append(concord.Event{Type: concord.EventProposalCreated, Proposal: "p2"})

	if l.Len() != 3 {
		t.Fatalf("Len = %d, want 3", l.Len())
	}

	got := l.Events("p1", 0)
	if len(got) != 2 {
		t.Fatalf("got %d events for p1, want 2", len(got))
	}
	// newest first
	if got[0].Type != concord.EventVoteCast {
		t.Errorf("first event = %s, want vote_cast", got[0].Type)
	}

	limited := l.Events("", 2)
	if len(limited) != 2 || limited[0].Proposal != "p2" {
		t.Errorf("limited query = %v", limited)
	}
}

func TestAppendStampsTimestamp(t *testing.T) {
	l := New()
	l.Append(concord.Event{Type: concord.EventVotingStarted, Proposal: "p1"})
	if l.All()[0].Timestamp.IsZero() {
		t.Error("append should stamp a zero timestamp")
	}
}

func TestTrimKeepsNewestHalf(t *testing.T) {
	l := New()
	for i := 0; i <= maxEntries; i++ {
		l.Append(concord.Event{
			Type:     concord.EventVoteCast,
			Proposal: concord.ProposalID(fmt.Sprintf("p%d", i)),
		})
	}

	if l.Len() != keepEntries {
		t.Fatalf("Len = %d, want %d", l.Len(), keepEntries)
	}
	// the oldest retained entry is the one that pushed the log over the cap,
	// minus the keep window
	oldest := l.All()[0]
	want := concord.ProposalID(fmt.Sprintf("p%d", maxEntries-keepEntries+1))
	if oldest.Proposal != want {
		t.Errorf("oldest retained = %s, want %s", oldest.Proposal, want)
	}
	newest := l.Events("", 1)[0]
	if newest.Proposal != concord.ProposalID(fmt.Sprintf("p%d", maxEntries)) {
		t.Errorf("newest retained = %s", newest.Proposal)
	}
}

func TestDisabledLoggingDropsEvents(t *testing.T) {
	l := New()
	opts := modules.NewOptions()
	opts.SetEventLogging(false)
	l.opts = opts

	l.Append(concord.Event{Type: concord.EventVoteCast, Proposal: "p1"})
	if l.Len() != 0 {
		t.Errorf("Len = %d, want 0", l.Len())
	}
}

func TestRestoreReplaces(t *testing.T) {
	l := New()
	l.Append(concord.Event{Type: concord.EventVoteCast, Proposal: "old"})
	l.Restore([]concord.Event{{Type: concord.EventProposalCreated, Proposal: "p1"}})

	all := l.All()
	if len(all) != 1 || all[0].Proposal != "p1" {
		t.Errorf("All() = %v", all)
	}
}
