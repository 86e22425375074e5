package security

import (
	"testing"
	"time"

	"github.com/concordlab/concord"
)

func TestSignAndVerify(t *testing.T) {
	s := NewSigner([]byte("secret"))
	vote := concord.Vote{Agent: "a", Decision: concord.Approve, Timestamp: time.Now()}

	if err := s.Sign("p1", &vote); err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if len(vote.Signature) == 0 {
		t.Fatal("no signature attached")
	}
	if err := s.Verify("p1", vote); err != nil {
		t.Errorf("Verify: %v", err)
	}
	// second verification hits the cache
	if err := s.Verify("p1", vote); err != nil {
		t.Errorf("cached Verify: %v", err)
	}
}

func TestVerifyRejectsTampering(t *testing.T) {
	s := NewSigner([]byte("secret"))
	vote := concord.Vote{Agent: "a", Decision: concord.Approve, Timestamp: time.Now()}
	if err := s.Sign("p1", &vote); err != nil {
		t.Fatal(err)
	}

	tampered := vote
	tampered.Decision = concord.Reject
	if err := s.Verify("p1", tampered); err == nil {
		t.Error("changed decision must invalidate the tag")
	}

	if err := s.Verify("p2", vote); err == nil {
		t.Error("tag must be bound to the proposal")
	}

	other := vote
	other.Agent = "b"
	if err := s.Verify("p1", other); err == nil {
		t.Error("tag must be bound to the agent")
	}
}

func TestVerifyMissingSignature(t *testing.T) {
	s := NewSigner([]byte("secret"))
	vote := concord.Vote{Agent: "a", Decision: concord.Approve}
	if err := s.Verify("p1", vote); err == nil {
		t.Error("missing signature must fail verification")
	}
}

func TestDifferentSecretsDisagree(t *testing.T) {
	s1 := NewSigner([]byte("one"))
	s2 := NewSigner([]byte("two"))
	vote := concord.Vote{Agent: "a", Decision: concord.Approve, Timestamp: time.Now()}
	if err := s1.Sign("p1", &vote); err != nil {
		t.Fatal(err)
	}
	if err := s2.Verify("p1", vote); err == nil {
		t.Error("a signer with a different secret must reject the tag")
	}
}
