// Package security implements vote authenticity tags. Tags are HMAC-SHA256
// over the vote's identifying fields with a per-agent key derived from the
// engine secret. This binds a vote to its agent and proposal; it is not a
// substitute for a real asymmetric signature scheme, which is out of scope.
package security

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru"

	"github.com/concordlab/concord"
	"github.com/concordlab/concord/logging"
	"github.com/concordlab/concord/modules"
)

const cacheSize = 4096

// Signer signs and verifies votes with per-agent HMAC keys.
type Signer struct {
	logger logging.Logger

	secret []byte

	mut  sync.Mutex
	keys map[concord.AgentID][]byte

	// verified caches tags that already passed verification.
	verified *lru.Cache
}

// NewSigner returns a signer using the given engine secret.
func NewSigner(secret []byte) *Signer {
	cache, err := lru.New(cacheSize)
	if err != nil {
		// lru.New only fails for non-positive sizes.
		panic(err)
	}
	return &Signer{
		secret:   secret,
		keys:     make(map[concord.AgentID][]byte),
		verified: cache,
	}
}

// InitModule gives the signer access to the other modules.
func (s *Signer) InitModule(mods *modules.Core) {
	mods.Get(&s.logger)
}

// agentKey derives (and caches) the HMAC key for an agent.
func (s *Signer) agentKey(agent concord.AgentID) []byte {
	s.mut.Lock()
	defer s.mut.Unlock()
	if key, ok := s.keys[agent]; ok {
		return key
	}
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(agent))
	key := mac.Sum(nil)
	s.keys[agent] = key
	return key
}

// digest computes the byte string that is signed: the fields that identify
// the vote, in a fixed order.
func digest(id concord.ProposalID, vote concord.Vote) []byte {
	mac := sha256.New()
	mac.Write([]byte(id))
	mac.Write([]byte(vote.Agent))
	mac.Write([]byte(vote.Decision))
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(vote.Timestamp.UnixNano()))
	mac.Write(buf[:])
	return mac.Sum(nil)
}

// Sign attaches the authenticity tag to the vote.
func (s *Signer) Sign(id concord.ProposalID, vote *concord.Vote) error {
	mac := hmac.New(sha256.New, s.agentKey(vote.Agent))
	mac.Write(digest(id, *vote))
	vote.Signature = mac.Sum(nil)
	return nil
}

// Verify checks the vote's tag. A verified tag is cached so that re-checking
// the same vote (for example during import) is cheap.
func (s *Signer) Verify(id concord.ProposalID, vote concord.Vote) error {
	if len(vote.Signature) == 0 {
		return fmt.Errorf("vote by %s on %s carries no signature", vote.Agent, id)
	}

	key := string(vote.Signature)
	if s.verified.Contains(key) {
		return nil
	}

	mac := hmac.New(sha256.New, s.agentKey(vote.Agent))
	mac.Write(digest(id, vote))
	if !hmac.Equal(mac.Sum(nil), vote.Signature) {
		return fmt.Errorf("tag mismatch for vote by %s on %s", vote.Agent, id)
	}

	s.verified.Add(key, struct{}{})
	return nil
}

var _ modules.VoteSigner = (*Signer)(nil)
