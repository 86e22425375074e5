// Package catalog implements the protocol catalog: named consensus protocols
// with their threshold, timeout and tie-break parameters. Five protocols are
// pre-registered; more can be added before proposals start flowing.
package catalog

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/concordlab/concord"
	"github.com/concordlab/concord/logging"
	"github.com/concordlab/concord/modules"
)

// Catalog is a lookup table of registered protocols. Protocol parameters are
// immutable after registration; only the enabled flag can change.
type Catalog struct {
	logger logging.Logger
	opts   *modules.Options

	mut       sync.RWMutex
	protocols map[string]concord.Protocol
}

// New returns a catalog with the built-in protocols pre-registered.
func New() *Catalog {
	c := &Catalog{protocols: make(map[string]concord.Protocol)}
	for _, p := range builtins() {
		c.protocols[p.Name] = p
	}
	return c
}

func builtins() []concord.Protocol {
	return []concord.Protocol{
		{Name: "simple_majority", Type: concord.SimpleMajority, Threshold: 0.51, Timeout: 5 * time.Minute, MaxRetries: 3},
		{Name: "supermajority", Type: concord.Supermajority, Threshold: 0.67, Timeout: 10 * time.Minute, MaxRetries: 3},
		{Name: "unanimous", Type: concord.Unanimous, Threshold: 1.0, Timeout: 15 * time.Minute, MaxRetries: 5},
		{Name: "weighted_voting", Type: concord.WeightedVoting, Threshold: 0.6, Timeout: 7 * time.Minute, MaxRetries: 3},
		{Name: "emergency_unanimous", Type: concord.Unanimous, Threshold: 1.0, Timeout: time.Minute, MaxRetries: 1},
	}
}

// InitModule gives the catalog access to the other modules.
func (c *Catalog) InitModule(mods *modules.Core) {
	mods.Get(&c.logger, &c.opts)
}

// Register adds a protocol to the catalog. Registering a name twice is an
// error; protocols are immutable once registered.
func (c *Catalog) Register(p concord.Protocol) error {
	if p.Threshold < 0 || p.Threshold > 1 {
		return fmt.Errorf("protocol %s: threshold %.2f outside [0,1]", p.Name, p.Threshold)
	}
	c.mut.Lock()
	defer c.mut.Unlock()
	if _, ok := c.protocols[p.Name]; ok {
		return fmt.Errorf("protocol %s already registered", p.Name)
	}
	c.protocols[p.Name] = p
	c.logger.Debugf("registered protocol %v", p)
	return nil
}

// Get returns the protocol with the given name.
func (c *Catalog) Get(name string) (concord.Protocol, error) {
	c.mut.RLock()
	defer c.mut.RUnlock()
	p, ok := c.protocols[name]
	if !ok {
		return concord.Protocol{}, fmt.Errorf("%w: %s", concord.ErrUnknownProtocol, name)
	}
	return p, nil
}

// SetEnabled enables or disables a protocol. Disabled protocols cannot be
// selected for new proposals; proposals already using one are unaffected.
func (c *Catalog) SetEnabled(name string, enabled bool) error {
	c.mut.Lock()
	defer c.mut.Unlock()
	p, ok := c.protocols[name]
	if !ok {
		return fmt.Errorf("%w: %s", concord.ErrUnknownProtocol, name)
	}
	p.Disabled = !enabled
	c.protocols[name] = p
	return nil
}

// Protocols returns all registered protocols, sorted by name.
func (c *Catalog) Protocols() []concord.Protocol {
	c.mut.RLock()
	out := make([]concord.Protocol, 0, len(c.protocols))
	for _, p := range c.protocols {
		out = append(out, p)
	}
	c.mut.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// SelectOptimal picks the protocol for a proposal that did not name one.
// Emergency actions demand unanimity regardless of size; policy and
// configuration changes need a supermajority; very small groups vote
// unanimously, very large groups by weight; everything else falls back to
// the configured default protocol.
func (c *Catalog) SelectOptimal(proposalType concord.ProposalType, targetCount int) string {
	switch {
	case proposalType == concord.EmergencyActionProposal:
		return "unanimous"
	case proposalType == concord.PolicyChangeProposal, proposalType == concord.ConfigurationProposal:
		return "supermajority"
	case targetCount <= 3:
		return "unanimous"
	case targetCount > 10:
		return "weighted_voting"
	default:
		return c.opts.DefaultProtocol()
	}
}

// Restore replaces the catalog contents with the given protocols. It is used
// when importing a snapshot.
func (c *Catalog) Restore(protocols []concord.Protocol) {
	c.mut.Lock()
	defer c.mut.Unlock()
	c.protocols = make(map[string]concord.Protocol, len(protocols))
	for _, p := range protocols {
		c.protocols[p.Name] = p
	}
}
