package engine

import (
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/concordlab/concord"
	"github.com/concordlab/concord/store"
)

// Snapshot is the serialized state of an engine: every proposal with its
// votes and results, the participant registry, the protocol catalog, and
// the audit log.
type Snapshot struct {
	Proposals    []concord.Proposal    `json:"proposals"`
	Participants []concord.Participant `json:"participants"`
	Protocols    []concord.Protocol    `json:"protocols"`
	Events       []concord.Event       `json:"events"`
}

// Export serializes the engine state. The result of importing an export and
// exporting again is identical to the first export.
func (e *Engine) Export() ([]byte, error) {
	snapshot := Snapshot{
		Proposals:    e.store.Proposals(store.Filter{}),
		Participants: e.registry.Participants(),
		Protocols:    e.catalog.Protocols(),
		Events:       e.auditLog.All(),
	}
	return json.MarshalIndent(snapshot, "", "  ")
}

// Import replaces the engine state with a previously exported snapshot.
// Expiry timers are re-armed for proposals that were still voting; any that
// expired while the snapshot was cold time out immediately.
func (e *Engine) Import(data []byte) error {
	var snapshot Snapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return fmt.Errorf("decoding snapshot: %w", err)
	}
	if err := validateSnapshot(&snapshot); err != nil {
		return fmt.Errorf("invalid snapshot: %w", err)
	}

	e.registry.Restore(snapshot.Participants)
	e.catalog.Restore(snapshot.Protocols)
	e.store.Restore(snapshot.Proposals)
	e.auditLog.Restore(snapshot.Events)

	for i := range snapshot.Proposals {
		p := &snapshot.Proposals[i]
		if p.Status != concord.StatusVoting {
			continue
		}
		remaining := time.Until(p.CreatedAt.Add(p.Timeout))
		e.scheduler.Schedule(p.ID, remaining)
	}
	e.logger.Infof("imported snapshot: %d proposals, %d participants, %d events",
		len(snapshot.Proposals), len(snapshot.Participants), len(snapshot.Events))
	return nil
}

func validateSnapshot(s *Snapshot) (err error) {
	for i := range s.Proposals {
		p := &s.Proposals[i]
		if p.ID == "" {
			err = multierr.Append(err, fmt.Errorf("proposal %d: empty id", i))
		}
		if !p.Status.Valid() {
			err = multierr.Append(err, fmt.Errorf("proposal %s: unknown status %q", p.ID, p.Status))
		}
		if p.Threshold < 0 || p.Threshold > 1 {
			err = multierr.Append(err, fmt.Errorf("proposal %s: threshold %.2f outside [0,1]", p.ID, p.Threshold))
		}
		for _, v := range p.Votes {
			if v.Weight < concord.MinWeight || v.Weight > concord.MaxWeight {
				err = multierr.Append(err, fmt.Errorf("proposal %s: vote by %s has weight %.2f outside [%.1f,%.1f]",
					p.ID, v.Agent, v.Weight, concord.MinWeight, concord.MaxWeight))
			}
		}
	}
	for i := range s.Participants {
		a := &s.Participants[i]
		if a.ID == "" {
			err = multierr.Append(err, fmt.Errorf("participant %d: empty id", i))
		}
		if a.Weight < concord.MinWeight || a.Weight > concord.MaxWeight {
			err = multierr.Append(err, fmt.Errorf("participant %s: weight %.2f outside [%.1f,%.1f]",
				a.ID, a.Weight, concord.MinWeight, concord.MaxWeight))
		}
	}
	for i := range s.Protocols {
		p := &s.Protocols[i]
		if p.Threshold < 0 || p.Threshold > 1 {
			err = multierr.Append(err, fmt.Errorf("protocol %s: threshold %.2f outside [0,1]", p.Name, p.Threshold))
		}
	}
	return err
}
