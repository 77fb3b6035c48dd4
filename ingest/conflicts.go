package ingest

import (
	"context"

	"github.com/cadencehq/cadence/errors"
	"github.com/cadencehq/cadence/norm"
	"github.com/cadencehq/cadence/store"
	"github.com/cadencehq/cadence/temporal"
)

// detectConflicts compares the subject's effective assertions across all
// sources as of the batch anchor. Only properties present on both sides
// of a pair are compared; a property one source never asserted is
// single-source, not a disagreement. At most one conflict item ever
// exists per (subject, property); repeated detection updates it and
// lapses into agreement resolve it without deleting anything.
func (p *Pipeline) detectConflicts(ctx context.Context, tx *store.Store, resolver *temporal.Resolver, opts Options, item *store.Item, properties map[string]any, result *Result) error {
	effectives, err := resolver.EffectiveBySource(ctx, item.ID, opts.AnchorID)
	if err != nil {
		return err
	}
	lookup := normalizerLookup(tx, item.Type)

	for prop := range properties {
		values, disagree := gatherValues(effectives, prop, lookup)
		if !disagree {
			continue
		}
		conflict, err := p.ensureConflict(ctx, tx, opts, item, prop, values)
		if err != nil {
			return err
		}
		result.ConflictItems = append(result.ConflictItems, conflict)
	}

	return p.resolveLapsedConflicts(ctx, tx, opts, item, effectives, lookup, result)
}

// resolveLapsedConflicts finds the subject's conflicts whose sources now
// agree and writes a RESOLVED_BY_AGREEMENT snapshot on them. The
// detected snapshot stays in the history; disagreement is part of the
// permanent story.
func (p *Pipeline) resolveLapsedConflicts(ctx context.Context, tx *store.Store, opts Options, item *store.Item, effectives map[string]*temporal.Effective, lookup func(string) string, result *Result) error {
	conflicts, err := tx.ListItems(ctx, store.ItemFilter{Type: "conflict"})
	if err != nil {
		return err
	}

	for _, conflict := range conflicts {
		if subjectID, _ := conflict.Properties["subject_id"].(string); subjectID != item.ID {
			continue
		}
		prop, _ := conflict.Properties["property"].(string)
		if prop == "" {
			continue
		}

		latest, err := latestSelfSnapshot(ctx, tx, conflict.ID)
		if err != nil {
			return err
		}
		if latest == nil {
			continue
		}
		if status, _ := latest.Properties["status"].(string); status != StatusDetected {
			continue
		}

		values, disagree := gatherValues(effectives, prop, lookup)
		if disagree || len(values) < 2 {
			continue
		}

		_, _, err = tx.UpsertSnapshot(ctx, conflict.ID, opts.AnchorID, conflict.ID, map[string]any{
			"status":   StatusResolvedByAgreement,
			"property": prop,
			"values":   values,
		})
		if err != nil {
			return err
		}
		result.ResolvedConflicts = append(result.ResolvedConflicts, conflict)
	}
	return nil
}

// gatherValues collects each source's effective value for a property and
// reports whether any two of them disagree.
func gatherValues(effectives map[string]*temporal.Effective, prop string, lookup func(string) string) (map[string]any, bool) {
	values := make(map[string]any)
	for sourceID, eff := range effectives {
		if v, ok := eff.Snapshot.Properties[prop]; ok {
			values[sourceID] = v
		}
	}
	if len(values) < 2 {
		return values, false
	}

	normalizer := lookup(prop)
	var reference any
	first := true
	for _, v := range values {
		if first {
			reference = v
			first = false
			continue
		}
		if !norm.EqualWith(normalizer, reference, v) {
			return values, true
		}
	}
	return values, false
}

func (p *Pipeline) ensureConflict(ctx context.Context, tx *store.Store, opts Options, item *store.Item, prop string, values map[string]any) (*store.Item, error) {
	conflict, err := findWorkflowItem(ctx, tx, "conflict", map[string]any{
		"subject_id": item.ID,
		"property":   prop,
	})
	if err != nil {
		return nil, err
	}
	if conflict == nil {
		conflict, err = tx.CreateItem(ctx, "conflict", "", map[string]any{
			"subject_id": item.ID,
			"property":   prop,
		})
		if err != nil {
			return nil, err
		}
		if _, err := tx.EnsureConnection(ctx, conflict.ID, item.ID, nil); err != nil {
			return nil, err
		}
	}

	_, _, err = tx.UpsertSnapshot(ctx, conflict.ID, opts.AnchorID, conflict.ID, map[string]any{
		"status":   StatusDetected,
		"property": prop,
		"values":   values,
	})
	if err != nil {
		return nil, err
	}

	for sourceID := range values {
		if _, err := tx.EnsureConnection(ctx, conflict.ID, sourceID, nil); err != nil {
			return nil, err
		}
	}
	if _, err := tx.EnsureConnection(ctx, conflict.ID, opts.AnchorID, nil); err != nil {
		return nil, err
	}
	return conflict, nil
}

// latestSelfSnapshot returns the newest self-sourced snapshot of a
// workflow item, or nil when it has none.
func latestSelfSnapshot(ctx context.Context, tx *store.Store, itemID string) (*store.Snapshot, error) {
	snaps, err := tx.ListSnapshots(ctx, store.SnapshotFilter{ItemID: itemID, SourceID: itemID})
	if err != nil {
		return nil, err
	}
	if len(snaps) == 0 {
		return nil, nil
	}
	return snaps[0], nil
}

// Resolution is the outcome of a human conflict resolution.
type Resolution struct {
	Decision         *store.Item     `json:"decision"`
	ConflictSnapshot *store.Snapshot `json:"conflict_snapshot"`
}

// ResolveOptions configures ResolveConflict.
type ResolveOptions struct {
	ConflictID     string
	ChosenValue    any
	ChosenSourceID string
	Rationale      string
	AnchorID       string
	// ExpectedVersion is the version of the conflict's current status
	// snapshot as last read by the caller.
	ExpectedVersion int64
}

// ResolveConflict records a human decision: a decision item connected to
// the conflict and subject, and a RESOLVED_BY_DECISION snapshot on the
// conflict. The expected version detects a concurrent resolution or a
// re-detection that happened since the caller read the conflict.
func (p *Pipeline) ResolveConflict(ctx context.Context, opts ResolveOptions) (*Resolution, error) {
	conflict, err := p.store.GetItem(ctx, opts.ConflictID)
	if err != nil {
		return nil, err
	}
	if conflict.Type != "conflict" {
		return nil, errors.NewInvalidRequestf("item %s is a %s, not a conflict", conflict.ID, conflict.Type)
	}
	if _, err := p.store.ValidateAnchor(ctx, opts.AnchorID); err != nil {
		return nil, err
	}

	current, err := latestSelfSnapshot(ctx, p.store, conflict.ID)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, errors.NewInvalidRequestf("conflict %s has no status snapshot", conflict.ID)
	}
	if current.Version != opts.ExpectedVersion {
		return nil, errors.Wrapf(errors.ErrStaleVersion,
			"conflict %s is at version %d", conflict.ID, current.Version)
	}

	subjectID, _ := conflict.Properties["subject_id"].(string)
	prop, _ := conflict.Properties["property"].(string)

	var resolution *Resolution
	err = p.store.WithTx(ctx, func(tx *store.Store) error {
		decision, err := tx.CreateItem(ctx, "decision", "", map[string]any{
			"conflict_id":      conflict.ID,
			"subject_id":       subjectID,
			"property":         prop,
			"chosen_value":     opts.ChosenValue,
			"chosen_source_id": opts.ChosenSourceID,
			"rationale":        opts.Rationale,
		})
		if err != nil {
			return err
		}

		targets := []string{conflict.ID}
		if subjectID != "" {
			targets = append(targets, subjectID)
		}
		if opts.ChosenSourceID != "" {
			targets = append(targets, opts.ChosenSourceID)
		}
		for _, target := range targets {
			if _, err := tx.EnsureConnection(ctx, decision.ID, target, nil); err != nil {
				return err
			}
		}

		if _, _, err := tx.UpsertSnapshot(ctx, decision.ID, opts.AnchorID, decision.ID, map[string]any{
			"status":       "DECIDED",
			"chosen_value": opts.ChosenValue,
			"rationale":    opts.Rationale,
		}); err != nil {
			return err
		}

		var snap *store.Snapshot
		if current.ContextID == opts.AnchorID {
			props := cloneProps(current.Properties)
			props["status"] = StatusResolvedByDecision
			props["decision_id"] = decision.ID
			snap, err = tx.UpdateSnapshotChecked(ctx, current.ID, opts.ExpectedVersion, props)
		} else {
			snap, _, err = tx.UpsertSnapshot(ctx, conflict.ID, opts.AnchorID, conflict.ID, map[string]any{
				"status":      StatusResolvedByDecision,
				"property":    prop,
				"decision_id": decision.ID,
			})
		}
		if err != nil {
			return err
		}

		resolution = &Resolution{Decision: decision, ConflictSnapshot: snap}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return resolution, nil
}
