package ingest

import (
	"context"

	"github.com/cadencehq/cadence/errors"
	"github.com/cadencehq/cadence/norm"
	"github.com/cadencehq/cadence/store"
	"github.com/cadencehq/cadence/temporal"
)

// detectChanges compares the just-written snapshot against the same
// source's prior-anchor assertion and records one change item per
// transitioning property. No prior assertion means a first observation,
// which is not a change.
func (p *Pipeline) detectChanges(ctx context.Context, tx *store.Store, opts Options, item *store.Item, prior *temporal.Effective, properties map[string]any, batchID string, result *Result) error {
	if prior == nil {
		return nil
	}

	diffs := norm.Diff(prior.Snapshot.Properties, properties, normalizerLookup(tx, item.Type))
	for _, diff := range diffs {
		change, err := p.ensureChange(ctx, tx, opts, item, prior, diff, batchID)
		if err != nil {
			return err
		}
		result.ChangeItems = append(result.ChangeItems, change)
	}
	return nil
}

// ensureChange gets or creates the change item for one property
// transition. The key is (source, subject, property, from-anchor,
// to-anchor), so a re-run of the same batch reuses the existing item
// instead of duplicating it.
func (p *Pipeline) ensureChange(ctx context.Context, tx *store.Store, opts Options, item *store.Item, prior *temporal.Effective, diff norm.PropertyChange, batchID string) (*store.Item, error) {
	existing, err := findWorkflowItem(ctx, tx, "change", map[string]any{
		"subject_id":     item.ID,
		"source_id":      opts.SourceID,
		"property":       diff.Property,
		"from_anchor_id": prior.Anchor.ID,
		"to_anchor_id":   opts.AnchorID,
	})
	if err != nil {
		return nil, err
	}

	change := existing
	if change == nil {
		change, err = tx.CreateItem(ctx, "change", "", map[string]any{
			"subject_id":     item.ID,
			"source_id":      opts.SourceID,
			"property":       diff.Property,
			"from_anchor_id": prior.Anchor.ID,
			"to_anchor_id":   opts.AnchorID,
		})
		if err != nil {
			return nil, err
		}
		for _, target := range []string{item.ID, opts.SourceID, prior.Anchor.ID, opts.AnchorID} {
			if _, err := tx.EnsureConnection(ctx, change.ID, target, nil); err != nil {
				return nil, err
			}
		}
	}

	_, _, err = tx.UpsertSnapshot(ctx, change.ID, opts.AnchorID, change.ID, map[string]any{
		"status":         StatusDetected,
		"property":       diff.Property,
		"old_value":      diff.Old,
		"new_value":      diff.New,
		"from_anchor_id": prior.Anchor.ID,
		"to_anchor_id":   opts.AnchorID,
		"batch_id":       batchID,
	})
	if err != nil {
		return nil, err
	}
	return change, nil
}

// AcknowledgeChange marks a change as reviewed. The expected version
// guards against two reviewers acknowledging concurrently; a mismatch
// fails with ErrStaleVersion and the caller re-reads.
func (p *Pipeline) AcknowledgeChange(ctx context.Context, changeID, note, anchorID string, expectedVersion int64) (*store.Snapshot, error) {
	change, err := p.store.GetItem(ctx, changeID)
	if err != nil {
		return nil, err
	}
	if change.Type != "change" {
		return nil, errors.NewInvalidRequestf("item %s is a %s, not a change", changeID, change.Type)
	}
	if _, err := p.store.ValidateAnchor(ctx, anchorID); err != nil {
		return nil, err
	}

	snap, err := p.store.GetSnapshot(ctx, changeID, anchorID, changeID)
	if errors.IsNotFound(err) {
		// Acknowledging at a later anchor than detection writes a fresh
		// status snapshot there.
		snap, _, err = p.store.UpsertSnapshot(ctx, changeID, anchorID, changeID, map[string]any{
			"status": StatusAcknowledged,
			"note":   note,
		})
		return snap, err
	}
	if err != nil {
		return nil, err
	}

	props := cloneProps(snap.Properties)
	props["status"] = StatusAcknowledged
	if note != "" {
		props["note"] = note
	}
	return p.store.UpdateSnapshotChecked(ctx, snap.ID, expectedVersion, props)
}

// findWorkflowItem locates an existing workflow item whose property bag
// matches every given key. Workflow items are keyed by their properties,
// not identifiers.
func findWorkflowItem(ctx context.Context, tx *store.Store, itemType string, key map[string]any) (*store.Item, error) {
	items, err := tx.ListItems(ctx, store.ItemFilter{Type: itemType})
	if err != nil {
		return nil, err
	}
	for _, item := range items {
		matched := true
		for k, v := range key {
			if !norm.ValuesEqual(item.Properties[k], v) {
				matched = false
				break
			}
		}
		if matched {
			return item, nil
		}
	}
	return nil, nil
}

func cloneProps(props map[string]any) map[string]any {
	out := make(map[string]any, len(props))
	for k, v := range props {
		out[k] = v
	}
	return out
}
