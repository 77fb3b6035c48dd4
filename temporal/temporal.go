// Package temporal resolves effective assertions over time anchors.
// Anchors are ordered by their explicit ordinal property, never by when
// rows happened to be inserted, and a source's last assertion carries
// forward until it re-asserts at a later anchor.
package temporal

import (
	"context"
	"encoding/json"
	"strconv"

	"github.com/cadencehq/cadence/errors"
	"github.com/cadencehq/cadence/store"
)

// Effective is a snapshot together with the anchor that makes it the
// current value as of some query point.
type Effective struct {
	Snapshot *store.Snapshot `json:"snapshot"`
	Anchor   *store.Item     `json:"anchor"`
	Ordinal  float64         `json:"ordinal"`
}

// Resolver computes effective values from the snapshot store.
type Resolver struct {
	store *store.Store
}

// New creates a resolver over the store.
func New(s *store.Store) *Resolver {
	return &Resolver{store: s}
}

// Ordinal returns the sequencing ordinal of a time anchor. Fails with
// ErrInvalidRequest when the item is not a valid anchor or carries no
// numeric ordinal.
func (r *Resolver) Ordinal(ctx context.Context, anchorID string) (float64, error) {
	anchor, err := r.store.ValidateAnchor(ctx, anchorID)
	if err != nil {
		return 0, err
	}
	return anchorOrdinal(r.store, anchor)
}

// EffectiveAssertion returns the snapshot from source about subject whose
// anchor has the greatest ordinal less than or equal to the as-of
// anchor's ordinal. Returns nil when the source has never asserted at or
// before that point; a first observation has nothing to carry forward.
func (r *Resolver) EffectiveAssertion(ctx context.Context, subjectID, sourceID, asOfAnchorID string) (*Effective, error) {
	asOf, err := r.Ordinal(ctx, asOfAnchorID)
	if err != nil {
		return nil, err
	}
	return r.latestAtMost(ctx, subjectID, sourceID, asOf, false)
}

// PriorAssertion returns the source's latest assertion strictly before
// the given anchor. Change detection uses this to find what the source
// most recently said before now.
func (r *Resolver) PriorAssertion(ctx context.Context, subjectID, sourceID, beforeAnchorID string) (*Effective, error) {
	before, err := r.Ordinal(ctx, beforeAnchorID)
	if err != nil {
		return nil, err
	}
	return r.latestAtMost(ctx, subjectID, sourceID, before, true)
}

func (r *Resolver) latestAtMost(ctx context.Context, subjectID, sourceID string, bound float64, strict bool) (*Effective, error) {
	snaps, err := r.store.ListSnapshots(ctx, store.SnapshotFilter{
		ItemID:   subjectID,
		SourceID: sourceID,
	})
	if err != nil {
		return nil, err
	}
	return r.pickLatest(ctx, snaps, bound, strict)
}

func (r *Resolver) pickLatest(ctx context.Context, snaps []*store.Snapshot, bound float64, strict bool) (*Effective, error) {
	var best *Effective
	for _, snap := range snaps {
		anchor, err := r.store.GetItem(ctx, snap.ContextID)
		if err != nil {
			return nil, err
		}
		ordinal, err := anchorOrdinal(r.store, anchor)
		if err != nil {
			return nil, err
		}
		if strict && ordinal >= bound {
			continue
		}
		if !strict && ordinal > bound {
			continue
		}
		if best == nil || ordinal > best.Ordinal ||
			(ordinal == best.Ordinal && snap.UpdatedAt.After(best.Snapshot.UpdatedAt)) {
			best = &Effective{Snapshot: snap, Anchor: anchor, Ordinal: ordinal}
		}
	}
	return best, nil
}

// EffectiveBySource returns each source's effective assertion about the
// subject as of an anchor, keyed by source id. Workflow-typed sources
// (changes, conflicts, decisions, notes, batches) are bookkeeping, not
// authorities, and are excluded.
func (r *Resolver) EffectiveBySource(ctx context.Context, subjectID, asOfAnchorID string) (map[string]*Effective, error) {
	asOf, err := r.Ordinal(ctx, asOfAnchorID)
	if err != nil {
		return nil, err
	}

	snaps, err := r.store.ListSnapshots(ctx, store.SnapshotFilter{ItemID: subjectID})
	if err != nil {
		return nil, err
	}

	bySource := make(map[string][]*store.Snapshot)
	for _, snap := range snaps {
		bySource[snap.SourceID] = append(bySource[snap.SourceID], snap)
	}

	out := make(map[string]*Effective)
	for sourceID, sourceSnaps := range bySource {
		source, err := r.store.GetItem(ctx, sourceID)
		if err != nil {
			return nil, err
		}
		if r.store.Types().IsWorkflow(source.Type) {
			continue
		}
		eff, err := r.pickLatest(ctx, sourceSnaps, asOf, false)
		if err != nil {
			return nil, err
		}
		if eff != nil {
			out[sourceID] = eff
		}
	}
	return out, nil
}

func anchorOrdinal(s *store.Store, anchor *store.Item) (float64, error) {
	prop := s.Types().OrdinalProperty(anchor.Type)
	if prop == "" {
		return 0, errors.NewInvalidRequestf("item %s (%s) is not a time anchor", anchor.ID, anchor.Type)
	}
	raw, ok := anchor.Properties[prop]
	if !ok {
		return 0, errors.NewInvalidRequestf("anchor %s is missing its %q ordinal", anchor.ID, prop)
	}
	switch v := raw.(type) {
	case float64:
		return v, nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return 0, errors.NewInvalidRequestf("anchor %s ordinal %q is not numeric", anchor.ID, v)
		}
		return f, nil
	case string:
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0, errors.NewInvalidRequestf("anchor %s ordinal %q is not numeric", anchor.ID, v)
		}
		return f, nil
	default:
		return 0, errors.NewInvalidRequestf("anchor %s ordinal has unsupported type", anchor.ID)
	}
}
