package ingest

import (
	"context"

	"github.com/cadencehq/cadence/errors"
	"github.com/cadencehq/cadence/store"
	"github.com/cadencehq/cadence/temporal"
)

// ConfirmMatch applies a deferred row to the item a human picked from
// the fuzzy candidates. The snapshot write and both detection passes run
// exactly as they would have during the batch, in their own transaction.
func (p *Pipeline) ConfirmMatch(ctx context.Context, sourceID, anchorID, itemID string, properties map[string]any) (*Result, error) {
	source, err := p.store.GetItem(ctx, sourceID)
	if err != nil {
		return nil, err
	}
	if !p.store.Types().IsSource(source.Type) {
		return nil, errors.NewInvalidRequestf("item %s (%s) cannot assert snapshots", source.ID, source.Type)
	}
	if _, err := p.store.ValidateAnchor(ctx, anchorID); err != nil {
		return nil, err
	}
	item, err := p.store.GetItem(ctx, itemID)
	if err != nil {
		return nil, err
	}

	opts := Options{SourceID: sourceID, AnchorID: anchorID}
	result := &Result{}
	err = p.store.WithTx(ctx, func(tx *store.Store) error {
		written, err := p.ingestSubject(ctx, tx, temporal.New(tx), opts, item, properties, "", result)
		if err != nil {
			return err
		}
		if written {
			result.SnapshotsWritten++
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
