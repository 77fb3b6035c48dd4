// Package ingest runs the import-time detection pipeline. A batch of
// parsed rows from one source at one time anchor is written as snapshot
// upserts, then compared against the source's own prior assertions
// (changes) and against every other source's effective assertions
// (conflicts). All derived writes for a batch commit atomically; a
// failed batch leaves nothing behind and is safe to retry.
package ingest

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cadencehq/cadence/errors"
	"github.com/cadencehq/cadence/store"
	"github.com/cadencehq/cadence/temporal"
)

// Workflow snapshot statuses.
const (
	StatusDetected            = "DETECTED"
	StatusAcknowledged        = "ACKNOWLEDGED"
	StatusResolvedByAgreement = "RESOLVED_BY_AGREEMENT"
	StatusResolvedByDecision  = "RESOLVED_BY_DECISION"

	BatchProcessing = "processing"
	BatchCompleted  = "completed"
	BatchFailed     = "failed"
)

// Row is one parsed record from an external document. Parsing itself
// (Excel, CSV) happens outside this package; a Parser hands rows in.
type Row struct {
	Identifier string         `json:"identifier"`
	Properties map[string]any `json:"properties"`
}

// Parser turns raw file bytes into rows. Implementations live at the
// boundary; the pipeline never reads files.
type Parser interface {
	Parse(ctx context.Context, data []byte) ([]Row, error)
}

// DeferredRow is a row whose identifier matched existing items only
// fuzzily. Nothing is written for it; a human confirms or rejects the
// match via ConfirmMatch.
type DeferredRow struct {
	Row        Row           `json:"row"`
	Candidates []*store.Item `json:"candidates"`
}

// Options configures one import batch.
type Options struct {
	// SourceID is the asserting document item. Its type must carry the
	// source capability.
	SourceID string
	// AnchorID is the time anchor the batch asserts at.
	AnchorID string
	// ItemType is the type given to items created for unmatched rows.
	ItemType string
	// ScopeID serializes imports: one batch at a time per scope. When it
	// names an existing item (typically the project), newly created
	// items are connected to it.
	ScopeID string
	// Mapping records which document columns fed which properties. The
	// parser applied it already; the pipeline stores it on the source
	// item so the next import of the same document can reuse it.
	Mapping map[string]string
	Rows    []Row
}

// Result summarizes a committed batch.
type Result struct {
	BatchID           string        `json:"batch_id"`
	SnapshotsWritten  int           `json:"snapshots_written"`
	ItemsCreated      int           `json:"items_created"`
	ChangeItems       []*store.Item `json:"change_items"`
	ConflictItems     []*store.Item `json:"conflict_items"`
	ResolvedConflicts []*store.Item `json:"resolved_conflicts"`
	Deferred          []DeferredRow `json:"deferred"`
}

// MatcherFactory builds an identity matcher bound to a store. The
// pipeline rebinds per transaction so matching sees the batch's own
// uncommitted writes.
type MatcherFactory func(*store.Store) store.IdentityMatcher

// Pipeline executes import batches and the human follow-up operations.
type Pipeline struct {
	store      *store.Store
	newMatcher MatcherFactory
	lockTTL    time.Duration
	logger     *zap.SugaredLogger
}

// New creates a pipeline. matcher may be nil to use the store-backed
// matcher; logger may be nil.
func New(s *store.Store, matcher MatcherFactory, lockTTL time.Duration, logger *zap.SugaredLogger) *Pipeline {
	if matcher == nil {
		matcher = func(tx *store.Store) store.IdentityMatcher {
			return store.NewMatcher(tx)
		}
	}
	if lockTTL <= 0 {
		lockTTL = 5 * time.Minute
	}
	return &Pipeline{store: s, newMatcher: matcher, lockTTL: lockTTL, logger: logger}
}

// ImportBatch ingests rows from one source at one anchor. It holds the
// scope lock for the duration, writes all snapshots and derived
// change/conflict items in a single transaction, and records the batch
// itself as an import_batch item with a self-sourced status snapshot.
func (p *Pipeline) ImportBatch(ctx context.Context, opts Options) (*Result, error) {
	source, err := p.store.GetItem(ctx, opts.SourceID)
	if err != nil {
		return nil, err
	}
	if !p.store.Types().IsSource(source.Type) {
		return nil, errors.NewInvalidRequestf("item %s (%s) cannot assert snapshots", source.ID, source.Type)
	}
	if _, err := p.store.ValidateAnchor(ctx, opts.AnchorID); err != nil {
		return nil, err
	}
	if opts.ItemType != "" && !p.store.Types().Known(opts.ItemType) {
		return nil, errors.NewInvalidRequestf("unknown item type %q", opts.ItemType)
	}

	scope := opts.ScopeID
	if scope == "" {
		scope = opts.SourceID
	}

	batchID := uuid.NewString()
	if err := p.store.AcquireImportLock(ctx, scope, batchID, p.lockTTL); err != nil {
		return nil, err
	}
	defer func() {
		if err := p.store.ReleaseImportLock(ctx, scope, batchID); err != nil && p.logger != nil {
			p.logger.Warnw("failed to release import lock",
				"scope", scope,
				"batch_id", batchID,
				"error", err,
			)
		}
	}()

	batch, err := p.store.CreateItem(ctx, "import_batch", batchID, map[string]any{
		"source_id": opts.SourceID,
		"anchor_id": opts.AnchorID,
		"row_count": len(opts.Rows),
	})
	if err != nil {
		return nil, err
	}
	if _, _, err := p.store.UpsertSnapshot(ctx, batch.ID, opts.AnchorID, batch.ID, map[string]any{
		"status": BatchProcessing,
	}); err != nil {
		return nil, err
	}

	result := &Result{BatchID: batch.ID}
	txErr := p.store.WithTx(ctx, func(tx *store.Store) error {
		return p.runBatch(ctx, tx, opts, batch.ID, result)
	})

	if txErr != nil {
		// Derived writes rolled back; record the failure on the batch item.
		_, _, snapErr := p.store.UpsertSnapshot(ctx, batch.ID, opts.AnchorID, batch.ID, map[string]any{
			"status": BatchFailed,
			"error":  txErr.Error(),
		})
		if snapErr != nil && p.logger != nil {
			p.logger.Errorw("failed to record batch failure", "batch_id", batch.ID, "error", snapErr)
		}
		return nil, errors.Wrapf(errors.ErrImportFailed,
			"batch %s: %v", batch.ID, txErr)
	}

	if _, _, err := p.store.UpsertSnapshot(ctx, batch.ID, opts.AnchorID, batch.ID, map[string]any{
		"status":            BatchCompleted,
		"snapshots_written": result.SnapshotsWritten,
		"items_created":     result.ItemsCreated,
		"changes":           len(result.ChangeItems),
		"conflicts":         len(result.ConflictItems),
		"deferred":          len(result.Deferred),
	}); err != nil {
		return nil, err
	}

	if p.logger != nil {
		p.logger.Infow("import batch completed",
			"batch_id", batch.ID,
			"source_id", opts.SourceID,
			"anchor_id", opts.AnchorID,
			"batch_size", len(opts.Rows),
			"count", result.SnapshotsWritten,
		)
	}
	return result, nil
}

func (p *Pipeline) runBatch(ctx context.Context, tx *store.Store, opts Options, batchID string, result *Result) error {
	matcher := p.newMatcher(tx)
	resolver := temporal.New(tx)

	for _, row := range opts.Rows {
		item, deferred, created, err := p.resolveRow(ctx, tx, matcher, opts, row)
		if err != nil {
			return err
		}
		if deferred != nil {
			result.Deferred = append(result.Deferred, *deferred)
			continue
		}
		if created {
			result.ItemsCreated++
		}

		written, err := p.ingestSubject(ctx, tx, resolver, opts, item, row.Properties, batchID, result)
		if err != nil {
			return err
		}
		if written {
			result.SnapshotsWritten++
		}
	}

	if len(opts.Mapping) > 0 {
		if _, err := tx.MergeItemProperties(ctx, opts.SourceID, map[string]any{
			"import_mapping": opts.Mapping,
		}); err != nil {
			return err
		}
	}

	// The source's own record of this import, asserted about itself.
	_, _, err := tx.UpsertSnapshot(ctx, opts.SourceID, opts.AnchorID, opts.SourceID, map[string]any{
		"batch_id":       batchID,
		"row_count":      len(opts.Rows),
		"mapped_columns": mappedColumns(opts.Mapping),
	})
	return err
}

// mappedColumns lists the mapping's document columns in stable order.
func mappedColumns(mapping map[string]string) []string {
	cols := make([]string, 0, len(mapping))
	for col := range mapping {
		cols = append(cols, col)
	}
	sort.Strings(cols)
	return cols
}

func (p *Pipeline) resolveRow(ctx context.Context, tx *store.Store, matcher store.IdentityMatcher, opts Options, row Row) (*store.Item, *DeferredRow, bool, error) {
	match, err := matcher.Match(ctx, opts.ItemType, row.Identifier)
	if err != nil {
		return nil, nil, false, err
	}

	switch match.Confidence {
	case store.MatchExact, store.MatchNormalized:
		return match.Item, nil, false, nil
	case store.MatchFuzzy:
		return nil, &DeferredRow{Row: row, Candidates: match.Candidates}, false, nil
	}

	item, err := tx.CreateItem(ctx, opts.ItemType, row.Identifier, nil)
	if err != nil {
		return nil, nil, false, err
	}
	if opts.ScopeID != "" && opts.ScopeID != opts.SourceID {
		if _, err := tx.GetItem(ctx, opts.ScopeID); err == nil {
			if _, err := tx.EnsureConnection(ctx, opts.ScopeID, item.ID, nil); err != nil {
				return nil, nil, false, err
			}
		}
	}
	return item, nil, true, nil
}

// ingestSubject upserts one subject's snapshot and runs both detection
// passes for it. Shared by ImportBatch and ConfirmMatch.
func (p *Pipeline) ingestSubject(ctx context.Context, tx *store.Store, resolver *temporal.Resolver, opts Options, item *store.Item, properties map[string]any, batchID string, result *Result) (bool, error) {
	// Strictly before the batch anchor, so the row never diffs against
	// itself.
	prior, err := resolver.PriorAssertion(ctx, item.ID, opts.SourceID, opts.AnchorID)
	if err != nil {
		return false, err
	}

	_, written, err := tx.UpsertSnapshot(ctx, item.ID, opts.AnchorID, opts.SourceID, properties)
	if err != nil {
		return false, err
	}
	if _, err := tx.EnsureConnection(ctx, opts.SourceID, item.ID, nil); err != nil {
		return false, err
	}

	if !written {
		// Identical re-assertion: nothing moved, nothing to detect.
		return false, nil
	}

	if err := p.detectChanges(ctx, tx, opts, item, prior, properties, batchID, result); err != nil {
		return true, err
	}
	if err := p.detectConflicts(ctx, tx, resolver, opts, item, properties, result); err != nil {
		return true, err
	}
	return true, nil
}

// normalizerLookup builds the per-property normalizer resolution for a
// subject's type. Both detection passes and the view layer must use the
// same lookup or equality would differ between passes.
func normalizerLookup(tx *store.Store, itemType string) func(string) string {
	return func(prop string) string {
		return tx.Types().NormalizerFor(itemType, prop)
	}
}
