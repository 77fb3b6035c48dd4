package store

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/cadencehq/cadence/db"
	"github.com/cadencehq/cadence/errors"
)

// Snapshot is a source's assertion about an item's properties at a time
// anchor. At most one row exists per (item, context, source) triple;
// re-assertion updates in place and bumps the version. Every write also
// appends to snapshot_events, which carries the full history the
// latest-state row cannot.
type Snapshot struct {
	ID         string         `json:"id"`
	ItemID     string         `json:"item_id"`
	ContextID  string         `json:"context_id"`
	SourceID   string         `json:"source_id"`
	Properties map[string]any `json:"properties"`
	Version    int64          `json:"version"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

// SnapshotEvent is one entry in the append-only snapshot audit log.
type SnapshotEvent struct {
	ID         string         `json:"id"`
	SnapshotID string         `json:"snapshot_id"`
	ItemID     string         `json:"item_id"`
	ContextID  string         `json:"context_id"`
	SourceID   string         `json:"source_id"`
	Properties map[string]any `json:"properties"`
	Version    int64          `json:"version"`
	RecordedAt time.Time      `json:"recorded_at"`
}

const (
	snapshotColumns = "id, item_id, context_id, source_id, properties, version, created_at, updated_at"

	snapshotSelectByTripleQuery = `
		SELECT ` + snapshotColumns + ` FROM snapshots
		WHERE item_id = ? AND context_id = ? AND source_id = ?`

	snapshotInsertQuery = `
		INSERT INTO snapshots (id, item_id, context_id, source_id, properties, version, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, 1, ?, ?)`

	snapshotEventInsertQuery = `
		INSERT INTO snapshot_events (id, snapshot_id, item_id, context_id, source_id, properties, version, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
)

// ValidateAnchor confirms the item is usable as a time anchor: it must
// exist and its type must be flagged temporal.
func (s *Store) ValidateAnchor(ctx context.Context, anchorID string) (*Item, error) {
	anchor, err := s.GetItem(ctx, anchorID)
	if err != nil {
		return nil, err
	}
	if !s.types.IsTemporal(anchor.Type) {
		return nil, errors.NewInvalidRequestf("item %s (%s) is not a time anchor", anchorID, anchor.Type)
	}
	return anchor, nil
}

// UpsertSnapshot writes the assertion for a triple. A first write inserts
// at version 1; a re-assertion with different properties replaces the bag
// and bumps the version; a byte-equal re-assertion is a no-op. Returns
// the row and whether anything was written.
func (s *Store) UpsertSnapshot(ctx context.Context, itemID, contextID, sourceID string, properties map[string]any) (*Snapshot, bool, error) {
	if _, err := s.GetItem(ctx, itemID); err != nil {
		return nil, false, err
	}
	if _, err := s.ValidateAnchor(ctx, contextID); err != nil {
		return nil, false, err
	}
	if _, err := s.GetItem(ctx, sourceID); err != nil {
		return nil, false, err
	}

	propsJSON, err := marshalProps(properties)
	if err != nil {
		return nil, false, err
	}

	existing, err := s.GetSnapshot(ctx, itemID, contextID, sourceID)
	if err != nil && !errors.IsNotFound(err) {
		return nil, false, err
	}

	if existing != nil {
		return s.reassertSnapshot(ctx, existing, properties, propsJSON)
	}

	ts := now()
	snap := &Snapshot{
		ID:         uuid.NewString(),
		ItemID:     itemID,
		ContextID:  contextID,
		SourceID:   sourceID,
		Properties: properties,
		Version:    1,
		CreatedAt:  ts,
		UpdatedAt:  ts,
	}
	if snap.Properties == nil {
		snap.Properties = map[string]any{}
	}

	_, err = s.q.ExecContext(ctx, snapshotInsertQuery,
		snap.ID, itemID, contextID, sourceID, propsJSON, ts, ts)
	if err != nil {
		if db.IsUniqueViolation(err) {
			// Lost a create race on the triple. The row exists now;
			// re-read it and re-assert over it.
			existing, rerr := s.GetSnapshot(ctx, itemID, contextID, sourceID)
			if rerr != nil {
				return nil, false, rerr
			}
			return s.reassertSnapshot(ctx, existing, properties, propsJSON)
		}
		return nil, false, errors.Wrapf(err, "inserting snapshot for item %s", itemID)
	}
	if err := s.appendSnapshotEvent(ctx, snap, ts); err != nil {
		return nil, false, err
	}
	return snap, true, nil
}

// reassertSnapshot applies a re-assertion to an existing row: a
// byte-equal bag is a no-op, anything else replaces the bag and bumps
// the version.
func (s *Store) reassertSnapshot(ctx context.Context, existing *Snapshot, properties map[string]any, propsJSON string) (*Snapshot, bool, error) {
	existingJSON, err := marshalProps(existing.Properties)
	if err != nil {
		return nil, false, err
	}
	if existingJSON == propsJSON {
		return existing, false, nil
	}

	ts := now()
	existing.Properties = properties
	existing.Version++
	existing.UpdatedAt = ts
	_, err = s.q.ExecContext(ctx,
		"UPDATE snapshots SET properties = ?, version = ?, updated_at = ? WHERE id = ?",
		propsJSON, existing.Version, ts, existing.ID)
	if err != nil {
		return nil, false, errors.Wrapf(err, "updating snapshot %s", existing.ID)
	}
	if err := s.appendSnapshotEvent(ctx, existing, ts); err != nil {
		return nil, false, err
	}
	return existing, true, nil
}

func (s *Store) appendSnapshotEvent(ctx context.Context, snap *Snapshot, ts time.Time) error {
	propsJSON, err := marshalProps(snap.Properties)
	if err != nil {
		return err
	}
	_, err = s.q.ExecContext(ctx, snapshotEventInsertQuery,
		uuid.NewString(), snap.ID, snap.ItemID, snap.ContextID, snap.SourceID,
		propsJSON, snap.Version, ts)
	return errors.Wrap(err, "appending snapshot event")
}

// GetSnapshot fetches the snapshot for a triple.
func (s *Store) GetSnapshot(ctx context.Context, itemID, contextID, sourceID string) (*Snapshot, error) {
	row := s.q.QueryRowContext(ctx, snapshotSelectByTripleQuery, itemID, contextID, sourceID)
	snap, err := scanSnapshot(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.NewNotFoundf("snapshot for (%s, %s, %s)", itemID, contextID, sourceID)
	}
	return snap, err
}

// GetSnapshotByID fetches a snapshot by row id.
func (s *Store) GetSnapshotByID(ctx context.Context, id string) (*Snapshot, error) {
	row := s.q.QueryRowContext(ctx,
		"SELECT "+snapshotColumns+" FROM snapshots WHERE id = ?", id)
	snap, err := scanSnapshot(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.NewNotFoundf("snapshot %s", id)
	}
	return snap, err
}

// SnapshotFilter narrows ListSnapshots. Empty fields match everything.
type SnapshotFilter struct {
	ItemID    string
	ContextID string
	SourceID  string
}

// ListSnapshots returns snapshots matching the filter, newest update
// first.
func (s *Store) ListSnapshots(ctx context.Context, filter SnapshotFilter) ([]*Snapshot, error) {
	query := "SELECT " + snapshotColumns + " FROM snapshots"
	var conds []string
	var args []any
	if filter.ItemID != "" {
		conds = append(conds, "item_id = ?")
		args = append(args, filter.ItemID)
	}
	if filter.ContextID != "" {
		conds = append(conds, "context_id = ?")
		args = append(args, filter.ContextID)
	}
	if filter.SourceID != "" {
		conds = append(conds, "source_id = ?")
		args = append(args, filter.SourceID)
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY updated_at DESC, id"

	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "listing snapshots")
	}
	defer rows.Close()

	var snaps []*Snapshot
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, err
		}
		snaps = append(snaps, snap)
	}
	return snaps, rows.Err()
}

// UpdateSnapshotChecked replaces a snapshot's properties only if the
// caller still holds the current version. A mismatch fails with
// ErrStaleVersion so concurrent human actions detect lost updates
// instead of silently overwriting each other.
func (s *Store) UpdateSnapshotChecked(ctx context.Context, id string, expectedVersion int64, properties map[string]any) (*Snapshot, error) {
	propsJSON, err := marshalProps(properties)
	if err != nil {
		return nil, err
	}

	ts := now()
	res, err := s.q.ExecContext(ctx, `
		UPDATE snapshots SET properties = ?, version = version + 1, updated_at = ?
		WHERE id = ? AND version = ?`,
		propsJSON, ts, id, expectedVersion)
	if err != nil {
		return nil, errors.Wrapf(err, "updating snapshot %s", id)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, errors.Wrap(err, "reading rows affected")
	}
	if affected == 0 {
		if _, err := s.GetSnapshotByID(ctx, id); err != nil {
			return nil, err
		}
		return nil, errors.Wrapf(errors.ErrStaleVersion, "snapshot %s version %d", id, expectedVersion)
	}

	snap, err := s.GetSnapshotByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.appendSnapshotEvent(ctx, snap, ts); err != nil {
		return nil, err
	}
	return snap, nil
}

// SnapshotEvents returns the append-only history for a snapshot, oldest
// first.
func (s *Store) SnapshotEvents(ctx context.Context, snapshotID string) ([]*SnapshotEvent, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT id, snapshot_id, item_id, context_id, source_id, properties, version, recorded_at
		FROM snapshot_events WHERE snapshot_id = ? ORDER BY recorded_at, version`,
		snapshotID)
	if err != nil {
		return nil, errors.Wrap(err, "querying snapshot events")
	}
	defer rows.Close()

	var events []*SnapshotEvent
	for rows.Next() {
		var ev SnapshotEvent
		var propsJSON string
		if err := rows.Scan(&ev.ID, &ev.SnapshotID, &ev.ItemID, &ev.ContextID, &ev.SourceID,
			&propsJSON, &ev.Version, &ev.RecordedAt); err != nil {
			return nil, errors.Wrap(err, "scanning snapshot event")
		}
		props, err := unmarshalProps(propsJSON)
		if err != nil {
			return nil, err
		}
		ev.Properties = props
		events = append(events, &ev)
	}
	return events, rows.Err()
}

func scanSnapshot(row rowScanner) (*Snapshot, error) {
	var snap Snapshot
	var propsJSON string
	err := row.Scan(&snap.ID, &snap.ItemID, &snap.ContextID, &snap.SourceID,
		&propsJSON, &snap.Version, &snap.CreatedAt, &snap.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, errors.Wrap(err, "scanning snapshot")
	}
	props, err := unmarshalProps(propsJSON)
	if err != nil {
		return nil, err
	}
	snap.Properties = props
	return &snap, nil
}
