package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/cadencehq/cadence/db"
	"github.com/cadencehq/cadence/errors"
)

// Connection is a directed edge between two items. Direction is a
// readability convention only; traversal treats edges as bidirectional.
type Connection struct {
	ID             string         `json:"id"`
	FromItemID     string         `json:"from_item_id"`
	ToItemID       string         `json:"to_item_id"`
	Properties     map[string]any `json:"properties"`
	DisconnectedAt *time.Time     `json:"disconnected_at,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// Disconnected reports whether the edge has been soft-disconnected.
func (c *Connection) Disconnected() bool {
	return c.DisconnectedAt != nil
}

const (
	connectionColumns = "id, from_item_id, to_item_id, properties, disconnected_at, created_at, updated_at"

	connectionInsertQuery = `
		INSERT INTO connections (id, from_item_id, to_item_id, properties, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`
)

// Connect creates a directed edge between two existing items. Fails with
// ErrInvalidRequest on self-loops and on targets the from-type's
// descriptor disallows; fails with ErrConflict if the edge already
// exists. Use EnsureConnection for idempotent creation.
func (s *Store) Connect(ctx context.Context, fromID, toID string, properties map[string]any) (*Connection, error) {
	if fromID == toID {
		return nil, errors.NewInvalidRequestf("item %s cannot connect to itself", fromID)
	}

	from, err := s.GetItem(ctx, fromID)
	if err != nil {
		return nil, err
	}
	to, err := s.GetItem(ctx, toID)
	if err != nil {
		return nil, err
	}
	if !s.types.ValidTarget(from.Type, to.Type) {
		return nil, errors.NewInvalidRequestf("%s items cannot connect to %s items", from.Type, to.Type)
	}

	existing, err := s.GetConnection(ctx, fromID, toID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		if !existing.Disconnected() {
			return nil, errors.Wrapf(errors.ErrConflict, "connection %s -> %s already exists", fromID, toID)
		}
		// Reconnecting a soft-disconnected edge revives it.
		return s.reconnect(ctx, existing, properties)
	}

	propsJSON, err := marshalProps(properties)
	if err != nil {
		return nil, err
	}

	conn := &Connection{
		ID:         uuid.NewString(),
		FromItemID: fromID,
		ToItemID:   toID,
		Properties: properties,
		CreatedAt:  now(),
		UpdatedAt:  now(),
	}
	if conn.Properties == nil {
		conn.Properties = map[string]any{}
	}

	_, err = s.q.ExecContext(ctx, connectionInsertQuery,
		conn.ID, fromID, toID, propsJSON, conn.CreatedAt, conn.UpdatedAt)
	if err != nil {
		// Schema constraints backstop the reads above: a concurrent
		// writer can create the pair between the existence check and
		// the insert.
		if db.IsUniqueViolation(err) {
			return nil, errors.Wrapf(errors.ErrConflict, "connection %s -> %s already exists", fromID, toID)
		}
		if db.IsCheckViolation(err) {
			return nil, errors.NewInvalidRequestf("item %s cannot connect to itself", fromID)
		}
		return nil, errors.Wrapf(err, "connecting %s -> %s", fromID, toID)
	}
	return conn, nil
}

// EnsureConnection creates the edge if absent and succeeds silently if it
// already exists, reviving soft-disconnected edges. Imports call this for
// every row so re-imports stay idempotent.
func (s *Store) EnsureConnection(ctx context.Context, fromID, toID string, properties map[string]any) (*Connection, error) {
	existing, err := s.GetConnection(ctx, fromID, toID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		if existing.Disconnected() {
			return s.reconnect(ctx, existing, properties)
		}
		return existing, nil
	}
	return s.Connect(ctx, fromID, toID, properties)
}

// Disconnect soft-disconnects an edge, recording when and why. The row
// stays in place so connectivity history survives.
func (s *Store) Disconnect(ctx context.Context, connectionID, reason string) (*Connection, error) {
	conn, err := s.GetConnectionByID(ctx, connectionID)
	if err != nil {
		return nil, err
	}
	if conn.Disconnected() {
		return conn, nil
	}

	ts := now()
	conn.DisconnectedAt = &ts
	conn.UpdatedAt = ts
	if reason != "" {
		conn.Properties["disconnect_reason"] = reason
	}

	propsJSON, err := marshalProps(conn.Properties)
	if err != nil {
		return nil, err
	}
	_, err = s.q.ExecContext(ctx,
		"UPDATE connections SET disconnected_at = ?, properties = ?, updated_at = ? WHERE id = ?",
		ts, propsJSON, ts, connectionID)
	if err != nil {
		return nil, errors.Wrapf(err, "disconnecting %s", connectionID)
	}
	return conn, nil
}

func (s *Store) reconnect(ctx context.Context, conn *Connection, properties map[string]any) (*Connection, error) {
	for k, v := range properties {
		conn.Properties[k] = v
	}
	delete(conn.Properties, "disconnect_reason")
	conn.DisconnectedAt = nil
	conn.UpdatedAt = now()

	propsJSON, err := marshalProps(conn.Properties)
	if err != nil {
		return nil, err
	}
	_, err = s.q.ExecContext(ctx,
		"UPDATE connections SET disconnected_at = NULL, properties = ?, updated_at = ? WHERE id = ?",
		propsJSON, conn.UpdatedAt, conn.ID)
	if err != nil {
		return nil, errors.Wrapf(err, "reconnecting %s", conn.ID)
	}
	return conn, nil
}

// GetConnection returns the edge from one item to another, or nil when
// none exists. Soft-disconnected edges are returned too; callers check
// Disconnected().
func (s *Store) GetConnection(ctx context.Context, fromID, toID string) (*Connection, error) {
	row := s.q.QueryRowContext(ctx,
		"SELECT "+connectionColumns+" FROM connections WHERE from_item_id = ? AND to_item_id = ?",
		fromID, toID)
	conn, err := scanConnection(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return conn, err
}

// GetConnectionByID fetches an edge by id.
func (s *Store) GetConnectionByID(ctx context.Context, id string) (*Connection, error) {
	row := s.q.QueryRowContext(ctx,
		"SELECT "+connectionColumns+" FROM connections WHERE id = ?", id)
	conn, err := scanConnection(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.NewNotFoundf("connection %s", id)
	}
	return conn, err
}

// AreConnected reports whether two items share a live edge in either
// direction. Navigation's drill and bounce-back checks use this.
func (s *Store) AreConnected(ctx context.Context, a, b string) (bool, error) {
	var count int
	err := s.q.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM connections
		WHERE disconnected_at IS NULL
		  AND ((from_item_id = ? AND to_item_id = ?) OR (from_item_id = ? AND to_item_id = ?))`,
		a, b, b, a).Scan(&count)
	if err != nil {
		return false, errors.Wrap(err, "checking connectivity")
	}
	return count > 0, nil
}

// Direction selects which edges an adjacency query follows.
type Direction int

const (
	// Both follows edges regardless of direction. The default: edge
	// direction carries no query semantics.
	Both Direction = iota
	// Outgoing follows only edges where the item is the from side.
	Outgoing
	// Incoming follows only edges where the item is the to side.
	Incoming
)

// AdjacencyFilter narrows ConnectedItems.
type AdjacencyFilter struct {
	Direction Direction
	// Exclude drops these item ids from the result.
	Exclude []string
	// Types keeps only neighbors of the listed types. Empty keeps all.
	Types []string
	// IncludeDisconnected follows soft-disconnected edges too.
	IncludeDisconnected bool
}

// ConnectedItems returns the neighbors of an item.
func (s *Store) ConnectedItems(ctx context.Context, itemID string, filter AdjacencyFilter) ([]*Item, error) {
	query := `
		SELECT CASE WHEN from_item_id = ? THEN to_item_id ELSE from_item_id END AS neighbor
		FROM connections
		WHERE `
	args := []any{itemID}

	switch filter.Direction {
	case Outgoing:
		query += "from_item_id = ?"
		args = append(args, itemID)
	case Incoming:
		query += "to_item_id = ?"
		args = append(args, itemID)
	default:
		query += "(from_item_id = ? OR to_item_id = ?)"
		args = append(args, itemID, itemID)
	}
	if !filter.IncludeDisconnected {
		query += " AND disconnected_at IS NULL"
	}

	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrapf(err, "querying neighbors of %s", itemID)
	}
	defer rows.Close()

	excluded := make(map[string]bool, len(filter.Exclude))
	for _, id := range filter.Exclude {
		excluded[id] = true
	}
	wantType := make(map[string]bool, len(filter.Types))
	for _, t := range filter.Types {
		wantType[t] = true
	}

	var neighborIDs []string
	seen := make(map[string]bool)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, errors.Wrap(err, "scanning neighbor id")
		}
		if excluded[id] || seen[id] {
			continue
		}
		seen[id] = true
		neighborIDs = append(neighborIDs, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	items, err := s.GetItems(ctx, neighborIDs)
	if err != nil {
		return nil, err
	}
	if len(wantType) == 0 {
		return items, nil
	}
	filtered := items[:0]
	for _, item := range items {
		if wantType[item.Type] {
			filtered = append(filtered, item)
		}
	}
	return filtered, nil
}

func scanConnection(row rowScanner) (*Connection, error) {
	var conn Connection
	var propsJSON string
	var disconnectedAt sql.NullTime
	err := row.Scan(&conn.ID, &conn.FromItemID, &conn.ToItemID, &propsJSON,
		&disconnectedAt, &conn.CreatedAt, &conn.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, errors.Wrap(err, "scanning connection")
	}
	if disconnectedAt.Valid {
		conn.DisconnectedAt = &disconnectedAt.Time
	}

	props, err := unmarshalProps(propsJSON)
	if err != nil {
		return nil, err
	}
	conn.Properties = props
	return &conn, nil
}
