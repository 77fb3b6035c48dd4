// Package store provides SQLite-backed persistence for the Cadence graph:
// items, connections, and snapshots. It handles JSON serialization of
// property bags and enforces the schema-level invariants (snapshot triple
// uniqueness, no self-connections). Business rules about what the data
// means live in the detection and view packages, not here.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/cadencehq/cadence/errors"
	"github.com/cadencehq/cadence/registry"
)

// querier abstracts *sql.DB and *sql.Tx so every store method works both
// standalone and inside a batch transaction.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store persists the Cadence graph.
type Store struct {
	db     *sql.DB
	q      querier
	types  *registry.Registry
	logger *zap.SugaredLogger
}

// New creates a store over an open database. logger may be nil.
func New(db *sql.DB, types *registry.Registry, logger *zap.SugaredLogger) *Store {
	return &Store{
		db:     db,
		q:      db,
		types:  types,
		logger: logger,
	}
}

// Types returns the item type registry the store validates against.
func (s *Store) Types() *registry.Registry {
	return s.types
}

// WithTx runs fn with a store bound to a single transaction. The
// transaction commits when fn returns nil and rolls back otherwise.
// Detection runs a whole import batch through this so derived writes are
// all-or-nothing.
func (s *Store) WithTx(ctx context.Context, fn func(tx *Store) error) error {
	if s.db == nil {
		return errors.New("store is already transactional")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "beginning transaction")
	}

	txStore := &Store{q: tx, types: s.types, logger: s.logger}
	if err := fn(txStore); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && s.logger != nil {
			s.logger.Warnw("transaction rollback failed", "error", rbErr)
		}
		return err
	}

	return errors.Wrap(tx.Commit(), "committing transaction")
}

func marshalProps(props map[string]any) (string, error) {
	if props == nil {
		return "{}", nil
	}
	data, err := json.Marshal(props)
	if err != nil {
		return "", errors.Wrap(err, "marshaling properties")
	}
	return string(data), nil
}

func unmarshalProps(data string) (map[string]any, error) {
	if data == "" {
		return map[string]any{}, nil
	}
	var props map[string]any
	if err := json.Unmarshal([]byte(data), &props); err != nil {
		return nil, errors.Wrap(err, "unmarshaling properties")
	}
	if props == nil {
		props = map[string]any{}
	}
	return props, nil
}

func now() time.Time {
	return time.Now().UTC()
}
