package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/cadencehq/cadence/errors"
)

// Import locking: one batch at a time per scope (typically the project).
// The lock is advisory, held as a row in import_locks, and carries an
// expiry so a crashed import never blocks the scope forever.

// AcquireImportLock takes the lock for a scope on behalf of holder. A
// live lock held by someone else fails with ErrLockBusy; an expired lock
// is stolen.
func (s *Store) AcquireImportLock(ctx context.Context, scope, holder string, ttl time.Duration) error {
	ts := now()
	expires := ts.Add(ttl)

	var currentHolder string
	var expiresAt time.Time
	err := s.q.QueryRowContext(ctx,
		"SELECT holder, expires_at FROM import_locks WHERE scope = ?", scope).
		Scan(&currentHolder, &expiresAt)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		_, err = s.q.ExecContext(ctx,
			"INSERT INTO import_locks (scope, holder, acquired_at, expires_at) VALUES (?, ?, ?, ?)",
			scope, holder, ts, expires)
		if err != nil {
			// Lost the race to another inserter.
			return errors.Wrapf(errors.ErrLockBusy, "scope %s", scope)
		}
		return nil
	case err != nil:
		return errors.Wrap(err, "checking import lock")
	}

	if currentHolder != holder && expiresAt.After(ts) {
		return errors.WithHintf(
			errors.Wrapf(errors.ErrLockBusy, "scope %s is locked by %s", scope, currentHolder),
			"retry after the running import finishes or after %s", expiresAt.Format(time.RFC3339))
	}

	// Re-entrant for the same holder, stolen when expired.
	_, err = s.q.ExecContext(ctx,
		"UPDATE import_locks SET holder = ?, acquired_at = ?, expires_at = ? WHERE scope = ?",
		holder, ts, expires, scope)
	return errors.Wrap(err, "taking import lock")
}

// ReleaseImportLock drops the lock if holder still owns it. Releasing a
// lock someone else took over (after expiry) is a silent no-op.
func (s *Store) ReleaseImportLock(ctx context.Context, scope, holder string) error {
	_, err := s.q.ExecContext(ctx,
		"DELETE FROM import_locks WHERE scope = ? AND holder = ?", scope, holder)
	return errors.Wrap(err, "releasing import lock")
}
