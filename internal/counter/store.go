// Package counter implements the per-caller, per-business-date assignment
// counter used to enforce daily caps. Locking follows the same
// SELECT ... FOR UPDATE then UPDATE shape as internal/fairness.
package counter

import (
    "context"
    "database/sql"

    "github.com/hamzaKhattat/lead-router-core/internal/db"
    "github.com/hamzaKhattat/lead-router-core/pkg/errors"
)

// Store is the daily counter interface the engine depends on.
type Store interface {
    // LockAndRead takes an exclusive row lock on (callerID, businessDate)
    // for the lifetime of tx, creating the row at zero if absent.
    LockAndRead(ctx context.Context, tx *sql.Tx, callerID, businessDate string) (count int, err error)

    // Increment adds one to the counter. Must be called inside the same tx
    // that locked the row, after the cap check has passed.
    Increment(ctx context.Context, tx *sql.Tx, callerID, businessDate string) error

    // Decrement subtracts one, used by manual reassignment to undo a
    // same-day counter when a prior assignment for today is superseded.
    // Never called for a business date other than today — historical counts
    // are never retroactively adjusted.
    Decrement(ctx context.Context, tx *sql.Tx, callerID, businessDate string) error
}

const (
    lockAndReadCounterQuery = `SELECT count FROM daily_counters WHERE caller_id = ? AND business_date = ? FOR UPDATE`
    insertCounterQuery      = `INSERT INTO daily_counters (caller_id, business_date, count) VALUES (?, ?, 0)`
    incrementCounterQuery   = `UPDATE daily_counters SET count = count + 1 WHERE caller_id = ? AND business_date = ?`
    decrementCounterQuery   = `UPDATE daily_counters SET count = count - 1 WHERE caller_id = ? AND business_date = ? AND count > 0`
)

// MySQLStore implements Store against the daily_counters table, drawing its
// prepared statements from db's shared cache rather than building ad-hoc
// query strings per call.
type MySQLStore struct {
    db *db.DB
}

func NewMySQLStore(database *db.DB) *MySQLStore {
    return &MySQLStore{db: database}
}

func (s *MySQLStore) LockAndRead(ctx context.Context, tx *sql.Tx, callerID, businessDate string) (int, error) {
    lockStmt, err := s.db.Prepared(ctx, lockAndReadCounterQuery)
    if err != nil {
        return 0, errors.Wrap(err, errors.ErrDatabase, "prepare counter lock query")
    }

    var count int
    err = tx.StmtContext(ctx, lockStmt).QueryRowContext(ctx, callerID, businessDate).Scan(&count)

    if err == sql.ErrNoRows {
        insertStmt, prepErr := s.db.Prepared(ctx, insertCounterQuery)
        if prepErr != nil {
            return 0, errors.Wrap(prepErr, errors.ErrDatabase, "prepare counter insert query")
        }
        if _, insertErr := tx.StmtContext(ctx, insertStmt).ExecContext(ctx, callerID, businessDate); insertErr != nil {
            return 0, errors.Wrap(insertErr, errors.ErrDatabase, "create daily counter")
        }
        return 0, nil
    }
    if err != nil {
        return 0, errors.Wrap(err, errors.ErrDatabase, "lock daily counter")
    }

    return count, nil
}

func (s *MySQLStore) Increment(ctx context.Context, tx *sql.Tx, callerID, businessDate string) error {
    stmt, err := s.db.Prepared(ctx, incrementCounterQuery)
    if err != nil {
        return errors.Wrap(err, errors.ErrDatabase, "prepare counter increment query")
    }
    if _, err := tx.StmtContext(ctx, stmt).ExecContext(ctx, callerID, businessDate); err != nil {
        return errors.Wrap(err, errors.ErrDatabase, "increment daily counter")
    }
    return nil
}

func (s *MySQLStore) Decrement(ctx context.Context, tx *sql.Tx, callerID, businessDate string) error {
    stmt, err := s.db.Prepared(ctx, decrementCounterQuery)
    if err != nil {
        return errors.Wrap(err, errors.ErrDatabase, "prepare counter decrement query")
    }
    if _, err := tx.StmtContext(ctx, stmt).ExecContext(ctx, callerID, businessDate); err != nil {
        return errors.Wrap(err, errors.ErrDatabase, "decrement daily counter")
    }
    return nil
}
