// Package fairness implements the persistent round-robin cursor the
// assignment engine rotates through candidate lists with. The locking
// pattern — SELECT ... FOR UPDATE inside the caller's transaction, then
// UPDATE before commit — is the same shape used to allocate and release a
// scarce resource under contention.
package fairness

import (
    "context"
    "database/sql"

    "github.com/hamzaKhattat/lead-router-core/internal/db"
    "github.com/hamzaKhattat/lead-router-core/pkg/errors"
)

// Store is the fairness cursor interface the engine depends on.
type Store interface {
    // LockAndRead takes an exclusive row lock on the routing key's pointer
    // row for the lifetime of tx, creating it with no last caller if it
    // doesn't exist yet. The lock is held until tx commits or rolls back.
    LockAndRead(ctx context.Context, tx *sql.Tx, routingKey string) (lastCallerID *string, err error)

    // Write sets the routing key's pointer to callerID. Called only after
    // a successful selection; must run inside the same tx that called
    // LockAndRead so the write lands under the same lock.
    Write(ctx context.Context, tx *sql.Tx, routingKey string, callerID string) error
}

const (
    lockAndReadQuery   = `SELECT last_caller_id FROM rr_pointers WHERE key_name = ? FOR UPDATE`
    insertPointerQuery = `INSERT INTO rr_pointers (key_name, last_caller_id, updated_at) VALUES (?, NULL, NOW())`
    writePointerQuery  = `UPDATE rr_pointers SET last_caller_id = ?, updated_at = NOW() WHERE key_name = ?`
)

// MySQLStore implements Store against the rr_pointers table, running every
// query through db's prepared statement cache: the three queries above are
// fixed text and run on nearly every transaction the engine opens, so they're
// prepared once against the pool and re-bound per-tx rather than re-parsed.
type MySQLStore struct {
    db *db.DB
}

func NewMySQLStore(database *db.DB) *MySQLStore {
    return &MySQLStore{db: database}
}

func (s *MySQLStore) LockAndRead(ctx context.Context, tx *sql.Tx, routingKey string) (*string, error) {
    lockStmt, err := s.db.Prepared(ctx, lockAndReadQuery)
    if err != nil {
        return nil, errors.Wrap(err, errors.ErrDatabase, "prepare fairness lock query")
    }

    var lastCallerID sql.NullString
    err = tx.StmtContext(ctx, lockStmt).QueryRowContext(ctx, routingKey).Scan(&lastCallerID)

    if err == sql.ErrNoRows {
        insertStmt, prepErr := s.db.Prepared(ctx, insertPointerQuery)
        if prepErr != nil {
            return nil, errors.Wrap(prepErr, errors.ErrDatabase, "prepare fairness insert query")
        }
        if _, insertErr := tx.StmtContext(ctx, insertStmt).ExecContext(ctx, routingKey); insertErr != nil {
            return nil, errors.Wrap(insertErr, errors.ErrDatabase, "create fairness pointer")
        }

        // Re-lock the row we just inserted so it's held for the rest of tx,
        // the standard allocate-then-lock-again fallback for a first read
        // that comes back empty.
        err = tx.StmtContext(ctx, lockStmt).QueryRowContext(ctx, routingKey).Scan(&lastCallerID)
        if err != nil {
            return nil, errors.Wrap(err, errors.ErrDatabase, "lock freshly created fairness pointer")
        }
    } else if err != nil {
        return nil, errors.Wrap(err, errors.ErrDatabase, "lock fairness pointer")
    }

    if !lastCallerID.Valid {
        return nil, nil
    }
    value := lastCallerID.String
    return &value, nil
}

func (s *MySQLStore) Write(ctx context.Context, tx *sql.Tx, routingKey string, callerID string) error {
    stmt, err := s.db.Prepared(ctx, writePointerQuery)
    if err != nil {
        return errors.Wrap(err, errors.ErrDatabase, "prepare fairness write query")
    }

    if _, err := tx.StmtContext(ctx, stmt).ExecContext(ctx, callerID, routingKey); err != nil {
        return errors.Wrap(err, errors.ErrDatabase, "write fairness pointer")
    }
    return nil
}

// GlobalRoutingKey is the literal routing key used when a lead carries no
// state, or when the state-scoped walk finds no eligible caller.
const GlobalRoutingKey = "global"

// StateRoutingKey builds the routing key for a normalized state name.
func StateRoutingKey(normalizedState string) string {
    return "state:" + normalizedState
}
