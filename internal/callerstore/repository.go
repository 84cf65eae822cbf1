// Package callerstore provides the read-only view of caller configuration
// the assignment engine selects candidates from. Caller administration
// (create/update/pause) lives outside this module's scope; this package only
// ever reads.
package callerstore

import (
    "context"
    "database/sql"
    "sort"
    "strings"

    "github.com/hamzaKhattat/lead-router-core/internal/db"
    "github.com/hamzaKhattat/lead-router-core/internal/models"
    "github.com/hamzaKhattat/lead-router-core/pkg/errors"
)

// CallerRepository is the small interface the assignment engine depends on.
// Kept narrow on purpose, coded against an interface rather than a concrete
// type, so tests can swap in an in-memory fake without a live database.
type CallerRepository interface {
    CandidatesForState(ctx context.Context, state string) ([]models.Caller, error)
    CandidatesGlobal(ctx context.Context) ([]models.Caller, error)
    NameOf(ctx context.Context, callerID string) (string, error)
    Get(ctx context.Context, callerID string) (*models.Caller, error)
}

// MySQLCallerRepository reads callers from MySQL, filtering by assigned
// state through caller_states with state names normalized exactly the way
// routing keys are built: trimmed and lowercased. The returned callers'
// States field is not populated.
type MySQLCallerRepository struct {
    db *db.DB
}

func NewMySQLCallerRepository(database *db.DB) *MySQLCallerRepository {
    return &MySQLCallerRepository{db: database}
}

// NormalizeState trims and lowercases a raw state value. Used when storing a
// lead's state, when querying caller_states, and when deriving a lead's
// routing key, so the three always compare equal.
func NormalizeState(state string) string {
    return strings.ToLower(strings.TrimSpace(state))
}

const candidateOrderClause = "ORDER BY c.created_at ASC, c.id ASC"

// CandidatesForState returns active callers whose assigned-state set
// contains state, in stable creation order. An empty state returns no rows —
// callers only land in the state pool if state is non-empty; state-less
// leads go straight to the global pool.
var candidatesForStateQuery = `
    SELECT c.id, c.name, c.role, c.daily_limit, c.status, c.created_at, c.updated_at
    FROM callers c
    JOIN caller_states cs ON cs.caller_id = c.id
    WHERE c.status = ? AND cs.state = ?
    ` + candidateOrderClause

func (r *MySQLCallerRepository) CandidatesForState(ctx context.Context, state string) ([]models.Caller, error) {
    normalized := NormalizeState(state)
    if normalized == "" {
        return nil, nil
    }

    stmt, err := r.db.Prepared(ctx, candidatesForStateQuery)
    if err != nil {
        return nil, errors.Wrap(err, errors.ErrDatabase, "prepare candidates for state query")
    }

    rows, err := stmt.QueryContext(ctx, models.CallerStatusActive, normalized)
    if err != nil {
        return nil, errors.Wrap(err, errors.ErrDatabase, "query candidates for state")
    }
    defer rows.Close()

    return scanCallers(rows)
}

// CandidatesGlobal returns every active caller in stable creation order,
// regardless of assigned-state membership. A caller bound to one or more
// states is still a global candidate: the global walk is the fallback pool
// for every lead, state-bearing or not, so a state-bound caller must be
// walkable there too.
var candidatesGlobalQuery = `
    SELECT c.id, c.name, c.role, c.daily_limit, c.status, c.created_at, c.updated_at
    FROM callers c
    WHERE c.status = ?
    ` + candidateOrderClause

func (r *MySQLCallerRepository) CandidatesGlobal(ctx context.Context) ([]models.Caller, error) {
    stmt, err := r.db.Prepared(ctx, candidatesGlobalQuery)
    if err != nil {
        return nil, errors.Wrap(err, errors.ErrDatabase, "prepare global candidates query")
    }

    rows, err := stmt.QueryContext(ctx, models.CallerStatusActive)
    if err != nil {
        return nil, errors.Wrap(err, errors.ErrDatabase, "query global candidates")
    }
    defer rows.Close()

    return scanCallers(rows)
}

func scanCallers(rows *sql.Rows) ([]models.Caller, error) {
    var callers []models.Caller
    for rows.Next() {
        var c models.Caller
        if err := rows.Scan(&c.ID, &c.Name, &c.Role, &c.DailyLimit, &c.Status, &c.CreatedAt, &c.UpdatedAt); err != nil {
            return nil, errors.Wrap(err, errors.ErrDatabase, "scan caller row")
        }
        callers = append(callers, c)
    }
    if err := rows.Err(); err != nil {
        return nil, errors.Wrap(err, errors.ErrDatabase, "iterate caller rows")
    }

    sort.SliceStable(callers, func(i, j int) bool {
        if callers[i].CreatedAt.Equal(callers[j].CreatedAt) {
            return callers[i].ID < callers[j].ID
        }
        return callers[i].CreatedAt.Before(callers[j].CreatedAt)
    })

    return callers, nil
}

// NameOf resolves a caller's display name, used by the CLI's lead detail
// view. Assignment events carry only the caller ID, not its name.
const nameOfQuery = `SELECT name FROM callers WHERE id = ?`

func (r *MySQLCallerRepository) NameOf(ctx context.Context, callerID string) (string, error) {
    stmt, err := r.db.Prepared(ctx, nameOfQuery)
    if err != nil {
        return "", errors.Wrap(err, errors.ErrDatabase, "prepare caller name query")
    }

    var name string
    err = stmt.QueryRowContext(ctx, callerID).Scan(&name)
    if err == sql.ErrNoRows {
        return "", errors.New(errors.ErrCallerNotFound, "caller not found").WithContext("caller_id", callerID)
    }
    if err != nil {
        return "", errors.Wrap(err, errors.ErrDatabase, "lookup caller name")
    }
    return name, nil
}

// Get returns the full caller record, used by manual reassignment to
// validate the target caller is active before overriding routing.
const getCallerQuery = `
    SELECT id, name, role, daily_limit, status, created_at, updated_at
    FROM callers WHERE id = ?`

func (r *MySQLCallerRepository) Get(ctx context.Context, callerID string) (*models.Caller, error) {
    stmt, err := r.db.Prepared(ctx, getCallerQuery)
    if err != nil {
        return nil, errors.Wrap(err, errors.ErrDatabase, "prepare caller lookup query")
    }

    var c models.Caller
    err = stmt.QueryRowContext(ctx, callerID).
        Scan(&c.ID, &c.Name, &c.Role, &c.DailyLimit, &c.Status, &c.CreatedAt, &c.UpdatedAt)
    if err == sql.ErrNoRows {
        return nil, errors.New(errors.ErrCallerNotFound, "caller not found").WithContext("caller_id", callerID)
    }
    if err != nil {
        return nil, errors.Wrap(err, errors.ErrDatabase, "lookup caller")
    }
    return &c, nil
}
