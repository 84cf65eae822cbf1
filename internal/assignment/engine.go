// Package assignment implements the core lead-to-caller selection
// algorithm: state-scoped round robin, global fallback, daily-cap
// enforcement, idempotent lead intake, and manual reassignment. The
// transaction orchestration — BeginTx, run the selection under row locks,
// Commit, then fire post-commit side effects — follows the same shape as a
// call-routing engine's incoming-call handler.
package assignment

import (
    "context"
    "database/sql"
    "strings"
    "time"

    "github.com/go-sql-driver/mysql"
    "github.com/google/uuid"

    "github.com/hamzaKhattat/lead-router-core/internal/calendar"
    "github.com/hamzaKhattat/lead-router-core/internal/callerstore"
    "github.com/hamzaKhattat/lead-router-core/internal/counter"
    "github.com/hamzaKhattat/lead-router-core/internal/db"
    "github.com/hamzaKhattat/lead-router-core/internal/fairness"
    "github.com/hamzaKhattat/lead-router-core/internal/metrics"
    "github.com/hamzaKhattat/lead-router-core/internal/models"
    "github.com/hamzaKhattat/lead-router-core/pkg/errors"
    "github.com/hamzaKhattat/lead-router-core/pkg/logger"
)

// EventSink receives assignment events after a successful commit. Emission
// is best-effort: a publish failure is logged, never unwound.
type EventSink interface {
    Publish(ctx context.Context, event models.AssignmentEvent) error
}

// noopSink is used when no broadcaster is configured, e.g. in tests.
type noopSink struct{}

func (noopSink) Publish(context.Context, models.AssignmentEvent) error { return nil }

// LeadInput is the external lead-ingress shape the engine accepts.
type LeadInput struct {
    Name            string
    Phone           string
    SourceTimestamp time.Time
    LeadSource      string
    City            string
    State           string
    Metadata        models.JSON
}

// Engine is the assignment engine. All mutation happens inside a single
// database transaction per call to Assign or Reassign.
type Engine struct {
    db       *db.DB
    callers  callerstore.CallerRepository
    fairness fairness.Store
    counters counter.Store
    clock    calendar.Clock
    events   EventSink
    metrics  *metrics.Metrics
}

// Option configures an Engine at construction.
type Option func(*Engine)

// WithEventSink overrides the default no-op broadcaster.
func WithEventSink(sink EventSink) Option {
    return func(e *Engine) { e.events = sink }
}

// WithMetrics attaches a metrics recorder.
func WithMetrics(m *metrics.Metrics) Option {
    return func(e *Engine) { e.metrics = m }
}

// Callers exposes the engine's caller repository for read-only
// introspection, e.g. the ops CLI's stats and callers list commands. It
// never exposes fairness or counter state, which only ever make sense
// locked inside a transaction.
func (e *Engine) Callers() callerstore.CallerRepository {
    return e.callers
}

func New(database *db.DB, callers callerstore.CallerRepository, fairnessStore fairness.Store, counterStore counter.Store, clock calendar.Clock, opts ...Option) *Engine {
    e := &Engine{
        db:       database,
        callers:  callers,
        fairness: fairnessStore,
        counters: counterStore,
        clock:    clock,
        events:   noopSink{},
    }
    for _, opt := range opts {
        opt(e)
    }
    return e
}

// Assign routes a new lead to a caller, or records it as unassigned.
// Idempotent on (phone, source_timestamp): a replayed lead returns the
// outcome of its current assignment unchanged.
func (e *Engine) Assign(ctx context.Context, input LeadInput) (models.AssignmentOutcome, error) {
    if input.Phone == "" {
        return models.AssignmentOutcome{}, errors.New(errors.ErrValidation, "phone is required")
    }

    var outcome models.AssignmentOutcome
    var event *models.AssignmentEvent

    err := e.db.Transaction(ctx, func(tx *sql.Tx) error {
        outcome = models.AssignmentOutcome{}
        event = nil

        leadID, existing, err := e.insertLeadOrLoadExisting(ctx, tx, input)
        if err != nil {
            return err
        }
        if existing != nil {
            outcome = *existing
            return nil
        }

        state := callerstore.NormalizeState(input.State)
        now := e.clock.Now()
        businessDate := e.clock.BusinessDate(now)

        selected, routingKey, reason, err := e.selectCaller(ctx, tx, state, businessDate)
        if err != nil {
            return err
        }

        if selected != nil {
            if err := e.counters.Increment(ctx, tx, *selected, businessDate); err != nil {
                return err
            }
            if err := e.fairness.Write(ctx, tx, routingKey, *selected); err != nil {
                return err
            }
        }

        status := models.AssignmentStatusUnassigned
        if selected != nil {
            status = models.AssignmentStatusAssigned
        }

        assignmentID := newID()
        if err := insertAssignment(ctx, tx, assignmentID, leadID, selected, reason, status, businessDate, now); err != nil {
            return err
        }

        outcome = models.AssignmentOutcome{
            LeadID:   leadID,
            CallerID: selected,
            Status:   status,
            Reason:   reason,
            Instant:  now,
        }
        event = &models.AssignmentEvent{
            LeadID:   leadID,
            CallerID: selected,
            Status:   status,
            Reason:   reason,
            Instant:  now,
        }
        return nil
    })

    if err != nil {
        return models.AssignmentOutcome{}, err
    }

    e.recordMetrics(outcome)

    if event != nil {
        e.publish(ctx, *event)
    }

    return outcome, nil
}

// Reassign manually overrides a lead's current assignment. A nil
// targetCallerID re-runs automatic selection (§4.5.1) using the lead's
// stored state; a non-nil target must name an active caller and bypasses
// cap and state routing entirely.
func (e *Engine) Reassign(ctx context.Context, leadID string, targetCallerID *string) (models.AssignmentOutcome, error) {
    var outcome models.AssignmentOutcome
    var event *models.AssignmentEvent

    err := e.db.Transaction(ctx, func(tx *sql.Tx) error {
        outcome = models.AssignmentOutcome{}
        event = nil

        lead, err := loadLead(ctx, tx, leadID)
        if err != nil {
            return err
        }

        previous, err := loadCurrentAssignment(ctx, tx, leadID)
        if err != nil {
            return err
        }

        now := e.clock.Now()
        businessDate := e.clock.BusinessDate(now)

        if targetCallerID == nil {
            state := callerstore.NormalizeState(lead.State)
            selected, routingKey, reason, err := e.selectCaller(ctx, tx, state, businessDate)
            if err != nil {
                return err
            }
            if selected != nil {
                if err := e.counters.Increment(ctx, tx, *selected, businessDate); err != nil {
                    return err
                }
                if err := e.fairness.Write(ctx, tx, routingKey, *selected); err != nil {
                    return err
                }
            }
            status := models.AssignmentStatusUnassigned
            if selected != nil {
                status = models.AssignmentStatusAssigned
            }
            if err := e.applyReassignment(ctx, tx, previous, leadID, selected, reason, status, businessDate, now); err != nil {
                return err
            }
            outcome = models.AssignmentOutcome{LeadID: leadID, CallerID: selected, Status: status, Reason: reason, Instant: now}
            event = &models.AssignmentEvent{LeadID: leadID, CallerID: selected, Status: status, Reason: reason, Instant: now}
            return nil
        }

        target, err := e.callers.Get(ctx, *targetCallerID)
        if err != nil {
            return err
        }
        if !target.Active() {
            return errors.New(errors.ErrValidation, "reassignment target is not active").WithContext("caller_id", *targetCallerID)
        }

        // LockAndRead first: the target may have no daily_counters row yet
        // for today if it hasn't received an automatic assignment, and a
        // bare UPDATE against a nonexistent row affects nothing.
        if _, err := e.counters.LockAndRead(ctx, tx, target.ID, businessDate); err != nil {
            return err
        }
        if err := e.counters.Increment(ctx, tx, target.ID, businessDate); err != nil {
            return err
        }

        if err := e.applyReassignment(ctx, tx, previous, leadID, &target.ID, models.ReasonManualReassign, models.AssignmentStatusAssigned, businessDate, now); err != nil {
            return err
        }

        outcome = models.AssignmentOutcome{LeadID: leadID, CallerID: &target.ID, Status: models.AssignmentStatusAssigned, Reason: models.ReasonManualReassign, Instant: now}
        event = &models.AssignmentEvent{LeadID: leadID, CallerID: &target.ID, Status: models.AssignmentStatusAssigned, Reason: models.ReasonManualReassign, Instant: now}
        return nil
    })

    if err != nil {
        return models.AssignmentOutcome{}, err
    }

    e.recordMetrics(outcome)
    if event != nil {
        e.publish(ctx, *event)
    }
    return outcome, nil
}

// applyReassignment supersedes the previous current assignment row, inserts
// the new one, and — only if the previous assignment's business date is
// today — decrements the previous caller's counter. Historical days are
// never retroactively adjusted.
func (e *Engine) applyReassignment(ctx context.Context, tx *sql.Tx, previous *models.Assignment, leadID string, callerID *string, reason models.ReasonCode, status models.AssignmentStatus, businessDate string, now time.Time) error {
    if previous != nil {
        if _, err := tx.ExecContext(ctx,
            `UPDATE assignments SET status = ? WHERE id = ?`,
            models.AssignmentStatusReassignSuperseded, previous.ID,
        ); err != nil {
            return errors.Wrap(err, errors.ErrDatabase, "supersede previous assignment")
        }

        if previous.CallerID != nil && previous.BusinessDate == businessDate {
            if err := e.counters.Decrement(ctx, tx, *previous.CallerID, previous.BusinessDate); err != nil {
                return err
            }
        }
    }

    assignmentID := newID()
    return insertAssignment(ctx, tx, assignmentID, leadID, callerID, reason, status, businessDate, now)
}

// selectCaller implements the selection algorithm: state-scoped round robin
// first, then global fallback, then unassigned. The routing key returned is
// the one the selection actually walked under, not one derived from the
// lead's raw state: a state-bearing lead can still fall through to the
// global key, and the fairness pointer must only ever be written to the key
// that was locked and read. businessDate is the caller's already-computed
// date, used for both the cap check here and the counter increment after —
// a second clock.Now() call here could drift onto the next business date
// mid-transaction and check a cap under one date while incrementing another.
func (e *Engine) selectCaller(ctx context.Context, tx *sql.Tx, normalizedState, businessDate string) (selected *string, routingKey string, reason models.ReasonCode, err error) {
    var stateCandidates []models.Caller
    if normalizedState != "" {
        stateCandidates, err = e.callers.CandidatesForState(ctx, normalizedState)
        if err != nil {
            return nil, "", "", err
        }
    }

    globalCandidates, err := e.callers.CandidatesGlobal(ctx)
    if err != nil {
        return nil, "", "", err
    }

    if normalizedState != "" && len(stateCandidates) > 0 {
        stateKey := fairness.StateRoutingKey(normalizedState)
        selected, err := e.walkRotated(ctx, tx, stateKey, stateCandidates, businessDate)
        if err != nil {
            return nil, "", "", err
        }
        if selected != nil {
            return selected, stateKey, models.ReasonStateRoundRobin, nil
        }
    }

    if len(globalCandidates) > 0 {
        selected, err := e.walkRotated(ctx, tx, fairness.GlobalRoutingKey, globalCandidates, businessDate)
        if err != nil {
            return nil, "", "", err
        }
        if selected != nil {
            return selected, fairness.GlobalRoutingKey, models.ReasonGlobalRoundRobin, nil
        }
    }

    if len(globalCandidates) == 0 {
        return nil, "", models.ReasonUnassignedNoElig, nil
    }
    return nil, "", models.ReasonUnassignedCapped, nil
}

// walkRotated locks the routing key's pointer, rotates candidates so the
// entry immediately after the last-selected caller comes first, and returns
// the first candidate whose daily counter is still under its cap. Returns
// nil if every candidate is capped. Lock ordering is state key before
// global key, enforced by call order in selectCaller.
func (e *Engine) walkRotated(ctx context.Context, tx *sql.Tx, routingKey string, candidates []models.Caller, businessDate string) (*string, error) {
    last, err := e.fairness.LockAndRead(ctx, tx, routingKey)
    if err != nil {
        return nil, err
    }

    order := rotate(candidates, last)

    for _, c := range order {
        count, err := e.counters.LockAndRead(ctx, tx, c.ID, businessDate)
        if err != nil {
            return nil, err
        }
        if c.Unlimited() || count < c.DailyLimit {
            id := c.ID
            return &id, nil
        }
    }

    return nil, nil
}

// rotate reorders candidates so the element immediately after the one
// matching lastCallerID comes first. If lastCallerID is nil or not present
// in candidates, the original order is returned unchanged.
func rotate(candidates []models.Caller, lastCallerID *string) []models.Caller {
    if lastCallerID == nil {
        return candidates
    }

    idx := -1
    for i, c := range candidates {
        if c.ID == *lastCallerID {
            idx = i
            break
        }
    }
    if idx == -1 {
        return candidates
    }

    rotated := make([]models.Caller, 0, len(candidates))
    rotated = append(rotated, candidates[idx+1:]...)
    rotated = append(rotated, candidates[:idx+1]...)
    return rotated
}

func (e *Engine) insertLeadOrLoadExisting(ctx context.Context, tx *sql.Tx, input LeadInput) (leadID string, existing *models.AssignmentOutcome, err error) {
    leadID = newID()
    state := callerstore.NormalizeState(input.State)

    _, insertErr := tx.ExecContext(ctx, `
        INSERT INTO leads (id, name, phone, source_timestamp, lead_source, city, state, metadata, created_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, NOW())`,
        leadID, input.Name, input.Phone, input.SourceTimestamp, input.LeadSource, input.City, state, input.Metadata,
    )

    if insertErr == nil {
        return leadID, nil, nil
    }

    if !isDuplicateKeyError(insertErr) {
        return "", nil, errors.Wrap(insertErr, errors.ErrDatabase, "insert lead")
    }

    var priorLeadID string
    err = tx.QueryRowContext(ctx,
        `SELECT id FROM leads WHERE phone = ? AND source_timestamp = ?`,
        input.Phone, input.SourceTimestamp,
    ).Scan(&priorLeadID)
    if err != nil {
        return "", nil, errors.Wrap(err, errors.ErrDatabase, "load existing lead")
    }

    assignment, err := loadCurrentAssignment(ctx, tx, priorLeadID)
    if err != nil {
        return "", nil, err
    }

    outcome := models.AssignmentOutcome{
        LeadID:   priorLeadID,
        CallerID: assignment.CallerID,
        Status:   assignment.Status,
        Reason:   assignment.Reason,
        Instant:  assignment.AssignedAt,
    }
    return priorLeadID, &outcome, nil
}

func loadLead(ctx context.Context, tx *sql.Tx, leadID string) (*models.Lead, error) {
    var lead models.Lead
    err := tx.QueryRowContext(ctx, `
        SELECT id, name, phone, source_timestamp, lead_source, city, state, metadata, created_at
        FROM leads WHERE id = ?`, leadID,
    ).Scan(&lead.ID, &lead.Name, &lead.Phone, &lead.SourceTimestamp, &lead.LeadSource, &lead.City, &lead.State, &lead.Metadata, &lead.CreatedAt)
    if err == sql.ErrNoRows {
        return nil, errors.New(errors.ErrLeadNotFound, "lead not found").WithContext("lead_id", leadID)
    }
    if err != nil {
        return nil, errors.Wrap(err, errors.ErrDatabase, "load lead")
    }
    return &lead, nil
}

func loadCurrentAssignment(ctx context.Context, tx *sql.Tx, leadID string) (*models.Assignment, error) {
    var a models.Assignment
    var callerID sql.NullString

    // business_date is formatted in SQL: with parseTime the driver returns a
    // DATE as time.Time, which would scan into a string as a full timestamp
    // and never compare equal to the engine's YYYY-MM-DD business dates.
    err := tx.QueryRowContext(ctx, `
        SELECT id, lead_id, caller_id, assigned_at, reason, status, DATE_FORMAT(business_date, '%Y-%m-%d')
        FROM assignments
        WHERE lead_id = ? AND status IN (?, ?)
        ORDER BY assigned_at DESC LIMIT 1`,
        leadID, models.AssignmentStatusAssigned, models.AssignmentStatusUnassigned,
    ).Scan(&a.ID, &a.LeadID, &callerID, &a.AssignedAt, &a.Reason, &a.Status, &a.BusinessDate)
    if err == sql.ErrNoRows {
        return nil, errors.New(errors.ErrLeadNotFound, "no current assignment for lead").WithContext("lead_id", leadID)
    }
    if err != nil {
        return nil, errors.Wrap(err, errors.ErrDatabase, "load current assignment")
    }
    if callerID.Valid {
        a.CallerID = &callerID.String
    }
    return &a, nil
}

func insertAssignment(ctx context.Context, tx *sql.Tx, id, leadID string, callerID *string, reason models.ReasonCode, status models.AssignmentStatus, businessDate string, assignedAt time.Time) error {
    _, err := tx.ExecContext(ctx, `
        INSERT INTO assignments (id, lead_id, caller_id, assigned_at, reason, status, business_date)
        VALUES (?, ?, ?, ?, ?, ?, ?)`,
        id, leadID, callerID, assignedAt, reason, status, businessDate,
    )
    if err != nil {
        return errors.Wrap(err, errors.ErrDatabase, "insert assignment")
    }
    return nil
}

func (e *Engine) publish(ctx context.Context, event models.AssignmentEvent) {
    if err := e.events.Publish(ctx, event); err != nil {
        logger.WithField("lead_id", event.LeadID).WithError(err).Warn("assignment event publish failed")
    }
}

func (e *Engine) recordMetrics(outcome models.AssignmentOutcome) {
    if e.metrics == nil {
        return
    }
    e.metrics.RecordOutcome(string(outcome.Status), string(outcome.Reason))
}

// isDuplicateKeyError reports whether err is a MySQL duplicate-key
// violation (error 1062), the signal that a lead with this (phone,
// source_timestamp) was already inserted by a prior call.
func isDuplicateKeyError(err error) bool {
    var mysqlErr *mysql.MySQLError
    if ok := asMySQLError(err, &mysqlErr); ok {
        return mysqlErr.Number == 1062
    }
    return strings.Contains(err.Error(), "Duplicate entry")
}

func asMySQLError(err error, target **mysql.MySQLError) bool {
    me, ok := err.(*mysql.MySQLError)
    if ok {
        *target = me
    }
    return ok
}

func newID() string {
    return uuid.NewString()
}
