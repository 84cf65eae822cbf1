package models

import (
    "database/sql/driver"
    "encoding/json"
    "time"
)

// CallerStatus reflects whether a caller may currently receive assignments.
type CallerStatus string

const (
    CallerStatusActive CallerStatus = "active"
    CallerStatusPaused CallerStatus = "paused"
)

// AssignmentStatus of the single current assignment row for a lead.
type AssignmentStatus string

const (
    AssignmentStatusAssigned           AssignmentStatus = "assigned"
    AssignmentStatusUnassigned         AssignmentStatus = "unassigned"
    AssignmentStatusReassignSuperseded AssignmentStatus = "reassigned-superseded"
)

// ReasonCode is the closed set of assignment outcomes.
type ReasonCode string

const (
    ReasonStateRoundRobin  ReasonCode = "state_round_robin"
    ReasonGlobalRoundRobin ReasonCode = "global_round_robin"
    ReasonManualReassign   ReasonCode = "manual_reassign"
    ReasonUnassignedCapped ReasonCode = "unassigned_cap_reached"
    ReasonUnassignedNoElig ReasonCode = "unassigned_no_eligible"
)

// JSON is a generic metadata bag stored as a JSON column.
type JSON map[string]interface{}

func (j JSON) Value() (driver.Value, error) {
    if j == nil {
        return "{}", nil
    }
    return json.Marshal(j)
}

func (j *JSON) Scan(value interface{}) error {
    if value == nil {
        *j = make(JSON)
        return nil
    }

    bytes, ok := value.([]byte)
    if !ok {
        return nil
    }
    if len(bytes) == 0 {
        *j = make(JSON)
        return nil
    }

    return json.Unmarshal(bytes, j)
}

// Caller is a human sales agent eligible to receive leads.
type Caller struct {
    ID         string       `json:"id" db:"id"`
    Name       string       `json:"name" db:"name"`
    Role       string       `json:"role,omitempty" db:"role"`
    DailyLimit int          `json:"daily_limit" db:"daily_limit"`
    States     []string     `json:"states,omitempty" db:"-"`
    Status     CallerStatus `json:"status" db:"status"`
    CreatedAt  time.Time    `json:"created_at" db:"created_at"`
    UpdatedAt  time.Time    `json:"updated_at" db:"updated_at"`
}

// Unlimited reports whether the caller's daily_limit is the "0 means
// unlimited" sentinel.
func (c *Caller) Unlimited() bool {
    return c.DailyLimit == 0
}

// Active reports whether the caller is eligible to be selected at all.
func (c *Caller) Active() bool {
    return c.Status == CallerStatusActive
}

// Lead is an inbound sales prospect record, immutable after creation.
type Lead struct {
    ID              string    `json:"id" db:"id"`
    Name            string    `json:"name,omitempty" db:"name"`
    Phone           string    `json:"phone" db:"phone"`
    SourceTimestamp time.Time `json:"source_timestamp" db:"source_timestamp"`
    LeadSource      string    `json:"lead_source,omitempty" db:"lead_source"`
    City            string    `json:"city,omitempty" db:"city"`
    State           string    `json:"state,omitempty" db:"state"`
    Metadata        JSON      `json:"metadata,omitempty" db:"metadata"`
    CreatedAt       time.Time `json:"created_at" db:"created_at"`
}

// Assignment binds a lead to a caller (or to nobody), with the reason the
// engine made that decision. Exactly one current row exists per lead; prior
// rows for a reassigned lead are kept with status reassigned-superseded.
type Assignment struct {
    ID           string           `json:"id" db:"id"`
    LeadID       string           `json:"lead_id" db:"lead_id"`
    CallerID     *string          `json:"caller_id,omitempty" db:"caller_id"`
    AssignedAt   time.Time        `json:"assigned_at" db:"assigned_at"`
    Reason       ReasonCode       `json:"reason" db:"reason"`
    Status       AssignmentStatus `json:"status" db:"status"`
    BusinessDate string           `json:"business_date" db:"business_date"`
}

// RRPointer is the persistent fairness cursor for a routing key.
type RRPointer struct {
    Key          string    `json:"key" db:"key_name"`
    LastCallerID *string   `json:"last_caller_id,omitempty" db:"last_caller_id"`
    UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`
}

// DailyCounter tracks how many leads a caller was assigned on a business date.
type DailyCounter struct {
    CallerID     string `json:"caller_id" db:"caller_id"`
    BusinessDate string `json:"business_date" db:"business_date"`
    Count        int    `json:"count" db:"count"`
}

// AssignmentOutcome is the result of a single assign/reassign call. Exactly
// one of CallerID-present or CallerID-nil is meaningful, discriminated by
// Status rather than by subclassing.
type AssignmentOutcome struct {
    LeadID   string           `json:"lead_id"`
    CallerID *string          `json:"caller_id,omitempty"`
    Status   AssignmentStatus `json:"status"`
    Reason   ReasonCode       `json:"reason_code"`
    Instant  time.Time        `json:"instant"`
}

// Assigned reports whether the outcome bound the lead to a caller.
func (o AssignmentOutcome) Assigned() bool {
    return o.Status == AssignmentStatusAssigned
}

// AssignmentEvent is published to the broadcaster sink on commit.
type AssignmentEvent struct {
    LeadID   string           `json:"lead_id"`
    CallerID *string          `json:"caller_id,omitempty"`
    Status   AssignmentStatus `json:"status"`
    Reason   ReasonCode       `json:"reason"`
    Instant  time.Time        `json:"instant"`
}
