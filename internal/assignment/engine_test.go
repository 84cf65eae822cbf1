package assignment

import (
    "context"
    "database/sql"
    "testing"
    "time"

    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"

    "github.com/hamzaKhattat/lead-router-core/internal/fairness"
    "github.com/hamzaKhattat/lead-router-core/internal/models"
)

// fakeCallerRepo and fakeFairnessStore/fakeCounterStore are in-memory
// stand-ins for the narrow interfaces the engine depends on. The *sql.Tx
// parameter threaded through them is never dereferenced — it's only ever
// forwarded opaquely by the engine — so a nil transaction is fine in tests
// that only exercise selection, not the lead/assignment row writes that go
// straight to SQL.

type fakeCallerRepo struct {
    byState map[string][]models.Caller
    global  []models.Caller
    byID    map[string]models.Caller
}

func (f *fakeCallerRepo) CandidatesForState(ctx context.Context, state string) ([]models.Caller, error) {
    return f.byState[state], nil
}

func (f *fakeCallerRepo) CandidatesGlobal(ctx context.Context) ([]models.Caller, error) {
    return f.global, nil
}

func (f *fakeCallerRepo) NameOf(ctx context.Context, callerID string) (string, error) {
    c, ok := f.byID[callerID]
    if !ok {
        return "", sql.ErrNoRows
    }
    return c.Name, nil
}

func (f *fakeCallerRepo) Get(ctx context.Context, callerID string) (*models.Caller, error) {
    c, ok := f.byID[callerID]
    if !ok {
        return nil, sql.ErrNoRows
    }
    return &c, nil
}

type fakeFairnessStore struct {
    pointers map[string]*string
}

func newFakeFairnessStore() *fakeFairnessStore {
    return &fakeFairnessStore{pointers: make(map[string]*string)}
}

func (f *fakeFairnessStore) LockAndRead(ctx context.Context, tx *sql.Tx, routingKey string) (*string, error) {
    return f.pointers[routingKey], nil
}

func (f *fakeFairnessStore) Write(ctx context.Context, tx *sql.Tx, routingKey string, callerID string) error {
    id := callerID
    f.pointers[routingKey] = &id
    return nil
}

type fakeCounterStore struct {
    counts map[string]int
}

func newFakeCounterStore() *fakeCounterStore {
    return &fakeCounterStore{counts: make(map[string]int)}
}

func counterKey(callerID, businessDate string) string { return callerID + "|" + businessDate }

func (f *fakeCounterStore) LockAndRead(ctx context.Context, tx *sql.Tx, callerID, businessDate string) (int, error) {
    return f.counts[counterKey(callerID, businessDate)], nil
}

func (f *fakeCounterStore) Increment(ctx context.Context, tx *sql.Tx, callerID, businessDate string) error {
    f.counts[counterKey(callerID, businessDate)]++
    return nil
}

func (f *fakeCounterStore) Decrement(ctx context.Context, tx *sql.Tx, callerID, businessDate string) error {
    if f.counts[counterKey(callerID, businessDate)] > 0 {
        f.counts[counterKey(callerID, businessDate)]--
    }
    return nil
}

type fixedClock struct {
    now time.Time
}

func (c fixedClock) Now() time.Time { return c.now }
func (c fixedClock) BusinessDate(instant time.Time) string {
    return instant.Format("2006-01-02")
}

func caller(id string, limit int, createdAt time.Time) models.Caller {
    return models.Caller{
        ID:         id,
        Name:       id,
        DailyLimit: limit,
        Status:     models.CallerStatusActive,
        CreatedAt:  createdAt,
    }
}

func TestRotate(t *testing.T) {
    c1, c2, c3 := caller("c1", 0, time.Time{}), caller("c2", 0, time.Time{}), caller("c3", 0, time.Time{})
    candidates := []models.Caller{c1, c2, c3}

    t.Run("nil pointer keeps original order", func(t *testing.T) {
        assert.Equal(t, []models.Caller{c1, c2, c3}, rotate(candidates, nil))
    })

    t.Run("unknown caller id keeps original order", func(t *testing.T) {
        unknown := "c99"
        assert.Equal(t, []models.Caller{c1, c2, c3}, rotate(candidates, &unknown))
    })

    t.Run("last caller first in list rotates remainder to front", func(t *testing.T) {
        last := "c1"
        assert.Equal(t, []models.Caller{c2, c3, c1}, rotate(candidates, &last))
    })

    t.Run("last caller at end wraps fully around", func(t *testing.T) {
        last := "c3"
        assert.Equal(t, []models.Caller{c1, c2, c3}, rotate(candidates, &last))
    })
}

func newTestEngine(callers *fakeCallerRepo, fs *fakeFairnessStore, cs *fakeCounterStore, businessDate string) *Engine {
    clock := fixedClock{now: mustParse(businessDate + "T10:00:00Z")}
    return New(nil, callers, fs, cs, clock)
}

func mustParse(s string) time.Time {
    t, err := time.Parse(time.RFC3339, s)
    if err != nil {
        panic(err)
    }
    return t
}

// Scenario A — state round robin: c1, c2 created in order, both active,
// both in state "maharashtra", limit 10. Three sequential selections land
// c1, c2, c1.
func TestSelectCaller_StateRoundRobin(t *testing.T) {
    t0 := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
    c1 := caller("c1", 10, t0)
    c2 := caller("c2", 10, t0.Add(time.Minute))

    repo := &fakeCallerRepo{
        byState: map[string][]models.Caller{"maharashtra": {c1, c2}},
        global:  nil,
    }
    fs := newFakeFairnessStore()
    cs := newFakeCounterStore()
    engine := newTestEngine(repo, fs, cs, "2025-01-01")

    ctx := context.Background()

    stateKey := fairness.StateRoutingKey("maharashtra")

    selected1, routingKey1, reason1, err := engine.selectCaller(ctx, nil, "maharashtra", "2025-01-01")
    require.NoError(t, err)
    require.NotNil(t, selected1)
    assert.Equal(t, "c1", *selected1)
    assert.Equal(t, stateKey, routingKey1)
    assert.Equal(t, models.ReasonStateRoundRobin, reason1)
    require.NoError(t, cs.Increment(ctx, nil, *selected1, "2025-01-01"))
    require.NoError(t, fs.Write(ctx, nil, routingKey1, *selected1))

    selected2, routingKey2, reason2, err := engine.selectCaller(ctx, nil, "maharashtra", "2025-01-01")
    require.NoError(t, err)
    require.NotNil(t, selected2)
    assert.Equal(t, "c2", *selected2)
    assert.Equal(t, stateKey, routingKey2)
    assert.Equal(t, models.ReasonStateRoundRobin, reason2)
    require.NoError(t, cs.Increment(ctx, nil, *selected2, "2025-01-01"))
    require.NoError(t, fs.Write(ctx, nil, routingKey2, *selected2))

    selected3, routingKey3, reason3, err := engine.selectCaller(ctx, nil, "maharashtra", "2025-01-01")
    require.NoError(t, err)
    require.NotNil(t, selected3)
    assert.Equal(t, "c1", *selected3)
    assert.Equal(t, stateKey, routingKey3)
    assert.Equal(t, models.ReasonStateRoundRobin, reason3)
    require.NoError(t, cs.Increment(ctx, nil, *selected3, "2025-01-01"))
    require.NoError(t, fs.Write(ctx, nil, routingKey3, *selected3))

    assert.Equal(t, 2, cs.counts[counterKey("c1", "2025-01-01")])
    assert.Equal(t, 1, cs.counts[counterKey("c2", "2025-01-01")])
}

// Scenario B — cap fallback to global: c1 (state "karnataka", limit 1) is
// capped after the first lead, so the second falls through to the global
// candidate c2.
func TestSelectCaller_CapFallbackToGlobal(t *testing.T) {
    t0 := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
    c1 := caller("c1", 1, t0)
    c2 := caller("c2", 10, t0)

    repo := &fakeCallerRepo{
        byState: map[string][]models.Caller{"karnataka": {c1}},
        global:  []models.Caller{c2},
    }
    fs := newFakeFairnessStore()
    cs := newFakeCounterStore()
    engine := newTestEngine(repo, fs, cs, "2025-01-01")
    ctx := context.Background()

    selected1, routingKey1, reason1, err := engine.selectCaller(ctx, nil, "karnataka", "2025-01-01")
    require.NoError(t, err)
    require.NotNil(t, selected1)
    assert.Equal(t, "c1", *selected1)
    assert.Equal(t, fairness.StateRoutingKey("karnataka"), routingKey1)
    assert.Equal(t, models.ReasonStateRoundRobin, reason1)
    require.NoError(t, cs.Increment(ctx, nil, *selected1, "2025-01-01"))

    // The second lead falls through to the global pool. The routing key the
    // engine hands back must be the global key it actually walked and
    // locked under, not the state key derived from the lead's raw state —
    // writing the pointer to the wrong key would clobber the state pointer
    // with a caller nobody rotated it to, and never advance the global one.
    selected2, routingKey2, reason2, err := engine.selectCaller(ctx, nil, "karnataka", "2025-01-01")
    require.NoError(t, err)
    require.NotNil(t, selected2)
    assert.Equal(t, "c2", *selected2)
    assert.Equal(t, fairness.GlobalRoutingKey, routingKey2)
    assert.Equal(t, models.ReasonGlobalRoundRobin, reason2)
}

// Scenario C — all capped: single global caller at its limit yields no
// selection, reason unassigned_cap_reached.
func TestSelectCaller_AllCapped(t *testing.T) {
    t0 := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
    c1 := caller("c1", 1, t0)

    repo := &fakeCallerRepo{global: []models.Caller{c1}}
    fs := newFakeFairnessStore()
    cs := newFakeCounterStore()
    cs.counts[counterKey("c1", "2025-01-01")] = 1 // already at cap

    engine := newTestEngine(repo, fs, cs, "2025-01-01")
    ctx := context.Background()

    selected, routingKey, reason, err := engine.selectCaller(ctx, nil, "", "2025-01-01")
    require.NoError(t, err)
    assert.Nil(t, selected)
    assert.Empty(t, routingKey)
    assert.Equal(t, models.ReasonUnassignedCapped, reason)
}

// Scenario D — no eligible callers at all.
func TestSelectCaller_NoEligibleCallers(t *testing.T) {
    repo := &fakeCallerRepo{}
    fs := newFakeFairnessStore()
    cs := newFakeCounterStore()
    engine := newTestEngine(repo, fs, cs, "2025-01-01")

    selected, routingKey, reason, err := engine.selectCaller(context.Background(), nil, "", "2025-01-01")
    require.NoError(t, err)
    assert.Nil(t, selected)
    assert.Empty(t, routingKey)
    assert.Equal(t, models.ReasonUnassignedNoElig, reason)
}

// An unlimited caller (daily_limit 0) is never skipped for being "at" zero.
func TestSelectCaller_UnlimitedCallerNeverCapped(t *testing.T) {
    t0 := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
    c1 := caller("c1", 0, t0)

    repo := &fakeCallerRepo{global: []models.Caller{c1}}
    fs := newFakeFairnessStore()
    cs := newFakeCounterStore()
    cs.counts[counterKey("c1", "2025-01-01")] = 500

    engine := newTestEngine(repo, fs, cs, "2025-01-01")
    selected, routingKey, reason, err := engine.selectCaller(context.Background(), nil, "", "2025-01-01")
    require.NoError(t, err)
    require.NotNil(t, selected)
    assert.Equal(t, "c1", *selected)
    assert.Equal(t, fairness.GlobalRoutingKey, routingKey)
    assert.Equal(t, models.ReasonGlobalRoundRobin, reason)
}

func TestIsDuplicateKeyError(t *testing.T) {
    assert.False(t, isDuplicateKeyError(sql.ErrNoRows))
}
