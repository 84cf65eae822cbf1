package models

import (
    "testing"

    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"
)

func TestJSON_Value_Nil(t *testing.T) {
    var j JSON
    v, err := j.Value()
    require.NoError(t, err)
    assert.Equal(t, "{}", v)
}

func TestJSON_Value_RoundTrip(t *testing.T) {
    j := JSON{"campaign": "diwali-2025", "priority": float64(3)}
    v, err := j.Value()
    require.NoError(t, err)

    var decoded JSON
    require.NoError(t, decoded.Scan(v))
    assert.Equal(t, j, decoded)
}

func TestJSON_Scan_Nil(t *testing.T) {
    var j JSON
    require.NoError(t, j.Scan(nil))
    assert.Equal(t, JSON{}, j)
}

func TestJSON_Scan_EmptyBytes(t *testing.T) {
    var j JSON
    require.NoError(t, j.Scan([]byte{}))
    assert.Equal(t, JSON{}, j)
}

func TestJSON_Scan_NonBytesValue(t *testing.T) {
    var j JSON
    // An unexpected driver value type is ignored rather than erroring, since
    // the column is always declared JSON/TEXT and the driver always hands
    // back []byte in practice.
    assert.NoError(t, j.Scan(42))
}

func TestCaller_Unlimited(t *testing.T) {
    unlimited := Caller{DailyLimit: 0}
    assert.True(t, unlimited.Unlimited())

    limited := Caller{DailyLimit: 5}
    assert.False(t, limited.Unlimited())
}

func TestCaller_Active(t *testing.T) {
    active := Caller{Status: CallerStatusActive}
    assert.True(t, active.Active())

    paused := Caller{Status: CallerStatusPaused}
    assert.False(t, paused.Active())
}

func TestAssignmentOutcome_Assigned(t *testing.T) {
    assigned := AssignmentOutcome{Status: AssignmentStatusAssigned}
    assert.True(t, assigned.Assigned())

    unassigned := AssignmentOutcome{Status: AssignmentStatusUnassigned}
    assert.False(t, unassigned.Assigned())
}
