package calendar

import (
    "testing"
    "time"

    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"
)

func TestNewFixedZoneClock_InvalidZone(t *testing.T) {
    _, err := NewFixedZoneClock("Not/A_Real_Zone")
    assert.Error(t, err)
}

func TestFixedZoneClock_BusinessDate(t *testing.T) {
    clock, err := NewFixedZoneClock("Asia/Kolkata")
    require.NoError(t, err)

    // 18:30 UTC on Jan 1 is 00:00 IST on Jan 2 — the business date crosses
    // over even though the UTC calendar day hasn't.
    instant := time.Date(2025, 1, 1, 18, 30, 0, 0, time.UTC)
    assert.Equal(t, "2025-01-02", clock.BusinessDate(instant))

    // 18:29 UTC is still Jan 1 in IST.
    justBefore := time.Date(2025, 1, 1, 18, 29, 0, 0, time.UTC)
    assert.Equal(t, "2025-01-01", clock.BusinessDate(justBefore))
}

func TestFixedZoneClock_BusinessDate_UTC(t *testing.T) {
    clock, err := NewFixedZoneClock("UTC")
    require.NoError(t, err)

    instant := time.Date(2025, 6, 15, 23, 59, 59, 0, time.UTC)
    assert.Equal(t, "2025-06-15", clock.BusinessDate(instant))
}

func TestFixedZoneClock_Now_ReturnsUTC(t *testing.T) {
    clock, err := NewFixedZoneClock("America/New_York")
    require.NoError(t, err)

    assert.Equal(t, time.UTC, clock.Now().Location())
}
