package metrics

import (
    "testing"

    "github.com/prometheus/client_golang/prometheus/testutil"
    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"
)

// New registers collectors on the default Prometheus registry and panics on
// a second registration, so this file constructs exactly one Metrics value
// and shares it across subtests instead of calling New() per test.

func TestMetrics(t *testing.T) {
    m := New()
    require.NotNil(t, m)

    t.Run("RecordOutcome increments leads_processed_total", func(t *testing.T) {
        m.RecordOutcome("assigned", "state_round_robin")
        count := testutil.ToFloat64(m.leadsProcessed.WithLabelValues("assigned", "state_round_robin"))
        assert.Equal(t, float64(1), count)

        m.RecordOutcome("assigned", "state_round_robin")
        count = testutil.ToFloat64(m.leadsProcessed.WithLabelValues("assigned", "state_round_robin"))
        assert.Equal(t, float64(2), count)
    })

    t.Run("IncrementCapReached increments daily_cap_reached_total", func(t *testing.T) {
        before := testutil.ToFloat64(m.capReachedTotal)
        m.IncrementCapReached()
        after := testutil.ToFloat64(m.capReachedTotal)
        assert.Equal(t, before+1, after)
    })

    t.Run("SetActiveCallers sets the gauge for a scope", func(t *testing.T) {
        m.SetActiveCallers("global", 7)
        assert.Equal(t, float64(7), testutil.ToFloat64(m.activeCallersGauge.WithLabelValues("global")))

        m.SetActiveCallers("global", 3)
        assert.Equal(t, float64(3), testutil.ToFloat64(m.activeCallersGauge.WithLabelValues("global")))
    })

    t.Run("ObserveAssignmentDuration records without error", func(t *testing.T) {
        assert.NotPanics(t, func() {
            m.ObserveAssignmentDuration(0.02)
        })
    })
}
