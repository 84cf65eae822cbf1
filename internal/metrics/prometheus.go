package metrics

import (
    "fmt"
    "net/http"

    "github.com/prometheus/client_golang/prometheus"
    "github.com/prometheus/client_golang/prometheus/promhttp"

    "github.com/hamzaKhattat/lead-router-core/pkg/logger"
)

// Metrics wraps the Prometheus collectors the assignment engine and
// ingestion webhook report against.
type Metrics struct {
    leadsProcessed      *prometheus.CounterVec
    assignmentDuration  prometheus.Histogram
    capReachedTotal     prometheus.Counter
    activeCallersGauge  *prometheus.GaugeVec
}

func New() *Metrics {
    m := &Metrics{
        leadsProcessed: prometheus.NewCounterVec(
            prometheus.CounterOpts{
                Name: "leads_processed_total",
                Help: "Total leads processed by assignment status and reason",
            },
            []string{"status", "reason"},
        ),
        assignmentDuration: prometheus.NewHistogram(
            prometheus.HistogramOpts{
                Name:    "assignment_duration_seconds",
                Help:    "Time to assign or reassign a single lead",
                Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
            },
        ),
        capReachedTotal: prometheus.NewCounter(
            prometheus.CounterOpts{
                Name: "daily_cap_reached_total",
                Help: "Total times a caller's daily cap blocked selection during a walk",
            },
        ),
        activeCallersGauge: prometheus.NewGaugeVec(
            prometheus.GaugeOpts{
                Name: "active_callers",
                Help: "Number of active callers by routing scope",
            },
            []string{"scope"},
        ),
    }

    prometheus.MustRegister(m.leadsProcessed, m.assignmentDuration, m.capReachedTotal, m.activeCallersGauge)
    return m
}

// RecordOutcome increments the leads-processed counter for the given
// assignment status and reason code.
func (m *Metrics) RecordOutcome(status, reason string) {
    m.leadsProcessed.WithLabelValues(status, reason).Inc()
}

// ObserveAssignmentDuration records how long one Assign/Reassign call took.
func (m *Metrics) ObserveAssignmentDuration(seconds float64) {
    m.assignmentDuration.Observe(seconds)
}

// IncrementCapReached counts one caller skipped during a walk for being at
// its daily limit.
func (m *Metrics) IncrementCapReached() {
    m.capReachedTotal.Inc()
}

// SetActiveCallers reports the current size of a candidate pool (scope is
// "global" or "state:<name>").
func (m *Metrics) SetActiveCallers(scope string, count float64) {
    m.activeCallersGauge.WithLabelValues(scope).Set(count)
}

// ServeHTTP starts a standalone metrics listener on port.
func (m *Metrics) ServeHTTP(port int) error {
    mux := http.NewServeMux()
    mux.Handle("/metrics", promhttp.Handler())
    addr := fmt.Sprintf(":%d", port)
    logger.WithField("addr", addr).Info("metrics server started")
    return http.ListenAndServe(addr, mux)
}
