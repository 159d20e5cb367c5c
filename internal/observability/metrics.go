// Package observability owns the instrumentation seam. Dashboards and
// exporters are external; the counters here are what they scrape.
package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	operations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "veil",
			Subsystem: "transport",
			Name:      "operations_total",
			Help:      "Encode/decode operations by integrity status.",
		},
		[]string{"action", "status"},
	)
	repairedBytes = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "veil",
			Subsystem: "transport",
			Name:      "repaired_bytes_total",
			Help:      "Bytes corrected by parity recovery.",
		},
	)
	consentDenied = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "veil",
			Subsystem: "ritual",
			Name:      "consent_denied_total",
			Help:      "Operations refused for missing consent, by gate.",
		},
		[]string{"gate"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(operations, repairedBytes, consentDenied)
	})
}

func RecordOperation(action, status string) {
	operations.WithLabelValues(action, status).Inc()
}

func RecordRepair(bytes int) {
	repairedBytes.Add(float64(bytes))
}

func RecordConsentDenied(gate string) {
	consentDenied.WithLabelValues(gate).Inc()
}
