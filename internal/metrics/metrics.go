// Package metrics exposes Prometheus collectors for transfer activity.
package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "xfer"

// Metrics holds the transfer collectors. A nil *Metrics records nothing.
type Metrics struct {
	transfers     *prometheus.CounterVec
	parts         *prometheus.CounterVec
	retries       prometheus.Counter
	bytes         prometheus.Counter
	abortFailures prometheus.Counter
	partDuration  prometheus.Histogram
}

// New creates the collectors and registers them on reg. A nil reg leaves them
// unregistered. Collectors already registered on reg, for example by another
// client sharing it, are reused.
func New(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		transfers: register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transfers_total",
			Help:      "Transfers by terminal outcome.",
		}, []string{"outcome"})),
		parts: register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "parts_total",
			Help:      "Part writes by result.",
		}, []string{"result"})),
		retries: register(reg, prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "part_retries_total",
			Help:      "Part attempts that were retried after a transient failure.",
		})),
		bytes: register(reg, prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bytes_transferred_total",
			Help:      "Bytes acknowledged by destinations.",
		})),
		abortFailures: register(reg, prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "abort_failures_total",
			Help:      "Aborts that failed and may have left a session behind.",
		})),
		partDuration: register(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "part_duration_seconds",
			Help:      "Time to read and write one part, including retries.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		})),
	}
}

// register adds c to reg, returning the collector reg already holds under the
// same descriptor if there is one. Conflicting descriptors panic, as with
// MustRegister.
func register[T prometheus.Collector](reg prometheus.Registerer, c T) T {
	if reg == nil {
		return c
	}
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing
			}
		}
		panic(err)
	}
	return c
}

// TransferFinished counts a terminal outcome.
func (m *Metrics) TransferFinished(outcome string) {
	if m == nil {
		return
	}
	m.transfers.WithLabelValues(outcome).Inc()
}

// PartAcknowledged records a successful part.
func (m *Metrics) PartAcknowledged(size int64, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.parts.WithLabelValues("acknowledged").Inc()
	m.bytes.Add(float64(size))
	m.partDuration.Observe(elapsed.Seconds())
}

// PartFailed records a part that failed permanently or exhausted its retries.
func (m *Metrics) PartFailed() {
	if m == nil {
		return
	}
	m.parts.WithLabelValues("failed").Inc()
}

// PartRetried records one retry of a part.
func (m *Metrics) PartRetried() {
	if m == nil {
		return
	}
	m.retries.Inc()
}

// AbortFailed records an abort that did not succeed.
func (m *Metrics) AbortFailed() {
	if m == nil {
		return
	}
	m.abortFailures.Inc()
}
