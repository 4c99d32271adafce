package mtconnectflattener

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/carverauto/mtconnect-flattener/pkg/models"
)

const metricsNamespace = "mtconnect"

// Metrics holds the flattener's Prometheus collectors. A nil *Metrics
// records nothing.
type Metrics struct {
	documents       *prometheus.CounterVec
	recordsEmitted  *prometheus.CounterVec
	emitFailures    *prometheus.CounterVec
	processDuration prometheus.Histogram
}

// NewMetrics creates the collectors and registers them with reg. Collectors
// already registered on reg are reused.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		documents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "documents_total",
			Help:      "Documents processed, by outcome.",
		}, []string{"outcome"}),

		recordsEmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "records_emitted_total",
			Help:      "Flattened records acknowledged by a sink, by record kind.",
		}, []string{"kind"}),

		emitFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "emit_failures_total",
			Help:      "Flattened records a sink did not accept, by record kind.",
		}, []string{"kind"}),

		processDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "process_duration_seconds",
			Help:      "Time to read, flatten and emit one document.",
			Buckets:   prometheus.DefBuckets,
		}),
	}

	if reg == nil {
		return m, nil
	}

	var err error

	m.documents, err = register(reg, m.documents)
	if err != nil {
		return nil, err
	}

	m.recordsEmitted, err = register(reg, m.recordsEmitted)
	if err != nil {
		return nil, err
	}

	m.emitFailures, err = register(reg, m.emitFailures)
	if err != nil {
		return nil, err
	}

	m.processDuration, err = register(reg, m.processDuration)
	if err != nil {
		return nil, err
	}

	return m, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}

		return c, err
	}

	return c, nil
}

func (m *Metrics) documentProcessed(outcome OutcomeKind, elapsed time.Duration) {
	if m == nil {
		return
	}

	m.documents.WithLabelValues(outcome.String()).Inc()
	m.processDuration.Observe(elapsed.Seconds())
}

func (m *Metrics) documentFailed(elapsed time.Duration) {
	if m == nil {
		return
	}

	m.documents.WithLabelValues(outcomeError).Inc()
	m.processDuration.Observe(elapsed.Seconds())
}

func (m *Metrics) recordEmitted(kind models.RecordKind) {
	if m == nil {
		return
	}

	m.recordsEmitted.WithLabelValues(string(kind)).Inc()
}

func (m *Metrics) emitFailed(kind models.RecordKind) {
	if m == nil {
		return
	}

	m.emitFailures.WithLabelValues(string(kind)).Inc()
}
