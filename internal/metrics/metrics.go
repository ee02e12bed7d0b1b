// Package metrics exposes Prometheus collectors for the smart delay pipeline.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"storefront.chat/relay/internal/smartdelay"
)

const namespace = "relay"

// SmartDelay implements smartdelay.Observer.
type SmartDelay struct {
	fragments     *prometheus.CounterVec
	batches       *prometheus.CounterVec
	failures      *prometheus.CounterVec
	batchSize     prometheus.Histogram
	batchDuration prometheus.Histogram
}

var _ smartdelay.Observer = (*SmartDelay)(nil)

func NewSmartDelay(reg prometheus.Registerer) *SmartDelay {
	m := &SmartDelay{
		fragments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "smart_delay",
			Name:      "fragments_total",
			Help:      "Inbound fragments by classification.",
		}, []string{"category"}),
		batches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "smart_delay",
			Name:      "batches_total",
			Help:      "Merged batches handed to the reply generator, by flush reason.",
		}, []string{"reason"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "smart_delay",
			Name:      "generator_failures_total",
			Help:      "Batches the reply generator rejected, by flush reason.",
		}, []string{"reason"}),
		batchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "smart_delay",
			Name:      "batch_fragments",
			Help:      "Fragments merged into each batch.",
			Buckets:   []float64{1, 2, 3, 5, 8, 13, 21},
		}),
		batchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "smart_delay",
			Name:      "batch_hold_seconds",
			Help:      "Time between the first fragment of a batch and its dispatch.",
			Buckets:   []float64{0.05, 0.25, 0.5, 1, 2, 3, 5, 8, 10, 15},
		}),
	}

	reg.MustRegister(m.fragments, m.batches, m.failures, m.batchSize, m.batchDuration)
	return m
}

func (m *SmartDelay) FragmentClassified(category smartdelay.Category) {
	m.fragments.WithLabelValues(category.String()).Inc()
}

func (m *SmartDelay) BatchDispatched(reason smartdelay.FlushReason, batch smartdelay.Batch, err error) {
	m.batches.WithLabelValues(string(reason)).Inc()
	m.batchSize.Observe(float64(batch.FragmentCount))
	if !batch.FirstReceivedAt.IsZero() {
		m.batchDuration.Observe(time.Since(batch.FirstReceivedAt).Seconds())
	}
	if err != nil {
		m.failures.WithLabelValues(string(reason)).Inc()
	}
}

// RegisterPending publishes the number of conversations currently held.
func RegisterPending(reg prometheus.Registerer, pending func() int) {
	reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "smart_delay",
		Name:      "pending_conversations",
		Help:      "Conversations with fragments waiting for dispatch.",
	}, func() float64 {
		return float64(pending())
	}))
}

// NewRegistry returns a registry preloaded with the Go runtime and process collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}
