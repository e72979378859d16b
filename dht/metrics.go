package dht

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

const (
	outcomeFound    = "found"
	outcomeLocal    = "local"
	outcomeNotFound = "not_found"
	outcomeExpired  = "expired"
	outcomeAborted  = "aborted"
)

var (
	metricsInitOnce sync.Once
	sharedMetrics   *dhtMetrics
)

type dhtMetrics struct {
	messages          *prometheus.CounterVec
	lookups           *prometheus.CounterVec
	lookupDuration    prometheus.Histogram
	lookupRounds      prometheus.Histogram
	transportFailures *prometheus.CounterVec
	integrity         prometheus.Counter
	routingPeers      *prometheus.GaugeVec
	storedBlobs       *prometheus.GaugeVec

	meter         metric.Meter
	lookupCounter metric.Int64Counter
	rttHistogram  metric.Float64Histogram
}

func newDHTMetrics() *dhtMetrics {
	metricsInitOnce.Do(func() {
		m := &dhtMetrics{
			messages: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "kelili",
				Subsystem: "dht",
				Name:      "messages_total",
				Help:      "Protocol messages handled or sent, by direction and kind.",
			}, []string{"direction", "kind"}),
			lookups: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "kelili",
				Subsystem: "dht",
				Name:      "lookups_total",
				Help:      "Resolved lookups by outcome.",
			}, []string{"outcome"}),
			lookupDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
				Namespace: "kelili",
				Subsystem: "dht",
				Name:      "lookup_duration_seconds",
				Help:      "Time from lookup start to resolution.",
				Buckets:   prometheus.DefBuckets,
			}),
			lookupRounds: prometheus.NewHistogram(prometheus.HistogramOpts{
				Namespace: "kelili",
				Subsystem: "dht",
				Name:      "lookup_rounds",
				Help:      "Rounds issued per resolved lookup.",
				Buckets:   []float64{0, 1, 2, 3, 4, 5, 8, 16, 32},
			}),
			transportFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "kelili",
				Subsystem: "dht",
				Name:      "transport_failures_total",
				Help:      "Failed sends by message kind.",
			}, []string{"kind"}),
			integrity: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "kelili",
				Subsystem: "dht",
				Name:      "integrity_violations_total",
				Help:      "FoundData responses rejected because the content did not match the requested hash.",
			}),
			routingPeers: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "kelili",
				Subsystem: "dht",
				Name:      "routing_table_peers",
				Help:      "Peers held in the routing table, per node.",
			}, []string{"node"}),
			storedBlobs: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "kelili",
				Subsystem: "dht",
				Name:      "stored_blobs",
				Help:      "Blobs held in the local store, per node.",
			}, []string{"node"}),
		}
		prometheus.MustRegister(
			m.messages,
			m.lookups,
			m.lookupDuration,
			m.lookupRounds,
			m.transportFailures,
			m.integrity,
			m.routingPeers,
			m.storedBlobs,
		)
		m.initMeter()
		sharedMetrics = m
	})
	return sharedMetrics
}

func (m *dhtMetrics) initMeter() {
	meter := otel.GetMeterProvider().Meter("kelili/dht")
	counter, err := meter.Int64Counter("kelili.dht.lookups")
	if err != nil {
		fallback := noop.NewMeterProvider().Meter("kelili/dht")
		counter, _ = fallback.Int64Counter("kelili.dht.lookups")
		meter = fallback
	}
	rtt, err := meter.Float64Histogram("kelili.dht.ping_rtt_ms")
	if err != nil {
		fallback := noop.NewMeterProvider().Meter("kelili/dht")
		rtt, _ = fallback.Float64Histogram("kelili.dht.ping_rtt_ms")
		meter = fallback
	}
	m.meter = meter
	m.lookupCounter = counter
	m.rttHistogram = rtt
}

func (m *dhtMetrics) recordMessage(direction string, kind Kind) {
	if m == nil {
		return
	}
	m.messages.WithLabelValues(direction, kind.String()).Inc()
}

func (m *dhtMetrics) recordLookup(outcome string, rounds int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.lookups.WithLabelValues(outcome).Inc()
	m.lookupDuration.Observe(elapsed.Seconds())
	m.lookupRounds.Observe(float64(rounds))
	if m.lookupCounter != nil {
		m.lookupCounter.Add(context.Background(), 1,
			metric.WithAttributes(attribute.String("outcome", outcome)))
	}
}

func (m *dhtMetrics) recordTransportFailure(kind Kind) {
	if m == nil {
		return
	}
	m.transportFailures.WithLabelValues(kind.String()).Inc()
}

func (m *dhtMetrics) recordIntegrityViolation() {
	if m == nil {
		return
	}
	m.integrity.Inc()
}

func (m *dhtMetrics) recordRTT(peer ID, rtt time.Duration) {
	if m == nil || m.rttHistogram == nil {
		return
	}
	m.rttHistogram.Record(context.Background(),
		float64(rtt)/float64(time.Millisecond),
		metric.WithAttributes(attribute.String("peer", peer.Short())))
}

func (m *dhtMetrics) observeNode(node ID, routingPeers, blobs int) {
	if m == nil {
		return
	}
	label := node.String()
	m.routingPeers.WithLabelValues(label).Set(float64(routingPeers))
	m.storedBlobs.WithLabelValues(label).Set(float64(blobs))
}

func (m *dhtMetrics) removeNode(node ID) {
	if m == nil {
		return
	}
	label := node.String()
	m.routingPeers.DeleteLabelValues(label)
	m.storedBlobs.DeleteLabelValues(label)
}
