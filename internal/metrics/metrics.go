package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "carealert"

const (
	OutcomeDelivered = "delivered"
	OutcomeTransient = "transient"
	OutcomePermanent = "permanent"

	ResultSent         = "sent"
	ResultNoRecipients = "no_recipients"
	ResultFailed       = "failed"
)

type Metrics struct {
	registry         *prometheus.Registry
	deliveries       *prometheus.CounterVec
	pruned           prometheus.Counter
	dispatches       *prometheus.CounterVec
	dispatchDuration prometheus.Histogram
	realtimeClients  prometheus.Gauge
}

// New registers collectors on a private registry so tests can build as many as they like.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "push_deliveries_total",
			Help:      "Push delivery attempts by outcome.",
		}, []string{"outcome"}),
		pruned: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "push_pruned_subscriptions_total",
			Help:      "Subscriptions removed after a permanent delivery failure.",
		}),
		dispatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dispatches_total",
			Help:      "Notification dispatches by result.",
		}, []string{"result"}),
		dispatchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "dispatch_duration_seconds",
			Help:      "Time from dispatch start until every delivery settled.",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10},
		}),
		realtimeClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "realtime_clients",
			Help:      "Currently connected realtime relay clients.",
		}),
	}
	reg.MustRegister(
		m.deliveries,
		m.pruned,
		m.dispatches,
		m.dispatchDuration,
		m.realtimeClients,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

func (m *Metrics) ObserveDelivery(outcome string) {
	m.deliveries.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObservePruned() { m.pruned.Inc() }

func (m *Metrics) ObserveDispatch(result string, took time.Duration) {
	m.dispatches.WithLabelValues(result).Inc()
	m.dispatchDuration.Observe(took.Seconds())
}

func (m *Metrics) ClientConnected()    { m.realtimeClients.Inc() }
func (m *Metrics) ClientDisconnected() { m.realtimeClients.Dec() }
