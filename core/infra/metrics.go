package infra

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "sahyog"

// Metrics agrupa os coletores do core. Um *Metrics nil é válido e vira no-op,
// então cada componente aceita WithMetrics opcional.
type Metrics struct {
	queueDepth   prometheus.Gauge
	tasks        *prometheus.CounterVec
	taskDuration prometheus.Histogram

	cacheLookups *prometheus.CounterVec

	limiterDecisions *prometheus.CounterVec

	translationLookups *prometheus.CounterVec
	translationJobs    *prometheus.CounterVec
	flushes            *prometheus.CounterVec

	sweeps   *prometheus.CounterVec
	removals prometheus.Counter

	httpRejected *prometheus.CounterVec
	httpInFlight prometheus.Gauge
}

// NewMetrics cria e registra os coletores em reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "pool", Name: "queue_depth",
			Help: "Work items waiting for a free worker.",
		}),
		tasks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "pool", Name: "tasks_total",
			Help: "Work items resolved, by outcome.",
		}, []string{"outcome"}),
		taskDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "pool", Name: "task_duration_seconds",
			Help:    "Time spent executing a work item on a worker.",
			Buckets: prometheus.DefBuckets,
		}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "cache", Name: "lookups_total",
			Help: "TTL slot lookups, by slot and result.",
		}, []string{"slot", "result"}),
		limiterDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "limiter", Name: "decisions_total",
			Help: "Window limiter decisions.",
		}, []string{"result"}),
		translationLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "translation", Name: "lookups_total",
			Help: "Translate calls, by result.",
		}, []string{"result"}),
		translationJobs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "translation", Name: "jobs_total",
			Help: "Background translation jobs, by outcome.",
		}, []string{"outcome"}),
		flushes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "translation", Name: "flushes_total",
			Help: "Durable table flushes, by outcome.",
		}, []string{"outcome"}),
		sweeps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "expiry", Name: "sweeps_total",
			Help: "Expiry sweep cycles, by outcome.",
		}, []string{"outcome"}),
		removals: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "expiry", Name: "removals_total",
			Help: "Expired items removed.",
		}),
		httpRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "http", Name: "rejected_total",
			Help: "Requests rejected by a middleware, by reason.",
		}, []string{"reason"}),
		httpInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "http", Name: "in_flight",
			Help: "Requests holding a concurrency slot.",
		}),
	}
	if reg != nil {
		reg.MustRegister(
			m.queueDepth, m.tasks, m.taskDuration,
			m.cacheLookups, m.limiterDecisions,
			m.translationLookups, m.translationJobs, m.flushes,
			m.sweeps, m.removals,
			m.httpRejected, m.httpInFlight,
		)
	}
	return m
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

func (m *Metrics) setQueueDepth(n int) {
	if m == nil {
		return
	}
	m.queueDepth.Set(float64(n))
}

func (m *Metrics) taskDone(d time.Duration, err error) {
	if m == nil {
		return
	}
	m.tasks.WithLabelValues(outcome(err)).Inc()
	m.taskDuration.Observe(d.Seconds())
}

func (m *Metrics) taskDropped(reason string) {
	if m == nil {
		return
	}
	m.tasks.WithLabelValues(reason).Inc()
}

func (m *Metrics) cacheLookup(slot string, hit bool) {
	if m == nil {
		return
	}
	res := "miss"
	if hit {
		res = "hit"
	}
	m.cacheLookups.WithLabelValues(slot, res).Inc()
}

func (m *Metrics) limiterDecision(allowed bool) {
	if m == nil {
		return
	}
	res := "denied"
	if allowed {
		res = "allowed"
	}
	m.limiterDecisions.WithLabelValues(res).Inc()
}

func (m *Metrics) translationLookup(result string) {
	if m == nil {
		return
	}
	m.translationLookups.WithLabelValues(result).Inc()
}

func (m *Metrics) translationJob(err error) {
	if m == nil {
		return
	}
	m.translationJobs.WithLabelValues(outcome(err)).Inc()
}

func (m *Metrics) flush(err error) {
	if m == nil {
		return
	}
	m.flushes.WithLabelValues(outcome(err)).Inc()
}

// SweepDone e Removed ficam exportados porque o sweep vive na camada application.
func (m *Metrics) SweepDone(err error) {
	if m == nil {
		return
	}
	m.sweeps.WithLabelValues(outcome(err)).Inc()
}

func (m *Metrics) Removed() {
	if m == nil {
		return
	}
	m.removals.Inc()
}

// Rejected conta requests recusados pelos middlewares do pacote core
// ("rate", "busy", "otp", "ai"...).
func (m *Metrics) setInFlight(n int) {
	if m == nil {
		return
	}
	m.httpInFlight.Set(float64(n))
}

func (m *Metrics) Rejected(reason string) {
	if m == nil {
		return
	}
	m.httpRejected.WithLabelValues(reason).Inc()
}
