package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// LifecycleMetrics содержит метрики оркестратора жизненного цикла заказа.
type LifecycleMetrics struct {
	// Счётчики переходов
	transitions       *prometheus.CounterVec
	transitionsDenied *prometheus.CounterVec

	// Платёжные side effects
	captures prometheus.Counter
	refunds  prometheus.Counter
	releases prometheus.Counter

	// Назначение курьеров
	driverAssignments *prometheus.CounterVec

	// События timeline и realtime-публикации
	timelineEvents prometheus.Counter
	realtimeEvents prometheus.Counter

	// Гистограмма времени выполнения перехода
	transitionDuration prometheus.Histogram
}

// NewLifecycleMetrics создаёт метрики в default registerer.
func NewLifecycleMetrics() *LifecycleMetrics {
	return newLifecycleMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

func newLifecycleMetricsWithRegisterer(registerer prometheus.Registerer) *LifecycleMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &LifecycleMetrics{
		transitions: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "market_order_transitions_total",
			Help: "Total number of successful order status transitions by target status",
		}, []string{"to_status"}),
		transitionsDenied: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "market_order_transitions_denied_total",
			Help: "Total number of rejected order status transitions by denial kind",
		}, []string{"reason"}),
		captures: registerCounter(registerer, prometheus.CounterOpts{
			Name: "market_payment_captures_total",
			Help: "Total number of payment captures issued by the orchestrator",
		}),
		refunds: registerCounter(registerer, prometheus.CounterOpts{
			Name: "market_payment_refunds_total",
			Help: "Total number of payment refunds issued by the orchestrator",
		}),
		releases: registerCounter(registerer, prometheus.CounterOpts{
			Name: "market_payment_releases_total",
			Help: "Total number of payment authorization releases",
		}),
		driverAssignments: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "market_driver_assignments_total",
			Help: "Total number of driver assignment attempts by result",
		}, []string{"result"}),
		timelineEvents: registerCounter(registerer, prometheus.CounterOpts{
			Name: "market_timeline_events_total",
			Help: "Total number of timeline events recorded",
		}),
		realtimeEvents: registerCounter(registerer, prometheus.CounterOpts{
			Name: "market_realtime_events_total",
			Help: "Total number of realtime order update events published",
		}),
		transitionDuration: registerHistogram(registerer, prometheus.HistogramOpts{
			Name:    "market_order_transition_duration_seconds",
			Help:    "Duration of order transitions in seconds",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

func registerCounter(registerer prometheus.Registerer, opts prometheus.CounterOpts) prometheus.Counter {
	collector := prometheus.NewCounter(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Counter)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter %q: %v", opts.Name, err))
	}
	return collector
}

func registerCounterVec(registerer prometheus.Registerer, opts prometheus.CounterOpts, labels []string) *prometheus.CounterVec {
	collector := prometheus.NewCounterVec(opts, labels)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(*prometheus.CounterVec)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter vec %q: %v", opts.Name, err))
	}
	return collector
}

func registerHistogram(registerer prometheus.Registerer, opts prometheus.HistogramOpts) prometheus.Histogram {
	collector := prometheus.NewHistogram(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Histogram)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register histogram %q: %v", opts.Name, err))
	}
	return collector
}

// RecordTransition увеличивает счётчик успешных переходов в статус.
func (m *LifecycleMetrics) RecordTransition(toStatus string) {
	m.transitions.WithLabelValues(toStatus).Inc()
}

// RecordTransitionDenied увеличивает счётчик отказов по виду отказа.
func (m *LifecycleMetrics) RecordTransitionDenied(reason string) {
	m.transitionsDenied.WithLabelValues(reason).Inc()
}

// RecordCapture увеличивает счётчик capture-вызовов.
func (m *LifecycleMetrics) RecordCapture() {
	m.captures.Inc()
}

// RecordRefund увеличивает счётчик refund-вызовов.
func (m *LifecycleMetrics) RecordRefund() {
	m.refunds.Inc()
}

// RecordRelease увеличивает счётчик снятых авторизаций.
func (m *LifecycleMetrics) RecordRelease() {
	m.releases.Inc()
}

// RecordDriverAssignment фиксирует результат подбора курьера.
func (m *LifecycleMetrics) RecordDriverAssignment(result string) {
	m.driverAssignments.WithLabelValues(result).Inc()
}

// RecordTimelineEvent увеличивает счётчик событий timeline.
func (m *LifecycleMetrics) RecordTimelineEvent() {
	m.timelineEvents.Inc()
}

// RecordRealtimeEvent увеличивает счётчик realtime-публикаций.
func (m *LifecycleMetrics) RecordRealtimeEvent() {
	m.realtimeEvents.Inc()
}

// RecordTransitionDuration записывает время выполнения перехода.
func (m *LifecycleMetrics) RecordTransitionDuration(duration time.Duration) {
	m.transitionDuration.Observe(duration.Seconds())
}
