// Package metrics метрики Prometheus сервиса.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "odds_notifier"

// Metrics набор метрик сервиса.
type Metrics struct {
	feedFetchesTotal     *prometheus.CounterVec
	staleServesTotal     prometheus.Counter
	notificationsTotal   *prometheus.CounterVec
	ledgerMutationsTotal *prometheus.CounterVec
	paymentsSettledTotal *prometheus.CounterVec
	jobDuration          *prometheus.HistogramVec
}

// New регистрирует метрики в reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		feedFetchesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "fetches_total",
			Help:      "Upstream odds feed fetches by result.",
		}, []string{"result"}),

		staleServesTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "stale_serves_total",
			Help:      "Snapshots served from an expired cache after a failed refresh.",
		}),

		notificationsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notifications",
			Name:      "published_total",
			Help:      "Notifications published to the transport by kind and result.",
		}, []string{"kind", "result"}),

		ledgerMutationsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "mutations_total",
			Help:      "Entitlement mutations by operation and result.",
		}, []string{"op", "result"}),

		paymentsSettledTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "payments",
			Name:      "settled_total",
			Help:      "Payment links settled by confirmation path.",
		}, []string{"path"}),

		jobDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "job_duration_seconds",
			Help:      "Duration of scheduled jobs in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"job"}),
	}
}

func result(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}

// FeedFetch учитывает обращение к фиду.
func (m *Metrics) FeedFetch(ok bool) {
	m.feedFetchesTotal.WithLabelValues(result(ok)).Inc()
}

// StaleServe учитывает отдачу устаревшего снимка.
func (m *Metrics) StaleServe() {
	m.staleServesTotal.Inc()
}

// Notification учитывает публикацию уведомления.
func (m *Metrics) Notification(kind string, ok bool) {
	m.notificationsTotal.WithLabelValues(kind, result(ok)).Inc()
}

// LedgerMutation учитывает мутацию подписки.
func (m *Metrics) LedgerMutation(op string, ok bool) {
	m.ledgerMutationsTotal.WithLabelValues(op, result(ok)).Inc()
}

// PaymentSettled учитывает оплаченную ссылку.
func (m *Metrics) PaymentSettled(path string) {
	m.paymentsSettledTotal.WithLabelValues(path).Inc()
}

// ObserveJob фиксирует длительность задачи планировщика.
func (m *Metrics) ObserveJob(job string, d time.Duration) {
	m.jobDuration.WithLabelValues(job).Observe(d.Seconds())
}
