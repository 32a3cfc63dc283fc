package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	TicksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "traefik_cname_sync_ticks_total",
			Help: "Total number of reconciliation ticks by result",
		},
		[]string{"result"},
	)

	TickDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "traefik_cname_sync_tick_duration_seconds",
			Help:    "Reconciliation tick duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	RegistrarRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "traefik_cname_sync_registrar_requests_total",
			Help: "Total number of registrar API calls by operation and result",
		},
		[]string{"op", "result"},
	)

	ManagedRecords = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "traefik_cname_sync_managed_records",
			Help: "Number of CNAME records currently managed",
		},
	)

	PendingDeletions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "traefik_cname_sync_pending_deletions",
			Help: "Number of containers with a scheduled deletion",
		},
	)

	ParseWarningsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "traefik_cname_sync_parse_warnings_total",
			Help: "Total number of declared hostnames skipped as invalid",
		},
	)

	RecordsAdoptedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "traefik_cname_sync_records_adopted_total",
			Help: "Total number of existing registrar records taken over instead of created",
		},
	)
)

func init() {
	prometheus.MustRegister(TicksTotal)
	prometheus.MustRegister(TickDuration)
	prometheus.MustRegister(RegistrarRequestsTotal)
	prometheus.MustRegister(ManagedRecords)
	prometheus.MustRegister(PendingDeletions)
	prometheus.MustRegister(ParseWarningsTotal)
	prometheus.MustRegister(RecordsAdoptedTotal)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer measures the duration of an operation.
type Timer struct {
	start time.Time
}

func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}

func (t *Timer) ObserveDuration(o prometheus.Observer) {
	o.Observe(t.Duration().Seconds())
}
