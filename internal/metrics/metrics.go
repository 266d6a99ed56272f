package metrics

import (
	"context"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Registry holds all Prometheus metrics.
type Registry struct {
	*prometheus.Registry

	runsTotal      *prometheus.CounterVec
	runDuration    *prometheus.HistogramVec
	membersTotal   *prometheus.CounterVec
	bytesTotal     *prometheus.CounterVec
	deadlineStops  prometheus.Counter
	archiveEntries prometheus.Gauge
}

// NewRegistry creates a new metrics registry with all metrics registered.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()

	// Register Go runtime metrics
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	r := &Registry{
		Registry: reg,

		runsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "s3zip_runs_total",
				Help: "Total number of function invocations",
			},
			[]string{"handler", "status_code", "status"},
		),

		runDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "s3zip_run_duration_seconds",
				Help:    "Invocation duration in seconds",
				Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 900},
			},
			[]string{"handler"},
		),

		membersTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "s3zip_members_total",
				Help: "Archive members processed, by outcome",
			},
			[]string{"handler", "outcome"},
		),

		bytesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "s3zip_bytes_total",
				Help: "Bytes moved to or from object storage",
			},
			[]string{"direction"},
		),

		deadlineStops: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "s3zip_deadline_stops_total",
				Help: "Extractions stopped early to respect the execution budget",
			},
		),

		archiveEntries: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "s3zip_archive_entries",
				Help: "Number of entries in the last archive handled",
			},
		),
	}

	reg.MustRegister(r.runsTotal)
	reg.MustRegister(r.runDuration)
	reg.MustRegister(r.membersTotal)
	reg.MustRegister(r.bytesTotal)
	reg.MustRegister(r.deadlineStops)
	reg.MustRegister(r.archiveEntries)

	return r
}

// RecordRun records a finished invocation.
func (r *Registry) RecordRun(handler string, status int, duration float64) {
	r.runsTotal.WithLabelValues(handler, strconv.Itoa(status), statusToString(status)).Inc()
	r.runDuration.WithLabelValues(handler).Observe(duration)
}

// RecordMember records the outcome of one archive member.
func (r *Registry) RecordMember(handler, outcome string) {
	r.membersTotal.WithLabelValues(handler, outcome).Inc()
}

// AddDownloaded adds bytes read from object storage.
func (r *Registry) AddDownloaded(n int64) {
	r.bytesTotal.WithLabelValues("download").Add(float64(n))
}

// AddUploaded adds bytes written to object storage.
func (r *Registry) AddUploaded(n int64) {
	r.bytesTotal.WithLabelValues("upload").Add(float64(n))
}

// RecordDeadlineStop records an extraction cut short by the budget.
func (r *Registry) RecordDeadlineStop() {
	r.deadlineStops.Inc()
}

// SetArchiveEntries sets the entry count of the current archive.
func (r *Registry) SetArchiveEntries(n int) {
	r.archiveEntries.Set(float64(n))
}

// Push sends every metric to a Prometheus Pushgateway. Functions are not
// scrapeable, so this is how their metrics leave the process.
func (r *Registry) Push(ctx context.Context, url, job string) error {
	return push.New(url, job).Gatherer(r.Registry).PushContext(ctx)
}

func statusToString(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	case status >= 200:
		return "2xx"
	default:
		return "1xx"
	}
}
