package lexgo

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusObserver exports indexing events as Prometheus metrics.
type PrometheusObserver struct {
	FlushesTotal      *prometheus.CounterVec
	FlushDuration     prometheus.Histogram
	FlushedDocsTotal  prometheus.Counter
	FlushedBytesTotal prometheus.Counter
	DeletedDocsTotal  prometheus.Counter
	UpdatedDocsTotal  prometheus.Counter
	ApplyDuration     prometheus.Histogram
	MergesTotal       *prometheus.CounterVec
	MergeDuration     prometheus.Histogram
	CommitsTotal      *prometheus.CounterVec
	CommitGeneration  prometheus.Gauge
	StallsTotal       prometheus.Counter
	StallDuration     prometheus.Histogram
	QueueDepth        *prometheus.GaugeVec
}

// NewPrometheusObserver creates the collectors and registers them with reg,
// or with the default registerer when reg is nil.
func NewPrometheusObserver(reg prometheus.Registerer) *PrometheusObserver {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	o := &PrometheusObserver{
		FlushesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lexgo_flushes_total",
				Help: "Total segment flushes by status.",
			},
			[]string{"status"},
		),
		FlushDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "lexgo_flush_duration_seconds",
				Help:    "Segment flush latency in seconds.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
		),
		FlushedDocsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "lexgo_flushed_docs_total",
				Help: "Total documents written into segments.",
			},
		),
		FlushedBytesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "lexgo_flushed_bytes_total",
				Help: "Total buffer RAM released by flushes.",
			},
		),
		DeletedDocsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "lexgo_deleted_docs_total",
				Help: "Total documents deleted by applied packets.",
			},
		),
		UpdatedDocsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "lexgo_updated_docs_total",
				Help: "Total doc-values updates installed.",
			},
		),
		ApplyDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "lexgo_apply_deletes_duration_seconds",
				Help:    "Latency of resolving buffered deletes and updates.",
				Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
			},
		),
		MergesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lexgo_merges_total",
				Help: "Total merges by status.",
			},
			[]string{"status"},
		),
		MergeDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "lexgo_merge_duration_seconds",
				Help:    "Merge latency in seconds.",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
			},
		),
		CommitsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lexgo_commits_total",
				Help: "Total commits by status.",
			},
			[]string{"status"},
		),
		CommitGeneration: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "lexgo_commit_generation",
				Help: "Generation of the last successful commit.",
			},
		),
		StallsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "lexgo_stalls_total",
				Help: "Total times an indexing goroutine waited for flushes.",
			},
		),
		StallDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "lexgo_stall_duration_seconds",
				Help:    "Time indexing goroutines spent stalled.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
			},
		),
		QueueDepth: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "lexgo_queue_depth",
				Help: "Depth of the writer's internal queues.",
			},
			[]string{"queue"},
		),
	}

	reg.MustRegister(
		o.FlushesTotal,
		o.FlushDuration,
		o.FlushedDocsTotal,
		o.FlushedBytesTotal,
		o.DeletedDocsTotal,
		o.UpdatedDocsTotal,
		o.ApplyDuration,
		o.MergesTotal,
		o.MergeDuration,
		o.CommitsTotal,
		o.CommitGeneration,
		o.StallsTotal,
		o.StallDuration,
		o.QueueDepth,
	)
	return o
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// OnFlush implements MetricsObserver.
func (o *PrometheusObserver) OnFlush(duration time.Duration, docs int, bytes int64, err error) {
	o.FlushesTotal.WithLabelValues(status(err)).Inc()
	o.FlushDuration.Observe(duration.Seconds())
	if err == nil {
		o.FlushedDocsTotal.Add(float64(docs))
		o.FlushedBytesTotal.Add(float64(bytes))
	}
}

// OnApplyDeletes implements MetricsObserver.
func (o *PrometheusObserver) OnApplyDeletes(duration time.Duration, deleted, updated int) {
	o.ApplyDuration.Observe(duration.Seconds())
	o.DeletedDocsTotal.Add(float64(deleted))
	o.UpdatedDocsTotal.Add(float64(updated))
}

// OnMerge implements MetricsObserver.
func (o *PrometheusObserver) OnMerge(duration time.Duration, inputSegments int, outputDocs int, err error) {
	o.MergesTotal.WithLabelValues(status(err)).Inc()
	o.MergeDuration.Observe(duration.Seconds())
}

// OnCommit implements MetricsObserver.
func (o *PrometheusObserver) OnCommit(duration time.Duration, generation uint64, err error) {
	o.CommitsTotal.WithLabelValues(status(err)).Inc()
	if err == nil {
		o.CommitGeneration.Set(float64(generation))
	}
}

// OnStall implements MetricsObserver.
func (o *PrometheusObserver) OnStall(duration time.Duration) {
	o.StallsTotal.Inc()
	o.StallDuration.Observe(duration.Seconds())
}

// OnQueueDepth implements MetricsObserver.
func (o *PrometheusObserver) OnQueueDepth(name string, depth int) {
	o.QueueDepth.WithLabelValues(name).Set(float64(depth))
}

// MetricsHandler returns an http.Handler serving the metrics of g in the
// Prometheus exposition format, or of the default gatherer when g is nil.
func MetricsHandler(g prometheus.Gatherer) http.Handler {
	if g == nil {
		g = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
