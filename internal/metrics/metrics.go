// Package metrics exposes load statistics in the Prometheus format. A batch
// job has no scrape endpoint, so the registry is written to a file for the
// node_exporter textfile collector.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"wikistat/internal/domain"
)

// Recorder collects the counters of one process. A nil *Recorder discards
// everything.
type Recorder struct {
	reg *prometheus.Registry

	filesTotal   *prometheus.CounterVec
	rowsInserted prometheus.Counter
	filesSkipped prometheus.Counter
	loadSeconds  prometheus.Histogram
	lastRun      prometheus.Gauge
}

// NewRecorder registers the wikistat metrics on a private registry.
func NewRecorder() *Recorder {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Recorder{
		reg: reg,
		filesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wikistat_files_total",
				Help: "Dump files processed, by outcome status",
			},
			[]string{"status"},
		),
		rowsInserted: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "wikistat_rows_inserted_total",
				Help: "Rows inserted into the analytical store",
			},
		),
		filesSkipped: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "wikistat_files_skipped_total",
				Help: "Candidate files skipped because they were already loaded",
			},
		),
		loadSeconds: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "wikistat_file_load_seconds",
				Help:    "Time spent loading one dump file",
				Buckets: prometheus.ExponentialBuckets(0.5, 2, 12), // 0.5s to ~17min
			},
		),
		lastRun: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "wikistat_last_run_timestamp_seconds",
				Help: "Unix time at which the last load run finished",
			},
		),
	}
}

// Registry returns the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry { return r.reg }

// FileLoaded records one executor call and its outcome.
func (r *Recorder) FileLoaded(status domain.Status, rows int64, elapsed time.Duration) {
	if r == nil {
		return
	}
	r.filesTotal.WithLabelValues(string(status)).Inc()
	r.rowsInserted.Add(float64(rows))
	r.loadSeconds.Observe(elapsed.Seconds())
}

// Skipped records files that needed no work.
func (r *Recorder) Skipped(n int) {
	if r == nil {
		return
	}
	r.filesSkipped.Add(float64(n))
}

// RunFinished sets the last-run timestamp.
func (r *Recorder) RunFinished(t time.Time) {
	if r == nil {
		return
	}
	r.lastRun.Set(float64(t.Unix()))
}

// WriteTextfile writes all metrics to path in the text exposition format.
func (r *Recorder) WriteTextfile(path string) error {
	if r == nil {
		return nil
	}
	return prometheus.WriteToTextfile(path, r.reg)
}
