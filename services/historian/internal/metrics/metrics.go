package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricPrefix = "historian_"

	ResultSuccess = "success"
	ResultError   = "error"
)

var (
	registerOnce sync.Once

	queueDepth   *prometheus.GaugeVec
	laneBusy     *prometheus.GaugeVec
	runsTotal    *prometheus.CounterVec
	runLatency   *prometheus.HistogramVec
	itemFailures *prometheus.CounterVec
	documents    *prometheus.CounterVec
)

// Init registers the historian metrics with the default registry. It is safe
// to call more than once.
func Init() {
	InitWith(prometheus.DefaultRegisterer)
}

// InitWith registers the metrics with reg. Only the first call has effect.
func InitWith(reg prometheus.Registerer) {
	registerOnce.Do(func() {
		queueDepth = prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: metricPrefix + "queue_depth",
				Help: "Pending entries per lane",
			},
			[]string{"lane"},
		)
		laneBusy = prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: metricPrefix + "lane_busy",
				Help: "1 while a lane runs a job",
			},
			[]string{"lane"},
		)
		runsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "runs_total",
				Help: "Finished runs by lane and result",
			},
			[]string{"lane", "result"},
		)
		runLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "run_duration_seconds",
				Help:    "Run duration in seconds",
				Buckets: []float64{1, 5, 15, 60, 300, 900, 1800, 3600, 7200},
			},
			[]string{"lane"},
		)
		itemFailures = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "item_failures_total",
				Help: "Skipped files or dates by lane and error kind",
			},
			[]string{"lane", "kind"},
		)
		documents = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "documents_written_total",
				Help: "Documents written by kind",
			},
			[]string{"kind"},
		)

		reg.MustRegister(queueDepth, laneBusy, runsTotal, runLatency, itemFailures, documents)
	})
}

// SetQueueDepth records the pending entries of a lane.
func SetQueueDepth(lane string, depth int) {
	if queueDepth == nil {
		return
	}
	queueDepth.WithLabelValues(lane).Set(float64(depth))
}

// SetLaneBusy records whether a lane is running.
func SetLaneBusy(lane string, busy bool) {
	if laneBusy == nil {
		return
	}
	v := 0.0
	if busy {
		v = 1
	}
	laneBusy.WithLabelValues(lane).Set(v)
}

// ObserveRun records a finished run.
func ObserveRun(lane, result string, duration time.Duration) {
	if runsTotal == nil {
		return
	}
	runsTotal.WithLabelValues(lane, result).Inc()
	runLatency.WithLabelValues(lane).Observe(duration.Seconds())
}

// IncItemFailure counts one skipped file or date.
func IncItemFailure(lane, kind string) {
	if itemFailures == nil {
		return
	}
	itemFailures.WithLabelValues(lane, kind).Inc()
}

// AddDocuments counts written documents of a kind ("history", "average").
func AddDocuments(kind string, n int) {
	if documents == nil || n <= 0 {
		return
	}
	documents.WithLabelValues(kind).Add(float64(n))
}
