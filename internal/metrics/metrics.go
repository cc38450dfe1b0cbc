package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	providerReqs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pdfocr",
			Name:      "provider_requests_total",
			Help:      "Total provider requests by provider, model, stage and result",
		},
		[]string{"provider", "model", "stage", "result"},
	)

	providerLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "pdfocr",
			Name:      "provider_request_duration_seconds",
			Help:      "Duration of provider requests by provider and stage",
			Buckets:   []float64{1, 2.5, 5, 10, 20, 40, 80, 160, 300},
		},
		[]string{"provider", "stage"},
	)

	pagesProcessed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pdfocr",
			Name:      "pages_processed_total",
			Help:      "Pages finished by stage and result (ok, resumed)",
		},
		[]string{"stage", "result"},
	)

	retriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pdfocr",
			Name:      "retries_total",
			Help:      "Total inference retries by stage and failure kind",
		},
		[]string{"stage", "kind"},
	)

	fallbacksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pdfocr",
			Name:      "fallbacks_total",
			Help:      "Units that used their fallback after repeated empty responses",
		},
		[]string{"stage"},
	)

	batchLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "pdfocr",
			Name:      "batch_duration_seconds",
			Help:      "Wall time of a batch from render to release",
			Buckets:   prometheus.ExponentialBuckets(5, 2, 10),
		},
	)

	runState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "pdfocr",
			Name:      "run_state",
			Help:      "1 for the state the current run is in, 0 otherwise",
		},
		[]string{"state"},
	)

	registerOnce sync.Once
)

// Init registers collectors. Safe to call more than once.
func Init() {
	registerOnce.Do(func() {
		prometheus.MustRegister(providerReqs, providerLatency, pagesProcessed, retriesTotal, fallbacksTotal, batchLatency, runState)
	})
}

// Handler returns the http.Handler for /metrics
func Handler() http.Handler { return promhttp.Handler() }

func ObserveProvider(provider, model, stage, result string, dur time.Duration) {
	providerReqs.WithLabelValues(provider, model, stage, result).Inc()
	providerLatency.WithLabelValues(provider, stage).Observe(dur.Seconds())
}

func IncProcessed(stage, result string) { pagesProcessed.WithLabelValues(stage, result).Inc() }
func IncRetry(stage, kind string)       { retriesTotal.WithLabelValues(stage, kind).Inc() }
func IncFallback(stage string)          { fallbacksTotal.WithLabelValues(stage).Inc() }
func ObserveBatch(dur time.Duration)    { batchLatency.Observe(dur.Seconds()) }

var knownStates = []string{"INIT", "LOADING_BATCH", "DISPATCHING_OCR", "REORDERING", "CORRECTING", "RELEASING", "FINALIZED", "FAILED"}

// SetState marks state as the current one.
func SetState(state string) {
	for _, s := range knownStates {
		v := 0.0
		if s == state {
			v = 1
		}
		runState.WithLabelValues(s).Set(v)
	}
}
