package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// AnalysisMetrics contains the metrics of recommendation requests.
type AnalysisMetrics struct {
	Requests     *prometheus.CounterVec
	Duration     prometheus.Histogram
	Corrections  prometheus.Counter
	Saved        prometheus.Counter
	ImageSize    prometheus.Histogram
	NotifyErrors prometheus.Counter
}

// NewAnalysisMetrics creates and registers the analysis metrics.
func NewAnalysisMetrics(registry *prometheus.Registry) (*AnalysisMetrics, error) {
	m := &AnalysisMetrics{}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register analysis metrics: %w", err)
	}
	return m, nil
}

func (m *AnalysisMetrics) initMetrics() {
	m.Requests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "analysis_requests_total",
		Help: "Total number of analysis requests by outcome",
	}, []string{"result"})

	m.Duration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "analysis_request_duration_seconds",
		Help:    "Duration of recommendation calls in seconds",
		Buckets: prometheus.ExponentialBuckets(0.25, 2, 8),
	})

	m.Corrections = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "analysis_product_corrections_total",
		Help: "Total number of recommendations replaced by the default product",
	})

	m.Saved = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "analysis_saved_total",
		Help: "Total number of analyses saved to the report",
	})

	m.ImageSize = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "analysis_image_size_bytes",
		Help:    "Size of submitted images in bytes",
		Buckets: prometheus.ExponentialBuckets(16*1024, 2, 10),
	})

	m.NotifyErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "analysis_notify_errors_total",
		Help: "Total number of failed save notifications",
	})
}

// Describe implements prometheus.Collector.
func (m *AnalysisMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.Requests.Describe(ch)
	m.Duration.Describe(ch)
	m.Corrections.Describe(ch)
	m.Saved.Describe(ch)
	m.ImageSize.Describe(ch)
	m.NotifyErrors.Describe(ch)
}

// Collect implements prometheus.Collector.
func (m *AnalysisMetrics) Collect(ch chan<- prometheus.Metric) {
	m.Requests.Collect(ch)
	m.Duration.Collect(ch)
	m.Corrections.Collect(ch)
	m.Saved.Collect(ch)
	m.ImageSize.Collect(ch)
	m.NotifyErrors.Collect(ch)
}

// ObserveRequest records one finished request. result is "success" or an
// error category.
func (m *AnalysisMetrics) ObserveRequest(result string, d time.Duration) {
	if m == nil {
		return
	}
	m.Requests.WithLabelValues(result).Inc()
	m.Duration.Observe(d.Seconds())
}

// IncrementCorrections counts a normalized recommendation.
func (m *AnalysisMetrics) IncrementCorrections() {
	if m == nil {
		return
	}
	m.Corrections.Inc()
}

// IncrementSaved counts a saved analysis.
func (m *AnalysisMetrics) IncrementSaved() {
	if m == nil {
		return
	}
	m.Saved.Inc()
}

// ObserveImageSize records the size of a submitted image.
func (m *AnalysisMetrics) ObserveImageSize(n int) {
	if m == nil {
		return
	}
	m.ImageSize.Observe(float64(n))
}

// IncrementNotifyErrors counts a failed notification.
func (m *AnalysisMetrics) IncrementNotifyErrors() {
	if m == nil {
		return
	}
	m.NotifyErrors.Inc()
}
