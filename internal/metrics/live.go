package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// LiveMetrics contains the metrics of live voice sessions.
type LiveMetrics struct {
	Sessions       *prometheus.CounterVec
	Active         prometheus.Gauge
	BlocksSent     prometheus.Counter
	ChunksReceived prometheus.Counter
	Interruptions  prometheus.Counter
	DroppedFrames  prometheus.Counter
	Turns          prometheus.Counter
}

// NewLiveMetrics creates and registers the live session metrics.
func NewLiveMetrics(registry *prometheus.Registry) (*LiveMetrics, error) {
	m := &LiveMetrics{}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register live metrics: %w", err)
	}
	return m, nil
}

func (m *LiveMetrics) initMetrics() {
	m.Sessions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "live_sessions_total",
		Help: "Total number of live sessions by how they ended",
	}, []string{"outcome"})

	m.Active = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "live_session_active",
		Help: "Whether a live session is currently open (1) or not (0)",
	})

	m.BlocksSent = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "live_audio_blocks_sent_total",
		Help: "Total number of captured audio blocks sent to the endpoint",
	})

	m.ChunksReceived = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "live_audio_chunks_received_total",
		Help: "Total number of model audio chunks scheduled for playback",
	})

	m.Interruptions = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "live_interruptions_total",
		Help: "Total number of model turns interrupted by the caller",
	})

	m.DroppedFrames = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "live_capture_dropped_frames_total",
		Help: "Total number of captured frames dropped because the send queue was full",
	})

	m.Turns = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "live_turns_completed_total",
		Help: "Total number of completed conversation turns",
	})
}

// Describe implements prometheus.Collector.
func (m *LiveMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.Sessions.Describe(ch)
	m.Active.Describe(ch)
	m.BlocksSent.Describe(ch)
	m.ChunksReceived.Describe(ch)
	m.Interruptions.Describe(ch)
	m.DroppedFrames.Describe(ch)
	m.Turns.Describe(ch)
}

// Collect implements prometheus.Collector.
func (m *LiveMetrics) Collect(ch chan<- prometheus.Metric) {
	m.Sessions.Collect(ch)
	m.Active.Collect(ch)
	m.BlocksSent.Collect(ch)
	m.ChunksReceived.Collect(ch)
	m.Interruptions.Collect(ch)
	m.DroppedFrames.Collect(ch)
	m.Turns.Collect(ch)
}

// SessionStarted marks a session as open.
func (m *LiveMetrics) SessionStarted() {
	if m == nil {
		return
	}
	m.Active.Set(1)
}

// SessionEnded records how a session ended.
func (m *LiveMetrics) SessionEnded(outcome string) {
	if m == nil {
		return
	}
	m.Active.Set(0)
	m.Sessions.WithLabelValues(outcome).Inc()
}

// IncrementBlocksSent counts one transmitted capture block.
func (m *LiveMetrics) IncrementBlocksSent() {
	if m == nil {
		return
	}
	m.BlocksSent.Inc()
}

// IncrementChunksReceived counts one scheduled model chunk.
func (m *LiveMetrics) IncrementChunksReceived() {
	if m == nil {
		return
	}
	m.ChunksReceived.Inc()
}

// IncrementInterruptions counts a barge-in.
func (m *LiveMetrics) IncrementInterruptions() {
	if m == nil {
		return
	}
	m.Interruptions.Inc()
}

// AddDroppedFrames counts captured frames that were discarded.
func (m *LiveMetrics) AddDroppedFrames(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.DroppedFrames.Add(float64(n))
}

// IncrementTurns counts a completed turn.
func (m *LiveMetrics) IncrementTurns() {
	if m == nil {
		return
	}
	m.Turns.Inc()
}
