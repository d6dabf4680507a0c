package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Manager struct {
	// counters
	CounterRequests           *prometheus.CounterVec
	CounterHandleRequestPanic prometheus.Counter
	CounterSessionsStarted    prometheus.Counter
	CounterSessionsFinalized  prometheus.Counter
	CounterSessionsCancelled  prometheus.Counter
	CounterFramesProcessed    prometheus.Counter
	CounterFramesDropped      prometheus.Counter
	CounterFramesOutOfOrder   prometheus.Counter
	CounterRepsCompleted      prometheus.Counter
	CounterPartialAttempts    prometheus.Counter
	CounterTrackingSuspends   prometheus.Counter

	// gauges
	GaugeRequests       prometheus.Gauge
	GaugeActiveSessions prometheus.Gauge
	GaugeLifeSignal     prometheus.Gauge

	// histograms
	HistogramFrameDuration   prometheus.Histogram
	HistogramSessionDuration prometheus.Histogram
	HistogramRequestDuration *prometheus.HistogramVec
}

func NewTestManager() *Manager {
	return NewManager("formcore", "test_server", prometheus.NewRegistry())
}

func NewTestManagerAndRegistry() (*Manager, *prometheus.Registry) {
	reg := prometheus.NewRegistry()
	return NewManager("formcore", "test_server", reg), reg
}

func NewManager(namespace, subsystem string, reg prometheus.Registerer) *Manager {
	factory := promauto.With(reg)

	return &Manager{
		CounterRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "request",
			Help:      "The total number of incoming requests",
		}, []string{"method", "status"}),
		CounterHandleRequestPanic: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "handle_request_panic",
			Help:      "The total number of serve request panics",
		}),
		CounterSessionsStarted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "sessions_started",
			Help:      "The total number of analysis sessions started",
		}),
		CounterSessionsFinalized: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "sessions_finalized",
			Help:      "The total number of analysis sessions finalized",
		}),
		CounterSessionsCancelled: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "sessions_cancelled",
			Help:      "The total number of analysis sessions cancelled",
		}),
		CounterFramesProcessed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "frames_processed",
			Help:      "The total number of landmark frames analyzed",
		}),
		CounterFramesDropped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "frames_dropped",
			Help:      "The total number of frames dropped due to backpressure",
		}),
		CounterFramesOutOfOrder: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "frames_out_of_order",
			Help:      "The total number of frames rejected for stale frame index",
		}),
		CounterRepsCompleted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "reps_completed",
			Help:      "The total number of completed repetitions across sessions",
		}),
		CounterPartialAttempts: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "partial_attempts",
			Help:      "The total number of shallow/incomplete rep attempts",
		}),
		CounterTrackingSuspends: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "tracking_suspends",
			Help:      "The total number of detection-loss suspensions",
		}),
		GaugeRequests: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "requests",
			Help:      "The current number of open connections",
		}),
		GaugeActiveSessions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "active_sessions",
			Help:      "The current number of running analysis sessions",
		}),
		GaugeLifeSignal: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "life_signal",
			Help:      "Whether the service is up and serving",
		}),
		HistogramFrameDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "frame_duration_seconds",
			Help:      "Time spent analyzing a single frame",
			Buckets:   []float64{.0001, .0005, .001, .005, .01, .033, .1},
		}),
		HistogramSessionDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "session_duration_seconds",
			Help:      "Wall time of an analysis session from start to finalize",
			Buckets:   prometheus.DefBuckets,
		}),
		HistogramRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "request_duration_seconds",
			Help:      "Duration of handled HTTP requests",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
	}
}
