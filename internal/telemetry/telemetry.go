package telemetry

import (
	"log/slog"
	"net/http"
	"os"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ObjectsReplicated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "entityview_objects_replicated_total",
			Help: "Replica rows deleted or inserted while applying change batches",
		},
		[]string{"type", "op"},
	)
	ReconcileRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "entityview_reconcile_runs_total",
			Help: "Reconciliation attempts by result",
		},
		[]string{"result"},
	)
	ReconcileChanges = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "entityview_reconcile_changes_total",
			Help: "Drift detected by reconciliation",
		},
		[]string{"type", "change"},
	)
	MessagesPublished = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "entityview_messages_published_total",
			Help: "Change messages published to the replication queue",
		},
	)
	QueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "entityview_replication_queue_depth",
			Help: "Approximate number of messages on the replication queue",
		},
	)
	BatchSize = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "entityview_batch_size",
			Help:    "Distribution of replicated batch sizes",
			Buckets: []float64{1, 10, 100, 500, 1000, 5000},
		},
		[]string{"sink"},
	)
	SinkLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "entityview_sink_latency_seconds",
			Help: "Latency of replica writes",
		},
		[]string{"sink"},
	)
	LagBytes = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "entityview_capture_lag_bytes",
			Help: "Estimated lag in bytes behind the truth WAL",
		},
	)
)

var registerOnce sync.Once

func register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(ObjectsReplicated)
		prometheus.MustRegister(ReconcileRuns)
		prometheus.MustRegister(ReconcileChanges)
		prometheus.MustRegister(MessagesPublished)
		prometheus.MustRegister(QueueDepth)
		prometheus.MustRegister(BatchSize)
		prometheus.MustRegister(SinkLatency)
		prometheus.MustRegister(LagBytes)
	})
}

// Init registers the metrics and serves them on addr.
func Init(addr string) {
	register()

	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		slog.Info("Starting telemetry server", "address", addr)
		if err := http.ListenAndServe(addr, mux); err != nil {
			slog.Error("Telemetry server failed", "error", err)
		}
	}()
}

// InitLogger installs the default slog logger. format is "json" or "text".
func InitLogger(level, format string) {
	opts := &slog.HandlerOptions{Level: ParseLevel(level)}

	var handler slog.Handler
	if strings.EqualFold(format, "text") {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}

// ParseLevel maps debug, info, warn/warning and error to slog levels,
// defaulting to info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
