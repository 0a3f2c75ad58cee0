package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus metrics of a ledger run. Every Metrics owns its
// registry, so several replays (tests, the serve command) never collide.
type Metrics struct {
	Registry *prometheus.Registry

	// --- Replay ---
	TransactionsReplayed *prometheus.CounterVec
	FlowsMaterialized    *prometheus.CounterVec
	Valuations           prometheus.Counter
	Settlements          prometheus.Counter
	Checkpoints          *prometheus.CounterVec
	ReplayDuration       prometheus.Histogram
	ReplayErrors         *prometheus.CounterVec

	// --- Ledger ---
	OperationsCommitted *prometheus.CounterVec
	EntriesPosted       *prometheus.CounterVec
	CommitFailures      *prometheus.CounterVec
	LastOperation       *prometheus.GaugeVec

	// --- Export ---
	ExportedOperations prometheus.Counter
	ExportedEntries    prometheus.Counter
	ExportErrors       *prometheus.CounterVec
	ExportBatchDur     prometheus.Histogram
	PublishedMessages  prometheus.Counter
	PublishErrors      prometheus.Counter

	// --- Query API ---
	QueryRequests *prometheus.CounterVec
	QueryDuration *prometheus.HistogramVec
}

// NewMetrics creates the metrics on a fresh registry that also carries the Go
// runtime and process collectors.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	replayBuckets := []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30}
	queryBuckets := []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5}

	return &Metrics{
		Registry: reg,

		TransactionsReplayed: f.NewCounterVec(prometheus.CounterOpts{
			Name: "pledger_transactions_replayed_total",
			Help: "Transactions replayed, by type",
		}, []string{"type"}),

		FlowsMaterialized: f.NewCounterVec(prometheus.CounterOpts{
			Name: "pledger_flows_materialized_total",
			Help: "Dividend, coupon and redemption flows paid into cash",
		}, []string{"flow_type"}),

		Valuations: f.NewCounter(prometheus.CounterOpts{
			Name: "pledger_valuations_total",
			Help: "Period-end lot valuations booked",
		}),

		Settlements: f.NewCounter(prometheus.CounterOpts{
			Name: "pledger_futures_settlements_total",
			Help: "Futures mark-to-market settlements booked",
		}),

		Checkpoints: f.NewCounterVec(prometheus.CounterOpts{
			Name: "pledger_checkpoints_total",
			Help: "Period checkpoints run (month_end, year_end)",
		}, []string{"kind"}),

		ReplayDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "pledger_replay_duration_seconds",
			Help:    "Wall time of a full replay",
			Buckets: replayBuckets,
		}),

		ReplayErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "pledger_replay_errors_total",
			Help: "Replays aborted, by error kind",
		}, []string{"kind"}),

		OperationsCommitted: f.NewCounterVec(prometheus.CounterOpts{
			Name: "pledger_operations_committed_total",
			Help: "Balanced operations committed, by book",
		}, []string{"book"}),

		EntriesPosted: f.NewCounterVec(prometheus.CounterOpts{
			Name: "pledger_entries_posted_total",
			Help: "Account entries posted, by book and account type",
		}, []string{"book", "account_type"}),

		CommitFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "pledger_commit_failures_total",
			Help: "Commits rejected for not adding up to zero",
		}, []string{"book"}),

		LastOperation: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "pledger_last_operation_index",
			Help: "Index of the latest committed operation",
		}, []string{"book"}),

		ExportedOperations: f.NewCounter(prometheus.CounterOpts{
			Name: "pledger_export_operations_total",
			Help: "Operations written to Postgres",
		}),

		ExportedEntries: f.NewCounter(prometheus.CounterOpts{
			Name: "pledger_export_entries_total",
			Help: "Account entries written to Postgres",
		}),

		ExportErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "pledger_export_errors_total",
			Help: "Failed export batches, by stage",
		}, []string{"stage"}),

		ExportBatchDur: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "pledger_export_batch_duration_seconds",
			Help:    "Time to write one export batch",
			Buckets: queryBuckets,
		}),

		PublishedMessages: f.NewCounter(prometheus.CounterOpts{
			Name: "pledger_publish_messages_total",
			Help: "Operations published to NATS JetStream",
		}),

		PublishErrors: f.NewCounter(prometheus.CounterOpts{
			Name: "pledger_publish_errors_total",
			Help: "Failed JetStream publishes",
		}),

		QueryRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "pledger_query_requests_total",
			Help: "Query API requests",
		}, []string{"endpoint", "status"}),

		QueryDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "pledger_query_duration_seconds",
			Help:    "Query API request duration",
			Buckets: queryBuckets,
		}, []string{"endpoint"}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
}
