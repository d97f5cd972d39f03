// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Ingestion metrics
	HashesReceived     prometheus.Counter
	BatchesResolved    prometheus.Counter
	TxResolved         prometheus.Counter
	AlphaMatches       prometheus.Counter
	StreamReconnects   prometheus.Counter
	IntentsDecoded     *prometheus.CounterVec
	IntentQueueDepth   prometheus.Gauge
	DecodeRejections   *prometheus.CounterVec
	BatchResolveErrors prometheus.Counter
	DetectionLatency   prometheus.Histogram

	// Validation metrics
	ValidationsRun      prometheus.Counter
	ValidationRejected  *prometheus.CounterVec
	ValidationCacheHits prometheus.Counter

	// Trading metrics
	TradesExecuted  *prometheus.CounterVec
	TradesDeclined  *prometheus.CounterVec
	PositionsOpen   prometheus.Gauge
	Capital         prometheus.Gauge
	RealizedPnL     prometheus.Gauge
	PositionsClosed *prometheus.CounterVec

	// Gateway metrics
	GatewayRequestLatency *prometheus.HistogramVec
	GatewayRateLimited    prometheus.Counter

	// Health metrics
	LastHashReceived prometheus.Gauge
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "alpha_mirror"
	}

	return &Metrics{
		HashesReceived: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "hashes_received_total",
			Help:      "Total number of pending transaction hashes received",
		}),
		BatchesResolved: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "batches_resolved_total",
			Help:      "Total number of hash batches resolved over RPC",
		}),
		TxResolved: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "transactions_resolved_total",
			Help:      "Total number of pending transactions resolved",
		}),
		AlphaMatches: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "alpha_matches_total",
			Help:      "Total number of transactions matched to tracked wallets",
		}),
		StreamReconnects: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "stream_reconnects_total",
			Help:      "Total number of WebSocket reconnect attempts",
		}),
		IntentsDecoded: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "intents_decoded_total",
			Help:      "Total number of trade intents decoded by direction",
		}, []string{"direction"}),
		IntentQueueDepth: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "intent_queue_depth",
			Help:      "Current number of intents waiting for a worker",
		}),
		DecodeRejections: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "decode_rejections_total",
			Help:      "Total number of transactions rejected by the decoder",
		}, []string{"reason"}),
		BatchResolveErrors: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "batch_resolve_errors_total",
			Help:      "Total number of failed batch resolutions",
		}),
		DetectionLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "detection_latency_seconds",
			Help:      "Time from batch flush to decoded intents in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
		}),

		ValidationsRun: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "validation",
			Name:      "runs_total",
			Help:      "Total number of validation pipelines executed",
		}),
		ValidationRejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "validation",
			Name:      "rejected_total",
			Help:      "Total number of tokens rejected by check",
		}, []string{"check"}),
		ValidationCacheHits: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "validation",
			Name:      "cache_hits_total",
			Help:      "Total number of validation verdicts served from cache",
		}),

		TradesExecuted: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "trading",
			Name:      "trades_executed_total",
			Help:      "Total number of executed trades by action",
		}, []string{"action"}),
		TradesDeclined: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "trading",
			Name:      "trades_declined_total",
			Help:      "Total number of declined buy attempts by reason",
		}, []string{"reason"}),
		PositionsOpen: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "trading",
			Name:      "positions_open",
			Help:      "Current number of open positions",
		}),
		Capital: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "trading",
			Name:      "capital",
			Help:      "Free capital not committed to positions",
		}),
		RealizedPnL: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "trading",
			Name:      "realized_pnl",
			Help:      "Cumulative realized profit and loss",
		}),
		PositionsClosed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "trading",
			Name:      "positions_closed_total",
			Help:      "Total number of positions closed by exit reason",
		}, []string{"reason"}),

		GatewayRequestLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "gateway",
			Name:      "request_latency_seconds",
			Help:      "DEX gateway request latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"endpoint"}),
		GatewayRateLimited: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gateway",
			Name:      "rate_limited_total",
			Help:      "Total number of rate-limited gateway responses",
		}),

		LastHashReceived: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_hash_received_timestamp",
			Help:      "Unix timestamp of the last pending hash received",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
