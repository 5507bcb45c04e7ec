package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "pii_stream"

// PipelineMetrics holds all Prometheus metrics for the producer, transformer and delivery consumer.
type PipelineMetrics struct {
	BatchesTotal       *prometheus.CounterVec
	RecordsTransformed prometheus.Counter
	RecordsRedacted    prometheus.Counter
	BytesTotal         prometheus.Counter
	RecordsProduced    prometheus.Counter
	ProduceErrors      prometheus.Counter
	RecordsDelivered   prometheus.Counter
	RecordsDeadLetter  prometheus.Counter
	WALActive          prometheus.Gauge
	APIKeyCacheHits    prometheus.Counter
	APIKeyCacheMisses  prometheus.Counter
}

// NewPipelineMetrics initializes the metrics and registers them with reg.
// Pass prometheus.DefaultRegisterer to expose them through promhttp.Handler.
func NewPipelineMetrics(reg prometheus.Registerer) *PipelineMetrics {
	factory := promauto.With(reg)
	return &PipelineMetrics{
		BatchesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "transform",
			Name:      "batches_total",
			Help:      "Total number of transform batches by status.",
		}, []string{"status"}), // status: ok, rejected, error_decode, error_size, error_media_type
		RecordsTransformed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "transform",
			Name:      "records_total",
			Help:      "Total number of records returned with result Ok.",
		}),
		RecordsRedacted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "transform",
			Name:      "records_redacted_total",
			Help:      "Total number of records whose sensitive fields were redacted.",
		}),
		BytesTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "transform",
			Name:      "request_bytes_total",
			Help:      "Total number of bytes received by the transform endpoint.",
		}),
		RecordsProduced: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "producer",
			Name:      "records_total",
			Help:      "Total number of records submitted to the ingestion stream.",
		}),
		ProduceErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "producer",
			Name:      "errors_total",
			Help:      "Total number of producer runs that ended with a failure.",
		}),
		RecordsDelivered: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "delivery",
			Name:      "records_total",
			Help:      "Total number of transformed records written to the sink.",
		}),
		RecordsDeadLetter: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "delivery",
			Name:      "dead_letter_records_total",
			Help:      "Total number of records moved to the dead-letter stream.",
		}),
		WALActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "producer",
			Name:      "wal_active_gauge",
			Help:      "Indicates if the Write-Ahead Log is currently active (1 for active, 0 for inactive).",
		}),
		APIKeyCacheHits: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "api_key_cache_hits_total",
			Help:      "Total number of API key cache hits.",
		}),
		APIKeyCacheMisses: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "api_key_cache_misses_total",
			Help:      "Total number of API key cache misses.",
		}),
	}
}
