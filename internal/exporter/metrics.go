package exporter

import "github.com/prometheus/client_golang/prometheus"

var (
	batchesSentTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sa_log_shipper_batches_sent_total",
		Help: "Total number of batches delivered to a collector",
	})

	sendAttemptsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sa_log_shipper_send_attempts_total",
		Help: "Total number of delivery attempts by result",
	}, []string{"result"})

	sendErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sa_log_shipper_send_errors_total",
		Help: "Total number of failed delivery attempts by error type",
	}, []string{"error_type"})

	allDownTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sa_log_shipper_all_endpoints_down_total",
		Help: "Times a full pass found every endpoint cooling down",
	})

	encodeErrorsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sa_log_shipper_encode_errors_total",
		Help: "Batches dropped because they could not be serialized",
	})

	payloadBytesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sa_log_shipper_payload_bytes_total",
		Help: "Total encoded payload bytes delivered",
	})

	sendDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "sa_log_shipper_send_duration_seconds",
		Help:    "Duration of single delivery attempts",
		Buckets: prometheus.DefBuckets,
	})

	batchSize = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "sa_log_shipper_batch_records",
		Help:    "Records per delivered batch",
		Buckets: prometheus.ExponentialBuckets(1, 2, 12),
	})
)

func init() {
	prometheus.MustRegister(
		batchesSentTotal,
		sendAttemptsTotal,
		sendErrorsTotal,
		allDownTotal,
		encodeErrorsTotal,
		payloadBytesTotal,
		sendDuration,
		batchSize,
	)
}
