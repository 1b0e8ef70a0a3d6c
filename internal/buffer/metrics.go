package buffer

import "github.com/prometheus/client_golang/prometheus"

var (
	bufferedRecords = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "sa_log_shipper_buffer_records",
		Help: "Records held by a shard, pending or in flight",
	}, []string{"shard"})

	receivedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sa_log_shipper_buffer_received_total",
		Help: "Total number of records accepted by a shard",
	}, []string{"shard"})

	backpressureWaitsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sa_log_shipper_buffer_backpressure_waits_total",
		Help: "Receives that found their shard full and had to wait",
	}, []string{"shard"})

	lastFlushTimestamp = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "sa_log_shipper_buffer_last_flush_timestamp_seconds",
		Help: "Unix time of the last completed flush of a shard",
	}, []string{"shard"})

	flushesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sa_log_shipper_buffer_flushes_total",
		Help: "Flushes started, by trigger",
	}, []string{"trigger"})
)

func init() {
	prometheus.MustRegister(bufferedRecords, receivedTotal, backpressureWaitsTotal, lastFlushTimestamp, flushesTotal)
}
