package stats

import "github.com/prometheus/client_golang/prometheus"

var (
	recordsReceivedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sa_log_shipper_records_received_total",
		Help: "Total number of records handed to the shipper",
	})

	recordsSentTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sa_log_shipper_records_sent_total",
		Help: "Total number of records delivered, by endpoint",
	}, []string{"endpoint"})

	parseErrorsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sa_log_shipper_parse_errors_total",
		Help: "Total number of records dropped because they could not be parsed",
	})

	sendSpeed = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "sa_log_shipper_send_speed_records_per_second",
		Help: "Records sent per second over the last report window",
	})

	distinctSources = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "sa_log_shipper_distinct_sources",
		Help: "Estimated number of distinct log sources seen",
	})
)

func init() {
	prometheus.MustRegister(
		recordsReceivedTotal,
		recordsSentTotal,
		parseErrorsTotal,
		sendSpeed,
		distinctSources,
	)
}
