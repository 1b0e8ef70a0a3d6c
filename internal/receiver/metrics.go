package receiver

import "github.com/prometheus/client_golang/prometheus"

var (
	receiverErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sa_log_shipper_receiver_errors_total",
		Help: "Total number of receiver errors",
	}, []string{"type"})

	receiverRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sa_log_shipper_receiver_requests_total",
		Help: "Total number of requests or batches received",
	}, []string{"protocol"})

	receiverEventsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sa_log_shipper_receiver_events_total",
		Help: "Total number of events accepted",
	}, []string{"protocol"})
)

func init() {
	prometheus.MustRegister(receiverErrorsTotal)
	prometheus.MustRegister(receiverRequestsTotal)
	prometheus.MustRegister(receiverEventsTotal)

	// Initialize counters with 0 so they appear in /metrics immediately
	for _, t := range []string{"decode", "fields", "decompress", "read", "too_large", "buffer"} {
		receiverErrorsTotal.WithLabelValues(t).Add(0)
	}
	for _, p := range []string{"http", "beats"} {
		receiverRequestsTotal.WithLabelValues(p).Add(0)
		receiverEventsTotal.WithLabelValues(p).Add(0)
	}
}
