package endpoint

import "github.com/prometheus/client_golang/prometheus"

var (
	endpointAvailable = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "sa_log_shipper_endpoint_available",
		Help: "Whether an endpoint is currently eligible for delivery in a shard's ring (1 = available)",
	}, []string{"shard", "slot", "endpoint"})

	endpointFailuresTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sa_log_shipper_endpoint_failures_total",
		Help: "Total number of delivery attempts that marked an endpoint unavailable",
	}, []string{"endpoint"})

	endpointRecoveriesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sa_log_shipper_endpoint_recoveries_total",
		Help: "Total number of times an endpoint became eligible again after its cooldown",
	}, []string{"endpoint"})
)

func init() {
	prometheus.MustRegister(endpointAvailable)
	prometheus.MustRegister(endpointFailuresTotal)
	prometheus.MustRegister(endpointRecoveriesTotal)
}
