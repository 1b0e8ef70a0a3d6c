package auth

import (
	"github.com/prometheus/client_golang/prometheus"
)

var authFailures = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "sa_log_shipper_receiver_auth_failures_total",
		Help: "Requests rejected by receiver authentication, by reason",
	},
	[]string{"reason"},
)

func init() {
	prometheus.MustRegister(authFailures)
}
