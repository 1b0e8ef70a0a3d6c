package ingest

import "github.com/prometheus/client_golang/prometheus"

var newSourcesTotal = prometheus.NewCounter(prometheus.CounterOpts{
	Name: "sa_log_shipper_ingest_new_sources_total",
	Help: "Sources seen for the first time",
})

func init() {
	prometheus.MustRegister(newSourcesTotal)
}
