package compression

import "github.com/prometheus/client_golang/prometheus"

var (
	poolGets = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sa_log_shipper_compression_pool_gets_total",
		Help: "Pool.Get() calls for gzip writers",
	})
	poolPuts = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sa_log_shipper_compression_pool_puts_total",
		Help: "Pool.Put() calls for gzip writers",
	})
	poolNews = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sa_log_shipper_compression_pool_new_total",
		Help: "New gzip writers created (pool miss)",
	})
	poolDiscards = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sa_log_shipper_compression_pool_discards_total",
		Help: "gzip writers discarded after a write error",
	})
)

func init() {
	prometheus.MustRegister(poolGets, poolPuts, poolNews, poolDiscards)
}
