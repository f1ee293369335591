package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	OrdersCreated = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "grocery",
		Subsystem: "orders",
		Name:      "created_total",
		Help:      "Total number of orders created.",
	})

	CheckoutFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "grocery",
		Subsystem: "orders",
		Name:      "checkout_failures_total",
		Help:      "Checkout failures by reason.",
	}, []string{"reason"})

	JobsProcessed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "grocery",
		Subsystem: "jobs",
		Name:      "processed_total",
		Help:      "Delayed jobs processed by kind and result.",
	}, []string{"kind", "result"})
)

func init() {
	prometheus.MustRegister(OrdersCreated, CheckoutFailures, JobsProcessed)
}

func Handler() http.Handler {
	return promhttp.Handler()
}
