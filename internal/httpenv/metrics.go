package httpenv

import (
	"github.com/prometheus/client_golang/prometheus"
)

var rateLimitGaugeVec = prometheus.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: "bankmirror",
	Subsystem: "http",
	Name:      "rate_limit",
	Help:      "Most recently observed X-RateLimit-* header value.",
}, []string{"scope", "field"})

func init() {
	prometheus.MustRegister(rateLimitGaugeVec)
}

// RateLimitGauge records a parsed rate-limit header. scope is the optional
// per-account qualifier (empty for the bare X-RateLimit-* headers), field
// is one of "limit", "remaining", "reset".
func RateLimitGauge(scope, field string, value int) {
	if scope == "" {
		scope = "_"
	}
	rateLimitGaugeVec.WithLabelValues(scope, field).Set(float64(value))
}
