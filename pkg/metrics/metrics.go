package metrics

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry bundles the service counters exposed on /metrics.
// Counters only; request latency is already visible in the request log.
type Registry struct {
	reg *prometheus.Registry

	WebhookEvents  *prometheus.CounterVec
	BillableCalls  prometheus.Counter
	FailOpenEvents prometheus.Counter
	OverageCharges prometheus.Counter
	NotifyFailures *prometheus.CounterVec
}

func New() *Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewGoCollector())

	m := &Registry{
		reg: reg,
		WebhookEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "webhook_events_total",
			Help: "Provider webhook deliveries by normalized status and result.",
		}, []string{"status", "result"}),
		BillableCalls: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "billable_calls_total",
			Help: "Calls counted against an organization's monthly quota.",
		}),
		FailOpenEvents: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "webhook_fail_open_total",
			Help: "Webhook deliveries processed without an identifiable organization.",
		}),
		OverageCharges: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "overage_charges_total",
			Help: "Overage charges submitted to the payment provider.",
		}),
		NotifyFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "notify_failures_total",
			Help: "Failed side-effect notifications by kind.",
		}, []string{"kind"}),
	}
	reg.MustRegister(m.WebhookEvents, m.BillableCalls, m.FailOpenEvents, m.OverageCharges, m.NotifyFailures)
	return m
}

// Handler exposes the registry in Prometheus text format.
func (m *Registry) Handler() gin.HandlerFunc {
	h := promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}
