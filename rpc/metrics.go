package rpc

import (
	"github.com/juju/errors"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts what the reader loop sees. A fresh set is created per Conn
// unless one is shared with WithMetrics; nothing is exported until Register
// is called.
type Metrics struct {
	Calls                prometheus.Counter
	CallErrors           prometheus.Counter
	UnknownResponses     prometheus.Counter
	Notifications        prometheus.Counter
	DroppedNotifications prometheus.Counter
	PeerRequests         prometheus.Counter
	Pending              prometheus.Gauge
}

func NewMetrics() *Metrics {
	counter := func(name, help string) prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "nvim_rpc",
			Name:      name,
			Help:      help,
		})
	}
	return &Metrics{
		Calls:                counter("calls_total", "Requests written to the transport."),
		CallErrors:           counter("call_errors_total", "Responses carrying an error from the peer."),
		UnknownResponses:     counter("unknown_responses_total", "Responses whose id matched no pending call."),
		Notifications:        counter("notifications_total", "Notifications received from the peer."),
		DroppedNotifications: counter("dropped_notifications_total", "Notifications dropped because the inbox was full."),
		PeerRequests:         counter("peer_requests_total", "Requests from the peer, which are rejected."),
		Pending: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "nvim_rpc",
			Name:      "pending_calls",
			Help:      "Calls waiting for a response.",
		}),
	}
}

// Register exports the metrics.
func (m *Metrics) Register(r prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{
		m.Calls, m.CallErrors, m.UnknownResponses, m.Notifications,
		m.DroppedNotifications, m.PeerRequests, m.Pending,
	} {
		if err := r.Register(c); err != nil {
			return errors.Annotate(err, "registering rpc metrics")
		}
	}
	return nil
}
