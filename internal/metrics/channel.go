package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ChannelClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "didit_channel_clients",
		Help: "Number of connected method channel clients",
	})

	ChannelInvocationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "didit_channel_invocations_total",
		Help: "Method channel invocations by transport and method",
	}, []string{"transport", "method"})

	ChannelDroppedClientsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "didit_channel_dropped_clients_total",
		Help: "Clients disconnected because they could not keep up with broadcasts",
	})
)

// IncInvocation records a method channel call.
func IncInvocation(transport, method string) {
	if method == "" {
		method = "unknown"
	}
	ChannelInvocationsTotal.WithLabelValues(transport, method).Inc()
}
