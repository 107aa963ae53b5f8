package voice

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	wsConnectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "aria_ws_connections_active",
		Help: "Authenticated websocket connections currently tracked.",
	})

	wsStreamsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "aria_ws_streams_active",
		Help: "Audio streams currently being assembled.",
	})

	wsEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "aria_ws_events_total",
		Help: "Inbound protocol events by type.",
	}, []string{"type"})

	wsCommandsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "aria_ws_commands_total",
		Help: "Coordinator command executions by outcome.",
	}, []string{"outcome"})
)
