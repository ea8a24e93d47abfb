package observer

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var eventsDropped = promauto.NewCounter(
	prometheus.CounterOpts{
		Name: "chainobserver_observer_subscriber_events_dropped_total",
		Help: "Total number of ChainEvents dropped because a subscriber's buffer was full",
	},
)

func eventsDroppedInc() {
	eventsDropped.Inc()
}
