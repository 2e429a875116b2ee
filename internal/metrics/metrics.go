package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	commandsHandled = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "donna",
			Name:      "commands_handled_total",
			Help:      "Count of inbound commands handled by command.",
		},
		[]string{"command"},
	)

	calendarsLinked = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "donna",
			Name:      "calendars_linked_total",
			Help:      "Count of completed calendar link callbacks.",
		},
	)
)

// Register registers metrics (idempotent).
func Register() {
	once.Do(func() {
		prometheus.MustRegister(commandsHandled, calendarsLinked)
	})
}

func IncCommand(command string) {
	commandsHandled.WithLabelValues(command).Inc()
}

func IncCalendarLinked() {
	calendarsLinked.Inc()
}
