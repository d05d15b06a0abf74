package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	EventsEmitted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "agentsmith_events_emitted_total",
		Help: "Events accepted by emit, by kind (broadcast or targeted).",
	}, []string{"kind"})

	MessagesDelivered = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "agentsmith_mailbox_messages_delivered_total",
		Help: "Targeted events drained into emit responses.",
	})

	ActiveStreams = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "agentsmith_active_streams",
		Help: "Currently open event streams.",
	})
	StreamsClosed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "agentsmith_streams_closed_total",
		Help: "Closed event streams, by reason.",
	}, []string{"reason"})

	BusHandlerPanics = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "agentsmith_bus_handler_panics_total",
		Help: "Bus handler panics recovered during publish.",
	})

	SweptEvents = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "agentsmith_swept_events_total",
		Help: "Expired events deleted by the sweeper.",
	})
	SweepErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "agentsmith_sweep_errors_total",
		Help: "Sweeper runs that failed.",
	})

	MirrorErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "agentsmith_mirror_publish_errors_total",
		Help: "Failures mirroring broadcast events to NATS.",
	})
)

var registerOnce sync.Once

// Register adds every collector to the default Prometheus registry. It is
// safe to call more than once.
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			EventsEmitted, MessagesDelivered,
			ActiveStreams, StreamsClosed,
			BusHandlerPanics,
			SweptEvents, SweepErrors,
			MirrorErrors,
		)
	})
}

// ObserveSweep records the result of one sweeper run.
func ObserveSweep(deleted int64, err error) {
	if err != nil {
		SweepErrors.Inc()
		return
	}
	SweptEvents.Add(float64(deleted))
}
