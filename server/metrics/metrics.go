package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	Connections = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "jumper_connections",
		Help: "Live websocket connections.",
	})
	Rooms = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "jumper_rooms",
		Help: "Rooms currently registered, by level.",
	}, []string{"level"})
	QueueDepth = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "jumper_queue_depth",
		Help: "Players waiting for a slot, by level.",
	}, []string{"level"})
	RoomTransitions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "jumper_room_transitions_total",
		Help: "Room phase transitions.",
	}, []string{"to", "cause"})
	DroppedTerminations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "jumper_dropped_terminations_total",
		Help: "Room terminations that never reached the ledger.",
	}, []string{"reason"})
	LedgerWrites = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "jumper_ledger_writes_total",
		Help: "Result submissions to the ledger.",
	}, []string{"method", "result"})
	LedgerEvents = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "jumper_ledger_events_total",
		Help: "Contract events received.",
	}, []string{"kind"})
)

// Register adds every collector to reg.
func Register(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{
		Connections, Rooms, QueueDepth, RoomTransitions, DroppedTerminations, LedgerWrites, LedgerEvents,
	} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}
