// Package accountant implements the ACCOUNTANT: a metrics collector
// attached to a source or sink via `put(accountant, actor)`, the message
// every dataflow actor's configuration state machine requires to precede
// `run`. It records one metric per recoverable error (per §7's error
// kinds) plus per-actor event/chunk counters, mirroring the teacher's
// prometheus.NewCounterVec/NewGaugeVec declarations in metrics.go.
package accountant

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/corvidlabs/corvid/actorkit"
)

var (
	errorsByKind = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "corvid_recoverable_errors_total",
			Help: "Recoverable errors observed, by error kind and reporting actor.",
		},
		[]string{"kind", "actor"},
	)
	eventsIngested = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "corvid_events_ingested_total",
			Help: "Events sealed into chunks by the importer.",
		},
		[]string{"actor"},
	)
	chunksSealed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "corvid_chunks_sealed_total",
			Help: "Chunks sealed and dispatched to archive/index.",
		},
		[]string{"actor"},
	)
	queryRuntime = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "corvid_query_runtime_seconds",
			Help: "Wall-clock runtime of a completed index query, from run to done.",
		},
		[]string{"actor"},
	)
)

var registerOnce sync.Once

func register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(errorsByKind, eventsIngested, chunksSealed, queryRuntime)
	})
}

// ErrorMsg reports one recoverable error of the given kind (schema, io,
// query, backpressure, actor) observed by the sending actor.
type ErrorMsg struct {
	Kind  string
	Actor string
}

// EventsIngestedMsg reports n events having been sealed into a chunk.
type EventsIngestedMsg struct {
	Actor string
	N     int
}

// ChunkSealedMsg reports one chunk handed off to ARCHIVE/INDEX.
type ChunkSealedMsg struct {
	Actor string
}

// QueryDoneMsg reports a completed query's runtime for the histogram.
type QueryDoneMsg struct {
	Actor   string
	Seconds float64
}

// Spawn starts the accountant actor. Every message type above is handled;
// anything else is ignored rather than treated as a fatal error, since an
// accountant is meant to be an inert observer, not a participant whose
// failure should ever take down the actor that reports to it.
func Spawn() *actorkit.Ref {
	register()
	return actorkit.Spawn("accountant", func(self *actorkit.Ref, msg any) error {
		switch m := msg.(type) {
		case ErrorMsg:
			errorsByKind.WithLabelValues(m.Kind, m.Actor).Inc()
		case EventsIngestedMsg:
			eventsIngested.WithLabelValues(m.Actor).Add(float64(m.N))
		case ChunkSealedMsg:
			chunksSealed.WithLabelValues(m.Actor).Inc()
		case QueryDoneMsg:
			queryRuntime.WithLabelValues(m.Actor).Observe(m.Seconds)
		}
		return nil
	})
}
