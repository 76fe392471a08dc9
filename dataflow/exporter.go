package dataflow

import (
	"time"

	"github.com/google/uuid"
	logging "github.com/ipfs/go-log/v2"

	"github.com/corvidlabs/corvid/accountant"
	"github.com/corvidlabs/corvid/actorkit"
	"github.com/corvidlabs/corvid/bitstream"
	"github.com/corvidlabs/corvid/chunkstore"
	"github.com/corvidlabs/corvid/event"
	"github.com/corvidlabs/corvid/exprengine"
	"github.com/corvidlabs/corvid/schema"
)

var exporterLog = logging.Logger("dataflow/exporter")

// exporterPhase is one of the five states the specification names for
// EXPORTER: init, idle, waiting, extracting, done.
type exporterPhase int

const (
	phaseInit exporterPhase = iota
	phaseIdle
	phaseWaiting
	phaseExtracting
	phaseDone
)

func (p exporterPhase) String() string {
	switch p {
	case phaseInit:
		return "init"
	case phaseIdle:
		return "idle"
	case phaseWaiting:
		return "waiting"
	case phaseExtracting:
		return "extracting"
	case phaseDone:
		return "done"
	default:
		return "?"
	}
}

// Relay carries one matching event out to a registered sink.
type Relay struct {
	QueryID string
	Event   event.Event
}

// continueExtract is EXPORTER's self-sent re-enqueue message: rather than
// looping over a chunk's events in one long call, it processes one id per
// message and sends itself another continueExtract, yielding fairness on
// the shared worker pool per the specification's suspension-point rule.
type continueExtract struct{}

// exporterState is the EXPORTER actor's private state machine.
type exporterState struct {
	schema *schema.Schema
	expr   *exprengine.Node

	archives []*actorkit.Ref
	indexes  []*actorkit.Ref
	sinks    []*actorkit.Ref
	acct     *actorkit.Ref

	phase   exporterPhase
	queryID string
	reply   *actorkit.Ref

	universe  uint64
	hits      *bitstream.Ewah
	processed *bitstream.Ewah
	queryDone bool

	unbounded bool
	pending   int
	stopping  bool

	lookupInflight bool
	lastPrefetched uint64
	hasPrefetched  bool

	chunk       *chunkstore.Chunk
	chunkEvents []event.Event
	cursor      []uint64 // remaining matching ids in the current chunk, ascending
	resolved    map[string]*exprengine.Node

	start time.Time
}

// SpawnExporter starts the EXPORTER actor for a single query expr against
// s, the schema used to resolve SchemaExtractors per concrete event type.
// Collaborators (archive, index, sink, accountant) are registered via Put
// during init; Run transitions init → idle. window, if non-nil, is applied
// as the time-restriction pre-pass (spec.md §4.4) before expr is ever sent
// to an index or evaluated against an event, pruning sub-expressions a
// "timestamp" extractor can prove false over the interval up front.
func SpawnExporter(s *schema.Schema, expr *exprengine.Node, window *exprengine.Window) *actorkit.Ref {
	if window != nil {
		expr = exprengine.Restrict(expr, *window)
	}
	st := &exporterState{
		schema:   s,
		expr:     expr,
		phase:    phaseInit,
		resolved: make(map[string]*exprengine.Node),
		hits:     &bitstream.Ewah{},
	}

	return actorkit.Spawn("exporter", func(self *actorkit.Ref, msg any) error {
		switch m := msg.(type) {
		case Put:
			st.put(m)
		case Run:
			st.run(self)
		case TaskStarted:
			// Fan-out bookkeeping only; completion is tracked via Done.
		case Hit:
			st.onHit(self, m)
		case Progress:
			// Advisory; EXPORTER does not act on it beyond what the host
			// surfaces via its own progress callback (e.g. cmd/corvidctl's
			// mpb bar), so there is nothing to update here.
		case Done:
			if m.QueryID == st.queryID {
				st.queryDone = true
				st.maybeComplete(self)
			}
		case ChunkArrival:
			st.onChunkArrival(self, m)
		case continueExtract:
			st.stepExtract(self)
		case Extract:
			st.extract(self, m)
		case Stop:
			st.stopping = true
			if st.phase == phaseExtracting {
				// Extraction may be parked awaiting demand (pending == 0
				// with no continueExtract in flight); kick it so
				// stepExtract's stopping check can drain and complete
				// instead of waiting for demand that will never come.
				self.Send(continueExtract{})
			}
			st.maybeComplete(self)
		}
		return nil
	})
}

func (st *exporterState) put(m Put) {
	switch m.Role {
	case RoleArchive:
		st.archives = append(st.archives, m.Actor)
	case RoleIndex:
		st.indexes = append(st.indexes, m.Actor)
	case RoleSink:
		st.sinks = append(st.sinks, m.Actor)
	case RoleAccountant:
		st.acct = m.Actor
	}
}

// run transitions init → idle and sends the query to every registered
// index, per "has sent its expression to all indexes and awaits hits".
func (st *exporterState) run(self *actorkit.Ref) {
	if st.phase != phaseInit {
		return
	}
	st.phase = phaseIdle
	st.queryID = uuid.NewString()
	st.start = time.Now()
	q := Query{ID: st.queryID, Expr: st.expr, Reply: self}
	for _, idx := range st.indexes {
		idx.Send(q)
	}
	if len(st.indexes) == 0 {
		st.queryDone = true
	}
}

// onHit accumulates a partial candidate bitstream and, once idle, begins
// prefetching.
func (st *exporterState) onHit(self *actorkit.Ref, m Hit) {
	if m.QueryID != st.queryID || m.Bits == nil {
		return
	}
	if m.Bits.Size() > st.universe {
		st.universe = m.Bits.Size()
	}
	st.hits.Or(m.Bits)
	if st.processed == nil {
		st.processed = &bitstream.Ewah{}
	}
	st.prefetch(self)
}

// unprocessedNext returns the smallest id that is a hit but not yet
// processed, or bitstream.Npos if none remain.
func (st *exporterState) unprocessedNext() uint64 {
	i := st.hits.FindFirst()
	for i != bitstream.Npos {
		done, err := st.processed.At(i)
		if err != nil || !done {
			return i
		}
		i = st.hits.FindNext(i)
	}
	return bitstream.Npos
}

// prefetch asks an ARCHIVE for the chunk covering the next unprocessed id,
// falling back to the previously prefetched id when no next id currently
// exists — the exporter.cc heuristic this expansion restores in full (see
// DESIGN.md's Open Question decision on this fallback).
func (st *exporterState) prefetch(self *actorkit.Ref) {
	if st.lookupInflight || len(st.archives) == 0 || st.phase == phaseDone || st.stopping {
		return
	}
	if !st.unbounded && st.pending <= 0 {
		return
	}
	id := st.unprocessedNext()
	if id == bitstream.Npos {
		if !st.hasPrefetched {
			return
		}
		id = st.lastPrefetched
	}
	st.lastPrefetched = id
	st.hasPrefetched = true
	st.lookupInflight = true
	st.phase = phaseWaiting
	st.archives[0].Send(Lookup{ID: id, ReplyTo: self})
}

func (st *exporterState) onChunkArrival(self *actorkit.Ref, m ChunkArrival) {
	st.lookupInflight = false
	if m.Err != nil {
		exporterLog.Errorw("exporter: chunk lookup failed", "id", m.ID, "err", m.Err)
		report(st.acct, accountant.ErrorMsg{Kind: "io", Actor: self.Name()})
		st.maybeComplete(self)
		return
	}
	if m.Chunk == nil {
		st.maybeComplete(self)
		return
	}
	events, err := m.Chunk.Events()
	if err != nil {
		exporterLog.Errorw("exporter: chunk decode failed", "id", m.ID, "err", err)
		report(st.acct, accountant.ErrorMsg{Kind: "serialization", Actor: self.Name()})
		st.maybeComplete(self)
		return
	}
	st.chunk = m.Chunk
	st.chunkEvents = events
	st.cursor = st.cursor[:0]
	for i := range events {
		id := m.Chunk.Base + uint64(i)
		isHit, _ := st.hits.At(id)
		if !isHit {
			continue
		}
		done, _ := st.processed.At(id)
		if done {
			continue
		}
		st.cursor = append(st.cursor, id)
	}
	st.phase = phaseExtracting
	self.Send(continueExtract{})
}

// stepExtract processes exactly one candidate id per invocation, then
// re-enqueues itself, matching the specification's "re-enqueue a
// self-message (extract) rather than blocking the worker".
func (st *exporterState) stepExtract(self *actorkit.Ref) {
	if st.phase != phaseExtracting {
		return
	}
	if st.stopping {
		st.finishChunk(self)
		return
	}
	if !st.unbounded && st.pending <= 0 {
		// Demand exhausted mid-chunk; resume on the next Extract.
		return
	}
	if len(st.cursor) == 0 {
		st.finishChunk(self)
		return
	}
	id := st.cursor[0]
	st.cursor = st.cursor[1:]
	st.markProcessed(id)
	if ev, ok := st.eventAt(id); ok {
		if st.candidateMatches(ev) {
			st.relay(ev)
			if !st.unbounded {
				st.pending--
			}
		}
	}
	self.Send(continueExtract{})
}

func (st *exporterState) eventAt(id uint64) (event.Event, bool) {
	if st.chunk == nil || !st.chunk.Contains(id) {
		return event.Event{}, false
	}
	idx := id - st.chunk.Base
	if int(idx) >= len(st.chunkEvents) {
		return event.Event{}, false
	}
	return st.chunkEvents[idx], true
}

func (st *exporterState) markProcessed(id uint64) {
	if st.processed.Size() <= id {
		st.processed.Append(id+1-st.processed.Size(), false)
	}
	st.processed.Or(singleBit(id, st.processed.Size()))
}

// singleBit builds a bitstream of the given size with only bit id set.
func singleBit(id, size uint64) *bitstream.Ewah {
	if size <= id {
		size = id + 1
	}
	b := bitstream.NewEwah(id, false)
	b.PushBack(true)
	if rest := size - id - 1; rest > 0 {
		b.Append(rest, false)
	}
	return b
}

// candidateMatches runs the event-mode candidate check against the
// type-resolved AST cached per event type, since index lookups may yield
// supersets of the true answer.
func (st *exporterState) candidateMatches(ev event.Event) bool {
	resolved, ok := st.resolved[ev.Type]
	if !ok {
		t, err := st.schema.Lookup(ev.Type)
		if err != nil {
			return false
		}
		resolved = exprengine.ResolveTypes(exprengine.ResolveSchema(st.expr, t), t)
		st.resolved[ev.Type] = resolved
	}
	match, err := exprengine.EvaluateEvent(resolved, ev, exprengine.DefaultEventSource)
	if err != nil {
		exporterLog.Errorw("exporter: candidate check failed", "type", ev.Type, "err", err)
		return false
	}
	return match
}

func (st *exporterState) relay(ev event.Event) {
	for _, sink := range st.sinks {
		sink.Send(Relay{QueryID: st.queryID, Event: ev})
	}
	report(st.acct, accountant.EventsIngestedMsg{Actor: "exporter", N: 1})
}

func (st *exporterState) finishChunk(self *actorkit.Ref) {
	st.chunk = nil
	st.chunkEvents = nil
	st.cursor = nil
	st.phase = phaseIdle
	st.maybeComplete(self)
	if st.phase != phaseDone {
		st.prefetch(self)
	}
}

// extract handles an external demand signal: n=0 lifts all bound on
// production, n>0 allows n more matching events before halting again.
func (st *exporterState) extract(self *actorkit.Ref, m Extract) {
	if m.N == 0 {
		st.unbounded = true
	} else {
		st.pending += m.N
	}
	switch st.phase {
	case phaseExtracting:
		self.Send(continueExtract{})
	case phaseIdle:
		st.prefetch(self)
	}
}

// maybeComplete implements the terminal condition: no unprocessed ids, no
// lookup in flight, and the index has reported its query fully done.
func (st *exporterState) maybeComplete(self *actorkit.Ref) {
	if st.phase == phaseDone {
		return
	}
	if st.phase == phaseExtracting {
		return
	}
	if st.lookupInflight {
		return
	}
	if st.stopping {
		st.complete(self)
		return
	}
	if !st.queryDone {
		return
	}
	if st.unprocessedNext() != bitstream.Npos {
		return
	}
	st.complete(self)
}

func (st *exporterState) complete(self *actorkit.Ref) {
	st.phase = phaseDone
	for _, sink := range st.sinks {
		sink.Send(Done{QueryID: st.queryID, Runtime: time.Since(st.start)})
	}
}
