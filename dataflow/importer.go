package dataflow

import (
	"sort"
	"strings"

	"github.com/cespare/xxhash/v2"
	logging "github.com/ipfs/go-log/v2"

	"github.com/corvidlabs/corvid/accountant"
	"github.com/corvidlabs/corvid/actorkit"
	"github.com/corvidlabs/corvid/event"
)

var importerLog = logging.Logger("dataflow/importer")

// Submit delivers a batch of events from SOURCE to IMPORTER. IMPORTER
// reslices events into groups of chunkSize itself, so callers are free to
// submit events one at a time or in arbitrarily-sized bursts.
type Submit struct {
	Events []event.Event
}

// Backpressure reports whether a downstream has fallen behind by more than
// IMPORTER's high watermark. It is sent to every actor registered with
// Put{Role: RoleSink} whenever the state changes; IMPORTER itself keeps
// accepting Submit while blocked.
type Backpressure struct {
	Blocked bool
}

// importerState is the IMPORTER actor's private state.
type importerState struct {
	chunkSize     int
	highWatermark int
	lowWatermark  int

	pending []event.Event // buffered, not yet sealed into a chunk
	nextID  uint64

	archive *actorkit.Ref
	index   *actorkit.Ref
	acct    *actorkit.Ref

	archiveInFlight int
	indexInFlight   int
	blocked         bool

	subscribers []*actorkit.Ref
	stopping    bool
}

// SpawnImporter starts the IMPORTER actor: it buffers Submit'd events into
// groups of chunkSize, assigns each group monotonically increasing
// identifiers starting at startID, and sends it as one Seal in parallel to
// ARCHIVE and INDEX (registered via Put). Once either downstream has more
// than highWatermark batches in flight it sends Backpressure{Blocked: true}
// to its subscribers, and Backpressure{Blocked: false} once both are back
// at lowWatermark or below; Submit is accepted throughout.
func SpawnImporter(startID uint64, chunkSize, highWatermark, lowWatermark int) *actorkit.Ref {
	st := &importerState{
		chunkSize:     chunkSize,
		highWatermark: highWatermark,
		lowWatermark:  lowWatermark,
		nextID:        startID,
	}

	return actorkit.Spawn("importer", func(self *actorkit.Ref, msg any) error {
		switch m := msg.(type) {
		case Put:
			switch m.Role {
			case RoleArchive:
				st.archive = m.Actor
			case RoleIndex:
				st.index = m.Actor
			case RoleAccountant:
				st.acct = m.Actor
			case RoleSink:
				st.subscribers = append(st.subscribers, m.Actor)
			}
		case Submit:
			st.submit(self, m.Events)
		case SealAck:
			st.ack(self, m)
		case Flush:
			st.flush(self, m)
		case Stop:
			st.stopping = true
			st.sealPending(self)
		}
		return nil
	})
}

func (st *importerState) submit(self *actorkit.Ref, events []event.Event) {
	if st.stopping {
		return
	}
	st.pending = append(st.pending, events...)
	for len(st.pending) >= st.chunkSize {
		batch := st.pending[:st.chunkSize]
		st.pending = append([]event.Event(nil), st.pending[st.chunkSize:]...)
		st.seal(self, batch)
	}
	st.updateBackpressure(self)
}

func (st *importerState) sealPending(self *actorkit.Ref) {
	if len(st.pending) == 0 {
		return
	}
	batch := st.pending
	st.pending = nil
	st.seal(self, batch)
}

// seal assigns contiguous identifiers to batch, then sends the same sealed
// Seal message to ARCHIVE and INDEX — the "parallel to ARCHIVE... and
// INDEX" fan-out from the specification's IMPORTER description.
func (st *importerState) seal(self *actorkit.Ref, batch []event.Event) {
	base := st.nextID
	for i := range batch {
		batch[i].ID = event.ID(base) + event.ID(i)
	}
	st.nextID += uint64(len(batch))
	fp := fingerprint(batch)
	msg := Seal{Base: base, Events: batch, SchemaFingerprint: fp, ReplyTo: self}
	if st.archive != nil {
		st.archiveInFlight++
		st.archive.Send(msg)
	}
	if st.index != nil {
		st.indexInFlight++
		st.index.Send(msg)
	}
	report(st.acct, accountant.EventsIngestedMsg{Actor: self.Name(), N: len(batch)})
}

func (st *importerState) ack(self *actorkit.Ref, m SealAck) {
	switch m.From {
	case RoleArchive:
		if st.archiveInFlight > 0 {
			st.archiveInFlight--
		}
	case RoleIndex:
		if st.indexInFlight > 0 {
			st.indexInFlight--
		}
	}
	if m.Err != nil {
		importerLog.Errorw("importer: downstream seal failed", "from", m.From, "err", m.Err)
	}
	st.updateBackpressure(self)
}

// updateBackpressure re-evaluates the high/low watermark rule and notifies
// subscribers only on transition, per the specification's "stops reading
// from SOURCE when either downstream is behind by more than
// high_watermark... resumes at low_watermark".
func (st *importerState) updateBackpressure(self *actorkit.Ref) {
	inFlight := st.archiveInFlight
	if st.indexInFlight > inFlight {
		inFlight = st.indexInFlight
	}
	switch {
	case !st.blocked && inFlight > st.highWatermark:
		st.blocked = true
		st.notifyBackpressure(true)
	case st.blocked && inFlight <= st.lowWatermark:
		st.blocked = false
		st.notifyBackpressure(false)
	}
}

func (st *importerState) notifyBackpressure(blocked bool) {
	for _, sub := range st.subscribers {
		sub.Send(Backpressure{Blocked: blocked})
	}
}

func (st *importerState) flush(self *actorkit.Ref, m Flush) {
	st.sealPending(self)
	sub := actorkit.NewTask("archive", "index")
	if st.archive != nil {
		st.archive.Send(Flush{Task: sub, ID: "archive"})
	} else {
		sub.Complete("archive")
	}
	if st.index != nil {
		st.index.Send(Flush{Task: sub, ID: "index"})
	} else {
		sub.Complete("index")
	}
	if m.Task != nil {
		go func() {
			<-sub.Done()
			m.Task.Complete(m.ID)
		}()
	}
}

// fingerprint derives a stable schema identity for a batch from the
// distinct event types it carries, letting ARCHIVE and INDEX detect a
// schema change across chunks without threading a schema registry through
// every Seal message.
func fingerprint(events []event.Event) uint64 {
	seen := make(map[string]struct{})
	var types []string
	for _, ev := range events {
		if _, ok := seen[ev.Type]; !ok {
			seen[ev.Type] = struct{}{}
			types = append(types, ev.Type)
		}
	}
	sort.Strings(types)
	return xxhash.Sum64String(strings.Join(types, "\x00"))
}
