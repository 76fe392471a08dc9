package dataflow

import (
	logging "github.com/ipfs/go-log/v2"

	"github.com/corvidlabs/corvid/accountant"
	"github.com/corvidlabs/corvid/actorkit"
	"github.com/corvidlabs/corvid/chunkstore"
	"github.com/corvidlabs/corvid/event"
)

var archiveLog = logging.Logger("dataflow/archive")

// Seal carries a batch of identified events from IMPORTER to ARCHIVE (and,
// in parallel, to INDEX). IMPORTER sends the same Seal value to both; it
// does not build a chunk itself. ARCHIVE seals the events into a chunk in
// store.Append, and neither receiver mutates the events.
type Seal struct {
	Base              uint64
	Events            []event.Event
	SchemaFingerprint uint64
	ReplyTo           *actorkit.Ref // receives SealAck once persisted
}

// SealAck acknowledges that a Seal message has been durably processed,
// the signal IMPORTER's backpressure tracking watches per downstream.
type SealAck struct {
	From  Role
	Chunk *chunkstore.Chunk
	Err   error
}

// Lookup asks ARCHIVE for the chunk covering id.
type Lookup struct {
	ID      uint64
	ReplyTo *actorkit.Ref // receives ChunkArrival
}

// ChunkArrival is ARCHIVE's reply to Lookup: Chunk is nil if no chunk
// covers ID (a hole, or the range was quarantined).
type ChunkArrival struct {
	ID    uint64
	Chunk *chunkstore.Chunk
	Err   error
}

// SpawnArchive wraps a chunkstore.Archive as an actor, the ARCHIVE of the
// dataflow diagram. It serves Lookup, accepts Seal from IMPORTER, and
// rolls to a new segment on Flush.
func SpawnArchive(store *chunkstore.Archive) *actorkit.Ref {
	var acct *actorkit.Ref

	return actorkit.Spawn("archive", func(self *actorkit.Ref, msg any) error {
		switch m := msg.(type) {
		case Put:
			if m.Role == RoleAccountant {
				acct = m.Actor
			}
		case Seal:
			chunk, err := store.Append(m.Base, m.Events, m.SchemaFingerprint)
			if err != nil {
				archiveLog.Errorw("archive: append failed", "base", m.Base, "err", err)
				report(acct, accountant.ErrorMsg{Kind: "io", Actor: self.Name()})
			}
			if m.ReplyTo != nil {
				m.ReplyTo.Send(SealAck{From: RoleArchive, Chunk: chunk, Err: err})
			}
			report(acct, accountant.ChunkSealedMsg{Actor: self.Name()})
		case Lookup:
			chunk, err := store.Lookup(m.ID)
			if err != nil {
				archiveLog.Errorw("archive: lookup failed", "id", m.ID, "err", err)
				report(acct, accountant.ErrorMsg{Kind: "io", Actor: self.Name()})
			}
			if m.ReplyTo != nil {
				m.ReplyTo.Send(ChunkArrival{ID: m.ID, Chunk: chunk, Err: err})
			}
		case Flush:
			err := store.Flush()
			if err != nil {
				report(acct, accountant.ErrorMsg{Kind: "io", Actor: self.Name()})
			}
			if m.Task != nil {
				m.Task.Complete(m.ID)
			}
		case Stop:
			store.Close()
		}
		return nil
	})
}

func report(acct *actorkit.Ref, msg any) {
	if acct != nil {
		acct.Send(msg)
	}
}
