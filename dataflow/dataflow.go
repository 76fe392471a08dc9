// Package dataflow implements the DATAFLOW actors that coordinate ingest
// and query execution: IMPORTER assigns identifiers and batches events,
// ARCHIVE seals each batch into a chunk and persists it, INDEX
// bitmap-indexes the same batch, and EXPORTER drives a
// query to completion by prefetching chunks and running the candidate
// check. Every actor is single-threaded internally (actorkit.Spawn) and
// coordinates with its collaborators purely by message passing; no actor
// holds a pointer into another's private state. Grounded on
// original_source/src/vast/actor/{importer,index,archive,exporter}.cc,
// rebuilt message-for-message around actorkit instead of CAF.
package dataflow

import (
	"time"

	"github.com/corvidlabs/corvid/actorkit"
	"github.com/corvidlabs/corvid/bitstream"
	"github.com/corvidlabs/corvid/exprengine"
)

// Role identifies what a Put message is registering a collaborator as.
type Role int

const (
	RoleArchive Role = iota
	RoleIndex
	RoleSink
	RoleAccountant
)

func (r Role) String() string {
	switch r {
	case RoleArchive:
		return "archive"
	case RoleIndex:
		return "index"
	case RoleSink:
		return "sink"
	case RoleAccountant:
		return "accountant"
	default:
		return "?"
	}
}

// Put registers a collaborator actor under the given role. The actors
// accept Put at any time and do not check it against Run: a collaborator
// registered late only sees the messages sent after its registration.
type Put struct {
	Role  Role
	Actor *actorkit.Ref
}

// Run starts an actor producing or consuming, transitioning it out of its
// init state.
type Run struct{}

// Stop requests cooperative shutdown: finish the current unit of work,
// then complete, without starting new work.
type Stop struct{}

// Flush asks an actor to persist its in-memory state, signaling task once
// finished.
type Flush struct {
	Task *actorkit.Task
	ID   string // this actor's id within Task
}

// QueryOptions is the bitset of {historical, continuous, low-priority}
// behaviors a query may request.
type QueryOptions struct {
	Historical  bool
	Continuous  bool
	LowPriority bool
}

// Query issues an index lookup. Reply receives a TaskStarted, then zero or
// more Hit messages, then a terminal Done. ID is assigned by INDEX (via
// uuid) if left empty.
type Query struct {
	ID      string
	Expr    *exprengine.Node
	Options QueryOptions
	Reply   *actorkit.Ref
}

// TaskStarted is the first reply to a Query: the barrier tracking the
// query's concurrent sub-lookups, so the requester can observe progress
// independent of Hit/Done delivery order.
type TaskStarted struct {
	QueryID string
	Task    *actorkit.Task
}

// Hit carries one partial candidate bitstream toward a query's reply
// actor as sub-lookups complete.
type Hit struct {
	QueryID string
	Bits    *bitstream.Ewah
}

// Progress is an advisory fraction-complete update.
type Progress struct {
	QueryID   string
	Remaining int
	Total     int
}

// Done is the terminal message of a query or an extraction run.
type Done struct {
	QueryID string
	Runtime time.Duration
}

// Extract asks EXPORTER to produce up to n events; n=0 means unbounded.
type Extract struct {
	N int
}
