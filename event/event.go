// Package event defines the record type flowing through corvid's ingest
// and query paths: a globally unique identifier, a timestamp, and a typed
// payload whose shape is named by a schema.Type.
package event

import (
	"time"

	"github.com/corvidlabs/corvid/schema"
)

// ID is a monotonically increasing, never-reused event identifier assigned
// by the importer.
type ID uint64

// Event is a typed record drawn from a schema.
type Event struct {
	ID        ID
	Type      string // schema.Type name this event's Fields were validated against
	Timestamp time.Time
	Fields    map[string]schema.Value
}

// Get returns the named field and whether it is present.
func (e Event) Get(field string) (schema.Value, bool) {
	v, ok := e.Fields[field]
	return v, ok
}
