package chunkstore

import (
	"fmt"

	"github.com/corvidlabs/corvid/event"
)

// Reader provides lazy, random-access reads over a chunk's events without
// requiring the caller to decode the whole payload up front when only a
// handful of identifiers are wanted.
type Reader struct {
	chunk  *Chunk
	events []event.Event // decoded lazily, on first Read call
}

// NewReader wraps a chunk for random-access reads.
func NewReader(c *Chunk) *Reader {
	return &Reader{chunk: c}
}

func (r *Reader) ensureDecoded() error {
	if r.events != nil {
		return nil
	}
	events, err := r.chunk.Events()
	if err != nil {
		return err
	}
	r.events = events
	return nil
}

// ReadAll returns every event in the chunk.
func (r *Reader) ReadAll() ([]event.Event, error) {
	if err := r.ensureDecoded(); err != nil {
		return nil, err
	}
	return r.events, nil
}

// Read returns the single event with the given global identifier.
func (r *Reader) Read(id uint64) (event.Event, error) {
	if !r.chunk.Contains(id) {
		return event.Event{}, fmt.Errorf("chunkstore: id %d not in chunk [%d,%d)", id, r.chunk.Base, r.chunk.Base+r.chunk.Count)
	}
	if err := r.ensureDecoded(); err != nil {
		return event.Event{}, err
	}
	offset := id - r.chunk.Base
	if offset >= uint64(len(r.events)) {
		return event.Event{}, fmt.Errorf("chunkstore: offset %d out of range for chunk with %d events", offset, len(r.events))
	}
	return r.events[offset], nil
}
