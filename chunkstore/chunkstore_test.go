package chunkstore

import (
	"testing"
	"time"

	"github.com/corvidlabs/corvid/event"
	"github.com/corvidlabs/corvid/schema"
)

func sampleEvents(base uint64, n int) []event.Event {
	events := make([]event.Event, n)
	now := time.Unix(1700000000, 0).UTC()
	for i := 0; i < n; i++ {
		events[i] = event.Event{
			ID:        event.ID(base) + event.ID(i),
			Type:      "net.flow",
			Timestamp: now.Add(time.Duration(i) * time.Second),
			Fields: map[string]schema.Value{
				"bytes": {Kind: schema.KindCount, Count: uint64(i * 100)},
			},
		}
	}
	return events
}

func TestSealAndReadRoundTrip(t *testing.T) {
	events := sampleEvents(0, 5)
	chunk, err := Seal(0, events, 42)
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	if chunk.Count != 5 {
		t.Fatalf("Count = %d, want 5", chunk.Count)
	}
	got, err := chunk.Events()
	if err != nil {
		t.Fatalf("Events: %v", err)
	}
	if len(got) != 5 {
		t.Fatalf("got %d events, want 5", len(got))
	}
	if got[2].Fields["bytes"].Count != 200 {
		t.Fatalf("got[2].bytes = %d, want 200", got[2].Fields["bytes"].Count)
	}
	if !chunk.Contains(3) || chunk.Contains(5) {
		t.Fatalf("Contains boundary check failed")
	}
}

// TestSealGlobalIDBitmap covers spec.md §8 scenario 4: a chunk sealed at
// base 110 with 3 events must carry a global-id-indexed `ids` bitmap whose
// find_first/find_last land on 110 and 112, not 0 and 2.
func TestSealGlobalIDBitmap(t *testing.T) {
	chunk, err := Seal(110, sampleEvents(110, 3), 1)
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	if got := chunk.IDs.FindFirst(); got != 110 {
		t.Fatalf("IDs.FindFirst() = %d, want 110", got)
	}
	if got := chunk.IDs.FindLast(); got != 112 {
		t.Fatalf("IDs.FindLast() = %d, want 112", got)
	}
	if chunk.Contains(109) || !chunk.Contains(110) || !chunk.Contains(112) || chunk.Contains(113) {
		t.Fatalf("Contains boundary check failed against global-id bitmap")
	}
}

func TestArchiveAppendAndLookup(t *testing.T) {
	dir := t.TempDir()
	arc, err := Open(dir, 0, 8)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer arc.Close()

	if _, err := arc.Append(0, sampleEvents(0, 10), 7); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if _, err := arc.Append(10, sampleEvents(10, 10), 7); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := arc.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	chunk, err := arc.Lookup(15)
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if chunk == nil {
		t.Fatalf("expected chunk for id 15")
	}
	if !chunk.Contains(15) {
		t.Fatalf("chunk does not contain looked-up id")
	}

	reader := NewReader(chunk)
	e, err := reader.Read(15)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if e.ID != 15 {
		t.Fatalf("e.ID = %d, want 15", e.ID)
	}

	if got := arc.HighestID(); got != 19 {
		t.Fatalf("HighestID = %d, want 19", got)
	}
}

func TestArchiveReopenRebuildsIndex(t *testing.T) {
	dir := t.TempDir()
	arc, err := Open(dir, 0, 4)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := arc.Append(0, sampleEvents(0, 3), 1); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := arc.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened, err := Open(dir, 0, 4)
	if err != nil {
		t.Fatalf("Open (reopen): %v", err)
	}
	defer reopened.Close()
	chunk, err := reopened.Lookup(1)
	if err != nil {
		t.Fatalf("Lookup after reopen: %v", err)
	}
	if chunk == nil {
		t.Fatalf("expected chunk to survive reopen")
	}
}

func TestChunkCacheEviction(t *testing.T) {
	cache := newChunkCache(2)
	cache.Put(&Chunk{Base: 0, Count: 1})
	cache.Put(&Chunk{Base: 1, Count: 1})
	cache.Put(&Chunk{Base: 2, Count: 1})
	if _, ok := cache.Get(0); ok {
		t.Fatalf("expected base 0 to be evicted")
	}
	if _, ok := cache.Get(2); !ok {
		t.Fatalf("expected base 2 to remain cached")
	}
	if cache.Len() != 2 {
		t.Fatalf("Len = %d, want 2", cache.Len())
	}
}
