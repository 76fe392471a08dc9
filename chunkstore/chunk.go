// Package chunkstore implements the CHUNK store / ARCHIVE: append-only
// segment files of sealed chunks keyed by contiguous identifier ranges, a
// bounded LRU cache of deserialized chunks, and a directory scan that
// reconstructs the id-range-to-chunk interval map at startup. Grounded on
// the teacher's store.go (Store/Get/Put/Flush) and
// gsfa/store/filecache/filecache.go (the LRU itself).
package chunkstore

import (
	"bytes"
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/klauspost/compress/zstd"
	"github.com/mostynb/zstdpool-freelist"

	"github.com/corvidlabs/corvid/bitstream"
	"github.com/corvidlabs/corvid/event"
)

var (
	decoderPool = zstdpool.NewDecoderPool()
	encoderPool = zstdpool.NewEncoderPool(zstd.WithEncoderLevel(zstd.SpeedBetterCompression))
)

// Chunk is a bounded, immutable batch of events sharing a contiguous
// identifier range [Base, Base+Count).
type Chunk struct {
	Base              uint64
	Count             uint64
	IDs               *bitstream.Ewah
	FirstTS           int64 // UnixNano
	LastTS            int64
	SchemaFingerprint uint64
	Payload           []byte // zstd-compressed, cbor-encoded []event.Event
}

// Seal compresses events into a new Chunk. events must be sorted by id and
// share a contiguous range starting at base.
func Seal(base uint64, events []event.Event, schemaFingerprint uint64) (*Chunk, error) {
	if len(events) == 0 {
		return nil, fmt.Errorf("chunkstore: cannot seal an empty batch")
	}
	ids := bitstream.NewEwah(base, false)
	ids.Append(uint64(len(events)), true)
	var buf bytes.Buffer
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		return nil, fmt.Errorf("chunkstore: cbor encode mode: %w", err)
	}
	if err := em.NewEncoder(&buf).Encode(events); err != nil {
		return nil, fmt.Errorf("chunkstore: encode events: %w", err)
	}
	enc, err := encoderPool.Get(nil)
	if err != nil {
		return nil, fmt.Errorf("chunkstore: acquire zstd encoder: %w", err)
	}
	defer encoderPool.Put(enc)
	payload := enc.EncodeAll(buf.Bytes(), nil)

	return &Chunk{
		Base:              base,
		Count:             uint64(len(events)),
		IDs:               ids,
		FirstTS:           events[0].Timestamp.UnixNano(),
		LastTS:            events[len(events)-1].Timestamp.UnixNano(),
		SchemaFingerprint: schemaFingerprint,
		Payload:           payload,
	}, nil
}

// Events decompresses and decodes the chunk's payload. Reader exists for
// the lazy, random-access variant of this; Events is for cases (tests,
// small tools) where loading everything at once is acceptable.
func (c *Chunk) Events() ([]event.Event, error) {
	dec, err := decoderPool.Get(nil)
	if err != nil {
		return nil, fmt.Errorf("chunkstore: acquire zstd decoder: %w", err)
	}
	defer decoderPool.Put(dec)
	raw, err := dec.DecodeAll(c.Payload, nil)
	if err != nil {
		return nil, fmt.Errorf("chunkstore: decompress chunk: %w", err)
	}
	var events []event.Event
	if err := cbor.Unmarshal(raw, &events); err != nil {
		return nil, fmt.Errorf("chunkstore: decode events: %w", err)
	}
	return events, nil
}

// Contains reports whether id falls within the chunk's identifier range, per
// the §4.3 `ids` identifier bitmap rather than a recomputed base/count check.
func (c *Chunk) Contains(id uint64) bool {
	if id >= c.Base+c.Count || c.IDs == nil {
		return id >= c.Base && id < c.Base+c.Count
	}
	set, err := c.IDs.At(id)
	if err != nil {
		return id >= c.Base && id < c.Base+c.Count
	}
	return set
}
