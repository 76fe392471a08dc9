package chunkstore

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"

	bin "github.com/gagliardetto/binary"
	"github.com/google/uuid"

	"github.com/corvidlabs/corvid/bitstream"
)

// segmentMagic identifies a corvid archive segment file.
var segmentMagic = [8]byte{'c', 'o', 'r', 'v', 's', 'e', 'g', '1'}

// segmentIndexEntry is one entry of a segment's trailing index, mapping an
// id range to the chunk's byte offset within the segment file.
type segmentIndexEntry struct {
	Base   uint64
	Count  uint64
	Offset uint64
	Length uint64
}

// segmentWriter appends sealed chunks to a single segment file, rolling
// over to a new file once maxSize is reached.
type segmentWriter struct {
	dir     string
	maxSize uint64

	file    *os.File
	name    string
	written uint64
	index   []segmentIndexEntry
}

func newSegmentWriter(dir string, maxSize uint64) *segmentWriter {
	return &segmentWriter{dir: dir, maxSize: maxSize}
}

func (w *segmentWriter) ensureOpen() error {
	if w.file != nil {
		return nil
	}
	name := uuid.NewString()
	path := filepath.Join(w.dir, name)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("chunkstore: create segment %s: %w", name, err)
	}
	if _, err := f.Write(segmentMagic[:]); err != nil {
		return err
	}
	w.file = f
	w.name = name
	w.written = uint64(len(segmentMagic))
	w.index = nil
	return nil
}

// Append writes c to the current segment, rolling to a new segment first
// if appending would exceed maxSize. Returns the segment name and chunk's
// byte offset within it.
func (w *segmentWriter) Append(c *Chunk) (segment string, offset uint64, err error) {
	if err := w.ensureOpen(); err != nil {
		return "", 0, err
	}
	encoded, err := encodeChunk(c)
	if err != nil {
		return "", 0, err
	}
	if w.maxSize > 0 && w.written+uint64(len(encoded)) > w.maxSize && w.written > uint64(len(segmentMagic)) {
		if err := w.roll(); err != nil {
			return "", 0, err
		}
		if err := w.ensureOpen(); err != nil {
			return "", 0, err
		}
	}
	off := w.written
	if _, err := w.file.Write(encoded); err != nil {
		return "", 0, fmt.Errorf("chunkstore: write chunk: %w", err)
	}
	w.written += uint64(len(encoded))
	w.index = append(w.index, segmentIndexEntry{Base: c.Base, Count: c.Count, Offset: off, Length: uint64(len(encoded))})
	return w.name, off, nil
}

// roll finalizes the current segment (writing its trailing index) and
// closes it; the next Append opens a fresh one.
func (w *segmentWriter) roll() error {
	if w.file == nil {
		return nil
	}
	if err := writeSegmentIndex(w.file, w.index); err != nil {
		return err
	}
	if err := w.file.Close(); err != nil {
		return err
	}
	w.file = nil
	return nil
}

// Close finalizes and closes the current segment, if any.
func (w *segmentWriter) Close() error { return w.roll() }

// segmentIndexEntrySize is the Borsh-encoded width of one segmentIndexEntry:
// four little-endian uint64 fields.
const segmentIndexEntrySize = 8 * 4

func writeSegmentIndex(f *os.File, index []segmentIndexEntry) error {
	bw := bufio.NewWriter(f)
	enc := bin.NewBorshEncoder(bw)
	for _, e := range index {
		if err := enc.WriteUint64(e.Base, bin.LE); err != nil {
			return fmt.Errorf("chunkstore: write segment index entry: %w", err)
		}
		if err := enc.WriteUint64(e.Count, bin.LE); err != nil {
			return fmt.Errorf("chunkstore: write segment index entry: %w", err)
		}
		if err := enc.WriteUint64(e.Offset, bin.LE); err != nil {
			return fmt.Errorf("chunkstore: write segment index entry: %w", err)
		}
		if err := enc.WriteUint64(e.Length, bin.LE); err != nil {
			return fmt.Errorf("chunkstore: write segment index entry: %w", err)
		}
	}
	if err := enc.WriteUint32(uint32(len(index)), bin.LE); err != nil {
		return err
	}
	return bw.Flush()
}

// readSegmentIndex reads the trailing (id-range -> offset) index of an
// already-sealed segment file.
func readSegmentIndex(f *os.File) ([]segmentIndexEntry, error) {
	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	if info.Size() < 4 {
		return nil, fmt.Errorf("chunkstore: segment too small to hold an index")
	}
	if _, err := f.Seek(-4, io.SeekEnd); err != nil {
		return nil, err
	}
	var count uint32
	if err := binary.Read(f, binary.LittleEndian, &count); err != nil {
		return nil, err
	}
	indexSize := int64(count)*segmentIndexEntrySize + 4
	if indexSize > info.Size() {
		return nil, fmt.Errorf("chunkstore: corrupt segment index")
	}
	if _, err := f.Seek(-indexSize, io.SeekEnd); err != nil {
		return nil, err
	}
	buf := make([]byte, indexSize-4)
	if _, err := io.ReadFull(f, buf); err != nil {
		return nil, fmt.Errorf("chunkstore: read segment index: %w", err)
	}
	dec := bin.NewBorshDecoder(buf)
	entries := make([]segmentIndexEntry, count)
	for i := range entries {
		var e segmentIndexEntry
		var derr error
		if e.Base, derr = dec.ReadUint64(bin.LE); derr == nil {
			if e.Count, derr = dec.ReadUint64(bin.LE); derr == nil {
				if e.Offset, derr = dec.ReadUint64(bin.LE); derr == nil {
					e.Length, derr = dec.ReadUint64(bin.LE)
				}
			}
		}
		if derr != nil {
			return nil, fmt.Errorf("chunkstore: read segment index entry: %w", derr)
		}
		entries[i] = e
	}
	return entries, nil
}

// chunkHeaderSize is the Borsh-encoded width of a chunk record's fixed
// header: Base, Count, FirstTS, LastTS, SchemaFingerprint, and the id
// bitmap's length, each a little-endian uint64.
const chunkHeaderSize = 8 * 6

func encodeChunk(c *Chunk) ([]byte, error) {
	ids, err := c.IDs.MarshalBinary()
	if err != nil {
		return nil, err
	}
	buf := bytes.NewBuffer(make([]byte, 0, chunkHeaderSize+8+len(ids)+len(c.Payload)))
	enc := bin.NewBorshEncoder(buf)
	for _, v := range []uint64{c.Base, c.Count, uint64(c.FirstTS), uint64(c.LastTS), c.SchemaFingerprint, uint64(len(ids))} {
		if err := enc.WriteUint64(v, bin.LE); err != nil {
			return nil, fmt.Errorf("chunkstore: encode chunk header: %w", err)
		}
	}
	if _, err := enc.Write(ids); err != nil {
		return nil, fmt.Errorf("chunkstore: write id bitmap: %w", err)
	}
	if err := enc.WriteUint64(uint64(len(c.Payload)), bin.LE); err != nil {
		return nil, fmt.Errorf("chunkstore: encode payload length: %w", err)
	}
	if _, err := enc.Write(c.Payload); err != nil {
		return nil, fmt.Errorf("chunkstore: write payload: %w", err)
	}
	return buf.Bytes(), nil
}

func decodeChunk(buf []byte) (*Chunk, error) {
	if len(buf) < chunkHeaderSize {
		return nil, fmt.Errorf("chunkstore: truncated chunk record")
	}
	dec := bin.NewBorshDecoder(buf)
	c := &Chunk{}
	var firstTS, lastTS, idsLen uint64
	var derr error
	if c.Base, derr = dec.ReadUint64(bin.LE); derr == nil {
		if c.Count, derr = dec.ReadUint64(bin.LE); derr == nil {
			if firstTS, derr = dec.ReadUint64(bin.LE); derr == nil {
				if lastTS, derr = dec.ReadUint64(bin.LE); derr == nil {
					if c.SchemaFingerprint, derr = dec.ReadUint64(bin.LE); derr == nil {
						idsLen, derr = dec.ReadUint64(bin.LE)
					}
				}
			}
		}
	}
	if derr != nil {
		return nil, fmt.Errorf("chunkstore: decode chunk header: %w", derr)
	}
	c.FirstTS, c.LastTS = int64(firstTS), int64(lastTS)
	if idsLen > uint64(len(buf)-chunkHeaderSize) {
		return nil, fmt.Errorf("chunkstore: truncated id bitmap")
	}
	idsBuf := make([]byte, idsLen)
	if _, err := dec.Read(idsBuf); err != nil {
		return nil, fmt.Errorf("chunkstore: read id bitmap: %w", err)
	}
	ids := &bitstream.Ewah{}
	if err := ids.UnmarshalBinary(idsBuf); err != nil {
		return nil, fmt.Errorf("chunkstore: decode id bitmap: %w", err)
	}
	c.IDs = ids
	payloadLen, err := dec.ReadUint64(bin.LE)
	if err != nil {
		return nil, fmt.Errorf("chunkstore: read payload length: %w", err)
	}
	consumed := uint64(chunkHeaderSize) + idsLen + 8
	if payloadLen > uint64(len(buf))-consumed {
		return nil, fmt.Errorf("chunkstore: truncated payload")
	}
	payload := make([]byte, payloadLen)
	if _, err := dec.Read(payload); err != nil {
		return nil, fmt.Errorf("chunkstore: read payload: %w", err)
	}
	c.Payload = payload
	return c, nil
}
