package bitmapindex

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/cespare/xxhash/v2"

	"github.com/corvidlabs/corvid/bitstream"
)

// Magic identifies a corvid bitmap index file, following the same
// eight-byte sentinel convention as the teacher's compactindexsized
// format.
var Magic = [8]byte{'c', 'o', 'r', 'v', 'b', 'm', 'p', '1'}

// Version is the on-disk format version.
const Version = uint8(1)

// Header occurs once at the start of a persisted index file.
type Header struct {
	Kind       uint8
	HighestID  uint64
	NumEntries uint32
}

// Bytes serializes the header, magic bytes and version included.
func (h Header) Bytes() []byte {
	buf := make([]byte, 8+1+1+8+4)
	copy(buf[0:8], Magic[:])
	buf[8] = Version
	buf[9] = h.Kind
	binary.LittleEndian.PutUint64(buf[10:18], h.HighestID)
	binary.LittleEndian.PutUint32(buf[18:22], h.NumEntries)
	return buf
}

// LoadHeader parses a header previously written by Bytes.
func LoadHeader(buf []byte) (Header, error) {
	if len(buf) < 22 {
		return Header{}, fmt.Errorf("bitmapindex: truncated header")
	}
	if *(*[8]byte)(buf[:8]) != Magic {
		return Header{}, fmt.Errorf("bitmapindex: not a corvid bitmap index file")
	}
	if buf[8] != Version {
		return Header{}, fmt.Errorf("bitmapindex: unsupported version %d", buf[8])
	}
	return Header{
		Kind:       buf[9],
		HighestID:  binary.LittleEndian.Uint64(buf[10:18]),
		NumEntries: binary.LittleEndian.Uint32(buf[18:22]),
	}, nil
}

// entryHash is the same reversible Murmur3-style finalizer the teacher's
// compactindexsized package uses to fold an xxhash digest into a bucket
// index; here it is used directly as the stored per-entry key hash.
// ReadEntries reads the hash back but does not use it, and entries are
// written in no particular order.
func entryHash(key []byte) uint64 {
	return hashUint64(xxhash.Sum64(key))
}

func hashUint64(x uint64) uint64 {
	x ^= x >> 33
	x *= 0xff51afd7ed558ccd
	x ^= x >> 33
	x *= 0xc4ceb9fe1a85ec53
	x ^= x >> 33
	return x
}

// variantTag is a one-byte prefix written ahead of every variant's own
// Save format, letting SaveIndex/LoadIndex round-trip an Index without the
// caller needing to already know which concrete variant a field's shard
// is — the directory layout in the external interface names a field path,
// not a type.
type variantTag byte

const (
	variantString variantTag = iota
	variantNumeric
	variantAddress
	variantPort
	variantTime
)

// SaveIndex persists any Index variant, prefixed by its variant tag.
func SaveIndex(w io.Writer, idx Index) error {
	var tag variantTag
	switch v := idx.(type) {
	case *StringIndex:
		tag = variantString
		if _, err := w.Write([]byte{byte(tag)}); err != nil {
			return err
		}
		return v.Save(w)
	case *NumericIndex:
		tag = variantNumeric
		if _, err := w.Write([]byte{byte(tag)}); err != nil {
			return err
		}
		return v.Save(w)
	case *AddressIndex:
		tag = variantAddress
		if _, err := w.Write([]byte{byte(tag)}); err != nil {
			return err
		}
		return v.Save(w)
	case *PortIndex:
		tag = variantPort
		if _, err := w.Write([]byte{byte(tag)}); err != nil {
			return err
		}
		return v.Save(w)
	case *TimeIndex:
		tag = variantTime
		if _, err := w.Write([]byte{byte(tag)}); err != nil {
			return err
		}
		return v.Save(w)
	default:
		return fmt.Errorf("bitmapindex: cannot persist unknown index variant %T", idx)
	}
}

// LoadIndex reopens any Index variant previously written by SaveIndex.
func LoadIndex(r io.Reader) (Index, error) {
	var tagBuf [1]byte
	if _, err := io.ReadFull(r, tagBuf[:]); err != nil {
		return nil, fmt.Errorf("bitmapindex: read variant tag: %w", err)
	}
	switch variantTag(tagBuf[0]) {
	case variantString:
		return LoadString(r)
	case variantNumeric:
		return LoadNumeric(r)
	case variantAddress:
		return LoadAddress(r)
	case variantPort:
		return LoadPort(r)
	case variantTime:
		return LoadTime(r)
	default:
		return nil, fmt.Errorf("bitmapindex: unknown variant tag %d", tagBuf[0])
	}
}

// Entry is one persisted (value-key, bitstream) pair.
type Entry struct {
	Key   []byte
	Value *bitstream.Ewah
}

// WriteEntries writes a complete index file: header, then each entry as
// (hash, key length, key, value length, value).
func WriteEntries(w io.Writer, kind uint8, highestID uint64, entries []Entry) error {
	bw := bufio.NewWriter(w)
	header := Header{Kind: kind, HighestID: highestID, NumEntries: uint32(len(entries))}
	if _, err := bw.Write(header.Bytes()); err != nil {
		return fmt.Errorf("bitmapindex: write header: %w", err)
	}
	for _, e := range entries {
		valueBytes, err := e.Value.MarshalBinary()
		if err != nil {
			return fmt.Errorf("bitmapindex: encode value: %w", err)
		}
		var lenBuf [4]byte
		hash := entryHash(e.Key)
		if err := binary.Write(bw, binary.LittleEndian, hash); err != nil {
			return err
		}
		binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(e.Key)))
		if _, err := bw.Write(lenBuf[:]); err != nil {
			return err
		}
		if _, err := bw.Write(e.Key); err != nil {
			return err
		}
		binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(valueBytes)))
		if _, err := bw.Write(lenBuf[:]); err != nil {
			return err
		}
		if _, err := bw.Write(valueBytes); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// ReadEntries reads back a file written by WriteEntries.
func ReadEntries(r io.Reader) (Header, []Entry, error) {
	br := bufio.NewReader(r)
	headerBuf := make([]byte, 22)
	if _, err := io.ReadFull(br, headerBuf); err != nil {
		return Header{}, nil, fmt.Errorf("bitmapindex: read header: %w", err)
	}
	header, err := LoadHeader(headerBuf)
	if err != nil {
		return Header{}, nil, err
	}
	entries := make([]Entry, 0, header.NumEntries)
	for i := uint32(0); i < header.NumEntries; i++ {
		var hash uint64
		if err := binary.Read(br, binary.LittleEndian, &hash); err != nil {
			return Header{}, nil, fmt.Errorf("bitmapindex: read entry hash: %w", err)
		}
		var lenBuf [4]byte
		if _, err := io.ReadFull(br, lenBuf[:]); err != nil {
			return Header{}, nil, fmt.Errorf("bitmapindex: read key length: %w", err)
		}
		key := make([]byte, binary.LittleEndian.Uint32(lenBuf[:]))
		if _, err := io.ReadFull(br, key); err != nil {
			return Header{}, nil, fmt.Errorf("bitmapindex: read key: %w", err)
		}
		if _, err := io.ReadFull(br, lenBuf[:]); err != nil {
			return Header{}, nil, fmt.Errorf("bitmapindex: read value length: %w", err)
		}
		value := make([]byte, binary.LittleEndian.Uint32(lenBuf[:]))
		if _, err := io.ReadFull(br, value); err != nil {
			return Header{}, nil, fmt.Errorf("bitmapindex: read value: %w", err)
		}
		bs := &bitstream.Ewah{}
		if err := bs.UnmarshalBinary(value); err != nil {
			return Header{}, nil, fmt.Errorf("bitmapindex: decode value: %w", err)
		}
		entries = append(entries, Entry{Key: key, Value: bs})
	}
	return header, entries, nil
}
