package chunkstore

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"sync"

	logging "github.com/ipfs/go-log/v2"
	"golang.org/x/sync/errgroup"

	"github.com/corvidlabs/corvid/bitstream"
	"github.com/corvidlabs/corvid/event"
)

var log = logging.Logger("chunkstore")

// location records where a chunk's sealed bytes live.
type location struct {
	base    uint64
	count   uint64
	segment string
	offset  uint64
}

// Archive is the on-disk ARCHIVE: an append-only set of segment files plus
// an in-memory interval index mapping identifier ranges to their segment
// location, and a bounded cache of deserialized chunks. Grounded on
// store/store.go's overall responsibilities (writer, index, cache).
type Archive struct {
	mu  sync.RWMutex
	dir string

	writer *segmentWriter
	cache  *chunkCache

	locations []location // sorted by base, non-overlapping
}

// Open scans dir for existing segment files, reconstructs the interval
// index from their trailing indexes, and prepares the archive to accept
// further appends. maxSegmentSize caps a single segment file's size, and
// cacheSize bounds the number of deserialized chunks kept warm.
func Open(dir string, maxSegmentSize uint64, cacheSize int) (*Archive, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("chunkstore: create archive dir: %w", err)
	}
	a := &Archive{
		dir:    dir,
		writer: newSegmentWriter(dir, maxSegmentSize),
		cache:  newChunkCache(cacheSize),
	}
	if err := a.scan(); err != nil {
		return nil, err
	}
	return a, nil
}

// scan rebuilds the interval index by reading every segment file's
// trailing index in parallel (bounded by GOMAXPROCS via errgroup), since a
// directory with many large segments makes this otherwise-sequential
// startup scan I/O bound.
func (a *Archive) scan() error {
	entries, err := os.ReadDir(a.dir)
	if err != nil {
		return fmt.Errorf("chunkstore: scan archive dir: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, de := range entries {
		if !de.IsDir() {
			names = append(names, de.Name())
		}
	}
	perSegment := make([][]location, len(names))
	var g errgroup.Group
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, name := range names {
		i, name := i, name
		g.Go(func() error {
			path := filepath.Join(a.dir, name)
			f, err := os.Open(path)
			if err != nil {
				log.Warnw("archive: skipping unreadable segment", "segment", name, "err", err)
				return nil
			}
			idx, err := readSegmentIndex(f)
			f.Close()
			if err != nil {
				log.Warnw("archive: quarantining segment with unreadable index", "segment", name, "err", err)
				return nil
			}
			locs := make([]location, 0, len(idx))
			for _, e := range idx {
				locs = append(locs, location{base: e.Base, count: e.Count, segment: name, offset: e.Offset})
			}
			perSegment[i] = locs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	for _, locs := range perSegment {
		a.locations = append(a.locations, locs...)
	}
	sort.Slice(a.locations, func(i, j int) bool { return a.locations[i].base < a.locations[j].base })
	return nil
}

// Append seals events into a chunk and appends it to the current segment,
// registering it in the interval index.
func (a *Archive) Append(base uint64, events []event.Event, schemaFingerprint uint64) (*Chunk, error) {
	chunk, err := Seal(base, events, schemaFingerprint)
	if err != nil {
		return nil, err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	segment, offset, err := a.writer.Append(chunk)
	if err != nil {
		return nil, err
	}
	a.locations = append(a.locations, location{base: chunk.Base, count: chunk.Count, segment: segment, offset: offset})
	a.cache.Put(chunk)
	return chunk, nil
}

// Flush finalizes the current segment so its index becomes durable on
// disk; subsequent appends roll to a new segment.
func (a *Archive) Flush() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.writer.roll()
}

// Close flushes and releases resources held by the archive.
func (a *Archive) Close() error { return a.Flush() }

func (a *Archive) locate(id uint64) (location, bool) {
	i := sort.Search(len(a.locations), func(i int) bool { return a.locations[i].base+a.locations[i].count > id })
	if i >= len(a.locations) {
		return location{}, false
	}
	loc := a.locations[i]
	if id < loc.base || id >= loc.base+loc.count {
		return location{}, false
	}
	return loc, true
}

// Lookup returns the chunk containing id, loading it from disk and caching
// it if it is not already warm. A chunk found to be corrupt on disk is
// quarantined: it is logged and excluded from the interval index rather
// than crashing the lookup path.
func (a *Archive) Lookup(id uint64) (*Chunk, error) {
	a.mu.RLock()
	loc, ok := a.locate(id)
	a.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	if c, ok := a.cache.Get(loc.base); ok {
		return c, nil
	}
	chunk, err := a.readChunk(loc)
	if err != nil {
		a.quarantine(loc, err)
		return nil, nil
	}
	a.cache.Put(chunk)
	return chunk, nil
}

func (a *Archive) readChunk(loc location) (*Chunk, error) {
	raw, err := os.ReadFile(filepath.Join(a.dir, loc.segment))
	if err != nil {
		return nil, fmt.Errorf("chunkstore: read segment %s: %w", loc.segment, err)
	}
	if uint64(len(raw)) < loc.offset {
		return nil, fmt.Errorf("chunkstore: offset %d beyond segment %s length %d", loc.offset, loc.segment, len(raw))
	}
	return decodeChunk(raw[loc.offset:])
}

func (a *Archive) quarantine(loc location, cause error) {
	log.Errorw("archive: quarantining corrupt chunk", "segment", loc.segment, "base", loc.base, "err", cause)
	a.mu.Lock()
	defer a.mu.Unlock()
	for i, l := range a.locations {
		if l.segment == loc.segment && l.base == loc.base {
			a.locations = append(a.locations[:i], a.locations[i+1:]...)
			break
		}
	}
}

// HighestID returns the largest identifier covered by any chunk in the
// archive, or bitstream.Npos if the archive is empty.
func (a *Archive) HighestID() uint64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if len(a.locations) == 0 {
		return bitstream.Npos
	}
	var max uint64
	for _, loc := range a.locations {
		if loc.base+loc.count-1 > max {
			max = loc.base + loc.count - 1
		}
	}
	return max
}
