package dataflow

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	logging "github.com/ipfs/go-log/v2"

	"github.com/corvidlabs/corvid/accountant"
	"github.com/corvidlabs/corvid/actorkit"
	"github.com/corvidlabs/corvid/bitmapindex"
	"github.com/corvidlabs/corvid/bitstream"
	"github.com/corvidlabs/corvid/exprengine"
	"github.com/corvidlabs/corvid/schema"
)

var indexLog = logging.Logger("dataflow/index")

// shards holds one bitmap index per attribute field name, lazily created
// on first append from the schema.Value's own Kind, and tracks which
// fields have unsaved appends since the last Flush.
type shards struct {
	mu    sync.RWMutex
	byKey map[string]bitmapindex.Index
	dirty map[string]struct{}
}

func newShards() *shards {
	return &shards{byKey: make(map[string]bitmapindex.Index), dirty: make(map[string]struct{})}
}

func (s *shards) get(field string) (bitmapindex.Index, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	idx, ok := s.byKey[field]
	return idx, ok
}

func (s *shards) getOrCreate(field string, v schema.Value, granularity time.Duration) bitmapindex.Index {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dirty[field] = struct{}{}
	if idx, ok := s.byKey[field]; ok {
		return idx
	}
	idx := newIndexFor(v.Kind, granularity)
	s.byKey[field] = idx
	return idx
}

// snapshotDirty returns and clears the set of fields appended to since the
// last snapshotDirty call.
func (s *shards) snapshotDirty() map[string]bitmapindex.Index {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]bitmapindex.Index, len(s.dirty))
	for field := range s.dirty {
		out[field] = s.byKey[field]
	}
	s.dirty = make(map[string]struct{})
	return out
}

// newIndexFor constructs the bitmap index variant matching a value's
// semantic kind, per the specification's "one variant per semantic type".
func newIndexFor(kind schema.Kind, granularity time.Duration) bitmapindex.Index {
	switch kind {
	case schema.KindInt, schema.KindCount, schema.KindReal:
		return bitmapindex.NewNumeric(kind)
	case schema.KindAddress, schema.KindSubnet:
		return bitmapindex.NewAddress()
	case schema.KindPort:
		return bitmapindex.NewPort()
	case schema.KindTimePoint:
		return bitmapindex.NewTime(granularity)
	default:
		return bitmapindex.NewString()
	}
}

// Index implements exprengine.IndexSource directly, so EvaluateIndex can
// be driven straight off a query's field shards.
func (s *shards) Index(field string) (bitmapindex.Index, bool) { return s.get(field) }

// indexState is the INDEX actor's private state; never touched from
// outside its own goroutine.
type indexState struct {
	shards      *shards
	granularity time.Duration
	highest     uint64
	hasAny      bool
	acct        *actorkit.Ref
	dir         string // one shard file per field name, directly under dir
}

// SpawnIndex starts the INDEX actor responsible for dispatching appended
// events to per-field bitmap shards and answering Query messages by
// walking the expression AST in index mode. dir is the index directory,
// holding one file per field name with no per-type subdirectory; an empty
// dir disables
// persistence (Flush becomes a pure in-memory barrier), which is how
// tests exercise the actor without a filesystem.
func SpawnIndex(dir string, granularity time.Duration) (*actorkit.Ref, error) {
	st := &indexState{shards: newShards(), granularity: granularity, dir: dir}
	if dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("dataflow: create index dir: %w", err)
		}
		if err := st.reopen(); err != nil {
			return nil, err
		}
	}

	return actorkit.Spawn("index", func(self *actorkit.Ref, msg any) error {
		switch m := msg.(type) {
		case Put:
			if m.Role == RoleAccountant {
				st.acct = m.Actor
			}
		case Seal:
			st.dispatch(self, m)
		case Query:
			st.runQuery(self, m)
		case Flush:
			st.flush(m)
		}
		return nil
	}), nil
}

// reopen scans dir for previously persisted shard files, restoring each
// field's bitmap index and the actor's highest-known identifier.
func (st *indexState) reopen() error {
	entries, err := os.ReadDir(st.dir)
	if err != nil {
		return fmt.Errorf("dataflow: scan index dir: %w", err)
	}
	for _, de := range entries {
		if de.IsDir() {
			continue
		}
		field := de.Name()
		idx, err := bitmapindex.LoadIndexMapped(filepath.Join(st.dir, field))
		if err != nil {
			indexLog.Warnw("index: quarantining corrupt shard", "field", field, "err", err)
			continue
		}
		st.shards.byKey[field] = idx
		if h := idx.HighestID(); h != bitstream.Npos && (!st.hasAny || h > st.highest) {
			st.highest = h
			st.hasAny = true
		}
	}
	return nil
}

func (st *indexState) dispatch(self *actorkit.Ref, m Seal) {
	var merr *multierror.Error
	for i, ev := range m.Events {
		id := m.Base + uint64(i)
		for field, v := range ev.Fields {
			idx := st.shards.getOrCreate(field, v, st.granularity)
			if err := idx.Append(id, v); err != nil {
				merr = multierror.Append(merr, fmt.Errorf("field %s: %w", field, err))
			}
		}
		if !st.hasAny || id > st.highest {
			st.highest = id
			st.hasAny = true
		}
	}
	if merr.ErrorOrNil() != nil {
		indexLog.Errorw("index: append errors", "base", m.Base, "err", merr)
		report(st.acct, accountant.ErrorMsg{Kind: "schema", Actor: self.Name()})
	}
	if m.ReplyTo != nil {
		m.ReplyTo.Send(SealAck{From: RoleIndex, Err: merr.ErrorOrNil()})
	}
}

// runQuery evaluates the query's expression against the INDEX actor's own
// shards and tracks completion with a Task barrier over the leaf fields the
// expression touches, sending TaskStarted, then Hit, then Done to the reply
// actor. Per §5, "each actor processes one message at a time; its private
// state is never touched by another actor" — the bitmap index shards carry
// no internal locking of their own, so evaluation runs synchronously here,
// in the actor's own single-threaded handler, rather than on a goroutine
// that could race a later Seal's idx.Append against this Lookup. A query
// only suspends the actor's mailbox for the duration of its own evaluation,
// the same suspension-between-messages model §5 describes elsewhere.
func (st *indexState) runQuery(self *actorkit.Ref, q Query) {
	if q.ID == "" {
		q.ID = uuid.NewString()
	}
	fields := leafFields(q.Expr)
	if len(fields) == 0 {
		fields = []string{"_root"}
	}
	task := actorkit.NewTask(fields...)
	if q.Reply != nil {
		q.Reply.Send(TaskStarted{QueryID: q.ID, Task: task})
	}

	universe := uint64(0)
	if st.hasAny {
		universe = st.highest + 1
	}
	start := time.Now()

	// The loop below marks every field complete on the Task barrier and
	// sends a Progress for each before any lookup runs; EvaluateIndex then
	// performs all the per-field Lookup calls while combining the tree, and
	// the result goes out as a single Hit.
	for _, f := range fields {
		task.Complete(f)
		if q.Reply != nil {
			q.Reply.Send(Progress{QueryID: q.ID, Remaining: task.Remaining(), Total: len(fields)})
		}
	}
	result, err := exprengine.EvaluateIndex(q.Expr, st.shards, universe)
	if err != nil {
		indexLog.Errorw("index: query evaluation failed", "id", q.ID, "err", err)
		report(st.acct, accountant.ErrorMsg{Kind: "query", Actor: self.Name()})
		result = &bitstream.Ewah{}
	}
	if q.Reply != nil {
		q.Reply.Send(Hit{QueryID: q.ID, Bits: result})
		q.Reply.Send(Done{QueryID: q.ID, Runtime: time.Since(start)})
	}
	report(st.acct, accountant.QueryDoneMsg{Actor: self.Name(), Seconds: time.Since(start).Seconds()})
}

// leafFields collects the distinct DataExtractor field names a
// type-resolved AST references, used as the set of concurrent sub-lookups
// INDEX's query Task tracks.
func leafFields(n *exprengine.Node) []string {
	seen := make(map[string]struct{})
	var out []string
	var walk func(*exprengine.Node)
	walk = func(n *exprengine.Node) {
		if n == nil {
			return
		}
		switch n.Kind {
		case exprengine.NodePredicate:
			p := n.Predicate
			if p.Extractor.Kind == exprengine.DataExtractor {
				if _, ok := seen[p.Extractor.Name]; !ok {
					seen[p.Extractor.Name] = struct{}{}
					out = append(out, p.Extractor.Name)
				}
			}
		case exprengine.NodeNegation:
			walk(n.Operand)
		case exprengine.NodeConjunction, exprengine.NodeDisjunction:
			for _, c := range n.Children {
				walk(c)
			}
		}
	}
	walk(n)
	return out
}

// flush persists every shard appended to since the last Flush, one file
// per field name directly under dir (no per-type subdirectory). An
// empty dir makes Flush a pure in-memory barrier, used by tests that
// never construct a directory.
func (st *indexState) flush(m Flush) {
	defer func() {
		if m.Task != nil {
			m.Task.Complete(m.ID)
		}
	}()
	if st.dir == "" {
		return
	}
	dirty := st.shards.snapshotDirty()
	if len(dirty) == 0 {
		return
	}
	var merr *multierror.Error
	for field, idx := range dirty {
		if err := st.saveShard(field, idx); err != nil {
			merr = multierror.Append(merr, err)
		}
	}
	if merr.ErrorOrNil() != nil {
		indexLog.Errorw("index: flush failed", "dir", st.dir, "err", merr)
		report(st.acct, accountant.ErrorMsg{Kind: "io", Actor: "index"})
	}
}

func (st *indexState) saveShard(field string, idx bitmapindex.Index) error {
	path := filepath.Join(st.dir, field)
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("dataflow: open shard %s: %w", field, err)
	}
	if err := bitmapindex.SaveIndex(f, idx); err != nil {
		f.Close()
		return fmt.Errorf("dataflow: save shard %s: %w", field, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("dataflow: close shard %s: %w", field, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("dataflow: rename shard %s: %w", field, err)
	}
	return nil
}
