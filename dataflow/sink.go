package dataflow

import (
	"sync"

	"github.com/corvidlabs/corvid/actorkit"
	"github.com/corvidlabs/corvid/event"
)

// Sink receives EXPORTER's Relay and Done messages. The host (cmd/corvidctl
// or a test) implements this to print, collect, or forward matching
// events; the dataflow package itself only needs the actor wrapper below.
type Sink interface {
	Deliver(event.Event) error
	Done()
}

// CollectingSink is a Sink that appends every delivered event to a slice,
// used by tests and by `corvidctl query` to buffer results before
// printing.
type CollectingSink struct {
	mu     sync.Mutex
	events []event.Event
	done   chan struct{}
	once   sync.Once
}

// NewCollectingSink returns a ready-to-register CollectingSink.
func NewCollectingSink() *CollectingSink {
	return &CollectingSink{done: make(chan struct{})}
}

func (c *CollectingSink) Deliver(ev event.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
	return nil
}

func (c *CollectingSink) Done() {
	c.once.Do(func() { close(c.done) })
}

// Wait blocks until EXPORTER has signaled completion.
func (c *CollectingSink) Wait() { <-c.done }

// Events returns the events collected so far (safe to call before or
// after Wait returns).
func (c *CollectingSink) Events() []event.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]event.Event, len(c.events))
	copy(out, c.events)
	return out
}

// SpawnSink wraps a Sink as an actor so it can be registered with
// put(sink, actor) alongside ARCHIVE and INDEX.
func SpawnSink(sink Sink) *actorkit.Ref {
	return actorkit.Spawn("sink", func(self *actorkit.Ref, msg any) error {
		switch m := msg.(type) {
		case Relay:
			if err := sink.Deliver(m.Event); err != nil {
				return err
			}
		case Done:
			sink.Done()
		}
		return nil
	})
}
