package actorkit

import (
	"fmt"
	"sync"
)

// stopSignal is the distinguished mailbox message that requests cooperative
// shutdown: the actor finishes handling whatever it is already processing,
// drains no further messages beyond the stop signal's position, and exits.
type stopSignal struct{}

// Down is delivered to every monitor of an actor that has exited, carrying
// the reason (nil on a clean stop).
type Down struct {
	Actor *Ref
	Err   error
}

// Handler processes one mailbox message. Returning an error terminates the
// actor (a `fatal`-class failure per the error-handling design); actors
// that only ever see recoverable errors should log and return nil.
type Handler func(self *Ref, msg any) error

// Ref is a handle to a running actor: the only way other actors or the
// host may interact with it. An actor's own state is never reachable
// through a Ref — only message passing is.
type Ref struct {
	name    string
	mailbox *mailbox

	mu       sync.Mutex
	monitors []*Ref
	stopped  bool
	err      error
	done     chan struct{}
}

// Name identifies the actor for logging and message routing.
func (r *Ref) Name() string { return r.name }

// Send enqueues msg for the actor to process. Send never blocks and never
// fails; a stopped actor silently drops messages sent to it, matching the
// "peer down" semantics callers are expected to detect via Monitor instead.
func (r *Ref) Send(msg any) {
	r.mu.Lock()
	stopped := r.stopped
	r.mu.Unlock()
	if stopped {
		return
	}
	r.mailbox.push(msg)
}

// Stop requests cooperative shutdown: the actor finishes its current
// message, then exits without processing anything enqueued after Stop.
func (r *Ref) Stop() {
	r.mailbox.push(stopSignal{})
}

// Monitor subscribes watcher to this actor's Down message, the mechanism
// the exporter uses to cancel pending archive lookups when a collaborator
// exits.
func (r *Ref) Monitor(watcher *Ref) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped {
		watcher.Send(Down{Actor: r, Err: r.err})
		return
	}
	r.monitors = append(r.monitors, watcher)
}

// Wait blocks until the actor has exited.
func (r *Ref) Wait() { <-r.done }

// Spawn starts an actor running handler in its own goroutine and returns a
// Ref to it. The actor processes messages one at a time from its mailbox
// until it receives Stop, its handler returns an error, or its mailbox is
// externally closed.
func Spawn(name string, handler Handler) *Ref {
	r := &Ref{name: name, mailbox: newMailbox(), done: make(chan struct{})}
	go r.run(handler)
	return r
}

func (r *Ref) run(handler Handler) {
	defer close(r.done)
	var runErr error
loop:
	for {
		msg, ok := r.mailbox.pop()
		if !ok {
			break
		}
		if _, isStop := msg.(stopSignal); isStop {
			break loop
		}
		if err := handler(r, msg); err != nil {
			runErr = err
			break loop
		}
	}
	r.terminate(runErr)
}

func (r *Ref) terminate(err error) {
	r.mu.Lock()
	r.stopped = true
	r.err = err
	monitors := r.monitors
	r.monitors = nil
	r.mu.Unlock()
	r.mailbox.close()
	down := Down{Actor: r, Err: err}
	for _, m := range monitors {
		m.Send(down)
	}
}

// Err returns the error the actor terminated with, or nil if it has not
// stopped or stopped cleanly.
func (r *Ref) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

func (r *Ref) String() string {
	return fmt.Sprintf("actor(%s)", r.name)
}
