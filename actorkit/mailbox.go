// Package actorkit implements corvid's actor runtime: single-threaded
// message-driven actors coordinating only by message passing, cooperative
// `stop` cancellation, monitor/down-message teardown, and a generic TASK
// fan-in barrier used by INDEX to track a set of concurrent sub-lookups.
// No actor's private state is ever touched by another actor; chunks and
// bitstreams cross actor boundaries only as shared-immutable handles.
package actorkit

import (
	"sync"

	"github.com/gammazero/deque"
)

// mailbox is an unbounded FIFO queue of pending messages with a blocking
// pop, backed by github.com/gammazero/deque the way the teacher's
// progress-bar dependency (vbauerster/mpb) uses it as a ring buffer.
type mailbox struct {
	mu     sync.Mutex
	cond   *sync.Cond
	q      *deque.Deque
	closed bool
}

func newMailbox() *mailbox {
	m := &mailbox{q: deque.New()}
	m.cond = sync.NewCond(&m.mu)
	return m
}

// push enqueues msg, waking exactly one blocked pop.
func (m *mailbox) push(msg any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.q.PushBack(msg)
	m.cond.Signal()
}

// pop blocks until a message is available or the mailbox is closed,
// returning ok=false only in the closed-and-drained case.
func (m *mailbox) pop() (any, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for m.q.Len() == 0 && !m.closed {
		m.cond.Wait()
	}
	if m.q.Len() == 0 {
		return nil, false
	}
	return m.q.PopFront(), true
}

// close marks the mailbox closed; pending messages already enqueued are
// still delivered by pop, draining it, before pop starts returning false.
func (m *mailbox) close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.cond.Broadcast()
}

func (m *mailbox) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.q.Len()
}
