// Package channel implements the inter-thread delivery path from the Kafka
// Consumer Worker to the event loop (spec.md §4.3). It replaces the
// teacher's general-purpose broadcast pub/sub (rafrombrc/go-notify, used
// throughout mozilla-services-heka/pipeline) with a single-producer/
// single-consumer queue: there is never more than one subscriber, so
// broadcast semantics only cost allocation and indirection here.
package channel

import "sync"

const (
	RequestSend            = "send"
	RequestError           = "error"
	RequestCreditAvailable = "credit"
)

// Message is one handoff across the channel: a body (the delivery token)
// plus a small header map. On RequestError, Headers carries error-amqp and
// error-desc.
type Message struct {
	Request string
	Body    string
	Headers map[string]string
}

// Channel is a named, buffered queue with exactly one consumer. Publish is safe to call concurrently from the worker thread;
// handler invocations triggered by Run never overlap, matching the event
// loop's single-threaded dispatch requirement.
type Channel struct {
	name string
	msgs chan Message

	closeOnce sync.Once
	done      chan struct{}
}

// New creates a channel with the given buffer size. ebName is the name
// shared with the paired Store (spec.md §4.3).
func New(ebName string, buffer int) *Channel {
	return &Channel{
		name: ebName,
		msgs: make(chan Message, buffer),
		done: make(chan struct{}),
	}
}

func (c *Channel) Name() string { return c.name }

// Publish is the worker-side send. It returns as soon as the message fits
// in the buffer; if the buffer is full it blocks until room is available,
// or returns false once the channel is closed — callers on the worker thread rely on pause/resume (spec.md §4.2) to keep
// the buffer from growing unbounded, not on Publish dropping messages.
func (c *Channel) Publish(msg Message) bool {
	select {
	case c.msgs <- msg:
		return true
	case <-c.done:
		return false
	}
}

// Run is the event-loop-side consume loop: it invokes handler once per
// message, strictly serialized, until Close is called. Each endpoint runs
// Run on a goroutine of its own.
func (c *Channel) Run(handler func(Message)) {
	for {
		select {
		case msg := <-c.msgs:
			handler(msg)
		case <-c.done:
			return
		}
	}
}

// MsgsForTest exposes the raw message channel for tests that need to
// observe a publish without wiring a full Run loop.
func (c *Channel) MsgsForTest() <-chan Message { return c.msgs }

// Close unsubscribes the channel; idempotent (spec.md §9 "close cascade").
func (c *Channel) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
}
