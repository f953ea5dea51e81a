// Package sink implements the Link Controller and Sink Endpoint (spec.md
// §4.1): the per-link subsystem that parses the AMQP attach, owns the AMQP
// sender, and mediates flow control, delivery acknowledgement and offset
// tracking against a Kafka Consumer Worker running on its own goroutine.
//
// It is a generalized descendant of mozilla-services-heka's
// plugins/amqp/amqp_input.go: the teacher's AMQPInput parses a RabbitMQ
// exchange/queue/routing-key config and republishes deliveries into Heka's
// pipeline; this endpoint instead parses an AMQP 1.0 link address into a
// Kafka topic/group and republishes Kafka records as AMQP transfers, using
// the same "owns one external connection, drives it from one runner"
// shape (see DESIGN.md).
package sink

import (
	"context"
	"sync"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/google/uuid"

	"github.com/mozilla-services/amqp-kafka-bridge/internal/amqpiface"
	"github.com/mozilla-services/amqp-kafka-bridge/internal/channel"
	"github.com/mozilla-services/amqp-kafka-bridge/internal/converter"
	"github.com/mozilla-services/amqp-kafka-bridge/internal/kafkaworker"
	"github.com/mozilla-services/amqp-kafka-bridge/internal/offsettracker"
)

// newWorkerFunc builds the Kafka Consumer Worker for an attaching link,
// wired to the endpoint's own Offset Tracker so the worker can query it
// between poll cycles (spec.md §4.4 "commit trigger").
type newWorkerFunc func(cfg kafkaworker.Config, ch *channel.Channel, store *channel.Store, tracker *offsettracker.Tracker, logger log.Logger) kafkaWorker

// kafkaWorker is the subset of *kafkaworker.Worker the endpoint drives.
// Expressing it as an interface lets tests substitute a worker that never
// dials a broker, without changing any dispatch logic.
type kafkaWorker interface {
	Run(ctx context.Context)
	Pause()
	Resume()
	Shutdown()
}

// Options configures a new Endpoint; the parts not derivable from the
// attach frame itself (spec.md §6 BridgeConfig, plus tuning knobs).
type Options struct {
	BootstrapServers []string
	AutoOffsetReset  string
	EnableAutoCommit bool
	PollTimeout      time.Duration
	ChannelBuffer    int
	Converter        converter.MessageConverter
	Logger           log.Logger

	// NewWorker builds the Kafka Consumer Worker for an attaching link.
	// Defaults to kafkaworker.New; overridable in tests.
	NewWorker newWorkerFunc
}

func (o *Options) setDefaults() {
	if o.PollTimeout <= 0 {
		o.PollTimeout = 250 * time.Millisecond
	}
	if o.ChannelBuffer <= 0 {
		o.ChannelBuffer = 64
	}
	if o.Converter == nil {
		o.Converter = converter.Passthrough{}
	}
	if o.Logger == nil {
		o.Logger = log.NewNopLogger()
	}
	if o.NewWorker == nil {
		o.NewWorker = func(cfg kafkaworker.Config, ch *channel.Channel, store *channel.Store, tracker *offsettracker.Tracker, logger log.Logger) kafkaWorker {
			return kafkaworker.New(cfg, ch, store, tracker, logger)
		}
	}
}

// Endpoint is one sink endpoint: one AMQP sending link bound to one Kafka
// topic/group subscription. It implements the BridgeEndpoint collaborator
// contract (spec.md §6): Open is implicit in Attach succeeding, Close tears
// everything down, Handle is Attach, and OnClose registers the fire-once
// close callback.
type Endpoint struct {
	opts Options

	mu    sync.Mutex
	state State

	name    string // ebName: channel + store name, globally unique
	link    amqpiface.Link
	topic   string
	groupID string
	qos     amqpiface.QoS

	ch      *channel.Channel
	store   *channel.Store
	worker  kafkaWorker
	tracker *offsettracker.Tracker

	deferred []string // FIFO queue of tokens awaiting credit

	cancelWorker context.CancelFunc
	workerWG     sync.WaitGroup

	closeCallbacks []func()
	closeOnce      sync.Once
}

// New creates an endpoint in state NEW. Call Attach to bring it OPEN.
func New(opts Options) *Endpoint {
	opts.setDefaults()
	return &Endpoint{opts: opts, state: StateNew, tracker: offsettracker.New()}
}

// OnClose registers a callback invoked exactly once when the endpoint
// self-closes for any reason (spec.md §4.1).
func (e *Endpoint) OnClose(cb func()) {
	e.mu.Lock()
	e.closeCallbacks = append(e.closeCallbacks, cb)
	e.mu.Unlock()
}

func (e *Endpoint) fireClose() {
	e.closeOnce.Do(func() {
		e.mu.Lock()
		cbs := e.closeCallbacks
		e.mu.Unlock()
		for _, cb := range cbs {
			cb()
		}
	})
}

// Attach is the entry point for all AMQP-side events (spec.md §4.1): it
// validates the link is a sender, parses and validates the address and
// filters, and — only if everything validates — starts the Kafka Consumer
// Worker and the channel dispatch loop.
func (e *Endpoint) Attach(link amqpiface.Link) error {
	if !link.IsSender() {
		e.rejectLink(link, amqpiface.InvalidLinkRole)
		return amqpiface.InvalidLinkRole
	}

	src := link.Source()
	parsed, cond := ParseAddress(src.Address)
	if cond != nil {
		e.rejectLink(link, cond)
		return cond
	}
	filters, cond := ParseFilters(src.Filters)
	if cond != nil {
		e.rejectLink(link, cond)
		return cond
	}

	e.mu.Lock()
	if e.state != StateNew {
		e.mu.Unlock()
		return errAlreadyAttached
	}
	e.link = link
	e.topic = parsed.Topic
	e.groupID = parsed.GroupID
	e.qos = link.QoS()
	e.name = uuid.NewString()
	e.ch = channel.New(e.name, e.opts.ChannelBuffer)
	e.store = channel.NewStore(e.name)
	e.state = StateOpen
	e.mu.Unlock()

	e.link.OnCredit(e.onCreditAvailable)

	sub := kafkaworker.Subscription{
		Topic:        e.topic,
		GroupID:      e.groupID,
		HasPartition: filters.HasPartition,
		Partition:    filters.Partition,
		HasOffset:    filters.HasOffset,
		Offset:       filters.Offset,
	}
	workerCfg := kafkaworker.Config{
		Subscription:     sub,
		BootstrapServers: e.opts.BootstrapServers,
		AutoOffsetReset:  e.opts.AutoOffsetReset,
		EnableAutoCommit: e.opts.EnableAutoCommit,
		PollTimeout:      e.opts.PollTimeout,
	}
	e.worker = e.opts.NewWorker(workerCfg, e.ch, e.store, e.tracker, log.With(e.opts.Logger, "endpoint", e.name, "topic", e.topic))

	ctx, cancel := context.WithCancel(context.Background())
	e.cancelWorker = cancel

	e.workerWG.Add(1)
	go func() {
		defer e.workerWG.Done()
		e.worker.Run(ctx)
	}()

	go e.ch.Run(e.dispatch)

	return nil
}

func (e *Endpoint) rejectLink(link amqpiface.Link, cond *amqpiface.ErrorCondition) {
	_ = link.Close(cond)
	e.fireClose()
}

// dispatch is the channel's single consumer callback: strictly serialized,
// never overlapping (spec.md §4.3). Apart from Close, which empties the
// deferred queue, it is the only place that appends to or drains the
// deferred queue, registers records with the offset tracker, or calls
// link.Send — spec.md
// §5's "the AMQP sender is accessed only from the event loop" invariant
// depends on every send, whether newly arrived or drained off the deferred
// queue, passing through this one goroutine.
func (e *Endpoint) dispatch(msg channel.Message) {
	switch msg.Request {
	case channel.RequestSend:
		e.handleSend(msg.Body)
	case channel.RequestError:
		e.handleError(msg.Headers)
	case channel.RequestCreditAvailable:
		e.drainDeferred()
	}
}

func (e *Endpoint) handleSend(token string) {
	e.mu.Lock()
	if e.state == StateClosed || e.state == StateClosing {
		e.mu.Unlock()
		return
	}
	// Queue behind already-deferred tokens so transfers keep FIFO order.
	hasCredit := e.link.HasCredit() && len(e.deferred) == 0
	e.mu.Unlock()

	if !hasCredit {
		e.deferToken(token)
		return
	}
	e.sendToken(token)
}

// deferToken appends token to the deferred queue and pauses the worker
// (spec.md §4.1 dispatch step 1). The worker may publish up to one more
// poll batch before observing the pause (spec.md §9 open question); those
// tokens are deferred too when they arrive.
func (e *Endpoint) deferToken(token string) {
	e.mu.Lock()
	e.deferred = append(e.deferred, token)
	if e.state == StateOpen {
		e.state = StateOpenPaused
	}
	e.mu.Unlock()
	e.worker.Pause()
}

// sendToken removes the record from the store and transmits it, applying
// the QoS branch (spec.md §4.1 steps 2-4).
func (e *Endpoint) sendToken(token string) {
	rec, ok := e.store.Remove(token)
	if !ok {
		return // stale token; record already removed
	}

	amqpMsg, err := e.opts.Converter.ToAMQP(rec)
	if err != nil {
		level.Warn(e.opts.Logger).Log("msg", "converter error, dropping record", "token", token, "err", err)
		return
	}

	if e.qos == amqpiface.Settled {
		_ = e.link.Send(amqpMsg, true, nil)
		return
	}

	e.tracker.Track(token, rec.Partition, rec.Offset)
	err = e.link.Send(amqpMsg, false, func(amqpiface.Outcome) {
		// Any terminal outcome (accepted, rejected, released, modified)
		// reports the token as delivered; the tracker records it
		// regardless and advances the frontier greedily (spec.md §4.1, §4.4).
		e.tracker.Delivered(token)
	})
	if err != nil {
		level.Warn(e.opts.Logger).Log("msg", "send failed", "token", token, "err", err)
	}
}

// onCreditAvailable is the AMQP link's credit-available callback (spec.md
// §4.1 "Flow control"). It may run on whatever goroutine the connection
// acceptor drives links from, so it never touches endpoint state or the
// sender directly — it only hands a drain request to the single dispatch
// goroutine via the channel, the same handoff the Kafka Consumer Worker
// uses for records.
func (e *Endpoint) onCreditAvailable() {
	e.ch.Publish(channel.Message{Request: channel.RequestCreditAvailable})
}

// drainDeferred drains the deferred queue FIFO, and only once the queue is
// empty does it resume the worker. Called only from dispatch, so it is the
// sole place (besides handleSend) where link.Send is invoked.
func (e *Endpoint) drainDeferred() {
	for {
		e.mu.Lock()
		if e.state == StateClosed || e.state == StateClosing {
			e.mu.Unlock()
			return
		}
		if !e.link.HasCredit() {
			e.mu.Unlock()
			return
		}
		if len(e.deferred) == 0 {
			e.state = StateOpen
			e.mu.Unlock()
			e.worker.Resume()
			return
		}
		token := e.deferred[0]
		e.deferred = e.deferred[1:]
		e.mu.Unlock()

		e.sendToken(token)
	}
}

// handleError constructs an AMQP ErrorCondition from the worker's error
// message and tears the endpoint down (spec.md §4.1 "On error").
func (e *Endpoint) handleError(headers map[string]string) {
	cond := &amqpiface.ErrorCondition{
		Symbol:      headers["error-amqp"],
		Description: headers["error-desc"],
	}
	e.mu.Lock()
	link := e.link
	e.mu.Unlock()
	if link != nil {
		_ = link.Close(cond)
	}
	e.Close()
}

// Close tears down the endpoint: stops the worker, unsubscribes the
// channel, clears the keyed store and deferred queue, and resets the
// offset tracker (spec.md §4.1). Idempotent and safe to call reentrantly
// from within dispatch (spec.md §9 "close cascade").
func (e *Endpoint) Close() {
	e.mu.Lock()
	if e.state == StateClosed {
		e.mu.Unlock()
		return
	}
	e.state = StateClosing
	worker := e.worker
	cancel := e.cancelWorker
	ch := e.ch
	store := e.store
	tracker := e.tracker
	e.deferred = nil
	e.mu.Unlock()

	if worker != nil {
		worker.Shutdown()
	}
	if cancel != nil {
		cancel()
	}
	if ch != nil {
		ch.Close()
	}
	if store != nil {
		store.Clear()
	}
	if tracker != nil {
		tracker.Clear()
	}

	e.mu.Lock()
	e.state = StateClosed
	e.mu.Unlock()

	e.fireClose()
}

// State reports the endpoint's current lifecycle state (test/diagnostic
// use).
func (e *Endpoint) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}
