// Package kafkaworker implements the Kafka Consumer Worker (spec.md §4.2):
// a blocking poll loop running on a dedicated goroutine that owns the
// Kafka client, applies partition/offset seek directives, and hands off
// records to the event loop over an internal/channel.Channel.
//
// It is a modernized descendant of mozilla-services-heka's
// plugins/kafka/kafka_input.go, rebuilt on IBM/sarama's consumer-group and
// partition-consumer APIs in place of the teacher's manual client/consumer
// pair and file-based offset checkpoint (see DESIGN.md).
package kafkaworker

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/IBM/sarama"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/mozilla-services/amqp-kafka-bridge/internal/channel"
	"github.com/mozilla-services/amqp-kafka-bridge/internal/offsettracker"
)

// Worker owns the Kafka client for one sink endpoint. It is created once
// per endpoint and runs on its own goroutine for the endpoint's lifetime
// (spec.md §5: "one dedicated OS thread per endpoint" — Go's scheduler
// multiplexes goroutines onto OS threads, but the isolation contract, one
// worker per endpoint with no shared mutable state, is preserved).
type Worker struct {
	cfg    Config
	logger log.Logger

	ch      *channel.Channel
	store   *channel.Store
	tracker *offsettracker.Tracker

	client        sarama.Client
	consumer      sarama.Consumer
	partConsumer  sarama.PartitionConsumer
	consumerGroup sarama.ConsumerGroup
	offsetManager sarama.OffsetManager

	processMessageCount    int64
	processMessageFailures int64

	pauseCh  chan struct{}
	resumeCh chan struct{}
	paused   int32

	shutdownOnce sync.Once
	done         chan struct{}
}

// New constructs a Worker. It does not connect to Kafka until Run is
// called. tracker is the endpoint's Offset Tracker; the worker queries it
// for advanced frontiers between poll cycles (spec.md §4.4 "commit
// trigger") whenever enable_auto_commit is false.
func New(cfg Config, ch *channel.Channel, store *channel.Store, tracker *offsettracker.Tracker, logger log.Logger) *Worker {
	return &Worker{
		cfg:      cfg,
		logger:   logger,
		ch:       ch,
		store:    store,
		tracker:  tracker,
		pauseCh:  make(chan struct{}, 1),
		resumeCh: make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
}

// nextToken mints a fresh, endpoint-unique delivery token (spec.md §3).
func (w *Worker) nextToken() string {
	return uuid.NewString()
}

// Run is the blocking poll loop; callers invoke it on a dedicated goroutine.
// It returns when shut down or when subscription fails fatally.
func (w *Worker) Run(ctx context.Context) {
	client, err := sarama.NewClient(w.cfg.BootstrapServers, w.clientConfig())
	if err != nil {
		w.publishError("partitions-not-exists", errors.Wrap(err, "connecting to kafka").Error())
		return
	}
	w.client = client
	defer client.Close()

	consumer, err := sarama.NewConsumerFromClient(client)
	if err != nil {
		w.publishError("partitions-not-exists", errors.Wrap(err, "creating consumer").Error())
		return
	}
	w.consumer = consumer
	defer consumer.Close()

	if !w.cfg.EnableAutoCommit {
		om, err := sarama.NewOffsetManagerFromClient(w.cfg.Subscription.GroupID, client)
		if err != nil {
			w.publishError("partitions-not-exists", errors.Wrap(err, "creating offset manager").Error())
			return
		}
		w.offsetManager = om
		defer om.Close()
	}

	sub := w.cfg.Subscription
	if sub.HasPartition {
		w.runDirectPartition(ctx, sub)
		return
	}
	w.runGroupSubscription(ctx, sub)
}

func (w *Worker) clientConfig() *sarama.Config {
	cfg := sarama.NewConfig()
	cfg.Consumer.Return.Errors = true
	if w.cfg.AutoOffsetReset == "latest" {
		cfg.Consumer.Offsets.Initial = sarama.OffsetNewest
	} else {
		cfg.Consumer.Offsets.Initial = sarama.OffsetOldest
	}
	return cfg
}

// runDirectPartition assigns exactly (topic, partition), bypassing group
// rebalancing, and seeks to the offset filter when present (spec.md §4.2
// "Subscription rule").
func (w *Worker) runDirectPartition(ctx context.Context, sub Subscription) {
	offset := sarama.OffsetOldest
	if w.cfg.AutoOffsetReset == "latest" {
		offset = sarama.OffsetNewest
	}
	if sub.HasOffset {
		offset = sub.Offset
	}

	pc, err := w.consumer.ConsumePartition(sub.Topic, sub.Partition, offset)
	if err != nil {
		level.Error(w.logger).Log("msg", "failed to assign partition", "topic", sub.Topic, "partition", sub.Partition, "err", err)
		w.publishError("partitions-not-exists", errors.Wrapf(err, "assigning %s/%d", sub.Topic, sub.Partition).Error())
		return
	}
	w.partConsumer = pc
	defer pc.Close()

	w.pollLoop(ctx, pc.Messages(), pc.Errors())
}

// runGroupSubscription subscribes by consumer group; Kafka's group
// protocol governs partition assignment and rebalances.
func (w *Worker) runGroupSubscription(ctx context.Context, sub Subscription) {
	group, err := sarama.NewConsumerGroupFromClient(sub.GroupID, w.client)
	if err != nil {
		w.publishError("partitions-not-exists", errors.Wrap(err, "joining consumer group").Error())
		return
	}
	w.consumerGroup = group
	defer group.Close()

	handler := &groupHandler{w: w}
	for {
		select {
		case <-w.done:
			return
		case <-ctx.Done():
			return
		default:
		}
		if err := group.Consume(ctx, []string{sub.Topic}, handler); err != nil {
			if errors.Is(err, sarama.ErrClosedConsumerGroup) {
				return
			}
			level.Warn(w.logger).Log("msg", "consumer group session ended", "err", err)
		}
		if !handler.assignedAny {
			w.publishError("partitions-not-exists", "no partitions assigned after subscribe for topic "+sub.Topic)
			return
		}
	}
}

// groupHandler bridges sarama's ConsumerGroupHandler callbacks to the
// worker's pollLoop, one claim (partition) at a time. A real deployment
// runs one claim per assigned partition concurrently; ordering within a
// single partition is preserved because each claim is handled by its own
// goroutine reading its own ordered message channel (spec.md §5 "for a
// single partition, records are delivered... in poll order").
type groupHandler struct {
	w           *Worker
	assignedAny bool
}

func (h *groupHandler) Setup(sess sarama.ConsumerGroupSession) error {
	h.assignedAny = len(sess.Claims()) > 0
	return nil
}

func (h *groupHandler) Cleanup(sarama.ConsumerGroupSession) error { return nil }

func (h *groupHandler) ConsumeClaim(sess sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for msg := range claim.Messages() {
		h.w.publishRecord(msg.Topic, msg.Partition, msg.Offset, msg.Key, msg.Value, msg.Headers)
		if h.w.cfg.EnableAutoCommit {
			sess.MarkMessage(msg, "")
		}
		h.w.CommitDue()
		h.w.waitWhilePaused()
	}
	return nil
}

// pollLoop drains a plain (non-group) message/error channel pair, used for
// direct partition assignment.
func (w *Worker) pollLoop(ctx context.Context, msgs <-chan *sarama.ConsumerMessage, errs <-chan *sarama.ConsumerError) {
	for {
		select {
		case <-w.done:
			return
		case <-ctx.Done():
			return
		case cerr, ok := <-errs:
			if !ok {
				return
			}
			atomic.AddInt64(&w.processMessageFailures, 1)
			level.Warn(w.logger).Log("msg", "kafka poll error", "err", cerr)
		case msg, ok := <-msgs:
			if !ok {
				return
			}
			atomic.AddInt64(&w.processMessageCount, 1)
			w.publishRecord(msg.Topic, msg.Partition, msg.Offset, msg.Key, msg.Value, msg.Headers)
			w.CommitDue()
			w.waitWhilePaused()
		}
	}
}

func (w *Worker) publishRecord(topic string, partition int32, offset int64, key []byte, value []byte, hdrs []*sarama.RecordHeader) {
	token := w.nextToken()
	headers := make(map[string]string, len(hdrs))
	for _, h := range hdrs {
		headers[string(h.Key)] = string(h.Value)
	}
	w.store.Insert(token, channel.RecordEnvelope{
		Topic:     topic,
		Partition: partition,
		Offset:    offset,
		Key:       string(key),
		Value:     value,
		Headers:   headers,
	})
	w.ch.Publish(channel.Message{Request: channel.RequestSend, Body: token})
}

func (w *Worker) publishError(symbol, description string) {
	w.ch.Publish(channel.Message{
		Request: channel.RequestError,
		Headers: map[string]string{
			"error-amqp": symbol,
			"error-desc": description,
		},
	})
}

// Pause suspends polling; safe to call from the event loop concurrently
// with an in-flight poll (spec.md §4.2 "these directives must be safe to
// call from the event loop while the worker is mid-poll"). The worker may
// have already published up to one more poll batch before observing the
// pause (spec.md §9 open question) — callers must tolerate that.
func (w *Worker) Pause() {
	if atomic.CompareAndSwapInt32(&w.paused, 0, 1) {
		if w.partConsumer != nil && w.consumer != nil {
			sub := w.cfg.Subscription
			w.consumer.Pause(map[string][]int32{sub.Topic: {sub.Partition}})
		}
		select {
		case w.pauseCh <- struct{}{}:
		default:
		}
	}
}

// Resume re-enables polling. For direct partition assignment this must
// undo Pause's sarama-level pause: sarama.Consumer keeps a paused partition
// paused until Resume is called on it explicitly, regardless of
// waitWhilePaused (see consumer.go's pause/resume bookkeeping), so skipping
// this would leave the partition consumer silent forever after one pause.
func (w *Worker) Resume() {
	if atomic.CompareAndSwapInt32(&w.paused, 1, 0) {
		if w.partConsumer != nil && w.consumer != nil {
			sub := w.cfg.Subscription
			w.consumer.Resume(map[string][]int32{sub.Topic: {sub.Partition}})
		}
		select {
		case w.resumeCh <- struct{}{}:
		default:
		}
	}
}

// waitWhilePaused blocks the poll loop between records while paused is
// set, draining the resume signal to unblock.
func (w *Worker) waitWhilePaused() {
	for atomic.LoadInt32(&w.paused) == 1 {
		select {
		case <-w.resumeCh:
			// re-check paused: the signal may be left over from an earlier Resume
		case <-w.done:
			return
		case <-time.After(w.cfg.PollTimeout):
		}
	}
}

// Shutdown stops the poll loop; idempotent (spec.md §5 "worker shutdown
// must be idempotent").
func (w *Worker) Shutdown() {
	w.shutdownOnce.Do(func() {
		close(w.done)
	})
}

// Counts returns the worker's message-processing counters (supplements
// spec.md §7's poll-exception accounting).
func (w *Worker) Counts() (processed, failed int64) {
	return atomic.LoadInt64(&w.processMessageCount), atomic.LoadInt64(&w.processMessageFailures)
}
