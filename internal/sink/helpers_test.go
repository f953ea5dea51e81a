package sink

import (
	"context"
	"fmt"

	"github.com/go-kit/log"

	"github.com/mozilla-services/amqp-kafka-bridge/internal/amqpiface"
	"github.com/mozilla-services/amqp-kafka-bridge/internal/channel"
	"github.com/mozilla-services/amqp-kafka-bridge/internal/kafkaworker"
	"github.com/mozilla-services/amqp-kafka-bridge/internal/offsettracker"
)

// noopWorker never dials Kafka; it lets endpoint tests exercise dispatch
// logic deterministically by feeding the store/channel directly instead of
// through a live poll loop.
type noopWorker struct{}

func (noopWorker) Run(ctx context.Context) { <-ctx.Done() }
func (noopWorker) Pause()                  {}
func (noopWorker) Resume()                 {}
func (noopWorker) Shutdown()               {}

func testOptions() Options {
	return Options{
		NewWorker: func(kafkaworker.Config, *channel.Channel, *channel.Store, *offsettracker.Tracker, log.Logger) kafkaWorker {
			return noopWorker{}
		},
	}
}

func recordAt(partition int32, offset int64) channel.RecordEnvelope {
	return channel.RecordEnvelope{
		Topic:     "orders",
		Partition: partition,
		Offset:    offset,
		Value:     []byte("payload"),
	}
}

func sendMsg(token string) channel.Message {
	return channel.Message{Request: channel.RequestSend, Body: token}
}

func errMsg(symbol, desc string) channel.Message {
	return channel.Message{
		Request: channel.RequestError,
		Headers: map[string]string{"error-amqp": symbol, "error-desc": desc},
	}
}

func tokenFor(i int) string {
	return fmt.Sprintf("tok-%d", i)
}

var _ = amqpiface.Accepted // keep import used if helpers change
