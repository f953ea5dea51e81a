// Package converter defines the AMQP<->Kafka message-payload conversion
// boundary. It is out of scope per spec.md §1 ("treated as a pure
// function"); this package only carries the interface the sink package
// depends on, plus a reference passthrough implementation for tests.
package converter

import (
	"github.com/Azure/go-amqp"

	"github.com/mozilla-services/amqp-kafka-bridge/internal/channel"
)

// MessageConverter turns a Kafka record envelope into an outbound AMQP
// message. Implementations must be pure and side-effect-free (spec.md §6).
type MessageConverter interface {
	ToAMQP(rec channel.RecordEnvelope) (*amqp.Message, error)
}

// Passthrough is the simplest conformant MessageConverter: it carries the
// record's value into the AMQP message body, its topic, partition, offset
// and (non-empty) key into message annotations, and its headers into
// application properties, without any reinterpretation.
type Passthrough struct{}

func (Passthrough) ToAMQP(rec channel.RecordEnvelope) (*amqp.Message, error) {
	msg := &amqp.Message{
		Data: [][]byte{rec.Value},
	}
	annotations := amqp.Annotations{
		"x-kafka-topic":     rec.Topic,
		"x-kafka-partition": rec.Partition,
		"x-kafka-offset":    rec.Offset,
	}
	if rec.Key != "" {
		annotations["x-kafka-key"] = rec.Key
	}
	msg.Annotations = annotations
	if len(rec.Headers) > 0 {
		props := make(map[string]interface{}, len(rec.Headers))
		for k, v := range rec.Headers {
			props[k] = v
		}
		msg.ApplicationProperties = props
	}
	return msg, nil
}
