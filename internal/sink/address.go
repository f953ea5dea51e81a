package sink

import (
	"strings"

	"github.com/mozilla-services/amqp-kafka-bridge/internal/amqpiface"
)

const groupIDMarker = "/group.id/"

// ParsedAddress is the result of splitting an AMQP remote-source address
// into its Kafka topic and consumer-group id (spec.md §4.1, §6).
type ParsedAddress struct {
	Topic   string
	GroupID string
}

// ParseAddress splits address on the literal "/group.id/" marker. It
// returns amqpiface.SymbolNoGroupID if the marker is absent, or
// amqpiface.SymbolWrongFilter if either half is empty.
func ParseAddress(address string) (ParsedAddress, *amqpiface.ErrorCondition) {
	idx := strings.Index(address, groupIDMarker)
	if idx < 0 {
		return ParsedAddress{}, &amqpiface.ErrorCondition{
			Symbol:      amqpiface.SymbolNoGroupID,
			Description: "remote source address is missing the " + groupIDMarker + " separator",
		}
	}
	topic := address[:idx]
	group := address[idx+len(groupIDMarker):]
	if topic == "" || group == "" {
		return ParsedAddress{}, &amqpiface.ErrorCondition{
			Symbol:      amqpiface.SymbolWrongFilter,
			Description: "topic and group id must both be non-empty",
		}
	}
	return ParsedAddress{Topic: topic, GroupID: group}, nil
}

// FormatAddress is the inverse of ParseAddress for topics and groups that
// do not themselves contain the marker (spec.md §8 round-trip law).
func FormatAddress(topic, group string) string {
	return topic + groupIDMarker + group
}
