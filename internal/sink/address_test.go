package sink

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mozilla-services/amqp-kafka-bridge/internal/amqpiface"
)

func TestParseAddressValid(t *testing.T) {
	parsed, cond := ParseAddress("orders/group.id/g1")
	require.Nil(t, cond)
	assert.Equal(t, "orders", parsed.Topic)
	assert.Equal(t, "g1", parsed.GroupID)
}

func TestParseAddressMissingMarker(t *testing.T) {
	// spec.md §8 scenario 3.
	_, cond := ParseAddress("orders")
	require.NotNil(t, cond)
	assert.Equal(t, amqpiface.SymbolNoGroupID, cond.Symbol)
}

func TestParseAddressEmptyTopicOrGroup(t *testing.T) {
	_, cond := ParseAddress("/group.id/g1")
	require.NotNil(t, cond)
	assert.Equal(t, amqpiface.SymbolWrongFilter, cond.Symbol)

	_, cond = ParseAddress("orders/group.id/")
	require.NotNil(t, cond)
	assert.Equal(t, amqpiface.SymbolWrongFilter, cond.Symbol)
}

func TestParseAddressRoundTrip(t *testing.T) {
	// spec.md §8 round-trip law: for any (topic, group) neither containing
	// the marker, parse(format(topic, group)) == (topic, group).
	cases := [][2]string{
		{"orders", "g1"},
		{"payments.eu", "consumer-group-7"},
		{"a", "b"},
	}
	for _, c := range cases {
		addr := FormatAddress(c[0], c[1])
		parsed, cond := ParseAddress(addr)
		require.Nil(t, cond)
		assert.Equal(t, c[0], parsed.Topic)
		assert.Equal(t, c[1], parsed.GroupID)
	}
}
