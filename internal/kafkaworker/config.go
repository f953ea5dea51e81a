package kafkaworker

import "time"

// Subscription describes how a worker attaches to Kafka, derived from the
// Link Controller's parsed address and filters (spec.md §4.2 "Subscription
// rule"). It intentionally holds only primitives so this package does not
// import internal/sink and create a dependency cycle.
type Subscription struct {
	Topic   string
	GroupID string

	HasPartition bool
	Partition    int32

	HasOffset bool
	Offset    int64
}

// Config is the worker's construction parameters, derived from
// bridgeconfig.BridgeConfig plus the per-link Subscription.
type Config struct {
	Subscription Subscription

	BootstrapServers []string
	AutoOffsetReset  string // "earliest" or "latest", mirrors sarama.OffsetOldest/OffsetNewest
	EnableAutoCommit bool

	PollTimeout time.Duration
}
