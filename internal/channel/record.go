package channel

// RecordEnvelope is a Kafka record as handed from the Consumer Worker to the
// event loop: topic, partition, offset, key, opaque value and optional
// headers (spec.md §3).
type RecordEnvelope struct {
	Topic     string
	Partition int32
	Offset    int64
	Key       string
	Value     []byte
	Headers   map[string]string
}
