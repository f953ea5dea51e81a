package sink

import (
	"github.com/mozilla-services/amqp-kafka-bridge/internal/amqpiface"
)

// ParsedFilters is the result of validating the optional partition/offset
// source filters (spec.md §4.1 validation table).
type ParsedFilters struct {
	HasPartition bool
	Partition    int32
	HasOffset    bool
	Offset       int64
}

// ParseFilters validates raw, dynamically-typed filter values. It never
// coerces (spec.md §9 "do not coerce") — a filter present under the wrong
// Go type is a validation error, not a best-effort conversion.
func ParseFilters(raw map[string]interface{}) (ParsedFilters, *amqpiface.ErrorCondition) {
	var pf ParsedFilters

	partitionRaw, hasPartitionRaw := raw["partition"]
	offsetRaw, hasOffsetRaw := raw["offset"]

	if hasPartitionRaw {
		p, ok := asInt32(partitionRaw)
		if !ok {
			return ParsedFilters{}, &amqpiface.ErrorCondition{
				Symbol:      amqpiface.SymbolWrongPartitionFilter,
				Description: "partition filter is not an integer",
			}
		}
		pf.Partition = p
		pf.HasPartition = true
	}

	if hasOffsetRaw {
		o, ok := asInt64(offsetRaw)
		if !ok {
			return ParsedFilters{}, &amqpiface.ErrorCondition{
				Symbol:      amqpiface.SymbolWrongOffsetFilter,
				Description: "offset filter is not a long",
			}
		}
		pf.Offset = o
		pf.HasOffset = true
	}

	if pf.HasOffset && !pf.HasPartition {
		return ParsedFilters{}, &amqpiface.ErrorCondition{
			Symbol:      amqpiface.SymbolNoPartitionFilter,
			Description: "offset filter requires a partition filter",
		}
	}
	if pf.HasPartition && pf.Partition < 0 {
		return ParsedFilters{}, &amqpiface.ErrorCondition{
			Symbol:      amqpiface.SymbolWrongFilter,
			Description: "partition filter must be non-negative",
		}
	}
	if pf.HasOffset && pf.Offset < 0 {
		return ParsedFilters{}, &amqpiface.ErrorCondition{
			Symbol:      amqpiface.SymbolWrongFilter,
			Description: "offset filter must be non-negative",
		}
	}

	return pf, nil
}

// asInt32 accepts only integer Go types, matching an AMQP "int" filter
// value; a float or string value is a validation error, not a coercion
// target.
func asInt32(v interface{}) (int32, bool) {
	switch n := v.(type) {
	case int32:
		return n, true
	case int:
		return int32(n), true
	case int16:
		return int32(n), true
	case int8:
		return int32(n), true
	default:
		return 0, false
	}
}

// asInt64 accepts only integer Go types, matching an AMQP "long" filter
// value.
func asInt64(v interface{}) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int32:
		return int64(n), true
	case int:
		return int64(n), true
	default:
		return 0, false
	}
}
