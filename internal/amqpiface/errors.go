package amqpiface

// Error symbols emitted by the Link Controller. Exact strings are part of
// the external contract (spec.md §6) and must match the bridge's
// error-symbol namespace.
const (
	SymbolNoGroupID            = "no-groupid"
	SymbolWrongFilter          = "wrong-filter"
	SymbolWrongPartitionFilter = "wrong-partition-filter"
	SymbolWrongOffsetFilter    = "wrong-offset-filter"
	SymbolNoPartitionFilter    = "no-partition-filter"
	SymbolPartitionsNotExist   = "partitions-not-exists"
)

// InvalidLinkRole is returned by sink.Endpoint.Attach when the attaching link is not a
// sender (the bridge only serves sink endpoints on sending links).
var InvalidLinkRole = &ErrorCondition{
	Symbol:      "invalid-link-role",
	Description: "remote link is not a sender",
}
