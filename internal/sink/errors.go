package sink

import "errors"

// errAlreadyAttached guards against Attach being called more than once on
// the same Endpoint.
var errAlreadyAttached = errors.New("sink: endpoint already attached")
