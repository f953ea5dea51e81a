// Package amqpiface defines the collaborator-facing AMQP 1.0 surface the
// Link Controller consumes: the link handle, its source filters, QoS, and
// disposition outcomes. The connection acceptor and wire protocol that
// produce these values live outside this module (spec.md §1); the types
// here are deliberately narrow so a real acceptor can satisfy them directly.
package amqpiface

import (
	"github.com/Azure/go-amqp"
)

// QoS mirrors the AMQP sender-settle negotiation relevant to the sink
// endpoint: whether transfers are considered complete on send (Settled,
// at-most-once) or only on disposition (Unsettled, at-least-once).
type QoS int

const (
	Unsettled QoS = iota
	Settled
)

// FromSenderSettleMode derives the endpoint's QoS from the negotiated
// go-amqp settle mode, defaulting to Unsettled when unset (mode nil), which
// matches go-amqp's own "unsettled" zero value.
func FromSenderSettleMode(mode *amqp.SenderSettleMode) QoS {
	if mode == nil {
		return Unsettled
	}
	switch *mode {
	case amqp.SenderSettleModeSettled:
		return Settled
	default:
		return Unsettled
	}
}

// Outcome is a terminal AMQP disposition outcome.
type Outcome int

const (
	Accepted Outcome = iota
	Rejected
	Released
	Modified
)

// Source is the remote source terminus of a sending link: its address and
// the dynamically-typed filter set carried in the attach frame.
type Source struct {
	Address string
	Filters map[string]interface{}
}

// ErrorCondition is the AMQP error attached to a link close/detach.
type ErrorCondition struct {
	Symbol      string
	Description string
}

func (e *ErrorCondition) Error() string {
	if e == nil {
		return ""
	}
	return e.Symbol + ": " + e.Description
}

// DispositionFunc is invoked exactly once per unsettled transfer, when the
// AMQP receiver settles it with a terminal outcome.
type DispositionFunc func(Outcome)

// Sender is the AMQP-side handle the Link Controller drives: the half of a
// sending link it owns (spec.md invariant: "the AMQP sender is accessed
// only from the event loop").
type Sender interface {
	// IsSender reports whether the local role is sender; Attach only
	// accepts senders (spec.md InvalidLinkRole).
	IsSender() bool
	// QoS reports the negotiated settlement mode.
	QoS() QoS
	// HasCredit reports whether a transfer can be sent without blocking.
	HasCredit() bool
	// Send transmits msg. settled is true for at-most-once transfers. For
	// unsettled transfers, on becomes the one-shot disposition callback.
	Send(msg *amqp.Message, settled bool, on DispositionFunc) error
	// Close closes the link, optionally with an error condition.
	Close(cond *ErrorCondition) error
	// OnCredit registers a callback invoked whenever link credit becomes
	// available after having been exhausted (spec.md §4.1 "send-queue-drain").
	OnCredit(func())
}

// Link is the attach-time handle offered to the Link Controller. Attach
// rejects it unless IsSender() is true (the AMQP peer, as receiver, is
// attaching to receive — see spec.md InvalidLinkRole).
type Link interface {
	Sender
	Source() Source
}
