package amqpiface

import (
	"testing"

	"github.com/Azure/go-amqp"
	"github.com/stretchr/testify/assert"
)

func TestFromSenderSettleMode(t *testing.T) {
	assert.Equal(t, Unsettled, FromSenderSettleMode(nil))

	settled := amqp.SenderSettleModeSettled
	assert.Equal(t, Settled, FromSenderSettleMode(&settled))

	mixed := amqp.SenderSettleModeMixed
	assert.Equal(t, Unsettled, FromSenderSettleMode(&mixed))
}

func TestErrorConditionError(t *testing.T) {
	var nilCond *ErrorCondition
	assert.Equal(t, "", nilCond.Error())

	cond := &ErrorCondition{Symbol: "wrong-filter", Description: "bad"}
	assert.Equal(t, "wrong-filter: bad", cond.Error())
}
