package sink

import (
	"sync"
	"testing"
	"time"

	"github.com/Azure/go-amqp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mozilla-services/amqp-kafka-bridge/internal/amqpiface"
)

// fakeLink is a minimal, deterministic stand-in for the real AMQP
// connection acceptor's link handle, sized to exercise the Link
// Controller's dispatch and flow-control logic without a live broker on
// either side (spec.md §1: the acceptor is an external collaborator).
type fakeLink struct {
	mu sync.Mutex

	isSender bool
	source   amqpiface.Source
	qos      amqpiface.QoS

	credit int
	onCred func()

	sent      []*amqp.Message
	closed    bool
	closeCond *amqpiface.ErrorCondition
}

func (f *fakeLink) IsSender() bool        { return f.isSender }
func (f *fakeLink) QoS() amqpiface.QoS    { return f.qos }
func (f *fakeLink) Source() amqpiface.Source { return f.source }

func (f *fakeLink) HasCredit() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.credit > 0
}

func (f *fakeLink) Send(msg *amqp.Message, settled bool, on amqpiface.DispositionFunc) error {
	f.mu.Lock()
	f.credit--
	f.sent = append(f.sent, msg)
	f.mu.Unlock()
	if !settled && on != nil {
		on(amqpiface.Accepted)
	}
	return nil
}

func (f *fakeLink) Close(cond *amqpiface.ErrorCondition) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	f.closeCond = cond
	return nil
}

func (f *fakeLink) OnCredit(cb func()) {
	f.mu.Lock()
	f.onCred = cb
	f.mu.Unlock()
}

func (f *fakeLink) grantCredit(n int) {
	f.mu.Lock()
	f.credit += n
	cb := f.onCred
	f.mu.Unlock()
	if cb != nil {
		cb()
	}
}

func (f *fakeLink) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func newFakeLink(address string, qos amqpiface.QoS, credit int) *fakeLink {
	return &fakeLink{
		isSender: true,
		source:   amqpiface.Source{Address: address},
		qos:      qos,
		credit:   credit,
	}
}

func TestAttachRejectsNonSender(t *testing.T) {
	e := New(testOptions())
	link := newFakeLink("orders/group.id/g1", amqpiface.Unsettled, 1)
	link.isSender = false

	err := e.Attach(link)
	require.Error(t, err)
	assert.True(t, link.closed)
	assert.Equal(t, amqpiface.InvalidLinkRole, link.closeCond)
}

func TestAttachRejectsMissingGroupID(t *testing.T) {
	var closedCalled bool
	e := New(testOptions())
	e.OnClose(func() { closedCalled = true })

	link := newFakeLink("orders", amqpiface.Unsettled, 1)
	err := e.Attach(link)
	require.Error(t, err)
	require.True(t, link.closed)
	require.NotNil(t, link.closeCond)
	assert.Equal(t, amqpiface.SymbolNoGroupID, link.closeCond.Symbol)
	assert.True(t, closedCalled)
}

func TestAttachRejectsOffsetWithoutPartition(t *testing.T) {
	e := New(testOptions())
	link := newFakeLink("orders/group.id/g1", amqpiface.Unsettled, 1)
	link.source.Filters = map[string]interface{}{"offset": int64(42)}

	err := e.Attach(link)
	require.Error(t, err)
	require.NotNil(t, link.closeCond)
	assert.Equal(t, amqpiface.SymbolNoPartitionFilter, link.closeCond.Symbol)
}

func TestSettledSendNeverTracksOffset(t *testing.T) {
	e := New(testOptions())
	defer e.Close()
	link := newFakeLink("orders/group.id/g1", amqpiface.Settled, 10)
	require.NoError(t, e.Attach(link))

	e.store.Insert("tok-1", recordAt(0, 7))
	e.dispatch(sendMsg("tok-1"))

	assert.Equal(t, 1, link.sentCount())
	assert.Empty(t, e.tracker.Snapshot())
	_, ok := e.store.Remove("tok-1")
	assert.False(t, ok, "record should have been removed from the store on send")
}

func TestUnsettledSendTracksAndDelivers(t *testing.T) {
	e := New(testOptions())
	defer e.Close()
	link := newFakeLink("orders/group.id/g1", amqpiface.Unsettled, 10)
	require.NoError(t, e.Attach(link))

	e.store.Insert("tok-1", recordAt(0, 0))
	e.dispatch(sendMsg("tok-1"))

	// fakeLink.Send synchronously invokes the disposition callback with
	// Accepted, so the tracker should already show the frontier advanced.
	assert.Equal(t, map[int32]int64{0: 1}, e.tracker.Snapshot())
}

func TestCreditExhaustionDefersAndDrains(t *testing.T) {
	// spec.md §8 scenario 5.
	e := New(testOptions())
	defer e.Close()
	link := newFakeLink("orders/group.id/g1", amqpiface.Unsettled, 2)
	require.NoError(t, e.Attach(link))

	for i := 0; i < 5; i++ {
		tok := tokenFor(i)
		e.store.Insert(tok, recordAt(0, int64(i)))
		e.dispatch(sendMsg(tok))
	}

	assert.Equal(t, 2, link.sentCount())
	e.mu.Lock()
	deferredLen := len(e.deferred)
	state := e.state
	e.mu.Unlock()
	assert.Equal(t, 3, deferredLen)
	assert.Equal(t, StateOpenPaused, state)

	link.grantCredit(5)

	// grantCredit's callback only enqueues a drain request onto the
	// channel (spec.md §5: sends happen only on the dispatch goroutine),
	// so the drain completes asynchronously on e.ch's Run loop.
	assert.Eventually(t, func() bool { return link.sentCount() == 5 }, time.Second, time.Millisecond)
	assert.Eventually(t, func() bool {
		e.mu.Lock()
		defer e.mu.Unlock()
		return len(e.deferred) == 0 && e.state == StateOpen
	}, time.Second, time.Millisecond)
}

func TestErrorMessageClosesEndpoint(t *testing.T) {
	e := New(testOptions())
	link := newFakeLink("orders/group.id/g1", amqpiface.Unsettled, 10)
	require.NoError(t, e.Attach(link))

	e.dispatch(errMsg(amqpiface.SymbolPartitionsNotExist, "topic has no partitions"))

	require.True(t, link.closed)
	assert.Equal(t, amqpiface.SymbolPartitionsNotExist, link.closeCond.Symbol)
	assert.Eventually(t, func() bool { return e.State() == StateClosed }, time.Second, time.Millisecond)
}

func TestCloseIsIdempotentAndReentrant(t *testing.T) {
	e := New(testOptions())
	link := newFakeLink("orders/group.id/g1", amqpiface.Unsettled, 10)
	require.NoError(t, e.Attach(link))

	var fired int
	e.OnClose(func() {
		fired++
		e.Close() // reentrant close from inside the close callback
	})

	e.Close()
	e.Close() // repeated close must not panic or double-fire
	assert.Equal(t, 1, fired)
	assert.Equal(t, StateClosed, e.State())
}
