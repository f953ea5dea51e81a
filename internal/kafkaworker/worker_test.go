package kafkaworker

import (
	"testing"
	"time"

	"github.com/go-kit/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mozilla-services/amqp-kafka-bridge/internal/channel"
	"github.com/mozilla-services/amqp-kafka-bridge/internal/offsettracker"
)

func newTestWorker(t *testing.T) (*Worker, *channel.Channel, *channel.Store) {
	t.Helper()
	ch := channel.New("test-endpoint", 16)
	store := channel.NewStore("test-endpoint")
	w := New(Config{PollTimeout: 10 * time.Millisecond}, ch, store, offsettracker.New(), log.NewNopLogger())
	return w, ch, store
}

func TestPublishRecordInsertsAndPublishes(t *testing.T) {
	w, ch, store := newTestWorker(t)

	w.publishRecord("orders", 0, 42, []byte("k"), []byte("v"), nil)

	msg := <-ch.MsgsForTest()
	require.Equal(t, channel.RequestSend, msg.Request)
	rec, ok := store.Remove(msg.Body)
	require.True(t, ok)
	assert.Equal(t, "orders", rec.Topic)
	assert.Equal(t, int32(0), rec.Partition)
	assert.Equal(t, int64(42), rec.Offset)
}

func TestTokensAreUnique(t *testing.T) {
	w, ch, _ := newTestWorker(t)
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		w.publishRecord("t", 0, int64(i), nil, nil, nil)
		msg := <-ch.MsgsForTest()
		assert.False(t, seen[msg.Body], "duplicate token %s", msg.Body)
		seen[msg.Body] = true
	}
}

func TestPauseResumeGating(t *testing.T) {
	w, _, _ := newTestWorker(t)
	w.Pause()

	resumed := make(chan struct{})
	go func() {
		w.waitWhilePaused()
		close(resumed)
	}()

	select {
	case <-resumed:
		t.Fatal("waitWhilePaused returned before Resume")
	case <-time.After(30 * time.Millisecond):
	}

	w.Resume()
	select {
	case <-resumed:
	case <-time.After(time.Second):
		t.Fatal("waitWhilePaused did not return after Resume")
	}
}

func TestShutdownIsIdempotent(t *testing.T) {
	w, _, _ := newTestWorker(t)
	assert.NotPanics(t, func() {
		w.Shutdown()
		w.Shutdown()
	})
}
