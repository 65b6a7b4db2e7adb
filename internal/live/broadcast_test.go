package live

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBroadcasterDeliversToEverySubscriber(t *testing.T) {
	b := NewBroadcaster[int]()
	ch1, unsub1 := b.Subscribe(4)
	defer unsub1()
	ch2, unsub2 := b.Subscribe(4)
	defer unsub2()

	b.Publish(42)

	assert.Equal(t, 42, <-ch1)
	assert.Equal(t, 42, <-ch2)
}

func TestBroadcasterMarksLaggedSubscriberOnOverflow(t *testing.T) {
	b := NewBroadcaster[int]()
	ch, unsub := b.Subscribe(1)
	defer unsub()

	b.Publish(1)
	b.Publish(2) // ch's buffer is full; this should drop 1 and mark lagged

	v := <-ch
	lagged, ok := v.(Lagged)
	require.True(t, ok, "expected a Lagged value after overflow, got %T", v)
	assert.Equal(t, 1, lagged.Skipped)
}

func TestBroadcasterUnsubscribeClosesChannel(t *testing.T) {
	b := NewBroadcaster[int]()
	ch, unsub := b.Subscribe(1)
	unsub()

	_, ok := <-ch
	assert.False(t, ok, "channel should be closed after unsubscribe")
}
