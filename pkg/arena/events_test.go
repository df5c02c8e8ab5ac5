package arena

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBusDeliversInOrder(t *testing.T) {
	bus := NewBus()
	sub, err := bus.Subscribe("journal", 8)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		bus.Publish(Event{Type: EventCycleStarted, CycleID: fmt.Sprintf("c%d", i)})
	}

	for i := 0; i < 5; i++ {
		ev := <-sub.Events()
		assert.Equal(t, fmt.Sprintf("c%d", i), ev.CycleID)
		assert.False(t, ev.At.IsZero())
	}
	assert.Zero(t, sub.Dropped())
}

func TestBusDropsWhenOutboxFull(t *testing.T) {
	bus := NewBus()
	sub, err := bus.Subscribe("slow", 2)
	require.NoError(t, err)

	for i := 0; i < 6; i++ {
		bus.Publish(Event{Type: EventAgentDecision})
	}

	assert.Equal(t, uint64(4), sub.Dropped())
	assert.Equal(t, map[string]uint64{"slow": 4}, bus.DropCounts())

	// The two buffered events are still intact.
	<-sub.Events()
	<-sub.Events()
}

func TestBusSlowSubscriberDoesNotAffectOthers(t *testing.T) {
	bus := NewBus()
	slow, err := bus.Subscribe("slow", 1)
	require.NoError(t, err)
	fast, err := bus.Subscribe("fast", 16)
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		bus.Publish(Event{Type: EventPositionOpened})
	}

	assert.Equal(t, uint64(9), slow.Dropped())
	assert.Zero(t, fast.Dropped())
	assert.Len(t, fast.Events(), 10)
}

func TestBusDuplicateName(t *testing.T) {
	bus := NewBus()
	_, err := bus.Subscribe("x", 1)
	require.NoError(t, err)
	_, err = bus.Subscribe("x", 1)
	assert.ErrorIs(t, err, ErrDuplicateSubscriber)
}

func TestBusUnsubscribeClosesChannel(t *testing.T) {
	bus := NewBus()
	sub, err := bus.Subscribe("x", 1)
	require.NoError(t, err)

	bus.Unsubscribe("x")
	_, open := <-sub.Events()
	assert.False(t, open)

	// Publishing after unsubscribe is a no-op.
	bus.Publish(Event{Type: EventCycleStarted})
}

func TestBusClose(t *testing.T) {
	bus := NewBus()
	sub, err := bus.Subscribe("x", 4)
	require.NoError(t, err)

	bus.Publish(Event{Type: EventCycleStarted})
	bus.Close()

	ev, open := <-sub.Events()
	assert.True(t, open)
	assert.Equal(t, EventCycleStarted, ev.Type)
	_, open = <-sub.Events()
	assert.False(t, open)

	_, err = bus.Subscribe("later", 1)
	assert.ErrorIs(t, err, ErrBusClosed)

	// Idempotent.
	bus.Close()
}
