package orchestrate

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rigger/core/internal/types"
)

func TestBusDeliversEventsToSubscriber(t *testing.T) {
	bus := NewBus(4)
	sub := bus.Subscribe()
	defer bus.Unsubscribe(sub)

	bus.Emit(types.TaskEvent{EventID: "e1", EventType: types.EventCreated})

	ev := <-sub
	require.Equal(t, "e1", ev.EventID)
	require.Equal(t, uint64(0), bus.DroppedCount())
}

func TestBusDropsOldestAtCapacityAndCountsIt(t *testing.T) {
	bus := NewBus(2)

	bus.Emit(types.TaskEvent{EventID: "e1"})
	bus.Emit(types.TaskEvent{EventID: "e2"})
	require.Equal(t, uint64(0), bus.DroppedCount())

	bus.Emit(types.TaskEvent{EventID: "e3"})
	require.Equal(t, uint64(1), bus.DroppedCount())

	bus.Emit(types.TaskEvent{EventID: "e4"})
	require.Equal(t, uint64(2), bus.DroppedCount())
}

func TestBusDropsOldestQueuedEventForSlowSubscriber(t *testing.T) {
	bus := NewBus(10)
	sub := bus.Subscribe()
	defer bus.Unsubscribe(sub)

	// Subscriber channel has the same capacity as the bus (10); fill it,
	// then push one more so both the bus-level and subscriber-level drop
	// branches run on the same Emit call.
	for i := 0; i < 11; i++ {
		bus.Emit(types.TaskEvent{EventID: "e"})
	}

	require.Equal(t, uint64(2), bus.DroppedCount())
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	bus := NewBus(4)
	sub := bus.Subscribe()
	bus.Unsubscribe(sub)

	_, open := <-sub
	require.False(t, open)
}
