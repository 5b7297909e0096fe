package orchestrate

import (
	"sync"
	"sync/atomic"

	"github.com/rigger/core/internal/logging"
	"github.com/rigger/core/internal/types"
)

// Bus fans a stream of TaskEvents out to subscribers over a single bounded
// internal channel. When the channel is full, the oldest buffered event is
// dropped to make room for the new one (spec §9's resolution of the Open
// Question on overload behaviour: drop-oldest, not block-the-emitter), then
// fanned out to per-subscriber channels that apply the same drop-oldest
// policy independently. Every drop, at either level, increments a
// monotonically increasing counter exposed via DroppedCount so a caller can
// detect overload without subscribing to the internal log stream.
type Bus struct {
	mu          sync.Mutex
	capacity    int
	buffer      []types.TaskEvent
	subscribers []chan types.TaskEvent
	dropped     atomic.Uint64
}

// NewBus constructs a Bus with the given bounded capacity.
func NewBus(capacity int) *Bus {
	if capacity <= 0 {
		capacity = 1000
	}
	return &Bus{capacity: capacity}
}

// Subscribe returns a channel that receives every event emitted after this
// call, buffered up to the bus's capacity.
func (b *Bus) Subscribe() <-chan types.TaskEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch := make(chan types.TaskEvent, b.capacity)
	b.subscribers = append(b.subscribers, ch)
	return ch
}

// Unsubscribe stops delivering events to ch and closes it.
func (b *Bus) Unsubscribe(ch <-chan types.TaskEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, sub := range b.subscribers {
		if (<-chan types.TaskEvent)(sub) == ch {
			b.subscribers = append(b.subscribers[:i], b.subscribers[i+1:]...)
			close(sub)
			return
		}
	}
}

// Emit buffers event and delivers it to every subscriber, dropping the
// oldest internally-buffered event first if the bus is at capacity.
func (b *Bus) Emit(event types.TaskEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.buffer) >= b.capacity {
		b.buffer = b.buffer[1:]
		b.dropped.Add(1)
		logging.Orchestrate.Warn("event bus at capacity %d, dropping oldest event", b.capacity)
	}
	b.buffer = append(b.buffer, event)

	for _, sub := range b.subscribers {
		select {
		case sub <- event:
		default:
			// Subscriber's own channel is full; drop the oldest queued
			// event for it to make room, mirroring the bus-level policy.
			select {
			case <-sub:
				b.dropped.Add(1)
			default:
			}
			select {
			case sub <- event:
			default:
			}
		}
	}
}

// DroppedCount returns the total number of events dropped so far, at the
// bus level or at any subscriber's channel, since this Bus was created.
func (b *Bus) DroppedCount() uint64 {
	return b.dropped.Load()
}

// Close closes every subscriber channel.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, sub := range b.subscribers {
		close(sub)
	}
	b.subscribers = nil
}
