package sim

import (
	"sort"
	"sync"
	"time"

	"voltedge/internal/model"
)

// EventKind enumerates external mutations applied at tick boundaries.
type EventKind string

const (
	EventSetOutput   EventKind = "set_output"
	EventInjectFault EventKind = "inject_fault"
	EventRepair      EventKind = "repair"
	EventLoadSpike   EventKind = "load_spike"
)

// Event is one pending external mutation. Producers stamp Timestamp; the
// owning simulation assigns monotonically increasing IDs so the drain order
// is stable under producer contention.
type Event struct {
	ID        int64
	Timestamp time.Time
	Kind      EventKind

	// Component addressing (set_output, inject_fault, repair).
	TargetID int64
	Fault    model.FaultKind

	// set_output setpoint in MW; load_spike demand multiplier.
	Value float64
	// load_spike duration in ticks.
	SpikeTicks int
}

// DefaultBatchCapacity bounds pending events per simulation. An Append at the
// bound fails with ErrBatchFull and queues nothing; the batch does not retry,
// and the caller may append again after the next drain.
const DefaultBatchCapacity = 64

// EventBatch is a fixed-capacity multi-producer/single-consumer batch of
// pending events, drained exactly once per tick.
type EventBatch struct {
	mu      sync.Mutex
	events  []Event
	maxSize int
}

func NewEventBatch(capacity int) *EventBatch {
	if capacity <= 0 {
		capacity = DefaultBatchCapacity
	}
	return &EventBatch{
		events:  make([]Event, 0, capacity),
		maxSize: capacity,
	}
}

// Append enqueues an event for the next drain.
func (b *EventBatch) Append(ev Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.events) >= b.maxSize {
		return ErrBatchFull
	}
	b.events = append(b.events, ev)
	return nil
}

// Len reports the number of pending events.
func (b *EventBatch) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.events)
}

// Drain removes and returns all pending events sorted by (timestamp, id),
// preserving causal order regardless of producer interleaving.
func (b *EventBatch) Drain() []Event {
	b.mu.Lock()
	drained := b.events
	b.events = make([]Event, 0, b.maxSize)
	b.mu.Unlock()

	sort.SliceStable(drained, func(i, j int) bool {
		if !drained[i].Timestamp.Equal(drained[j].Timestamp) {
			return drained[i].Timestamp.Before(drained[j].Timestamp)
		}
		return drained[i].ID < drained[j].ID
	})
	return drained
}
