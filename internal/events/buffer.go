package events

import "context"

// Buffer accumulates events during a transaction so they can be published
// in order only after the transaction commits. A rolled-back transaction
// simply discards its buffer.
type Buffer struct {
	pending []Event
}

// Add queues an event for a later flush.
func (b *Buffer) Add(event Event) {
	b.pending = append(b.pending, event)
}

// Flush publishes every queued event in insertion order and resets the buffer.
func (b *Buffer) Flush(ctx context.Context, pub Publisher) {
	if pub == nil {
		b.pending = nil
		return
	}
	for _, event := range b.pending {
		pub.Publish(ctx, event)
	}
	b.pending = nil
}

// Len reports how many events are queued.
func (b *Buffer) Len() int {
	return len(b.pending)
}
