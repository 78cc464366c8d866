package dispatch

import (
	"context"
	"sync"

	"github.com/botdesk/botstream/internal/model"
)

// Inbox is a thread-safe FIFO that doubles its capacity when it reaches 70%
// full, up to an optional limit. At the limit the oldest item is dropped so a
// stalled consumer sees the most recent state when it catches up.
type Inbox[T any] struct {
	mu       sync.Mutex
	cond     *sync.Cond
	buf      []T
	head     int // read position
	tail     int // write position
	count    int
	capacity int
	limit    int // 0 = unbounded
	closed   bool

	// Stats
	totalReceived int64
	totalSent     int64
	dropped       int64
	resizeCount   int
}

// InboxStats contains inbox statistics.
type InboxStats struct {
	Count         int
	Capacity      int
	TotalReceived int64
	TotalSent     int64
	Dropped       int64
	ResizeCount   int
}

// NewInbox creates an inbox with the given initial capacity. limit caps
// growth; zero means the inbox grows without bound.
func NewInbox[T any](initialCapacity, limit int) *Inbox[T] {
	if initialCapacity < 1 {
		initialCapacity = 1
	}
	if limit > 0 && limit < initialCapacity {
		initialCapacity = limit
	}
	b := &Inbox[T]{
		buf:      make([]T, initialCapacity),
		capacity: initialCapacity,
		limit:    limit,
	}
	b.cond = sync.NewCond(&b.mu)
	return b
}

// Put appends an item. Returns false if the inbox is closed.
func (b *Inbox[T]) Put(item T) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return false
	}

	threshold := (b.capacity * 70) / 100
	if threshold < 1 {
		threshold = 1
	}
	if b.count+1 >= threshold && b.canGrow() {
		b.grow()
	}

	if b.count == b.capacity {
		// Full at the limit: overwrite the oldest.
		var zero T
		b.buf[b.head] = zero
		b.head = (b.head + 1) % b.capacity
		b.count--
		b.dropped++
	}

	b.buf[b.tail] = item
	b.tail = (b.tail + 1) % b.capacity
	b.count++
	b.totalReceived++

	b.cond.Signal()
	return true
}

// Take removes and returns the oldest item, blocking until one is available,
// the inbox is closed, or ctx is done. Returns false when closed and empty or
// when ctx ends first.
func (b *Inbox[T]) Take(ctx context.Context) (T, bool) {
	stop := context.AfterFunc(ctx, func() {
		b.mu.Lock()
		b.cond.Broadcast()
		b.mu.Unlock()
	})
	defer stop()

	b.mu.Lock()
	defer b.mu.Unlock()

	for b.count == 0 && !b.closed && ctx.Err() == nil {
		b.cond.Wait()
	}

	if b.count == 0 {
		var zero T
		return zero, false
	}
	return b.pop(), true
}

// TryTake returns the oldest item without blocking.
func (b *Inbox[T]) TryTake() (T, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.count == 0 {
		var zero T
		return zero, false
	}
	return b.pop(), true
}

// Close closes the inbox. Later Puts return false; takers drain what is left.
func (b *Inbox[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.closed = true
	b.cond.Broadcast()
}

// Len returns the number of queued items.
func (b *Inbox[T]) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}

// Stats returns inbox statistics.
func (b *Inbox[T]) Stats() InboxStats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return InboxStats{
		Count:         b.count,
		Capacity:      b.capacity,
		TotalReceived: b.totalReceived,
		TotalSent:     b.totalSent,
		Dropped:       b.dropped,
		ResizeCount:   b.resizeCount,
	}
}

// pop must be called with the lock held and count > 0.
func (b *Inbox[T]) pop() T {
	item := b.buf[b.head]
	var zero T
	b.buf[b.head] = zero // release reference
	b.head = (b.head + 1) % b.capacity
	b.count--
	b.totalSent++
	return item
}

func (b *Inbox[T]) canGrow() bool {
	return b.limit == 0 || b.capacity < b.limit
}

// grow doubles capacity, clamped to limit. Must be called with lock held.
func (b *Inbox[T]) grow() {
	newCapacity := b.capacity * 2
	if b.limit > 0 && newCapacity > b.limit {
		newCapacity = b.limit
	}
	newBuf := make([]T, newCapacity)

	if b.count > 0 {
		if b.head < b.tail {
			copy(newBuf, b.buf[b.head:b.tail])
		} else {
			n := copy(newBuf, b.buf[b.head:])
			copy(newBuf[n:], b.buf[:b.tail])
		}
	}

	b.buf = newBuf
	b.head = 0
	b.tail = b.count
	b.capacity = newCapacity
	b.resizeCount++
}

// Buffered is a Handler that queues messages for a consumer goroutine, so a
// slow widget never stalls dispatch to the others.
type Buffered struct {
	*Inbox[model.Message]
}

// NewBuffered creates a buffered subscriber. limit bounds memory; zero means
// unbounded.
func NewBuffered(initialCapacity, limit int) *Buffered {
	return &Buffered{Inbox: NewInbox[model.Message](initialCapacity, limit)}
}

// Handle queues msg.
func (b *Buffered) Handle(msg model.Message) {
	b.Put(msg)
}
