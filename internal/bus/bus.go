// Package bus is a single-writer, many-reader broadcast channel with bounded
// history.
//
// Every published value gets a monotonically increasing sequence number and
// lands in a fixed ring; when the ring is full the oldest value is
// overwritten and the publisher never blocks. Each Receiver keeps its own
// read cursor. A receiver whose cursor fell off the back of the ring gets a
// *LaggedError with the number of values it missed, then continues from the
// oldest value still retained. Receivers only see values published after
// they subscribed.
package bus

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// DefaultCapacity is the history size used when New is given a non-positive capacity.
const DefaultCapacity = 1000

var (
	// ErrNoReceivers is returned by Publish when nobody is subscribed. The value is dropped.
	ErrNoReceivers = errors.New("bus: no receivers")
	// ErrClosed is returned by Publish after Close, and by Recv once a
	// closed bus has been drained.
	ErrClosed = errors.New("bus: closed")
	// ErrLagged matches every *LaggedError.
	ErrLagged = errors.New("bus: receiver lagged")
	// ErrEmpty is returned by TryRecv when no value is ready.
	ErrEmpty = errors.New("bus: empty")
	// ErrReceiverClosed is returned by Recv on a receiver after its Close.
	ErrReceiverClosed = errors.New("bus: receiver closed")
)

// LaggedError reports values a receiver missed because it fell more than
// capacity values behind.
type LaggedError struct {
	Skipped uint64
}

func (e *LaggedError) Error() string {
	return fmt.Sprintf("bus: receiver lagged, skipped %d values", e.Skipped)
}

func (e *LaggedError) Is(target error) bool {
	return target == ErrLagged
}

type slot[T any] struct {
	seq uint64
	val T
}

// Bus is safe for concurrent use.
type Bus[T any] struct {
	mu        sync.Mutex
	ring      []slot[T]
	capacity  uint64
	tail      uint64 // sequence number of the next published value
	receivers int
	closed    bool
	// wake is closed and replaced on every publish and on Close.
	wake chan struct{}
}

func New[T any](capacity int) *Bus[T] {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Bus[T]{
		ring:     make([]slot[T], capacity),
		capacity: uint64(capacity),
		wake:     make(chan struct{}),
	}
}

// Publish appends v to the history and returns how many receivers can see it.
func (b *Bus[T]) Publish(v T) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return 0, ErrClosed
	}
	if b.receivers == 0 {
		return 0, ErrNoReceivers
	}
	b.ring[b.tail%b.capacity] = slot[T]{seq: b.tail, val: v}
	b.tail++
	b.signalLocked()
	return b.receivers, nil
}

// Subscribe registers a receiver positioned after the newest published value.
// Subscribing to a closed bus yields a receiver whose Recv returns ErrClosed.
func (b *Bus[T]) Subscribe() *Receiver[T] {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.receivers++
	return &Receiver[T]{bus: b, next: b.tail}
}

// Close stops publishing. Receivers drain what they have not read yet and
// then get ErrClosed.
func (b *Bus[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	b.signalLocked()
}

// Receivers returns the number of open receivers.
func (b *Bus[T]) Receivers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.receivers
}

// Capacity returns the history size.
func (b *Bus[T]) Capacity() int {
	return int(b.capacity)
}

func (b *Bus[T]) signalLocked() {
	close(b.wake)
	b.wake = make(chan struct{})
}

// Receiver is one subscription. A Receiver must not be used from more than
// one goroutine at a time.
type Receiver[T any] struct {
	bus    *Bus[T]
	next   uint64
	closed bool
}

// Recv blocks until a value is available, the bus is closed and drained, or
// ctx is done.
func (r *Receiver[T]) Recv(ctx context.Context) (T, error) {
	for {
		v, wake, err := r.poll()
		if err == nil || !errors.Is(err, ErrEmpty) {
			return v, err
		}
		select {
		case <-ctx.Done():
			var zero T
			return zero, ctx.Err()
		case <-wake:
		}
	}
}

// TryRecv returns the next value without blocking, or ErrEmpty.
func (r *Receiver[T]) TryRecv() (T, error) {
	v, _, err := r.poll()
	return v, err
}

func (r *Receiver[T]) poll() (T, <-chan struct{}, error) {
	var zero T
	b := r.bus
	b.mu.Lock()
	defer b.mu.Unlock()
	if r.closed {
		return zero, nil, ErrReceiverClosed
	}
	if r.next < b.tail {
		var oldest uint64
		if b.tail > b.capacity {
			oldest = b.tail - b.capacity
		}
		if r.next < oldest {
			skipped := oldest - r.next
			r.next = oldest
			return zero, nil, &LaggedError{Skipped: skipped}
		}
		s := b.ring[r.next%b.capacity]
		r.next++
		return s.val, nil, nil
	}
	if b.closed {
		return zero, nil, ErrClosed
	}
	return zero, b.wake, ErrEmpty
}

// Len returns how many retained values the receiver has not read yet.
func (r *Receiver[T]) Len() int {
	b := r.bus
	b.mu.Lock()
	defer b.mu.Unlock()
	if r.closed || r.next >= b.tail {
		return 0
	}
	pending := b.tail - r.next
	if pending > b.capacity {
		pending = b.capacity
	}
	return int(pending)
}

// Close releases the subscription. It is idempotent.
func (r *Receiver[T]) Close() {
	b := r.bus
	b.mu.Lock()
	defer b.mu.Unlock()
	if r.closed {
		return
	}
	r.closed = true
	b.receivers--
}
