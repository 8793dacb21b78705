package session

import (
	"sync"

	"github.com/danmuck/wbclient/internal/protocol"
)

// outbox is the unbounded FIFO between submitters and the outbound pump.
// Any number of goroutines may push; one goroutine pops.
type outbox struct {
	mu     sync.Mutex
	ready  *sync.Cond
	items  []protocol.ClientMessage
	closed bool
	// depth, if set, is called with the queue length under mu after every
	// change, so reported depths are applied in order.
	depth func(int)
}

func newOutbox(depth func(int)) *outbox {
	o := &outbox{depth: depth}
	o.ready = sync.NewCond(&o.mu)
	return o
}

func (o *outbox) push(cmd protocol.ClientMessage) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return ErrQueueClosed
	}
	o.items = append(o.items, cmd)
	o.reportLocked()
	o.ready.Signal()
	return nil
}

// pop blocks for the next command. It returns false once the outbox is
// closed and drained.
func (o *outbox) pop() (protocol.ClientMessage, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for len(o.items) == 0 && !o.closed {
		o.ready.Wait()
	}
	if len(o.items) == 0 {
		return nil, false
	}
	cmd := o.items[0]
	o.items[0] = nil
	o.items = o.items[1:]
	o.reportLocked()
	return cmd, true
}

// close stops accepting commands. Queued commands are still popped.
func (o *outbox) close() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.closed = true
	o.ready.Broadcast()
}

// discard drops everything still queued and returns how many were dropped.
func (o *outbox) discard() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	n := len(o.items)
	o.items = nil
	o.reportLocked()
	return n
}

func (o *outbox) pending() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.items)
}

func (o *outbox) reportLocked() {
	if o.depth != nil {
		o.depth(len(o.items))
	}
}
