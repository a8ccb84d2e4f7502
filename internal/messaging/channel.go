// Package messaging implements the asynchronous queue that carries progress and
// result messages from worker goroutines to the presentation layer.
package messaging

import (
	"context"
	"sync"

	"lmbuddy/internal/logger"
	"lmbuddy/pkg/buddytypes"
)

// Channel is an unbounded multi-producer, single-consumer FIFO of messages.
// Post never blocks, so a slow consumer can never stall a stream worker.
type Channel struct {
	mu      sync.Mutex
	queue   []buddytypes.Message
	notify  chan struct{}
	closed  bool
	posted  uint64
	drained uint64
}

// NewChannel creates an empty message channel.
func NewChannel() *Channel {
	return &Channel{
		notify: make(chan struct{}, 1),
	}
}

// Name returns the service name for the runtime registry.
func (c *Channel) Name() string {
	return "messages"
}

// Initialize implements buddytypes.Service.
func (c *Channel) Initialize() error {
	logger.ServiceOperation(c.Name(), "initialize")
	return nil
}

// Shutdown closes the channel. Later posts are dropped; queued messages remain
// available to the consumer.
func (c *Channel) Shutdown() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	c.wake()
	logger.ServiceOperation(c.Name(), "shutdown", "pending", c.Len())
	return nil
}

// Post enqueues a message. Safe for concurrent use by any number of producers.
func (c *Channel) Post(msg buddytypes.Message) {
	if msg == nil {
		return
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		logger.Debug("Dropping message posted after shutdown", "kind", buddytypes.KindOf(msg), "request", msg.Request())
		return
	}
	c.queue = append(c.queue, msg)
	c.posted++
	c.mu.Unlock()

	c.wake()
}

// TryReceive pops the oldest message without blocking.
func (c *Channel) TryReceive() (buddytypes.Message, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.queue) == 0 {
		return nil, false
	}
	msg := c.queue[0]
	c.queue[0] = nil
	c.queue = c.queue[1:]
	c.drained++
	return msg, true
}

// Drain removes and returns every queued message in posting order.
// The presentation layer calls it once per tick.
func (c *Channel) Drain() []buddytypes.Message {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.queue) == 0 {
		return nil
	}
	out := c.queue
	c.queue = nil
	c.drained += uint64(len(out))
	return out
}

// Receive blocks until a message is available, the channel is shut down with an
// empty queue, or ctx is done.
func (c *Channel) Receive(ctx context.Context) (buddytypes.Message, error) {
	for {
		if msg, ok := c.TryReceive(); ok {
			return msg, nil
		}

		c.mu.Lock()
		closed := c.closed
		c.mu.Unlock()
		if closed {
			return nil, ErrClosed
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-c.notify:
		}
	}
}

// Len returns the number of queued messages.
func (c *Channel) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.queue)
}

// Stats returns the total number of messages posted and consumed so far.
func (c *Channel) Stats() (posted, drained uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.posted, c.drained
}

func (c *Channel) wake() {
	select {
	case c.notify <- struct{}{}:
	default:
	}
}
