// request.go
package bus

import (
	"context"
	"strconv"
	"sync/atomic"
)

// Per-process counter for unique reply topics.
var replySeq uint32

// replyTopic mints a unique reply topic for this connection.
func (c *Connection) replyTopic() Topic {
	n := atomic.AddUint32(&replySeq, 1)
	return Topic{"reply", c.id, strconv.FormatUint(uint64(n), 10)}
}

// Request publishes msg with a fresh ReplyTo topic and returns a
// subscription on it. The caller owns the subscription and must
// Unsubscribe when done.
func (c *Connection) Request(msg *Message) *Subscription {
	msg.ReplyTo = c.replyTopic()
	sub := c.Subscribe(msg.ReplyTo)
	c.bus.Publish(msg)
	return sub
}

// RequestWait performs Request and blocks for the first reply or ctx expiry.
func (c *Connection) RequestWait(ctx context.Context, msg *Message) (*Message, error) {
	sub := c.Request(msg)
	defer c.Unsubscribe(sub)

	select {
	case reply, ok := <-sub.ch:
		if !ok {
			return nil, context.Canceled
		}
		return reply, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Reply answers a request on its ReplyTo topic. No-op if the request
// carried none.
func (c *Connection) Reply(req *Message, payload any, retained bool) {
	if len(req.ReplyTo) == 0 {
		return
	}
	c.bus.Publish(&Message{Topic: req.ReplyTo, Payload: payload, Retained: retained})
}
