package broker

import (
	"fmt"

	"github.com/ismaild/vumi/interfaces"
)

// Queue is an ordered holding area for messages awaiting delivery,
// plus the set of registered consumer tags and the map of deliveries
// handed out but not yet acknowledged. An envelope lives in exactly
// one of messages or unacked, never both.
type Queue struct {
	Name string

	messages  []Envelope
	consumers map[string]struct{}
	unacked   map[uint64]Envelope
}

// NewQueue creates an empty queue.
func NewQueue(name string) *Queue {
	return &Queue{
		Name:      name,
		consumers: make(map[string]struct{}),
		unacked:   make(map[uint64]Envelope),
	}
}

// Put appends an envelope to the tail of the queue.
func (q *Queue) Put(exchange, routingKey string, body []byte) {
	q.messages = append(q.messages, Envelope{
		Exchange:   exchange,
		RoutingKey: routingKey,
		Body:       body,
	})
}

// GetMessage pops the head envelope, mints a fresh delivery tag and
// records the envelope as unacknowledged under that tag. ok is false
// when the queue has nothing ready; that is the normal empty signal,
// not an error.
func (q *Queue) GetMessage(ids interfaces.IDGenerator) (tag uint64, env Envelope, ok bool) {
	if len(q.messages) == 0 {
		return 0, Envelope{}, false
	}
	env = q.messages[0]
	q.messages = q.messages[1:]

	tag = ids.NextTag()
	for {
		if _, taken := q.unacked[tag]; !taken {
			break
		}
		tag = ids.NextTag()
	}
	q.unacked[tag] = env
	return tag, env, true
}

// Ack removes a delivery from the unacknowledged map. An unknown tag
// means the channel/queue bookkeeping has diverged, which must never
// happen under correct use, so it panics.
func (q *Queue) Ack(tag uint64) {
	if _, ok := q.unacked[tag]; !ok {
		panic(fmt.Sprintf("broker: ack of unknown delivery tag %d on queue %q", tag, q.Name))
	}
	delete(q.unacked, tag)
}

// AddConsumer registers a consumer tag. Idempotent.
func (q *Queue) AddConsumer(tag string) {
	q.consumers[tag] = struct{}{}
}

// RemoveConsumer deregisters a consumer tag. Idempotent.
func (q *Queue) RemoveConsumer(tag string) {
	delete(q.consumers, tag)
}

// MessageCount returns the number of messages ready for delivery.
func (q *Queue) MessageCount() int {
	return len(q.messages)
}

// ConsumerCount returns the number of registered consumers.
func (q *Queue) ConsumerCount() int {
	return len(q.consumers)
}

// UnackedCount returns the number of outstanding deliveries.
func (q *Queue) UnackedCount() int {
	return len(q.unacked)
}
