package broker

import (
	"fmt"

	"github.com/ismaild/vumi/errors"
)

// consumerEntry associates a consumer tag with the queue it is
// consuming from. Registration order is preserved: the delivery loop
// only ever polls the first entry in a sweep.
type consumerEntry struct {
	tag   string
	queue string
}

// unackedEntry records one outstanding delivery in delivery order.
// Channels hold queue names rather than queue instances so that no
// stale reference survives the queue.
type unackedEntry struct {
	tag   uint64
	queue string
}

// Channel is a consumer-side session: it holds consumer registrations,
// enforces the prefetch flow-control limit and tracks deliveries
// awaiting acknowledgment. All channel state is guarded by the owning
// broker's lock.
type Channel struct {
	ID     int
	broker *Broker

	prefetchCount int
	consumers     []consumerEntry
	unacked       []unackedEntry
	onDeliver     DeliveryFunc
}

// Open registers the channel with the broker. Opening the same channel
// identity twice is a configuration error.
func (ch *Channel) Open() (OpenOK, error) {
	return ch.broker.channelOpen(ch)
}

// OnDeliver installs the callback invoked for each asynchronous
// delivery. It must be set before the channel receives traffic.
func (ch *Channel) OnDeliver(fn DeliveryFunc) {
	ch.broker.mu.Lock()
	defer ch.broker.mu.Unlock()
	ch.onDeliver = fn
}

// Qos sets the prefetch limit: the maximum number of simultaneously
// unacknowledged deliveries this channel accepts. Zero means
// unlimited. Takes effect immediately.
func (ch *Channel) Qos(prefetchCount int) {
	ch.broker.mu.Lock()
	defer ch.broker.mu.Unlock()
	ch.prefetchCount = prefetchCount
}

// ExchangeDeclare declares an exchange through the broker.
func (ch *Channel) ExchangeDeclare(name, kind string) (ExchangeDeclareOK, error) {
	return ch.broker.ExchangeDeclare(name, kind)
}

// QueueDeclare declares a queue through the broker. An empty name
// yields a generated one.
func (ch *Channel) QueueDeclare(name string) (DeclareOK, error) {
	return ch.broker.QueueDeclare(name)
}

// QueueBind binds a queue to an exchange through the broker.
func (ch *Channel) QueueBind(queue, exchange, routingKey string) (BindOK, error) {
	return ch.broker.QueueBind(queue, exchange, routingKey)
}

// Publish publishes through the broker.
func (ch *Channel) Publish(exchange, routingKey string, body []byte) {
	ch.broker.Publish(exchange, routingKey, body)
}

// Consume registers a consumer for the queue and triggers a delivery
// attempt; a new consumer may unblock waiting messages. A generated
// tag is used when tag is empty. Reusing a tag on the same channel is
// a configuration error.
func (ch *Channel) Consume(queue, tag string) (ConsumeOK, error) {
	return ch.broker.basicConsume(ch, queue, tag)
}

// Cancel removes the consumer registration. Unknown tags are ignored.
func (ch *Channel) Cancel(tag string) CancelOK {
	return ch.broker.basicCancel(ch, tag)
}

// Ack acknowledges the delivery identified by deliveryTag. With
// multiple set, every outstanding delivery made before the tag is
// acknowledged as well, in delivery order. Acknowledging a tag that is
// not outstanding panics: it means delivery tracking has diverged.
func (ch *Channel) Ack(deliveryTag uint64, multiple bool) AckOK {
	return ch.broker.basicAckChannel(ch, deliveryTag, multiple)
}

// Get synchronously pulls one message from the queue. The second
// return is a GetEmpty when nothing is ready.
func (ch *Channel) Get(queue string) (Reply, error) {
	return ch.broker.basicGet(ch, queue)
}

// Unacked returns the outstanding delivery tags in delivery order.
func (ch *Channel) Unacked() []uint64 {
	ch.broker.mu.Lock()
	defer ch.broker.mu.Unlock()
	tags := make([]uint64, len(ch.unacked))
	for i, e := range ch.unacked {
		tags[i] = e.tag
	}
	return tags
}

// Deliverable reports whether the channel may receive another
// delivery under its current prefetch limit.
func (ch *Channel) Deliverable() bool {
	ch.broker.mu.Lock()
	defer ch.broker.mu.Unlock()
	return ch.deliverableLocked()
}

func (ch *Channel) deliverableLocked() bool {
	if ch.prefetchCount < 1 {
		return true
	}
	return len(ch.unacked) < ch.prefetchCount
}

// consumeLocked registers the consumer entry, or fails if the tag is
// already in use on this channel.
func (ch *Channel) consumeLocked(queue, tag string) error {
	for _, c := range ch.consumers {
		if c.tag == tag {
			return errors.NewConfigurationError(errors.ConsumerTagInUse,
				"basic.consume", "consumer tag %q already in use on channel %d", tag, ch.ID)
		}
	}
	ch.consumers = append(ch.consumers, consumerEntry{tag: tag, queue: queue})
	return nil
}

// cancelLocked removes the consumer entry and returns the queue it was
// bound to, if any.
func (ch *Channel) cancelLocked(tag string) (string, bool) {
	for i, c := range ch.consumers {
		if c.tag == tag {
			ch.consumers = append(ch.consumers[:i], ch.consumers[i+1:]...)
			return c.queue, true
		}
	}
	return "", false
}

// deliverLocked appends the delivery to the unacked sequence and
// returns the callback invocation, to be run outside the broker lock.
func (ch *Channel) deliverLocked(d Deliver, queue string) func() {
	ch.unacked = append(ch.unacked, unackedEntry{tag: d.DeliveryTag, queue: queue})
	fn := ch.onDeliver
	if fn == nil {
		return nil
	}
	return func() { fn(ch, d) }
}

// trackGetLocked records a synchronous get as outstanding.
func (ch *Channel) trackGetLocked(tag uint64, queue string) {
	ch.unacked = append(ch.unacked, unackedEntry{tag: tag, queue: queue})
}

// ackLocked removes acknowledged entries and returns the (tag, queue)
// pairs to acknowledge against their owning queues, in delivery order.
func (ch *Channel) ackLocked(deliveryTag uint64, multiple bool) []unackedEntry {
	found := false
	for _, e := range ch.unacked {
		if e.tag == deliveryTag {
			found = true
			break
		}
	}
	if !found {
		panic(fmt.Sprintf("broker: ack of unknown delivery tag %d on channel %d", deliveryTag, ch.ID))
	}

	var acked []unackedEntry
	remaining := ch.unacked[:0]
	done := false
	for _, e := range ch.unacked {
		if !done && (multiple || e.tag == deliveryTag) {
			acked = append(acked, e)
			if e.tag == deliveryTag {
				done = true
			}
			continue
		}
		remaining = append(remaining, e)
	}
	ch.unacked = remaining
	return acked
}
