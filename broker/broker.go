package broker

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/ismaild/vumi/errors"
	"github.com/ismaild/vumi/interfaces"
)

// Broker is an in-memory, protocol-accurate emulation of a queueing
// broker. It exclusively owns all queues, exchanges and channels;
// channels hold only a back-reference to it. Every publish,
// acknowledgment, new consumer or new binding triggers the
// asynchronous delivery loop, which drains as many deliveries as the
// per-channel flow-control limits currently allow and then idles.
//
// It is not durable: no persistence, clustering or crash recovery.
// One process may host any number of independent instances.
type Broker struct {
	mu sync.Mutex

	queues    map[string]*Queue
	exchanges map[string]Exchange
	channels  []*Channel

	// dispatched is an audit log of every publish, keyed by exchange
	// then routing key. It records publishes to undeclared exchanges
	// too; those are otherwise dropped.
	dispatched map[string]map[string][][]byte

	scheduler     interfaces.Scheduler
	ownsScheduler bool
	ids           interfaces.IDGenerator
	metrics       interfaces.MetricsCollector
	log           *zap.Logger
}

// NewBroker creates a broker with its own task-queue scheduler, the
// random id generator and no-op metrics.
func NewBroker() *Broker {
	return &Broker{
		queues:        make(map[string]*Queue),
		exchanges:     make(map[string]Exchange),
		dispatched:    make(map[string]map[string][][]byte),
		scheduler:     NewTaskQueue(),
		ownsScheduler: true,
		ids:           NewIDGenerator(),
		metrics:       interfaces.NoOpMetricsCollector{},
		log:           zap.NewNop(),
	}
}

// SetLogger replaces the broker's logger. Call before use.
func (b *Broker) SetLogger(log *zap.Logger) {
	b.log = log
}

// SetMetrics replaces the metrics collector. Call before use.
func (b *Broker) SetMetrics(m interfaces.MetricsCollector) {
	b.metrics = m
}

// SetIDGenerator replaces the id generator. Call before use.
func (b *Broker) SetIDGenerator(ids interfaces.IDGenerator) {
	b.ids = ids
}

// SetScheduler replaces the scheduler. The broker stops a scheduler it
// created itself; a caller-supplied one is the caller's to stop.
func (b *Broker) SetScheduler(s interfaces.Scheduler) {
	if b.ownsScheduler {
		b.scheduler.Stop()
	}
	b.scheduler = s
	b.ownsScheduler = false
}

// Close stops the broker's scheduler. Queues, exchanges and channels
// are dropped with the instance.
func (b *Broker) Close() {
	if b.ownsScheduler {
		b.scheduler.Stop()
	}
}

// Channel creates a new channel bound to this broker. The channel is
// not registered until Open is called on it.
func (b *Broker) Channel(id int) *Channel {
	return &Channel{ID: id, broker: b}
}

// mustQueue asserts the queue exists. Internal lookups that fail mean
// the caller's bookkeeping is broken.
func (b *Broker) mustQueue(name string) *Queue {
	q, ok := b.queues[name]
	if !ok {
		panic(fmt.Sprintf("broker: unknown queue %q", name))
	}
	return q
}

// channelOpen registers a channel. Registering the same channel
// identity twice is a configuration error.
func (b *Broker) channelOpen(ch *Channel) (OpenOK, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, open := range b.channels {
		if open == ch || open.ID == ch.ID {
			return OpenOK{}, errors.NewConfigurationError(errors.ChannelAlreadyOpen,
				"channel.open", "channel %d already open", ch.ID)
		}
	}
	b.channels = append(b.channels, ch)
	b.metrics.ChannelOpened()
	b.log.Debug("channel opened", zap.Int("channel", ch.ID))
	return OpenOK{}, nil
}

// ExchangeDeclare creates the exchange if absent. Redeclaring an
// existing exchange with a different type is a configuration error,
// fatal to the call but not to the broker.
func (b *Broker) ExchangeDeclare(name, kind string) (ExchangeDeclareOK, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if existing, ok := b.exchanges[name]; ok {
		if existing.Type() != kind {
			return ExchangeDeclareOK{}, errors.NewConfigurationError(errors.ExchangeTypeMismatch,
				"exchange.declare", "exchange %q is %s, not %s", name, existing.Type(), kind)
		}
		return ExchangeDeclareOK{}, nil
	}

	var ex Exchange
	switch kind {
	case ExchangeDirect:
		ex = NewDirectExchange(name)
	case ExchangeTopic:
		ex = NewTopicExchange(name)
	default:
		return ExchangeDeclareOK{}, errors.NewConfigurationError(errors.BadExchangeType,
			"exchange.declare", "unsupported exchange type %q", kind)
	}
	b.exchanges[name] = ex
	b.log.Debug("exchange declared", zap.String("exchange", name), zap.String("type", kind))
	return ExchangeDeclareOK{}, nil
}

// QueueDeclare creates the queue if absent and reports its current
// depth and consumer count. Redeclaring an existing name is a no-op
// returning current state. An empty name yields a generated one.
func (b *Broker) QueueDeclare(name string) (DeclareOK, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if name == "" {
		name = b.ids.NewID("queue.")
	}
	q, ok := b.queues[name]
	if !ok {
		q = NewQueue(name)
		b.queues[name] = q
		b.metrics.QueueDeclared(name)
		b.log.Debug("queue declared", zap.String("queue", name))
	}
	return DeclareOK{
		Queue:         name,
		MessageCount:  q.MessageCount(),
		ConsumerCount: q.ConsumerCount(),
	}, nil
}

// QueueBind adds the queue to the exchange's binding set and triggers
// a delivery attempt. Both resources must already exist.
func (b *Broker) QueueBind(queue, exchange, routingKey string) (BindOK, error) {
	b.mu.Lock()
	ex, ok := b.exchanges[exchange]
	if !ok {
		b.mu.Unlock()
		return BindOK{}, errors.NewNotFoundError("queue.bind", "exchange", exchange)
	}
	q, ok := b.queues[queue]
	if !ok {
		b.mu.Unlock()
		return BindOK{}, errors.NewNotFoundError("queue.bind", "queue", queue)
	}
	ex.Bind(routingKey, q)
	b.mu.Unlock()

	b.kickDelivery()
	return BindOK{}, nil
}

// Publish records the message in the audit log and routes it through
// the named exchange. Publishing to an exchange that was never
// declared is not an error: the message is logged and dropped, which
// mirrors permissive test-broker behavior.
func (b *Broker) Publish(exchange, routingKey string, body []byte) {
	b.mu.Lock()
	byKey, ok := b.dispatched[exchange]
	if !ok {
		byKey = make(map[string][][]byte)
		b.dispatched[exchange] = byKey
	}
	byKey[routingKey] = append(byKey[routingKey], body)

	ex, declared := b.exchanges[exchange]
	if !declared {
		b.mu.Unlock()
		b.metrics.MessageUnroutable(exchange)
		b.log.Debug("publish to undeclared exchange dropped",
			zap.String("exchange", exchange), zap.String("routing_key", routingKey))
		return
	}
	ex.Publish(routingKey, body)
	b.mu.Unlock()

	b.metrics.MessagePublished(exchange, len(body))
	b.kickDelivery()
}

// basicConsume registers a consumer on the channel and the queue, then
// triggers a delivery attempt.
func (b *Broker) basicConsume(ch *Channel, queue, tag string) (ConsumeOK, error) {
	b.mu.Lock()
	q, ok := b.queues[queue]
	if !ok {
		b.mu.Unlock()
		return ConsumeOK{}, errors.NewNotFoundError("basic.consume", "queue", queue)
	}
	if tag == "" {
		tag = b.ids.NewID("consumer.")
	}
	if err := ch.consumeLocked(queue, tag); err != nil {
		b.mu.Unlock()
		return ConsumeOK{}, err
	}
	q.AddConsumer(tag)
	b.mu.Unlock()

	b.metrics.ConsumerAdded(queue)
	b.kickDelivery()
	return ConsumeOK{ConsumerTag: tag}, nil
}

// basicCancel removes the consumer registration. Effective
// immediately, idempotent for unknown tags.
func (b *Broker) basicCancel(ch *Channel, tag string) CancelOK {
	b.mu.Lock()
	queue, found := ch.cancelLocked(tag)
	if found {
		if q, ok := b.queues[queue]; ok {
			q.RemoveConsumer(tag)
		}
	}
	b.mu.Unlock()

	if found {
		b.metrics.ConsumerRemoved(queue)
	}
	return CancelOK{ConsumerTag: tag}
}

// basicGet synchronously pulls one message from the queue, tracking it
// as unacknowledged on the channel.
func (b *Broker) basicGet(ch *Channel, queue string) (Reply, error) {
	b.mu.Lock()
	q, ok := b.queues[queue]
	if !ok {
		b.mu.Unlock()
		return nil, errors.NewNotFoundError("basic.get", "queue", queue)
	}
	tag, env, ok := q.GetMessage(b.ids)
	if !ok {
		b.mu.Unlock()
		return GetEmpty{}, nil
	}
	ch.trackGetLocked(tag, queue)
	b.updateDepthLocked(q)
	b.mu.Unlock()

	b.metrics.MessageDelivered(queue)
	return GetOK{
		DeliveryTag: tag,
		Redelivered: false,
		Exchange:    env.Exchange,
		RoutingKey:  env.RoutingKey,
		Body:        env.Body,
	}, nil
}

// basicAckChannel acknowledges deliveries on the channel, in delivery
// order, against their owning queues, then triggers a delivery
// attempt; capacity freed under the prefetch limit may unblock waiting
// messages.
func (b *Broker) basicAckChannel(ch *Channel, deliveryTag uint64, multiple bool) AckOK {
	b.mu.Lock()
	acked := ch.ackLocked(deliveryTag, multiple)
	for _, e := range acked {
		q := b.mustQueue(e.queue)
		q.Ack(e.tag)
		b.updateDepthLocked(q)
	}
	b.mu.Unlock()

	for _, e := range acked {
		b.metrics.MessageAcknowledged(e.queue)
	}
	b.kickDelivery()
	return AckOK{}
}

// Dispatched returns the audit log entries for an exchange and routing
// key: every body published there, whether or not it was routed.
func (b *Broker) Dispatched(exchange, routingKey string) [][]byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	entries := b.dispatched[exchange][routingKey]
	out := make([][]byte, len(entries))
	copy(out, entries)
	return out
}

// WaitDelivery schedules a delivery run and returns a handle resolving
// once no channel can make further progress. Useful for synchronizing
// tests with delivery completion.
func (b *Broker) WaitDelivery() interfaces.Completion {
	return b.kickDelivery()
}

// kickDelivery schedules a delivery run.
func (b *Broker) kickDelivery() *completion {
	c := newCompletion()
	b.scheduleDeliver(c)
	return c
}

func (b *Broker) scheduleDeliver(c *completion) {
	b.scheduler.Later(func() { b.deliverToChannels(c) })
}

// deliverToChannels makes one pass over all open channels, attempting
// exactly one delivery per channel. If any channel made progress the
// next pass is scheduled asynchronously; otherwise the loop is
// quiescent and the completion resolves. The loop always converges:
// each successful delivery reduces some queue's depth by one and a
// zero-progress pass terminates it.
func (b *Broker) deliverToChannels(c *completion) {
	b.mu.Lock()
	progress := false
	var callbacks []func()
	for _, ch := range b.channels {
		fn, delivered := b.tryDeliverToChannel(ch)
		if delivered {
			progress = true
			if fn != nil {
				callbacks = append(callbacks, fn)
			}
		}
	}
	b.mu.Unlock()

	// Delivery callbacks run outside the lock so consumers may call
	// straight back into the broker.
	for _, fn := range callbacks {
		fn()
	}

	if progress {
		b.scheduleDeliver(c)
		return
	}
	c.resolve()
}

// tryDeliverToChannel attempts one delivery. Only the first registered
// consumer is polled; if its queue has nothing ready the channel makes
// no progress this pass even when other consumers on it do have
// messages waiting. Preserved deliberately, see the delivery loop
// tests.
func (b *Broker) tryDeliverToChannel(ch *Channel) (func(), bool) {
	if !ch.deliverableLocked() {
		return nil, false
	}
	if len(ch.consumers) == 0 {
		return nil, false
	}
	entry := ch.consumers[0]
	q := b.mustQueue(entry.queue)
	tag, env, ok := q.GetMessage(b.ids)
	if !ok {
		return nil, false
	}

	d := Deliver{
		ConsumerTag: entry.tag,
		DeliveryTag: tag,
		Redelivered: false,
		Exchange:    env.Exchange,
		RoutingKey:  env.RoutingKey,
		Body:        env.Body,
	}
	fn := ch.deliverLocked(d, entry.queue)
	b.updateDepthLocked(q)
	b.metrics.MessageDelivered(entry.queue)
	return fn, true
}

func (b *Broker) updateDepthLocked(q *Queue) {
	b.metrics.QueueDepth(q.Name, q.MessageCount(), q.UnackedCount())
}

var _ interfaces.Broker = (*Broker)(nil)
