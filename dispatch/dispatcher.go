package dispatch

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/ismaild/vumi/broker"
	"github.com/ismaild/vumi/interfaces"
	"github.com/ismaild/vumi/message"
)

// ExchangeName is the topic exchange all gateway workers share.
const ExchangeName = "vumi"

// Config describes a dispatcher: the transport connectors it consumes
// from on one side, the exposed connectors on the other, and the
// routing and middleware applied between them.
type Config struct {
	TransportNames []string
	ExposedNames   []string
	Router         Router
	Middleware     *Stack
}

// Dispatcher shuttles messages between transports and exposed
// connectors. Inbound messages and events flow transport to exposed,
// outbound messages flow exposed to transport.
type Dispatcher struct {
	cfg    Config
	broker *broker.Broker
	ch     *broker.Channel
	log    *zap.Logger
}

// NewDispatcher creates a dispatcher on its own broker channel.
func NewDispatcher(b *broker.Broker, channelID int, cfg Config, log *zap.Logger) *Dispatcher {
	if cfg.Middleware == nil {
		cfg.Middleware = NewStack()
	}
	return &Dispatcher{
		cfg:    cfg,
		broker: b,
		ch:     b.Channel(channelID),
		log:    log.Named("dispatcher"),
	}
}

// Setup declares and consumes the dispatcher's queues: inbound and
// event queues for every transport, outbound queues for every exposed
// connector.
func (d *Dispatcher) Setup(_ context.Context) error {
	if _, err := d.ch.Open(); err != nil {
		return fmt.Errorf("dispatcher: %w", err)
	}
	if _, err := d.ch.ExchangeDeclare(ExchangeName, broker.ExchangeTopic); err != nil {
		return fmt.Errorf("dispatcher: %w", err)
	}

	d.ch.OnDeliver(d.onDeliver)

	var keys []string
	for _, name := range d.cfg.TransportNames {
		keys = append(keys, message.InboundKey(name), message.EventKey(name))
	}
	for _, name := range d.cfg.ExposedNames {
		keys = append(keys, message.OutboundKey(name))
	}
	for _, key := range keys {
		if _, err := d.ch.QueueDeclare(key); err != nil {
			return fmt.Errorf("dispatcher: %w", err)
		}
		if _, err := d.ch.QueueBind(key, ExchangeName, key); err != nil {
			return fmt.Errorf("dispatcher: %w", err)
		}
		if _, err := d.ch.Consume(key, ""); err != nil {
			return fmt.Errorf("dispatcher: %w", err)
		}
	}
	return nil
}

// Run blocks until the context is canceled; deliveries arrive through
// the broker's callbacks.
func (d *Dispatcher) Run(ctx context.Context) error {
	<-ctx.Done()
	return nil
}

// Teardown releases nothing: the broker owns the channel state.
func (d *Dispatcher) Teardown() error {
	return nil
}

func (d *Dispatcher) onDeliver(ch *broker.Channel, del broker.Deliver) {
	defer ch.Ack(del.DeliveryTag, false)

	connector, kind, ok := splitRoutingKey(del.RoutingKey)
	if !ok {
		d.log.Warn("delivery with unroutable key",
			zap.String("routing_key", del.RoutingKey))
		return
	}

	var err error
	switch kind {
	case "inbound":
		err = d.dispatchInbound(connector, del.Body)
	case "event":
		err = d.dispatchEvent(connector, del.Body)
	case "outbound":
		err = d.dispatchOutbound(connector, del.Body)
	default:
		d.log.Warn("delivery with unknown kind",
			zap.String("routing_key", del.RoutingKey))
		return
	}
	if err != nil {
		d.log.Error("dispatch failed",
			zap.String("routing_key", del.RoutingKey), zap.Error(err))
	}
}

func (d *Dispatcher) dispatchInbound(transport string, body []byte) error {
	m, err := message.DecodeUserMessage(body)
	if err != nil {
		return err
	}
	m, err = d.cfg.Middleware.ApplyInbound(m, transport)
	if err != nil || m == nil {
		return err
	}
	data, err := m.Encode()
	if err != nil {
		return err
	}
	for _, exposed := range d.cfg.Router.RouteInbound(m, transport) {
		d.broker.Publish(ExchangeName, message.InboundKey(exposed), data)
	}
	return nil
}

func (d *Dispatcher) dispatchEvent(transport string, body []byte) error {
	e, err := message.DecodeEvent(body)
	if err != nil {
		return err
	}
	e, err = d.cfg.Middleware.ApplyEvent(e, transport)
	if err != nil || e == nil {
		return err
	}
	data, err := e.Encode()
	if err != nil {
		return err
	}
	for _, exposed := range d.cfg.Router.RouteEvent(e, transport) {
		d.broker.Publish(ExchangeName, message.EventKey(exposed), data)
	}
	return nil
}

func (d *Dispatcher) dispatchOutbound(exposed string, body []byte) error {
	m, err := message.DecodeUserMessage(body)
	if err != nil {
		return err
	}
	m, err = d.cfg.Middleware.ApplyOutbound(m, exposed)
	if err != nil || m == nil {
		return err
	}
	data, err := m.Encode()
	if err != nil {
		return err
	}
	for _, transport := range d.cfg.Router.RouteOutbound(m, exposed) {
		d.broker.Publish(ExchangeName, message.OutboundKey(transport), data)
	}
	return nil
}

// splitRoutingKey splits "<connector>.<kind>" on the last dot.
func splitRoutingKey(key string) (connector, kind string, ok bool) {
	i := strings.LastIndex(key, ".")
	if i <= 0 || i == len(key)-1 {
		return "", "", false
	}
	return key[:i], key[i+1:], true
}

var _ interfaces.Worker = (*Dispatcher)(nil)
