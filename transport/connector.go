// Package transport connects the gateway's broker to the outside
// world: an inbound HTTP API and a streaming bridge to a remote
// gateway installation.
package transport

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/ismaild/vumi/broker"
	"github.com/ismaild/vumi/message"
)

// ExchangeName is the topic exchange all gateway workers share.
const ExchangeName = "vumi"

// Connector binds one named transport to the broker: it publishes
// inbound messages and events under the transport's routing keys and
// consumes the transport's outbound queue.
type Connector struct {
	Name string

	broker *broker.Broker
	ch     *broker.Channel
	log    *zap.Logger
}

// NewConnector creates a connector for the named transport on its own
// broker channel.
func NewConnector(b *broker.Broker, channelID int, name string, log *zap.Logger) *Connector {
	return &Connector{
		Name:   name,
		broker: b,
		ch:     b.Channel(channelID),
		log:    log.Named(name),
	}
}

// Setup opens the channel, declares the shared topic exchange and the
// transport's outbound queue.
func (c *Connector) Setup() error {
	if _, err := c.ch.Open(); err != nil {
		return fmt.Errorf("connector %s: %w", c.Name, err)
	}
	if _, err := c.ch.ExchangeDeclare(ExchangeName, broker.ExchangeTopic); err != nil {
		return fmt.Errorf("connector %s: %w", c.Name, err)
	}
	outbound := message.OutboundKey(c.Name)
	if _, err := c.ch.QueueDeclare(outbound); err != nil {
		return fmt.Errorf("connector %s: %w", c.Name, err)
	}
	if _, err := c.ch.QueueBind(outbound, ExchangeName, outbound); err != nil {
		return fmt.Errorf("connector %s: %w", c.Name, err)
	}
	return nil
}

// PublishInbound publishes a message arriving from a user.
func (c *Connector) PublishInbound(m *message.UserMessage) error {
	m.TransportName = c.Name
	data, err := m.Encode()
	if err != nil {
		return err
	}
	c.broker.Publish(ExchangeName, message.InboundKey(c.Name), data)
	return nil
}

// PublishEvent publishes a transport event.
func (c *Connector) PublishEvent(e *message.Event) error {
	data, err := e.Encode()
	if err != nil {
		return err
	}
	c.broker.Publish(ExchangeName, message.EventKey(c.Name), data)
	return nil
}

// ConsumeOutbound registers a consumer on the transport's outbound
// queue. Each decoded message is handed to fn; deliveries are
// acknowledged after fn returns, malformed payloads are acknowledged
// and dropped.
func (c *Connector) ConsumeOutbound(fn func(*message.UserMessage)) error {
	c.ch.OnDeliver(func(ch *broker.Channel, d broker.Deliver) {
		m, err := message.DecodeUserMessage(d.Body)
		if err != nil {
			c.log.Warn("dropping malformed outbound message", zap.Error(err))
			ch.Ack(d.DeliveryTag, false)
			return
		}
		fn(m)
		ch.Ack(d.DeliveryTag, false)
	})
	_, err := c.ch.Consume(message.OutboundKey(c.Name), "")
	if err != nil {
		return fmt.Errorf("connector %s: %w", c.Name, err)
	}
	return nil
}

// Channel exposes the connector's broker channel.
func (c *Connector) Channel() *broker.Channel {
	return c.ch
}
