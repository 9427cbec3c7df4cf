package transport

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ismaild/vumi/broker"
	"github.com/ismaild/vumi/message"
)

func newTestConnector(t *testing.T, name string) (*broker.Broker, *Connector) {
	t.Helper()
	b := broker.NewBroker()
	t.Cleanup(b.Close)
	c := NewConnector(b, 1, name, zap.NewNop())
	require.NoError(t, c.Setup())
	return b, c
}

func TestConnectorPublishInbound(t *testing.T) {
	b, c := newTestConnector(t, "sms")

	m := message.NewUserMessage("555", "123", "hello")
	require.NoError(t, c.PublishInbound(m))

	got := b.Dispatched(ExchangeName, "sms.inbound")
	require.Len(t, got, 1)
	decoded, err := message.DecodeUserMessage(got[0])
	require.NoError(t, err)
	assert.Equal(t, "hello", decoded.Content)
	assert.Equal(t, "sms", decoded.TransportName)
}

func TestConnectorPublishEvent(t *testing.T) {
	b, c := newTestConnector(t, "sms")

	require.NoError(t, c.PublishEvent(message.NewAck("m-1", "r-1")))

	got := b.Dispatched(ExchangeName, "sms.event")
	require.Len(t, got, 1)
	e, err := message.DecodeEvent(got[0])
	require.NoError(t, err)
	assert.Equal(t, "m-1", e.UserMessageID)
}

func TestConnectorConsumeOutbound(t *testing.T) {
	b, c := newTestConnector(t, "sms")

	var mu sync.Mutex
	var got []*message.UserMessage
	require.NoError(t, c.ConsumeOutbound(func(m *message.UserMessage) {
		mu.Lock()
		got = append(got, m)
		mu.Unlock()
	}))

	m := message.NewUserMessage("555", "123", "outbound")
	data, err := m.Encode()
	require.NoError(t, err)
	b.Publish(ExchangeName, "sms.outbound", data)

	<-b.WaitDelivery().Done()

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, got, 1)
	assert.Equal(t, "outbound", got[0].Content)
	// The delivery was acknowledged, nothing stays unacked.
	assert.Empty(t, c.Channel().Unacked())
}

func TestConnectorDropsMalformedOutbound(t *testing.T) {
	b, c := newTestConnector(t, "sms")

	called := make(chan struct{}, 1)
	require.NoError(t, c.ConsumeOutbound(func(m *message.UserMessage) {
		called <- struct{}{}
	}))

	b.Publish(ExchangeName, "sms.outbound", []byte("{not json"))
	<-b.WaitDelivery().Done()

	select {
	case <-called:
		t.Fatal("handler ran for a malformed payload")
	case <-time.After(50 * time.Millisecond):
	}
	assert.Empty(t, c.Channel().Unacked())
}
