package dispatch

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ismaild/vumi/broker"
	"github.com/ismaild/vumi/message"
)

func newTestDispatcher(t *testing.T, cfg Config) *broker.Broker {
	t.Helper()
	b := broker.NewBroker()
	t.Cleanup(b.Close)
	d := NewDispatcher(b, 1, cfg, zap.NewNop())
	require.NoError(t, d.Setup(context.Background()))
	return b
}

func waitQuiesce(t *testing.T, b *broker.Broker) {
	t.Helper()
	select {
	case <-b.WaitDelivery().Done():
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for delivery to finish")
	}
}

func simpleRouter() Router {
	return NewSimpleDispatchRouter(
		map[string][]string{"sms": {"app"}},
		map[string][]string{"app": {"sms"}},
	)
}

func publishMessage(t *testing.T, b *broker.Broker, key string, m *message.UserMessage) {
	t.Helper()
	data, err := m.Encode()
	require.NoError(t, err)
	b.Publish(ExchangeName, key, data)
}

func TestDispatcherRoutesInbound(t *testing.T) {
	b := newTestDispatcher(t, Config{
		TransportNames: []string{"sms"},
		ExposedNames:   []string{"app"},
		Router:         simpleRouter(),
	})

	publishMessage(t, b, "sms.inbound", message.NewUserMessage("555", "123", "hello"))
	waitQuiesce(t, b)

	got := b.Dispatched(ExchangeName, "app.inbound")
	require.Len(t, got, 1)
	m, err := message.DecodeUserMessage(got[0])
	require.NoError(t, err)
	assert.Equal(t, "hello", m.Content)
}

func TestDispatcherRoutesOutbound(t *testing.T) {
	b := newTestDispatcher(t, Config{
		TransportNames: []string{"sms"},
		ExposedNames:   []string{"app"},
		Router:         simpleRouter(),
	})

	publishMessage(t, b, "app.outbound", message.NewUserMessage("555", "123", "reply"))
	waitQuiesce(t, b)

	got := b.Dispatched(ExchangeName, "sms.outbound")
	require.Len(t, got, 1)
}

func TestDispatcherRoutesEvents(t *testing.T) {
	b := newTestDispatcher(t, Config{
		TransportNames: []string{"sms"},
		ExposedNames:   []string{"app"},
		Router:         simpleRouter(),
	})

	data, err := message.NewAck("m-1", "r-1").Encode()
	require.NoError(t, err)
	b.Publish(ExchangeName, "sms.event", data)
	waitQuiesce(t, b)

	got := b.Dispatched(ExchangeName, "app.event")
	require.Len(t, got, 1)
	e, err := message.DecodeEvent(got[0])
	require.NoError(t, err)
	assert.Equal(t, "m-1", e.UserMessageID)
}

func TestDispatcherFansOut(t *testing.T) {
	b := newTestDispatcher(t, Config{
		TransportNames: []string{"sms"},
		ExposedNames:   []string{"app1", "app2"},
		Router: NewSimpleDispatchRouter(
			map[string][]string{"sms": {"app1", "app2"}},
			nil,
		),
	})

	publishMessage(t, b, "sms.inbound", message.NewUserMessage("555", "123", "both"))
	waitQuiesce(t, b)

	assert.Len(t, b.Dispatched(ExchangeName, "app1.inbound"), 1)
	assert.Len(t, b.Dispatched(ExchangeName, "app2.inbound"), 1)
}

func TestDispatcherUnmappedTransportDropsMessage(t *testing.T) {
	b := newTestDispatcher(t, Config{
		TransportNames: []string{"ussd"},
		ExposedNames:   []string{"app"},
		Router:         simpleRouter(),
	})

	publishMessage(t, b, "ussd.inbound", message.NewUserMessage("555", "123", "lost"))
	waitQuiesce(t, b)

	assert.Empty(t, b.Dispatched(ExchangeName, "app.inbound"))
}

func TestDispatcherAppliesTaggingMiddleware(t *testing.T) {
	b := newTestDispatcher(t, Config{
		TransportNames: []string{"sms"},
		ExposedNames:   []string{"app"},
		Router:         simpleRouter(),
		Middleware: NewStack(
			NewTaggingMiddleware("in-tag", "out-tag"),
			NewLoggingMiddleware(zap.NewNop()),
		),
	})

	publishMessage(t, b, "sms.inbound", message.NewUserMessage("555", "123", "tag me"))
	waitQuiesce(t, b)

	got := b.Dispatched(ExchangeName, "app.inbound")
	require.Len(t, got, 1)
	m, err := message.DecodeUserMessage(got[0])
	require.NoError(t, err)
	assert.Equal(t, "in-tag", m.HelperMetadata["tag"])
}

type dropMiddleware struct{}

func (dropMiddleware) Name() string { return "drop" }
func (dropMiddleware) HandleInbound(*message.UserMessage, string) (*message.UserMessage, error) {
	return nil, nil
}
func (dropMiddleware) HandleOutbound(m *message.UserMessage, _ string) (*message.UserMessage, error) {
	return m, nil
}
func (dropMiddleware) HandleEvent(e *message.Event, _ string) (*message.Event, error) {
	return e, nil
}

func TestDispatcherMiddlewareCanDrop(t *testing.T) {
	b := newTestDispatcher(t, Config{
		TransportNames: []string{"sms"},
		ExposedNames:   []string{"app"},
		Router:         simpleRouter(),
		Middleware:     NewStack(dropMiddleware{}),
	})

	publishMessage(t, b, "sms.inbound", message.NewUserMessage("555", "123", "dropped"))
	waitQuiesce(t, b)

	assert.Empty(t, b.Dispatched(ExchangeName, "app.inbound"))
}

type recordingMiddleware struct {
	name  string
	calls *[]string
}

func (r recordingMiddleware) Name() string { return r.name }
func (r recordingMiddleware) HandleInbound(m *message.UserMessage, _ string) (*message.UserMessage, error) {
	*r.calls = append(*r.calls, r.name+".in")
	return m, nil
}
func (r recordingMiddleware) HandleOutbound(m *message.UserMessage, _ string) (*message.UserMessage, error) {
	*r.calls = append(*r.calls, r.name+".out")
	return m, nil
}
func (r recordingMiddleware) HandleEvent(e *message.Event, _ string) (*message.Event, error) {
	*r.calls = append(*r.calls, r.name+".event")
	return e, nil
}

func TestStackOrdering(t *testing.T) {
	var calls []string
	stack := NewStack(
		recordingMiddleware{"first", &calls},
		recordingMiddleware{"second", &calls},
	)
	m := message.NewUserMessage("555", "123", "x")

	_, err := stack.ApplyInbound(m, "sms")
	require.NoError(t, err)
	assert.Equal(t, []string{"first.in", "second.in"}, calls)

	calls = nil
	_, err = stack.ApplyOutbound(m, "app")
	require.NoError(t, err)
	assert.Equal(t, []string{"second.out", "first.out"}, calls)
}

func TestSplitRoutingKey(t *testing.T) {
	tests := []struct {
		key       string
		connector string
		kind      string
		ok        bool
	}{
		{"sms.inbound", "sms", "inbound", true},
		{"my.transport.outbound", "my.transport", "outbound", true},
		{"nodot", "", "", false},
		{".inbound", "", "", false},
		{"sms.", "", "", false},
	}
	for _, tt := range tests {
		connector, kind, ok := splitRoutingKey(tt.key)
		assert.Equal(t, tt.ok, ok, tt.key)
		assert.Equal(t, tt.connector, connector, tt.key)
		assert.Equal(t, tt.kind, kind, tt.key)
	}
}
