package message

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUserMessageRoundTrip(t *testing.T) {
	m := NewUserMessage("555", "123", "hello")
	m.TransportName = "sms_transport"
	m.TransportType = "sms"
	m.HelperMetadata = map[string]interface{}{"tag": "promo"}

	data, err := m.Encode()
	require.NoError(t, err)

	got, err := DecodeUserMessage(data)
	require.NoError(t, err)
	assert.Equal(t, m.MessageID, got.MessageID)
	assert.Equal(t, "555", got.ToAddr)
	assert.Equal(t, "123", got.FromAddr)
	assert.Equal(t, "hello", got.Content)
	assert.Equal(t, "sms_transport", got.TransportName)
	assert.Equal(t, "promo", got.HelperMetadata["tag"])
}

func TestReply(t *testing.T) {
	m := NewUserMessage("555", "123", "hello")
	m.TransportName = "ussd_transport"
	m.SessionEvent = SessionNew

	r := m.Reply("world")
	assert.Equal(t, "123", r.ToAddr)
	assert.Equal(t, "555", r.FromAddr)
	assert.Equal(t, m.MessageID, r.InReplyTo)
	assert.Equal(t, "ussd_transport", r.TransportName)
	assert.Equal(t, SessionResume, r.SessionEvent)
	assert.NotEqual(t, m.MessageID, r.MessageID)
}

func TestReplyOutsideSession(t *testing.T) {
	m := NewUserMessage("555", "123", "hello")
	r := m.Reply("world")
	assert.Equal(t, SessionNone, r.SessionEvent)
}

func TestEvents(t *testing.T) {
	ack := NewAck("local-1", "remote-9")
	assert.Equal(t, EventAck, ack.EventType)
	assert.Equal(t, "local-1", ack.UserMessageID)
	assert.Equal(t, "remote-9", ack.SentMessageID)

	nack := NewNack("local-2", "no route")
	assert.Equal(t, EventNack, nack.EventType)
	assert.Equal(t, "no route", nack.NackReason)

	dr := NewDeliveryReport("local-3", DeliveryDelivered)
	assert.Equal(t, EventDeliveryReport, dr.EventType)
	assert.Equal(t, DeliveryDelivered, dr.DeliveryStatus)

	data, err := nack.Encode()
	require.NoError(t, err)
	got, err := DecodeEvent(data)
	require.NoError(t, err)
	assert.Equal(t, nack.EventID, got.EventID)
	assert.Equal(t, "no route", got.NackReason)
}

func TestDecodeErrors(t *testing.T) {
	_, err := DecodeUserMessage([]byte("{not json"))
	assert.Error(t, err)
	_, err = DecodeEvent([]byte("{not json"))
	assert.Error(t, err)
}

func TestRoutingKeys(t *testing.T) {
	assert.Equal(t, "sms_transport.inbound", InboundKey("sms_transport"))
	assert.Equal(t, "sms_transport.outbound", OutboundKey("sms_transport"))
	assert.Equal(t, "sms_transport.event", EventKey("sms_transport"))
}

func TestMessageIDUniqueness(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := NewMessageID()
		require.False(t, seen[id])
		seen[id] = true
	}
}
