// Package message defines the gateway's payload types: user messages
// travelling between transports and applications, and the events
// (acknowledgments, delivery reports) describing their fate.
package message

import (
	"encoding/json"
	"fmt"
	"time"
)

// Session events for session-oriented transports (USSD).
const (
	SessionNone   = ""
	SessionNew    = "new"
	SessionResume = "resume"
	SessionClose  = "close"
)

// UserMessage is a message to or from a user, in transport-neutral
// form.
type UserMessage struct {
	MessageID      string                 `json:"message_id"`
	ToAddr         string                 `json:"to_addr"`
	FromAddr       string                 `json:"from_addr"`
	Content        string                 `json:"content"`
	InReplyTo      string                 `json:"in_reply_to,omitempty"`
	SessionEvent   string                 `json:"session_event,omitempty"`
	TransportName  string                 `json:"transport_name,omitempty"`
	TransportType  string                 `json:"transport_type,omitempty"`
	HelperMetadata map[string]interface{} `json:"helper_metadata,omitempty"`
	Timestamp      time.Time              `json:"timestamp"`
}

// NewUserMessage builds a message with a generated id and the current
// time.
func NewUserMessage(toAddr, fromAddr, content string) *UserMessage {
	return &UserMessage{
		MessageID: NewMessageID(),
		ToAddr:    toAddr,
		FromAddr:  fromAddr,
		Content:   content,
		Timestamp: time.Now().UTC(),
	}
}

// Reply builds a response to this message, swapping the addresses and
// carrying the conversation linkage.
func (m *UserMessage) Reply(content string) *UserMessage {
	reply := NewUserMessage(m.FromAddr, m.ToAddr, content)
	reply.InReplyTo = m.MessageID
	reply.TransportName = m.TransportName
	reply.TransportType = m.TransportType
	if m.SessionEvent != SessionNone {
		reply.SessionEvent = SessionResume
	}
	return reply
}

// Encode renders the wire form published on the broker.
func (m *UserMessage) Encode() ([]byte, error) {
	return json.Marshal(m)
}

// DecodeUserMessage parses a user message from its wire form.
func DecodeUserMessage(data []byte) (*UserMessage, error) {
	var m UserMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decode user message: %w", err)
	}
	return &m, nil
}

// Event types.
const (
	EventAck            = "ack"
	EventNack           = "nack"
	EventDeliveryReport = "delivery_report"
)

// Delivery statuses carried by delivery reports.
const (
	DeliveryPending   = "pending"
	DeliveryFailed    = "failed"
	DeliveryDelivered = "delivered"
)

// Event reports the fate of a previously published user message.
type Event struct {
	EventID        string    `json:"event_id"`
	EventType      string    `json:"event_type"`
	UserMessageID  string    `json:"user_message_id"`
	SentMessageID  string    `json:"sent_message_id,omitempty"`
	NackReason     string    `json:"nack_reason,omitempty"`
	DeliveryStatus string    `json:"delivery_status,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

// NewAck builds an acknowledgment event for a sent message.
func NewAck(userMessageID, sentMessageID string) *Event {
	return &Event{
		EventID:       NewMessageID(),
		EventType:     EventAck,
		UserMessageID: userMessageID,
		SentMessageID: sentMessageID,
		Timestamp:     time.Now().UTC(),
	}
}

// NewNack builds a negative acknowledgment with a reason.
func NewNack(userMessageID, reason string) *Event {
	return &Event{
		EventID:       NewMessageID(),
		EventType:     EventNack,
		UserMessageID: userMessageID,
		NackReason:    reason,
		Timestamp:     time.Now().UTC(),
	}
}

// NewDeliveryReport builds a delivery report event.
func NewDeliveryReport(userMessageID, status string) *Event {
	return &Event{
		EventID:        NewMessageID(),
		EventType:      EventDeliveryReport,
		UserMessageID:  userMessageID,
		DeliveryStatus: status,
		Timestamp:      time.Now().UTC(),
	}
}

func (e *Event) Encode() ([]byte, error) {
	return json.Marshal(e)
}

// DecodeEvent parses an event from its wire form.
func DecodeEvent(data []byte) (*Event, error) {
	var e Event
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("decode event: %w", err)
	}
	return &e, nil
}
