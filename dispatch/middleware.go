package dispatch

import (
	"go.uber.org/zap"

	"github.com/ismaild/vumi/message"
)

// Middleware transforms messages as they pass through the dispatcher.
// Returning a nil message without an error drops the message.
type Middleware interface {
	Name() string
	HandleInbound(m *message.UserMessage, connector string) (*message.UserMessage, error)
	HandleOutbound(m *message.UserMessage, connector string) (*message.UserMessage, error)
	HandleEvent(e *message.Event, connector string) (*message.Event, error)
}

// Stack applies middleware in registration order for inbound messages
// and events, and in reverse order for outbound messages.
type Stack struct {
	mws []Middleware
}

// NewStack creates a middleware stack.
func NewStack(mws ...Middleware) *Stack {
	return &Stack{mws: mws}
}

// ApplyInbound runs the stack over an inbound message. A nil result
// with a nil error means the message was dropped.
func (s *Stack) ApplyInbound(m *message.UserMessage, connector string) (*message.UserMessage, error) {
	for _, mw := range s.mws {
		var err error
		m, err = mw.HandleInbound(m, connector)
		if err != nil || m == nil {
			return nil, err
		}
	}
	return m, nil
}

// ApplyOutbound runs the stack in reverse over an outbound message.
func (s *Stack) ApplyOutbound(m *message.UserMessage, connector string) (*message.UserMessage, error) {
	for i := len(s.mws) - 1; i >= 0; i-- {
		var err error
		m, err = s.mws[i].HandleOutbound(m, connector)
		if err != nil || m == nil {
			return nil, err
		}
	}
	return m, nil
}

// ApplyEvent runs the stack over an event.
func (s *Stack) ApplyEvent(e *message.Event, connector string) (*message.Event, error) {
	for _, mw := range s.mws {
		var err error
		e, err = mw.HandleEvent(e, connector)
		if err != nil || e == nil {
			return nil, err
		}
	}
	return e, nil
}

// LoggingMiddleware logs every message passing through the dispatcher.
type LoggingMiddleware struct {
	log *zap.Logger
}

// NewLoggingMiddleware creates a logging middleware.
func NewLoggingMiddleware(log *zap.Logger) *LoggingMiddleware {
	return &LoggingMiddleware{log: log.Named("middleware.logging")}
}

func (l *LoggingMiddleware) Name() string { return "logging" }

func (l *LoggingMiddleware) HandleInbound(m *message.UserMessage, connector string) (*message.UserMessage, error) {
	l.log.Info("processed inbound message",
		zap.String("connector", connector),
		zap.String("message_id", m.MessageID),
		zap.String("from_addr", m.FromAddr))
	return m, nil
}

func (l *LoggingMiddleware) HandleOutbound(m *message.UserMessage, connector string) (*message.UserMessage, error) {
	l.log.Info("processed outbound message",
		zap.String("connector", connector),
		zap.String("message_id", m.MessageID),
		zap.String("to_addr", m.ToAddr))
	return m, nil
}

func (l *LoggingMiddleware) HandleEvent(e *message.Event, connector string) (*message.Event, error) {
	l.log.Info("processed event",
		zap.String("connector", connector),
		zap.String("event_type", e.EventType),
		zap.String("user_message_id", e.UserMessageID))
	return e, nil
}

var _ Middleware = (*LoggingMiddleware)(nil)

// TaggingMiddleware annotates messages with a tag under
// helper_metadata so downstream workers can tell which route a message
// took.
type TaggingMiddleware struct {
	InboundTag  string
	OutboundTag string
}

// NewTaggingMiddleware creates a tagging middleware with separate tags
// for each direction. An empty tag leaves that direction untouched.
func NewTaggingMiddleware(inboundTag, outboundTag string) *TaggingMiddleware {
	return &TaggingMiddleware{InboundTag: inboundTag, OutboundTag: outboundTag}
}

func (t *TaggingMiddleware) Name() string { return "tagging" }

func (t *TaggingMiddleware) tag(m *message.UserMessage, tag string) *message.UserMessage {
	if tag == "" {
		return m
	}
	if m.HelperMetadata == nil {
		m.HelperMetadata = make(map[string]interface{})
	}
	m.HelperMetadata["tag"] = tag
	return m
}

func (t *TaggingMiddleware) HandleInbound(m *message.UserMessage, _ string) (*message.UserMessage, error) {
	return t.tag(m, t.InboundTag), nil
}

func (t *TaggingMiddleware) HandleOutbound(m *message.UserMessage, _ string) (*message.UserMessage, error) {
	return t.tag(m, t.OutboundTag), nil
}

func (t *TaggingMiddleware) HandleEvent(e *message.Event, _ string) (*message.Event, error) {
	return e, nil
}

var _ Middleware = (*TaggingMiddleware)(nil)
