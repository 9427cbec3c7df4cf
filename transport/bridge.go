package transport

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ismaild/vumi/errors"
	"github.com/ismaild/vumi/interfaces"
	"github.com/ismaild/vumi/message"
)

// BridgeConfig configures the streaming bridge to a remote gateway's
// HTTP API.
type BridgeConfig struct {
	AccountKey      string
	ConversationKey string
	AccessToken     string
	BaseURL         string

	// MessageLifetime bounds how long remote→local message-id
	// mappings are kept for event correlation.
	MessageLifetime time.Duration

	InitialDelay      time.Duration
	MaxReconnectDelay time.Duration
	MaxRetries        int // 0 means retry forever
	Factor            float64
	Jitter            float64
}

// DefaultBridgeConfig returns the standard reconnect and lifetime
// settings.
func DefaultBridgeConfig() BridgeConfig {
	return BridgeConfig{
		MessageLifetime:   48 * time.Hour,
		InitialDelay:      100 * time.Millisecond,
		MaxReconnectDelay: time.Hour,
		Factor:            2.7182818284590451,
		Jitter:            0.11962656472,
	}
}

// BridgeTransport bridges this gateway to a remote installation: it
// consumes the remote conversation's message and event streams,
// republishes them locally, and forwards locally published outbound
// messages to the remote API. Remote and local message ids are
// correlated through the keystore so events can be mapped back.
type BridgeTransport struct {
	cfg    BridgeConfig
	conn   *Connector
	store  interfaces.KeyStore
	client *StreamingClient
	httpc  *http.Client
	rng    *rand.Rand
	log    *zap.Logger
}

// NewBridgeTransport creates a bridge transport over the given
// connector and keystore.
func NewBridgeTransport(conn *Connector, store interfaces.KeyStore, cfg BridgeConfig, log *zap.Logger) *BridgeTransport {
	return &BridgeTransport{
		cfg:    cfg,
		conn:   conn,
		store:  store,
		client: NewStreamingClient(),
		httpc:  &http.Client{Timeout: 30 * time.Second},
		log:    log.Named("bridge"),
	}
}

// SetRand injects the random source used for reconnect jitter. Call
// before Run.
func (t *BridgeTransport) SetRand(rng *rand.Rand) {
	t.rng = rng
}

// Setup wires the connector and the outbound consumer.
func (t *BridgeTransport) Setup(ctx context.Context) error {
	if err := t.conn.Setup(); err != nil {
		return err
	}
	return t.conn.ConsumeOutbound(func(m *message.UserMessage) {
		t.handleOutbound(ctx, m)
	})
}

// Run consumes both remote streams until ctx is canceled.
func (t *BridgeTransport) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return t.streamLoop(ctx, "messages.json", t.handleInboundMessage)
	})
	g.Go(func() error {
		return t.streamLoop(ctx, "events.json", t.handleInboundEvent)
	})
	err := g.Wait()
	if ctx.Err() != nil {
		return nil
	}
	return err
}

// Teardown releases nothing: the keystore and broker are owned by the
// caller.
func (t *BridgeTransport) Teardown() error {
	return nil
}

// streamLoop keeps one remote stream connected, backing off with
// jitter between attempts. A stream that delivered at least one
// document counts as a successful connection and resets the backoff.
func (t *BridgeTransport) streamLoop(ctx context.Context, path string, handle func(context.Context, []byte) error) error {
	recon := NewReconnector(t.cfg.InitialDelay, t.cfg.MaxReconnectDelay,
		t.cfg.Factor, t.cfg.Jitter, t.cfg.MaxRetries, t.rng)
	url := t.url(path)

	for {
		delivered := false
		err := t.client.Stream(ctx, url, t.authHeader(), func(doc []byte) error {
			delivered = true
			return handle(ctx, doc)
		})
		if ctx.Err() != nil {
			return nil
		}
		if delivered {
			recon.Reset()
		}

		delay, ok := recon.Next()
		if !ok {
			t.log.Warn("abandoning reconnection",
				zap.String("url", url), zap.Int("attempts", recon.Retries()))
			return errors.NewTransportError("bridge.stream", url, err)
		}
		t.log.Info("stream disconnected, will retry",
			zap.String("url", url), zap.Duration("delay", delay), zap.Error(err))

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil
		}
	}
}

func (t *BridgeTransport) handleInboundMessage(_ context.Context, doc []byte) error {
	m, err := message.DecodeUserMessage(doc)
	if err != nil {
		t.log.Warn("dropping malformed inbound message", zap.Error(err))
		return nil
	}
	return t.conn.PublishInbound(m)
}

// handleInboundEvent rewrites the remote message id to the local one
// recorded when the message was sent, then republishes the event.
func (t *BridgeTransport) handleInboundEvent(ctx context.Context, doc []byte) error {
	e, err := message.DecodeEvent(doc)
	if err != nil {
		t.log.Warn("dropping malformed inbound event", zap.Error(err))
		return nil
	}
	remoteID := e.UserMessageID
	localID, ok, err := t.store.Get(ctx, remoteID)
	if err != nil {
		return err
	}
	if !ok {
		t.log.Warn("event for unknown remote message",
			zap.String("remote_message_id", remoteID))
	}
	e.UserMessageID = localID
	e.SentMessageID = remoteID
	return t.conn.PublishEvent(e)
}

// outboundParams is the remote API's expected request body.
type outboundParams struct {
	ToAddr         string                 `json:"to_addr"`
	Content        string                 `json:"content"`
	MessageID      string                 `json:"message_id"`
	InReplyTo      string                 `json:"in_reply_to,omitempty"`
	SessionEvent   string                 `json:"session_event,omitempty"`
	HelperMetadata map[string]interface{} `json:"helper_metadata,omitempty"`
}

// handleOutbound forwards one outbound message to the remote API,
// publishing an ack carrying the remote id on success and a nack
// otherwise.
func (t *BridgeTransport) handleOutbound(ctx context.Context, m *message.UserMessage) {
	body, err := json.Marshal(outboundParams{
		ToAddr:         m.ToAddr,
		Content:        m.Content,
		MessageID:      m.MessageID,
		InReplyTo:      m.InReplyTo,
		SessionEvent:   m.SessionEvent,
		HelperMetadata: m.HelperMetadata,
	})
	if err != nil {
		t.nack(m, err.Error())
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut,
		t.url("messages.json"), bytes.NewReader(body))
	if err != nil {
		t.nack(m, err.Error())
		return
	}
	req.Header = t.authHeader()
	req.Header.Set("Content-Type", "application/json; charset=utf-8")

	resp, err := t.httpc.Do(req)
	if err != nil {
		t.nack(m, err.Error())
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(resp.Body)
		t.log.Warn("unexpected status from remote API",
			zap.Int("status", resp.StatusCode), zap.ByteString("body", payload))
		t.nack(m, fmt.Sprintf("unexpected status code: %d", resp.StatusCode))
		return
	}

	var remote struct {
		MessageID string `json:"message_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&remote); err != nil {
		t.nack(m, err.Error())
		return
	}

	if err := t.mapMessageID(ctx, remote.MessageID, m.MessageID); err != nil {
		t.log.Error("failed to record message-id mapping", zap.Error(err))
	}
	if err := t.conn.PublishEvent(message.NewAck(m.MessageID, remote.MessageID)); err != nil {
		t.log.Error("failed to publish ack", zap.Error(err))
	}
}

// mapMessageID records remote → local with the configured lifetime.
func (t *BridgeTransport) mapMessageID(ctx context.Context, remoteID, localID string) error {
	if err := t.store.Set(ctx, remoteID, localID); err != nil {
		return err
	}
	return t.store.Expire(ctx, remoteID, t.cfg.MessageLifetime)
}

func (t *BridgeTransport) nack(m *message.UserMessage, reason string) {
	if err := t.conn.PublishEvent(message.NewNack(m.MessageID, reason)); err != nil {
		t.log.Error("failed to publish nack", zap.Error(err))
	}
}

func (t *BridgeTransport) authHeader() http.Header {
	creds := base64.StdEncoding.EncodeToString(
		[]byte(t.cfg.AccountKey + ":" + t.cfg.AccessToken))
	h := make(http.Header)
	h.Set("Authorization", "Basic "+creds)
	return h
}

func (t *BridgeTransport) url(path string) string {
	return strings.TrimRight(t.cfg.BaseURL, "/") + "/" + t.cfg.ConversationKey + "/" + path
}

var _ interfaces.Worker = (*BridgeTransport)(nil)
