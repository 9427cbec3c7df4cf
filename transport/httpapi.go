package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ismaild/vumi/interfaces"
	"github.com/ismaild/vumi/message"
)

// HTTPConfig configures the inbound HTTP API transport.
type HTTPConfig struct {
	Addr    string
	WebPath string
	// AuthEnabled gates basic auth on the message endpoint.
	AuthEnabled bool
}

// HTTPTransport accepts user messages over a plain HTTP API: a POST
// to the configured path with to_addr, from_addr and content query
// parameters publishes an inbound message and answers with its
// generated id.
type HTTPTransport struct {
	cfg  HTTPConfig
	conn *Connector
	auth interfaces.Authenticator
	srv  *http.Server
	ln   net.Listener
	log  *zap.Logger
}

// NewHTTPTransport creates the transport. auth may be nil when
// AuthEnabled is false.
func NewHTTPTransport(conn *Connector, cfg HTTPConfig, auth interfaces.Authenticator, log *zap.Logger) *HTTPTransport {
	return &HTTPTransport{
		cfg:  cfg,
		conn: conn,
		auth: auth,
		log:  log.Named("http"),
	}
}

// Setup wires the connector, binds the listen address and registers
// the handlers.
func (t *HTTPTransport) Setup(ctx context.Context) error {
	if err := t.conn.Setup(); err != nil {
		return err
	}
	if err := t.conn.ConsumeOutbound(t.handleOutbound); err != nil {
		return err
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", t.handleHealth)
	mux.HandleFunc("/"+strings.Trim(t.cfg.WebPath, "/"), t.handleInbound)

	ln, err := net.Listen("tcp", t.cfg.Addr)
	if err != nil {
		return fmt.Errorf("http transport listen on %s: %w", t.cfg.Addr, err)
	}
	t.ln = ln
	t.srv = &http.Server{
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	t.log.Info("http transport listening", zap.String("addr", ln.Addr().String()))
	return nil
}

// Addr returns the bound listen address, valid after Setup.
func (t *HTTPTransport) Addr() string {
	return t.ln.Addr().String()
}

// Run serves until ctx is canceled.
func (t *HTTPTransport) Run(ctx context.Context) error {
	errc := make(chan error, 1)
	go func() { errc <- t.srv.Serve(t.ln) }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return t.srv.Shutdown(shutdownCtx)
	case err := <-errc:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}

func (t *HTTPTransport) Teardown() error {
	return nil
}

func (t *HTTPTransport) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "OK")
}

func (t *HTTPTransport) handleInbound(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if t.cfg.AuthEnabled {
		user, pass, ok := r.BasicAuth()
		if !ok || !t.auth.Authenticate(user, pass) {
			w.Header().Set("WWW-Authenticate", `Basic realm="vumi"`)
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
	}

	q := r.URL.Query()
	m := message.NewUserMessage(q.Get("to_addr"), q.Get("from_addr"), q.Get("content"))
	if err := t.conn.PublishInbound(m); err != nil {
		t.log.Error("failed to publish inbound message", zap.Error(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"message_id": m.MessageID})
}

// handleOutbound acknowledges outbound messages immediately: this
// transport has no downstream delivery channel, callers poll replies
// out of band.
func (t *HTTPTransport) handleOutbound(m *message.UserMessage) {
	t.log.Info("outbound message",
		zap.String("message_id", m.MessageID), zap.String("to_addr", m.ToAddr))
	if err := t.conn.PublishEvent(message.NewAck(m.MessageID, m.MessageID)); err != nil {
		t.log.Error("failed to publish ack", zap.Error(err))
	}
}

var _ interfaces.Worker = (*HTTPTransport)(nil)
