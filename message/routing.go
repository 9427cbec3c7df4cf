package message

import (
	crand "crypto/rand"
	"encoding/hex"
	"fmt"
	mrand "math/rand"
)

// NewMessageID returns a unique message identifier.
func NewMessageID() string {
	var b [16]byte
	if _, err := crand.Read(b[:]); err != nil {
		return fmt.Sprintf("msg-%d", mrand.Int63())
	}
	return hex.EncodeToString(b[:])
}

// Routing keys follow the "<connector>.<direction>" convention used by
// workers on the broker's topic exchange.

// InboundKey is the routing key for messages arriving from users.
func InboundKey(connector string) string {
	return connector + ".inbound"
}

// OutboundKey is the routing key for messages going out to users.
func OutboundKey(connector string) string {
	return connector + ".outbound"
}

// EventKey is the routing key for transport events.
func EventKey(connector string) string {
	return connector + ".event"
}
