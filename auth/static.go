package auth

import (
	"crypto/subtle"

	"github.com/ismaild/vumi/interfaces"
)

// StaticAuthenticator validates credentials against an in-memory user map.
// It is meant for configuration-supplied accounts and for tests.
type StaticAuthenticator struct {
	users map[string]string
}

// NewStaticAuthenticator creates an authenticator over a username to
// password map. The map is copied.
func NewStaticAuthenticator(users map[string]string) *StaticAuthenticator {
	copied := make(map[string]string, len(users))
	for username, password := range users {
		copied[username] = password
	}
	return &StaticAuthenticator{users: copied}
}

// Authenticate validates user credentials
func (s *StaticAuthenticator) Authenticate(username, password string) bool {
	want, exists := s.users[username]
	if !exists {
		// Compare anyway so missing and wrong users take similar time.
		subtle.ConstantTimeCompare([]byte(password), []byte(password))
		return false
	}
	return subtle.ConstantTimeCompare([]byte(want), []byte(password)) == 1
}

var _ interfaces.Authenticator = (*StaticAuthenticator)(nil)
