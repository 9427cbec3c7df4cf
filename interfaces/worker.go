package interfaces

import "context"

// Worker is a long-running gateway component: a transport, a
// dispatcher, a relay. Setup must return once the worker is ready to
// receive traffic; Run blocks until ctx is canceled.
type Worker interface {
	Setup(ctx context.Context) error
	Run(ctx context.Context) error
	Teardown() error
}

// Authenticator validates credentials for inbound HTTP traffic.
type Authenticator interface {
	Authenticate(username, password string) bool
}
