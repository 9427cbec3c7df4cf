package interfaces

// Broker is the publish/introspection surface transports and
// dispatchers need from the message broker. Consumer-side sessions are
// concrete channels obtained from the broker implementation.
type Broker interface {
	// Publish routes a message through the named exchange. Publishing
	// to an undeclared exchange is recorded and silently dropped.
	Publish(exchange, routingKey string, body []byte)

	// Dispatched returns the audit log for an exchange and routing
	// key: every published body, routed or not. Test/debug surface.
	Dispatched(exchange, routingKey string) [][]byte

	// WaitDelivery triggers a delivery run and returns a handle that
	// resolves once the delivery loop reaches quiescence.
	WaitDelivery() Completion
}

// Completion is resolved when an asynchronous broker operation has
// fully settled.
type Completion interface {
	Done() <-chan struct{}
}
