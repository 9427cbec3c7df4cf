// Package dispatch moves messages between transport connectors and the
// application-facing connectors they are exposed as, applying a
// middleware stack on the way through.
package dispatch

import (
	"github.com/ismaild/vumi/message"
)

// Router decides which counterpart connectors receive a message.
type Router interface {
	// RouteInbound returns the exposed connector names that should
	// receive a message arriving on the named transport.
	RouteInbound(m *message.UserMessage, transport string) []string
	// RouteEvent returns the exposed connector names that should
	// receive an event arriving on the named transport.
	RouteEvent(e *message.Event, transport string) []string
	// RouteOutbound returns the transport names that should carry an
	// outbound message from the named exposed connector.
	RouteOutbound(m *message.UserMessage, exposed string) []string
}

// SimpleDispatchRouter routes purely by connector name using static
// mappings built at construction time.
type SimpleDispatchRouter struct {
	inbound  map[string][]string // transport -> exposed names
	outbound map[string][]string // exposed -> transport names
}

// NewSimpleDispatchRouter builds a router from a transport-to-exposed
// mapping and an exposed-to-transport mapping. Both maps are copied.
func NewSimpleDispatchRouter(inbound, outbound map[string][]string) *SimpleDispatchRouter {
	return &SimpleDispatchRouter{
		inbound:  copyMapping(inbound),
		outbound: copyMapping(outbound),
	}
}

func copyMapping(m map[string][]string) map[string][]string {
	copied := make(map[string][]string, len(m))
	for k, v := range m {
		copied[k] = append([]string(nil), v...)
	}
	return copied
}

func (r *SimpleDispatchRouter) RouteInbound(_ *message.UserMessage, transport string) []string {
	return r.inbound[transport]
}

func (r *SimpleDispatchRouter) RouteEvent(_ *message.Event, transport string) []string {
	return r.inbound[transport]
}

func (r *SimpleDispatchRouter) RouteOutbound(_ *message.UserMessage, exposed string) []string {
	return r.outbound[exposed]
}

var _ Router = (*SimpleDispatchRouter)(nil)
