package broker

// Envelope is a message held by a queue: the exchange and routing key
// it was published with, plus the raw body.
type Envelope struct {
	Exchange   string
	RoutingKey string
	Body       []byte
}

// Reply is a protocol reply message. Each kind carries a fixed field
// set and is identified by Kind.
type Reply interface {
	Kind() string
}

// OpenOK confirms a channel open.
type OpenOK struct{}

func (OpenOK) Kind() string { return "open-ok" }

// ExchangeDeclareOK confirms an exchange declaration.
type ExchangeDeclareOK struct{}

func (ExchangeDeclareOK) Kind() string { return "exchange-declare-ok" }

// DeclareOK confirms a queue declaration and reports its current state.
type DeclareOK struct {
	Queue         string
	MessageCount  int
	ConsumerCount int
}

func (DeclareOK) Kind() string { return "declare-ok" }

// BindOK confirms a queue binding.
type BindOK struct{}

func (BindOK) Kind() string { return "bind-ok" }

// ConsumeOK confirms a consumer registration.
type ConsumeOK struct {
	ConsumerTag string
}

func (ConsumeOK) Kind() string { return "consume-ok" }

// CancelOK confirms a consumer cancellation.
type CancelOK struct {
	ConsumerTag string
}

func (CancelOK) Kind() string { return "cancel-ok" }

// AckOK confirms an acknowledgment.
type AckOK struct{}

func (AckOK) Kind() string { return "ack-ok" }

// Deliver is an asynchronous delivery pushed to a consumer.
type Deliver struct {
	ConsumerTag string
	DeliveryTag uint64
	Redelivered bool
	Exchange    string
	RoutingKey  string
	Body        []byte
}

func (Deliver) Kind() string { return "deliver" }

// GetOK is the reply to a successful synchronous get.
type GetOK struct {
	DeliveryTag uint64
	Redelivered bool
	Exchange    string
	RoutingKey  string
	Body        []byte
}

func (GetOK) Kind() string { return "get-ok" }

// GetEmpty is the reply to a get on a queue with nothing ready. It is
// a normal result, not an error.
type GetEmpty struct{}

func (GetEmpty) Kind() string { return "get-empty" }

// DeliveryFunc receives asynchronous deliveries for a channel.
type DeliveryFunc func(ch *Channel, d Deliver)
