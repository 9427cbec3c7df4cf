package errors

import (
	"errors"
	"fmt"
)

// GatewayError is the base error type for gateway and broker failures.
type GatewayError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Op      string `json:"op,omitempty"`
	Cause   error  `json:"cause,omitempty"`
}

func (e *GatewayError) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("gateway error %d in %s: %s", e.Code, e.Op, e.Message)
	}
	return fmt.Sprintf("gateway error %d: %s", e.Code, e.Message)
}

func (e *GatewayError) Unwrap() error {
	return e.Cause
}

// Error codes. Configuration errors indicate protocol misuse by the
// caller; resource errors indicate a lookup on something that was never
// declared.
const (
	ExchangeTypeMismatch = 406
	ChannelAlreadyOpen   = 504
	ConsumerTagInUse     = 530
	ExchangeNotFound     = 404
	QueueNotFound        = 404
	BadExchangeType      = 503
	TransportFailure     = 541
)

// ConfigurationError marks caller/protocol-usage bugs: redeclaring an
// exchange under a different type, opening the same channel twice,
// reusing a consumer tag.
type ConfigurationError struct {
	GatewayError
}

func NewConfigurationError(code int, op, format string, args ...interface{}) *ConfigurationError {
	return &ConfigurationError{GatewayError{
		Code:    code,
		Op:      op,
		Message: fmt.Sprintf(format, args...),
	}}
}

// NotFoundError marks an operation on a queue or exchange that does
// not exist. Publishing to a missing exchange is explicitly tolerated
// by the broker and never raises this.
type NotFoundError struct {
	GatewayError
	Resource string `json:"resource"`
}

func NewNotFoundError(op, kind, name string) *NotFoundError {
	return &NotFoundError{
		GatewayError: GatewayError{
			Code:    404,
			Op:      op,
			Message: fmt.Sprintf("%s %q not found", kind, name),
		},
		Resource: name,
	}
}

// TransportError wraps failures in the HTTP/AMQP transport layer.
type TransportError struct {
	GatewayError
	Endpoint string `json:"endpoint,omitempty"`
}

func NewTransportError(op, endpoint string, cause error) *TransportError {
	return &TransportError{
		GatewayError: GatewayError{
			Code:    TransportFailure,
			Op:      op,
			Message: cause.Error(),
			Cause:   cause,
		},
		Endpoint: endpoint,
	}
}

// IsConfigurationError reports whether err is a protocol-usage bug.
func IsConfigurationError(err error) bool {
	var ce *ConfigurationError
	return errors.As(err, &ce)
}

// IsNotFound reports whether err is a missing-resource error.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// IsTransportError reports whether err came from the transport layer.
func IsTransportError(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}
