package payment

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindInvalidPayment    Kind = "invalid_payment"
	KindTransport         Kind = "transport"
	KindMalformedResponse Kind = "malformed_response"
	KindPrecondition      Kind = "precondition"
	KindConfiguration     Kind = "configuration"
)

var (
	ErrInvalidPayment    = errors.New("invalid payment")
	ErrTransport         = errors.New("payment provider unreachable")
	ErrMalformedResponse = errors.New("malformed provider response")
	ErrPrecondition      = errors.New("payment precondition violated")
	ErrConfiguration     = errors.New("invalid payment configuration")
)

var sentinels = map[Kind]error{
	KindInvalidPayment:    ErrInvalidPayment,
	KindTransport:         ErrTransport,
	KindMalformedResponse: ErrMalformedResponse,
	KindPrecondition:      ErrPrecondition,
	KindConfiguration:     ErrConfiguration,
}

// Failure is the provider-independent error every driver returns.
type Failure struct {
	Kind    Kind
	Driver  string
	Code    string
	Message string
	Err     error
}

func (f *Failure) Error() string {
	msg := f.Message
	if f.Err != nil {
		if msg == "" {
			msg = f.Err.Error()
		} else {
			msg += ": " + f.Err.Error()
		}
	}
	if f.Code != "" {
		return fmt.Sprintf("%s: %s (code %s)", f.Driver, msg, f.Code)
	}
	return fmt.Sprintf("%s: %s", f.Driver, msg)
}

func (f *Failure) Unwrap() error { return f.Err }

func (f *Failure) Is(target error) bool {
	return target == sentinels[f.Kind]
}

func NewTransportFailure(driver string, err error) *Failure {
	return &Failure{
		Kind:    KindTransport,
		Driver:  driver,
		Message: "payment provider request failed",
		Err:     err,
	}
}

func NewMalformedFailure(driver, message string) *Failure {
	return &Failure{
		Kind:    KindMalformedResponse,
		Driver:  driver,
		Message: message,
	}
}

func NewPreconditionFailure(driver, message string) *Failure {
	return &Failure{
		Kind:    KindPrecondition,
		Driver:  driver,
		Message: message,
	}
}

func NewConfigurationFailure(driver, message string) *Failure {
	return &Failure{
		Kind:    KindConfiguration,
		Driver:  driver,
		Message: message,
	}
}

// AsFailure extracts the canonical failure from err, if any.
func AsFailure(err error) (*Failure, bool) {
	var f *Failure
	if errors.As(err, &f) {
		return f, true
	}
	return nil, false
}
