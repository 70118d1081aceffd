package payment

import (
	"context"
	"net/http"
	"time"
)

const defaultTimeout = 15 * time.Second

// Driver is implemented once per payment processor. Calls happen in order:
// Purchase, Pay, then Verify once the provider calls back.
type Driver interface {
	// Purchase registers the invoice with the provider and stores the
	// returned transaction id on it.
	Purchase(ctx context.Context) (string, error)

	// Pay returns the provider page the user must be sent to. No network.
	Pay() (string, error)

	// Verify asks the provider whether the transaction completed.
	Verify(ctx context.Context, cb Callback) VerifyResult
}

// Callback carries verify parameters supplied from outside the invoice,
// typically from the provider's redirect back to us.
type Callback struct {
	TransactionID string
	OrderID       string
	Params        map[string]string
}

type VerifyResult struct {
	Driver        string
	TransactionID string
	OrderID       string
	// ReferenceID is the provider's settlement reference, when it sends one.
	ReferenceID string
	Failure     *Failure
}

func (r VerifyResult) Verified() bool { return r.Failure == nil }

func (r VerifyResult) Err() error {
	if r.Failure == nil {
		return nil
	}
	return r.Failure
}

type options struct {
	httpClient *http.Client
}

type Option func(*options)

// WithHTTPClient replaces the driver's own client.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) {
		o.httpClient = c
	}
}

// HTTPClient resolves the client a driver should own for its lifetime.
func HTTPClient(s Settings, opts ...Option) *http.Client {
	var o options
	for _, fn := range opts {
		fn(&o)
	}
	if o.httpClient != nil {
		return o.httpClient
	}

	timeout := s.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &http.Client{Timeout: timeout}
}
