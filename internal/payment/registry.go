package payment

import (
	"net/url"
	"sort"
	"sync"

	"paygate/internal/invoice"
)

type Factory func(inv *invoice.Invoice, s Settings, opts ...Option) (Driver, error)

// CallbackParser pulls verify parameters out of a provider's callback request.
type CallbackParser func(values url.Values) Callback

type Registration struct {
	Factory       Factory
	ParseCallback CallbackParser
}

type Registry struct {
	mu      sync.RWMutex
	drivers map[string]Registration
}

func NewRegistry() *Registry {
	return &Registry{drivers: make(map[string]Registration)}
}

func (r *Registry) Register(name string, reg Registration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.drivers[name] = reg
}

func (r *Registry) lookup(name string) (Registration, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	reg, ok := r.drivers[name]
	if !ok || reg.Factory == nil {
		return Registration{}, NewConfigurationFailure(name, "unknown payment driver")
	}
	return reg, nil
}

func (r *Registry) New(name string, inv *invoice.Invoice, s Settings, opts ...Option) (Driver, error) {
	reg, err := r.lookup(name)
	if err != nil {
		return nil, err
	}
	if inv == nil {
		return nil, NewPreconditionFailure(name, "invoice is required")
	}
	return reg.Factory(inv, s, opts...)
}

func (r *Registry) ParseCallback(name string, values url.Values) (Callback, error) {
	reg, err := r.lookup(name)
	if err != nil {
		return Callback{}, err
	}
	if reg.ParseCallback == nil {
		return Callback{Params: ParamsOf(values)}, nil
	}
	return reg.ParseCallback(values), nil
}

func (r *Registry) Has(name string) bool {
	_, err := r.lookup(name)
	return err == nil
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.drivers))
	for n := range r.drivers {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// ParamsOf keeps the first value of every callback parameter.
func ParamsOf(values url.Values) map[string]string {
	out := make(map[string]string, len(values))
	for k := range values {
		out[k] = values.Get(k)
	}
	return out
}
