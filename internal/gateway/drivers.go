package gateway

import (
	"paygate/internal/payment"
	"paygate/internal/payment/bitpay"
	"paygate/internal/payment/payir"
)

// DefaultRegistry knows every driver shipped with the service.
func DefaultRegistry() *payment.Registry {
	reg := payment.NewRegistry()
	reg.Register(bitpay.Name, bitpay.Registration())
	reg.Register(payir.Name, payir.Registration())
	return reg
}
