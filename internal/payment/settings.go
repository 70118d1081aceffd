package payment

import (
	"strings"
	"time"
)

type Field string

const (
	FieldMerchantID           Field = "merchant_id"
	FieldCallbackURL          Field = "callback_url"
	FieldAPIPurchaseURL       Field = "api_purchase_url"
	FieldAPIPaymentURL        Field = "api_payment_url"
	FieldAPISandboxPaymentURL Field = "api_sandbox_payment_url"
	FieldAPIVerificationURL   Field = "api_verification_url"
)

// Settings configure one driver. Read-only once handed to a driver.
type Settings struct {
	MerchantID           string
	CallbackURL          string
	APIPurchaseURL       string
	APIPaymentURL        string
	APISandboxPaymentURL string
	APIVerificationURL   string
	Sandbox              bool
	Description          string
	Timeout              time.Duration
}

func (s Settings) value(f Field) string {
	switch f {
	case FieldMerchantID:
		return s.MerchantID
	case FieldCallbackURL:
		return s.CallbackURL
	case FieldAPIPurchaseURL:
		return s.APIPurchaseURL
	case FieldAPIPaymentURL:
		return s.APIPaymentURL
	case FieldAPISandboxPaymentURL:
		return s.APISandboxPaymentURL
	case FieldAPIVerificationURL:
		return s.APIVerificationURL
	}
	return ""
}

// Validate reports every required field that is blank.
func (s Settings) Validate(driver string, required ...Field) error {
	var missing []string
	for _, f := range required {
		if strings.TrimSpace(s.value(f)) == "" {
			missing = append(missing, string(f))
		}
	}
	if len(missing) == 0 {
		return nil
	}
	return NewConfigurationFailure(driver, "missing settings: "+strings.Join(missing, ", "))
}
