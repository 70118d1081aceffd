package payir

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"paygate/internal/invoice"
	"paygate/internal/logger"
	"paygate/internal/payment"

	"go.uber.org/zap"
)

const (
	Name = "payir"

	Unit = invoice.UnitRial

	// sandboxAPIKey is accepted by the provider's test gateway.
	sandboxAPIKey = "test"

	statusPurchased = "1"
	statusFailed    = "0"
)

type payirDriver struct {
	invoice    *invoice.Invoice
	settings   payment.Settings
	httpClient *http.Client
}

func New(inv *invoice.Invoice, s payment.Settings, opts ...payment.Option) (payment.Driver, error) {
	required := []payment.Field{
		payment.FieldCallbackURL,
		payment.FieldAPIPurchaseURL,
		payment.FieldAPIPaymentURL,
		payment.FieldAPIVerificationURL,
	}
	if !s.Sandbox {
		required = append(required, payment.FieldMerchantID)
	}
	if err := s.Validate(Name, required...); err != nil {
		return nil, err
	}

	return &payirDriver{
		invoice:    inv,
		settings:   s,
		httpClient: payment.HTTPClient(s, opts...),
	}, nil
}

func Registration() payment.Registration {
	return payment.Registration{Factory: New, ParseCallback: ParseCallback}
}

// ParseCallback reads the query Pay.ir redirects the user back with.
func ParseCallback(values url.Values) payment.Callback {
	return payment.Callback{
		TransactionID: values.Get("token"),
		OrderID:       values.Get("factorNumber"),
		Params:        payment.ParamsOf(values),
	}
}

// code decodes a JSON string or number.
type code string

func (c *code) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "null" {
		*c = ""
		return nil
	}
	if strings.HasPrefix(s, `"`) {
		var str string
		if err := json.Unmarshal(b, &str); err != nil {
			return err
		}
		*c = code(strings.TrimSpace(str))
		return nil
	}
	*c = code(s)
	return nil
}

type response struct {
	Status       code   `json:"status"`
	Token        code   `json:"token"`
	ErrorCode    code   `json:"errorCode"`
	ErrorMessage string `json:"errorMessage"`
	TransID      code   `json:"transId"`
}

func (p *payirDriver) apiKey() string {
	if p.settings.Sandbox {
		return sandboxAPIKey
	}
	return p.settings.MerchantID
}

func (p *payirDriver) Purchase(ctx context.Context) (string, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("driver", Name),
		zap.String("uuid", p.invoice.UUID()),
		zap.String("amount", p.invoice.Amount().String()),
		zap.Bool("sandbox", p.settings.Sandbox),
	)

	amount, err := p.invoice.Amount().Minor(Unit)
	if err != nil {
		log.Error("Invoice amount not representable in rials", zap.Error(err))
		return "", &payment.Failure{Kind: payment.KindPrecondition, Driver: Name, Message: "amount is not representable in rials", Err: err}
	}

	form := url.Values{}
	form.Set("api", p.apiKey())
	form.Set("amount", strconv.FormatInt(amount, 10))
	form.Set("redirect", p.settings.CallbackURL)
	setIfPresent(form, "mobile", p.invoice.Detail(invoice.DetailMobile))
	setIfPresent(form, "description", firstNonEmpty(p.invoice.Detail(invoice.DetailDescription), p.settings.Description))
	setIfPresent(form, "factorNumber", p.invoice.Detail(invoice.DetailFactorNumber))

	log.Info("Sending purchase request to Pay.ir")

	res, body, err := p.postForm(ctx, p.settings.APIPurchaseURL, form)
	if err != nil {
		log.Error("Pay.ir purchase request failed", zap.Error(err))
		return "", err
	}

	if string(res.Status) != statusPurchased {
		c := firstNonEmpty(string(res.ErrorCode), string(res.Status))
		if c == "" {
			log.Error("Pay.ir purchase response has no status", zap.ByteString("response", body))
			return "", payment.NewMalformedFailure(Name, "purchase response has no status")
		}
		log.Warn("Pay.ir refused purchase", zap.String("code", c), zap.String("provider_message", res.ErrorMessage))
		return "", translations.Failure(Name, c)
	}

	token := string(res.Token)
	if token == "" {
		log.Error("Pay.ir purchase response has no token", zap.ByteString("response", body))
		return "", payment.NewMalformedFailure(Name, "purchase response has no token")
	}

	if err := p.invoice.SetTransactionID(token); err != nil {
		log.Error("Invoice already carries another transaction id", zap.String("token", token), zap.Error(err))
		return "", &payment.Failure{Kind: payment.KindPrecondition, Driver: Name, Message: "invoice already purchased", Err: err}
	}

	log.Info("Pay.ir transaction created", zap.String("token", token))
	return token, nil
}

func (p *payirDriver) Pay() (string, error) {
	if !p.invoice.HasTransactionID() {
		return "", payment.NewPreconditionFailure(Name, "pay called before purchase")
	}

	apiURL := p.settings.APIPaymentURL
	if p.settings.Sandbox && p.settings.APISandboxPaymentURL != "" {
		apiURL = p.settings.APISandboxPaymentURL
	}
	return apiURL + p.invoice.TransactionID(), nil
}

func (p *payirDriver) Verify(ctx context.Context, cb payment.Callback) payment.VerifyResult {
	result := payment.VerifyResult{
		Driver:        Name,
		TransactionID: firstNonEmpty(p.invoice.TransactionID(), cb.TransactionID),
		OrderID:       firstNonEmpty(cb.OrderID, p.invoice.UUID()),
	}

	log := logger.FromCtx(ctx).With(
		zap.String("driver", Name),
		zap.String("token", result.TransactionID),
	)

	if result.TransactionID == "" {
		result.Failure = payment.NewPreconditionFailure(Name, "no token to verify")
		return result
	}

	form := url.Values{}
	form.Set("api", p.apiKey())
	form.Set("token", result.TransactionID)

	res, body, err := p.postForm(ctx, p.settings.APIVerificationURL, form)
	if err != nil {
		log.Error("Pay.ir verify request failed", zap.Error(err))
		result.Failure, _ = payment.AsFailure(err)
		return result
	}

	switch string(res.Status) {
	case "":
		log.Error("Pay.ir verify response has no status", zap.ByteString("response", body))
		result.Failure = payment.NewMalformedFailure(Name, "verify response has no status")
	case statusFailed:
		c := firstNonEmpty(string(res.ErrorCode), string(res.Status))
		log.Warn("Pay.ir payment not verified", zap.String("code", c), zap.String("provider_message", res.ErrorMessage))
		result.Failure = translations.Failure(Name, c)
	default:
		result.ReferenceID = string(res.TransID)
		log.Info("Pay.ir payment verified", zap.String("trans_id", result.ReferenceID))
	}
	return result
}

// postForm sends a form-encoded request and decodes the JSON answer whatever
// the HTTP status; Pay.ir reports errors in the body.
func (p *payirDriver) postForm(ctx context.Context, endpoint string, form url.Values) (*response, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, nil, payment.NewConfigurationFailure(Name, "invalid endpoint: "+endpoint)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, nil, payment.NewTransportFailure(Name, err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, payment.NewTransportFailure(Name, err)
	}

	var res response
	if err := json.Unmarshal(bodyBytes, &res); err != nil {
		return nil, bodyBytes, &payment.Failure{Kind: payment.KindMalformedResponse, Driver: Name, Message: "response is not valid JSON", Err: err}
	}
	return &res, bodyBytes, nil
}

func setIfPresent(form url.Values, key, value string) {
	if value != "" {
		form.Set(key, value)
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
