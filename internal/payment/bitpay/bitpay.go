package bitpay

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"

	"paygate/internal/invoice"
	"paygate/internal/logger"
	"paygate/internal/payment"

	"go.uber.org/zap"
)

const (
	Name = "bitpay"

	// Amounts are sent in rials.
	Unit = invoice.UnitRial

	statusVerified = "100"
)

type bitpayDriver struct {
	invoice    *invoice.Invoice
	settings   payment.Settings
	httpClient *http.Client
}

// ----------------- Constructor -----------------

func New(inv *invoice.Invoice, s payment.Settings, opts ...payment.Option) (payment.Driver, error) {
	required := []payment.Field{
		payment.FieldMerchantID,
		payment.FieldCallbackURL,
		payment.FieldAPIPurchaseURL,
		payment.FieldAPIPaymentURL,
		payment.FieldAPIVerificationURL,
	}
	if s.Sandbox {
		required = append(required, payment.FieldAPISandboxPaymentURL)
	}
	if err := s.Validate(Name, required...); err != nil {
		return nil, err
	}

	return &bitpayDriver{
		invoice:    inv,
		settings:   s,
		httpClient: payment.HTTPClient(s, opts...),
	}, nil
}

func Registration() payment.Registration {
	return payment.Registration{Factory: New, ParseCallback: ParseCallback}
}

// ParseCallback reads the parameters Bitpay appends to the callback URL.
func ParseCallback(values url.Values) payment.Callback {
	return payment.Callback{
		TransactionID: values.Get("id"),
		OrderID:       values.Get("order_id"),
		Params:        payment.ParamsOf(values),
	}
}

// ----------------- Wire types -----------------

type purchaseRequest struct {
	OrderID  string  `json:"order_id"`
	Amount   int64   `json:"amount"`
	Name     *string `json:"name"`
	Phone    *string `json:"phone"`
	Mail     *string `json:"mail"`
	Desc     *string `json:"desc"`
	Callback string  `json:"callback"`
	Reseller *string `json:"reseller"`
}

type verifyRequest struct {
	ID      string `json:"id"`
	OrderID string `json:"order_id"`
}

// Fields may arrive as strings or numbers.
type response struct {
	ID        json.RawMessage `json:"id"`
	Status    json.RawMessage `json:"status"`
	ErrorCode json.RawMessage `json:"error_code"`
}

// ----------------- Purchase -----------------

func (b *bitpayDriver) Purchase(ctx context.Context) (string, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("driver", Name),
		zap.String("uuid", b.invoice.UUID()),
		zap.String("amount", b.invoice.Amount().String()),
		zap.Bool("sandbox", b.settings.Sandbox),
	)

	amount, err := b.invoice.Amount().Minor(Unit)
	if err != nil {
		log.Error("Invoice amount not representable in rials", zap.Error(err))
		return "", &payment.Failure{Kind: payment.KindPrecondition, Driver: Name, Message: "amount is not representable in rials", Err: err}
	}

	details := b.invoice.Details()
	data := purchaseRequest{
		OrderID:  b.invoice.UUID(),
		Amount:   amount,
		Name:     nullable(details.Get(invoice.DetailName)),
		Phone:    nullable(details.First(invoice.DetailMobile, invoice.DetailPhone)),
		Mail:     nullable(details.Get(invoice.DetailEmail)),
		Desc:     nullable(firstNonEmpty(details.Get(invoice.DetailDescription), b.settings.Description)),
		Callback: b.settings.CallbackURL,
		Reseller: nullable(details.Get(invoice.DetailReseller)),
	}

	log.Info("Sending purchase request to Bitpay")

	body, err := b.post(ctx, b.settings.APIPurchaseURL, data)
	if err != nil {
		log.Error("Bitpay purchase request failed", zap.Error(err))
		return "", err
	}

	var res response
	if err := json.Unmarshal(body, &res); err != nil {
		log.Error("Failed decoding Bitpay purchase response", zap.ByteString("response", body))
		return "", &payment.Failure{Kind: payment.KindMalformedResponse, Driver: Name, Message: "purchase response is not valid JSON", Err: err}
	}

	id := scalar(res.ID)
	if id == "" || id == "0" {
		if code := firstNonEmpty(scalar(res.Status), scalar(res.ErrorCode)); code != "" {
			log.Warn("Bitpay refused purchase", zap.String("code", code))
			return "", translations.Failure(Name, code)
		}
		log.Error("Bitpay purchase response has no id", zap.ByteString("response", body))
		return "", payment.NewMalformedFailure(Name, "purchase response has no transaction id")
	}

	if err := b.invoice.SetTransactionID(id); err != nil {
		log.Error("Invoice already carries another transaction id", zap.String("transaction_id", id), zap.Error(err))
		return "", &payment.Failure{Kind: payment.KindPrecondition, Driver: Name, Message: "invoice already purchased", Err: err}
	}

	log.Info("Bitpay transaction created", zap.String("transaction_id", id))
	return id, nil
}

// ----------------- Pay -----------------

func (b *bitpayDriver) Pay() (string, error) {
	if !b.invoice.HasTransactionID() {
		return "", payment.NewPreconditionFailure(Name, "pay called before purchase")
	}

	apiURL := b.settings.APIPaymentURL
	if b.settings.Sandbox {
		apiURL = b.settings.APISandboxPaymentURL
	}

	return apiURL + b.invoice.TransactionID(), nil
}

// ----------------- Verify -----------------

func (b *bitpayDriver) Verify(ctx context.Context, cb payment.Callback) payment.VerifyResult {
	result := payment.VerifyResult{
		Driver:        Name,
		TransactionID: firstNonEmpty(b.invoice.TransactionID(), cb.TransactionID),
		OrderID:       firstNonEmpty(cb.OrderID, b.invoice.UUID()),
	}

	log := logger.FromCtx(ctx).With(
		zap.String("driver", Name),
		zap.String("transaction_id", result.TransactionID),
		zap.String("order_id", result.OrderID),
	)

	if result.TransactionID == "" {
		result.Failure = payment.NewPreconditionFailure(Name, "no transaction id to verify")
		return result
	}

	body, err := b.post(ctx, b.settings.APIVerificationURL, verifyRequest{
		ID:      result.TransactionID,
		OrderID: result.OrderID,
	})
	if err != nil {
		log.Error("Bitpay verify request failed", zap.Error(err))
		result.Failure, _ = payment.AsFailure(err)
		return result
	}

	var res response
	if err := json.Unmarshal(body, &res); err != nil {
		log.Error("Failed decoding Bitpay verify response", zap.ByteString("response", body))
		result.Failure = &payment.Failure{Kind: payment.KindMalformedResponse, Driver: Name, Message: "verify response is not valid JSON", Err: err}
		return result
	}

	status := scalar(res.Status)
	errorCode := scalar(res.ErrorCode)

	if errorCode == "" && status == statusVerified {
		log.Info("Bitpay payment verified")
		return result
	}

	code := firstNonEmpty(status, errorCode)
	if code == "" {
		log.Error("Bitpay verify response has no status", zap.ByteString("response", body))
		result.Failure = payment.NewMalformedFailure(Name, "verify response has no status")
		return result
	}

	log.Warn("Bitpay payment not verified", zap.String("code", code))
	result.Failure = translations.Failure(Name, code)
	return result
}

// ----------------- Transport -----------------

// post sends a JSON request. Non-2xx answers still carry a JSON body with an
// error code, so they are returned to the caller for decoding.
func (b *bitpayDriver) post(ctx context.Context, endpoint string, payload any) ([]byte, error) {
	jsonBody, err := json.Marshal(payload)
	if err != nil {
		return nil, &payment.Failure{Kind: payment.KindMalformedResponse, Driver: Name, Message: "failed encoding request", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewBuffer(jsonBody))
	if err != nil {
		return nil, payment.NewConfigurationFailure(Name, "invalid endpoint: "+endpoint)
	}

	req.Header.Set("X-API-KEY", b.settings.MerchantID)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-SANDBOX", sandboxFlag(b.settings.Sandbox))

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return nil, payment.NewTransportFailure(Name, err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, payment.NewTransportFailure(Name, err)
	}
	return bodyBytes, nil
}

func sandboxFlag(sandbox bool) string {
	if sandbox {
		return "1"
	}
	return "0"
}

func scalar(raw json.RawMessage) string {
	s := strings.TrimSpace(string(raw))
	if s == "" || s == "null" {
		return ""
	}
	if strings.HasPrefix(s, `"`) {
		var str string
		if err := json.Unmarshal(raw, &str); err != nil {
			return ""
		}
		return strings.TrimSpace(str)
	}
	return s
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
