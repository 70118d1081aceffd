package bitpay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"testing"

	"paygate/internal/invoice"
	"paygate/internal/payment"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// MockRoundTripper allows us to mock the HTTP response
type MockRoundTripper func(req *http.Request) *http.Response

func (f MockRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req), nil
}

type MockRoundTripperWithError func(req *http.Request) (*http.Response, error)

func (f MockRoundTripperWithError) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(bytes.NewBufferString(body)),
		Header:     make(http.Header),
	}
}

func testSettings(sandbox bool) payment.Settings {
	return payment.Settings{
		MerchantID:           "api-key",
		CallbackURL:          "https://shop.test/callback/bitpay",
		APIPurchaseURL:       "https://bitpay.test/purchase",
		APIPaymentURL:        "https://bitpay.test/pay/",
		APISandboxPaymentURL: "https://bitpay.test/sandbox/pay/",
		APIVerificationURL:   "https://bitpay.test/verify",
		Sandbox:              sandbox,
		Description:          "default description",
	}
}

func newTestDriver(t *testing.T, inv *invoice.Invoice, sandbox bool) *bitpayDriver {
	t.Helper()
	d, err := New(inv, testSettings(sandbox))
	require.NoError(t, err)
	return d.(*bitpayDriver)
}

func newInvoice(t *testing.T, details invoice.Details) *invoice.Invoice {
	t.Helper()
	inv, err := invoice.Restore("abc", invoice.Rials(10000), details, "")
	require.NoError(t, err)
	return inv
}

func TestNew_Validation(t *testing.T) {
	inv := newInvoice(t, nil)

	t.Run("MissingFields", func(t *testing.T) {
		_, err := New(inv, payment.Settings{MerchantID: "key"})
		assert.ErrorIs(t, err, payment.ErrConfiguration)
		assert.Contains(t, err.Error(), "callback_url")
	})

	t.Run("SandboxRequiresSandboxURL", func(t *testing.T) {
		s := testSettings(true)
		s.APISandboxPaymentURL = ""
		_, err := New(inv, s)
		assert.ErrorIs(t, err, payment.ErrConfiguration)
		assert.Contains(t, err.Error(), "api_sandbox_payment_url")
	})

	t.Run("ProductionIgnoresSandboxURL", func(t *testing.T) {
		s := testSettings(false)
		s.APISandboxPaymentURL = ""
		_, err := New(inv, s)
		assert.NoError(t, err)
	})
}

func TestBitpay_Purchase(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		inv := newInvoice(t, invoice.Details{invoice.DetailName: "Ali", "unknown": "ignored"})
		d := newTestDriver(t, inv, false)

		d.httpClient.Transport = MockRoundTripper(func(req *http.Request) *http.Response {
			assert.Equal(t, http.MethodPost, req.Method)
			assert.Equal(t, "https://bitpay.test/purchase", req.URL.String())
			assert.Equal(t, "api-key", req.Header.Get("X-API-KEY"))
			assert.Equal(t, "application/json", req.Header.Get("Content-Type"))
			assert.Equal(t, "0", req.Header.Get("X-SANDBOX"))

			var body map[string]any
			require.NoError(t, json.NewDecoder(req.Body).Decode(&body))
			assert.Equal(t, "abc", body["order_id"])
			assert.Equal(t, float64(10000), body["amount"])
			assert.Equal(t, "Ali", body["name"])
			assert.Equal(t, "default description", body["desc"])
			assert.Equal(t, "https://shop.test/callback/bitpay", body["callback"])
			assert.Len(t, body, 8)

			// absent details go out as explicit nulls
			for _, k := range []string{"phone", "mail", "reseller"} {
				v, ok := body[k]
				assert.True(t, ok, k)
				assert.Nil(t, v, k)
			}

			return jsonResponse(http.StatusOK, `{"id":"TX1"}`)
		})

		id, err := d.Purchase(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "TX1", id)
		assert.Equal(t, "TX1", inv.TransactionID())
	})

	t.Run("MobileWinsOverPhone", func(t *testing.T) {
		inv := newInvoice(t, invoice.Details{
			invoice.DetailMobile:      "0912",
			invoice.DetailPhone:       "021",
			invoice.DetailDescription: "own description",
		})
		d := newTestDriver(t, inv, true)

		d.httpClient.Transport = MockRoundTripper(func(req *http.Request) *http.Response {
			assert.Equal(t, "1", req.Header.Get("X-SANDBOX"))

			var body map[string]any
			require.NoError(t, json.NewDecoder(req.Body).Decode(&body))
			assert.Equal(t, "0912", body["phone"])
			assert.Equal(t, "own description", body["desc"])
			return jsonResponse(http.StatusOK, `{"id": 4455}`)
		})

		id, err := d.Purchase(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "4455", id)
	})

	t.Run("RefusedWithErrorCode", func(t *testing.T) {
		inv := newInvoice(t, nil)
		d := newTestDriver(t, inv, false)
		d.httpClient.Transport = MockRoundTripper(func(req *http.Request) *http.Response {
			return jsonResponse(http.StatusUnprocessableEntity, `{"error_code": 12}`)
		})

		id, err := d.Purchase(context.Background())
		assert.Empty(t, id)
		assert.ErrorIs(t, err, payment.ErrInvalidPayment)

		f, ok := payment.AsFailure(err)
		require.True(t, ok)
		assert.Equal(t, "12", f.Code)
		assert.Equal(t, "API Key یافت نشد.", f.Message)
		assert.False(t, inv.HasTransactionID())
	})

	t.Run("MissingID", func(t *testing.T) {
		inv := newInvoice(t, nil)
		d := newTestDriver(t, inv, false)
		d.httpClient.Transport = MockRoundTripper(func(req *http.Request) *http.Response {
			return jsonResponse(http.StatusOK, `{"id": ""}`)
		})

		_, err := d.Purchase(context.Background())
		assert.ErrorIs(t, err, payment.ErrMalformedResponse)
		assert.False(t, inv.HasTransactionID())
	})

	t.Run("InvalidJSONResponse", func(t *testing.T) {
		inv := newInvoice(t, nil)
		d := newTestDriver(t, inv, false)
		d.httpClient.Transport = MockRoundTripper(func(req *http.Request) *http.Response {
			return jsonResponse(http.StatusBadGateway, `<html>bad gateway</html>`)
		})

		_, err := d.Purchase(context.Background())
		assert.ErrorIs(t, err, payment.ErrMalformedResponse)
	})

	t.Run("NetworkError", func(t *testing.T) {
		inv := newInvoice(t, nil)
		d := newTestDriver(t, inv, false)
		d.httpClient.Transport = MockRoundTripperWithError(func(req *http.Request) (*http.Response, error) {
			return nil, errors.New("connection refused")
		})

		_, err := d.Purchase(context.Background())
		assert.ErrorIs(t, err, payment.ErrTransport)
		assert.NotErrorIs(t, err, payment.ErrInvalidPayment)
		assert.Contains(t, err.Error(), "connection refused")
	})

	t.Run("CancelledContext", func(t *testing.T) {
		inv := newInvoice(t, nil)
		d := newTestDriver(t, inv, false)
		d.httpClient.Transport = MockRoundTripperWithError(func(req *http.Request) (*http.Response, error) {
			return nil, req.Context().Err()
		})

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := d.Purchase(ctx)
		assert.ErrorIs(t, err, payment.ErrTransport)
		assert.ErrorIs(t, err, context.Canceled)
	})

	t.Run("FractionalAmount", func(t *testing.T) {
		amount, err := invoice.NewAmount(invoice.Rials(1).Value().Div(invoice.Rials(2).Value()), invoice.UnitRial)
		require.NoError(t, err)
		inv, err := invoice.Restore("abc", amount, nil, "")
		require.NoError(t, err)

		d := newTestDriver(t, inv, false)
		d.httpClient.Transport = MockRoundTripper(func(req *http.Request) *http.Response {
			t.Fatal("no request expected")
			return nil
		})

		_, err = d.Purchase(context.Background())
		assert.ErrorIs(t, err, payment.ErrPrecondition)
	})

	t.Run("AmountOutOfRange", func(t *testing.T) {
		amount, err := invoice.NewAmount(decimal.RequireFromString("100000000000000000000"), invoice.UnitRial)
		require.NoError(t, err)
		inv, err := invoice.Restore("abc", amount, nil, "")
		require.NoError(t, err)

		d := newTestDriver(t, inv, false)
		d.httpClient.Transport = MockRoundTripper(func(req *http.Request) *http.Response {
			t.Fatal("no request expected")
			return nil
		})

		_, err = d.Purchase(context.Background())
		assert.ErrorIs(t, err, payment.ErrPrecondition)
		assert.ErrorIs(t, err, invoice.ErrAmountOutOfRange)
	})
}

func TestBitpay_Pay(t *testing.T) {
	t.Run("BeforePurchase", func(t *testing.T) {
		d := newTestDriver(t, newInvoice(t, nil), false)
		_, err := d.Pay()
		assert.ErrorIs(t, err, payment.ErrPrecondition)
	})

	t.Run("Production", func(t *testing.T) {
		inv, _ := invoice.Restore("abc", invoice.Rials(10000), nil, "TX1")
		d := newTestDriver(t, inv, false)
		u, err := d.Pay()
		require.NoError(t, err)
		assert.Equal(t, "https://bitpay.test/pay/TX1", u)
	})

	t.Run("Sandbox", func(t *testing.T) {
		inv, _ := invoice.Restore("abc", invoice.Rials(10000), nil, "TX1")
		d := newTestDriver(t, inv, true)
		u, err := d.Pay()
		require.NoError(t, err)
		assert.Equal(t, "https://bitpay.test/sandbox/pay/TX1", u)
	})
}

func TestBitpay_Scenario(t *testing.T) {
	inv := newInvoice(t, invoice.Details{invoice.DetailName: "Ali"})
	d := newTestDriver(t, inv, false)

	d.httpClient.Transport = MockRoundTripper(func(req *http.Request) *http.Response {
		return jsonResponse(http.StatusOK, `{"id":"TX1"}`)
	})
	id, err := d.Purchase(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "TX1", id)

	payURL, err := d.Pay()
	require.NoError(t, err)
	assert.Equal(t, "https://bitpay.test/pay/TX1", payURL)

	d.httpClient.Transport = MockRoundTripper(func(req *http.Request) *http.Response {
		assert.Equal(t, "https://bitpay.test/verify", req.URL.String())
		assert.Equal(t, "api-key", req.Header.Get("X-API-KEY"))

		var body map[string]string
		require.NoError(t, json.NewDecoder(req.Body).Decode(&body))
		assert.Equal(t, map[string]string{"id": "TX1", "order_id": "abc"}, body)
		return jsonResponse(http.StatusOK, `{"status":100}`)
	})

	res := d.Verify(context.Background(), payment.Callback{})
	assert.True(t, res.Verified())
	assert.NoError(t, res.Err())
	assert.Equal(t, "TX1", res.TransactionID)

	// a second identical check re-asks the provider and still verifies
	res = d.Verify(context.Background(), payment.Callback{})
	assert.True(t, res.Verified())
}

func TestBitpay_Verify(t *testing.T) {
	verifyWith := func(t *testing.T, body string) payment.VerifyResult {
		inv, _ := invoice.Restore("abc", invoice.Rials(10000), nil, "TX1")
		d := newTestDriver(t, inv, false)
		d.httpClient.Transport = MockRoundTripper(func(req *http.Request) *http.Response {
			return jsonResponse(http.StatusOK, body)
		})
		return d.Verify(context.Background(), payment.Callback{})
	}

	t.Run("FailedPayment", func(t *testing.T) {
		res := verifyWith(t, `{"status":2}`)
		require.False(t, res.Verified())
		assert.ErrorIs(t, res.Err(), payment.ErrInvalidPayment)
		assert.Equal(t, "پرداخت ناموفق بوده است.", res.Failure.Message)
	})

	t.Run("EveryTableCode", func(t *testing.T) {
		for _, code := range Translations().Codes() {
			body := `{"status":` + code + `}`
			if code == statusVerified {
				body = `{"error_code":` + code + `}`
			}
			res := verifyWith(t, body)
			require.False(t, res.Verified(), code)
			want, _ := Translations().Translate(code)
			assert.Equal(t, want, res.Failure.Message, code)
			assert.Equal(t, code, res.Failure.Code)
		}
	})

	t.Run("ErrorCodeWithSuccessStatus", func(t *testing.T) {
		res := verifyWith(t, `{"status":100,"error_code":53}`)
		require.False(t, res.Verified())
		assert.Equal(t, "100", res.Failure.Code)
	})

	t.Run("StringStatus", func(t *testing.T) {
		res := verifyWith(t, `{"status":"100"}`)
		assert.True(t, res.Verified())
	})

	t.Run("UnknownCode", func(t *testing.T) {
		res := verifyWith(t, `{"status":999}`)
		require.False(t, res.Verified())
		assert.ErrorIs(t, res.Err(), payment.ErrInvalidPayment)
		assert.Equal(t, payment.UnknownErrorMessage, res.Failure.Message)
	})

	t.Run("NoStatus", func(t *testing.T) {
		res := verifyWith(t, `{}`)
		assert.ErrorIs(t, res.Err(), payment.ErrMalformedResponse)
	})

	t.Run("InvalidJSON", func(t *testing.T) {
		res := verifyWith(t, `{invalid-json`)
		assert.ErrorIs(t, res.Err(), payment.ErrMalformedResponse)
	})

	t.Run("NetworkError", func(t *testing.T) {
		inv, _ := invoice.Restore("abc", invoice.Rials(10000), nil, "TX1")
		d := newTestDriver(t, inv, false)
		d.httpClient.Transport = MockRoundTripperWithError(func(req *http.Request) (*http.Response, error) {
			return nil, errors.New("i/o timeout")
		})

		res := d.Verify(context.Background(), payment.Callback{})
		assert.ErrorIs(t, res.Err(), payment.ErrTransport)
		assert.NotErrorIs(t, res.Err(), payment.ErrInvalidPayment)
	})

	t.Run("CallbackFallback", func(t *testing.T) {
		inv := newInvoice(t, nil)
		d := newTestDriver(t, inv, false)
		d.httpClient.Transport = MockRoundTripper(func(req *http.Request) *http.Response {
			var body map[string]string
			require.NoError(t, json.NewDecoder(req.Body).Decode(&body))
			assert.Equal(t, "CB-TX", body["id"])
			assert.Equal(t, "order-7", body["order_id"])
			return jsonResponse(http.StatusOK, `{"status":100}`)
		})

		res := d.Verify(context.Background(), payment.Callback{TransactionID: "CB-TX", OrderID: "order-7"})
		assert.True(t, res.Verified())
		assert.Equal(t, "CB-TX", res.TransactionID)
		assert.Equal(t, "order-7", res.OrderID)
	})

	t.Run("InvoiceIDPreferred", func(t *testing.T) {
		inv, _ := invoice.Restore("abc", invoice.Rials(10000), nil, "TX1")
		d := newTestDriver(t, inv, false)
		d.httpClient.Transport = MockRoundTripper(func(req *http.Request) *http.Response {
			var body map[string]string
			require.NoError(t, json.NewDecoder(req.Body).Decode(&body))
			assert.Equal(t, "TX1", body["id"])
			return jsonResponse(http.StatusOK, `{"status":100}`)
		})

		res := d.Verify(context.Background(), payment.Callback{TransactionID: "OTHER"})
		assert.True(t, res.Verified())
	})

	t.Run("NoTransactionID", func(t *testing.T) {
		d := newTestDriver(t, newInvoice(t, nil), false)
		d.httpClient.Transport = MockRoundTripper(func(req *http.Request) *http.Response {
			t.Fatal("no request expected")
			return nil
		})

		res := d.Verify(context.Background(), payment.Callback{})
		assert.ErrorIs(t, res.Err(), payment.ErrPrecondition)
	})
}

func TestParseCallback(t *testing.T) {
	cb := ParseCallback(url.Values{"id": {"TX1"}, "order_id": {"abc"}})
	assert.Equal(t, "TX1", cb.TransactionID)
	assert.Equal(t, "abc", cb.OrderID)
	assert.Equal(t, "TX1", cb.Params["id"])
}

func TestTranslations_Size(t *testing.T) {
	codes := Translations().Codes()
	assert.Len(t, codes, 27)
	for _, c := range codes {
		_, err := strconv.Atoi(c)
		assert.NoError(t, err, c)
	}
}
