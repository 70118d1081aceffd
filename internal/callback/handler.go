package callback

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"time"

	"paygate/internal/gateway"
	"paygate/internal/invoice"
	"paygate/internal/logger"
	"paygate/internal/middleware"
	"paygate/internal/payment"
	"paygate/internal/transaction"
	"paygate/internal/utils"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type Gateway interface {
	Checkout(ctx context.Context, driverName string, inv *invoice.Invoice) (*gateway.Checkout, error)
	Verify(ctx context.Context, driverName string, cb payment.Callback) (*gateway.Outcome, error)
	Reverify(ctx context.Context, uuid string) (*gateway.Outcome, error)
	ParseCallback(driverName string, values url.Values) (payment.Callback, error)
}

// Store records raw provider callbacks.
type Store interface {
	SaveCallback(ctx context.Context, driver, eventID, transactionID string, payload json.RawMessage) (int64, bool, error)
	MarkCallbackProcessed(ctx context.Context, callbackID int64) error
	MarkCallbackFailed(ctx context.Context, callbackID int64, reason string) error
}

type Pinger func(ctx context.Context) error

type Handler struct {
	gw    Gateway
	store Store
	ping  Pinger
	now   func() time.Time
}

func NewHandler(gw Gateway, store Store, ping Pinger) *Handler {
	return &Handler{gw: gw, store: store, ping: ping, now: time.Now}
}

type checkoutRequest struct {
	Driver  string            `json:"driver"`
	Amount  decimal.Decimal   `json:"amount"`
	Unit    string            `json:"unit"`
	Details map[string]string `json:"details"`
}

type verifyResponse struct {
	Verified        bool   `json:"verified"`
	UUID            string `json:"uuid,omitempty"`
	TransactionID   string `json:"transaction_id,omitempty"`
	ReferenceID     string `json:"reference_id,omitempty"`
	AlreadyVerified bool   `json:"already_verified"`
	Message         string `json:"message,omitempty"`
}

// Checkout handles POST /payments.
func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req checkoutRequest
	if err := utils.DecodeJSON(w, r, &req); err != nil {
		utils.WriteJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	unit, err := invoice.ParseUnit(req.Unit)
	if err != nil {
		utils.WriteJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	amount, err := invoice.NewAmount(req.Amount, unit)
	if err == nil {
		// Providers only take whole rials.
		_, err = amount.Minor(invoice.UnitRial)
	}
	if err != nil {
		utils.WriteJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	details := invoice.Details(req.Details)
	if details == nil {
		details = invoice.Details{}
	}
	if details.Get(invoice.DetailFactorNumber) == "" {
		details[invoice.DetailFactorNumber] = utils.GenerateFactorNumber(h.now())
	}

	inv, err := invoice.New(amount, details)
	if err != nil {
		utils.WriteJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	log := logger.FromCtx(ctx).With(
		zap.String("driver", req.Driver),
		zap.String("uuid", inv.UUID()),
	)
	if claims, ok := middleware.ServiceClaimsFrom(ctx); ok {
		log = log.With(zap.String("service", claims.Service))
	}

	out, err := h.gw.Checkout(ctx, req.Driver, inv)
	if err != nil {
		code, msg := errorStatus(err)
		log.Warn("Checkout failed", zap.Int("status", code), zap.Error(err))
		utils.WriteJSONError(w, msg, code)
		return
	}

	log.Info("Checkout created", zap.String("transaction_id", out.TransactionID))
	utils.WriteJSON(w, http.StatusCreated, out)
}

// Callback handles the provider redirect at /callback/{driver}.
func (h *Handler) Callback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	driver := chi.URLParam(r, "driver")
	log := logger.FromCtx(ctx).With(zap.String("driver", driver))

	if err := r.ParseForm(); err != nil {
		utils.WriteJSONError(w, "invalid callback parameters", http.StatusBadRequest)
		return
	}

	cb, err := h.gw.ParseCallback(driver, r.Form)
	if err != nil {
		code, msg := errorStatus(err)
		utils.WriteJSONError(w, msg, code)
		return
	}

	callbackID := h.record(ctx, log, driver, cb)
	if callbackID != 0 {
		ctx = logger.WithFields(ctx, zap.Int64("callback_id", callbackID))
	}

	out, err := h.gw.Verify(ctx, driver, cb)
	if err != nil {
		code, msg := errorStatus(err)
		log.Warn("Callback verification failed",
			zap.String("transaction_id", cb.TransactionID),
			zap.Int("status", code),
			zap.Error(err),
		)
		h.markFailed(ctx, log, callbackID, err.Error())
		utils.WriteJSONError(w, msg, code)
		return
	}

	if callbackID != 0 {
		if err := h.store.MarkCallbackProcessed(ctx, callbackID); err != nil {
			log.Error("Failed to mark callback processed", zap.Int64("callback_id", callbackID), zap.Error(err))
		}
	}

	writeOutcome(w, out)
}

// Reverify handles POST /admin/payments/{uuid}/verify.
func (h *Handler) Reverify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "uuid")

	out, err := h.gw.Reverify(ctx, id)
	if err != nil {
		code, msg := errorStatus(err)
		logger.FromCtx(ctx).Warn("Reverify failed", zap.String("uuid", id), zap.Error(err))
		utils.WriteJSONError(w, msg, code)
		return
	}

	writeOutcome(w, out)
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if h.ping != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := h.ping(ctx); err != nil {
			logger.FromCtx(r.Context()).Error("Health check failed", zap.Error(err))
			utils.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}

	utils.WriteJSON(w, http.StatusOK, map[string]string{"status": "OK"})
}

// record stores the raw callback and returns its id, or 0 when it was a
// duplicate or could not be stored.
func (h *Handler) record(ctx context.Context, log *zap.Logger, driver string, cb payment.Callback) int64 {
	payload, err := json.Marshal(cb.Params)
	if err != nil {
		log.Error("Failed to encode callback", zap.Error(err))
		return 0
	}

	sum := sha256.Sum256(append([]byte(driver+"\x00"), payload...))
	eventID := hex.EncodeToString(sum[:])

	id, duplicate, err := h.store.SaveCallback(ctx, driver, eventID, cb.TransactionID, payload)
	if err != nil {
		log.Error("Failed to save callback", zap.Error(err))
		return 0
	}
	if duplicate {
		log.Info("Duplicate callback received", zap.String("transaction_id", cb.TransactionID))
		return 0
	}

	log.Info("Callback received",
		zap.Int64("callback_id", id),
		zap.String("transaction_id", cb.TransactionID),
	)
	return id
}

func (h *Handler) markFailed(ctx context.Context, log *zap.Logger, callbackID int64, reason string) {
	if callbackID == 0 {
		return
	}
	if err := h.store.MarkCallbackFailed(ctx, callbackID, reason); err != nil {
		log.Error("Failed to mark callback failed", zap.Int64("callback_id", callbackID), zap.Error(err))
	}
}

func writeOutcome(w http.ResponseWriter, out *gateway.Outcome) {
	res := out.Result
	resp := verifyResponse{
		Verified:        res.Verified(),
		UUID:            out.Transaction.UUID,
		TransactionID:   firstNonEmpty(res.TransactionID, out.Transaction.TransactionID),
		ReferenceID:     firstNonEmpty(res.ReferenceID, out.Transaction.ReferenceID),
		AlreadyVerified: out.AlreadyVerified,
	}

	code := http.StatusOK
	if !res.Verified() {
		code, resp.Message = errorStatus(res.Failure)
	}

	utils.WriteJSON(w, code, resp)
}

// errorStatus maps an error to an HTTP status and a message safe to return.
func errorStatus(err error) (int, string) {
	if errors.Is(err, transaction.ErrNotFound) {
		return http.StatusNotFound, "transaction not found"
	}
	if errors.Is(err, transaction.ErrDuplicate) {
		return http.StatusConflict, "transaction already exists"
	}

	f, ok := payment.AsFailure(err)
	if !ok {
		return http.StatusInternalServerError, "internal error"
	}

	msg := f.Message
	if msg == "" {
		msg = f.Error()
	}

	switch f.Kind {
	case payment.KindInvalidPayment:
		return http.StatusPaymentRequired, msg
	case payment.KindMalformedResponse:
		return http.StatusBadGateway, msg
	case payment.KindTransport:
		return http.StatusGatewayTimeout, "payment provider unreachable"
	case payment.KindPrecondition:
		return http.StatusNotFound, msg
	case payment.KindConfiguration:
		return http.StatusBadRequest, msg
	}
	return http.StatusInternalServerError, "internal error"
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
