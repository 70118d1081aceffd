package transaction

import (
	"errors"
	"time"

	"paygate/internal/invoice"

	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusCreated    Status = "CREATED"
	StatusPurchased  Status = "PURCHASED"
	StatusRedirected Status = "REDIRECTED"
	StatusVerified   Status = "VERIFIED"
	StatusFailed     Status = "FAILED"
)

var (
	ErrNotFound       = errors.New("transaction not found")
	ErrDuplicate      = errors.New("transaction already exists")
	ErrStatusConflict = errors.New("transaction is not in the expected status")
)

const pgUniqueViolation = "23505"

type Transaction struct {
	ID            int64
	UUID          string
	Driver        string
	Amount        decimal.Decimal
	Unit          invoice.Unit
	TransactionID string
	ReferenceID   string
	Status        Status
	FailureReason string
	Details       invoice.Details
	CreatedAt     time.Time
	UpdatedAt     time.Time
	VerifiedAt    *time.Time
}

func FromInvoice(driver string, inv *invoice.Invoice) *Transaction {
	return &Transaction{
		UUID:          inv.UUID(),
		Driver:        driver,
		Amount:        inv.Amount().Value(),
		Unit:          inv.Amount().Unit(),
		TransactionID: inv.TransactionID(),
		Status:        StatusCreated,
		Details:       inv.Details(),
	}
}

// Invoice rebuilds the invoice this row was created from.
func (t *Transaction) Invoice() (*invoice.Invoice, error) {
	amount, err := invoice.NewAmount(t.Amount, t.Unit)
	if err != nil {
		return nil, err
	}
	return invoice.Restore(t.UUID, amount, t.Details, t.TransactionID)
}
