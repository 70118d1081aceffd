package invoice

import (
	"errors"

	"github.com/google/uuid"
)

var (
	ErrTransactionIDSet   = errors.New("transaction id already set")
	ErrEmptyTransactionID = errors.New("transaction id is empty")
	ErrMissingUUID        = errors.New("invoice uuid is empty")
)

// Well-known detail keys. Drivers read the subset their provider accepts.
const (
	DetailName         = "name"
	DetailMobile       = "mobile"
	DetailPhone        = "phone"
	DetailEmail        = "email"
	DetailDescription  = "description"
	DetailReseller     = "reseller"
	DetailFactorNumber = "factorNumber"
)

type Details map[string]string

func (d Details) Get(key string) string {
	if d == nil {
		return ""
	}
	return d[key]
}

// First returns the first non-empty value among keys.
func (d Details) First(keys ...string) string {
	for _, k := range keys {
		if v := d.Get(k); v != "" {
			return v
		}
	}
	return ""
}

func (d Details) clone() Details {
	out := make(Details, len(d))
	for k, v := range d {
		out[k] = v
	}
	return out
}

// Invoice is a single payment attempt. The transaction id is written once,
// by the driver's Purchase.
type Invoice struct {
	uuid          string
	amount        Amount
	details       Details
	transactionID string
}

func New(amount Amount, details Details) (*Invoice, error) {
	if amount.IsZero() {
		return nil, ErrNonPositiveAmount
	}
	return &Invoice{
		uuid:    uuid.NewString(),
		amount:  amount,
		details: details.clone(),
	}, nil
}

// Restore rebuilds an invoice loaded from storage.
func Restore(id string, amount Amount, details Details, transactionID string) (*Invoice, error) {
	if id == "" {
		return nil, ErrMissingUUID
	}
	if amount.IsZero() {
		return nil, ErrNonPositiveAmount
	}
	return &Invoice{
		uuid:          id,
		amount:        amount,
		details:       details.clone(),
		transactionID: transactionID,
	}, nil
}

func (i *Invoice) UUID() string          { return i.uuid }
func (i *Invoice) Amount() Amount        { return i.amount }
func (i *Invoice) TransactionID() string { return i.transactionID }

func (i *Invoice) Details() Details { return i.details.clone() }

func (i *Invoice) Detail(key string) string { return i.details.Get(key) }

func (i *Invoice) HasTransactionID() bool { return i.transactionID != "" }

// SetTransactionID stores the provider's id. Repeating the same id is a no-op.
func (i *Invoice) SetTransactionID(id string) error {
	if id == "" {
		return ErrEmptyTransactionID
	}
	if i.transactionID != "" && i.transactionID != id {
		return ErrTransactionIDSet
	}
	i.transactionID = id
	return nil
}
