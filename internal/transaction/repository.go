package transaction

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"paygate/internal/invoice"

	"github.com/lib/pq"
)

type Repository interface {
	Create(ctx context.Context, t *Transaction) error
	MarkPurchased(ctx context.Context, uuid, transactionID string) error
	MarkRedirected(ctx context.Context, uuid string) error
	// MarkVerified reports alreadyVerified when the row was verified before,
	// so callers never credit the same payment twice.
	MarkVerified(ctx context.Context, uuid, referenceID string) (alreadyVerified bool, err error)
	// MarkFailed leaves verified rows untouched and reports whether it wrote.
	MarkFailed(ctx context.Context, uuid, reason string) (bool, error)
	GetByUUID(ctx context.Context, uuid string) (*Transaction, error)
	GetByTransactionID(ctx context.Context, driver, transactionID string) (*Transaction, error)

	SaveCallback(
		ctx context.Context,
		driver string,
		eventID string,
		transactionID string,
		payload json.RawMessage,
	) (callbackID int64, isDuplicate bool, err error)
	MarkCallbackProcessed(ctx context.Context, callbackID int64) error
	MarkCallbackFailed(ctx context.Context, callbackID int64, reason string) error
}

type repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) Repository {
	return &repository{db: db}
}

const selectColumns = `
	SELECT id, uuid, driver, amount, unit, transaction_id, reference_id, status,
	       failure_reason, details, created_at, updated_at, verified_at
	FROM payment_transactions`

func (r *repository) Create(ctx context.Context, t *Transaction) error {
	details, err := json.Marshal(t.Details)
	if err != nil {
		return fmt.Errorf("failed to encode details: %w", err)
	}
	if t.Status == "" {
		t.Status = StatusCreated
	}

	err = r.db.QueryRowContext(ctx, `
		INSERT INTO payment_transactions (uuid, driver, amount, unit, status, details)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at
	`, t.UUID, t.Driver, t.Amount, string(t.Unit), string(t.Status), details,
	).Scan(&t.ID, &t.CreatedAt, &t.UpdatedAt)

	var pqErr *pq.Error
	if errors.As(err, &pqErr) && string(pqErr.Code) == pgUniqueViolation {
		return ErrDuplicate
	}
	return err
}

func (r *repository) MarkPurchased(ctx context.Context, uuid, transactionID string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE payment_transactions
		SET status = $2, transaction_id = $3, updated_at = now()
		WHERE uuid = $1 AND status = $4
	`, uuid, string(StatusPurchased), transactionID, string(StatusCreated))
	if err != nil {
		return err
	}
	return expectOneRow(res)
}

func (r *repository) MarkRedirected(ctx context.Context, uuid string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE payment_transactions
		SET status = $2, updated_at = now()
		WHERE uuid = $1 AND status = $3
	`, uuid, string(StatusRedirected), string(StatusPurchased))
	if err != nil {
		return err
	}
	return expectOneRow(res)
}

func (r *repository) MarkVerified(ctx context.Context, uuid, referenceID string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE payment_transactions
		SET status = $2, reference_id = NULLIF($3, ''), failure_reason = NULL,
		    verified_at = now(), updated_at = now()
		WHERE uuid = $1 AND status <> $2
	`, uuid, string(StatusVerified), referenceID)
	if err != nil {
		return false, err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n > 0 {
		return false, nil
	}

	// Nothing updated: either already verified or missing.
	if _, err := r.GetByUUID(ctx, uuid); err != nil {
		return false, err
	}
	return true, nil
}

func (r *repository) MarkFailed(ctx context.Context, uuid, reason string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE payment_transactions
		SET status = $2, failure_reason = $3, updated_at = now()
		WHERE uuid = $1 AND status <> $4
	`, uuid, string(StatusFailed), reason, string(StatusVerified))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *repository) GetByUUID(ctx context.Context, uuid string) (*Transaction, error) {
	return r.scanOne(r.db.QueryRowContext(ctx, selectColumns+` WHERE uuid = $1`, uuid))
}

func (r *repository) GetByTransactionID(ctx context.Context, driver, transactionID string) (*Transaction, error) {
	return r.scanOne(r.db.QueryRowContext(ctx,
		selectColumns+` WHERE driver = $1 AND transaction_id = $2`, driver, transactionID))
}

func (r *repository) scanOne(row *sql.Row) (*Transaction, error) {
	var (
		t                                   Transaction
		unit, status                        string
		transactionID, referenceID, failure sql.NullString
		details                             []byte
		verifiedAt                          sql.NullTime
	)

	err := row.Scan(
		&t.ID, &t.UUID, &t.Driver, &t.Amount, &unit, &transactionID, &referenceID, &status,
		&failure, &details, &t.CreatedAt, &t.UpdatedAt, &verifiedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	t.Unit = invoice.Unit(unit)
	t.Status = Status(status)
	t.TransactionID = transactionID.String
	t.ReferenceID = referenceID.String
	t.FailureReason = failure.String
	if verifiedAt.Valid {
		t.VerifiedAt = &verifiedAt.Time
	}
	if len(details) > 0 {
		if err := json.Unmarshal(details, &t.Details); err != nil {
			return nil, fmt.Errorf("failed to decode details: %w", err)
		}
	}
	return &t, nil
}

func (r *repository) SaveCallback(
	ctx context.Context,
	driver string,
	eventID string,
	transactionID string,
	payload json.RawMessage,
) (int64, bool, error) {

	const q = `
	INSERT INTO payment_callbacks (
		driver,
		event_id,
		transaction_id,
		payload
	)
	VALUES ($1, $2, $3, $4)
	ON CONFLICT (driver, event_id)
	DO NOTHING
	RETURNING id;
	`

	var id int64
	err := r.db.QueryRowContext(ctx, q, driver, eventID, transactionID, []byte(payload)).Scan(&id)
	if err != nil {
		// Duplicate callback, nothing inserted
		if errors.Is(err, sql.ErrNoRows) {
			return 0, true, nil
		}
		return 0, false, err
	}

	return id, false, nil
}

func (r *repository) MarkCallbackProcessed(ctx context.Context, callbackID int64) error {
	const q = `
	UPDATE payment_callbacks
	SET processed_at = now(), process_error = NULL
	WHERE id = $1;
	`

	_, err := r.db.ExecContext(ctx, q, callbackID)
	return err
}

func (r *repository) MarkCallbackFailed(ctx context.Context, callbackID int64, reason string) error {
	const q = `
	UPDATE payment_callbacks
	SET process_error = $2
	WHERE id = $1;
	`

	_, err := r.db.ExecContext(ctx, q, callbackID, reason)
	return err
}

func expectOneRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrStatusConflict
	}
	return nil
}
