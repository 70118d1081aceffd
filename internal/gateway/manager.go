package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"paygate/internal/invoice"
	"paygate/internal/logger"
	"paygate/internal/metrics"
	"paygate/internal/payment"
	"paygate/internal/transaction"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type Config struct {
	DefaultDriver string
	Drivers       map[string]payment.Settings
	Metrics       *metrics.Set
}

type Checkout struct {
	UUID          string `json:"uuid"`
	Driver        string `json:"driver"`
	TransactionID string `json:"transaction_id"`
	RedirectURL   string `json:"redirect_url"`
}

type Outcome struct {
	Result      payment.VerifyResult
	Transaction *transaction.Transaction
	// AlreadyVerified is set when the transaction was verified by an
	// earlier call. Callers must not credit it again.
	AlreadyVerified bool
}

type Manager struct {
	cfg      Config
	registry *payment.Registry
	repo     transaction.Repository
	opts     []payment.Option
}

func NewManager(cfg Config, reg *payment.Registry, repo transaction.Repository, opts ...payment.Option) *Manager {
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.NewSet()
	}
	return &Manager{
		cfg:      cfg,
		registry: reg,
		repo:     repo,
		opts:     opts,
	}
}

// Metrics counts checkout and verify outcomes as "<op>.<driver>.<outcome>".
// Names outside the registry are counted under "unknown".
func (m *Manager) Metrics() *metrics.Set { return m.cfg.Metrics }

func (m *Manager) count(op, driver string, err error) {
	if !m.registry.Has(driver) {
		driver = "unknown"
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
		if f, ok := payment.AsFailure(err); ok {
			outcome = string(f.Kind)
		}
	}
	m.cfg.Metrics.Inc(op + "." + driver + "." + outcome)
}

func (m *Manager) DriverName(name string) string {
	if name == "" {
		return m.cfg.DefaultDriver
	}
	return name
}

// ParseCallback extracts verify parameters for the named driver.
func (m *Manager) ParseCallback(driverName string, params url.Values) (payment.Callback, error) {
	return m.registry.ParseCallback(m.DriverName(driverName), params)
}

func (m *Manager) newDriver(name string, inv *invoice.Invoice) (payment.Driver, error) {
	settings, ok := m.cfg.Drivers[name]
	if !ok {
		return nil, payment.NewConfigurationFailure(name, "driver is not configured")
	}
	return m.registry.New(name, inv, settings, m.opts...)
}

func (m *Manager) Checkout(ctx context.Context, driverName string, inv *invoice.Invoice) (*Checkout, error) {
	name := m.DriverName(driverName)
	log := logger.FromCtx(ctx).With(
		zap.String("driver", name),
		zap.String("uuid", inv.UUID()),
		zap.Stringer("amount", inv.Amount()),
	)

	drv, err := m.newDriver(name, inv)
	if err != nil {
		m.count("checkout", name, err)
		log.Warn("driver unavailable", zap.Error(err))
		return nil, err
	}

	tx := transaction.FromInvoice(name, inv)
	if err := m.repo.Create(ctx, tx); err != nil {
		return nil, fmt.Errorf("failed to create transaction: %w", err)
	}

	transactionID, err := drv.Purchase(ctx)
	m.count("checkout", name, err)
	if err != nil {
		log.Warn("purchase failed", zap.Error(err))
		if _, mErr := m.repo.MarkFailed(ctx, inv.UUID(), err.Error()); mErr != nil {
			log.Error("failed to record purchase failure", zap.Error(mErr))
		}
		return nil, err
	}

	if err := m.repo.MarkPurchased(ctx, inv.UUID(), transactionID); err != nil {
		return nil, fmt.Errorf("failed to record purchase: %w", err)
	}

	redirectURL, err := drv.Pay()
	if err != nil {
		return nil, err
	}

	if err := m.repo.MarkRedirected(ctx, inv.UUID()); err != nil {
		return nil, fmt.Errorf("failed to record redirect: %w", err)
	}

	log.Info("checkout ready", zap.String("transaction_id", transactionID))

	return &Checkout{
		UUID:          inv.UUID(),
		Driver:        name,
		TransactionID: transactionID,
		RedirectURL:   redirectURL,
	}, nil
}

// Verify handles a provider callback for the named driver.
func (m *Manager) Verify(ctx context.Context, driverName string, cb payment.Callback) (*Outcome, error) {
	name := m.DriverName(driverName)

	tx, err := m.find(ctx, name, cb)
	if err != nil {
		return nil, err
	}
	if tx.Driver != name {
		return nil, payment.NewPreconditionFailure(name, "transaction belongs to driver "+tx.Driver)
	}
	if tx.TransactionID == "" {
		return nil, payment.NewPreconditionFailure(name, "transaction was never purchased")
	}

	return m.verify(ctx, tx, cb)
}

// Reverify asks the provider again about a stored transaction.
func (m *Manager) Reverify(ctx context.Context, id string) (*Outcome, error) {
	tx, err := m.byOrderID(ctx, id)
	if err != nil {
		return nil, err
	}
	if tx.TransactionID == "" {
		return nil, payment.NewPreconditionFailure(tx.Driver, "transaction was never purchased")
	}

	return m.verify(ctx, tx, payment.Callback{
		TransactionID: tx.TransactionID,
		OrderID:       tx.UUID,
	})
}

func (m *Manager) find(ctx context.Context, driver string, cb payment.Callback) (*transaction.Transaction, error) {
	switch {
	case cb.TransactionID != "":
		tx, err := m.repo.GetByTransactionID(ctx, driver, cb.TransactionID)
		if errors.Is(err, transaction.ErrNotFound) && cb.OrderID != "" {
			return m.byOrderID(ctx, cb.OrderID)
		}
		return tx, err
	case cb.OrderID != "":
		return m.byOrderID(ctx, cb.OrderID)
	default:
		return nil, payment.NewPreconditionFailure(driver, "callback carries no transaction id")
	}
}

// byOrderID looks a transaction up by invoice uuid. Some providers echo a
// merchant reference instead, which never matches.
func (m *Manager) byOrderID(ctx context.Context, id string) (*transaction.Transaction, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, transaction.ErrNotFound
	}
	return m.repo.GetByUUID(ctx, id)
}

func (m *Manager) verify(ctx context.Context, tx *transaction.Transaction, cb payment.Callback) (*Outcome, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("driver", tx.Driver),
		zap.String("uuid", tx.UUID),
		zap.String("transaction_id", tx.TransactionID),
	)

	inv, err := tx.Invoice()
	if err != nil {
		return nil, fmt.Errorf("failed to restore invoice: %w", err)
	}

	drv, err := m.newDriver(tx.Driver, inv)
	if err != nil {
		m.count("verify", tx.Driver, err)
		return nil, err
	}

	timer := metrics.StartTimer()
	res := drv.Verify(ctx, cb)
	m.count("verify", tx.Driver, res.Err())
	log = log.With(zap.Duration("duration", timer.Duration()))

	out := &Outcome{Result: res, Transaction: tx}

	if res.Verified() {
		already, err := m.repo.MarkVerified(ctx, tx.UUID, res.ReferenceID)
		if err != nil {
			return nil, fmt.Errorf("failed to record verification: %w", err)
		}
		out.AlreadyVerified = already
		if !already {
			tx.Status = transaction.StatusVerified
			tx.ReferenceID = res.ReferenceID
			tx.FailureReason = ""
		}
		log.Info("payment verified",
			zap.String("reference_id", res.ReferenceID),
			zap.Bool("already_verified", already),
		)
		return out, nil
	}

	log = log.With(zap.Error(res.Failure))

	if tx.Status == transaction.StatusVerified {
		out.AlreadyVerified = true
		log.Warn("re-check failed on verified transaction, keeping status")
		return out, nil
	}

	// Provider state is unknown after a transport failure.
	if errors.Is(res.Failure, payment.ErrTransport) {
		log.Warn("verify did not reach provider")
		return out, nil
	}

	updated, err := m.repo.MarkFailed(ctx, tx.UUID, res.Failure.Error())
	if err != nil {
		return nil, fmt.Errorf("failed to record verify failure: %w", err)
	}
	if updated {
		tx.Status = transaction.StatusFailed
		tx.FailureReason = res.Failure.Error()
	} else {
		// Lost a race with a concurrent successful verify.
		out.AlreadyVerified = true
	}

	log.Warn("payment not verified", zap.Bool("updated", updated))
	return out, nil
}
