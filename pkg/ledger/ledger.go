package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	"github.com/mcclellann/tradex/pkg/logger"
	"github.com/mcclellann/tradex/pkg/models"
	"github.com/mcclellann/tradex/pkg/store"
	"github.com/shopspring/decimal"
)

// Ledger handles the business logic for loans, payments and investors on top
// of a Storage. It is the single writer for its storage: every operation that
// writes holds mu across its read-validate-write cycle.
type Ledger struct {
	storage store.Storage
	clock   func() time.Time
	mu      sync.Mutex
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithClock replaces the wall clock used to decide "today".
func WithClock(clock func() time.Time) Option {
	return func(l *Ledger) { l.clock = clock }
}

// NewLedger creates a new Ledger with a given Storage implementation.
func NewLedger(s store.Storage, opts ...Option) *Ledger {
	l := &Ledger{
		storage: s,
		clock:   time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Today returns the current calendar date in the clock's location.
func (l *Ledger) Today() civil.Date {
	return civil.DateOf(l.clock())
}

// Dashboard is everything the portfolio overview shows.
type Dashboard struct {
	Metrics   models.Metrics     `json:"metrics"`
	Loans     []*models.Loan     `json:"loans"`
	Investors []*models.Investor `json:"investors"`
	Payments  []*models.Payment  `json:"-"`
}

type snapshot struct {
	loans     []*models.Loan
	payments  []*models.Payment
	investors []*models.Investor
}

func (l *Ledger) load(ctx context.Context, withInvestors bool) (*snapshot, error) {
	loans, err := l.storage.GetAllLoans(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load loans: %w", err)
	}
	payments, err := l.storage.GetAllPayments(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load payments: %w", err)
	}
	snap := &snapshot{loans: loans, payments: payments}
	if withInvestors {
		if snap.investors, err = l.storage.GetAllInvestors(ctx); err != nil {
			return nil, fmt.Errorf("failed to load investors: %w", err)
		}
	}
	return snap, nil
}

// CreateLoan originates a loan for a customer.
func (l *Ledger) CreateLoan(ctx context.Context, customer string, terms Terms) (*models.Loan, error) {
	loan, err := NewLoan(customer, terms, l.clock())
	if err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.storage.CreateLoan(ctx, loan); err != nil {
		return nil, fmt.Errorf("failed to store loan: %w", err)
	}

	logger.Info("Loan created",
		"loan_id", loan.ID,
		"customer", loan.Customer,
		"principal", loan.Principal.StringFixed(2),
		"total_due", loan.TotalDue.StringFixed(2),
		"due_date", loan.DueDate.String(),
	)
	return loan, nil
}

// GetLoan retrieves a loan by its ID with freshly derived state.
func (l *Ledger) GetLoan(ctx context.Context, id uuid.UUID) (*models.Loan, error) {
	loan, err := l.storage.GetLoan(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, &LoanNotFoundError{ID: id}
		}
		return nil, err
	}
	payments, err := l.storage.GetPaymentsForLoan(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load payments: %w", err)
	}
	return DeriveState(loan, payments, l.Today()), nil
}

// GetAllLoans retrieves all loans with freshly derived state. Nothing is written.
func (l *Ledger) GetAllLoans(ctx context.Context) ([]*models.Loan, error) {
	snap, err := l.load(ctx, false)
	if err != nil {
		return nil, err
	}
	return DeriveAll(snap.loans, snap.payments, l.Today()), nil
}

// GetAllPayments returns the payment history in registration order.
func (l *Ledger) GetAllPayments(ctx context.Context) ([]*models.Payment, error) {
	return l.storage.GetAllPayments(ctx)
}

// GetPaymentsForLoan returns the payments of one loan.
func (l *Ledger) GetPaymentsForLoan(ctx context.Context, id uuid.UUID) ([]*models.Payment, error) {
	if _, err := l.storage.GetLoan(ctx, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, &LoanNotFoundError{ID: id}
		}
		return nil, err
	}
	return l.storage.GetPaymentsForLoan(ctx, id)
}

// RecordPayment validates a payment against the current balance of its loan and
// appends it to the ledger.
func (l *Ledger) RecordPayment(ctx context.Context, req PaymentRequest) (*models.Payment, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	snap, err := l.load(ctx, false)
	if err != nil {
		return nil, err
	}

	payment, err := RegisterPayment(snap.loans, snap.payments, req, l.Today(), l.clock())
	if err != nil {
		return nil, err
	}

	if err := l.storage.CreatePayment(ctx, payment); err != nil {
		return nil, fmt.Errorf("failed to store payment: %w", err)
	}

	logger.Info("Payment recorded",
		"payment_id", payment.ID,
		"loan_id", payment.LoanID,
		"amount", payment.Amount.StringFixed(2),
		"registered_by", payment.RegisteredBy,
	)
	return payment, nil
}

// GetAllInvestors returns the investors and their capital.
func (l *Ledger) GetAllInvestors(ctx context.Context) ([]*models.Investor, error) {
	return l.storage.GetAllInvestors(ctx)
}

// SetInvestorCapital creates the investor or replaces its capital.
func (l *Ledger) SetInvestorCapital(ctx context.Context, name string, capital decimal.Decimal) (*models.Investor, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrInvalidInvestor
	}
	inv := &models.Investor{
		Name:      name,
		Capital:   roundMoney(capital),
		UpdatedAt: l.clock(),
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.storage.UpsertInvestor(ctx, inv); err != nil {
		return nil, fmt.Errorf("failed to store investor: %w", err)
	}
	logger.Info("Investor capital updated", "investor", inv.Name, "capital", inv.Capital.StringFixed(2))
	return inv, nil
}

// SeedInvestors creates the named investors with zero capital. Existing
// investors are left untouched.
func (l *Ledger) SeedInvestors(ctx context.Context, names []string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	existing, err := l.storage.GetAllInvestors(ctx)
	if err != nil {
		return fmt.Errorf("failed to load investors: %w", err)
	}
	known := make(map[string]bool, len(existing))
	for _, inv := range existing {
		known[inv.Name] = true
	}

	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" || known[name] {
			continue
		}
		inv := &models.Investor{Name: name, Capital: decimal.Zero, UpdatedAt: l.clock()}
		if err := l.storage.UpsertInvestor(ctx, inv); err != nil {
			return fmt.Errorf("failed to seed investor %s: %w", name, err)
		}
		known[name] = true
		logger.Info("Investor seeded", "investor", name)
	}
	return nil
}

// Dashboard derives every loan and summarizes the portfolio as of today.
func (l *Ledger) Dashboard(ctx context.Context) (*Dashboard, error) {
	snap, err := l.load(ctx, true)
	if err != nil {
		return nil, err
	}
	today := l.Today()
	loans := DeriveAll(snap.loans, snap.payments, today)
	return &Dashboard{
		Metrics:   PortfolioMetrics(loans, snap.payments, snap.investors, today),
		Loans:     loans,
		Investors: snap.investors,
		Payments:  snap.payments,
	}, nil
}

// Reconcile derives every loan and writes back those whose stored paid total,
// balance or status went stale. It returns the status changes it applied.
func (l *Ledger) Reconcile(ctx context.Context) ([]StatusChange, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	snap, err := l.load(ctx, false)
	if err != nil {
		return nil, err
	}

	now := l.clock()
	derived := DeriveAll(snap.loans, snap.payments, civil.DateOf(now))

	var stale []*models.Loan
	changes := []StatusChange{}
	for i, loan := range derived {
		cached := snap.loans[i]
		if SameState(cached, loan) {
			continue
		}
		loan.UpdatedAt = now
		stale = append(stale, loan)

		if cached.Status == loan.Status {
			continue
		}
		change := StatusChange{Loan: loan, From: cached.Status, To: loan.Status, Legal: true}
		change.Event, err = ClassifyTransition(ctx, cached.Status, loan.Status)
		if err != nil {
			change.Legal = false
			logger.Warn("Stored loan status contradicts its lifecycle", "loan_id", loan.ID, "error", err)
		}
		changes = append(changes, change)
	}

	if len(stale) == 0 {
		return changes, nil
	}
	if err := l.storage.SaveLoanStates(ctx, stale); err != nil {
		return nil, fmt.Errorf("failed to save loan states: %w", err)
	}

	logger.Info("Loan states reconciled", "updated", len(stale), "status_changes", len(changes))
	return changes, nil
}
