package ledger

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/mcclellann/tradex/pkg/models"
	"github.com/mcclellann/tradex/pkg/store"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// MockStore wraps the in-memory store and can be told to fail writes.
type MockStore struct {
	*store.MemoryStore
	failSave    error
	failPayment error
	saved       [][]*models.Loan
}

func NewMockStore() *MockStore {
	return &MockStore{MemoryStore: store.NewMemoryStore()}
}

func (m *MockStore) SaveLoanStates(ctx context.Context, loans []*models.Loan) error {
	if m.failSave != nil {
		return m.failSave
	}
	m.saved = append(m.saved, loans)
	return m.MemoryStore.SaveLoanStates(ctx, loans)
}

func (m *MockStore) CreatePayment(ctx context.Context, p *models.Payment) error {
	if m.failPayment != nil {
		return m.failPayment
	}
	return m.MemoryStore.CreatePayment(ctx, p)
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

func newTestLedger(t *testing.T) (*Ledger, *MockStore, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: time.Date(2024, time.January, 10, 12, 0, 0, 0, time.UTC)}
	s := NewMockStore()
	return NewLedger(s, WithClock(clock.Now)), s, clock
}

func TestLedger_CreateLoan(t *testing.T) {
	l, s, _ := newTestLedger(t)
	ctx := context.Background()

	loan, err := l.CreateLoan(ctx, "Ana Torres", baseTerms())
	require.NoError(t, err)
	assertMoney(t, "1400.00", loan.TotalDue)

	stored, err := s.GetLoan(ctx, loan.ID)
	require.NoError(t, err)
	assert.Equal(t, loan.Customer, stored.Customer)
	assert.Equal(t, models.StatusActive, stored.Status)

	_, err = l.CreateLoan(ctx, "Ana Torres", Terms{})
	var termsErr *InvalidTermsError
	require.ErrorAs(t, err, &termsErr)

	loans, err := s.GetAllLoans(ctx)
	require.NoError(t, err)
	assert.Len(t, loans, 1, "rejected terms must not be stored")
}

func TestLedger_RecordPayment(t *testing.T) {
	l, _, _ := newTestLedger(t)
	ctx := context.Background()

	loan, err := l.CreateLoan(ctx, "Ana Torres", baseTerms())
	require.NoError(t, err)

	p, err := l.RecordPayment(ctx, PaymentRequest{LoanID: loan.ID, Amount: dec("400"), Actor: "admin"})
	require.NoError(t, err)
	assert.Equal(t, l.Today(), p.PaymentDate)

	got, err := l.GetLoan(ctx, loan.ID)
	require.NoError(t, err)
	assertMoney(t, "400.00", got.PaidTotal)
	assertMoney(t, "1000.00", got.Balance)

	_, err = l.RecordPayment(ctx, PaymentRequest{LoanID: loan.ID, Amount: dec("1000.01")})
	var payErr *InvalidPaymentError
	require.ErrorAs(t, err, &payErr)
	assertMoney(t, "1000.00", payErr.Balance)

	_, err = l.RecordPayment(ctx, PaymentRequest{LoanID: uuid.New(), Amount: dec("1")})
	var notFound *LoanNotFoundError
	require.ErrorAs(t, err, &notFound)

	_, err = l.RecordPayment(ctx, PaymentRequest{LoanID: loan.ID, Amount: dec("1000")})
	require.NoError(t, err)

	got, err = l.GetLoan(ctx, loan.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPaid, got.Status)

	payments, err := l.GetPaymentsForLoan(ctx, loan.ID)
	require.NoError(t, err)
	assert.Len(t, payments, 2)
}

func TestLedger_RecordPayment_StoreFailure(t *testing.T) {
	l, s, _ := newTestLedger(t)
	ctx := context.Background()

	loan, err := l.CreateLoan(ctx, "Ana Torres", baseTerms())
	require.NoError(t, err)

	boom := errors.New("disk full")
	s.failPayment = boom
	_, err = l.RecordPayment(ctx, PaymentRequest{LoanID: loan.ID, Amount: dec("10")})
	require.ErrorIs(t, err, boom)

	payments, err := l.GetAllPayments(ctx)
	require.NoError(t, err)
	assert.Empty(t, payments)
}

func TestLedger_ConcurrentPaymentsNeverOverdraw(t *testing.T) {
	l, _, _ := newTestLedger(t)
	ctx := context.Background()

	loan, err := l.CreateLoan(ctx, "Ana Torres", baseTerms())
	require.NoError(t, err)

	const workers = 20
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		accepted int
		rejected int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := l.RecordPayment(ctx, PaymentRequest{LoanID: loan.ID, Amount: dec("100")})
			mu.Lock()
			defer mu.Unlock()
			var payErr *InvalidPaymentError
			switch {
			case err == nil:
				accepted++
			case errors.As(err, &payErr):
				rejected++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 14, accepted)
	assert.Equal(t, 6, rejected)

	got, err := l.GetLoan(ctx, loan.ID)
	require.NoError(t, err)
	assertMoney(t, "1400.00", got.PaidTotal)
	assertMoney(t, "0.00", got.Balance)
	assert.Equal(t, models.StatusPaid, got.Status)
}

func TestLedger_ReadsDoNotWrite(t *testing.T) {
	l, s, clock := newTestLedger(t)
	ctx := context.Background()

	loan, err := l.CreateLoan(ctx, "Ana Torres", baseTerms())
	require.NoError(t, err)
	clock.Set(time.Date(2024, time.March, 1, 8, 0, 0, 0, time.UTC))

	got, err := l.GetLoan(ctx, loan.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusOverdue, got.Status)

	_, err = l.GetAllLoans(ctx)
	require.NoError(t, err)
	_, err = l.Dashboard(ctx)
	require.NoError(t, err)

	stored, err := s.GetLoan(ctx, loan.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusActive, stored.Status)
	assert.Empty(t, s.saved)
}

func TestLedger_Reconcile(t *testing.T) {
	l, s, clock := newTestLedger(t)
	ctx := context.Background()

	late, err := l.CreateLoan(ctx, "Ana Torres", baseTerms())
	require.NoError(t, err)
	settled, err := l.CreateLoan(ctx, "Luis Pérez", baseTerms())
	require.NoError(t, err)
	_, err = l.RecordPayment(ctx, PaymentRequest{LoanID: settled.ID, Amount: dec("1400")})
	require.NoError(t, err)

	changes, err := l.Reconcile(ctx)
	require.NoError(t, err)
	require.Len(t, changes, 1)
	assert.Equal(t, settled.ID, changes[0].Loan.ID)
	assert.Equal(t, models.StatusActive, changes[0].From)
	assert.Equal(t, models.StatusPaid, changes[0].To)
	assert.Equal(t, EventSettle, changes[0].Event)
	assert.True(t, changes[0].Legal)

	clock.Set(time.Date(2024, time.February, 2, 8, 0, 0, 0, time.UTC))
	changes, err = l.Reconcile(ctx)
	require.NoError(t, err)
	require.Len(t, changes, 1)
	assert.Equal(t, late.ID, changes[0].Loan.ID)
	assert.Equal(t, EventDefault, changes[0].Event)

	stored, err := s.GetLoan(ctx, late.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusOverdue, stored.Status)
	assert.Equal(t, clock.Now(), stored.UpdatedAt)

	// Nothing is stale on a second pass.
	saves := len(s.saved)
	changes, err = l.Reconcile(ctx)
	require.NoError(t, err)
	assert.NotNil(t, changes)
	assert.Empty(t, changes)
	assert.Len(t, s.saved, saves)
}

func TestLedger_Reconcile_IllegalCachedStatus(t *testing.T) {
	l, s, _ := newTestLedger(t)
	ctx := context.Background()

	loan, err := NewLoan("Ana Torres", baseTerms(), created)
	require.NoError(t, err)
	loan.Status = models.StatusPaid
	loan.Balance = decimal.Zero
	require.NoError(t, s.CreateLoan(ctx, loan))

	changes, err := l.Reconcile(ctx)
	require.NoError(t, err)
	require.Len(t, changes, 1)
	assert.False(t, changes[0].Legal)
	assert.Equal(t, EventReopen, changes[0].Event)

	// The derived status wins regardless.
	stored, err := s.GetLoan(ctx, loan.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusActive, stored.Status)
	assertMoney(t, "1400.00", stored.Balance)
}

func TestLedger_Reconcile_StoreFailure(t *testing.T) {
	l, s, clock := newTestLedger(t)
	ctx := context.Background()

	_, err := l.CreateLoan(ctx, "Ana Torres", baseTerms())
	require.NoError(t, err)
	clock.Set(time.Date(2024, time.February, 2, 8, 0, 0, 0, time.UTC))

	boom := errors.New("connection reset")
	s.failSave = boom
	changes, err := l.Reconcile(ctx)
	require.ErrorIs(t, err, boom)
	assert.Nil(t, changes)
}

func TestLedger_Investors(t *testing.T) {
	l, _, _ := newTestLedger(t)
	ctx := context.Background()

	require.NoError(t, l.SeedInvestors(ctx, []string{"Fred", " Lucia ", "", "Fred"}))

	inv, err := l.SetInvestorCapital(ctx, "Fred", dec("2500.555"))
	require.NoError(t, err)
	assertMoney(t, "2500.56", inv.Capital)

	// Seeding again never resets capital.
	require.NoError(t, l.SeedInvestors(ctx, []string{"Fred", "Lucia"}))

	investors, err := l.GetAllInvestors(ctx)
	require.NoError(t, err)
	require.Len(t, investors, 2)
	assert.Equal(t, "Fred", investors[0].Name)
	assertMoney(t, "2500.56", investors[0].Capital)
	assert.Equal(t, "Lucia", investors[1].Name)
	assertMoney(t, "0.00", investors[1].Capital)

	_, err = l.SetInvestorCapital(ctx, "  ", dec("10"))
	assert.ErrorIs(t, err, ErrInvalidInvestor)
}

func TestLedger_Dashboard(t *testing.T) {
	l, _, _ := newTestLedger(t)
	ctx := context.Background()

	_, err := l.SetInvestorCapital(ctx, "Fred", dec("5000"))
	require.NoError(t, err)
	loan, err := l.CreateLoan(ctx, "Ana Torres", baseTerms())
	require.NoError(t, err)
	_, err = l.RecordPayment(ctx, PaymentRequest{LoanID: loan.ID, Amount: dec("400")})
	require.NoError(t, err)

	dash, err := l.Dashboard(ctx)
	require.NoError(t, err)
	require.Len(t, dash.Loans, 1)
	require.Len(t, dash.Payments, 1)
	assertMoney(t, "1000.00", dash.Loans[0].Balance)
	assertMoney(t, "400.00", dash.Metrics.CollectedToday)
	assertMoney(t, "400.00", dash.Metrics.ProjectedProfit)
	assertMoney(t, "4000.00", dash.Metrics.AvailableCapital)
	assert.Equal(t, 1, dash.Metrics.StatusCount[models.StatusActive])
}

func TestLedger_GetLoanNotFound(t *testing.T) {
	l, _, _ := newTestLedger(t)
	ctx := context.Background()
	id := uuid.New()

	_, err := l.GetLoan(ctx, id)
	var notFound *LoanNotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, id, notFound.ID)

	_, err = l.GetPaymentsForLoan(ctx, id)
	require.ErrorAs(t, err, &notFound)
}
