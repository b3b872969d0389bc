package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/mcclellann/tradex/pkg/models"
)

// MemoryStore keeps everything in process memory. Records are copied on the
// way in and out so callers never share state with the store.
type MemoryStore struct {
	mu        sync.RWMutex
	loans     map[uuid.UUID]*models.Loan
	loanOrder []uuid.UUID
	payments  []*models.Payment
	investors map[string]*models.Investor
	invOrder  []string
}

var _ Storage = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		loans:     make(map[uuid.UUID]*models.Loan),
		investors: make(map[string]*models.Investor),
	}
}

func (s *MemoryStore) CreateLoan(_ context.Context, loan *models.Loan) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.loans[loan.ID]; ok {
		return fmt.Errorf("loan %s already exists", loan.ID)
	}
	l := *loan
	s.loans[loan.ID] = &l
	s.loanOrder = append(s.loanOrder, loan.ID)
	return nil
}

func (s *MemoryStore) GetLoan(_ context.Context, id uuid.UUID) (*models.Loan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.loans[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := *l
	return &out, nil
}

func (s *MemoryStore) GetAllLoans(_ context.Context) ([]*models.Loan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Loan, 0, len(s.loanOrder))
	for _, id := range s.loanOrder {
		l := *s.loans[id]
		out = append(out, &l)
	}
	return out, nil
}

func (s *MemoryStore) SaveLoanStates(_ context.Context, loans []*models.Loan) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, l := range loans {
		if _, ok := s.loans[l.ID]; !ok {
			return fmt.Errorf("loan %s: %w", l.ID, ErrNotFound)
		}
	}
	for _, l := range loans {
		stored := s.loans[l.ID]
		stored.PaidTotal = l.PaidTotal
		stored.Balance = l.Balance
		stored.Status = l.Status
		stored.UpdatedAt = l.UpdatedAt
	}
	return nil
}

func (s *MemoryStore) CreatePayment(_ context.Context, payment *models.Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.loans[payment.LoanID]; !ok {
		return fmt.Errorf("loan %s: %w", payment.LoanID, ErrNotFound)
	}
	p := *payment
	s.payments = append(s.payments, &p)
	return nil
}

func (s *MemoryStore) GetAllPayments(_ context.Context) ([]*models.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Payment, 0, len(s.payments))
	for _, p := range s.payments {
		cp := *p
		out = append(out, &cp)
	}
	return out, nil
}

func (s *MemoryStore) GetPaymentsForLoan(_ context.Context, loanID uuid.UUID) ([]*models.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []*models.Payment{}
	for _, p := range s.payments {
		if p.LoanID == loanID {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *MemoryStore) GetAllInvestors(_ context.Context) ([]*models.Investor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Investor, 0, len(s.invOrder))
	for _, name := range s.invOrder {
		inv := *s.investors[name]
		out = append(out, &inv)
	}
	return out, nil
}

func (s *MemoryStore) UpsertInvestor(_ context.Context, investor *models.Investor) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.investors[investor.Name]; !ok {
		s.invOrder = append(s.invOrder, investor.Name)
	}
	inv := *investor
	s.investors[investor.Name] = &inv
	return nil
}

func (s *MemoryStore) Close() error {
	return nil
}
