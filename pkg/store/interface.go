package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/mcclellann/tradex/pkg/models"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("record not found")

// Storage defines the interface for persisting loans, payments and investors.
// Payments are append-only; loans only ever have their derived fields rewritten.
type Storage interface {
	CreateLoan(ctx context.Context, loan *models.Loan) error
	GetLoan(ctx context.Context, id uuid.UUID) (*models.Loan, error)
	GetAllLoans(ctx context.Context) ([]*models.Loan, error)
	// SaveLoanStates writes paid total, balance and status of the given loans
	// in a single unit of work.
	SaveLoanStates(ctx context.Context, loans []*models.Loan) error

	CreatePayment(ctx context.Context, payment *models.Payment) error
	GetAllPayments(ctx context.Context) ([]*models.Payment, error)
	GetPaymentsForLoan(ctx context.Context, loanID uuid.UUID) ([]*models.Payment, error)

	GetAllInvestors(ctx context.Context) ([]*models.Investor, error)
	UpsertInvestor(ctx context.Context, investor *models.Investor) error

	Close() error
}
