package ledger

import (
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	"github.com/mcclellann/tradex/pkg/models"
	"github.com/shopspring/decimal"
)

// PaymentRequest describes money received against a loan.
type PaymentRequest struct {
	LoanID uuid.UUID
	Amount decimal.Decimal
	Date   civil.Date // zero means today
	Actor  string
	Notes  string
}

// RegisterPayment validates a payment against the freshly derived balance of
// its loan and returns the new payment record. Neither the loan nor the
// payment history is modified; the caller appends the result.
func RegisterPayment(loans []*models.Loan, payments []*models.Payment, req PaymentRequest, today civil.Date, now time.Time) (*models.Payment, error) {
	var loan *models.Loan
	for _, l := range loans {
		if l.ID == req.LoanID {
			loan = l
			break
		}
	}
	if loan == nil {
		return nil, &LoanNotFoundError{ID: req.LoanID}
	}

	current := DeriveState(loan, payments, today)
	amount := roundMoney(req.Amount)

	if !amount.IsPositive() {
		return nil, &InvalidPaymentError{LoanID: loan.ID, Amount: amount, Balance: current.Balance, Reason: "amount must be greater than zero"}
	}
	if amount.GreaterThan(current.Balance) {
		return nil, &InvalidPaymentError{LoanID: loan.ID, Amount: amount, Balance: current.Balance, Reason: "amount exceeds outstanding balance"}
	}

	date := req.Date
	if date.IsZero() {
		date = today
	}

	return &models.Payment{
		ID:           uuid.New(),
		LoanID:       loan.ID,
		Customer:     loan.Customer,
		Amount:       amount,
		PaymentDate:  date,
		RegisteredBy: req.Actor,
		Notes:        strings.TrimSpace(req.Notes),
		CreatedAt:    now,
	}, nil
}
