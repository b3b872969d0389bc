package ledger

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ErrInvalidInvestor is returned when an investor update has no name.
var ErrInvalidInvestor = errors.New("investor name is required")

// InvalidTermsError reports malformed loan terms.
type InvalidTermsError struct {
	Field  string
	Reason string
}

func (e *InvalidTermsError) Error() string {
	return fmt.Sprintf("invalid loan terms: %s %s", e.Field, e.Reason)
}

// InvalidPaymentError reports a payment amount that is not positive or exceeds the balance.
type InvalidPaymentError struct {
	LoanID  uuid.UUID
	Amount  decimal.Decimal
	Balance decimal.Decimal
	Reason  string
}

func (e *InvalidPaymentError) Error() string {
	return fmt.Sprintf("invalid payment of %s for loan %s (balance %s): %s",
		e.Amount.StringFixed(2), e.LoanID, e.Balance.StringFixed(2), e.Reason)
}

// LoanNotFoundError reports a reference to a loan that is not in the catalog.
type LoanNotFoundError struct {
	ID uuid.UUID
}

func (e *LoanNotFoundError) Error() string {
	return fmt.Sprintf("loan %s not found", e.ID)
}

func invalidTerms(field, reason string) error {
	return &InvalidTermsError{Field: field, Reason: reason}
}
