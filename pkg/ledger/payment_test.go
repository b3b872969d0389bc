package ledger

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/mcclellann/tradex/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterPayment(t *testing.T) {
	loan := mustLoan(t, nil)
	loans := []*models.Loan{loan}
	today := date(2024, time.January, 15)
	now := time.Date(2024, time.January, 15, 14, 30, 0, 0, time.UTC)

	p, err := RegisterPayment(loans, nil, PaymentRequest{
		LoanID: loan.ID,
		Amount: dec("350.005"),
		Actor:  "operator",
		Notes:  "  cash ",
	}, today, now)
	require.NoError(t, err)

	assert.NotEqual(t, uuid.Nil, p.ID)
	assert.Equal(t, loan.ID, p.LoanID)
	assert.Equal(t, loan.Customer, p.Customer)
	assertMoney(t, "350.01", p.Amount)
	assert.Equal(t, today, p.PaymentDate, "zero date defaults to today")
	assert.Equal(t, "operator", p.RegisteredBy)
	assert.Equal(t, "cash", p.Notes)
	assert.Equal(t, now, p.CreatedAt)

	// Inputs are not mutated.
	assertMoney(t, "1400.00", loan.Balance)

	derived := DeriveState(loan, []*models.Payment{p}, today)
	assertMoney(t, "1049.99", derived.Balance)
}

func TestRegisterPayment_ExplicitDate(t *testing.T) {
	loan := mustLoan(t, nil)
	backdated := date(2024, time.January, 3)

	p, err := RegisterPayment([]*models.Loan{loan}, nil, PaymentRequest{
		LoanID: loan.ID,
		Amount: dec("10"),
		Date:   backdated,
	}, date(2024, time.January, 15), created)
	require.NoError(t, err)
	assert.Equal(t, backdated, p.PaymentDate)
}

func TestRegisterPayment_ExactBalanceSettles(t *testing.T) {
	loan := mustLoan(t, nil)
	today := date(2024, time.February, 5)
	history := []*models.Payment{pay(loan.ID, "400.00", date(2024, time.January, 10))}

	p, err := RegisterPayment([]*models.Loan{loan}, history, PaymentRequest{LoanID: loan.ID, Amount: dec("1000.00")}, today, created)
	require.NoError(t, err)

	derived := DeriveState(loan, append(history, p), today)
	assertMoney(t, "0.00", derived.Balance)
	assert.Equal(t, models.StatusPaid, derived.Status)
}

func TestRegisterPayment_Rejected(t *testing.T) {
	loan := mustLoan(t, nil)
	history := []*models.Payment{pay(loan.ID, "1000.00", date(2024, time.January, 10))}
	today := date(2024, time.January, 15)

	tests := []struct {
		name        string
		amount      string
		wantBalance string
	}{
		{"zero amount", "0", "400.00"},
		{"negative amount", "-25", "400.00"},
		{"rounds to zero", "0.004", "400.00"},
		{"exceeds balance", "400.01", "400.00"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := RegisterPayment([]*models.Loan{loan}, history, PaymentRequest{LoanID: loan.ID, Amount: dec(tt.amount)}, today, created)
			assert.Nil(t, p)

			var payErr *InvalidPaymentError
			require.True(t, errors.As(err, &payErr), "expected InvalidPaymentError, got %v", err)
			assert.Equal(t, loan.ID, payErr.LoanID)
			assertMoney(t, tt.wantBalance, payErr.Balance)
		})
	}
}

func TestRegisterPayment_SettledLoanRejectsAnyAmount(t *testing.T) {
	loan := mustLoan(t, nil)
	history := []*models.Payment{pay(loan.ID, "1400.00", date(2024, time.January, 10))}

	_, err := RegisterPayment([]*models.Loan{loan}, history, PaymentRequest{LoanID: loan.ID, Amount: dec("0.01")}, date(2024, time.January, 15), created)
	var payErr *InvalidPaymentError
	require.ErrorAs(t, err, &payErr)
	assertMoney(t, "0.00", payErr.Balance)
}

func TestRegisterPayment_UnknownLoan(t *testing.T) {
	loan := mustLoan(t, nil)
	missing := uuid.New()

	_, err := RegisterPayment([]*models.Loan{loan}, nil, PaymentRequest{LoanID: missing, Amount: dec("10")}, date(2024, time.January, 15), created)
	var notFound *LoanNotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, missing, notFound.ID)
}
