package ledger

import (
	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	"github.com/mcclellann/tradex/pkg/models"
	"github.com/shopspring/decimal"
)

// StatusOf evaluates the loan lifecycle. A settled loan stays paid no matter
// the date; otherwise it is overdue once today is past the due date.
func StatusOf(balance decimal.Decimal, dueDate, today civil.Date) models.Status {
	switch {
	case !balance.IsPositive():
		return models.StatusPaid
	case today.After(dueDate):
		return models.StatusOverdue
	default:
		return models.StatusActive
	}
}

// DeriveState recomputes paid total, balance and status of a loan from the
// payment history. Payments for other loans are ignored. The input loan is not
// modified.
func DeriveState(loan *models.Loan, payments []*models.Payment, today civil.Date) *models.Loan {
	paid := decimal.Zero
	for _, p := range payments {
		if p.LoanID == loan.ID {
			paid = paid.Add(p.Amount)
		}
	}
	return applyPaid(loan, paid, today)
}

// DeriveAll runs DeriveState over the whole catalog, preserving order.
func DeriveAll(loans []*models.Loan, payments []*models.Payment, today civil.Date) []*models.Loan {
	paidByLoan := make(map[uuid.UUID]decimal.Decimal, len(loans))
	for _, p := range payments {
		paidByLoan[p.LoanID] = paidByLoan[p.LoanID].Add(p.Amount)
	}

	out := make([]*models.Loan, 0, len(loans))
	for _, loan := range loans {
		out = append(out, applyPaid(loan, paidByLoan[loan.ID], today))
	}
	return out
}

func applyPaid(loan *models.Loan, paid decimal.Decimal, today civil.Date) *models.Loan {
	derived := *loan
	derived.PaidTotal = roundMoney(paid)
	derived.Balance = decimal.Max(decimal.Zero, roundMoney(loan.TotalDue.Sub(derived.PaidTotal)))
	derived.Status = StatusOf(derived.Balance, loan.DueDate, today)
	return &derived
}

// SameState reports whether two records of the same loan carry identical derived fields.
func SameState(a, b *models.Loan) bool {
	return a.Status == b.Status && a.PaidTotal.Equal(b.PaidTotal) && a.Balance.Equal(b.Balance)
}
