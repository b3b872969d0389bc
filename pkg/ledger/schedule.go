package ledger

import (
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	"github.com/mcclellann/tradex/pkg/models"
	"github.com/shopspring/decimal"
)

const (
	moneyPlaces = 2

	// MaxPeriods bounds the term of a loan to ten years of daily periods.
	MaxPeriods = 3650
)

// Terms are the immutable conditions a loan is issued under.
type Terms struct {
	Principal decimal.Decimal
	RatePct   decimal.Decimal
	LoanType  models.LoanType
	Frequency models.Frequency
	Periods   int
	StartDate civil.Date
}

// Schedule is what a loan's terms commit the customer to repay.
type Schedule struct {
	Interest decimal.Decimal
	TotalDue decimal.Decimal
	DueDate  civil.Date
}

// roundMoney rounds half away from zero to cents.
func roundMoney(d decimal.Decimal) decimal.Decimal {
	return d.Round(moneyPlaces)
}

// Validate checks the terms and returns an *InvalidTermsError for the first violation.
// The principal is judged in cents, as it will be stored.
func (t Terms) Validate() error {
	if !roundMoney(t.Principal).IsPositive() {
		return invalidTerms("principal", "must be at least 0.01")
	}
	if t.RatePct.IsNegative() {
		return invalidTerms("rate", "must not be negative")
	}
	if t.Periods < 1 {
		return invalidTerms("periods", "must be at least 1")
	}
	if t.Periods > MaxPeriods {
		return invalidTerms("periods", fmt.Sprintf("must be at most %d", MaxPeriods))
	}
	if _, ok := t.Frequency.Days(); !ok {
		return invalidTerms("frequency", fmt.Sprintf("must be diario, semanal or mensual, got %q", t.Frequency))
	}
	if _, err := CalculatorFor(t.LoanType); err != nil {
		return err
	}
	if !t.StartDate.IsValid() {
		return invalidTerms("start_date", "is not a valid date")
	}
	return nil
}

// ComputeSchedule derives interest, total due and due date from the loan terms.
func ComputeSchedule(t Terms) (Schedule, error) {
	if err := t.Validate(); err != nil {
		return Schedule{}, err
	}

	calc, _ := CalculatorFor(t.LoanType)
	days, _ := t.Frequency.Days()
	principal := roundMoney(t.Principal)

	interest := roundMoney(calc.Interest(principal, t.RatePct, t.Periods))
	return Schedule{
		Interest: interest,
		TotalDue: principal.Add(interest),
		DueDate:  t.StartDate.AddDays(days * t.Periods),
	}, nil
}

// NewLoan builds a fresh loan record for a customer with nothing paid.
func NewLoan(customer string, t Terms, now time.Time) (*models.Loan, error) {
	customer = strings.TrimSpace(customer)
	if customer == "" {
		return nil, invalidTerms("customer", "is required")
	}

	sched, err := ComputeSchedule(t)
	if err != nil {
		return nil, err
	}

	return &models.Loan{
		ID:        uuid.New(),
		Customer:  customer,
		Principal: roundMoney(t.Principal),
		Rate:      t.RatePct,
		LoanType:  t.LoanType,
		Frequency: t.Frequency,
		Periods:   t.Periods,
		StartDate: t.StartDate,
		DueDate:   sched.DueDate,
		Interest:  sched.Interest,
		TotalDue:  sched.TotalDue,
		PaidTotal: decimal.Zero,
		Balance:   sched.TotalDue,
		Status:    StatusOf(sched.TotalDue, sched.DueDate, civil.DateOf(now)),
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}
