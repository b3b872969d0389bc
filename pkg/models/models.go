package models

import (
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// LoanType selects the interest formula applied to a loan.
type LoanType string

const (
	LoanTypeSimple   LoanType = "simple"
	LoanTypeCompound LoanType = "compound"
)

// Frequency is the repayment period of a loan.
type Frequency string

const (
	FrequencyDaily   Frequency = "diario"
	FrequencyWeekly  Frequency = "semanal"
	FrequencyMonthly Frequency = "mensual"
)

var frequencyDays = map[Frequency]int{
	FrequencyDaily:   1,
	FrequencyWeekly:  7,
	FrequencyMonthly: 30,
}

// Days returns the period length in days and whether the frequency is known.
func (f Frequency) Days() (int, bool) {
	d, ok := frequencyDays[f]
	return d, ok
}

// Status is the lifecycle state of a loan. It is always derived, never authoritative.
type Status string

const (
	StatusActive  Status = "activo"
	StatusOverdue Status = "en_mora"
	StatusPaid    Status = "pagado"
)

// Statuses lists every loan status in display order.
var Statuses = []Status{StatusActive, StatusPaid, StatusOverdue}

type Loan struct {
	ID        uuid.UUID       `json:"id"`
	Customer  string          `json:"customer"`
	Principal decimal.Decimal `json:"principal"`
	Rate      decimal.Decimal `json:"rate"` // percent per period
	LoanType  LoanType        `json:"loan_type"`
	Frequency Frequency       `json:"frequency"`
	Periods   int             `json:"periods"`
	StartDate civil.Date      `json:"start_date"`

	// Fixed when the loan is created.
	DueDate  civil.Date      `json:"due_date"`
	Interest decimal.Decimal `json:"interest"`
	TotalDue decimal.Decimal `json:"total_due"`

	// Recomputed from the payment history on every read.
	PaidTotal decimal.Decimal `json:"paid_total"`
	Balance   decimal.Decimal `json:"balance"`
	Status    Status          `json:"status"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Payment struct {
	ID           uuid.UUID       `json:"id"`
	LoanID       uuid.UUID       `json:"loan_id"`
	Customer     string          `json:"customer"`
	Amount       decimal.Decimal `json:"amount"`
	PaymentDate  civil.Date      `json:"payment_date"`
	RegisteredBy string          `json:"registered_by"`
	Notes        string          `json:"notes"`
	CreatedAt    time.Time       `json:"created_at"`
}

type Investor struct {
	Name      string          `json:"name"`
	Capital   decimal.Decimal `json:"capital"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Metrics is the portfolio summary shown on the dashboard.
type Metrics struct {
	AsOf             civil.Date      `json:"as_of"`
	TotalLent        decimal.Decimal `json:"total_lent"`
	TotalCollected   decimal.Decimal `json:"total_collected"`
	CollectedToday   decimal.Decimal `json:"collected_today"`
	ProjectedProfit  decimal.Decimal `json:"projected_profit"`
	AvailableCapital decimal.Decimal `json:"available_capital"`
	StatusCount      map[Status]int  `json:"status_count"`
}
