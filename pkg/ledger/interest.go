package ledger

import (
	"fmt"

	"github.com/mcclellann/tradex/pkg/models"
	"github.com/shopspring/decimal"
)

var (
	one     = decimal.NewFromInt(1)
	hundred = decimal.NewFromInt(100)
)

// InterestCalculator computes the interest owed over the whole life of a loan.
type InterestCalculator interface {
	LoanType() models.LoanType
	Interest(principal, ratePct decimal.Decimal, periods int) decimal.Decimal
}

// SimpleInterest accrues a flat rate on the principal every period.
type SimpleInterest struct{}

var _ InterestCalculator = SimpleInterest{}

func (SimpleInterest) LoanType() models.LoanType { return models.LoanTypeSimple }

func (SimpleInterest) Interest(principal, ratePct decimal.Decimal, periods int) decimal.Decimal {
	return principal.Mul(ratePct.Div(hundred)).Mul(decimal.NewFromInt(int64(periods)))
}

// CompoundInterest capitalizes the rate once per period.
type CompoundInterest struct{}

var _ InterestCalculator = CompoundInterest{}

func (CompoundInterest) LoanType() models.LoanType { return models.LoanTypeCompound }

func (CompoundInterest) Interest(principal, ratePct decimal.Decimal, periods int) decimal.Decimal {
	factor := one.Add(ratePct.Div(hundred)).Pow(decimal.NewFromInt(int64(periods)))
	return principal.Mul(factor.Sub(one))
}

var calculators = map[models.LoanType]InterestCalculator{
	SimpleInterest{}.LoanType():   SimpleInterest{},
	CompoundInterest{}.LoanType(): CompoundInterest{},
}

// CalculatorFor returns the interest calculator for a loan type.
func CalculatorFor(t models.LoanType) (InterestCalculator, error) {
	c, ok := calculators[t]
	if !ok {
		return nil, invalidTerms("loan_type", fmt.Sprintf("must be simple or compound, got %q", t))
	}
	return c, nil
}
