package ledger

import (
	"cloud.google.com/go/civil"
	"github.com/mcclellann/tradex/pkg/models"
	"github.com/shopspring/decimal"
)

// PortfolioMetrics aggregates already derived loans, the payment history and
// investor capital into the dashboard summary.
func PortfolioMetrics(loans []*models.Loan, payments []*models.Payment, investors []*models.Investor, asOf civil.Date) models.Metrics {
	m := models.Metrics{
		AsOf:        asOf,
		StatusCount: make(map[models.Status]int, len(models.Statuses)),
	}
	for _, s := range models.Statuses {
		m.StatusCount[s] = 0
	}

	lent, profit, outstanding := decimal.Zero, decimal.Zero, decimal.Zero
	for _, l := range loans {
		lent = lent.Add(l.Principal)
		profit = profit.Add(l.TotalDue.Sub(l.Principal))
		if l.Status != models.StatusPaid {
			outstanding = outstanding.Add(l.Balance)
		}
		m.StatusCount[l.Status]++
	}

	collected, collectedToday := decimal.Zero, decimal.Zero
	for _, p := range payments {
		collected = collected.Add(p.Amount)
		if p.PaymentDate == asOf {
			collectedToday = collectedToday.Add(p.Amount)
		}
	}

	capital := decimal.Zero
	for _, inv := range investors {
		capital = capital.Add(inv.Capital)
	}

	m.TotalLent = roundMoney(lent)
	m.TotalCollected = roundMoney(collected)
	m.CollectedToday = roundMoney(collectedToday)
	m.ProjectedProfit = roundMoney(profit)
	m.AvailableCapital = roundMoney(capital.Sub(outstanding))
	return m
}
