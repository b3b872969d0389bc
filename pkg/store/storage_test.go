package store

import (
	"context"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	"github.com/mcclellann/tradex/pkg/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var base = time.Date(2024, time.January, 1, 9, 0, 0, 0, time.UTC)

func newTestLoan(customer string, createdAt time.Time) *models.Loan {
	return &models.Loan{
		ID:        uuid.New(),
		Customer:  customer,
		Principal: decimal.RequireFromString("1000.00"),
		Rate:      decimal.RequireFromString("10"),
		LoanType:  models.LoanTypeCompound,
		Frequency: models.FrequencyWeekly,
		Periods:   4,
		StartDate: civil.Date{Year: 2024, Month: time.January, Day: 1},
		DueDate:   civil.Date{Year: 2024, Month: time.January, Day: 29},
		Interest:  decimal.RequireFromString("464.10"),
		TotalDue:  decimal.RequireFromString("1464.10"),
		PaidTotal: decimal.Zero,
		Balance:   decimal.RequireFromString("1464.10"),
		Status:    models.StatusActive,
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
	}
}

func newTestPayment(loan *models.Loan, amount string, createdAt time.Time) *models.Payment {
	return &models.Payment{
		ID:           uuid.New(),
		LoanID:       loan.ID,
		Customer:     loan.Customer,
		Amount:       decimal.RequireFromString(amount),
		PaymentDate:  civil.DateOf(createdAt),
		RegisteredBy: "operator",
		Notes:        "cash",
		CreatedAt:    createdAt,
	}
}

// testStorage exercises the behavior every Storage implementation shares.
func testStorage(t *testing.T, s Storage) {
	ctx := context.Background()

	t.Run("loans round trip", func(t *testing.T) {
		loan := newTestLoan("Ana Torres", base)
		require.NoError(t, s.CreateLoan(ctx, loan))

		got, err := s.GetLoan(ctx, loan.ID)
		require.NoError(t, err)
		assert.Equal(t, loan.ID, got.ID)
		assert.Equal(t, loan.Customer, got.Customer)
		assert.True(t, loan.Principal.Equal(got.Principal))
		assert.True(t, loan.Rate.Equal(got.Rate))
		assert.True(t, loan.TotalDue.Equal(got.TotalDue))
		assert.True(t, loan.Balance.Equal(got.Balance))
		assert.Equal(t, loan.LoanType, got.LoanType)
		assert.Equal(t, loan.Frequency, got.Frequency)
		assert.Equal(t, loan.Periods, got.Periods)
		assert.Equal(t, loan.StartDate, got.StartDate)
		assert.Equal(t, loan.DueDate, got.DueDate)
		assert.Equal(t, loan.Status, got.Status)
		assert.WithinDuration(t, loan.CreatedAt, got.CreatedAt, time.Second)

		_, err = s.GetLoan(ctx, uuid.New())
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("loans keep creation order", func(t *testing.T) {
		second := newTestLoan("Luis Pérez", base.Add(time.Hour))
		third := newTestLoan("Marta Gil", base.Add(2*time.Hour))
		require.NoError(t, s.CreateLoan(ctx, second))
		require.NoError(t, s.CreateLoan(ctx, third))

		loans, err := s.GetAllLoans(ctx)
		require.NoError(t, err)
		require.Len(t, loans, 3)
		assert.Equal(t, "Ana Torres", loans[0].Customer)
		assert.Equal(t, second.ID, loans[1].ID)
		assert.Equal(t, third.ID, loans[2].ID)
	})

	t.Run("payments are appended", func(t *testing.T) {
		loans, err := s.GetAllLoans(ctx)
		require.NoError(t, err)
		first, second := loans[0], loans[1]

		require.NoError(t, s.CreatePayment(ctx, newTestPayment(first, "100.50", base.Add(3*time.Hour))))
		require.NoError(t, s.CreatePayment(ctx, newTestPayment(second, "20.00", base.Add(4*time.Hour))))
		require.NoError(t, s.CreatePayment(ctx, newTestPayment(first, "0.25", base.Add(5*time.Hour))))

		all, err := s.GetAllPayments(ctx)
		require.NoError(t, err)
		require.Len(t, all, 3)
		assert.Equal(t, "100.50", all[0].Amount.StringFixed(2))
		assert.Equal(t, "20.00", all[1].Amount.StringFixed(2))
		assert.Equal(t, "0.25", all[2].Amount.StringFixed(2))
		assert.Equal(t, civil.DateOf(base), all[0].PaymentDate)
		assert.Equal(t, "operator", all[0].RegisteredBy)
		assert.Equal(t, "cash", all[0].Notes)

		forFirst, err := s.GetPaymentsForLoan(ctx, first.ID)
		require.NoError(t, err)
		require.Len(t, forFirst, 2)
		for _, p := range forFirst {
			assert.Equal(t, first.ID, p.LoanID)
		}

		none, err := s.GetPaymentsForLoan(ctx, uuid.New())
		require.NoError(t, err)
		assert.Empty(t, none)

		orphan := newTestPayment(newTestLoan("Nadie", base), "1.00", base)
		assert.Error(t, s.CreatePayment(ctx, orphan))
	})

	t.Run("loan states are saved together", func(t *testing.T) {
		loans, err := s.GetAllLoans(ctx)
		require.NoError(t, err)

		updated := *loans[0]
		updated.PaidTotal = decimal.RequireFromString("100.75")
		updated.Balance = decimal.RequireFromString("1363.35")
		updated.Status = models.StatusOverdue
		updated.UpdatedAt = base.Add(24 * time.Hour)
		require.NoError(t, s.SaveLoanStates(ctx, []*models.Loan{&updated}))

		got, err := s.GetLoan(ctx, updated.ID)
		require.NoError(t, err)
		assert.Equal(t, "100.75", got.PaidTotal.StringFixed(2))
		assert.Equal(t, "1363.35", got.Balance.StringFixed(2))
		assert.Equal(t, models.StatusOverdue, got.Status)
		assert.Equal(t, loans[0].Customer, got.Customer, "only derived fields change")
		assert.True(t, loans[0].TotalDue.Equal(got.TotalDue))

		ghost := newTestLoan("Nadie", base)
		assert.ErrorIs(t, s.SaveLoanStates(ctx, []*models.Loan{ghost}), ErrNotFound)

		require.NoError(t, s.SaveLoanStates(ctx, nil))
	})

	t.Run("investors upsert", func(t *testing.T) {
		require.NoError(t, s.UpsertInvestor(ctx, &models.Investor{Name: "Fred", Capital: decimal.Zero, UpdatedAt: base}))
		require.NoError(t, s.UpsertInvestor(ctx, &models.Investor{Name: "Lucia", Capital: decimal.RequireFromString("250.10"), UpdatedAt: base}))
		require.NoError(t, s.UpsertInvestor(ctx, &models.Investor{Name: "Fred", Capital: decimal.RequireFromString("5000"), UpdatedAt: base.Add(time.Hour)}))

		investors, err := s.GetAllInvestors(ctx)
		require.NoError(t, err)
		require.Len(t, investors, 2)
		assert.Equal(t, "Fred", investors[0].Name)
		assert.Equal(t, "5000.00", investors[0].Capital.StringFixed(2))
		assert.Equal(t, "Lucia", investors[1].Name)
		assert.Equal(t, "250.10", investors[1].Capital.StringFixed(2))
	})
}
