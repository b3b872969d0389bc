package store

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mcclellann/tradex/pkg/logger"
	"github.com/mcclellann/tradex/pkg/models"
	"github.com/shopspring/decimal"
)

// PostgresStore keeps the ledger in PostgreSQL through a pgx connection pool.
type PostgresStore struct {
	pool *pgxpool.Pool
}

var _ Storage = (*PostgresStore)(nil)

func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("could not open database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("could not connect to database: %w", err)
	}

	s := &PostgresStore{pool: pool}
	if err := s.initSchema(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("could not initialize schema: %w", err)
	}
	logger.Info("Postgres store ready")
	return s, nil
}

func (s *PostgresStore) initSchema(ctx context.Context) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS loans (
		id uuid PRIMARY KEY,
		customer text NOT NULL,
		principal numeric NOT NULL,
		rate numeric NOT NULL,
		loan_type text NOT NULL,
		frequency text NOT NULL,
		periods integer NOT NULL,
		start_date date NOT NULL,
		due_date date NOT NULL,
		interest numeric NOT NULL,
		total_due numeric NOT NULL,
		paid_total numeric NOT NULL DEFAULT 0,
		balance numeric NOT NULL,
		status text NOT NULL,
		created_at timestamptz NOT NULL,
		updated_at timestamptz NOT NULL
	);
	CREATE TABLE IF NOT EXISTS payments (
		id uuid PRIMARY KEY,
		loan_id uuid NOT NULL REFERENCES loans(id),
		customer text NOT NULL,
		amount numeric NOT NULL,
		payment_date date NOT NULL,
		registered_by text NOT NULL DEFAULT '',
		notes text NOT NULL DEFAULT '',
		created_at timestamptz NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_payments_loan_id ON payments(loan_id);
	CREATE TABLE IF NOT EXISTS investors (
		name text PRIMARY KEY,
		capital numeric NOT NULL DEFAULT 0,
		updated_at timestamptz NOT NULL
	);
	`
	_, err := s.pool.Exec(ctx, schema)
	return err
}

// Numerics and dates travel as text so decimal and civil.Date never depend on
// pgx type registration.
const pgLoanColumns = `id::text, customer, principal::text, rate::text, loan_type, frequency, periods,
	start_date::text, due_date::text, interest::text, total_due::text, paid_total::text, balance::text, status,
	created_at, updated_at`

func scanPgLoan(row pgx.Row) (*models.Loan, error) {
	var loan models.Loan
	var id, principal, rate, loanType, frequency, start, due, interest, totalDue, paid, balance, status string
	if err := row.Scan(&id, &loan.Customer, &principal, &rate, &loanType, &frequency, &loan.Periods,
		&start, &due, &interest, &totalDue, &paid, &balance, &status, &loan.CreatedAt, &loan.UpdatedAt); err != nil {
		return nil, err
	}
	loan.LoanType = models.LoanType(loanType)
	loan.Frequency = models.Frequency(frequency)
	loan.Status = models.Status(status)

	var err error
	if loan.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("invalid loan id %q: %w", id, err)
	}
	if loan.StartDate, err = civil.ParseDate(start); err != nil {
		return nil, fmt.Errorf("invalid start date for loan %s: %w", id, err)
	}
	if loan.DueDate, err = civil.ParseDate(due); err != nil {
		return nil, fmt.Errorf("invalid due date for loan %s: %w", id, err)
	}
	for _, f := range []struct {
		dst *decimal.Decimal
		src string
	}{
		{&loan.Principal, principal},
		{&loan.Rate, rate},
		{&loan.Interest, interest},
		{&loan.TotalDue, totalDue},
		{&loan.PaidTotal, paid},
		{&loan.Balance, balance},
	} {
		if *f.dst, err = decimal.NewFromString(f.src); err != nil {
			return nil, fmt.Errorf("invalid amount %q on loan %s: %w", f.src, id, err)
		}
	}
	return &loan, nil
}

func (s *PostgresStore) CreateLoan(ctx context.Context, loan *models.Loan) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO loans (id, customer, principal, rate, loan_type, frequency, periods, start_date, due_date,
			interest, total_due, paid_total, balance, status, created_at, updated_at)
		VALUES ($1::uuid, $2, $3::numeric, $4::numeric, $5, $6, $7, $8::date, $9::date,
			$10::numeric, $11::numeric, $12::numeric, $13::numeric, $14, $15, $16)`,
		loan.ID.String(), loan.Customer, loan.Principal.String(), loan.Rate.String(), string(loan.LoanType), string(loan.Frequency), loan.Periods,
		loan.StartDate.String(), loan.DueDate.String(), loan.Interest.String(), loan.TotalDue.String(), loan.PaidTotal.String(),
		loan.Balance.String(), string(loan.Status), loan.CreatedAt, loan.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create loan: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetLoan(ctx context.Context, id uuid.UUID) (*models.Loan, error) {
	loan, err := scanPgLoan(s.pool.QueryRow(ctx, `SELECT `+pgLoanColumns+` FROM loans WHERE id = $1::uuid`, id.String()))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get loan: %w", err)
	}
	return loan, nil
}

func (s *PostgresStore) GetAllLoans(ctx context.Context) ([]*models.Loan, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+pgLoanColumns+` FROM loans ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to get all loans: %w", err)
	}
	defer rows.Close()

	var loans []*models.Loan
	for rows.Next() {
		loan, err := scanPgLoan(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan loan row: %w", err)
		}
		loans = append(loans, loan)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration: %w", err)
	}
	return loans, nil
}

// SaveLoanStates queues every update in one batch inside a transaction.
func (s *PostgresStore) SaveLoanStates(ctx context.Context, loans []*models.Loan) error {
	if len(loans) == 0 {
		return nil
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	for _, loan := range loans {
		batch.Queue(
			`UPDATE loans SET paid_total = $1::numeric, balance = $2::numeric, status = $3, updated_at = $4 WHERE id = $5::uuid`,
			loan.PaidTotal.String(), loan.Balance.String(), string(loan.Status), loan.UpdatedAt, loan.ID.String(),
		)
	}

	br := tx.SendBatch(ctx, batch)
	for _, loan := range loans {
		tag, err := br.Exec()
		if err != nil {
			br.Close()
			return fmt.Errorf("failed to update loan %s: %w", loan.ID, err)
		}
		if tag.RowsAffected() == 0 {
			br.Close()
			return fmt.Errorf("loan %s: %w", loan.ID, ErrNotFound)
		}
	}
	if err := br.Close(); err != nil {
		return fmt.Errorf("failed to close batch: %w", err)
	}
	return tx.Commit(ctx)
}

const pgPaymentColumns = `id::text, loan_id::text, customer, amount::text, payment_date::text, registered_by, notes, created_at`

func scanPgPayment(row pgx.Row) (*models.Payment, error) {
	var p models.Payment
	var id, loanID, amount, date string
	if err := row.Scan(&id, &loanID, &p.Customer, &amount, &date, &p.RegisteredBy, &p.Notes, &p.CreatedAt); err != nil {
		return nil, err
	}
	var err error
	if p.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("invalid payment id %q: %w", id, err)
	}
	if p.LoanID, err = uuid.Parse(loanID); err != nil {
		return nil, fmt.Errorf("invalid loan id %q on payment %s: %w", loanID, id, err)
	}
	if p.Amount, err = decimal.NewFromString(amount); err != nil {
		return nil, fmt.Errorf("invalid amount on payment %s: %w", id, err)
	}
	if p.PaymentDate, err = civil.ParseDate(date); err != nil {
		return nil, fmt.Errorf("invalid payment date on payment %s: %w", id, err)
	}
	return &p, nil
}

func (s *PostgresStore) CreatePayment(ctx context.Context, payment *models.Payment) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO payments (id, loan_id, customer, amount, payment_date, registered_by, notes, created_at)
		VALUES ($1::uuid, $2::uuid, $3, $4::numeric, $5::date, $6, $7, $8)`,
		payment.ID.String(), payment.LoanID.String(), payment.Customer, payment.Amount.String(),
		payment.PaymentDate.String(), payment.RegisteredBy, payment.Notes, payment.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create payment: %w", err)
	}
	return nil
}

func (s *PostgresStore) queryPayments(ctx context.Context, query string, args ...any) ([]*models.Payment, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	payments := []*models.Payment{}
	for rows.Next() {
		p, err := scanPgPayment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan payment row: %w", err)
		}
		payments = append(payments, p)
	}
	return payments, rows.Err()
}

func (s *PostgresStore) GetAllPayments(ctx context.Context) ([]*models.Payment, error) {
	payments, err := s.queryPayments(ctx, `SELECT `+pgPaymentColumns+` FROM payments ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to get payments: %w", err)
	}
	return payments, nil
}

func (s *PostgresStore) GetPaymentsForLoan(ctx context.Context, loanID uuid.UUID) ([]*models.Payment, error) {
	payments, err := s.queryPayments(ctx, `SELECT `+pgPaymentColumns+` FROM payments WHERE loan_id = $1::uuid ORDER BY created_at, id`, loanID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to get payments for loan %s: %w", loanID, err)
	}
	return payments, nil
}

func (s *PostgresStore) GetAllInvestors(ctx context.Context) ([]*models.Investor, error) {
	rows, err := s.pool.Query(ctx, `SELECT name, capital::text, updated_at FROM investors ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to get investors: %w", err)
	}
	defer rows.Close()

	investors := []*models.Investor{}
	for rows.Next() {
		var inv models.Investor
		var capital string
		if err := rows.Scan(&inv.Name, &capital, &inv.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan investor row: %w", err)
		}
		if inv.Capital, err = decimal.NewFromString(capital); err != nil {
			return nil, fmt.Errorf("invalid capital for investor %s: %w", inv.Name, err)
		}
		investors = append(investors, &inv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration for investors: %w", err)
	}
	return investors, nil
}

func (s *PostgresStore) UpsertInvestor(ctx context.Context, investor *models.Investor) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO investors (name, capital, updated_at) VALUES ($1, $2::numeric, $3)
		ON CONFLICT (name) DO UPDATE SET capital = EXCLUDED.capital, updated_at = EXCLUDED.updated_at`,
		investor.Name, investor.Capital.String(), investor.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert investor %s: %w", investor.Name, err)
	}
	return nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
