package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	"github.com/mcclellann/tradex/pkg/logger"
	"github.com/mcclellann/tradex/pkg/models"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore manages the database connection and operations for SQLite.
type SQLiteStore struct {
	db *sql.DB
}

var _ Storage = (*SQLiteStore)(nil)

// NewSQLiteStore creates a new SQLiteStore and initializes the database.
func NewSQLiteStore(dataSourceName string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("could not open database: %w", err)
	}
	// PRAGMAs are per connection.
	db.SetMaxOpenConns(1)

	// Manually enable foreign keys and WAL mode
	if _, err = db.Exec("PRAGMA foreign_keys = ON;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	if _, err = db.Exec("PRAGMA journal_mode = WAL;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("could not connect to database: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("could not initialize schema: %w", err)
	}
	logger.Info("SQLite store ready", "dsn", dataSourceName)
	return s, nil
}

// initSchema creates the tables if they don't already exist.
// Decimals and calendar dates are kept as TEXT so no precision is lost.
func (s *SQLiteStore) initSchema() error {
	const schema = `
	CREATE TABLE IF NOT EXISTS loans (
		id TEXT PRIMARY KEY,
		customer TEXT NOT NULL,
		principal TEXT NOT NULL,
		rate TEXT NOT NULL,
		loan_type TEXT NOT NULL,
		frequency TEXT NOT NULL,
		periods INTEGER NOT NULL,
		start_date TEXT NOT NULL,
		due_date TEXT NOT NULL,
		interest TEXT NOT NULL,
		total_due TEXT NOT NULL,
		paid_total TEXT NOT NULL DEFAULT '0',
		balance TEXT NOT NULL,
		status TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);
	CREATE TABLE IF NOT EXISTS payments (
		id TEXT PRIMARY KEY,
		loan_id TEXT NOT NULL,
		customer TEXT NOT NULL,
		amount TEXT NOT NULL,
		payment_date TEXT NOT NULL,
		registered_by TEXT NOT NULL DEFAULT '',
		notes TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL,
		FOREIGN KEY(loan_id) REFERENCES loans(id)
	);
	CREATE INDEX IF NOT EXISTS idx_payments_loan_id ON payments(loan_id);
	CREATE TABLE IF NOT EXISTS investors (
		name TEXT PRIMARY KEY,
		capital TEXT NOT NULL DEFAULT '0',
		updated_at DATETIME NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

const loanColumns = `id, customer, principal, rate, loan_type, frequency, periods, start_date, due_date, interest, total_due, paid_total, balance, status, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanLoan(row rowScanner) (*models.Loan, error) {
	var loan models.Loan
	var idStr, startStr, dueStr string
	if err := row.Scan(&idStr, &loan.Customer, &loan.Principal, &loan.Rate, &loan.LoanType, &loan.Frequency, &loan.Periods,
		&startStr, &dueStr, &loan.Interest, &loan.TotalDue, &loan.PaidTotal, &loan.Balance, &loan.Status, &loan.CreatedAt, &loan.UpdatedAt); err != nil {
		return nil, err
	}
	id, err := uuid.Parse(idStr)
	if err != nil {
		return nil, fmt.Errorf("invalid loan id %q: %w", idStr, err)
	}
	loan.ID = id
	if loan.StartDate, err = civil.ParseDate(startStr); err != nil {
		return nil, fmt.Errorf("invalid start date for loan %s: %w", idStr, err)
	}
	if loan.DueDate, err = civil.ParseDate(dueStr); err != nil {
		return nil, fmt.Errorf("invalid due date for loan %s: %w", idStr, err)
	}
	return &loan, nil
}

// CreateLoan inserts a new loan into the database.
func (s *SQLiteStore) CreateLoan(ctx context.Context, loan *models.Loan) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO loans (`+loanColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		loan.ID.String(), loan.Customer, loan.Principal, loan.Rate, string(loan.LoanType), string(loan.Frequency), loan.Periods,
		loan.StartDate.String(), loan.DueDate.String(), loan.Interest, loan.TotalDue, loan.PaidTotal, loan.Balance, string(loan.Status),
		loan.CreatedAt, loan.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create loan: %w", err)
	}
	return nil
}

// GetLoan retrieves a loan by its ID.
func (s *SQLiteStore) GetLoan(ctx context.Context, id uuid.UUID) (*models.Loan, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+loanColumns+` FROM loans WHERE id = ?`, id.String())
	loan, err := scanLoan(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get loan: %w", err)
	}
	return loan, nil
}

// GetAllLoans retrieves all loans in creation order.
func (s *SQLiteStore) GetAllLoans(ctx context.Context) ([]*models.Loan, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+loanColumns+` FROM loans ORDER BY created_at, rowid`)
	if err != nil {
		return nil, fmt.Errorf("failed to get all loans: %w", err)
	}
	defer rows.Close()

	var loans []*models.Loan
	for rows.Next() {
		loan, err := scanLoan(rows)
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

// SaveLoanStates rewrites the derived fields of the given loans within a transaction.
func (s *SQLiteStore) SaveLoanStates(ctx context.Context, loans []*models.Loan) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `UPDATE loans SET paid_total = ?, balance = ?, status = ?, updated_at = ? WHERE id = ?`)
	if err != nil {
		return fmt.Errorf("failed to prepare loan update: %w", err)
	}
	defer stmt.Close()

	for _, loan := range loans {
		result, err := stmt.ExecContext(ctx, loan.PaidTotal, loan.Balance, string(loan.Status), loan.UpdatedAt, loan.ID.String())
		if err != nil {
			return fmt.Errorf("failed to update loan %s: %w", loan.ID, err)
		}
		rowsAffected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to check rows affected: %w", err)
		}
		if rowsAffected == 0 {
			return fmt.Errorf("loan %s: %w", loan.ID, ErrNotFound)
		}
	}

	return tx.Commit()
}

const paymentColumns = `id, loan_id, customer, amount, payment_date, registered_by, notes, created_at`

func scanPayment(row rowScanner) (*models.Payment, error) {
	var p models.Payment
	var idStr, loanIDStr, dateStr string
	if err := row.Scan(&idStr, &loanIDStr, &p.Customer, &p.Amount, &dateStr, &p.RegisteredBy, &p.Notes, &p.CreatedAt); err != nil {
		return nil, err
	}
	var err error
	if p.ID, err = uuid.Parse(idStr); err != nil {
		return nil, fmt.Errorf("invalid payment id %q: %w", idStr, err)
	}
	if p.LoanID, err = uuid.Parse(loanIDStr); err != nil {
		return nil, fmt.Errorf("invalid loan id %q on payment %s: %w", loanIDStr, idStr, err)
	}
	if p.PaymentDate, err = civil.ParseDate(dateStr); err != nil {
		return nil, fmt.Errorf("invalid payment date on payment %s: %w", idStr, err)
	}
	return &p, nil
}

// CreatePayment appends a payment to the ledger.
func (s *SQLiteStore) CreatePayment(ctx context.Context, payment *models.Payment) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO payments (`+paymentColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		payment.ID.String(), payment.LoanID.String(), payment.Customer, payment.Amount, payment.PaymentDate.String(),
		payment.RegisteredBy, payment.Notes, payment.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create payment: %w", err)
	}
	return nil
}

func (s *SQLiteStore) queryPayments(ctx context.Context, query string, args ...any) ([]*models.Payment, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	payments := []*models.Payment{}
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan payment row: %w", err)
		}
		payments = append(payments, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration for payments: %w", err)
	}
	return payments, nil
}

// GetAllPayments retrieves every payment in registration order.
func (s *SQLiteStore) GetAllPayments(ctx context.Context) ([]*models.Payment, error) {
	payments, err := s.queryPayments(ctx, `SELECT `+paymentColumns+` FROM payments ORDER BY created_at, rowid`)
	if err != nil {
		return nil, fmt.Errorf("failed to get payments: %w", err)
	}
	return payments, nil
}

// GetPaymentsForLoan retrieves all payments for a given loan ID.
func (s *SQLiteStore) GetPaymentsForLoan(ctx context.Context, loanID uuid.UUID) ([]*models.Payment, error) {
	payments, err := s.queryPayments(ctx, `SELECT `+paymentColumns+` FROM payments WHERE loan_id = ? ORDER BY created_at, rowid`, loanID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to get payments for loan %s: %w", loanID, err)
	}
	return payments, nil
}

// GetAllInvestors retrieves all investors ordered by name.
func (s *SQLiteStore) GetAllInvestors(ctx context.Context) ([]*models.Investor, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name, capital, updated_at FROM investors ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to get investors: %w", err)
	}
	defer rows.Close()

	investors := []*models.Investor{}
	for rows.Next() {
		var inv models.Investor
		if err := rows.Scan(&inv.Name, &inv.Capital, &inv.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan investor row: %w", err)
		}
		investors = append(investors, &inv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration for investors: %w", err)
	}
	return investors, nil
}

// UpsertInvestor creates an investor or replaces its capital.
func (s *SQLiteStore) UpsertInvestor(ctx context.Context, investor *models.Investor) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO investors (name, capital, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET capital = excluded.capital, updated_at = excluded.updated_at`,
		investor.Name, investor.Capital, investor.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert investor %s: %w", investor.Name, err)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
