package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"

	"github.com/mcclellann/loankart/pkg/models"
)

var _ Storage = (*SQLiteStore)(nil)

// SQLiteStore manages the database connection and operations for SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLiteStore and initializes the database.
func NewSQLiteStore(dataSourceName string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("could not open database: %w", err)
	}
	// A single connection keeps the PRAGMAs below in effect for every statement
	// and serializes writers, which is what SQLite does anyway.
	db.SetMaxOpenConns(1)

	if _, err = db.Exec("PRAGMA foreign_keys = ON;"); err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	if _, err = db.Exec("PRAGMA journal_mode = WAL;"); err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("could not connect to database: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		return nil, fmt.Errorf("could not initialize schema: %w", err)
	}
	logrus.WithField("dsn", dataSourceName).Info("database connection established and schema initialized")
	return s, nil
}

// initSchema creates the tables if they don't already exist and adds columns
// introduced after the first release.
// Amounts are REAL; times are UTC truncated to the second so stored values sort as text.
func (s *SQLiteStore) initSchema() error {
	const schema = `
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		email TEXT NOT NULL UNIQUE,
		password_hash TEXT NOT NULL,
		first_name TEXT NOT NULL DEFAULT '',
		last_name TEXT NOT NULL DEFAULT '',
		role TEXT NOT NULL DEFAULT 'user',
		created_at DATETIME NOT NULL
	);
	CREATE TABLE IF NOT EXISTS loans (
		id TEXT PRIMARY KEY,
		owner_id TEXT NOT NULL,
		amount REAL NOT NULL CHECK (amount > 0),
		interest_rate REAL NOT NULL CHECK (interest_rate >= 0),
		term INTEGER NOT NULL CHECK (term >= 1),
		type TEXT NOT NULL,
		status TEXT NOT NULL,
		monthly_payment REAL NOT NULL,
		approved_at DATETIME,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		FOREIGN KEY(owner_id) REFERENCES users(id)
	);
	CREATE INDEX IF NOT EXISTS idx_loans_owner ON loans(owner_id);
	CREATE TABLE IF NOT EXISTS payments (
		id TEXT PRIMARY KEY,
		loan_id TEXT NOT NULL,
		amount REAL NOT NULL,
		due_date DATETIME NOT NULL,
		paid_date DATETIME,
		status TEXT NOT NULL,
		payment_method TEXT,
		payment_number INTEGER NOT NULL,
		UNIQUE(loan_id, payment_number),
		FOREIGN KEY(loan_id) REFERENCES loans(id)
	);
	CREATE INDEX IF NOT EXISTS idx_payments_due ON payments(status, due_date);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return err
	}

	columns := []string{
		"income REAL NOT NULL DEFAULT 0",
		"employment TEXT NOT NULL DEFAULT ''",
		"purpose TEXT NOT NULL DEFAULT ''",
	}
	for _, col := range columns {
		_, err := s.db.Exec(fmt.Sprintf("ALTER TABLE loans ADD COLUMN %s", col))
		if err != nil && !isDuplicateColumnError(err) {
			return fmt.Errorf("failed to add column %s: %w", col, err)
		}
	}
	return nil
}

func isDuplicateColumnError(err error) bool {
	return err != nil && strings.HasPrefix(err.Error(), "duplicate column name")
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	return errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
}

func dbTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Second)
}

func dbNullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return dbTime(*t)
}

func statusArgs[T ~string](statuses []T) (string, []any) {
	marks := make([]string, len(statuses))
	args := make([]any, len(statuses))
	for i, st := range statuses {
		marks[i] = "?"
		args[i] = string(st)
	}
	return strings.Join(marks, ", "), args
}

// CreateUser inserts a new user. Emails are unique; a duplicate yields ErrEmailTaken.
func (s *SQLiteStore) CreateUser(ctx context.Context, user *models.User) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (id, email, password_hash, first_name, last_name, role, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		user.ID.String(), user.Email, user.PasswordHash, user.FirstName, user.LastName, string(user.Role), dbTime(user.CreatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrEmailTaken
		}
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

const userColumns = `id, email, password_hash, first_name, last_name, role, created_at`

func scanUser(row interface{ Scan(...any) error }) (*models.User, error) {
	var user models.User
	var idStr, role string
	if err := row.Scan(&idStr, &user.Email, &user.PasswordHash, &user.FirstName, &user.LastName, &role, &user.CreatedAt); err != nil {
		return nil, err
	}
	user.ID = uuid.MustParse(idStr)
	user.Role = models.Role(role)
	return &user, nil
}

// GetUserByEmail retrieves a user by email address.
func (s *SQLiteStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	user, err := scanUser(s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE email = ?`, email))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

// GetUserByID retrieves a user by ID.
func (s *SQLiteStore) GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	user, err := scanUser(s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id.String()))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

// ListUsers returns every user, newest first.
func (s *SQLiteStore) ListUsers(ctx context.Context) ([]*models.User, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+userColumns+` FROM users ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var users []*models.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user row: %w", err)
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration: %w", err)
	}
	return users, nil
}

// CreateLoan inserts a new loan application.
func (s *SQLiteStore) CreateLoan(ctx context.Context, loan *models.Loan) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO loans (id, owner_id, amount, interest_rate, term, type, status, monthly_payment, income, employment, purpose, approved_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		loan.ID.String(), loan.OwnerID.String(), loan.Amount, loan.InterestRate, loan.Term, string(loan.Type), string(loan.Status),
		loan.MonthlyPayment, loan.Income, loan.Employment, loan.Purpose, dbNullTime(loan.ApprovedAt), dbTime(loan.CreatedAt), dbTime(loan.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to create loan: %w", err)
	}
	return nil
}

const loanColumns = `l.id, l.owner_id, l.amount, l.interest_rate, l.term, l.type, l.status, l.monthly_payment, l.income, l.employment, l.purpose, l.approved_at, l.created_at, l.updated_at`

func scanLoan(row interface{ Scan(...any) error }, extra ...any) (*models.Loan, error) {
	var loan models.Loan
	var idStr, ownerStr, loanType, status string
	var approvedAt sql.NullTime
	dest := []any{&idStr, &ownerStr, &loan.Amount, &loan.InterestRate, &loan.Term, &loanType, &status,
		&loan.MonthlyPayment, &loan.Income, &loan.Employment, &loan.Purpose, &approvedAt, &loan.CreatedAt, &loan.UpdatedAt}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}
	loan.ID = uuid.MustParse(idStr)
	loan.OwnerID = uuid.MustParse(ownerStr)
	loan.Type = models.LoanType(loanType)
	loan.Status = models.LoanStatus(status)
	if approvedAt.Valid {
		loan.ApprovedAt = &approvedAt.Time
	}
	return &loan, nil
}

// GetLoan retrieves a loan by its ID.
func (s *SQLiteStore) GetLoan(ctx context.Context, id uuid.UUID) (*models.Loan, error) {
	loan, err := scanLoan(s.db.QueryRowContext(ctx, `SELECT `+loanColumns+` FROM loans l WHERE l.id = ?`, id.String()))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get loan: %w", err)
	}
	return loan, nil
}

// ListLoansByOwner returns the owner's loans, newest first.
func (s *SQLiteStore) ListLoansByOwner(ctx context.Context, ownerID uuid.UUID) ([]*models.Loan, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+loanColumns+` FROM loans l WHERE l.owner_id = ? ORDER BY l.created_at DESC`, ownerID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to list loans for owner %s: %w", ownerID, err)
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

// ListLoans returns every loan with its owner's contact details, newest first.
func (s *SQLiteStore) ListLoans(ctx context.Context) ([]*LoanWithOwner, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+loanColumns+`, u.email, u.first_name, u.last_name
		FROM loans l JOIN users u ON u.id = l.owner_id
		ORDER BY l.created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list loans: %w", err)
	}
	defer rows.Close()

	var loans []*LoanWithOwner
	for rows.Next() {
		var email, first, last string
		loan, err := scanLoan(rows, &email, &first, &last)
		if err != nil {
			return nil, fmt.Errorf("failed to scan loan row: %w", err)
		}
		loans = append(loans, &LoanWithOwner{Loan: loan, OwnerEmail: email, OwnerName: strings.TrimSpace(first + " " + last)})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration: %w", err)
	}
	return loans, nil
}

// loanStatusMiss explains why a guarded loan update matched no row.
func loanStatusMiss(ctx context.Context, q interface {
	QueryRowContext(context.Context, string, ...any) *sql.Row
}, id uuid.UUID) error {
	var n int
	if err := q.QueryRowContext(ctx, `SELECT COUNT(*) FROM loans WHERE id = ?`, id.String()).Scan(&n); err != nil {
		return fmt.Errorf("failed to check loan: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return ErrStaleStatus
}

// TransitionLoan sets the loan's status to `to` only if it is currently one of `from`.
func (s *SQLiteStore) TransitionLoan(ctx context.Context, id uuid.UUID, from []models.LoanStatus, to models.LoanStatus, at time.Time) error {
	marks, args := statusArgs(from)
	result, err := s.db.ExecContext(ctx,
		`UPDATE loans SET status = ?, updated_at = ? WHERE id = ? AND status IN (`+marks+`)`,
		append([]any{string(to), dbTime(at), id.String()}, args...)...,
	)
	if err != nil {
		return fmt.Errorf("failed to update loan status: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return loanStatusMiss(ctx, s.db, id)
	}
	return nil
}

// ApproveLoan approves the loan and inserts its payment ledger within a single transaction.
func (s *SQLiteStore) ApproveLoan(ctx context.Context, id uuid.UUID, from []models.LoanStatus, payments []*models.Payment, at time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var existing int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM payments WHERE loan_id = ?`, id.String()).Scan(&existing); err != nil {
		return fmt.Errorf("failed to count payments: %w", err)
	}
	if existing > 0 {
		return ErrLedgerExists
	}

	marks, args := statusArgs(from)
	approvedAt := dbTime(at)
	result, err := tx.ExecContext(ctx,
		`UPDATE loans SET status = ?, approved_at = ?, updated_at = ? WHERE id = ? AND status IN (`+marks+`)`,
		append([]any{string(models.LoanStatusApproved), approvedAt, approvedAt, id.String()}, args...)...,
	)
	if err != nil {
		return fmt.Errorf("failed to approve loan: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return loanStatusMiss(ctx, tx, id)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO payments (id, loan_id, amount, due_date, paid_date, status, payment_method, payment_number)
		VALUES (?, ?, ?, ?, NULL, ?, NULL, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare payment insert: %w", err)
	}
	defer stmt.Close()

	for _, p := range payments {
		if p.LoanID != id {
			return fmt.Errorf("payment %d belongs to loan %s, not %s", p.PaymentNumber, p.LoanID, id)
		}
		if _, err := stmt.ExecContext(ctx, p.ID.String(), id.String(), p.Amount, dbTime(p.DueDate), string(p.Status), p.PaymentNumber); err != nil {
			if isUniqueViolation(err) {
				return ErrLedgerExists
			}
			return fmt.Errorf("failed to insert payment %d: %w", p.PaymentNumber, err)
		}
	}

	return tx.Commit()
}

const paymentColumns = `p.id, p.loan_id, p.amount, p.due_date, p.paid_date, p.status, p.payment_method, p.payment_number`

func scanPayment(row interface{ Scan(...any) error }, extra ...any) (*models.Payment, error) {
	var p models.Payment
	var idStr, loanStr, status string
	var paidDate sql.NullTime
	var method sql.NullString
	dest := []any{&idStr, &loanStr, &p.Amount, &p.DueDate, &paidDate, &status, &method, &p.PaymentNumber}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}
	p.ID = uuid.MustParse(idStr)
	p.LoanID = uuid.MustParse(loanStr)
	p.Status = models.PaymentStatus(status)
	p.PaymentMethod = method.String
	if paidDate.Valid {
		p.PaidDate = &paidDate.Time
	}
	return &p, nil
}

// GetPayment retrieves a payment by its ID.
func (s *SQLiteStore) GetPayment(ctx context.Context, id uuid.UUID) (*models.Payment, error) {
	p, err := scanPayment(s.db.QueryRowContext(ctx, `SELECT `+paymentColumns+` FROM payments p WHERE p.id = ?`, id.String()))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get payment: %w", err)
	}
	return p, nil
}

// ListPayments returns the loan's ledger ordered by payment number.
func (s *SQLiteStore) ListPayments(ctx context.Context, loanID uuid.UUID) ([]*models.Payment, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+paymentColumns+` FROM payments p WHERE p.loan_id = ? ORDER BY p.payment_number ASC`, loanID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to get payments for loan %s: %w", loanID, err)
	}
	defer rows.Close()

	var payments []*models.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan payment row: %w", err)
		}
		payments = append(payments, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration for loan payments: %w", err)
	}
	return payments, nil
}

// CountPaidPayments returns how many of the loan's payments are settled.
func (s *SQLiteStore) CountPaidPayments(ctx context.Context, loanID uuid.UUID) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM payments WHERE loan_id = ? AND status = ?`,
		loanID.String(), string(models.PaymentStatusPaid),
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count paid payments: %w", err)
	}
	return n, nil
}

// SettlePayment marks an unsettled payment of the given loan as paid.
// It returns ErrNotFound if no such payment exists and ErrStaleStatus if it is already paid.
func (s *SQLiteStore) SettlePayment(ctx context.Context, loanID, paymentID uuid.UUID, method string, paidAt time.Time) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE payments SET status = ?, paid_date = ?, payment_method = ?
		WHERE id = ? AND loan_id = ? AND status IN (?, ?)`,
		string(models.PaymentStatusPaid), dbTime(paidAt), method, paymentID.String(), loanID.String(),
		string(models.PaymentStatusUpcoming), string(models.PaymentStatusOverdue),
	)
	if err != nil {
		return fmt.Errorf("failed to settle payment: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected > 0 {
		return nil
	}

	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM payments WHERE id = ? AND loan_id = ?`, paymentID.String(), loanID.String()).Scan(&n); err != nil {
		return fmt.Errorf("failed to check payment: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return ErrStaleStatus
}

// MarkOverdue persists overdue for every upcoming payment due before cutoff.
func (s *SQLiteStore) MarkOverdue(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		`UPDATE payments SET status = ? WHERE status = ? AND due_date < ?`,
		string(models.PaymentStatusOverdue), string(models.PaymentStatusUpcoming), dbTime(cutoff),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to mark overdue payments: %w", err)
	}
	return result.RowsAffected()
}

// ListOpenPaymentsDueBefore returns unsettled payments due before cutoff with
// their borrowers' contact details, earliest first.
func (s *SQLiteStore) ListOpenPaymentsDueBefore(ctx context.Context, cutoff time.Time) ([]*DuePayment, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+paymentColumns+`, u.email, u.first_name, u.last_name
		FROM payments p
		JOIN loans l ON l.id = p.loan_id
		JOIN users u ON u.id = l.owner_id
		WHERE p.status IN (?, ?) AND p.due_date < ?
		ORDER BY p.due_date ASC, p.payment_number ASC`,
		string(models.PaymentStatusUpcoming), string(models.PaymentStatusOverdue), dbTime(cutoff),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list due payments: %w", err)
	}
	defer rows.Close()

	var due []*DuePayment
	for rows.Next() {
		var email, first, last string
		p, err := scanPayment(rows, &email, &first, &last)
		if err != nil {
			return nil, fmt.Errorf("failed to scan payment row: %w", err)
		}
		due = append(due, &DuePayment{Payment: p, OwnerEmail: email, OwnerName: strings.TrimSpace(first + " " + last)})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration: %w", err)
	}
	return due, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
