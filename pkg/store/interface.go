package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/mcclellann/loankart/pkg/models"
)

var (
	ErrNotFound     = errors.New("record not found")
	ErrStaleStatus  = errors.New("record status changed concurrently")
	ErrLedgerExists = errors.New("payment ledger already exists for loan")
	ErrEmailTaken   = errors.New("email already registered")
)

// LoanWithOwner is a loan joined with the applicant's contact details for admin views.
type LoanWithOwner struct {
	*models.Loan
	OwnerEmail string `json:"owner_email"`
	OwnerName  string `json:"owner_name"`
}

// DuePayment is an unsettled installment with the contact details needed to remind its borrower.
type DuePayment struct {
	*models.Payment
	OwnerEmail string
	OwnerName  string
}

// Storage defines the persistence operations for users, loans and their payment ledgers.
// Status changes are compare-and-set: they succeed only from the listed prior statuses.
type Storage interface {
	CreateUser(ctx context.Context, user *models.User) error
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	ListUsers(ctx context.Context) ([]*models.User, error)

	CreateLoan(ctx context.Context, loan *models.Loan) error
	GetLoan(ctx context.Context, id uuid.UUID) (*models.Loan, error)
	ListLoansByOwner(ctx context.Context, ownerID uuid.UUID) ([]*models.Loan, error)
	ListLoans(ctx context.Context) ([]*LoanWithOwner, error)
	TransitionLoan(ctx context.Context, id uuid.UUID, from []models.LoanStatus, to models.LoanStatus, at time.Time) error
	// ApproveLoan moves the loan to approved and writes its full ledger in one
	// transaction. It fails with ErrLedgerExists if any payment row exists.
	ApproveLoan(ctx context.Context, id uuid.UUID, from []models.LoanStatus, payments []*models.Payment, at time.Time) error

	GetPayment(ctx context.Context, id uuid.UUID) (*models.Payment, error)
	ListPayments(ctx context.Context, loanID uuid.UUID) ([]*models.Payment, error)
	CountPaidPayments(ctx context.Context, loanID uuid.UUID) (int, error)
	SettlePayment(ctx context.Context, loanID, paymentID uuid.UUID, method string, paidAt time.Time) error
	MarkOverdue(ctx context.Context, cutoff time.Time) (int64, error)
	ListOpenPaymentsDueBefore(ctx context.Context, cutoff time.Time) ([]*DuePayment, error)

	Close() error
}
