package ledger

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/mcclellann/loankart/pkg/amortization"
	"github.com/mcclellann/loankart/pkg/metrics"
	"github.com/mcclellann/loankart/pkg/models"
	"github.com/mcclellann/loankart/pkg/notify"
	"github.com/mcclellann/loankart/pkg/schedule"
	"github.com/mcclellann/loankart/pkg/store"
)

const defaultPaymentMethod = "online"

// MaxTermMonths is the longest term an application may request.
const MaxTermMonths = 600

var (
	ErrLoanNotFound          = errors.New("loan not found")
	ErrScheduleAlreadyExists = errors.New("payment schedule already exists")
	ErrPaymentNotFound       = errors.New("payment not found")
	ErrPaymentAlreadySettled = errors.New("payment already settled")
	ErrInvalidTransition     = errors.New("invalid loan status transition")
	ErrOutstandingLoan       = errors.New("an existing loan has no settled payment yet")
	ErrInvalidApplication    = errors.New("invalid loan application")
)

// Caller identifies who is acting. Admins may read any loan; borrowers only their own.
type Caller struct {
	UserID uuid.UUID
	Admin  bool
}

// Ledger handles the business logic for loan applications and their payment schedules.
type Ledger struct {
	storage  store.Storage
	notifier notify.Notifier
	logger   *logrus.Logger
	now      func() time.Time
}

// NewLedger creates a new Ledger with a given Storage implementation.
func NewLedger(s store.Storage, n notify.Notifier, logger *logrus.Logger) *Ledger {
	return &Ledger{
		storage:  s,
		notifier: n,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC().Truncate(time.Second) },
	}
}

// ApplyRequest carries an applicant's requested terms.
type ApplyRequest struct {
	Amount       float64         `json:"amount"`
	InterestRate float64         `json:"interestRate"`
	Term         int             `json:"term"`
	Type         models.LoanType `json:"type"`
	Income       float64         `json:"income"`
	Employment   string          `json:"employment"`
	Purpose      string          `json:"purpose"`
}

// ApplyLoan records a new submitted application for owner with its monthly payment fixed.
// An owner may not apply while any open loan has no paid installment.
func (l *Ledger) ApplyLoan(ctx context.Context, owner uuid.UUID, req ApplyRequest) (loan *models.Loan, quote amortization.Quote, err error) {
	defer func() { metrics.IncLoanApplication(err) }()

	if !req.Type.Valid() {
		return nil, quote, fmt.Errorf("%w: unknown loan type %q", ErrInvalidApplication, req.Type)
	}
	if req.Income < 0 || math.IsNaN(req.Income) || math.IsInf(req.Income, 0) {
		return nil, quote, fmt.Errorf("%w: income must be a non-negative number", ErrInvalidApplication)
	}
	if req.Term > MaxTermMonths {
		return nil, quote, fmt.Errorf("%w: term may not exceed %d months", ErrInvalidApplication, MaxTermMonths)
	}
	quote, err = amortization.NewQuote(req.Amount, req.InterestRate, req.Term)
	if err != nil {
		return nil, quote, err
	}

	if err := l.checkOutstanding(ctx, owner); err != nil {
		return nil, quote, err
	}

	now := l.now()
	loan = &models.Loan{
		ID:             uuid.New(),
		OwnerID:        owner,
		Amount:         req.Amount,
		InterestRate:   req.InterestRate,
		Term:           req.Term,
		Type:           req.Type,
		Status:         models.LoanStatusSubmitted,
		MonthlyPayment: quote.MonthlyPayment,
		Income:         req.Income,
		Employment:     strings.TrimSpace(req.Employment),
		Purpose:        strings.TrimSpace(req.Purpose),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := l.storage.CreateLoan(ctx, loan); err != nil {
		return nil, quote, fmt.Errorf("failed to store loan: %w", err)
	}

	l.logger.WithFields(logrus.Fields{
		"loan_id": loan.ID,
		"user_id": owner,
		"amount":  loan.Amount,
		"term":    loan.Term,
	}).Info("loan application submitted")
	return loan, quote, nil
}

func (l *Ledger) checkOutstanding(ctx context.Context, owner uuid.UUID) error {
	loans, err := l.storage.ListLoansByOwner(ctx, owner)
	if err != nil {
		return fmt.Errorf("failed to list loans: %w", err)
	}
	for _, existing := range loans {
		if !existing.Status.Open() {
			continue
		}
		paid, err := l.storage.CountPaidPayments(ctx, existing.ID)
		if err != nil {
			return fmt.Errorf("failed to count payments for loan %s: %w", existing.ID, err)
		}
		if paid == 0 {
			return fmt.Errorf("%w: loan %s is %s", ErrOutstandingLoan, existing.ID, existing.Status)
		}
	}
	return nil
}

func (l *Ledger) transition(ctx context.Context, id uuid.UUID, to models.LoanStatus) (*models.Loan, error) {
	err := l.storage.TransitionLoan(ctx, id, models.LoanStatusesFrom(to), to, l.now())
	switch {
	case errors.Is(err, store.ErrNotFound):
		return nil, ErrLoanNotFound
	case errors.Is(err, store.ErrStaleStatus):
		return nil, fmt.Errorf("%w: cannot move loan %s to %s", ErrInvalidTransition, id, to)
	case err != nil:
		return nil, err
	}
	metrics.IncLoanTransition(string(to))
	l.logger.WithFields(logrus.Fields{"loan_id": id, "status": to}).Info("loan status changed")
	return l.getLoan(ctx, id)
}

// ReviewLoan moves a submitted application into review.
func (l *Ledger) ReviewLoan(ctx context.Context, id uuid.UUID) (*models.Loan, error) {
	return l.transition(ctx, id, models.LoanStatusReview)
}

// RejectLoan rejects a submitted or in-review application.
func (l *Ledger) RejectLoan(ctx context.Context, id uuid.UUID) (*models.Loan, error) {
	return l.transition(ctx, id, models.LoanStatusRejected)
}

// ApproveLoan approves the application and generates its payment schedule,
// anchored at the approval time. Both happen in one storage transaction; a
// loan that already has a schedule yields ErrScheduleAlreadyExists.
func (l *Ledger) ApproveLoan(ctx context.Context, id uuid.UUID) (payments []*models.Payment, err error) {
	defer func() { metrics.IncScheduleGenerate(err) }()

	loan, err := l.getLoan(ctx, id)
	if err != nil {
		return nil, err
	}

	anchor := l.now()
	payments, err = schedule.Generate(loan, anchor)
	if err != nil {
		return nil, err
	}

	err = l.storage.ApproveLoan(ctx, id, models.LoanStatusesFrom(models.LoanStatusApproved), payments, anchor)
	switch {
	case errors.Is(err, store.ErrLedgerExists):
		return nil, ErrScheduleAlreadyExists
	case errors.Is(err, store.ErrNotFound):
		return nil, ErrLoanNotFound
	case errors.Is(err, store.ErrStaleStatus):
		return nil, fmt.Errorf("%w: loan %s is %s", ErrInvalidTransition, id, loan.Status)
	case err != nil:
		return nil, fmt.Errorf("failed to store schedule: %w", err)
	}

	metrics.IncLoanTransition(string(models.LoanStatusApproved))
	l.logger.WithFields(logrus.Fields{
		"loan_id":  id,
		"payments": len(payments),
		"anchor":   anchor,
	}).Info("loan approved and schedule generated")
	return payments, nil
}

// UpdateLoanStatus applies an admin decision. Only review, approved and
// rejected may be requested; active follows from the first settlement.
func (l *Ledger) UpdateLoanStatus(ctx context.Context, id uuid.UUID, status models.LoanStatus) (*models.Loan, error) {
	switch status {
	case models.LoanStatusReview:
		return l.ReviewLoan(ctx, id)
	case models.LoanStatusRejected:
		return l.RejectLoan(ctx, id)
	case models.LoanStatusApproved:
		if _, err := l.ApproveLoan(ctx, id); err != nil {
			return nil, err
		}
		return l.getLoan(ctx, id)
	}
	return nil, fmt.Errorf("%w: %q cannot be set directly", ErrInvalidTransition, status)
}

func (l *Ledger) getLoan(ctx context.Context, id uuid.UUID) (*models.Loan, error) {
	loan, err := l.storage.GetLoan(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrLoanNotFound
	}
	return loan, err
}

// GetLoan retrieves a loan visible to caller. Another borrower's loan reads as not found.
func (l *Ledger) GetLoan(ctx context.Context, caller Caller, id uuid.UUID) (*models.Loan, error) {
	loan, err := l.getLoan(ctx, id)
	if err != nil {
		return nil, err
	}
	if !caller.Admin && loan.OwnerID != caller.UserID {
		return nil, ErrLoanNotFound
	}
	return loan, nil
}

// LoanView is a loan with its UI progress percentage.
type LoanView struct {
	*models.Loan
	Progress int `json:"progress"`
}

func viewOf(loan *models.Loan) *LoanView {
	return &LoanView{Loan: loan, Progress: loan.Status.Progress()}
}

// ListLoans returns the owner's loans, newest first.
func (l *Ledger) ListLoans(ctx context.Context, owner uuid.UUID) ([]*LoanView, error) {
	loans, err := l.storage.ListLoansByOwner(ctx, owner)
	if err != nil {
		return nil, err
	}
	views := make([]*LoanView, 0, len(loans))
	for _, loan := range loans {
		views = append(views, viewOf(loan))
	}
	return views, nil
}

// ListAllLoans returns every loan with owner details for administrators.
func (l *Ledger) ListAllLoans(ctx context.Context) ([]*store.LoanWithOwner, error) {
	return l.storage.ListLoans(ctx)
}

// ListUsers returns every registered user for administrators.
func (l *Ledger) ListUsers(ctx context.Context) ([]*models.User, error) {
	return l.storage.ListUsers(ctx)
}

// withEffectiveStatus rewrites each payment's status as of now.
func withEffectiveStatus(payments []*models.Payment, now time.Time) []*models.Payment {
	for _, p := range payments {
		p.Status = p.EffectiveStatus(now)
	}
	return payments
}

// ListPayments returns the loan's schedule ordered by payment number, with
// overdue derived for unpaid installments past their due date.
func (l *Ledger) ListPayments(ctx context.Context, caller Caller, loanID uuid.UUID) ([]*models.Payment, error) {
	if _, err := l.GetLoan(ctx, caller, loanID); err != nil {
		return nil, err
	}
	payments, err := l.storage.ListPayments(ctx, loanID)
	if err != nil {
		return nil, err
	}
	return withEffectiveStatus(payments, l.now()), nil
}

// PaymentOnDate returns the installment due on the given calendar date (UTC).
func (l *Ledger) PaymentOnDate(ctx context.Context, caller Caller, loanID uuid.UUID, date time.Time) (*models.Payment, error) {
	payments, err := l.ListPayments(ctx, caller, loanID)
	if err != nil {
		return nil, err
	}
	day := models.DateOf(date)
	for _, p := range payments {
		if models.DateOf(p.DueDate).Equal(day) {
			return p, nil
		}
	}
	return nil, ErrPaymentNotFound
}

// MarkPaid settles one of the caller's installments. Only upcoming or overdue
// payments may be settled; the write is guarded so concurrent attempts settle once.
// The first settlement moves an approved loan to active.
func (l *Ledger) MarkPaid(ctx context.Context, caller Caller, paymentID uuid.UUID, method string) (payment *models.Payment, err error) {
	defer func() { metrics.IncPaymentSettled(err) }()

	p, err := l.storage.GetPayment(ctx, paymentID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrPaymentNotFound
	}
	if err != nil {
		return nil, err
	}
	loan, err := l.getLoan(ctx, p.LoanID)
	if errors.Is(err, ErrLoanNotFound) || (err == nil && loan.OwnerID != caller.UserID) {
		return nil, ErrPaymentNotFound
	}
	if err != nil {
		return nil, err
	}

	method = strings.TrimSpace(method)
	if method == "" {
		method = defaultPaymentMethod
	}

	now := l.now()
	err = l.storage.SettlePayment(ctx, loan.ID, p.ID, method, now)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return nil, ErrPaymentNotFound
	case errors.Is(err, store.ErrStaleStatus):
		return nil, ErrPaymentAlreadySettled
	case err != nil:
		return nil, fmt.Errorf("failed to settle payment: %w", err)
	}

	fields := logrus.Fields{"loan_id": loan.ID, "payment_id": p.ID, "payment_number": p.PaymentNumber, "method": method}
	l.logger.WithFields(fields).Info("payment settled")

	if loan.Status == models.LoanStatusApproved {
		err := l.storage.TransitionLoan(ctx, loan.ID, []models.LoanStatus{models.LoanStatusApproved}, models.LoanStatusActive, now)
		switch {
		case err == nil:
			metrics.IncLoanTransition(string(models.LoanStatusActive))
			l.logger.WithFields(fields).Info("loan activated on first settlement")
		case !errors.Is(err, store.ErrStaleStatus):
			l.logger.WithFields(fields).WithError(err).Warn("failed to activate loan")
		}
	}

	p.Status = models.PaymentStatusPaid
	p.PaidDate = &now
	p.PaymentMethod = method
	return p, nil
}

// LoanSummary aggregates a loan's schedule for the loan details view.
type LoanSummary struct {
	LoanID   uuid.UUID          `json:"loan_id"`
	Status   models.LoanStatus  `json:"status"`
	Progress int                `json:"progress"`
	Quote    amortization.Quote `json:"quote"`
	models.LedgerSummary
}

// Summary reports counts by effective status, the paid fraction and the
// loan's progress percentage.
func (l *Ledger) Summary(ctx context.Context, caller Caller, loanID uuid.UUID) (*LoanSummary, error) {
	loan, err := l.GetLoan(ctx, caller, loanID)
	if err != nil {
		return nil, err
	}
	payments, err := l.storage.ListPayments(ctx, loanID)
	if err != nil {
		return nil, err
	}
	quote, err := amortization.NewQuote(loan.Amount, loan.InterestRate, loan.Term)
	if err != nil {
		return nil, err
	}
	return &LoanSummary{
		LoanID:        loan.ID,
		Status:        loan.Status,
		Progress:      loan.Status.Progress(),
		Quote:         quote,
		LedgerSummary: models.Summarize(payments, loan.Term, l.now()),
	}, nil
}

// Dashboard is the borrower's overview across all their loans.
type Dashboard struct {
	TotalLoans  int               `json:"total_loans"`
	Approved    int               `json:"approved"` // approved or active
	Pending     int               `json:"pending"`  // submitted or in review
	Rejected    int               `json:"rejected"`
	Overdue     int               `json:"overdue_payments"`
	NextPayment *models.Payment   `json:"next_payment,omitempty"`
	Loans       []*DashboardEntry `json:"loans"`
}

type DashboardEntry struct {
	*LoanView
	Summary models.LedgerSummary `json:"summary"`
}

// Dashboard counts the owner's loans by status group and finds the earliest unpaid installment.
func (l *Ledger) Dashboard(ctx context.Context, owner uuid.UUID) (*Dashboard, error) {
	loans, err := l.storage.ListLoansByOwner(ctx, owner)
	if err != nil {
		return nil, err
	}
	now := l.now()
	d := &Dashboard{TotalLoans: len(loans), Loans: make([]*DashboardEntry, 0, len(loans))}
	for _, loan := range loans {
		switch loan.Status {
		case models.LoanStatusApproved, models.LoanStatusActive:
			d.Approved++
		case models.LoanStatusSubmitted, models.LoanStatusReview:
			d.Pending++
		case models.LoanStatusRejected:
			d.Rejected++
		}

		payments, err := l.storage.ListPayments(ctx, loan.ID)
		if err != nil {
			return nil, err
		}
		withEffectiveStatus(payments, now)
		entry := &DashboardEntry{LoanView: viewOf(loan), Summary: models.Summarize(payments, loan.Term, now)}
		d.Overdue += entry.Summary.Overdue
		d.Loans = append(d.Loans, entry)

		for _, p := range payments {
			if p.Status == models.PaymentStatusPaid {
				continue
			}
			if d.NextPayment == nil || p.DueDate.Before(d.NextPayment.DueDate) {
				d.NextPayment = p
			}
			break
		}
	}
	return d, nil
}

// SweepOverdue persists overdue on every upcoming payment whose due date has passed.
func (l *Ledger) SweepOverdue(ctx context.Context) (int64, error) {
	n, err := l.storage.MarkOverdue(ctx, models.DateOf(l.now()))
	if err != nil {
		return 0, err
	}
	metrics.AddOverdueMarked(n)
	l.logger.WithField("marked", n).Info("overdue sweep finished")
	return n, nil
}

// SendReminders notifies borrowers of unpaid installments that are overdue or
// fall due within the next days calendar days. Delivery failures are collected
// and do not stop the run.
func (l *Ledger) SendReminders(ctx context.Context, days int) (int, error) {
	now := l.now()
	cutoff := models.DateOf(now).AddDate(0, 0, days+1)
	due, err := l.storage.ListOpenPaymentsDueBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}

	sent := 0
	var errs []error
	for _, d := range due {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		r := notify.Reminder{
			To:            d.OwnerEmail,
			Name:          d.OwnerName,
			LoanID:        d.LoanID.String(),
			PaymentNumber: d.PaymentNumber,
			DueDate:       d.DueDate,
			Amount:        d.Amount,
			Overdue:       d.EffectiveStatus(now) == models.PaymentStatusOverdue,
		}
		if err := l.notifier.SendPaymentReminder(ctx, r); err != nil {
			metrics.IncReminder(metrics.ResultError)
			errs = append(errs, fmt.Errorf("payment %s: %w", d.ID, err))
			continue
		}
		metrics.IncReminder(metrics.ResultSuccess)
		sent++
	}

	l.logger.WithFields(logrus.Fields{"sent": sent, "failed": len(errs), "candidates": len(due)}).Info("payment reminders processed")
	return sent, errors.Join(errs...)
}
