package models

import "time"

// LoanStatus is the lifecycle state of a loan application.
type LoanStatus string

const (
	LoanStatusSubmitted LoanStatus = "submitted"
	LoanStatusReview    LoanStatus = "review"
	LoanStatusApproved  LoanStatus = "approved"
	LoanStatusRejected  LoanStatus = "rejected"
	LoanStatusActive    LoanStatus = "active"
)

var loanTransitions = map[LoanStatus][]LoanStatus{
	LoanStatusSubmitted: {LoanStatusReview, LoanStatusApproved, LoanStatusRejected},
	LoanStatusReview:    {LoanStatusApproved, LoanStatusRejected},
	LoanStatusApproved:  {LoanStatusActive},
}

// Valid reports whether s is a known loan status.
func (s LoanStatus) Valid() bool {
	switch s {
	case LoanStatusSubmitted, LoanStatusReview, LoanStatusApproved, LoanStatusRejected, LoanStatusActive:
		return true
	}
	return false
}

// CanTransitionTo reports whether moving from s to next is a legal lifecycle step.
func (s LoanStatus) CanTransitionTo(next LoanStatus) bool {
	for _, allowed := range loanTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Open reports whether the loan still counts against the one-open-loan rule.
func (s LoanStatus) Open() bool {
	switch s {
	case LoanStatusSubmitted, LoanStatusReview, LoanStatusApproved, LoanStatusActive:
		return true
	}
	return false
}

// Progress is the percentage shown on application progress bars.
// It is a UI hint, not a financial figure.
func (s LoanStatus) Progress() int {
	switch s {
	case LoanStatusSubmitted:
		return 25
	case LoanStatusReview:
		return 50
	case LoanStatusApproved:
		return 75
	case LoanStatusActive, LoanStatusRejected:
		return 100
	}
	return 0
}

// LoanStatusesFrom returns the statuses from which next is reachable.
func LoanStatusesFrom(next LoanStatus) []LoanStatus {
	var from []LoanStatus
	for _, s := range []LoanStatus{LoanStatusSubmitted, LoanStatusReview, LoanStatusApproved} {
		if s.CanTransitionTo(next) {
			from = append(from, s)
		}
	}
	return from
}

// PaymentStatus is the settlement state of a single installment.
type PaymentStatus string

const (
	PaymentStatusUpcoming PaymentStatus = "upcoming"
	PaymentStatusPaid     PaymentStatus = "paid"
	PaymentStatusOverdue  PaymentStatus = "overdue"
)

// CanTransitionTo allows upcoming->paid, upcoming->overdue and overdue->paid only.
func (s PaymentStatus) CanTransitionTo(next PaymentStatus) bool {
	switch s {
	case PaymentStatusUpcoming:
		return next == PaymentStatusPaid || next == PaymentStatusOverdue
	case PaymentStatusOverdue:
		return next == PaymentStatusPaid
	}
	return false
}

// Settleable reports whether a payment in status s may be marked paid.
func (s PaymentStatus) Settleable() bool {
	return s.CanTransitionTo(PaymentStatusPaid)
}

// DateOf truncates t to its UTC calendar date.
func DateOf(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// IsOverdueAt reports whether an unpaid installment due on dueDate has matured
// by now. Both instants are compared as UTC calendar dates.
func IsOverdueAt(dueDate, now time.Time) bool {
	return DateOf(now).After(DateOf(dueDate))
}

// EffectiveStatus is the status every read path reports: an upcoming payment
// whose due date has passed is overdue even if no sweep has persisted it yet.
func (p *Payment) EffectiveStatus(now time.Time) PaymentStatus {
	if p.Status == PaymentStatusUpcoming && IsOverdueAt(p.DueDate, now) {
		return PaymentStatusOverdue
	}
	return p.Status
}

// LedgerSummary is a read-side reduction over one loan's payments.
type LedgerSummary struct {
	Term              int        `json:"term"`
	Paid              int        `json:"paid"`
	Overdue           int        `json:"overdue"`
	Upcoming          int        `json:"upcoming"`
	PaidFraction      float64    `json:"paid_fraction"`
	AmountPaid        float64    `json:"amount_paid"`
	AmountOutstanding float64    `json:"amount_outstanding"`
	NextDueDate       *time.Time `json:"next_due_date,omitempty"`
}

// Summarize counts payments by effective status at now. term is the loan's
// term; a zero term yields a zero PaidFraction.
func Summarize(payments []*Payment, term int, now time.Time) LedgerSummary {
	sum := LedgerSummary{Term: term}
	for _, p := range payments {
		switch p.EffectiveStatus(now) {
		case PaymentStatusPaid:
			sum.Paid++
			sum.AmountPaid += p.Amount
			continue
		case PaymentStatusOverdue:
			sum.Overdue++
		default:
			sum.Upcoming++
		}
		sum.AmountOutstanding += p.Amount
		if sum.NextDueDate == nil || p.DueDate.Before(*sum.NextDueDate) {
			due := p.DueDate
			sum.NextDueDate = &due
		}
	}
	if term > 0 {
		sum.PaidFraction = float64(sum.Paid) / float64(term)
	}
	return sum
}
