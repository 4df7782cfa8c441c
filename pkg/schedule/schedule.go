// Package schedule builds the repayment ledger for an approved loan.
package schedule

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mcclellann/loankart/pkg/amortization"
	"github.com/mcclellann/loankart/pkg/models"
)

var ErrMissingMonthlyPayment = errors.New("loan has no monthly payment")

// AddMonths advances t by n calendar months. When the target month is shorter
// than t's day of month the day is clamped to the month's last day.
func AddMonths(t time.Time, n int) time.Time {
	y, m, d := t.Date()
	first := time.Date(y, m+time.Month(n), 1, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
	if last := daysIn(first.Year(), first.Month()); d > last {
		d = last
	}
	return first.AddDate(0, 0, d-1)
}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// Generate returns loan.Term upcoming payments due monthly after anchor.
// Each due date is computed from anchor directly so clamping never drifts.
func Generate(loan *models.Loan, anchor time.Time) ([]*models.Payment, error) {
	if _, err := amortization.MonthlyPayment(loan.Amount, loan.InterestRate, loan.Term); err != nil {
		return nil, fmt.Errorf("loan %s: %w", loan.ID, err)
	}
	if loan.MonthlyPayment <= 0 {
		return nil, fmt.Errorf("loan %s: %w", loan.ID, ErrMissingMonthlyPayment)
	}

	payments := make([]*models.Payment, 0, loan.Term)
	for i := 1; i <= loan.Term; i++ {
		payments = append(payments, &models.Payment{
			ID:            uuid.New(),
			LoanID:        loan.ID,
			Amount:        loan.MonthlyPayment,
			DueDate:       AddMonths(anchor, i),
			Status:        models.PaymentStatusUpcoming,
			PaymentNumber: i,
		})
	}
	return payments, nil
}
