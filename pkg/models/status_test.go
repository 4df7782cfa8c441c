package models

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestLoanStatusTransitions(t *testing.T) {
	tests := []struct {
		from, to LoanStatus
		want     bool
	}{
		{LoanStatusSubmitted, LoanStatusReview, true},
		{LoanStatusSubmitted, LoanStatusApproved, true},
		{LoanStatusSubmitted, LoanStatusRejected, true},
		{LoanStatusReview, LoanStatusApproved, true},
		{LoanStatusReview, LoanStatusRejected, true},
		{LoanStatusApproved, LoanStatusActive, true},
		{LoanStatusSubmitted, LoanStatusActive, false},
		{LoanStatusApproved, LoanStatusRejected, false},
		{LoanStatusRejected, LoanStatusApproved, false},
		{LoanStatusActive, LoanStatusApproved, false},
		{LoanStatusReview, LoanStatusSubmitted, false},
	}
	for _, tt := range tests {
		if got := tt.from.CanTransitionTo(tt.to); got != tt.want {
			t.Errorf("%s -> %s: expected %v, got %v", tt.from, tt.to, tt.want, got)
		}
	}
}

func TestLoanStatusesFrom(t *testing.T) {
	assert.ElementsMatch(t, []LoanStatus{LoanStatusSubmitted, LoanStatusReview}, LoanStatusesFrom(LoanStatusApproved))
	assert.Equal(t, []LoanStatus{LoanStatusApproved}, LoanStatusesFrom(LoanStatusActive))
	assert.Empty(t, LoanStatusesFrom(LoanStatusSubmitted))
}

func TestProgress(t *testing.T) {
	assert.Equal(t, 25, LoanStatusSubmitted.Progress())
	assert.Equal(t, 50, LoanStatusReview.Progress())
	assert.Equal(t, 75, LoanStatusApproved.Progress())
	assert.Equal(t, 100, LoanStatusActive.Progress())
	assert.Equal(t, 100, LoanStatusRejected.Progress())
	assert.Equal(t, 0, LoanStatus("bogus").Progress())
}

func TestPaymentStatusTransitions(t *testing.T) {
	assert.True(t, PaymentStatusUpcoming.CanTransitionTo(PaymentStatusPaid))
	assert.True(t, PaymentStatusUpcoming.CanTransitionTo(PaymentStatusOverdue))
	assert.True(t, PaymentStatusOverdue.CanTransitionTo(PaymentStatusPaid))
	assert.False(t, PaymentStatusPaid.CanTransitionTo(PaymentStatusUpcoming))
	assert.False(t, PaymentStatusPaid.CanTransitionTo(PaymentStatusOverdue))
	assert.False(t, PaymentStatusOverdue.CanTransitionTo(PaymentStatusUpcoming))
	assert.False(t, PaymentStatusPaid.Settleable())
}

func TestEffectiveStatus(t *testing.T) {
	now := time.Date(2024, 3, 15, 9, 0, 0, 0, time.UTC)

	p := &Payment{Status: PaymentStatusUpcoming, DueDate: time.Date(2024, 3, 14, 23, 59, 0, 0, time.UTC)}
	assert.Equal(t, PaymentStatusOverdue, p.EffectiveStatus(now))

	// Due today is not yet overdue, whatever the time of day.
	p.DueDate = time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, PaymentStatusUpcoming, p.EffectiveStatus(now))
	p.DueDate = time.Date(2024, 3, 15, 23, 0, 0, 0, time.UTC)
	assert.Equal(t, PaymentStatusUpcoming, p.EffectiveStatus(now))

	p.Status = PaymentStatusPaid
	p.DueDate = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, PaymentStatusPaid, p.EffectiveStatus(now))
}

func TestSummarize(t *testing.T) {
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	var payments []*Payment
	add := func(n int, status PaymentStatus, due time.Time) {
		for i := 0; i < n; i++ {
			payments = append(payments, &Payment{
				ID:      uuid.New(),
				Amount:  100,
				Status:  status,
				DueDate: due,
			})
		}
	}
	add(3, PaymentStatusPaid, now.AddDate(0, -3, 0))
	add(2, PaymentStatusOverdue, now.AddDate(0, -1, 0))
	add(7, PaymentStatusUpcoming, now.AddDate(0, 1, 0))

	sum := Summarize(payments, 12, now)
	assert.Equal(t, 3, sum.Paid)
	assert.Equal(t, 2, sum.Overdue)
	assert.Equal(t, 7, sum.Upcoming)
	assert.InDelta(t, 0.25, sum.PaidFraction, 1e-12)
	assert.InDelta(t, 300.0, sum.AmountPaid, 1e-9)
	assert.InDelta(t, 900.0, sum.AmountOutstanding, 1e-9)
	if assert.NotNil(t, sum.NextDueDate) {
		assert.Equal(t, now.AddDate(0, -1, 0), *sum.NextDueDate)
	}
}

func TestSummarizeDerivesOverdue(t *testing.T) {
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	payments := []*Payment{
		{Status: PaymentStatusUpcoming, DueDate: now.AddDate(0, 0, -1), Amount: 10},
		{Status: PaymentStatusUpcoming, DueDate: now.AddDate(0, 0, 1), Amount: 10},
	}
	sum := Summarize(payments, 2, now)
	assert.Equal(t, 1, sum.Overdue)
	assert.Equal(t, 1, sum.Upcoming)
	assert.Zero(t, sum.PaidFraction)
}

func TestSummarizeEmpty(t *testing.T) {
	sum := Summarize(nil, 0, time.Now())
	assert.Zero(t, sum.PaidFraction)
	assert.Nil(t, sum.NextDueDate)
}
