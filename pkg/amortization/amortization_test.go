package amortization

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMonthlyPaymentStandardLoan(t *testing.T) {
	q, err := NewQuote(100000, 8.5, 12)
	require.NoError(t, err)

	assert.Equal(t, 8721.98, RoundCurrency(q.MonthlyPayment))
	assert.InDelta(t, 104663.74, q.TotalPayment, 0.01)
	assert.InDelta(t, 4663.74, q.TotalInterest, 0.01)
	assert.InDelta(t, q.TotalPayment-q.Principal, q.TotalInterest, 1e-9)
}

func TestMonthlyPaymentZeroRate(t *testing.T) {
	q, err := NewQuote(12000, 0, 12)
	require.NoError(t, err)

	assert.Equal(t, 1000.0, q.MonthlyPayment)
	assert.Equal(t, 12000.0, q.TotalPayment)
	assert.Equal(t, 0.0, q.TotalInterest)
}

func TestMonthlyPaymentSingleMonth(t *testing.T) {
	m, err := MonthlyPayment(1000, 12, 1)
	require.NoError(t, err)
	// One month at 1% accrues exactly one month of interest.
	assert.InDelta(t, 1010.0, m, 1e-6)
}

func TestMonthlyPaymentInvalidTerms(t *testing.T) {
	cases := []struct {
		name      string
		principal float64
		rate      float64
		term      int
	}{
		{"zero principal", 0, 5, 12},
		{"negative principal", -1, 5, 12},
		{"negative rate", 1000, -0.1, 12},
		{"zero term", 1000, 5, 0},
		{"negative term", 1000, 5, -3},
		{"nan principal", math.NaN(), 5, 12},
		{"inf rate", 1000, math.Inf(1), 12},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := MonthlyPayment(tc.principal, tc.rate, tc.term)
			assert.ErrorIs(t, err, ErrInvalidLoanTerms)
			_, err = NewQuote(tc.principal, tc.rate, tc.term)
			assert.ErrorIs(t, err, ErrInvalidLoanTerms)
		})
	}
}

func TestMonthlyPaymentOverflow(t *testing.T) {
	cases := []struct {
		name      string
		principal float64
		rate      float64
		term      int
	}{
		{"installment overflows", 1.79e308, 1200, 1},
		{"total overflows", math.MaxFloat64 * 0.9, 1, 1200},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := MonthlyPayment(tc.principal, tc.rate, tc.term)
			assert.ErrorIs(t, err, ErrInvalidLoanTerms)
			q, err := NewQuote(tc.principal, tc.rate, tc.term)
			assert.ErrorIs(t, err, ErrInvalidLoanTerms)
			assert.Zero(t, q)
		})
	}
}

func TestMonthlyPaymentProperties(t *testing.T) {
	principals := []float64{500, 25000, 100000, 4000000}
	rates := []float64{0, 0.5, 8.5, 10.5, 24}
	terms := []int{1, 6, 12, 60, 360}

	for _, p := range principals {
		for _, r := range rates {
			for _, n := range terms {
				m, err := MonthlyPayment(p, r, n)
				require.NoError(t, err)
				total := TotalPayment(m, n)

				if r == 0 {
					assert.InDelta(t, p/float64(n), m, 1e-9)
					continue
				}
				assert.Greater(t, total, p, "p=%v r=%v n=%v", p, r, n)
				assert.GreaterOrEqual(t, m, p/float64(n))
			}
		}
	}
}

func TestMonthlyPaymentMonotonicInRate(t *testing.T) {
	prev := 0.0
	for _, r := range []float64{0, 1, 5, 10, 20} {
		m, err := MonthlyPayment(50000, r, 48)
		require.NoError(t, err)
		assert.Greater(t, m, prev)
		prev = m
	}
}

func TestRoundCurrency(t *testing.T) {
	assert.Equal(t, 8721.98, RoundCurrency(8721.978246009277))
	assert.Equal(t, 0.13, RoundCurrency(0.125))
	assert.Equal(t, -0.13, RoundCurrency(-0.125))
	assert.Equal(t, "1000.00", FormatCurrency(1000))
}

func TestQuoteRounded(t *testing.T) {
	q, err := NewQuote(100000, 8.5, 12)
	require.NoError(t, err)
	r := q.Rounded()
	assert.Equal(t, 8721.98, r.MonthlyPayment)
	assert.Equal(t, 104663.74, r.TotalPayment)
	assert.Equal(t, 4663.74, r.TotalInterest)
	assert.Equal(t, q.Principal, r.Principal)
}
