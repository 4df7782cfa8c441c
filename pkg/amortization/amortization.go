// Package amortization computes fixed-installment (EMI) figures for a loan.
package amortization

import (
	"errors"
	"math"

	"github.com/shopspring/decimal"
)

var ErrInvalidLoanTerms = errors.New("invalid loan terms: principal must be positive, rate non-negative and term at least one month")

// Quote bundles the figures shown to an applicant. Values are unrounded.
type Quote struct {
	Principal      float64 `json:"principal"`
	InterestRate   float64 `json:"interest_rate"`
	Term           int     `json:"term"`
	MonthlyPayment float64 `json:"monthly_payment"`
	TotalPayment   float64 `json:"total_payment"`
	TotalInterest  float64 `json:"total_interest"`
}

func validate(principal, annualRatePercent float64, termMonths int) error {
	if math.IsNaN(principal) || math.IsInf(principal, 0) ||
		math.IsNaN(annualRatePercent) || math.IsInf(annualRatePercent, 0) {
		return ErrInvalidLoanTerms
	}
	if principal <= 0 || annualRatePercent < 0 || termMonths < 1 {
		return ErrInvalidLoanTerms
	}
	return nil
}

func finitePositive(v float64) bool {
	return v > 0 && !math.IsInf(v, 0) && !math.IsNaN(v)
}

// MonthlyPayment returns the level installment that repays principal over
// termMonths at annualRatePercent compounded monthly. A zero rate spreads the
// principal evenly. Terms whose installment or total overflow float64 are invalid.
func MonthlyPayment(principal, annualRatePercent float64, termMonths int) (float64, error) {
	if err := validate(principal, annualRatePercent, termMonths); err != nil {
		return 0, err
	}
	r := annualRatePercent / 100 / 12
	n := float64(termMonths)
	var monthly float64
	if r == 0 {
		monthly = principal / n
	} else {
		monthly = principal * r / (1 - math.Pow(1+r, -n))
	}
	if !finitePositive(monthly) || !finitePositive(TotalPayment(monthly, termMonths)) {
		return 0, ErrInvalidLoanTerms
	}
	return monthly, nil
}

func TotalPayment(monthly float64, termMonths int) float64 {
	return monthly * float64(termMonths)
}

func TotalInterest(total, principal float64) float64 {
	return total - principal
}

// NewQuote computes all figures for the given terms.
func NewQuote(principal, annualRatePercent float64, termMonths int) (Quote, error) {
	monthly, err := MonthlyPayment(principal, annualRatePercent, termMonths)
	if err != nil {
		return Quote{}, err
	}
	total := TotalPayment(monthly, termMonths)
	return Quote{
		Principal:      principal,
		InterestRate:   annualRatePercent,
		Term:           termMonths,
		MonthlyPayment: monthly,
		TotalPayment:   total,
		TotalInterest:  TotalInterest(total, principal),
	}, nil
}

// Rounded returns a copy of q with the currency figures rounded for display.
func (q Quote) Rounded() Quote {
	q.MonthlyPayment = RoundCurrency(q.MonthlyPayment)
	q.TotalPayment = RoundCurrency(q.TotalPayment)
	q.TotalInterest = RoundCurrency(q.TotalInterest)
	return q
}

// RoundCurrency rounds v half away from zero to two decimal places.
func RoundCurrency(v float64) float64 {
	f, _ := decimal.NewFromFloat(v).Round(2).Float64()
	return f
}

// FormatCurrency renders v with exactly two decimal places.
func FormatCurrency(v float64) string {
	return decimal.NewFromFloat(v).StringFixed(2)
}
