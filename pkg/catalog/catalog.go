// Package catalog holds the loan products offered to applicants and the comparison filter over them.
package catalog

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/mcclellann/loankart/pkg/amortization"
	"github.com/mcclellann/loankart/pkg/models"
)

// Product is one offered loan product.
type Product struct {
	Type         models.LoanType `yaml:"type" json:"type"`
	MinAmount    float64         `yaml:"min_amount" json:"minAmount"`
	MaxAmount    float64         `yaml:"max_amount" json:"maxAmount"`
	InterestRate float64         `yaml:"interest_rate" json:"interestRate"`
	MaxTerm      int             `yaml:"max_term" json:"maxTerm"`
}

type file struct {
	Products []Product `yaml:"products"`
}

// DefaultProducts is the built-in catalog used when no products file is configured.
func DefaultProducts() []Product {
	return []Product{
		{Type: models.LoanTypePersonal, MinAmount: 50000, MaxAmount: 4000000, InterestRate: 10.5, MaxTerm: 60},
		{Type: models.LoanTypeEducation, MinAmount: 100000, MaxAmount: 15000000, InterestRate: 8.5, MaxTerm: 180},
		{Type: models.LoanTypeHome, MinAmount: 500000, MaxAmount: 100000000, InterestRate: 8.75, MaxTerm: 360},
		{Type: models.LoanTypeBusiness, MinAmount: 100000, MaxAmount: 7500000, InterestRate: 12, MaxTerm: 84},
	}
}

func (p Product) validate() error {
	switch {
	case !p.Type.Valid():
		return fmt.Errorf("unknown loan type %q", p.Type)
	case p.MinAmount <= 0 || p.MaxAmount < p.MinAmount:
		return fmt.Errorf("%s: amount range %v-%v is invalid", p.Type, p.MinAmount, p.MaxAmount)
	case p.InterestRate < 0:
		return fmt.Errorf("%s: negative interest rate", p.Type)
	case p.MaxTerm < 1:
		return fmt.Errorf("%s: max term must be at least one month", p.Type)
	}
	return nil
}

// Load reads a YAML products file. An empty path yields the default catalog.
func Load(path string) ([]Product, error) {
	if path == "" {
		return DefaultProducts(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if len(f.Products) == 0 {
		return nil, errors.New("catalog: products file lists no products")
	}
	for _, p := range f.Products {
		if err := p.validate(); err != nil {
			return nil, fmt.Errorf("catalog: %w", err)
		}
	}
	return f.Products, nil
}

// Criteria narrows the catalog. Zero values match everything.
type Criteria struct {
	Type    models.LoanType
	MaxRate float64
	Term    int
	Amount  float64
}

// Option is a product that matched, with a quote for the requested amount and term when both were given.
type Option struct {
	Product
	Quote *amortization.Quote `json:"quote,omitempty"`
}

// Filter returns the products matching c, in catalog order.
func Filter(products []Product, c Criteria) []Option {
	out := []Option{}
	for _, p := range products {
		if c.Type != "" && p.Type != c.Type {
			continue
		}
		if c.MaxRate > 0 && p.InterestRate > c.MaxRate {
			continue
		}
		if c.Term > 0 && p.MaxTerm < c.Term {
			continue
		}
		if c.Amount > 0 && (c.Amount < p.MinAmount || c.Amount > p.MaxAmount) {
			continue
		}
		opt := Option{Product: p}
		if c.Amount > 0 && c.Term > 0 {
			if q, err := amortization.NewQuote(c.Amount, p.InterestRate, c.Term); err == nil {
				q = q.Rounded()
				opt.Quote = &q
			}
		}
		out = append(out, opt)
	}
	return out
}
