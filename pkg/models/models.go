package models

import (
	"time"

	"github.com/google/uuid"
)

type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

type User struct {
	ID           uuid.UUID `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	FirstName    string    `json:"first_name"`
	LastName     string    `json:"last_name"`
	Role         Role      `json:"role"`
	CreatedAt    time.Time `json:"created_at"`
}

type LoanType string

const (
	LoanTypePersonal  LoanType = "personal"
	LoanTypeHome      LoanType = "home"
	LoanTypeAuto      LoanType = "auto"
	LoanTypeStudent   LoanType = "student"
	LoanTypeMortgage  LoanType = "mortgage"
	LoanTypeBusiness  LoanType = "business"
	LoanTypeEducation LoanType = "education"
)

// Valid reports whether t is one of the offered loan categories.
func (t LoanType) Valid() bool {
	switch t {
	case LoanTypePersonal, LoanTypeHome, LoanTypeAuto, LoanTypeStudent,
		LoanTypeMortgage, LoanTypeBusiness, LoanTypeEducation:
		return true
	}
	return false
}

type Loan struct {
	ID             uuid.UUID  `json:"id"`
	OwnerID        uuid.UUID  `json:"owner_id"`
	Amount         float64    `json:"amount"`        // Principal
	InterestRate   float64    `json:"interest_rate"` // Nominal annual rate, percent
	Term           int        `json:"term"`          // Months
	Type           LoanType   `json:"type"`
	Status         LoanStatus `json:"status"`
	MonthlyPayment float64    `json:"monthly_payment"` // Fixed at application time
	Income         float64    `json:"income,omitempty"`
	Employment     string     `json:"employment,omitempty"`
	Purpose        string     `json:"purpose,omitempty"`
	ApprovedAt     *time.Time `json:"approved_at,omitempty"` // Schedule anchor
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

type Payment struct {
	ID            uuid.UUID     `json:"id"`
	LoanID        uuid.UUID     `json:"loan_id"`
	Amount        float64       `json:"amount"`
	DueDate       time.Time     `json:"due_date"`
	PaidDate      *time.Time    `json:"paid_date,omitempty"`
	Status        PaymentStatus `json:"status"`
	PaymentMethod string        `json:"payment_method,omitempty"`
	PaymentNumber int           `json:"payment_number"`
}
