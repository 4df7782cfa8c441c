package export

import (
	"bytes"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/mcclellann/loankart/pkg/models"
	"github.com/mcclellann/loankart/pkg/schedule"
)

func fixture(t *testing.T) (*models.Loan, []*models.Payment) {
	t.Helper()
	loan := &models.Loan{
		ID:             uuid.New(),
		Amount:         12000,
		InterestRate:   0,
		Term:           12,
		Type:           models.LoanTypePersonal,
		Status:         models.LoanStatusActive,
		MonthlyPayment: 1000,
	}
	payments, err := schedule.Generate(loan, time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	paid := time.Date(2024, 2, 14, 0, 0, 0, 0, time.UTC)
	payments[0].Status = models.PaymentStatusPaid
	payments[0].PaidDate = &paid
	payments[0].PaymentMethod = "card"
	return loan, payments
}

func TestBuildSchedulePDF(t *testing.T) {
	loan, payments := fixture(t)
	out, err := BuildSchedulePDF(loan, payments)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF")))
}

func TestBuildScheduleXLSX(t *testing.T) {
	loan, payments := fixture(t)
	out, err := BuildScheduleXLSX(loan, payments)
	require.NoError(t, err)
	require.True(t, bytes.HasPrefix(out, []byte("PK")))

	f, err := excelize.OpenReader(bytes.NewReader(out))
	require.NoError(t, err)
	defer f.Close()

	v, err := f.GetCellValue("payments", "B2")
	require.NoError(t, err)
	assert.Equal(t, "2024-02-15", v)

	v, err = f.GetCellValue("payments", "F2")
	require.NoError(t, err)
	assert.Equal(t, "card", v)

	v, err = f.GetCellValue("summary", "B10")
	require.NoError(t, err)
	assert.Equal(t, "12000", v)

	rows, err := f.GetRows("payments")
	require.NoError(t, err)
	assert.Len(t, rows, 13)
}
