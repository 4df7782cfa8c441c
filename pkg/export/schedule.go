// Package export renders a loan's repayment schedule as PDF or XLSX.
package export

import (
	"bytes"
	"fmt"

	"github.com/jung-kurt/gofpdf"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"github.com/mcclellann/loankart/pkg/amortization"
	"github.com/mcclellann/loankart/pkg/models"
)

func money(v float64) string {
	return amortization.FormatCurrency(v)
}

// scheduleTotal sums installment amounts at cent precision.
func scheduleTotal(payments []*models.Payment) decimal.Decimal {
	total := decimal.Zero
	for _, p := range payments {
		total = total.Add(decimal.NewFromFloat(p.Amount).Round(2))
	}
	return total
}

func paidDate(p *models.Payment) string {
	if p.PaidDate == nil {
		return ""
	}
	return p.PaidDate.UTC().Format("2006-01-02")
}

// BuildSchedulePDF renders a loan summary followed by its installment table.
func BuildSchedulePDF(loan *models.Loan, payments []*models.Payment) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetFont("Arial", "", 12)
	pdf.AddPage()

	pdf.Cell(0, 8, "Loan Repayment Schedule")
	pdf.Ln(10)
	pdf.SetFont("Arial", "", 10)
	pdf.Cell(0, 6, fmt.Sprintf("Loan: %s", loan.ID))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Type: %s", loan.Type))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Principal: %s", money(loan.Amount)))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Interest Rate: %.2f%% p.a.", loan.InterestRate))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Term: %d months", loan.Term))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Monthly Payment: %s", money(loan.MonthlyPayment)))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Status: %s", loan.Status))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Total Repayable: %s", scheduleTotal(payments).StringFixed(2)))
	pdf.Ln(8)

	pdf.SetFont("Arial", "B", 10)
	pdf.CellFormat(15, 6, "#", "1", 0, "C", false, 0, "")
	pdf.CellFormat(35, 6, "Due Date", "1", 0, "C", false, 0, "")
	pdf.CellFormat(40, 6, "Amount", "1", 0, "C", false, 0, "")
	pdf.CellFormat(30, 6, "Status", "1", 0, "C", false, 0, "")
	pdf.CellFormat(35, 6, "Paid On", "1", 0, "C", false, 0, "")
	pdf.Ln(-1)
	pdf.SetFont("Arial", "", 10)
	for _, p := range payments {
		pdf.CellFormat(15, 6, fmt.Sprintf("%d", p.PaymentNumber), "1", 0, "C", false, 0, "")
		pdf.CellFormat(35, 6, p.DueDate.UTC().Format("2006-01-02"), "1", 0, "C", false, 0, "")
		pdf.CellFormat(40, 6, money(p.Amount), "1", 0, "R", false, 0, "")
		pdf.CellFormat(30, 6, string(p.Status), "1", 0, "C", false, 0, "")
		pdf.CellFormat(35, 6, paidDate(p), "1", 0, "C", false, 0, "")
		pdf.Ln(-1)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// BuildScheduleXLSX renders a summary sheet and a payments sheet.
func BuildScheduleXLSX(loan *models.Loan, payments []*models.Payment) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	summarySheet := "summary"
	paymentsSheet := "payments"
	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		return nil, err
	}
	if _, err := f.NewSheet(paymentsSheet); err != nil {
		return nil, err
	}

	total, _ := scheduleTotal(payments).Float64()
	rows := [][2]any{
		{"Loan", loan.ID.String()},
		{"Type", string(loan.Type)},
		{"Principal", amortization.RoundCurrency(loan.Amount)},
		{"Interest Rate (% p.a.)", loan.InterestRate},
		{"Term (months)", loan.Term},
		{"Monthly Payment", amortization.RoundCurrency(loan.MonthlyPayment)},
		{"Status", string(loan.Status)},
		{"Total Repayable", total},
	}
	_ = f.SetCellValue(summarySheet, "A1", "Loan Repayment Schedule")
	for i, r := range rows {
		_ = f.SetCellValue(summarySheet, fmt.Sprintf("A%d", i+3), r[0])
		_ = f.SetCellValue(summarySheet, fmt.Sprintf("B%d", i+3), r[1])
	}

	for i, h := range []string{"#", "Due Date", "Amount", "Status", "Paid On", "Method"} {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(paymentsSheet, cell, h)
	}
	for i, p := range payments {
		row := i + 2
		_ = f.SetCellValue(paymentsSheet, fmt.Sprintf("A%d", row), p.PaymentNumber)
		_ = f.SetCellValue(paymentsSheet, fmt.Sprintf("B%d", row), p.DueDate.UTC().Format("2006-01-02"))
		_ = f.SetCellValue(paymentsSheet, fmt.Sprintf("C%d", row), amortization.RoundCurrency(p.Amount))
		_ = f.SetCellValue(paymentsSheet, fmt.Sprintf("D%d", row), string(p.Status))
		_ = f.SetCellValue(paymentsSheet, fmt.Sprintf("E%d", row), paidDate(p))
		_ = f.SetCellValue(paymentsSheet, fmt.Sprintf("F%d", row), p.PaymentMethod)
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
