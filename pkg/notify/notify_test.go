package notify

import (
	"context"
	"errors"
	"net/smtp"
	"testing"
	"time"

	"github.com/jordan-wright/email"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcclellann/loankart/pkg/config"
)

func reminder(overdue bool) Reminder {
	return Reminder{
		To:            "asha@example.com",
		Name:          "Asha",
		LoanID:        "loan-1",
		PaymentNumber: 4,
		DueDate:       time.Date(2024, 5, 10, 0, 0, 0, 0, time.UTC),
		Amount:        8721.978,
		Overdue:       overdue,
	}
}

func TestBuildReminder(t *testing.T) {
	e := BuildReminder("bank@example.com", reminder(false))
	assert.Equal(t, "Upcoming Loan Installment", e.Subject)
	assert.Equal(t, []string{"asha@example.com"}, e.To)
	assert.Contains(t, string(e.Text), "8721.98")
	assert.Contains(t, string(e.Text), "2024-05-10")

	e = BuildReminder("bank@example.com", reminder(true))
	assert.Equal(t, "Overdue Loan Installment", e.Subject)
}

func TestEmailNotifierSends(t *testing.T) {
	cfg := &config.Config{SMTPHost: "smtp.example.com", SMTPPort: "2525", SenderEmail: "bank@example.com"}
	logger, hook := test.NewNullLogger()
	n := NewEmailNotifier(cfg, logger)

	var gotAddr string
	n.send = func(e *email.Email, addr string, _ smtp.Auth) error {
		gotAddr = addr
		return nil
	}
	require.NoError(t, n.SendPaymentReminder(context.Background(), reminder(false)))
	assert.Equal(t, "smtp.example.com:2525", gotAddr)
	assert.Equal(t, logrus.InfoLevel, hook.LastEntry().Level)

	n.send = func(*email.Email, string, smtp.Auth) error { return errors.New("connection refused") }
	assert.Error(t, n.SendPaymentReminder(context.Background(), reminder(true)))
	assert.Equal(t, logrus.ErrorLevel, hook.LastEntry().Level)
}

func TestNewFallsBackToLog(t *testing.T) {
	logger, hook := test.NewNullLogger()
	n := New(&config.Config{}, logger)
	_, ok := n.(*LogNotifier)
	require.True(t, ok)

	require.NoError(t, n.SendPaymentReminder(context.Background(), reminder(true)))
	assert.Equal(t, "payment reminder", hook.LastEntry().Message)
	assert.Equal(t, true, hook.LastEntry().Data["overdue"])
}
