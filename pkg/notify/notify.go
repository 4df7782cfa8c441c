// Package notify delivers payment reminders to borrowers.
package notify

import (
	"context"
	"fmt"
	"net/smtp"
	"time"

	"github.com/jordan-wright/email"
	"github.com/sirupsen/logrus"

	"github.com/mcclellann/loankart/pkg/amortization"
	"github.com/mcclellann/loankart/pkg/config"
)

// Reminder describes one installment a borrower should be told about.
type Reminder struct {
	To            string
	Name          string
	LoanID        string
	PaymentNumber int
	DueDate       time.Time
	Amount        float64
	Overdue       bool
}

// Notifier sends reminders. Implementations must be safe for concurrent use.
type Notifier interface {
	SendPaymentReminder(ctx context.Context, r Reminder) error
}

// New returns an SMTP notifier when SMTP is configured and a log-only one otherwise.
func New(cfg *config.Config, logger *logrus.Logger) Notifier {
	if !cfg.SMTPConfigured() {
		logger.Warn("SMTP_HOST not set, payment reminders will only be logged")
		return &LogNotifier{logger: logger}
	}
	return NewEmailNotifier(cfg, logger)
}

// EmailNotifier handles sending reminders via SMTP
type EmailNotifier struct {
	cfg    *config.Config
	logger *logrus.Logger
	send   func(e *email.Email, addr string, auth smtp.Auth) error
}

func NewEmailNotifier(cfg *config.Config, logger *logrus.Logger) *EmailNotifier {
	return &EmailNotifier{
		cfg:    cfg,
		logger: logger,
		send: func(e *email.Email, addr string, auth smtp.Auth) error {
			return e.Send(addr, auth)
		},
	}
}

// BuildReminder formats the reminder message.
func BuildReminder(from string, r Reminder) *email.Email {
	e := email.NewEmail()
	e.From = from
	e.To = []string{r.To}

	amount := amortization.FormatCurrency(r.Amount)
	due := r.DueDate.UTC().Format("2006-01-02")
	body := fmt.Sprintf("Dear %s,\n\n", r.Name)
	if r.Overdue {
		e.Subject = "Overdue Loan Installment"
		body += fmt.Sprintf(
			"Installment %d of %s on loan %s was due on %s and has not been paid.\n"+
				"Please pay it as soon as possible.\n",
			r.PaymentNumber, amount, r.LoanID, due,
		)
	} else {
		e.Subject = "Upcoming Loan Installment"
		body += fmt.Sprintf(
			"This is a reminder that installment %d of %s on loan %s is due on %s.\n",
			r.PaymentNumber, amount, r.LoanID, due,
		)
	}
	body += "\nBest regards,\nLoanKart"
	e.Text = []byte(body)
	return e
}

// SendPaymentReminder sends a payment reminder email
func (n *EmailNotifier) SendPaymentReminder(ctx context.Context, r Reminder) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e := BuildReminder(n.cfg.SenderEmail, r)

	addr := fmt.Sprintf("%s:%s", n.cfg.SMTPHost, n.cfg.SMTPPort)
	auth := smtp.PlainAuth("", n.cfg.SMTPUsername, n.cfg.SMTPPassword, n.cfg.SMTPHost)
	if err := n.send(e, addr, auth); err != nil {
		n.logger.WithError(err).WithField("to", r.To).Error("failed to send reminder email")
		return fmt.Errorf("failed to send email: %w", err)
	}

	n.logger.WithFields(logrus.Fields{"to": r.To, "subject": e.Subject}).Info("reminder email sent")
	return nil
}

// LogNotifier records reminders in the log instead of sending them.
type LogNotifier struct {
	logger *logrus.Logger
}

func NewLogNotifier(logger *logrus.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) SendPaymentReminder(_ context.Context, r Reminder) error {
	n.logger.WithFields(logrus.Fields{
		"to":             r.To,
		"loan_id":        r.LoanID,
		"payment_number": r.PaymentNumber,
		"due_date":       r.DueDate.UTC().Format("2006-01-02"),
		"overdue":        r.Overdue,
	}).Info("payment reminder")
	return nil
}
