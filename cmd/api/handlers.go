package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/mcclellann/loankart/pkg/amortization"
	"github.com/mcclellann/loankart/pkg/auth"
	"github.com/mcclellann/loankart/pkg/catalog"
	"github.com/mcclellann/loankart/pkg/export"
	"github.com/mcclellann/loankart/pkg/ledger"
	"github.com/mcclellann/loankart/pkg/models"
)

var errBadRequest = errors.New("bad request")

func badRequest(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errBadRequest, fmt.Sprintf(format, args...))
}

// writeJSON encodes v before writing the header so an unencodable value
// becomes a 500 instead of an empty success.
func (s *Server) writeJSON(w http.ResponseWriter, code int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		s.logger.WithError(err).Error("failed to encode response")
		code = http.StatusInternalServerError
		body = []byte(`{"error":"internal server error"}`)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(append(body, '\n'))
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, errBadRequest),
		errors.Is(err, amortization.ErrInvalidLoanTerms),
		errors.Is(err, ledger.ErrInvalidApplication),
		errors.Is(err, auth.ErrWeakPassword),
		errors.Is(err, auth.ErrInvalidEmail):
		return http.StatusBadRequest
	case errors.Is(err, auth.ErrInvalidCredentials),
		errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrMissingToken):
		return http.StatusUnauthorized
	case errors.Is(err, auth.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ledger.ErrLoanNotFound),
		errors.Is(err, ledger.ErrPaymentNotFound):
		return http.StatusNotFound
	case errors.Is(err, ledger.ErrScheduleAlreadyExists),
		errors.Is(err, ledger.ErrPaymentAlreadySettled),
		errors.Is(err, ledger.ErrInvalidTransition),
		errors.Is(err, ledger.ErrOutstandingLoan),
		errors.Is(err, auth.ErrEmailExists):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

// writeError maps domain errors to HTTP status codes. Internal errors are logged
// and reported without detail.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := statusFor(err)
	msg := err.Error()
	if code == http.StatusInternalServerError {
		s.logger.WithError(err).WithField("path", r.URL.Path).Error("request failed")
		msg = "internal server error"
	}
	s.writeJSON(w, code, map[string]string{"error": msg})
}

func decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return badRequest("invalid JSON body: %v", err)
	}
	return nil
}

func pathID(r *http.Request, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(mux.Vars(r)[name])
	if err != nil {
		return uuid.Nil, badRequest("invalid %s", name)
	}
	return id, nil
}

func session(r *http.Request) auth.Session {
	sess, _ := auth.SessionFrom(r.Context())
	return sess
}

func caller(r *http.Request) ledger.Caller {
	sess := session(r)
	return ledger.Caller{UserID: sess.UserID, Admin: sess.IsAdmin()}
}

type credentials struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

type tokenResponse struct {
	Token string       `json:"token"`
	User  *models.User `json:"user"`
}

func (s *Server) registerHandler(w http.ResponseWriter, r *http.Request) {
	var req credentials
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	user, err := s.auth.Register(r.Context(), req.Email, req.FirstName, req.LastName, req.Password)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	token, err := s.jwt.Generate(user)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.logger.WithField("user_id", user.ID).Info("user registered")
	s.writeJSON(w, http.StatusCreated, tokenResponse{Token: token, User: user})
}

func (s *Server) loginHandler(w http.ResponseWriter, r *http.Request) {
	var req credentials
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	user, err := s.auth.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	token, err := s.jwt.Generate(user)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, tokenResponse{Token: token, User: user})
}

// logoutHandler exists for client symmetry; tokens are stateless and simply discarded.
func (s *Server) logoutHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}

func queryFloat(r *http.Request, key string) (float64, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, badRequest("%s must be a number", key)
	}
	return v, nil
}

func queryInt(r *http.Request, key string) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, badRequest("%s must be an integer", key)
	}
	return v, nil
}

func (s *Server) loanOptionsHandler(w http.ResponseWriter, r *http.Request) {
	var c catalog.Criteria
	var err error
	if c.Amount, err = queryFloat(r, "amount"); err != nil {
		s.writeError(w, r, err)
		return
	}
	if c.MaxRate, err = queryFloat(r, "maxRate"); err != nil {
		s.writeError(w, r, err)
		return
	}
	if c.Term, err = queryInt(r, "term"); err != nil {
		s.writeError(w, r, err)
		return
	}
	if t := r.URL.Query().Get("type"); t != "" && t != "all" {
		c.Type = models.LoanType(t)
	}
	s.writeJSON(w, http.StatusOK, catalog.Filter(s.products, c))
}

func (s *Server) calculatorHandler(w http.ResponseWriter, r *http.Request) {
	amount, err := queryFloat(r, "amount")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	rate, err := queryFloat(r, "rate")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	term, err := queryInt(r, "term")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	quote, err := amortization.NewQuote(amount, rate, term)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, quote.Rounded())
}

func (s *Server) applyLoanHandler(w http.ResponseWriter, r *http.Request) {
	var req ledger.ApplyRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	loan, quote, err := s.ledger.ApplyLoan(r.Context(), session(r).UserID, req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, map[string]any{
		"loan":     loan,
		"quote":    quote.Rounded(),
		"progress": loan.Status.Progress(),
	})
}

func (s *Server) listLoansHandler(w http.ResponseWriter, r *http.Request) {
	loans, err := s.ledger.ListLoans(r.Context(), session(r).UserID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, loans)
}

func (s *Server) getLoanHandler(w http.ResponseWriter, r *http.Request) {
	loanID, err := pathID(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	loan, err := s.ledger.GetLoan(r.Context(), caller(r), loanID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, ledger.LoanView{Loan: loan, Progress: loan.Status.Progress()})
}

func (s *Server) listPaymentsHandler(w http.ResponseWriter, r *http.Request) {
	loanID, err := pathID(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	payments, err := s.ledger.ListPayments(r.Context(), caller(r), loanID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, payments)
}

func (s *Server) paymentOnDateHandler(w http.ResponseWriter, r *http.Request) {
	loanID, err := pathID(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	date, err := time.Parse("2006-01-02", mux.Vars(r)["date"])
	if err != nil {
		s.writeError(w, r, badRequest("date must be YYYY-MM-DD"))
		return
	}
	payment, err := s.ledger.PaymentOnDate(r.Context(), caller(r), loanID, date)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, payment)
}

func (s *Server) summaryHandler(w http.ResponseWriter, r *http.Request) {
	loanID, err := pathID(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	summary, err := s.ledger.Summary(r.Context(), caller(r), loanID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, summary)
}

func (s *Server) scheduleExportHandler(format string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		loanID, err := pathID(r, "id")
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		c := caller(r)
		loan, err := s.ledger.GetLoan(r.Context(), c, loanID)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		payments, err := s.ledger.ListPayments(r.Context(), c, loanID)
		if err != nil {
			s.writeError(w, r, err)
			return
		}

		var out []byte
		var contentType string
		switch format {
		case "pdf":
			out, err = export.BuildSchedulePDF(loan, payments)
			contentType = "application/pdf"
		default:
			out, err = export.BuildScheduleXLSX(loan, payments)
			contentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
		}
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		w.Header().Set("Content-Type", contentType)
		w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="schedule-%s.%s"`, loan.ID, format))
		w.WriteHeader(http.StatusOK)
		w.Write(out)
	}
}

func (s *Server) payHandler(w http.ResponseWriter, r *http.Request) {
	paymentID, err := pathID(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req struct {
		PaymentMethod string `json:"paymentMethod"`
	}
	if r.ContentLength != 0 {
		if err := decode(r, &req); err != nil {
			s.writeError(w, r, err)
			return
		}
	}
	payment, err := s.ledger.MarkPaid(r.Context(), caller(r), paymentID, req.PaymentMethod)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, payment)
}

func (s *Server) dashboardHandler(w http.ResponseWriter, r *http.Request) {
	d, err := s.ledger.Dashboard(r.Context(), session(r).UserID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, d)
}

func (s *Server) adminLoansHandler(w http.ResponseWriter, r *http.Request) {
	loans, err := s.ledger.ListAllLoans(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, loans)
}

func (s *Server) adminUpdateLoanHandler(w http.ResponseWriter, r *http.Request) {
	loanID, err := pathID(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req struct {
		Status models.LoanStatus `json:"status"`
	}
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if !req.Status.Valid() {
		s.writeError(w, r, badRequest("unknown status %q", req.Status))
		return
	}
	loan, err := s.ledger.UpdateLoanStatus(r.Context(), loanID, req.Status)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.logger.WithFields(logrus.Fields{
		"loan_id":  loan.ID,
		"status":   loan.Status,
		"admin_id": session(r).UserID,
	}).Info("admin updated loan status")
	s.writeJSON(w, http.StatusOK, ledger.LoanView{Loan: loan, Progress: loan.Status.Progress()})
}

func (s *Server) adminUsersHandler(w http.ResponseWriter, r *http.Request) {
	users, err := s.ledger.ListUsers(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, users)
}
