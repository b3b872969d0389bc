package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"cloud.google.com/go/civil"
	"github.com/getsentry/sentry-go"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/mcclellann/tradex/pkg/auth"
	"github.com/mcclellann/tradex/pkg/export"
	"github.com/mcclellann/tradex/pkg/ledger"
	"github.com/mcclellann/tradex/pkg/logger"
	"github.com/mcclellann/tradex/pkg/models"
	"github.com/mcclellann/tradex/pkg/store"
	"github.com/shopspring/decimal"
)

// Server holds the ledger instance.
type Server struct {
	ledger  *ledger.Ledger
	storage store.Storage // Keep a reference to the storage to close it
	auth    *auth.Authenticator
}

func NewServer(s store.Storage, a *auth.Authenticator, opts ...ledger.Option) *Server {
	return &Server{
		ledger:  ledger.NewLedger(s, opts...),
		storage: s,
		auth:    a,
	}
}

// Router wires every route with its role requirements.
func (s *Server) Router() *mux.Router {
	router := mux.NewRouter()
	router.Use(requestLogger)

	anyRole := func(h http.HandlerFunc) http.Handler { return s.auth.Require()(h) }
	adminOnly := func(h http.HandlerFunc) http.Handler { return s.auth.Require(auth.RoleAdmin)(h) }
	cashiers := func(h http.HandlerFunc) http.Handler {
		return s.auth.Require(auth.RoleAdmin, auth.RoleOperator)(h)
	}

	router.HandleFunc("/health", s.healthHandler).Methods("GET")
	router.HandleFunc("/login", s.loginHandler).Methods("POST")

	router.Handle("/dashboard", anyRole(s.dashboardHandler)).Methods("GET")
	router.Handle("/loans", anyRole(s.listLoansHandler)).Methods("GET")
	router.Handle("/loans", adminOnly(s.createLoanHandler)).Methods("POST")
	router.Handle("/loans/{id}", anyRole(s.getLoanHandler)).Methods("GET")
	router.Handle("/loans/{id}/payments", anyRole(s.listLoanPaymentsHandler)).Methods("GET")
	router.Handle("/loans/{id}/payments", cashiers(s.recordPaymentHandler)).Methods("POST")
	router.Handle("/payments", anyRole(s.listPaymentsHandler)).Methods("GET")
	router.Handle("/investors", anyRole(s.listInvestorsHandler)).Methods("GET")
	router.Handle("/investors/{name}", adminOnly(s.setInvestorCapitalHandler)).Methods("PUT")
	router.Handle("/export", adminOnly(s.exportHandler)).Methods("GET")
	router.Handle("/reconcile", adminOnly(s.reconcileHandler)).Methods("POST")

	return router
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeLedgerError maps ledger failures onto HTTP status codes.
func writeLedgerError(w http.ResponseWriter, r *http.Request, err error) {
	var termsErr *ledger.InvalidTermsError
	var paymentErr *ledger.InvalidPaymentError
	var notFound *ledger.LoanNotFoundError

	switch {
	case errors.As(err, &termsErr), errors.As(err, &paymentErr), errors.Is(err, ledger.ErrInvalidInvestor):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &notFound):
		writeError(w, http.StatusNotFound, err.Error())
	default:
		logger.Error("Request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func parseLoanID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid loan ID")
		return uuid.Nil, false
	}
	return id, true
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) loginHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PIN string `json:"pin"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	token, role, err := s.auth.Login(req.PIN)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"token": token, "role": role})
}

func (s *Server) dashboardHandler(w http.ResponseWriter, r *http.Request) {
	dash, err := s.ledger.Dashboard(r.Context())
	if err != nil {
		writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dash)
}

func (s *Server) createLoanHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Customer  string           `json:"customer"`
		Principal decimal.Decimal  `json:"principal"`
		Rate      decimal.Decimal  `json:"rate"`
		LoanType  models.LoanType  `json:"loan_type"`
		Frequency models.Frequency `json:"frequency"`
		Periods   int              `json:"periods"`
		StartDate civil.Date       `json:"start_date"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	loan, err := s.ledger.CreateLoan(r.Context(), req.Customer, ledger.Terms{
		Principal: req.Principal,
		RatePct:   req.Rate,
		LoanType:  req.LoanType,
		Frequency: req.Frequency,
		Periods:   req.Periods,
		StartDate: req.StartDate,
	})
	if err != nil {
		writeLedgerError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, loan)
}

func (s *Server) getLoanHandler(w http.ResponseWriter, r *http.Request) {
	loanID, ok := parseLoanID(w, r)
	if !ok {
		return
	}

	loan, err := s.ledger.GetLoan(r.Context(), loanID)
	if err != nil {
		writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, loan)
}

func (s *Server) listLoansHandler(w http.ResponseWriter, r *http.Request) {
	loans, err := s.ledger.GetAllLoans(r.Context())
	if err != nil {
		writeLedgerError(w, r, err)
		return
	}

	if status := r.URL.Query().Get("status"); status != "" {
		filtered := []*models.Loan{}
		for _, l := range loans {
			if string(l.Status) == status {
				filtered = append(filtered, l)
			}
		}
		loans = filtered
	}
	writeJSON(w, http.StatusOK, loans)
}

func (s *Server) listLoanPaymentsHandler(w http.ResponseWriter, r *http.Request) {
	loanID, ok := parseLoanID(w, r)
	if !ok {
		return
	}

	payments, err := s.ledger.GetPaymentsForLoan(r.Context(), loanID)
	if err != nil {
		writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, payments)
}

func (s *Server) recordPaymentHandler(w http.ResponseWriter, r *http.Request) {
	loanID, ok := parseLoanID(w, r)
	if !ok {
		return
	}

	var req struct {
		Amount      decimal.Decimal `json:"amount"`
		PaymentDate civil.Date      `json:"payment_date"`
		Notes       string          `json:"notes"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	payment, err := s.ledger.RecordPayment(r.Context(), ledger.PaymentRequest{
		LoanID: loanID,
		Amount: req.Amount,
		Date:   req.PaymentDate,
		Actor:  auth.RoleFrom(r.Context()),
		Notes:  req.Notes,
	})
	if err != nil {
		writeLedgerError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, payment)
}

func (s *Server) listPaymentsHandler(w http.ResponseWriter, r *http.Request) {
	payments, err := s.ledger.GetAllPayments(r.Context())
	if err != nil {
		writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, payments)
}

func (s *Server) listInvestorsHandler(w http.ResponseWriter, r *http.Request) {
	investors, err := s.ledger.GetAllInvestors(r.Context())
	if err != nil {
		writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, investors)
}

func (s *Server) setInvestorCapitalHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Capital decimal.Decimal `json:"capital"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	inv, err := s.ledger.SetInvestorCapital(r.Context(), mux.Vars(r)["name"], req.Capital)
	if err != nil {
		writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, inv)
}

func (s *Server) exportHandler(w http.ResponseWriter, r *http.Request) {
	format := export.Format(r.URL.Query().Get("format"))
	if format == "" {
		format = export.FormatCSV
	}
	contentType, ok := format.ContentType()
	if !ok {
		writeError(w, http.StatusBadRequest, "unsupported format "+strconv.Quote(string(format)))
		return
	}

	dash, err := s.ledger.Dashboard(r.Context())
	if err != nil {
		writeLedgerError(w, r, err)
		return
	}
	body, err := export.Render(format, &export.Report{Loans: dash.Loans, Payments: dash.Payments, Metrics: dash.Metrics})
	if err != nil {
		writeLedgerError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+format.FileName()+`"`)
	w.WriteHeader(http.StatusOK)
	w.Write(body)
}

func (s *Server) reconcileHandler(w http.ResponseWriter, r *http.Request) {
	changes, err := s.ledger.Reconcile(r.Context())
	if err != nil {
		writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, changes)
}
