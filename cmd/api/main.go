package main

import (
	"encoding/json"
	"errors"
	"flag"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	"github.com/jordentan9538/loanledger/pkg/ledger"
	"github.com/jordentan9538/loanledger/pkg/models"
	"github.com/jordentan9538/loanledger/pkg/money"
	"github.com/jordentan9538/loanledger/pkg/store"
)

// Server holds the ledger service instance.
type Server struct {
	ledger  *ledger.Service
	storage store.Storage // Keep a reference to the storage to close it
}

func NewServer(s store.Storage) *Server {
	return &Server{
		ledger:  ledger.New(s),
		storage: s,
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	var insufficient *ledger.InsufficientLoanBalanceError
	switch {
	case errors.Is(err, ledger.ErrCustomerNotFound),
		errors.Is(err, ledger.ErrLoanNotFound),
		errors.Is(err, ledger.ErrRepaymentNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, ledger.ErrCustomerCodeExists):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.As(err, &insufficient),
		errors.Is(err, ledger.ErrInvalidAmount),
		errors.Is(err, ledger.ErrInvalidDirection),
		errors.Is(err, ledger.ErrLoanCustomerMismatch),
		errors.Is(err, ledger.ErrLoanRequired),
		errors.Is(err, ledger.ErrLoanExhausted),
		errors.Is(err, ledger.ErrNoFieldsToUpdate):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		log.Printf("Internal error: %v\n", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func pathID(r *http.Request) (int64, error) {
	return strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
}

// parseTime accepts RFC3339 timestamps or plain dates in the ledger's
// local timezone.
func parseTime(value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return &t, nil
	}
	t, err := time.ParseInLocation("2006-01-02", value, money.DefaultLocation)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *Server) summaryHandler(w http.ResponseWriter, r *http.Request) {
	entries, err := s.ledger.Summary(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, entries)
}

func (s *Server) reportHandler(w http.ResponseWriter, r *http.Request) {
	startAt, err := parseTime(r.URL.Query().Get("start_at"))
	if err != nil {
		http.Error(w, "Invalid start_at", http.StatusBadRequest)
		return
	}
	endAt, err := parseTime(r.URL.Query().Get("end_at"))
	if err != nil {
		http.Error(w, "Invalid end_at", http.StatusBadRequest)
		return
	}
	report, err := s.ledger.Report(r.Context(), startAt, endAt)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, report)
}

func (s *Server) listCustomersHandler(w http.ResponseWriter, r *http.Request) {
	customers, err := s.ledger.ListCustomers(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, customers)
}

func (s *Server) createCustomerHandler(w http.ResponseWriter, r *http.Request) {
	var customer models.Customer
	if err := json.NewDecoder(r.Body).Decode(&customer); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := s.ledger.CreateCustomer(r.Context(), &customer); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, customer)
}

func (s *Server) getCustomerHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		http.Error(w, "Invalid customer ID", http.StatusBadRequest)
		return
	}
	customer, err := s.ledger.GetCustomer(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, customer)
}

func (s *Server) updateCustomerHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		http.Error(w, "Invalid customer ID", http.StatusBadRequest)
		return
	}
	var req struct {
		CustomerCode *string `json:"customer_code"`
		Name         *string `json:"name"`
		Phone        *string `json:"phone"`
		IDCard       *string `json:"id_card"`
		Address      *string `json:"address"`
		Note         *string `json:"note"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	customer, err := s.ledger.UpdateCustomer(r.Context(), id, ledger.CustomerUpdate{
		CustomerCode: req.CustomerCode,
		Name:         req.Name,
		Phone:        req.Phone,
		IDCard:       req.IDCard,
		Address:      req.Address,
		Note:         req.Note,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, customer)
}

func (s *Server) updateCustomerBalanceHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		http.Error(w, "Invalid customer ID", http.StatusBadRequest)
		return
	}
	var req struct {
		ProjectedBalance *decimal.Decimal `json:"projected_balance"`
		AdjustAmount     *decimal.Decimal `json:"adjust_amount"`
		NextCompoundAt   *time.Time       `json:"next_compound_at"`
		LoanID           *int64           `json:"loan_id"`
		LoanCode         string           `json:"loan_code"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	customer, err := s.ledger.UpdateCustomerBalance(r.Context(), id, ledger.BalanceUpdate{
		ProjectedBalance: req.ProjectedBalance,
		AdjustAmount:     req.AdjustAmount,
		NextCompoundAt:   req.NextCompoundAt,
		LoanID:           req.LoanID,
		LoanCode:         req.LoanCode,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, customer)
}

func (s *Server) customerTimelineHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		http.Error(w, "Invalid customer ID", http.StatusBadRequest)
		return
	}
	timeline, err := s.ledger.Timeline(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, timeline)
}

func (s *Server) listLoansHandler(w http.ResponseWriter, r *http.Request) {
	loans, err := s.ledger.ListLoans(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, loans)
}

func (s *Server) createLoanHandler(w http.ResponseWriter, r *http.Request) {
	var loan models.Loan
	if err := json.NewDecoder(r.Body).Decode(&loan); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if loan.LoanAmount.IsNegative() {
		http.Error(w, "Loan amount cannot be negative", http.StatusBadRequest)
		return
	}
	if err := s.ledger.CreateLoan(r.Context(), &loan); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, loan)
}

func (s *Server) getLoanHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		http.Error(w, "Invalid loan ID", http.StatusBadRequest)
		return
	}
	loan, err := s.ledger.GetLoan(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, loan)
}

func (s *Server) updateLoanHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		http.Error(w, "Invalid loan ID", http.StatusBadRequest)
		return
	}
	var req struct {
		LoanAmount    *decimal.Decimal `json:"loan_amount"`
		LoanDate      *time.Time       `json:"loan_date"`
		ProcessingFee *decimal.Decimal `json:"processing_fee"`
		InterestRate  *decimal.Decimal `json:"interest_rate"`
		InterestType  *string          `json:"interest_type"`
		Note          *string          `json:"note"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	loan, err := s.ledger.UpdateLoan(r.Context(), id, ledger.LoanUpdate{
		LoanAmount:    req.LoanAmount,
		LoanDate:      req.LoanDate,
		ProcessingFee: req.ProcessingFee,
		InterestRate:  req.InterestRate,
		InterestType:  req.InterestType,
		Note:          req.Note,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, loan)
}

func (s *Server) deleteLoanHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		http.Error(w, "Invalid loan ID", http.StatusBadRequest)
		return
	}
	loan, err := s.ledger.DeleteLoan(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, loan)
}

func (s *Server) listRepaymentsHandler(w http.ResponseWriter, r *http.Request) {
	repayments, err := s.ledger.ListRepayments(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, repayments)
}

func (s *Server) createRepaymentHandler(w http.ResponseWriter, r *http.Request) {
	var repayment models.Repayment
	if err := json.NewDecoder(r.Body).Decode(&repayment); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if repayment.RepaymentAmount.LessThanOrEqual(decimal.Zero) {
		http.Error(w, "Repayment amount must be positive", http.StatusBadRequest)
		return
	}
	if err := s.ledger.CreateRepayment(r.Context(), &repayment); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, repayment)
}

func (s *Server) getRepaymentHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		http.Error(w, "Invalid repayment ID", http.StatusBadRequest)
		return
	}
	repayment, err := s.ledger.GetRepayment(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, repayment)
}

func (s *Server) updateRepaymentHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		http.Error(w, "Invalid repayment ID", http.StatusBadRequest)
		return
	}
	var req struct {
		RepaymentAmount *decimal.Decimal `json:"repayment_amount"`
		RepaymentDate   *time.Time       `json:"repayment_date"`
		Note            *string          `json:"note"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	repayment, err := s.ledger.UpdateRepayment(r.Context(), id, ledger.RepaymentUpdate{
		RepaymentAmount: req.RepaymentAmount,
		RepaymentDate:   req.RepaymentDate,
		Note:            req.Note,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, repayment)
}

func (s *Server) deleteRepaymentHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		http.Error(w, "Invalid repayment ID", http.StatusBadRequest)
		return
	}
	repayment, err := s.ledger.DeleteRepayment(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, repayment)
}

func (s *Server) bankLedgerHandler(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	limit, _ := strconv.Atoi(query.Get("limit"))
	offset, _ := strconv.Atoi(query.Get("offset"))
	startAt, err := parseTime(query.Get("start_at"))
	if err != nil {
		http.Error(w, "Invalid start_at", http.StatusBadRequest)
		return
	}
	endAt, err := parseTime(query.Get("end_at"))
	if err != nil {
		http.Error(w, "Invalid end_at", http.StatusBadRequest)
		return
	}
	page, err := s.ledger.BankLedger(r.Context(), store.BankFilter{
		StartAt: startAt,
		EndAt:   endAt,
		Search:  query.Get("search"),
	}, limit, offset)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, page)
}

func (s *Server) bankAdjustmentHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Amount    decimal.Decimal `json:"amount"`
		Direction string          `json:"direction"`
		Note      string          `json:"note"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	transaction, err := s.ledger.ManualBankAdjustment(r.Context(), req.Amount, req.Direction, req.Note)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, transaction)
}

func (s *Server) listLogsHandler(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter := store.LogFilter{EntityType: query.Get("entity_type")}
	if raw := query.Get("entity_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			http.Error(w, "Invalid entity_id", http.StatusBadRequest)
			return
		}
		filter.EntityID = &id
	}
	filter.Limit, _ = strconv.Atoi(query.Get("limit"))
	startAt, err := parseTime(query.Get("start_at"))
	if err != nil {
		http.Error(w, "Invalid start_at", http.StatusBadRequest)
		return
	}
	endAt, err := parseTime(query.Get("end_at"))
	if err != nil {
		http.Error(w, "Invalid end_at", http.StatusBadRequest)
		return
	}
	filter.StartAt = startAt
	filter.EndAt = endAt
	logs, err := s.ledger.ListOperationLogs(r.Context(), filter)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, logs)
}

func newRouter(server *Server) *mux.Router {
	router := mux.NewRouter()

	router.HandleFunc("/summary", server.summaryHandler).Methods("GET")
	router.HandleFunc("/report", server.reportHandler).Methods("GET")

	router.HandleFunc("/customers", server.listCustomersHandler).Methods("GET")
	router.HandleFunc("/customers", server.createCustomerHandler).Methods("POST")
	router.HandleFunc("/customers/{id}", server.getCustomerHandler).Methods("GET")
	router.HandleFunc("/customers/{id}", server.updateCustomerHandler).Methods("PUT")
	router.HandleFunc("/customers/{id}/balance", server.updateCustomerBalanceHandler).Methods("PUT")
	router.HandleFunc("/customers/{id}/balance-logs", server.customerTimelineHandler).Methods("GET")

	router.HandleFunc("/loans", server.listLoansHandler).Methods("GET")
	router.HandleFunc("/loans", server.createLoanHandler).Methods("POST")
	router.HandleFunc("/loans/{id}", server.getLoanHandler).Methods("GET")
	router.HandleFunc("/loans/{id}", server.updateLoanHandler).Methods("PUT")
	router.HandleFunc("/loans/{id}", server.deleteLoanHandler).Methods("DELETE")

	router.HandleFunc("/repayments", server.listRepaymentsHandler).Methods("GET")
	router.HandleFunc("/repayments", server.createRepaymentHandler).Methods("POST")
	router.HandleFunc("/repayments/{id}", server.getRepaymentHandler).Methods("GET")
	router.HandleFunc("/repayments/{id}", server.updateRepaymentHandler).Methods("PUT")
	router.HandleFunc("/repayments/{id}", server.deleteRepaymentHandler).Methods("DELETE")

	router.HandleFunc("/bank/transactions", server.bankLedgerHandler).Methods("GET")
	router.HandleFunc("/bank/adjustments", server.bankAdjustmentHandler).Methods("POST")

	router.HandleFunc("/logs", server.listLogsHandler).Methods("GET")

	return router
}

func main() {
	dbPath := flag.String("db", "loanledger.db", "Path to the SQLite database file")
	addr := flag.String("addr", ":8080", "Listen address")
	flag.Parse()

	sqliteStore, err := store.NewSQLiteStore(*dbPath)
	if err != nil {
		log.Fatalf("Failed to initialize SQLite store: %v", err)
	}
	defer sqliteStore.Close()

	server := NewServer(sqliteStore)
	router := newRouter(server)

	log.Printf("Server starting on %s\n", *addr)
	log.Fatal(http.ListenAndServe(*addr, router))
}
