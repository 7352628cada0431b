package store

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jordentan9538/loanledger/pkg/models"
)

// ErrNotFound is returned when a row does not exist. The ledger maps it to an
// entity-specific error at the boundary.
var ErrNotFound = errors.New("not found")

// BankFilter narrows a bank ledger listing. Search matches transaction type,
// note, or reference type by substring; when the text parses as an integer it
// additionally matches reference_id and customer_id exactly.
type BankFilter struct {
	StartAt *time.Time
	EndAt   *time.Time
	Search  string
}

// LogFilter narrows an operation log listing.
type LogFilter struct {
	EntityType string
	EntityID   *int64
	StartAt    *time.Time
	EndAt      *time.Time
	Limit      int
}

// LoanTotals aggregates loans for the overall report.
type LoanTotals struct {
	Count       int64
	TotalAmount decimal.Decimal
	TotalFees   decimal.Decimal
}

// RepaymentTotals aggregates repayments for the overall report.
type RepaymentTotals struct {
	Count       int64
	TotalAmount decimal.Decimal
}

// Storage defines the database operations the ledger engine and auditor rely
// on. InTransaction hands the callback a Storage bound to one transaction so
// every business operation's writes commit or roll back as a unit.
type Storage interface {
	// InTransaction runs fn against a transaction-scoped Storage. It commits
	// when fn returns nil and rolls back otherwise. Nested calls reuse the
	// surrounding transaction.
	InTransaction(ctx context.Context, fn func(Storage) error) error

	CreateCustomer(ctx context.Context, customer *models.Customer) error
	GetCustomer(ctx context.Context, id int64) (*models.Customer, error)
	GetCustomerByCode(ctx context.Context, code string) (*models.Customer, error)
	UpdateCustomer(ctx context.Context, customer *models.Customer) error
	ListCustomers(ctx context.Context) ([]*models.Customer, error)
	CountCustomers(ctx context.Context, startAt, endAt *time.Time) (int64, error)

	CreateLoan(ctx context.Context, loan *models.Loan) error
	GetLoan(ctx context.Context, id int64) (*models.Loan, error)
	GetLoanByCode(ctx context.Context, code string) (*models.Loan, error)
	UpdateLoan(ctx context.Context, loan *models.Loan) error
	DeleteLoan(ctx context.Context, id int64) error
	ListLoans(ctx context.Context) ([]*models.Loan, error)
	ListLoansByCustomer(ctx context.Context, customerID int64) ([]*models.Loan, error)
	SumLoanRepayments(ctx context.Context, loanID int64, excludeRepaymentID *int64) (decimal.Decimal, error)
	LoanTotals(ctx context.Context, startAt, endAt *time.Time) (LoanTotals, error)

	CreateRepayment(ctx context.Context, repayment *models.Repayment) error
	GetRepayment(ctx context.Context, id int64) (*models.Repayment, error)
	UpdateRepayment(ctx context.Context, repayment *models.Repayment) error
	DeleteRepayment(ctx context.Context, id int64) error
	ListRepayments(ctx context.Context) ([]*models.Repayment, error)
	ListRepaymentsByCustomer(ctx context.Context, customerID int64) ([]*models.Repayment, error)
	RepaymentTotals(ctx context.Context, startAt, endAt *time.Time) (RepaymentTotals, error)

	CreateBalanceEvent(ctx context.Context, event *models.BalanceEvent) error
	HasBalanceEvents(ctx context.Context, customerID int64) (bool, error)
	ListBalanceEvents(ctx context.Context, customerID int64) ([]*models.BalanceEvent, error)
	ListAllBalanceEvents(ctx context.Context) ([]*models.BalanceEvent, error)

	CreateBankTransaction(ctx context.Context, tx *models.BankTransaction) error
	LatestBankTransaction(ctx context.Context) (*models.BankTransaction, error)
	ListBankTransactions(ctx context.Context, filter BankFilter, limit, offset int) ([]*models.BankTransaction, int64, error)

	CreateOperationLog(ctx context.Context, entry *models.OperationLog) error
	ListOperationLogs(ctx context.Context, filter LogFilter) ([]*models.OperationLog, error)

	Close() error
}
