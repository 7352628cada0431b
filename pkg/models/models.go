package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Customer is the single mutable aggregate the compounding calculator
// serializes against. ProjectedBalance, LastPrincipal and NextCompoundAt are
// owned by the calculator and never set directly by callers.
type Customer struct {
	ID               int64           `json:"id"`
	CustomerCode     string          `json:"customer_code"`
	Name             string          `json:"name"`
	Phone            string          `json:"phone"`
	IDCard           string          `json:"id_card,omitempty"`
	Address          string          `json:"address,omitempty"`
	Note             string          `json:"note,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
	ProjectedBalance decimal.Decimal `json:"projected_balance"` // current compounding liability, never negative
	LastPrincipal    decimal.Decimal `json:"last_principal"`    // last raw net principal observed
	NextCompoundAt   *time.Time      `json:"next_compound_at,omitempty"`
}

// Loan records a disbursement. Its compounded effect on the customer balance
// is applied once at creation and adjusted incrementally on edits.
type Loan struct {
	ID            int64           `json:"id"`
	CustomerID    int64           `json:"customer_id"`
	LoanCode      string          `json:"loan_code"`
	LoanDate      time.Time       `json:"loan_date"`
	LoanAmount    decimal.Decimal `json:"loan_amount"`
	ProcessingFee decimal.Decimal `json:"processing_fee"`
	InterestRate  decimal.Decimal `json:"interest_rate"`
	InterestType  string          `json:"interest_type"`
	Note          string          `json:"note,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// Repayment is a cash receipt against a loan. The amount is stored positive;
// its effect on the customer balance is always a deduction.
type Repayment struct {
	ID              int64           `json:"id"`
	CustomerID      int64           `json:"customer_id"`
	LoanID          *int64          `json:"loan_id,omitempty"`
	RepaymentDate   time.Time       `json:"repayment_date"`
	RepaymentAmount decimal.Decimal `json:"repayment_amount"`
	Fee             decimal.Decimal `json:"fee"`
	Note            string          `json:"note,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// BalanceEventType classifies the cause of one projected-balance change.
type BalanceEventType string

const (
	EventBaseline            BalanceEventType = "baseline"
	EventLoanDisbursement    BalanceEventType = "loan_disbursement"
	EventRepayment           BalanceEventType = "repayment"
	EventLoanAdjustment      BalanceEventType = "loan_adjustment"
	EventLoanWriteoff        BalanceEventType = "loan_writeoff"
	EventRepaymentAdjustment BalanceEventType = "repayment_adjustment"
	EventRepaymentReversal   BalanceEventType = "repayment_reversal"
	EventCompoundGrowth      BalanceEventType = "compound_growth"
	EventManualAdjust        BalanceEventType = "manual_adjust"
	EventManualOverride      BalanceEventType = "manual_override"
)

// BalanceEvent is one immutable entry in a customer's balance timeline.
// Replaying events in (event_time, id) order reproduces every BalanceAfter.
type BalanceEvent struct {
	ID           int64                  `json:"id"`
	CustomerID   int64                  `json:"customer_id"`
	EventType    BalanceEventType       `json:"event_type"`
	EventTime    time.Time              `json:"event_time"`
	ChangeAmount decimal.Decimal        `json:"change_amount"`
	BalanceAfter decimal.Decimal        `json:"balance_after"`
	Description  string                 `json:"description"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
}

// BankTransactionType classifies a cash movement through the operational
// account.
type BankTransactionType string

const (
	BankLoanDisbursement    BankTransactionType = "loan_disbursement"
	BankRepaymentReceipt    BankTransactionType = "repayment_receipt"
	BankLoanAdjustment      BankTransactionType = "loan_adjustment"
	BankRepaymentAdjustment BankTransactionType = "repayment_adjustment"
	BankLoanReversal        BankTransactionType = "loan_reversal"
	BankRepaymentReversal   BankTransactionType = "repayment_reversal"
	BankManualDeposit       BankTransactionType = "manual_deposit"
	BankManualWithdrawal    BankTransactionType = "manual_withdrawal"
)

// BankTransaction is one immutable entry in the operational account ledger.
// BalanceAfter carries the running account balance at insertion time; the
// ledger balance is the BalanceAfter of the highest-ID row.
type BankTransaction struct {
	ID              int64               `json:"id"`
	TransactionType BankTransactionType `json:"transaction_type"`
	Amount          decimal.Decimal     `json:"amount"`
	BalanceAfter    decimal.Decimal     `json:"balance_after"`
	ReferenceType   string              `json:"reference_type,omitempty"`
	ReferenceID     *int64              `json:"reference_id,omitempty"`
	CustomerID      *int64              `json:"customer_id,omitempty"`
	Note            string              `json:"note,omitempty"`
	CreatedAt       time.Time           `json:"created_at"`
}

// OperationLog is the human-facing audit trail written alongside every
// business mutation, in the same transaction.
type OperationLog struct {
	ID          int64                  `json:"id"`
	EntityType  string                 `json:"entity_type"`
	EntityID    *int64                 `json:"entity_id,omitempty"`
	Action      string                 `json:"action"`
	Description string                 `json:"description"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt   time.Time              `json:"created_at"`
}
