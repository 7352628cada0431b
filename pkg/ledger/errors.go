package ledger

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	// ErrInvalidAmount rejects a zero monetary input before any write.
	ErrInvalidAmount = errors.New("amount must not be zero")

	// ErrInvalidDirection rejects a manual bank adjustment whose direction is
	// neither "deposit" nor "withdrawal".
	ErrInvalidDirection = errors.New(`direction must be "deposit" or "withdrawal"`)

	ErrCustomerNotFound  = errors.New("customer not found")
	ErrLoanNotFound      = errors.New("loan not found")
	ErrRepaymentNotFound = errors.New("repayment not found")

	// ErrCustomerCodeExists rejects a duplicate business code on create/update.
	ErrCustomerCodeExists = errors.New("customer_code already exists")

	// ErrLoanCustomerMismatch rejects a loan reference that belongs to a
	// different customer.
	ErrLoanCustomerMismatch = errors.New("loan does not belong to the customer")

	// ErrLoanRequired rejects a manual balance change with no loan reference.
	ErrLoanRequired = errors.New("a loan reference is required for balance adjustments")

	// ErrLoanExhausted rejects a manual balance change against a loan whose
	// compounded balance is already zero.
	ErrLoanExhausted = errors.New("loan compounded balance is already zero")

	ErrNoFieldsToUpdate = errors.New("no fields to update")
)

// InsufficientLoanBalanceError reports a repayment that would exceed a loan's
// remaining compounded balance. Remaining is the amount still repayable.
type InsufficientLoanBalanceError struct {
	LoanLabel string
	Remaining decimal.Decimal
}

func (e *InsufficientLoanBalanceError) Error() string {
	if !e.Remaining.IsPositive() {
		return fmt.Sprintf("loan %s has no compounded balance left to repay", e.LoanLabel)
	}
	return fmt.Sprintf("loan %s has only %s compounded balance left; enter a repayment no larger than that",
		e.LoanLabel, e.Remaining.StringFixed(2))
}
