package ledger

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/jordentan9538/loanledger/pkg/models"
	"github.com/jordentan9538/loanledger/pkg/money"
	"github.com/jordentan9538/loanledger/pkg/store"
)

func loanLabel(loan *models.Loan) string {
	if loan.LoanCode != "" {
		return loan.LoanCode
	}
	return fmt.Sprintf("ID %d", loan.ID)
}

// remainingLoanBalance derives the portion of a loan's compounded amount not
// yet offset by repayments, floored at zero. It is recomputed from source
// rows on every call and never cached. excludeRepaymentID leaves one
// in-flight repayment edit out of the sum so it is not counted against
// itself.
func (s *Service) remainingLoanBalance(ctx context.Context, q store.Storage, loan *models.Loan, excludeRepaymentID *int64) (decimal.Decimal, error) {
	paid, err := q.SumLoanRepayments(ctx, loan.ID, excludeRepaymentID)
	if err != nil {
		return decimal.Zero, err
	}
	remaining := s.compounded(loan.LoanAmount).Sub(paid)
	if remaining.IsNegative() {
		return decimal.Zero, nil
	}
	return money.Round(remaining), nil
}

// RemainingLoanBalance is the read-side entry point for the derivation above.
func (s *Service) RemainingLoanBalance(ctx context.Context, loanID int64) (decimal.Decimal, error) {
	loan, err := s.storage.GetLoan(ctx, loanID)
	if err == store.ErrNotFound {
		return decimal.Zero, ErrLoanNotFound
	}
	if err != nil {
		return decimal.Zero, err
	}
	return s.remainingLoanBalance(ctx, s.storage, loan, nil)
}

// assertWithinLoanBalance rejects a repayment amount that would push the
// loan's remaining compounded balance negative. Runs before any state
// mutation on every repayment create and amount edit.
func (s *Service) assertWithinLoanBalance(ctx context.Context, q store.Storage, loan *models.Loan, amount decimal.Decimal, excludeRepaymentID *int64) error {
	normalized := money.Round(amount.Abs())
	allowed, err := s.remainingLoanBalance(ctx, q, loan, excludeRepaymentID)
	if err != nil {
		return err
	}
	if allowed.Sign() <= 0 && normalized.IsPositive() {
		return &InsufficientLoanBalanceError{LoanLabel: loanLabel(loan), Remaining: allowed}
	}
	if !money.Negligible(normalized.Sub(allowed)) && normalized.GreaterThan(allowed) {
		return &InsufficientLoanBalanceError{LoanLabel: loanLabel(loan), Remaining: allowed}
	}
	return nil
}
