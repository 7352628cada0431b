package ledger

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jordentan9538/loanledger/pkg/models"
	"github.com/jordentan9538/loanledger/pkg/money"
	"github.com/jordentan9538/loanledger/pkg/store"
)

// CreateLoan disburses a loan: the compounding balance grows by the
// compounded amount, the bank ledger pays out the cash amount, and a
// loan_disbursement event records the change.
func (s *Service) CreateLoan(ctx context.Context, loan *models.Loan) error {
	return s.storage.InTransaction(ctx, func(tx store.Storage) error {
		customer, err := tx.GetCustomer(ctx, loan.CustomerID)
		if err == store.ErrNotFound {
			return ErrCustomerNotFound
		}
		if err != nil {
			return err
		}
		now := s.now()
		if loan.LoanDate.IsZero() {
			loan.LoanDate = now
		}
		if loan.CreatedAt.IsZero() {
			loan.CreatedAt = now
			loan.UpdatedAt = now
		}
		if loan.LoanCode == "" {
			code, err := s.generateLoanCode(ctx, tx, customer)
			if err != nil {
				return err
			}
			loan.LoanCode = code
		}

		addition := s.compounded(loan.LoanAmount)
		if _, err := s.ApplyDelta(ctx, tx, customer, addition, now); err != nil {
			return err
		}
		customer.LastPrincipal = customer.LastPrincipal.Add(addition)
		if err := tx.UpdateCustomer(ctx, customer); err != nil {
			return err
		}
		if err := tx.CreateLoan(ctx, loan); err != nil {
			return err
		}

		if _, err := s.recordBalanceEvent(ctx, tx, customer, models.EventLoanDisbursement, addition,
			"Loan disbursed", map[string]interface{}{
				"loan_id":           loan.ID,
				"loan_code":         loan.LoanCode,
				"loan_amount":       loan.LoanAmount.StringFixed(2),
				"compounded_amount": addition.StringFixed(2),
			}, loan.LoanDate); err != nil {
			return err
		}
		if _, err := s.recordBankTransaction(ctx, tx, models.BankLoanDisbursement,
			money.Round(loan.LoanAmount).Neg(),
			fmt.Sprintf("Loan %s disbursed %s", loan.LoanCode, loan.LoanAmount.StringFixed(2)),
			"loan", &loan.ID, &loan.CustomerID); err != nil {
			return err
		}
		return s.logOperation(ctx, tx, "loan", &loan.ID, "create",
			fmt.Sprintf("Created loan, amount %s, fee %s", loan.LoanAmount.StringFixed(2), loan.ProcessingFee.StringFixed(2)),
			map[string]interface{}{
				"loan_amount":    loan.LoanAmount.StringFixed(2),
				"processing_fee": loan.ProcessingFee.StringFixed(2),
			})
	})
}

// GetLoan fetches one loan by ID.
func (s *Service) GetLoan(ctx context.Context, id int64) (*models.Loan, error) {
	loan, err := s.storage.GetLoan(ctx, id)
	if err == store.ErrNotFound {
		return nil, ErrLoanNotFound
	}
	return loan, err
}

// LoanUpdate carries optional loan field changes. Nil fields are untouched.
type LoanUpdate struct {
	LoanAmount    *decimal.Decimal
	LoanDate      *time.Time
	ProcessingFee *decimal.Decimal
	InterestRate  *decimal.Decimal
	InterestType  *string
	Note          *string
}

func (u LoanUpdate) empty() bool {
	return u.LoanAmount == nil && u.LoanDate == nil && u.ProcessingFee == nil &&
		u.InterestRate == nil && u.InterestType == nil && u.Note == nil
}

// UpdateLoan edits a loan. An amount change replays through the compounding
// balance as a loan_adjustment and moves the cash difference through the
// bank ledger; other fields are plain edits.
func (s *Service) UpdateLoan(ctx context.Context, id int64, update LoanUpdate) (*models.Loan, error) {
	if update.empty() {
		return nil, ErrNoFieldsToUpdate
	}
	var loan *models.Loan
	err := s.storage.InTransaction(ctx, func(tx store.Storage) error {
		var err error
		loan, err = tx.GetLoan(ctx, id)
		if err == store.ErrNotFound {
			return ErrLoanNotFound
		}
		if err != nil {
			return err
		}
		customer, err := tx.GetCustomer(ctx, loan.CustomerID)
		if err != nil {
			return err
		}
		now := s.now()
		var changes []string

		if update.LoanAmount != nil {
			newAmount := *update.LoanAmount
			oldEffect := s.compounded(loan.LoanAmount)
			newEffect := s.compounded(newAmount)
			delta := newEffect.Sub(oldEffect)
			if !money.Negligible(delta) {
				if _, err := s.ApplyDelta(ctx, tx, customer, delta, now); err != nil {
					return err
				}
				customer.LastPrincipal = customer.LastPrincipal.Add(delta)
				if _, err := s.recordBalanceEvent(ctx, tx, customer, models.EventLoanAdjustment, delta,
					"Loan amount adjusted", map[string]interface{}{
						"loan_id":                   loan.ID,
						"loan_code":                 loan.LoanCode,
						"previous_effective_amount": oldEffect.StringFixed(2),
						"new_effective_amount":      newEffect.StringFixed(2),
					}, now); err != nil {
					return err
				}
			}
			cashDelta := newAmount.Sub(loan.LoanAmount)
			loan.LoanAmount = newAmount
			changes = append(changes, fmt.Sprintf("amount %s -> %s", oldEffect.StringFixed(2), newEffect.StringFixed(2)))
			if !money.Negligible(cashDelta) {
				code, err := s.ensureLoanCode(ctx, tx, loan)
				if err != nil {
					return err
				}
				if _, err := s.recordBankTransaction(ctx, tx, models.BankLoanAdjustment,
					money.Round(cashDelta).Neg(),
					fmt.Sprintf("Adjusted loan %s amount %s", code, signedAmount(cashDelta)),
					"loan", &loan.ID, &loan.CustomerID); err != nil {
					return err
				}
			}
		}
		if update.LoanDate != nil && !update.LoanDate.Equal(loan.LoanDate) {
			changes = append(changes, fmt.Sprintf("loan date %s -> %s",
				loan.LoanDate.Format("2006-01-02"), update.LoanDate.Format("2006-01-02")))
			loan.LoanDate = *update.LoanDate
		}
		if update.ProcessingFee != nil && !update.ProcessingFee.Equal(loan.ProcessingFee) {
			changes = append(changes, fmt.Sprintf("processing fee %s -> %s",
				loan.ProcessingFee.StringFixed(2), update.ProcessingFee.StringFixed(2)))
			loan.ProcessingFee = *update.ProcessingFee
		}
		if update.InterestRate != nil && !update.InterestRate.Equal(loan.InterestRate) {
			changes = append(changes, fmt.Sprintf("interest rate %s -> %s",
				loan.InterestRate.String(), update.InterestRate.String()))
			loan.InterestRate = *update.InterestRate
		}
		if update.InterestType != nil && *update.InterestType != loan.InterestType {
			changes = append(changes, fmt.Sprintf("interest type %s -> %s",
				displayValue(loan.InterestType), displayValue(*update.InterestType)))
			loan.InterestType = *update.InterestType
		}
		if update.Note != nil && *update.Note != loan.Note {
			changes = append(changes, fmt.Sprintf("note %s -> %s",
				displayValue(loan.Note), displayValue(*update.Note)))
			loan.Note = *update.Note
		}

		loan.UpdatedAt = now
		if err := tx.UpdateCustomer(ctx, customer); err != nil {
			return err
		}
		if err := tx.UpdateLoan(ctx, loan); err != nil {
			return err
		}
		if len(changes) == 0 {
			return nil
		}
		return s.logOperation(ctx, tx, "loan", &loan.ID, "update",
			strings.Join(changes, "; "), nil)
	})
	if err != nil {
		return nil, err
	}
	return loan, nil
}

// DeleteLoan writes off a loan: the compounded amount leaves the compounding
// balance and the cash amount returns to the bank as a loan_reversal.
// Repayments that referenced the loan keep their reference; the auditor
// reports them as dangling.
func (s *Service) DeleteLoan(ctx context.Context, id int64) (*models.Loan, error) {
	var loan *models.Loan
	err := s.storage.InTransaction(ctx, func(tx store.Storage) error {
		var err error
		loan, err = tx.GetLoan(ctx, id)
		if err == store.ErrNotFound {
			return ErrLoanNotFound
		}
		if err != nil {
			return err
		}
		customer, err := tx.GetCustomer(ctx, loan.CustomerID)
		if err != nil {
			return err
		}
		now := s.now()
		deduction := s.compounded(loan.LoanAmount).Neg()
		if _, err := s.ApplyDelta(ctx, tx, customer, deduction, now); err != nil {
			return err
		}
		customer.LastPrincipal = customer.LastPrincipal.Add(deduction)
		if err := tx.UpdateCustomer(ctx, customer); err != nil {
			return err
		}
		if _, err := s.recordBalanceEvent(ctx, tx, customer, models.EventLoanWriteoff, deduction,
			"Loan deleted", map[string]interface{}{
				"loan_id":     loan.ID,
				"loan_code":   loan.LoanCode,
				"loan_amount": loan.LoanAmount.StringFixed(2),
			}, now); err != nil {
			return err
		}
		if _, err := s.recordBankTransaction(ctx, tx, models.BankLoanReversal,
			money.Round(loan.LoanAmount.Abs()),
			fmt.Sprintf("Deleted loan %s", loanLabel(loan)),
			"loan", &loan.ID, &loan.CustomerID); err != nil {
			return err
		}
		if err := s.logOperation(ctx, tx, "loan", &loan.ID, "delete",
			fmt.Sprintf("Deleted loan, reversed amount %s", deduction.Abs().StringFixed(2)),
			map[string]interface{}{"loan_amount": loan.LoanAmount.StringFixed(2)}); err != nil {
			return err
		}
		return tx.DeleteLoan(ctx, id)
	})
	if err != nil {
		return nil, err
	}
	return loan, nil
}

// LoanView is a loan row joined with its customer and the repayable balance
// still open against it.
type LoanView struct {
	*models.Loan
	CustomerCode     string          `json:"customer_code"`
	CustomerName     string          `json:"customer_name"`
	EffectiveAmount  decimal.Decimal `json:"effective_amount"`
	RemainingBalance decimal.Decimal `json:"remaining_balance"`
}

// ListLoans returns every loan with customer context and remaining
// compounded balance, newest first.
func (s *Service) ListLoans(ctx context.Context) ([]*LoanView, error) {
	var views []*LoanView
	err := s.storage.InTransaction(ctx, func(tx store.Storage) error {
		loans, err := tx.ListLoans(ctx)
		if err != nil {
			return err
		}
		customers := make(map[int64]*models.Customer)
		for _, loan := range loans {
			customer, ok := customers[loan.CustomerID]
			if !ok {
				customer, err = tx.GetCustomer(ctx, loan.CustomerID)
				if err != nil && err != store.ErrNotFound {
					return err
				}
				customers[loan.CustomerID] = customer
			}
			remaining, err := s.remainingLoanBalance(ctx, tx, loan, nil)
			if err != nil {
				return err
			}
			view := &LoanView{
				Loan:             loan,
				EffectiveAmount:  s.compounded(loan.LoanAmount),
				RemainingBalance: remaining,
			}
			if customer != nil {
				view.CustomerCode = customer.CustomerCode
				view.CustomerName = customer.Name
			}
			views = append(views, view)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return views, nil
}

// ListLoansByCustomer returns one customer's loans, newest first.
func (s *Service) ListLoansByCustomer(ctx context.Context, customerID int64) ([]*models.Loan, error) {
	return s.storage.ListLoansByCustomer(ctx, customerID)
}
