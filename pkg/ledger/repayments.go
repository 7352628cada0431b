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

func (s *Service) loanCodeFor(ctx context.Context, q store.Storage, loanID *int64) (string, error) {
	if loanID == nil {
		return "", nil
	}
	loan, err := q.GetLoan(ctx, *loanID)
	if err == store.ErrNotFound {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return loan.LoanCode, nil
}

// CreateRepayment records a repayment: any pending compound growth is
// applied first, then the balance drops by the repayment amount and the
// cash lands in the bank ledger. When the repayment references a loan it
// must fit within that loan's remaining compounded balance.
func (s *Service) CreateRepayment(ctx context.Context, repayment *models.Repayment) error {
	return s.storage.InTransaction(ctx, func(tx store.Storage) error {
		customer, err := tx.GetCustomer(ctx, repayment.CustomerID)
		if err == store.ErrNotFound {
			return ErrCustomerNotFound
		}
		if err != nil {
			return err
		}
		var loanRef *models.Loan
		if repayment.LoanID != nil {
			loanRef, err = tx.GetLoan(ctx, *repayment.LoanID)
			if err == store.ErrNotFound {
				return ErrLoanNotFound
			}
			if err != nil {
				return err
			}
			if err := s.assertWithinLoanBalance(ctx, tx, loanRef, repayment.RepaymentAmount, nil); err != nil {
				return err
			}
		}
		now := s.now()
		if repayment.RepaymentDate.IsZero() {
			repayment.RepaymentDate = now
		}
		if repayment.CreatedAt.IsZero() {
			repayment.CreatedAt = now
			repayment.UpdatedAt = now
		}

		deduction := repayment.RepaymentAmount.Abs().Neg()
		if _, err := s.Advance(ctx, tx, customer, now); err != nil {
			return err
		}
		previousBalance := money.Round(customer.ProjectedBalance)
		if previousBalance.IsNegative() {
			previousBalance = decimal.Zero
		}
		if _, err := s.ApplyDelta(ctx, tx, customer, deduction, now); err != nil {
			return err
		}
		customer.LastPrincipal = customer.LastPrincipal.Add(deduction)
		if err := tx.UpdateCustomer(ctx, customer); err != nil {
			return err
		}
		if err := tx.CreateRepayment(ctx, repayment); err != nil {
			return err
		}

		var loanCode string
		if loanRef != nil {
			loanCode = loanRef.LoanCode
		}
		if _, err := s.recordBalanceEvent(ctx, tx, customer, models.EventRepayment, deduction,
			"Repayment recorded", map[string]interface{}{
				"repayment_id":     repayment.ID,
				"repayment_amount": repayment.RepaymentAmount.Abs().StringFixed(2),
				"loan_id":          repayment.LoanID,
				"loan_code":        loanCode,
				"previous_balance": previousBalance.StringFixed(2),
			}, repayment.RepaymentDate); err != nil {
			return err
		}
		reference := loanCode
		if reference == "" {
			reference = fmt.Sprintf("%d", repayment.ID)
		}
		if _, err := s.recordBankTransaction(ctx, tx, models.BankRepaymentReceipt,
			money.Round(repayment.RepaymentAmount.Abs()),
			fmt.Sprintf("Repayment %s received %s", reference, repayment.RepaymentAmount.Abs().StringFixed(2)),
			"repayment", &repayment.ID, &repayment.CustomerID); err != nil {
			return err
		}
		return s.logOperation(ctx, tx, "repayment", &repayment.ID, "create",
			fmt.Sprintf("Created repayment, amount %s", repayment.RepaymentAmount.StringFixed(2)),
			map[string]interface{}{"repayment_amount": repayment.RepaymentAmount.StringFixed(2)})
	})
}

// GetRepayment fetches one repayment by ID.
func (s *Service) GetRepayment(ctx context.Context, id int64) (*models.Repayment, error) {
	repayment, err := s.storage.GetRepayment(ctx, id)
	if err == store.ErrNotFound {
		return nil, ErrRepaymentNotFound
	}
	return repayment, err
}

// RepaymentUpdate carries optional repayment field changes.
type RepaymentUpdate struct {
	RepaymentAmount *decimal.Decimal
	RepaymentDate   *time.Time
	Note            *string
}

func (u RepaymentUpdate) empty() bool {
	return u.RepaymentAmount == nil && u.RepaymentDate == nil && u.Note == nil
}

// UpdateRepayment edits a repayment. An amount change is re-validated
// against the loan's remaining balance (excluding this repayment's own
// contribution), replayed as a repayment_adjustment, and the cash
// difference moves through the bank ledger.
func (s *Service) UpdateRepayment(ctx context.Context, id int64, update RepaymentUpdate) (*models.Repayment, error) {
	if update.empty() {
		return nil, ErrNoFieldsToUpdate
	}
	var repayment *models.Repayment
	err := s.storage.InTransaction(ctx, func(tx store.Storage) error {
		var err error
		repayment, err = tx.GetRepayment(ctx, id)
		if err == store.ErrNotFound {
			return ErrRepaymentNotFound
		}
		if err != nil {
			return err
		}
		customer, err := tx.GetCustomer(ctx, repayment.CustomerID)
		if err != nil {
			return err
		}
		now := s.now()
		var loanRef *models.Loan
		var loanCode string
		if repayment.LoanID != nil {
			loanRef, err = tx.GetLoan(ctx, *repayment.LoanID)
			if err == store.ErrNotFound {
				return ErrLoanNotFound
			}
			if err != nil {
				return err
			}
			loanCode = loanRef.LoanCode
		}
		var changes []string

		if update.RepaymentAmount != nil {
			newAmount := update.RepaymentAmount.Abs()
			oldAmount := repayment.RepaymentAmount.Abs()
			if loanRef != nil && !money.Negligible(newAmount.Sub(oldAmount)) {
				if err := s.assertWithinLoanBalance(ctx, tx, loanRef, newAmount, &repayment.ID); err != nil {
					return err
				}
			}
			delta := oldAmount.Sub(newAmount)
			if !money.Negligible(delta) {
				if _, err := s.ApplyDelta(ctx, tx, customer, delta, now); err != nil {
					return err
				}
				customer.LastPrincipal = customer.LastPrincipal.Add(delta)
				if _, err := s.recordBalanceEvent(ctx, tx, customer, models.EventRepaymentAdjustment, delta,
					"Repayment amount adjusted", map[string]interface{}{
						"repayment_id":    repayment.ID,
						"previous_amount": oldAmount.StringFixed(2),
						"new_amount":      newAmount.StringFixed(2),
						"loan_code":       loanCode,
					}, now); err != nil {
					return err
				}
			}
			cashDelta := newAmount.Sub(repayment.RepaymentAmount)
			repayment.RepaymentAmount = newAmount
			changes = append(changes, fmt.Sprintf("amount %s -> %s", oldAmount.StringFixed(2), newAmount.StringFixed(2)))
			if !money.Negligible(cashDelta) {
				if _, err := s.recordBankTransaction(ctx, tx, models.BankRepaymentAdjustment,
					money.Round(cashDelta),
					fmt.Sprintf("Adjusted repayment %d amount %s", repayment.ID, signedAmount(cashDelta)),
					"repayment", &repayment.ID, &repayment.CustomerID); err != nil {
					return err
				}
			}
		}
		if update.RepaymentDate != nil && !update.RepaymentDate.Equal(repayment.RepaymentDate) {
			changes = append(changes, fmt.Sprintf("repayment date %s -> %s",
				repayment.RepaymentDate.Format("2006-01-02"), update.RepaymentDate.Format("2006-01-02")))
			repayment.RepaymentDate = *update.RepaymentDate
		}
		if update.Note != nil && *update.Note != repayment.Note {
			changes = append(changes, fmt.Sprintf("note %s -> %s",
				displayValue(repayment.Note), displayValue(*update.Note)))
			repayment.Note = *update.Note
		}

		repayment.UpdatedAt = now
		if err := tx.UpdateCustomer(ctx, customer); err != nil {
			return err
		}
		if err := tx.UpdateRepayment(ctx, repayment); err != nil {
			return err
		}
		if len(changes) == 0 {
			return nil
		}
		return s.logOperation(ctx, tx, "repayment", &repayment.ID, "update",
			strings.Join(changes, "; "), nil)
	})
	if err != nil {
		return nil, err
	}
	return repayment, nil
}

// DeleteRepayment reverses a repayment: the amount returns to the
// compounding balance and leaves the bank ledger as a repayment_reversal.
func (s *Service) DeleteRepayment(ctx context.Context, id int64) (*models.Repayment, error) {
	var repayment *models.Repayment
	err := s.storage.InTransaction(ctx, func(tx store.Storage) error {
		var err error
		repayment, err = tx.GetRepayment(ctx, id)
		if err == store.ErrNotFound {
			return ErrRepaymentNotFound
		}
		if err != nil {
			return err
		}
		customer, err := tx.GetCustomer(ctx, repayment.CustomerID)
		if err != nil {
			return err
		}
		now := s.now()
		addition := repayment.RepaymentAmount.Abs()
		if _, err := s.ApplyDelta(ctx, tx, customer, addition, now); err != nil {
			return err
		}
		customer.LastPrincipal = customer.LastPrincipal.Add(addition)
		if err := tx.UpdateCustomer(ctx, customer); err != nil {
			return err
		}
		loanCode, err := s.loanCodeFor(ctx, tx, repayment.LoanID)
		if err != nil {
			return err
		}
		if _, err := s.recordBalanceEvent(ctx, tx, customer, models.EventRepaymentReversal, addition,
			"Repayment deleted", map[string]interface{}{
				"repayment_id":     repayment.ID,
				"repayment_amount": repayment.RepaymentAmount.StringFixed(2),
				"loan_id":          repayment.LoanID,
				"loan_code":        loanCode,
			}, now); err != nil {
			return err
		}
		if _, err := s.recordBankTransaction(ctx, tx, models.BankRepaymentReversal,
			money.Round(addition).Neg(),
			fmt.Sprintf("Deleted repayment %d", repayment.ID),
			"repayment", &repayment.ID, &repayment.CustomerID); err != nil {
			return err
		}
		if err := s.logOperation(ctx, tx, "repayment", &repayment.ID, "delete",
			fmt.Sprintf("Deleted repayment, restored amount %s", addition.StringFixed(2)),
			map[string]interface{}{"repayment_amount": repayment.RepaymentAmount.StringFixed(2)}); err != nil {
			return err
		}
		return tx.DeleteRepayment(ctx, id)
	})
	if err != nil {
		return nil, err
	}
	return repayment, nil
}

// RepaymentView is a repayment row joined with customer and loan context.
type RepaymentView struct {
	*models.Repayment
	CustomerCode string `json:"customer_code"`
	CustomerName string `json:"customer_name"`
	LoanCode     string `json:"loan_code,omitempty"`
}

// ListRepayments returns every repayment with customer and loan context,
// newest first.
func (s *Service) ListRepayments(ctx context.Context) ([]*RepaymentView, error) {
	var views []*RepaymentView
	err := s.storage.InTransaction(ctx, func(tx store.Storage) error {
		repayments, err := tx.ListRepayments(ctx)
		if err != nil {
			return err
		}
		customers := make(map[int64]*models.Customer)
		loanCodes := make(map[int64]string)
		for _, repayment := range repayments {
			customer, ok := customers[repayment.CustomerID]
			if !ok {
				customer, err = tx.GetCustomer(ctx, repayment.CustomerID)
				if err != nil && err != store.ErrNotFound {
					return err
				}
				customers[repayment.CustomerID] = customer
			}
			view := &RepaymentView{Repayment: repayment}
			if customer != nil {
				view.CustomerCode = customer.CustomerCode
				view.CustomerName = customer.Name
			}
			if repayment.LoanID != nil {
				code, ok := loanCodes[*repayment.LoanID]
				if !ok {
					code, err = s.loanCodeFor(ctx, tx, repayment.LoanID)
					if err != nil {
						return err
					}
					loanCodes[*repayment.LoanID] = code
				}
				view.LoanCode = code
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

// ListRepaymentsByCustomer returns one customer's repayments, newest first.
func (s *Service) ListRepaymentsByCustomer(ctx context.Context, customerID int64) ([]*models.Repayment, error) {
	return s.storage.ListRepaymentsByCustomer(ctx, customerID)
}
