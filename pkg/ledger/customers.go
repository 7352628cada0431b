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

// CreateCustomer registers a customer, generating a business code when none
// is supplied and rejecting duplicates.
func (s *Service) CreateCustomer(ctx context.Context, customer *models.Customer) error {
	return s.storage.InTransaction(ctx, func(tx store.Storage) error {
		code := strings.ToUpper(strings.TrimSpace(customer.CustomerCode))
		if code != "" {
			_, err := tx.GetCustomerByCode(ctx, code)
			if err == nil {
				return ErrCustomerCodeExists
			}
			if err != store.ErrNotFound {
				return err
			}
			customer.CustomerCode = code
		} else {
			generated, err := s.generateCustomerCode(ctx, tx)
			if err != nil {
				return err
			}
			customer.CustomerCode = generated
		}
		if customer.CreatedAt.IsZero() {
			customer.CreatedAt = s.now()
		}
		if err := tx.CreateCustomer(ctx, customer); err != nil {
			return err
		}
		return s.logOperation(ctx, tx, "customer", &customer.ID, "create",
			fmt.Sprintf("Created customer %s", customer.CustomerCode),
			map[string]interface{}{"customer_code": customer.CustomerCode})
	})
}

// GetCustomer fetches one customer by ID.
func (s *Service) GetCustomer(ctx context.Context, id int64) (*models.Customer, error) {
	customer, err := s.storage.GetCustomer(ctx, id)
	if err == store.ErrNotFound {
		return nil, ErrCustomerNotFound
	}
	return customer, err
}

// GetCustomerByCode fetches one customer by normalized business code.
func (s *Service) GetCustomerByCode(ctx context.Context, code string) (*models.Customer, error) {
	normalized := strings.ToUpper(strings.TrimSpace(code))
	if normalized == "" {
		return nil, ErrCustomerNotFound
	}
	customer, err := s.storage.GetCustomerByCode(ctx, normalized)
	if err == store.ErrNotFound {
		return nil, ErrCustomerNotFound
	}
	return customer, err
}

// ListCustomers returns every customer, newest first.
func (s *Service) ListCustomers(ctx context.Context) ([]*models.Customer, error) {
	return s.storage.ListCustomers(ctx)
}

// CustomerUpdate carries optional profile field changes. Balance fields are
// deliberately absent; they go through UpdateCustomerBalance, which owns the
// compounding timeline.
type CustomerUpdate struct {
	CustomerCode *string
	Name         *string
	Phone        *string
	IDCard       *string
	Address      *string
	Note         *string
}

// UpdateCustomer applies profile changes and logs each changed field.
func (s *Service) UpdateCustomer(ctx context.Context, id int64, update CustomerUpdate) (*models.Customer, error) {
	var customer *models.Customer
	err := s.storage.InTransaction(ctx, func(tx store.Storage) error {
		var err error
		customer, err = tx.GetCustomer(ctx, id)
		if err == store.ErrNotFound {
			return ErrCustomerNotFound
		}
		if err != nil {
			return err
		}

		var changes []string
		apply := func(label string, field *string, value *string) {
			if value == nil || *field == *value {
				return
			}
			changes = append(changes, fmt.Sprintf("%s %s -> %s", label, displayValue(*field), displayValue(*value)))
			*field = *value
		}

		if update.CustomerCode != nil {
			code := strings.ToUpper(strings.TrimSpace(*update.CustomerCode))
			if code != "" && code != customer.CustomerCode {
				existing, err := tx.GetCustomerByCode(ctx, code)
				if err == nil && existing.ID != customer.ID {
					return ErrCustomerCodeExists
				}
				if err != nil && err != store.ErrNotFound {
					return err
				}
				changes = append(changes, fmt.Sprintf("customer code %s -> %s", customer.CustomerCode, code))
				customer.CustomerCode = code
			}
		}
		apply("name", &customer.Name, update.Name)
		apply("phone", &customer.Phone, update.Phone)
		apply("id card", &customer.IDCard, update.IDCard)
		apply("address", &customer.Address, update.Address)
		apply("note", &customer.Note, update.Note)

		if len(changes) == 0 {
			return nil
		}
		if err := tx.UpdateCustomer(ctx, customer); err != nil {
			return err
		}
		return s.logOperation(ctx, tx, "customer", &customer.ID, "update",
			strings.Join(changes, "; "), nil)
	})
	if err != nil {
		return nil, err
	}
	return customer, nil
}

func displayValue(v string) string {
	if strings.TrimSpace(v) == "" {
		return "-"
	}
	return v
}

// BalanceUpdate is an operator's manual intervention on a customer's
// compounding balance: either an absolute override or a signed adjustment,
// always tied to a loan that still has compounded balance left.
type BalanceUpdate struct {
	ProjectedBalance *decimal.Decimal
	AdjustAmount     *decimal.Decimal
	NextCompoundAt   *time.Time
	LoanID           *int64
	LoanCode         string
}

// UpdateCustomerBalance applies a manual override or adjustment inside the
// compounding timeline, emitting a manual_override or manual_adjust event.
func (s *Service) UpdateCustomerBalance(ctx context.Context, customerID int64, update BalanceUpdate) (*models.Customer, error) {
	var customer *models.Customer
	err := s.storage.InTransaction(ctx, func(tx store.Storage) error {
		var err error
		customer, err = tx.GetCustomer(ctx, customerID)
		if err == store.ErrNotFound {
			return ErrCustomerNotFound
		}
		if err != nil {
			return err
		}
		now := s.now()
		previousBalance := customer.ProjectedBalance

		adjust := decimal.Zero
		if update.AdjustAmount != nil {
			adjust = *update.AdjustAmount
		}
		requiresLoan := update.ProjectedBalance != nil || !money.Negligible(adjust)

		var loanRef *models.Loan
		if update.LoanID != nil {
			loanRef, err = tx.GetLoan(ctx, *update.LoanID)
			if err == store.ErrNotFound {
				return ErrLoanNotFound
			}
			if err != nil {
				return err
			}
		} else if update.LoanCode != "" {
			loanRef, err = tx.GetLoanByCode(ctx, strings.ToUpper(strings.TrimSpace(update.LoanCode)))
			if err == store.ErrNotFound {
				return ErrLoanNotFound
			}
			if err != nil {
				return err
			}
		}
		if loanRef != nil && loanRef.CustomerID != customer.ID {
			return ErrLoanCustomerMismatch
		}

		var loanRemaining decimal.Decimal
		if requiresLoan {
			if loanRef == nil {
				return ErrLoanRequired
			}
			loanRemaining, err = s.remainingLoanBalance(ctx, tx, loanRef, nil)
			if err != nil {
				return err
			}
			if loanRemaining.Sign() <= 0 {
				return ErrLoanExhausted
			}
		}

		var changes []string
		metadata := map[string]interface{}{}

		if update.ProjectedBalance != nil {
			target := *update.ProjectedBalance
			if target.IsNegative() {
				target = decimal.Zero
			}
			delta := target.Sub(customer.ProjectedBalance)
			if !money.Negligible(delta) {
				if _, err := s.ApplyDelta(ctx, tx, customer, delta, now); err != nil {
					return err
				}
				metadata["projected_balance"] = target.StringFixed(2)
				changes = append(changes, fmt.Sprintf("set compound balance to %s", target.StringFixed(2)))
				eventMetadata := map[string]interface{}{
					"target_balance":   target.StringFixed(2),
					"previous_balance": previousBalance.StringFixed(2),
				}
				addLoanMetadata(eventMetadata, loanRef, loanRemaining)
				if _, err := s.recordBalanceEvent(ctx, tx, customer, models.EventManualOverride, delta,
					"Manual compound balance override", eventMetadata, now); err != nil {
					return err
				}
			}
		} else if !money.Negligible(adjust) {
			if _, err := s.ApplyDelta(ctx, tx, customer, adjust, now); err != nil {
				return err
			}
			metadata["adjust_amount"] = adjust.StringFixed(2)
			changes = append(changes, fmt.Sprintf("adjusted compound balance by %s", signedAmount(adjust)))
			eventMetadata := map[string]interface{}{
				"previous_balance": previousBalance.StringFixed(2),
			}
			addLoanMetadata(eventMetadata, loanRef, loanRemaining)
			if _, err := s.recordBalanceEvent(ctx, tx, customer, models.EventManualAdjust, adjust,
				"Manual compound balance adjustment", eventMetadata, now); err != nil {
				return err
			}
		}

		if update.NextCompoundAt != nil {
			next := *update.NextCompoundAt
			if customer.NextCompoundAt == nil || !customer.NextCompoundAt.Equal(next) {
				changes = append(changes, "updated next compound time")
			}
			customer.NextCompoundAt = &next
		}

		if err := tx.UpdateCustomer(ctx, customer); err != nil {
			return err
		}
		if len(changes) == 0 {
			return nil
		}
		metadata["new_projected_balance"] = money.Round(customer.ProjectedBalance).StringFixed(2)
		addLoanMetadata(metadata, loanRef, loanRemaining)
		return s.logOperation(ctx, tx, "customer", &customer.ID, "update",
			strings.Join(changes, "; "), metadata)
	})
	if err != nil {
		return nil, err
	}
	return customer, nil
}

func addLoanMetadata(metadata map[string]interface{}, loan *models.Loan, remaining decimal.Decimal) {
	if loan == nil {
		return
	}
	metadata["loan_id"] = loan.ID
	metadata["loan_code"] = loan.LoanCode
	metadata["loan_remaining"] = remaining.StringFixed(2)
}

func signedAmount(d decimal.Decimal) string {
	if d.Sign() >= 0 {
		return "+" + d.StringFixed(2)
	}
	return d.StringFixed(2)
}

// SummaryEntry is one customer's line in the lending overview: raw totals
// recomputed from source rows plus the refreshed compounding state.
type SummaryEntry struct {
	CustomerID        int64           `json:"customer_id"`
	CustomerCode      string          `json:"customer_code"`
	Name              string          `json:"name"`
	Phone             string          `json:"phone"`
	IDCard            string          `json:"id_card,omitempty"`
	Address           string          `json:"address,omitempty"`
	Note              string          `json:"note,omitempty"`
	TotalLoan         decimal.Decimal `json:"total_loan"`
	TotalRepayment    decimal.Decimal `json:"total_repayment"`
	TotalFee          decimal.Decimal `json:"total_fee"`
	Balance           decimal.Decimal `json:"balance"`
	ProjectedBalance  decimal.Decimal `json:"projected_balance"`
	NextCompoundAt    *time.Time      `json:"next_compound_at,omitempty"`
	CompoundRate      decimal.Decimal `json:"compound_rate"`
	LastUpdate        *time.Time      `json:"last_update,omitempty"`
	CustomerCreatedAt time.Time       `json:"customer_created_at"`
}

// Summary recomputes each customer's raw principal from loans and repayments
// and reconciles the compounding balance against it. This is the read path
// that keeps projected balances fresh: compounding is evaluated lazily here
// rather than by a background scheduler.
func (s *Service) Summary(ctx context.Context) ([]*SummaryEntry, error) {
	var entries []*SummaryEntry
	err := s.storage.InTransaction(ctx, func(tx store.Storage) error {
		customers, err := tx.ListCustomers(ctx)
		if err != nil {
			return err
		}
		now := s.now()
		for _, customer := range customers {
			codeBackfilled := false
			if customer.CustomerCode == "" {
				code, err := s.generateCustomerCode(ctx, tx)
				if err != nil {
					return err
				}
				customer.CustomerCode = code
				codeBackfilled = true
			}

			loans, err := tx.ListLoansByCustomer(ctx, customer.ID)
			if err != nil {
				return err
			}
			repayments, err := tx.ListRepaymentsByCustomer(ctx, customer.ID)
			if err != nil {
				return err
			}

			loanAmount := decimal.Zero
			feeAmount := decimal.Zero
			effectiveLoanTotal := decimal.Zero
			var lastUpdate *time.Time
			for _, loan := range loans {
				loanAmount = loanAmount.Add(loan.LoanAmount)
				feeAmount = feeAmount.Add(loan.ProcessingFee)
				effectiveLoanTotal = effectiveLoanTotal.Add(s.compounded(loan.LoanAmount))
				if lastUpdate == nil || loan.LoanDate.After(*lastUpdate) {
					d := loan.LoanDate
					lastUpdate = &d
				}
			}
			repaymentAmount := decimal.Zero
			var lastRepayment *time.Time
			for _, repayment := range repayments {
				repaymentAmount = repaymentAmount.Add(repayment.RepaymentAmount)
				if lastRepayment == nil || repayment.RepaymentDate.After(*lastRepayment) {
					d := repayment.RepaymentDate
					lastRepayment = &d
				}
			}
			if lastRepayment != nil {
				lastUpdate = lastRepayment
			}

			rawBalance := effectiveLoanTotal.Sub(repaymentAmount)
			projected, nextCompoundAt, changed, err := s.Reconcile(ctx, tx, customer, rawBalance, now)
			if err != nil {
				return err
			}
			if changed || codeBackfilled {
				if err := tx.UpdateCustomer(ctx, customer); err != nil {
					return err
				}
			}

			displayBalance := rawBalance
			if displayBalance.IsNegative() {
				displayBalance = decimal.Zero
			}

			entries = append(entries, &SummaryEntry{
				CustomerID:        customer.ID,
				CustomerCode:      customer.CustomerCode,
				Name:              customer.Name,
				Phone:             customer.Phone,
				IDCard:            customer.IDCard,
				Address:           customer.Address,
				Note:              customer.Note,
				TotalLoan:         money.Round(loanAmount),
				TotalRepayment:    money.Round(repaymentAmount),
				TotalFee:          money.Round(feeAmount),
				Balance:           money.Round(displayBalance),
				ProjectedBalance:  money.Round(projected),
				NextCompoundAt:    nextCompoundAt,
				CompoundRate:      s.rate,
				LastUpdate:        lastUpdate,
				CustomerCreatedAt: customer.CreatedAt,
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}
