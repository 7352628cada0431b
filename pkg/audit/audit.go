// Package audit checks persisted ledger data for consistency: duplicate or
// missing business codes, dangling references, negative amounts, and drift
// between stored compounding balances and what the source rows imply.
package audit

import (
	"context"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/jordentan9538/loanledger/pkg/models"
	"github.com/jordentan9538/loanledger/pkg/money"
)

// Severity of a finding. Errors are data corruption; warnings are drift
// within the domain's lazy-evaluation model.
const (
	SeverityError   = "error"
	SeverityWarning = "warning"
)

// Issue is one audit finding.
type Issue struct {
	Severity string                 `json:"severity"`
	Category string                 `json:"category"`
	Entity   string                 `json:"entity"`
	EntityID int64                  `json:"entity_id"`
	Message  string                 `json:"message"`
	Details  map[string]interface{} `json:"details,omitempty"`
}

// Stats counts the rows examined.
type Stats struct {
	Customers     int `json:"customers"`
	Loans         int `json:"loans"`
	Repayments    int `json:"repayments"`
	BalanceEvents int `json:"balance_events"`
}

// Report is the outcome of one audit run.
type Report struct {
	Stats      Stats   `json:"stats"`
	IssueCount int     `json:"issue_count"`
	Issues     []Issue `json:"issues"`
}

// Config tunes an audit run. Zero values take the package defaults.
type Config struct {
	// Tolerance is the allowed rounding difference when comparing
	// balances. Negative values are treated as zero.
	Tolerance decimal.Decimal
	// CompoundRate is the rate used to recompute effective loan amounts.
	CompoundRate decimal.Decimal
}

// Run audits all persisted data reachable through src and returns every
// finding. It performs reads only.
func Run(ctx context.Context, src Source, cfg Config) (*Report, error) {
	tolerance := cfg.Tolerance
	if tolerance.IsNegative() {
		tolerance = decimal.Zero
	}
	rate := cfg.CompoundRate
	if rate.IsZero() {
		rate = decimal.NewFromFloat(money.DefaultCompoundRate)
	}

	customers, err := src.ListCustomers(ctx)
	if err != nil {
		return nil, err
	}
	loans, err := src.ListLoans(ctx)
	if err != nil {
		return nil, err
	}
	repayments, err := src.ListRepayments(ctx)
	if err != nil {
		return nil, err
	}
	events, err := src.ListAllBalanceEvents(ctx)
	if err != nil {
		return nil, err
	}

	report := &Report{
		Stats: Stats{
			Customers:     len(customers),
			Loans:         len(loans),
			Repayments:    len(repayments),
			BalanceEvents: len(events),
		},
	}

	customerCodes := make(map[string]int)
	for _, customer := range customers {
		if code := normalizeCode(customer.CustomerCode); code != "" {
			customerCodes[code]++
		}
	}
	loanCodes := make(map[string]int)
	for _, loan := range loans {
		if code := normalizeCode(loan.LoanCode); code != "" {
			loanCodes[code]++
		}
	}

	loansByCustomer := make(map[int64][]*models.Loan)
	for _, loan := range loans {
		loansByCustomer[loan.CustomerID] = append(loansByCustomer[loan.CustomerID], loan)
	}
	repaymentsByCustomer := make(map[int64][]*models.Repayment)
	for _, repayment := range repayments {
		repaymentsByCustomer[repayment.CustomerID] = append(repaymentsByCustomer[repayment.CustomerID], repayment)
	}
	eventsByCustomer := make(map[int64][]*models.BalanceEvent)
	for _, event := range events {
		eventsByCustomer[event.CustomerID] = append(eventsByCustomer[event.CustomerID], event)
	}
	loanLookup := make(map[int64]*models.Loan)
	for _, loan := range loans {
		loanLookup[loan.ID] = loan
	}
	customerIDs := make(map[int64]bool)
	for _, customer := range customers {
		customerIDs[customer.ID] = true
	}

	for _, customer := range customers {
		code := normalizeCode(customer.CustomerCode)
		if code == "" {
			report.add(Issue{
				Severity: SeverityError,
				Category: "customer_code",
				Entity:   "customer",
				EntityID: customer.ID,
				Message:  "customer_code is missing",
			})
		} else if customerCodes[code] > 1 {
			report.add(Issue{
				Severity: SeverityError,
				Category: "customer_code",
				Entity:   "customer",
				EntityID: customer.ID,
				Message:  "customer_code is duplicated",
				Details:  map[string]interface{}{"customer_code": code},
			})
		}

		effectiveLoanTotal := decimal.Zero
		for _, loan := range loansByCustomer[customer.ID] {
			effectiveLoanTotal = effectiveLoanTotal.Add(money.Compounded(loan.LoanAmount, rate))
		}
		repaymentTotal := decimal.Zero
		for _, repayment := range repaymentsByCustomer[customer.ID] {
			if repayment.RepaymentAmount.Sign() > 0 {
				repaymentTotal = repaymentTotal.Add(repayment.RepaymentAmount)
			}
		}
		rawBalance := effectiveLoanTotal.Sub(repaymentTotal)
		if rawBalance.IsNegative() {
			rawBalance = decimal.Zero
		}
		rawBalance = money.Round(rawBalance)
		lastPrincipal := money.Round(customer.LastPrincipal)
		if lastPrincipal.Sub(rawBalance).Abs().GreaterThan(tolerance) {
			report.add(Issue{
				Severity: SeverityWarning,
				Category: "customer_balance",
				Entity:   "customer",
				EntityID: customer.ID,
				Message:  "last_principal deviates from recomputed balance",
				Details: map[string]interface{}{
					"expected": rawBalance.StringFixed(2),
					"actual":   lastPrincipal.StringFixed(2),
				},
			})
		}

		projected := money.Round(customer.ProjectedBalance)
		if projected.LessThan(tolerance.Neg()) {
			report.add(Issue{
				Severity: SeverityError,
				Category: "customer_balance",
				Entity:   "customer",
				EntityID: customer.ID,
				Message:  "projected_balance is negative",
				Details:  map[string]interface{}{"value": projected.StringFixed(2)},
			})
		}
		if projected.IsNegative() {
			projected = decimal.Zero
		}

		rows := eventsByCustomer[customer.ID]
		if len(rows) > 0 {
			sort.Slice(rows, func(i, j int) bool {
				if !rows[i].EventTime.Equal(rows[j].EventTime) {
					return rows[i].EventTime.Before(rows[j].EventTime)
				}
				return rows[i].ID < rows[j].ID
			})
			finalBalance := money.Round(rows[len(rows)-1].BalanceAfter)
			if finalBalance.Sub(projected).Abs().GreaterThan(tolerance) {
				report.add(Issue{
					Severity: SeverityWarning,
					Category: "balance_events",
					Entity:   "customer",
					EntityID: customer.ID,
					Message:  "latest balance event drift from projected_balance",
					Details: map[string]interface{}{
						"event_balance":     finalBalance.StringFixed(2),
						"projected_balance": projected.StringFixed(2),
					},
				})
			}
			for _, row := range rows {
				if row.BalanceAfter.LessThan(tolerance.Neg()) {
					report.add(Issue{
						Severity: SeverityError,
						Category: "balance_events",
						Entity:   "customer",
						EntityID: customer.ID,
						Message:  "balance event recorded negative balance",
						Details: map[string]interface{}{
							"event_id":      row.ID,
							"balance_after": row.BalanceAfter.StringFixed(2),
						},
					})
				}
			}
		}
	}

	for _, loan := range loans {
		code := normalizeCode(loan.LoanCode)
		if code == "" {
			report.add(Issue{
				Severity: SeverityError,
				Category: "loan_code",
				Entity:   "loan",
				EntityID: loan.ID,
				Message:  "loan_code is missing",
			})
		} else if loanCodes[code] > 1 {
			report.add(Issue{
				Severity: SeverityError,
				Category: "loan_code",
				Entity:   "loan",
				EntityID: loan.ID,
				Message:  "loan_code is duplicated",
				Details:  map[string]interface{}{"loan_code": code},
			})
		}
		if !customerIDs[loan.CustomerID] {
			report.add(Issue{
				Severity: SeverityError,
				Category: "loan_reference",
				Entity:   "loan",
				EntityID: loan.ID,
				Message:  "customer_id does not point to an existing customer",
				Details:  map[string]interface{}{"customer_id": loan.CustomerID},
			})
		}
		if loan.LoanAmount.IsNegative() {
			report.add(Issue{
				Severity: SeverityError,
				Category: "loan_amount",
				Entity:   "loan",
				EntityID: loan.ID,
				Message:  "loan_amount cannot be negative",
				Details:  map[string]interface{}{"loan_amount": loan.LoanAmount.StringFixed(2)},
			})
		}
	}

	for _, repayment := range repayments {
		if repayment.RepaymentAmount.Sign() <= 0 {
			report.add(Issue{
				Severity: SeverityError,
				Category: "repayment_amount",
				Entity:   "repayment",
				EntityID: repayment.ID,
				Message:  "repayment_amount must be positive",
				Details:  map[string]interface{}{"repayment_amount": repayment.RepaymentAmount.StringFixed(2)},
			})
		}
		if !customerIDs[repayment.CustomerID] {
			report.add(Issue{
				Severity: SeverityError,
				Category: "repayment_reference",
				Entity:   "repayment",
				EntityID: repayment.ID,
				Message:  "customer_id does not point to an existing customer",
				Details:  map[string]interface{}{"customer_id": repayment.CustomerID},
			})
		}
		if repayment.LoanID != nil {
			loan, ok := loanLookup[*repayment.LoanID]
			if !ok {
				report.add(Issue{
					Severity: SeverityError,
					Category: "repayment_reference",
					Entity:   "repayment",
					EntityID: repayment.ID,
					Message:  "loan_id does not point to an existing loan",
					Details:  map[string]interface{}{"loan_id": *repayment.LoanID},
				})
			} else if loan.CustomerID != repayment.CustomerID {
				report.add(Issue{
					Severity: SeverityError,
					Category: "repayment_reference",
					Entity:   "repayment",
					EntityID: repayment.ID,
					Message:  "repayment loan_id/customer_id mismatch",
					Details: map[string]interface{}{
						"repayment_customer_id": repayment.CustomerID,
						"loan_customer_id":      loan.CustomerID,
						"loan_id":               loan.ID,
					},
				})
			}
		}
	}

	return report, nil
}

func (r *Report) add(issue Issue) {
	r.Issues = append(r.Issues, issue)
	r.IssueCount = len(r.Issues)
}

func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
