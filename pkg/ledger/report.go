package ledger

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jordentan9538/loanledger/pkg/money"
)

// OverallReport aggregates lending activity for an optional date window.
// Interest profit is the positive part of net profit; fee income counts
// processing fees separately.
type OverallReport struct {
	TotalLoanAmount      decimal.Decimal `json:"total_loan_amount"`
	TotalRepaymentAmount decimal.Decimal `json:"total_repayment_amount"`
	InterestProfit       decimal.Decimal `json:"interest_profit"`
	FeeIncome            decimal.Decimal `json:"fee_income"`
	NetProfit            decimal.Decimal `json:"net_profit"`
	LoanCount            int64           `json:"loan_count"`
	RepaymentCount       int64           `json:"repayment_count"`
	TotalCustomerCount   int64           `json:"total_customer_count"`
	NewCustomerCount     int64           `json:"new_customer_count"`
}

// Report computes the overall lending report. Loan and repayment totals are
// filtered by their own dates; the new-customer count by creation date. The
// total customer count ignores the window.
func (s *Service) Report(ctx context.Context, startAt, endAt *time.Time) (*OverallReport, error) {
	loanTotals, err := s.storage.LoanTotals(ctx, startAt, endAt)
	if err != nil {
		return nil, err
	}
	repaymentTotals, err := s.storage.RepaymentTotals(ctx, startAt, endAt)
	if err != nil {
		return nil, err
	}
	totalCustomers, err := s.storage.CountCustomers(ctx, nil, nil)
	if err != nil {
		return nil, err
	}
	newCustomers := totalCustomers
	if startAt != nil || endAt != nil {
		newCustomers, err = s.storage.CountCustomers(ctx, startAt, endAt)
		if err != nil {
			return nil, err
		}
	}

	netProfit := repaymentTotals.TotalAmount.Sub(loanTotals.TotalAmount)
	interestProfit := netProfit
	if interestProfit.Sign() <= 0 {
		interestProfit = decimal.Zero
	}
	return &OverallReport{
		TotalLoanAmount:      money.Round(loanTotals.TotalAmount),
		TotalRepaymentAmount: money.Round(repaymentTotals.TotalAmount),
		InterestProfit:       money.Round(interestProfit),
		FeeIncome:            money.Round(loanTotals.TotalFees),
		NetProfit:            money.Round(netProfit),
		LoanCount:            loanTotals.Count,
		RepaymentCount:       repaymentTotals.Count,
		TotalCustomerCount:   totalCustomers,
		NewCustomerCount:     newCustomers,
	}, nil
}
