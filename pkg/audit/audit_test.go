package audit_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jordentan9538/loanledger/pkg/audit"
	mock_audit "github.com/jordentan9538/loanledger/pkg/audit/mocks"
	"github.com/jordentan9538/loanledger/pkg/models"
)

func d(value string) decimal.Decimal {
	parsed, err := decimal.NewFromString(value)
	if err != nil {
		panic(err)
	}
	return parsed
}

var auditNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func expectSource(src *mock_audit.MockSource, customers []*models.Customer, loans []*models.Loan, repayments []*models.Repayment, events []*models.BalanceEvent) {
	src.EXPECT().ListCustomers(gomock.Any()).Return(customers, nil)
	src.EXPECT().ListLoans(gomock.Any()).Return(loans, nil)
	src.EXPECT().ListRepayments(gomock.Any()).Return(repayments, nil)
	src.EXPECT().ListAllBalanceEvents(gomock.Any()).Return(events, nil)
}

func issueCategories(report *audit.Report) []string {
	categories := []string{}
	for _, issue := range report.Issues {
		categories = append(categories, issue.Category)
	}
	return categories
}

func TestRunCleanData(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	src := mock_audit.NewMockSource(ctrl)

	loanID := int64(10)
	expectSource(src,
		[]*models.Customer{{
			ID:               1,
			CustomerCode:     "CUST-AAA111",
			ProjectedBalance: d("400.00"),
			LastPrincipal:    d("400.00"),
		}},
		[]*models.Loan{{ID: loanID, CustomerID: 1, LoanCode: "LN-0001", LoanAmount: d("500.00")}},
		[]*models.Repayment{{ID: 20, CustomerID: 1, LoanID: &loanID, RepaymentAmount: d("200.00")}},
		[]*models.BalanceEvent{
			{ID: 1, CustomerID: 1, EventType: models.EventLoanDisbursement, EventTime: auditNow, ChangeAmount: d("600.00"), BalanceAfter: d("600.00")},
			{ID: 2, CustomerID: 1, EventType: models.EventRepayment, EventTime: auditNow.Add(time.Hour), ChangeAmount: d("-200.00"), BalanceAfter: d("400.00")},
		},
	)

	report, err := audit.Run(context.Background(), src, audit.Config{Tolerance: d("0.01")})
	require.NoError(t, err)

	assert.Equal(t, 1, report.Stats.Customers)
	assert.Equal(t, 1, report.Stats.Loans)
	assert.Equal(t, 1, report.Stats.Repayments)
	assert.Equal(t, 2, report.Stats.BalanceEvents)
	assert.Zero(t, report.IssueCount)
	assert.Empty(t, report.Issues)
}

func TestRunBalanceDrift(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	src := mock_audit.NewMockSource(ctrl)

	// Recomputed balance is compounded(500) - 100 = 500, but the stored
	// last principal says 999.
	loanID := int64(10)
	expectSource(src,
		[]*models.Customer{{
			ID:               1,
			CustomerCode:     "CUST-AAA111",
			ProjectedBalance: d("500.00"),
			LastPrincipal:    d("999.00"),
		}},
		[]*models.Loan{{ID: loanID, CustomerID: 1, LoanCode: "LN-0001", LoanAmount: d("500.00")}},
		[]*models.Repayment{{ID: 20, CustomerID: 1, LoanID: &loanID, RepaymentAmount: d("100.00")}},
		nil,
	)

	report, err := audit.Run(context.Background(), src, audit.Config{Tolerance: d("0.01")})
	require.NoError(t, err)

	require.Equal(t, 1, report.IssueCount)
	issue := report.Issues[0]
	assert.Equal(t, audit.SeverityWarning, issue.Severity)
	assert.Equal(t, "customer_balance", issue.Category)
	assert.Equal(t, int64(1), issue.EntityID)
	assert.Equal(t, "500.00", issue.Details["expected"])
	assert.Equal(t, "999.00", issue.Details["actual"])
}

func TestRunCodeIssues(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	src := mock_audit.NewMockSource(ctrl)

	expectSource(src,
		[]*models.Customer{
			{ID: 1, CustomerCode: "CUST-DUP", LastPrincipal: d("120.00")},
			{ID: 2, CustomerCode: "cust-dup"},
			{ID: 3},
		},
		[]*models.Loan{
			{ID: 10, CustomerID: 1, LoanAmount: d("100.00")},
		},
		nil, nil,
	)

	report, err := audit.Run(context.Background(), src, audit.Config{})
	require.NoError(t, err)

	categories := issueCategories(report)
	// Duplicates are reported per row, missing codes once each, and the
	// loan with no code once.
	assert.Equal(t, []string{"customer_code", "customer_code", "customer_code", "loan_code"}, categories)
	for _, issue := range report.Issues {
		assert.Equal(t, audit.SeverityError, issue.Severity)
	}
}

func TestRunDanglingReferences(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	src := mock_audit.NewMockSource(ctrl)

	missingLoan := int64(99)
	foreignLoan := int64(11)
	expectSource(src,
		[]*models.Customer{
			{ID: 1, CustomerCode: "CUST-AAA111", LastPrincipal: d("240.00")},
			{ID: 2, CustomerCode: "CUST-BBB222", LastPrincipal: d("120.00")},
		},
		[]*models.Loan{
			{ID: 10, CustomerID: 7, LoanCode: "LN-0001", LoanAmount: d("100.00")},
			{ID: foreignLoan, CustomerID: 2, LoanCode: "LN-0002", LoanAmount: d("100.00")},
		},
		[]*models.Repayment{
			{ID: 20, CustomerID: 1, LoanID: &missingLoan, RepaymentAmount: d("50.00")},
			{ID: 21, CustomerID: 1, LoanID: &foreignLoan, RepaymentAmount: d("10.00")},
			{ID: 22, CustomerID: 8, RepaymentAmount: d("10.00")},
		},
		nil,
	)

	report, err := audit.Run(context.Background(), src, audit.Config{})
	require.NoError(t, err)

	var loanRefs, repaymentRefs int
	for _, issue := range report.Issues {
		switch issue.Category {
		case "loan_reference":
			loanRefs++
		case "repayment_reference":
			repaymentRefs++
		}
	}
	assert.Equal(t, 1, loanRefs, "loan pointing at missing customer")
	assert.Equal(t, 3, repaymentRefs, "missing loan, foreign loan, missing customer")
}

func TestRunNegativeAmounts(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	src := mock_audit.NewMockSource(ctrl)

	expectSource(src,
		[]*models.Customer{{ID: 1, CustomerCode: "CUST-AAA111", ProjectedBalance: d("-5.00"), LastPrincipal: d("0.00")}},
		[]*models.Loan{{ID: 10, CustomerID: 1, LoanCode: "LN-0001", LoanAmount: d("-100.00")}},
		[]*models.Repayment{{ID: 20, CustomerID: 1, RepaymentAmount: d("0.00")}},
		[]*models.BalanceEvent{
			{ID: 1, CustomerID: 1, EventType: models.EventManualAdjust, EventTime: auditNow, ChangeAmount: d("-5.00"), BalanceAfter: d("-5.00")},
		},
	)

	report, err := audit.Run(context.Background(), src, audit.Config{})
	require.NoError(t, err)

	categories := issueCategories(report)
	assert.Contains(t, categories, "customer_balance")
	assert.Contains(t, categories, "loan_amount")
	assert.Contains(t, categories, "repayment_amount")
	assert.Contains(t, categories, "balance_events")
}

func TestRunEventDrift(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	src := mock_audit.NewMockSource(ctrl)

	expectSource(src,
		[]*models.Customer{{ID: 1, CustomerCode: "CUST-AAA111", ProjectedBalance: d("400.00"), LastPrincipal: d("0.00")}},
		nil, nil,
		[]*models.BalanceEvent{
			// Latest by (event_time, id) says 100, projected says 400.
			{ID: 2, CustomerID: 1, EventType: models.EventRepayment, EventTime: auditNow.Add(time.Hour), ChangeAmount: d("-300.00"), BalanceAfter: d("100.00")},
			{ID: 1, CustomerID: 1, EventType: models.EventBaseline, EventTime: auditNow, ChangeAmount: d("400.00"), BalanceAfter: d("400.00")},
		},
	)

	report, err := audit.Run(context.Background(), src, audit.Config{Tolerance: d("0.01")})
	require.NoError(t, err)

	require.NotEmpty(t, report.Issues)
	drift := report.Issues[len(report.Issues)-1]
	assert.Equal(t, "balance_events", drift.Category)
	assert.Equal(t, audit.SeverityWarning, drift.Severity)
	assert.Equal(t, "100.00", drift.Details["event_balance"])
	assert.Equal(t, "400.00", drift.Details["projected_balance"])
}

func TestRunSourceError(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	src := mock_audit.NewMockSource(ctrl)

	boom := errors.New("db closed")
	src.EXPECT().ListCustomers(gomock.Any()).Return(nil, boom)

	_, err := audit.Run(context.Background(), src, audit.Config{})
	assert.ErrorIs(t, err, boom)
}

func TestFormatIssue(t *testing.T) {
	issue := audit.Issue{
		Severity: audit.SeverityWarning,
		Category: "customer_balance",
		Entity:   "customer",
		EntityID: 7,
		Message:  "last_principal deviates from recomputed balance",
		Details:  map[string]interface{}{"expected": "500.00"},
	}
	line := audit.FormatIssue(issue)
	assert.Contains(t, line, "[WARNING] customer#7 customer_balance")
	assert.Contains(t, line, "deviates")
	assert.Contains(t, line, `"expected":"500.00"`)

	issue.EntityID = 0
	issue.Details = nil
	assert.Contains(t, audit.FormatIssue(issue), "customer#- customer_balance")
}
