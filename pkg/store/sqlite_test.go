package store

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jordentan9538/loanledger/pkg/models"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func testCustomer(code string) *models.Customer {
	return &models.Customer{
		CustomerCode:     code,
		Name:             "Alice",
		Phone:            "0123456789",
		CreatedAt:        time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		ProjectedBalance: decimal.Zero,
		LastPrincipal:    decimal.Zero,
	}
}

func TestSQLiteStore_CustomerRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	customer := testCustomer("CUST-AAA111")
	customer.ProjectedBalance = decimal.RequireFromString("600.00")
	next := time.Date(2025, 7, 1, 12, 0, 0, 0, time.UTC)
	customer.NextCompoundAt = &next
	require.NoError(t, s.CreateCustomer(ctx, customer))
	require.NotZero(t, customer.ID)

	fetched, err := s.GetCustomer(ctx, customer.ID)
	require.NoError(t, err)
	assert.Equal(t, "CUST-AAA111", fetched.CustomerCode)
	assert.True(t, fetched.ProjectedBalance.Equal(decimal.RequireFromString("600.00")))
	require.NotNil(t, fetched.NextCompoundAt)
	assert.True(t, fetched.NextCompoundAt.Equal(next))

	byCode, err := s.GetCustomerByCode(ctx, "CUST-AAA111")
	require.NoError(t, err)
	assert.Equal(t, customer.ID, byCode.ID)

	fetched.NextCompoundAt = nil
	fetched.LastPrincipal = decimal.RequireFromString("500.00")
	require.NoError(t, s.UpdateCustomer(ctx, fetched))
	again, err := s.GetCustomer(ctx, customer.ID)
	require.NoError(t, err)
	assert.Nil(t, again.NextCompoundAt)
	assert.True(t, again.LastPrincipal.Equal(decimal.RequireFromString("500.00")))

	_, err = s.GetCustomer(ctx, 9999)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.GetCustomerByCode(ctx, "CUST-NOPE")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLiteStore_LoanRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	customer := testCustomer("CUST-AAA111")
	require.NoError(t, s.CreateCustomer(ctx, customer))

	loan := &models.Loan{
		CustomerID:    customer.ID,
		LoanCode:      "LN-1234-2025060112000001",
		LoanDate:      time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
		LoanAmount:    decimal.RequireFromString("500.00"),
		ProcessingFee: decimal.RequireFromString("10.00"),
		InterestRate:  decimal.RequireFromString("0.2"),
		InterestType:  "monthly",
		CreatedAt:     time.Now().UTC(),
		UpdatedAt:     time.Now().UTC(),
	}
	require.NoError(t, s.CreateLoan(ctx, loan))
	require.NotZero(t, loan.ID)

	fetched, err := s.GetLoan(ctx, loan.ID)
	require.NoError(t, err)
	assert.True(t, fetched.LoanAmount.Equal(decimal.RequireFromString("500.00")))

	byCode, err := s.GetLoanByCode(ctx, loan.LoanCode)
	require.NoError(t, err)
	assert.Equal(t, loan.ID, byCode.ID)

	require.NoError(t, s.DeleteLoan(ctx, loan.ID))
	_, err = s.GetLoan(ctx, loan.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, s.DeleteLoan(ctx, loan.ID), ErrNotFound)
}

func TestSQLiteStore_SumLoanRepayments(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	customer := testCustomer("CUST-AAA111")
	require.NoError(t, s.CreateCustomer(ctx, customer))
	loan := &models.Loan{
		CustomerID: customer.ID,
		LoanCode:   "LN-0001",
		LoanDate:   time.Now().UTC(),
		LoanAmount: decimal.RequireFromString("500.00"),
		CreatedAt:  time.Now().UTC(),
		UpdatedAt:  time.Now().UTC(),
	}
	require.NoError(t, s.CreateLoan(ctx, loan))

	for _, amount := range []string{"100.00", "150.00"} {
		repayment := &models.Repayment{
			CustomerID:      customer.ID,
			LoanID:          &loan.ID,
			RepaymentDate:   time.Now().UTC(),
			RepaymentAmount: decimal.RequireFromString(amount),
			Fee:             decimal.Zero,
			CreatedAt:       time.Now().UTC(),
			UpdatedAt:       time.Now().UTC(),
		}
		require.NoError(t, s.CreateRepayment(ctx, repayment))
	}

	total, err := s.SumLoanRepayments(ctx, loan.ID, nil)
	require.NoError(t, err)
	assert.True(t, total.Equal(decimal.RequireFromString("250.00")))

	repayments, err := s.ListRepaymentsByCustomer(ctx, customer.ID)
	require.NoError(t, err)
	require.Len(t, repayments, 2)

	excluded, err := s.SumLoanRepayments(ctx, loan.ID, &repayments[0].ID)
	require.NoError(t, err)
	assert.True(t, excluded.Equal(decimal.RequireFromString("150.00")))
}

func TestSQLiteStore_BalanceEvents(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	customer := testCustomer("CUST-AAA111")
	require.NoError(t, s.CreateCustomer(ctx, customer))

	has, err := s.HasBalanceEvents(ctx, customer.ID)
	require.NoError(t, err)
	assert.False(t, has)

	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	// Insert out of chronological order to exercise the sort.
	second := &models.BalanceEvent{
		CustomerID:   customer.ID,
		EventType:    models.EventRepayment,
		EventTime:    base.Add(time.Hour),
		ChangeAmount: decimal.RequireFromString("-200.00"),
		BalanceAfter: decimal.RequireFromString("400.00"),
		Description:  "Repayment recorded",
	}
	require.NoError(t, s.CreateBalanceEvent(ctx, second))
	first := &models.BalanceEvent{
		CustomerID:   customer.ID,
		EventType:    models.EventLoanDisbursement,
		EventTime:    base,
		ChangeAmount: decimal.RequireFromString("600.00"),
		BalanceAfter: decimal.RequireFromString("600.00"),
		Description:  "Loan disbursed",
		Metadata:     map[string]interface{}{"loan_code": "LN-0001"},
	}
	require.NoError(t, s.CreateBalanceEvent(ctx, first))

	has, err = s.HasBalanceEvents(ctx, customer.ID)
	require.NoError(t, err)
	assert.True(t, has)

	events, err := s.ListBalanceEvents(ctx, customer.ID)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, models.EventLoanDisbursement, events[0].EventType, "events must come back in event_time order")
	assert.Equal(t, models.EventRepayment, events[1].EventType)
	assert.Equal(t, "LN-0001", events[0].Metadata["loan_code"], "metadata must survive the JSON round trip")
}

func TestSQLiteStore_BankTransactions(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	latest, err := s.LatestBankTransaction(ctx)
	require.NoError(t, err)
	assert.Nil(t, latest, "empty ledger has no latest transaction")

	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	amounts := []string{"-500.00", "200.00", "100.00"}
	running := decimal.Zero
	for i, raw := range amounts {
		amount := decimal.RequireFromString(raw)
		running = running.Add(amount)
		tx := &models.BankTransaction{
			TransactionType: models.BankManualDeposit,
			Amount:          amount,
			BalanceAfter:    running,
			Note:            "seed",
			CreatedAt:       base.Add(time.Duration(i) * time.Minute),
		}
		require.NoError(t, s.CreateBankTransaction(ctx, tx))
	}

	latest, err = s.LatestBankTransaction(ctx)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.True(t, latest.BalanceAfter.Equal(decimal.RequireFromString("-200.00")))

	rows, total, err := s.ListBankTransactions(ctx, BankFilter{}, 2, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	require.Len(t, rows, 2)
	assert.True(t, rows[0].Amount.Equal(decimal.RequireFromString("-500.00")), "listing is insertion order")

	startAt := base.Add(30 * time.Second)
	rows, total, err = s.ListBankTransactions(ctx, BankFilter{StartAt: &startAt}, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	assert.Len(t, rows, 2)
}

func TestSQLiteStore_OperationLogs(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	customerID := int64(7)
	now := time.Now().UTC()
	entries := []*models.OperationLog{
		{EntityType: "customer", EntityID: &customerID, Action: "create", Description: "Created customer", CreatedAt: now},
		{EntityType: "loan", Action: "create", Description: "Created loan", CreatedAt: now.Add(time.Second)},
	}
	for _, entry := range entries {
		require.NoError(t, s.CreateOperationLog(ctx, entry))
	}

	logs, err := s.ListOperationLogs(ctx, LogFilter{Limit: 10})
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, "loan", logs[0].EntityType, "newest first")

	logs, err = s.ListOperationLogs(ctx, LogFilter{EntityType: "customer", EntityID: &customerID, Limit: 10})
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "Created customer", logs[0].Description)
}

func TestSQLiteStore_InTransactionRollsBack(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	boom := errors.New("boom")
	err := s.InTransaction(ctx, func(tx Storage) error {
		if err := tx.CreateCustomer(ctx, testCustomer("CUST-ROLLBACK")); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	_, err = s.GetCustomerByCode(ctx, "CUST-ROLLBACK")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLiteStore_InTransactionCommitsAndNests(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	err := s.InTransaction(ctx, func(tx Storage) error {
		if err := tx.CreateCustomer(ctx, testCustomer("CUST-COMMIT")); err != nil {
			return err
		}
		// Nested calls join the surrounding transaction.
		return tx.InTransaction(ctx, func(inner Storage) error {
			_, err := inner.GetCustomerByCode(ctx, "CUST-COMMIT")
			return err
		})
	})
	require.NoError(t, err)

	customer, err := s.GetCustomerByCode(ctx, "CUST-COMMIT")
	require.NoError(t, err)
	assert.Equal(t, "CUST-COMMIT", customer.CustomerCode)
}

func TestSQLiteStore_Totals(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	customer := testCustomer("CUST-AAA111")
	require.NoError(t, s.CreateCustomer(ctx, customer))

	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	loanDates := []time.Time{base, base.AddDate(0, -2, 0)}
	for i, date := range loanDates {
		loan := &models.Loan{
			CustomerID:    customer.ID,
			LoanCode:      fmt.Sprintf("LN-%04d", i+1),
			LoanDate:      date,
			LoanAmount:    decimal.RequireFromString("500.00"),
			ProcessingFee: decimal.RequireFromString("10.00"),
			CreatedAt:     base,
			UpdatedAt:     base,
		}
		require.NoError(t, s.CreateLoan(ctx, loan))
	}

	totals, err := s.LoanTotals(ctx, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(2), totals.Count)
	assert.True(t, totals.TotalAmount.Equal(decimal.RequireFromString("1000.00")))
	assert.True(t, totals.TotalFees.Equal(decimal.RequireFromString("20.00")))

	startAt := base.AddDate(0, -1, 0)
	totals, err = s.LoanTotals(ctx, &startAt, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), totals.Count)

	count, err := s.CountCustomers(ctx, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}
