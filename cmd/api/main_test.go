package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jordentan9538/loanledger/pkg/ledger"
	"github.com/jordentan9538/loanledger/pkg/models"
	"github.com/jordentan9538/loanledger/pkg/store"
)

func setupTestServer(t *testing.T) (*Server, *mux.Router) {
	t.Helper()
	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test_api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	server := NewServer(s)
	return server, newRouter(server)
}

func doJSON(t *testing.T, router *mux.Router, method, path string, payload interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var body *bytes.Buffer
	if payload != nil {
		raw, err := json.Marshal(payload)
		require.NoError(t, err)
		body = bytes.NewBuffer(raw)
	} else {
		body = bytes.NewBuffer(nil)
	}
	req := httptest.NewRequest(method, path, body)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func TestAPI_LoanLifecycle(t *testing.T) {
	_, router := setupTestServer(t)

	rr := doJSON(t, router, "POST", "/customers", map[string]interface{}{
		"name":  "Alice",
		"phone": "0123456789",
	})
	require.Equal(t, http.StatusCreated, rr.Code)
	var customer models.Customer
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &customer))
	assert.NotEmpty(t, customer.CustomerCode)

	rr = doJSON(t, router, "POST", "/loans", map[string]interface{}{
		"customer_id": customer.ID,
		"loan_amount": "500.00",
	})
	require.Equal(t, http.StatusCreated, rr.Code)
	var loan models.Loan
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &loan))

	rr = doJSON(t, router, "GET", fmt.Sprintf("/customers/%d", customer.ID), nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var fetched models.Customer
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &fetched))
	assert.True(t, fetched.ProjectedBalance.Equal(decimal.RequireFromString("600.00")))

	rr = doJSON(t, router, "POST", "/repayments", map[string]interface{}{
		"customer_id":      customer.ID,
		"loan_id":          loan.ID,
		"repayment_amount": "200.00",
	})
	require.Equal(t, http.StatusCreated, rr.Code)

	rr = doJSON(t, router, "GET", fmt.Sprintf("/customers/%d/balance-logs", customer.ID), nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var timeline ledger.BalanceTimeline
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &timeline))
	assert.True(t, timeline.ProjectedBalance.Equal(decimal.RequireFromString("400.00")))
	assert.Len(t, timeline.Events, 2)

	rr = doJSON(t, router, "GET", "/bank/transactions", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var page ledger.BankLedgerPage
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &page))
	assert.Equal(t, int64(2), page.Total)
	assert.True(t, page.Balance.Equal(decimal.RequireFromString("-300.00")))
}

func TestAPI_RepaymentBeyondLoanBalance(t *testing.T) {
	_, router := setupTestServer(t)

	rr := doJSON(t, router, "POST", "/customers", map[string]interface{}{"name": "Alice", "phone": "1"})
	require.Equal(t, http.StatusCreated, rr.Code)
	var customer models.Customer
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &customer))

	rr = doJSON(t, router, "POST", "/loans", map[string]interface{}{
		"customer_id": customer.ID,
		"loan_amount": "500.00",
	})
	require.Equal(t, http.StatusCreated, rr.Code)
	var loan models.Loan
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &loan))

	rr = doJSON(t, router, "POST", "/repayments", map[string]interface{}{
		"customer_id":      customer.ID,
		"loan_id":          loan.ID,
		"repayment_amount": "650.00",
	})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "compounded balance left")
}

func TestAPI_NotFoundMapping(t *testing.T) {
	_, router := setupTestServer(t)

	rr := doJSON(t, router, "GET", "/customers/999", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = doJSON(t, router, "GET", "/loans/999", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = doJSON(t, router, "GET", "/customers/abc", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestAPI_ManualBankAdjustment(t *testing.T) {
	_, router := setupTestServer(t)

	rr := doJSON(t, router, "POST", "/bank/adjustments", map[string]interface{}{
		"amount":    "100.00",
		"direction": "deposit",
	})
	require.Equal(t, http.StatusCreated, rr.Code)
	var tx models.BankTransaction
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &tx))
	assert.True(t, tx.BalanceAfter.Equal(decimal.RequireFromString("100.00")))

	rr = doJSON(t, router, "POST", "/bank/adjustments", map[string]interface{}{
		"amount":    "10.00",
		"direction": "sideways",
	})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestAPI_Summary(t *testing.T) {
	_, router := setupTestServer(t)

	rr := doJSON(t, router, "POST", "/customers", map[string]interface{}{"name": "Alice", "phone": "1"})
	require.Equal(t, http.StatusCreated, rr.Code)
	var customer models.Customer
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &customer))

	rr = doJSON(t, router, "POST", "/loans", map[string]interface{}{
		"customer_id": customer.ID,
		"loan_amount": "500.00",
	})
	require.Equal(t, http.StatusCreated, rr.Code)

	rr = doJSON(t, router, "GET", "/summary", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var entries []ledger.SummaryEntry
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &entries))
	require.Len(t, entries, 1)
	assert.True(t, entries[0].Balance.Equal(decimal.RequireFromString("600.00")))
	assert.True(t, entries[0].TotalLoan.Equal(decimal.RequireFromString("500.00")))
}
