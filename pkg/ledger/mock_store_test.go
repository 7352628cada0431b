package ledger

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jordentan9538/loanledger/pkg/models"
	"github.com/jordentan9538/loanledger/pkg/store"
)

// MockStore is a simple in-memory implementation of the Storage interface
// for testing. InTransaction is a pass-through; operations that must not
// leave partial writes behind are expected to validate before writing.
type MockStore struct {
	customers  map[int64]*models.Customer
	loans      map[int64]*models.Loan
	repayments map[int64]*models.Repayment
	events     []*models.BalanceEvent
	bank       []*models.BankTransaction
	logs       []*models.OperationLog
	seq        int64
}

func NewMockStore() *MockStore {
	return &MockStore{
		customers:  make(map[int64]*models.Customer),
		loans:      make(map[int64]*models.Loan),
		repayments: make(map[int64]*models.Repayment),
	}
}

func (m *MockStore) nextID() int64 {
	m.seq++
	return m.seq
}

func (m *MockStore) InTransaction(ctx context.Context, fn func(store.Storage) error) error {
	return fn(m)
}

func (m *MockStore) CreateCustomer(ctx context.Context, customer *models.Customer) error {
	customer.ID = m.nextID()
	m.customers[customer.ID] = customer
	return nil
}

func (m *MockStore) GetCustomer(ctx context.Context, id int64) (*models.Customer, error) {
	customer, ok := m.customers[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return customer, nil
}

func (m *MockStore) GetCustomerByCode(ctx context.Context, code string) (*models.Customer, error) {
	for _, customer := range m.customers {
		if strings.EqualFold(customer.CustomerCode, code) {
			return customer, nil
		}
	}
	return nil, store.ErrNotFound
}

func (m *MockStore) UpdateCustomer(ctx context.Context, customer *models.Customer) error {
	if _, ok := m.customers[customer.ID]; !ok {
		return store.ErrNotFound
	}
	m.customers[customer.ID] = customer
	return nil
}

func (m *MockStore) ListCustomers(ctx context.Context) ([]*models.Customer, error) {
	customers := []*models.Customer{}
	for _, customer := range m.customers {
		customers = append(customers, customer)
	}
	sort.Slice(customers, func(i, j int) bool { return customers[i].ID < customers[j].ID })
	return customers, nil
}

func (m *MockStore) CountCustomers(ctx context.Context, startAt, endAt *time.Time) (int64, error) {
	var count int64
	for _, customer := range m.customers {
		if inWindow(customer.CreatedAt, startAt, endAt) {
			count++
		}
	}
	return count, nil
}

func (m *MockStore) CreateLoan(ctx context.Context, loan *models.Loan) error {
	loan.ID = m.nextID()
	m.loans[loan.ID] = loan
	return nil
}

func (m *MockStore) GetLoan(ctx context.Context, id int64) (*models.Loan, error) {
	loan, ok := m.loans[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return loan, nil
}

func (m *MockStore) GetLoanByCode(ctx context.Context, code string) (*models.Loan, error) {
	for _, loan := range m.loans {
		if strings.EqualFold(loan.LoanCode, code) {
			return loan, nil
		}
	}
	return nil, store.ErrNotFound
}

func (m *MockStore) UpdateLoan(ctx context.Context, loan *models.Loan) error {
	if _, ok := m.loans[loan.ID]; !ok {
		return store.ErrNotFound
	}
	m.loans[loan.ID] = loan
	return nil
}

func (m *MockStore) DeleteLoan(ctx context.Context, id int64) error {
	if _, ok := m.loans[id]; !ok {
		return store.ErrNotFound
	}
	delete(m.loans, id)
	return nil
}

func (m *MockStore) ListLoans(ctx context.Context) ([]*models.Loan, error) {
	loans := []*models.Loan{}
	for _, loan := range m.loans {
		loans = append(loans, loan)
	}
	sort.Slice(loans, func(i, j int) bool { return loans[i].ID < loans[j].ID })
	return loans, nil
}

func (m *MockStore) ListLoansByCustomer(ctx context.Context, customerID int64) ([]*models.Loan, error) {
	loans := []*models.Loan{}
	for _, loan := range m.loans {
		if loan.CustomerID == customerID {
			loans = append(loans, loan)
		}
	}
	sort.Slice(loans, func(i, j int) bool { return loans[i].ID < loans[j].ID })
	return loans, nil
}

func (m *MockStore) SumLoanRepayments(ctx context.Context, loanID int64, excludeRepaymentID *int64) (decimal.Decimal, error) {
	total := decimal.Zero
	for _, repayment := range m.repayments {
		if repayment.LoanID == nil || *repayment.LoanID != loanID {
			continue
		}
		if excludeRepaymentID != nil && repayment.ID == *excludeRepaymentID {
			continue
		}
		total = total.Add(repayment.RepaymentAmount.Abs())
	}
	return total, nil
}

func (m *MockStore) LoanTotals(ctx context.Context, startAt, endAt *time.Time) (store.LoanTotals, error) {
	totals := store.LoanTotals{TotalAmount: decimal.Zero, TotalFees: decimal.Zero}
	for _, loan := range m.loans {
		if !inWindow(loan.LoanDate, startAt, endAt) {
			continue
		}
		totals.Count++
		totals.TotalAmount = totals.TotalAmount.Add(loan.LoanAmount)
		totals.TotalFees = totals.TotalFees.Add(loan.ProcessingFee)
	}
	return totals, nil
}

func (m *MockStore) CreateRepayment(ctx context.Context, repayment *models.Repayment) error {
	repayment.ID = m.nextID()
	m.repayments[repayment.ID] = repayment
	return nil
}

func (m *MockStore) GetRepayment(ctx context.Context, id int64) (*models.Repayment, error) {
	repayment, ok := m.repayments[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return repayment, nil
}

func (m *MockStore) UpdateRepayment(ctx context.Context, repayment *models.Repayment) error {
	if _, ok := m.repayments[repayment.ID]; !ok {
		return store.ErrNotFound
	}
	m.repayments[repayment.ID] = repayment
	return nil
}

func (m *MockStore) DeleteRepayment(ctx context.Context, id int64) error {
	if _, ok := m.repayments[id]; !ok {
		return store.ErrNotFound
	}
	delete(m.repayments, id)
	return nil
}

func (m *MockStore) ListRepayments(ctx context.Context) ([]*models.Repayment, error) {
	repayments := []*models.Repayment{}
	for _, repayment := range m.repayments {
		repayments = append(repayments, repayment)
	}
	sort.Slice(repayments, func(i, j int) bool { return repayments[i].ID < repayments[j].ID })
	return repayments, nil
}

func (m *MockStore) ListRepaymentsByCustomer(ctx context.Context, customerID int64) ([]*models.Repayment, error) {
	repayments := []*models.Repayment{}
	for _, repayment := range m.repayments {
		if repayment.CustomerID == customerID {
			repayments = append(repayments, repayment)
		}
	}
	sort.Slice(repayments, func(i, j int) bool { return repayments[i].ID < repayments[j].ID })
	return repayments, nil
}

func (m *MockStore) RepaymentTotals(ctx context.Context, startAt, endAt *time.Time) (store.RepaymentTotals, error) {
	totals := store.RepaymentTotals{TotalAmount: decimal.Zero}
	for _, repayment := range m.repayments {
		if !inWindow(repayment.RepaymentDate, startAt, endAt) {
			continue
		}
		totals.Count++
		totals.TotalAmount = totals.TotalAmount.Add(repayment.RepaymentAmount)
	}
	return totals, nil
}

func (m *MockStore) CreateBalanceEvent(ctx context.Context, event *models.BalanceEvent) error {
	event.ID = m.nextID()
	m.events = append(m.events, event)
	return nil
}

func (m *MockStore) HasBalanceEvents(ctx context.Context, customerID int64) (bool, error) {
	for _, event := range m.events {
		if event.CustomerID == customerID {
			return true, nil
		}
	}
	return false, nil
}

func (m *MockStore) ListBalanceEvents(ctx context.Context, customerID int64) ([]*models.BalanceEvent, error) {
	events := []*models.BalanceEvent{}
	for _, event := range m.events {
		if event.CustomerID == customerID {
			events = append(events, event)
		}
	}
	sort.Slice(events, func(i, j int) bool {
		if !events[i].EventTime.Equal(events[j].EventTime) {
			return events[i].EventTime.Before(events[j].EventTime)
		}
		return events[i].ID < events[j].ID
	})
	return events, nil
}

func (m *MockStore) ListAllBalanceEvents(ctx context.Context) ([]*models.BalanceEvent, error) {
	return append([]*models.BalanceEvent{}, m.events...), nil
}

func (m *MockStore) CreateBankTransaction(ctx context.Context, tx *models.BankTransaction) error {
	tx.ID = m.nextID()
	m.bank = append(m.bank, tx)
	return nil
}

func (m *MockStore) LatestBankTransaction(ctx context.Context) (*models.BankTransaction, error) {
	if len(m.bank) == 0 {
		return nil, nil
	}
	latest := m.bank[0]
	for _, tx := range m.bank[1:] {
		if tx.ID > latest.ID {
			latest = tx
		}
	}
	return latest, nil
}

func (m *MockStore) ListBankTransactions(ctx context.Context, filter store.BankFilter, limit, offset int) ([]*models.BankTransaction, int64, error) {
	rows := []*models.BankTransaction{}
	for _, tx := range m.bank {
		if !inWindow(tx.CreatedAt, filter.StartAt, filter.EndAt) {
			continue
		}
		if filter.Search != "" &&
			!strings.Contains(tx.Note, filter.Search) &&
			!strings.Contains(string(tx.TransactionType), filter.Search) &&
			!strings.Contains(tx.ReferenceType, filter.Search) {
			continue
		}
		rows = append(rows, tx)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].ID > rows[j].ID })
	total := int64(len(rows))
	if offset >= len(rows) {
		return []*models.BankTransaction{}, total, nil
	}
	rows = rows[offset:]
	if limit > 0 && limit < len(rows) {
		rows = rows[:limit]
	}
	return rows, total, nil
}

func (m *MockStore) CreateOperationLog(ctx context.Context, entry *models.OperationLog) error {
	entry.ID = m.nextID()
	m.logs = append(m.logs, entry)
	return nil
}

func (m *MockStore) ListOperationLogs(ctx context.Context, filter store.LogFilter) ([]*models.OperationLog, error) {
	logs := []*models.OperationLog{}
	for _, entry := range m.logs {
		if filter.EntityType != "" && entry.EntityType != filter.EntityType {
			continue
		}
		if filter.EntityID != nil && (entry.EntityID == nil || *entry.EntityID != *filter.EntityID) {
			continue
		}
		if !inWindow(entry.CreatedAt, filter.StartAt, filter.EndAt) {
			continue
		}
		logs = append(logs, entry)
	}
	sort.Slice(logs, func(i, j int) bool { return logs[i].ID > logs[j].ID })
	if filter.Limit > 0 && filter.Limit < len(logs) {
		logs = logs[:filter.Limit]
	}
	return logs, nil
}

func (m *MockStore) Close() error { return nil }

func inWindow(t time.Time, startAt, endAt *time.Time) bool {
	if startAt != nil && t.Before(*startAt) {
		return false
	}
	if endAt != nil && t.After(*endAt) {
		return false
	}
	return true
}

// eventsOfType filters recorded balance events for assertions.
func (m *MockStore) eventsOfType(eventType models.BalanceEventType) []*models.BalanceEvent {
	matched := []*models.BalanceEvent{}
	for _, event := range m.events {
		if event.EventType == eventType {
			matched = append(matched, event)
		}
	}
	return matched
}
