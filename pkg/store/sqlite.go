package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jordentan9538/loanledger/pkg/models"

	_ "github.com/mattn/go-sqlite3"
)

// querier is satisfied by both *sql.DB and *sql.Tx so every store method can
// run inside or outside a transaction.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// SQLiteStore implements Storage on SQLite. Decimal columns are stored as
// TEXT so no precision is lost.
type SQLiteStore struct {
	db *sql.DB // nil when this store is bound to a transaction
	q  querier
}

// NewSQLiteStore opens (or creates) the database and initializes the schema.
func NewSQLiteStore(dataSourceName string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("could not open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON;"); err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL;"); err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("could not connect to database: %w", err)
	}

	s := &SQLiteStore{db: db, q: db}
	if err := s.initSchema(); err != nil {
		return nil, fmt.Errorf("could not initialize schema: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	const schema = `
	CREATE TABLE IF NOT EXISTS customers (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		customer_code TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL,
		phone TEXT NOT NULL,
		id_card TEXT,
		address TEXT,
		note TEXT,
		created_at DATETIME NOT NULL,
		projected_balance TEXT NOT NULL DEFAULT '0',
		last_principal TEXT NOT NULL DEFAULT '0',
		next_compound_at DATETIME
	);
	CREATE TABLE IF NOT EXISTS loans (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		customer_id INTEGER NOT NULL,
		loan_code TEXT NOT NULL UNIQUE,
		loan_date DATETIME NOT NULL,
		loan_amount TEXT NOT NULL,
		processing_fee TEXT NOT NULL DEFAULT '0',
		interest_rate TEXT NOT NULL DEFAULT '0',
		interest_type TEXT NOT NULL DEFAULT 'monthly',
		note TEXT,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		FOREIGN KEY(customer_id) REFERENCES customers(id)
	);
	CREATE TABLE IF NOT EXISTS repayments (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		customer_id INTEGER NOT NULL,
		loan_id INTEGER,
		repayment_date DATETIME NOT NULL,
		repayment_amount TEXT NOT NULL,
		fee TEXT NOT NULL DEFAULT '0',
		note TEXT,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		FOREIGN KEY(customer_id) REFERENCES customers(id)
	);
	CREATE TABLE IF NOT EXISTS balance_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		customer_id INTEGER NOT NULL,
		event_type TEXT NOT NULL,
		event_time DATETIME NOT NULL,
		change_amount TEXT NOT NULL,
		balance_after TEXT NOT NULL,
		description TEXT,
		metadata_json TEXT,
		FOREIGN KEY(customer_id) REFERENCES customers(id)
	);
	CREATE INDEX IF NOT EXISTS idx_balance_events_customer ON balance_events(customer_id, event_time);
	CREATE TABLE IF NOT EXISTS bank_transactions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		transaction_type TEXT NOT NULL,
		amount TEXT NOT NULL,
		balance_after TEXT NOT NULL,
		reference_type TEXT,
		reference_id INTEGER,
		customer_id INTEGER,
		note TEXT,
		created_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_bank_transactions_created ON bank_transactions(created_at);
	CREATE TABLE IF NOT EXISTS operation_logs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		entity_type TEXT NOT NULL,
		entity_id INTEGER,
		action TEXT NOT NULL,
		description TEXT NOT NULL,
		metadata_json TEXT,
		created_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_operation_logs_entity ON operation_logs(entity_type, entity_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

// InTransaction runs fn in one transaction. When the store is already bound
// to a transaction the callback joins it instead of opening a new one.
func (s *SQLiteStore) InTransaction(ctx context.Context, fn func(Storage) error) error {
	if s.db == nil {
		return fn(s)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&SQLiteStore{q: tx}); err != nil {
		return err
	}
	return tx.Commit()
}

func marshalMetadata(metadata map[string]interface{}) (sql.NullString, error) {
	if len(metadata) == 0 {
		return sql.NullString{}, nil
	}
	raw, err := json.Marshal(metadata)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("failed to encode metadata: %w", err)
	}
	return sql.NullString{String: string(raw), Valid: true}, nil
}

func unmarshalMetadata(raw sql.NullString) map[string]interface{} {
	if !raw.Valid || raw.String == "" {
		return nil
	}
	var metadata map[string]interface{}
	if err := json.Unmarshal([]byte(raw.String), &metadata); err != nil {
		return nil
	}
	return metadata
}

func nullInt(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

func intPtr(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	n := v.Int64
	return &n
}

func nullTime(v *time.Time) sql.NullTime {
	if v == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *v, Valid: true}
}

func nullStr(v string) sql.NullString {
	if v == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: v, Valid: true}
}

// --- customers ---

const customerColumns = `id, customer_code, name, phone, id_card, address, note, created_at, projected_balance, last_principal, next_compound_at`

func (s *SQLiteStore) CreateCustomer(ctx context.Context, customer *models.Customer) error {
	res, err := s.q.ExecContext(ctx,
		`INSERT INTO customers (customer_code, name, phone, id_card, address, note, created_at, projected_balance, last_principal, next_compound_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		customer.CustomerCode, customer.Name, customer.Phone, nullStr(customer.IDCard), nullStr(customer.Address), nullStr(customer.Note),
		customer.CreatedAt, customer.ProjectedBalance, customer.LastPrincipal, nullTime(customer.NextCompoundAt),
	)
	if err != nil {
		return fmt.Errorf("failed to create customer: %w", err)
	}
	customer.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read customer id: %w", err)
	}
	return nil
}

func scanCustomer(row interface{ Scan(...interface{}) error }) (*models.Customer, error) {
	var c models.Customer
	var idCard, address, note sql.NullString
	var nextCompoundAt sql.NullTime
	err := row.Scan(&c.ID, &c.CustomerCode, &c.Name, &c.Phone, &idCard, &address, &note,
		&c.CreatedAt, &c.ProjectedBalance, &c.LastPrincipal, &nextCompoundAt)
	if err != nil {
		return nil, err
	}
	c.IDCard = idCard.String
	c.Address = address.String
	c.Note = note.String
	if nextCompoundAt.Valid {
		t := nextCompoundAt.Time
		c.NextCompoundAt = &t
	}
	return &c, nil
}

func (s *SQLiteStore) GetCustomer(ctx context.Context, id int64) (*models.Customer, error) {
	customer, err := scanCustomer(s.q.QueryRowContext(ctx,
		`SELECT `+customerColumns+` FROM customers WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get customer: %w", err)
	}
	return customer, nil
}

func (s *SQLiteStore) GetCustomerByCode(ctx context.Context, code string) (*models.Customer, error) {
	customer, err := scanCustomer(s.q.QueryRowContext(ctx,
		`SELECT `+customerColumns+` FROM customers WHERE customer_code = ?`, code))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get customer by code: %w", err)
	}
	return customer, nil
}

func (s *SQLiteStore) UpdateCustomer(ctx context.Context, customer *models.Customer) error {
	res, err := s.q.ExecContext(ctx,
		`UPDATE customers SET customer_code = ?, name = ?, phone = ?, id_card = ?, address = ?, note = ?,
		projected_balance = ?, last_principal = ?, next_compound_at = ? WHERE id = ?`,
		customer.CustomerCode, customer.Name, customer.Phone, nullStr(customer.IDCard), nullStr(customer.Address), nullStr(customer.Note),
		customer.ProjectedBalance, customer.LastPrincipal, nullTime(customer.NextCompoundAt), customer.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update customer: %w", err)
	}
	return requireRow(res)
}

func (s *SQLiteStore) ListCustomers(ctx context.Context) ([]*models.Customer, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT `+customerColumns+` FROM customers ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list customers: %w", err)
	}
	defer rows.Close()

	var customers []*models.Customer
	for rows.Next() {
		customer, err := scanCustomer(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan customer row: %w", err)
		}
		customers = append(customers, customer)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration: %w", err)
	}
	return customers, nil
}

func (s *SQLiteStore) CountCustomers(ctx context.Context, startAt, endAt *time.Time) (int64, error) {
	query := `SELECT COUNT(id) FROM customers`
	var conds []string
	var args []interface{}
	if startAt != nil {
		conds = append(conds, "created_at >= ?")
		args = append(args, *startAt)
	}
	if endAt != nil {
		conds = append(conds, "created_at <= ?")
		args = append(args, *endAt)
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	var count int64
	if err := s.q.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count customers: %w", err)
	}
	return count, nil
}

// --- loans ---

const loanColumns = `id, customer_id, loan_code, loan_date, loan_amount, processing_fee, interest_rate, interest_type, note, created_at, updated_at`

func (s *SQLiteStore) CreateLoan(ctx context.Context, loan *models.Loan) error {
	res, err := s.q.ExecContext(ctx,
		`INSERT INTO loans (customer_id, loan_code, loan_date, loan_amount, processing_fee, interest_rate, interest_type, note, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		loan.CustomerID, loan.LoanCode, loan.LoanDate, loan.LoanAmount, loan.ProcessingFee,
		loan.InterestRate, loan.InterestType, nullStr(loan.Note), loan.CreatedAt, loan.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create loan: %w", err)
	}
	loan.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read loan id: %w", err)
	}
	return nil
}

func scanLoan(row interface{ Scan(...interface{}) error }) (*models.Loan, error) {
	var l models.Loan
	var note sql.NullString
	err := row.Scan(&l.ID, &l.CustomerID, &l.LoanCode, &l.LoanDate, &l.LoanAmount, &l.ProcessingFee,
		&l.InterestRate, &l.InterestType, &note, &l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		return nil, err
	}
	l.Note = note.String
	return &l, nil
}

func (s *SQLiteStore) GetLoan(ctx context.Context, id int64) (*models.Loan, error) {
	loan, err := scanLoan(s.q.QueryRowContext(ctx, `SELECT `+loanColumns+` FROM loans WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get loan: %w", err)
	}
	return loan, nil
}

func (s *SQLiteStore) GetLoanByCode(ctx context.Context, code string) (*models.Loan, error) {
	loan, err := scanLoan(s.q.QueryRowContext(ctx, `SELECT `+loanColumns+` FROM loans WHERE loan_code = ?`, code))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get loan by code: %w", err)
	}
	return loan, nil
}

func (s *SQLiteStore) UpdateLoan(ctx context.Context, loan *models.Loan) error {
	res, err := s.q.ExecContext(ctx,
		`UPDATE loans SET customer_id = ?, loan_code = ?, loan_date = ?, loan_amount = ?, processing_fee = ?,
		interest_rate = ?, interest_type = ?, note = ?, updated_at = ? WHERE id = ?`,
		loan.CustomerID, loan.LoanCode, loan.LoanDate, loan.LoanAmount, loan.ProcessingFee,
		loan.InterestRate, loan.InterestType, nullStr(loan.Note), loan.UpdatedAt, loan.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update loan: %w", err)
	}
	return requireRow(res)
}

func (s *SQLiteStore) DeleteLoan(ctx context.Context, id int64) error {
	res, err := s.q.ExecContext(ctx, `DELETE FROM loans WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete loan: %w", err)
	}
	return requireRow(res)
}

func (s *SQLiteStore) scanLoans(rows *sql.Rows) ([]*models.Loan, error) {
	var loans []*models.Loan
	for rows.Next() {
		loan, err := scanLoan(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan loan row: %w", err)
		}
		loans = append(loans, loan)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration: %w", err)
	}
	return loans, nil
}

func (s *SQLiteStore) ListLoans(ctx context.Context) ([]*models.Loan, error) {
	rows, err := s.q.QueryContext(ctx, `SELECT `+loanColumns+` FROM loans ORDER BY loan_date DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list loans: %w", err)
	}
	defer rows.Close()
	return s.scanLoans(rows)
}

func (s *SQLiteStore) ListLoansByCustomer(ctx context.Context, customerID int64) ([]*models.Loan, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT `+loanColumns+` FROM loans WHERE customer_id = ? ORDER BY loan_date ASC, id ASC`, customerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list loans for customer %d: %w", customerID, err)
	}
	defer rows.Close()
	return s.scanLoans(rows)
}

func (s *SQLiteStore) SumLoanRepayments(ctx context.Context, loanID int64, excludeRepaymentID *int64) (decimal.Decimal, error) {
	query := `SELECT COALESCE(SUM(ABS(repayment_amount)), 0) FROM repayments WHERE loan_id = ?`
	args := []interface{}{loanID}
	if excludeRepaymentID != nil {
		query += ` AND id != ?`
		args = append(args, *excludeRepaymentID)
	}
	var total decimal.Decimal
	if err := s.q.QueryRowContext(ctx, query, args...).Scan(&total); err != nil {
		return decimal.Zero, fmt.Errorf("failed to sum repayments for loan %d: %w", loanID, err)
	}
	return total, nil
}

func (s *SQLiteStore) LoanTotals(ctx context.Context, startAt, endAt *time.Time) (LoanTotals, error) {
	query := `SELECT COUNT(id), COALESCE(SUM(loan_amount), 0), COALESCE(SUM(processing_fee), 0) FROM loans`
	var conds []string
	var args []interface{}
	if startAt != nil {
		conds = append(conds, "loan_date >= ?")
		args = append(args, *startAt)
	}
	if endAt != nil {
		conds = append(conds, "loan_date <= ?")
		args = append(args, *endAt)
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	var totals LoanTotals
	if err := s.q.QueryRowContext(ctx, query, args...).Scan(&totals.Count, &totals.TotalAmount, &totals.TotalFees); err != nil {
		return LoanTotals{}, fmt.Errorf("failed to total loans: %w", err)
	}
	return totals, nil
}

// --- repayments ---

const repaymentColumns = `id, customer_id, loan_id, repayment_date, repayment_amount, fee, note, created_at, updated_at`

func (s *SQLiteStore) CreateRepayment(ctx context.Context, repayment *models.Repayment) error {
	res, err := s.q.ExecContext(ctx,
		`INSERT INTO repayments (customer_id, loan_id, repayment_date, repayment_amount, fee, note, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		repayment.CustomerID, nullInt(repayment.LoanID), repayment.RepaymentDate, repayment.RepaymentAmount,
		repayment.Fee, nullStr(repayment.Note), repayment.CreatedAt, repayment.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create repayment: %w", err)
	}
	repayment.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read repayment id: %w", err)
	}
	return nil
}

func scanRepayment(row interface{ Scan(...interface{}) error }) (*models.Repayment, error) {
	var r models.Repayment
	var loanID sql.NullInt64
	var note sql.NullString
	err := row.Scan(&r.ID, &r.CustomerID, &loanID, &r.RepaymentDate, &r.RepaymentAmount, &r.Fee,
		&note, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}
	r.LoanID = intPtr(loanID)
	r.Note = note.String
	return &r, nil
}

func (s *SQLiteStore) GetRepayment(ctx context.Context, id int64) (*models.Repayment, error) {
	repayment, err := scanRepayment(s.q.QueryRowContext(ctx,
		`SELECT `+repaymentColumns+` FROM repayments WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get repayment: %w", err)
	}
	return repayment, nil
}

func (s *SQLiteStore) UpdateRepayment(ctx context.Context, repayment *models.Repayment) error {
	res, err := s.q.ExecContext(ctx,
		`UPDATE repayments SET customer_id = ?, loan_id = ?, repayment_date = ?, repayment_amount = ?, fee = ?,
		note = ?, updated_at = ? WHERE id = ?`,
		repayment.CustomerID, nullInt(repayment.LoanID), repayment.RepaymentDate, repayment.RepaymentAmount,
		repayment.Fee, nullStr(repayment.Note), repayment.UpdatedAt, repayment.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update repayment: %w", err)
	}
	return requireRow(res)
}

func (s *SQLiteStore) DeleteRepayment(ctx context.Context, id int64) error {
	res, err := s.q.ExecContext(ctx, `DELETE FROM repayments WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete repayment: %w", err)
	}
	return requireRow(res)
}

func (s *SQLiteStore) scanRepayments(rows *sql.Rows) ([]*models.Repayment, error) {
	var repayments []*models.Repayment
	for rows.Next() {
		repayment, err := scanRepayment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan repayment row: %w", err)
		}
		repayments = append(repayments, repayment)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration: %w", err)
	}
	return repayments, nil
}

func (s *SQLiteStore) ListRepayments(ctx context.Context) ([]*models.Repayment, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT `+repaymentColumns+` FROM repayments ORDER BY repayment_date DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list repayments: %w", err)
	}
	defer rows.Close()
	return s.scanRepayments(rows)
}

func (s *SQLiteStore) ListRepaymentsByCustomer(ctx context.Context, customerID int64) ([]*models.Repayment, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT `+repaymentColumns+` FROM repayments WHERE customer_id = ? ORDER BY repayment_date ASC, id ASC`, customerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list repayments for customer %d: %w", customerID, err)
	}
	defer rows.Close()
	return s.scanRepayments(rows)
}

func (s *SQLiteStore) RepaymentTotals(ctx context.Context, startAt, endAt *time.Time) (RepaymentTotals, error) {
	query := `SELECT COUNT(id), COALESCE(SUM(repayment_amount), 0) FROM repayments`
	var conds []string
	var args []interface{}
	if startAt != nil {
		conds = append(conds, "repayment_date >= ?")
		args = append(args, *startAt)
	}
	if endAt != nil {
		conds = append(conds, "repayment_date <= ?")
		args = append(args, *endAt)
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	var totals RepaymentTotals
	if err := s.q.QueryRowContext(ctx, query, args...).Scan(&totals.Count, &totals.TotalAmount); err != nil {
		return RepaymentTotals{}, fmt.Errorf("failed to total repayments: %w", err)
	}
	return totals, nil
}

// --- balance events ---

const balanceEventColumns = `id, customer_id, event_type, event_time, change_amount, balance_after, description, metadata_json`

func (s *SQLiteStore) CreateBalanceEvent(ctx context.Context, event *models.BalanceEvent) error {
	metadata, err := marshalMetadata(event.Metadata)
	if err != nil {
		return err
	}
	res, err := s.q.ExecContext(ctx,
		`INSERT INTO balance_events (customer_id, event_type, event_time, change_amount, balance_after, description, metadata_json)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		event.CustomerID, string(event.EventType), event.EventTime, event.ChangeAmount, event.BalanceAfter,
		nullStr(event.Description), metadata,
	)
	if err != nil {
		return fmt.Errorf("failed to create balance event: %w", err)
	}
	event.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read balance event id: %w", err)
	}
	return nil
}

func (s *SQLiteStore) HasBalanceEvents(ctx context.Context, customerID int64) (bool, error) {
	var id int64
	err := s.q.QueryRowContext(ctx,
		`SELECT id FROM balance_events WHERE customer_id = ? LIMIT 1`, customerID).Scan(&id)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check balance events: %w", err)
	}
	return true, nil
}

func (s *SQLiteStore) scanBalanceEvents(rows *sql.Rows) ([]*models.BalanceEvent, error) {
	var events []*models.BalanceEvent
	for rows.Next() {
		var e models.BalanceEvent
		var eventType string
		var description, metadata sql.NullString
		if err := rows.Scan(&e.ID, &e.CustomerID, &eventType, &e.EventTime, &e.ChangeAmount,
			&e.BalanceAfter, &description, &metadata); err != nil {
			return nil, fmt.Errorf("failed to scan balance event row: %w", err)
		}
		e.EventType = models.BalanceEventType(eventType)
		e.Description = description.String
		e.Metadata = unmarshalMetadata(metadata)
		events = append(events, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration: %w", err)
	}
	return events, nil
}

func (s *SQLiteStore) ListBalanceEvents(ctx context.Context, customerID int64) ([]*models.BalanceEvent, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT `+balanceEventColumns+` FROM balance_events WHERE customer_id = ? ORDER BY event_time ASC, id ASC`,
		customerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list balance events for customer %d: %w", customerID, err)
	}
	defer rows.Close()
	return s.scanBalanceEvents(rows)
}

func (s *SQLiteStore) ListAllBalanceEvents(ctx context.Context) ([]*models.BalanceEvent, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT `+balanceEventColumns+` FROM balance_events ORDER BY customer_id ASC, event_time ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list balance events: %w", err)
	}
	defer rows.Close()
	return s.scanBalanceEvents(rows)
}

// --- bank transactions ---

const bankColumns = `id, transaction_type, amount, balance_after, reference_type, reference_id, customer_id, note, created_at`

func (s *SQLiteStore) CreateBankTransaction(ctx context.Context, tx *models.BankTransaction) error {
	res, err := s.q.ExecContext(ctx,
		`INSERT INTO bank_transactions (transaction_type, amount, balance_after, reference_type, reference_id, customer_id, note, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		string(tx.TransactionType), tx.Amount, tx.BalanceAfter, nullStr(tx.ReferenceType),
		nullInt(tx.ReferenceID), nullInt(tx.CustomerID), nullStr(tx.Note), tx.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create bank transaction: %w", err)
	}
	tx.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read bank transaction id: %w", err)
	}
	return nil
}

func scanBankTransaction(row interface{ Scan(...interface{}) error }) (*models.BankTransaction, error) {
	var t models.BankTransaction
	var txType string
	var referenceType, note sql.NullString
	var referenceID, customerID sql.NullInt64
	err := row.Scan(&t.ID, &txType, &t.Amount, &t.BalanceAfter, &referenceType,
		&referenceID, &customerID, &note, &t.CreatedAt)
	if err != nil {
		return nil, err
	}
	t.TransactionType = models.BankTransactionType(txType)
	t.ReferenceType = referenceType.String
	t.ReferenceID = intPtr(referenceID)
	t.CustomerID = intPtr(customerID)
	t.Note = note.String
	return &t, nil
}

// LatestBankTransaction returns the highest-ID row, or nil when the ledger is
// empty. Insertion order, not created_at, defines the running balance.
func (s *SQLiteStore) LatestBankTransaction(ctx context.Context) (*models.BankTransaction, error) {
	tx, err := scanBankTransaction(s.q.QueryRowContext(ctx,
		`SELECT `+bankColumns+` FROM bank_transactions ORDER BY id DESC LIMIT 1`))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest bank transaction: %w", err)
	}
	return tx, nil
}

func bankFilterClause(filter BankFilter) (string, []interface{}) {
	var conds []string
	var args []interface{}
	if filter.StartAt != nil {
		conds = append(conds, "created_at >= ?")
		args = append(args, *filter.StartAt)
	}
	if filter.EndAt != nil {
		conds = append(conds, "created_at <= ?")
		args = append(args, *filter.EndAt)
	}
	if trimmed := strings.TrimSpace(filter.Search); trimmed != "" {
		pattern := "%" + trimmed + "%"
		searchConds := []string{
			"transaction_type LIKE ?",
			"note LIKE ?",
			"reference_type LIKE ?",
		}
		args = append(args, pattern, pattern, pattern)
		if id, err := strconv.ParseInt(trimmed, 10, 64); err == nil {
			searchConds = append(searchConds, "reference_id = ?", "customer_id = ?")
			args = append(args, id, id)
		}
		conds = append(conds, "("+strings.Join(searchConds, " OR ")+")")
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func (s *SQLiteStore) ListBankTransactions(ctx context.Context, filter BankFilter, limit, offset int) ([]*models.BankTransaction, int64, error) {
	where, args := bankFilterClause(filter)

	var total int64
	if err := s.q.QueryRowContext(ctx, `SELECT COUNT(id) FROM bank_transactions`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count bank transactions: %w", err)
	}

	query := `SELECT ` + bankColumns + ` FROM bank_transactions` + where +
		` ORDER BY created_at ASC, id ASC LIMIT ? OFFSET ?`
	rows, err := s.q.QueryContext(ctx, query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list bank transactions: %w", err)
	}
	defer rows.Close()

	var transactions []*models.BankTransaction
	for rows.Next() {
		tx, err := scanBankTransaction(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan bank transaction row: %w", err)
		}
		transactions = append(transactions, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("error during rows iteration: %w", err)
	}
	return transactions, total, nil
}

// --- operation logs ---

func (s *SQLiteStore) CreateOperationLog(ctx context.Context, entry *models.OperationLog) error {
	metadata, err := marshalMetadata(entry.Metadata)
	if err != nil {
		return err
	}
	res, err := s.q.ExecContext(ctx,
		`INSERT INTO operation_logs (entity_type, entity_id, action, description, metadata_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		entry.EntityType, nullInt(entry.EntityID), entry.Action, entry.Description, metadata, entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create operation log: %w", err)
	}
	entry.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read operation log id: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListOperationLogs(ctx context.Context, filter LogFilter) ([]*models.OperationLog, error) {
	query := `SELECT id, entity_type, entity_id, action, description, metadata_json, created_at FROM operation_logs`
	var conds []string
	var args []interface{}
	if filter.EntityType != "" {
		conds = append(conds, "entity_type = ?")
		args = append(args, filter.EntityType)
	}
	if filter.EntityID != nil {
		conds = append(conds, "entity_id = ?")
		args = append(args, *filter.EntityID)
	}
	if filter.StartAt != nil {
		conds = append(conds, "created_at >= ?")
		args = append(args, *filter.StartAt)
	}
	if filter.EndAt != nil {
		conds = append(conds, "created_at <= ?")
		args = append(args, *filter.EndAt)
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	limit := filter.Limit
	if limit < 1 {
		limit = 1
	}
	if limit > 500 {
		limit = 500
	}
	query += " ORDER BY created_at DESC, id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list operation logs: %w", err)
	}
	defer rows.Close()

	var logs []*models.OperationLog
	for rows.Next() {
		var l models.OperationLog
		var entityID sql.NullInt64
		var metadata sql.NullString
		if err := rows.Scan(&l.ID, &l.EntityType, &entityID, &l.Action, &l.Description, &metadata, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan operation log row: %w", err)
		}
		l.EntityID = intPtr(entityID)
		l.Metadata = unmarshalMetadata(metadata)
		logs = append(logs, &l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration: %w", err)
	}
	return logs, nil
}

func requireRow(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// Close closes the database connection. No-op for transaction-scoped stores.
func (s *SQLiteStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}
