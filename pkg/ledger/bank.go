package ledger

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/jordentan9538/loanledger/pkg/models"
	"github.com/jordentan9538/loanledger/pkg/money"
	"github.com/jordentan9538/loanledger/pkg/store"
)

const (
	maxBankPageSize     = 200
	defaultBankPageSize = 20
)

// bankBalance is the BalanceAfter of the most recently inserted row, or zero
// for an empty ledger. O(1): an indexed lookup of the max primary key, never
// a full-table sum.
func (s *Service) bankBalance(ctx context.Context, q store.Storage) (decimal.Decimal, error) {
	latest, err := q.LatestBankTransaction(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	if latest == nil {
		return decimal.Zero, nil
	}
	return money.Round(latest.BalanceAfter), nil
}

// BankBalance returns the operational account's current running balance.
func (s *Service) BankBalance(ctx context.Context) (decimal.Decimal, error) {
	return s.bankBalance(ctx, s.storage)
}

// recordBankTransaction appends one cash movement, carrying the running
// balance computed at insertion time. Amounts that round to zero are never
// persisted and return nil. Appends must run inside the caller's transaction
// so concurrent writers cannot compute the same "current balance".
func (s *Service) recordBankTransaction(ctx context.Context, tx store.Storage, transactionType models.BankTransactionType, amount decimal.Decimal, note, referenceType string, referenceID, customerID *int64) (*models.BankTransaction, error) {
	normalized := money.Round(amount)
	if money.Negligible(normalized) {
		return nil, nil
	}
	current, err := s.bankBalance(ctx, tx)
	if err != nil {
		return nil, err
	}
	entry := &models.BankTransaction{
		TransactionType: transactionType,
		Amount:          normalized,
		BalanceAfter:    money.Round(current.Add(normalized)),
		ReferenceType:   referenceType,
		ReferenceID:     referenceID,
		CustomerID:      customerID,
		Note:            note,
		CreatedAt:       s.now(),
	}
	if err := tx.CreateBankTransaction(ctx, entry); err != nil {
		return nil, err
	}
	return entry, nil
}

// BankLedgerPage is one page of the operational account ledger.
type BankLedgerPage struct {
	Balance      decimal.Decimal           `json:"balance"`
	Total        int64                     `json:"total"`
	Limit        int                       `json:"limit"`
	Offset       int                       `json:"offset"`
	Transactions []*models.BankTransaction `json:"transactions"`
}

// BankLedger lists bank transactions in insertion order with the given
// filter. Limit is clamped to [1, 200] and offset to >= 0.
func (s *Service) BankLedger(ctx context.Context, filter store.BankFilter, limit, offset int) (*BankLedgerPage, error) {
	if limit < 1 {
		limit = defaultBankPageSize
	}
	if limit > maxBankPageSize {
		limit = maxBankPageSize
	}
	if offset < 0 {
		offset = 0
	}

	transactions, total, err := s.storage.ListBankTransactions(ctx, filter, limit, offset)
	if err != nil {
		return nil, err
	}
	balance, err := s.BankBalance(ctx)
	if err != nil {
		return nil, err
	}
	return &BankLedgerPage{
		Balance:      balance,
		Total:        total,
		Limit:        limit,
		Offset:       offset,
		Transactions: transactions,
	}, nil
}

// ManualBankAdjustment records an operator deposit or withdrawal against the
// operational account. The amount must round to a non-zero value; direction
// decides the sign.
func (s *Service) ManualBankAdjustment(ctx context.Context, amount decimal.Decimal, direction, note string) (*models.BankTransaction, error) {
	direction = strings.ToLower(strings.TrimSpace(direction))
	var transactionType models.BankTransactionType
	signed := money.Round(amount)
	switch direction {
	case "deposit":
		transactionType = models.BankManualDeposit
	case "withdrawal":
		transactionType = models.BankManualWithdrawal
		signed = signed.Neg()
	default:
		return nil, ErrInvalidDirection
	}
	if money.Negligible(signed) {
		return nil, ErrInvalidAmount
	}
	if note == "" {
		if signed.IsPositive() {
			note = "Manual balance increase"
		} else {
			note = "Manual balance deduction"
		}
	}

	var entry *models.BankTransaction
	err := s.storage.InTransaction(ctx, func(tx store.Storage) error {
		var err error
		entry, err = s.recordBankTransaction(ctx, tx, transactionType, signed, note, "", nil, nil)
		if err != nil {
			return err
		}
		if entry == nil {
			return ErrInvalidAmount
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}
