// Package ledger implements the compounding balance engine: the calculator
// that rolls customer balances through fixed compounding periods, the
// append-only balance event and bank transaction ledgers, the loan repayment
// guard, and the transactional business operations that compose them.
package ledger

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jordentan9538/loanledger/pkg/models"
	"github.com/jordentan9538/loanledger/pkg/money"
	"github.com/jordentan9538/loanledger/pkg/store"
)

// Config tunes the compounding engine. Zero values fall back to the fixed
// defaults so production behavior stays reproducible.
type Config struct {
	CompoundRate     decimal.Decimal
	CompoundInterval time.Duration
	Now              func() time.Time
}

// Service handles the business logic for customers, loans, repayments and
// both ledgers, over a given Storage implementation.
type Service struct {
	storage  store.Storage
	rate     decimal.Decimal
	interval time.Duration
	now      func() time.Time
}

// New creates a Service with the default compounding rate and interval.
func New(s store.Storage) *Service {
	return NewWithConfig(s, Config{})
}

// NewWithConfig creates a Service with explicit compounding parameters.
func NewWithConfig(s store.Storage, cfg Config) *Service {
	rate := cfg.CompoundRate
	if rate.IsZero() {
		rate = decimal.NewFromFloat(money.DefaultCompoundRate)
	}
	interval := cfg.CompoundInterval
	if interval <= 0 {
		interval = money.DefaultCompoundInterval
	}
	now := cfg.Now
	if now == nil {
		now = money.Now
	}
	return &Service{storage: s, rate: rate, interval: interval, now: now}
}

// CompoundRate returns the configured per-period growth rate.
func (s *Service) CompoundRate() decimal.Decimal {
	return s.rate
}

// compounded is the repayable ceiling for a principal amount under the
// configured rate.
func (s *Service) compounded(amount decimal.Decimal) decimal.Decimal {
	return money.Compounded(amount, s.rate)
}

// logOperation appends one audit-trail entry inside the caller's transaction.
func (s *Service) logOperation(ctx context.Context, tx store.Storage, entityType string, entityID *int64, action, description string, metadata map[string]interface{}) error {
	entry := &models.OperationLog{
		EntityType:  entityType,
		EntityID:    entityID,
		Action:      action,
		Description: description,
		Metadata:    metadata,
		CreatedAt:   s.now(),
	}
	return tx.CreateOperationLog(ctx, entry)
}

// ListOperationLogs returns the most recent audit-trail entries matching the
// filter, newest first. The limit is clamped to [1, 500].
func (s *Service) ListOperationLogs(ctx context.Context, filter store.LogFilter) ([]*models.OperationLog, error) {
	if filter.Limit == 0 {
		filter.Limit = 200
	}
	return s.storage.ListOperationLogs(ctx, filter)
}
