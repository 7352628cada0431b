package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jordentan9538/loanledger/pkg/models"
	"github.com/jordentan9538/loanledger/pkg/money"
	"github.com/jordentan9538/loanledger/pkg/store"
)

// recordBalanceEvent appends one immutable entry to the customer's balance
// timeline. It records effect, not intent: BalanceAfter is taken from the
// customer's projected balance after the calculator already applied the
// change. Negligible changes write nothing and return nil.
func (s *Service) recordBalanceEvent(ctx context.Context, tx store.Storage, c *models.Customer, eventType models.BalanceEventType, changeAmount decimal.Decimal, description string, metadata map[string]interface{}, eventTime time.Time) (*models.BalanceEvent, error) {
	if c.ID == 0 || money.Negligible(changeAmount) {
		return nil, nil
	}
	balanceAfter := c.ProjectedBalance
	if balanceAfter.IsNegative() {
		balanceAfter = decimal.Zero
	}
	if eventTime.IsZero() {
		eventTime = s.now()
	}
	event := &models.BalanceEvent{
		CustomerID:   c.ID,
		EventType:    eventType,
		EventTime:    eventTime,
		ChangeAmount: money.Round(changeAmount),
		BalanceAfter: money.Round(balanceAfter),
		Description:  description,
		Metadata:     metadata,
	}
	if err := tx.CreateBalanceEvent(ctx, event); err != nil {
		return nil, err
	}
	return event, nil
}

// ensureBaseline synthesizes one baseline event for a customer that carries a
// positive projected balance but no history (pre-existing data migrated
// without events), so the timeline never shows a balance materializing from
// nothing. Idempotent: it checks for existing events, not a flag.
func (s *Service) ensureBaseline(ctx context.Context, tx store.Storage, c *models.Customer) error {
	if c.ID == 0 {
		return nil
	}
	exists, err := tx.HasBalanceEvents(ctx, c.ID)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	balance := c.ProjectedBalance
	if balance.IsNegative() {
		balance = decimal.Zero
	}
	balance = money.Round(balance)
	if balance.Sign() <= 0 {
		return nil
	}
	event := &models.BalanceEvent{
		CustomerID:   c.ID,
		EventType:    models.EventBaseline,
		EventTime:    s.now(),
		ChangeAmount: balance,
		BalanceAfter: balance,
		Description:  "Initialize compound balance",
		Metadata:     map[string]interface{}{"source": "baseline"},
	}
	return tx.CreateBalanceEvent(ctx, event)
}

// BalanceTimeline is a customer's full balance event history together with
// the current projected state.
type BalanceTimeline struct {
	CustomerID       int64                  `json:"customer_id"`
	CustomerCode     string                 `json:"customer_code"`
	CustomerName     string                 `json:"customer_name"`
	ProjectedBalance decimal.Decimal        `json:"projected_balance"`
	NextCompoundAt   *time.Time             `json:"next_compound_at,omitempty"`
	Events           []*models.BalanceEvent `json:"events"`
}

// Timeline returns the customer's balance events ordered by (event_time, id)
// ascending, bootstrapping a baseline entry first when history is missing.
func (s *Service) Timeline(ctx context.Context, customerID int64) (*BalanceTimeline, error) {
	var timeline *BalanceTimeline
	err := s.storage.InTransaction(ctx, func(tx store.Storage) error {
		customer, err := tx.GetCustomer(ctx, customerID)
		if err == store.ErrNotFound {
			return ErrCustomerNotFound
		}
		if err != nil {
			return err
		}
		if err := s.ensureBaseline(ctx, tx, customer); err != nil {
			return fmt.Errorf("failed to ensure baseline event: %w", err)
		}
		events, err := tx.ListBalanceEvents(ctx, customer.ID)
		if err != nil {
			return err
		}
		projected := customer.ProjectedBalance
		if projected.IsNegative() {
			projected = decimal.Zero
		}
		timeline = &BalanceTimeline{
			CustomerID:       customer.ID,
			CustomerCode:     customer.CustomerCode,
			CustomerName:     customer.Name,
			ProjectedBalance: money.Round(projected),
			NextCompoundAt:   customer.NextCompoundAt,
			Events:           events,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return timeline, nil
}
