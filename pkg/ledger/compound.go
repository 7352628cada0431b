package ledger

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jordentan9538/loanledger/pkg/models"
	"github.com/jordentan9538/loanledger/pkg/money"
	"github.com/jordentan9538/loanledger/pkg/store"
)

var one = decimal.NewFromInt(1)

// Advance rolls the customer's projected balance forward through every whole
// compounding period boundary at or before now, emitting one compound_growth
// event per crossed boundary. Boundaries are anchored to the previous
// NextCompoundAt, not to now, so a stalled customer catches up period by
// period. A zero balance forces NextCompoundAt to nil; a positive balance
// with no schedule gets its first boundary at now + interval without growth.
//
// The customer is mutated in memory only; persisting it is the caller's job,
// inside the same transaction tx that receives the growth events.
func (s *Service) Advance(ctx context.Context, tx store.Storage, c *models.Customer, now time.Time) (bool, error) {
	changed := false

	projected := c.ProjectedBalance
	if projected.Sign() <= 0 {
		if !c.ProjectedBalance.IsZero() {
			c.ProjectedBalance = decimal.Zero
			changed = true
		}
		if c.NextCompoundAt != nil {
			c.NextCompoundAt = nil
			changed = true
		}
		return changed, nil
	}

	if c.NextCompoundAt == nil {
		first := now.Add(s.interval)
		c.NextCompoundAt = &first
		return true, nil
	}

	next := *c.NextCompoundAt
	for !next.After(now) {
		previous := projected
		projected = money.Round(previous.Mul(one.Add(s.rate)))
		increment := projected.Sub(previous)
		c.ProjectedBalance = projected

		if tx != nil && increment.IsPositive() && !money.Negligible(increment) {
			_, err := s.recordBalanceEvent(ctx, tx, c, models.EventCompoundGrowth, increment,
				"Compound growth", map[string]interface{}{
					"base_amount":   previous.StringFixed(2),
					"result_amount": projected.StringFixed(2),
					"interest_rate": s.rate.Mul(decimal.NewFromInt(100)).InexactFloat64(),
				}, next)
			if err != nil {
				return changed, err
			}
		}

		next = next.Add(s.interval)
		boundary := next
		c.NextCompoundAt = &boundary
		changed = true
	}

	return changed, nil
}

// ApplyDelta brings the balance current via Advance, then applies an
// instantaneous delta, floors the result at zero, rounds it to 2 decimals,
// and re-establishes the compounding schedule when the balance turns
// positive. Deltas at or below 1e-9 are complete no-ops.
func (s *Service) ApplyDelta(ctx context.Context, tx store.Storage, c *models.Customer, delta decimal.Decimal, now time.Time) (bool, error) {
	if money.Negligible(delta) {
		return false, nil
	}

	changed, err := s.Advance(ctx, tx, c, now)
	if err != nil {
		return changed, err
	}

	projected := c.ProjectedBalance
	if projected.IsNegative() {
		projected = decimal.Zero
	}
	projected = projected.Add(delta)
	if projected.IsNegative() {
		projected = decimal.Zero
	}
	projected = money.Round(projected)

	if !projected.Equal(c.ProjectedBalance) {
		c.ProjectedBalance = projected
		changed = true
	}

	if projected.Sign() <= 0 {
		if c.NextCompoundAt != nil {
			c.NextCompoundAt = nil
			changed = true
		}
		return changed, nil
	}

	if c.NextCompoundAt == nil {
		first := now.Add(s.interval)
		c.NextCompoundAt = &first
		changed = true
	}
	return changed, nil
}

// Reconcile compares an externally recomputed net principal against the last
// one observed and folds the difference into the compounding timeline. It is
// called on every summary read as well as after each mutation, which is what
// keeps the projected balance from drifting when loans or repayments change
// out of band.
func (s *Service) Reconcile(ctx context.Context, tx store.Storage, c *models.Customer, actualPrincipal decimal.Decimal, now time.Time) (decimal.Decimal, *time.Time, bool, error) {
	delta := actualPrincipal.Sub(c.LastPrincipal)

	if !money.Negligible(delta) {
		if _, err := s.ApplyDelta(ctx, tx, c, delta, now); err != nil {
			return c.ProjectedBalance, c.NextCompoundAt, false, err
		}
		c.LastPrincipal = actualPrincipal
		return c.ProjectedBalance, c.NextCompoundAt, true, nil
	}

	changed, err := s.Advance(ctx, tx, c, now)
	return c.ProjectedBalance, c.NextCompoundAt, changed, err
}
