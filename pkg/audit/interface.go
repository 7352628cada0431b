package audit

import (
	"context"

	"github.com/jordentan9538/loanledger/pkg/models"
)

// Source defines the read surface the auditor needs. The audit layer
// depends on this interface, not on a concrete store, and never writes.
//
//go:generate mockgen -destination=mocks/mock_source.go -source=interface.go Source
type Source interface {
	ListCustomers(ctx context.Context) ([]*models.Customer, error)
	ListLoans(ctx context.Context) ([]*models.Loan, error)
	ListRepayments(ctx context.Context) ([]*models.Repayment, error)
	ListAllBalanceEvents(ctx context.Context) ([]*models.BalanceEvent, error)
}
