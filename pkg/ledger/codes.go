package ledger

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/jordentan9538/loanledger/pkg/models"
	"github.com/jordentan9538/loanledger/pkg/store"
)

// randomToken returns n characters of uppercase hex randomness.
func randomToken(n int) string {
	token := strings.ReplaceAll(uuid.NewString(), "-", "")
	if n > len(token) {
		n = len(token)
	}
	return strings.ToUpper(token[:n])
}

// generateCustomerCode produces a unique CUST-XXXXXX business code, retrying
// on the (unlikely) collision.
func (s *Service) generateCustomerCode(ctx context.Context, q store.Storage) (string, error) {
	for {
		code := "CUST-" + randomToken(6)
		_, err := q.GetCustomerByCode(ctx, code)
		if err == store.ErrNotFound {
			return code, nil
		}
		if err != nil {
			return "", err
		}
	}
}

// idCardSuffix derives the 4-digit suffix loan codes embed: the last four
// digits of the customer's ID card, zero-padded, or random digits when the
// card has none.
func idCardSuffix(idCard string) string {
	var digits strings.Builder
	for _, ch := range idCard {
		if ch >= '0' && ch <= '9' {
			digits.WriteRune(ch)
		}
	}
	text := digits.String()
	if text == "" {
		return fmt.Sprintf("%04d", uuid.New().ID()%10000)
	}
	if len(text) >= 4 {
		return text[len(text)-4:]
	}
	return strings.Repeat("0", 4-len(text)) + text
}

// generateLoanCode produces a unique LN-<suffix>-<timestamp><rand> code.
func (s *Service) generateLoanCode(ctx context.Context, q store.Storage, customer *models.Customer) (string, error) {
	suffix := idCardSuffix("")
	if customer != nil {
		suffix = idCardSuffix(customer.IDCard)
	}
	timestamp := s.now().Format("20060102150405")
	for {
		code := fmt.Sprintf("LN-%s-%s%02d", suffix, timestamp, uuid.New().ID()%100)
		_, err := q.GetLoanByCode(ctx, code)
		if err == store.ErrNotFound {
			return code, nil
		}
		if err != nil {
			return "", err
		}
	}
}

// ensureLoanCode backfills a missing loan code in place.
func (s *Service) ensureLoanCode(ctx context.Context, q store.Storage, loan *models.Loan) (string, error) {
	if loan.LoanCode != "" {
		return loan.LoanCode, nil
	}
	var customer *models.Customer
	if loan.CustomerID != 0 {
		var err error
		customer, err = q.GetCustomer(ctx, loan.CustomerID)
		if err != nil && err != store.ErrNotFound {
			return "", err
		}
	}
	code, err := s.generateLoanCode(ctx, q, customer)
	if err != nil {
		return "", err
	}
	loan.LoanCode = code
	loan.UpdatedAt = s.now()
	if err := q.UpdateLoan(ctx, loan); err != nil {
		return "", err
	}
	return code, nil
}
