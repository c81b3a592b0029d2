package credits

import (
	"context"
	"fmt"

	"github.com/zsp-sports/gymbooking/internal/domain"
	"github.com/zsp-sports/gymbooking/internal/repository"
)

type CreditsUseCase interface {
	Balances(ctx context.Context, customerID int64) ([]domain.CreditBalance, error)
	Consume(ctx context.Context, usageID int64, sessions int) (remaining int, err error)
}

// CreditsService is the read/consume surface over the session ledger.
// Credits are only ever granted inside finalize transactions, never here.
type CreditsService struct {
	ledger repository.LedgerRepository
}

func NewCreditsService(ledger repository.LedgerRepository) *CreditsService {
	return &CreditsService{ledger: ledger}
}

func (s *CreditsService) Balances(ctx context.Context, customerID int64) ([]domain.CreditBalance, error) {
	if customerID <= 0 {
		return nil, fmt.Errorf("customer is required: %w", domain.ErrInvalidRequest)
	}
	return s.ledger.Balances(ctx, customerID)
}

func (s *CreditsService) Consume(ctx context.Context, usageID int64, sessions int) (int, error) {
	if usageID <= 0 {
		return 0, fmt.Errorf("usage id is required: %w", domain.ErrInvalidRequest)
	}
	return s.ledger.Debit(ctx, usageID, sessions)
}

var _ CreditsUseCase = (*CreditsService)(nil)
