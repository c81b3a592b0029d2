package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/zsp-sports/gymbooking/internal/domain"
)

type LedgerRepository interface {
	Debit(ctx context.Context, usageID int64, sessions int) (remaining int, err error)
	Balances(ctx context.Context, customerID int64) ([]domain.CreditBalance, error)
}

type PGLedgerRepository struct {
	db *pgxpool.Pool
}

func NewLedgerRepository(db *pgxpool.Pool) LedgerRepository {
	return &PGLedgerRepository{db: db}
}

// rowQuerier is the slice of pool and tx the ledger statements need.
type rowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Debit consumes sessions from a ledger entry. Draining past zero clamps at
// zero instead of erroring or going negative.
func (r *PGLedgerRepository) Debit(ctx context.Context, usageID int64, sessions int) (int, error) {
	return debitUsage(ctx, r.db, usageID, sessions)
}

func debitUsage(ctx context.Context, q rowQuerier, usageID int64, sessions int) (int, error) {
	if sessions <= 0 {
		return 0, fmt.Errorf("debit amount must be positive: %w", domain.ErrInvalidRequest)
	}
	var remaining int
	err := q.QueryRow(ctx, `UPDATE package_usage
		SET sessions_remaining = GREATEST(sessions_remaining - $2, 0), updated_at = now()
		WHERE id = $1
		RETURNING sessions_remaining`, usageID, sessions).Scan(&remaining)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, fmt.Errorf("usage %d: %w", usageID, domain.ErrNotFound)
		}
		return 0, fmt.Errorf("debit usage: %w", err)
	}
	return remaining, nil
}

// Balances lists every non-exhausted entry for a customer. The LEFT JOIN
// keeps balances visible even after the package itself was deleted.
func (r *PGLedgerRepository) Balances(ctx context.Context, customerID int64) ([]domain.CreditBalance, error) {
	rows, err := r.db.Query(ctx, `SELECT pu.id, pu.athlete_id, pu.package_id,
			COALESCE(p.name, 'Retired package'),
			pu.sessions_purchased, pu.sessions_remaining
		FROM package_usage pu
		LEFT JOIN packages p ON p.id = pu.package_id
		WHERE pu.customer_id = $1 AND pu.sessions_remaining > 0
		ORDER BY pu.updated_at DESC`, customerID)
	if err != nil {
		return nil, fmt.Errorf("list balances: %w", err)
	}
	defer rows.Close()

	balances := make([]domain.CreditBalance, 0)
	for rows.Next() {
		var b domain.CreditBalance
		if err := rows.Scan(&b.UsageID, &b.AthleteID, &b.PackageID, &b.PackageName, &b.SessionsPurchased, &b.SessionsRemaining); err != nil {
			return nil, fmt.Errorf("scan balance: %w", err)
		}
		balances = append(balances, b)
	}
	return balances, rows.Err()
}

// creditUsageTx grants sessions to the (customer, athlete, package) triple as
// an additive upsert: a repeat purchase accumulates instead of overwriting.
// Only ever called inside a finalized-payment transaction.
func creditUsageTx(ctx context.Context, tx pgx.Tx, customerID, athleteID, packageID int64, sessions int) error {
	_, err := tx.Exec(ctx, `INSERT INTO package_usage (customer_id, athlete_id, package_id, sessions_purchased, sessions_remaining)
		VALUES ($1, $2, $3, $4, $4)
		ON CONFLICT (customer_id, athlete_id, package_id) DO UPDATE
		SET sessions_purchased = package_usage.sessions_purchased + EXCLUDED.sessions_purchased,
		    sessions_remaining = package_usage.sessions_remaining + EXCLUDED.sessions_remaining,
		    updated_at = now()`,
		customerID, athleteID, packageID, sessions)
	if err != nil {
		return fmt.Errorf("credit usage for athlete %d: %w", athleteID, err)
	}
	return nil
}

var _ LedgerRepository = (*PGLedgerRepository)(nil)
