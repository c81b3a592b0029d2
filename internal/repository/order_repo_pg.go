package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/zsp-sports/gymbooking/internal/domain"
)

// FinalizeParams carries everything the exactly-once finalize step needs:
// the provider transaction id plus the order metadata echoed back by the
// provider (checkout sessions and payment intents both carry it).
type FinalizeParams struct {
	OrderID       int64
	CustomerID    int64
	PackageID     int64
	AthleteIDs    []int64
	TransactionID string
	AmountCents   int64
	Method        string
	Status        string
}

type OrderRepository interface {
	CreatePending(ctx context.Context, order *domain.Order) error
	AttachCheckoutSession(ctx context.Context, orderID int64, sessionID string) error
	GetByID(ctx context.Context, id int64) (*domain.Order, error)
	FinalizeCharge(ctx context.Context, params FinalizeParams) (alreadyProcessed bool, err error)
}

type PGOrderRepository struct {
	db *pgxpool.Pool
}

func NewOrderRepository(db *pgxpool.Pool) OrderRepository {
	return &PGOrderRepository{db: db}
}

func (r *PGOrderRepository) CreatePending(ctx context.Context, order *domain.Order) error {
	order.Status = domain.OrderStatusPending
	err := r.db.QueryRow(ctx, `INSERT INTO orders (customer_id, package_id, status, receipt_code, order_date)
		VALUES ($1, $2, $3, $4, now())
		RETURNING id, order_date, created_at, updated_at`,
		order.CustomerID, order.PackageID, order.Status, order.ReceiptCode).
		Scan(&order.ID, &order.OrderDate, &order.CreatedAt, &order.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert pending order: %w", err)
	}
	return nil
}

func (r *PGOrderRepository) AttachCheckoutSession(ctx context.Context, orderID int64, sessionID string) error {
	cmd, err := r.db.Exec(ctx, `UPDATE orders SET checkout_session_id = $1, updated_at = now() WHERE id = $2`, sessionID, orderID)
	if err != nil {
		return fmt.Errorf("attach checkout session: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return fmt.Errorf("order %d: %w", orderID, domain.ErrNotFound)
	}
	return nil
}

func (r *PGOrderRepository) GetByID(ctx context.Context, id int64) (*domain.Order, error) {
	row := r.db.QueryRow(ctx, `SELECT id, customer_id, package_id, status, receipt_code, checkout_session_id, order_date, created_at, updated_at
		FROM orders WHERE id = $1`, id)
	var o domain.Order
	if err := row.Scan(&o.ID, &o.CustomerID, &o.PackageID, &o.Status, &o.ReceiptCode, &o.CheckoutSessionID, &o.OrderDate, &o.CreatedAt, &o.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("order %d: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("get order: %w", err)
	}
	return &o, nil
}

// FinalizeCharge converts a confirmed charge into durable order/payment/
// ledger state exactly once. Two callers racing with the same transaction id
// both reach the payment insert; the UNIQUE constraint on transaction_id
// lets only one row through, and the loser sees zero affected rows and backs
// out without committing anything.
func (r *PGOrderRepository) FinalizeCharge(ctx context.Context, params FinalizeParams) (bool, error) {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return false, fmt.Errorf("begin finalize tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var processed bool
	if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM payments WHERE transaction_id = $1)`, params.TransactionID).Scan(&processed); err != nil {
		return false, fmt.Errorf("check processed payment: %w", err)
	}
	if processed {
		return true, nil
	}

	var sessions int
	if err := tx.QueryRow(ctx, `SELECT sessions_included FROM packages WHERE id = $1`, params.PackageID).Scan(&sessions); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, fmt.Errorf("package %d: %w", params.PackageID, domain.ErrNotFound)
		}
		return false, fmt.Errorf("load package sessions: %w", err)
	}

	cmd, err := tx.Exec(ctx, `UPDATE orders SET status = $1, updated_at = now() WHERE id = $2`, domain.OrderStatusPaid, params.OrderID)
	if err != nil {
		return false, fmt.Errorf("mark order paid: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return false, fmt.Errorf("order %d: %w", params.OrderID, domain.ErrNotFound)
	}

	inserted, err := insertPaymentTx(ctx, tx, params.OrderID, params.AmountCents, params.Method, params.TransactionID, params.Status)
	if err != nil {
		return false, err
	}
	if !inserted {
		// A concurrent finalize slipped in between the existence check and
		// this insert. Abandon our writes; theirs already cover everything.
		return true, nil
	}

	for _, athleteID := range params.AthleteIDs {
		if err := creditUsageTx(ctx, tx, params.CustomerID, athleteID, params.PackageID, sessions); err != nil {
			return false, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("commit finalize tx: %w", err)
	}
	return false, nil
}

// insertPaymentTx records a captured charge, treating a transaction_id
// collision as "already recorded" rather than an error.
func insertPaymentTx(ctx context.Context, tx pgx.Tx, orderID, amountCents int64, method, transactionID, status string) (bool, error) {
	cmd, err := tx.Exec(ctx, `INSERT INTO payments (order_id, amount_cents, method, transaction_id, status)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (transaction_id) DO NOTHING`,
		orderID, amountCents, method, transactionID, status)
	if err != nil {
		return false, fmt.Errorf("insert payment: %w", err)
	}
	return cmd.RowsAffected() > 0, nil
}

var _ OrderRepository = (*PGOrderRepository)(nil)
