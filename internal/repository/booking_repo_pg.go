package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/zsp-sports/gymbooking/internal/domain"
)

// ReserveParams admits a set of athletes onto a set of timeslots. The whole
// request is one transaction: a capacity failure on any timeslot rolls back
// admissions already made on the others.
type ReserveParams struct {
	CustomerID  int64
	PackageID   int64
	OrderID     *int64
	TimeslotIDs []int64
	AthleteIDs  []int64
}

// InlinePayment is the legacy direct-booking payment record, captured outside
// any external provider round-trip.
type InlinePayment struct {
	AmountCents   int64
	Method        string
	TransactionID string
	Status        string
}

type DirectBookingParams struct {
	CustomerID  int64
	PackageID   int64
	TimeslotIDs []int64
	AthleteIDs  []int64
	ReceiptCode string
	Payment     *InlinePayment
}

type DirectBookingResult struct {
	OrderID     int64
	ReceiptCode string
	OrderStatus domain.OrderStatus
	Admitted    []domain.Booking
}

type BookingRepository interface {
	Reserve(ctx context.Context, params ReserveParams) ([]domain.Booking, error)
	DirectBooking(ctx context.Context, params DirectBookingParams) (*DirectBookingResult, error)
}

type PGBookingRepository struct {
	db *pgxpool.Pool
}

func NewBookingRepository(db *pgxpool.Pool) BookingRepository {
	return &PGBookingRepository{db: db}
}

// Reserve serializes concurrent admissions per timeslot with a row lock on
// the timeslot, then inserts bookings with a conflict-aware no-op so a repeat
// request for the same (athlete, timeslot) pair is idempotent.
func (r *PGBookingRepository) Reserve(ctx context.Context, params ReserveParams) ([]domain.Booking, error) {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("begin reserve tx: %w", err)
	}
	defer tx.Rollback(ctx)

	admitted, err := reserveInTx(ctx, tx, params)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit reserve tx: %w", err)
	}
	return admitted, nil
}

// DirectBooking is the legacy combined flow: create the order, admit the
// athletes onto every timeslot, and, when an inline payment is supplied,
// record it and credit the session ledger. All in one transaction.
func (r *PGBookingRepository) DirectBooking(ctx context.Context, params DirectBookingParams) (*DirectBookingResult, error) {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("begin direct booking tx: %w", err)
	}
	defer tx.Rollback(ctx)

	status := domain.OrderStatusPending
	if params.Payment != nil {
		status = domain.OrderStatusPaid
	}

	var orderID int64
	if err := tx.QueryRow(ctx, `INSERT INTO orders (customer_id, package_id, status, receipt_code, order_date)
		VALUES ($1, $2, $3, $4, now())
		RETURNING id`, params.CustomerID, params.PackageID, status, params.ReceiptCode).Scan(&orderID); err != nil {
		return nil, fmt.Errorf("insert order: %w", err)
	}

	admitted, err := reserveInTx(ctx, tx, ReserveParams{
		CustomerID:  params.CustomerID,
		PackageID:   params.PackageID,
		OrderID:     &orderID,
		TimeslotIDs: params.TimeslotIDs,
		AthleteIDs:  params.AthleteIDs,
	})
	if err != nil {
		return nil, err
	}

	if params.Payment != nil {
		inserted, err := insertPaymentTx(ctx, tx, orderID, params.Payment.AmountCents, params.Payment.Method, params.Payment.TransactionID, params.Payment.Status)
		if err != nil {
			return nil, err
		}
		if inserted {
			var sessions int
			if err := tx.QueryRow(ctx, `SELECT sessions_included FROM packages WHERE id = $1`, params.PackageID).Scan(&sessions); err != nil {
				if errors.Is(err, pgx.ErrNoRows) {
					return nil, fmt.Errorf("package %d: %w", params.PackageID, domain.ErrNotFound)
				}
				return nil, fmt.Errorf("load package sessions: %w", err)
			}
			for _, athleteID := range params.AthleteIDs {
				if err := creditUsageTx(ctx, tx, params.CustomerID, athleteID, params.PackageID, sessions); err != nil {
					return nil, err
				}
			}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit direct booking tx: %w", err)
	}

	return &DirectBookingResult{
		OrderID:     orderID,
		ReceiptCode: params.ReceiptCode,
		OrderStatus: status,
		Admitted:    admitted,
	}, nil
}

// reserveInTx performs the locked check-and-insert for every timeslot in the
// request. The FOR UPDATE lock on the timeslot row holds off competing
// admissions for the same slot until this transaction resolves; slots not in
// the request stay unlocked.
func reserveInTx(ctx context.Context, tx pgx.Tx, params ReserveParams) ([]domain.Booking, error) {
	var admitted []domain.Booking

	for _, timeslotID := range params.TimeslotIDs {
		var maxCapacity int
		err := tx.QueryRow(ctx, `SELECT max_capacity FROM timeslots WHERE id = $1 FOR UPDATE`, timeslotID).Scan(&maxCapacity)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, fmt.Errorf("timeslot %d: %w", timeslotID, domain.ErrNotFound)
			}
			return nil, fmt.Errorf("lock timeslot %d: %w", timeslotID, err)
		}

		booked, err := activeAthletesTx(ctx, tx, timeslotID)
		if err != nil {
			return nil, err
		}

		newAthletes := make([]int64, 0, len(params.AthleteIDs))
		for _, athleteID := range params.AthleteIDs {
			if _, exists := booked[athleteID]; !exists {
				newAthletes = append(newAthletes, athleteID)
			}
		}

		if len(booked)+len(newAthletes) > maxCapacity {
			return nil, fmt.Errorf("timeslot %d: %w", timeslotID, domain.ErrCapacityExceeded)
		}

		for _, athleteID := range newAthletes {
			b := domain.Booking{
				CustomerID: params.CustomerID,
				AthleteID:  athleteID,
				TimeslotID: timeslotID,
				PackageID:  params.PackageID,
				OrderID:    params.OrderID,
				Status:     domain.BookingStatusActive,
			}
			err := tx.QueryRow(ctx, `INSERT INTO bookings (customer_id, athlete_id, timeslot_id, package_id, order_id, status)
				VALUES ($1, $2, $3, $4, $5, $6)
				ON CONFLICT (athlete_id, timeslot_id) DO NOTHING
				RETURNING id, created_at`,
				b.CustomerID, b.AthleteID, b.TimeslotID, b.PackageID, b.OrderID, b.Status).
				Scan(&b.ID, &b.CreatedAt)
			if err != nil {
				if errors.Is(err, pgx.ErrNoRows) {
					// Lost a conflict race despite the slot lock; the pair is
					// already booked, which is exactly the idempotent outcome.
					continue
				}
				return nil, fmt.Errorf("insert booking: %w", err)
			}
			admitted = append(admitted, b)
		}
	}

	return admitted, nil
}

func activeAthletesTx(ctx context.Context, tx pgx.Tx, timeslotID int64) (map[int64]struct{}, error) {
	rows, err := tx.Query(ctx, `SELECT athlete_id FROM bookings WHERE timeslot_id = $1 AND status = $2`, timeslotID, domain.BookingStatusActive)
	if err != nil {
		return nil, fmt.Errorf("count bookings for timeslot %d: %w", timeslotID, err)
	}
	defer rows.Close()

	booked := make(map[int64]struct{})
	for rows.Next() {
		var athleteID int64
		if err := rows.Scan(&athleteID); err != nil {
			return nil, fmt.Errorf("scan booked athlete: %w", err)
		}
		booked[athleteID] = struct{}{}
	}
	return booked, rows.Err()
}

var _ BookingRepository = (*PGBookingRepository)(nil)
