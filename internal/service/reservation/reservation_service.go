package reservation

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/zsp-sports/gymbooking/internal/domain"
	"github.com/zsp-sports/gymbooking/internal/kafka"
	"github.com/zsp-sports/gymbooking/internal/repository"
)

type ReservationUseCase interface {
	Reserve(ctx context.Context, input ReserveInput) ([]domain.Booking, error)
	DirectBooking(ctx context.Context, input DirectBookingInput) (*repository.DirectBookingResult, error)
}

type Producer interface {
	Publish(ctx context.Context, topic, key string, value interface{}) error
}

// AvailabilityCache drops stale availability listings after an admission
// changes a slot's remaining capacity. A nil cache disables invalidation.
type AvailabilityCache interface {
	InvalidateAvailability(ctx context.Context, packageID int64) error
}

type ReserveInput struct {
	CustomerID  int64   `json:"customer_id"`
	PackageID   int64   `json:"package_id"`
	OrderID     *int64  `json:"order_id"`
	TimeslotIDs []int64 `json:"timeslot_ids"`
	AthleteIDs  []int64 `json:"athlete_ids"`
}

// PaymentInput is the legacy inline payment shape: a charge already captured
// elsewhere (card terminal, bank transfer), recorded alongside the booking.
type PaymentInput struct {
	AmountCents   int64  `json:"amount_cents"`
	Method        string `json:"method"`
	TransactionID string `json:"transaction_id"`
	Status        string `json:"status"`
}

type DirectBookingInput struct {
	CustomerID  int64         `json:"customer_id"`
	PackageID   int64         `json:"package_id"`
	TimeslotIDs []int64       `json:"timeslot_ids"`
	AthleteIDs  []int64       `json:"athlete_ids"`
	Payment     *PaymentInput `json:"payment"`
}

type ReservationService struct {
	bookings           repository.BookingRepository
	cache              AvailabilityCache
	producer           Producer
	notificationsTopic string
}

func NewReservationService(bookings repository.BookingRepository, cache AvailabilityCache, producer Producer, notificationsTopic string) *ReservationService {
	return &ReservationService{
		bookings:           bookings,
		cache:              cache,
		producer:           producer,
		notificationsTopic: notificationsTopic,
	}
}

// Reserve admits athletes onto timeslots. Admission is all-or-nothing across
// every timeslot in the request; the repository holds the row locks.
func (s *ReservationService) Reserve(ctx context.Context, input ReserveInput) ([]domain.Booking, error) {
	if err := validateClaim(input.CustomerID, input.PackageID, input.TimeslotIDs, input.AthleteIDs); err != nil {
		return nil, err
	}

	admitted, err := s.bookings.Reserve(ctx, repository.ReserveParams{
		CustomerID:  input.CustomerID,
		PackageID:   input.PackageID,
		OrderID:     input.OrderID,
		TimeslotIDs: input.TimeslotIDs,
		AthleteIDs:  input.AthleteIDs,
	})
	if err != nil {
		return nil, err
	}

	s.invalidateAvailability(ctx, input.PackageID)
	return admitted, nil
}

// DirectBooking is the walk-up path: reservation plus, when an inline payment
// is supplied, a payment record and session credits, all in one transaction.
func (s *ReservationService) DirectBooking(ctx context.Context, input DirectBookingInput) (*repository.DirectBookingResult, error) {
	if err := validateClaim(input.CustomerID, input.PackageID, input.TimeslotIDs, input.AthleteIDs); err != nil {
		return nil, err
	}

	var payment *repository.InlinePayment
	if input.Payment != nil {
		if input.Payment.TransactionID == "" || input.Payment.AmountCents <= 0 {
			return nil, fmt.Errorf("inline payment needs a transaction id and a positive amount: %w", domain.ErrInvalidRequest)
		}
		payment = &repository.InlinePayment{
			AmountCents:   input.Payment.AmountCents,
			Method:        input.Payment.Method,
			TransactionID: input.Payment.TransactionID,
			Status:        input.Payment.Status,
		}
	}

	result, err := s.bookings.DirectBooking(ctx, repository.DirectBookingParams{
		CustomerID:  input.CustomerID,
		PackageID:   input.PackageID,
		TimeslotIDs: input.TimeslotIDs,
		AthleteIDs:  input.AthleteIDs,
		ReceiptCode: domain.NewReceiptCode(),
		Payment:     payment,
	})
	if err != nil {
		return nil, err
	}

	s.invalidateAvailability(ctx, input.PackageID)
	s.publishBooked(ctx, result, input)
	return result, nil
}

// invalidateAvailability is best-effort; the cached listing expires on its
// TTL anyway, this just shortens the window.
func (s *ReservationService) invalidateAvailability(ctx context.Context, packageID int64) {
	if s.cache == nil {
		return
	}
	if err := s.cache.InvalidateAvailability(ctx, packageID); err != nil {
		log.Debug().Err(err).Int64("package_id", packageID).Msg("failed to invalidate availability cache")
	}
}

// publishBooked fires the notification event after the transaction has
// committed. A publish failure is logged and swallowed: it must never undo
// or fail a committed booking.
func (s *ReservationService) publishBooked(ctx context.Context, result *repository.DirectBookingResult, input DirectBookingInput) {
	if s.producer == nil || s.notificationsTopic == "" {
		return
	}
	event := kafka.OrderEvent{
		Type:        kafka.EventBookingCreated,
		OrderID:     result.OrderID,
		ReceiptCode: result.ReceiptCode,
		CustomerID:  input.CustomerID,
		PackageID:   input.PackageID,
		AthleteIDs:  input.AthleteIDs,
		OccurredAt:  time.Now().UTC(),
	}
	if input.Payment != nil {
		event.AmountCents = input.Payment.AmountCents
		event.TransactionID = input.Payment.TransactionID
	}
	if err := s.producer.Publish(ctx, s.notificationsTopic, result.ReceiptCode, event); err != nil {
		log.Warn().Err(err).Int64("order_id", result.OrderID).Msg("failed to publish booking notification")
	}
}

func validateClaim(customerID, packageID int64, timeslotIDs, athleteIDs []int64) error {
	if customerID <= 0 || packageID <= 0 {
		return fmt.Errorf("customer and package are required: %w", domain.ErrInvalidRequest)
	}
	if len(athleteIDs) == 0 {
		return fmt.Errorf("no athletes provided: %w", domain.ErrInvalidRequest)
	}
	if len(timeslotIDs) == 0 {
		return fmt.Errorf("no timeslots provided: %w", domain.ErrInvalidRequest)
	}
	return nil
}

var _ ReservationUseCase = (*ReservationService)(nil)
