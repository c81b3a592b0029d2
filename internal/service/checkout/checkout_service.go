package checkout

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/zsp-sports/gymbooking/internal/domain"
	"github.com/zsp-sports/gymbooking/internal/kafka"
	"github.com/zsp-sports/gymbooking/internal/payments"
	"github.com/zsp-sports/gymbooking/internal/repository"
)

type CheckoutUseCase interface {
	CreateCheckoutSession(ctx context.Context, input CheckoutInput) (*payments.CheckoutSession, error)
	CreatePaymentIntent(ctx context.Context, input CheckoutInput) (string, error)
	FinalizeCharge(ctx context.Context, input FinalizeInput) (alreadyProcessed bool, err error)
}

// Provider is the external payment collaborator. The Stripe client satisfies
// it in production; tests inject a double.
type Provider interface {
	CreateCheckoutSession(ctx context.Context, p payments.CheckoutParams) (*payments.CheckoutSession, error)
	CreatePaymentIntent(ctx context.Context, p payments.IntentParams) (string, error)
}

type Producer interface {
	Publish(ctx context.Context, topic, key string, value interface{}) error
}

type CheckoutInput struct {
	CustomerID int64   `json:"customer_id"`
	PackageID  int64   `json:"package_id"`
	AthleteIDs []int64 `json:"athlete_ids"`
}

// FinalizeInput is a confirmed charge as reported by the provider, whichever
// channel it arrived on.
type FinalizeInput struct {
	TransactionID string
	AmountCents   int64
	Method        string
	Status        string
	Metadata      map[string]string
}

type CheckoutService struct {
	orders             repository.OrderRepository
	catalog            repository.CatalogRepository
	provider           Provider
	producer           Producer
	notificationsTopic string
}

func NewCheckoutService(
	orders repository.OrderRepository,
	catalog repository.CatalogRepository,
	provider Provider,
	producer Producer,
	notificationsTopic string,
) *CheckoutService {
	return &CheckoutService{
		orders:             orders,
		catalog:            catalog,
		provider:           provider,
		producer:           producer,
		notificationsTopic: notificationsTopic,
	}
}

// CreateCheckoutSession opens a provider checkout for a pending order. The
// order row is committed before the provider call, so a provider failure
// leaves a recoverable pending order rather than half-committed state.
// Nothing here marks the order paid; only finalization does.
func (s *CheckoutService) CreateCheckoutSession(ctx context.Context, input CheckoutInput) (*payments.CheckoutSession, error) {
	pkg, err := s.validPackage(ctx, input)
	if err != nil {
		return nil, err
	}

	order := &domain.Order{
		CustomerID:  input.CustomerID,
		PackageID:   input.PackageID,
		ReceiptCode: domain.NewReceiptCode(),
	}
	if err := s.orders.CreatePending(ctx, order); err != nil {
		return nil, err
	}

	sess, err := s.provider.CreateCheckoutSession(ctx, payments.CheckoutParams{
		OrderID:         order.ID,
		CustomerID:      input.CustomerID,
		PackageID:       input.PackageID,
		AthleteIDs:      input.AthleteIDs,
		PackageName:     pkg.Name,
		UnitAmountCents: pkg.PriceCents,
		Quantity:        1,
	})
	if err != nil {
		log.Warn().Err(err).Int64("order_id", order.ID).Msg("checkout session failed; order left pending")
		return nil, err
	}

	if err := s.orders.AttachCheckoutSession(ctx, order.ID, sess.ID); err != nil {
		return nil, err
	}
	return sess, nil
}

// CreatePaymentIntent backs the embedded-payment flow. The amount is the
// package unit price multiplied by the number of athletes being enrolled.
// Like the hosted flow, a pending order is committed before the provider
// call and its id rides on the intent metadata; the webhook cannot finalize
// a charge it cannot tie back to an order.
func (s *CheckoutService) CreatePaymentIntent(ctx context.Context, input CheckoutInput) (string, error) {
	pkg, err := s.validPackage(ctx, input)
	if err != nil {
		return "", err
	}

	order := &domain.Order{
		CustomerID:  input.CustomerID,
		PackageID:   input.PackageID,
		ReceiptCode: domain.NewReceiptCode(),
	}
	if err := s.orders.CreatePending(ctx, order); err != nil {
		return "", err
	}

	secret, err := s.provider.CreatePaymentIntent(ctx, payments.IntentParams{
		OrderID:     order.ID,
		AmountCents: pkg.PriceCents * int64(len(input.AthleteIDs)),
		CustomerID:  input.CustomerID,
		PackageID:   input.PackageID,
		AthleteIDs:  input.AthleteIDs,
	})
	if err != nil {
		log.Warn().Err(err).Int64("order_id", order.ID).Msg("payment intent failed; order left pending")
		return "", err
	}
	return secret, nil
}

// FinalizeCharge is the single idempotent entry point for both confirmation
// channels. The repository transaction guarantees exactly-once; the second
// of two racing callers gets alreadyProcessed=true and must not retry.
func (s *CheckoutService) FinalizeCharge(ctx context.Context, input FinalizeInput) (bool, error) {
	if input.TransactionID == "" {
		return false, fmt.Errorf("missing transaction id: %w", domain.ErrInvalidRequest)
	}

	params, err := finalizeParamsFromMetadata(input)
	if err != nil {
		return false, err
	}

	already, err := s.orders.FinalizeCharge(ctx, params)
	if err != nil {
		return false, err
	}
	if already {
		log.Info().Str("transaction_id", input.TransactionID).Msg("charge already finalized; skipping")
		return true, nil
	}

	s.publishPaid(ctx, params)
	return false, nil
}

// publishPaid runs after the finalize transaction committed. Best-effort:
// a dead broker costs us an email, never a payment record.
func (s *CheckoutService) publishPaid(ctx context.Context, params repository.FinalizeParams) {
	if s.producer == nil || s.notificationsTopic == "" {
		return
	}
	var receiptCode string
	if order, err := s.orders.GetByID(ctx, params.OrderID); err == nil {
		receiptCode = order.ReceiptCode
	} else {
		log.Warn().Err(err).Int64("order_id", params.OrderID).Msg("cannot resolve receipt code for notification")
	}
	event := kafka.OrderEvent{
		Type:          kafka.EventOrderPaid,
		OrderID:       params.OrderID,
		ReceiptCode:   receiptCode,
		CustomerID:    params.CustomerID,
		PackageID:     params.PackageID,
		AthleteIDs:    params.AthleteIDs,
		AmountCents:   params.AmountCents,
		TransactionID: params.TransactionID,
		OccurredAt:    time.Now().UTC(),
	}
	if err := s.producer.Publish(ctx, s.notificationsTopic, params.TransactionID, event); err != nil {
		log.Warn().Err(err).Int64("order_id", params.OrderID).Msg("failed to publish payment notification")
	}
}

func (s *CheckoutService) validPackage(ctx context.Context, input CheckoutInput) (*domain.Package, error) {
	if input.CustomerID <= 0 || input.PackageID <= 0 {
		return nil, fmt.Errorf("customer and package are required: %w", domain.ErrInvalidRequest)
	}
	if len(input.AthleteIDs) == 0 {
		return nil, fmt.Errorf("no athletes provided: %w", domain.ErrInvalidRequest)
	}

	pkg, err := s.catalog.GetPackage(ctx, input.PackageID)
	if err != nil {
		return nil, err
	}
	if !pkg.Active {
		return nil, fmt.Errorf("package %d is not active: %w", pkg.ID, domain.ErrInvalidRequest)
	}
	if pkg.PriceCents <= 0 {
		return nil, fmt.Errorf("package %d has no purchasable price: %w", pkg.ID, domain.ErrInvalidRequest)
	}
	return pkg, nil
}

// finalizeParamsFromMetadata decodes the order metadata we attached at
// checkout time. Anything malformed fails fast before the transaction opens.
func finalizeParamsFromMetadata(input FinalizeInput) (repository.FinalizeParams, error) {
	orderID, err := metadataInt(input.Metadata, "order_id")
	if err != nil {
		return repository.FinalizeParams{}, err
	}
	customerID, err := metadataInt(input.Metadata, "customer_id")
	if err != nil {
		return repository.FinalizeParams{}, err
	}
	packageID, err := metadataInt(input.Metadata, "package_id")
	if err != nil {
		return repository.FinalizeParams{}, err
	}

	var athleteIDs []int64
	raw, ok := input.Metadata["athlete_ids"]
	if !ok || raw == "" {
		return repository.FinalizeParams{}, fmt.Errorf("metadata athlete_ids missing: %w", domain.ErrInvalidRequest)
	}
	if err := json.Unmarshal([]byte(raw), &athleteIDs); err != nil || len(athleteIDs) == 0 {
		return repository.FinalizeParams{}, fmt.Errorf("metadata athlete_ids malformed: %w", domain.ErrInvalidRequest)
	}

	return repository.FinalizeParams{
		OrderID:       orderID,
		CustomerID:    customerID,
		PackageID:     packageID,
		AthleteIDs:    athleteIDs,
		TransactionID: input.TransactionID,
		AmountCents:   input.AmountCents,
		Method:        input.Method,
		Status:        input.Status,
	}, nil
}

func metadataInt(metadata map[string]string, key string) (int64, error) {
	raw, ok := metadata[key]
	if !ok {
		return 0, fmt.Errorf("metadata %s missing: %w", key, domain.ErrInvalidRequest)
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v <= 0 {
		return 0, fmt.Errorf("metadata %s malformed: %w", key, domain.ErrInvalidRequest)
	}
	return v, nil
}

var _ CheckoutUseCase = (*CheckoutService)(nil)
