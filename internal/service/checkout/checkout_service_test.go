package checkout

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/zsp-sports/gymbooking/internal/domain"
	"github.com/zsp-sports/gymbooking/internal/kafka"
	"github.com/zsp-sports/gymbooking/internal/payments"
	"github.com/zsp-sports/gymbooking/internal/repository"
)

type MockOrderRepository struct {
	mock.Mock
}

func (m *MockOrderRepository) CreatePending(ctx context.Context, order *domain.Order) error {
	args := m.Called(ctx, order)
	return args.Error(0)
}

func (m *MockOrderRepository) AttachCheckoutSession(ctx context.Context, orderID int64, sessionID string) error {
	args := m.Called(ctx, orderID, sessionID)
	return args.Error(0)
}

func (m *MockOrderRepository) GetByID(ctx context.Context, id int64) (*domain.Order, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Order), args.Error(1)
}

func (m *MockOrderRepository) FinalizeCharge(ctx context.Context, params repository.FinalizeParams) (bool, error) {
	args := m.Called(ctx, params)
	return args.Bool(0), args.Error(1)
}

type MockCatalogRepository struct {
	mock.Mock
}

func (m *MockCatalogRepository) GetPackage(ctx context.Context, id int64) (*domain.Package, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Package), args.Error(1)
}

func (m *MockCatalogRepository) ListActivePackages(ctx context.Context) ([]domain.Package, error) {
	args := m.Called(ctx)
	return args.Get(0).([]domain.Package), args.Error(1)
}

func (m *MockCatalogRepository) AvailabilityByPackage(ctx context.Context, packageID int64) ([]domain.TimeslotAvailability, error) {
	args := m.Called(ctx, packageID)
	return args.Get(0).([]domain.TimeslotAvailability), args.Error(1)
}

type MockProvider struct {
	mock.Mock
}

func (m *MockProvider) CreateCheckoutSession(ctx context.Context, p payments.CheckoutParams) (*payments.CheckoutSession, error) {
	args := m.Called(ctx, p)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*payments.CheckoutSession), args.Error(1)
}

func (m *MockProvider) CreatePaymentIntent(ctx context.Context, p payments.IntentParams) (string, error) {
	args := m.Called(ctx, p)
	return args.String(0), args.Error(1)
}

type MockProducer struct {
	mock.Mock
}

func (m *MockProducer) Publish(ctx context.Context, topic, key string, value interface{}) error {
	args := m.Called(ctx, topic, key, value)
	return args.Error(0)
}

func activePackage() *domain.Package {
	return &domain.Package{
		ID:               7,
		Name:             "Elite Sprint Block",
		PriceCents:       4999,
		SessionsIncluded: 5,
		Active:           true,
	}
}

func finalizeMetadata() map[string]string {
	return map[string]string{
		"order_id":    "42",
		"customer_id": "3",
		"package_id":  "7",
		"athlete_ids": "[11,12]",
	}
}

func TestCheckoutService_CreateCheckoutSession_Success(t *testing.T) {
	mockOrders := &MockOrderRepository{}
	mockCatalog := &MockCatalogRepository{}
	mockProvider := &MockProvider{}

	service := &CheckoutService{
		orders:   mockOrders,
		catalog:  mockCatalog,
		provider: mockProvider,
	}

	ctx := context.Background()
	input := CheckoutInput{CustomerID: 3, PackageID: 7, AthleteIDs: []int64{11}}

	mockCatalog.On("GetPackage", ctx, int64(7)).Return(activePackage(), nil).Once()
	mockOrders.On("CreatePending", ctx, mock.AnythingOfType("*domain.Order")).
		Run(func(args mock.Arguments) {
			order := args.Get(1).(*domain.Order)
			order.ID = 42
		}).Return(nil).Once()
	mockProvider.On("CreateCheckoutSession", ctx, mock.MatchedBy(func(p payments.CheckoutParams) bool {
		return p.OrderID == 42 && p.UnitAmountCents == 4999 && p.PackageName == "Elite Sprint Block"
	})).Return(&payments.CheckoutSession{ID: "cs_test_1", URL: "https://checkout.example/cs_test_1"}, nil).Once()
	mockOrders.On("AttachCheckoutSession", ctx, int64(42), "cs_test_1").Return(nil).Once()

	sess, err := service.CreateCheckoutSession(ctx, input)

	assert.NoError(t, err)
	assert.NotNil(t, sess)
	assert.Equal(t, "cs_test_1", sess.ID)

	mockOrders.AssertExpectations(t)
	mockCatalog.AssertExpectations(t)
	mockProvider.AssertExpectations(t)
}

func TestCheckoutService_CreateCheckoutSession_ValidationErrors(t *testing.T) {
	inactive := activePackage()
	inactive.Active = false

	free := activePackage()
	free.PriceCents = 0

	testCases := []struct {
		name  string
		input CheckoutInput
		pkg   *domain.Package
	}{
		{
			name:  "no athletes",
			input: CheckoutInput{CustomerID: 3, PackageID: 7},
		},
		{
			name:  "missing customer",
			input: CheckoutInput{PackageID: 7, AthleteIDs: []int64{11}},
		},
		{
			name:  "inactive package",
			input: CheckoutInput{CustomerID: 3, PackageID: 7, AthleteIDs: []int64{11}},
			pkg:   inactive,
		},
		{
			name:  "non-positive price",
			input: CheckoutInput{CustomerID: 3, PackageID: 7, AthleteIDs: []int64{11}},
			pkg:   free,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			mockOrders := &MockOrderRepository{}
			mockCatalog := &MockCatalogRepository{}
			service := &CheckoutService{orders: mockOrders, catalog: mockCatalog}

			if tc.pkg != nil {
				mockCatalog.On("GetPackage", mock.Anything, int64(7)).Return(tc.pkg, nil).Once()
			}

			sess, err := service.CreateCheckoutSession(context.Background(), tc.input)

			assert.Nil(t, sess)
			assert.ErrorIs(t, err, domain.ErrInvalidRequest)
			mockOrders.AssertNotCalled(t, "CreatePending")
		})
	}
}

func TestCheckoutService_CreateCheckoutSession_ProviderFailureLeavesOrderPending(t *testing.T) {
	mockOrders := &MockOrderRepository{}
	mockCatalog := &MockCatalogRepository{}
	mockProvider := &MockProvider{}

	service := &CheckoutService{
		orders:   mockOrders,
		catalog:  mockCatalog,
		provider: mockProvider,
	}

	ctx := context.Background()
	input := CheckoutInput{CustomerID: 3, PackageID: 7, AthleteIDs: []int64{11}}

	mockCatalog.On("GetPackage", ctx, int64(7)).Return(activePackage(), nil).Once()
	mockOrders.On("CreatePending", ctx, mock.Anything).Return(nil).Once()
	providerErr := domain.ErrProviderFailure
	mockProvider.On("CreateCheckoutSession", ctx, mock.Anything).Return(nil, providerErr).Once()

	sess, err := service.CreateCheckoutSession(ctx, input)

	assert.Nil(t, sess)
	assert.ErrorIs(t, err, domain.ErrProviderFailure)
	// The pending order must survive: no session is attached, nothing is
	// rolled back, the customer can retry checkout.
	mockOrders.AssertNotCalled(t, "AttachCheckoutSession")
	mockOrders.AssertExpectations(t)
}

func TestCheckoutService_CreatePaymentIntent_CreatesFinalizableOrder(t *testing.T) {
	mockOrders := &MockOrderRepository{}
	mockCatalog := &MockCatalogRepository{}
	mockProvider := &MockProvider{}

	service := &CheckoutService{orders: mockOrders, catalog: mockCatalog, provider: mockProvider}

	ctx := context.Background()
	input := CheckoutInput{CustomerID: 3, PackageID: 7, AthleteIDs: []int64{11, 12, 13}}

	mockCatalog.On("GetPackage", ctx, int64(7)).Return(activePackage(), nil).Once()
	mockOrders.On("CreatePending", ctx, mock.AnythingOfType("*domain.Order")).
		Run(func(args mock.Arguments) {
			order := args.Get(1).(*domain.Order)
			order.ID = 42
		}).Return(nil).Once()
	// The intent must carry the pending order's id; without it the webhook
	// confirmation can never be tied back to an order.
	mockProvider.On("CreatePaymentIntent", ctx, mock.MatchedBy(func(p payments.IntentParams) bool {
		return p.OrderID == 42 && p.AmountCents == 3*4999
	})).Return("pi_secret_123", nil).Once()

	secret, err := service.CreatePaymentIntent(ctx, input)

	assert.NoError(t, err)
	assert.Equal(t, "pi_secret_123", secret)
	mockOrders.AssertExpectations(t)
	mockProvider.AssertExpectations(t)
}

func TestCheckoutService_CreatePaymentIntent_ProviderFailureLeavesOrderPending(t *testing.T) {
	mockOrders := &MockOrderRepository{}
	mockCatalog := &MockCatalogRepository{}
	mockProvider := &MockProvider{}

	service := &CheckoutService{orders: mockOrders, catalog: mockCatalog, provider: mockProvider}

	ctx := context.Background()
	input := CheckoutInput{CustomerID: 3, PackageID: 7, AthleteIDs: []int64{11}}

	mockCatalog.On("GetPackage", ctx, int64(7)).Return(activePackage(), nil).Once()
	mockOrders.On("CreatePending", ctx, mock.Anything).Return(nil).Once()
	mockProvider.On("CreatePaymentIntent", ctx, mock.Anything).Return("", domain.ErrProviderFailure).Once()

	secret, err := service.CreatePaymentIntent(ctx, input)

	assert.Empty(t, secret)
	assert.ErrorIs(t, err, domain.ErrProviderFailure)
	mockOrders.AssertExpectations(t)
}

func TestCheckoutService_FinalizeCharge_Success(t *testing.T) {
	mockOrders := &MockOrderRepository{}
	mockProducer := &MockProducer{}

	service := &CheckoutService{
		orders:             mockOrders,
		producer:           mockProducer,
		notificationsTopic: "booking.notifications",
	}

	ctx := context.Background()
	input := FinalizeInput{
		TransactionID: "tx_123",
		AmountCents:   4999,
		Method:        "card",
		Status:        "paid",
		Metadata:      finalizeMetadata(),
	}

	mockOrders.On("FinalizeCharge", ctx, mock.MatchedBy(func(p repository.FinalizeParams) bool {
		return p.OrderID == 42 && p.CustomerID == 3 && p.PackageID == 7 &&
			len(p.AthleteIDs) == 2 && p.TransactionID == "tx_123"
	})).Return(false, nil).Once()
	mockOrders.On("GetByID", ctx, int64(42)).
		Return(&domain.Order{ID: 42, ReceiptCode: "ZSP-1A2B3C4D5E"}, nil).Once()
	mockProducer.On("Publish", ctx, "booking.notifications", "tx_123", mock.MatchedBy(func(e kafka.OrderEvent) bool {
		return e.Type == kafka.EventOrderPaid && e.ReceiptCode == "ZSP-1A2B3C4D5E"
	})).Return(nil).Once()

	already, err := service.FinalizeCharge(ctx, input)

	assert.NoError(t, err)
	assert.False(t, already)
	mockOrders.AssertExpectations(t)
	mockProducer.AssertExpectations(t)
}

func TestCheckoutService_FinalizeCharge_AlreadyProcessedSkipsNotification(t *testing.T) {
	mockOrders := &MockOrderRepository{}
	mockProducer := &MockProducer{}

	service := &CheckoutService{
		orders:             mockOrders,
		producer:           mockProducer,
		notificationsTopic: "booking.notifications",
	}

	ctx := context.Background()
	input := FinalizeInput{TransactionID: "tx_123", AmountCents: 4999, Metadata: finalizeMetadata()}

	mockOrders.On("FinalizeCharge", ctx, mock.Anything).Return(true, nil).Once()

	already, err := service.FinalizeCharge(ctx, input)

	assert.NoError(t, err)
	assert.True(t, already)
	mockProducer.AssertNotCalled(t, "Publish")
}

func TestCheckoutService_FinalizeCharge_MetadataErrors(t *testing.T) {
	testCases := []struct {
		name    string
		mutate  func(map[string]string)
		emptyTx bool
	}{
		{name: "missing order id", mutate: func(m map[string]string) { delete(m, "order_id") }},
		{name: "malformed athletes", mutate: func(m map[string]string) { m["athlete_ids"] = "oops" }},
		{name: "empty athletes", mutate: func(m map[string]string) { m["athlete_ids"] = "[]" }},
		{name: "missing transaction id", mutate: func(m map[string]string) {}, emptyTx: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			mockOrders := &MockOrderRepository{}
			service := &CheckoutService{orders: mockOrders}

			metadata := finalizeMetadata()
			tc.mutate(metadata)
			input := FinalizeInput{TransactionID: "tx_123", Metadata: metadata}
			if tc.emptyTx {
				input.TransactionID = ""
			}

			_, err := service.FinalizeCharge(context.Background(), input)

			assert.ErrorIs(t, err, domain.ErrInvalidRequest)
			mockOrders.AssertNotCalled(t, "FinalizeCharge")
		})
	}
}

func TestCheckoutService_FinalizeCharge_PublishFailureDoesNotFailCheckout(t *testing.T) {
	mockOrders := &MockOrderRepository{}
	mockProducer := &MockProducer{}

	service := &CheckoutService{
		orders:             mockOrders,
		producer:           mockProducer,
		notificationsTopic: "booking.notifications",
	}

	ctx := context.Background()
	input := FinalizeInput{TransactionID: "tx_123", AmountCents: 4999, Metadata: finalizeMetadata()}

	mockOrders.On("FinalizeCharge", ctx, mock.Anything).Return(false, nil).Once()
	mockOrders.On("GetByID", ctx, int64(42)).
		Return(&domain.Order{ID: 42, ReceiptCode: "ZSP-1A2B3C4D5E"}, nil).Once()
	mockProducer.On("Publish", ctx, "booking.notifications", "tx_123", mock.Anything).
		Return(errors.New("broker down")).Once()

	already, err := service.FinalizeCharge(ctx, input)

	assert.NoError(t, err)
	assert.False(t, already)
	mockProducer.AssertExpectations(t)
}

// raceOrderRepo finalizes exactly once per transaction id, the way the
// payments UNIQUE constraint does in Postgres.
type raceOrderRepo struct {
	mu   sync.Mutex
	seen map[string]bool
}

func (r *raceOrderRepo) CreatePending(context.Context, *domain.Order) error { return nil }
func (r *raceOrderRepo) AttachCheckoutSession(context.Context, int64, string) error {
	return nil
}
func (r *raceOrderRepo) GetByID(context.Context, int64) (*domain.Order, error) { return nil, nil }

func (r *raceOrderRepo) FinalizeCharge(_ context.Context, params repository.FinalizeParams) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.seen[params.TransactionID] {
		return true, nil
	}
	r.seen[params.TransactionID] = true
	return false, nil
}

func TestCheckoutService_FinalizeCharge_WebhookRedirectRace(t *testing.T) {
	repo := &raceOrderRepo{seen: make(map[string]bool)}
	service := &CheckoutService{orders: repo}

	input := FinalizeInput{TransactionID: "tx_123", AmountCents: 4999, Metadata: finalizeMetadata()}

	results := make(chan bool, 2)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			already, err := service.FinalizeCharge(context.Background(), input)
			assert.NoError(t, err)
			results <- already
		}()
	}
	wg.Wait()
	close(results)

	var processedCount int
	for already := range results {
		if !already {
			processedCount++
		}
	}
	assert.Equal(t, 1, processedCount, "exactly one caller must perform the writes")
}
