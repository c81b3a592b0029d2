package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

type OrderStatus string

const (
	OrderStatusPending OrderStatus = "pending"
	OrderStatusPaid    OrderStatus = "paid"
)

// Order is one checkout attempt by one customer for one package. The status
// transition is monotonic: pending -> paid. An abandoned checkout stays
// pending forever; nothing in the core cleans it up.
type Order struct {
	ID                int64
	CustomerID        int64
	PackageID         int64
	Status            OrderStatus
	ReceiptCode       string
	CheckoutSessionID *string
	OrderDate         time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// NewReceiptCode mints the customer-facing order reference. Ten hex chars of
// a UUID keep collisions astronomically unlikely while staying readable on a
// receipt.
func NewReceiptCode() string {
	raw := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))
	return "ZSP-" + raw[:10]
}

// Payment is one captured charge. transaction_id carries a UNIQUE constraint;
// that constraint is what arbitrates the webhook/redirect finalize race.
type Payment struct {
	ID            int64
	OrderID       int64
	AmountCents   int64
	Method        string
	TransactionID string
	Status        string
	CreatedAt     time.Time
}
