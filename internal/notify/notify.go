package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/zsp-sports/gymbooking/internal/domain"
	"github.com/zsp-sports/gymbooking/internal/email"
	"github.com/zsp-sports/gymbooking/internal/kafka"
	"github.com/zsp-sports/gymbooking/internal/repository"
)

// Notifier turns order events from the broker into outbound email. Delivery
// is best-effort: every failure is logged and dropped, because nothing here
// is allowed to bounce back into the financial transaction that already
// committed.
type Notifier struct {
	customers repository.CustomerRepository
	catalog   repository.CatalogRepository
	sender    email.Sender
	admins    []string
}

func NewNotifier(customers repository.CustomerRepository, catalog repository.CatalogRepository, sender email.Sender, admins []string) *Notifier {
	return &Notifier{
		customers: customers,
		catalog:   catalog,
		sender:    sender,
		admins:    admins,
	}
}

// HandleOrderEvent always returns nil so the consumer keeps going; a poison
// message is logged, not redelivered forever.
func (n *Notifier) HandleOrderEvent(ctx context.Context, event kafka.OrderEvent) error {
	switch event.Type {
	case kafka.EventOrderPaid, kafka.EventBookingCreated:
	default:
		log.Debug().Str("type", event.Type).Msg("ignoring notification event")
		return nil
	}

	customer, err := n.customers.GetByID(ctx, event.CustomerID)
	if err != nil {
		log.Error().Err(err).Int64("customer_id", event.CustomerID).Msg("cannot resolve customer for notification")
		return nil
	}

	packageName := "your training package"
	if pkg, err := n.catalog.GetPackage(ctx, event.PackageID); err == nil {
		packageName = pkg.Name
	} else if !errors.Is(err, domain.ErrNotFound) {
		log.Warn().Err(err).Int64("package_id", event.PackageID).Msg("cannot resolve package for notification")
	}

	n.send(ctx, []string{customer.Email},
		fmt.Sprintf("Your ZSP order %s is confirmed", event.ReceiptCode),
		customerBody(customer.FirstName, packageName, event))

	if len(n.admins) > 0 {
		n.send(ctx, n.admins,
			fmt.Sprintf("New paid order %s – %s", event.ReceiptCode, packageName),
			adminBody(customer, packageName, event))
	}
	return nil
}

func (n *Notifier) send(ctx context.Context, to []string, subject, body string) {
	if err := n.sender.Send(ctx, to, subject, body); err != nil {
		log.Error().Err(err).Strs("to", to).Str("subject", subject).Msg("notification email failed")
	}
}

func customerBody(firstName, packageName string, event kafka.OrderEvent) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Hi %s,\n\n", firstName)
	fmt.Fprintf(&b, "Thank you for your purchase of %q.\n", packageName)
	fmt.Fprintf(&b, "Receipt code: %s\n", event.ReceiptCode)
	if event.AmountCents > 0 {
		fmt.Fprintf(&b, "Amount charged: $%.2f\n", float64(event.AmountCents)/100)
	}
	fmt.Fprintf(&b, "Sessions were credited for %d athlete(s). You can schedule them any time from your dashboard.\n", len(event.AthleteIDs))
	b.WriteString("\nSee you in the gym!\n\n– The ZSP Team\n")
	return b.String()
}

func adminBody(customer *domain.Customer, packageName string, event kafka.OrderEvent) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Order #%d (%s)\n", event.OrderID, event.ReceiptCode)
	fmt.Fprintf(&b, "Customer: %s %s <%s>\n", customer.FirstName, customer.LastName, customer.Email)
	fmt.Fprintf(&b, "Package: %s\n", packageName)
	fmt.Fprintf(&b, "Athletes: %d\n", len(event.AthleteIDs))
	if event.TransactionID != "" {
		fmt.Fprintf(&b, "Transaction: %s\n", event.TransactionID)
	}
	if event.AmountCents > 0 {
		fmt.Fprintf(&b, "Amount: $%.2f\n", float64(event.AmountCents)/100)
	}
	return b.String()
}
