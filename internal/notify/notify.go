// Package notify sends receipts and in-app notifications after payment
// outcomes. Every effect is best-effort and isolated from the others.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/iliamunaev/checkout-core/internal/events"
	"github.com/iliamunaev/checkout-core/internal/model"
	"github.com/iliamunaev/checkout-core/internal/store"
)

// Notification kinds.
const (
	KindOrderConfirmed = "order_confirmed"
	KindPaymentFailed  = "payment_failed"
	KindSaleConfirmed  = "sale_confirmed"
)

// Store resolves recipients and persists in-app notifications.
type Store interface {
	OrderItems(ctx context.Context, orderID string) ([]model.OrderItem, error)
	GroupAdmins(ctx context.Context, groupID string) ([]model.Recipient, error)
	Recipient(ctx context.Context, userID string) (model.Recipient, error)
	SaveNotification(ctx context.Context, n model.Notification) error
}

// Fanout delivers the notifications for one payment outcome.
type Fanout struct {
	store  Store
	mailer Mailer
	events events.Publisher
	log    *slog.Logger
	limit  int
}

// New returns a Fanout. mailer and pub may be nil.
func New(s Store, mailer Mailer, pub events.Publisher, log *slog.Logger) *Fanout {
	if s == nil {
		panic("notify: nil store")
	}
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	if mailer == nil {
		mailer = LogMailer{Log: log}
	}
	if pub == nil {
		pub = events.Nop{}
	}
	return &Fanout{store: s, mailer: mailer, events: pub, log: log, limit: 4}
}

// Money formats minor units with the currency code, e.g. "32.40 USD".
func Money(cents int64, currency string) string {
	return decimal.New(cents, -2).StringFixed(2) + " " + strings.ToUpper(currency)
}

// Receipt renders the plain-text receipt body.
func Receipt(o model.Order, items []model.OrderItem) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Thanks for your order!\nConfirmation code: %s\n\n", o.ConfirmationCode)
	for _, it := range items {
		fmt.Fprintf(&b, "%d x %s  %s\n", it.Quantity, it.Title, Money(it.TotalCents, o.Currency))
	}
	fmt.Fprintf(&b, "\nSubtotal: %s\n", Money(o.SubtotalCents, o.Currency))
	if o.ShippingCents > 0 {
		fmt.Fprintf(&b, "Shipping: %s\n", Money(o.ShippingCents, o.Currency))
	}
	fmt.Fprintf(&b, "Tax: %s\n", Money(o.TaxCents, o.Currency))
	fmt.Fprintf(&b, "Total: %s\n", Money(o.TotalCents, o.Currency))
	return b.String()
}

// PaymentSucceeded emails the receipt and notifies the buyer and the
// selling group's admins.
func (f *Fanout) PaymentSucceeded(ctx context.Context, o model.Order) {
	log := f.log.With("order_id", o.ID, "step", "notify_paid")

	items, err := f.store.OrderItems(ctx, o.ID)
	if err != nil {
		log.WarnContext(ctx, "load items for receipt", "err", err)
	}
	if o.ContactEmail != "" {
		f.mail(ctx, log, Message{
			To:      o.ContactEmail,
			Subject: "Your receipt for order " + o.ConfirmationCode,
			Text:    Receipt(o, items),
		})
	}

	f.notifyUser(ctx, log, o.BuyerID, o.ContactEmail, model.Notification{
		Kind:    KindOrderConfirmed,
		Title:   "Order confirmed",
		Body:    fmt.Sprintf("Your order %s is confirmed. Total %s.", o.ConfirmationCode, Money(o.TotalCents, o.Currency)),
		OrderID: o.ID,
	})

	f.notifyAdmins(ctx, log, o)
	f.publish(ctx, log, events.TypeOrderPaid, o)
}

// PaymentFailed tells the buyer the payment did not go through.
func (f *Fanout) PaymentFailed(ctx context.Context, o model.Order) {
	log := f.log.With("order_id", o.ID, "step", "notify_failed")

	text := fmt.Sprintf("We could not process the payment for order %s. No charge was made.", o.ConfirmationCode)
	if o.ContactEmail != "" {
		f.mail(ctx, log, Message{To: o.ContactEmail, Subject: "Payment failed for order " + o.ConfirmationCode, Text: text})
	}
	f.notifyUser(ctx, log, o.BuyerID, o.ContactEmail, model.Notification{
		Kind:    KindPaymentFailed,
		Title:   "Payment failed",
		Body:    text,
		OrderID: o.ID,
	})
	f.publish(ctx, log, events.TypeOrderPaymentFailed, o)
}

func (f *Fanout) notifyAdmins(ctx context.Context, log *slog.Logger, o model.Order) {
	admins, err := f.store.GroupAdmins(ctx, o.SellingGroupID)
	if err != nil {
		log.WarnContext(ctx, "resolve group admins", "err", err)
		return
	}

	var g errgroup.Group
	g.SetLimit(f.limit)
	for _, a := range admins {
		g.Go(func() error {
			f.deliver(ctx, log, a, "", model.Notification{
				Kind:    KindSaleConfirmed,
				Title:   "New sale",
				Body:    fmt.Sprintf("Order %s paid: %s.", o.ConfirmationCode, Money(o.TotalCents, o.Currency)),
				OrderID: o.ID,
				Data:    map[string]any{"sellingGroupId": o.SellingGroupID},
			})
			return nil
		})
	}
	_ = g.Wait()
}

// notifyUser saves an in-app notification for a signed-in user. skipEmail is
// an address that already received this content.
func (f *Fanout) notifyUser(ctx context.Context, log *slog.Logger, userID, skipEmail string, n model.Notification) {
	if userID == "" {
		return
	}
	r, err := f.store.Recipient(ctx, userID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			log.WarnContext(ctx, "resolve recipient", "user", userID, "err", err)
		}
		r = model.Recipient{UserID: userID}
	}
	f.deliver(ctx, log, r, skipEmail, n)
}

func (f *Fanout) deliver(ctx context.Context, log *slog.Logger, r model.Recipient, skipEmail string, n model.Notification) {
	n.ID = uuid.NewString()
	n.UserID = r.UserID
	if err := f.store.SaveNotification(ctx, n); err != nil {
		log.WarnContext(ctx, "save notification", "user", r.UserID, "kind", n.Kind, "err", err)
	}
	if r.EmailOptIn && r.Email != "" && !strings.EqualFold(r.Email, skipEmail) {
		f.mail(ctx, log, Message{To: r.Email, Subject: n.Title, Text: n.Body})
	}
}

func (f *Fanout) mail(ctx context.Context, log *slog.Logger, m Message) {
	if err := f.mailer.Send(ctx, m); err != nil {
		log.WarnContext(ctx, "send mail", "subject", m.Subject, "err", err)
	}
}

func (f *Fanout) publish(ctx context.Context, log *slog.Logger, typ string, o model.Order) {
	e := events.New(typ, o.ID, map[string]any{
		"sellingGroupId": o.SellingGroupID,
		"totalCents":     o.TotalCents,
		"currency":       o.Currency,
		"status":         o.Status,
		"paymentStatus":  o.PaymentStatus,
	})
	if err := f.events.Publish(ctx, e); err != nil {
		log.WarnContext(ctx, "publish event", "type", typ, "err", err)
	}
}
