// Package store declares the keyed read/upsert contract shared by the
// Postgres and in-memory implementations.
package store

import (
	"context"
	"errors"

	"github.com/iliamunaev/checkout-core/internal/model"
)

// ErrNotFound is returned when a keyed lookup has no row.
var ErrNotFound = errors.New("store: not found")

// Key selects an order by id or by processor payment-intent id.
type Key struct {
	OrderID         string
	PaymentIntentID string
}

// ByOrder returns a Key for an order id.
func ByOrder(id string) Key { return Key{OrderID: id} }

// ByIntent returns a Key for a payment-intent id.
func ByIntent(id string) Key { return Key{PaymentIntentID: id} }

// OrderMutation transforms an order and reports whether anything changed.
// It must be pure: the store may call it while holding a row lock.
type OrderMutation func(model.Order) (model.Order, bool)

// PaymentMutation transforms a payment and reports whether anything changed.
type PaymentMutation func(model.Payment) (model.Payment, bool)

// Store is the full persistence surface wired by the application.
type Store interface {
	Products(ctx context.Context, ids []string) (map[string]model.Product, error)
	Variants(ctx context.Context, ids []string) (map[string]model.Variant, error)

	CreateOrder(ctx context.Context, o model.Order, items []model.OrderItem, p model.Payment) error
	AttachPaymentIntent(ctx context.Context, orderID, paymentID, intentID string) error
	Order(ctx context.Context, key Key) (model.Order, error)
	OrderItems(ctx context.Context, orderID string) ([]model.OrderItem, error)
	PatchOrder(ctx context.Context, key Key, fn OrderMutation) (model.Order, bool, error)
	PatchPayment(ctx context.Context, intentID string, fn PaymentMutation) (model.Payment, bool, error)

	ConnectAccount(ctx context.Context, groupID string) (model.ConnectAccount, error)
	SaveConnectAccount(ctx context.Context, a model.ConnectAccount) error
	FeeSettings(ctx context.Context) (model.FeeSettings, error)
	SavePayout(ctx context.Context, p model.Payout) error

	ClaimEffect(ctx context.Context, key string) (bool, error)
	ReleaseEffect(ctx context.Context, key string) error

	GroupAdmins(ctx context.Context, groupID string) ([]model.Recipient, error)
	Recipient(ctx context.Context, userID string) (model.Recipient, error)
	SaveNotification(ctx context.Context, n model.Notification) error
}
