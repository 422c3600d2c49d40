// Package memory is an in-process store used for local runs and tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/iliamunaev/checkout-core/internal/model"
	"github.com/iliamunaev/checkout-core/internal/store"
)

// Store keeps every table in maps behind one mutex, which gives PatchOrder
// and PatchPayment the same serialization a row lock would.
type Store struct {
	mu sync.Mutex

	products      map[string]model.Product
	variants      map[string]model.Variant
	orders        map[string]model.Order
	items         map[string][]model.OrderItem
	payments      map[string]model.Payment // by payment id
	intents       map[string]string        // intent id -> order id
	accounts      map[string]model.ConnectAccount
	feeSettings   *model.FeeSettings
	payouts       map[string]model.Payout
	effects       map[string]struct{}
	admins        map[string][]model.Recipient
	recipients    map[string]model.Recipient
	notifications []model.Notification

	now func() time.Time
}

var _ store.Store = (*Store)(nil)

// New returns an empty Store.
func New() *Store {
	return &Store{
		products:   map[string]model.Product{},
		variants:   map[string]model.Variant{},
		orders:     map[string]model.Order{},
		items:      map[string][]model.OrderItem{},
		payments:   map[string]model.Payment{},
		intents:    map[string]string{},
		accounts:   map[string]model.ConnectAccount{},
		payouts:    map[string]model.Payout{},
		effects:    map[string]struct{}{},
		admins:     map[string][]model.Recipient{},
		recipients: map[string]model.Recipient{},
		now:        time.Now,
	}
}

// PutProduct upserts a catalog product.
func (s *Store) PutProduct(p model.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.products[p.ID] = p
}

// PutVariant upserts a catalog variant.
func (s *Store) PutVariant(v model.Variant) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.variants[v.ID] = v
}

// SetFeeSettings stores the platform fee settings row.
func (s *Store) SetFeeSettings(fs model.FeeSettings) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.feeSettings = &fs
}

// PutAdmin adds an admin recipient to a selling group.
func (s *Store) PutAdmin(groupID string, r model.Recipient) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.admins[groupID] = append(s.admins[groupID], r)
	s.recipients[r.UserID] = r
}

// PutRecipient upserts a user's notification preferences.
func (s *Store) PutRecipient(r model.Recipient) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recipients[r.UserID] = r
}

func (s *Store) Products(_ context.Context, ids []string) (map[string]model.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]model.Product, len(ids))
	for _, id := range ids {
		if p, ok := s.products[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

func (s *Store) Variants(_ context.Context, ids []string) (map[string]model.Variant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]model.Variant, len(ids))
	for _, id := range ids {
		if v, ok := s.variants[id]; ok {
			out[id] = v
		}
	}
	return out, nil
}

func (s *Store) CreateOrder(_ context.Context, o model.Order, items []model.OrderItem, p model.Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.orders[o.ID]; ok {
		return nil
	}
	now := s.now().UTC()
	o = o.Clone()
	o.CreatedAt, o.UpdatedAt = now, now
	p.CreatedAt, p.UpdatedAt = now, now

	s.orders[o.ID] = o
	s.items[o.ID] = append([]model.OrderItem(nil), items...)
	s.payments[p.ID] = p
	if o.PaymentIntentID != "" {
		s.intents[o.PaymentIntentID] = o.ID
	}
	return nil
}

func (s *Store) AttachPaymentIntent(_ context.Context, orderID, paymentID, intentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[orderID]
	if !ok {
		return store.ErrNotFound
	}
	now := s.now().UTC()
	o.PaymentIntentID = intentID
	o.UpdatedAt = now
	s.orders[orderID] = o
	s.intents[intentID] = orderID

	if p, ok := s.payments[paymentID]; ok {
		p.PaymentIntentID = intentID
		p.UpdatedAt = now
		s.payments[paymentID] = p
	}
	return nil
}

func (s *Store) orderID(key store.Key) (string, bool) {
	if key.OrderID != "" {
		_, ok := s.orders[key.OrderID]
		return key.OrderID, ok
	}
	id, ok := s.intents[key.PaymentIntentID]
	return id, ok
}

func (s *Store) Order(_ context.Context, key store.Key) (model.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.orderID(key)
	if !ok {
		return model.Order{}, store.ErrNotFound
	}
	return s.orders[id].Clone(), nil
}

func (s *Store) OrderItems(_ context.Context, orderID string) ([]model.OrderItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.OrderItem(nil), s.items[orderID]...), nil
}

func (s *Store) PatchOrder(_ context.Context, key store.Key, fn store.OrderMutation) (model.Order, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.orderID(key)
	if !ok {
		return model.Order{}, false, store.ErrNotFound
	}
	next, changed := fn(s.orders[id].Clone())
	if !changed {
		return s.orders[id].Clone(), false, nil
	}
	next.UpdatedAt = s.now().UTC()
	s.orders[id] = next.Clone()
	return next, true, nil
}

func (s *Store) PatchPayment(_ context.Context, intentID string, fn store.PaymentMutation) (model.Payment, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, p := range s.payments {
		if p.PaymentIntentID != intentID {
			continue
		}
		next, changed := fn(p)
		if !changed {
			return p, false, nil
		}
		next.UpdatedAt = s.now().UTC()
		s.payments[id] = next
		return next, true, nil
	}
	return model.Payment{}, false, store.ErrNotFound
}

// PaymentsForOrder returns the order's payment rows.
func (s *Store) PaymentsForOrder(orderID string) []model.Payment {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Payment
	for _, p := range s.payments {
		if p.OrderID == orderID {
			out = append(out, p)
		}
	}
	return out
}

// OrderCount reports how many orders exist.
func (s *Store) OrderCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.orders)
}

func (s *Store) ConnectAccount(_ context.Context, groupID string) (model.ConnectAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[groupID]
	if !ok {
		return model.ConnectAccount{}, store.ErrNotFound
	}
	return a, nil
}

func (s *Store) SaveConnectAccount(_ context.Context, a model.ConnectAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[a.SellingGroupID] = a
	return nil
}

func (s *Store) FeeSettings(context.Context) (model.FeeSettings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.feeSettings == nil {
		return model.FeeSettings{}, store.ErrNotFound
	}
	return *s.feeSettings, nil
}

func (s *Store) SavePayout(_ context.Context, p model.Payout) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = s.now().UTC()
	}
	s.payouts[p.OrderID] = p
	return nil
}

// Payouts returns payout rows ordered by order id.
func (s *Store) Payouts() []model.Payout {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Payout, 0, len(s.payouts))
	for _, p := range s.payouts {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OrderID < out[j].OrderID })
	return out
}

func (s *Store) ClaimEffect(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.effects[key]; ok {
		return false, nil
	}
	s.effects[key] = struct{}{}
	return true, nil
}

func (s *Store) ReleaseEffect(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.effects, key)
	return nil
}

func (s *Store) GroupAdmins(_ context.Context, groupID string) ([]model.Recipient, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.Recipient(nil), s.admins[groupID]...), nil
}

func (s *Store) Recipient(_ context.Context, userID string) (model.Recipient, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.recipients[userID]
	if !ok {
		return model.Recipient{}, store.ErrNotFound
	}
	return r, nil
}

func (s *Store) SaveNotification(_ context.Context, n model.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n.CreatedAt.IsZero() {
		n.CreatedAt = s.now().UTC()
	}
	s.notifications = append(s.notifications, n)
	return nil
}

// Notifications returns saved notifications in insertion order.
func (s *Store) Notifications() []model.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.Notification(nil), s.notifications...)
}
