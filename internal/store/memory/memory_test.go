package memory

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliamunaev/checkout-core/internal/lifecycle"
	"github.com/iliamunaev/checkout-core/internal/model"
	"github.com/iliamunaev/checkout-core/internal/store"
)

func seedOrder(t *testing.T, s *Store) {
	t.Helper()

	err := s.CreateOrder(context.Background(),
		model.Order{ID: "o1", Status: model.StatusRequiresPayment, PaymentStatus: model.PaymentRequiresPayment, TotalCents: 3240},
		[]model.OrderItem{{ID: "i1", OrderID: "o1", Quantity: 2}},
		model.Payment{ID: "pay1", OrderID: "o1", Status: model.PaymentRequiresPayment, AmountCents: 3240},
	)
	require.NoError(t, err)
	require.NoError(t, s.AttachPaymentIntent(context.Background(), "o1", "pay1", "pi_1"))
}

func TestOrderLookupByKey(t *testing.T) {
	t.Parallel()

	s := New()
	seedOrder(t, s)
	ctx := context.Background()

	byID, err := s.Order(ctx, store.ByOrder("o1"))
	require.NoError(t, err)
	byIntent, err := s.Order(ctx, store.ByIntent("pi_1"))
	require.NoError(t, err)
	assert.Equal(t, byID, byIntent)

	_, err = s.Order(ctx, store.ByIntent("pi_unknown"))
	assert.ErrorIs(t, err, store.ErrNotFound)

	items, err := s.OrderItems(ctx, "o1")
	require.NoError(t, err)
	assert.Len(t, items, 1)
}

func TestPatchOrderConcurrentConverges(t *testing.T) {
	t.Parallel()

	s := New()
	seedOrder(t, s)

	var wg sync.WaitGroup
	var mu sync.Mutex
	changedCount := 0
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, changed, err := s.PatchOrder(context.Background(), store.ByIntent("pi_1"), func(o model.Order) (model.Order, bool) {
				return lifecycle.ApplyPayment(o, true)
			})
			if err != nil {
				t.Errorf("patch: %v", err)
				return
			}
			if changed {
				mu.Lock()
				changedCount++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, changedCount)
	o, err := s.Order(context.Background(), store.ByOrder("o1"))
	require.NoError(t, err)
	assert.Equal(t, model.PaymentSucceeded, o.PaymentStatus)
	assert.Equal(t, model.StatusFulfilled, o.Status)
}

func TestPatchPayment(t *testing.T) {
	t.Parallel()

	s := New()
	seedOrder(t, s)

	p, changed, err := s.PatchPayment(context.Background(), "pi_1", func(p model.Payment) (model.Payment, bool) {
		return lifecycle.ApplyCharge(p, true, lifecycle.Charge{ChargeID: "ch_1"})
	})
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, "ch_1", p.ChargeID)

	_, _, err = s.PatchPayment(context.Background(), "pi_nope", func(p model.Payment) (model.Payment, bool) { return p, true })
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestClaimEffectOnce(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()

	first, err := s.ClaimEffect(ctx, "payout:o1")
	require.NoError(t, err)
	second, err := s.ClaimEffect(ctx, "payout:o1")
	require.NoError(t, err)
	assert.True(t, first)
	assert.False(t, second)

	require.NoError(t, s.ReleaseEffect(ctx, "payout:o1"))
	again, err := s.ClaimEffect(ctx, "payout:o1")
	require.NoError(t, err)
	assert.True(t, again)
}

func TestSavePayoutUpserts(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()
	require.NoError(t, s.SavePayout(ctx, model.Payout{OrderID: "o1", AmountCents: 100}))
	require.NoError(t, s.SavePayout(ctx, model.Payout{OrderID: "o1", AmountCents: 100}))
	assert.Len(t, s.Payouts(), 1)
}

func TestStoredOrderIsNotAliased(t *testing.T) {
	t.Parallel()

	s := New()
	seedOrder(t, s)

	o, err := s.Order(context.Background(), store.ByOrder("o1"))
	require.NoError(t, err)
	o.Metadata = map[string]any{"x": 1}
	o.Status = "mutated"

	again, err := s.Order(context.Background(), store.ByOrder("o1"))
	require.NoError(t, err)
	assert.Equal(t, model.StatusRequiresPayment, again.Status)
	assert.Nil(t, again.Metadata)
}
