// Package webhook reconciles orders against processor and fulfillment
// provider events. Deliveries may repeat or arrive out of order; every
// handler converges to the same state no matter how often it runs.
package webhook

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/iliamunaev/checkout-core/internal/events"
	"github.com/iliamunaev/checkout-core/internal/lifecycle"
	"github.com/iliamunaev/checkout-core/internal/model"
	"github.com/iliamunaev/checkout-core/internal/payments"
	"github.com/iliamunaev/checkout-core/internal/store"
)

// Outcomes reported per delivery.
const (
	OutcomeApplied      = "applied"
	OutcomeNoop         = "noop"
	OutcomeIgnored      = "ignored"
	OutcomeUnknownOrder = "unknown_order"
	OutcomeRejected     = "rejected"
	OutcomeError        = "error"
)

// Webhook sources.
const (
	SourcePayments    = "payments"
	SourceFulfillment = "fulfillment"
)

// Store is the keyed state the reconciler mutates.
type Store interface {
	PatchOrder(ctx context.Context, key store.Key, fn store.OrderMutation) (model.Order, bool, error)
	PatchPayment(ctx context.Context, intentID string, fn store.PaymentMutation) (model.Payment, bool, error)
	SavePayout(ctx context.Context, p model.Payout) error
	ClaimEffect(ctx context.Context, key string) (bool, error)
	ReleaseEffect(ctx context.Context, key string) error
}

type Dispatcher interface {
	Dispatch(ctx context.Context, orderID string) error
}

type Notifier interface {
	PaymentSucceeded(ctx context.Context, o model.Order)
	PaymentFailed(ctx context.Context, o model.Order)
}

// Runner runs a side effect without blocking the caller.
type Runner interface {
	Go(ctx context.Context, name string, fn func(context.Context) error)
}

type Observer interface {
	ObserveWebhook(source, outcome string)
}

type nopObserver struct{}

func (nopObserver) ObserveWebhook(string, string) {}

type Deps struct {
	Store      Store
	Dispatcher Dispatcher
	Notifier   Notifier
	Runner     Runner
	Events     events.Publisher
	Observer   Observer
	Log        *slog.Logger

	PaymentSecret     string
	FulfillmentSecret string
	Tolerance         time.Duration // payment signature age limit, default 5m
}

type Reconciler struct {
	store      Store
	dispatcher Dispatcher
	notifier   Notifier
	runner     Runner
	events     events.Publisher
	obs        Observer
	log        *slog.Logger

	paymentSecret     string
	fulfillmentSecret string
	tolerance         time.Duration
	now               func() time.Time
}

func New(d Deps) *Reconciler {
	if d.Store == nil || d.Dispatcher == nil || d.Notifier == nil || d.Runner == nil {
		panic("webhook: nil dependency")
	}
	if d.Events == nil {
		d.Events = events.Nop{}
	}
	if d.Observer == nil {
		d.Observer = nopObserver{}
	}
	if d.Log == nil {
		d.Log = slog.New(slog.DiscardHandler)
	}
	if d.Tolerance <= 0 {
		d.Tolerance = payments.DefaultTolerance
	}
	return &Reconciler{
		store:             d.Store,
		dispatcher:        d.Dispatcher,
		notifier:          d.Notifier,
		runner:            d.Runner,
		events:            d.Events,
		obs:               d.Observer,
		log:               d.Log,
		paymentSecret:     d.PaymentSecret,
		fulfillmentSecret: d.FulfillmentSecret,
		tolerance:         d.Tolerance,
		now:               time.Now,
	}
}

// Effect ledger keys.
func payoutKey(orderID string) string       { return "payout:" + orderID }
func dispatchKey(orderID string) string     { return "dispatch:" + orderID }
func notifyPaidKey(orderID string) string   { return "notify:paid:" + orderID }
func notifyFailedKey(orderID string) string { return "notify:failed:" + orderID }

// HandlePayment verifies and applies one processor delivery. Only a bad
// signature or an unparsable body is an input error; store failures are
// returned so the processor redelivers.
func (r *Reconciler) HandlePayment(ctx context.Context, body []byte, signature string) (string, error) {
	if err := payments.VerifySignature(body, signature, r.paymentSecret, r.tolerance); err != nil {
		r.obs.ObserveWebhook(SourcePayments, OutcomeRejected)
		return OutcomeRejected, err
	}
	ev, err := payments.ParseEvent(body)
	if err != nil {
		r.obs.ObserveWebhook(SourcePayments, OutcomeRejected)
		return OutcomeRejected, err
	}
	return r.HandlePaymentEvent(ctx, ev)
}

// HandlePaymentEvent applies an already verified event.
func (r *Reconciler) HandlePaymentEvent(ctx context.Context, ev payments.Event) (string, error) {
	outcome, err := r.applyPayment(ctx, ev)
	r.obs.ObserveWebhook(SourcePayments, outcome)
	return outcome, err
}

func (r *Reconciler) applyPayment(ctx context.Context, ev payments.Event) (string, error) {
	var succeeded bool
	switch ev.Type {
	case payments.EventIntentSucceeded:
		succeeded = true
	case payments.EventIntentFailed, payments.EventIntentCanceled:
	default:
		return OutcomeIgnored, nil
	}

	intent, err := ev.Intent()
	if err != nil {
		return OutcomeRejected, err
	}
	log := r.log.With("event_type", ev.Type, "payment_intent", intent.ID)

	amount := intent.AmountReceived
	if amount == 0 {
		amount = intent.Amount
	}
	charge := lifecycle.Charge{
		AmountCents: amount,
		ChargeID:    intent.ChargeID,
		ReceiptURL:  intent.ReceiptURL,
		Raw:         intent.Raw,
	}
	_, paymentChanged, err := r.store.PatchPayment(ctx, intent.ID, func(p model.Payment) (model.Payment, bool) {
		return lifecycle.ApplyCharge(p, succeeded, charge)
	})
	if errors.Is(err, store.ErrNotFound) {
		log.InfoContext(ctx, "payment event for unknown intent")
		return OutcomeUnknownOrder, nil
	}
	if err != nil {
		return OutcomeError, fmt.Errorf("patch payment: %w", err)
	}

	o, orderChanged, err := r.store.PatchOrder(ctx, store.ByIntent(intent.ID), func(o model.Order) (model.Order, bool) {
		return lifecycle.ApplyPayment(o, succeeded)
	})
	if errors.Is(err, store.ErrNotFound) {
		log.InfoContext(ctx, "payment event for unknown order")
		return OutcomeUnknownOrder, nil
	}
	if err != nil {
		return OutcomeError, fmt.Errorf("patch order: %w", err)
	}
	log = log.With("order_id", o.ID)

	// Effects run whenever the order sits in the matching terminal state so a
	// redelivery can finish what a crashed delivery started. The ledger keeps
	// each effect to one run.
	switch {
	case succeeded && o.PaymentStatus == model.PaymentSucceeded:
		r.recordPayout(ctx, log, o, intent.ChargeID)
		if o.ShippingRequired {
			r.launch(ctx, "dispatch", dispatchKey(o.ID), func(ctx context.Context) error {
				return r.dispatcher.Dispatch(ctx, o.ID)
			})
		}
		r.launch(ctx, "notify_paid", notifyPaidKey(o.ID), func(ctx context.Context) error {
			r.notifier.PaymentSucceeded(ctx, o)
			return nil
		})
	case !succeeded && o.PaymentStatus == model.PaymentFailed:
		r.launch(ctx, "notify_failed", notifyFailedKey(o.ID), func(ctx context.Context) error {
			r.notifier.PaymentFailed(ctx, o)
			return nil
		})
	default:
		log.InfoContext(ctx, "payment event conflicts with terminal state", "payment_status", o.PaymentStatus)
	}

	if paymentChanged || orderChanged {
		log.InfoContext(ctx, "payment event applied", "status", o.Status, "payment_status", o.PaymentStatus)
		return OutcomeApplied, nil
	}
	return OutcomeNoop, nil
}

// recordPayout books the seller share of a split order. Failures are logged
// and leave the claim released for the next delivery.
func (r *Reconciler) recordPayout(ctx context.Context, log *slog.Logger, o model.Order, chargeID string) {
	dest, _ := o.Metadata[model.MetaDestination].(string)
	if dest == "" {
		return
	}
	key := payoutKey(o.ID)
	claimed, err := r.store.ClaimEffect(ctx, key)
	if err != nil {
		log.WarnContext(ctx, "claim payout", "err", err)
		return
	}
	if !claimed {
		return
	}

	err = r.store.SavePayout(ctx, model.Payout{
		OrderID:        o.ID,
		SellingGroupID: o.SellingGroupID,
		AccountID:      dest,
		AmountCents:    o.TotalCents - o.FeeCents,
		FeeCents:       o.FeeCents,
		Currency:       o.Currency,
		TransferRef:    chargeID,
		CreatedAt:      r.now().UTC(),
	})
	if err != nil {
		log.WarnContext(ctx, "record payout", "err", err)
		if rerr := r.store.ReleaseEffect(ctx, key); rerr != nil {
			log.WarnContext(ctx, "release payout claim", "err", rerr)
		}
	}
}

// launch claims key and runs fn in the background. A failed fn releases the
// claim so a later delivery or manual retry can run it again.
func (r *Reconciler) launch(ctx context.Context, name, key string, fn func(context.Context) error) {
	r.runner.Go(ctx, name, func(ctx context.Context) error {
		claimed, err := r.store.ClaimEffect(ctx, key)
		if err != nil {
			return fmt.Errorf("claim %s: %w", key, err)
		}
		if !claimed {
			return nil
		}
		if err := fn(ctx); err != nil {
			if rerr := r.store.ReleaseEffect(ctx, key); rerr != nil {
				r.log.WarnContext(ctx, "release effect claim", "key", key, "err", rerr)
			}
			return err
		}
		return nil
	})
}

// Dispatch is the manual retry path for fulfillment submission. It takes the
// same ledger claim as the payment path, so a retry racing a background
// dispatch submits nothing; a held claim returns nil. A failed dispatch
// releases the claim.
func (r *Reconciler) Dispatch(ctx context.Context, orderID string) error {
	key := dispatchKey(orderID)
	claimed, err := r.store.ClaimEffect(ctx, key)
	if err != nil {
		return fmt.Errorf("claim %s: %w", key, err)
	}
	if !claimed {
		r.log.InfoContext(ctx, "dispatch already claimed", "order_id", orderID)
		return nil
	}
	if err := r.dispatcher.Dispatch(ctx, orderID); err != nil {
		if rerr := r.store.ReleaseEffect(context.WithoutCancel(ctx), key); rerr != nil {
			r.log.WarnContext(ctx, "release effect claim", "key", key, "err", rerr)
		}
		return err
	}
	return nil
}
