package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/iliamunaev/checkout-core/internal/model"
	"github.com/iliamunaev/checkout-core/internal/store"
)

const orderColumns = `id, selling_group_id, buyer_id, status, payment_status,
	subtotal_cents, shipping_cents, tax_cents, fee_cents, total_cents, currency,
	contact_email, shipping_required, shipping_address, shipping_carrier,
	tracking_number, tracking_url, shipping_status, confirmation_code,
	payment_intent_id, metadata, created_at, updated_at`

const paymentColumns = `id, order_id, payment_intent_id, status, amount_cents, currency,
	charge_id, receipt_url, raw, created_at, updated_at`

func scanOrder(row pgx.Row) (model.Order, error) {
	var (
		o          model.Order
		addr, meta []byte
		intent     *string
	)
	err := row.Scan(&o.ID, &o.SellingGroupID, &o.BuyerID, &o.Status, &o.PaymentStatus,
		&o.SubtotalCents, &o.ShippingCents, &o.TaxCents, &o.FeeCents, &o.TotalCents, &o.Currency,
		&o.ContactEmail, &o.ShippingRequired, &addr, &o.ShippingCarrier,
		&o.TrackingNumber, &o.TrackingURL, &o.ShippingStatus, &o.ConfirmationCode,
		&intent, &meta, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return model.Order{}, notFound(err)
	}
	o.PaymentIntentID = deref(intent)
	if len(addr) > 0 {
		o.ShippingAddress = &model.Address{}
		if err := fromJSON(addr, o.ShippingAddress); err != nil {
			return model.Order{}, fmt.Errorf("decode shipping address: %w", err)
		}
	}
	if err := fromJSON(meta, &o.Metadata); err != nil {
		return model.Order{}, fmt.Errorf("decode order metadata: %w", err)
	}
	return o, nil
}

func scanPayment(row pgx.Row) (model.Payment, error) {
	var (
		p      model.Payment
		intent *string
		raw    []byte
	)
	err := row.Scan(&p.ID, &p.OrderID, &intent, &p.Status, &p.AmountCents, &p.Currency,
		&p.ChargeID, &p.ReceiptURL, &raw, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return model.Payment{}, notFound(err)
	}
	p.PaymentIntentID = deref(intent)
	if err := fromJSON(raw, &p.Raw); err != nil {
		return model.Payment{}, fmt.Errorf("decode payment payload: %w", err)
	}
	return p, nil
}

// keyClause picks the lookup column for key.
func keyClause(key store.Key) (string, string, error) {
	switch {
	case key.OrderID != "":
		return "id = $1", key.OrderID, nil
	case key.PaymentIntentID != "":
		return "payment_intent_id = $1", key.PaymentIntentID, nil
	default:
		return "", "", errors.New("postgres: empty order key")
	}
}

// CreateOrder inserts the order, its items and the pending payment in one
// transaction. Re-inserting an existing order id is a no-op.
func (s *Store) CreateOrder(ctx context.Context, o model.Order, items []model.OrderItem, p model.Payment) error {
	addr, err := toJSON(o.ShippingAddress)
	if err != nil {
		return err
	}
	meta, err := toJSON(o.Metadata)
	if err != nil {
		return err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, `
		INSERT INTO orders (id, selling_group_id, buyer_id, status, payment_status,
			subtotal_cents, shipping_cents, tax_cents, fee_cents, total_cents, currency,
			contact_email, shipping_required, shipping_address, shipping_status,
			confirmation_code, payment_intent_id, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
		ON CONFLICT (id) DO NOTHING`,
		o.ID, o.SellingGroupID, o.BuyerID, o.Status, o.PaymentStatus,
		o.SubtotalCents, o.ShippingCents, o.TaxCents, o.FeeCents, o.TotalCents, o.Currency,
		o.ContactEmail, o.ShippingRequired, addr, o.ShippingStatus,
		o.ConfirmationCode, nullable(o.PaymentIntentID), meta)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return tx.Commit(ctx)
	}

	for _, it := range items {
		im, err := toJSON(it.Metadata)
		if err != nil {
			return err
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO order_items (id, order_id, product_id, title, quantity,
				unit_price_cents, total_cents, currency, metadata)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			it.ID, o.ID, it.ProductID, it.Title, it.Quantity, it.UnitPriceCents, it.TotalCents, it.Currency, im)
		if err != nil {
			return fmt.Errorf("insert order item: %w", err)
		}
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO payments (id, order_id, payment_intent_id, status, amount_cents, currency)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		p.ID, o.ID, nullable(p.PaymentIntentID), p.Status, p.AmountCents, p.Currency)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("insert payment: order %s already has an open payment: %w", o.ID, err)
		}
		return fmt.Errorf("insert payment: %w", err)
	}
	return tx.Commit(ctx)
}

func (s *Store) AttachPaymentIntent(ctx context.Context, orderID, paymentID, intentID string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, `UPDATE orders SET payment_intent_id = $2, updated_at = now() WHERE id = $1`, orderID, intentID)
	if err != nil {
		return fmt.Errorf("attach intent to order: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	if _, err := tx.Exec(ctx, `UPDATE payments SET payment_intent_id = $2, updated_at = now() WHERE id = $1`, paymentID, intentID); err != nil {
		return fmt.Errorf("attach intent to payment: %w", err)
	}
	return tx.Commit(ctx)
}

func (s *Store) Order(ctx context.Context, key store.Key) (model.Order, error) {
	where, arg, err := keyClause(key)
	if err != nil {
		return model.Order{}, err
	}
	return scanOrder(s.pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE `+where, arg))
}

func (s *Store) OrderItems(ctx context.Context, orderID string) ([]model.OrderItem, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, order_id, product_id, title, quantity, unit_price_cents, total_cents, currency, metadata
		FROM order_items WHERE order_id = $1 ORDER BY id`, orderID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.OrderItem, error) {
		var (
			it   model.OrderItem
			meta []byte
		)
		if err := row.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.Title, &it.Quantity,
			&it.UnitPriceCents, &it.TotalCents, &it.Currency, &meta); err != nil {
			return model.OrderItem{}, err
		}
		if err := fromJSON(meta, &it.Metadata); err != nil {
			return model.OrderItem{}, fmt.Errorf("decode item metadata: %w", err)
		}
		return it, nil
	})
}

// PatchOrder locks the row, applies fn and writes the result back when fn
// reports a change.
func (s *Store) PatchOrder(ctx context.Context, key store.Key, fn store.OrderMutation) (model.Order, bool, error) {
	where, arg, err := keyClause(key)
	if err != nil {
		return model.Order{}, false, err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return model.Order{}, false, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	cur, err := scanOrder(tx.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE `+where+` FOR UPDATE`, arg))
	if err != nil {
		return model.Order{}, false, err
	}
	next, changed := fn(cur.Clone())
	if !changed {
		return cur, false, tx.Commit(ctx)
	}

	addr, err := toJSON(next.ShippingAddress)
	if err != nil {
		return model.Order{}, false, err
	}
	meta, err := toJSON(next.Metadata)
	if err != nil {
		return model.Order{}, false, err
	}
	next.UpdatedAt = time.Now().UTC()
	_, err = tx.Exec(ctx, `
		UPDATE orders SET status = $2, payment_status = $3, shipping_address = $4,
			shipping_carrier = $5, tracking_number = $6, tracking_url = $7,
			shipping_status = $8, metadata = $9, updated_at = $10
		WHERE id = $1`,
		cur.ID, next.Status, next.PaymentStatus, addr,
		next.ShippingCarrier, next.TrackingNumber, next.TrackingURL,
		next.ShippingStatus, meta, next.UpdatedAt)
	if err != nil {
		return model.Order{}, false, fmt.Errorf("update order: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return model.Order{}, false, err
	}
	return next, true, nil
}

func (s *Store) PatchPayment(ctx context.Context, intentID string, fn store.PaymentMutation) (model.Payment, bool, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return model.Payment{}, false, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	cur, err := scanPayment(tx.QueryRow(ctx, `SELECT `+paymentColumns+` FROM payments WHERE payment_intent_id = $1 FOR UPDATE`, intentID))
	if err != nil {
		return model.Payment{}, false, err
	}
	next, changed := fn(cur)
	if !changed {
		return cur, false, tx.Commit(ctx)
	}

	raw, err := toJSON(next.Raw)
	if err != nil {
		return model.Payment{}, false, err
	}
	next.UpdatedAt = time.Now().UTC()
	_, err = tx.Exec(ctx, `
		UPDATE payments SET status = $2, amount_cents = $3, charge_id = $4,
			receipt_url = $5, raw = $6, updated_at = $7
		WHERE id = $1`,
		cur.ID, next.Status, next.AmountCents, next.ChargeID, next.ReceiptURL, raw, next.UpdatedAt)
	if err != nil {
		return model.Payment{}, false, fmt.Errorf("update payment: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return model.Payment{}, false, err
	}
	return next, true, nil
}

// SavePayout upserts the payout row for an order.
func (s *Store) SavePayout(ctx context.Context, p model.Payout) error {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO payouts (order_id, selling_group_id, account_id, amount_cents, fee_cents,
			currency, transfer_ref, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (order_id) DO UPDATE SET
			account_id = EXCLUDED.account_id,
			amount_cents = EXCLUDED.amount_cents,
			fee_cents = EXCLUDED.fee_cents,
			transfer_ref = EXCLUDED.transfer_ref`,
		p.OrderID, p.SellingGroupID, p.AccountID, p.AmountCents, p.FeeCents, p.Currency, p.TransferRef, p.CreatedAt)
	return err
}
