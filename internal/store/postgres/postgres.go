// Package postgres implements store.Store on PostgreSQL through pgx.
package postgres

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/iliamunaev/checkout-core/internal/model"
	"github.com/iliamunaev/checkout-core/internal/store"
)

//go:embed schema.sql
var schema string

type Store struct {
	pool *pgxpool.Pool
}

var _ store.Store = (*Store)(nil)

// Open connects to dsn and pings the database.
func Open(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: connect: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Migrate creates missing tables. It is safe to run on every start.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("postgres: migrate: %w", err)
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error { return s.pool.Ping(ctx) }

func (s *Store) Close() { s.pool.Close() }

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// notFound maps pgx.ErrNoRows to store.ErrNotFound.
func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return store.ErrNotFound
	}
	return err
}

// toJSON encodes v for a JSONB column. Nil maps and pointers become NULL.
func toJSON(v any) ([]byte, error) {
	switch x := v.(type) {
	case nil:
		return nil, nil
	case map[string]any:
		if x == nil {
			return nil, nil
		}
	case *model.Address:
		if x == nil {
			return nil, nil
		}
	}
	return json.Marshal(v)
}

func fromJSON(b []byte, dst any) error {
	if len(b) == 0 {
		return nil
	}
	return json.Unmarshal(b, dst)
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func (s *Store) Products(ctx context.Context, ids []string) (map[string]model.Product, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, selling_group_id, title, price_cents, currency, active, fulfillment_kind
		FROM products WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]model.Product, len(ids))
	for rows.Next() {
		var p model.Product
		if err := rows.Scan(&p.ID, &p.SellingGroupID, &p.Title, &p.PriceCents, &p.Currency, &p.Active, &p.FulfillmentKind); err != nil {
			return nil, err
		}
		out[p.ID] = p
	}
	return out, rows.Err()
}

func (s *Store) Variants(ctx context.Context, ids []string) (map[string]model.Variant, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, product_id, title, sku, price_cents, active, provider_variant_id
		FROM product_variants WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]model.Variant, len(ids))
	for rows.Next() {
		var v model.Variant
		if err := rows.Scan(&v.ID, &v.ProductID, &v.Title, &v.SKU, &v.PriceCents, &v.Active, &v.ProviderVariantID); err != nil {
			return nil, err
		}
		out[v.ID] = v
	}
	return out, rows.Err()
}

func (s *Store) FeeSettings(ctx context.Context) (model.FeeSettings, error) {
	var fs model.FeeSettings
	err := s.pool.QueryRow(ctx, `
		SELECT fee_enabled, fee_basis_points, require_connect_account
		FROM platform_settings WHERE id = 1`).Scan(&fs.Enabled, &fs.BasisPoints, &fs.RequireAccount)
	if err != nil {
		return model.FeeSettings{}, notFound(err)
	}
	return fs, nil
}

func (s *Store) ConnectAccount(ctx context.Context, groupID string) (model.ConnectAccount, error) {
	var (
		a          model.ConnectAccount
		reqs, meta []byte
	)
	err := s.pool.QueryRow(ctx, `
		SELECT selling_group_id, account_id, charges_enabled, payouts_enabled, details_submitted,
		       requirements, metadata, synced_at
		FROM connect_accounts WHERE selling_group_id = $1`, groupID).
		Scan(&a.SellingGroupID, &a.AccountID, &a.ChargesEnabled, &a.PayoutsEnabled, &a.DetailsSubmitted, &reqs, &meta, &a.SyncedAt)
	if err != nil {
		return model.ConnectAccount{}, notFound(err)
	}
	if err := fromJSON(reqs, &a.Requirements); err != nil {
		return model.ConnectAccount{}, fmt.Errorf("decode requirements: %w", err)
	}
	if err := fromJSON(meta, &a.Metadata); err != nil {
		return model.ConnectAccount{}, fmt.Errorf("decode metadata: %w", err)
	}
	return a, nil
}

func (s *Store) SaveConnectAccount(ctx context.Context, a model.ConnectAccount) error {
	reqs, err := toJSON(a.Requirements)
	if err != nil {
		return err
	}
	meta, err := toJSON(a.Metadata)
	if err != nil {
		return err
	}
	if a.SyncedAt.IsZero() {
		a.SyncedAt = time.Now().UTC()
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO connect_accounts (selling_group_id, account_id, charges_enabled, payouts_enabled,
		                              details_submitted, requirements, metadata, synced_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (selling_group_id) DO UPDATE SET
			account_id = EXCLUDED.account_id,
			charges_enabled = EXCLUDED.charges_enabled,
			payouts_enabled = EXCLUDED.payouts_enabled,
			details_submitted = EXCLUDED.details_submitted,
			requirements = EXCLUDED.requirements,
			metadata = EXCLUDED.metadata,
			synced_at = EXCLUDED.synced_at`,
		a.SellingGroupID, a.AccountID, a.ChargesEnabled, a.PayoutsEnabled, a.DetailsSubmitted, reqs, meta, a.SyncedAt)
	return err
}

// ClaimEffect inserts key into the effect ledger. Only the first caller
// for a key gets true.
func (s *Store) ClaimEffect(ctx context.Context, key string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `INSERT INTO effects (key) VALUES ($1) ON CONFLICT (key) DO NOTHING`, key)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Store) ReleaseEffect(ctx context.Context, key string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM effects WHERE key = $1`, key)
	return err
}

func (s *Store) GroupAdmins(ctx context.Context, groupID string) ([]model.Recipient, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT r.user_id, r.email, r.email_opt_in, r.display_name
		FROM group_admins a JOIN recipients r ON r.user_id = a.user_id
		WHERE a.selling_group_id = $1
		ORDER BY r.user_id`, groupID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.Recipient, error) {
		var r model.Recipient
		err := row.Scan(&r.UserID, &r.Email, &r.EmailOptIn, &r.DisplayName)
		return r, err
	})
}

func (s *Store) Recipient(ctx context.Context, userID string) (model.Recipient, error) {
	var r model.Recipient
	err := s.pool.QueryRow(ctx, `
		SELECT user_id, email, email_opt_in, display_name FROM recipients WHERE user_id = $1`, userID).
		Scan(&r.UserID, &r.Email, &r.EmailOptIn, &r.DisplayName)
	if err != nil {
		return model.Recipient{}, notFound(err)
	}
	return r, nil
}

func (s *Store) SaveNotification(ctx context.Context, n model.Notification) error {
	data, err := toJSON(n.Data)
	if err != nil {
		return err
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO notifications (id, user_id, kind, title, body, order_id, data, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO NOTHING`,
		n.ID, n.UserID, n.Kind, n.Title, n.Body, n.OrderID, data, n.CreatedAt)
	return err
}
