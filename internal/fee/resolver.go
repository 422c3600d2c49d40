package fee

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/iliamunaev/checkout-core/internal/model"
	"github.com/iliamunaev/checkout-core/internal/store"
)

// AccountStore persists settings and sub-account snapshots.
type AccountStore interface {
	FeeSettings(ctx context.Context) (model.FeeSettings, error)
	ConnectAccount(ctx context.Context, groupID string) (model.ConnectAccount, error)
	SaveConnectAccount(ctx context.Context, a model.ConnectAccount) error
}

// AccountProcessor is the processor's sub-account API.
type AccountProcessor interface {
	RetrieveAccount(ctx context.Context, accountID string) (model.ConnectAccount, error)
	CreateAccount(ctx context.Context, groupID, email string) (model.ConnectAccount, error)
	CreateOnboardingLink(ctx context.Context, accountID, refreshURL, returnURL string) (string, error)
}

// Resolver loads fee settings and seller sub-accounts.
type Resolver struct {
	store     AccountStore
	processor AccountProcessor
	defaults  model.FeeSettings
	log       *slog.Logger
	now       func() time.Time
}

// NewResolver returns a Resolver. defaults apply when the store has no settings row.
func NewResolver(s AccountStore, p AccountProcessor, defaults model.FeeSettings, log *slog.Logger) *Resolver {
	if s == nil || p == nil {
		panic("fee: nil dependency")
	}
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Resolver{
		store:     s,
		processor: p,
		defaults:  NormalizeSettings(defaults),
		log:       log,
		now:       time.Now,
	}
}

// Settings returns stored settings, or the configured defaults.
func (r *Resolver) Settings(ctx context.Context) model.FeeSettings {
	s, err := r.store.FeeSettings(ctx)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			r.log.WarnContext(ctx, "fee settings unavailable, using defaults", "err", err)
		}
		return r.defaults
	}
	return NormalizeSettings(s)
}

// Load returns the group's sub-account, refreshed from the processor when
// possible. A nil account means none is on file. Refresh failures fall back
// to the stored snapshot.
func (r *Resolver) Load(ctx context.Context, groupID string) (*model.ConnectAccount, error) {
	acct, err := r.store.ConnectAccount(ctx, groupID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load connect account: %w", err)
	}
	if acct.AccountID == "" {
		return nil, nil
	}

	fresh, err := r.refresh(ctx, acct)
	if err != nil {
		r.log.WarnContext(ctx, "connect account refresh failed, using snapshot",
			"selling_group", groupID, "synced_at", acct.SyncedAt, "err", err)
		return &acct, nil
	}
	return &fresh, nil
}

// Sync refreshes the group's sub-account and fails if the processor does.
func (r *Resolver) Sync(ctx context.Context, groupID string) (model.ConnectAccount, error) {
	acct, err := r.store.ConnectAccount(ctx, groupID)
	if err != nil {
		return model.ConnectAccount{}, err
	}
	return r.refresh(ctx, acct)
}

func (r *Resolver) refresh(ctx context.Context, snapshot model.ConnectAccount) (model.ConnectAccount, error) {
	fresh, err := r.processor.RetrieveAccount(ctx, snapshot.AccountID)
	if err != nil {
		return model.ConnectAccount{}, err
	}
	fresh.SellingGroupID = snapshot.SellingGroupID
	fresh.AccountID = snapshot.AccountID
	if fresh.Metadata == nil {
		fresh.Metadata = snapshot.Metadata
	}
	fresh.SyncedAt = r.now().UTC()

	if err := r.store.SaveConnectAccount(ctx, fresh); err != nil {
		r.log.WarnContext(ctx, "save refreshed connect account", "selling_group", snapshot.SellingGroupID, "err", err)
	}
	return fresh, nil
}

// Onboard creates the group's sub-account when missing and returns a
// processor-hosted onboarding link.
func (r *Resolver) Onboard(ctx context.Context, groupID, email, refreshURL, returnURL string) (model.ConnectAccount, string, error) {
	acct, err := r.store.ConnectAccount(ctx, groupID)
	switch {
	case errors.Is(err, store.ErrNotFound) || (err == nil && acct.AccountID == ""):
		acct, err = r.processor.CreateAccount(ctx, groupID, email)
		if err != nil {
			return model.ConnectAccount{}, "", fmt.Errorf("create connect account: %w", err)
		}
		acct.SellingGroupID = groupID
		acct.SyncedAt = r.now().UTC()
		if err := r.store.SaveConnectAccount(ctx, acct); err != nil {
			return model.ConnectAccount{}, "", fmt.Errorf("save connect account: %w", err)
		}
		r.log.InfoContext(ctx, "connect account created", "selling_group", groupID, "account", acct.AccountID)
	case err != nil:
		return model.ConnectAccount{}, "", fmt.Errorf("load connect account: %w", err)
	}

	link, err := r.processor.CreateOnboardingLink(ctx, acct.AccountID, refreshURL, returnURL)
	if err != nil {
		return model.ConnectAccount{}, "", fmt.Errorf("create onboarding link: %w", err)
	}
	return acct, link, nil
}
