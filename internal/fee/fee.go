// Package fee decides whether a charge splits with the seller's payment
// sub-account and computes the platform's cut.
package fee

import (
	"github.com/iliamunaev/checkout-core/internal/apperr"
	"github.com/iliamunaev/checkout-core/internal/model"
)

const (
	DefaultBasisPoints = 1000
	MaxBasisPoints     = 10000
)

// Amount returns floor(amount*bps/10000) clamped to [0, amount].
func Amount(amount int64, bps int) int64 {
	if amount <= 0 || bps <= 0 {
		return 0
	}
	if bps > MaxBasisPoints {
		bps = MaxBasisPoints
	}
	b := int64(bps)
	// split to avoid overflowing amount*bps
	f := (amount/MaxBasisPoints)*b + (amount%MaxBasisPoints)*b/MaxBasisPoints
	return min(max(f, 0), amount)
}

// NormalizeSettings clamps basis points into range.
func NormalizeSettings(s model.FeeSettings) model.FeeSettings {
	s.BasisPoints = min(max(s.BasisPoints, 0), MaxBasisPoints)
	return s
}

// Decision is the outcome of Decide: Split, Unsplit or Blocked.
type Decision interface {
	decision()
}

// Split routes the charge to Destination, keeping FeeCents for the platform.
type Split struct {
	Destination string
	FeeCents    int64
}

// Unsplit charges on the platform account with no fee.
type Unsplit struct{}

// Blocked aborts checkout; Code drives remediation in the client.
type Blocked struct {
	Code    string
	Message string
}

func (Split) decision()   {}
func (Unsplit) decision() {}
func (Blocked) decision() {}

// Err converts the block into the caller-visible error carrying the same code.
func (b Blocked) Err() error {
	switch b.Code {
	case apperr.ErrSellerConnectMissing.Code:
		return apperr.ErrSellerConnectMissing
	case apperr.ErrSellerOnboarding.Code:
		return apperr.ErrSellerOnboarding
	default:
		return apperr.New(apperr.ErrSellerConnectMissing.Status, b.Code, b.Message)
	}
}

var (
	blockedMissing = Blocked{
		Code:    apperr.ErrSellerConnectMissing.Code,
		Message: apperr.ErrSellerConnectMissing.Message,
	}
	blockedOnboarding = Blocked{
		Code:    apperr.ErrSellerOnboarding.Code,
		Message: apperr.ErrSellerOnboarding.Message,
	}
)

// Decide is pure. acct is nil when the selling group has no sub-account.
func Decide(s model.FeeSettings, acct *model.ConnectAccount, total int64) Decision {
	if !s.Enabled {
		return Unsplit{}
	}
	s = NormalizeSettings(s)

	switch {
	case acct == nil || acct.AccountID == "":
		if s.RequireAccount {
			return blockedMissing
		}
		return Unsplit{}
	case !acct.OnboardingComplete():
		if s.RequireAccount {
			return blockedOnboarding
		}
		return Unsplit{}
	}

	return Split{
		Destination: acct.AccountID,
		FeeCents:    Amount(total, s.BasisPoints),
	}
}
