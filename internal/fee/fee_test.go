package fee

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliamunaev/checkout-core/internal/apperr"
	"github.com/iliamunaev/checkout-core/internal/model"
)

func TestAmount(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		amount int64
		bps    int
		want   int64
	}{
		{name: "ten_percent", amount: 10000, bps: 1000, want: 1000},
		{name: "floors", amount: 50, bps: 1000, want: 5},
		{name: "floors_fraction", amount: 59, bps: 1000, want: 5},
		{name: "negative_amount", amount: -5, bps: 1000, want: 0},
		{name: "zero_bps", amount: 10000, bps: 0, want: 0},
		{name: "negative_bps", amount: 10000, bps: -10, want: 0},
		{name: "full", amount: 777, bps: 10000, want: 777},
		{name: "over_max_clamped", amount: 777, bps: 25000, want: 777},
		{name: "huge_amount", amount: math.MaxInt64, bps: 10000, want: math.MaxInt64},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := Amount(tt.amount, tt.bps); got != tt.want {
				t.Fatalf("expected %d, got %d", tt.want, got)
			}
		})
	}
}

func FuzzAmount(f *testing.F) {
	f.Add(int64(10000), 1000)
	f.Add(int64(50), 1000)
	f.Add(int64(-5), 1000)
	f.Add(int64(1), 9999)

	f.Fuzz(func(t *testing.T, amount int64, bps int) {
		got := Amount(amount, bps)
		if got < 0 {
			t.Fatalf("negative fee %d", got)
		}
		if amount > 0 && got > amount {
			t.Fatalf("fee %d exceeds amount %d", got, amount)
		}
		if amount <= 0 || bps <= 0 {
			if got != 0 {
				t.Fatalf("expected 0, got %d", got)
			}
			return
		}
		if amount < math.MaxInt64 && Amount(amount+1, bps) < got {
			t.Fatalf("not monotonic in amount at %d/%d", amount, bps)
		}
		if bps < math.MaxInt32 && Amount(amount, bps+1) < got {
			t.Fatalf("not monotonic in bps at %d/%d", amount, bps)
		}
	})
}

func BenchmarkAmount(b *testing.B) {
	for i := 0; i < b.N; i++ {
		_ = Amount(int64(i), 1000)
	}
}

func TestDecide(t *testing.T) {
	t.Parallel()

	complete := &model.ConnectAccount{
		AccountID:        "acct_1",
		ChargesEnabled:   true,
		PayoutsEnabled:   true,
		DetailsSubmitted: true,
	}
	incomplete := &model.ConnectAccount{AccountID: "acct_2", ChargesEnabled: true}

	on := model.FeeSettings{Enabled: true, BasisPoints: 1000}
	required := model.FeeSettings{Enabled: true, BasisPoints: 1000, RequireAccount: true}

	tests := []struct {
		name     string
		settings model.FeeSettings
		acct     *model.ConnectAccount
		want     Decision
	}{
		{name: "disabled", settings: model.FeeSettings{RequireAccount: true}, acct: nil, want: Unsplit{}},
		{name: "missing_optional", settings: on, acct: nil, want: Unsplit{}},
		{name: "missing_required", settings: required, acct: nil, want: blockedMissing},
		{name: "incomplete_optional", settings: on, acct: incomplete, want: Unsplit{}},
		{name: "incomplete_required", settings: required, acct: incomplete, want: blockedOnboarding},
		{name: "split", settings: required, acct: complete, want: Split{Destination: "acct_1", FeeCents: 324}},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tt.want, Decide(tt.settings, tt.acct, 3240))
		})
	}
}

func TestBlockedErrCarriesCode(t *testing.T) {
	t.Parallel()

	err := blockedMissing.Err()
	require.True(t, errors.Is(err, apperr.ErrSellerConnectMissing))
	assert.Equal(t, "seller_connect_missing", apperr.Kind(err))

	err = blockedOnboarding.Err()
	assert.Equal(t, "seller_onboarding_incomplete", apperr.Kind(err))
}

func TestSplitFeeNeverExceedsTotal(t *testing.T) {
	t.Parallel()

	acct := &model.ConnectAccount{AccountID: "a", ChargesEnabled: true, PayoutsEnabled: true, DetailsSubmitted: true}
	for _, total := range []int64{0, 1, 9, 10, 99, 3240, 1 << 40} {
		d := Decide(model.FeeSettings{Enabled: true, BasisPoints: 20000}, acct, total)
		s, ok := d.(Split)
		require.True(t, ok)
		assert.LessOrEqual(t, s.FeeCents, total)
	}
}
