package liquidity

import (
	"errors"
	"math/big"
	"testing"
	"time"
)

func premiumHarness(t *testing.T) *harness {
	t.Helper()
	h := newHarness(t, AssetConfig{})
	h.add("alice", 10_000)
	h.draw("bob", 1_000)
	err := h.engine.RefreshPremium(h.ctx, testAsset, "bob", PremiumDelta{
		SharesDelta:    amt(100),
		OffsetRayDelta: rayAmt(100),
	})
	if err != nil {
		t.Fatalf("open premium: %v", err)
	}
	h.advance(year)
	return h
}

func (h *harness) premiumOwed(id string) *big.Int {
	h.t.Helper()
	owed, err := h.engine.ParticipantOwed(h.ctx, testAsset, id)
	if err != nil {
		h.t.Fatalf("owed: %v", err)
	}
	return owed.Premium
}

func TestPremiumAccruesWithIndex(t *testing.T) {
	h := premiumHarness(t)
	if got := h.premiumOwed("bob"); got.Cmp(amt(5)) != 0 {
		t.Fatalf("expected premium 5 after a year at 5%%, got %s", got)
	}
	premium, err := h.engine.Premium(h.ctx, testAsset)
	if err != nil {
		t.Fatalf("pool premium: %v", err)
	}
	if premium.Cmp(amt(5)) != 0 {
		t.Fatalf("expected pool premium 5, got %s", premium)
	}
}

func TestRefreshPremiumDriftBound(t *testing.T) {
	h := premiumHarness(t)

	tests := []struct {
		name  string
		delta PremiumDelta
		err   error
	}{
		{name: "growth beyond tolerance", delta: PremiumDelta{RealizedDelta: amt(3)}, err: ErrInvalidPremiumChange},
		{name: "silent reduction", delta: PremiumDelta{SharesDelta: amt(-100), OffsetRayDelta: rayAmt(-100)}, err: ErrInvalidPremiumChange},
		{name: "negative beyond field", delta: PremiumDelta{SharesDelta: amt(-200)}, err: ErrArithmeticUnderflow},
		{name: "offset underflow", delta: PremiumDelta{OffsetRayDelta: rayAmt(-101)}, err: ErrArithmeticUnderflow},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := h.engine.RefreshPremium(h.ctx, testAsset, "bob", tc.delta)
			if !errors.Is(err, tc.err) {
				t.Fatalf("expected %v, got %v", tc.err, err)
			}
		})
	}
	if got := h.premiumOwed("bob"); got.Cmp(amt(5)) != 0 {
		t.Fatalf("rejected deltas changed premium to %s", got)
	}

	if err := h.engine.RefreshPremium(h.ctx, testAsset, "bob", PremiumDelta{RealizedDelta: amt(2)}); err != nil {
		t.Fatalf("growth within tolerance: %v", err)
	}
	if got := h.premiumOwed("bob"); got.Cmp(amt(7)) != 0 {
		t.Fatalf("expected premium 7, got %s", got)
	}
	h.checkShareConservation()
}

func TestRestorePremium(t *testing.T) {
	h := premiumHarness(t)
	liquidityBefore := h.pool().Liquidity

	if _, err := h.engine.Restore(h.ctx, testAsset, "bob", nil, amt(5), PremiumDelta{}); !errors.Is(err, ErrInvalidPremiumChange) {
		t.Fatalf("restoring premium without a delta must fail, got %v", err)
	}
	if _, err := h.engine.Restore(h.ctx, testAsset, "bob", nil, amt(6), PremiumDelta{}); !errors.Is(err, ErrSurplusAmountRestored) {
		t.Fatalf("expected ErrSurplusAmountRestored, got %v", err)
	}

	delta := PremiumDelta{SharesDelta: amt(-100), OffsetRayDelta: rayAmt(-100)}
	if _, err := h.engine.Restore(h.ctx, testAsset, "bob", nil, amt(5), delta); err != nil {
		t.Fatalf("restore premium: %v", err)
	}
	if got := h.premiumOwed("bob"); got.Sign() != 0 {
		t.Fatalf("premium should be settled, got %s", got)
	}
	if got := new(big.Int).Sub(h.pool().Liquidity, liquidityBefore); got.Cmp(amt(5)) != 0 {
		t.Fatalf("liquidity should grow by restored premium, grew %s", got)
	}
	record := h.participant("bob")
	if record.PremiumShares.Sign() != 0 || record.PremiumOffsetRay.Sign() != 0 || record.RealizedPremium.Sign() != 0 {
		t.Fatalf("premium triple not cleared: %+v", record)
	}
	h.checkShareConservation()
}

func TestReportPremiumDeficit(t *testing.T) {
	h := premiumHarness(t)
	delta := PremiumDelta{SharesDelta: amt(-100), OffsetRayDelta: rayAmt(-100)}
	if _, err := h.engine.ReportDeficit(h.ctx, testAsset, "bob", nil, amt(5), delta); err != nil {
		t.Fatalf("report premium deficit: %v", err)
	}
	if h.pool().Deficit.Cmp(amt(5)) != 0 {
		t.Fatalf("expected deficit 5, got %s", h.pool().Deficit)
	}
	if got := h.premiumOwed("bob"); got.Sign() != 0 {
		t.Fatalf("premium should move into deficit, got %s", got)
	}
}

func TestPremiumAggregatesAcrossParticipantsAtFractionalIndex(t *testing.T) {
	h := newHarness(t, AssetConfig{})
	h.add("alice", 1_000_000)
	h.draw("alice", 500_000)
	h.advance(year)
	pool, err := h.engine.Accrue(h.ctx, testAsset)
	if err != nil {
		t.Fatalf("accrue: %v", err)
	}
	index := pool.DrawnIndex
	if new(big.Int).Mod(index, ray).Sign() == 0 {
		t.Fatalf("index %s should not be a whole multiple of ray", index)
	}

	// One share opened at the current index carries no premium for anyone.
	flat := PremiumDelta{SharesDelta: amt(1), OffsetRayDelta: new(big.Int).Set(index)}
	for _, id := range []string{"bob", "carol", "alice"} {
		if err := h.engine.RefreshPremium(h.ctx, testAsset, id, flat.Clone()); err != nil {
			t.Fatalf("refresh %s: %v", id, err)
		}
		if got := h.premiumOwed(id); got.Sign() != 0 {
			t.Fatalf("%s premium should stay 0, got %s", id, got)
		}
	}
	if premium := h.pool().PremiumValue(); premium.Sign() != 0 {
		t.Fatalf("pool premium should be 0, got %s", premium)
	}

	// Unhedged shares round up per record; the pool never falls below zero
	// nor above the participant sum.
	for _, id := range []string{"bob", "carol", "alice"} {
		if err := h.engine.RefreshPremium(h.ctx, testAsset, id, PremiumDelta{SharesDelta: amt(1)}); err != nil {
			t.Fatalf("grow %s: %v", id, err)
		}
	}
	h.advance(37 * 24 * time.Hour)
	if _, err := h.engine.Accrue(h.ctx, testAsset); err != nil {
		t.Fatalf("accrue: %v", err)
	}
	pool = h.pool()
	records, err := h.engine.Participants(h.ctx, testAsset)
	if err != nil {
		t.Fatalf("participants: %v", err)
	}
	sumRay, sumValue := new(big.Int), new(big.Int)
	for _, record := range records {
		sumRay.Add(sumRay, record.PremiumRay(pool.DrawnIndex))
		sumValue.Add(sumValue, record.Owed(pool.DrawnIndex).Premium)
	}
	if sumRay.Cmp(pool.PremiumRay()) != 0 {
		t.Fatalf("pool premium %s != participant sum %s at ray precision", pool.PremiumRay(), sumRay)
	}
	premium := pool.PremiumValue()
	if premium.Sign() <= 0 || premium.Cmp(sumValue) > 0 {
		t.Fatalf("pool premium %s outside (0, %s]", premium, sumValue)
	}
	h.checkShareConservation()
}

func TestPremiumToleranceConfigurable(t *testing.T) {
	h := premiumHarness(t)
	h.engine.config.PremiumDriftTolerance = 5
	if err := h.engine.RefreshPremium(h.ctx, testAsset, "bob", PremiumDelta{RealizedDelta: amt(5)}); err != nil {
		t.Fatalf("growth within widened tolerance: %v", err)
	}
	if err := h.engine.RefreshPremium(h.ctx, testAsset, "bob", PremiumDelta{RealizedDelta: amt(6)}); !errors.Is(err, ErrInvalidPremiumChange) {
		t.Fatalf("expected ErrInvalidPremiumChange, got %v", err)
	}
}

func TestPremiumDeltaHelpers(t *testing.T) {
	if !(PremiumDelta{}).IsZero() {
		t.Fatalf("empty delta should be zero")
	}
	delta := PremiumDelta{SharesDelta: amt(-3)}
	clone := delta.Clone()
	clone.SharesDelta.SetInt64(9)
	if delta.SharesDelta.Int64() != -3 || delta.IsZero() {
		t.Fatalf("clone aliased the original delta")
	}
}
