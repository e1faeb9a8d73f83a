package liquidity

import (
	"errors"
	"math/big"
	"math/rand"
	"testing"
)

func TestMulDivRounding(t *testing.T) {
	if got := mulDiv(amt(10), amt(3), amt(4), RoundDown); got.Cmp(amt(7)) != 0 {
		t.Fatalf("expected 7, got %s", got)
	}
	if got := mulDiv(amt(10), amt(3), amt(4), RoundUp); got.Cmp(amt(8)) != 0 {
		t.Fatalf("expected 8, got %s", got)
	}
	if got := mulDiv(amt(12), amt(3), amt(4), RoundUp); got.Cmp(amt(9)) != 0 {
		t.Fatalf("exact division must not round up, got %s", got)
	}
	if got := mulDiv(amt(12), amt(3), big.NewInt(0), RoundUp); got.Sign() != 0 {
		t.Fatalf("division by zero should yield zero, got %s", got)
	}
}

func TestBootstrapConversionIsOneToOne(t *testing.T) {
	m := DefaultSharesMath()
	for _, v := range []int64{1, 1000, 123_456_789} {
		if got := m.ToShares(amt(v), big.NewInt(0), big.NewInt(0), RoundDown); got.Cmp(amt(v)) != 0 {
			t.Fatalf("bootstrap shares for %d: got %s", v, got)
		}
		if got := m.ToValue(amt(v), big.NewInt(0), big.NewInt(0), RoundUp); got.Cmp(amt(v)) != 0 {
			t.Fatalf("bootstrap value for %d: got %s", v, got)
		}
	}
}

func TestVirtualOffsetsBluntDonation(t *testing.T) {
	m := DefaultSharesMath()
	// One share outstanding, a large donation inflates the pool value.
	shares := m.ToShares(amt(1_000_000), amt(1_000_001), amt(1), RoundDown)
	if shares.Sign() == 0 {
		t.Fatalf("victim deposit minted zero shares")
	}
	if shares.Cmp(amt(400_000)) < 0 {
		t.Fatalf("victim received too few shares: %s", shares)
	}
}

func TestRoundingSafetyWhenSharesOutnumberValue(t *testing.T) {
	m := DefaultSharesMath()
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 2000; i++ {
		totalValue := big.NewInt(rng.Int63n(1_000_000_000))
		// Keep value per share at or below one.
		totalShares := new(big.Int).Add(totalValue, big.NewInt(rng.Int63n(1_000_000_000)))
		value := big.NewInt(rng.Int63n(10_000_000) + 1)

		low := m.ToValue(m.ToShares(value, totalValue, totalShares, RoundUp), totalValue, totalShares, RoundDown)
		high := m.ToValue(m.ToShares(value, totalValue, totalShares, RoundDown), totalValue, totalShares, RoundUp)
		if low.Cmp(value) > 0 || value.Cmp(high) > 0 {
			t.Fatalf("rounding safety violated: value=%s low=%s high=%s totals=(%s,%s)",
				value, low, high, totalValue, totalShares)
		}
	}
}

func TestRoundingFavoursPool(t *testing.T) {
	m := DefaultSharesMath()
	rng := rand.New(rand.NewSource(11))
	for i := 0; i < 2000; i++ {
		totalShares := big.NewInt(rng.Int63n(1_000_000_000))
		totalValue := new(big.Int).Add(totalShares, big.NewInt(rng.Int63n(5_000_000_000)))
		value := big.NewInt(rng.Int63n(10_000_000) + 1)

		down := m.ToShares(value, totalValue, totalShares, RoundDown)
		up := m.ToShares(value, totalValue, totalShares, RoundUp)
		if down.Cmp(up) > 0 {
			t.Fatalf("down %s exceeds up %s", down, up)
		}
		// Depositing then immediately redeeming never returns more than paid.
		if got := m.ToValue(down, totalValue, totalShares, RoundDown); got.Cmp(value) > 0 {
			t.Fatalf("round trip minted value: in=%s out=%s", value, got)
		}
		// Burning for a withdrawal always covers the value withdrawn.
		if got := m.ToValue(up, totalValue, totalShares, RoundUp); got.Cmp(value) < 0 {
			t.Fatalf("burn under-covered value: in=%s covered=%s", value, got)
		}
	}
}

func TestDebtSharesRounding(t *testing.T) {
	index := new(big.Int).Add(ray, bpsRay(333))
	minted := rayDiv(amt(1000), index, RoundUp)
	if owed := rayMul(minted, index, RoundUp); owed.Cmp(amt(1000)) < 0 {
		t.Fatalf("debt minted below draw: %s", owed)
	}
	owed := rayMul(minted, index, RoundUp)
	if burnt := rayDiv(owed, index, RoundDown); burnt.Cmp(minted) != 0 {
		t.Fatalf("full restore should burn %s shares, burnt %s", minted, burnt)
	}
}

func TestCheckedArithmetic(t *testing.T) {
	if _, err := checkedSub(amt(1), amt(2)); !errors.Is(err, ErrArithmeticUnderflow) {
		t.Fatalf("expected underflow, got %v", err)
	}
	if _, err := applySigned(amt(5), amt(-6)); !errors.Is(err, ErrArithmeticUnderflow) {
		t.Fatalf("expected underflow, got %v", err)
	}
	out, err := applySigned(amt(5), amt(-5))
	if err != nil || out.Sign() != 0 {
		t.Fatalf("expected zero, got %v %v", out, err)
	}
	if !fitsWord(UnlimitedCap()) {
		t.Fatalf("max uint256 must fit")
	}
	if fitsWord(new(big.Int).Add(UnlimitedCap(), big.NewInt(1))) {
		t.Fatalf("2^256 must not fit")
	}
	if fitsWord(amt(-1)) {
		t.Fatalf("negative values must not fit")
	}
}

func TestParseRounding(t *testing.T) {
	if ParseRounding("up") != RoundUp || ParseRounding("down") != RoundDown || ParseRounding("") != RoundDown {
		t.Fatalf("unexpected rounding parse")
	}
	if RoundUp.String() != "up" || RoundDown.String() != "down" {
		t.Fatalf("unexpected rounding names")
	}
}
