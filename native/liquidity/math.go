package liquidity

import (
	"math/big"

	"github.com/holiman/uint256"
)

// Rounding selects the direction applied when a conversion truncates.
type Rounding uint8

const (
	// RoundDown truncates towards zero.
	RoundDown Rounding = iota
	// RoundUp rounds any remainder away from zero.
	RoundUp
)

func (r Rounding) String() string {
	if r == RoundUp {
		return "up"
	}
	return "down"
}

// ParseRounding maps "up"/"down" to a Rounding. Unknown values round down.
func ParseRounding(value string) Rounding {
	if value == "up" {
		return RoundUp
	}
	return RoundDown
}

const secondsPerYear = 31_536_000

var (
	basisPoints = big.NewInt(10_000)
	ray         = mustBigInt("1000000000000000000000000000") // 1e27 precision
	yearSeconds = big.NewInt(secondsPerYear)

	// DefaultVirtualShares and DefaultVirtualAssets offset every supply-side
	// conversion. Equal offsets keep the bootstrap rate at exactly 1:1 while
	// making a donation-driven first-deposit inflation unprofitable.
	DefaultVirtualShares = big.NewInt(1_000_000)
	DefaultVirtualAssets = big.NewInt(1_000_000)
)

// Ray returns a copy of the 1e27 fixed-point unit.
func Ray() *big.Int { return new(big.Int).Set(ray) }

func mustBigInt(value string) *big.Int {
	v, ok := new(big.Int).SetString(value, 10)
	if !ok {
		panic("invalid big integer constant")
	}
	return v
}

// mulDiv computes a*b/d with the requested rounding. Inputs are non-negative.
func mulDiv(a, b, d *big.Int, rounding Rounding) *big.Int {
	if a == nil || b == nil || d == nil || d.Sign() == 0 {
		return big.NewInt(0)
	}
	product := new(big.Int).Mul(a, b)
	quotient, remainder := new(big.Int).QuoRem(product, d, new(big.Int))
	if rounding == RoundUp && remainder.Sign() > 0 {
		quotient.Add(quotient, big.NewInt(1))
	}
	return quotient
}

// ceilDiv divides a signed numerator by a positive denominator rounding
// towards positive infinity.
func ceilDiv(n, d *big.Int) *big.Int {
	quotient, modulus := new(big.Int).DivMod(n, d, new(big.Int))
	if modulus.Sign() > 0 {
		quotient.Add(quotient, big.NewInt(1))
	}
	return quotient
}

func rayMul(a, b *big.Int, rounding Rounding) *big.Int {
	return mulDiv(a, b, ray, rounding)
}

func rayDiv(a, b *big.Int, rounding Rounding) *big.Int {
	return mulDiv(a, ray, b, rounding)
}

func percentMul(value *big.Int, bps uint64, rounding Rounding) *big.Int {
	return mulDiv(value, new(big.Int).SetUint64(bps), basisPoints, rounding)
}

// SharesMath converts between supply shares and value using virtual offsets.
type SharesMath struct {
	VirtualShares *big.Int
	VirtualAssets *big.Int
}

// DefaultSharesMath returns the conversion used when no offsets are configured.
func DefaultSharesMath() SharesMath {
	return SharesMath{
		VirtualShares: new(big.Int).Set(DefaultVirtualShares),
		VirtualAssets: new(big.Int).Set(DefaultVirtualAssets),
	}
}

// ToShares converts value into shares against the supplied totals.
func (m SharesMath) ToShares(value, totalValue, totalShares *big.Int, rounding Rounding) *big.Int {
	shares := new(big.Int).Add(orZero(totalShares), orZero(m.VirtualShares))
	assets := new(big.Int).Add(orZero(totalValue), orZero(m.VirtualAssets))
	if assets.Sign() == 0 {
		return new(big.Int).Set(orZero(value))
	}
	return mulDiv(orZero(value), shares, assets, rounding)
}

// ToValue converts shares into value against the supplied totals.
func (m SharesMath) ToValue(shares, totalValue, totalShares *big.Int, rounding Rounding) *big.Int {
	supply := new(big.Int).Add(orZero(totalShares), orZero(m.VirtualShares))
	assets := new(big.Int).Add(orZero(totalValue), orZero(m.VirtualAssets))
	if supply.Sign() == 0 {
		return new(big.Int).Set(orZero(shares))
	}
	return mulDiv(orZero(shares), assets, supply, rounding)
}

// fitsWord reports whether v is a non-negative integer representable in 256 bits.
func fitsWord(v *big.Int) bool {
	if v == nil {
		return true
	}
	if v.Sign() < 0 {
		return false
	}
	_, overflow := uint256.FromBig(v)
	return !overflow
}

// checkedSub returns a-b and fails instead of going negative.
func checkedSub(a, b *big.Int) (*big.Int, error) {
	out := new(big.Int).Sub(orZero(a), orZero(b))
	if out.Sign() < 0 {
		return nil, ErrArithmeticUnderflow
	}
	return out, nil
}

// applySigned adds a signed delta to an unsigned field.
func applySigned(field, delta *big.Int) (*big.Int, error) {
	out := new(big.Int).Add(orZero(field), orZero(delta))
	if out.Sign() < 0 {
		return nil, ErrArithmeticUnderflow
	}
	return out, nil
}
