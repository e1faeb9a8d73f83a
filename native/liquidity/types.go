package liquidity

import "math/big"

// AssetPool captures the aggregate accounting state for one listed asset. All
// amounts are denominated in the asset's smallest indivisible unit; indexes and
// rates carry ray (1e27) precision.
type AssetPool struct {
	// AssetID is the unique identifier of the listed asset.
	AssetID string
	// Liquidity is the value currently idle and withdrawable.
	Liquidity *big.Int
	// AddedShares is the total supply-side ownership claim over the pool.
	AddedShares *big.Int
	// DrawnShares tracks base debt as shares of DrawnIndex.
	DrawnShares *big.Int
	// DrawnIndex is the cumulative linear-interest index since listing.
	DrawnIndex *big.Int
	// DrawnRate is the annual borrow rate in ray last produced by the
	// interest rate strategy.
	DrawnRate *big.Int
	// PremiumShares, PremiumOffsetRay and RealizedPremium form the
	// premium-debt triple maintained by the risk collaborator through signed
	// deltas. The offset carries ray precision so the pool premium is the
	// exact sum of the participant premiums before rounding.
	PremiumShares    *big.Int
	PremiumOffsetRay *big.Int
	RealizedPremium  *big.Int
	// Deficit is bad debt removed from participants but not yet cleared.
	Deficit *big.Int
	// Swept is value deployed to the reinvestment controller.
	Swept *big.Int
	// LastUpdateTimestamp is the unix second of the last accrual.
	LastUpdateTimestamp uint64
	// LiquidityFeeBps is the share of accrued interest minted to FeeReceiver,
	// expressed in basis points.
	LiquidityFeeBps uint64
	// Strategy names the registered InterestRateStrategy used by the pool.
	Strategy string
	// FeeReceiver is the participant credited with fee shares.
	FeeReceiver string
	// ReinvestmentController is the only caller allowed to sweep and reclaim.
	ReinvestmentController string
}

// ParticipantRecord mirrors the pool fields scoped to one participant.
type ParticipantRecord struct {
	AssetID          string
	Participant      string
	AddedShares      *big.Int
	DrawnShares      *big.Int
	PremiumShares    *big.Int
	PremiumOffsetRay *big.Int
	RealizedPremium  *big.Int
	// AddCap bounds the value of the participant's supply claim.
	AddCap *big.Int
	// DrawCap bounds the participant's drawn plus premium debt.
	DrawCap *big.Int
	Active  bool
}

// PremiumDelta is the signed adjustment applied to a premium-debt triple.
// OffsetRayDelta is expressed in ray units. Nil fields are treated as zero.
type PremiumDelta struct {
	SharesDelta    *big.Int
	OffsetRayDelta *big.Int
	RealizedDelta  *big.Int
}

// AssetConfig carries the administrative parameters of a pool.
type AssetConfig struct {
	LiquidityFeeBps        uint64
	Strategy               string
	FeeReceiver            string
	ReinvestmentController string
}

// ParticipantConfig carries the administrative parameters of a participant.
type ParticipantConfig struct {
	AddCap  *big.Int
	DrawCap *big.Int
	Active  bool
}

// Owed reports the outstanding debt of a participant split into its drawn and
// premium components.
type Owed struct {
	Drawn   *big.Int
	Premium *big.Int
}

// Total returns drawn plus premium.
func (o Owed) Total() *big.Int {
	return new(big.Int).Add(orZero(o.Drawn), orZero(o.Premium))
}

// Clone returns a deep copy of the pool.
func (p *AssetPool) Clone() *AssetPool {
	if p == nil {
		return nil
	}
	clone := *p
	clone.Liquidity = cloneInt(p.Liquidity)
	clone.AddedShares = cloneInt(p.AddedShares)
	clone.DrawnShares = cloneInt(p.DrawnShares)
	clone.DrawnIndex = cloneInt(p.DrawnIndex)
	clone.DrawnRate = cloneInt(p.DrawnRate)
	clone.PremiumShares = cloneInt(p.PremiumShares)
	clone.PremiumOffsetRay = cloneInt(p.PremiumOffsetRay)
	clone.RealizedPremium = cloneInt(p.RealizedPremium)
	clone.Deficit = cloneInt(p.Deficit)
	clone.Swept = cloneInt(p.Swept)
	return &clone
}

// Clone returns a deep copy of the participant record.
func (r *ParticipantRecord) Clone() *ParticipantRecord {
	if r == nil {
		return nil
	}
	clone := *r
	clone.AddedShares = cloneInt(r.AddedShares)
	clone.DrawnShares = cloneInt(r.DrawnShares)
	clone.PremiumShares = cloneInt(r.PremiumShares)
	clone.PremiumOffsetRay = cloneInt(r.PremiumOffsetRay)
	clone.RealizedPremium = cloneInt(r.RealizedPremium)
	clone.AddCap = cloneInt(r.AddCap)
	clone.DrawCap = cloneInt(r.DrawCap)
	return &clone
}

// ensureDefaults populates nil big.Int fields so arithmetic and encoding are safe.
func (p *AssetPool) ensureDefaults() {
	p.Liquidity = orZero(p.Liquidity)
	p.AddedShares = orZero(p.AddedShares)
	p.DrawnShares = orZero(p.DrawnShares)
	if p.DrawnIndex == nil || p.DrawnIndex.Sign() == 0 {
		p.DrawnIndex = new(big.Int).Set(ray)
	}
	p.DrawnRate = orZero(p.DrawnRate)
	p.PremiumShares = orZero(p.PremiumShares)
	p.PremiumOffsetRay = orZero(p.PremiumOffsetRay)
	p.RealizedPremium = orZero(p.RealizedPremium)
	p.Deficit = orZero(p.Deficit)
	p.Swept = orZero(p.Swept)
}

func (r *ParticipantRecord) ensureDefaults() {
	r.AddedShares = orZero(r.AddedShares)
	r.DrawnShares = orZero(r.DrawnShares)
	r.PremiumShares = orZero(r.PremiumShares)
	r.PremiumOffsetRay = orZero(r.PremiumOffsetRay)
	r.RealizedPremium = orZero(r.RealizedPremium)
	r.AddCap = orZero(r.AddCap)
	r.DrawCap = orZero(r.DrawCap)
}

// DrawnValue returns the base debt of the pool, rounded up.
func (p *AssetPool) DrawnValue() *big.Int {
	return rayMul(p.DrawnShares, p.DrawnIndex, RoundUp)
}

// PremiumValue returns the outstanding premium debt of the pool. The result is
// negative only when the premium triple was corrupted.
func (p *AssetPool) PremiumValue() *big.Int {
	return premiumValue(p.PremiumShares, p.PremiumOffsetRay, p.RealizedPremium, p.DrawnIndex)
}

// PremiumRay returns premiumShares*drawnIndex - premiumOffsetRay, the
// unrounded premium debt of the pool excluding realized premium.
func (p *AssetPool) PremiumRay() *big.Int {
	return premiumRay(p.PremiumShares, p.PremiumOffsetRay, p.DrawnIndex)
}

// TotalValue returns liquidity + swept + deficit + drawn + premium.
func (p *AssetPool) TotalValue() *big.Int {
	total := new(big.Int).Add(p.Liquidity, p.Swept)
	total.Add(total, p.Deficit)
	total.Add(total, p.DrawnValue())
	total.Add(total, p.PremiumValue())
	return total
}

// Owed returns the participant debt at the supplied drawn index.
func (r *ParticipantRecord) Owed(drawnIndex *big.Int) Owed {
	return Owed{
		Drawn:   rayMul(r.DrawnShares, drawnIndex, RoundUp),
		Premium: premiumValue(r.PremiumShares, r.PremiumOffsetRay, r.RealizedPremium, drawnIndex),
	}
}

// PremiumRay is the participant counterpart of AssetPool.PremiumRay.
func (r *ParticipantRecord) PremiumRay(drawnIndex *big.Int) *big.Int {
	return premiumRay(r.PremiumShares, r.PremiumOffsetRay, drawnIndex)
}

func premiumRay(shares, offsetRay, index *big.Int) *big.Int {
	out := new(big.Int).Mul(orZero(shares), orZero(index))
	return out.Sub(out, orZero(offsetRay))
}

// premiumValue rounds the ray premium up to whole units and adds the realized
// premium. Rounding happens once per record, after the exact subtraction.
func premiumValue(shares, offsetRay, realized, index *big.Int) *big.Int {
	value := ceilDiv(premiumRay(shares, offsetRay, index), ray)
	return value.Add(value, orZero(realized))
}

func cloneInt(v *big.Int) *big.Int {
	if v == nil {
		return nil
	}
	return new(big.Int).Set(v)
}

func orZero(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return v
}
