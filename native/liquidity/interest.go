package liquidity

import (
	"errors"
	"math/big"
	"sync"
)

// ErrStrategyNotConfigured is returned by a strategy asked to price an asset it
// holds no parameters for.
var ErrStrategyNotConfigured = errors.New("liquidity: strategy not configured for asset")

// InterestRateStrategy maps pool utilisation inputs to an annual borrow rate in
// ray. Implementations must be pure: the ledger calls them on uncommitted
// state and never expects side effects.
type InterestRateStrategy interface {
	CalculateInterestRate(assetID string, liquidity, drawn, premium, swept *big.Int) (*big.Int, error)
}

// InterestModel encapsulates the parameters that shape how interest rates react
// to pool utilisation.
type InterestModel struct {
	// BaseRate is the minimum borrow APR applied when utilisation is zero.
	BaseRate *big.Rat
	// Slope1 is the borrow APR increase per unit of utilisation up to the
	// kink point.
	Slope1 *big.Rat
	// Slope2 governs the additional APR increase applied when utilisation
	// exceeds the kink point.
	Slope2 *big.Rat
	// Kink represents the utilisation ratio where the borrow rate slope
	// changes to encourage liquidity.
	Kink *big.Rat
}

// Clone returns a deep copy of the interest model.
func (m *InterestModel) Clone() *InterestModel {
	if m == nil {
		return nil
	}
	return &InterestModel{
		BaseRate: cloneRat(m.BaseRate),
		Slope1:   cloneRat(m.Slope1),
		Slope2:   cloneRat(m.Slope2),
		Kink:     cloneRat(m.Kink),
	}
}

// NewInterestModel constructs an interest model from basis point inputs, e.g.
// a 2% base rate is 200 and an 80% kink utilisation is 8000.
func NewInterestModel(baseBps, slope1Bps, slope2Bps, kinkBps uint64) *InterestModel {
	return &InterestModel{
		BaseRate: bpsRat(baseBps),
		Slope1:   bpsRat(slope1Bps),
		Slope2:   bpsRat(slope2Bps),
		Kink:     bpsRat(kinkBps),
	}
}

// Utilisation computes drawn / (liquidity + swept + drawn). Swept value stays in
// the denominator because the pool still owns it. Premium debt does not move
// the base rate.
func (m *InterestModel) Utilisation(liquidity, drawn, swept *big.Int) *big.Rat {
	if drawn == nil || drawn.Sign() == 0 {
		return new(big.Rat)
	}
	total := new(big.Int).Add(orZero(liquidity), orZero(swept))
	total.Add(total, drawn)
	if total.Sign() == 0 {
		return new(big.Rat)
	}
	return new(big.Rat).SetFrac(drawn, total)
}

// BorrowAPR derives the kinked borrow APR for the supplied utilisation.
func (m *InterestModel) BorrowAPR(utilisation *big.Rat) *big.Rat {
	if m == nil {
		return new(big.Rat)
	}
	rate := cloneRat(m.BaseRate)
	if utilisation == nil || utilisation.Sign() == 0 {
		return rate
	}
	kink := cloneRat(m.Kink)
	if kink.Sign() == 0 || utilisation.Cmp(kink) <= 0 {
		return rate.Add(rate, new(big.Rat).Mul(cloneRat(m.Slope1), utilisation))
	}

	rate.Add(rate, new(big.Rat).Mul(cloneRat(m.Slope1), kink))
	excess := new(big.Rat).Sub(utilisation, kink)
	return rate.Add(rate, new(big.Rat).Mul(cloneRat(m.Slope2), excess))
}

// SupplyAPY derives the supplier APY net of the liquidity fee.
func (m *InterestModel) SupplyAPY(utilisation *big.Rat, liquidityFeeBps uint64) *big.Rat {
	if m == nil || utilisation == nil || utilisation.Sign() == 0 {
		return new(big.Rat)
	}
	oneMinusFee := new(big.Rat).Sub(big.NewRat(1, 1), bpsRat(liquidityFeeBps))
	if oneMinusFee.Sign() < 0 {
		oneMinusFee.SetInt64(0)
	}
	apy := new(big.Rat).Mul(m.BorrowAPR(utilisation), utilisation)
	return apy.Mul(apy, oneMinusFee)
}

// DefaultInterestModel provides a kinked curve with a modest base rate.
var DefaultInterestModel = NewInterestModel(200, 1_500, 6_000, 8_000)

// KinkedStrategy prices each asset with its own InterestModel.
type KinkedStrategy struct {
	mu     sync.RWMutex
	models map[string]*InterestModel
}

// NewKinkedStrategy returns an empty strategy; assets must be configured with
// SetModel before they can be priced.
func NewKinkedStrategy() *KinkedStrategy {
	return &KinkedStrategy{models: make(map[string]*InterestModel)}
}

// SetModel installs the interest model used for assetID.
func (s *KinkedStrategy) SetModel(assetID string, model *InterestModel) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if model == nil {
		delete(s.models, assetID)
		return
	}
	s.models[assetID] = model.Clone()
}

// Model returns a copy of the model configured for assetID.
func (s *KinkedStrategy) Model(assetID string) (*InterestModel, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	model, ok := s.models[assetID]
	return model.Clone(), ok
}

// CalculateInterestRate implements InterestRateStrategy.
func (s *KinkedStrategy) CalculateInterestRate(assetID string, liquidity, drawn, _, swept *big.Int) (*big.Int, error) {
	model, ok := s.Model(assetID)
	if !ok {
		return nil, ErrStrategyNotConfigured
	}
	apr := model.BorrowAPR(model.Utilisation(liquidity, drawn, swept))
	return ratToRay(apr), nil
}

// linearFactor returns RAY + rate*elapsed/year, the linear interest factor.
func linearFactor(rate *big.Int, elapsed uint64) *big.Int {
	factor := new(big.Int).Set(ray)
	if rate == nil || rate.Sign() == 0 || elapsed == 0 {
		return factor
	}
	growth := new(big.Int).Mul(rate, new(big.Int).SetUint64(elapsed))
	growth.Quo(growth, yearSeconds)
	return factor.Add(factor, growth)
}

func ratToRay(r *big.Rat) *big.Int {
	if r == nil || r.Sign() <= 0 {
		return big.NewInt(0)
	}
	scaled := new(big.Rat).Mul(r, new(big.Rat).SetInt(ray))
	return new(big.Int).Quo(scaled.Num(), scaled.Denom())
}

func bpsRat(bps uint64) *big.Rat {
	return new(big.Rat).SetFrac(new(big.Int).SetUint64(bps), basisPoints)
}

func cloneRat(r *big.Rat) *big.Rat {
	if r == nil {
		return new(big.Rat)
	}
	return new(big.Rat).Set(r)
}
