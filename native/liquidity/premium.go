package liquidity

import (
	"fmt"
	"math/big"
)

// Clone returns a deep copy of the delta.
func (d PremiumDelta) Clone() PremiumDelta {
	return PremiumDelta{
		SharesDelta:    cloneInt(d.SharesDelta),
		OffsetRayDelta: cloneInt(d.OffsetRayDelta),
		RealizedDelta:  cloneInt(d.RealizedDelta),
	}
}

// IsZero reports whether every component of the delta is zero.
func (d PremiumDelta) IsZero() bool {
	return orZero(d.SharesDelta).Sign() == 0 &&
		orZero(d.OffsetRayDelta).Sign() == 0 &&
		orZero(d.RealizedDelta).Sign() == 0
}

// applyPremiumDelta adds delta to the pool and participant premium triples and
// verifies that the participant premium did not shrink beyond what the caller
// declared as restored, nor grow by more than the drift tolerance.
func (tx *txn) applyPremiumDelta(record *ParticipantRecord, delta PremiumDelta, restored *big.Int) error {
	pool := tx.pool
	index := pool.DrawnIndex
	before := record.Owed(index).Premium

	var err error
	if record.PremiumShares, err = applySigned(record.PremiumShares, delta.SharesDelta); err != nil {
		return err
	}
	if record.PremiumOffsetRay, err = applySigned(record.PremiumOffsetRay, delta.OffsetRayDelta); err != nil {
		return err
	}
	if record.RealizedPremium, err = applySigned(record.RealizedPremium, delta.RealizedDelta); err != nil {
		return err
	}
	if pool.PremiumShares, err = applySigned(pool.PremiumShares, delta.SharesDelta); err != nil {
		return err
	}
	if pool.PremiumOffsetRay, err = applySigned(pool.PremiumOffsetRay, delta.OffsetRayDelta); err != nil {
		return err
	}
	if pool.RealizedPremium, err = applySigned(pool.RealizedPremium, delta.RealizedDelta); err != nil {
		return err
	}

	if record.PremiumRay(index).Sign() < 0 || pool.PremiumRay().Sign() < 0 {
		return ErrArithmeticUnderflow
	}
	after := record.Owed(index).Premium
	drift := new(big.Int).Add(after, orZero(restored))
	drift.Sub(drift, before)
	tolerance := new(big.Int).SetUint64(tx.engine.config.PremiumDriftTolerance)
	if drift.Sign() < 0 || drift.Cmp(tolerance) > 0 {
		return fmt.Errorf("%w: drift %s", ErrInvalidPremiumChange, drift)
	}
	return nil
}
