package liquidity

import (
	"math/big"

	"liquidityhub/core/events"
)

// accrual describes one drawn index checkpoint.
type accrual struct {
	previousIndex *big.Int
	nextIndex     *big.Int
	feeValue      *big.Int
	feeShares     *big.Int
}

// computeAccrual derives the index and fee for pool as of now without
// mutating it. The returned fee shares are priced against the post-accrual
// total value excluding the fee itself.
func computeAccrual(pool *AssetPool, shares SharesMath, now uint64) accrual {
	result := accrual{
		previousIndex: cloneInt(pool.DrawnIndex),
		nextIndex:     cloneInt(pool.DrawnIndex),
		feeValue:      big.NewInt(0),
		feeShares:     big.NewInt(0),
	}
	if now <= pool.LastUpdateTimestamp {
		return result
	}
	debtShares := new(big.Int).Add(pool.DrawnShares, pool.PremiumShares)
	if debtShares.Sign() == 0 {
		return result
	}
	factor := linearFactor(pool.DrawnRate, now-pool.LastUpdateTimestamp)
	result.nextIndex = rayMul(pool.DrawnIndex, factor, RoundUp)
	growth := new(big.Int).Sub(result.nextIndex, result.previousIndex)
	if growth.Sign() <= 0 || pool.LiquidityFeeBps == 0 || pool.FeeReceiver == "" {
		return result
	}

	numerator := new(big.Int).Mul(growth, debtShares)
	numerator.Mul(numerator, new(big.Int).SetUint64(pool.LiquidityFeeBps))
	denominator := new(big.Int).Mul(ray, basisPoints)
	result.feeValue = numerator.Quo(numerator, denominator)
	if result.feeValue.Sign() == 0 {
		return result
	}

	accrued := pool.Clone()
	accrued.DrawnIndex = result.nextIndex
	base := new(big.Int).Sub(accrued.TotalValue(), result.feeValue)
	if base.Sign() < 0 {
		base.SetInt64(0)
	}
	result.feeShares = shares.ToShares(result.feeValue, base, pool.AddedShares, RoundDown)
	return result
}

// accrue commits the drawn index as of now onto the transaction's pool and
// credits fee shares to the fee receiver.
func (tx *txn) accrue(now uint64) error {
	pool := tx.pool
	result := computeAccrual(pool, tx.engine.shares, now)
	if now > pool.LastUpdateTimestamp {
		pool.LastUpdateTimestamp = now
	}
	if result.nextIndex.Cmp(result.previousIndex) <= 0 {
		return nil
	}
	pool.DrawnIndex = result.nextIndex

	if result.feeShares.Sign() > 0 {
		receiver, err := tx.participant(pool.FeeReceiver)
		if err != nil {
			return err
		}
		receiver.AddedShares.Add(receiver.AddedShares, result.feeShares)
		pool.AddedShares.Add(pool.AddedShares, result.feeShares)
	}

	tx.emit(events.LiquidityAccrued{
		Asset:         pool.AssetID,
		PreviousIndex: result.previousIndex,
		Index:         cloneInt(result.nextIndex),
		Rate:          cloneInt(pool.DrawnRate),
		FeeReceiver:   pool.FeeReceiver,
		FeeShares:     result.feeShares,
		FeeValue:      result.feeValue,
		Timestamp:     now,
	})
	return nil
}
