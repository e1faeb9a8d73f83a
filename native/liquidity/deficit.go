package liquidity

import (
	"context"
	"math/big"

	"liquidityhub/core/events"
)

// ReportDeficit writes off drawnAmount of base debt and premiumAmount of
// premium debt owed by participant into the pool deficit. The value stays on
// the pool's books until EliminateDeficit clears it. The burnt drawn shares
// are returned.
func (e *Engine) ReportDeficit(ctx context.Context, assetID, participant string, drawnAmount, premiumAmount *big.Int, delta PremiumDelta) (*big.Int, error) {
	if !nonNegative(drawnAmount) || !nonNegative(premiumAmount) ||
		(!positive(drawnAmount) && !positive(premiumAmount)) {
		return nil, ErrInvalidAmount
	}
	drawnAmount, premiumAmount = orZero(drawnAmount), orZero(premiumAmount)
	var burnt *big.Int
	err := e.run(ctx, "reportDeficit", assetID, func(tx *txn) error {
		record, err := tx.activeParticipant(participant)
		if err != nil {
			return err
		}
		burnt, err = tx.settleDebt(record, drawnAmount, premiumAmount, delta, ErrSurplusDeficitReported)
		if err != nil {
			return err
		}
		reported := new(big.Int).Add(drawnAmount, premiumAmount)
		tx.pool.Deficit = new(big.Int).Add(tx.pool.Deficit, reported)

		tx.emit(events.LiquidityMovement{
			Type:        events.TypeLiquidityDeficitReported,
			Asset:       tx.pool.AssetID,
			Participant: record.Participant,
			Shares:      cloneInt(burnt),
			Value:       cloneInt(drawnAmount),
			Premium:     cloneInt(premiumAmount),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return burnt, nil
}

// EliminateDeficit burns participant supply shares worth amount, rounded up,
// and clears the same value of deficit. The burnt shares are returned.
func (e *Engine) EliminateDeficit(ctx context.Context, assetID, participant string, amount *big.Int) (*big.Int, error) {
	if !positive(amount) {
		return nil, ErrInvalidAmount
	}
	var burnt *big.Int
	err := e.run(ctx, "eliminateDeficit", assetID, func(tx *txn) error {
		if amount.Cmp(tx.pool.Deficit) > 0 {
			return ErrInvalidAmount
		}
		record, err := tx.activeParticipant(participant)
		if err != nil {
			return err
		}
		burnt = tx.toShares(amount, RoundUp)
		if record.AddedShares, err = checkedSub(record.AddedShares, burnt); err != nil {
			return ErrAddedSharesExceeded
		}
		if tx.pool.AddedShares, err = checkedSub(tx.pool.AddedShares, burnt); err != nil {
			return err
		}
		tx.pool.Deficit = new(big.Int).Sub(tx.pool.Deficit, amount)

		tx.emit(events.LiquidityMovement{
			Type:        events.TypeLiquidityDeficitEliminated,
			Asset:       tx.pool.AssetID,
			Participant: record.Participant,
			Shares:      cloneInt(burnt),
			Value:       cloneInt(amount),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return burnt, nil
}

// Sweep moves amount of idle liquidity to the reinvestment controller. Swept
// value still counts towards utilisation.
func (e *Engine) Sweep(ctx context.Context, assetID, caller string, amount *big.Int) error {
	return e.run(ctx, "sweep", assetID, func(tx *txn) error {
		if err := tx.requireController(caller); err != nil {
			return err
		}
		if !positive(amount) || amount.Cmp(tx.pool.Liquidity) > 0 {
			return ErrInvalidSweepAmount
		}
		tx.pool.Liquidity = new(big.Int).Sub(tx.pool.Liquidity, amount)
		tx.pool.Swept = new(big.Int).Add(tx.pool.Swept, amount)
		tx.emit(events.LiquidityMovement{
			Type:        events.TypeLiquiditySwept,
			Asset:       tx.pool.AssetID,
			Participant: caller,
			Value:       cloneInt(amount),
		})
		return nil
	})
}

// Reclaim returns amount of swept value to idle liquidity.
func (e *Engine) Reclaim(ctx context.Context, assetID, caller string, amount *big.Int) error {
	return e.run(ctx, "reclaim", assetID, func(tx *txn) error {
		if err := tx.requireController(caller); err != nil {
			return err
		}
		if !positive(amount) || amount.Cmp(tx.pool.Swept) > 0 {
			return ErrInvalidSweepAmount
		}
		tx.pool.Swept = new(big.Int).Sub(tx.pool.Swept, amount)
		tx.pool.Liquidity = new(big.Int).Add(tx.pool.Liquidity, amount)
		tx.emit(events.LiquidityMovement{
			Type:        events.TypeLiquidityReclaimed,
			Asset:       tx.pool.AssetID,
			Participant: caller,
			Value:       cloneInt(amount),
		})
		return nil
	})
}

func (tx *txn) requireController(caller string) error {
	controller := tx.pool.ReinvestmentController
	if controller == "" || caller != controller {
		return ErrOnlyReinvestmentController
	}
	return nil
}
