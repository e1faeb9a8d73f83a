package liquidity

import (
	"context"
	"math/big"

	"liquidityhub/core/events"
)

func positive(v *big.Int) bool { return v != nil && v.Sign() > 0 }

func nonNegative(v *big.Int) bool { return v == nil || v.Sign() >= 0 }

func (tx *txn) toShares(value *big.Int, rounding Rounding) *big.Int {
	return tx.engine.shares.ToShares(value, tx.pool.TotalValue(), tx.pool.AddedShares, rounding)
}

func (tx *txn) toValue(shares *big.Int, rounding Rounding) *big.Int {
	return tx.engine.shares.ToValue(shares, tx.pool.TotalValue(), tx.pool.AddedShares, rounding)
}

// Add credits amount of idle liquidity to participant and mints supply shares
// rounded down. The minted shares are returned.
func (e *Engine) Add(ctx context.Context, assetID, participant string, amount *big.Int) (*big.Int, error) {
	if !positive(amount) {
		return nil, ErrInvalidAmount
	}
	var minted *big.Int
	err := e.run(ctx, "add", assetID, func(tx *txn) error {
		record, err := tx.activeParticipant(participant)
		if err != nil {
			return err
		}
		minted = tx.toShares(amount, RoundDown)
		if minted.Sign() == 0 {
			return ErrInvalidShares
		}
		held := tx.toValue(record.AddedShares, RoundDown)
		if held.Add(held, amount).Cmp(record.AddCap) > 0 {
			return ErrAddCapExceeded
		}

		record.AddedShares = new(big.Int).Add(record.AddedShares, minted)
		tx.pool.AddedShares = new(big.Int).Add(tx.pool.AddedShares, minted)
		tx.pool.Liquidity = new(big.Int).Add(tx.pool.Liquidity, amount)

		tx.emit(events.LiquidityMovement{
			Type:        events.TypeLiquidityAdded,
			Asset:       tx.pool.AssetID,
			Participant: record.Participant,
			Shares:      cloneInt(minted),
			Value:       cloneInt(amount),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return minted, nil
}

// Remove withdraws amount of idle liquidity on behalf of participant and burns
// the supply shares it represents, rounded up. The burnt shares are returned.
func (e *Engine) Remove(ctx context.Context, assetID, participant string, amount *big.Int) (*big.Int, error) {
	if !positive(amount) {
		return nil, ErrInvalidAmount
	}
	var burnt *big.Int
	err := e.run(ctx, "remove", assetID, func(tx *txn) error {
		record, err := tx.activeParticipant(participant)
		if err != nil {
			return err
		}
		if amount.Cmp(tx.toValue(record.AddedShares, RoundDown)) > 0 {
			return ErrAddedAmountExceeded
		}
		if amount.Cmp(tx.pool.Liquidity) > 0 {
			return ErrInsufficientLiquidity
		}
		burnt = tx.toShares(amount, RoundUp)
		if record.AddedShares, err = checkedSub(record.AddedShares, burnt); err != nil {
			return ErrAddedAmountExceeded
		}
		if tx.pool.AddedShares, err = checkedSub(tx.pool.AddedShares, burnt); err != nil {
			return err
		}
		tx.pool.Liquidity = new(big.Int).Sub(tx.pool.Liquidity, amount)

		tx.emit(events.LiquidityMovement{
			Type:        events.TypeLiquidityRemoved,
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

// Draw lends amount of idle liquidity to participant, minting drawn shares
// rounded up. The minted drawn shares are returned.
func (e *Engine) Draw(ctx context.Context, assetID, participant string, amount *big.Int) (*big.Int, error) {
	if !positive(amount) {
		return nil, ErrInvalidAmount
	}
	var minted *big.Int
	err := e.run(ctx, "draw", assetID, func(tx *txn) error {
		record, err := tx.activeParticipant(participant)
		if err != nil {
			return err
		}
		if amount.Cmp(tx.pool.Liquidity) > 0 {
			return ErrInsufficientLiquidity
		}
		index := tx.pool.DrawnIndex
		minted = rayDiv(amount, index, RoundUp)
		record.DrawnShares = new(big.Int).Add(record.DrawnShares, minted)
		if record.Owed(index).Total().Cmp(record.DrawCap) > 0 {
			return ErrDrawCapExceeded
		}
		tx.pool.DrawnShares = new(big.Int).Add(tx.pool.DrawnShares, minted)
		tx.pool.Liquidity = new(big.Int).Sub(tx.pool.Liquidity, amount)

		tx.emit(events.LiquidityMovement{
			Type:        events.TypeLiquidityDrawn,
			Asset:       tx.pool.AssetID,
			Participant: record.Participant,
			Shares:      cloneInt(minted),
			Value:       cloneInt(amount),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return minted, nil
}

// Restore repays drawnAmount of base debt and premiumAmount of premium debt.
// Drawn shares are burnt rounded down; delta must reduce the participant
// premium by premiumAmount within the drift tolerance. The burnt drawn shares
// are returned.
func (e *Engine) Restore(ctx context.Context, assetID, participant string, drawnAmount, premiumAmount *big.Int, delta PremiumDelta) (*big.Int, error) {
	if !nonNegative(drawnAmount) || !nonNegative(premiumAmount) ||
		(!positive(drawnAmount) && !positive(premiumAmount)) {
		return nil, ErrInvalidAmount
	}
	drawnAmount, premiumAmount = orZero(drawnAmount), orZero(premiumAmount)
	var burnt *big.Int
	err := e.run(ctx, "restore", assetID, func(tx *txn) error {
		record, err := tx.activeParticipant(participant)
		if err != nil {
			return err
		}
		burnt, err = tx.settleDebt(record, drawnAmount, premiumAmount, delta, ErrSurplusAmountRestored)
		if err != nil {
			return err
		}
		repaid := new(big.Int).Add(drawnAmount, premiumAmount)
		tx.pool.Liquidity = new(big.Int).Add(tx.pool.Liquidity, repaid)

		tx.emit(events.LiquidityMovement{
			Type:        events.TypeLiquidityRestored,
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

// settleDebt removes drawn and premium debt from record and the pool. It is
// shared by restore and deficit reporting; surplus is returned when the
// amounts exceed what the participant owes.
func (tx *txn) settleDebt(record *ParticipantRecord, drawnAmount, premiumAmount *big.Int, delta PremiumDelta, surplus error) (*big.Int, error) {
	index := tx.pool.DrawnIndex
	owed := record.Owed(index)
	if drawnAmount.Cmp(owed.Drawn) > 0 || premiumAmount.Cmp(owed.Premium) > 0 {
		return nil, surplus
	}
	burnt := rayDiv(drawnAmount, index, RoundDown)
	var err error
	if record.DrawnShares, err = checkedSub(record.DrawnShares, burnt); err != nil {
		return nil, err
	}
	if tx.pool.DrawnShares, err = checkedSub(tx.pool.DrawnShares, burnt); err != nil {
		return nil, err
	}
	if err := tx.applyPremiumDelta(record, delta, premiumAmount); err != nil {
		return nil, err
	}
	return burnt, nil
}

// TransferShares moves supply shares between two active participants of the
// same asset. Pool aggregates are unchanged.
func (e *Engine) TransferShares(ctx context.Context, assetID, from, to string, shares *big.Int) error {
	if !positive(shares) || from == to {
		return ErrInvalidAmount
	}
	return e.run(ctx, "transfer", assetID, func(tx *txn) error {
		sender, err := tx.activeParticipant(from)
		if err != nil {
			return err
		}
		receiver, err := tx.activeParticipant(to)
		if err != nil {
			return err
		}
		if sender.AddedShares, err = checkedSub(sender.AddedShares, shares); err != nil {
			return ErrAddedSharesExceeded
		}
		receiver.AddedShares = new(big.Int).Add(receiver.AddedShares, shares)
		if tx.toValue(receiver.AddedShares, RoundDown).Cmp(receiver.AddCap) > 0 {
			return ErrAddCapExceeded
		}

		tx.emit(events.LiquidityMovement{
			Type:         events.TypeLiquiditySharesTransferred,
			Asset:        tx.pool.AssetID,
			Participant:  sender.Participant,
			Counterparty: receiver.Participant,
			Shares:       cloneInt(shares),
			Value:        tx.toValue(shares, RoundDown),
		})
		return nil
	})
}

// RefreshPremium applies a premium delta computed by the risk collaborator.
// The participant premium may not shrink, and may grow by at most the drift
// tolerance.
func (e *Engine) RefreshPremium(ctx context.Context, assetID, participant string, delta PremiumDelta) error {
	return e.run(ctx, "refreshPremium", assetID, func(tx *txn) error {
		record, err := tx.activeParticipant(participant)
		if err != nil {
			return err
		}
		if err := tx.applyPremiumDelta(record, delta, nil); err != nil {
			return err
		}
		tx.emit(events.LiquidityPremiumRefreshed{
			Asset:          tx.pool.AssetID,
			Participant:    record.Participant,
			SharesDelta:    cloneInt(orZero(delta.SharesDelta)),
			OffsetRayDelta: cloneInt(orZero(delta.OffsetRayDelta)),
			RealizedDelta:  cloneInt(orZero(delta.RealizedDelta)),
		})
		return nil
	})
}
