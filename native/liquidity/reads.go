package liquidity

import (
	"context"
	"math/big"
	"sort"
	"strings"
)

// Pool returns the pool for assetID as last committed.
func (e *Engine) Pool(ctx context.Context, assetID string) (*AssetPool, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	pool, err := e.state.GetPool(ctx, strings.TrimSpace(assetID))
	if err != nil {
		return nil, err
	}
	if pool == nil {
		return nil, ErrAssetNotListed
	}
	pool = pool.Clone()
	pool.ensureDefaults()
	return pool, nil
}

// Pools returns every listed pool ordered by asset id.
func (e *Engine) Pools(ctx context.Context) ([]*AssetPool, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	pools, err := e.state.ListPools(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*AssetPool, 0, len(pools))
	for _, pool := range pools {
		clone := pool.Clone()
		clone.ensureDefaults()
		out = append(out, clone)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AssetID < out[j].AssetID })
	return out, nil
}

// Participant returns the committed record of participant for assetID.
func (e *Engine) Participant(ctx context.Context, assetID, participant string) (*ParticipantRecord, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	record, err := e.state.GetParticipant(ctx, strings.TrimSpace(assetID), strings.TrimSpace(participant))
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, ErrParticipantNotFound
	}
	record = record.Clone()
	record.ensureDefaults()
	return record, nil
}

// Participants returns every record of assetID ordered by participant id.
func (e *Engine) Participants(ctx context.Context, assetID string) ([]*ParticipantRecord, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	records, err := e.state.ListParticipants(ctx, strings.TrimSpace(assetID))
	if err != nil {
		return nil, err
	}
	out := make([]*ParticipantRecord, 0, len(records))
	for _, record := range records {
		clone := record.Clone()
		clone.ensureDefaults()
		out = append(out, clone)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Participant < out[j].Participant })
	return out, nil
}

// viewPool returns the pool as an operation would see it now: index accrued
// and pending fee shares included, nothing committed.
func (e *Engine) viewPool(ctx context.Context, assetID string) (*AssetPool, error) {
	pool, _, err := e.viewAccrual(ctx, assetID)
	return pool, err
}

func (e *Engine) viewAccrual(ctx context.Context, assetID string) (*AssetPool, *big.Int, error) {
	pool, err := e.Pool(ctx, assetID)
	if err != nil {
		return nil, nil, err
	}
	now := e.timestamp()
	result := computeAccrual(pool, e.shares, now)
	pool.DrawnIndex = result.nextIndex
	pool.AddedShares.Add(pool.AddedShares, result.feeShares)
	if now > pool.LastUpdateTimestamp {
		pool.LastUpdateTimestamp = now
	}
	return pool, result.feeShares, nil
}

// viewParticipant pairs viewPool with the participant record, crediting the
// fee receiver with the fee shares the pending accrual would mint.
func (e *Engine) viewParticipant(ctx context.Context, assetID, participant string) (*AssetPool, *ParticipantRecord, error) {
	pool, feeShares, err := e.viewAccrual(ctx, assetID)
	if err != nil {
		return nil, nil, err
	}
	participant = strings.TrimSpace(participant)
	record, err := e.Participant(ctx, assetID, participant)
	if err != nil {
		return nil, nil, err
	}
	if participant == pool.FeeReceiver && feeShares.Sign() > 0 {
		record.AddedShares.Add(record.AddedShares, feeShares)
	}
	return pool, record, nil
}

// TotalValue returns liquidity + swept + deficit + drawn + premium as of now.
func (e *Engine) TotalValue(ctx context.Context, assetID string) (*big.Int, error) {
	pool, err := e.viewPool(ctx, assetID)
	if err != nil {
		return nil, err
	}
	return pool.TotalValue(), nil
}

// Drawn returns the pool base debt as of now.
func (e *Engine) Drawn(ctx context.Context, assetID string) (*big.Int, error) {
	pool, err := e.viewPool(ctx, assetID)
	if err != nil {
		return nil, err
	}
	return pool.DrawnValue(), nil
}

// Premium returns the pool premium debt as of now.
func (e *Engine) Premium(ctx context.Context, assetID string) (*big.Int, error) {
	pool, err := e.viewPool(ctx, assetID)
	if err != nil {
		return nil, err
	}
	return pool.PremiumValue(), nil
}

// ParticipantOwed returns the debt of participant as of now.
func (e *Engine) ParticipantOwed(ctx context.Context, assetID, participant string) (Owed, error) {
	pool, err := e.viewPool(ctx, assetID)
	if err != nil {
		return Owed{}, err
	}
	record, err := e.Participant(ctx, assetID, participant)
	if err != nil {
		return Owed{}, err
	}
	return record.Owed(pool.DrawnIndex), nil
}

// AddedValue returns the value of the participant supply claim, rounded down.
func (e *Engine) AddedValue(ctx context.Context, assetID, participant string) (*big.Int, error) {
	pool, record, err := e.viewParticipant(ctx, assetID, participant)
	if err != nil {
		return nil, err
	}
	return e.shares.ToValue(record.AddedShares, pool.TotalValue(), pool.AddedShares, RoundDown), nil
}

// WithdrawableValue returns the largest amount participant could remove now:
// its supply claim bounded by idle liquidity.
func (e *Engine) WithdrawableValue(ctx context.Context, assetID, participant string) (*big.Int, error) {
	pool, record, err := e.viewParticipant(ctx, assetID, participant)
	if err != nil {
		return nil, err
	}
	claim := e.shares.ToValue(record.AddedShares, pool.TotalValue(), pool.AddedShares, RoundDown)
	if claim.Cmp(pool.Liquidity) > 0 {
		return new(big.Int).Set(pool.Liquidity), nil
	}
	return claim, nil
}

// PreviewSharesForValue converts value to supply shares at the current
// exchange rate.
func (e *Engine) PreviewSharesForValue(ctx context.Context, assetID string, value *big.Int, rounding Rounding) (*big.Int, error) {
	if !nonNegative(value) {
		return nil, ErrInvalidAmount
	}
	pool, err := e.viewPool(ctx, assetID)
	if err != nil {
		return nil, err
	}
	return e.shares.ToShares(value, pool.TotalValue(), pool.AddedShares, rounding), nil
}

// PreviewValueForShares converts supply shares to value at the current
// exchange rate.
func (e *Engine) PreviewValueForShares(ctx context.Context, assetID string, shares *big.Int, rounding Rounding) (*big.Int, error) {
	if !nonNegative(shares) {
		return nil, ErrInvalidShares
	}
	pool, err := e.viewPool(ctx, assetID)
	if err != nil {
		return nil, err
	}
	return e.shares.ToValue(shares, pool.TotalValue(), pool.AddedShares, rounding), nil
}

// PreviewIndex returns the drawn index an operation would observe now.
func (e *Engine) PreviewIndex(ctx context.Context, assetID string) (*big.Int, error) {
	pool, err := e.viewPool(ctx, assetID)
	if err != nil {
		return nil, err
	}
	return pool.DrawnIndex, nil
}
