package liquidity

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"liquidityhub/core/events"
)

var maxUint256 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

// UnlimitedCap returns the largest cap a participant can hold.
func UnlimitedCap() *big.Int { return new(big.Int).Set(maxUint256) }

func (c AssetConfig) normalized() AssetConfig {
	c.Strategy = strings.TrimSpace(c.Strategy)
	c.FeeReceiver = strings.TrimSpace(c.FeeReceiver)
	c.ReinvestmentController = strings.TrimSpace(c.ReinvestmentController)
	return c
}

func (e *Engine) validateAssetConfig(cfg AssetConfig) error {
	if cfg.LiquidityFeeBps > 10_000 {
		return fmt.Errorf("%w: liquidity fee above 100%%", ErrInvalidConfig)
	}
	if cfg.LiquidityFeeBps > 0 && cfg.FeeReceiver == "" {
		return fmt.Errorf("%w: fee receiver required when a liquidity fee is set", ErrInvalidConfig)
	}
	_, err := e.strategy(cfg.Strategy)
	return err
}

// ListAsset creates the pool for assetID. Pools are never removed.
func (e *Engine) ListAsset(ctx context.Context, assetID string, cfg AssetConfig) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	assetID = strings.TrimSpace(assetID)
	if assetID == "" {
		return fmt.Errorf("%w: asset id required", ErrInvalidConfig)
	}
	cfg = cfg.normalized()
	if err := e.validateAssetConfig(cfg); err != nil {
		return err
	}

	release := e.lockAsset(assetID)
	defer release()
	existing, err := e.state.GetPool(ctx, assetID)
	if err != nil {
		return err
	}
	if existing != nil {
		return ErrAssetAlreadyListed
	}

	pool := &AssetPool{AssetID: assetID, LastUpdateTimestamp: e.timestamp()}
	pool.ensureDefaults()
	applyAssetConfig(pool, cfg)
	tx := &txn{
		ctx:          ctx,
		engine:       e,
		pool:         pool,
		participants: make(map[string]*ParticipantRecord),
	}
	if err := tx.ensureFeeReceiver(); err != nil {
		return err
	}
	if err := tx.refreshRate(); err != nil {
		return err
	}
	tx.emit(assetConfiguredEvent(pool, true))
	if err := tx.commit(e.now()); err != nil {
		return err
	}
	e.logger.Info("liquidity asset listed",
		"asset", assetID,
		"strategy", cfg.Strategy,
		"liquidityFeeBps", cfg.LiquidityFeeBps)
	return nil
}

// UpdateAssetConfig accrues the pool under its current parameters and then
// installs cfg.
func (e *Engine) UpdateAssetConfig(ctx context.Context, assetID string, cfg AssetConfig) error {
	cfg = cfg.normalized()
	if e == nil {
		return errNilState
	}
	if err := e.validateAssetConfig(cfg); err != nil {
		return err
	}
	return e.run(ctx, "updateAsset", assetID, func(tx *txn) error {
		applyAssetConfig(tx.pool, cfg)
		if err := tx.ensureFeeReceiver(); err != nil {
			return err
		}
		tx.emit(assetConfiguredEvent(tx.pool, false))
		return nil
	})
}

// ConfigureParticipant creates or updates the record of participant for
// assetID. Nil caps are unlimited; a zero cap allows nothing.
func (e *Engine) ConfigureParticipant(ctx context.Context, assetID, participant string, cfg ParticipantConfig) error {
	participant = strings.TrimSpace(participant)
	if participant == "" {
		return fmt.Errorf("%w: participant id required", ErrInvalidConfig)
	}
	addCap, drawCap := cfg.AddCap, cfg.DrawCap
	if addCap == nil {
		addCap = UnlimitedCap()
	}
	if drawCap == nil {
		drawCap = UnlimitedCap()
	}
	if addCap.Sign() < 0 || drawCap.Sign() < 0 {
		return fmt.Errorf("%w: caps must not be negative", ErrInvalidConfig)
	}
	return e.run(ctx, "configureParticipant", assetID, func(tx *txn) error {
		record, err := tx.participant(participant)
		if err != nil {
			return err
		}
		record.AddCap = cloneInt(addCap)
		record.DrawCap = cloneInt(drawCap)
		record.Active = cfg.Active
		tx.emit(events.LiquidityParticipantConfigured{
			Asset:       tx.pool.AssetID,
			Participant: participant,
			AddCap:      cloneInt(addCap),
			DrawCap:     cloneInt(drawCap),
			Active:      cfg.Active,
		})
		return nil
	})
}

// Accrue checkpoints the drawn index of assetID and refreshes its rate. It is
// permissionless and returns the committed pool.
func (e *Engine) Accrue(ctx context.Context, assetID string) (*AssetPool, error) {
	var pool *AssetPool
	err := e.run(ctx, "accrue", assetID, func(tx *txn) error {
		pool = tx.pool
		return nil
	})
	if err != nil {
		return nil, err
	}
	return pool.Clone(), nil
}

// ensureFeeReceiver creates an active, zero-cap record for the pool fee
// receiver so it can always withdraw minted fees.
func (tx *txn) ensureFeeReceiver() error {
	receiver := tx.pool.FeeReceiver
	if receiver == "" {
		return nil
	}
	existing, err := tx.engine.state.GetParticipant(tx.ctx, tx.pool.AssetID, receiver)
	if err != nil {
		return err
	}
	if existing != nil {
		return nil
	}
	record, err := tx.participant(receiver)
	if err != nil {
		return err
	}
	record.Active = true
	return nil
}

func applyAssetConfig(pool *AssetPool, cfg AssetConfig) {
	pool.LiquidityFeeBps = cfg.LiquidityFeeBps
	pool.Strategy = cfg.Strategy
	pool.FeeReceiver = cfg.FeeReceiver
	pool.ReinvestmentController = cfg.ReinvestmentController
}

func assetConfiguredEvent(pool *AssetPool, listed bool) events.LiquidityAssetConfigured {
	return events.LiquidityAssetConfigured{
		Asset:                  pool.AssetID,
		Listed:                 listed,
		LiquidityFeeBps:        pool.LiquidityFeeBps,
		Strategy:               pool.Strategy,
		FeeReceiver:            pool.FeeReceiver,
		ReinvestmentController: pool.ReinvestmentController,
	}
}
