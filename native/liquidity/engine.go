package liquidity

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"sync"
	"time"

	"liquidityhub/core/events"
	nativecommon "liquidityhub/native/common"
)

// ModuleName is the key checked against the pause view before every operation.
const ModuleName = "liquidity"

// Batch is the unit of persistence produced by one ledger operation. Stores
// must apply it atomically: the pool, every participant record and the
// journal entries become visible together or not at all.
type Batch struct {
	Pool         *AssetPool
	Participants []*ParticipantRecord
	Events       []events.LedgerEvent
	Timestamp    time.Time
}

// State is the persistence contract consumed by the engine.
type State interface {
	// GetPool returns nil without error when the asset is not listed.
	GetPool(ctx context.Context, assetID string) (*AssetPool, error)
	// GetParticipant returns nil without error when no record exists.
	GetParticipant(ctx context.Context, assetID, participant string) (*ParticipantRecord, error)
	ListParticipants(ctx context.Context, assetID string) ([]*ParticipantRecord, error)
	ListPools(ctx context.Context) ([]*AssetPool, error)
	Commit(ctx context.Context, batch *Batch) error
}

// Observer receives per-operation telemetry. Implementations must be safe for
// concurrent use.
type Observer interface {
	ObserveOperation(operation, assetID string, duration time.Duration, err error)
	ObservePool(pool *AssetPool)
}

// Engine sequences accrual, validation and mutation for every listed asset.
// Operations on one asset are serialised; distinct assets proceed in
// parallel.
type Engine struct {
	state      State
	config     Config
	shares     SharesMath
	now        func() time.Time
	logger     *slog.Logger
	emitter    events.Emitter
	observer   Observer
	pauses     nativecommon.PauseView
	strategyMu sync.RWMutex
	strategies map[string]InterestRateStrategy
	locksMu    sync.Mutex
	locks      map[string]*sync.Mutex
}

// NewEngine constructs a ledger engine with the supplied configuration.
func NewEngine(cfg Config) *Engine {
	cfg.Normalize()
	return &Engine{
		config:     cfg,
		shares:     cfg.SharesMath(),
		now:        time.Now,
		logger:     slog.Default(),
		emitter:    events.NoopEmitter{},
		strategies: make(map[string]InterestRateStrategy),
		locks:      make(map[string]*sync.Mutex),
	}
}

// SetState wires the engine to the external persistence layer.
func (e *Engine) SetState(state State) { e.state = state }

// SetClock overrides the time source used for accrual.
func (e *Engine) SetClock(now func() time.Time) {
	if e == nil || now == nil {
		return
	}
	e.now = now
}

func (e *Engine) SetLogger(logger *slog.Logger) {
	if e == nil || logger == nil {
		return
	}
	e.logger = logger
}

// SetEmitter configures the sink receiving events after each commit.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if e == nil {
		return
	}
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	e.emitter = emitter
}

func (e *Engine) SetObserver(observer Observer) {
	if e == nil {
		return
	}
	e.observer = observer
}

func (e *Engine) SetPauses(p nativecommon.PauseView) {
	if e == nil {
		return
	}
	e.pauses = p
}

// Config returns the normalised engine configuration.
func (e *Engine) Config() Config { return e.config }

// RegisterStrategy makes an interest rate strategy available to pools under
// name.
func (e *Engine) RegisterStrategy(name string, strategy InterestRateStrategy) error {
	name = strings.TrimSpace(name)
	if name == "" || strategy == nil {
		return fmt.Errorf("%w: strategy name and implementation required", ErrInvalidConfig)
	}
	e.strategyMu.Lock()
	defer e.strategyMu.Unlock()
	e.strategies[name] = strategy
	return nil
}

func (e *Engine) strategy(name string) (InterestRateStrategy, error) {
	if name == "" {
		return nil, nil
	}
	e.strategyMu.RLock()
	defer e.strategyMu.RUnlock()
	strategy, ok := e.strategies[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrStrategyNotFound, name)
	}
	return strategy, nil
}

func (e *Engine) lockAsset(assetID string) func() {
	e.locksMu.Lock()
	mu, ok := e.locks[assetID]
	if !ok {
		mu = new(sync.Mutex)
		e.locks[assetID] = mu
	}
	e.locksMu.Unlock()
	mu.Lock()
	return mu.Unlock
}

// lockListed locks assetID only once the pool is known to exist, so callers
// naming unlisted assets never allocate a lock.
func (e *Engine) lockListed(ctx context.Context, assetID string) (func(), error) {
	e.locksMu.Lock()
	_, ok := e.locks[assetID]
	e.locksMu.Unlock()
	if !ok {
		pool, err := e.state.GetPool(ctx, assetID)
		if err != nil {
			return nil, err
		}
		if pool == nil {
			return nil, ErrAssetNotListed
		}
	}
	return e.lockAsset(assetID), nil
}

func (e *Engine) timestamp() uint64 {
	unix := e.now().Unix()
	if unix < 0 {
		return 0
	}
	return uint64(unix)
}

// txn accumulates cloned records for one operation. Nothing is visible to the
// store until commit.
type txn struct {
	ctx          context.Context
	engine       *Engine
	pool         *AssetPool
	participants map[string]*ParticipantRecord
	order        []string
	events       []events.LedgerEvent
}

// begin locks the asset, loads its pool and brings the drawn index up to now.
// The returned release function must always be called.
func (e *Engine) begin(ctx context.Context, assetID string) (*txn, func(), error) {
	if e == nil || e.state == nil {
		return nil, func() {}, errNilState
	}
	if err := nativecommon.Guard(e.pauses, ModuleName); err != nil {
		return nil, func() {}, err
	}
	assetID = strings.TrimSpace(assetID)
	if assetID == "" {
		return nil, func() {}, ErrAssetNotListed
	}
	release, err := e.lockListed(ctx, assetID)
	if err != nil {
		return nil, func() {}, err
	}
	pool, err := e.state.GetPool(ctx, assetID)
	if err != nil {
		release()
		return nil, func() {}, err
	}
	if pool == nil {
		release()
		return nil, func() {}, ErrAssetNotListed
	}
	pool = pool.Clone()
	pool.ensureDefaults()
	tx := &txn{
		ctx:          ctx,
		engine:       e,
		pool:         pool,
		participants: make(map[string]*ParticipantRecord),
	}
	if err := tx.accrue(e.timestamp()); err != nil {
		release()
		return nil, func() {}, err
	}
	return tx, release, nil
}

// participant loads a cloned record, creating an inactive one when absent.
func (tx *txn) participant(id string) (*ParticipantRecord, error) {
	if record, ok := tx.participants[id]; ok {
		return record, nil
	}
	record, err := tx.engine.state.GetParticipant(tx.ctx, tx.pool.AssetID, id)
	if err != nil {
		return nil, err
	}
	if record == nil {
		record = &ParticipantRecord{AssetID: tx.pool.AssetID, Participant: id}
	} else {
		record = record.Clone()
	}
	record.ensureDefaults()
	tx.participants[id] = record
	tx.order = append(tx.order, id)
	return record, nil
}

// activeParticipant loads a record that must exist and be active.
func (tx *txn) activeParticipant(id string) (*ParticipantRecord, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, ErrParticipantNotActive
	}
	record, err := tx.participant(id)
	if err != nil {
		return nil, err
	}
	if !record.Active {
		return nil, ErrParticipantNotActive
	}
	return record, nil
}

func (tx *txn) emit(evt events.LedgerEvent) {
	tx.events = append(tx.events, evt)
}

// refreshRate asks the pool strategy for a new drawn rate using the mutated
// clones.
func (tx *txn) refreshRate() error {
	strategy, err := tx.engine.strategy(tx.pool.Strategy)
	if err != nil {
		return err
	}
	if strategy == nil {
		tx.pool.DrawnRate = big.NewInt(0)
		return nil
	}
	rate, err := strategy.CalculateInterestRate(tx.pool.AssetID, cloneInt(tx.pool.Liquidity),
		tx.pool.DrawnValue(), tx.pool.PremiumValue(), cloneInt(tx.pool.Swept))
	if err != nil {
		return fmt.Errorf("liquidity: strategy %s: %w", tx.pool.Strategy, err)
	}
	if rate == nil || rate.Sign() < 0 {
		rate = big.NewInt(0)
	}
	tx.pool.DrawnRate = rate
	return nil
}

// commit validates bounds on every touched record and hands the batch to the
// store. Events are emitted only after the store accepted the batch.
func (tx *txn) commit(now time.Time) error {
	if err := checkPool(tx.pool); err != nil {
		return err
	}
	batch := &Batch{Pool: tx.pool, Events: tx.events, Timestamp: now}
	for _, id := range tx.order {
		record := tx.participants[id]
		if err := checkParticipant(record, tx.pool.DrawnIndex); err != nil {
			return err
		}
		batch.Participants = append(batch.Participants, record)
	}
	if err := tx.engine.state.Commit(tx.ctx, batch); err != nil {
		return err
	}
	for _, evt := range tx.events {
		tx.engine.emitter.Emit(evt)
	}
	if tx.engine.observer != nil {
		tx.engine.observer.ObservePool(tx.pool.Clone())
	}
	return nil
}

// run executes op as one atomic ledger transaction against assetID.
func (e *Engine) run(ctx context.Context, name, assetID string, op func(tx *txn) error) error {
	started := time.Now()
	err := e.runLocked(ctx, assetID, op)
	if e != nil && e.observer != nil {
		e.observer.ObserveOperation(name, assetID, time.Since(started), err)
	}
	if err != nil && e != nil && e.logger != nil {
		e.logger.Debug("liquidity operation rejected",
			slog.String("operation", name),
			slog.String("asset", assetID),
			slog.Any("error", err))
	}
	return err
}

func (e *Engine) runLocked(ctx context.Context, assetID string, op func(tx *txn) error) error {
	tx, release, err := e.begin(ctx, assetID)
	defer release()
	if err != nil {
		return err
	}
	if err := op(tx); err != nil {
		return err
	}
	if err := tx.refreshRate(); err != nil {
		return err
	}
	return tx.commit(e.now())
}

func checkPool(pool *AssetPool) error {
	for _, v := range []*big.Int{pool.Liquidity, pool.AddedShares, pool.DrawnShares, pool.DrawnIndex,
		pool.DrawnRate, pool.PremiumShares, pool.PremiumOffsetRay, pool.RealizedPremium, pool.Deficit, pool.Swept} {
		if v != nil && v.Sign() < 0 {
			return ErrArithmeticUnderflow
		}
		if !fitsWord(v) {
			return ErrArithmeticOverflow
		}
	}
	if pool.PremiumRay().Sign() < 0 {
		return ErrArithmeticUnderflow
	}
	if !fitsWord(pool.TotalValue()) {
		return ErrArithmeticOverflow
	}
	return nil
}

func checkParticipant(record *ParticipantRecord, index *big.Int) error {
	for _, v := range []*big.Int{record.AddedShares, record.DrawnShares, record.PremiumShares,
		record.PremiumOffsetRay, record.RealizedPremium, record.AddCap, record.DrawCap} {
		if v != nil && v.Sign() < 0 {
			return ErrArithmeticUnderflow
		}
		if !fitsWord(v) {
			return ErrArithmeticOverflow
		}
	}
	if record.PremiumRay(index).Sign() < 0 {
		return ErrArithmeticUnderflow
	}
	return nil
}
