package liquidity

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"liquidityhub/core/events"
	"liquidityhub/storage"
)

const testAsset = "usdc"

type fixedRate struct {
	rate *big.Int
}

func (f fixedRate) CalculateInterestRate(string, *big.Int, *big.Int, *big.Int, *big.Int) (*big.Int, error) {
	return new(big.Int).Set(f.rate), nil
}

// bpsRay converts basis points into a ray rate.
func bpsRay(bps int64) *big.Int {
	return mulDiv(ray, big.NewInt(bps), basisPoints, RoundDown)
}

func amt(v int64) *big.Int { return big.NewInt(v) }

// rayAmt scales v to ray units, the precision of premium offsets.
func rayAmt(v int64) *big.Int { return new(big.Int).Mul(big.NewInt(v), ray) }

type recordingEmitter struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recordingEmitter) Emit(evt events.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
}

func (r *recordingEmitter) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, evt := range r.events {
		out = append(out, evt.EventType())
	}
	return out
}

type harness struct {
	t       *testing.T
	ctx     context.Context
	engine  *Engine
	state   *KVState
	emitter *recordingEmitter
	mu      sync.Mutex
	now     time.Time
}

func newHarness(t *testing.T, cfg AssetConfig) *harness {
	t.Helper()
	h := &harness{
		t:       t,
		ctx:     context.Background(),
		engine:  NewEngine(DefaultConfig()),
		state:   NewKVState(storage.NewMemDB()),
		emitter: &recordingEmitter{},
		now:     time.Unix(1_700_000_000, 0),
	}
	h.engine.SetState(h.state)
	h.engine.SetEmitter(h.emitter)
	h.engine.SetClock(func() time.Time {
		h.mu.Lock()
		defer h.mu.Unlock()
		return h.now
	})
	if err := h.engine.RegisterStrategy("fixed5", fixedRate{rate: bpsRay(500)}); err != nil {
		t.Fatalf("register strategy: %v", err)
	}
	if cfg.Strategy == "" {
		cfg.Strategy = "fixed5"
	}
	if err := h.engine.ListAsset(h.ctx, testAsset, cfg); err != nil {
		t.Fatalf("list asset: %v", err)
	}
	for _, id := range []string{"alice", "bob", "carol"} {
		if err := h.engine.ConfigureParticipant(h.ctx, testAsset, id, ParticipantConfig{Active: true}); err != nil {
			t.Fatalf("configure %s: %v", id, err)
		}
	}
	return h
}

func (h *harness) advance(d time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.now = h.now.Add(d)
}

func (h *harness) pool() *AssetPool {
	h.t.Helper()
	pool, err := h.engine.Pool(h.ctx, testAsset)
	if err != nil {
		h.t.Fatalf("load pool: %v", err)
	}
	return pool
}

func (h *harness) participant(id string) *ParticipantRecord {
	h.t.Helper()
	record, err := h.engine.Participant(h.ctx, testAsset, id)
	if err != nil {
		h.t.Fatalf("load participant %s: %v", id, err)
	}
	return record
}

func (h *harness) add(id string, amount int64) *big.Int {
	h.t.Helper()
	shares, err := h.engine.Add(h.ctx, testAsset, id, amt(amount))
	if err != nil {
		h.t.Fatalf("add %s %d: %v", id, amount, err)
	}
	return shares
}

func (h *harness) draw(id string, amount int64) *big.Int {
	h.t.Helper()
	shares, err := h.engine.Draw(h.ctx, testAsset, id, amt(amount))
	if err != nil {
		h.t.Fatalf("draw %s %d: %v", id, amount, err)
	}
	return shares
}

func (h *harness) totalValue() *big.Int {
	h.t.Helper()
	total, err := h.engine.TotalValue(h.ctx, testAsset)
	if err != nil {
		h.t.Fatalf("total value: %v", err)
	}
	return total
}

// checkShareConservation asserts participant shares sum to the pool
// aggregates.
func (h *harness) checkShareConservation() {
	h.t.Helper()
	pool := h.pool()
	records, err := h.engine.Participants(h.ctx, testAsset)
	if err != nil {
		h.t.Fatalf("participants: %v", err)
	}
	added, drawn, premium := new(big.Int), new(big.Int), new(big.Int)
	offset, realized := new(big.Int), new(big.Int)
	for _, record := range records {
		added.Add(added, record.AddedShares)
		drawn.Add(drawn, record.DrawnShares)
		premium.Add(premium, record.PremiumShares)
		offset.Add(offset, record.PremiumOffsetRay)
		realized.Add(realized, record.RealizedPremium)
	}
	if added.Cmp(pool.AddedShares) != 0 {
		h.t.Fatalf("added shares %s != pool %s", added, pool.AddedShares)
	}
	if drawn.Cmp(pool.DrawnShares) != 0 {
		h.t.Fatalf("drawn shares %s != pool %s", drawn, pool.DrawnShares)
	}
	if premium.Cmp(pool.PremiumShares) != 0 || offset.Cmp(pool.PremiumOffsetRay) != 0 || realized.Cmp(pool.RealizedPremium) != 0 {
		h.t.Fatalf("premium triple mismatch: participants (%s,%s,%s) pool (%s,%s,%s)",
			premium, offset, realized, pool.PremiumShares, pool.PremiumOffsetRay, pool.RealizedPremium)
	}
}

// failingState rejects every commit after the flag is set.
type failingState struct {
	*KVState
	fail bool
}

var errCommitRejected = errors.New("commit rejected")

func (f *failingState) Commit(ctx context.Context, batch *Batch) error {
	if f.fail {
		return errCommitRejected
	}
	return f.KVState.Commit(ctx, batch)
}
