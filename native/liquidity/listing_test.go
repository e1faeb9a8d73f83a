package liquidity

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"liquidityhub/storage"
)

const listingTOML = `
PremiumDriftTolerance = 3
VirtualShares = 1000
VirtualAssets = 1000

[[asset]]
ID = "usdc"
LiquidityFeeBps = 1000
FeeReceiver = "treasury"
ReinvestmentController = "vault"

[asset.model]
BaseRateBps = 200
Slope1Bps = 1500
Slope2Bps = 6000
OptimalUtilisationBps = 8000

[[asset.participant]]
ID = "spoke-a"
AddCap = "1000000"

[[asset.participant]]
ID = "spoke-b"
DrawCap = "0"
Disabled = true

[[asset]]
ID = "dai"
`

func writeListing(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "liquidity.toml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write listing: %v", err)
	}
	return path
}

func TestLoadConfig(t *testing.T) {
	cfg, err := LoadConfig(writeListing(t, listingTOML))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.PremiumDriftTolerance != 3 {
		t.Fatalf("unexpected tolerance %d", cfg.PremiumDriftTolerance)
	}
	if cfg.VirtualShares != 1000 || cfg.VirtualAssets != 1000 {
		t.Fatalf("unexpected offsets %d/%d", cfg.VirtualShares, cfg.VirtualAssets)
	}
	if len(cfg.Assets) != 2 || len(cfg.Assets[0].Participants) != 2 || cfg.Assets[0].Model == nil {
		t.Fatalf("unexpected listings: %+v", cfg.Assets)
	}
	if cfg.Assets[0].Participants[0].AddCap != "1000000" || cfg.Assets[0].Participants[0].DrawCap != "" {
		t.Fatalf("unexpected caps: %+v", cfg.Assets[0].Participants[0])
	}
}

func TestLoadConfigRejectsInvalidListings(t *testing.T) {
	for name, body := range map[string]string{
		"duplicate asset": "[[asset]]\nID = \"usdc\"\n[[asset]]\nID = \"usdc\"\n",
		"bad cap":         "[[asset]]\nID = \"usdc\"\n[[asset.participant]]\nID = \"a\"\nAddCap = \"-5\"\n",
		"fee above 100%":  "[[asset]]\nID = \"usdc\"\nLiquidityFeeBps = 10001\n",
	} {
		if _, err := LoadConfig(writeListing(t, body)); !errors.Is(err, ErrInvalidConfig) {
			t.Fatalf("%s: expected ErrInvalidConfig, got %v", name, err)
		}
	}
}

func TestApplyListing(t *testing.T) {
	cfg, err := LoadConfig(writeListing(t, listingTOML))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	ctx := context.Background()
	engine := NewEngine(cfg)
	engine.SetState(NewKVState(storage.NewMemDB()))
	kinked := NewKinkedStrategy()
	if err := ApplyListing(ctx, engine, kinked, cfg.Assets); err != nil {
		t.Fatalf("apply: %v", err)
	}

	pool, err := engine.Pool(ctx, "usdc")
	if err != nil {
		t.Fatalf("pool: %v", err)
	}
	if pool.Strategy != KinkedStrategyName || pool.ReinvestmentController != "vault" {
		t.Fatalf("unexpected pool config: %+v", pool)
	}
	if pool.DrawnRate.Cmp(bpsRay(200)) != 0 {
		t.Fatalf("idle pool should carry the base rate, got %s", pool.DrawnRate)
	}

	spokeA, err := engine.Participant(ctx, "usdc", "spoke-a")
	if err != nil {
		t.Fatalf("spoke-a: %v", err)
	}
	if !spokeA.Active || spokeA.AddCap.Int64() != 1_000_000 || spokeA.DrawCap.Cmp(UnlimitedCap()) != 0 {
		t.Fatalf("unexpected spoke-a: %+v", spokeA)
	}
	spokeB, err := engine.Participant(ctx, "usdc", "spoke-b")
	if err != nil {
		t.Fatalf("spoke-b: %v", err)
	}
	if spokeB.Active || spokeB.DrawCap.Sign() != 0 {
		t.Fatalf("unexpected spoke-b: %+v", spokeB)
	}

	dai, err := engine.Pool(ctx, "dai")
	if err != nil {
		t.Fatalf("dai: %v", err)
	}
	if dai.Strategy != "" || dai.DrawnRate.Sign() != 0 {
		t.Fatalf("dai should have no strategy: %+v", dai)
	}

	// Re-applying reconfigures instead of failing.
	cfg.Assets[0].LiquidityFeeBps = 500
	if err := ApplyListing(ctx, engine, kinked, cfg.Assets); err != nil {
		t.Fatalf("reapply: %v", err)
	}
	pool, err = engine.Pool(ctx, "usdc")
	if err != nil {
		t.Fatalf("pool: %v", err)
	}
	if pool.LiquidityFeeBps != 500 {
		t.Fatalf("expected updated fee, got %d", pool.LiquidityFeeBps)
	}
}
