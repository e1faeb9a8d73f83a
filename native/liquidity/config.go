package liquidity

import (
	"fmt"
	"math/big"
)

// DefaultPremiumDriftTolerance is the number of smallest units premium debt may
// grow by during a single premium delta application.
const DefaultPremiumDriftTolerance uint64 = 2

// Config captures the runtime configuration for the liquidity ledger.
type Config struct {
	PremiumDriftTolerance uint64 `toml:"PremiumDriftTolerance"`
	VirtualShares         uint64 `toml:"VirtualShares"`
	VirtualAssets         uint64 `toml:"VirtualAssets"`
	// Assets lists the pools applied by ApplyListing.
	Assets []AssetListing `toml:"asset"`
}

// DefaultConfig returns the ledger parameters used when no file is supplied.
func DefaultConfig() Config {
	return Config{
		PremiumDriftTolerance: DefaultPremiumDriftTolerance,
		VirtualShares:         DefaultVirtualShares.Uint64(),
		VirtualAssets:         DefaultVirtualAssets.Uint64(),
	}
}

// Normalize fills unset fields with defaults.
func (c *Config) Normalize() {
	if c.PremiumDriftTolerance == 0 {
		c.PremiumDriftTolerance = DefaultPremiumDriftTolerance
	}
	if c.VirtualShares == 0 {
		c.VirtualShares = DefaultVirtualShares.Uint64()
	}
	if c.VirtualAssets == 0 {
		c.VirtualAssets = DefaultVirtualAssets.Uint64()
	}
}

// Validate checks that the configuration can drive an engine.
func (c Config) Validate() error {
	seen := make(map[string]struct{}, len(c.Assets))
	for _, asset := range c.Assets {
		if err := asset.validate(); err != nil {
			return err
		}
		if _, dup := seen[asset.ID]; dup {
			return fmt.Errorf("%w: asset %q listed twice", ErrInvalidConfig, asset.ID)
		}
		seen[asset.ID] = struct{}{}
	}
	return nil
}

// SharesMath returns the conversion configured by the virtual offsets.
func (c Config) SharesMath() SharesMath {
	return SharesMath{
		VirtualShares: new(big.Int).SetUint64(c.VirtualShares),
		VirtualAssets: new(big.Int).SetUint64(c.VirtualAssets),
	}
}
