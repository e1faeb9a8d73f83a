package liquidity

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/BurntSushi/toml"
)

// KinkedStrategyName is the registry name ApplyListing uses for assets that
// carry an inline interest model.
const KinkedStrategyName = "kinked"

// AssetListing declares a pool together with its participants.
type AssetListing struct {
	ID                     string               `toml:"ID"`
	LiquidityFeeBps        uint64               `toml:"LiquidityFeeBps"`
	Strategy               string               `toml:"Strategy"`
	FeeReceiver            string               `toml:"FeeReceiver"`
	ReinvestmentController string               `toml:"ReinvestmentController"`
	Model                  *ModelListing        `toml:"model"`
	Participants           []ParticipantListing `toml:"participant"`
}

// ModelListing carries kinked interest model parameters in basis points.
type ModelListing struct {
	BaseRateBps    uint64 `toml:"BaseRateBps"`
	Slope1Bps      uint64 `toml:"Slope1Bps"`
	Slope2Bps      uint64 `toml:"Slope2Bps"`
	OptimalUtilBps uint64 `toml:"OptimalUtilisationBps"`
}

// ParticipantListing declares the caps of one participant as decimal
// strings. Omitted caps are unlimited.
type ParticipantListing struct {
	ID       string `toml:"ID"`
	AddCap   string `toml:"AddCap"`
	DrawCap  string `toml:"DrawCap"`
	Disabled bool   `toml:"Disabled"`
}

func (p ParticipantListing) config() (ParticipantConfig, error) {
	addCap, err := parseCap(p.AddCap)
	if err != nil {
		return ParticipantConfig{}, fmt.Errorf("%w: participant %s add cap: %v", ErrInvalidConfig, p.ID, err)
	}
	drawCap, err := parseCap(p.DrawCap)
	if err != nil {
		return ParticipantConfig{}, fmt.Errorf("%w: participant %s draw cap: %v", ErrInvalidConfig, p.ID, err)
	}
	return ParticipantConfig{AddCap: addCap, DrawCap: drawCap, Active: !p.Disabled}, nil
}

func parseCap(value string) (*big.Int, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	parsed, ok := new(big.Int).SetString(value, 10)
	if !ok || parsed.Sign() < 0 {
		return nil, fmt.Errorf("invalid amount %q", value)
	}
	return parsed, nil
}

func (l AssetListing) validate() error {
	if strings.TrimSpace(l.ID) == "" {
		return fmt.Errorf("%w: asset listing without ID", ErrInvalidConfig)
	}
	if l.LiquidityFeeBps > 10_000 {
		return fmt.Errorf("%w: asset %s liquidity fee above 100%%", ErrInvalidConfig, l.ID)
	}
	if l.Model != nil && l.Model.OptimalUtilBps > 10_000 {
		return fmt.Errorf("%w: asset %s optimal utilisation above 100%%", ErrInvalidConfig, l.ID)
	}
	for _, p := range l.Participants {
		if strings.TrimSpace(p.ID) == "" {
			return fmt.Errorf("%w: asset %s participant without ID", ErrInvalidConfig, l.ID)
		}
		if _, err := p.config(); err != nil {
			return err
		}
	}
	return nil
}

func (l AssetListing) assetConfig() AssetConfig {
	strategy := l.Strategy
	if strategy == "" && l.Model != nil {
		strategy = KinkedStrategyName
	}
	return AssetConfig{
		LiquidityFeeBps:        l.LiquidityFeeBps,
		Strategy:               strategy,
		FeeReceiver:            l.FeeReceiver,
		ReinvestmentController: l.ReinvestmentController,
	}
}

// LoadConfig reads ledger parameters and listings from a TOML file.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Config{}, fmt.Errorf("liquidity: decode %s: %w", path, err)
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ApplyListing lists or reconfigures every asset in listings. Inline models
// are installed on kinked, which is registered under KinkedStrategyName.
func ApplyListing(ctx context.Context, engine *Engine, kinked *KinkedStrategy, listings []AssetListing) error {
	if engine == nil {
		return errNilState
	}
	if kinked == nil {
		kinked = NewKinkedStrategy()
	}
	registered := false
	for _, listing := range listings {
		if err := listing.validate(); err != nil {
			return err
		}
		if listing.Model != nil {
			if !registered {
				if err := engine.RegisterStrategy(KinkedStrategyName, kinked); err != nil {
					return err
				}
				registered = true
			}
			kinked.SetModel(listing.ID, NewInterestModel(listing.Model.BaseRateBps,
				listing.Model.Slope1Bps, listing.Model.Slope2Bps, listing.Model.OptimalUtilBps))
		}

		cfg := listing.assetConfig()
		err := engine.ListAsset(ctx, listing.ID, cfg)
		if errors.Is(err, ErrAssetAlreadyListed) {
			err = engine.UpdateAssetConfig(ctx, listing.ID, cfg)
		}
		if err != nil {
			return fmt.Errorf("liquidity: list %s: %w", listing.ID, err)
		}

		for _, p := range listing.Participants {
			pc, err := p.config()
			if err != nil {
				return err
			}
			if err := engine.ConfigureParticipant(ctx, listing.ID, p.ID, pc); err != nil {
				return fmt.Errorf("liquidity: configure %s/%s: %w", listing.ID, p.ID, err)
			}
		}
	}
	return nil
}
