package events

import (
	"math/big"
	"strconv"
	"strings"

	"liquidityhub/core/types"
)

const (
	// TypeLiquidityAdded is emitted when a participant adds value to a pool.
	TypeLiquidityAdded = "liquidity.added"
	// TypeLiquidityRemoved is emitted when a participant withdraws value.
	TypeLiquidityRemoved = "liquidity.removed"
	// TypeLiquidityDrawn is emitted when a participant draws debt.
	TypeLiquidityDrawn = "liquidity.drawn"
	// TypeLiquidityRestored is emitted when drawn or premium debt is repaid.
	TypeLiquidityRestored = "liquidity.restored"
	// TypeLiquidityDeficitReported is emitted when debt is written off into
	// the pool deficit.
	TypeLiquidityDeficitReported = "liquidity.deficitReported"
	// TypeLiquidityDeficitEliminated is emitted when supply shares are burnt
	// to cover deficit.
	TypeLiquidityDeficitEliminated = "liquidity.deficitEliminated"
	// TypeLiquiditySharesTransferred is emitted when supply shares move
	// between participants.
	TypeLiquiditySharesTransferred = "liquidity.sharesTransferred"
	// TypeLiquidityPremiumRefreshed is emitted when a premium delta is applied.
	TypeLiquidityPremiumRefreshed = "liquidity.premiumRefreshed"
	// TypeLiquiditySwept is emitted when idle liquidity is deployed.
	TypeLiquiditySwept = "liquidity.swept"
	// TypeLiquidityReclaimed is emitted when deployed liquidity returns.
	TypeLiquidityReclaimed = "liquidity.reclaimed"
	// TypeLiquidityAccrued is emitted whenever the drawn index is committed.
	TypeLiquidityAccrued = "liquidity.accrued"
	// TypeLiquidityAssetConfigured is emitted when an asset is listed or
	// reconfigured.
	TypeLiquidityAssetConfigured = "liquidity.assetConfigured"
	// TypeLiquidityParticipantConfigured is emitted when caps or activation
	// change for a participant.
	TypeLiquidityParticipantConfigured = "liquidity.participantConfigured"
)

// LedgerEvent is an event that can be rendered into the journal.
type LedgerEvent interface {
	EventType() string
	Event() *types.Event
}

// LiquidityMovement describes a value or share movement against a pool.
// Shares and Value are the magnitudes moved; the event type carries the
// direction.
type LiquidityMovement struct {
	Type         string
	Asset        string
	Participant  string
	Counterparty string
	Shares       *big.Int
	Value        *big.Int
	Premium      *big.Int
}

func (e LiquidityMovement) EventType() string { return e.Type }

// Event renders the movement for downstream consumers.
func (e LiquidityMovement) Event() *types.Event {
	attrs := map[string]string{
		"asset":       strings.TrimSpace(e.Asset),
		"participant": strings.TrimSpace(e.Participant),
		"shares":      intString(e.Shares),
		"value":       intString(e.Value),
	}
	if counterparty := strings.TrimSpace(e.Counterparty); counterparty != "" {
		attrs["counterparty"] = counterparty
	}
	if e.Premium != nil {
		attrs["premium"] = e.Premium.String()
	}
	return &types.Event{Type: e.Type, Attributes: attrs}
}

// LiquidityPremiumRefreshed records a signed premium delta applied to a
// participant.
type LiquidityPremiumRefreshed struct {
	Asset          string
	Participant    string
	SharesDelta    *big.Int
	OffsetRayDelta *big.Int
	RealizedDelta  *big.Int
}

func (LiquidityPremiumRefreshed) EventType() string { return TypeLiquidityPremiumRefreshed }

func (e LiquidityPremiumRefreshed) Event() *types.Event {
	return &types.Event{
		Type: TypeLiquidityPremiumRefreshed,
		Attributes: map[string]string{
			"asset":          strings.TrimSpace(e.Asset),
			"participant":    strings.TrimSpace(e.Participant),
			"sharesDelta":    intString(e.SharesDelta),
			"offsetRayDelta": intString(e.OffsetRayDelta),
			"realizedDelta":  intString(e.RealizedDelta),
		},
	}
}

// LiquidityAccrued records a drawn index checkpoint and the fee shares minted
// alongside it.
type LiquidityAccrued struct {
	Asset         string
	PreviousIndex *big.Int
	Index         *big.Int
	Rate          *big.Int
	FeeReceiver   string
	FeeShares     *big.Int
	FeeValue      *big.Int
	Timestamp     uint64
}

func (LiquidityAccrued) EventType() string { return TypeLiquidityAccrued }

func (e LiquidityAccrued) Event() *types.Event {
	attrs := map[string]string{
		"asset":         strings.TrimSpace(e.Asset),
		"previousIndex": intString(e.PreviousIndex),
		"index":         intString(e.Index),
		"rate":          intString(e.Rate),
		"timestamp":     strconv.FormatUint(e.Timestamp, 10),
	}
	if e.FeeShares != nil && e.FeeShares.Sign() > 0 {
		attrs["feeReceiver"] = strings.TrimSpace(e.FeeReceiver)
		attrs["feeShares"] = e.FeeShares.String()
		attrs["feeValue"] = intString(e.FeeValue)
	}
	return &types.Event{Type: TypeLiquidityAccrued, Attributes: attrs}
}

// LiquidityAssetConfigured records the administrative parameters of a pool.
// Listed is set only on the event that created the pool.
type LiquidityAssetConfigured struct {
	Asset                  string
	Listed                 bool
	LiquidityFeeBps        uint64
	Strategy               string
	FeeReceiver            string
	ReinvestmentController string
}

func (LiquidityAssetConfigured) EventType() string { return TypeLiquidityAssetConfigured }

func (e LiquidityAssetConfigured) Event() *types.Event {
	return &types.Event{
		Type: TypeLiquidityAssetConfigured,
		Attributes: map[string]string{
			"asset":                  strings.TrimSpace(e.Asset),
			"listed":                 strconv.FormatBool(e.Listed),
			"liquidityFeeBps":        strconv.FormatUint(e.LiquidityFeeBps, 10),
			"strategy":               strings.TrimSpace(e.Strategy),
			"feeReceiver":            strings.TrimSpace(e.FeeReceiver),
			"reinvestmentController": strings.TrimSpace(e.ReinvestmentController),
		},
	}
}

// LiquidityParticipantConfigured records caps and activation of a participant.
type LiquidityParticipantConfigured struct {
	Asset       string
	Participant string
	AddCap      *big.Int
	DrawCap     *big.Int
	Active      bool
}

func (LiquidityParticipantConfigured) EventType() string {
	return TypeLiquidityParticipantConfigured
}

func (e LiquidityParticipantConfigured) Event() *types.Event {
	return &types.Event{
		Type: TypeLiquidityParticipantConfigured,
		Attributes: map[string]string{
			"asset":       strings.TrimSpace(e.Asset),
			"participant": strings.TrimSpace(e.Participant),
			"addCap":      intString(e.AddCap),
			"drawCap":     intString(e.DrawCap),
			"active":      strconv.FormatBool(e.Active),
		},
	}
}

func intString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
