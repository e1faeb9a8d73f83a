package liquidity

import "errors"

// Validation errors. The operation has no side effects when they are returned.
var (
	ErrInvalidAmount         = errors.New("liquidity: invalid amount")
	ErrInvalidShares         = errors.New("liquidity: operation would mint zero shares")
	ErrAssetNotListed        = errors.New("liquidity: asset not listed")
	ErrAssetAlreadyListed    = errors.New("liquidity: asset already listed")
	ErrParticipantNotActive  = errors.New("liquidity: participant not active")
	ErrParticipantNotFound   = errors.New("liquidity: participant not found")
	ErrAddCapExceeded        = errors.New("liquidity: add cap exceeded")
	ErrDrawCapExceeded       = errors.New("liquidity: draw cap exceeded")
	ErrInsufficientLiquidity = errors.New("liquidity: insufficient liquidity")
	ErrAddedAmountExceeded   = errors.New("liquidity: added amount exceeded")
	ErrAddedSharesExceeded   = errors.New("liquidity: added shares exceeded")
	ErrInvalidSweepAmount    = errors.New("liquidity: invalid sweep amount")
	ErrStrategyNotFound      = errors.New("liquidity: interest rate strategy not registered")
	ErrInvalidConfig         = errors.New("liquidity: invalid configuration")
)

// Invariant violations raised by a misbehaving collaborator.
var (
	ErrSurplusAmountRestored  = errors.New("liquidity: restored amount exceeds debt")
	ErrSurplusDeficitReported = errors.New("liquidity: reported deficit exceeds debt")
	ErrInvalidPremiumChange   = errors.New("liquidity: premium change outside tolerance")
)

// Arithmetic errors. These are never clamped.
var (
	ErrArithmeticUnderflow = errors.New("liquidity: arithmetic underflow")
	ErrArithmeticOverflow  = errors.New("liquidity: arithmetic overflow")
)

// ErrOnlyReinvestmentController is returned when a caller other than the
// pool's reinvestment controller attempts to sweep or reclaim.
var ErrOnlyReinvestmentController = errors.New("liquidity: caller is not the reinvestment controller")

var errNilState = errors.New("liquidity: state not configured")
