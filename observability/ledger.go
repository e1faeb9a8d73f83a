package observability

import (
	"errors"
	"math/big"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"liquidityhub/native/liquidity"
)

// LedgerMetrics records engine operations and per-asset pool gauges. It
// implements liquidity.Observer.
type LedgerMetrics struct {
	operations *prometheus.CounterVec
	latency    *prometheus.HistogramVec
	liquidity  *prometheus.GaugeVec
	drawn      *prometheus.GaugeVec
	index      *prometheus.GaugeVec
	rate       *prometheus.GaugeVec
	deficit    *prometheus.GaugeVec
	swept      *prometheus.GaugeVec
}

var (
	ledgerMetricsOnce sync.Once
	ledgerRegistry    *LedgerMetrics
)

var _ liquidity.Observer = (*LedgerMetrics)(nil)

// Ledger returns the process-wide ledger metrics registered with the default
// Prometheus registerer.
func Ledger() *LedgerMetrics {
	ledgerMetricsOnce.Do(func() {
		ledgerRegistry = NewLedgerMetrics(prometheus.DefaultRegisterer)
	})
	return ledgerRegistry
}

// NewLedgerMetrics builds and registers the ledger collectors with reg.
func NewLedgerMetrics(reg prometheus.Registerer) *LedgerMetrics {
	gauge := func(name, help string) *prometheus.GaugeVec {
		return prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "liquidity",
			Subsystem: "pool",
			Name:      name,
			Help:      help,
		}, []string{"asset"})
	}
	m := &LedgerMetrics{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "liquidity",
			Subsystem: "engine",
			Name:      "operations_total",
			Help:      "Ledger operations segmented by operation, asset and outcome.",
		}, []string{"operation", "asset", "outcome"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "liquidity",
			Subsystem: "engine",
			Name:      "operation_duration_seconds",
			Help:      "Latency distribution of ledger operations including the commit.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		liquidity: gauge("liquidity", "Idle liquidity held by the pool in base units."),
		drawn:     gauge("drawn_shares", "Outstanding drawn debt shares."),
		index:     gauge("drawn_index", "Cumulative drawn index as a decimal multiple of one."),
		rate:      gauge("drawn_rate", "Current annual drawn rate as a decimal fraction."),
		deficit:   gauge("deficit", "Reported bad debt not yet eliminated."),
		swept:     gauge("swept", "Value deployed to the reinvestment controller."),
	}
	if reg != nil {
		reg.MustRegister(
			m.operations,
			m.latency,
			m.liquidity,
			m.drawn,
			m.index,
			m.rate,
			m.deficit,
			m.swept,
		)
	}
	return m
}

// ObserveOperation records the outcome of one engine operation.
func (m *LedgerMetrics) ObserveOperation(operation, assetID string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	if operation == "" {
		operation = "unknown"
	}
	m.operations.WithLabelValues(operation, assetID, Outcome(err)).Inc()
	m.latency.WithLabelValues(operation).Observe(duration.Seconds())
}

// ObservePool refreshes the gauges for the committed pool state.
func (m *LedgerMetrics) ObservePool(pool *liquidity.AssetPool) {
	if m == nil || pool == nil {
		return
	}
	asset := pool.AssetID
	m.liquidity.WithLabelValues(asset).Set(toFloat(pool.Liquidity))
	m.drawn.WithLabelValues(asset).Set(toFloat(pool.DrawnShares))
	m.index.WithLabelValues(asset).Set(rayToFloat(pool.DrawnIndex))
	m.rate.WithLabelValues(asset).Set(rayToFloat(pool.DrawnRate))
	m.deficit.WithLabelValues(asset).Set(toFloat(pool.Deficit))
	m.swept.WithLabelValues(asset).Set(toFloat(pool.Swept))
}

var outcomeClasses = []struct {
	err   error
	label string
}{
	{liquidity.ErrInvalidAmount, "invalid_amount"},
	{liquidity.ErrInvalidShares, "invalid_shares"},
	{liquidity.ErrAssetNotListed, "asset_not_listed"},
	{liquidity.ErrParticipantNotActive, "participant_not_active"},
	{liquidity.ErrAddCapExceeded, "add_cap_exceeded"},
	{liquidity.ErrDrawCapExceeded, "draw_cap_exceeded"},
	{liquidity.ErrInsufficientLiquidity, "insufficient_liquidity"},
	{liquidity.ErrAddedAmountExceeded, "added_amount_exceeded"},
	{liquidity.ErrAddedSharesExceeded, "added_shares_exceeded"},
	{liquidity.ErrSurplusAmountRestored, "surplus_restored"},
	{liquidity.ErrSurplusDeficitReported, "surplus_deficit"},
	{liquidity.ErrInvalidPremiumChange, "invalid_premium_change"},
	{liquidity.ErrOnlyReinvestmentController, "unauthorized"},
	{liquidity.ErrInvalidSweepAmount, "invalid_sweep_amount"},
	{liquidity.ErrArithmeticUnderflow, "underflow"},
	{liquidity.ErrArithmeticOverflow, "overflow"},
}

// Outcome maps an engine error to a bounded label value.
func Outcome(err error) string {
	if err == nil {
		return "success"
	}
	for _, class := range outcomeClasses {
		if errors.Is(err, class.err) {
			return class.label
		}
	}
	return "error"
}

var rayFloat = new(big.Float).SetInt(liquidity.Ray())

func toFloat(v *big.Int) float64 {
	if v == nil {
		return 0
	}
	f, _ := new(big.Float).SetInt(v).Float64()
	return f
}

func rayToFloat(v *big.Int) float64 {
	if v == nil {
		return 0
	}
	f, _ := new(big.Float).Quo(new(big.Float).SetInt(v), rayFloat).Float64()
	return f
}
