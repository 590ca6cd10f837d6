package settings

import (
	"errors"
	"math"
	"sync"
	"sync/atomic"

	"main/internal/schema"
)

var (
	ErrNonFinite      = errors.New("settings: value must be finite")
	ErrPctOutOfRange  = errors.New("settings: percentage must be in (0, 100]")
	ErrLiveGateClosed = errors.New("settings: live mode requires the live feature gate")
)

// Patch is a partial settings update; nil fields are left unchanged.
type Patch struct {
	ExecutionMode   *schema.ExecutionMode `json:"execution_mode"`
	TradingPaused   *bool                 `json:"trading_paused"`
	LagThresholdPct *float64              `json:"lag_threshold_pct"`
	RiskPerTradePct *float64              `json:"risk_per_trade_pct"`
	DailyLossCapPct *float64              `json:"daily_loss_cap_pct"`
}

// Store holds the runtime settings behind an atomic snapshot pointer.
// Writers serialize through a mutex; readers never block.
type Store struct {
	writeMu sync.Mutex
	current atomic.Pointer[schema.RuntimeSettings]
}

// NewStore creates a store seeded with validated initial settings.
func NewStore(initial schema.RuntimeSettings) (*Store, error) {
	if err := Validate(initial); err != nil {
		return nil, err
	}
	s := &Store{}
	s.current.Store(&initial)
	return s, nil
}

// Snapshot returns the current settings by value.
func (s *Store) Snapshot() schema.RuntimeSettings {
	return *s.current.Load()
}

// Apply validates a patch against the current snapshot and swaps in the
// merged settings. On rejection the state is unchanged.
func (s *Store) Apply(patch Patch) (schema.RuntimeSettings, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	next := *s.current.Load()
	if patch.ExecutionMode != nil {
		next.ExecutionMode = *patch.ExecutionMode
	}
	if patch.TradingPaused != nil {
		next.TradingPaused = *patch.TradingPaused
	}
	if patch.LagThresholdPct != nil {
		next.LagThresholdPct = *patch.LagThresholdPct
	}
	if patch.RiskPerTradePct != nil {
		next.RiskPerTradePct = *patch.RiskPerTradePct
	}
	if patch.DailyLossCapPct != nil {
		next.DailyLossCapPct = *patch.DailyLossCapPct
	}

	if err := Validate(next); err != nil {
		return schema.RuntimeSettings{}, err
	}
	s.current.Store(&next)
	return next, nil
}

// SetLiveFeature flips the live feature gate; turning it off while in
// live mode drops the mode back to paper.
func (s *Store) SetLiveFeature(enabled bool) schema.RuntimeSettings {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	next := *s.current.Load()
	next.LiveFeatureEnabled = enabled
	if !enabled && next.ExecutionMode == schema.ModeLive {
		next.ExecutionMode = schema.ModePaper
	}
	s.current.Store(&next)
	return next
}

// Validate checks a full settings snapshot.
func Validate(settings schema.RuntimeSettings) error {
	for _, pct := range []float64{
		settings.LagThresholdPct,
		settings.RiskPerTradePct,
		settings.DailyLossCapPct,
	} {
		if math.IsNaN(pct) || math.IsInf(pct, 0) {
			return ErrNonFinite
		}
		if pct <= 0 || pct > 100 {
			return ErrPctOutOfRange
		}
	}
	if settings.ExecutionMode == schema.ModeLive && !settings.LiveFeatureEnabled {
		return ErrLiveGateClosed
	}
	return nil
}
