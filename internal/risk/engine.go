package risk

import (
	"fmt"
	"math"

	"main/internal/schema"
)

// HaltReasonDailyLossCap is the reason recorded by the daily-loss watcher.
const HaltReasonDailyLossCap = "daily_loss_cap"

// Config defines the static risk limits of a run.
type Config struct {
	StartingEquity float64
	MaxPositionQty float64
}

// Validate checks the limit parameters.
func (c Config) Validate() error {
	if !isFinite(c.StartingEquity) || c.StartingEquity <= 0 {
		return fmt.Errorf("starting equity must be finite and > 0")
	}
	if !isFinite(c.MaxPositionQty) || c.MaxPositionQty < 0 {
		return fmt.Errorf("max position must be finite and >= 0")
	}
	return nil
}

// Engine gates every intent before execution and watches the daily loss
// cap. It owns the persistent RiskState; only Reset clears a halt.
type Engine struct {
	cfg   Config
	state schema.RiskState
}

// NewEngine creates a risk engine with validated limits.
func NewEngine(cfg Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Engine{
		cfg: cfg,
		state: schema.RiskState{
			StartingEquity: cfg.StartingEquity,
		},
	}, nil
}

// State returns a copy of the current risk state.
func (e *Engine) State() schema.RiskState {
	return e.state
}

// Halted reports whether the kill-switch has fired.
func (e *Engine) Halted() bool {
	return e.state.Halted
}

// HaltReason returns the recorded halt reason, if any.
func (e *Engine) HaltReason() string {
	return e.state.HaltReason
}

// Evaluate applies the gate rules in order and returns the decision for
// the first failing rule, or an allow.
func (e *Engine) Evaluate(intent schema.Intent, settings schema.RuntimeSettings) schema.RiskDecision {
	decision := schema.RiskDecision{IntentID: intent.ID}

	if e.state.Halted {
		decision.Reason = schema.RejectHalted
		return decision
	}
	if settings.TradingPaused {
		decision.Reason = schema.RejectPaused
		return decision
	}
	if settings.ExecutionMode == schema.ModeLive && !settings.LiveFeatureEnabled {
		decision.Reason = schema.RejectLiveGateClosed
		return decision
	}

	projectedRiskPct := intent.Qty * intent.MarkPx / e.cfg.StartingEquity * 100
	if projectedRiskPct > settings.RiskPerTradePct {
		decision.Reason = schema.RejectRiskCap
		return decision
	}

	if e.cfg.MaxPositionQty > 0 {
		next := e.state.PositionQty
		switch intent.Side {
		case schema.SideBuy:
			next += intent.Qty
		case schema.SideSell:
			next -= intent.Qty
		}
		if math.Abs(next) > e.cfg.MaxPositionQty {
			decision.Reason = schema.RejectPositionCap
			return decision
		}
	}

	decision.Allowed = true
	decision.Reason = schema.RejectNone
	return decision
}

// ApplyFill folds a fill's position and realized-PnL deltas into the risk
// state, then runs the daily-loss watcher. Returns true when this update
// tripped the kill-switch.
func (e *Engine) ApplyFill(side schema.Side, qty, realizedDelta float64, dailyLossCapPct float64) bool {
	switch side {
	case schema.SideBuy:
		e.state.PositionQty += qty
	case schema.SideSell:
		e.state.PositionQty -= qty
	}
	e.state.RealizedPnl += realizedDelta
	return e.checkDailyLoss(dailyLossCapPct)
}

func (e *Engine) checkDailyLoss(dailyLossCapPct float64) bool {
	if e.state.Halted {
		return false
	}
	cap := e.cfg.StartingEquity * dailyLossCapPct / 100
	if e.state.RealizedPnl <= -cap {
		e.state.Halted = true
		e.state.HaltReason = HaltReasonDailyLossCap
		return true
	}
	return false
}

// TriggerHalt fires the kill-switch with an explicit reason.
func (e *Engine) TriggerHalt(reason string) {
	if e.state.Halted {
		return
	}
	e.state.Halted = true
	e.state.HaltReason = reason
}

// Reset clears accumulators and the halt flag; the only path out of a
// halted run.
func (e *Engine) Reset() {
	e.state = schema.RiskState{
		StartingEquity: e.cfg.StartingEquity,
		DayEpoch:       e.state.DayEpoch + 1,
	}
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
