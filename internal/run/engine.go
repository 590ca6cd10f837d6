package run

import (
	"fmt"
	"math"

	"main/internal/book"
	"main/internal/exec"
	"main/internal/fusion"
	"main/internal/gen"
	"main/internal/replay"
	"main/internal/risk"
	"main/internal/schema"
	"main/internal/strategy"
)

// Stage names the pipeline steps of one decision tick.
type Stage uint16

const (
	StageAwaitTick Stage = iota
	StageDecide
	StageRiskCheck
	StageExecute
	StagePublish
)

// Name returns the lowercase stage token.
func (s Stage) Name() string {
	switch s {
	case StageAwaitTick:
		return "await_tick"
	case StageDecide:
		return "decide"
	case StageRiskCheck:
		return "risk_check"
	case StageExecute:
		return "execute"
	case StagePublish:
		return "publish"
	default:
		return "unknown"
	}
}

// Config drives one deterministic run.
type Config struct {
	Seed               uint64
	StartPrice         float64
	Sigma              float64
	MarketLagMs        int64
	DecisionIntervalMs int64
	MicroNoiseBps      float64
	SlippageBps        float64
	FeeBps             float64
	LotStep            float64
	MaxPositionQty     float64
	StartingEquity     float64
	MarketID           string
	Book               book.Config
	Fusion             fusion.Config
}

// DefaultConfig returns the baseline simulation parameters.
func DefaultConfig() Config {
	return Config{
		Seed:               7,
		StartPrice:         100.0,
		Sigma:              0.001,
		MarketLagMs:        120,
		DecisionIntervalMs: 50,
		SlippageBps:        10.0,
		FeeBps:             2.0,
		LotStep:            0.01,
		StartingEquity:     100_000.0,
		MarketID:           "btc-15m-forecast",
		Book:               book.DefaultConfig(),
		Fusion:             fusion.DefaultConfig(),
	}
}

// Validate checks the run parameters.
func (c Config) Validate() error {
	if c.StartPrice <= 0 {
		return fmt.Errorf("start price must be > 0")
	}
	if c.DecisionIntervalMs <= 0 {
		return fmt.Errorf("decision interval must be > 0")
	}
	if c.StartingEquity <= 0 {
		return fmt.Errorf("starting equity must be > 0")
	}
	if c.LotStep <= 0 {
		return fmt.Errorf("lot step must be > 0")
	}
	if c.SlippageBps < 0 || c.FeeBps < 0 {
		return fmt.Errorf("slippage and fee must be >= 0")
	}
	if c.MarketID == "" {
		return fmt.Errorf("market id required")
	}
	return nil
}

// StepResult is everything one decision tick produced.
type StepResult struct {
	Tick         uint64
	PredictionPx float64
	MarketPx     float64
	Reference    *schema.ReferencePrice
	Signal       schema.Signal
	Intent       *schema.Intent
	Decision     *schema.RiskDecision
	Fill         *schema.Fill
	Portfolio    *schema.PortfolioSnapshot
	HaltTripped  bool
	HaltReason   string
	LagTriggered bool
	Row          replay.Row
}

// Engine is the single-writer per-tick pipeline. It owns every piece of
// mutable run state; nothing else touches the generators, book, risk
// state, or portfolio.
type Engine struct {
	cfg Config

	predGen   *gen.PredictionGenerator
	mktGen    *gen.MarketGenerator
	fuser     *fusion.Fuser
	orderBook *book.Book
	riskEng   *risk.Engine
	portfolio *exec.Portfolio

	strategyCfg strategy.Config
	nextIntent  uint64
	lastMarket  float64
}

// NewEngine builds a seeded pipeline.
func NewEngine(cfg Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	predGen, err := gen.NewPredictionGenerator(gen.PredictionConfig{
		Seed:       cfg.Seed,
		StartPrice: cfg.StartPrice,
		Sigma:      cfg.Sigma,
	})
	if err != nil {
		return nil, err
	}
	mktGen, err := gen.NewMarketGenerator(gen.MarketConfig{
		Seed:               cfg.Seed,
		StartPrice:         cfg.StartPrice,
		MarketLagMs:        cfg.MarketLagMs,
		DecisionIntervalMs: cfg.DecisionIntervalMs,
		MicroNoiseBps:      cfg.MicroNoiseBps,
	})
	if err != nil {
		return nil, err
	}
	fuser, err := fusion.NewFuser(cfg.Fusion)
	if err != nil {
		return nil, err
	}
	orderBook, err := book.New(cfg.Book)
	if err != nil {
		return nil, err
	}
	riskEng, err := risk.NewEngine(risk.Config{
		StartingEquity: cfg.StartingEquity,
		MaxPositionQty: cfg.MaxPositionQty,
	})
	if err != nil {
		return nil, err
	}
	return &Engine{
		cfg:         cfg,
		predGen:     predGen,
		mktGen:      mktGen,
		fuser:       fuser,
		orderBook:   orderBook,
		riskEng:     riskEng,
		portfolio:   exec.NewPortfolio(cfg.StartingEquity),
		strategyCfg: strategy.Config{LotStep: cfg.LotStep},
	}, nil
}

// RiskState returns a copy of the engine's risk state.
func (e *Engine) RiskState() schema.RiskState {
	return e.riskEng.State()
}

// PortfolioSnapshot marks the portfolio at the given price.
func (e *Engine) PortfolioSnapshot(markPx float64) schema.PortfolioSnapshot {
	return e.portfolio.Snapshot(markPx)
}

// WinRate exposes the closed-trade outcome figures.
func (e *Engine) WinRate() (float64, uint64) {
	return e.portfolio.WinRatePct()
}

// LastMarketPx returns the most recent market price, or the start price
// before the first tick.
func (e *Engine) LastMarketPx() float64 {
	if e.lastMarket <= 0 {
		return e.cfg.StartPrice
	}
	return e.lastMarket
}

// IngestPredictor feeds an external predictor tick into the fusion stage.
func (e *Engine) IngestPredictor(tick schema.PredictorTick) {
	e.fuser.Ingest(tick)
}

// Halted reports the kill-switch state.
func (e *Engine) Halted() bool {
	return e.riskEng.Halted()
}

// TriggerHalt fires the kill-switch with an explicit reason (critical
// task failure, invariant breach).
func (e *Engine) TriggerHalt(reason string) {
	e.riskEng.TriggerHalt(reason)
}

// Reset zeroes every accumulator and reseeds the generators, the only
// path out of a halt.
func (e *Engine) Reset() error {
	fresh, err := NewEngine(e.cfg)
	if err != nil {
		return err
	}
	fresh.riskEng.Reset()
	*e = *fresh
	return nil
}

// Step runs one decision tick through the pipeline and returns the full
// result. The caller translates it into events; Step itself never
// publishes.
func (e *Engine) Step(tick uint64, nowMs int64, settings schema.RuntimeSettings) StepResult {
	res := StepResult{Tick: tick}

	// generate
	res.PredictionPx = e.predGen.Next()
	res.MarketPx = e.mktGen.Next(res.PredictionPx)
	e.lastMarket = res.MarketPx

	// fuse; the synthetic prediction stream doubles as a predictor source
	e.fuser.Ingest(schema.PredictorTick{
		Source: "prediction",
		Px:     res.PredictionPx,
		TsMs:   nowMs,
	})
	if ref, ok := e.fuser.Compute(nowMs); ok {
		res.Reference = &ref
	}

	if e.riskEng.Halted() {
		res.Row = e.row(tick, res, "halted")
		return res
	}

	// decide
	signal, err := strategy.ComputeSignal(res.PredictionPx, res.MarketPx, strategy.Config{
		Threshold: settings.LagThresholdPct / 100,
		LotStep:   e.strategyCfg.LotStep,
	}, nowMs)
	if err != nil {
		res.Row = e.row(tick, res, "hold")
		return res
	}
	res.Signal = signal

	side := schema.SideUnknown
	cause := schema.CauseDivergence
	switch signal.Action {
	case schema.ActionBuy:
		side = schema.SideBuy
	case schema.ActionSell:
		side = schema.SideSell
	default:
		if res.Reference != nil {
			lag, lagErr := fusion.DetectLag(res.Reference.Px, res.MarketPx, settings.LagThresholdPct)
			if lagErr == nil && lag.Triggered {
				res.LagTriggered = true
				side = lag.Direction
				cause = schema.CauseLagTrigger
			}
		}
	}
	if side == schema.SideUnknown {
		res.Row = e.row(tick, res, "hold")
		return res
	}

	qty := e.sizeAgainstBook(res.MarketPx, settings.RiskPerTradePct)
	if qty <= 0 {
		res.Row = e.row(tick, res, "hold")
		return res
	}

	e.nextIntent++
	intent := schema.Intent{
		ID:               e.nextIntent,
		Side:             side,
		Qty:              qty,
		MarketID:         e.cfg.MarketID,
		Cause:            cause,
		ProjectedRiskPct: qty * res.MarketPx / e.cfg.StartingEquity * 100,
		MarkPx:           res.MarketPx,
		TsMono:           nowMs * 1_000_000,
	}
	res.Intent = &intent

	// risk check
	decision := e.riskEng.Evaluate(intent, settings)
	res.Decision = &decision
	if !decision.Allowed {
		res.Row = e.row(tick, res, "hold")
		return res
	}

	// execute
	e.orderBook.Reset(res.MarketPx)
	walk := e.orderBook.ExecuteMarket(side, qty)
	if walk.FilledQty <= 0 {
		res.Row = e.row(tick, res, "hold")
		return res
	}

	var paperFill exec.PaperFill
	var fillErr error
	if side == schema.SideBuy {
		paperFill, fillErr = exec.FillBuy(walk.AvgPrice, walk.FilledQty, e.cfg.SlippageBps, e.cfg.FeeBps)
	} else {
		paperFill, fillErr = exec.FillSell(walk.AvgPrice, walk.FilledQty, e.cfg.SlippageBps, e.cfg.FeeBps)
	}
	if fillErr != nil {
		res.Row = e.row(tick, res, "hold")
		return res
	}

	fill := schema.Fill{
		IntentID: intent.ID,
		Side:     side,
		Qty:      paperFill.Qty,
		FillPx:   paperFill.FillPx,
		FeePaid:  paperFill.Fee,
		TsMs:     nowMs,
	}
	res.Fill = &fill

	realized := e.portfolio.ApplyFill(side, fill.Qty, fill.FillPx, fill.FeePaid)
	snapshot := e.portfolio.Snapshot(res.MarketPx)
	res.Portfolio = &snapshot

	if e.riskEng.ApplyFill(side, fill.Qty, realized, settings.DailyLossCapPct) {
		res.HaltTripped = true
		res.HaltReason = e.riskEng.HaltReason()
		res.Row = e.row(tick, res, "kill_switch")
		return res
	}

	res.Row = e.row(tick, res, side.Name())
	return res
}

// sizeAgainstBook sizes an intent so the eventual fill notional stays
// inside the per-trade risk budget even after the book walk and slippage
// move the price off the mark.
func (e *Engine) sizeAgainstBook(markPx, riskPerTradePct float64) float64 {
	base := strategy.SizeIntent(e.cfg.StartingEquity, riskPerTradePct, markPx, e.cfg.LotStep)
	if base <= 0 {
		return 0
	}
	levels := math.Ceil(base / e.cfg.Book.DepthQty)
	worstPx := (markPx + levels*e.cfg.Book.TickSize) * (1 + e.cfg.SlippageBps/10_000)
	return strategy.SizeIntent(e.cfg.StartingEquity, riskPerTradePct, worstPx, e.cfg.LotStep)
}

func (e *Engine) row(tick uint64, res StepResult, action string) replay.Row {
	snapshot := e.portfolio.Snapshot(res.MarketPx)
	state := e.riskEng.State()
	return replay.Row{
		T:           tick,
		ExternalPx:  res.PredictionPx,
		MarketPx:    res.MarketPx,
		Divergence:  res.Signal.DivergencePct / 100,
		Action:      action,
		Equity:      snapshot.Equity,
		RealizedPnl: snapshot.RealizedPnl,
		Position:    snapshot.PositionQty,
		Halted:      state.Halted,
	}
}
