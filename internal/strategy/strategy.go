package strategy

import (
	"errors"
	"math"

	"main/internal/schema"
)

var (
	ErrNonFiniteInput      = errors.New("strategy: non-finite input")
	ErrNonPositiveMarketPx = errors.New("strategy: market price must be > 0")
	ErrNegativeThreshold   = errors.New("strategy: threshold must be >= 0")
)

// Config holds the divergence strategy parameters. Threshold is the
// normalized divergence band; LotStep is the order size granularity.
type Config struct {
	Threshold float64
	LotStep   float64
}

// DefaultConfig returns the baseline strategy parameters.
func DefaultConfig() Config {
	return Config{Threshold: 0.003, LotStep: 0.01}
}

// Divergence returns (prediction - market) / market.
func Divergence(predictionPx, marketPx float64) (float64, error) {
	if !isFinite(predictionPx) || !isFinite(marketPx) {
		return 0, ErrNonFiniteInput
	}
	if marketPx <= 0 {
		return 0, ErrNonPositiveMarketPx
	}
	return (predictionPx - marketPx) / marketPx, nil
}

// ComputeSignal maps a (prediction, market) pair to a signal. The band is
// open: divergence exactly at the threshold yields Hold.
func ComputeSignal(predictionPx, marketPx float64, cfg Config, nowMs int64) (schema.Signal, error) {
	div, err := Divergence(predictionPx, marketPx)
	if err != nil {
		return schema.Signal{}, err
	}
	if !isFinite(cfg.Threshold) {
		return schema.Signal{}, ErrNonFiniteInput
	}
	if cfg.Threshold < 0 {
		return schema.Signal{}, ErrNegativeThreshold
	}

	signal := schema.Signal{
		Action:        schema.ActionHold,
		DivergencePct: div * 100,
		EmittedTsMs:   nowMs,
	}
	switch {
	case div > cfg.Threshold:
		signal.Action = schema.ActionBuy
	case div < -cfg.Threshold:
		signal.Action = schema.ActionSell
	}
	return signal, nil
}

// SizeIntent computes the order quantity for a signal:
// floor((starting_equity * risk_per_trade_pct/100) / mark_px / lot_step)
// lots. A zero-lot result means no intent should be emitted.
func SizeIntent(startingEquity, riskPerTradePct, markPx, lotStep float64) float64 {
	if startingEquity <= 0 || riskPerTradePct <= 0 || markPx <= 0 || lotStep <= 0 {
		return 0
	}
	budget := startingEquity * riskPerTradePct / 100
	lots := math.Floor(budget / markPx / lotStep)
	if lots < 1 {
		return 0
	}
	return lots * lotStep
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
