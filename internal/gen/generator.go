package gen

import (
	"fmt"
	"math/rand/v2"
)

const (
	streamPrediction uint64 = 1
	streamMarket     uint64 = 2

	minPrice = 1.0
)

// PredictionConfig drives the synthetic prediction price process.
type PredictionConfig struct {
	Seed       uint64
	StartPrice float64
	Sigma      float64
}

// Validate checks the process parameters.
func (c PredictionConfig) Validate() error {
	if c.StartPrice <= 0 {
		return fmt.Errorf("start price must be > 0")
	}
	if c.Sigma < 0 {
		return fmt.Errorf("sigma must be >= 0")
	}
	return nil
}

// PredictionGenerator produces a geometric-Brownian-style price walk:
// px_{t+1} = px_t * (1 + sigma * N(0,1)), floored at the minimum price.
type PredictionGenerator struct {
	rng   *rand.Rand
	price float64
	sigma float64
}

// NewPredictionGenerator creates a seeded prediction price generator.
func NewPredictionGenerator(cfg PredictionConfig) (*PredictionGenerator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &PredictionGenerator{
		rng:   NewStream(cfg.Seed, streamPrediction),
		price: cfg.StartPrice,
		sigma: cfg.Sigma,
	}, nil
}

// Next advances the process and returns the new price.
func (g *PredictionGenerator) Next() float64 {
	g.price *= 1 + g.sigma*g.rng.NormFloat64()
	if g.price < minPrice {
		g.price = minPrice
	}
	return g.price
}

// MarketConfig drives the lagged market tick producer.
type MarketConfig struct {
	Seed               uint64
	StartPrice         float64
	MarketLagMs        int64
	DecisionIntervalMs int64
	MicroNoiseBps      float64
}

// Validate checks the lag-line parameters.
func (c MarketConfig) Validate() error {
	if c.StartPrice <= 0 {
		return fmt.Errorf("start price must be > 0")
	}
	if c.MarketLagMs < 0 {
		return fmt.Errorf("market lag must be >= 0")
	}
	if c.DecisionIntervalMs <= 0 {
		return fmt.Errorf("decision interval must be > 0")
	}
	if c.MicroNoiseBps < 0 {
		return fmt.Errorf("micro noise must be >= 0")
	}
	return nil
}

// MarketGenerator replays prediction prices through a FIFO delay line of
// ceil(market_lag_ms / decision_interval_ms) slots, optionally perturbed
// by a second random stream of micro-noise.
type MarketGenerator struct {
	rng      *rand.Rand
	line     []float64
	head     int
	noiseBps float64
}

// NewMarketGenerator creates a lagged market generator pre-filled with
// the start price.
func NewMarketGenerator(cfg MarketConfig) (*MarketGenerator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	depth := int((cfg.MarketLagMs + cfg.DecisionIntervalMs - 1) / cfg.DecisionIntervalMs)
	if depth < 1 {
		depth = 1
	}
	line := make([]float64, depth)
	for i := range line {
		line[i] = cfg.StartPrice
	}
	return &MarketGenerator{
		rng:      NewStream(cfg.Seed, streamMarket),
		line:     line,
		noiseBps: cfg.MicroNoiseBps,
	}, nil
}

// Next pushes the latest prediction price into the delay line and returns
// the lagged market price.
func (g *MarketGenerator) Next(predictionPx float64) float64 {
	lagged := g.line[g.head]
	g.line[g.head] = predictionPx
	g.head = (g.head + 1) % len(g.line)

	if g.noiseBps > 0 {
		lagged *= 1 + (g.rng.Float64()*2-1)*g.noiseBps/10_000
		if lagged < minPrice {
			lagged = minPrice
		}
	}
	return lagged
}

// Depth returns the delay line length in decision ticks.
func (g *MarketGenerator) Depth() int {
	return len(g.line)
}
