package book

import (
	"fmt"

	"main/internal/schema"
)

// Level is one price level of the book.
type Level struct {
	Px  float64
	Qty float64
}

// Config shapes the synthetic book built around a mid price.
type Config struct {
	Levels   int
	TickSize float64
	DepthQty float64
}

// Validate checks the book shape parameters.
func (c Config) Validate() error {
	if c.Levels <= 0 {
		return fmt.Errorf("levels must be > 0")
	}
	if c.TickSize <= 0 {
		return fmt.Errorf("tick size must be > 0")
	}
	if c.DepthQty <= 0 {
		return fmt.Errorf("depth qty must be > 0")
	}
	return nil
}

// DefaultConfig returns the standard 20-level book shape.
func DefaultConfig() Config {
	return Config{Levels: 20, TickSize: 0.5, DepthQty: 2.0}
}

// Book is a simple discrete order book with N levels on each side of a
// mid price. Asks ascend from mid + tick, bids descend from mid - tick.
type Book struct {
	cfg  Config
	bids []Level
	asks []Level
}

// ExecResult is the outcome of walking the book with a market order.
type ExecResult struct {
	FilledQty float64
	AvgPrice  float64
	Partial   bool
}

// New builds an empty book with the given shape.
func New(cfg Config) (*Book, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Book{
		cfg:  cfg,
		bids: make([]Level, 0, cfg.Levels),
		asks: make([]Level, 0, cfg.Levels),
	}, nil
}

// Reset rebuilds both sides around a new mid price, restoring the full
// configured depth.
func (b *Book) Reset(mid float64) {
	b.bids = b.bids[:0]
	b.asks = b.asks[:0]
	for i := 1; i <= b.cfg.Levels; i++ {
		step := float64(i) * b.cfg.TickSize
		b.asks = append(b.asks, Level{Px: mid + step, Qty: b.cfg.DepthQty})
		bidPx := mid - step
		if bidPx <= 0 {
			continue
		}
		b.bids = append(b.bids, Level{Px: bidPx, Qty: b.cfg.DepthQty})
	}
}

// BestBid returns the top bid price, or 0 when the side is empty.
func (b *Book) BestBid() float64 {
	if len(b.bids) == 0 {
		return 0
	}
	return b.bids[0].Px
}

// BestAsk returns the top ask price, or 0 when the side is empty.
func (b *Book) BestAsk() float64 {
	if len(b.asks) == 0 {
		return 0
	}
	return b.asks[0].Px
}

// ExecuteMarket walks levels from best inward, accumulating volume until
// qty is satisfied or the side is exhausted. Buys cross the ask, sells
// the bid. On exhaustion a partial result is returned; the caller decides
// acceptance.
func (b *Book) ExecuteMarket(side schema.Side, qty float64) ExecResult {
	if qty <= 0 {
		return ExecResult{}
	}

	var levels *[]Level
	switch side {
	case schema.SideBuy:
		levels = &b.asks
	case schema.SideSell:
		levels = &b.bids
	default:
		return ExecResult{}
	}

	remaining := qty
	var filled, notional float64
	for i := range *levels {
		if remaining <= 0 {
			break
		}
		level := &(*levels)[i]
		if level.Qty <= 0 {
			continue
		}
		take := min(remaining, level.Qty)
		level.Qty -= take
		remaining -= take
		filled += take
		notional += take * level.Px
	}

	kept := (*levels)[:0]
	for _, level := range *levels {
		if level.Qty > 0 {
			kept = append(kept, level)
		}
	}
	*levels = kept

	res := ExecResult{FilledQty: filled, Partial: remaining > 0}
	if filled > 0 {
		res.AvgPrice = notional / filled
	}
	return res
}
