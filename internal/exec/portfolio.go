package exec

import (
	"main/internal/schema"
)

// Portfolio tracks cash, position, and PnL under average-cost accounting.
// It is single-writer: only the execution stage mutates it.
type Portfolio struct {
	startingEquity float64
	cash           float64
	positionQty    float64
	avgEntry       float64
	realizedPnl    float64
	fillsCount     uint64
	buyFills       uint64
	sellFills      uint64
	closedPnls     []float64
	outcomes       OutcomeTracker
}

// NewPortfolio creates a flat portfolio holding the starting equity in
// cash.
func NewPortfolio(startingEquity float64) *Portfolio {
	return &Portfolio{
		startingEquity: startingEquity,
		cash:           startingEquity,
	}
}

// ApplyFill updates cash and position for a fill and returns the realized
// PnL delta of any closed quantity.
func (p *Portfolio) ApplyFill(side schema.Side, qty, fillPx, fee float64) float64 {
	signedQty := qty
	if side == schema.SideSell {
		signedQty = -qty
	}

	switch side {
	case schema.SideBuy:
		p.cash -= qty*fillPx + fee
		p.buyFills++
	case schema.SideSell:
		p.cash += qty*fillPx - fee
		p.sellFills++
	default:
		return 0
	}
	p.fillsCount++

	var realized float64
	if p.positionQty == 0 || sameSign(p.positionQty, signedQty) {
		total := abs(p.positionQty) + qty
		p.avgEntry = (p.avgEntry*abs(p.positionQty) + fillPx*qty) / total
		p.positionQty += signedQty
	} else {
		closeQty := min(abs(p.positionQty), qty)
		if p.positionQty > 0 {
			realized = (fillPx - p.avgEntry) * closeQty
		} else {
			realized = (p.avgEntry - fillPx) * closeQty
		}
		p.realizedPnl += realized
		p.closedPnls = append(p.closedPnls, realized)

		p.positionQty += signedQty
		if p.positionQty == 0 {
			p.avgEntry = 0
		} else if qty > closeQty {
			// flipped through flat; the remainder opens at the fill price
			p.avgEntry = fillPx
		}
	}

	p.outcomes.ApplyFill(side, fillPx, qty)
	return realized
}

// Snapshot marks the portfolio to the given price.
func (p *Portfolio) Snapshot(markPx float64) schema.PortfolioSnapshot {
	unrealized := 0.0
	if p.positionQty != 0 {
		if p.positionQty > 0 {
			unrealized = (markPx - p.avgEntry) * p.positionQty
		} else {
			unrealized = (p.avgEntry - markPx) * -p.positionQty
		}
	}
	return schema.PortfolioSnapshot{
		Equity:        p.cash + p.positionQty*markPx,
		Cash:          p.cash,
		PositionQty:   p.positionQty,
		RealizedPnl:   p.realizedPnl,
		UnrealizedPnl: unrealized,
		FillsCount:    p.fillsCount,
	}
}

// RealizedPnl returns the accumulated realized PnL.
func (p *Portfolio) RealizedPnl() float64 {
	return p.realizedPnl
}

// PositionQty returns the signed open position.
func (p *Portfolio) PositionQty() float64 {
	return p.positionQty
}

// FillsCount returns the total number of applied fills.
func (p *Portfolio) FillsCount() uint64 {
	return p.fillsCount
}

// SideCounts returns per-side fill counters.
func (p *Portfolio) SideCounts() (buys, sells uint64) {
	return p.buyFills, p.sellFills
}

// WinRatePct returns the percentage of closed trades with positive PnL,
// with the number of closed trades as the denominator marker. No closed
// trades yields 0.0 and closed=0.
func (p *Portfolio) WinRatePct() (rate float64, closed uint64) {
	return p.outcomes.WinRatePct()
}

// Reset returns the portfolio to its flat starting state.
func (p *Portfolio) Reset() {
	*p = *NewPortfolio(p.startingEquity)
}

func sameSign(a, b float64) bool {
	return (a > 0) == (b > 0)
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
