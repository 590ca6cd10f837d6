package exec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"main/internal/schema"
)

func TestBuyThenSellRealizesAverageCostPnl(t *testing.T) {
	p := NewPortfolio(100_000)

	realized := p.ApplyFill(schema.SideBuy, 10, 100, 1)
	assert.Equal(t, 0.0, realized)

	realized = p.ApplyFill(schema.SideSell, 10, 105, 1)
	assert.InDelta(t, 50.0, realized, 1e-9)
	assert.InDelta(t, 50.0, p.RealizedPnl(), 1e-9)
	assert.Equal(t, 0.0, p.PositionQty())
}

func TestAverageCostBlendsAcrossBuys(t *testing.T) {
	p := NewPortfolio(100_000)
	p.ApplyFill(schema.SideBuy, 10, 100, 0)
	p.ApplyFill(schema.SideBuy, 10, 110, 0)

	realized := p.ApplyFill(schema.SideSell, 20, 105, 0)

	// avg entry 105, exit 105
	assert.InDelta(t, 0.0, realized, 1e-9)
}

func TestPartialCloseKeepsAverageEntry(t *testing.T) {
	p := NewPortfolio(100_000)
	p.ApplyFill(schema.SideBuy, 10, 100, 0)

	realized := p.ApplyFill(schema.SideSell, 4, 110, 0)
	assert.InDelta(t, 40.0, realized, 1e-9)
	assert.Equal(t, 6.0, p.PositionQty())

	realized = p.ApplyFill(schema.SideSell, 6, 90, 0)
	assert.InDelta(t, -60.0, realized, 1e-9)
}

func TestFlipThroughFlatOpensAtFillPrice(t *testing.T) {
	p := NewPortfolio(100_000)
	p.ApplyFill(schema.SideBuy, 5, 100, 0)

	realized := p.ApplyFill(schema.SideSell, 8, 110, 0)
	assert.InDelta(t, 50.0, realized, 1e-9)
	assert.Equal(t, -3.0, p.PositionQty())

	// closing the short at its 110 entry realizes nothing
	realized = p.ApplyFill(schema.SideBuy, 3, 110, 0)
	assert.InDelta(t, 0.0, realized, 1e-9)
}

func TestEquityConservation(t *testing.T) {
	p := NewPortfolio(100_000)
	fills := []struct {
		side schema.Side
		qty  float64
		px   float64
		fee  float64
	}{
		{schema.SideBuy, 5, 100, 0.1},
		{schema.SideBuy, 3, 102, 0.06},
		{schema.SideSell, 6, 101, 0.12},
		{schema.SideSell, 2, 99, 0.04},
		{schema.SideBuy, 1, 98, 0.02},
	}

	for _, f := range fills {
		p.ApplyFill(f.side, f.qty, f.px, f.fee)
		snap := p.Snapshot(f.px)
		assert.InDelta(t, snap.Equity, snap.Cash+snap.PositionQty*f.px, 1e-6*100_000)
	}
}

func TestSnapshotCounters(t *testing.T) {
	p := NewPortfolio(100_000)
	p.ApplyFill(schema.SideBuy, 1, 100, 0)
	p.ApplyFill(schema.SideBuy, 1, 100, 0)
	p.ApplyFill(schema.SideSell, 1, 101, 0)

	snap := p.Snapshot(100)
	assert.Equal(t, uint64(3), snap.FillsCount)

	buys, sells := p.SideCounts()
	assert.Equal(t, uint64(2), buys)
	assert.Equal(t, uint64(1), sells)
}

func TestWinRateWithNoClosedTrades(t *testing.T) {
	p := NewPortfolio(100_000)

	rate, closed := p.WinRatePct()
	assert.Equal(t, 0.0, rate)
	assert.Equal(t, uint64(0), closed)

	p.ApplyFill(schema.SideBuy, 1, 100, 0)
	rate, closed = p.WinRatePct()
	assert.Equal(t, 0.0, rate)
	assert.Equal(t, uint64(0), closed)
}

func TestWinRateCountsWinningAndLosingCloses(t *testing.T) {
	p := NewPortfolio(100_000)
	p.ApplyFill(schema.SideBuy, 1, 100, 0)
	p.ApplyFill(schema.SideSell, 1, 110, 0)
	p.ApplyFill(schema.SideBuy, 1, 100, 0)
	p.ApplyFill(schema.SideSell, 1, 90, 0)

	rate, closed := p.WinRatePct()
	require.Equal(t, uint64(2), closed)
	assert.InDelta(t, 50.0, rate, 1e-9)
}

func TestResetReturnsToFlatStart(t *testing.T) {
	p := NewPortfolio(100_000)
	p.ApplyFill(schema.SideBuy, 5, 100, 1)

	p.Reset()

	snap := p.Snapshot(100)
	assert.Equal(t, 100_000.0, snap.Cash)
	assert.Equal(t, 0.0, snap.PositionQty)
	assert.Equal(t, uint64(0), snap.FillsCount)
}
