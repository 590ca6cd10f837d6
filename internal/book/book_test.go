package book

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"main/internal/schema"
)

func newBook(t *testing.T, cfg Config) *Book {
	t.Helper()
	b, err := New(cfg)
	require.NoError(t, err)
	return b
}

func TestCrossingBuyFillsFromBestAsk(t *testing.T) {
	b := newBook(t, Config{Levels: 3, TickSize: 1, DepthQty: 2})
	b.Reset(100)

	res := b.ExecuteMarket(schema.SideBuy, 1.5)

	assert.Equal(t, 1.5, res.FilledQty)
	assert.False(t, res.Partial)
	assert.Equal(t, 101.0, res.AvgPrice)
}

func TestBuyWalksLevelsInward(t *testing.T) {
	b := newBook(t, Config{Levels: 3, TickSize: 1, DepthQty: 2})
	b.Reset(100)

	res := b.ExecuteMarket(schema.SideBuy, 3)

	require.Equal(t, 3.0, res.FilledQty)
	// 2 @ 101 plus 1 @ 102
	assert.InDelta(t, (2*101.0+1*102.0)/3, res.AvgPrice, 1e-12)
}

func TestSellCrossesBid(t *testing.T) {
	b := newBook(t, Config{Levels: 3, TickSize: 1, DepthQty: 2})
	b.Reset(100)

	res := b.ExecuteMarket(schema.SideSell, 2)

	assert.Equal(t, 2.0, res.FilledQty)
	assert.Equal(t, 99.0, res.AvgPrice)
}

func TestExhaustionReturnsPartialFill(t *testing.T) {
	b := newBook(t, Config{Levels: 2, TickSize: 1, DepthQty: 1})
	b.Reset(100)

	res := b.ExecuteMarket(schema.SideBuy, 5)

	assert.Equal(t, 2.0, res.FilledQty)
	assert.True(t, res.Partial)
	assert.Equal(t, 0.0, b.BestAsk())
}

func TestResetRestoresDepth(t *testing.T) {
	b := newBook(t, Config{Levels: 2, TickSize: 1, DepthQty: 1})
	b.Reset(100)
	b.ExecuteMarket(schema.SideBuy, 2)

	b.Reset(100)

	res := b.ExecuteMarket(schema.SideBuy, 2)
	assert.Equal(t, 2.0, res.FilledQty)
	assert.False(t, res.Partial)
}

func TestZeroAndUnknownSideAreNoops(t *testing.T) {
	b := newBook(t, DefaultConfig())
	b.Reset(100)

	assert.Equal(t, ExecResult{}, b.ExecuteMarket(schema.SideBuy, 0))
	assert.Equal(t, ExecResult{}, b.ExecuteMarket(schema.SideUnknown, 1))
}

func TestBidsNeverCrossZero(t *testing.T) {
	b := newBook(t, Config{Levels: 20, TickSize: 1, DepthQty: 1})
	b.Reset(5)

	assert.Greater(t, b.BestBid(), 0.0)
	res := b.ExecuteMarket(schema.SideSell, 100)
	assert.True(t, res.Partial)
	assert.Greater(t, res.AvgPrice, 0.0)
}
