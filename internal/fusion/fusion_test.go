package fusion

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"main/internal/schema"
)

func newFuser(t *testing.T, cfg Config) *Fuser {
	t.Helper()
	f, err := NewFuser(cfg)
	require.NoError(t, err)
	return f
}

func tick(source string, px float64, tsMs int64) schema.PredictorTick {
	return schema.PredictorTick{Source: source, Px: px, TsMs: tsMs}
}

func TestStalePredictorsAreExcluded(t *testing.T) {
	f := newFuser(t, DefaultConfig())
	now := int64(10_000)

	f.Ingest(tick("tradingview", 64_100, now-500))
	f.Ingest(tick("cryptoquant", 60_000, now-3_000))

	ref, ok := f.Compute(now)
	require.True(t, ok)
	assert.Equal(t, 64_100.0, ref.Px)
	assert.Equal(t, 1, ref.SourcesUsed)
}

func TestNoFreshSourceYieldsNoReference(t *testing.T) {
	f := newFuser(t, DefaultConfig())
	now := int64(10_000)

	_, ok := f.Compute(now)
	assert.False(t, ok)

	f.Ingest(tick("tradingview", 64_100, now-5_000))
	_, ok = f.Compute(now)
	assert.False(t, ok)
}

func TestMedianOfFreshSources(t *testing.T) {
	f := newFuser(t, Config{StalenessBudgetMs: 2_000, OutlierBps: 10_000})
	now := int64(10_000)

	f.Ingest(tick("a", 60_000, now))
	f.Ingest(tick("b", 60_050, now))
	f.Ingest(tick("c", 59_980, now))

	ref, ok := f.Compute(now)
	require.True(t, ok)
	assert.Equal(t, 60_000.0, ref.Px)
	assert.Equal(t, 3, ref.SourcesUsed)
	assert.InDelta(t, (60_050.0-59_980.0)/60_000.0*10_000, ref.SpreadBps, 1e-9)
}

func TestEvenCountUsesMidpointMedian(t *testing.T) {
	f := newFuser(t, Config{StalenessBudgetMs: 2_000, OutlierBps: 10_000})
	now := int64(10_000)

	f.Ingest(tick("a", 61_000, now))
	f.Ingest(tick("b", 61_100, now))

	ref, ok := f.Compute(now)
	require.True(t, ok)
	assert.Equal(t, 61_050.0, ref.Px)
}

func TestOutliersAreClippedAndMedianRecomputed(t *testing.T) {
	f := newFuser(t, DefaultConfig())
	now := int64(10_000)

	f.Ingest(tick("a", 60_000, now))
	f.Ingest(tick("b", 60_050, now))
	f.Ingest(tick("bad", 70_000, now))

	ref, ok := f.Compute(now)
	require.True(t, ok)
	assert.Equal(t, 2, ref.SourcesUsed)
	assert.Equal(t, 60_025.0, ref.Px)
}

func TestIngestKeepsLatestPerSourceAndRejectsInvalid(t *testing.T) {
	f := newFuser(t, Config{StalenessBudgetMs: 5_000, OutlierBps: 10_000})
	now := int64(10_000)

	f.Ingest(tick("a", 61_000, now-100))
	f.Ingest(tick("a", 60_500, now-200))
	f.Ingest(tick("bad", -1, now))
	f.Ingest(tick("bad", 0, now))

	ref, ok := f.Compute(now)
	require.True(t, ok)
	assert.Equal(t, 61_000.0, ref.Px)
	assert.Equal(t, 1, ref.SourcesUsed)
}

func TestResetDropsState(t *testing.T) {
	f := newFuser(t, DefaultConfig())
	now := int64(10_000)
	f.Ingest(tick("a", 61_000, now))

	f.Reset()

	_, ok := f.Compute(now)
	assert.False(t, ok)
}

func TestFusionConfigValidation(t *testing.T) {
	_, err := NewFuser(Config{StalenessBudgetMs: 0, OutlierBps: 100})
	assert.Error(t, err)
	_, err = NewFuser(Config{StalenessBudgetMs: 1_000, OutlierBps: -1})
	assert.Error(t, err)
}
