package gen

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSeededGeneratorsAreDeterministic(t *testing.T) {
	newPair := func() (*PredictionGenerator, *MarketGenerator) {
		pred, err := NewPredictionGenerator(PredictionConfig{Seed: 42, StartPrice: 100, Sigma: 0.001})
		require.NoError(t, err)
		mkt, err := NewMarketGenerator(MarketConfig{
			Seed:               42,
			StartPrice:         100,
			MarketLagMs:        120,
			DecisionIntervalMs: 50,
			MicroNoiseBps:      3,
		})
		require.NoError(t, err)
		return pred, mkt
	}

	predA, mktA := newPair()
	predB, mktB := newPair()

	for i := 0; i < 100; i++ {
		pxA := predA.Next()
		pxB := predB.Next()
		require.Equal(t, pxA, pxB, "prediction diverged at step %d", i)
		require.Equal(t, mktA.Next(pxA), mktB.Next(pxB), "market diverged at step %d", i)
	}
}

func TestPredictionStaysPositive(t *testing.T) {
	pred, err := NewPredictionGenerator(PredictionConfig{Seed: 1, StartPrice: 1.5, Sigma: 0.5})
	require.NoError(t, err)

	for i := 0; i < 1000; i++ {
		assert.Greater(t, pred.Next(), 0.0)
	}
}

func TestMarketDelayLineDepth(t *testing.T) {
	tests := []struct {
		name       string
		lagMs      int64
		intervalMs int64
		depth      int
	}{
		{"exact multiple", 100, 50, 2},
		{"rounds up", 120, 50, 3},
		{"sub interval", 10, 50, 1},
		{"zero lag", 0, 50, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mkt, err := NewMarketGenerator(MarketConfig{
				Seed:               7,
				StartPrice:         100,
				MarketLagMs:        tt.lagMs,
				DecisionIntervalMs: tt.intervalMs,
			})
			require.NoError(t, err)
			assert.Equal(t, tt.depth, mkt.Depth())
		})
	}
}

func TestMarketLagsPredictionByDepthTicks(t *testing.T) {
	mkt, err := NewMarketGenerator(MarketConfig{
		Seed:               7,
		StartPrice:         100,
		MarketLagMs:        150,
		DecisionIntervalMs: 50,
	})
	require.NoError(t, err)
	require.Equal(t, 3, mkt.Depth())

	inputs := []float64{101, 102, 103, 104, 105, 106}
	var outputs []float64
	for _, px := range inputs {
		outputs = append(outputs, mkt.Next(px))
	}

	// the first depth outputs are the pre-filled start price
	assert.Equal(t, []float64{100, 100, 100, 101, 102, 103}, outputs)
}

func TestGeneratorConfigValidation(t *testing.T) {
	_, err := NewPredictionGenerator(PredictionConfig{Seed: 1, StartPrice: 0, Sigma: 0.001})
	assert.Error(t, err)

	_, err = NewPredictionGenerator(PredictionConfig{Seed: 1, StartPrice: 100, Sigma: -1})
	assert.Error(t, err)

	_, err = NewMarketGenerator(MarketConfig{Seed: 1, StartPrice: 100, MarketLagMs: 100, DecisionIntervalMs: 0})
	assert.Error(t, err)
}
