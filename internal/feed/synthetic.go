package feed

import (
	"context"
	"sync/atomic"

	"main/internal/schema"
)

// SyntheticPredictor adapts the seeded prediction process into the
// predictor capability set, so sim mode shares the fusion pipeline with
// paper-live mode.
type SyntheticPredictor struct {
	source string
	next   func() (px float64, tsMs int64)
	ticks  uint64
}

// NewSyntheticPredictor wraps a price callback as a predictor source.
func NewSyntheticPredictor(source string, next func() (float64, int64)) *SyntheticPredictor {
	return &SyntheticPredictor{source: source, next: next}
}

// Subscribe is a no-op for synthetic sources.
func (p *SyntheticPredictor) Subscribe(_ context.Context) error {
	return nil
}

// NextTick pulls the next synthetic sample.
func (p *SyntheticPredictor) NextTick(_ context.Context) (schema.PredictorTick, error) {
	px, tsMs := p.next()
	atomic.AddUint64(&p.ticks, 1)
	return schema.PredictorTick{
		Source: p.source,
		Px:     px,
		TsMs:   tsMs,
	}, nil
}

// Health reports the synthetic source as healthy once ticking.
func (p *SyntheticPredictor) Health() Health {
	ticks := atomic.LoadUint64(&p.ticks)
	return Health{
		Source:  p.source,
		Healthy: ticks > 0,
		Ticks:   ticks,
	}
}
