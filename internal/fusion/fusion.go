package fusion

import (
	"fmt"
	"math"
	"sort"

	"main/internal/schema"
)

const (
	// DefaultStalenessBudgetMs excludes predictor samples older than this.
	DefaultStalenessBudgetMs int64 = 2_000
	// DefaultOutlierBps is the clipping band around the baseline median.
	DefaultOutlierBps float64 = 200.0
)

// Config holds the fusion parameters.
type Config struct {
	StalenessBudgetMs int64
	OutlierBps        float64
}

// Validate checks the fusion parameters.
func (c Config) Validate() error {
	if c.StalenessBudgetMs <= 0 {
		return fmt.Errorf("staleness budget must be > 0")
	}
	if !isFinite(c.OutlierBps) || c.OutlierBps < 0 {
		return fmt.Errorf("outlier band must be finite and >= 0")
	}
	return nil
}

// DefaultConfig returns the standard fusion parameters.
func DefaultConfig() Config {
	return Config{
		StalenessBudgetMs: DefaultStalenessBudgetMs,
		OutlierBps:        DefaultOutlierBps,
	}
}

// Fuser normalizes up to K predictor streams into a reference price. It
// keeps the latest valid tick per source and fuses on demand.
type Fuser struct {
	cfg    Config
	latest map[string]schema.PredictorTick
}

// NewFuser creates a fuser with validated parameters.
func NewFuser(cfg Config) (*Fuser, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Fuser{
		cfg:    cfg,
		latest: make(map[string]schema.PredictorTick),
	}, nil
}

// Ingest records a predictor tick. Ticks with non-finite or non-positive
// prices are ignored, as are ticks older than the retained one for the
// same source.
func (f *Fuser) Ingest(tick schema.PredictorTick) {
	if !isFinite(tick.Px) || tick.Px <= 0 {
		return
	}
	if existing, ok := f.latest[tick.Source]; ok && existing.TsMs > tick.TsMs {
		return
	}
	f.latest[tick.Source] = tick
}

// Reset drops all retained predictor state.
func (f *Fuser) Reset() {
	for source := range f.latest {
		delete(f.latest, source)
	}
}

// Compute fuses the fresh predictors into a reference price. Returns
// false when no fresh source survives.
func (f *Fuser) Compute(nowMs int64) (schema.ReferencePrice, bool) {
	fresh := make([]schema.PredictorTick, 0, len(f.latest))
	for _, tick := range f.latest {
		if nowMs-tick.TsMs <= f.cfg.StalenessBudgetMs {
			fresh = append(fresh, tick)
		}
	}
	if len(fresh) == 0 {
		return schema.ReferencePrice{}, false
	}

	baseline := medianPx(fresh)
	kept := fresh[:0]
	dropped := false
	for _, tick := range fresh {
		if math.Abs(tick.Px-baseline)/baseline*10_000 > f.cfg.OutlierBps {
			dropped = true
			continue
		}
		kept = append(kept, tick)
	}
	if len(kept) == 0 {
		return schema.ReferencePrice{}, false
	}

	median := baseline
	if dropped {
		median = medianPx(kept)
	}

	minPx, maxPx := kept[0].Px, kept[0].Px
	tsMax := kept[0].TsMs
	for _, tick := range kept[1:] {
		minPx = math.Min(minPx, tick.Px)
		maxPx = math.Max(maxPx, tick.Px)
		if tick.TsMs > tsMax {
			tsMax = tick.TsMs
		}
	}

	return schema.ReferencePrice{
		Px:          median,
		SourcesUsed: len(kept),
		SpreadBps:   (maxPx - minPx) / median * 10_000,
		TsMs:        tsMax,
	}, true
}

func medianPx(ticks []schema.PredictorTick) float64 {
	prices := make([]float64, len(ticks))
	for i, tick := range ticks {
		prices[i] = tick.Px
	}
	sort.Float64s(prices)
	mid := len(prices) / 2
	if len(prices)%2 == 0 {
		return (prices[mid-1] + prices[mid]) / 2
	}
	return prices[mid]
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
