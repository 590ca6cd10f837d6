package feed

import (
	"context"

	"main/internal/schema"
)

// Health reports the liveness of one predictor source.
type Health struct {
	Source      string
	Healthy     bool
	Ticks       uint64
	ParseErrors uint64
	Suppressed  bool
}

// Adapter is the capability set every predictor source implements.
// Selection is static at startup; the pipeline never switches adapters
// mid-run.
type Adapter interface {
	// Subscribe prepares the source for polling.
	Subscribe(ctx context.Context) error
	// NextTick fetches the next predictor sample.
	NextTick(ctx context.Context) (schema.PredictorTick, error)
	// Health returns the source's current health view.
	Health() Health
}
