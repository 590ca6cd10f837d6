package fusion

import (
	"errors"
	"math"

	"main/internal/schema"
)

var (
	ErrInvalidMarketPx  = errors.New("fusion: market price must be finite and > 0")
	ErrInvalidReference = errors.New("fusion: reference price must be finite and > 0")
	ErrInvalidThreshold = errors.New("fusion: threshold must be in (0, 100]")
)

// LagSignal is the lag detector output for one reference/market pair.
type LagSignal struct {
	ReferencePx   float64
	MarketPx      float64
	DivergencePct float64
	Triggered     bool
	Direction     schema.Side
}

// DetectLag compares a fused reference price against the latest market
// price. The trigger boundary is closed: |divergence_pct| equal to the
// threshold triggers.
func DetectLag(referencePx, marketPx, thresholdPct float64) (LagSignal, error) {
	if !isFinite(referencePx) || referencePx <= 0 {
		return LagSignal{}, ErrInvalidReference
	}
	if !isFinite(marketPx) || marketPx <= 0 {
		return LagSignal{}, ErrInvalidMarketPx
	}
	if !isFinite(thresholdPct) || thresholdPct <= 0 || thresholdPct > 100 {
		return LagSignal{}, ErrInvalidThreshold
	}

	divergencePct := (referencePx - marketPx) / marketPx * 100
	signal := LagSignal{
		ReferencePx:   referencePx,
		MarketPx:      marketPx,
		DivergencePct: divergencePct,
		Triggered:     math.Abs(divergencePct) >= thresholdPct,
	}
	if signal.Triggered {
		if divergencePct > 0 {
			signal.Direction = schema.SideBuy
		} else {
			signal.Direction = schema.SideSell
		}
	}
	return signal, nil
}
