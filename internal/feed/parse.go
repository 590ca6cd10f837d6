package feed

import (
	"errors"
	"math"

	"main/internal/schema"
	"main/pkg/scanner"
)

var (
	ErrMalformedPayload = errors.New("feed: malformed predictor payload")
	ErrInvalidPx        = errors.New("feed: prediction price must be finite and > 0")
	ErrSourceError      = errors.New("feed: predictor source reported an error")
)

var (
	keyTradingViewPx = []byte(`"prediction"`)
	keyCryptoQuantPx = []byte(`"predicted_px"`)
	keyConfidence    = []byte(`"confidence"`)
	keyStatus        = []byte(`"status"`)
)

// ParseTradingViewPayload extracts a predictor tick from a TradingView
// webhook body: {"prediction": <px>, "confidence": <0..1>}.
func ParseTradingViewPayload(payload []byte, tsMs int64) (schema.PredictorTick, error) {
	return parsePredictorPayload("tradingview", keyTradingViewPx, payload, tsMs)
}

// ParseCryptoQuantPayload extracts a predictor tick from a CryptoQuant
// response body: {"predicted_px": <px>, "confidence": <0..1>}.
func ParseCryptoQuantPayload(payload []byte, tsMs int64) (schema.PredictorTick, error) {
	return parsePredictorPayload("cryptoquant", keyCryptoQuantPx, payload, tsMs)
}

func parsePredictorPayload(source string, pxKey []byte, payload []byte, tsMs int64) (schema.PredictorTick, error) {
	// both endpoints wrap failures as {"status":"error",...} bodies with
	// a 200 status; only an explicit ok or success passes
	if status, ok := scanner.ScanStringField(payload, keyStatus); ok {
		switch string(status) {
		case "ok", "success":
		default:
			return schema.PredictorTick{}, ErrSourceError
		}
	}

	px, ok := scanner.ScanFloatField(payload, pxKey)
	if !ok {
		return schema.PredictorTick{}, ErrMalformedPayload
	}
	if math.IsNaN(px) || math.IsInf(px, 0) || px <= 0 {
		return schema.PredictorTick{}, ErrInvalidPx
	}
	// confidence is optional in both shapes; it gates nothing here but a
	// non-numeric value marks the payload malformed
	if scanner.IndexOf(payload, keyConfidence) >= 0 {
		if _, ok := scanner.ScanFloatField(payload, keyConfidence); !ok {
			return schema.PredictorTick{}, ErrMalformedPayload
		}
	}
	return schema.PredictorTick{
		Source: source,
		Px:     px,
		TsMs:   tsMs,
	}, nil
}
