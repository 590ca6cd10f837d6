package exec

import (
	"errors"
	"math"
)

var (
	ErrInvalidQuotePx     = errors.New("exec: quote price must be finite and > 0")
	ErrInvalidQty         = errors.New("exec: qty must be finite and > 0")
	ErrInvalidSlippageBps = errors.New("exec: slippage must be finite and >= 0")
	ErrInvalidFeeBps      = errors.New("exec: fee must be finite and >= 0")
	ErrSellPxNonPositive  = errors.New("exec: sell fill price must be > 0")
)

// PaperFill is the priced outcome of a paper execution.
type PaperFill struct {
	FillPx   float64
	Qty      float64
	Notional float64
	Fee      float64
}

// FillBuy prices a buy at the best ask plus slippage, charging the fee on
// the slipped notional.
func FillBuy(bestAsk, qty, slippageBps, feeBps float64) (PaperFill, error) {
	if err := validateFillInputs(bestAsk, qty, slippageBps, feeBps); err != nil {
		return PaperFill{}, err
	}
	fillPx := bestAsk * (1 + slippageBps/10_000)
	notional := fillPx * qty
	return PaperFill{
		FillPx:   fillPx,
		Qty:      qty,
		Notional: notional,
		Fee:      notional * feeBps / 10_000,
	}, nil
}

// FillSell prices a sell at the best bid minus slippage.
func FillSell(bestBid, qty, slippageBps, feeBps float64) (PaperFill, error) {
	if err := validateFillInputs(bestBid, qty, slippageBps, feeBps); err != nil {
		return PaperFill{}, err
	}
	fillPx := bestBid * (1 - slippageBps/10_000)
	if fillPx <= 0 {
		return PaperFill{}, ErrSellPxNonPositive
	}
	notional := fillPx * qty
	return PaperFill{
		FillPx:   fillPx,
		Qty:      qty,
		Notional: notional,
		Fee:      notional * feeBps / 10_000,
	}, nil
}

func validateFillInputs(px, qty, slippageBps, feeBps float64) error {
	if !isFinite(px) || px <= 0 {
		return ErrInvalidQuotePx
	}
	if !isFinite(qty) || qty <= 0 {
		return ErrInvalidQty
	}
	if !isFinite(slippageBps) || slippageBps < 0 {
		return ErrInvalidSlippageBps
	}
	if !isFinite(feeBps) || feeBps < 0 {
		return ErrInvalidFeeBps
	}
	return nil
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
