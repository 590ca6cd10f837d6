package exec

import "main/internal/schema"

// OutcomeTracker counts winning and losing position closes for the
// win-rate telemetry figure.
type OutcomeTracker struct {
	openQty       float64
	avgEntry      float64
	winningCloses uint64
	losingCloses  uint64
}

// ApplyFill folds a fill into the open-lot view and classifies any close.
func (t *OutcomeTracker) ApplyFill(side schema.Side, fillPx, qty float64) {
	signedQty := qty
	if side == schema.SideSell {
		signedQty = -qty
	}

	if t.openQty == 0 || sameSign(t.openQty, signedQty) {
		total := abs(t.openQty) + abs(signedQty)
		if total > 0 {
			t.avgEntry = (t.avgEntry*abs(t.openQty) + fillPx*abs(signedQty)) / total
		}
		t.openQty += signedQty
		return
	}

	closeQty := min(abs(t.openQty), abs(signedQty))
	var realized float64
	if t.openQty > 0 {
		realized = (fillPx - t.avgEntry) * closeQty
	} else {
		realized = (t.avgEntry - fillPx) * closeQty
	}

	if realized > 0 {
		t.winningCloses++
	} else if realized < 0 {
		t.losingCloses++
	}

	t.openQty += signedQty
	if t.openQty == 0 {
		t.avgEntry = 0
	} else if sameSign(t.openQty, signedQty) && abs(signedQty) > closeQty {
		t.avgEntry = fillPx
	}
}

// WinRatePct returns the winning share of closed trades and the closed
// count. Zero closed trades reports 0.0.
func (t *OutcomeTracker) WinRatePct() (float64, uint64) {
	closed := t.winningCloses + t.losingCloses
	if closed == 0 {
		return 0, 0
	}
	return float64(t.winningCloses) / float64(closed) * 100, closed
}
