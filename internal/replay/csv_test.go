package replay

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeaderMatchesCompatibilityContract(t *testing.T) {
	assert.Equal(t, "t,external_px,market_px,divergence,action,equity,realized_pnl,position,halted\n", Header)
}

func TestWriteRowFormat(t *testing.T) {
	var out strings.Builder
	w := NewCsvWriter(&out)
	require.NoError(t, w.WriteHeader())
	require.NoError(t, w.WriteRow(Row{
		T:           3,
		ExternalPx:  100.5,
		MarketPx:    100.25,
		Divergence:  0.0025,
		Action:      "buy",
		Equity:      100_000,
		RealizedPnl: -12.5,
		Position:    5,
		Halted:      false,
	}))

	lines := strings.Split(strings.TrimSuffix(out.String(), "\n"), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "3,100.5,100.25,0.0025,buy,100000,-12.5,5,false", lines[1])
}

func TestWriteJournalRowKeepsColumnShape(t *testing.T) {
	var out strings.Builder
	w := NewCsvWriter(&out)
	require.NoError(t, w.WriteJournalRow(JournalRow{
		T:      17,
		Kind:   JournalPaperFill,
		Detail: "buy:market-1@0.62x5",
	}))

	assert.Equal(t, "17,,,,paper_fill:buy:market-1@0.62x5,,,,\n", out.String())
}

func TestWriteJournalRowWithoutDetail(t *testing.T) {
	var out strings.Builder
	w := NewCsvWriter(&out)
	require.NoError(t, w.WriteJournalRow(JournalRow{T: 2, Kind: JournalRiskReject}))

	assert.Equal(t, "2,,,,risk_reject,,,,\n", out.String())
}

func TestJournalRowEscapesCsvSpecials(t *testing.T) {
	var out strings.Builder
	w := NewCsvWriter(&out)
	require.NoError(t, w.WriteJournalRow(JournalRow{
		T:      17,
		Kind:   JournalPaperFill,
		Detail: "buy,\"market-1\"\nleg2",
	}))

	assert.Equal(t, "17,,,,\"paper_fill:buy,\"\"market-1\"\"\nleg2\",,,,\n", out.String())
}

func TestJournalKindNames(t *testing.T) {
	assert.Equal(t, "paper_intent", JournalPaperIntent.Name())
	assert.Equal(t, "paper_fill", JournalPaperFill.Name())
	assert.Equal(t, "risk_reject", JournalRiskReject.Name())
}
