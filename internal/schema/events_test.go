package schema

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventTypeWireTags(t *testing.T) {
	tests := []struct {
		eventType EventType
		want      string
	}{
		{EventConnected, "connected"},
		{EventRunStarted, "run_started"},
		{EventFeedHealth, "feed_health"},
		{EventPriceSnapshot, "price_snapshot"},
		{EventPaperIntent, "paper_intent"},
		{EventPaperFill, "paper_fill"},
		{EventRiskReject, "risk_reject"},
		{EventPortfolioSnapshot, "portfolio_snapshot"},
		{EventStrategyPerf, "strategy_perf"},
		{EventSettingsUpdated, "settings_updated"},
		{EventExecutionLog, "execution_log"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.eventType.Name())
	}
}

func TestFillEventMarshalsWithContractShape(t *testing.T) {
	header := NewHeader(EventPaperFill, 9, 0, 1_700_000_000_000)
	event := NewFillEvent(header, Fill{
		IntentID: 4,
		Side:     SideBuy,
		Qty:      5,
		FillPx:   100.1,
		FeePaid:  0.1,
		TsMs:     1_700_000_000_000,
	})

	data, err := json.Marshal(event)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "paper_fill", decoded["event_type"])
	assert.Equal(t, float64(9), decoded["seq"])

	payload, ok := decoded["payload"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, float64(4), payload["intent_id"])
	assert.Equal(t, 100.1, payload["fill_px"])
}

func TestPriceSnapshotEmitsNullForMissingOptionals(t *testing.T) {
	px := 64_000.0
	header := NewHeader(EventPriceSnapshot, 1, 0, 0)
	event := RuntimeEvent{Header: header, PriceSnap: &PriceSnapshot{MarketPx: &px}}

	data, err := json.Marshal(event)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	payload := decoded["payload"].(map[string]any)

	assert.Equal(t, 64_000.0, payload["market_px"])
	assert.Contains(t, payload, "prediction_px")
	assert.Nil(t, payload["prediction_px"])
	assert.Nil(t, payload["reference_px"])
}

func TestTokenNames(t *testing.T) {
	assert.Equal(t, "buy", SideBuy.Name())
	assert.Equal(t, "sell", ActionSell.Name())
	assert.Equal(t, "hold", ActionHold.Name())
	assert.Equal(t, "live", ModeLive.Name())
	assert.Equal(t, "risk_cap", RejectRiskCap.Name())
	assert.Equal(t, "lag_trigger", CauseLagTrigger.Name())
}
