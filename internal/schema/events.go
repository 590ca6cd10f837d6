package schema

import "encoding/json"

// RunStarted announces a fresh run with its identifiers.
type RunStarted struct {
	RunID          string  `json:"run_id"`
	Seed           uint64  `json:"seed"`
	StartingEquity float64 `json:"starting_equity"`
	Mode           string  `json:"mode"`
}

// Connected is the first event a broadcast subscriber observes.
type Connected struct {
	SchemaVersion uint16 `json:"schema_version"`
}

// HaltNotice reports a kill-switch transition.
type HaltNotice struct {
	Reason   string            `json:"reason"`
	Terminal PortfolioSnapshot `json:"terminal_snapshot"`
}

// RuntimeEvent is the tagged variant union flowing through the bus. At
// most one payload pointer is set; the wire shape is
// {"event_type": ..., "seq": ..., "ts_wall_ms": ..., "stamps": {...},
// "payload": {...}}.
type RuntimeEvent struct {
	Header EventHeader

	Connected  *Connected
	RunStarted *RunStarted
	FeedHealth *FeedHealth
	PriceSnap  *PriceSnapshot
	Intent     *Intent
	Fill       *Fill
	Reject     *RiskDecision
	Portfolio  *PortfolioSnapshot
	Perf       *StrategyPerf
	Settings   *RuntimeSettings
	ExecLog    *ExecutionLogEntry
	Halt       *HaltNotice
}

type wireEvent struct {
	EventType string `json:"event_type"`
	Seq       uint64 `json:"seq"`
	TsWallMs  int64  `json:"ts_wall_ms"`
	Stamps    Stamps `json:"stamps"`
	Payload   any    `json:"payload"`
}

// MarshalJSON encodes the event in the broadcast consumer contract shape.
func (e RuntimeEvent) MarshalJSON() ([]byte, error) {
	return json.Marshal(wireEvent{
		EventType: e.Header.Type.Name(),
		Seq:       e.Header.Seq,
		TsWallMs:  e.Header.TsWall,
		Stamps:    e.Header.Stamps,
		Payload:   e.payload(),
	})
}

func (e RuntimeEvent) payload() any {
	switch e.Header.Type {
	case EventConnected:
		return e.Connected
	case EventRunStarted:
		return e.RunStarted
	case EventFeedHealth:
		return e.FeedHealth
	case EventPriceSnapshot:
		return e.PriceSnap
	case EventPaperIntent:
		return e.Intent
	case EventPaperFill:
		return e.Fill
	case EventRiskReject:
		return e.Reject
	case EventPortfolioSnapshot:
		return e.Portfolio
	case EventStrategyPerf:
		return e.Perf
	case EventSettingsUpdated:
		return e.Settings
	case EventExecutionLog:
		return e.ExecLog
	case EventHalt:
		return e.Halt
	default:
		return nil
	}
}

// NewIntentEvent wraps an intent for the lossless channel.
func NewIntentEvent(header EventHeader, intent Intent) RuntimeEvent {
	header.Type = EventPaperIntent
	return RuntimeEvent{Header: header, Intent: &intent}
}

// NewFillEvent wraps a fill for the lossless channel.
func NewFillEvent(header EventHeader, fill Fill) RuntimeEvent {
	header.Type = EventPaperFill
	return RuntimeEvent{Header: header, Fill: &fill}
}

// NewRejectEvent wraps a risk rejection for the lossless channel.
func NewRejectEvent(header EventHeader, decision RiskDecision) RuntimeEvent {
	header.Type = EventRiskReject
	return RuntimeEvent{Header: header, Reject: &decision}
}

// NewPortfolioEvent wraps a portfolio snapshot for the lossless channel.
func NewPortfolioEvent(header EventHeader, snapshot PortfolioSnapshot) RuntimeEvent {
	header.Type = EventPortfolioSnapshot
	return RuntimeEvent{Header: header, Portfolio: &snapshot}
}

// NewHaltEvent wraps a kill-switch transition with its terminal snapshot.
func NewHaltEvent(header EventHeader, notice HaltNotice) RuntimeEvent {
	header.Type = EventHalt
	return RuntimeEvent{Header: header, Halt: &notice}
}
