package schema

// SchemaVersion is the current event schema version.
const SchemaVersion uint16 = 1

// EventType defines the category of a runtime event.
type EventType uint16

const (
	EventUnknown EventType = iota
	EventConnected
	EventRunStarted
	EventFeedHealth
	EventPriceSnapshot
	EventPaperIntent
	EventPaperFill
	EventRiskReject
	EventPortfolioSnapshot
	EventStrategyPerf
	EventSettingsUpdated
	EventExecutionLog
	EventHalt
)

// Stamps carries the four latency-accounting timestamps of an event, in
// monotonic nanoseconds. A zero value means the stage has not happened.
type Stamps struct {
	Created  int64 `json:"created"`
	Received int64 `json:"received"`
	Acted    int64 `json:"acted"`
	Filled   int64 `json:"filled"`
}

// EventHeader is the common metadata attached to every event.
type EventHeader struct {
	Type    EventType
	Version uint16
	Seq     uint64
	TsMono  int64
	TsWall  int64
	Stamps  Stamps
}

// NewHeader builds a header with the current schema version.
func NewHeader(eventType EventType, seq uint64, tsMono, tsWall int64) EventHeader {
	return EventHeader{
		Type:    eventType,
		Version: SchemaVersion,
		Seq:     seq,
		TsMono:  tsMono,
		TsWall:  tsWall,
	}
}

// Name returns the wire tag for the event type, matching the broadcast
// consumer contract.
func (t EventType) Name() string {
	switch t {
	case EventConnected:
		return "connected"
	case EventRunStarted:
		return "run_started"
	case EventFeedHealth:
		return "feed_health"
	case EventPriceSnapshot:
		return "price_snapshot"
	case EventPaperIntent:
		return "paper_intent"
	case EventPaperFill:
		return "paper_fill"
	case EventRiskReject:
		return "risk_reject"
	case EventPortfolioSnapshot:
		return "portfolio_snapshot"
	case EventStrategyPerf:
		return "strategy_perf"
	case EventSettingsUpdated:
		return "settings_updated"
	case EventExecutionLog:
		return "execution_log"
	case EventHalt:
		return "halt"
	default:
		return "unknown"
	}
}
