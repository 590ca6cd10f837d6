package journal

import (
	"github.com/yanun0323/errors"
	"gorm.io/gorm"

	"main/internal/schema"
	"main/pkg/conn"
)

// FillRecord is one persisted paper fill.
type FillRecord struct {
	ID       uint64 `gorm:"primaryKey;autoIncrement"`
	RunSeq   uint64 `gorm:"index"`
	IntentID uint64
	Side     string
	Qty      float64
	FillPx   float64
	FeePaid  float64
	TsMs     int64
}

// RejectRecord is one persisted risk rejection.
type RejectRecord struct {
	ID       uint64 `gorm:"primaryKey;autoIncrement"`
	RunSeq   uint64 `gorm:"index"`
	IntentID uint64
	Reason   string
}

// HaltRecord is one persisted kill-switch transition with its terminal
// equity figures.
type HaltRecord struct {
	ID          uint64 `gorm:"primaryKey;autoIncrement"`
	RunSeq      uint64 `gorm:"index"`
	Reason      string
	Equity      float64
	RealizedPnl float64
	PositionQty float64
}

// Store persists critical events to PostgreSQL. All writes happen on the
// lossless consumer task, never on the decision path.
type Store struct {
	client *conn.Client
}

// Open connects and migrates the journal tables.
func Open(connString string) (*Store, error) {
	client, err := conn.New(connString)
	if err != nil {
		return nil, errors.Wrap(err, "open journal db")
	}
	if err := client.DB().AutoMigrate(&FillRecord{}, &RejectRecord{}, &HaltRecord{}); err != nil {
		client.Close()
		return nil, errors.Wrap(err, "migrate journal tables")
	}
	return &Store{client: client}, nil
}

// Close releases the connection pool.
func (s *Store) Close() error {
	return s.client.Close()
}

// RecordEvent persists the journaled subset of the event union: fills,
// risk rejections, and halts. Other event types are ignored.
func (s *Store) RecordEvent(event schema.RuntimeEvent) error {
	switch event.Header.Type {
	case schema.EventPaperFill:
		if event.Fill == nil {
			return nil
		}
		return s.insert(&FillRecord{
			RunSeq:   event.Header.Seq,
			IntentID: event.Fill.IntentID,
			Side:     event.Fill.Side.Name(),
			Qty:      event.Fill.Qty,
			FillPx:   event.Fill.FillPx,
			FeePaid:  event.Fill.FeePaid,
			TsMs:     event.Fill.TsMs,
		})
	case schema.EventRiskReject:
		if event.Reject == nil {
			return nil
		}
		return s.insert(&RejectRecord{
			RunSeq:   event.Header.Seq,
			IntentID: event.Reject.IntentID,
			Reason:   event.Reject.Reason.Name(),
		})
	case schema.EventHalt:
		if event.Halt == nil {
			return nil
		}
		return s.insert(&HaltRecord{
			RunSeq:      event.Header.Seq,
			Reason:      event.Halt.Reason,
			Equity:      event.Halt.Terminal.Equity,
			RealizedPnl: event.Halt.Terminal.RealizedPnl,
			PositionQty: event.Halt.Terminal.PositionQty,
		})
	default:
		return nil
	}
}

func (s *Store) insert(record any) error {
	return s.client.DB().Session(&gorm.Session{}).Create(record).Error
}
