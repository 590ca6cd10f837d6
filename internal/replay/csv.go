package replay

import (
	"io"
	"strconv"
	"strings"
)

// Header is the replay CSV compatibility contract. One row per decision
// tick.
const Header = "t,external_px,market_px,divergence,action,equity,realized_pnl,position,halted\n"

// Row is one decision-tick replay record.
type Row struct {
	T           uint64
	ExternalPx  float64
	MarketPx    float64
	Divergence  float64
	Action      string
	Equity      float64
	RealizedPnl float64
	Position    float64
	Halted      bool
}

// JournalKind tags a paper-journal extension row.
type JournalKind uint16

const (
	JournalPaperIntent JournalKind = iota
	JournalPaperFill
	JournalRiskReject
)

// Name returns the extension-row event_type token.
func (k JournalKind) Name() string {
	switch k {
	case JournalPaperIntent:
		return "paper_intent"
	case JournalRiskReject:
		return "risk_reject"
	default:
		return "paper_fill"
	}
}

// JournalRow is a paper-journal extension record. Its event type and
// detail are carried in the action column; the row has the header's nine
// columns and no additional column.
type JournalRow struct {
	T      uint64
	Kind   JournalKind
	Detail string
}

// CsvWriter renders replay rows in the compatibility format.
type CsvWriter struct {
	w io.Writer
}

// NewCsvWriter wraps an output stream.
func NewCsvWriter(w io.Writer) *CsvWriter {
	return &CsvWriter{w: w}
}

// WriteHeader emits the contract header.
func (c *CsvWriter) WriteHeader() error {
	_, err := io.WriteString(c.w, Header)
	return err
}

// WriteRow emits one decision-tick row.
func (c *CsvWriter) WriteRow(row Row) error {
	var b strings.Builder
	b.Grow(128)
	b.WriteString(strconv.FormatUint(row.T, 10))
	b.WriteByte(',')
	writeFloat(&b, row.ExternalPx)
	b.WriteByte(',')
	writeFloat(&b, row.MarketPx)
	b.WriteByte(',')
	writeFloat(&b, row.Divergence)
	b.WriteByte(',')
	b.WriteString(escapeField(row.Action))
	b.WriteByte(',')
	writeFloat(&b, row.Equity)
	b.WriteByte(',')
	writeFloat(&b, row.RealizedPnl)
	b.WriteByte(',')
	writeFloat(&b, row.Position)
	b.WriteByte(',')
	b.WriteString(strconv.FormatBool(row.Halted))
	b.WriteByte('\n')
	_, err := io.WriteString(c.w, b.String())
	return err
}

// WriteJournalRow emits one paper-journal extension row.
func (c *CsvWriter) WriteJournalRow(row JournalRow) error {
	action := row.Kind.Name()
	if row.Detail != "" {
		action += ":" + row.Detail
	}
	var b strings.Builder
	b.WriteString(strconv.FormatUint(row.T, 10))
	b.WriteString(",,,,")
	b.WriteString(escapeField(action))
	b.WriteString(",,,,\n")
	_, err := io.WriteString(c.w, b.String())
	return err
}

func writeFloat(b *strings.Builder, v float64) {
	b.WriteString(strconv.FormatFloat(v, 'g', -1, 64))
}

func escapeField(value string) string {
	if !strings.ContainsAny(value, ",\"\n\r") {
		return value
	}
	return `"` + strings.ReplaceAll(value, `"`, `""`) + `"`
}
