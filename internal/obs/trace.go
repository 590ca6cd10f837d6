package obs

import "sync/atomic"

// SeqGenerator creates monotonically increasing event sequence numbers.
type SeqGenerator struct {
	next uint64
}

// NewSeqGenerator returns a generator starting after the given value.
func NewSeqGenerator(start uint64) *SeqGenerator {
	return &SeqGenerator{next: start}
}

// Next returns the next sequence number.
func (g *SeqGenerator) Next() uint64 {
	if g == nil {
		return 0
	}
	return atomic.AddUint64(&g.next, 1)
}
