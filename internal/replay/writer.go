package replay

import (
	"bufio"
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"
)

var (
	ErrClosed         = errors.New("replay: writer closed")
	ErrNotStarted     = errors.New("replay: writer not started")
	ErrAlreadyStarted = errors.New("replay: writer already started")
)

// Config shapes the replay writer.
type Config struct {
	Path          string
	QueueSize     int
	FlushInterval time.Duration
}

func (c Config) withDefaults() Config {
	if c.QueueSize <= 0 {
		c.QueueSize = 1024
	}
	if c.FlushInterval <= 0 {
		c.FlushInterval = 250 * time.Millisecond
	}
	return c
}

type record struct {
	row     *Row
	journal *JournalRow
}

// Writer appends replay rows to the output CSV from a buffered queue,
// keeping disk I/O off the decision path.
type Writer struct {
	cfg Config
	ch  chan record
	wg  sync.WaitGroup
	err atomic.Value

	started uint32
	closed  uint32
}

// NewWriter creates the writer and its parent directory.
func NewWriter(cfg Config) (*Writer, error) {
	cfg = cfg.withDefaults()
	if cfg.Path == "" {
		return nil, errors.New("replay: output path required")
	}
	if dir := filepath.Dir(cfg.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	return &Writer{
		cfg: cfg,
		ch:  make(chan record, cfg.QueueSize),
	}, nil
}

// Start truncates the output file, writes the header, and runs the
// writer loop in a new goroutine.
func (w *Writer) Start(ctx context.Context) error {
	if !atomic.CompareAndSwapUint32(&w.started, 0, 1) {
		return ErrAlreadyStarted
	}
	file, err := os.Create(w.cfg.Path)
	if err != nil {
		return err
	}
	buffered := bufio.NewWriter(file)
	csv := NewCsvWriter(buffered)
	if err := csv.WriteHeader(); err != nil {
		file.Close()
		return err
	}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer file.Close()
		w.run(ctx, buffered, csv)
	}()
	return nil
}

// Append enqueues a decision row, blocking while the queue is full.
func (w *Writer) Append(ctx context.Context, row Row) error {
	return w.enqueue(ctx, record{row: &row})
}

// AppendJournal enqueues a paper-journal extension row.
func (w *Writer) AppendJournal(ctx context.Context, row JournalRow) error {
	return w.enqueue(ctx, record{journal: &row})
}

func (w *Writer) enqueue(ctx context.Context, rec record) error {
	if atomic.LoadUint32(&w.closed) != 0 {
		return ErrClosed
	}
	if atomic.LoadUint32(&w.started) == 0 {
		return ErrNotStarted
	}
	if err := w.Err(); err != nil {
		return err
	}
	select {
	case w.ch <- rec:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops the writer and flushes buffered rows.
func (w *Writer) Close() error {
	if atomic.CompareAndSwapUint32(&w.closed, 0, 1) {
		close(w.ch)
	}
	w.wg.Wait()
	return w.Err()
}

type errBox struct{ err error }

// Err returns the first error observed by the writer loop, if any.
func (w *Writer) Err() error {
	if v := w.err.Load(); v != nil {
		return v.(errBox).err
	}
	return nil
}

func (w *Writer) run(ctx context.Context, buffered *bufio.Writer, csv *CsvWriter) {
	flush := time.NewTicker(w.cfg.FlushInterval)
	defer flush.Stop()
	defer func() {
		if err := buffered.Flush(); err != nil && w.Err() == nil {
			w.setErr(err)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			w.drainPending(csv)
			return
		case rec, ok := <-w.ch:
			if !ok {
				return
			}
			if err := w.write(csv, rec); err != nil {
				w.setErr(err)
				return
			}
		case <-flush.C:
			if err := buffered.Flush(); err != nil {
				w.setErr(err)
				return
			}
		}
	}
}

func (w *Writer) drainPending(csv *CsvWriter) {
	for {
		select {
		case rec, ok := <-w.ch:
			if !ok {
				return
			}
			if err := w.write(csv, rec); err != nil {
				w.setErr(err)
				return
			}
		default:
			return
		}
	}
}

func (w *Writer) write(csv *CsvWriter, rec record) error {
	if rec.row != nil {
		return csv.WriteRow(*rec.row)
	}
	if rec.journal != nil {
		return csv.WriteJournalRow(*rec.journal)
	}
	return nil
}

func (w *Writer) setErr(err error) {
	w.err.CompareAndSwap(nil, errBox{err: err})
}
