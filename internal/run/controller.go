package run

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"main/internal/bus"
	"main/internal/feed"
	"main/internal/obs"
	"main/internal/replay"
	"main/internal/schema"
	"main/internal/settings"
)

const (
	defaultLosslessCapacity  = 1024
	defaultTelemetryCapacity = 256
	drainTimeout             = 500 * time.Millisecond
	execLogCapacity          = 500
	predictorBuffer          = 64

	forecastHorizonTicks = 15.0
)

// Sink receives broadcast events; the HTTP/WebSocket layer implements
// it. A sink that stalls only loses telemetry, never throughput.
type Sink interface {
	Publish(event schema.RuntimeEvent) error
}

// Journal persists critical events outside the process.
type Journal interface {
	RecordEvent(event schema.RuntimeEvent) error
}

// Options wires a controller.
type Options struct {
	Engine            Config
	Settings          schema.RuntimeSettings
	LosslessCapacity  int
	TelemetryCapacity int
	Replay            *replay.Writer
	Journal           Journal
	Sink              Sink
	Predictors        []feed.Adapter
	Metrics           *obs.Metrics
	// FeedMode labels feed_health telemetry; "sim" unless wired to live
	// predictor polling.
	FeedMode string
	// ExitOnHalt ends Run when the kill-switch fires, for headless runs.
	ExitOnHalt bool
}

// Controller owns the run lifecycle, the engine, and every channel. The
// engine is touched only from the controller goroutine.
type Controller struct {
	opts     Options
	engine   *Engine
	store    *settings.Store
	control  *bus.ControlBus
	lossless *bus.Queue
	ring     *bus.Ring
	metrics  *obs.Metrics
	seq      *obs.SeqGenerator
	sup      *Supervisor

	state      atomic.Uint32
	runID      string
	tick       atomic.Uint64
	baseWallMs atomic.Int64

	execMu       sync.Mutex
	execLog      []schema.ExecutionLogEntry
	lastPaused   bool
	lastDropped  uint64
	prevMarketPx float64
	broadcastSub *bus.RingSub
	predictorCh  chan schema.PredictorTick
	fatalCh      chan taskFailure

	exitErr  error
	exitCode int
}

type taskFailure struct {
	task string
	err  error
}

// NewController validates options and builds an idle controller.
func NewController(opts Options) (*Controller, error) {
	if opts.LosslessCapacity < defaultLosslessCapacity {
		opts.LosslessCapacity = defaultLosslessCapacity
	}
	if opts.TelemetryCapacity < defaultTelemetryCapacity {
		opts.TelemetryCapacity = defaultTelemetryCapacity
	}
	if opts.Metrics == nil {
		opts.Metrics = obs.NewMetrics()
	}
	if opts.FeedMode == "" {
		opts.FeedMode = "sim"
	}
	store, err := settings.NewStore(opts.Settings)
	if err != nil {
		return nil, errors.Wrap(err, "validate settings")
	}
	engine, err := NewEngine(opts.Engine)
	if err != nil {
		return nil, errors.Wrap(err, "build engine")
	}

	c := &Controller{
		opts:        opts,
		engine:      engine,
		store:       store,
		control:     bus.NewControlBus(),
		lossless:    bus.NewQueue(opts.LosslessCapacity),
		ring:        bus.NewRing(opts.TelemetryCapacity),
		metrics:     opts.Metrics,
		seq:         obs.NewSeqGenerator(0),
		predictorCh: make(chan schema.PredictorTick, predictorBuffer),
		fatalCh:     make(chan taskFailure, 1),
	}
	c.sup = NewSupervisor(func(task string, err error) {
		select {
		case c.fatalCh <- taskFailure{task: task, err: err}:
		default:
		}
	})
	return c, nil
}

// State returns the current lifecycle state.
func (c *Controller) State() State {
	return State(c.state.Load())
}

func (c *Controller) setState(next State) {
	c.state.Store(uint32(next))
}

// Settings returns the current settings snapshot.
func (c *Controller) Settings() schema.RuntimeSettings {
	return c.store.Snapshot()
}

// Subscribe attaches a lossy telemetry consumer. The subscriber's first
// event is a connected hello carrying the schema version.
func (c *Controller) Subscribe() *bus.RingSub {
	sub := c.ring.Subscribe()
	header := c.header(schema.EventConnected)
	sub.Seed(schema.RuntimeEvent{Header: header, Connected: &schema.Connected{
		SchemaVersion: schema.SchemaVersion,
	}})
	return sub
}

// Start, Pause, Resume, Stop, and Reset offer lifecycle commands; the
// latest undelivered command per kind wins.
func (c *Controller) Start() { c.control.Offer(bus.CmdStart) }

// Pause stops intent generation; telemetry continues.
func (c *Controller) Pause() { c.control.Offer(bus.CmdPause) }

// Resume re-enables intent generation.
func (c *Controller) Resume() { c.control.Offer(bus.CmdResume) }

// Stop drains the lossless channels and parks the run.
func (c *Controller) Stop() { c.control.Offer(bus.CmdStop) }

// Reset zeroes accumulators; the only exit from a halt.
func (c *Controller) Reset() { c.control.Offer(bus.CmdReset) }

// ApplySettings validates and applies a patch; an accepted update emits
// SettingsUpdated with the full new snapshot.
func (c *Controller) ApplySettings(patch settings.Patch) (schema.RuntimeSettings, error) {
	next, err := c.store.Apply(patch)
	if err != nil {
		return schema.RuntimeSettings{}, err
	}
	header := c.header(schema.EventSettingsUpdated)
	c.ring.Publish(schema.RuntimeEvent{Header: header, Settings: &next})
	return next, nil
}

// ExitCode maps the terminal condition to the process exit contract.
func (c *Controller) ExitCode() int {
	return c.exitCode
}

// Err returns the terminal error, if any.
func (c *Controller) Err() error {
	return c.exitErr
}

// Run drives the controller until the context is canceled or a fatal
// condition ends the run.
func (c *Controller) Run(ctx context.Context) error {
	c.startTasks(ctx)

	interval := time.Duration(c.opts.Engine.DecisionIntervalMs) * time.Millisecond
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.finalize()
			return c.exitErr
		case failure := <-c.fatalCh:
			c.haltOnTaskFailure(ctx, failure)
		case <-c.control.Wait():
			for _, cmd := range c.control.TakeAll() {
				c.apply(ctx, cmd)
			}
		case tick := <-c.predictorCh:
			c.engine.IngestPredictor(tick)
		case <-ticker.C:
			c.onTick(ctx)
		}
		if c.opts.ExitOnHalt && c.State() == StateHalted {
			c.shutdown()
			return c.exitErr
		}
	}
}

func (c *Controller) startTasks(ctx context.Context) {
	// critical: lossless chain consumer feeding the journal and re-publishing
	// onto the telemetry ring
	c.sup.Go(ctx, "event_log", true, func(ctx context.Context) error {
		c.lossless.Run(ctx, c.consumeCritical)
		return nil
	})

	if c.opts.Sink != nil {
		c.broadcastSub = c.ring.Subscribe()
		c.sup.Go(ctx, "broadcaster", false, func(ctx context.Context) error {
			for {
				select {
				case <-ctx.Done():
					return nil
				case event, ok := <-c.broadcastSub.C():
					if !ok {
						return nil
					}
					if err := c.opts.Sink.Publish(event); err != nil {
						return errors.Wrap(err, "broadcast publish")
					}
				}
			}
		})
	}

	interval := time.Duration(c.opts.Engine.DecisionIntervalMs) * time.Millisecond
	for _, adapter := range c.opts.Predictors {
		adapter := adapter
		name := "predictor:" + adapter.Health().Source
		c.sup.Go(ctx, name, false, func(ctx context.Context) error {
			if err := adapter.Subscribe(ctx); err != nil {
				return err
			}
			poll := time.NewTicker(interval)
			defer poll.Stop()
			for {
				select {
				case <-ctx.Done():
					return nil
				case <-poll.C:
					tick, err := adapter.NextTick(ctx)
					if err != nil {
						continue
					}
					select {
					case c.predictorCh <- tick:
					default:
					}
				}
			}
		})
	}
}

func (c *Controller) apply(ctx context.Context, cmd bus.Command) {
	switch cmd {
	case bus.CmdStart:
		if !c.State().CanStart() {
			return
		}
		if err := c.engine.Reset(); err != nil {
			c.haltOnTaskFailure(ctx, taskFailure{task: "engine_init", err: err})
			return
		}
		c.metrics.Reset()
		c.tick.Store(0)
		c.runID = uuid.NewString()
		c.baseWallMs.Store(time.Now().UnixMilli())
		c.setState(StateRunning)
		header := c.header(schema.EventRunStarted)
		c.ring.Publish(schema.RuntimeEvent{Header: header, RunStarted: &schema.RunStarted{
			RunID:          c.runID,
			Seed:           c.opts.Engine.Seed,
			StartingEquity: c.opts.Engine.StartingEquity,
			Mode:           c.store.Snapshot().ExecutionMode.Name(),
		}})
		logs.Infof("run started, id: %s seed: %d", c.runID, c.opts.Engine.Seed)
	case bus.CmdPause:
		if c.State().CanPause() {
			c.setState(StatePaused)
		}
	case bus.CmdResume:
		if c.State().CanResume() {
			c.setState(StateRunning)
		}
	case bus.CmdStop:
		if !c.State().CanStop() {
			return
		}
		c.drainLossless()
		c.publishTerminalSnapshot()
		c.setState(StateStopped)
	case bus.CmdReset:
		if !c.State().CanReset() {
			return
		}
		if err := c.engine.Reset(); err != nil {
			c.haltOnTaskFailure(ctx, taskFailure{task: "engine_reset", err: err})
			return
		}
		c.metrics.Reset()
		c.execMu.Lock()
		c.execLog = c.execLog[:0]
		c.execMu.Unlock()
		c.tick.Store(0)
		c.setState(StateIdle)
	}
}

func (c *Controller) onTick(ctx context.Context) {
	switch c.State() {
	case StateRunning:
		c.step(ctx)
	case StatePaused:
		c.publishTelemetry(nil)
	}
}

func (c *Controller) step(ctx context.Context) {
	tick := c.tick.Add(1)
	nowMs := c.baseWallMs.Load() + int64(tick)*c.opts.Engine.DecisionIntervalMs
	snapshot := c.store.Snapshot()
	c.notePauseFlips(snapshot)

	started := time.Now()
	res := c.engine.Step(tick, nowMs, snapshot)
	decisionUs := uint64(time.Since(started).Microseconds())
	c.metrics.ObserveDecisionUs(decisionUs)
	if decisionUs > uint64(c.opts.Engine.DecisionIntervalMs)*1_000 {
		c.metrics.IncLatencyBreach()
	}

	c.publishCritical(ctx, nowMs, res, decisionUs)
	c.appendReplay(ctx, res)
	c.publishTelemetry(&res)

	if res.HaltTripped {
		c.setState(StateHalted)
		c.exitCode = 3
		c.exitErr = errors.Errorf("halted: %s", res.HaltReason)
	}
}

func (c *Controller) publishCritical(ctx context.Context, nowMs int64, res StepResult, decisionUs uint64) {
	monoNs := nowMs * int64(time.Millisecond)
	stamps := schema.Stamps{Created: monoNs, Received: monoNs, Acted: monoNs}

	if res.Intent != nil {
		c.metrics.IncIntent()
		header := c.header(schema.EventPaperIntent)
		header.Stamps = stamps
		c.publishLossless(ctx, schema.NewIntentEvent(header, *res.Intent))
		c.pushExecLog(monoNs, "paper_intent",
			fmt.Sprintf("Intent %s", res.Intent.Side.Name()),
			fmt.Sprintf("%s qty=%v cause=%s", res.Intent.MarketID, res.Intent.Qty, res.Intent.Cause.Name()))
	}
	if res.Decision != nil && !res.Decision.Allowed {
		c.metrics.IncReject(res.Decision.Reason)
		header := c.header(schema.EventRiskReject)
		header.Stamps = stamps
		c.publishLossless(ctx, schema.NewRejectEvent(header, *res.Decision))
		c.pushExecLog(monoNs, "risk_reject", "Risk Rejected",
			fmt.Sprintf("intent=%d reason=%s", res.Decision.IntentID, res.Decision.Reason.Name()))
	}
	if res.Fill != nil {
		c.metrics.IncFill()
		c.metrics.ObserveFillUs(decisionUs)
		header := c.header(schema.EventPaperFill)
		header.Stamps = stamps
		header.Stamps.Filled = monoNs
		c.publishLossless(ctx, schema.NewFillEvent(header, *res.Fill))
		c.pushExecLog(monoNs, "paper_fill",
			fmt.Sprintf("Filled %s", res.Fill.Side.Name()),
			fmt.Sprintf("qty=%v @ %.4f fee=%.4f", res.Fill.Qty, res.Fill.FillPx, res.Fill.FeePaid))
	}
	if res.Portfolio != nil {
		header := c.header(schema.EventPortfolioSnapshot)
		c.publishLossless(ctx, schema.NewPortfolioEvent(header, *res.Portfolio))
	}
	if res.HaltTripped {
		header := c.header(schema.EventHalt)
		notice := schema.HaltNotice{
			Reason:   res.HaltReason,
			Terminal: c.engine.PortfolioSnapshot(res.MarketPx),
		}
		c.publishLossless(ctx, schema.NewHaltEvent(header, notice))
		c.pushExecLog(monoNs, "halt", "Kill Switch", res.HaltReason)
	}
}

func (c *Controller) appendReplay(ctx context.Context, res StepResult) {
	if c.opts.Replay == nil {
		return
	}
	if err := c.opts.Replay.Append(ctx, res.Row); err != nil {
		c.haltOnTaskFailure(ctx, taskFailure{task: "replay_writer", err: err})
		return
	}
	if res.Intent != nil {
		detail := fmt.Sprintf("%s:%s@%vx%v", res.Intent.Side.Name(), res.Intent.MarketID, res.Intent.MarkPx, res.Intent.Qty)
		_ = c.opts.Replay.AppendJournal(ctx, replay.JournalRow{T: res.Tick, Kind: replay.JournalPaperIntent, Detail: detail})
	}
	if res.Decision != nil && !res.Decision.Allowed {
		_ = c.opts.Replay.AppendJournal(ctx, replay.JournalRow{T: res.Tick, Kind: replay.JournalRiskReject, Detail: res.Decision.Reason.Name()})
	}
	if res.Fill != nil {
		detail := fmt.Sprintf("%s:%s@%vx%v", res.Fill.Side.Name(), c.opts.Engine.MarketID, res.Fill.FillPx, res.Fill.Qty)
		_ = c.opts.Replay.AppendJournal(ctx, replay.JournalRow{T: res.Tick, Kind: replay.JournalPaperFill, Detail: detail})
	}
}

func (c *Controller) publishTelemetry(res *StepResult) {
	if res != nil {
		header := c.header(schema.EventPriceSnapshot)
		snap := schema.PriceSnapshot{
			PredictionPx: &res.PredictionPx,
			MarketPx:     &res.MarketPx,
			TsMono:       header.TsMono,
		}
		if res.Reference != nil {
			snap.ReferencePx = &res.Reference.Px
		}
		if forecastPx, deltaPct, ok := forecast(c.prevMarketPx, res.MarketPx); ok {
			snap.ForecastPx = &forecastPx
			snap.ForecastDeltaPct = &deltaPct
		}
		c.prevMarketPx = res.MarketPx
		c.ring.Publish(schema.RuntimeEvent{Header: header, PriceSnap: &snap})
		c.publishFeedHealth()
	}

	c.collectDrops()
	metricsSnap := c.metrics.Snapshot()
	winRate, closed := c.engine.WinRate()
	elapsed := float64(c.tick.Load()) * float64(c.opts.Engine.DecisionIntervalMs) / 1000
	perf := schema.StrategyPerf{
		ExecutionMode:   c.store.Snapshot().ExecutionMode.Name(),
		LagThresholdPct: c.store.Snapshot().LagThresholdPct,
		DecisionP50Us:   metricsSnap.Decision.P50,
		DecisionP95Us:   metricsSnap.Decision.P95,
		DecisionP99Us:   metricsSnap.Decision.P99,
		LagTriggers:     metricsSnap.Intents,
		WinRatePct:      winRate,
		ClosedTrades:    closed,
		Halted:          c.engine.Halted(),
	}
	if elapsed > 0 {
		perf.IntentsPerSec = float64(metricsSnap.Intents) / elapsed
		perf.FillsPerSec = float64(metricsSnap.Fills) / elapsed
	}
	header := c.header(schema.EventStrategyPerf)
	c.ring.Publish(schema.RuntimeEvent{Header: header, Perf: &perf})
}

// forecast projects the market price over the forecast horizon from
// one-tick momentum, clamped to +-1%.
func forecast(prevPx, currentPx float64) (forecastPx, deltaPct float64, ok bool) {
	if prevPx <= 0 || currentPx <= 0 {
		return 0, 0, false
	}
	projected := (currentPx - prevPx) / prevPx * forecastHorizonTicks
	if projected > 0.01 {
		projected = 0.01
	} else if projected < -0.01 {
		projected = -0.01
	}
	return currentPx * (1 + projected), projected * 100, true
}

func (c *Controller) publishFeedHealth() {
	sources := []schema.SourceCount{{Source: "prediction", Count: c.tick.Load()}}
	for _, adapter := range c.opts.Predictors {
		health := adapter.Health()
		sources = append(sources, schema.SourceCount{Source: health.Source, Count: health.Ticks})
	}
	header := c.header(schema.EventFeedHealth)
	c.ring.Publish(schema.RuntimeEvent{Header: header, FeedHealth: &schema.FeedHealth{
		Mode:    c.opts.FeedMode,
		Sources: sources,
	}})
}

func (c *Controller) notePauseFlips(snapshot schema.RuntimeSettings) {
	if snapshot.TradingPaused == c.lastPaused {
		return
	}
	headline := "Trading Resumed"
	if snapshot.TradingPaused {
		headline = "Trading Paused"
	}
	c.pushExecLog(time.Now().UnixNano(), "pause_state", headline,
		fmt.Sprintf("execution_mode=%s", snapshot.ExecutionMode.Name()))
	c.lastPaused = snapshot.TradingPaused
}

func (c *Controller) pushExecLog(tsMono int64, event, headline, detail string) {
	entry := schema.ExecutionLogEntry{
		TsMono:   tsMono,
		Event:    event,
		Headline: headline,
		Detail:   detail,
	}
	c.execMu.Lock()
	c.execLog = append(c.execLog, entry)
	if len(c.execLog) > execLogCapacity {
		c.execLog = c.execLog[len(c.execLog)-execLogCapacity:]
	}
	c.execMu.Unlock()
	header := c.header(schema.EventExecutionLog)
	c.ring.Publish(schema.RuntimeEvent{Header: header, ExecLog: &entry})
}

// ExecutionLog returns a copy of the bounded execution trail.
func (c *Controller) ExecutionLog() []schema.ExecutionLogEntry {
	c.execMu.Lock()
	defer c.execMu.Unlock()
	out := make([]schema.ExecutionLogEntry, len(c.execLog))
	copy(out, c.execLog)
	return out
}

func (c *Controller) collectDrops() {
	if c.broadcastSub == nil {
		return
	}
	dropped := c.broadcastSub.Dropped()
	if dropped > c.lastDropped {
		c.metrics.AddDroppedTelemetry(dropped - c.lastDropped)
		c.lastDropped = dropped
	}
}

func (c *Controller) publishLossless(ctx context.Context, event schema.RuntimeEvent) {
	if err := c.lossless.Publish(ctx, event); err != nil && ctx.Err() == nil {
		logs.Errorf("lossless publish failed, err: %+v", err)
	}
}

func (c *Controller) haltOnTaskFailure(_ context.Context, failure taskFailure) {
	if c.State() == StateHalted {
		return
	}
	reason := "task_failure:" + failure.task
	c.engine.TriggerHalt(reason)
	c.setState(StateHalted)
	c.exitCode = 2
	c.exitErr = errors.Wrap(failure.err, reason)
	logs.Errorf("critical task failed, task: %s err: %+v", failure.task, failure.err)

	header := c.header(schema.EventHalt)
	notice := schema.HaltNotice{
		Reason:   reason,
		Terminal: c.engine.PortfolioSnapshot(c.engine.LastMarketPx()),
	}
	if err := c.lossless.TryPublish(schema.NewHaltEvent(header, notice)); err != nil {
		c.ring.Publish(schema.NewHaltEvent(header, notice))
	}
}

func (c *Controller) publishTerminalSnapshot() {
	header := c.header(schema.EventPortfolioSnapshot)
	terminal := c.engine.PortfolioSnapshot(c.engine.LastMarketPx())
	c.ring.Publish(schema.RuntimeEvent{Header: header, Portfolio: &terminal})
}

func (c *Controller) consumeCritical(event schema.RuntimeEvent) {
	c.ring.Publish(event)
	if c.opts.Journal != nil {
		if err := c.opts.Journal.RecordEvent(event); err != nil {
			logs.Warnf("journal write failed, err: %+v", err)
		}
	}
}

// finalize runs on context cancellation. A still-active run gets the
// full stop sequence first, so an OS signal and an explicit stop command
// observe the same drain and terminal snapshot.
func (c *Controller) finalize() {
	if c.State().CanStop() {
		c.drainLossless()
		c.publishTerminalSnapshot()
		c.setState(StateStopped)
	}
	c.shutdown()
}

func (c *Controller) drainLossless() {
	deadline := time.Now().Add(drainTimeout)
	for c.lossless.Len() > 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
}

func (c *Controller) shutdown() {
	c.drainLossless()
	c.lossless.Close()
	c.ring.Close()
	c.sup.Wait()
	// the consumer task exits on cancellation; whatever it left buffered
	// still reaches the journal
	c.lossless.Drain(c.consumeCritical)
	if c.opts.Replay != nil {
		if err := c.opts.Replay.Close(); err != nil {
			logs.Errorf("replay close failed, err: %+v", err)
		}
	}
}

func (c *Controller) header(eventType schema.EventType) schema.EventHeader {
	base := c.baseWallMs.Load()
	nowMs := base + int64(c.tick.Load())*c.opts.Engine.DecisionIntervalMs
	if base == 0 {
		nowMs = time.Now().UnixMilli()
	}
	return schema.NewHeader(eventType, c.seq.Next(), nowMs*int64(time.Millisecond), nowMs)
}
