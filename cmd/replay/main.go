package main

import (
	"bufio"
	"flag"
	"os"

	"github.com/yanun0323/logs"

	"main/internal/ops"
	"main/internal/replay"
	"main/internal/run"
	"main/internal/schema"
)

func main() {
	os.Exit(execute())
}

func execute() int {
	seed := flag.Uint64("seed", 7, "Deterministic run seed")
	steps := flag.Uint64("steps", 1000, "Decision ticks to simulate")
	sigma := flag.Float64("sigma", 0.001, "Prediction process volatility")
	lagMs := flag.Int64("lag-ms", 120, "Market feed lag in milliseconds")
	intervalMs := flag.Int64("interval-ms", 50, "Decision interval in milliseconds")
	threshold := flag.Float64("threshold", 0.3, "Lag threshold percent")
	riskPct := flag.Float64("risk-pct", 0.5, "Per-trade risk percent")
	lossCapPct := flag.Float64("loss-cap-pct", 2.0, "Daily loss cap percent")
	output := flag.String("output", "replay.csv", "Replay CSV output path")
	flag.Parse()

	cfg := run.DefaultConfig()
	cfg.Seed = *seed
	cfg.Sigma = *sigma
	cfg.MarketLagMs = *lagMs
	cfg.DecisionIntervalMs = *intervalMs

	engine, err := run.NewEngine(cfg)
	if err != nil {
		logs.Errorf("engine init failed, err: %+v", err)
		return ops.ExitConfig
	}

	settings := schema.RuntimeSettings{
		ExecutionMode:   schema.ModePaper,
		LagThresholdPct: *threshold,
		RiskPerTradePct: *riskPct,
		DailyLossCapPct: *lossCapPct,
	}

	file, err := os.Create(*output)
	if err != nil {
		logs.Errorf("open output failed, err: %+v", err)
		return ops.ExitConfig
	}
	defer file.Close()
	buffered := bufio.NewWriter(file)
	defer buffered.Flush()

	csv := replay.NewCsvWriter(buffered)
	if err := csv.WriteHeader(); err != nil {
		logs.Errorf("write header failed, err: %+v", err)
		return ops.ExitConfig
	}

	var fills, intents uint64
	halted := false
	for tick := uint64(1); tick <= *steps; tick++ {
		nowMs := int64(tick) * cfg.DecisionIntervalMs
		res := engine.Step(tick, nowMs, settings)
		if err := csv.WriteRow(res.Row); err != nil {
			logs.Errorf("write row failed, err: %+v", err)
			return ops.ExitTaskFailure
		}
		if res.Intent != nil {
			intents++
		}
		if res.Fill != nil {
			fills++
		}
		if res.HaltTripped {
			halted = true
			break
		}
	}

	snapshot := engine.PortfolioSnapshot(engine.LastMarketPx())
	logs.Infof("replay completed, intents: %d fills: %d equity: %.2f realized: %.2f halted: %v",
		intents, fills, snapshot.Equity, snapshot.RealizedPnl, halted)
	if halted {
		return ops.ExitHalted
	}
	return ops.ExitClean
}
