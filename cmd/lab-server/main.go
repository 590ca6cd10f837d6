package main

import (
	"context"
	"encoding/json"
	"flag"
	"os"
	"time"

	"github.com/grafana/pyroscope-go"
	"github.com/yanun0323/logs"
	"github.com/yanun0323/pkg/sys"

	"main/internal/feed"
	"main/internal/journal"
	"main/internal/obs"
	"main/internal/ops"
	"main/internal/replay"
	"main/internal/run"
	"main/internal/schema"
)

func main() {
	os.Exit(execute())
}

func execute() int {
	configPath := flag.String("config", "", "Path to optional JSON config")
	flag.Parse()

	cfg, err := ops.Load(*configPath)
	if err != nil {
		logs.Errorf("config load failed, err: %+v", err)
		return ops.ExitConfig
	}

	logs.Infof("market latency risk lab, mode: %s seed: %d addr: %s", cfg.Mode.Name(), cfg.Seed, cfg.ListenAddr)

	if cfg.PyroscopeURL != "" {
		profiler, err := pyroscope.Start(pyroscope.Config{
			ApplicationName: "latency-risk-lab",
			ServerAddress:   cfg.PyroscopeURL,
			ProfileTypes: []pyroscope.ProfileType{
				pyroscope.ProfileCPU,
				pyroscope.ProfileInuseSpace,
			},
		})
		if err != nil {
			logs.Warnf("pyroscope start failed, err: %+v", err)
		} else {
			defer profiler.Stop()
		}
	}

	opts := run.Options{
		Engine:     engineConfig(cfg),
		Settings:   cfg.RuntimeSettings(),
		Metrics:    obs.NewMetrics(),
		Sink:       stdoutSink{},
		ExitOnHalt: true,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.ReplayOutputPath != "" {
		writer, err := replay.NewWriter(replay.Config{Path: cfg.ReplayOutputPath})
		if err != nil {
			logs.Errorf("replay output init failed, err: %+v", err)
			return ops.ExitConfig
		}
		if err := writer.Start(ctx); err != nil {
			logs.Errorf("replay writer start failed, err: %+v", err)
			return ops.ExitConfig
		}
		opts.Replay = writer
	}

	if cfg.JournalDSN != "" {
		store, err := journal.Open(cfg.JournalDSN)
		if err != nil {
			logs.Errorf("journal open failed, err: %+v", err)
			return ops.ExitConfig
		}
		defer store.Close()
		opts.Journal = store
	}

	opts.FeedMode = cfg.Mode.Name()
	if cfg.Mode == ops.ModePaperLive {
		if cfg.TradingViewURL != "" {
			opts.Predictors = append(opts.Predictors,
				feed.NewHTTPPredictor("tradingview", cfg.TradingViewURL, nil, feed.ParseTradingViewPayload))
		}
		if cfg.CryptoQuantURL != "" {
			opts.Predictors = append(opts.Predictors,
				feed.NewHTTPPredictor("cryptoquant", cfg.CryptoQuantURL, nil, feed.ParseCryptoQuantPayload))
		}
	}

	controller, err := run.NewController(opts)
	if err != nil {
		logs.Errorf("controller init failed, err: %+v", err)
		return ops.ExitConfig
	}

	go func() {
		<-sys.Shutdown()
		logs.Info("shutdown signal received")
		controller.Stop()
		// let the controller drain and park before the context falls away
		deadline := time.Now().Add(2 * time.Second)
		for controller.State() != run.StateStopped && time.Now().Before(deadline) {
			time.Sleep(10 * time.Millisecond)
		}
		cancel()
	}()

	controller.Start()
	if err := controller.Run(ctx); err != nil {
		logs.Errorf("run ended, err: %+v", err)
	}
	return controller.ExitCode()
}

func engineConfig(cfg ops.Config) run.Config {
	engine := run.DefaultConfig()
	engine.Seed = cfg.Seed
	return engine
}

// stdoutSink is the headless broadcast sink; the HTTP/WebSocket layer
// replaces it in a full deployment.
type stdoutSink struct{}

func (stdoutSink) Publish(event schema.RuntimeEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	_, err = os.Stdout.Write(append(data, '\n'))
	return err
}
