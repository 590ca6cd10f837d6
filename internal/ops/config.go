package ops

import (
	"encoding/json"
	"os"
	"strconv"
	"strings"

	"github.com/yanun0323/errors"

	"main/internal/schema"
)

// Process exit contract.
const (
	ExitClean       = 0
	ExitConfig      = 1
	ExitTaskFailure = 2
	ExitHalted      = 3
)

// RunMode selects the tick source wiring.
type RunMode uint16

const (
	ModeSim RunMode = iota
	ModePaperLive
)

// Name returns the mode token used in LAB_SERVER_MODE.
func (m RunMode) Name() string {
	if m == ModePaperLive {
		return "paper-live"
	}
	return "sim"
}

// Config is the resolved process configuration.
type Config struct {
	ListenAddr       string
	Mode             RunMode
	ReplayOutputPath string
	Seed             uint64

	ExecutionMode      schema.ExecutionMode
	LiveFeatureEnabled bool
	LagThresholdPct    float64
	RiskPerTradePct    float64
	DailyLossCapPct    float64

	TradingViewURL string
	CryptoQuantURL string
	JournalDSN     string
	PyroscopeURL   string
}

// Defaults returns the baseline configuration.
func Defaults() Config {
	return Config{
		ListenAddr:      "0.0.0.0:8080",
		Mode:            ModeSim,
		Seed:            7,
		ExecutionMode:   schema.ModePaper,
		LagThresholdPct: 0.3,
		RiskPerTradePct: 0.5,
		DailyLossCapPct: 2.0,
	}
}

// FileConfig mirrors the JSON config layout. Absent fields leave the
// corresponding value untouched.
type FileConfig struct {
	ListenAddr         *string  `json:"listenAddr"`
	Mode               *string  `json:"mode"`
	ReplayOutputPath   *string  `json:"replayOutput"`
	Seed               *uint64  `json:"seed"`
	ExecutionMode      *string  `json:"executionMode"`
	LiveFeatureEnabled *bool    `json:"liveFeatureEnabled"`
	LagThresholdPct    *float64 `json:"lagThresholdPct"`
	RiskPerTradePct    *float64 `json:"riskPerTradePct"`
	DailyLossCapPct    *float64 `json:"dailyLossCapPct"`
	TradingViewURL     *string  `json:"tradingviewPredictUrl"`
	CryptoQuantURL     *string  `json:"cryptoquantPredictUrl"`
	JournalDSN         *string  `json:"journalDsn"`
	PyroscopeURL       *string  `json:"pyroscopeUrl"`
}

// Load resolves the configuration from an optional JSON file and the
// LAB_* environment overrides, in that order: defaults, then file, then
// environment. An empty path skips the file layer.
func Load(path string) (Config, error) {
	cfg := Defaults()
	if path != "" {
		if err := cfg.applyFile(path); err != nil {
			return Config{}, err
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// FromEnv resolves the configuration from LAB_* environment variables on
// top of the defaults. Invalid values are fatal (exit 1).
func FromEnv() (Config, error) {
	return Load("")
}

func (c *Config) applyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrap(err, "read config file")
	}
	var file FileConfig
	if err := json.Unmarshal(data, &file); err != nil {
		return errors.Wrap(err, "unmarshal config file")
	}

	if file.ListenAddr != nil {
		if strings.TrimSpace(*file.ListenAddr) == "" {
			return errors.Errorf("listenAddr must not be empty")
		}
		c.ListenAddr = *file.ListenAddr
	}
	if file.Mode != nil {
		mode, err := parseRunMode(*file.Mode)
		if err != nil {
			return err
		}
		c.Mode = mode
	}
	if file.ReplayOutputPath != nil {
		c.ReplayOutputPath = *file.ReplayOutputPath
	}
	if file.Seed != nil {
		c.Seed = *file.Seed
	}
	if file.ExecutionMode != nil {
		mode, err := parseExecutionMode(*file.ExecutionMode)
		if err != nil {
			return err
		}
		c.ExecutionMode = mode
	}
	if file.LiveFeatureEnabled != nil {
		c.LiveFeatureEnabled = *file.LiveFeatureEnabled
	}
	if file.LagThresholdPct != nil {
		if err := validatePct("lagThresholdPct", *file.LagThresholdPct); err != nil {
			return err
		}
		c.LagThresholdPct = *file.LagThresholdPct
	}
	if file.RiskPerTradePct != nil {
		if err := validatePct("riskPerTradePct", *file.RiskPerTradePct); err != nil {
			return err
		}
		c.RiskPerTradePct = *file.RiskPerTradePct
	}
	if file.DailyLossCapPct != nil {
		if err := validatePct("dailyLossCapPct", *file.DailyLossCapPct); err != nil {
			return err
		}
		c.DailyLossCapPct = *file.DailyLossCapPct
	}
	if file.TradingViewURL != nil {
		c.TradingViewURL = *file.TradingViewURL
	}
	if file.CryptoQuantURL != nil {
		c.CryptoQuantURL = *file.CryptoQuantURL
	}
	if file.JournalDSN != nil {
		c.JournalDSN = *file.JournalDSN
	}
	if file.PyroscopeURL != nil {
		c.PyroscopeURL = *file.PyroscopeURL
	}
	return nil
}

func (c *Config) applyEnv() error {
	if v, ok := os.LookupEnv("LAB_SERVER_ADDR"); ok {
		if strings.TrimSpace(v) == "" {
			return errors.Errorf("LAB_SERVER_ADDR must not be empty")
		}
		c.ListenAddr = v
	}
	if v, ok := os.LookupEnv("LAB_SERVER_MODE"); ok {
		mode, err := parseRunMode(v)
		if err != nil {
			return err
		}
		c.Mode = mode
	}
	if v, ok := os.LookupEnv("LAB_SERVER_REPLAY_OUTPUT"); ok {
		c.ReplayOutputPath = v
	}
	if v, ok := os.LookupEnv("LAB_SEED"); ok {
		seed, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return errors.Wrap(err, "parse LAB_SEED")
		}
		c.Seed = seed
	}
	if v, ok := os.LookupEnv("LAB_EXECUTION_MODE"); ok {
		mode, err := parseExecutionMode(v)
		if err != nil {
			return err
		}
		c.ExecutionMode = mode
	}
	if v, ok := os.LookupEnv("LAB_LIVE_FEATURE_ENABLED"); ok {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return errors.Wrap(err, "parse LAB_LIVE_FEATURE_ENABLED")
		}
		c.LiveFeatureEnabled = enabled
	}

	var err error
	if c.LagThresholdPct, err = pctFromEnv("LAB_LAG_THRESHOLD_PCT", c.LagThresholdPct); err != nil {
		return err
	}
	if c.RiskPerTradePct, err = pctFromEnv("LAB_RISK_PER_TRADE_PCT", c.RiskPerTradePct); err != nil {
		return err
	}
	if c.DailyLossCapPct, err = pctFromEnv("LAB_DAILY_LOSS_CAP_PCT", c.DailyLossCapPct); err != nil {
		return err
	}

	if v, ok := os.LookupEnv("LAB_TRADINGVIEW_PREDICT_URL"); ok {
		c.TradingViewURL = v
	}
	if v, ok := os.LookupEnv("LAB_CRYPTOQUANT_PREDICT_URL"); ok {
		c.CryptoQuantURL = v
	}
	if v, ok := os.LookupEnv("LAB_JOURNAL_DSN"); ok {
		c.JournalDSN = v
	}
	if v, ok := os.LookupEnv("LAB_PYROSCOPE_URL"); ok {
		c.PyroscopeURL = v
	}
	return nil
}

func parseRunMode(v string) (RunMode, error) {
	switch v {
	case "sim":
		return ModeSim, nil
	case "paper-live":
		return ModePaperLive, nil
	default:
		return ModeSim, errors.Errorf("mode must be sim or paper-live, got %q", v)
	}
}

func parseExecutionMode(v string) (schema.ExecutionMode, error) {
	switch v {
	case "paper":
		return schema.ModePaper, nil
	case "live":
		return schema.ModeLive, nil
	default:
		return schema.ModePaper, errors.Errorf("execution mode must be paper or live, got %q", v)
	}
}

// Validate rejects conflicting gates: live execution mode without the live
// feature flag. Percentages are range-checked while they are loaded.
func (c Config) Validate() error {
	if c.ExecutionMode == schema.ModeLive && !c.LiveFeatureEnabled {
		return errors.Errorf("LAB_EXECUTION_MODE=live requires LAB_LIVE_FEATURE_ENABLED=true")
	}
	return nil
}

// RuntimeSettings derives the initial hot-swappable settings snapshot.
func (c Config) RuntimeSettings() schema.RuntimeSettings {
	return schema.RuntimeSettings{
		ExecutionMode:      c.ExecutionMode,
		LagThresholdPct:    c.LagThresholdPct,
		RiskPerTradePct:    c.RiskPerTradePct,
		DailyLossCapPct:    c.DailyLossCapPct,
		LiveFeatureEnabled: c.LiveFeatureEnabled,
	}
}

func pctFromEnv(key string, fallback float64) (float64, error) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return fallback, nil
	}
	pct, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, errors.Wrap(err, "parse "+key)
	}
	if err := validatePct(key, pct); err != nil {
		return 0, err
	}
	return pct, nil
}

func validatePct(name string, pct float64) error {
	if pct <= 0 || pct > 100 {
		return errors.Errorf("%s must be in (0, 100], got %v", name, pct)
	}
	return nil
}
