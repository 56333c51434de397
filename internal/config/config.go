package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"tyr/internal/common"
	"tyr/internal/engine"
	"tyr/internal/executor"
)

var ErrInvalidConfig = errors.New("invalid config")

// Environment variables that override the YAML file.
const (
	EnvConfigPath       = "TYR_CONFIG"
	EnvLogLevel         = "TYR_LOG_LEVEL"
	EnvMutationExecutor = "TYR_MUTATION_EXECUTOR"
	EnvNotifierExecutor = "TYR_NOTIFIER_EXECUTOR"
	EnvNotifierWorkers  = "TYR_NOTIFIER_WORKERS"
)

type Config struct {
	Log        LogConfig        `yaml:"log"`
	Engine     EngineConfig     `yaml:"engine"`
	Playground PlaygroundConfig `yaml:"playground"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

// EngineConfig picks the execution contexts. The mutation context must be
// serial, so "pool" is only accepted for the notifier.
//
// A pooled notifier still delivers each subscription's events in order, but
// separate subscriptions run in parallel: an OnOrderClosed handler may run
// before the OnOrderOpened handler for the same order. Subscribe with
// Engine.OnEvent, or keep a serial notifier, when that ordering matters.
type EngineConfig struct {
	Mutation        string `yaml:"mutation"`
	Notifier        string `yaml:"notifier"`
	NotifierWorkers uint   `yaml:"notifierWorkers"` // only used by "pool"
}

type PlaygroundConfig struct {
	Base      string `yaml:"base"`
	Quote     string `yaml:"quote"`
	MinPrice  string `yaml:"minPrice"`
	MaxPrice  string `yaml:"maxPrice"`
	Orders    int    `yaml:"orders"`    // Orders generated per side
	Producers int    `yaml:"producers"` // Goroutines placing orders concurrently
}

func Default() Config {
	return Config{
		Log: LogConfig{
			Level:  "info",
			Pretty: true,
		},
		Engine: EngineConfig{
			Mutation:        string(executor.KindWorker),
			Notifier:        string(executor.KindWorker),
			NotifierWorkers: 4,
		},
		Playground: PlaygroundConfig{
			Base:      "USD",
			Quote:     "EUR",
			MinPrice:  "0.93",
			MaxPrice:  "0.99",
			Orders:    100,
			Producers: 10,
		},
	}
}

// Load builds the configuration from defaults, then the YAML file at path (if
// path is not empty), then the environment. A .env file in the working
// directory is loaded into the environment first when present.
func Load(path string) (*Config, error) {
	// A missing .env is normal.
	_ = godotenv.Load()

	cfg := Default()
	if path == "" {
		path = os.Getenv(EnvConfigPath)
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrapf(err, "reading config file %q", path)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, errors.Wrapf(ErrInvalidConfig, "decoding %q: %v", path, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (cfg *Config) applyEnv() error {
	if v, ok := os.LookupEnv(EnvLogLevel); ok {
		cfg.Log.Level = v
	}
	if v, ok := os.LookupEnv(EnvMutationExecutor); ok {
		cfg.Engine.Mutation = v
	}
	if v, ok := os.LookupEnv(EnvNotifierExecutor); ok {
		cfg.Engine.Notifier = v
	}
	if v, ok := os.LookupEnv(EnvNotifierWorkers); ok {
		n, err := strconv.ParseUint(strings.TrimSpace(v), 10, 32)
		if err != nil {
			return errors.Wrapf(ErrInvalidConfig, "%s=%q", EnvNotifierWorkers, v)
		}
		cfg.Engine.NotifierWorkers = uint(n)
	}
	return nil
}

func (cfg *Config) Validate() error {
	if _, err := zerolog.ParseLevel(cfg.Log.Level); err != nil {
		return errors.Wrapf(ErrInvalidConfig, "log level %q", cfg.Log.Level)
	}

	mutation, err := executor.ParseKind(cfg.Engine.Mutation)
	if err != nil {
		return errors.Wrapf(ErrInvalidConfig, "mutation executor: %v", err)
	}
	if mutation == executor.KindPool {
		return errors.Wrapf(ErrInvalidConfig, "mutation executor: %v", executor.ErrUnsafeSerial)
	}
	notifier, err := executor.ParseKind(cfg.Engine.Notifier)
	if err != nil {
		return errors.Wrapf(ErrInvalidConfig, "notifier executor: %v", err)
	}
	if notifier == executor.KindPool && cfg.Engine.NotifierWorkers == 0 {
		return errors.Wrap(ErrInvalidConfig, "notifier pool needs at least one worker")
	}

	return cfg.Playground.validate()
}

func (p PlaygroundConfig) validate() error {
	pair := p.Pair()
	if pair.Base == "" || pair.Quote == "" {
		return errors.Wrap(ErrInvalidConfig, "playground currency pair is incomplete")
	}
	minPrice, maxPrice, err := p.PriceRange()
	if err != nil {
		return err
	}
	if minPrice.Sign() <= 0 || maxPrice.LessThan(minPrice) {
		return errors.Wrapf(ErrInvalidConfig, "playground price range [%s, %s]", minPrice, maxPrice)
	}
	if p.Orders < 0 || p.Producers <= 0 {
		return errors.Wrapf(ErrInvalidConfig, "playground orders %d, producers %d", p.Orders, p.Producers)
	}
	return nil
}

func (p PlaygroundConfig) Pair() common.CurrencyPair {
	return common.NewCurrencyPair(p.Base, p.Quote)
}

func (p PlaygroundConfig) PriceRange() (decimal.Decimal, decimal.Decimal, error) {
	minPrice, err := decimal.NewFromString(p.MinPrice)
	if err != nil {
		return decimal.Zero, decimal.Zero, errors.Wrapf(ErrInvalidConfig, "minPrice %q", p.MinPrice)
	}
	maxPrice, err := decimal.NewFromString(p.MaxPrice)
	if err != nil {
		return decimal.Zero, decimal.Zero, errors.Wrapf(ErrInvalidConfig, "maxPrice %q", p.MaxPrice)
	}
	return minPrice, maxPrice, nil
}

// Apply installs the log level and, when Pretty is set, a console writer on
// the global zerolog logger.
func (c LogConfig) Apply() error {
	level, err := zerolog.ParseLevel(c.Level)
	if err != nil {
		return errors.Wrapf(ErrInvalidConfig, "log level %q", c.Level)
	}
	zerolog.SetGlobalLevel(level)
	if c.Pretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
	return nil
}

// NewEngine builds the execution contexts named by the configuration and an
// engine running on them.
func (c EngineConfig) NewEngine() (*engine.Engine, error) {
	mutationKind, err := executor.ParseKind(c.Mutation)
	if err != nil {
		return nil, err
	}
	notifierKind, err := executor.ParseKind(c.Notifier)
	if err != nil {
		return nil, err
	}

	mutation, err := executor.NewSerial("mutation", mutationKind)
	if err != nil {
		return nil, err
	}
	notifier, err := executor.New("notifier", notifierKind, c.NotifierWorkers)
	if err != nil {
		_ = mutation.Close()
		return nil, err
	}
	return engine.New(mutation, notifier), nil
}
