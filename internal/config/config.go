// Package config loads the sniper configuration from YAML, .env and SNIPER_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"solana-sniper/internal/domain"
)

// ErrInvalidConfig is returned when validation fails.
var ErrInvalidConfig = errors.New("invalid config")

// EnvPrefix prefixes every environment override, e.g. SNIPER_RPC_URL.
const EnvPrefix = "SNIPER"

// PumpFunProgram is the default program whose logs are subscribed.
const PumpFunProgram = "6EF8rrecthR5Dkzon8Nwu78hRvfCKubJ14M5uBEwF6P"

// Config is the full process configuration, loaded once before pipeline start.
type Config struct {
	Log      LogConfig      `mapstructure:"log"`
	RPC      RPCConfig      `mapstructure:"rpc"`
	Feed     FeedConfig     `mapstructure:"feed"`
	Tracker  TrackerConfig  `mapstructure:"tracker"`
	Queue    QueueConfig    `mapstructure:"queue"`
	Executor ExecutorConfig `mapstructure:"executor"`
	Submit   SubmitConfig   `mapstructure:"submit"`
	Evaluate EvaluateConfig `mapstructure:"evaluate"`
	Status   StatusConfig   `mapstructure:"status"`
	Journal  JournalConfig  `mapstructure:"journal"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type RPCConfig struct {
	URL        string        `mapstructure:"url"`
	Token      string        `mapstructure:"token"`
	Timeout    time.Duration `mapstructure:"timeout"`
	MaxRetries int           `mapstructure:"max_retries"`
}

// EndpointConfig is one configured event source.
type EndpointConfig struct {
	Name     string  `mapstructure:"name"`
	URL      string  `mapstructure:"url"`
	Token    string  `mapstructure:"token"`
	Priority int     `mapstructure:"priority"`
	Weight   float64 `mapstructure:"weight"`
	Enabled  *bool   `mapstructure:"enabled"`
}

type FeedConfig struct {
	Endpoints []EndpointConfig `mapstructure:"endpoints"`
	// URLs is a comma-separated shorthand for endpoints, convenient from the environment.
	URLs              string        `mapstructure:"urls"`
	Programs          []string      `mapstructure:"programs"`
	Commitment        string        `mapstructure:"commitment"`
	DedupWindow       time.Duration `mapstructure:"dedup_window"`
	DedupMaxKeys      int           `mapstructure:"dedup_max_keys"`
	BackoffInitial    time.Duration `mapstructure:"backoff_initial"`
	BackoffMax        time.Duration `mapstructure:"backoff_max"`
	FailureThreshold  int           `mapstructure:"failure_threshold"`
	TimeoutThreshold  int           `mapstructure:"timeout_threshold"`
	DeadAfter         time.Duration `mapstructure:"dead_after"`
	ProbeInterval     time.Duration `mapstructure:"probe_interval"`
	ProbeTimeout      time.Duration `mapstructure:"probe_timeout"`
	DeadProbeInterval time.Duration `mapstructure:"dead_probe_interval"`
	RecoverAfter      int           `mapstructure:"recover_after"`
	ReadTimeout       time.Duration `mapstructure:"read_timeout"`
	ReconnectStagger  time.Duration `mapstructure:"reconnect_stagger"`
}

type TrackerConfig struct {
	RefreshInterval     time.Duration `mapstructure:"refresh_interval"`
	ValidityWindow      time.Duration `mapstructure:"validity_window"`
	DefaultSlotDuration time.Duration `mapstructure:"default_slot_duration"`
	Commitment          string        `mapstructure:"commitment"`
}

type QueueConfig struct {
	Capacity int `mapstructure:"capacity"`
}

type ExecutorConfig struct {
	Workers           int           `mapstructure:"workers"`
	MaxRetries        int           `mapstructure:"max_retries"`
	FreshWait         time.Duration `mapstructure:"fresh_wait"`
	ConfirmBase       time.Duration `mapstructure:"confirm_base"`
	ConfirmPerSlot    time.Duration `mapstructure:"confirm_per_slot"`
	ConfirmPoll       time.Duration `mapstructure:"confirm_poll"`
	ConfirmCommitment string        `mapstructure:"confirm_commitment"`
	EvictInterval     time.Duration `mapstructure:"evict_interval"`
	DrainTimeout      time.Duration `mapstructure:"drain_timeout"`
	DefaultSlotOffset int           `mapstructure:"default_slot_offset"`
}

type TipConfig struct {
	Base               uint64             `mapstructure:"base"`
	Max                uint64             `mapstructure:"max"`
	UrgencyMultipliers map[string]float64 `mapstructure:"urgency_multipliers"`
}

type SubmitConfig struct {
	BundleEnabled     bool          `mapstructure:"bundle_enabled"`
	BundleMinUrgency  string        `mapstructure:"bundle_min_urgency"`
	JitoURL           string        `mapstructure:"jito_url"`
	JitoTipAccount    string        `mapstructure:"jito_tip_account"`
	RelayTimeout      time.Duration `mapstructure:"relay_timeout"`
	SendTimeout       time.Duration `mapstructure:"send_timeout"`
	Tip               TipConfig     `mapstructure:"tip"`
	CongestionRefresh time.Duration `mapstructure:"congestion_refresh"`
	// CongestionBaseline is the prioritization fee (micro-lamports/CU) treated as factor 1.0.
	CongestionBaseline uint64 `mapstructure:"congestion_baseline"`
}

type EvaluateConfig struct {
	ThresholdUSD       float64       `mapstructure:"threshold_usd"`
	BuyAmountSOL       float64       `mapstructure:"buy_amount_sol"`
	Slippage           float64       `mapstructure:"slippage"`
	SOLPriceUSD        float64       `mapstructure:"sol_price_usd"`
	// PriceURL, when set, is polled for a live SOL price; SOLPriceUSD is the fallback.
	PriceURL           string        `mapstructure:"price_url"`
	PriceRefresh       time.Duration `mapstructure:"price_refresh"`
	MaxRiskScore       float64       `mapstructure:"max_risk_score"`
	Budget             time.Duration `mapstructure:"budget"`
	WalletKey          string        `mapstructure:"wallet_key"`
	Urgency            string        `mapstructure:"urgency"`
	ComputeUnitLimit   uint32        `mapstructure:"compute_unit_limit"`
	ComputeUnitPrice   uint64        `mapstructure:"compute_unit_price"`
	// MigrationThreshold is the curve progress from which launches are skipped.
	MigrationThreshold float64       `mapstructure:"migration_threshold"`
	MinLiquiditySOL    float64       `mapstructure:"min_liquidity_sol"`
	// Cooldown blocks a mint after any broadcast for it.
	Cooldown           time.Duration `mapstructure:"cooldown"`
	Blacklist          []string      `mapstructure:"blacklist"`
	// BanScore is the risk score that bans a mint and its creator; 0 disables.
	BanScore           float64       `mapstructure:"ban_score"`
}

type StatusConfig struct {
	Addr string `mapstructure:"addr"`
}

type JournalConfig struct {
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("rpc.url", "https://api.mainnet-beta.solana.com")
	v.SetDefault("rpc.token", "")
	v.SetDefault("rpc.timeout", 5*time.Second)
	v.SetDefault("rpc.max_retries", 2)

	v.SetDefault("feed.urls", "")
	v.SetDefault("feed.programs", []string{PumpFunProgram})
	v.SetDefault("feed.commitment", "processed")
	v.SetDefault("feed.dedup_window", 2*time.Second)
	v.SetDefault("feed.dedup_max_keys", 100000)
	v.SetDefault("feed.backoff_initial", 250*time.Millisecond)
	v.SetDefault("feed.backoff_max", 10*time.Second)
	v.SetDefault("feed.failure_threshold", 3)
	v.SetDefault("feed.timeout_threshold", 3)
	v.SetDefault("feed.dead_after", 30*time.Second)
	v.SetDefault("feed.probe_interval", 5*time.Second)
	v.SetDefault("feed.probe_timeout", 2*time.Second)
	v.SetDefault("feed.dead_probe_interval", 30*time.Second)
	v.SetDefault("feed.recover_after", 2)
	v.SetDefault("feed.read_timeout", 30*time.Second)
	v.SetDefault("feed.reconnect_stagger", 100*time.Millisecond)

	v.SetDefault("tracker.refresh_interval", 100*time.Millisecond)
	v.SetDefault("tracker.validity_window", 60*time.Second)
	v.SetDefault("tracker.default_slot_duration", 400*time.Millisecond)
	v.SetDefault("tracker.commitment", "processed")

	v.SetDefault("queue.capacity", 1000)

	v.SetDefault("executor.workers", 4)
	v.SetDefault("executor.max_retries", 2)
	v.SetDefault("executor.fresh_wait", 200*time.Millisecond)
	v.SetDefault("executor.confirm_base", 800*time.Millisecond)
	v.SetDefault("executor.confirm_per_slot", 400*time.Millisecond)
	v.SetDefault("executor.confirm_poll", 100*time.Millisecond)
	v.SetDefault("executor.confirm_commitment", "processed")
	v.SetDefault("executor.evict_interval", 50*time.Millisecond)
	v.SetDefault("executor.drain_timeout", 5*time.Second)
	v.SetDefault("executor.default_slot_offset", 0)

	v.SetDefault("submit.bundle_enabled", true)
	v.SetDefault("submit.bundle_min_urgency", "high")
	v.SetDefault("submit.jito_url", "https://mainnet.block-engine.jito.wtf")
	v.SetDefault("submit.jito_tip_account", "Cw8CFyM9FkoMi7K7Crf6HNQqf4uEMzpKw6QNghXLvLkY")
	v.SetDefault("submit.relay_timeout", time.Second)
	v.SetDefault("submit.send_timeout", 2*time.Second)
	v.SetDefault("submit.tip.base", 5000)
	v.SetDefault("submit.tip.max", 100000)
	v.SetDefault("submit.tip.urgency_multipliers", map[string]float64{
		"low": 1.0, "normal": 1.5, "high": 2.0, "critical": 3.0,
	})
	v.SetDefault("submit.congestion_refresh", 2*time.Second)
	v.SetDefault("submit.congestion_baseline", 100000)

	v.SetDefault("evaluate.threshold_usd", 8000.0)
	v.SetDefault("evaluate.buy_amount_sol", 0.001)
	v.SetDefault("evaluate.slippage", 1.2)
	v.SetDefault("evaluate.sol_price_usd", 150.0)
	v.SetDefault("evaluate.price_url", "")
	v.SetDefault("evaluate.price_refresh", 30*time.Second)
	v.SetDefault("evaluate.max_risk_score", 0.7)
	v.SetDefault("evaluate.budget", 50*time.Millisecond)
	v.SetDefault("evaluate.wallet_key", "")
	v.SetDefault("evaluate.urgency", "high")
	v.SetDefault("evaluate.compute_unit_limit", 400000)
	v.SetDefault("evaluate.compute_unit_price", 500000)
	v.SetDefault("evaluate.migration_threshold", 0.95)
	v.SetDefault("evaluate.min_liquidity_sol", 0.0)
	v.SetDefault("evaluate.cooldown", 30*time.Second)
	v.SetDefault("evaluate.blacklist", []string{})
	v.SetDefault("evaluate.ban_score", 0.9)

	v.SetDefault("status.addr", ":8080")

	v.SetDefault("journal.driver", "memory")
	v.SetDefault("journal.dsn", "")
}

// Load reads configuration. path is an optional YAML file; envFile an optional
// dotenv file (missing files are ignored). Environment variables win over both.
func Load(path, envFile string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	if envFile != "" {
		if _, err := os.Stat(envFile); err == nil {
			if err := godotenv.Load(envFile); err != nil {
				return nil, fmt.Errorf("load %s: %w", envFile, err)
			}
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if len(cfg.Feed.Endpoints) == 0 && cfg.Feed.URLs != "" {
		for i, u := range strings.Split(cfg.Feed.URLs, ",") {
			u = strings.TrimSpace(u)
			if u == "" {
				continue
			}
			cfg.Feed.Endpoints = append(cfg.Feed.Endpoints, EndpointConfig{URL: u, Priority: i})
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Descriptors converts the endpoint list, applying name, weight and enabled defaults.
func (c *Config) Descriptors() []domain.EndpointDescriptor {
	out := make([]domain.EndpointDescriptor, 0, len(c.Feed.Endpoints))
	for i, e := range c.Feed.Endpoints {
		d := domain.EndpointDescriptor{
			Name:     e.Name,
			URL:      e.URL,
			Token:    e.Token,
			Priority: e.Priority,
			Weight:   e.Weight,
			Enabled:  e.Enabled == nil || *e.Enabled,
		}
		if d.Name == "" {
			d.Name = fmt.Sprintf("endpoint-%d", i)
		}
		if d.Weight <= 0 {
			d.Weight = 1
		}
		out = append(out, d)
	}
	return out
}

// Validate checks internal consistency.
func (c *Config) Validate() error {
	invalid := func(key, format string, args ...interface{}) error {
		return fmt.Errorf("%w: %s: %s", ErrInvalidConfig, key, fmt.Sprintf(format, args...))
	}

	enabled := 0
	names := make(map[string]bool)
	for _, d := range c.Descriptors() {
		if d.URL == "" {
			return invalid("feed.endpoints", "endpoint %s has no url", d.Name)
		}
		if names[d.Name] {
			return invalid("feed.endpoints", "duplicate endpoint name %s", d.Name)
		}
		names[d.Name] = true
		if d.Enabled {
			enabled++
		}
	}
	if enabled == 0 {
		return invalid("feed.endpoints", "at least one enabled endpoint is required")
	}
	if c.RPC.URL == "" {
		return invalid("rpc.url", "required")
	}
	if c.Feed.DedupWindow <= 0 {
		return invalid("feed.dedup_window", "must be positive")
	}
	if c.Feed.BackoffInitial <= 0 || c.Feed.BackoffMax < c.Feed.BackoffInitial {
		return invalid("feed.backoff_max", "must be >= backoff_initial > 0")
	}
	if c.Feed.FailureThreshold < 1 || c.Feed.TimeoutThreshold < 1 || c.Feed.RecoverAfter < 1 {
		return invalid("feed", "failure_threshold, timeout_threshold and recover_after must be >= 1")
	}
	if c.Tracker.RefreshInterval <= 0 || c.Tracker.ValidityWindow <= c.Tracker.RefreshInterval {
		return invalid("tracker.validity_window", "must exceed refresh_interval")
	}
	if c.Tracker.DefaultSlotDuration <= 0 {
		return invalid("tracker.default_slot_duration", "must be positive")
	}
	if c.Queue.Capacity < 1 {
		return invalid("queue.capacity", "must be >= 1")
	}
	if c.Executor.Workers < 1 {
		return invalid("executor.workers", "must be >= 1")
	}
	if c.Executor.MaxRetries < 0 {
		return invalid("executor.max_retries", "must be >= 0")
	}
	if c.Executor.DefaultSlotOffset < 0 {
		return invalid("executor.default_slot_offset", "must be >= 0")
	}
	if c.Executor.ConfirmBase <= 0 || c.Executor.ConfirmPoll <= 0 {
		return invalid("executor.confirm_base", "confirm_base and confirm_poll must be positive")
	}
	if _, err := domain.ParseUrgency(c.Submit.BundleMinUrgency); err != nil {
		return invalid("submit.bundle_min_urgency", "%v", err)
	}
	if _, err := domain.ParseUrgency(c.Evaluate.Urgency); err != nil {
		return invalid("evaluate.urgency", "%v", err)
	}
	if c.Submit.BundleEnabled && c.Submit.JitoURL == "" {
		return invalid("submit.jito_url", "required when bundles are enabled")
	}
	if c.Submit.Tip.Max < c.Submit.Tip.Base {
		return invalid("submit.tip.max", "must be >= tip.base")
	}
	for level := range c.Submit.Tip.UrgencyMultipliers {
		if _, err := domain.ParseUrgency(level); err != nil {
			return invalid("submit.tip.urgency_multipliers", "%v", err)
		}
	}
	if c.Evaluate.Slippage < 1 {
		return invalid("evaluate.slippage", "must be >= 1")
	}
	if c.Evaluate.MigrationThreshold <= 0 || c.Evaluate.MigrationThreshold > 1 {
		return invalid("evaluate.migration_threshold", "must be in (0, 1]")
	}
	if c.Evaluate.MinLiquiditySOL < 0 || c.Evaluate.Cooldown < 0 || c.Evaluate.BanScore < 0 {
		return invalid("evaluate", "min_liquidity_sol, cooldown and ban_score must be >= 0")
	}
	switch c.Journal.Driver {
	case "memory", "none":
	case "postgres", "clickhouse":
		if c.Journal.DSN == "" {
			return invalid("journal.dsn", "required for driver %s", c.Journal.Driver)
		}
	default:
		return invalid("journal.driver", "unknown driver %q", c.Journal.Driver)
	}
	return nil
}
