// Package config loads the engine configuration from a YAML file with flag
// overrides for the most commonly tuned knobs. Secrets (telegram
// credentials) come from the environment, not the file.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/vadiminshakov/sniper/internal/domain"
)

// Config is the fully parsed engine configuration.
type Config struct {
	// Feed
	FeedURL string
	Venue   domain.Venue
	DryRun  bool

	// Entry
	BuyAmount    decimal.Decimal
	MaxSlippage  decimal.Decimal
	MaxRiskScore float64
	Blacklist    []string

	// Exit
	Tiers           []domain.TierRule
	MonitorInterval time.Duration
	MaxHoldDuration time.Duration

	// Safety
	MaxDailyLoss           decimal.Decimal
	MaxSingleLoss          decimal.Decimal
	MaxConsecutiveFailures int
	BreakerCooldown        time.Duration

	// Infrastructure
	PricerURL       string
	ExecutorURL     string
	WebAddr         string
	TLSDomains      []string
	TLSCacheDir     string
	JournalDir      string
	HistoryPath     string
	ReferenceSymbol string

	// Secrets, read from the environment.
	TelegramToken    string
	TelegramChatID   string
	AggregatorAPIKey string
}

// FileTier is the on-disk form of one exit tier.
type FileTier struct {
	ProfitMultiplier string `yaml:"profit_multiplier"`
	SellFraction     string `yaml:"sell_fraction"`
}

// FileConfig is the on-disk YAML form of the configuration. The setup
// wizard marshals it; FromFile parses it.
type FileConfig struct {
	FeedURL string `yaml:"feed_url"`
	Venue   string `yaml:"venue"`
	DryRun  bool   `yaml:"dry_run"`

	BuyAmount    string   `yaml:"buy_amount"`
	MaxSlippage  string   `yaml:"max_slippage,omitempty"`
	MaxRiskScore float64  `yaml:"max_risk_score,omitempty"`
	Blacklist    []string `yaml:"blacklist,omitempty"`

	Tiers           []FileTier    `yaml:"tiers"`
	MonitorInterval time.Duration `yaml:"monitor_interval,omitempty"`
	MaxHoldDuration time.Duration `yaml:"max_hold_duration,omitempty"`

	MaxDailyLoss           string        `yaml:"max_daily_loss"`
	MaxSingleLoss          string        `yaml:"max_single_loss"`
	MaxConsecutiveFailures int           `yaml:"max_consecutive_failures,omitempty"`
	BreakerCooldown        time.Duration `yaml:"breaker_cooldown,omitempty"`

	PricerURL       string   `yaml:"pricer_url,omitempty"`
	ExecutorURL     string   `yaml:"executor_url,omitempty"`
	WebAddr         string   `yaml:"web_addr,omitempty"`
	TLSDomains      []string `yaml:"tls_domains,omitempty"`
	TLSCacheDir     string   `yaml:"tls_cache_dir,omitempty"`
	JournalDir      string   `yaml:"journal_dir,omitempty"`
	HistoryPath     string   `yaml:"history_path,omitempty"`
	ReferenceSymbol string   `yaml:"reference_symbol,omitempty"`
}

// Load reads the YAML file, applies the dry-run override and pulls secrets
// from the environment.
func Load(path string, dryRun bool) (*Config, error) {
	cfg, err := FromFile(path)
	if err != nil {
		return nil, err
	}
	if dryRun {
		cfg.DryRun = true
	}

	cfg.TelegramToken = os.Getenv("TELEGRAM_BOT_TOKEN")
	cfg.TelegramChatID = os.Getenv("TELEGRAM_CHAT_ID")
	cfg.AggregatorAPIKey = os.Getenv("AGGREGATOR_API_KEY")

	return cfg, nil
}

// FromFile loads and validates one YAML config file.
func FromFile(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	var y FileConfig
	if err := yaml.Unmarshal(raw, &y); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	return fromYAML(y)
}

func fromYAML(y FileConfig) (*Config, error) {
	cfg := &Config{
		FeedURL:                y.FeedURL,
		DryRun:                 y.DryRun,
		MaxRiskScore:           y.MaxRiskScore,
		Blacklist:              y.Blacklist,
		MonitorInterval:        y.MonitorInterval,
		MaxHoldDuration:        y.MaxHoldDuration,
		MaxConsecutiveFailures: y.MaxConsecutiveFailures,
		BreakerCooldown:        y.BreakerCooldown,
		PricerURL:              y.PricerURL,
		ExecutorURL:            y.ExecutorURL,
		WebAddr:                y.WebAddr,
		TLSDomains:             y.TLSDomains,
		TLSCacheDir:            y.TLSCacheDir,
		JournalDir:             y.JournalDir,
		HistoryPath:            y.HistoryPath,
		ReferenceSymbol:        y.ReferenceSymbol,
	}

	switch domain.Venue(y.Venue) {
	case domain.VenueRaydium, domain.VenuePumpFun, domain.VenueOrca, domain.VenueSimulate:
		cfg.Venue = domain.Venue(y.Venue)
	case "":
		cfg.Venue = domain.VenueSimulate
	default:
		return nil, fmt.Errorf("unknown 'venue' in config: %s", y.Venue)
	}

	var err error
	if cfg.BuyAmount, err = decimal.NewFromString(y.BuyAmount); err != nil {
		return nil, fmt.Errorf("incorrect 'buy_amount' param in yaml config: %w", err)
	}
	if cfg.BuyAmount.LessThanOrEqual(decimal.Zero) {
		return nil, fmt.Errorf("'buy_amount' must be positive, got %s", cfg.BuyAmount)
	}

	if y.MaxSlippage == "" {
		cfg.MaxSlippage = decimal.NewFromFloat(0.05)
	} else if cfg.MaxSlippage, err = decimal.NewFromString(y.MaxSlippage); err != nil {
		return nil, fmt.Errorf("incorrect 'max_slippage' param in yaml config: %w", err)
	}

	if cfg.MaxDailyLoss, err = decimal.NewFromString(y.MaxDailyLoss); err != nil {
		return nil, fmt.Errorf("incorrect 'max_daily_loss' param in yaml config: %w", err)
	}
	if cfg.MaxSingleLoss, err = decimal.NewFromString(y.MaxSingleLoss); err != nil {
		return nil, fmt.Errorf("incorrect 'max_single_loss' param in yaml config: %w", err)
	}

	for i, t := range y.Tiers {
		var rule domain.TierRule
		if rule.ProfitMultiplier, err = decimal.NewFromString(t.ProfitMultiplier); err != nil {
			return nil, fmt.Errorf("incorrect 'profit_multiplier' in tier %d: %w", i, err)
		}
		if rule.SellFraction, err = decimal.NewFromString(t.SellFraction); err != nil {
			return nil, fmt.Errorf("incorrect 'sell_fraction' in tier %d: %w", i, err)
		}
		cfg.Tiers = append(cfg.Tiers, rule)
	}
	if len(cfg.Tiers) == 0 {
		return nil, fmt.Errorf("at least one exit tier is required")
	}
	if err := domain.ValidateTiers(cfg.Tiers); err != nil {
		return nil, fmt.Errorf("invalid 'tiers' in yaml config: %w", err)
	}

	applyDefaults(cfg)
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.MonitorInterval <= 0 {
		cfg.MonitorInterval = 5 * time.Second
	}
	if cfg.MaxHoldDuration <= 0 {
		cfg.MaxHoldDuration = 24 * time.Hour
	}
	if cfg.MaxConsecutiveFailures <= 0 {
		cfg.MaxConsecutiveFailures = 5
	}
	if cfg.BreakerCooldown <= 0 {
		cfg.BreakerCooldown = 30 * time.Minute
	}
	if cfg.WebAddr == "" {
		cfg.WebAddr = ":8080"
	}
	if cfg.JournalDir == "" {
		cfg.JournalDir = "data/journal"
	}
	if cfg.HistoryPath == "" {
		cfg.HistoryPath = "data/history.db"
	}
	if cfg.ReferenceSymbol == "" {
		cfg.ReferenceSymbol = "SOLUSDT"
	}
}
