package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vadiminshakov/sniper/internal/domain"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestFromFile(t *testing.T) {
	path := writeConfig(t, `
feed_url: wss://feed.example.com/tokens
venue: raydium
buy_amount: "100"
max_slippage: "0.03"
tiers:
  - profit_multiplier: "2"
    sell_fraction: "0.35"
  - profit_multiplier: "3"
    sell_fraction: "0.35"
  - profit_multiplier: "5"
    sell_fraction: "1"
monitor_interval: 3s
max_hold_duration: 12h
max_daily_loss: "500"
max_single_loss: "200"
max_consecutive_failures: 4
breaker_cooldown: 15m
web_addr: ":9090"
`)

	cfg, err := FromFile(path)
	require.NoError(t, err)

	assert.Equal(t, "wss://feed.example.com/tokens", cfg.FeedURL)
	assert.Equal(t, domain.VenueRaydium, cfg.Venue)
	assert.True(t, cfg.BuyAmount.Equal(decimal.NewFromInt(100)))
	assert.True(t, cfg.MaxSlippage.Equal(decimal.NewFromFloat(0.03)))
	require.Len(t, cfg.Tiers, 3)
	assert.True(t, cfg.Tiers[1].ProfitMultiplier.Equal(decimal.NewFromInt(3)))
	assert.Equal(t, 3*time.Second, cfg.MonitorInterval)
	assert.Equal(t, 12*time.Hour, cfg.MaxHoldDuration)
	assert.True(t, cfg.MaxDailyLoss.Equal(decimal.NewFromInt(500)))
	assert.Equal(t, 4, cfg.MaxConsecutiveFailures)
	assert.Equal(t, 15*time.Minute, cfg.BreakerCooldown)
	assert.Equal(t, ":9090", cfg.WebAddr)
}

func TestFromFile_Defaults(t *testing.T) {
	path := writeConfig(t, `
buy_amount: "50"
max_daily_loss: "100"
max_single_loss: "40"
tiers:
  - profit_multiplier: "2"
    sell_fraction: "0.5"
`)

	cfg, err := FromFile(path)
	require.NoError(t, err)

	assert.Equal(t, domain.VenueSimulate, cfg.Venue)
	assert.Equal(t, 5*time.Second, cfg.MonitorInterval)
	assert.Equal(t, 24*time.Hour, cfg.MaxHoldDuration)
	assert.Equal(t, 5, cfg.MaxConsecutiveFailures)
	assert.Equal(t, 30*time.Minute, cfg.BreakerCooldown)
	assert.Equal(t, ":8080", cfg.WebAddr)
	assert.Equal(t, "data/journal", cfg.JournalDir)
	assert.Equal(t, "SOLUSDT", cfg.ReferenceSymbol)
	assert.True(t, cfg.MaxSlippage.Equal(decimal.NewFromFloat(0.05)))
}

func TestLoad_EnvSecretsAndDryRunOverride(t *testing.T) {
	path := writeConfig(t, `
venue: raydium
buy_amount: "50"
max_daily_loss: "100"
max_single_loss: "40"
tiers:
  - profit_multiplier: "2"
    sell_fraction: "0.5"
`)

	t.Setenv("TELEGRAM_BOT_TOKEN", "tg-token")
	t.Setenv("TELEGRAM_CHAT_ID", "42")
	t.Setenv("AGGREGATOR_API_KEY", "agg-key")

	cfg, err := Load(path, true)
	require.NoError(t, err)

	assert.True(t, cfg.DryRun, "the dry-run flag overrides the file")
	assert.Equal(t, domain.VenueRaydium, cfg.Venue)
	assert.Equal(t, "tg-token", cfg.TelegramToken)
	assert.Equal(t, "42", cfg.TelegramChatID)
	assert.Equal(t, "agg-key", cfg.AggregatorAPIKey)
}

func TestFromFile_Invalid(t *testing.T) {
	cases := map[string]string{
		"no tiers": `
buy_amount: "50"
max_daily_loss: "100"
max_single_loss: "40"
`,
		"descending tiers": `
buy_amount: "50"
max_daily_loss: "100"
max_single_loss: "40"
tiers:
  - profit_multiplier: "3"
    sell_fraction: "0.5"
  - profit_multiplier: "2"
    sell_fraction: "0.5"
`,
		"bad buy amount": `
buy_amount: "many"
max_daily_loss: "100"
max_single_loss: "40"
tiers:
  - profit_multiplier: "2"
    sell_fraction: "0.5"
`,
		"negative buy amount": `
buy_amount: "-5"
max_daily_loss: "100"
max_single_loss: "40"
tiers:
  - profit_multiplier: "2"
    sell_fraction: "0.5"
`,
		"unknown venue": `
venue: nyse
buy_amount: "50"
max_daily_loss: "100"
max_single_loss: "40"
tiers:
  - profit_multiplier: "2"
    sell_fraction: "0.5"
`,
	}

	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := FromFile(writeConfig(t, body))
			assert.Error(t, err)
		})
	}
}
