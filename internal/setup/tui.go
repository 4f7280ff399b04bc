package setup

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/vadiminshakov/sniper/config"
)

var (
	subtle    = lipgloss.AdaptiveColor{Light: "#D9DCCF", Dark: "#383838"}
	highlight = lipgloss.AdaptiveColor{Light: "#874BFD", Dark: "#7D56F4"}
	special   = lipgloss.AdaptiveColor{Light: "#43BF6D", Dark: "#73F59F"}

	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")).
			Background(highlight).
			Padding(1, 2).
			Bold(true).
			MarginBottom(1)

	stepStyle = lipgloss.NewStyle().
			Foreground(special).
			Bold(true).
			MarginTop(1).
			MarginBottom(0)
)

func header(step string) {
	fmt.Print("\033[H\033[2J") // Clear screen
	fmt.Println(headerStyle.Render("SNIPER CONFIG WIZARD"))
	fmt.Println(stepStyle.Render(step))
}

// RunTUI launches the terminal configuration wizard and writes the result to
// config.gen.yaml.
func RunTUI() error {
	var (
		venue           string
		feedURL         string
		buyAmountStr    string
		maxSlippageStr  string
		tiersStr        string
		monitorInterval string
		maxHold         string
		dailyLossStr    string
		singleLossStr   string
		failuresStr     string
		cooldown        string
		webAddr         string
		confirm         bool
	)

	// defaults
	buyAmountStr = "50"
	maxSlippageStr = "0.05"
	tiersStr = "2:0.35, 3:0.35, 5:1"
	monitorInterval = "5s"
	maxHold = "24h"
	dailyLossStr = "500"
	singleLossStr = "200"
	failuresStr = "5"
	cooldown = "30m"
	webAddr = ":8080"

	header("STEP 1: VENUE")
	err := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Select Trading Venue").
				Options(
					huh.NewOption("Raydium", "raydium"),
					huh.NewOption("Pump.fun", "pumpfun"),
					huh.NewOption("Orca", "orca"),
					huh.NewOption("Simulation", "simulate"),
				).
				Value(&venue),
			huh.NewInput().
				Title("Discovery Feed URL").
				Description("WebSocket feed of new token listings (empty for simulation)").
				Value(&feedURL),
		),
	).Run()
	if err != nil {
		return err
	}

	header("STEP 2: ENTRY")
	err = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Buy Amount").
				Description("Quote currency spent per snipe").
				Value(&buyAmountStr).
				Validate(validatePositiveDecimal),
			huh.NewInput().
				Title("Max Slippage").
				Description("Fraction, e.g. 0.05 for 5%").
				Value(&maxSlippageStr).
				Validate(validatePositiveDecimal),
		),
	).Run()
	if err != nil {
		return err
	}

	header("STEP 3: EXIT LADDER")
	err = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Profit Tiers").
				Description("multiplier:fraction pairs, e.g. 2:0.35, 3:0.35, 5:1").
				Value(&tiersStr).
				Validate(func(s string) error {
					_, err := parseTiers(s)
					return err
				}),
			huh.NewInput().
				Title("Monitor Interval").
				Description("Duration string (e.g. 3s, 5s)").
				Value(&monitorInterval).
				Validate(validateDuration),
			huh.NewInput().
				Title("Max Hold Duration").
				Description("Positions older than this are liquidated (e.g. 24h)").
				Value(&maxHold).
				Validate(validateDuration),
		),
	).Run()
	if err != nil {
		return err
	}

	header("STEP 4: SAFETY LIMITS")
	err = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Max Daily Loss").
				Description("Quote currency, trading halts above this").
				Value(&dailyLossStr).
				Validate(validatePositiveDecimal),
			huh.NewInput().
				Title("Max Single Loss").
				Value(&singleLossStr).
				Validate(validatePositiveDecimal),
			huh.NewInput().
				Title("Max Consecutive Failures").
				Value(&failuresStr),
			huh.NewInput().
				Title("Breaker Cooldown").
				Description("Duration string (e.g. 30m, 1h)").
				Value(&cooldown).
				Validate(validateDuration),
			huh.NewInput().
				Title("Operator API Address").
				Value(&webAddr),
		),
	).Run()
	if err != nil {
		return err
	}

	header("FINAL CONFIRMATION")
	summary := fmt.Sprintf(
		"Venue: %s\nBuy Amount: %s\nTiers: %s\nMax Hold: %s\nDaily Loss Limit: %s\nCooldown: %s\n",
		venue, buyAmountStr, tiersStr, maxHold, dailyLossStr, cooldown,
	)
	fmt.Println(lipgloss.NewStyle().Border(lipgloss.NormalBorder()).Padding(1).Render(summary))

	err = huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title("Save Configuration?").
				Affirmative("Yes, save and start").
				Negative("No, exit").
				Value(&confirm),
		),
	).Run()
	if err != nil {
		return err
	}
	if !confirm {
		return fmt.Errorf("setup cancelled by user")
	}

	tiers, err := parseTiers(tiersStr)
	if err != nil {
		return err
	}
	mi, _ := time.ParseDuration(monitorInterval)
	mh, _ := time.ParseDuration(maxHold)
	cd, _ := time.ParseDuration(cooldown)

	fileCfg := config.FileConfig{
		FeedURL:         feedURL,
		Venue:           venue,
		BuyAmount:       buyAmountStr,
		MaxSlippage:     maxSlippageStr,
		Tiers:           tiers,
		MonitorInterval: mi,
		MaxHoldDuration: mh,
		MaxDailyLoss:    dailyLossStr,
		MaxSingleLoss:   singleLossStr,
		BreakerCooldown: cd,
		WebAddr:         webAddr,
	}
	fmt.Sscanf(failuresStr, "%d", &fileCfg.MaxConsecutiveFailures)

	data, err := yaml.Marshal(fileCfg)
	if err != nil {
		return fmt.Errorf("failed to generate yaml: %w", err)
	}

	filename := "config.gen.yaml"
	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to save config file: %w", err)
	}

	fmt.Println(lipgloss.NewStyle().Foreground(special).Render(fmt.Sprintf("\n✓ Configuration saved to %s\nStarting engine...", filename)))
	fmt.Println(lipgloss.NewStyle().Foreground(subtle).Render("Run again with -config config.gen.yaml"))
	time.Sleep(1500 * time.Millisecond) // small pause to read success message
	return nil
}

func parseTiers(s string) ([]config.FileTier, error) {
	var tiers []config.FileTier
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		fields := strings.SplitN(part, ":", 2)
		if len(fields) != 2 {
			return nil, fmt.Errorf("tier %q must be multiplier:fraction", part)
		}
		if _, err := decimal.NewFromString(strings.TrimSpace(fields[0])); err != nil {
			return nil, fmt.Errorf("bad multiplier in %q", part)
		}
		if _, err := decimal.NewFromString(strings.TrimSpace(fields[1])); err != nil {
			return nil, fmt.Errorf("bad fraction in %q", part)
		}
		tiers = append(tiers, config.FileTier{
			ProfitMultiplier: strings.TrimSpace(fields[0]),
			SellFraction:     strings.TrimSpace(fields[1]),
		})
	}
	if len(tiers) == 0 {
		return nil, fmt.Errorf("at least one tier is required")
	}
	return tiers, nil
}

func validatePositiveDecimal(s string) error {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return fmt.Errorf("must be a valid number")
	}
	if d.LessThanOrEqual(decimal.Zero) {
		return fmt.Errorf("must be positive")
	}
	return nil
}

func validateDuration(s string) error {
	_, err := time.ParseDuration(s)
	return err
}
