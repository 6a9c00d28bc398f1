// Package setup provides the interactive terminal wizard that generates
// a dashboard config file.
package setup

import (
	"fmt"
	"os"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/zenlend/zenlend/config"
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
	fmt.Print("\033[H\033[2J")
	fmt.Println(headerStyle.Render("ZENLEND CONFIG WIZARD"))
	if step != "" {
		fmt.Println(stepStyle.Render(step))
	}
}

// RunTUI launches the terminal configuration wizard and writes the result
// to config.gen.yaml.
func RunTUI() error {
	var (
		platform         string
		asset            string
		pollIntervalStr  string
		minRatioStr      string
		liquidationStr   string
		listenAddr       string
		commitmentAPIURL string
		journalDir       string
		confirm          bool
	)

	// defaults
	asset = "BTC"
	pollIntervalStr = "1m"
	minRatioStr = "150"
	liquidationStr = "1.2"
	listenAddr = ":8080"
	journalDir = "journal"

	header("")
	fmt.Println(lipgloss.NewStyle().Foreground(subtle).Render("Let's get your lending dashboard configured.\n"))

	header("STEP 1: PRICE SOURCE")
	err := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Select Price Source").
				Options(
					huh.NewOption("CoinGecko (no API key needed)", "coingecko"),
					huh.NewOption("Binance", "binance"),
					huh.NewOption("Bybit", "bybit"),
					huh.NewOption("Hyperliquid", "hyperliquid"),
				).
				Value(&platform),
		),
	).Run()
	if err != nil {
		return err
	}

	header("STEP 2: ASSET")
	err = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Collateral Asset").
				Description("Symbol of the collateral asset (e.g. BTC)").
				Value(&asset).
				Validate(func(s string) error {
					if s == "" {
						return fmt.Errorf("asset cannot be empty")
					}
					return nil
				}),
		),
	).Run()
	if err != nil {
		return err
	}

	header("STEP 3: TIMING")
	err = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Poll Price Interval").
				Description("Duration string (e.g. 30s, 1m, 5m)").
				Value(&pollIntervalStr).
				Validate(func(s string) error {
					_, err := time.ParseDuration(s)
					return err
				}),
		),
	).Run()
	if err != nil {
		return err
	}

	header("STEP 4: RISK PARAMETERS")
	err = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Minimum Collateral Ratio %").
				Description("Minting is rejected below this ratio (e.g. 150)").
				Value(&minRatioStr).
				Validate(validateRatioPct),
			huh.NewInput().
				Title("Liquidation Ratio").
				Description("Collateral-to-debt ratio at which positions liquidate (e.g. 1.2)").
				Value(&liquidationStr).
				Validate(validateLiquidationRatio),
		),
	).Run()
	if err != nil {
		return err
	}

	header("STEP 5: SERVICES")
	err = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("HTTP Listen Address").
				Value(&listenAddr),
			huh.NewInput().
				Title("Commitment API URL").
				Description("Base URL of the commitment service, empty to disable").
				Value(&commitmentAPIURL),
			huh.NewInput().
				Title("Journal Directory").
				Description("Where position history is persisted").
				Value(&journalDir),
		),
	).Run()
	if err != nil {
		return err
	}

	header("FINAL CONFIRMATION")
	summary := fmt.Sprintf(
		"Price source: %s\nAsset: %s\nInterval: %s\nMin ratio: %s%%\nLiquidation ratio: %s\nListen: %s\n",
		platform, asset, pollIntervalStr, minRatioStr, liquidationStr, listenAddr,
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

	pollInterval, _ := time.ParseDuration(pollIntervalStr)

	cfg := config.FileConfig{
		Platform:          platform,
		Asset:             asset,
		PollPriceInterval: pollInterval,
		MinRatioPct:       minRatioStr,
		LiquidationRatio:  liquidationStr,
		ListenAddr:        listenAddr,
		CommitmentAPIURL:  commitmentAPIURL,
		JournalDir:        journalDir,
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to generate yaml: %w", err)
	}

	filename := "config.gen.yaml"
	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to save config file: %w", err)
	}

	fmt.Println(lipgloss.NewStyle().Foreground(special).Render(fmt.Sprintf("\n✓ Configuration saved to %s\nStarting dashboard...", filename)))
	time.Sleep(1500 * time.Millisecond) // small pause to read success message
	return nil
}

func validateRatioPct(s string) error {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return fmt.Errorf("must be a valid number")
	}
	if !d.GreaterThan(decimal.NewFromInt(100)) {
		return fmt.Errorf("must exceed 100")
	}
	return nil
}

func validateLiquidationRatio(s string) error {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return fmt.Errorf("must be a valid number")
	}
	if !d.GreaterThan(decimal.NewFromInt(1)) {
		return fmt.Errorf("must exceed 1")
	}
	return nil
}
