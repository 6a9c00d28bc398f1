package config

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Config holds the runtime parameters of the lending dashboard.
type Config struct {
	Platform          string
	Asset             string
	PollPriceInterval time.Duration
	FetchTimeout      time.Duration
	MinRatioPct       decimal.Decimal
	LiquidationRatio  decimal.Decimal
	FallbackPrice     decimal.Decimal
	ListenAddr        string
	CommitmentAPIURL  string
	JournalDir        string
	TLSDomains        []string
	TLSCacheDir       string
}

// FileConfig is the yaml representation of Config. Decimal fields are
// strings so that precision survives the round trip.
type FileConfig struct {
	Platform          string        `yaml:"platform"`
	Asset             string        `yaml:"asset"`
	PollPriceInterval time.Duration `yaml:"poll_price_interval"`
	FetchTimeout      time.Duration `yaml:"fetch_timeout,omitempty"`
	MinRatioPct       string        `yaml:"min_ratio_pct,omitempty"`
	LiquidationRatio  string        `yaml:"liquidation_ratio,omitempty"`
	FallbackPrice     string        `yaml:"fallback_price,omitempty"`
	ListenAddr        string        `yaml:"listen_addr,omitempty"`
	CommitmentAPIURL  string        `yaml:"commitment_api_url,omitempty"`
	JournalDir        string        `yaml:"journal_dir,omitempty"`
	TLSDomains        []string      `yaml:"tls_domains,omitempty"`
	TLSCacheDir       string        `yaml:"tls_cache_dir,omitempty"`
}

var supportedPlatforms = map[string]struct{}{
	"coingecko":   {},
	"binance":     {},
	"bybit":       {},
	"hyperliquid": {},
}

const (
	defaultMinRatioPct      = "150"
	defaultLiquidationRatio = "1.2"
	defaultFallbackPrice    = "67450.32"
	defaultListenAddr       = ":8080"
	defaultJournalDir       = "journal"
	defaultFetchTimeout     = 10 * time.Second
)

// Get reads the config from the --config yaml file, or from the
// individual flags when no file is given.
func Get() (Config, error) {
	configPath := flag.String("config", "", "path to yaml config")
	platform := flag.String("platform", "coingecko", "price source: coingecko, binance, bybit or hyperliquid")
	asset := flag.String("asset", "BTC", "collateral asset symbol, example: BTC")
	pollInterval := flag.Duration("pollpriceinterval", 60*time.Second, "poll market price interval")
	listenAddr := flag.String("listen", defaultListenAddr, "HTTP listen address")
	commitmentURL := flag.String("commitmentapi", "", "commitment service base URL, empty disables commitments")
	journalDir := flag.String("journaldir", defaultJournalDir, "directory for the position journal")
	flag.Parse()

	if *configPath != "" {
		return getYaml(*configPath)
	}

	cfg := Config{
		Platform:          strings.ToLower(*platform),
		Asset:             strings.ToUpper(*asset),
		PollPriceInterval: *pollInterval,
		FetchTimeout:      defaultFetchTimeout,
		MinRatioPct:       decimal.RequireFromString(defaultMinRatioPct),
		LiquidationRatio:  decimal.RequireFromString(defaultLiquidationRatio),
		FallbackPrice:     decimal.RequireFromString(defaultFallbackPrice),
		ListenAddr:        *listenAddr,
		CommitmentAPIURL:  *commitmentURL,
		JournalDir:        *journalDir,
	}
	return cfg, validate(cfg)
}

func getYaml(path string) (Config, error) {
	f, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}

	var tmp FileConfig
	if err := yaml.Unmarshal(f, &tmp); err != nil {
		return Config{}, err
	}

	cfg := Config{
		Platform:          strings.ToLower(tmp.Platform),
		Asset:             strings.ToUpper(tmp.Asset),
		PollPriceInterval: tmp.PollPriceInterval,
		FetchTimeout:      tmp.FetchTimeout,
		ListenAddr:        tmp.ListenAddr,
		CommitmentAPIURL:  tmp.CommitmentAPIURL,
		JournalDir:        tmp.JournalDir,
		TLSDomains:        tmp.TLSDomains,
		TLSCacheDir:       tmp.TLSCacheDir,
	}

	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = defaultFetchTimeout
	}
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = defaultListenAddr
	}
	if cfg.JournalDir == "" {
		cfg.JournalDir = defaultJournalDir
	}

	cfg.MinRatioPct, err = decimalOrDefault(tmp.MinRatioPct, defaultMinRatioPct)
	if err != nil {
		return Config{}, fmt.Errorf("incorrect 'min_ratio_pct' param in yaml config: %w", err)
	}
	cfg.LiquidationRatio, err = decimalOrDefault(tmp.LiquidationRatio, defaultLiquidationRatio)
	if err != nil {
		return Config{}, fmt.Errorf("incorrect 'liquidation_ratio' param in yaml config: %w", err)
	}
	cfg.FallbackPrice, err = decimalOrDefault(tmp.FallbackPrice, defaultFallbackPrice)
	if err != nil {
		return Config{}, fmt.Errorf("incorrect 'fallback_price' param in yaml config: %w", err)
	}

	return cfg, validate(cfg)
}

func decimalOrDefault(raw, def string) (decimal.Decimal, error) {
	if raw == "" {
		raw = def
	}
	return decimal.NewFromString(raw)
}

func validate(cfg Config) error {
	if _, ok := supportedPlatforms[cfg.Platform]; !ok {
		return fmt.Errorf("unsupported platform %q", cfg.Platform)
	}
	if cfg.Asset == "" {
		return fmt.Errorf("asset is required")
	}
	if cfg.PollPriceInterval <= 0 {
		return fmt.Errorf("poll_price_interval must be positive, got %s", cfg.PollPriceInterval)
	}
	if !cfg.MinRatioPct.GreaterThan(decimal.NewFromInt(100)) {
		return fmt.Errorf("min_ratio_pct must exceed 100, got %s", cfg.MinRatioPct)
	}
	if !cfg.LiquidationRatio.GreaterThan(decimal.NewFromInt(1)) {
		return fmt.Errorf("liquidation_ratio must exceed 1, got %s", cfg.LiquidationRatio)
	}
	if !cfg.FallbackPrice.IsPositive() {
		return fmt.Errorf("fallback_price must be positive, got %s", cfg.FallbackPrice)
	}
	return nil
}
