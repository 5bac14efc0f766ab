// Polymarket Historical Data Harvester CLI
// This application provides a command-line interface for discovering closed
// prediction markets, building forward-filled daily price series, aggregating
// per-day traded volumes, and classifying market questions.
//
// Usage:
//
//	polyharvest harvest --months 6
//	polyharvest volumes --daily out/daily.csv
//	polyharvest classify --daily out/daily.csv
//
// For detailed help on any command, use: polyharvest <command> --help
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/polyharvest/polyharvest/internal/cache"
	"github.com/polyharvest/polyharvest/internal/classify"
	"github.com/polyharvest/polyharvest/internal/config"
	"github.com/polyharvest/polyharvest/internal/export"
	"github.com/polyharvest/polyharvest/internal/logging"
	"github.com/polyharvest/polyharvest/internal/pipeline"
	"github.com/polyharvest/polyharvest/internal/polymarket"
	"github.com/polyharvest/polyharvest/internal/storage"
	"github.com/polyharvest/polyharvest/internal/transport"
)

// CLI version information
const (
	Version    = "1.0.0"
	AppName    = "polyharvest"
	ConfigFile = "polyharvest.json"
)

// Pacing between classification requests, matching the upstream free-tier
// rate expectations.
const (
	classifyDelay        = 350 * time.Millisecond
	classifyFailureDelay = 2 * time.Second
)

// Exit codes following standard conventions
const (
	ExitSuccess     = 0
	ExitUsageError  = 1
	ExitConfigError = 2
	ExitDataError   = 4
)

// CLI represents the main CLI application
type CLI struct {
	config   *config.AppConfig
	logger   *slog.Logger
	logClose io.Closer
	cache    *cache.Cache
	gamma    *polymarket.GammaClient
	data     *polymarket.DataClient
	clob     *polymarket.ClobClient
	store    storage.Store
}

// main is the entry point for the CLI application
func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(ExitUsageError)
	}

	// Setup signal handling for graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cli := &CLI{}

	command := os.Args[1]
	args := os.Args[2:]

	switch command {
	case "--version", "-v":
		fmt.Printf("%s version %s\n", AppName, Version)
		return
	case "--help", "-h", "help":
		if len(args) > 0 {
			printCommandHelp(args[0])
		} else {
			printUsage()
		}
		return
	}

	if err := cli.initialize(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: Failed to initialize CLI: %v\n", err)
		os.Exit(ExitConfigError)
	}
	defer cli.shutdown()

	switch command {
	case "harvest":
		if err := cli.handleHarvest(ctx, args); err != nil {
			cli.logger.Error("Harvest failed", "error", err)
			cli.shutdown()
			os.Exit(ExitDataError)
		}
	case "volumes":
		if err := cli.handleVolumes(ctx, args); err != nil {
			cli.logger.Error("Volume aggregation failed", "error", err)
			cli.shutdown()
			os.Exit(ExitDataError)
		}
	case "classify":
		if err := cli.handleClassify(ctx, args); err != nil {
			cli.logger.Error("Classification failed", "error", err)
			cli.shutdown()
			os.Exit(ExitDataError)
		}
	default:
		fmt.Fprintf(os.Stderr, "Error: Unknown command '%s'\n\n", command)
		printUsage()
		os.Exit(ExitUsageError)
	}
}

// initialize sets up the CLI application components
func (cli *CLI) initialize(ctx context.Context) error {
	// A .env file is optional; deployed environments set variables directly.
	_ = godotenv.Load()

	cfg, err := config.Load(configFilePath(), slog.Default())
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	cli.config = cfg

	logger, logClose, err := logging.New(cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to setup logging: %w", err)
	}
	cli.logger = logger
	cli.logClose = logClose

	timeout, err := time.ParseDuration(cfg.Polymarket.Timeout)
	if err != nil {
		return fmt.Errorf("invalid HTTP timeout %q: %w", cfg.Polymarket.Timeout, err)
	}

	// Each upstream service gets its own pacer so one slow API does not
	// starve the others.
	newClient := func(component string) *transport.Client {
		return transport.New(transport.Options{
			Timeout:     timeout,
			MaxAttempts: cfg.Polymarket.MaxAttempts,
			Limiter:     transport.NewPacer(cfg.Polymarket.RPS),
			Logger:      logging.ForComponent(logger, component),
		})
	}
	cli.gamma = polymarket.NewGammaClient(cfg.Polymarket.GammaBase, newClient("gamma"), logger)
	cli.data = polymarket.NewDataClient(cfg.Polymarket.DataBase, newClient("data"), logger)
	cli.clob = polymarket.NewClobClient(cfg.Polymarket.ClobBase, newClient("clob"), logger)

	store, err := cache.New(cfg.Cache.Dir)
	if err != nil {
		return fmt.Errorf("failed to initialize cache: %w", err)
	}
	cli.cache = store

	if cfg.Storage.Enabled {
		db, err := storage.NewDuckDBStore(cfg.Storage.DatabaseURL, logger)
		if err != nil {
			return fmt.Errorf("failed to initialize storage: %w", err)
		}
		if err := db.Initialize(ctx); err != nil {
			db.Close()
			return fmt.Errorf("failed to initialize storage schema: %w", err)
		}
		cli.store = db
	}

	if err := os.MkdirAll(cfg.Output.Dir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	return nil
}

// shutdown releases resources; safe to call more than once.
func (cli *CLI) shutdown() {
	if cli.store != nil {
		cli.store.Close()
		cli.store = nil
	}
	if cli.logClose != nil {
		cli.logClose.Close()
		cli.logClose = nil
	}
}

// handleHarvest handles the 'harvest' command: discover closed markets and
// build the daily series output.
func (cli *CLI) handleHarvest(ctx context.Context, args []string) error {
	flags, err := parseHarvestFlags(args)
	if err != nil {
		return err
	}

	if flags.Help {
		printCommandHelp("harvest")
		return nil
	}

	months := cli.config.Harvest.Months
	if flags.Months > 0 {
		months = flags.Months
	}
	maxMarkets := cli.config.Harvest.MaxMarkets
	if flags.MaxMarkets > 0 {
		maxMarkets = flags.MaxMarkets
	}
	outDir := cli.config.Output.Dir
	if flags.Out != "" {
		outDir = flags.Out
	}

	cutoff := time.Now().UTC().AddDate(0, -months, 0)
	query := polymarket.DiscoveryQuery{
		EndDateMin: cutoff.Format("2006-01-02"),
		PageSize:   cli.config.Harvest.PageSize,
		MaxMarkets: maxMarkets,
	}

	cli.logger.Info("Starting harvest",
		"months", months,
		"end_date_min", query.EndDateMin,
		"max_markets", maxMarkets)

	pipe := pipeline.NewDaily(cli.gamma, cli.clob, cli.store, cli.logger)
	result, summary, err := pipe.Run(ctx, query, cutoff.Unix())
	if err != nil {
		return fmt.Errorf("harvest failed: %w", err)
	}

	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	if err := export.WriteDailyRows(filepath.Join(outDir, export.DailyFile), result.Rows); err != nil {
		return err
	}
	if err := export.WriteMarketTexts(filepath.Join(outDir, export.MarketTextsFile), result.Texts); err != nil {
		return err
	}
	if err := export.WriteMarketsJSONL(filepath.Join(outDir, export.MarketsFile), result.Markets); err != nil {
		return err
	}

	fmt.Printf("Harvested %d of %d discovered markets (%d rows, %d price failures) into %s\n",
		summary.Selected, summary.Discovered, len(result.Rows), summary.PriceFailed, outDir)
	return nil
}

// handleVolumes handles the 'volumes' command: aggregate per-day traded
// volume for every (market, date) named by an existing daily series file.
func (cli *CLI) handleVolumes(ctx context.Context, args []string) error {
	flags, err := parseVolumesFlags(args)
	if err != nil {
		return err
	}

	if flags.Help {
		printCommandHelp("volumes")
		return nil
	}

	outDir := cli.config.Output.Dir
	if flags.Out != "" {
		outDir = flags.Out
	}
	dailyPath := flags.Daily
	if dailyPath == "" {
		dailyPath = filepath.Join(cli.config.Output.Dir, export.DailyFile)
	}

	needed, err := export.ReadNeededDates(dailyPath)
	if err != nil {
		return fmt.Errorf("failed to read daily series %s: %w", dailyPath, err)
	}
	if len(needed) == 0 {
		return fmt.Errorf("no markets found in %s; run '%s harvest' first", dailyPath, AppName)
	}

	cli.logger.Info("Starting volume aggregation", "markets", len(needed), "daily", dailyPath)

	pipe := pipeline.NewVolumes(cli.gamma, cli.data, cli.cache, cli.store, cli.logger)
	rows, summary, err := pipe.Run(ctx, needed)
	if err != nil {
		return fmt.Errorf("volume aggregation failed: %w", err)
	}

	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	outPath := filepath.Join(outDir, export.VolumesFile)
	if err := export.WriteVolumeRows(outPath, rows); err != nil {
		return err
	}

	fmt.Printf("Aggregated %d/%d markets (%d truncated, %d metadata failures, %d trade failures) into %s\n",
		summary.OK, summary.Markets, summary.Truncated, summary.GammaFailed, summary.TradesFailed, outPath)
	return nil
}

// handleClassify handles the 'classify' command: label each harvested
// market question with a type, domain, and resolution date via the LLM API.
func (cli *CLI) handleClassify(ctx context.Context, args []string) error {
	flags, err := parseClassifyFlags(args)
	if err != nil {
		return err
	}

	if flags.Help {
		printCommandHelp("classify")
		return nil
	}

	if cli.config.Classify.APIKey == "" {
		return fmt.Errorf("GROQ_API_KEY is required for classification")
	}

	outDir := cli.config.Output.Dir
	if flags.Out != "" {
		outDir = flags.Out
	}
	dailyPath := flags.Daily
	if dailyPath == "" {
		dailyPath = filepath.Join(cli.config.Output.Dir, export.DailyFile)
	}
	textsPath := flags.Texts
	if textsPath == "" {
		textsPath = filepath.Join(cli.config.Output.Dir, export.MarketTextsFile)
	}

	slugs, err := export.ReadDailySlugs(dailyPath)
	if err != nil {
		return fmt.Errorf("failed to read daily series %s: %w", dailyPath, err)
	}
	texts, err := export.ReadMarketTexts(textsPath)
	if err != nil {
		return fmt.Errorf("failed to read market texts %s: %w", textsPath, err)
	}
	if len(slugs) == 0 {
		return fmt.Errorf("no markets found in %s; run '%s harvest' first", dailyPath, AppName)
	}

	retryDelay, err := time.ParseDuration(cli.config.Classify.RetryDelay)
	if err != nil {
		return fmt.Errorf("invalid classify retry delay %q: %w", cli.config.Classify.RetryDelay, err)
	}

	client := classify.NewClient(
		transport.New(transport.Options{
			MaxAttempts: cli.config.Polymarket.MaxAttempts,
			Logger:      logging.ForComponent(cli.logger, "classify"),
		}),
		classify.Options{
			APIBase:     cli.config.Classify.APIBase,
			APIKey:      cli.config.Classify.APIKey,
			Model:       cli.config.Classify.Model,
			MaxAttempts: cli.config.Classify.MaxAttempts,
			RetryDelay:  retryDelay,
			Logger:      cli.logger,
		})

	cli.logger.Info("Starting classification", "markets", len(slugs), "model", cli.config.Classify.Model)

	pipe := pipeline.NewClassify(client, classifyDelay, classifyFailureDelay, cli.logger)
	rows, summary, err := pipe.Run(ctx, slugs, texts)
	if err != nil {
		return fmt.Errorf("classification failed: %w", err)
	}

	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	outPath := filepath.Join(outDir, export.ClassificationsFile)
	if err := export.WriteClassifications(outPath, rows); err != nil {
		return err
	}

	fmt.Printf("Classified %d/%d markets (%d invalid, %d failed) into %s\n",
		summary.OK, summary.Markets, summary.Invalid, summary.Failed, outPath)
	return nil
}

// Flag structures for parsing command line arguments

// HarvestFlags represents flags for the harvest command
type HarvestFlags struct {
	Months     int
	MaxMarkets int
	Out        string
	Help       bool
}

// VolumesFlags represents flags for the volumes command
type VolumesFlags struct {
	Daily string
	Out   string
	Help  bool
}

// ClassifyFlags represents flags for the classify command
type ClassifyFlags struct {
	Daily string
	Texts string
	Out   string
	Help  bool
}

// parseHarvestFlags parses command line arguments for the harvest command
func parseHarvestFlags(args []string) (*HarvestFlags, error) {
	flags := &HarvestFlags{}

	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--months", "-m":
			if i+1 >= len(args) {
				return nil, fmt.Errorf("--months requires a value")
			}
			months, err := strconv.Atoi(args[i+1])
			if err != nil {
				return nil, fmt.Errorf("invalid months value: %w", err)
			}
			flags.Months = months
			i++
		case "--max-markets":
			if i+1 >= len(args) {
				return nil, fmt.Errorf("--max-markets requires a value")
			}
			max, err := strconv.Atoi(args[i+1])
			if err != nil {
				return nil, fmt.Errorf("invalid max-markets value: %w", err)
			}
			flags.MaxMarkets = max
			i++
		case "--out", "-o":
			if i+1 >= len(args) {
				return nil, fmt.Errorf("--out requires a value")
			}
			flags.Out = args[i+1]
			i++
		case "--help", "-h":
			flags.Help = true
		default:
			return nil, fmt.Errorf("unknown flag: %s", args[i])
		}
	}

	return flags, nil
}

// parseVolumesFlags parses command line arguments for the volumes command
func parseVolumesFlags(args []string) (*VolumesFlags, error) {
	flags := &VolumesFlags{}

	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--daily", "-d":
			if i+1 >= len(args) {
				return nil, fmt.Errorf("--daily requires a value")
			}
			flags.Daily = args[i+1]
			i++
		case "--out", "-o":
			if i+1 >= len(args) {
				return nil, fmt.Errorf("--out requires a value")
			}
			flags.Out = args[i+1]
			i++
		case "--help", "-h":
			flags.Help = true
		default:
			return nil, fmt.Errorf("unknown flag: %s", args[i])
		}
	}

	return flags, nil
}

// parseClassifyFlags parses command line arguments for the classify command
func parseClassifyFlags(args []string) (*ClassifyFlags, error) {
	flags := &ClassifyFlags{}

	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--daily", "-d":
			if i+1 >= len(args) {
				return nil, fmt.Errorf("--daily requires a value")
			}
			flags.Daily = args[i+1]
			i++
		case "--texts", "-t":
			if i+1 >= len(args) {
				return nil, fmt.Errorf("--texts requires a value")
			}
			flags.Texts = args[i+1]
			i++
		case "--out", "-o":
			if i+1 >= len(args) {
				return nil, fmt.Errorf("--out requires a value")
			}
			flags.Out = args[i+1]
			i++
		case "--help", "-h":
			flags.Help = true
		default:
			return nil, fmt.Errorf("unknown flag: %s", args[i])
		}
	}

	return flags, nil
}

// configFilePath resolves the configuration file to load, if any.
func configFilePath() string {
	if path := os.Getenv("POLYHARVEST_CONFIG"); path != "" {
		return path
	}
	path := filepath.Join(".", ConfigFile)
	if _, err := os.Stat(path); err == nil {
		return path
	}
	return ""
}

// Help and usage functions

// printUsage prints the main usage information
func printUsage() {
	fmt.Printf(`%s - Polymarket Historical Data Harvester v%s

USAGE:
    %s <command> [options]

COMMANDS:
    harvest     Discover closed markets and build daily price series
    volumes     Aggregate per-day traded volume for harvested markets
    classify    Label harvested market questions via the Groq API

GLOBAL OPTIONS:
    --help, -h     Show help information
    --version, -v  Show version information

EXAMPLES:
    # Build daily series for markets that closed in the last 6 months
    %s harvest --months 6

    # Aggregate traded volume for every (market, date) in the series
    %s volumes --daily out/daily.csv

    # Classify every market question in the series
    %s classify --daily out/daily.csv

CONFIGURATION:
    Configuration can be provided via:
    - Config file: %s (JSON format), or POLYHARVEST_CONFIG
    - Environment variables (e.g., GROQ_API_KEY, OUTPUT_DIR, STORAGE_ENABLED)
    - A .env file in the working directory

For detailed help on any command, use: %s <command> --help
`, AppName, Version, AppName, AppName, AppName, AppName, ConfigFile, AppName)
}

// printCommandHelp prints detailed help for a specific command
func printCommandHelp(command string) {
	switch command {
	case "harvest":
		fmt.Printf(`%s harvest - Discover closed markets and build daily price series

USAGE:
    %s harvest [options]

OPTIONS:
    --months, -m <months>   How far back discovery reaches (default: 6)
    --max-markets <n>       Cap on markets per run (default: unbounded)
    --out, -o <dir>         Output directory (default: out)
    --help, -h              Show this help message

OUTPUT:
    daily.csv          One row per (market, date) with Yes/No prices
    market_texts.csv   Question title and description per market
    markets.jsonl      Raw metadata of every selected market

NOTES:
    - Only binary Yes/No markets with two price tokens are selected
    - Prices are forward-filled across days without trades
    - Markets whose price history cannot be fetched are skipped
`, AppName, AppName)

	case "volumes":
		fmt.Printf(`%s volumes - Aggregate per-day traded volume

USAGE:
    %s volumes [options]

OPTIONS:
    --daily, -d <file>  Daily series file to read (default: out/daily.csv)
    --out, -o <dir>     Output directory (default: out)
    --help, -h          Show this help message

OUTPUT:
    daily_volumes.csv  One row per (market, date) with volume and trade count

NOTES:
    - Trade pages are journaled on disk, so interrupted runs resume
      without refetching
    - The upstream caps how deep trade history can be paged; rows before
      the earliest reachable trade are zeroed and flagged as truncated
`, AppName, AppName)

	case "classify":
		fmt.Printf(`%s classify - Label market questions via the Groq API

USAGE:
    %s classify [options]

OPTIONS:
    --daily, -d <file>  Daily series file naming the markets (default: out/daily.csv)
    --texts, -t <file>  Market texts file (default: out/market_texts.csv)
    --out, -o <dir>     Output directory (default: out)
    --help, -h          Show this help message

OUTPUT:
    market_metadata.csv  Type, domain, and resolution date per market

NOTES:
    - Requires GROQ_API_KEY in the environment or a .env file
    - Responses that never validate are recorded as invalid_response;
      transport failures as request_failed
`, AppName, AppName)

	default:
		fmt.Fprintf(os.Stderr, "No help available for command: %s\n", command)
		printUsage()
	}
}
