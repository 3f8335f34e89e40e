package main

import (
	"errors"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"

	"github.com/rewired-gh/lpwatch/internal/config"
	"github.com/rewired-gh/lpwatch/internal/logger"
)

var (
	ConfigFlag = &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "Path to configuration file",
		Value:   "configs/config.yaml",
		EnvVars: []string{"LPWATCH_CONFIG"},
	}
	EnvFileFlag = &cli.StringFlag{
		Name:    "env-file",
		Usage:   "Dotenv file loaded before configuration",
		Value:   ".env",
		EnvVars: []string{"LPWATCH_ENV_FILE"},
	}
	WatchlistFlag = &cli.StringFlag{
		Name:    "watchlist",
		Usage:   "Path to the LP wallet watchlist, overrides filter.watchlist_path",
		EnvVars: []string{"LPWATCH_WATCHLIST"},
	}
)

var flags = []cli.Flag{ConfigFlag, EnvFileFlag, WatchlistFlag}

func NewCli(version string) *cli.App {
	return &cli.App{
		Name:    "lpwatch",
		Usage:   "Watch Meteora DLMM liquidity pools and report notable swaps to Telegram",
		Version: version,
		Flags:   flags,
		Action:  runWatcher,
		Commands: []*cli.Command{
			{
				Name:   "run",
				Usage:  "Run the watcher (default)",
				Flags:  flags,
				Action: runWatcher,
			},
			{
				Name:   "check-config",
				Usage:  "Load and validate configuration, then exit",
				Flags:  flags,
				Action: checkConfig,
			},
			{
				Name:  "version",
				Usage: "Show version",
				Action: func(ctx *cli.Context) error {
					cli.ShowVersion(ctx)
					return nil
				},
			},
		},
	}
}

// loadConfig reads the dotenv file, then the config file, then validates.
// Missing files are tolerated so deployments can rely on the environment alone.
func loadConfig(ctx *cli.Context) (*config.Config, error) {
	if envFile := ctx.String(EnvFileFlag.Name); envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	path := ctx.String(ConfigFlag.Name)
	if path != "" {
		if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
			logger.Warn("Config file %s not found, using defaults and environment", path)
			path = ""
		}
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if wl := ctx.String(WatchlistFlag.Name); wl != "" {
		cfg.Filter.WatchlistPath = wl
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func checkConfig(ctx *cli.Context) error {
	cfg, err := loadConfig(ctx)
	if err != nil {
		return cli.Exit("Invalid configuration: "+err.Error(), 1)
	}
	logger.Info("Configuration is valid (program %s, filtering %v)", cfg.Crawler.ProgramID, cfg.Filter.ClientAccountFiltering)
	return nil
}
