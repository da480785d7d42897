package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hurttlocker/contest/internal/canon"
	"github.com/hurttlocker/contest/internal/config"
	"github.com/hurttlocker/contest/internal/extract"
	"github.com/hurttlocker/contest/internal/logging"
	"github.com/hurttlocker/contest/internal/override"
	"github.com/hurttlocker/contest/internal/store"
)

const version = "0.1.0-dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// cli holds flag values and what PersistentPreRunE resolves from them.
type cli struct {
	configPath    string
	envFile       string
	dbPath        string
	aliasesPath   string
	overridesPath string
	workers       string
	logLevel      string
	verbose       bool
	logJSON       bool

	cfg    config.ResolvedConfig
	logger *zap.Logger
}

func newRootCmd() *cobra.Command {
	c := &cli{}

	root := &cobra.Command{
		Use:   "contest",
		Short: "contest - playoff prediction contest tabulator",
		Long: `contest reads free-text prediction entries from saved comment pages or data
files, extracts every answer into a fixed 46-slot table, applies per-entry
overrides, maps spellings onto canonical names and reports per-question
tallies. Every run is stored in SQLite and can be browsed over MCP.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: c.setup,
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if c.logger != nil {
				_ = c.logger.Sync()
			}
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&c.configPath, "config", "", "config file (default ~/.contest/config.yaml)")
	pf.StringVar(&c.envFile, "env-file", "", "dotenv file (default .env)")
	pf.StringVar(&c.dbPath, "db", "", "SQLite database path")
	pf.StringVar(&c.aliasesPath, "aliases", "", "alias data YAML (default: built-in)")
	pf.StringVar(&c.overridesPath, "overrides", "", "override list YAML")
	pf.StringVar(&c.workers, "workers", "", "parallel workers (0 = one per CPU)")
	pf.StringVar(&c.logLevel, "log-level", "", "log level: debug, info, warn, error")
	pf.BoolVarP(&c.verbose, "verbose", "v", false, "debug logging")
	pf.BoolVar(&c.logJSON, "log-json", false, "log as JSON")

	root.AddCommand(
		c.newRunCmd(),
		c.newExtractCmd(),
		c.newReportCmd(),
		c.newRunsCmd(),
		c.newCheckConfigCmd(),
		c.newMCPCmd(),
		&cobra.Command{
			Use:   "version",
			Short: "Print version",
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Fprintf(cmd.OutOrStdout(), "contest %s\n", version)
			},
		},
	)
	return root
}

// setup resolves configuration and builds the logger.
func (c *cli) setup(cmd *cobra.Command, args []string) error {
	cfg, err := config.ResolveConfig(config.ResolveOptions{
		ConfigPath:   c.configPath,
		EnvFile:      c.envFile,
		CLIDBPath:    c.dbPath,
		CLIAliases:   c.aliasesPath,
		CLIOverrides: c.overridesPath,
		CLIWorkers:   c.workers,
		CLILogLevel:  c.logLevel,
	})
	if err != nil {
		return err
	}
	c.cfg = cfg

	level := cfg.LogLevel.Value
	if c.verbose {
		level = "debug"
	}
	logger, err := logging.New(level, c.logJSON)
	if err != nil {
		return err
	}
	c.logger = logger
	c.logger.Debug("configuration resolved",
		zap.String("config", cfg.ConfigPath),
		zap.String("db", cfg.DBPath.Value),
		zap.String("db_source", string(cfg.DBPath.Source)),
		zap.String("aliases", cfg.AliasesPath.Value),
		zap.String("overrides", cfg.OverridesPath.Value),
		zap.String("workers", cfg.Workers.Value),
	)
	return nil
}

// stages is the configuration every pipeline stage is built from.
type stages struct {
	aliases   *config.AliasData
	extractor *extract.Extractor
	canon     *canon.Canonicalizer
	overrides []override.Override
}

func (c *cli) loadStages() (*stages, error) {
	aliases, err := config.LoadAliases(c.cfg.AliasesPath.Value)
	if err != nil {
		return nil, err
	}
	cz, err := canon.New(aliases.Canon, canon.WithLogger(c.logger))
	if err != nil {
		return nil, fmt.Errorf("building canonicalizer from %s: %w", aliases.Source, err)
	}
	overrides, err := config.LoadOverrides(c.cfg.OverridesPath.Value)
	if err != nil {
		return nil, err
	}
	return &stages{
		aliases:   aliases,
		extractor: extract.New(aliases.Extract),
		canon:     cz,
		overrides: overrides,
	}, nil
}

func (c *cli) openStore() (store.Store, error) {
	s, err := store.NewStore(store.StoreConfig{DBPath: c.cfg.DBPath.Value})
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}
	return s, nil
}
