package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/abhisek/psytest/internal/config"
	"github.com/abhisek/psytest/internal/store"
)

var (
	cfg    config.Config
	logger *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:           "psytest",
	Short:         "Psychological assessments: take tests, score them, serve results",
	Long:          "psytest runs screening and personality questionnaires (PHQ-9, GAD-7, Holland, MBTI, Big Five) from the terminal or as an HTTP service.",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return setup(cmd)
	},
}

func Execute() error {
	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
	}
	return err
}

func init() {
	rootCmd.PersistentFlags().String("db", "", "Database path or postgres:// DSN (overrides PSYTEST_DB env var)")
	rootCmd.PersistentFlags().String("config", "", "Path to YAML config file")
	rootCmd.PersistentFlags().String("env-file", ".env", "Path to .env file loaded before reading the environment")
	rootCmd.PersistentFlags().String("log-level", "", "Log level (debug, info, warn, error)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(takeCmd)
	rootCmd.AddCommand(resultCmd)
	rootCmd.AddCommand(catalogCmd)
	rootCmd.AddCommand(sweepCmd)
	rootCmd.AddCommand(versionCmd)
}

// setup loads .env, config and the logger for every command.
func setup(cmd *cobra.Command) error {
	envFile, _ := cmd.Flags().GetString("env-file")
	if err := config.LoadDotEnv(envFile); err != nil {
		return err
	}
	path, _ := cmd.Flags().GetString("config")
	c, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if lvl, _ := cmd.Flags().GetString("log-level"); lvl != "" {
		c.Log.Level = lvl
	}
	l, err := c.Log.Logger(os.Stderr)
	if err != nil {
		return err
	}
	cfg, logger = c, l
	slog.SetDefault(l)
	return nil
}

// resolveDBPath returns the database DSN using --db flag (highest
// priority), then config/PSYTEST_DB, then the default XDG path.
func resolveDBPath(cmd *cobra.Command) (string, error) {
	if p, _ := cmd.Flags().GetString("db"); p != "" {
		return p, ensureLocal(p)
	}
	if cfg.Database.DSN != "" {
		return cfg.Database.DSN, ensureLocal(cfg.Database.DSN)
	}
	return store.DefaultDBPath()
}

func ensureLocal(dsn string) error {
	if store.IsRemoteDSN(dsn) || strings.HasPrefix(dsn, "file:") {
		return nil
	}
	return store.EnsureDir(dsn)
}
