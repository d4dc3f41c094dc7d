package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"identity-reconciliation/internal/config"
	"identity-reconciliation/internal/database"
	"identity-reconciliation/internal/logger"
)

// globals holds the persistent flags shared by every subcommand.
type globals struct {
	envFile string
	dbURL   string
}

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	g := &globals{}

	rootCmd := &cobra.Command{
		Use:   "identity",
		Short: "Identity reconciliation service",
		Long: `Links customer contacts that share an email address or phone number
into a single identity, and serves the consolidated view over HTTP.`,
		SilenceUsage: true,
	}
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.PersistentFlags().StringVar(&g.envFile, "env-file", ".env", "optional dotenv file loaded before reading the environment")
	rootCmd.PersistentFlags().StringVar(&g.dbURL, "db", "", "database URL or SQLite path (overrides DATABASE_URL)")

	rootCmd.AddCommand(serveCmd(g))
	rootCmd.AddCommand(migrateCmd(g))
	rootCmd.AddCommand(identifyCmd(g))
	rootCmd.AddCommand(showCmd(g))

	return rootCmd
}

// Execute runs the root command. It is called once from main.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func (g *globals) config() (config.Config, error) {
	cfg, err := config.Load(g.envFile)
	if err != nil {
		return config.Config{}, fmt.Errorf("failed to load configuration: %w", err)
	}
	if g.dbURL != "" {
		cfg.DatabaseURL = g.dbURL
	}
	return cfg, nil
}

// openDB connects and migrates.
func openDB(cfg config.Config, log *slog.Logger) (*database.DB, error) {
	return database.New(cfg.DatabaseURL,
		database.WithLogger(log),
		database.WithTxMaxAttempts(cfg.TxMaxAttempts),
	)
}

// commandLogger writes to w so one-shot commands keep stdout for their output.
func commandLogger(w io.Writer, cfg config.Config) *slog.Logger {
	return logger.NewWithWriter(w, cfg.LogLevel, cfg.LogFormat)
}
