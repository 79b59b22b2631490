// Package main provides the entry point for the staffing core API server and
// its operator commands.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/jonathan/staffing-pipeline/internal/config"
	"github.com/jonathan/staffing-pipeline/internal/db"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "staffing_core",
	Short: "Candidate pipeline and work-time accounting server",
	Long: "staffing_core moves candidates through company hiring pipelines, collects their " +
		"onboarding documents and accounts for the hours they work once hired.",
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Optional JSON config file; environment variables take precedence")
}

// openStore connects to the database named by the configuration. Tests
// replace it with an in-memory store.
var openStore = func(ctx context.Context) (db.Store, func(), error) {
	cfg, err := config.LoadServerConfigWithFile(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	database, err := connect(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	return database, database.Close, nil
}

func connect(ctx context.Context, cfg *config.ServerConfig) (*db.DB, error) {
	lockTimeout, err := cfg.LockTimeoutDuration()
	if err != nil {
		return nil, err
	}
	database, err := db.Connect(ctx, cfg.DatabaseURL, db.WithLockTimeout(lockTimeout))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return database, nil
}

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
