// Package main implements the stated CLI for inspecting and repairing the
// project-state store directly on a data directory.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/stated/internal/config"
	"github.com/fyrsmithlabs/stated/internal/logging"
	"github.com/fyrsmithlabs/stated/internal/store"
)

var (
	// persistent flags
	cfgFile   string
	dataDir   string
	projectID string
	pathName  string

	// version information (set via ldflags during build)
	version = "dev"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "stated",
	Short: "CLI for the stated project-state store",
	Long: `stated operates directly on a project-state data directory.
It provides commands for reading, writing, validating, and repairing
stored documents.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: false,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ~/.config/stated/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "data directory (overrides config)")
	rootCmd.PersistentFlags().StringVar(&projectID, "project", "", "project identifier (global scope when empty)")
	rootCmd.PersistentFlags().StringVar(&pathName, "path", "", "sub-path name within the project")

	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(setCmd)
	rootCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(sweepCmd)
}

// openStore builds the store from config, flags overriding the file.
func openStore() (store.Service, *zap.Logger, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	if dataDir != "" {
		cfg.Store.DataDir = dataDir
	}

	logger, err := logging.New(&cfg.Logging)
	if err != nil {
		return nil, nil, fmt.Errorf("build logger: %w", err)
	}

	svc, err := store.NewService(&store.Config{
		DataDir:    cfg.Store.DataDir,
		Cache:      &cfg.Store.Cache,
		TempMaxAge: cfg.Store.TempMaxAge,
	}, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("open store: %w", err)
	}
	return svc, logger, nil
}
