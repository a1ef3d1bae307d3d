// Package main is the entry point for the rolechat conversation service.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/easeaico/rolechat/internal/config"
)

var version = "dev"

var rootCmd = &cobra.Command{
	Use:   "rolechat",
	Short: "Character roleplay conversation service",
	// 未指定子命令时直接启动服务
	RunE: func(cmd *cobra.Command, args []string) error {
		return serveCmd.RunE(cmd, args)
	},
	SilenceUsage: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("rolechat %s\n", version)
	},
}

func main() {
	// .env 文件是可选的
	_ = godotenv.Load()

	rootCmd.AddCommand(serveCmd, charactersCmd, versionCmd)
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig reads and validates the environment, then installs the
// process logger.
func loadConfig() (config.Config, error) {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid configuration: %w", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))
	slog.SetDefault(logger)
	slog.Info("configuration loaded",
		"bind_addr", cfg.BindAddr,
		"memory_store", cfg.MemoryStore,
		"character_source", cfg.CharacterSource,
		"memory_extractor", cfg.MemoryExtractor,
		"debug", cfg.Debug)
	return cfg, nil
}
