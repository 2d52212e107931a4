package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/life-stream-dev/life-stream-go-jtp/internal/config"
	"github.com/spf13/cobra"
)

var configFile string

var rootCmd = &cobra.Command{
	Use:   "jtp-server",
	Short: "JSON transport protocol server",
	Long: `jtp-server accepts TLS connections speaking line delimited JSON,
authenticates clients with a pre-shared key and dispatches their requests
to registered commands.

Without a subcommand the server is started.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd, args)
	},
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.ReadConfig(configFile)
	if errors.Is(err, config.ErrConfigCreated) {
		return nil, fmt.Errorf("%w, please edit %s and restart", err, configPath())
	}
	return cfg, err
}

func configPath() string {
	if configFile == "" {
		return config.DefaultPath
	}
	return configFile
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", config.DefaultPath, "Configuration file (YAML)")
}
