package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/life-stream-dev/life-stream-go-jtp/internal/client"
	"github.com/life-stream-dev/life-stream-go-jtp/internal/config"
	"github.com/life-stream-dev/life-stream-go-jtp/internal/logger"
	"github.com/life-stream-dev/life-stream-go-jtp/internal/message"
	"github.com/spf13/cobra"
)

var (
	configFile string
	timeout    time.Duration
)

var rootCmd = &cobra.Command{
	Use:          "jtp-client",
	Short:        "Send commands to a JTP server",
	SilenceUsage: true,
}

var callCmd = &cobra.Command{
	Use:   "call <command> [key=value...]",
	Short: "Invoke a command and print its result as JSON",
	Long: `Invoke a command on the server. Arguments after the command are sent as
params. Values that parse as JSON (numbers, booleans, objects) are sent
typed, anything else as a string.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		params, err := parseParams(args[1:])
		if err != nil {
			return err
		}
		return call(cmd, args[0], params)
	},
}

var helpCmd = &cobra.Command{
	Use:   "help",
	Short: "List the commands the server offers",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return call(cmd, "help", nil)
	},
}

// parseParams turns key=value arguments into request params.
func parseParams(args []string) (message.Params, error) {
	if len(args) == 0 {
		return nil, nil
	}
	params := make(message.Params, len(args))
	for _, arg := range args {
		key, value, ok := strings.Cut(arg, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("%w: expected key=value, got %q", message.ErrInvalidArgument, arg)
		}
		var decoded any
		if err := json.Unmarshal([]byte(value), &decoded); err == nil {
			params[key] = decoded
		} else {
			params[key] = value
		}
	}
	return params, nil
}

func call(cmd *cobra.Command, command string, params message.Params) error {
	cfg, err := config.ReadConfig(configFile)
	if errors.Is(err, config.ErrConfigCreated) {
		return fmt.Errorf("%w, please edit %s and retry", err, configFile)
	}
	if err != nil {
		return err
	}
	cleanup := logger.Init(cfg)
	defer func() { _ = cleanup.Invoke(context.Background()) }()

	opts := client.OptionsFromConfig(cfg.Client)
	if timeout > 0 {
		opts.RequestTimeout = timeout
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	c, err := client.Dial(ctx, opts)
	if err != nil {
		return err
	}
	defer func() { _ = c.Close() }()

	result, err := c.Call(ctx, command, params)
	if err != nil {
		return err
	}
	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", config.DefaultPath, "Configuration file (YAML)")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 0, "Request timeout, overrides client.request_timeout")
	rootCmd.AddCommand(callCmd)
	// the server side help replaces cobra's; -h still prints usage
	rootCmd.SetHelpCommand(helpCmd)
}
