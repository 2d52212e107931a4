package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/life-stream-dev/life-stream-go-jtp/internal/auth"
	"github.com/life-stream-dev/life-stream-go-jtp/internal/database"
	"github.com/life-stream-dev/life-stream-go-jtp/internal/event"
	"github.com/life-stream-dev/life-stream-go-jtp/internal/logger"
	"github.com/life-stream-dev/life-stream-go-jtp/internal/utils"
	"github.com/spf13/cobra"
)

var credentialName string

var credentialCmd = &cobra.Command{
	Use:   "credential",
	Short: "Manage pre-shared keys stored in the database",
}

var credentialAddCmd = &cobra.Command{
	Use:   "add <key> <permission>",
	Short: "Add or replace a key with permission read or full",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		permission, err := auth.ParsePermission(args[1])
		if err != nil {
			return err
		}
		return withCredentialStore(cmd.Context(), func(ctx context.Context, store *database.DBStore) error {
			name := credentialName
			if name == "" {
				name = "cli"
			}
			if err := store.SaveCredential(ctx, name, args[0], permission); err != nil {
				return err
			}
			cmd.Printf("credential %s saved with permission %s\n", name, permission)
			return nil
		})
	},
}

var credentialRemoveCmd = &cobra.Command{
	Use:   "remove <key>",
	Short: "Remove a key",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withCredentialStore(cmd.Context(), func(ctx context.Context, store *database.DBStore) error {
			deleted, err := store.DeleteCredential(ctx, args[0])
			if err != nil {
				return err
			}
			if !deleted {
				return errors.New("no such credential")
			}
			cmd.Println("credential removed")
			return nil
		})
	},
}

func withCredentialStore(ctx context.Context, fn func(context.Context, *database.DBStore) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if !cfg.Database.Enabled {
		return fmt.Errorf("database is disabled in %s", configPath())
	}
	if ctx == nil {
		ctx = context.Background()
	}

	cleaner := event.NewCleaner(logger.Init(cfg))
	defer cleaner.Clean()

	db, err := database.Connect(ctx, cfg)
	if err != nil {
		return err
	}
	cleaner.Add(db)

	return fn(ctx, database.NewDBStore(db, cfg.Database.CacheSize, utils.MustParseStringTime(cfg.Database.CacheTTL)))
}

func init() {
	credentialAddCmd.Flags().StringVar(&credentialName, "name", "", "Label stored alongside the key")
	credentialCmd.AddCommand(credentialAddCmd, credentialRemoveCmd)
	rootCmd.AddCommand(credentialCmd)
}
