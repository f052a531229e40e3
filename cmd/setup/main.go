// Command setup creates the first superadmin account.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/boscod/trackwatch/config"
	"github.com/boscod/trackwatch/internal/database"
	"github.com/boscod/trackwatch/internal/logctx"
	"github.com/boscod/trackwatch/internal/services"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "trackwatch-setup: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var envFile, username, password, email, fullName string

	flagSet := pflag.NewFlagSet("trackwatch-setup", pflag.ContinueOnError)
	flagSet.StringVar(&envFile, "env-file", "", "load environment variables from this file instead of ./.env")
	flagSet.StringVar(&username, "username", "", "superadmin username (required)")
	flagSet.StringVar(&password, "password", "", "superadmin password, at least 8 characters (required)")
	flagSet.StringVar(&email, "email", "", "superadmin email")
	flagSet.StringVar(&fullName, "full-name", "", "superadmin display name")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if username == "" || password == "" {
		return errors.New("--username and --password are required")
	}

	cfg, err := config.Load(envFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger, err := logctx.New(cfg.LogLevel, true)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx := logctx.WithLogger(context.Background(), logger)

	db, err := database.Connect(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	defaults, err := config.LoadDefaults(cfg.SettingsSeedFile)
	if err != nil {
		return err
	}
	if err := database.Migrate(ctx, db, defaults); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	in := &services.NewUserInput{Username: username, Password: password}
	if email != "" {
		in.Email = &email
	}
	if fullName != "" {
		in.FullName = &fullName
	}

	user, err := services.NewUserService(db).Setup(ctx, in)
	if err != nil {
		return err
	}
	logger.Info("superadmin ready", zap.Int64("id", user.ID), zap.String("username", user.Username))
	return nil
}
