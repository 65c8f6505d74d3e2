package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:          "portal",
		Short:        "Account portal API server",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context())
		},
	}
	root.AddCommand(newServeCommand(), newMigrateCommand(), newPromoteCommand())
	return root
}

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server (default)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context())
		},
	}
}

func newMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create database tables and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			db, _, err := openStore(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer db.Close()
			logger.WithField("driver", cfg.Database.Driver).Info("database schema is up to date")
			return nil
		},
	}
}

func newPromoteCommand() *cobra.Command {
	var email, role string
	cmd := &cobra.Command{
		Use:   "promote",
		Short: "Change the role of an existing user",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			db, store, err := openStore(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer db.Close()

			user, err := store.Users.GetByEmail(cmd.Context(), normalizeEmail(email))
			if err != nil {
				return fmt.Errorf("find user %s: %w", email, err)
			}
			authSvc := newAuthService(cfg, store, nil, logger)
			if _, err := authSvc.SetRole(cmd.Context(), user.ID, parseRole(role)); err != nil {
				return fmt.Errorf("set role: %w", err)
			}
			logger.WithFields(logrus.Fields{"user_id": user.ID, "role": role}).Info("role updated")
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "email of the user to promote")
	cmd.Flags().StringVar(&role, "role", "admin", "role to assign (user or admin)")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}
