package main

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/username/welfarefund/src/config"
	"github.com/username/welfarefund/src/database"
	"github.com/username/welfarefund/src/logger"
	"github.com/username/welfarefund/src/model"
	"github.com/username/welfarefund/src/services"
)

func openDatabase(cfg *config.AppConfig) (*sql.DB, error) {
	logger.L.Info("Initializing database...", "path", cfg.DatabasePath)
	db, err := database.Open(cfg.DatabasePath)
	if err != nil {
		return nil, err
	}
	logger.L.Info("Database initialized successfully.")
	return db, nil
}

// withApp opens the database, wires the services and closes the database after run.
func withApp(run func(ctx context.Context, a *app) error) error {
	db, err := openDatabase(config.Cfg)
	if err != nil {
		return err
	}
	defer db.Close()
	return run(context.Background(), newApp(config.Cfg, db))
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "welfarefund",
		Short:         "Staff welfare contribution fund backend",
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			config.LoadConfig()
			logger.InitLogger(config.Cfg.LogLevel)
			if err := config.Cfg.Validate(); err != nil {
				logger.L.Error("Invalid configuration", "error", err)
				return err
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(config.Cfg)
		},
	}

	cmd.AddCommand(newServeCommand())
	cmd.AddCommand(newMigrateCommand())
	cmd.AddCommand(newCreateAdminCommand())
	cmd.AddCommand(newSeedServicesCommand())
	return cmd
}

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger.L.Info("Welfare fund backend server starting...")
			return serve(config.Cfg)
		},
	}
}

func newMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or upgrade the database schema and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openDatabase(config.Cfg)
			if err != nil {
				return err
			}
			return db.Close()
		},
	}
}

type createAdminOptions struct {
	username    string
	email       string
	password    string
	fullName    string
	staffNumber string
}

func newCreateAdminCommand() *cobra.Command {
	opts := &createAdminOptions{}
	cmd := &cobra.Command{
		Use:   "create-admin",
		Short: "Create an administrator account",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app) error {
				user, err := a.members.CreateMember(ctx, services.CreateMemberInput{
					Username:    opts.username,
					Email:       opts.email,
					Password:    opts.password,
					FullName:    opts.fullName,
					StaffNumber: opts.staffNumber,
					Role:        model.RoleAdmin,
				})
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "created administrator %s (id %d)\n", user.Username, user.ID)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&opts.username, "username", "", "login name")
	cmd.Flags().StringVar(&opts.email, "email", "", "email address")
	cmd.Flags().StringVar(&opts.password, "password", "", "initial password")
	cmd.Flags().StringVar(&opts.fullName, "name", "Fund Administrator", "full name")
	cmd.Flags().StringVar(&opts.staffNumber, "staff-number", "", "staff number (STAFF-XXXX), optional")
	for _, name := range []string{"username", "email", "password"} {
		_ = cmd.MarkFlagRequired(name)
	}
	return cmd
}

func newSeedServicesCommand() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "seed-services",
		Short: "Load welfare services from a YAML catalog, skipping existing codes",
		RunE: func(cmd *cobra.Command, args []string) error {
			if file == "" {
				file = config.Cfg.WelfareCatalogPath
			}
			seeds, err := config.LoadWelfareCatalog(file)
			if err != nil {
				return err
			}
			return withApp(func(ctx context.Context, a *app) error {
				n, err := a.welfare.SeedCatalog(ctx, seeds)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "seeded %d of %d services from %s\n", n, len(seeds), file)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "catalog file (defaults to WELFARE_CATALOG_PATH)")
	return cmd
}
