// Package cli implements seatctl, the operator command line of the booking
// service.
package cli

import (
	"errors"
	"io/fs"

	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/iliyamo/cinema-seat-booking/internal/config"
	"github.com/iliyamo/cinema-seat-booking/internal/database"
	"github.com/iliyamo/cinema-seat-booking/internal/pkg/logger"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	EnvFile string
	Verbose bool
}

// NewRootCommand creates the seatctl root command.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "seatctl",
		Short: "Operate the cinema seat booking service",
		Long:  "Database migrations, lock expiry sweeps, the notification consumer and account provisioning.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := godotenv.Load(opts.EnvFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
				return err
			}
			env := "production"
			if opts.Verbose {
				env = "development"
			}
			logger.Set(logger.NewLogger(env))
			return nil
		},
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&opts.EnvFile, "env-file", ".env", "dotenv file loaded before reading the environment")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "debug logging")

	cmd.AddCommand(NewMigrateCommand())
	cmd.AddCommand(NewReleaseExpiredCommand())
	cmd.AddCommand(NewConsumeCommand())
	cmd.AddCommand(NewCreateUserCommand())

	return cmd
}

// openDB reads the database settings and connects.
func openDB() (*sqlx.DB, config.Config, error) {
	cfg, err := config.ParseDatabase()
	if err != nil {
		return nil, cfg, err
	}
	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	return db, cfg, err
}

// migrationDSN reads the database settings for the migrate commands.
func migrationDSN() (string, error) {
	cfg, err := config.ParseDatabase()
	if err != nil {
		return "", err
	}
	return database.MigrationDSN(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName), nil
}
