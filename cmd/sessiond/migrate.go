package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/MrEthical07/goSession/store/pgstore"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func newMigrateCommand(opts *options) *cobra.Command {
	var dsn string
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply the PostgreSQL schema migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if dsn == "" {
				env, _ := godotenv.Read(opts.envFile)
				dsn = lookupDSN(env)
			}
			if dsn == "" {
				return errors.New("migrate: --dsn or DATABASE_URL is required")
			}
			db, err := pgstore.Open(cmd.Context(), dsn)
			if err != nil {
				return err
			}
			defer func() { _ = db.Close() }()
			if err := pgstore.RunMigrations(cmd.Context(), db); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
			return nil
		},
	}
	cmd.Flags().StringVar(&dsn, "dsn", "", "PostgreSQL connection string (defaults to DATABASE_URL)")
	return cmd
}

// lookupDSN prefers the process environment over the dotenv file, matching
// godotenv.Load semantics.
func lookupDSN(fileEnv map[string]string) string {
	if v := os.Getenv("DATABASE_URL"); v != "" {
		return v
	}
	return fileEnv["DATABASE_URL"]
}
