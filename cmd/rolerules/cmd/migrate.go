package cmd

import (
	"fmt"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/clypper/roles-rules/internal/config"
	"github.com/clypper/roles-rules/pkg/db"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the database schema",
	RunE:  runMigrate,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate(cmd *cobra.Command, args []string) error {
	_ = godotenv.Load()

	url := dbURL
	if url == "" {
		cfg, err := config.Load(configFile)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		url = cfg.DatabaseURL
	}
	if url == "" {
		return fmt.Errorf("database URL required (--db-url or RR_DB_URL)")
	}

	conn, err := db.Open(url)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer conn.Close()

	if err := db.Migrate(conn); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	fmt.Println("schema up to date")
	return nil
}
