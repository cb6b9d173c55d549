package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/zapdeskhq/zapdesk/internal/config"
	"github.com/zapdeskhq/zapdesk/internal/db"
)

var cfgPath string

var rootCmd = &cobra.Command{
	Use:   "zapdesk",
	Short: "WhatsApp gateway delivery and realtime sync service",
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the API server and realtime connection manager",
	RunE: func(cmd *cobra.Command, args []string) error {
		runServe()
		return nil
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		return db.Migrate(cfg.Postgres)
	},
}

func main() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "path to config.toml")
	rootCmd.AddCommand(serveCmd, migrateCmd)
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
