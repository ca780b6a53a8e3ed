// Package cmd implements the reconengine command-line interface.
package cmd

import (
	"fmt"
	"os"

	"card-recon-engine/pkg/logger"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile   string
	dbPath    string
	logLevel  string
	logFormat string
	version   = "dev"
	commit    = "unknown"
	date      = "unknown"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "reconengine",
	Short: "Card payment reconciliation engine",
	Long: `Reconengine reconciles the bank switch ledger against card scheme
settlement files. It matches transactions in two deterministic phases (exact
key matching, then tolerance-based fuzzy matching), classifies everything that
remains into exception cases, and records auditable batch results.

Examples:
  reconengine load --bank bank_ledger.csv --scheme settlement.csv
  reconengine run --window-start 2024-03-01T00:00:00 --window-end 2024-03-08T00:00:00
  reconengine serve --listen :8080`,
	Version: getVersionString(),
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (optional)")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "recon.db", "path to the SQLite database file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "log format: text, json")

	viper.BindPFlag("db", rootCmd.PersistentFlags().Lookup("db"))
	viper.BindPFlag("log-level", rootCmd.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag("log-format", rootCmd.PersistentFlags().Lookup("log-format"))
}

// initConfig reads in config file and ENV variables.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)

		if err := viper.ReadInConfig(); err != nil {
			fmt.Fprintf(os.Stderr, "Error reading config file: %s\n", err)
			os.Exit(1)
		}
	}

	viper.SetEnvPrefix("RECONENGINE")
	viper.AutomaticEnv()

	dbPath = viper.GetString("db")
	logLevel = viper.GetString("log-level")
	logFormat = viper.GetString("log-format")

	if err := configureLogging(); err != nil {
		fmt.Fprintf(os.Stderr, "Error configuring logging: %s\n", err)
		os.Exit(1)
	}
}

func configureLogging() error {
	cfg := &logger.Config{
		Level:  logger.Level(logLevel),
		Format: logger.Format(logFormat),
		Output: os.Stderr,
	}

	log, err := logger.NewLogger(cfg)
	if err != nil {
		return err
	}

	logger.SetGlobalLogger(log)
	return nil
}

// SetVersionInfo sets the version information for the CLI
func SetVersionInfo(v, c, d string) {
	version = v
	commit = c
	date = d
	rootCmd.Version = getVersionString()
}

func getVersionString() string {
	if version == "dev" {
		return fmt.Sprintf("%s (commit %s, built %s)", version, commit, date)
	}
	return version
}
