// Package cmd provides the CLI commands for billing-trust.
package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"billing-trust/core/trust"
	"billing-trust/db"
	"billing-trust/internal/config"
	"billing-trust/internal/logging"
)

var (
	cfgFile string
	verbose bool
	cfg     *config.Config
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "billing-trust",
	Short: "Score the governance health of cloud billing data",
	Long: `billing-trust analyzes cloud billing uploads and produces a 0-100
trust score across tagging, allocation, shared-cost, policy, ingestion,
cost-basis and unit-economics quality dimensions.

Examples:
  billing-trust load --provider aws rows.json
  billing-trust analyze --uploads <upload-id>
  billing-trust analyze --uploads <upload-id> --views
  billing-trust serve --addr :8080`,
}

// Execute runs the CLI
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.billing-trust.json)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")

	// Add subcommands
	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(loadCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
}

func initConfig() {
	var err error
	cfg, err = config.Load(cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	if verbose {
		cfg.Logging.Level = "debug"
	}
	if err := logging.Initialize(cfg.Logging); err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing logging: %v\n", err)
	}
}

// openEngine wires the store, policy and engine from the effective config.
func openEngine() (*trust.Engine, *db.SQLiteStore, error) {
	pol, err := config.LoadPolicy(cfg.PolicyFile)
	if err != nil {
		return nil, nil, err
	}
	store, err := db.Open(cfg.Store.DatabasePath)
	if err != nil {
		return nil, nil, err
	}
	engine := trust.NewEngine(store, pol,
		time.Duration(cfg.Cache.TTLSeconds)*time.Second, logging.Named("engine"))
	return engine, store, nil
}

// versionCmd prints version information
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("billing-trust version 1.0.0")
	},
}
