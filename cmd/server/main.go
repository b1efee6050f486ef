// Package main - entry point for the billing-trust API server.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"billing-trust/api"
	"billing-trust/core/trust"
	"billing-trust/db"
	"billing-trust/internal/config"
	"billing-trust/internal/logging"
)

const version = "1.0.0"

func main() {
	cfgPath := flag.String("config", "", "config file path")
	addr := flag.String("addr", "", "listen address (overrides config)")
	dbPath := flag.String("db", "", "billing database path (overrides config)")
	policyPath := flag.String("policy", "", "governance policy HCL file (overrides config)")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}
	if *dbPath != "" {
		cfg.Store.DatabasePath = *dbPath
	}
	if *policyPath != "" {
		cfg.PolicyFile = *policyPath
	}

	if err := logging.Initialize(cfg.Logging); err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing logging: %v\n", err)
		os.Exit(1)
	}
	defer logging.Sync()

	pol, err := config.LoadPolicy(cfg.PolicyFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading policy: %v\n", err)
		os.Exit(1)
	}

	store, err := db.Open(cfg.Store.DatabasePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening billing store: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	engine := trust.NewEngine(store, pol,
		time.Duration(cfg.Cache.TTLSeconds)*time.Second, logging.Named("engine"))
	server := api.NewServer(engine, version, logging.Named("api"))

	if err := server.ListenAndServe(cfg.Server.Addr); err != nil {
		fmt.Fprintf(os.Stderr, "Server error: %v\n", err)
		os.Exit(1)
	}
}
