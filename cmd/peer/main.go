package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/iudanet/linkmesh/internal/app"
	"github.com/iudanet/linkmesh/internal/config"
)

var (
	// Version information set via ldflags during build
	Version   = "dev"
	BuildDate = "unknown"
	GitCommit = "unknown"
)

func main() {
	// Parse flags
	showVersion := flag.Bool("version", false, "Show version information")
	configPath := flag.String("config", os.Getenv("CONFIG_PATH"), "Path to YAML config file")
	listenAddr := flag.String("listen", "", "HTTP listen address (overrides config)")
	peers := flag.String("peers", "", "Comma-separated bootstrap peers (overrides config)")
	dbPath := flag.String("db", "", "Path to local database (overrides config)")
	flag.Parse()

	// Show version and exit if requested
	if *showVersion {
		printVersion()
		os.Exit(0)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Флаги имеют приоритет над файлом
	if *listenAddr != "" {
		cfg.ListenAddr = *listenAddr
	}
	if *peers != "" {
		cfg.Sync.BootstrapPeers = splitPeers(*peers)
	}
	if *dbPath != "" {
		cfg.Storage.Path = *dbPath
	}

	logger, err := app.NewLogger(cfg.Log, os.Stdout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid log config: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	node, err := app.New(ctx, cfg, logger, Version)
	if err != nil {
		logger.Error("Failed to start peer", "error", err)
		os.Exit(1)
	}

	runErr := node.Run(ctx)
	if err := node.Close(); err != nil {
		logger.Error("Failed to close storage", "error", err)
	}
	if runErr != nil {
		logger.Error("Peer stopped with error", "error", runErr)
		os.Exit(1)
	}
}

func splitPeers(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func printVersion() {
	fmt.Printf("linkmesh peer\n")
	fmt.Printf("Version:    %s\n", Version)
	fmt.Printf("Build Date: %s\n", BuildDate)
	fmt.Printf("Git Commit: %s\n", GitCommit)
}
