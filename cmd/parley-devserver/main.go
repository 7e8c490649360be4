// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// parley-devserver runs a local stand-in for the chat service: a scripted
// streaming endpoint plus the share, prompt, persona and rating APIs.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/wingedpig/parley/internal/config"
	"github.com/wingedpig/parley/internal/devserver"
)

var (
	version = "0.3"
)

func main() {
	var (
		configPath  string
		host        string
		port        int
		stepDelay   string
		showVersion bool
	)

	flag.StringVar(&configPath, "config", "", "Path to config file (default: auto-detect)")
	flag.StringVar(&configPath, "c", "", "Path to config file (short)")
	flag.StringVar(&host, "host", "", "HTTP server host (overrides config)")
	flag.IntVar(&port, "port", 0, "HTTP server port (overrides config)")
	flag.StringVar(&stepDelay, "step-delay", "", "Pause between thinking steps (overrides config)")
	flag.BoolVar(&showVersion, "version", false, "Show version")
	flag.BoolVar(&showVersion, "v", false, "Show version (short)")
	flag.Parse()

	if showVersion {
		fmt.Printf("parley-devserver %s\n", version)
		os.Exit(0)
	}

	loader := config.NewLoader()
	cfg := config.Default()
	if configPath == "" {
		if found, err := loader.FindConfig(); err == nil {
			configPath = found
		}
	}
	if configPath != "" {
		loaded, err := loader.LoadWithDefaults(context.Background(), configPath)
		if err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
		cfg = loaded
		log.Printf("Using config: %s", configPath)
	}

	if host != "" {
		cfg.DevServer.Host = host
	}
	if port != 0 {
		cfg.DevServer.Port = port
	}
	if stepDelay != "" {
		cfg.DevServer.StepDelay = stepDelay
	}
	if err := config.NewValidator().Validate(cfg); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := devserver.New(cfg.DevServer)
	if err := srv.ListenAndServe(ctx); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}
