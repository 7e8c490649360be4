// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// parley is a terminal chat client for the streaming assistant service.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/wingedpig/parley/internal/app"
	"github.com/wingedpig/parley/internal/config"
)

var (
	version = "0.3"
)

func main() {
	// Check for subcommands before flag parsing
	if len(os.Args) > 1 && os.Args[1] == "init" {
		if err := runInit(os.Args[2:]); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		os.Exit(0)
	}

	// Parse flags
	var (
		configPath  string
		showVersion bool
		debug       bool
	)

	flag.StringVar(&configPath, "config", "", "Path to config file (default: auto-detect)")
	flag.StringVar(&configPath, "c", "", "Path to config file (short)")
	flag.BoolVar(&showVersion, "version", false, "Show version")
	flag.BoolVar(&showVersion, "v", false, "Show version (short)")
	flag.BoolVar(&debug, "debug", false, "Enable debug mode")
	flag.Usage = printUsage
	flag.Parse()

	if showVersion {
		fmt.Printf("parley %s\n", version)
		os.Exit(0)
	}

	cfg, err := loadConfig(configPath, debug)
	if err != nil {
		log.Fatalf("Error: %v", err)
	}

	opts := app.Options{
		ConfigPath: configPath,
		Config:     cfg,
		Debug:      debug,
		Version:    version,
	}

	args := flag.Args()
	cmd := "chat"
	if len(args) > 0 {
		cmd, args = args[0], args[1:]
	}

	ctx := context.Background()
	switch cmd {
	case "chat":
		err = cmdChat(ctx, opts, args)
	case "sessions":
		err = cmdSessions(ctx, opts, args)
	case "export":
		err = cmdExport(ctx, opts, args)
	case "clear-old":
		err = cmdClearOld(ctx, opts, args)
	case "share":
		err = cmdShare(ctx, opts, args)
	case "open":
		err = cmdOpen(ctx, opts, args)
	case "help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig reads path, or the config found in the current directory.
// Without either the built-in defaults are used.
func loadConfig(path string, debug bool) (*config.Config, error) {
	loader := config.NewLoader()
	if path == "" {
		found, err := loader.FindConfig()
		if err != nil {
			if debug {
				log.Printf("No config file, using defaults: %v", err)
			}
			return config.Default(), nil
		}
		path = found
	}

	if debug {
		log.Printf("Using config: %s", path)
	}
	cfg, err := loader.LoadWithDefaults(context.Background(), path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

// openApp builds and initializes the engine without connecting.
func openApp(ctx context.Context, opts app.Options) (*app.App, error) {
	a, err := app.New(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create app: %w", err)
	}
	if err := a.Initialize(ctx); err != nil {
		_ = a.Shutdown(ctx)
		return nil, err
	}
	return a, nil
}

// closeApp shuts a down and folds the result into err.
func closeApp(ctx context.Context, a *app.App, err *error) {
	if serr := a.Shutdown(ctx); serr != nil {
		*err = errors.Join(*err, serr)
	}
}

func printUsage() {
	fmt.Println(`parley - Chat with the assistant from the terminal

Usage:
  parley [flags] [command] [arguments]

Flags:
  -c, -config <path>   Config file (default: parley.hjson, parley.json or parley.toml)
  -debug               Log protocol frames
  -v, -version         Show version

Commands:
  chat                       Interactive chat (default)
  sessions [-json]           List stored sessions
  export [options] [ids...]  Export sessions
    -format <fmt>            json, jsonl, yaml or md (default: md)
    -o <file>                Write to file instead of stdout
  clear-old <days>           Delete sessions idle for more than <days>
  share [session-id]         Share a session and print its link
  open <shared-id>           Load a shared conversation and print it
  init                       Create a parley.hjson in the current directory

In chat, type /help for the available slash commands.`)
}
