// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"strings"
)

// initAnswers are the values collected by "parley init".
type initAnswers struct {
	Origin       string
	Persona      string
	ShowThinking bool
	Backend      string
}

// runInit handles the "parley init" command
func runInit(args []string) error {
	initFlags := flag.NewFlagSet("init", flag.ExitOnError)
	showHelp := initFlags.Bool("help", false, "Show help for init command")
	initFlags.BoolVar(showHelp, "h", false, "Show help for init command")
	initFlags.Parse(args)

	if *showHelp {
		fmt.Println(`Usage: parley init [options]

Create a new parley.hjson configuration file in the current directory.

Options:
  -h, -help    Show this help message

The command will ask about:
  - Chat service origin (defaults to the local dev server)
  - Persona
  - Whether to show thinking steps
  - Where to store sessions (file, sqlite or memory)`)
		return nil
	}

	configFile := "parley.hjson"
	if _, err := os.Stat(configFile); err == nil {
		return fmt.Errorf("%s already exists; remove it first or use a different directory", configFile)
	}

	reader := bufio.NewReader(os.Stdin)

	fmt.Println("Parley Configuration Setup")
	fmt.Println("==========================")
	fmt.Println()
	fmt.Println("Press Enter to accept defaults shown in [brackets].")
	fmt.Println()

	answers := initAnswers{
		Origin:  prompt(reader, "Chat service origin", "http://127.0.0.1:8080"),
		Persona: prompt(reader, "Persona", "default"),
	}
	answers.ShowThinking = strings.ToLower(prompt(reader, "Show thinking steps? (y/n)", "y")) == "y"
	for {
		answers.Backend = prompt(reader, "Session storage (file, sqlite, memory)", "file")
		if answers.Backend == "file" || answers.Backend == "sqlite" || answers.Backend == "memory" {
			break
		}
		fmt.Println("  Please answer file, sqlite or memory.")
	}

	if err := os.WriteFile(configFile, []byte(generateConfig(answers)), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	fmt.Println()
	fmt.Printf("Created %s\n", configFile)
	fmt.Println()
	fmt.Println("Next steps:")
	fmt.Println("  1. Review and edit parley.hjson as needed")
	fmt.Println("  2. For local testing, run: parley-devserver")
	fmt.Println("  3. Run: parley")
	fmt.Println()
	return nil
}

func prompt(reader *bufio.Reader, question, defaultVal string) string {
	if defaultVal != "" {
		fmt.Printf("%s [%s]: ", question, defaultVal)
	} else {
		fmt.Printf("%s: ", question)
	}
	input, _ := reader.ReadString('\n')
	input = strings.TrimSpace(input)
	if input == "" {
		return defaultVal
	}
	return input
}

// escapeHJSONValue escapes a string for safe inclusion in an HJSON double-quoted value.
func escapeHJSONValue(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	return s
}

func generateConfig(a initAnswers) string {
	var sb strings.Builder

	sb.WriteString(`{
  // This is an HJSON file (JSON with comments and relaxed syntax).

  // ---------------------------------------------------------------------------
  // Chat Service
  // ---------------------------------------------------------------------------
  chat: {
    // Page origin of the chat service. Also sent as the Origin header.
    origin: "`)
	sb.WriteString(escapeHJSONValue(a.Origin))
	sb.WriteString(`"

    // Streaming endpoint; relative paths resolve against origin
    base_url: "/api/chat"

    persona: "`)
	sb.WriteString(escapeHJSONValue(a.Persona))
	sb.WriteString(`"
    show_thinking: `)
	fmt.Fprintf(&sb, "%t", a.ShowThinking)
	sb.WriteString(`

    // Keepalive ping interval ("0" disables)
    // ping_interval: "30s"
  }

  // ---------------------------------------------------------------------------
  // Reconnect
  // ---------------------------------------------------------------------------
  //
  // After an unexpected close the client retries with exponential backoff.
  // reconnect: {
  //   base_delay: "1s"
  //   max_delay: "30s"
  //   max_attempts: 5
  // }

  // ---------------------------------------------------------------------------
  // Sessions
  // ---------------------------------------------------------------------------
  sessions: {
    // At most this many sessions are kept; the least recently active go first
    max: 50

    // Delete sessions idle for more than this many days on startup (0 keeps them)
    // clear_after_days: 30
  }

  // ---------------------------------------------------------------------------
  // Storage
  // ---------------------------------------------------------------------------
  storage: {
    // "file" keeps one JSON document per key, "sqlite" a single database,
    // "memory" nothing across restarts
    backend: "`)
	sb.WriteString(escapeHJSONValue(a.Backend))
	sb.WriteString(`"

    // path: "~/.config/parley"

    // Reload when another parley process rewrites the sessions (file only)
    // watch: true
  }

  // ---------------------------------------------------------------------------
  // Development Server
  // ---------------------------------------------------------------------------
  //
  // Settings for parley-devserver, a local stand-in for the chat service.
  // devserver: {
  //   host: "127.0.0.1"
  //   port: 8080
  //   step_delay: "150ms"
  // }
}
`)
	return sb.String()
}
