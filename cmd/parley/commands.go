// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/wingedpig/parley/internal/app"
	"github.com/wingedpig/parley/internal/export"
	"github.com/wingedpig/parley/internal/session"
)

// sessionRow is one line of the sessions listing.
type sessionRow struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Messages  int       `json:"messages"`
	SharedID  string    `json:"shared_id,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
	Active    bool      `json:"active"`
}

// printJSON outputs any value as formatted JSON
func printJSON(v interface{}) {
	out, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(out))
}

func cmdSessions(ctx context.Context, opts app.Options, args []string) (err error) {
	fs := flag.NewFlagSet("sessions", flag.ExitOnError)
	jsonOutput := fs.Bool("json", false, "Output as JSON")
	fs.Parse(args)

	a, err := openApp(ctx, opts)
	if err != nil {
		return err
	}
	defer closeApp(ctx, a, &err)

	active, _ := a.ActiveSession()
	var rows []sessionRow
	for _, sess := range a.Sessions() {
		rows = append(rows, sessionRow{
			ID:        sess.ID,
			Type:      string(sess.Type),
			Messages:  len(sess.Messages),
			SharedID:  sess.SharedID,
			UpdatedAt: sess.UpdatedAt,
			Active:    sess.ID == active.ID,
		})
	}

	if *jsonOutput {
		printJSON(rows)
		return nil
	}

	printSessions(os.Stdout, rows)
	stats := a.Stats()
	fmt.Printf("\n%d sessions, %d messages\n", stats.Sessions, stats.Messages)
	return nil
}

func printSessions(w io.Writer, rows []sessionRow) {
	fmt.Fprintf(w, "  %-44s %-13s %-8s %s\n", "SESSION", "TYPE", "MSGS", "UPDATED")
	fmt.Fprintln(w, strings.Repeat("-", 90))
	for _, r := range rows {
		marker := " "
		if r.Active {
			marker = "*"
		}
		fmt.Fprintf(w, "%s %-44s %-13s %-8d %s\n",
			marker,
			r.ID,
			r.Type,
			r.Messages,
			r.UpdatedAt.Local().Format("2006-01-02 15:04"),
		)
	}
}

func cmdExport(ctx context.Context, opts app.Options, args []string) (err error) {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	format := fs.String("format", "md", "Output format: json, jsonl, yaml, md")
	output := fs.String("o", "", "Output file (default: stdout)")
	all := fs.Bool("all", false, "Export every session")
	fs.Parse(args)

	if _, err := export.NewExporter(*format); err != nil {
		return err
	}

	a, err := openApp(ctx, opts)
	if err != nil {
		return err
	}
	defer closeApp(ctx, a, &err)

	sessions, err := selectSessions(a, fs.Args(), *all)
	if err != nil {
		return err
	}

	var w io.Writer = os.Stdout
	if *output != "" {
		f, err := os.Create(*output)
		if err != nil {
			return fmt.Errorf("failed to create %s: %w", *output, err)
		}
		defer f.Close()
		w = f
	}
	return export.Export(w, sessions, *format)
}

// selectSessions returns the sessions named by ids, every session when all
// is set, or the active session.
func selectSessions(a *app.App, ids []string, all bool) ([]session.Session, error) {
	if all {
		return a.Sessions(), nil
	}
	if len(ids) == 0 {
		sess, ok := a.ActiveSession()
		if !ok {
			return nil, app.ErrSessionNotFound
		}
		return []session.Session{sess}, nil
	}
	out := make([]session.Session, 0, len(ids))
	for _, id := range ids {
		sess, ok := a.Session(id)
		if !ok {
			return nil, fmt.Errorf("%w: %s", app.ErrSessionNotFound, id)
		}
		out = append(out, sess)
	}
	return out, nil
}

func cmdClearOld(ctx context.Context, opts app.Options, args []string) (err error) {
	if len(args) != 1 {
		return fmt.Errorf("usage: parley clear-old <days>")
	}
	days, err := strconv.Atoi(args[0])
	if err != nil || days <= 0 {
		return fmt.Errorf("invalid day count: %s", args[0])
	}

	// The configured cutoff would run on initialize; only the requested one
	// should apply here.
	cfg := *opts.Config
	cfg.Sessions.ClearAfterDays = 0
	opts.Config = &cfg

	a, err := openApp(ctx, opts)
	if err != nil {
		return err
	}
	defer closeApp(ctx, a, &err)

	n := a.ClearOldSessions(days)
	fmt.Printf("Removed %d sessions idle for more than %d days\n", n, days)
	return nil
}

func cmdShare(ctx context.Context, opts app.Options, args []string) (err error) {
	a, err := openApp(ctx, opts)
	if err != nil {
		return err
	}
	defer closeApp(ctx, a, &err)

	if len(args) > 0 {
		if err := a.SwitchSession(args[0]); err != nil {
			return err
		}
	}
	url, err := a.ShareActive(ctx, nil)
	if err != nil {
		return err
	}
	fmt.Println(url)
	return nil
}

func cmdOpen(ctx context.Context, opts app.Options, args []string) (err error) {
	fs := flag.NewFlagSet("open", flag.ExitOnError)
	format := fs.String("format", "md", "Output format: json, jsonl, yaml, md")
	fs.Parse(args)
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: parley open [-format fmt] <shared-id>")
	}

	a, err := openApp(ctx, opts)
	if err != nil {
		return err
	}
	defer closeApp(ctx, a, &err)

	sess, err := a.LoadShared(ctx, sharedID(fs.Arg(0)))
	if err != nil {
		return err
	}
	return export.Export(os.Stdout, []session.Session{sess}, *format)
}

// sharedID accepts either a conversation id or a share link.
func sharedID(arg string) string {
	arg = strings.TrimSuffix(arg, "/")
	if i := strings.LastIndex(arg, "/chat/"); i >= 0 {
		return arg[i+len("/chat/"):]
	}
	return arg
}
