// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/wingedpig/parley/internal/app"
	"github.com/wingedpig/parley/internal/chat"
	"github.com/wingedpig/parley/internal/events"
	"github.com/wingedpig/parley/internal/export"
	"github.com/wingedpig/parley/internal/session"
)

const shutdownTimeout = 10 * time.Second

func cmdChat(ctx context.Context, opts app.Options, args []string) error {
	a, err := openApp(ctx, opts)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	r := &renderer{w: os.Stdout, app: a}
	if _, err := a.Events().Subscribe("*", r.handle); err != nil {
		_ = a.Shutdown(ctx)
		return err
	}
	if err := a.Start(ctx); err != nil {
		_ = a.Shutdown(ctx)
		return err
	}

	fmt.Println("Type a message, or /help for commands.")
	if sess, ok := a.ActiveSession(); ok {
		r.mu.Lock()
		r.transcript(sess)
		r.mu.Unlock()
	}

	lines := make(chan string)
	go readLines(os.Stdin, lines)

	s := &chatShell{app: a, out: os.Stdout}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer cancel()
		return s.run(gctx, lines)
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, done := context.WithTimeout(context.Background(), shutdownTimeout)
		defer done()
		return a.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// readLines feeds stdin to out until EOF.
func readLines(in io.Reader, out chan<- string) {
	defer close(out)
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		out <- scanner.Text()
	}
}

// errQuit ends the shell without an error.
var errQuit = errors.New("quit")

// chatShell executes input lines against the engine.
type chatShell struct {
	app         *app.App
	out         io.Writer
	pageContext json.RawMessage
}

func (s *chatShell) run(ctx context.Context, lines <-chan string) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			err := s.exec(ctx, line)
			if errors.Is(err, errQuit) {
				return nil
			}
			if err != nil {
				fmt.Fprintf(s.out, "! %v\n", err)
			}
		}
	}
}

// parseCommand splits a slash command into its name and arguments. It
// reports false for plain chat input.
func parseCommand(line string) (string, []string, bool) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "/") || strings.HasPrefix(line, "//") {
		return "", nil, false
	}
	fields := strings.Fields(line[1:])
	if len(fields) == 0 {
		return "", nil, false
	}
	return strings.ToLower(fields[0]), fields[1:], true
}

func (s *chatShell) exec(ctx context.Context, line string) error {
	name, args, ok := parseCommand(line)
	if !ok {
		if strings.TrimSpace(line) == "" {
			return nil
		}
		// A leading "//" sends a literal slash.
		if strings.HasPrefix(strings.TrimSpace(line), "//") {
			line = strings.TrimPrefix(strings.TrimSpace(line), "/")
		}
		return s.app.SendMessage(line, s.pageContext)
	}

	switch name {
	case "quit", "exit", "q":
		return errQuit
	case "help", "h", "?":
		printChatHelp(s.out)
	case "new":
		_, err := s.app.StartNewSession(ctx, strings.Join(args, " "))
		return err
	case "sessions", "ls":
		active, _ := s.app.ActiveSession()
		var rows []sessionRow
		for _, sess := range s.app.Sessions() {
			rows = append(rows, sessionRow{
				ID:        sess.ID,
				Type:      string(sess.Type),
				Messages:  len(sess.Messages),
				UpdatedAt: sess.UpdatedAt,
				Active:    sess.ID == active.ID,
			})
		}
		printSessions(s.out, rows)
	case "switch", "sw":
		sess, err := s.resolve(args)
		if err != nil {
			return err
		}
		return s.app.SwitchSession(sess.ID)
	case "delete", "rm":
		sess, err := s.resolve(args)
		if err != nil {
			return err
		}
		s.app.DeleteSession(sess.ID)
	case "fork":
		if _, forked := s.app.ForkActiveSession(); !forked {
			return errors.New("only shared sessions can be forked")
		}
	case "stop":
		s.app.StopGeneration()
	case "connect":
		return s.app.Connect()
	case "disconnect":
		s.app.Disconnect()
	case "clear":
		s.app.ClearMessages()
		fmt.Fprintln(s.out, "-- cleared")
	case "clear-all":
		s.app.ClearAllSessions()
	case "clear-old":
		days, err := intArg(args, "clear-old <days>")
		if err != nil {
			return err
		}
		fmt.Fprintf(s.out, "-- removed %d sessions\n", s.app.ClearOldSessions(days))
	case "share":
		url, err := s.app.ShareActive(ctx, s.pageContext)
		if err != nil {
			return err
		}
		fmt.Fprintf(s.out, "-- shared: %s\n", url)
	case "open":
		if len(args) != 1 {
			return errors.New("usage: /open <shared-id>")
		}
		_, err := s.app.LoadShared(ctx, sharedID(args[0]))
		return err
	case "rate":
		n, err := intArg(args, "rate <1-5>")
		if err != nil {
			return err
		}
		if err := s.app.Rate(ctx, n); err != nil {
			return err
		}
		fmt.Fprintln(s.out, "-- thanks for the feedback")
	case "thinking":
		on, err := boolArg(args, "thinking on|off")
		if err != nil {
			return err
		}
		s.app.UpdateSettings(func(st *session.Settings) { st.ShowThinking = on })
	case "autoscroll":
		on, err := boolArg(args, "autoscroll on|off")
		if err != nil {
			return err
		}
		s.app.UpdateSettings(func(st *session.Settings) { st.AutoScroll = on })
	case "persona":
		if len(args) != 1 {
			fmt.Fprintf(s.out, "-- persona: %s\n", s.app.Settings().Persona)
			return nil
		}
		s.app.UpdateSettings(func(st *session.Settings) { st.Persona = args[0] })
	case "personas":
		personas, err := s.app.Personas(ctx)
		if err != nil {
			return err
		}
		for _, p := range personas {
			fmt.Fprintf(s.out, "  %-16s %s\n", p.Name, p.Description)
		}
	case "prompts":
		for i, p := range s.app.Prompts() {
			fmt.Fprintf(s.out, "  %d. %-20s %s\n", i+1, p.Name, p.Prompt)
		}
	case "context":
		if len(args) == 0 {
			s.pageContext = nil
			fmt.Fprintln(s.out, "-- page context cleared")
			return nil
		}
		raw := json.RawMessage(strings.Join(args, " "))
		if !json.Valid(raw) {
			return errors.New("page context must be JSON")
		}
		s.pageContext = raw
	case "export":
		if len(args) != 2 {
			return errors.New("usage: /export <format> <file>")
		}
		return s.export(args[0], args[1])
	default:
		return fmt.Errorf("unknown command /%s (try /help)", name)
	}
	return nil
}

// resolve finds the session named by a unique id prefix.
func (s *chatShell) resolve(args []string) (session.Session, error) {
	if len(args) != 1 {
		return session.Session{}, errors.New("a session id is required")
	}
	var found []session.Session
	for _, sess := range s.app.Sessions() {
		if strings.HasPrefix(sess.ID, args[0]) {
			found = append(found, sess)
		}
	}
	switch len(found) {
	case 0:
		return session.Session{}, fmt.Errorf("%w: %s", app.ErrSessionNotFound, args[0])
	case 1:
		return found[0], nil
	default:
		return session.Session{}, fmt.Errorf("ambiguous session id %s", args[0])
	}
}

func (s *chatShell) export(format, path string) error {
	sess, ok := s.app.ActiveSession()
	if !ok {
		return app.ErrSessionNotFound
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := export.Export(f, []session.Session{sess}, format); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	fmt.Fprintf(s.out, "-- wrote %s\n", path)
	return nil
}

func intArg(args []string, usage string) (int, error) {
	if len(args) != 1 {
		return 0, fmt.Errorf("usage: /%s", usage)
	}
	n, err := strconv.Atoi(args[0])
	if err != nil {
		return 0, fmt.Errorf("usage: /%s", usage)
	}
	return n, nil
}

func boolArg(args []string, usage string) (bool, error) {
	if len(args) == 1 {
		switch strings.ToLower(args[0]) {
		case "on", "true", "yes":
			return true, nil
		case "off", "false", "no":
			return false, nil
		}
	}
	return false, fmt.Errorf("usage: /%s", usage)
}

func printChatHelp(w io.Writer) {
	fmt.Fprintln(w, `Commands:
  /new [message]          Start a new session, optionally sending a message
  /sessions               List sessions
  /switch <id>            Switch to a session (unique id prefix)
  /delete <id>            Delete a session
  /fork                   Copy a shared session into an editable one
  /stop                   Abandon the answer being generated
  /share                  Share the active session
  /open <id|link>         Load a shared conversation
  /rate <1-5>             Rate the active session
  /thinking on|off        Show intermediate thinking steps
  /autoscroll on|off      Follow new messages
  /persona [name]         Show or set the persona
  /personas               List available personas
  /prompts                Show suggested prompts
  /context [json]         Attach page context to following messages
  /export <fmt> <file>    Export the active session
  /clear                  Remove the active session's messages
  /clear-old <days>       Delete sessions idle for more than <days>
  /clear-all              Delete every session
  /connect, /disconnect   Open or close the connection
  /quit                   Exit

Start a message with // to send a literal leading slash.`)
}

// renderer prints engine notifications.
type renderer struct {
	mu  sync.Mutex
	w   io.Writer
	app *app.App
}

func (r *renderer) handle(ctx context.Context, ev events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch ev.Type {
	case events.MessageAppended, events.MessageUpdated:
		id, _ := ev.Payload["message_id"].(string)
		sess, ok := r.app.Session(ev.SessionID)
		if !ok {
			return nil
		}
		for _, m := range sess.Messages {
			if m.ID == id && m.Kind != chat.KindUser {
				renderMessage(r.w, m)
			}
		}
	case events.ThinkingProgress:
		n, _ := ev.Payload["step_number"].(int)
		thought, _ := ev.Payload["thought"].(string)
		fmt.Fprintf(r.w, "  ... step %d: %s\n", n, thought)
	case events.ConnectionState:
		fmt.Fprintf(r.w, "[%v]\n", ev.Payload["state"])
	case events.ConnectionError:
		fmt.Fprintf(r.w, "! %v\n", ev.Payload["error"])
	case events.SessionSwitched:
		if sess, ok := r.app.Session(ev.SessionID); ok {
			r.transcript(sess)
		}
	case events.SessionForked:
		fmt.Fprintf(r.w, "-- forked %v into %s\n", ev.Payload["parent_id"], ev.SessionID)
	case events.SessionsEvicted:
		if n, ok := ev.Payload["count"].(int); ok {
			fmt.Fprintf(r.w, "-- %d old sessions removed\n", n)
		}
	case events.SessionsRestored:
		fmt.Fprintln(r.w, "-- sessions reloaded")
	case events.PersistFailed:
		fmt.Fprintf(r.w, "! failed to save sessions: %v\n", ev.Payload["error"])
	}
	return nil
}

// transcript prints a session header and its messages. Callers hold mu.
func (r *renderer) transcript(sess session.Session) {
	fmt.Fprintf(r.w, "== %s (%s, %d messages)\n", sess.ID, sess.Type, len(sess.Messages))
	for _, m := range sess.Messages {
		renderMessage(r.w, m)
	}
}

// renderMessage prints one message in terminal form.
func renderMessage(w io.Writer, m chat.Message) {
	switch m.Kind {
	case chat.KindUser:
		fmt.Fprintf(w, "> %s\n", m.Content)
	case chat.KindAssistant:
		fmt.Fprintf(w, "%s\n", m.Content)
		if len(m.ToolsUsed) > 0 {
			fmt.Fprintf(w, "   (tools: %s)\n", strings.Join(m.ToolsUsed, ", "))
		}
	case chat.KindThinkingStep:
		if m.Data == nil {
			return
		}
		fmt.Fprintf(w, "  [step %d] %s", m.Data.StepNumber, m.Data.Thought)
		if m.Data.Action != "" {
			fmt.Fprintf(w, " -> %s", m.Data.Action)
		}
		if m.Data.Observation != "" {
			fmt.Fprintf(w, ": %s", m.Data.Observation)
		}
		fmt.Fprintln(w)
	case chat.KindError:
		fmt.Fprintf(w, "! %s\n", m.Content)
	default:
		fmt.Fprintf(w, "-- %s\n", m.Content)
	}
}
