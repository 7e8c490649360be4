// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package export

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/wingedpig/parley/internal/chat"
	"github.com/wingedpig/parley/internal/session"
)

// MarkdownExporter exports sessions as a readable Markdown transcript.
type MarkdownExporter struct{}

// Export writes sess as Markdown.
func (e *MarkdownExporter) Export(sess session.Session, w io.Writer) error {
	var b strings.Builder

	fmt.Fprintf(&b, "# Session %s\n\n", sess.ID)
	fmt.Fprintf(&b, "**Type:** %s  \n", sess.Type)
	if sess.SharedBy != "" {
		fmt.Fprintf(&b, "**Shared by:** %s  \n", sess.SharedBy)
	}
	if sess.ParentID != "" {
		fmt.Fprintf(&b, "**Forked from:** %s  \n", sess.ParentID)
	}
	fmt.Fprintf(&b, "**Messages:** %d\n\n", len(sess.Messages))
	b.WriteString("---\n\n")

	for i, m := range sess.Messages {
		writeMessage(&b, m)
		if i < len(sess.Messages)-1 {
			b.WriteString("---\n\n")
		}
	}

	_, err := io.WriteString(w, b.String())
	return err
}

func writeMessage(b *strings.Builder, m chat.Message) {
	ts := ""
	if !m.Timestamp.IsZero() {
		ts = " (" + m.Timestamp.UTC().Format(time.RFC3339) + ")"
	}

	switch m.Kind {
	case chat.KindUser:
		fmt.Fprintf(b, "**You:**%s\n\n%s\n\n", ts, escapeMarkdown(m.Content))
	case chat.KindAssistant:
		fmt.Fprintf(b, "**Assistant:**%s\n\n%s\n\n", ts, escapeMarkdown(m.Content))
		if len(m.ToolsUsed) > 0 {
			fmt.Fprintf(b, "_Tools: %s_\n\n", strings.Join(m.ToolsUsed, ", "))
		}
	case chat.KindThinkingStep:
		if m.Data == nil {
			return
		}
		fmt.Fprintf(b, "> **Step %d**%s\n", m.Data.StepNumber, ts)
		if m.Data.Thought != "" {
			fmt.Fprintf(b, "> %s\n", m.Data.Thought)
		}
		if m.Data.Action != "" {
			fmt.Fprintf(b, "> Action: `%s`", m.Data.Action)
			if len(m.Data.ActionInput) > 0 {
				fmt.Fprintf(b, " `%s`", m.Data.ActionInput)
			}
			b.WriteString("\n")
		}
		if m.Data.Observation != "" {
			fmt.Fprintf(b, "> Observation: %s\n", m.Data.Observation)
		}
		b.WriteString("\n")
	case chat.KindError:
		fmt.Fprintf(b, "**Error:**%s %s\n\n", ts, m.Content)
	default:
		fmt.Fprintf(b, "_%s_\n\n", m.Content)
	}
}

// escapeMarkdown escapes emphasis outside fenced code blocks.
func escapeMarkdown(text string) string {
	lines := strings.Split(text, "\n")
	inCodeBlock := false
	for i, line := range lines {
		if strings.HasPrefix(line, "```") {
			inCodeBlock = !inCodeBlock
			continue
		}
		if inCodeBlock {
			continue
		}
		line = strings.ReplaceAll(line, "**", "\\*\\*")
		lines[i] = strings.ReplaceAll(line, "__", "\\_\\_")
	}
	return strings.Join(lines, "\n")
}

// Extension returns the file extension for this format.
func (e *MarkdownExporter) Extension() string {
	return "md"
}
