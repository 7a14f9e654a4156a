package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/go-go-golems/streamchat/pkg/chatclient"
	"github.com/mattn/go-isatty"
	"github.com/pkg/errors"
	"github.com/weaviate/tiktoken-go"
)

var (
	userStyle      = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("63"))
	assistantStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	dimStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("#AFAFAF"))
	errorStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196"))
)

func isTerminal(f *os.File) bool {
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func roleLabel(r chatclient.Role) string {
	switch r {
	case chatclient.RoleUser:
		return userStyle.Render("you")
	case chatclient.RoleAssistant:
		return assistantStyle.Render("assistant")
	default:
		return dimStyle.Render(string(r))
	}
}

func printMessage(w io.Writer, m chatclient.Message) {
	ts := ""
	if !m.Timestamp.IsZero() {
		ts = dimStyle.Render(m.Timestamp.Local().Format("2006-01-02 15:04"))
	}
	_, _ = fmt.Fprintf(w, "%s %s\n%s\n\n", roleLabel(m.Role), ts, m.Content)
}

// renderMarkdown renders text with glamour; it falls back to the raw text when
// rendering fails.
func renderMarkdown(text string) string {
	out, err := glamour.Render(text, "dark")
	if err != nil {
		return text
	}
	return out
}

func printStats(w io.Writer, content string) error {
	enc, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		return errors.Wrap(err, "token counter")
	}
	tokens := enc.Encode(content, nil, nil)
	_, _ = fmt.Fprintf(w, "%s tokens %d, lines %d, %d bytes\n",
		dimStyle.Render("stats:"), len(tokens), strings.Count(content, "\n")+1, len(content))
	return nil
}

func copyToClipboard(content string) error {
	if err := clipboard.WriteAll(content); err != nil {
		return errors.Wrap(err, "copy to clipboard")
	}
	return nil
}

// deltaPrinter writes streamed text as it arrives. It runs inside the
// coordinator's sink so it only buffers and writes.
type deltaPrinter struct {
	mu      sync.Mutex
	w       io.Writer
	enabled bool
	started bool
}

var _ chatclient.EventSink = (*deltaPrinter)(nil)

func (p *deltaPrinter) Publish(n chatclient.Notification) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.enabled {
		return
	}
	switch n.Kind {
	case chatclient.NotifyDelta:
		if !p.started {
			_, _ = fmt.Fprintf(p.w, "%s\n", roleLabel(chatclient.RoleAssistant))
			p.started = true
		}
		_, _ = io.WriteString(p.w, n.Text)
	case chatclient.NotifyState:
		if n.State.IsTerminal() && p.started {
			_, _ = io.WriteString(p.w, "\n")
		}
	case chatclient.NotifySession, chatclient.NotifyError:
	}
}

// reset prepares for the next exchange.
func (p *deltaPrinter) reset(enabled bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.enabled = enabled
	p.started = false
}

func (p *deltaPrinter) printedAny() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.started
}
