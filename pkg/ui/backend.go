// Package ui is a bubbletea front end for chatclient. The model renders the
// client's message log; notifications from the coordinator only tell it when to
// redraw.
package ui

import (
	"context"
	"sync"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/go-go-golems/streamchat/pkg/chatclient"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// ExchangeFinishedMsg is sent when a send started by Backend returns.
type ExchangeFinishedMsg struct {
	Result *chatclient.SendResult
	Err    error
}

// NotificationMsg carries one coordinator notification into the program.
type NotificationMsg struct {
	chatclient.Notification
}

// Backend runs exchanges for the model, one at a time.
type Backend struct {
	ctx    context.Context
	client *chatclient.Client

	mu      sync.Mutex
	running bool
}

func NewBackend(ctx context.Context, client *chatclient.Client) *Backend {
	return &Backend{ctx: ctx, client: client}
}

// Start returns a command that streams the reply to text. It fails fast when
// an exchange is already running.
func (b *Backend) Start(text string) (tea.Cmd, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.running {
		return nil, errors.Wrap(chatclient.ErrConcurrentStream, "ui")
	}
	b.running = true

	return func() tea.Msg {
		res, err := b.client.Send(b.ctx, text, chatclient.SendOptions{})
		b.mu.Lock()
		b.running = false
		b.mu.Unlock()
		if err != nil {
			log.Debug().Err(err).Str("component", "ui").Msg("exchange ended with error")
		}
		return ExchangeFinishedMsg{Result: res, Err: err}
	}, nil
}

func (b *Backend) IsRunning() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.running
}

// Interrupt cancels the running exchange, if any. The coordinator may be blocked
// delivering a notification to the program loop that calls this, so the cancel
// runs on its own goroutine.
func (b *Backend) Interrupt() {
	go b.client.Cancel()
}

// ForwardFunc returns an events.Follow callback that hands every notification
// to p.
func ForwardFunc(p *tea.Program) func(chatclient.Notification) error {
	return func(n chatclient.Notification) error {
		p.Send(NotificationMsg{Notification: n})
		return nil
	}
}
