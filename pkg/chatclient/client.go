// Package chatclient is the client-side core of a streaming chat: the session
// registry, the message log of the active session, the session selector and the
// coordinator that streams one exchange at a time into the log.
package chatclient

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// LogoutFunc clears stored credentials.
type LogoutFunc func() error

// Client wires the four components together around one transport.
type Client struct {
	Registry    *Registry
	Log         *MessageLog
	Selector    *Selector
	Coordinator *Coordinator

	defaults SendOptions
	logout   LogoutFunc
}

type options struct {
	welcome  string
	defaults SendOptions
	logout   LogoutFunc
	now      func() time.Time
	coord    []CoordinatorOption
}

type Option func(*options)

func WithCodec(codec Codec) Option {
	return func(o *options) { o.coord = append(o.coord, WithCoordinatorCodec(codec)) }
}

func WithEventSink(sink EventSink) Option {
	return func(o *options) { o.coord = append(o.coord, WithCoordinatorSink(sink)) }
}

func WithRecorder(r ExchangeRecorder) Option {
	return func(o *options) { o.coord = append(o.coord, WithCoordinatorRecorder(r)) }
}

func WithTrustBeginSessionID(trust bool) Option {
	return func(o *options) { o.coord = append(o.coord, WithBeginSessionTrust(trust)) }
}

func WithWelcomeMessage(text string) Option {
	return func(o *options) { o.welcome = text }
}

// WithDefaults sets the model and mode used when a send leaves them empty.
func WithDefaults(model, mode string) Option {
	return func(o *options) { o.defaults = SendOptions{Model: model, Mode: mode} }
}

func WithLogout(fn LogoutFunc) Option {
	return func(o *options) { o.logout = fn }
}

func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

func New(t Transport, opts ...Option) *Client {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}

	l := NewMessageLog(o.welcome, WithLogClock(o.now))

	reg := NewRegistry(t)
	sel := NewSelector(t, l)
	coord := NewCoordinator(t, l, sel, reg, append([]CoordinatorOption{WithCoordinatorClock(o.now)}, o.coord...)...)

	c := &Client{
		Registry:    reg,
		Log:         l,
		Selector:    sel,
		Coordinator: coord,
		defaults:    o.defaults,
		logout:      o.logout,
	}
	reg.OnRemoved(c.sessionRemoved)
	return c
}

// Init starts on a fresh pending session and loads the session list.
func (c *Client) Init(ctx context.Context) error {
	if err := c.NewSession(); err != nil {
		return err
	}
	if _, err := c.Registry.List(ctx); err != nil {
		return errors.Wrap(err, "init")
	}
	return nil
}

// NewSession abandons any in-flight exchange and starts a pending session.
func (c *Client) NewSession() error {
	c.Coordinator.Cancel()
	return c.Selector.CreateFresh()
}

// SelectSession cancels any in-flight exchange and switches to the session with id.
func (c *Client) SelectSession(ctx context.Context, id string) error {
	s, ok := c.Registry.FindByID(id)
	if !ok {
		return errors.Errorf("unknown session %q", id)
	}
	c.Coordinator.Cancel()
	return c.Selector.Select(ctx, s)
}

func (c *Client) DeleteSession(ctx context.Context, id string) error {
	return c.Registry.Remove(ctx, id)
}

func (c *Client) sessionRemoved(id string) {
	if c.Selector.Active().ID != id {
		return
	}
	log.Info().Str("component", "chatclient").Str("session_id", id).Msg("active session deleted, starting a new one")
	if err := c.NewSession(); err != nil {
		log.Error().Err(err).Str("component", "chatclient").Msg("failed to reset after deleting active session")
	}
}

func (c *Client) Send(ctx context.Context, content string, opts SendOptions) (*SendResult, error) {
	return c.Coordinator.Send(ctx, content, c.withDefaults(opts))
}

func (c *Client) SendSync(ctx context.Context, content string, opts SendOptions) (*SendResult, error) {
	return c.Coordinator.SendSync(ctx, content, c.withDefaults(opts))
}

func (c *Client) Cancel() { c.Coordinator.Cancel() }

// Logout cancels any exchange, drops the stored credentials and starts over on a
// pending session.
func (c *Client) Logout() error {
	c.Coordinator.Cancel()
	if c.logout != nil {
		if err := c.logout(); err != nil {
			return errors.Wrap(err, "logout")
		}
	}
	return c.Selector.CreateFresh()
}

func (c *Client) withDefaults(opts SendOptions) SendOptions {
	if opts.Model == "" {
		opts.Model = c.defaults.Model
	}
	if opts.Mode == "" {
		opts.Mode = c.defaults.Mode
	}
	return opts
}
