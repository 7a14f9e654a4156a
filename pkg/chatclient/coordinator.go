package chatclient

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-go-golems/streamchat/pkg/transport"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const (
	DefaultModel = "deepseek-chat"
	DefaultMode  = "Ask"

	titleRunes = 20
)

// ErrEmptyMessage rejects a send with blank content.
var ErrEmptyMessage = errors.New("message is empty")

type SendOptions struct {
	Model string
	Mode  string
}

// SendResult describes how an exchange ended. SessionID is the backend id of the
// exchange's session, if one is known. Send returns the result together with the
// error on failure so the partial reply stays available.
type SendResult struct {
	ExchangeID string
	State      StreamState
	SessionID  string
	Reply      Message
	Reconciled bool
}

// Coordinator drives one exchange at a time through the stream state machine.
// Send blocks on the caller's goroutine; Cancel may be called from any goroutine.
type Coordinator struct {
	transport  Transport
	log        *MessageLog
	selector   *Selector
	registry   *Registry
	codec      Codec
	sink       EventSink
	recorder   ExchangeRecorder
	trustBegin bool
	now        func() time.Time

	mu      sync.Mutex
	state   StreamState
	current *exchange
	// settling covers the gap between the terminal state and the end of
	// reconciliation, when the exchange still owns the selector.
	settling bool
}

type exchange struct {
	id      string
	prompt  string
	opts    SendOptions
	session *Session
	pending bool

	confirmedID string
	state       StreamState
	err         error
	reply       Message

	stream    transport.Stream
	cancel    context.CancelFunc
	startedAt time.Time
	endedAt   time.Time
}

type CoordinatorOption func(*Coordinator)

func WithCoordinatorCodec(codec Codec) CoordinatorOption {
	return func(c *Coordinator) { c.codec = codec }
}

func WithCoordinatorSink(sink EventSink) CoordinatorOption {
	return func(c *Coordinator) { c.sink = sink }
}

func WithCoordinatorRecorder(r ExchangeRecorder) CoordinatorOption {
	return func(c *Coordinator) { c.recorder = r }
}

// WithBeginSessionTrust adopts the id announced at stream start when the
// post-completion registry lookup cannot find it.
func WithBeginSessionTrust(trust bool) CoordinatorOption {
	return func(c *Coordinator) { c.trustBegin = trust }
}

func WithCoordinatorClock(now func() time.Time) CoordinatorOption {
	return func(c *Coordinator) { c.now = now }
}

func NewCoordinator(t Transport, l *MessageLog, sel *Selector, reg *Registry, opts ...CoordinatorOption) *Coordinator {
	c := &Coordinator{
		transport: t,
		log:       l,
		selector:  sel,
		registry:  reg,
		codec:     EnvelopeCodec{},
		now:       time.Now,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *Coordinator) State() StreamState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

type sendRequest struct {
	Message   string  `json:"message"`
	SessionID *string `json:"session_id"`
	Model     string  `json:"model"`
	Mode      string  `json:"mode"`
}

func (ex *exchange) request() sendRequest {
	r := sendRequest{Message: ex.prompt, Model: ex.opts.Model, Mode: ex.opts.Mode}
	if !ex.pending {
		id := ex.session.ID
		r.SessionID = &id
	}
	return r
}

// Send streams a reply for content into the message log. It returns when the
// exchange reaches a terminal state. An explicit Cancel yields a Cancelled result
// and a nil error; a cancelled ctx yields ctx.Err().
func (c *Coordinator) Send(ctx context.Context, content string, opts SendOptions) (*SendResult, error) {
	ex, exCtx, err := c.start(ctx, content, opts)
	if err != nil {
		return nil, err
	}
	defer ex.cancel()

	stream, err := c.transport.OpenStream(exCtx, pathSendStream, ex.request(), transport.WithIdempotencyKey(ex.id))
	if err != nil {
		return c.abort(ctx, ex, err)
	}
	defer func() { _ = stream.Close() }()

	if !c.opened(ex, stream) {
		return c.finish(ctx, ex)
	}

	for {
		frame, err := stream.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				err = ErrStreamDropped
			}
			return c.abort(ctx, ex, err)
		}
		if stop := c.apply(ex, frame); stop {
			break
		}
	}
	_ = stream.Close()
	return c.finish(ctx, ex)
}

// SendSync runs an exchange over the single-shot endpoint. The reply fills the
// placeholder in one step.
func (c *Coordinator) SendSync(ctx context.Context, content string, opts SendOptions) (*SendResult, error) {
	ex, exCtx, err := c.start(ctx, content, opts)
	if err != nil {
		return nil, err
	}
	defer ex.cancel()

	var reply syncReply
	if err := c.transport.Request(exCtx, http.MethodPost, pathSend, ex.request(), nil, &reply, transport.WithIdempotencyKey(ex.id)); err != nil {
		return c.abort(ctx, ex, err)
	}

	c.mu.Lock()
	if c.owns(ex) {
		if reply.SessionID != "" {
			c.confirmLocked(ex, reply.SessionID)
		}
		if err := c.log.MutateLast(reply.Content); err != nil {
			c.endLocked(ex, StateFailed, err)
		} else {
			c.notifyLocked(Notification{Kind: NotifyDelta, ExchangeID: ex.id, State: c.state, Text: reply.Content})
			c.endLocked(ex, StateCompleted, nil)
		}
	}
	c.mu.Unlock()
	return c.finish(ctx, ex)
}

// Cancel aborts the in-flight exchange, if any. No event of that exchange is
// applied to the log once Cancel returns. It is a no-op in a non-active state.
func (c *Coordinator) Cancel() {
	c.mu.Lock()
	ex := c.current
	if ex == nil || !c.owns(ex) {
		c.mu.Unlock()
		return
	}
	c.endLocked(ex, StateCancelled, nil)
	stream, cancel := ex.stream, ex.cancel
	c.mu.Unlock()

	cancel()
	if stream != nil {
		_ = stream.Close()
	}
	log.Debug().Str("component", "coordinator").Str("exchange_id", ex.id).Msg("exchange cancelled")
}

// Reset returns a finished machine to Idle.
func (c *Coordinator) Reset() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state.IsActive() || c.settling {
		return ErrConcurrentStream
	}
	if c.state == StateIdle {
		return nil
	}
	c.state = StateIdle
	c.current = nil
	c.notifyLocked(Notification{Kind: NotifyState, State: StateIdle})
	return nil
}

func (c *Coordinator) start(ctx context.Context, content string, opts SendOptions) (*exchange, context.Context, error) {
	if strings.TrimSpace(content) == "" {
		return nil, nil, ErrEmptyMessage
	}
	if opts.Model == "" {
		opts.Model = DefaultModel
	}
	if opts.Mode == "" {
		opts.Mode = DefaultMode
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state.IsActive() || c.settling {
		return nil, nil, ErrConcurrentStream
	}

	session := c.selector.Active()
	if _, err := c.log.AppendUser(content); err != nil {
		return nil, nil, err
	}
	if _, err := c.log.AppendAssistantPlaceholder(); err != nil {
		return nil, nil, err
	}

	exCtx, cancel := context.WithCancel(ctx)
	ex := &exchange{
		id:        uuid.NewString(),
		prompt:    content,
		opts:      opts,
		session:   session,
		pending:   session.IsPending(),
		cancel:    cancel,
		startedAt: c.now(),
	}
	c.current = ex
	c.settling = true
	c.setStateLocked(ex, StateAwaiting)

	log.Info().
		Str("component", "coordinator").
		Str("exchange_id", ex.id).
		Str("session_id", session.ID).
		Bool("pending", ex.pending).
		Str("model", opts.Model).
		Msg("exchange started")
	return ex, exCtx, nil
}

// opened moves Awaiting to Streaming once response headers are in. It reports
// false if the exchange was cancelled while waiting.
func (c *Coordinator) opened(ex *exchange, stream transport.Stream) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.owns(ex) {
		return false
	}
	ex.stream = stream
	c.setStateLocked(ex, StateStreaming)
	return true
}

// apply decodes and applies one frame. It reports true when the exchange is over.
func (c *Coordinator) apply(ex *exchange, frame transport.Frame) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.owns(ex) {
		return true
	}
	if len(bytes.TrimSpace(frame.Data)) == 0 {
		return false
	}

	ev, err := c.codec.Decode(frame.Data)
	if err != nil {
		c.endLocked(ex, StateFailed, err)
		return true
	}

	switch ev.Type {
	case EventBegin:
		if ev.SessionID != "" {
			c.confirmLocked(ex, ev.SessionID)
		}
		if c.state == StateAwaiting {
			c.setStateLocked(ex, StateStreaming)
		}
	case EventDelta:
		if err := c.log.MutateLast(ev.Text); err != nil {
			c.endLocked(ex, StateFailed, err)
			return true
		}
		c.notifyLocked(Notification{Kind: NotifyDelta, ExchangeID: ex.id, State: c.state, Text: ev.Text})
	case EventDone:
		if ev.SessionID != "" {
			c.confirmLocked(ex, ev.SessionID)
		}
		c.endLocked(ex, StateCompleted, nil)
		return true
	case EventError:
		c.endLocked(ex, StateFailed, &RemoteError{Message: ev.Error})
		return true
	}
	return false
}

// abort ends the exchange after a transport error. Auth expiry and caller
// cancellation count as cancellation; everything else fails the exchange.
func (c *Coordinator) abort(ctx context.Context, ex *exchange, cause error) (*SendResult, error) {
	c.mu.Lock()
	if c.owns(ex) {
		switch {
		case ctx.Err() != nil:
			c.endLocked(ex, StateCancelled, ctx.Err())
		case transport.IsAuthExpired(cause):
			c.endLocked(ex, StateCancelled, cause)
		default:
			c.endLocked(ex, StateFailed, cause)
		}
	}
	c.mu.Unlock()
	return c.finish(ctx, ex)
}

// finish reconciles a completed pending session, records the exchange and
// builds the caller's result. No new exchange starts until it returns.
func (c *Coordinator) finish(ctx context.Context, ex *exchange) (*SendResult, error) {
	defer func() {
		c.mu.Lock()
		c.settling = false
		c.mu.Unlock()
	}()

	c.mu.Lock()
	state, exErr, confirmed, reply := ex.state, ex.err, ex.confirmedID, ex.reply
	c.mu.Unlock()

	res := &SendResult{
		ExchangeID: ex.id,
		State:      state,
		SessionID:  confirmed,
		Reply:      reply,
	}
	if res.SessionID == "" && !ex.pending {
		res.SessionID = ex.session.ID
	}
	if state == StateCompleted && ex.pending {
		res.Reconciled = c.reconcile(ctx, ex, confirmed)
	}

	c.record(ctx, ex, res, exErr)

	l := log.Info()
	if exErr != nil && state == StateFailed {
		l = log.Warn().Err(exErr)
	}
	l.Str("component", "coordinator").
		Str("exchange_id", ex.id).
		Str("state", state.String()).
		Str("session_id", res.SessionID).
		Dur("elapsed", ex.endedAt.Sub(ex.startedAt)).
		Msg("exchange finished")
	return res, exErr
}

// reconcile resolves the confirmed id against a fresh session list and adopts
// the match if the pending session is still active.
func (c *Coordinator) reconcile(ctx context.Context, ex *exchange, confirmed string) bool {
	if confirmed == "" {
		log.Warn().Str("component", "coordinator").Str("exchange_id", ex.id).Msg("completed without a session id, staying pending")
		return false
	}

	var found *Session
	if _, err := c.registry.List(ctx); err != nil {
		log.Warn().Err(err).Str("component", "coordinator").Msg("session refresh after completion failed")
	} else if s, ok := c.registry.FindByID(confirmed); ok {
		found = s
	}
	if found == nil && c.trustBegin {
		found = &Session{ID: confirmed, Title: TitleFor(ex.prompt), Model: ex.opts.Model, CreatedAt: NewTimestamp(ex.startedAt)}
	}
	if found == nil {
		log.Info().Str("component", "coordinator").Str("session_id", confirmed).Msg("confirmed session not listed, staying pending")
		return false
	}
	if !c.selector.adopt(ex.session, found) {
		return false
	}

	c.mu.Lock()
	c.notifyLocked(Notification{Kind: NotifySession, ExchangeID: ex.id, State: c.state, SessionID: found.ID})
	c.mu.Unlock()
	return true
}

func (c *Coordinator) record(ctx context.Context, ex *exchange, res *SendResult, exErr error) {
	if c.recorder == nil {
		return
	}
	rec := ExchangeRecord{
		ExchangeID: ex.id,
		SessionID:  res.SessionID,
		State:      res.State,
		Prompt:     ex.prompt,
		Reply:      res.Reply.Content,
		Model:      ex.opts.Model,
		Mode:       ex.opts.Mode,
		StartedAt:  ex.startedAt,
		FinishedAt: ex.endedAt,
	}
	if exErr != nil {
		rec.Error = exErr.Error()
	}
	if err := c.recorder.RecordExchange(context.WithoutCancel(ctx), rec); err != nil {
		log.Warn().Err(err).Str("component", "coordinator").Str("exchange_id", ex.id).Msg("failed to record exchange")
	}
}

// owns reports whether ex is the current exchange and still active. Callers hold mu.
func (c *Coordinator) owns(ex *exchange) bool {
	return c.current == ex && c.state.IsActive()
}

func (c *Coordinator) confirmLocked(ex *exchange, id string) {
	switch {
	case ex.confirmedID == "":
		ex.confirmedID = id
		c.notifyLocked(Notification{Kind: NotifySession, ExchangeID: ex.id, State: c.state, SessionID: id})
	case ex.confirmedID != id:
		log.Warn().
			Str("component", "coordinator").
			Str("exchange_id", ex.id).
			Str("confirmed", ex.confirmedID).
			Str("announced", id).
			Msg("backend announced a second session id, keeping the first")
	}
}

func (c *Coordinator) setStateLocked(ex *exchange, s StreamState) {
	c.state = s
	ex.state = s
	c.notifyLocked(Notification{Kind: NotifyState, ExchangeID: ex.id, State: s})
}

func (c *Coordinator) endLocked(ex *exchange, s StreamState, err error) {
	ex.err = err
	ex.endedAt = c.now()
	c.log.Seal()
	ex.reply = c.log.Last()
	if err != nil && s == StateFailed {
		c.notifyLocked(Notification{Kind: NotifyError, ExchangeID: ex.id, State: s, Error: err.Error()})
	}
	c.setStateLocked(ex, s)
}

func (c *Coordinator) notifyLocked(n Notification) {
	if c.sink == nil {
		return
	}
	if n.At.IsZero() {
		n.At = c.now()
	}
	c.sink.Publish(n)
}

// syncReply accepts the message either as a Message object or as plain text.
type syncReply struct {
	Content   string
	SessionID string
}

func (r *syncReply) UnmarshalJSON(b []byte) error {
	var raw struct {
		Message   json.RawMessage `json:"message"`
		SessionID string          `json:"session_id"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return errors.Wrap(err, "decode send reply")
	}
	r.SessionID = raw.SessionID
	msg := bytes.TrimSpace(raw.Message)
	if len(msg) == 0 || bytes.Equal(msg, []byte("null")) {
		return nil
	}
	if msg[0] == '"' {
		return errors.Wrap(json.Unmarshal(msg, &r.Content), "decode send reply message")
	}
	var m Message
	if err := json.Unmarshal(msg, &m); err != nil {
		return errors.Wrap(err, "decode send reply message")
	}
	r.Content = m.Content
	return nil
}

// TitleFor mirrors how the backend titles a new session: the opening message,
// cut to 20 runes plus "..." when longer.
func TitleFor(prompt string) string {
	r := []rune(prompt)
	if len(r) <= titleRunes {
		return prompt
	}
	return string(r[:titleRunes]) + "..."
}
