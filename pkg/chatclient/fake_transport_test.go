package chatclient

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"

	"github.com/go-go-golems/streamchat/pkg/transport"
)

type recordedRequest struct {
	Method string
	Path   string
	Body   any
}

// fakeTransport answers the REST surface from in-memory fixtures and hands out
// a scripted stream for the streaming endpoint.
type fakeTransport struct {
	mu       sync.Mutex
	sessions []*Session
	messages map[string][]Message
	listErr  error
	msgErr   error
	delErr   error
	openErr  error
	syncBody string
	stream   *fakeStream
	requests []recordedRequest
	// onOpen runs inside OpenStream before it returns.
	onOpen func()
	// onList runs before a session list is answered, outside the lock.
	onList func()
	// onMessages runs before a message load is answered, outside the lock.
	onMessages func(path string)
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{messages: map[string][]Message{}}
}

func (f *fakeTransport) Request(ctx context.Context, method, path string, body any, _ url.Values, out any, _ ...transport.RequestOption) error {
	if method == http.MethodGet && path == pathSessions {
		f.mu.Lock()
		onList := f.onList
		f.mu.Unlock()
		if onList != nil {
			onList()
		}
	} else if method == http.MethodGet {
		f.mu.Lock()
		onMessages := f.onMessages
		f.mu.Unlock()
		if onMessages != nil {
			onMessages(path)
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, recordedRequest{Method: method, Path: path, Body: body})
	if err := ctx.Err(); err != nil {
		return &transport.Error{Op: "request", Method: method, Path: path, Err: err}
	}

	switch {
	case method == http.MethodGet && path == pathSessions:
		if f.listErr != nil {
			return f.listErr
		}
		return roundTrip(f.sessions, out)
	case method == http.MethodDelete:
		return f.delErr
	case method == http.MethodPost && path == pathSend:
		return json.Unmarshal([]byte(f.syncBody), out)
	case method == http.MethodGet:
		if f.msgErr != nil {
			return f.msgErr
		}
		for id, msgs := range f.messages {
			if path == sessionMessagesPath(id) {
				return roundTrip(msgs, out)
			}
		}
		return &transport.Error{Op: "request", Method: method, Path: path, StatusCode: http.StatusNotFound}
	}
	return fmt.Errorf("unexpected request %s %s", method, path)
}

func (f *fakeTransport) OpenStream(ctx context.Context, path string, body any, _ ...transport.RequestOption) (transport.Stream, error) {
	f.mu.Lock()
	f.requests = append(f.requests, recordedRequest{Method: http.MethodPost, Path: path, Body: body})
	s, openErr, onOpen := f.stream, f.openErr, f.onOpen
	f.mu.Unlock()

	if onOpen != nil {
		onOpen()
	}
	if openErr != nil {
		return nil, openErr
	}
	if err := ctx.Err(); err != nil {
		return nil, &transport.Error{Op: "stream", Method: http.MethodPost, Path: path, Err: err}
	}
	go func() {
		<-ctx.Done()
		_ = s.Close()
	}()
	return s, nil
}

func (f *fakeTransport) lastRequest() recordedRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[len(f.requests)-1]
}

func (f *fakeTransport) requestsTo(method, path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, r := range f.requests {
		if r.Method == method && r.Path == path {
			n++
		}
	}
	return n
}

func roundTrip(in, out any) error {
	b, err := json.Marshal(in)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, out)
}

// fakeStream delivers frames pushed by the test. Closing the frames channel ends
// the stream with io.EOF.
type fakeStream struct {
	frames chan transport.Frame
	errs   chan error
	closed chan struct{}
	once   sync.Once
}

func newFakeStream() *fakeStream {
	return &fakeStream{
		frames: make(chan transport.Frame, 32),
		errs:   make(chan error, 1),
		closed: make(chan struct{}),
	}
}

func (s *fakeStream) push(payload string) {
	s.frames <- transport.Frame{Data: []byte(payload)}
}

func (s *fakeStream) Next() (transport.Frame, error) {
	select {
	case <-s.closed:
		return transport.Frame{}, transport.ErrStreamClosed
	default:
	}
	select {
	case f, ok := <-s.frames:
		if !ok {
			return transport.Frame{}, io.EOF
		}
		return f, nil
	case err := <-s.errs:
		return transport.Frame{}, err
	case <-s.closed:
		return transport.Frame{}, transport.ErrStreamClosed
	}
}

func (s *fakeStream) Close() error {
	s.once.Do(func() { close(s.closed) })
	return nil
}

func (s *fakeStream) isClosed() bool {
	select {
	case <-s.closed:
		return true
	default:
		return false
	}
}

type recorderStub struct {
	mu      sync.Mutex
	records []ExchangeRecord
}

func (r *recorderStub) RecordExchange(_ context.Context, rec ExchangeRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, rec)
	return nil
}

type sinkStub struct {
	mu    sync.Mutex
	notes []Notification
}

func (s *sinkStub) Publish(n Notification) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notes = append(s.notes, n)
}

func (s *sinkStub) states() []StreamState {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []StreamState
	for _, n := range s.notes {
		if n.Kind == NotifyState {
			out = append(out, n.State)
		}
	}
	return out
}
