package transport

import (
	"bufio"
	"context"
	"io"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const maxFrameSize = 1 << 20

// Frame is one dispatched server-sent event.
type Frame struct {
	Event string
	ID    string
	Data  []byte
}

// Stream is a handle on an open event stream. Next blocks until the next frame is
// dispatched; it returns io.EOF when the server ends the stream. Close releases the
// connection and unblocks a pending Next; it is safe to call more than once.
type Stream interface {
	Next() (Frame, error)
	Close() error
}

type sseStream struct {
	path    string
	body    io.ReadCloser
	scanner *bufio.Scanner
	cancel  context.CancelFunc

	mu     sync.Mutex
	closed bool
	once   sync.Once
}

var _ Stream = (*sseStream)(nil)

func newSSEStream(path string, body io.ReadCloser, cancel context.CancelFunc) *sseStream {
	sc := bufio.NewScanner(body)
	sc.Buffer(make([]byte, 0, 64*1024), maxFrameSize)
	return &sseStream{
		path:    path,
		body:    body,
		scanner: sc,
		cancel:  cancel,
	}
}

func (s *sseStream) Next() (Frame, error) {
	var (
		data    []string
		hasData bool
		f       Frame
	)
	for s.scanner.Scan() {
		line := strings.TrimSuffix(s.scanner.Text(), "\r")
		if line == "" {
			if !hasData {
				// blank line without data: reset event name, keep reading
				f = Frame{}
				continue
			}
			f.Data = []byte(strings.Join(data, "\n"))
			return f, nil
		}
		if strings.HasPrefix(line, ":") {
			continue
		}
		field, value := line, ""
		if i := strings.IndexByte(line, ':'); i >= 0 {
			field = line[:i]
			value = strings.TrimPrefix(line[i+1:], " ")
		}
		switch field {
		case "data":
			data = append(data, value)
			hasData = true
		case "event":
			f.Event = value
		case "id":
			f.ID = value
		case "retry":
		default:
			log.Trace().Str("component", "transport").Str("field", field).Msg("sse: ignoring unknown field")
		}
	}

	if s.isClosed() {
		return Frame{}, ErrStreamClosed
	}
	if err := s.scanner.Err(); err != nil {
		return Frame{}, &Error{Op: "stream", Method: "POST", Path: s.path, Err: err}
	}
	if hasData {
		log.Debug().Str("component", "transport").Str("path", s.path).Msg("sse: discarding incomplete event at end of stream")
	}
	return Frame{}, io.EOF
}

func (s *sseStream) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *sseStream) Close() error {
	var err error
	s.once.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()
		if s.cancel != nil {
			s.cancel()
		}
		err = s.body.Close()
	})
	return errors.Wrap(err, "close stream body")
}
