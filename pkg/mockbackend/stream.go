package mockbackend

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-go-golems/streamchat/pkg/chatclient"
	"github.com/rs/zerolog/log"
)

// handleSendStream answers with server-sent events: a begin event carrying the
// session id, one delta per word and a done event.
func (s *Server) handleSendStream(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeChatRequest(w, r)
	if !ok {
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}
	sess, err := s.openExchange(currentUser(r), req)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	enc := s.encoder()
	send := func(ev chatclient.Event) bool {
		if err := writeSSE(w, enc(ev)); err != nil {
			log.Debug().Err(err).Str("component", "mockbackend").Msg("stream write failed")
			return false
		}
		flusher.Flush()
		return true
	}

	if !send(chatclient.Event{Type: chatclient.EventBegin, SessionID: sess.ID}) {
		return
	}

	reply, err := s.responder(r.Context(), req)
	if err != nil {
		send(chatclient.Event{Type: chatclient.EventError, Error: err.Error()})
		return
	}
	if reply == "" {
		reply = noResponse
	}

	var sent strings.Builder
	for _, chunk := range chunks(reply) {
		if s.chunkDelay > 0 {
			select {
			case <-r.Context().Done():
				s.closeExchange(sess, sent.String())
				return
			case <-time.After(s.chunkDelay):
			}
		}
		if !send(chatclient.Event{Type: chatclient.EventDelta, Text: chunk}) {
			s.closeExchange(sess, sent.String())
			return
		}
		sent.WriteString(chunk)
	}
	s.closeExchange(sess, reply)
	send(chatclient.Event{Type: chatclient.EventDone, SessionID: sess.ID})
}

// encoder renders an event in the configured wire format.
func (s *Server) encoder() func(chatclient.Event) any {
	if s.wireFormat != chatclient.WireFormatLegacy {
		return func(ev chatclient.Event) any { return ev }
	}
	return func(ev chatclient.Event) any {
		switch ev.Type {
		case chatclient.EventBegin:
			return map[string]string{"delta": chatclient.DefaultBeginSentinel, "session_id": ev.SessionID}
		case chatclient.EventDone:
			return map[string]string{"delta": chatclient.DefaultEndSentinel}
		case chatclient.EventError:
			return map[string]string{"error": ev.Error}
		default:
			return map[string]string{"delta": ev.Text}
		}
	}
}

func writeSSE(w io.Writer, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "data: %s\n\n", data)
	return err
}

// chunks splits text after each space so that concatenating the parts gives text back.
func chunks(text string) []string {
	parts := strings.SplitAfter(text, " ")
	out := parts[:0]
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
