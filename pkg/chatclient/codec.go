package chatclient

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/pkg/errors"
)

type EventType string

const (
	EventBegin EventType = "begin"
	EventDelta EventType = "delta"
	EventDone  EventType = "done"
	EventError EventType = "error"
)

// Event is one decoded stream payload.
type Event struct {
	Type      EventType `json:"type"`
	SessionID string    `json:"session_id,omitempty"`
	Text      string    `json:"text,omitempty"`
	Error     string    `json:"error,omitempty"`
}

// Codec turns the data of one server-sent event into an Event.
type Codec interface {
	Name() string
	Decode(data []byte) (Event, error)
}

const (
	WireFormatEnvelope = "envelope"
	WireFormatLegacy   = "legacy"
)

// CodecFor resolves a configured wire format name.
func CodecFor(name string) (Codec, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", WireFormatEnvelope:
		return EnvelopeCodec{}, nil
	case WireFormatLegacy:
		return NewLegacyCodec(), nil
	default:
		return nil, errors.Errorf("unknown wire format %q (want %s or %s)", name, WireFormatEnvelope, WireFormatLegacy)
	}
}

// EnvelopeCodec decodes the tagged form {"type":"delta","text":"..."}.
type EnvelopeCodec struct{}

func (EnvelopeCodec) Name() string { return WireFormatEnvelope }

func (EnvelopeCodec) Decode(data []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return Event{}, &MalformedEventError{Payload: string(data), Err: err}
	}
	switch ev.Type {
	case EventBegin, EventDelta, EventDone:
	case EventError:
		if ev.Error == "" {
			ev.Error = ev.Text
		}
	case "":
		return Event{}, &MalformedEventError{Payload: string(data), Err: errors.New("missing type")}
	default:
		return Event{}, &MalformedEventError{Payload: string(data), Err: errors.Errorf("unknown type %q", ev.Type)}
	}
	return ev, nil
}

const (
	DefaultBeginSentinel = "[BEGIN]"
	DefaultEndSentinel   = "[DONE]"
)

// LegacyCodec decodes {"delta":"..."} payloads where reserved delta values mark
// the start (with session_id) and the end of the stream.
type LegacyCodec struct {
	BeginSentinel string
	EndSentinel   string
}

func NewLegacyCodec() LegacyCodec {
	return LegacyCodec{BeginSentinel: DefaultBeginSentinel, EndSentinel: DefaultEndSentinel}
}

func (LegacyCodec) Name() string { return WireFormatLegacy }

type legacyPayload struct {
	Delta     *string `json:"delta"`
	SessionID string  `json:"session_id"`
	Error     string  `json:"error"`
}

func (c LegacyCodec) Decode(data []byte) (Event, error) {
	trimmed := bytes.TrimSpace(data)
	// some servers send the end sentinel as a bare data line
	if c.EndSentinel != "" && string(trimmed) == c.EndSentinel {
		return Event{Type: EventDone}, nil
	}
	var p legacyPayload
	if err := json.Unmarshal(trimmed, &p); err != nil {
		return Event{}, &MalformedEventError{Payload: string(data), Err: err}
	}
	if p.Delta == nil {
		if p.Error != "" {
			return Event{Type: EventError, Error: p.Error}, nil
		}
		return Event{}, &MalformedEventError{Payload: string(data), Err: errors.New("missing delta")}
	}
	switch *p.Delta {
	case c.BeginSentinel:
		return Event{Type: EventBegin, SessionID: p.SessionID}, nil
	case c.EndSentinel:
		return Event{Type: EventDone, SessionID: p.SessionID}, nil
	default:
		return Event{Type: EventDelta, Text: *p.Delta}, nil
	}
}
