package chatclient

import (
	"context"
	"time"
)

type NotificationKind string

const (
	NotifyState   NotificationKind = "state"
	NotifyDelta   NotificationKind = "delta"
	NotifySession NotificationKind = "session"
	NotifyError   NotificationKind = "error"
)

// Notification is what the coordinator tells observers about an exchange.
type Notification struct {
	Kind       NotificationKind `json:"kind"`
	ExchangeID string           `json:"exchange_id,omitempty"`
	State      StreamState      `json:"state"`
	SessionID  string           `json:"session_id,omitempty"`
	Text       string           `json:"text,omitempty"`
	Error      string           `json:"error,omitempty"`
	At         time.Time        `json:"at"`
}

// EventSink receives notifications in order. Publish runs with the coordinator
// lock held; it must not block for long or call back into the coordinator.
type EventSink interface {
	Publish(n Notification)
}

type EventSinkFunc func(n Notification)

func (f EventSinkFunc) Publish(n Notification) { f(n) }

// ExchangeRecord is the summary of one finished exchange.
type ExchangeRecord struct {
	ExchangeID string      `json:"exchange_id"`
	SessionID  string      `json:"session_id,omitempty"`
	State      StreamState `json:"state"`
	Prompt     string      `json:"prompt"`
	Reply      string      `json:"reply"`
	Error      string      `json:"error,omitempty"`
	Model      string      `json:"model,omitempty"`
	Mode       string      `json:"mode,omitempty"`
	StartedAt  time.Time   `json:"started_at"`
	FinishedAt time.Time   `json:"finished_at"`
}

// ExchangeRecorder is called once per exchange after it reaches a terminal state.
type ExchangeRecorder interface {
	RecordExchange(ctx context.Context, rec ExchangeRecord) error
}
