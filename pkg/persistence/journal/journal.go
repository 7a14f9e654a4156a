// Package journal keeps a local record of finished exchanges.
package journal

import (
	"context"

	"github.com/go-go-golems/streamchat/pkg/chatclient"
)

// Query describes filters for listing journal entries. Results are newest first.
type Query struct {
	SessionID string
	State     string
	Limit     int
}

const defaultLimit = 50

// Store persists exchange records.
type Store interface {
	chatclient.ExchangeRecorder
	List(ctx context.Context, q Query) ([]chatclient.ExchangeRecord, error)
	Close() error
}
