package chatclient

import (
	"context"
	"net/url"

	"github.com/go-go-golems/streamchat/pkg/transport"
)

// Transport is the subset of *transport.Client the chat core needs.
type Transport interface {
	Request(ctx context.Context, method, path string, body any, query url.Values, out any, opts ...transport.RequestOption) error
	OpenStream(ctx context.Context, path string, body any, opts ...transport.RequestOption) (transport.Stream, error)
}

var _ Transport = (*transport.Client)(nil)

const (
	pathSessions   = "/chat/sessions"
	pathSend       = "/chat/send"
	pathSendStream = "/chat/sendstream"
)

func sessionPath(id string) string { return pathSessions + "/" + id }

func sessionMessagesPath(id string) string { return sessionPath(id) + "/messages" }
