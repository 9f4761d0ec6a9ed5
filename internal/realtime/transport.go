package realtime

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/dearflow-inc/flora-mobile-sub000/internal/auth"
)

// Close codes the server uses to reject a session after the handshake.
const (
	CloseUnauthorized = 4401
	CloseForbidden    = 4403
)

// Conn is one open realtime connection.
type Conn interface {
	ReadJSON(v any) error
	WriteJSON(v any) error
	Close() error
}

// Transport opens connections. The Manager never dials anything else.
type Transport interface {
	Dial(ctx context.Context, url string, header http.Header) (Conn, error)
}

// WebsocketTransport dials with gorilla/websocket.
type WebsocketTransport struct {
	Dialer *websocket.Dialer
}

func NewWebsocketTransport(handshakeTimeout time.Duration) *WebsocketTransport {
	d := *websocket.DefaultDialer
	if handshakeTimeout > 0 {
		d.HandshakeTimeout = handshakeTimeout
	}
	return &WebsocketTransport{Dialer: &d}
}

func (t *WebsocketTransport) Dial(ctx context.Context, url string, header http.Header) (Conn, error) {
	dialer := t.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}

	conn, resp, err := dialer.DialContext(ctx, url, header)
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return nil, fmt.Errorf("%w: HTTP %d", auth.ErrAuthenticationFailed, resp.StatusCode)
		}
		if strings.Contains(strings.ToLower(err.Error()), "unauthorized") {
			return nil, fmt.Errorf("%w: %v", auth.ErrAuthenticationFailed, err)
		}
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	return conn, nil
}

// isAuthFailure reports whether err means the credentials were rejected,
// either at the handshake or by a close frame afterwards.
func isAuthFailure(err error) bool {
	if errors.Is(err, auth.ErrAuthenticationFailed) {
		return true
	}
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		return ce.Code == CloseUnauthorized || ce.Code == CloseForbidden
	}
	return false
}
