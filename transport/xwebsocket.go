package transport

import (
	"context"
	"crypto/tls"
	"net/url"
	"time"

	"golang.org/x/net/websocket"
)

// LegacyWebSocketDialer dials "ws"/"wss" using golang.org/x/net/websocket,
// the way the teacher's Client.dial did it. WebSocketDialer (gorilla) is
// preferred for new code; this is kept for parity with clients that expect
// the x/net/websocket Origin-header handshake the teacher used.
type LegacyWebSocketDialer struct {
	Path      string
	TLSConfig *tls.Config
}

func (d LegacyWebSocketDialer) Dial(ctx context.Context, addr string) (Stream, error) {
	path := d.Path
	if path == "" {
		path = "/mqtt"
	}
	scheme, originScheme := "ws", "http"
	if d.TLSConfig != nil {
		scheme, originScheme = "wss", "https"
	}
	loc := &url.URL{Scheme: scheme, Host: addr, Path: path}
	origin := &url.URL{Scheme: originScheme, Host: addr}

	cfg, err := websocket.NewConfig(loc.String(), origin.String())
	if err != nil {
		return nil, err
	}
	cfg.Protocol = []string{"mqtt"}
	if d.TLSConfig != nil {
		cfg.TlsConfig = d.TLSConfig
	}

	ws, err := websocket.DialConfig(cfg)
	if err != nil {
		return nil, err
	}
	ws.PayloadType = websocket.BinaryFrame
	return &xwsStream{Conn: ws}, nil
}

type xwsStream struct {
	*websocket.Conn
}

func (s *xwsStream) RemoteAddr() string {
	if s.Conn.RemoteAddr() == nil {
		return ""
	}
	return s.Conn.RemoteAddr().String()
}

func (s *xwsStream) SetDeadline(t time.Time) error {
	return s.Conn.SetDeadline(t)
}
