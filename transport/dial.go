package transport

import (
	"context"
	"crypto/tls"
	"fmt"
)

// Dial picks a Dialer by URL scheme and dials addr, mirroring the scheme
// switch the teacher's Client.dial used (mqtt/tcp, mqtts/tls, ws/wss),
// generalized into standalone per-transport Dialer types.
func Dial(ctx context.Context, scheme, addr string, tlsConfig *tls.Config, wsPath string) (Stream, error) {
	switch scheme {
	case "mqtt", "tcp":
		return (TCPDialer{}).Dial(ctx, addr)
	case "mqtts", "tls":
		return (TLSDialer{TLSConfig: tlsConfig}).Dial(ctx, addr)
	case "unix":
		return (UnixDialer{}).Dial(ctx, addr)
	case "ws":
		return (WebSocketDialer{Path: wsPath}).Dial(ctx, addr)
	case "wss":
		return (WebSocketDialer{Path: wsPath, TLSConfig: tlsConfig}).Dial(ctx, addr)
	default:
		return nil, fmt.Errorf("transport: unsupported scheme %q", scheme)
	}
}
