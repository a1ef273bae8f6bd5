package transport

import (
	"context"
	"crypto/tls"
	"net"
)

// TCPDialer dials a plain TCP connection, used for the "tcp"/"mqtt" URL
// schemes.
type TCPDialer struct {
	Dialer net.Dialer
}

func (d TCPDialer) Dial(ctx context.Context, addr string) (Stream, error) {
	conn, err := d.Dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	return &netConnStream{Conn: conn}, nil
}

// TLSDialer dials a TLS-wrapped TCP connection, used for the "tls"/"mqtts"
// URL schemes.
type TLSDialer struct {
	Dialer    net.Dialer
	TLSConfig *tls.Config
}

func (d TLSDialer) Dial(ctx context.Context, addr string) (Stream, error) {
	conn, err := (&tls.Dialer{NetDialer: &d.Dialer, Config: d.TLSConfig}).DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	return &netConnStream{Conn: conn}, nil
}

// UnixDialer dials a Unix domain socket, for local brokers reached without
// a network stack.
type UnixDialer struct {
	Dialer net.Dialer
}

func (d UnixDialer) Dial(ctx context.Context, addr string) (Stream, error) {
	conn, err := d.Dialer.DialContext(ctx, "unix", addr)
	if err != nil {
		return nil, err
	}
	return &netConnStream{Conn: conn}, nil
}
