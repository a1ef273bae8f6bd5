package transport

import (
	"net"
)

// Pipe returns two connected in-memory Streams, for engine tests that need
// a real duplex byte stream without a socket. Backed by net.Pipe, the same
// approach the teacher's integration tests use for client/server round
// trips.
func Pipe() (client, server Stream) {
	c, s := net.Pipe()
	return &netConnStream{Conn: c}, &netConnStream{Conn: s}
}
