package engine

import (
	"errors"
	"fmt"

	"github.com/golang-io/mqttcore/packet"
)

// ProtocolError is returned when the peer (or this client) violates the
// wire protocol; it always carries the ReasonCode the connection was
// closed with.
type ProtocolError struct {
	Reason packet.ReasonCode
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("mqttcore: protocol error: %s", e.Reason.Error())
}

func (e *ProtocolError) Unwrap() error { return e.Reason }

// ConnectError is returned when the CONNECT handshake itself fails, either
// because the server rejected it (Reason populated) or the transport
// failed before a CONNACK ever arrived (Reason zero-value, Cause set).
type ConnectError struct {
	Reason packet.ReasonCode
	Cause  error
}

func (e *ConnectError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("mqttcore: connect failed: %v", e.Cause)
	}
	return fmt.Sprintf("mqttcore: connect rejected: %s", e.Reason.Error())
}

func (e *ConnectError) Unwrap() error {
	if e.Cause != nil {
		return e.Cause
	}
	return e.Reason
}

// Timeout is returned when an operation's deadline (the connect timeout or
// the ping timeout) elapses before completion.
type Timeout struct {
	Op string
}

func (e *Timeout) Error() string { return fmt.Sprintf("mqttcore: %s timed out", e.Op) }

func (e *Timeout) Timeout() bool { return true }

// SessionReset is returned to every pending waiter when a reconnect comes
// back with Session Present = 0: the server discarded the prior session, so
// no in-flight exchange can be resumed and the caller must redo it.
type SessionReset struct{}

func (e *SessionReset) Error() string {
	return "mqttcore: session reset by server, in-flight exchange must be redone"
}

// NoIdentifierAvailable is returned when all 65535 packet identifiers are
// in flight and the client must back off before issuing another QoS 1/2
// operation.
type NoIdentifierAvailable struct{}

func (e *NoIdentifierAvailable) Error() string {
	return "mqttcore: no packet identifier available"
}

// PacketTooLarge is returned when a packet would exceed the negotiated or
// configured maximum packet size.
type PacketTooLarge struct {
	Size, Max uint32
}

func (e *PacketTooLarge) Error() string {
	return fmt.Sprintf("mqttcore: packet size %d exceeds maximum %d", e.Size, e.Max)
}

// InvalidTopic is returned when a PUBLISH topic name or a SUBSCRIBE/
// UNSUBSCRIBE topic filter fails component B's validation rules, rejected
// synchronously before anything is sent on the wire.
type InvalidTopic struct {
	Topic string
}

func (e *InvalidTopic) Error() string {
	return fmt.Sprintf("mqttcore: invalid topic %q", e.Topic)
}

// ClientShuttingDown is returned to new operations submitted after
// Disconnect has been called but before the drain timeout completes.
type ClientShuttingDown struct{}

func (e *ClientShuttingDown) Error() string { return "mqttcore: client is shutting down" }

// ClientClosed is returned to any operation submitted after the client has
// fully closed.
type ClientClosed struct{}

func (e *ClientClosed) Error() string { return "mqttcore: client is closed" }

// TransportError wraps a failure from the underlying transport.Stream
// (dial, read, write, or close).
type TransportError struct {
	Op    string
	Cause error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("mqttcore: transport %s: %v", e.Op, e.Cause)
}

func (e *TransportError) Unwrap() error { return e.Cause }

// Is* helpers let callers branch on the taxonomy without importing engine's
// concrete types directly in hot paths; kept thin, errors.As already does
// the real work.
func IsProtocolError(err error) bool {
	var e *ProtocolError
	return errors.As(err, &e)
}

func IsTimeout(err error) bool {
	var e *Timeout
	return errors.As(err, &e)
}

func IsSessionReset(err error) bool {
	var e *SessionReset
	return errors.As(err, &e)
}
