package engine

import (
	"crypto/tls"
	"time"

	"github.com/golang-io/mqttcore/packet"
)

// Will describes a Last Will and Testament, per spec.md §6's configuration
// table.
type Will struct {
	Topic      string
	Payload    []byte
	QoS        uint8
	Retain     bool
	Properties *packet.WillProperties
}

// Config is every engine.New-recognized option; the client package's
// functional options populate one of these rather than talking to the
// engine field-by-field.
type Config struct {
	Version  byte // packet.VERSION311 or packet.VERSION500
	ClientID string

	KeepAlive     time.Duration
	ConnectTimeout time.Duration
	PingTimeout   time.Duration // default: KeepAlive/2

	CleanStart bool

	Username string
	Password string
	Will     *Will

	ReceiveMaximum    uint16 // v5, 0 = use protocol default (65535)
	MaxPacketSize     uint32 // v5, 0 = no limit advertised
	TopicAliasMaximum uint16 // v5, inbound alias ceiling we advertise
	SessionExpiry     uint32 // v5, seconds
	UserProperties    map[string][]string

	// AuthMethod/AuthData seed a v5 extended authentication exchange; see
	// AuthWorkflow for the iteration callback.
	AuthMethod string
	AuthData   []byte
	AuthWorkflow AuthWorkflow

	TLSConfig *tls.Config
	WSPath    string // WebSocket upgrade path, default "/mqtt"

	MaxReconnectAttempts int

	// DrainTimeout bounds how long a graceful Disconnect waits for
	// outstanding inflight acknowledgements before sending DISCONNECT and
	// closing anyway. 0 = use the default.
	DrainTimeout time.Duration
}

func (c *Config) pingTimeout() time.Duration {
	if c.PingTimeout > 0 {
		return c.PingTimeout
	}
	return c.KeepAlive / 2
}

func (c *Config) connectTimeout() time.Duration {
	if c.ConnectTimeout > 0 {
		return c.ConnectTimeout
	}
	return 10 * time.Second
}

func (c *Config) receiveMaximum() uint16 {
	if c.ReceiveMaximum == 0 {
		return 65535
	}
	return c.ReceiveMaximum
}

func (c *Config) drainTimeout() time.Duration {
	if c.DrainTimeout > 0 {
		return c.DrainTimeout
	}
	return 5 * time.Second
}
