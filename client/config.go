// Package client is the public facade over engine: a functional-option
// Config plus a Client that owns dialing, reconnection, and the blocking
// Publish/Subscribe/Unsubscribe/Disconnect calls a caller actually uses.
// It generalizes the teacher's Options/Option pattern (options.go) from a
// broker-and-client config into a client-only one covering every item in
// spec.md §6's configuration table.
package client

import (
	"crypto/tls"
	"time"

	"github.com/golang-io/mqttcore/engine"
	"github.com/golang-io/mqttcore/packet"
	"github.com/golang-io/requests"
)

// Config is every client.New-recognized option.
type Config struct {
	URL      string // e.g. "mqtt://host:1883", "mqtts://host:8883", "ws://host:8080"
	ClientID string
	Version  byte

	KeepAlive      time.Duration
	ConnectTimeout time.Duration
	PingTimeout    time.Duration

	CleanStart bool
	Username   string
	Password   string
	Will       *engine.Will

	ReceiveMaximum    uint16
	MaxPacketSize     uint32
	TopicAliasMaximum uint16
	SessionExpiry     uint32
	UserProperties    map[string][]string

	AuthMethod   string
	AuthData     []byte
	AuthWorkflow engine.AuthWorkflow

	TLSConfig *tls.Config
	WSPath    string

	MaxReconnectAttempts int
	DrainTimeout         time.Duration
}

// Option configures a Config, mirroring the teacher's Option func(*Options).
type Option func(*Config)

func newConfig(opts ...Option) Config {
	cfg := Config{
		URL:        "mqtt://127.0.0.1:1883",
		ClientID:   "mqtt-" + requests.GenId(),
		Version:    packet.VERSION311,
		CleanStart: true,
	}
	for _, o := range opts {
		o(&cfg)
	}
	return cfg
}

func URL(url string) Option {
	return func(c *Config) { c.URL = url }
}

func ClientID(id string) Option {
	return func(c *Config) { c.ClientID = id }
}

// Version accepts either packet.VERSION311/packet.VERSION500 directly or
// the wire version strings "3.1.1"/"5.0.0", matching the teacher's generic
// Version[T ~string | ~byte] option.
func Version[T ~string | ~byte](version T) Option {
	return func(c *Config) {
		switch v := any(version).(type) {
		case byte:
			c.Version = v
		case string:
			switch v {
			case "5.0.0":
				c.Version = packet.VERSION500
			case "3.1.1":
				c.Version = packet.VERSION311
			}
		}
	}
}

func KeepAlive(d time.Duration) Option {
	return func(c *Config) { c.KeepAlive = d }
}

func ConnectTimeout(d time.Duration) Option {
	return func(c *Config) { c.ConnectTimeout = d }
}

func PingTimeout(d time.Duration) Option {
	return func(c *Config) { c.PingTimeout = d }
}

func CleanStart(clean bool) Option {
	return func(c *Config) { c.CleanStart = clean }
}

func Credentials(username, password string) Option {
	return func(c *Config) {
		c.Username = username
		c.Password = password
	}
}

func LastWill(will *engine.Will) Option {
	return func(c *Config) { c.Will = will }
}

func ReceiveMaximum(n uint16) Option {
	return func(c *Config) { c.ReceiveMaximum = n }
}

func MaxPacketSize(n uint32) Option {
	return func(c *Config) { c.MaxPacketSize = n }
}

func TopicAliasMaximum(n uint16) Option {
	return func(c *Config) { c.TopicAliasMaximum = n }
}

func SessionExpiry(seconds uint32) Option {
	return func(c *Config) { c.SessionExpiry = seconds }
}

func UserProperty(key, value string) Option {
	return func(c *Config) {
		if c.UserProperties == nil {
			c.UserProperties = make(map[string][]string)
		}
		c.UserProperties[key] = append(c.UserProperties[key], value)
	}
}

func Auth(method string, data []byte, workflow engine.AuthWorkflow) Option {
	return func(c *Config) {
		c.AuthMethod = method
		c.AuthData = data
		c.AuthWorkflow = workflow
	}
}

func TLS(cfg *tls.Config) Option {
	return func(c *Config) { c.TLSConfig = cfg }
}

func WebSocketPath(path string) Option {
	return func(c *Config) { c.WSPath = path }
}

func MaxReconnectAttempts(n int) Option {
	return func(c *Config) { c.MaxReconnectAttempts = n }
}

// DrainTimeout bounds how long a graceful Disconnect waits for outstanding
// inflight acknowledgements before sending DISCONNECT and closing anyway.
func DrainTimeout(d time.Duration) Option {
	return func(c *Config) { c.DrainTimeout = d }
}

func (c *Config) engineConfig() engine.Config {
	return engine.Config{
		Version:           c.Version,
		ClientID:          c.ClientID,
		KeepAlive:         c.KeepAlive,
		ConnectTimeout:    c.ConnectTimeout,
		PingTimeout:       c.PingTimeout,
		CleanStart:        c.CleanStart,
		Username:          c.Username,
		Password:          c.Password,
		Will:              c.Will,
		ReceiveMaximum:    c.ReceiveMaximum,
		MaxPacketSize:     c.MaxPacketSize,
		TopicAliasMaximum: c.TopicAliasMaximum,
		SessionExpiry:     c.SessionExpiry,
		UserProperties:    c.UserProperties,
		AuthMethod:        c.AuthMethod,
		AuthData:          c.AuthData,
		AuthWorkflow:      c.AuthWorkflow,
		TLSConfig:         c.TLSConfig,
		WSPath:            c.WSPath,

		MaxReconnectAttempts: c.MaxReconnectAttempts,
		DrainTimeout:         c.DrainTimeout,
	}
}
