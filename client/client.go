package client

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/golang-io/mqttcore/dispatch"
	"github.com/golang-io/mqttcore/engine"
	"github.com/golang-io/mqttcore/packet"
	"github.com/golang-io/mqttcore/pkg/logger"
	"github.com/golang-io/mqttcore/transport"
)

// activeSub is a Subscribe call the client remembers so it can be replayed
// against a fresh engine after a reconnect, since subscription state does
// not survive a clean session.
type activeSub struct {
	listener dispatch.ListenerFunc
	subs     []packet.Subscription
}

// Client is the public, reconnecting MQTT client: a thin wrapper over one
// engine.Engine at a time, grounded on the teacher's Client/New
// (client.go) but built around engine's inbox/request model instead of
// driving the wire directly.
type Client struct {
	cfg Config
	log logger.Logger

	mu     sync.Mutex
	engine *engine.Engine
	ready  chan struct{} // closed while engine is non-nil; replaced each time the connection drops

	subs map[string]activeSub
}

// New constructs a Client; it does not dial until Connect is called,
// matching the teacher's New/Connect split.
func New(opts ...Option) *Client {
	cfg := newConfig(opts...)
	return &Client{cfg: cfg, log: logger.Nop{}, ready: make(chan struct{}), subs: make(map[string]activeSub)}
}

// setEngine installs a freshly connected engine and wakes any call blocked
// in waitEngine.
func (c *Client) setEngine(e *engine.Engine) {
	c.mu.Lock()
	c.engine = e
	close(c.ready)
	c.mu.Unlock()
}

// clearEngine drops the current engine reference and arms a fresh ready
// gate so calls made between connections block instead of racing a nil
// engine, matching the single-owner discipline engine itself uses.
func (c *Client) clearEngine() {
	c.mu.Lock()
	c.engine = nil
	c.ready = make(chan struct{})
	c.mu.Unlock()
}

// waitEngine returns the current engine once Connect has installed one,
// blocking until then or until ctx is done. Publish/Subscribe/Unsubscribe
// called before the first successful Connect (or while Run is between
// reconnect attempts) wait here rather than racing a nil engine.
func (c *Client) waitEngine(ctx context.Context) (*engine.Engine, error) {
	c.mu.Lock()
	e, ready := c.engine, c.ready
	c.mu.Unlock()
	if e != nil {
		return e, nil
	}
	select {
	case <-ready:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	c.mu.Lock()
	e = c.engine
	c.mu.Unlock()
	if e == nil {
		return nil, fmt.Errorf("mqttcore: not connected")
	}
	return e, nil
}

// WithLogger overrides the default no-op logger. Returns the client for
// chaining at construction time, e.g. client.New(...).WithLogger(l).
func (c *Client) WithLogger(l logger.Logger) *Client {
	c.log = l
	return c
}

// ID returns the effective client identifier.
func (c *Client) ID() string {
	c.mu.Lock()
	e := c.engine
	c.mu.Unlock()
	if e == nil {
		return c.cfg.ClientID
	}
	return e.ClientID()
}

// Connect dials the configured endpoint and runs the CONNECT handshake.
// On success the engine's run loop is active and the client is ready for
// Publish/Subscribe/Unsubscribe.
func (c *Client) Connect(ctx context.Context) error {
	u, err := url.Parse(c.cfg.URL)
	if err != nil {
		return fmt.Errorf("mqttcore: parse url %q: %w", c.cfg.URL, err)
	}

	stream, err := transport.Dial(ctx, u.Scheme, u.Host, c.cfg.TLSConfig, c.cfg.WSPath)
	if err != nil {
		return fmt.Errorf("mqttcore: dial %s: %w", c.cfg.URL, err)
	}

	e := engine.New(c.cfg.engineConfig(), stream, c.log, engine.NewMetrics(c.cfg.ClientID))
	if err := e.Connect(ctx); err != nil {
		return err
	}
	c.setEngine(e)
	return c.resubscribe(ctx, e)
}

// resubscribe restores every subscription the caller has previously made
// via Subscribe, run on every successful (re)connect since MQTT
// subscription state does not survive a clean session.
func (c *Client) resubscribe(ctx context.Context, e *engine.Engine) error {
	c.mu.Lock()
	subs := make(map[string]activeSub, len(c.subs))
	for name, s := range c.subs {
		subs[name] = s
	}
	c.mu.Unlock()
	for name, s := range subs {
		if _, err := e.Subscribe(ctx, name, s.listener, 0, s.subs...); err != nil {
			return err
		}
	}
	return nil
}

// Run drives automatic reconnection until ctx is cancelled or
// MaxReconnectAttempts consecutive failures occur (0 = unlimited),
// mirroring the teacher's ConnectAndSubscribe retry loop.
func (c *Client) Run(ctx context.Context) error {
	attempts := 0
	backoff := time.NewTimer(0)
	defer backoff.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-backoff.C:
		}

		if err := c.Connect(ctx); err != nil {
			attempts++
			if c.cfg.MaxReconnectAttempts > 0 && attempts >= c.cfg.MaxReconnectAttempts {
				return fmt.Errorf("mqttcore: giving up after %d connect attempts: %w", attempts, err)
			}
			c.log.Warn("connect failed, retrying", "attempt", attempts, "err", err)
			backoff.Reset(3 * time.Second)
			continue
		}
		attempts = 0

		c.mu.Lock()
		e := c.engine
		c.mu.Unlock()
		<-e.Done()
		c.clearEngine()
		backoff.Reset(3 * time.Second)
	}
}

// Publish sends an application message. See engine.Engine.Publish for the
// per-QoS blocking semantics.
func (c *Client) Publish(ctx context.Context, topic string, payload []byte, qos uint8, retain bool, props *packet.PublishProperties) error {
	e, err := c.waitEngine(ctx)
	if err != nil {
		return err
	}
	return e.Publish(ctx, topic, payload, qos, retain, props)
}

// Subscribe registers fn against every filter in subs and blocks until
// SUBACK confirms them. name must be unique per logical subscription so a
// later Unsubscribe(name, ...) can remove the right registry entries; it
// is also remembered so a reconnect can resubscribe automatically.
func (c *Client) Subscribe(ctx context.Context, name string, fn func(dispatch.Delivery) bool, subs ...packet.Subscription) ([]packet.ReasonCode, error) {
	e, err := c.waitEngine(ctx)
	if err != nil {
		return nil, err
	}
	codes, err := e.Subscribe(ctx, name, dispatch.ListenerFunc(fn), 0, subs...)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.subs[name] = activeSub{listener: fn, subs: subs}
	c.mu.Unlock()
	return codes, nil
}

// Unsubscribe removes the filters registered under name.
func (c *Client) Unsubscribe(ctx context.Context, name string, filters ...string) error {
	e, err := c.waitEngine(ctx)
	if err != nil {
		return err
	}
	if err := e.Unsubscribe(ctx, name, filters...); err != nil {
		return err
	}
	c.mu.Lock()
	delete(c.subs, name)
	c.mu.Unlock()
	return nil
}

// Disconnect gracefully tears down the active connection, a no-op if
// Connect has never succeeded.
func (c *Client) Disconnect(ctx context.Context) error {
	c.mu.Lock()
	e := c.engine
	c.mu.Unlock()
	if e == nil {
		return nil
	}
	return e.Disconnect(ctx)
}
