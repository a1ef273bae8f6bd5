// Package engine implements the MQTT v3.1.1/v5.0 protocol engine: the
// per-connection state machine that drives the CONNECT handshake,
// keep-alive, QoS 0/1/2 flows, subscription management, and graceful
// shutdown, per spec component E. It owns the transport stream exclusively
// and is single-threaded: all mutation of its state happens on the run
// loop goroutine, reached only through the request inbox.
package engine

import (
	"bytes"
	"fmt"
	"sync"
	"time"

	"github.com/golang-io/mqttcore/dispatch"
	"github.com/golang-io/mqttcore/idalloc"
	"github.com/golang-io/mqttcore/inflight"
	"github.com/golang-io/mqttcore/packet"
	"github.com/golang-io/mqttcore/pkg/logger"
	"github.com/golang-io/mqttcore/transport"
)

// request is a message posted to the engine's inbox by a public
// operation (publish, subscribe, ...); the engine processes its inbox in
// arrival order and resolves done with the operation's outcome.
type request struct {
	kind   reqKind
	pub    *publishReq
	sub    *subscribeReq
	unsub  *unsubscribeReq
	done   chan error
}

type reqKind int

const (
	reqPublish reqKind = iota
	reqSubscribe
	reqUnsubscribe
	reqDisconnect
)

type publishReq struct {
	topic      string
	payload    []byte
	qos        uint8
	retain     bool
	props      *packet.PublishProperties
	resultCode *packet.ReasonCode

	// waiter is set by doPublish for QoS 1/2 once the entry is inflight;
	// done is how the result ultimately reaches the caller of Publish.
	waiter inflight.Waiter
	done   chan error
}

type subscribeReq struct {
	subs        []packet.Subscription
	listener    dispatch.Listener
	name        string
	subID       uint32
	reasonCodes []packet.ReasonCode
	done        chan error
}

type unsubscribeReq struct {
	filters []string
	name    string
	done    chan error
}

// Engine is one MQTT connection's protocol state machine.
type Engine struct {
	cfg    Config
	stream transport.Stream
	log    logger.Logger
	metrics *Metrics

	mu    sync.RWMutex
	state State
	reason CloseReason
	closeErr error

	ids      *idalloc.Allocator
	inflight *inflight.Store
	registry *dispatch.Registry

	inbox    chan request
	incoming chan packet.Packet
	readErr  chan error
	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	// connack/pingresp single-slot waiters
	connack *dispatch.Waiter[*packet.CONNACK]
	pingResp *dispatch.Waiter[struct{}]

	// server-negotiated effective limits, set after CONNACK
	serverReceiveMax    uint16
	serverTopicAliasMax uint16
	serverMaxPacketSize uint32
	assignedClientID    string

	// v5 flow control: outbound admission window and FIFO of queued sends
	sendWindow int
	sendQueue  []*publishReq

	// v5 topic alias state. outboundAliasOrder holds every assigned topic
	// least-recently-used first; assignOutboundAlias touches it on both
	// hit and insert so eviction always picks the true LRU entry.
	outboundAlias      map[string]uint16 // topic -> alias
	outboundAliasSeq   uint16
	outboundAliasOrder []string
	inboundAlias       map[uint16]string // alias -> topic

	// QoS 2 inbound dedup set: packet IDs received but not yet PUBREL'd
	inboundQoS2 map[uint16]struct{}

	// SUBSCRIBE/UNSUBSCRIBE correlation: these packet types aren't
	// tracked by the inflight store (component D is PUBLISH/PUBREL
	// scoped per spec.md §4.D), so the engine keeps its own small
	// per-ID waiter maps for them.
	pendingSub   map[uint16]*subscribeReq
	pendingUnsub map[uint16]*unsubscribeReq

	lastSent time.Time
}

// New constructs an Engine bound to an already-dialed transport stream.
// The caller drives the connection by calling Connect, which starts the
// run loop on success, then Publish/Subscribe/Unsubscribe/Disconnect.
func New(cfg Config, stream transport.Stream, log logger.Logger, metrics *Metrics) *Engine {
	if log == nil {
		log = logger.Nop{}
	}
	if metrics == nil {
		metrics = NewMetrics(cfg.ClientID)
	}
	e := &Engine{
		cfg:      cfg,
		stream:   stream,
		log:      log,
		metrics:  metrics,
		ids:      idalloc.New(),
		inflight: inflight.New(),
		registry: dispatch.NewRegistry(),
		inbox:    make(chan request, 64),
		incoming: make(chan packet.Packet, 64),
		readErr:  make(chan error, 1),
		stop:     make(chan struct{}),
		connack:  dispatch.NewWaiter[*packet.CONNACK](),
		pingResp: dispatch.NewWaiter[struct{}](),
		outboundAlias: make(map[string]uint16),
		inboundAlias:  make(map[uint16]string),
		inboundQoS2:   make(map[uint16]struct{}),
		pendingSub:    make(map[uint16]*subscribeReq),
		pendingUnsub:  make(map[uint16]*unsubscribeReq),
	}
	// serverReceiveMax/sendWindow hold the pre-CONNACK default (no limit
	// advertised yet); applyConnackProps overwrites both once the server's
	// actual Receive Maximum is known. sendWindow bounds our own outbound
	// QoS >= 1 PUBLISHes, so it must track the server's value, never our
	// own cfg.receiveMaximum() (that one bounds the server's outbound
	// PUBLISHes toward us and is used only when building CONNECT).
	e.serverReceiveMax = 65535
	e.sendWindow = int(e.serverReceiveMax)
	return e
}

// Done returns a channel closed once the connection has fully closed
// (transport error, protocol error, or graceful disconnect), for a caller
// that wants to wait out the current connection before reconnecting.
func (e *Engine) Done() <-chan struct{} {
	return e.stop
}

func (e *Engine) State() State {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state
}

func (e *Engine) setState(s State, reason CloseReason) {
	e.mu.Lock()
	e.state = s
	if reason != ReasonNone {
		e.reason = reason
	}
	e.mu.Unlock()
	e.metrics.ConnState.Set(float64(s))
	e.log.Debug("state transition", "state", s.String(), "reason", reason.String())
}

// ClientID returns the effective client identifier: the server-assigned
// one if the broker handed one out in CONNACK, the configured one
// otherwise.
func (e *Engine) ClientID() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.assignedClientID != "" {
		return e.assignedClientID
	}
	return e.cfg.ClientID
}

// sendPacket buffers a packet's Pack output into a single byte slice
// before writing, so that a transport backed by WebSocket never has a
// control packet split across more than one WS message.
func (e *Engine) sendPacket(pkt packet.Packet) error {
	buf := bytes.Buffer{}
	if err := pkt.Pack(&buf); err != nil {
		return fmt.Errorf("engine: pack %T: %w", pkt, err)
	}
	n, err := e.stream.Write(buf.Bytes())
	if err != nil {
		return &TransportError{Op: "write", Cause: err}
	}
	e.lastSent = time.Now()
	e.metrics.PacketsSent.Inc()
	e.metrics.BytesSent.Add(float64(n))
	return nil
}

// readLoop decodes packets off the stream until it errors or stop closes.
// It never touches engine state directly: decoded packets are handed to
// the run loop over incoming, preserving the single-writer invariant.
func (e *Engine) readLoop() {
	defer e.wg.Done()
	framer := packet.NewFramer(e.effectiveMaxPacketSize())
	buf := make([]byte, 4096)
	for {
		n, err := e.stream.Read(buf)
		if n > 0 {
			frames, ferr := framer.Feed(buf[:n])
			for _, f := range frames {
				pkt, perr := packet.Unpack(e.cfg.Version, bytes.NewReader(f))
				if perr != nil {
					select {
					case e.readErr <- &ProtocolError{Reason: packet.ReasonCode{Code: 0x81, Reason: perr.Error()}}:
					case <-e.stop:
					}
					return
				}
				e.metrics.PacketsReceived.Inc()
				e.metrics.BytesReceived.Add(float64(len(f)))
				select {
				case e.incoming <- pkt:
				case <-e.stop:
					return
				}
			}
			if ferr != nil {
				select {
				case e.readErr <- ferr:
				case <-e.stop:
				}
				return
			}
		}
		if err != nil {
			select {
			case e.readErr <- &TransportError{Op: "read", Cause: err}:
			case <-e.stop:
			}
			return
		}
	}
}

func (e *Engine) effectiveMaxPacketSize() uint32 {
	if e.cfg.MaxPacketSize == 0 {
		return 268435455
	}
	return e.cfg.MaxPacketSize
}

func (e *Engine) closeWith(reason CloseReason, err error) {
	e.mu.Lock()
	if e.state == Closed {
		e.mu.Unlock()
		return
	}
	e.state = Closed
	e.reason = reason
	e.closeErr = err
	e.mu.Unlock()
	e.metrics.ConnState.Set(float64(Closed))
	e.stopOnce.Do(func() { close(e.stop) })
	_ = e.stream.Close()
	e.inflight.Clear(err)
	e.connack.Fail(err)
	e.pingResp.Fail(err)
	e.log.Info("connection closed", "reason", reason.String(), "err", err)
}

// disconnectWithReason sends DISCONNECT with the given reason and closes
// the transport; used for protocol violations the engine itself detects
// (unknown topic alias, flow-control overrun, failed AUTH, ...).
func (e *Engine) disconnectWithReason(reason packet.ReasonCode) error {
	if e.cfg.Version == packet.VERSION500 {
		d := &packet.DISCONNECT{
			FixedHeader: &packet.FixedHeader{Version: e.cfg.Version, Kind: 0xE},
			ReasonCode:  reason,
			Props:       &packet.DisconnectProperties{},
		}
		_ = e.sendPacket(d)
	}
	err := &ProtocolError{Reason: reason}
	e.closeWith(ReasonProtocolError, err)
	return err
}

// Close tears down the connection immediately without a graceful
// DISCONNECT handshake; used when the caller abandons the engine.
func (e *Engine) Close() error {
	e.closeWith(ReasonClientInitiated, &ClientClosed{})
	return nil
}

