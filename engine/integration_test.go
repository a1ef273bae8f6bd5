package engine_test

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/golang-io/mqttcore/dispatch"
	"github.com/golang-io/mqttcore/engine"
	"github.com/golang-io/mqttcore/packet"
	"github.com/golang-io/mqttcore/transport"
)

// fakeBroker reads and decodes packets off one end of an in-memory pipe,
// the same net.Pipe-backed approach the teacher's integration tests use
// for client/server round trips, generalized to a scriptable stand-in
// broker instead of the real server.
type fakeBroker struct {
	t       *testing.T
	stream  transport.Stream
	version byte
	framer  *packet.Framer
	buf     []byte
}

func newFakeBroker(t *testing.T, stream transport.Stream, version byte) *fakeBroker {
	return &fakeBroker{t: t, stream: stream, version: version, framer: packet.NewFramer(268435455), buf: make([]byte, 4096)}
}

func (b *fakeBroker) next() packet.Packet {
	b.t.Helper()
	for {
		n, err := b.stream.Read(b.buf)
		if err != nil {
			b.t.Fatalf("fakeBroker read: %v", err)
		}
		frames, ferr := b.framer.Feed(b.buf[:n])
		if ferr != nil {
			b.t.Fatalf("fakeBroker feed: %v", ferr)
		}
		for _, f := range frames {
			pkt, err := packet.Unpack(b.version, bytes.NewReader(f))
			if err != nil {
				b.t.Fatalf("fakeBroker unpack: %v", err)
			}
			return pkt
		}
	}
}

func (b *fakeBroker) send(pkt packet.Packet) {
	b.t.Helper()
	if err := pkt.Pack(b.stream); err != nil {
		b.t.Fatalf("fakeBroker pack: %v", err)
	}
}

func newEngine(version byte, clientStream transport.Stream) *engine.Engine {
	cfg := engine.Config{Version: version, ClientID: "test-client", ConnectTimeout: 2 * time.Second, CleanStart: true}
	return engine.New(cfg, clientStream, nil, engine.NewMetrics("test-client"))
}

func TestConnectHandshakeV311(t *testing.T) {
	client, server := transport.Pipe()
	defer client.Close()
	defer server.Close()

	e := newEngine(packet.VERSION311, client)
	broker := newFakeBroker(t, server, packet.VERSION311)

	done := make(chan error, 1)
	go func() {
		_, ok := broker.next().(*packet.CONNECT)
		if !ok {
			done <- nil
			return
		}
		broker.send(&packet.CONNACK{
			FixedHeader: &packet.FixedHeader{Version: packet.VERSION311, Kind: 0x2},
		})
		done <- nil
	}()

	if err := e.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	<-done
	if e.State() != engine.Active {
		t.Fatalf("state = %v, want Active", e.State())
	}
}

func TestConnectRejected(t *testing.T) {
	client, server := transport.Pipe()
	defer client.Close()
	defer server.Close()

	e := newEngine(packet.VERSION311, client)

	go func() {
		broker := newFakeBroker(t, server, packet.VERSION311)
		broker.next()
		broker.send(&packet.CONNACK{
			FixedHeader:       &packet.FixedHeader{Version: packet.VERSION311, Kind: 0x2},
			ConnectReturnCode: packet.ReasonCode{Code: 0x05},
		})
	}()

	err := e.Connect(context.Background())
	if err == nil {
		t.Fatal("expected connect error")
	}
	if e.State() != engine.Closed {
		t.Fatalf("state = %v, want Closed", e.State())
	}
}

func TestPublishQoS1RoundTrip(t *testing.T) {
	client, server := transport.Pipe()
	defer client.Close()
	defer server.Close()

	e := newEngine(packet.VERSION311, client)
	broker := newFakeBroker(t, server, packet.VERSION311)

	go func() {
		broker.next() // CONNECT
		broker.send(&packet.CONNACK{FixedHeader: &packet.FixedHeader{Version: packet.VERSION311, Kind: 0x2}})
	}()
	if err := e.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	pubDone := make(chan error, 1)
	go func() {
		pub, ok := broker.next().(*packet.PUBLISH)
		if !ok {
			pubDone <- nil
			return
		}
		broker.send(&packet.PUBACK{
			FixedHeader: &packet.FixedHeader{Version: packet.VERSION311, Kind: 0x4},
			PacketID:    pub.PacketID,
		})
		pubDone <- nil
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := e.Publish(ctx, "a/b", []byte("hello"), 1, false, nil); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	<-pubDone
}

func TestSubscribeRoundTrip(t *testing.T) {
	client, server := transport.Pipe()
	defer client.Close()
	defer server.Close()

	e := newEngine(packet.VERSION311, client)
	broker := newFakeBroker(t, server, packet.VERSION311)

	go func() {
		broker.next() // CONNECT
		broker.send(&packet.CONNACK{FixedHeader: &packet.FixedHeader{Version: packet.VERSION311, Kind: 0x2}})
	}()
	if err := e.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	subDone := make(chan error, 1)
	go func() {
		sub, ok := broker.next().(*packet.SUBSCRIBE)
		if !ok {
			subDone <- nil
			return
		}
		broker.send(&packet.SUBACK{
			FixedHeader: &packet.FixedHeader{Version: packet.VERSION311, Kind: 0x9},
			PacketID:    sub.PacketID,
			ReasonCode:  []packet.ReasonCode{{Code: 0x01}},
		})
		subDone <- nil
	}()

	var received []dispatch.Delivery
	listener := dispatch.ListenerFunc(func(d dispatch.Delivery) bool {
		received = append(received, d)
		return true
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	codes, err := e.Subscribe(ctx, "sub-1", listener, 0, packet.Subscription{TopicFilter: "a/b", MaximumQoS: 1})
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	<-subDone
	if len(codes) != 1 || codes[0].Code != 0x01 {
		t.Fatalf("reason codes = %+v", codes)
	}
}

func TestSendWindowBoundsOutboundFromServerReceiveMaximum(t *testing.T) {
	client, server := transport.Pipe()
	defer client.Close()
	defer server.Close()

	e := newEngine(packet.VERSION500, client)
	broker := newFakeBroker(t, server, packet.VERSION500)

	go func() {
		broker.next() // CONNECT
		broker.send(&packet.CONNACK{
			FixedHeader: &packet.FixedHeader{Version: packet.VERSION500, Kind: 0x2},
			Props:       &packet.ConnackProps{ReceiveMaximum: 1},
		})
	}()
	if err := e.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	pubs := make(chan *packet.PUBLISH, 2)
	go func() {
		for i := 0; i < 2; i++ {
			p, ok := broker.next().(*packet.PUBLISH)
			if !ok {
				return
			}
			pubs <- p
		}
	}()

	done1 := make(chan error, 1)
	go func() {
		done1 <- e.Publish(context.Background(), "a/1", []byte("one"), 1, false, nil)
	}()

	var first *packet.PUBLISH
	select {
	case first = <-pubs:
	case <-time.After(2 * time.Second):
		t.Fatal("first publish never reached broker")
	}

	done2 := make(chan error, 1)
	go func() {
		done2 <- e.Publish(context.Background(), "a/2", []byte("two"), 1, false, nil)
	}()

	select {
	case <-pubs:
		t.Fatal("second publish reached broker before the server's Receive Maximum of 1 was free again")
	case <-time.After(150 * time.Millisecond):
	}

	broker.send(&packet.PUBACK{
		FixedHeader: &packet.FixedHeader{Version: packet.VERSION500, Kind: 0x4},
		PacketID:    first.PacketID,
	})
	if err := <-done1; err != nil {
		t.Fatalf("first Publish: %v", err)
	}

	var second *packet.PUBLISH
	select {
	case second = <-pubs:
	case <-time.After(2 * time.Second):
		t.Fatal("second publish never reached broker after the first was acknowledged")
	}
	broker.send(&packet.PUBACK{
		FixedHeader: &packet.FixedHeader{Version: packet.VERSION500, Kind: 0x4},
		PacketID:    second.PacketID,
	})
	if err := <-done2; err != nil {
		t.Fatalf("second Publish: %v", err)
	}
}

func TestDisconnectDrainsInflightBeforeClosing(t *testing.T) {
	client, server := transport.Pipe()
	defer client.Close()
	defer server.Close()

	cfg := engine.Config{Version: packet.VERSION311, ClientID: "test-client", ConnectTimeout: 2 * time.Second, CleanStart: true, DrainTimeout: 2 * time.Second}
	e := engine.New(cfg, client, nil, engine.NewMetrics("test-client"))
	broker := newFakeBroker(t, server, packet.VERSION311)

	go func() {
		broker.next() // CONNECT
		broker.send(&packet.CONNACK{FixedHeader: &packet.FixedHeader{Version: packet.VERSION311, Kind: 0x2}})
	}()
	if err := e.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	pubErr := make(chan error, 1)
	go func() {
		pubErr <- e.Publish(context.Background(), "a/b", []byte("hello"), 1, false, nil)
	}()

	pubCh := make(chan *packet.PUBLISH, 1)
	go func() {
		p, ok := broker.next().(*packet.PUBLISH)
		if ok {
			pubCh <- p
		}
	}()
	var pub *packet.PUBLISH
	select {
	case pub = <-pubCh:
	case <-time.After(2 * time.Second):
		t.Fatal("publish never reached broker")
	}

	disconnectDone := make(chan error, 1)
	go func() {
		disconnectDone <- e.Disconnect(context.Background())
	}()

	// Give Disconnect a moment to reach the drain wait before acking, so
	// this exercises the wait rather than racing the request queue.
	time.Sleep(50 * time.Millisecond)
	broker.send(&packet.PUBACK{FixedHeader: &packet.FixedHeader{Version: packet.VERSION311, Kind: 0x4}, PacketID: pub.PacketID})

	if err := <-pubErr; err != nil {
		t.Fatalf("Publish: %v", err)
	}
	select {
	case err := <-disconnectDone:
		if err != nil {
			t.Fatalf("Disconnect: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Disconnect did not return after the inflight publish was acknowledged")
	}
}

func TestDisconnectDrainTimesOutWithoutAck(t *testing.T) {
	client, server := transport.Pipe()
	defer client.Close()
	defer server.Close()

	cfg := engine.Config{Version: packet.VERSION311, ClientID: "test-client", ConnectTimeout: 2 * time.Second, CleanStart: true, DrainTimeout: 100 * time.Millisecond}
	e := engine.New(cfg, client, nil, engine.NewMetrics("test-client"))
	broker := newFakeBroker(t, server, packet.VERSION311)

	go func() {
		broker.next() // CONNECT
		broker.send(&packet.CONNACK{FixedHeader: &packet.FixedHeader{Version: packet.VERSION311, Kind: 0x2}})
	}()
	if err := e.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	go func() { _ = e.Publish(context.Background(), "a/b", []byte("hello"), 1, false, nil) }()
	go func() { broker.next() }() // read the PUBLISH off the wire, never ack it
	time.Sleep(50 * time.Millisecond)

	start := time.Now()
	if err := e.Disconnect(context.Background()); err != nil {
		t.Fatalf("Disconnect: %v", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("Disconnect took %v, want roughly the configured drain timeout", elapsed)
	}
}

func TestPublishRejectsInvalidTopicName(t *testing.T) {
	client, server := transport.Pipe()
	defer client.Close()
	defer server.Close()

	e := newEngine(packet.VERSION311, client)
	go func() {
		broker := newFakeBroker(t, server, packet.VERSION311)
		broker.next() // CONNECT
		broker.send(&packet.CONNACK{FixedHeader: &packet.FixedHeader{Version: packet.VERSION311, Kind: 0x2}})
	}()
	if err := e.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err := e.Publish(ctx, "a/+/c", []byte("hello"), 0, false, nil)
	if _, ok := err.(*engine.InvalidTopic); !ok {
		t.Fatalf("err = %v (%T), want *engine.InvalidTopic", err, err)
	}
}

func TestSubscribeRejectsInvalidFilter(t *testing.T) {
	client, server := transport.Pipe()
	defer client.Close()
	defer server.Close()

	e := newEngine(packet.VERSION311, client)
	go func() {
		broker := newFakeBroker(t, server, packet.VERSION311)
		broker.next() // CONNECT
		broker.send(&packet.CONNACK{FixedHeader: &packet.FixedHeader{Version: packet.VERSION311, Kind: 0x2}})
	}()
	if err := e.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	listener := dispatch.ListenerFunc(func(d dispatch.Delivery) bool { return true })
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := e.Subscribe(ctx, "sub-1", listener, 0, packet.Subscription{TopicFilter: "a/b#", MaximumQoS: 0})
	if _, ok := err.(*engine.InvalidTopic); !ok {
		t.Fatalf("err = %v (%T), want *engine.InvalidTopic", err, err)
	}
}

func TestPublishRejectedOverServerMaxPacketSize(t *testing.T) {
	client, server := transport.Pipe()
	defer client.Close()
	defer server.Close()

	e := newEngine(packet.VERSION500, client)
	broker := newFakeBroker(t, server, packet.VERSION500)

	go func() {
		broker.next() // CONNECT
		broker.send(&packet.CONNACK{
			FixedHeader: &packet.FixedHeader{Version: packet.VERSION500, Kind: 0x2},
			Props:       &packet.ConnackProps{MaximumPacketSize: 16},
		})
	}()
	if err := e.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err := e.Publish(ctx, "a/b/c/much/longer/topic", []byte("this payload is far too big for the cap"), 1, false, nil)
	if _, ok := err.(*engine.PacketTooLarge); !ok {
		t.Fatalf("err = %v (%T), want *engine.PacketTooLarge", err, err)
	}
}
