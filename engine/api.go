package engine

import (
	"context"

	"github.com/golang-io/mqttcore/dispatch"
	"github.com/golang-io/mqttcore/packet"
)

// submit posts req to the run loop's inbox and waits for it to resolve,
// honoring ctx cancellation and the engine's own shutdown. A ctx
// cancelled before the request is accepted by the inbox drops it
// cleanly; once accepted, the request is processed even if ctx is
// cancelled afterwards, and cancellation only stops the caller from
// waiting. A queued or in-flight exchange is never aborted.
func (e *Engine) submit(ctx context.Context, req request) error {
	if e.State() == Closed {
		return &ClientClosed{}
	}
	select {
	case e.inbox <- req:
	case <-ctx.Done():
		return ctx.Err()
	case <-e.stop:
		return &ClientClosed{}
	}
	select {
	case err := <-req.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-e.stop:
		return &ClientClosed{}
	}
}

// Publish sends an application message. For QoS 0 it returns once the
// packet is written to the transport; for QoS 1/2 it blocks until the
// exchange completes (PUBACK/PUBCOMP) or the connection fails.
func (e *Engine) Publish(ctx context.Context, topic string, payload []byte, qos uint8, retain bool, props *packet.PublishProperties) error {
	if e.State() == ShuttingDown {
		return &ClientShuttingDown{}
	}
	req := request{
		kind: reqPublish,
		pub: &publishReq{
			topic:   topic,
			payload: payload,
			qos:     qos,
			retain:  retain,
			props:   props,
		},
		done: make(chan error, 1),
	}
	return e.submit(ctx, req)
}

// Subscribe sends SUBSCRIBE for the given filters and, on a per-filter
// reason code below 0x80, registers listener under name in the dispatch
// registry so subsequent matching PUBLISHes reach it. subID is the v5
// subscription identifier to attach (0 = none); per spec.md §4.E it must
// be in 1..268,435,455 when non-zero.
func (e *Engine) Subscribe(ctx context.Context, name string, listener dispatch.Listener, subID uint32, subs ...packet.Subscription) ([]packet.ReasonCode, error) {
	if e.State() == ShuttingDown {
		return nil, &ClientShuttingDown{}
	}
	if subID != 0 && (subID < 1 || subID > 268435455) {
		return nil, &ProtocolError{Reason: packet.ErrProtocolViolation}
	}
	sub := &subscribeReq{
		subs:     subs,
		listener: listener,
		name:     name,
		subID:    subID,
	}
	req := request{kind: reqSubscribe, sub: sub, done: make(chan error, 1)}
	if err := e.submit(ctx, req); err != nil {
		return nil, err
	}
	return sub.reasonCodes, nil
}

// Unsubscribe sends UNSUBSCRIBE for the given filters and removes the
// matching registry entries once UNSUBACK confirms them. name must match
// the name passed to the original Subscribe call.
func (e *Engine) Unsubscribe(ctx context.Context, name string, filters ...string) error {
	if e.State() == ShuttingDown {
		return &ClientShuttingDown{}
	}
	req := request{
		kind:  reqUnsubscribe,
		unsub: &unsubscribeReq{filters: filters, name: name},
		done:  make(chan error, 1),
	}
	return e.submit(ctx, req)
}

// Disconnect performs a graceful shutdown: refuses new operations, waits
// up to the configured drain timeout for outstanding inflight exchanges
// to be acknowledged, then sends DISCONNECT (v5) or simply closes
// (v3.1.1), and tears down the transport.
func (e *Engine) Disconnect(ctx context.Context) error {
	e.setState(ShuttingDown, ReasonNone)
	req := request{kind: reqDisconnect, done: make(chan error, 1)}
	return e.submit(ctx, req)
}
