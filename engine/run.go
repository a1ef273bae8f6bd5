package engine

import (
	"time"

	"github.com/golang-io/mqttcore/packet"
)

// run is the engine's single-threaded core: every mutation of engine state
// happens on this goroutine, reached only by way of inbox (public
// operations) and incoming (decoded packets from readLoop). It starts once
// Connect succeeds and exits when the connection closes.
func (e *Engine) run() {
	defer e.wg.Done()
	ka := e.newKeepalive()

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-e.stop:
			return

		case err := <-e.readErr:
			e.closeWith(closeReasonFor(err), err)
			return

		case pkt := <-e.incoming:
			if err := e.handleIncoming(pkt, ka); err != nil {
				e.closeWith(closeReasonFor(err), err)
				return
			}

		case req := <-e.inbox:
			e.handleRequest(req)

		case <-ticker.C:
			if err := e.tickKeepalive(ka); err != nil {
				e.closeWith(ReasonProtocolTimeout, err)
				return
			}
		}
	}
}

func closeReasonFor(err error) CloseReason {
	if _, ok := err.(*TransportError); ok {
		return ReasonTransportError
	}
	if _, ok := err.(*Timeout); ok {
		return ReasonProtocolTimeout
	}
	if _, ok := err.(*ProtocolError); ok {
		return ReasonProtocolError
	}
	return ReasonTransportError
}

func (e *Engine) handleIncoming(pkt packet.Packet, ka *keepaliveState) error {
	switch p := pkt.(type) {
	case *packet.PUBLISH:
		return e.handleIncomingPublish(p)
	case *packet.PUBACK:
		return e.handlePuback(p)
	case *packet.PUBREC:
		return e.handlePubrec(p)
	case *packet.PUBREL:
		return e.handlePubrel(p)
	case *packet.PUBCOMP:
		return e.handlePubcomp(p)
	case *packet.SUBACK:
		return e.handleSuback(p)
	case *packet.UNSUBACK:
		return e.handleUnsuback(p)
	case *packet.PINGRESP:
		e.onPingResp(ka)
		return nil
	case *packet.DISCONNECT:
		e.closeWith(ReasonServerInitiated, &ProtocolError{Reason: p.ReasonCode})
		return nil
	case *packet.AUTH:
		method, data := "", []byte(nil)
		if p.Props != nil {
			method = string(p.Props.AuthenticationMethod)
			data = p.Props.AuthenticationData
		}
		return e.continueAuth(method, data)
	default:
		// CONNECT/CONNACK/SUBSCRIBE/UNSUBSCRIBE/PINGREQ arriving here would
		// be a peer sending a client-to-server-only packet type back to us.
		return &ProtocolError{Reason: packet.ErrProtocolViolation}
	}
}

func (e *Engine) handleRequest(req request) {
	switch req.kind {
	case reqPublish:
		e.handlePublishRequest(req)
	case reqSubscribe:
		req.sub.done = req.done
		if err := e.doSubscribe(req.sub); err != nil {
			req.done <- err
		}
	case reqUnsubscribe:
		req.unsub.done = req.done
		if err := e.doUnsubscribe(req.unsub); err != nil {
			req.done <- err
		}
	case reqDisconnect:
		e.doGracefulDisconnect()
		req.done <- nil
	}
}

func (e *Engine) handlePublishRequest(req request) {
	req.pub.done = req.done
	if e.sendWindow <= 0 && req.pub.qos > 0 {
		e.sendQueue = append(e.sendQueue, req.pub)
		return
	}
	if req.pub.qos > 0 {
		e.sendWindow--
	}
	if err := e.doPublish(req.pub); err != nil {
		if req.pub.qos > 0 {
			e.sendWindow++
		}
		req.done <- err
		return
	}
	if req.pub.qos == 0 {
		req.done <- nil
		return
	}
	go e.awaitPublishCompletion(req.pub)
}

// doGracefulDisconnect awaits outstanding inflight acknowledgements for
// the configured drain timeout, then sends DISCONNECT (v5) or simply
// drops the connection (v3.1.1, which has no normal-disconnect packet
// semantics beyond closing the socket) and tears down local state.
func (e *Engine) doGracefulDisconnect() {
	e.drainInflight()
	if e.cfg.Version == packet.VERSION500 {
		d := &packet.DISCONNECT{
			FixedHeader: &packet.FixedHeader{Version: e.cfg.Version, Kind: 0xE},
			ReasonCode:  packet.CodeDisconnect,
			Props:       &packet.DisconnectProperties{},
		}
		_ = e.sendPacket(d)
	}
	e.closeWith(ReasonClientInitiated, &ClientClosed{})
}

// drainInflight blocks the run loop, processing incoming packets itself,
// until every outstanding inflight exchange completes or the drain
// timeout elapses. It runs on the same goroutine as run's own select, so
// it must pump e.incoming directly rather than waiting for run to do it.
func (e *Engine) drainInflight() {
	if e.inflight.Len() == 0 {
		return
	}
	deadline := time.NewTimer(e.cfg.drainTimeout())
	defer deadline.Stop()
	for e.inflight.Len() > 0 {
		select {
		case pkt := <-e.incoming:
			if err := e.handleIncoming(pkt, nil); err != nil {
				return
			}
		case <-e.readErr:
			return
		case <-deadline.C:
			return
		}
	}
}
