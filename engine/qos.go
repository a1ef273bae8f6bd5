package engine

import (
	"bytes"
	"context"

	"github.com/golang-io/mqttcore/dispatch"
	"github.com/golang-io/mqttcore/inflight"
	"github.com/golang-io/mqttcore/packet"
	"github.com/golang-io/mqttcore/topic"
)

// doPublish executes one publish request against the wire. QoS 0 sends
// and resolves immediately; QoS 1/2 allocate a packet ID, record an
// inflight entry, and let the caller's waiter be resolved later by
// handlePuback/handlePubcomp.
func (e *Engine) doPublish(r *publishReq) error {
	if !topic.ValidateName(r.topic) {
		return &InvalidTopic{Topic: r.topic}
	}

	props := r.props
	topicName := r.topic
	if e.cfg.Version == packet.VERSION500 {
		alias, sendTopic := e.assignOutboundAlias(r.topic)
		if alias != 0 {
			if props == nil {
				props = &packet.PublishProperties{}
			}
			props.TopicAlias = packet.TopicAlias(alias)
			if !sendTopic {
				topicName = ""
			}
		}
	}

	qos := r.qos
	retain := uint8(0)
	if r.retain {
		retain = 1
	}
	pub := &packet.PUBLISH{
		FixedHeader: &packet.FixedHeader{Version: e.cfg.Version, Kind: 0x3, QoS: qos, Retain: retain},
		Message:     &packet.Message{TopicName: topicName, Content: r.payload},
		Props:       props,
	}

	if qos == 0 {
		if err := e.enforceOutboundSize(pub); err != nil {
			return err
		}
		return e.sendPacket(pub)
	}

	id, err := e.ids.Next()
	if err != nil {
		return &NoIdentifierAvailable{}
	}
	pub.PacketID = id

	// Size depends on the packet ID field being present, so this must run
	// after allocation; a reject here still releases the ID rather than
	// leaving it stranded.
	if err := e.enforceOutboundSize(pub); err != nil {
		e.ids.Release(id)
		return err
	}

	waiter := make(inflight.Waiter, 1)
	e.inflight.Insert(&inflight.Entry{
		PacketID:  id,
		Publish:   pub,
		Direction: inflight.Outbound,
		State:     inflight.SentPub,
		Waiter:    waiter,
	})
	if err := e.sendPacket(pub); err != nil {
		e.inflight.Remove(id)
		e.ids.Release(id)
		return err
	}

	// The caller (Publish) blocks on this same channel via the request's
	// done path; stash it so the run loop can hand completion through.
	r.waiter = waiter
	return nil
}

// enforceOutboundSize rejects a publish synchronously, before any wire
// write, when it would exceed the Maximum Packet Size the server
// advertised in CONNACK. v3.1.1 has no such property and is never
// constrained here.
func (e *Engine) enforceOutboundSize(pkt packet.Packet) error {
	if e.cfg.Version != packet.VERSION500 || e.serverMaxPacketSize == 0 {
		return nil
	}
	buf := bytes.Buffer{}
	if err := pkt.Pack(&buf); err != nil {
		return err
	}
	if size := uint32(buf.Len()); size > e.serverMaxPacketSize {
		return &PacketTooLarge{Size: size, Max: e.serverMaxPacketSize}
	}
	return nil
}

// handlePuback completes a QoS 1 outbound exchange.
func (e *Engine) handlePuback(p *packet.PUBACK) error {
	entry, ok := e.inflight.Remove(p.PacketID)
	if !ok {
		return nil // spurious/duplicate PUBACK; not fatal
	}
	e.ids.Release(p.PacketID)
	if entry.Waiter != nil {
		if p.ReasonCode.Code >= 0x80 {
			entry.Waiter <- &ProtocolError{Reason: p.ReasonCode}
		} else {
			entry.Waiter <- nil
		}
	}
	return e.admitQueuedPublish()
}

// handlePubrec advances a QoS 2 outbound exchange. A reason >= 0x80
// completes the flow immediately with failure; no PUBREL follows.
func (e *Engine) handlePubrec(p *packet.PUBREC) error {
	entry, ok := e.inflight.Lookup(p.PacketID)
	if !ok {
		return e.disconnectWithReason(packet.ErrPacketIdentifierNotFound)
	}
	if p.ReasonCode.Code >= 0x80 {
		e.inflight.Remove(p.PacketID)
		e.ids.Release(p.PacketID)
		if entry.Waiter != nil {
			entry.Waiter <- &ProtocolError{Reason: p.ReasonCode}
		}
		return e.admitQueuedPublish()
	}
	e.inflight.Transition(p.PacketID, inflight.SentPubrel)
	pubrel := &packet.PUBREL{
		FixedHeader: &packet.FixedHeader{Version: e.cfg.Version, Kind: 0x6, QoS: 1},
		PacketID:    p.PacketID,
	}
	return e.sendPacket(pubrel)
}

// handlePubcomp completes a QoS 2 outbound exchange.
func (e *Engine) handlePubcomp(p *packet.PUBCOMP) error {
	entry, ok := e.inflight.Remove(p.PacketID)
	if !ok {
		return nil
	}
	e.ids.Release(p.PacketID)
	if entry.Waiter != nil {
		if p.ReasonCode.Code >= 0x80 {
			entry.Waiter <- &ProtocolError{Reason: p.ReasonCode}
		} else {
			entry.Waiter <- nil
		}
	}
	return e.admitQueuedPublish()
}

// admitQueuedPublish lets the next FIFO-queued publish onto the wire now
// that an outbound slot freed up, per the v5 Receive Maximum flow control
// window.
func (e *Engine) admitQueuedPublish() error {
	e.sendWindow++
	if len(e.sendQueue) == 0 {
		return nil
	}
	if e.sendWindow <= 0 {
		return nil
	}
	next := e.sendQueue[0]
	e.sendQueue = e.sendQueue[1:]
	e.sendWindow--
	if err := e.doPublish(next); err != nil {
		next.done <- err
		return err
	}
	go e.awaitPublishCompletion(next)
	return nil
}

func (e *Engine) awaitPublishCompletion(r *publishReq) {
	if r.waiter == nil {
		r.done <- nil
		return
	}
	r.done <- <-r.waiter
}

// handleIncomingPublish implements the receiver side of all three QoS
// levels, including v5 topic alias resolution and QoS 2 dedup.
func (e *Engine) handleIncomingPublish(p *packet.PUBLISH) error {
	topicName := p.Message.TopicName
	var subIDs []uint32
	if e.cfg.Version == packet.VERSION500 && p.Props != nil {
		alias := uint16(p.Props.TopicAlias)
		resolved, ok := e.recordInboundAlias(alias, topicName)
		if !ok {
			return e.disconnectWithReason(packet.ErrTopicAliasInvalid)
		}
		topicName = resolved
		subIDs = p.Props.SubscriptionIdentifier
	}

	switch p.QoS {
	case 0:
		e.deliver(topicName, p, subIDs)
		return nil
	case 1:
		e.deliver(topicName, p, subIDs)
		puback := &packet.PUBACK{
			FixedHeader: &packet.FixedHeader{Version: e.cfg.Version, Kind: 0x4},
			PacketID:    p.PacketID,
		}
		return e.sendPacket(puback)
	case 2:
		return e.handleIncomingQoS2Publish(p, topicName, subIDs)
	}
	return nil
}

func (e *Engine) handleIncomingQoS2Publish(p *packet.PUBLISH, topicName string, subIDs []uint32) error {
	if _, dup := e.inboundQoS2[p.PacketID]; !dup {
		if e.cfg.Version == packet.VERSION500 && uint16(len(e.inboundQoS2)) >= e.cfg.receiveMaximum() {
			return e.disconnectWithReason(packet.ErrReceiveMaximum)
		}
		e.inboundQoS2[p.PacketID] = struct{}{}
		e.deliver(topicName, p, subIDs)
	}
	pubrec := &packet.PUBREC{
		FixedHeader: &packet.FixedHeader{Version: e.cfg.Version, Kind: 0x5},
		PacketID:    p.PacketID,
	}
	return e.sendPacket(pubrec)
}

// handlePubrel completes the receiver side of QoS 2: remove from the
// dedup set and answer PUBCOMP. A PUBREL for an unknown ID is silent
// success in v3.1.1 and reason 0x92 in v5, per the Open Question
// decision recorded in DESIGN.md.
func (e *Engine) handlePubrel(p *packet.PUBREL) error {
	_, known := e.inboundQoS2[p.PacketID]
	delete(e.inboundQoS2, p.PacketID)

	pubcomp := &packet.PUBCOMP{
		FixedHeader: &packet.FixedHeader{Version: e.cfg.Version, Kind: 0x7},
		PacketID:    p.PacketID,
	}
	if !known && e.cfg.Version == packet.VERSION500 {
		pubcomp.ReasonCode = packet.ErrPacketIdentifierNotFound
	}
	return e.sendPacket(pubcomp)
}

func (e *Engine) deliver(topicName string, p *packet.PUBLISH, subIDs []uint32) {
	d := dispatch.Delivery{
		Message: &packet.Message{TopicName: topicName, Content: p.Message.Content},
		Props:   p.Props,
		QoS:     p.QoS,
		Retain:  p.Retain,
	}
	e.registry.Deliver(context.Background(), d, subIDs)
}
