package engine

import (
	"github.com/golang-io/mqttcore/packet"
	"github.com/golang-io/mqttcore/topic"
)

// doSubscribe sends SUBSCRIBE and parks the request until SUBACK arrives
// (or the connection drops). It registers the caller's listener against
// every granted filter from inside handleSuback, once the reason codes are
// known.
func (e *Engine) doSubscribe(r *subscribeReq) error {
	for _, s := range r.subs {
		if !topic.ValidateFilter(s.TopicFilter) {
			return &InvalidTopic{Topic: s.TopicFilter}
		}
	}

	id, err := e.ids.Next()
	if err != nil {
		return &NoIdentifierAvailable{}
	}

	sub := &packet.SUBSCRIBE{
		FixedHeader:   &packet.FixedHeader{Version: e.cfg.Version, Kind: 0x8, QoS: 1},
		PacketID:      id,
		Subscriptions: r.subs,
	}
	if e.cfg.Version == packet.VERSION500 {
		sub.Props = &packet.SubscribeProperties{}
		if r.subID != 0 {
			sub.Props.SubscriptionIdentifier = packet.SubscriptionIdentifier(r.subID)
		}
	}

	if err := e.sendPacket(sub); err != nil {
		e.ids.Release(id)
		return err
	}
	e.pendingSub[id] = r
	return nil
}

// handleSuback correlates a SUBACK to the SUBSCRIBE that requested it,
// registers the listener for every granted filter (skipping any the
// server refused), and completes the caller's Subscribe call.
func (e *Engine) handleSuback(ack *packet.SUBACK) error {
	r, ok := e.pendingSub[ack.PacketID]
	if !ok {
		return nil // spurious/duplicate SUBACK; not fatal
	}
	delete(e.pendingSub, ack.PacketID)
	e.ids.Release(ack.PacketID)

	r.reasonCodes = ack.ReasonCode
	if r.listener != nil {
		var ids []uint32
		if r.subID != 0 {
			ids = []uint32{r.subID}
		}
		for i, s := range r.subs {
			if i < len(ack.ReasonCode) && ack.ReasonCode[i].Code >= 0x80 {
				continue
			}
			e.registry.Add(r.name+"#"+s.TopicFilter, s.TopicFilter, ids, r.listener)
		}
	}
	r.done <- nil
	return nil
}

// doUnsubscribe sends UNSUBSCRIBE for the named filters; the matching
// registry entries are removed once UNSUBACK confirms them.
func (e *Engine) doUnsubscribe(r *unsubscribeReq) error {
	for _, f := range r.filters {
		if !topic.ValidateFilter(f) {
			return &InvalidTopic{Topic: f}
		}
	}

	id, err := e.ids.Next()
	if err != nil {
		return &NoIdentifierAvailable{}
	}

	subs := make([]packet.Subscription, len(r.filters))
	for i, f := range r.filters {
		subs[i] = packet.Subscription{TopicFilter: f}
	}
	unsub := &packet.UNSUBSCRIBE{
		FixedHeader:   &packet.FixedHeader{Version: e.cfg.Version, Kind: 0xA, QoS: 1},
		PacketID:      id,
		Subscriptions: subs,
	}
	if e.cfg.Version == packet.VERSION500 {
		unsub.Props = &packet.UnsubscribeProperties{}
	}

	if err := e.sendPacket(unsub); err != nil {
		e.ids.Release(id)
		return err
	}
	e.pendingUnsub[id] = r
	return nil
}

func (e *Engine) handleUnsuback(ack *packet.UNSUBACK) error {
	r, ok := e.pendingUnsub[ack.PacketID]
	if !ok {
		return nil
	}
	delete(e.pendingUnsub, ack.PacketID)
	e.ids.Release(ack.PacketID)

	for _, f := range r.filters {
		e.registry.Remove(r.name + "#" + f)
	}
	r.done <- nil
	return nil
}
