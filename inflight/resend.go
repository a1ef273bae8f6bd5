package inflight

import "github.com/golang-io/mqttcore/packet"

// Resend is one message that must be retransmitted after a reconnect that
// resumed a prior session (Session Present = 1).
type Resend struct {
	PacketID uint16
	Kind     byte // packet.PUBLISH or packet.PUBREL ([MQTT] 0x3 / 0x6)
	Publish  *packet.PUBLISH
}

// ReplayPlan walks the store in send order and returns what the engine
// must retransmit to resume the session:
//   - SentPub (outbound, awaiting PUBACK/PUBREC): resend the PUBLISH with
//     DUP=1 and an unchanged payload [MQTT-3.3.1-1].
//   - SentPubrel (outbound, PUBREC already received): resend PUBREL, not
//     the original PUBLISH — the publish side of the handshake is done.
//   - ReceivedPub (inbound QoS 2, PUBREC already sent): left alone. The
//     client is waiting on the server to send PUBREL; nothing to transmit.
func (s *Store) ReplayPlan() []Resend {
	var plan []Resend
	for _, e := range s.EnumerateSendOrder() {
		if e.Direction != Outbound {
			continue
		}
		switch e.State {
		case SentPub:
			dup := *e.Publish
			fh := *dup.FixedHeader
			fh.Dup = 1
			dup.FixedHeader = &fh
			plan = append(plan, Resend{PacketID: e.PacketID, Kind: 0x3, Publish: &dup})
		case SentPubrel:
			plan = append(plan, Resend{PacketID: e.PacketID, Kind: 0x6})
		}
	}
	return plan
}
