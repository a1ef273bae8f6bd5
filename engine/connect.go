package engine

import (
	"context"
	"time"

	"github.com/golang-io/mqttcore/packet"
)

// Connect sends CONNECT and blocks until CONNACK arrives, the connect
// timeout expires, or ctx is cancelled. The read loop is started before
// CONNECT is sent; on success Connect transitions to Active and starts the
// run loop; on any failure it transitions to Closed without ever reaching
// Active.
func (e *Engine) Connect(ctx context.Context) error {
	e.setState(Connecting, ReasonNone)
	e.connack.Arm()

	e.wg.Add(1)
	go e.readLoop()

	connect := e.buildConnect()
	if err := e.sendPacket(connect); err != nil {
		e.closeWith(ReasonConnectFailed, err)
		return &ConnectError{Cause: err}
	}

	timeout := time.NewTimer(e.cfg.connectTimeout())
	defer timeout.Stop()

	select {
	case pkt := <-e.incoming:
		ack, ok := pkt.(*packet.CONNACK)
		if !ok {
			err := &ProtocolError{Reason: packet.ErrProtocolViolation}
			e.closeWith(ReasonConnectFailed, err)
			return err
		}
		return e.handleConnack(ack)
	case err := <-e.readErr:
		e.closeWith(ReasonConnectFailed, err)
		return &ConnectError{Cause: err}
	case <-timeout.C:
		err := &Timeout{Op: "connect"}
		e.closeWith(ReasonConnectFailed, err)
		return err
	case <-ctx.Done():
		err := ctx.Err()
		e.closeWith(ReasonConnectFailed, err)
		return err
	}
}

func (e *Engine) buildConnect() *packet.CONNECT {
	flags := packet.ConnectFlags(0)
	if e.cfg.CleanStart {
		flags = 0x02
	}
	c := &packet.CONNECT{
		FixedHeader:  &packet.FixedHeader{Version: e.cfg.Version, Kind: 0x1},
		ConnectFlags: flags,
		KeepAlive:    uint16(e.cfg.KeepAlive / time.Second),
		ClientID:     e.cfg.ClientID,
		Username:     e.cfg.Username,
		Password:     e.cfg.Password,
	}
	if e.cfg.Will != nil {
		c.WillTopic = e.cfg.Will.Topic
		c.WillPayload = e.cfg.Will.Payload
		c.WillProperties = e.cfg.Will.Properties
	}
	if e.cfg.Version == packet.VERSION500 {
		c.Props = &packet.ConnectProperties{
			SessionExpiryInterval: packet.SessionExpiryInterval(e.cfg.SessionExpiry),
			ReceiveMaximum:        packet.ReceiveMaximum(e.cfg.receiveMaximum()),
			MaximumPacketSize:     packet.MaximumPacketSize(e.cfg.MaxPacketSize),
			TopicAliasMaximum:     packet.TopicAliasMaximum(e.cfg.TopicAliasMaximum),
			UserProperty:          e.cfg.UserProperties,
		}
		if e.cfg.AuthMethod != "" {
			c.Props.AuthenticationMethod = packet.AuthenticationMethod(e.cfg.AuthMethod)
			c.Props.AuthenticationData = packet.AuthenticationData(e.cfg.AuthData)
		}
	}
	return c
}

func (e *Engine) handleConnack(ack *packet.CONNACK) error {
	if ack.ConnectReturnCode.Code >= 0x80 {
		// v5 reason 0x18 (Continue authentication) is < 0x80 and handled
		// below; anything >= 0x80 is a hard connect failure.
		err := &ConnectError{Reason: ack.ConnectReturnCode}
		e.closeWith(ReasonConnectFailed, err)
		return err
	}

	if ack.ConnectReturnCode.Code == 0x18 {
		if ack.Props == nil {
			err := &ProtocolError{Reason: packet.ErrProtocolViolation}
			e.closeWith(ReasonConnectFailed, err)
			return err
		}
		e.connack.Arm()
		if err := e.continueAuth(string(ack.Props.AuthenticationMethod), ack.Props.AuthenticationData); err != nil {
			e.closeWith(ReasonConnectFailed, err)
			return err
		}
		select {
		case pkt := <-e.incoming:
			switch p := pkt.(type) {
			case *packet.CONNACK:
				return e.handleConnack(p)
			case *packet.AUTH:
				return e.handleAuthDuringConnect(p)
			default:
				err := &ProtocolError{Reason: packet.ErrProtocolViolation}
				e.closeWith(ReasonConnectFailed, err)
				return err
			}
		case err := <-e.readErr:
			e.closeWith(ReasonConnectFailed, err)
			return err
		}
	}

	e.applyConnackProps(ack)
	if ack.SessionPresent == 0 {
		e.inflight.Clear(&SessionReset{})
	} else {
		e.replayInflight()
	}

	e.setState(Active, ReasonNone)
	e.wg.Add(1)
	go e.run()
	return nil
}

func (e *Engine) handleAuthDuringConnect(auth *packet.AUTH) error {
	var method string
	var data []byte
	if auth.Props != nil {
		method = string(auth.Props.AuthenticationMethod)
		data = auth.Props.AuthenticationData
	}
	if err := e.continueAuth(method, data); err != nil {
		e.closeWith(ReasonConnectFailed, err)
		return err
	}
	select {
	case pkt := <-e.incoming:
		switch p := pkt.(type) {
		case *packet.CONNACK:
			return e.handleConnack(p)
		case *packet.AUTH:
			return e.handleAuthDuringConnect(p)
		}
	case err := <-e.readErr:
		e.closeWith(ReasonConnectFailed, err)
		return err
	}
	return nil
}

func (e *Engine) applyConnackProps(ack *packet.CONNACK) {
	if ack.Props == nil {
		e.sendWindow = int(e.serverReceiveMax)
		return
	}
	if ack.Props.AssignedClientID != "" {
		e.mu.Lock()
		e.assignedClientID = ack.Props.AssignedClientID
		e.mu.Unlock()
	}
	if ack.Props.ReceiveMaximum != 0 {
		e.serverReceiveMax = ack.Props.ReceiveMaximum
	}
	if ack.Props.TopicAliasMaximum != 0 {
		e.serverTopicAliasMax = ack.Props.TopicAliasMaximum
	}
	if ack.Props.MaximumPacketSize != 0 {
		e.serverMaxPacketSize = ack.Props.MaximumPacketSize
	}
	// Outbound QoS >= 1 admission window tracks the server's advertised
	// Receive Maximum, not our own cfg.receiveMaximum(): that value bounds
	// the server's outbound PUBLISHes toward us, not ours toward it.
	e.sendWindow = int(e.serverReceiveMax)
}

// replayInflight resends unacknowledged outbound packets after a
// reconnect with Session Present=1, per the inflight store's replay plan.
func (e *Engine) replayInflight() {
	for _, r := range e.inflight.ReplayPlan() {
		switch r.Kind {
		case 0x3:
			_ = e.sendPacket(r.Publish)
		case 0x6:
			pubrel := &packet.PUBREL{
				FixedHeader: &packet.FixedHeader{Version: e.cfg.Version, Kind: 0x6, QoS: 1},
				PacketID:    r.PacketID,
			}
			_ = e.sendPacket(pubrel)
		}
	}
}
