package engine

import "github.com/golang-io/mqttcore/packet"

// AuthStep is what an AuthWorkflow returns after inspecting the peer's
// latest authentication data.
type AuthStep struct {
	// Done, when true, ends the exchange: Success indicates whether the
	// workflow considers the exchange satisfied. A failed terminal step
	// makes the engine send DISCONNECT with reason 0x87 (NotAuthorized).
	Done    bool
	Success bool

	// AuthData is sent, together with the exchange's method, on the next
	// outbound AUTH when Done is false.
	AuthData []byte
}

// AuthWorkflow drives a v5.0 extended authentication exchange: given the
// method and data the peer just sent (from CONNACK or AUTH), it decides
// the next move. method is constant for the exchange's lifetime.
type AuthWorkflow func(method string, peerData []byte) AuthStep

func (e *Engine) continueAuth(method string, peerData []byte) error {
	if e.cfg.AuthWorkflow == nil {
		return e.disconnectWithReason(packet.ErrNotAuthorized)
	}
	step := e.cfg.AuthWorkflow(method, peerData)
	if step.Done {
		if !step.Success {
			return e.disconnectWithReason(packet.ErrNotAuthorized)
		}
		return nil
	}
	auth := &packet.AUTH{
		FixedHeader: &packet.FixedHeader{Version: e.cfg.Version, Kind: 0xF},
		ReasonCode:  packet.CodeContinueAuthentication,
		Props: &packet.AuthProperties{
			AuthenticationMethod: packet.AuthenticationMethod(method),
			AuthenticationData:   step.AuthData,
		},
	}
	return e.sendPacket(auth)
}
