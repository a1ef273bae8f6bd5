package engine

import (
	"time"

	"github.com/golang-io/mqttcore/packet"
)

// keepaliveState tracks the engine's progress toward the next PINGREQ and
// the grace deadline for the PINGRESP that must follow it. Ticked once a
// second from the run loop rather than retimed per packet: simpler to
// reason about and the spec's [9,11]s window tolerates the slop.
type keepaliveState struct {
	interval     time.Duration
	pingTimeout  time.Duration
	awaitingPong bool
	pingSentAt   time.Time
}

func (e *Engine) newKeepalive() *keepaliveState {
	if e.cfg.KeepAlive <= 0 {
		return nil
	}
	return &keepaliveState{interval: e.cfg.KeepAlive, pingTimeout: e.cfg.pingTimeout()}
}

// tick is called roughly every second by the run loop; it returns a
// non-nil error if the server failed to answer a PINGREQ within the
// grace window, which the caller must treat as fatal.
func (e *Engine) tickKeepalive(ka *keepaliveState) error {
	if ka == nil {
		return nil
	}
	now := time.Now()
	if ka.awaitingPong {
		if now.Sub(ka.pingSentAt) > ka.pingTimeout {
			return &Timeout{Op: "ping"}
		}
		return nil
	}
	if now.Sub(e.lastSent) >= ka.interval {
		ping := &packet.PINGREQ{FixedHeader: &packet.FixedHeader{Version: e.cfg.Version, Kind: 0xC}}
		if err := e.sendPacket(ping); err != nil {
			return err
		}
		ka.awaitingPong = true
		ka.pingSentAt = now
	}
	return nil
}

func (e *Engine) onPingResp(ka *keepaliveState) {
	if ka != nil {
		ka.awaitingPong = false
	}
}
