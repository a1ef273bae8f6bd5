package packet

import (
	"testing"
)

// varintFrame builds a fixed header (type byte + varint remaining length)
// followed by remLen bytes of arbitrary payload, the same shape every
// control packet shares regardless of type.
func varintFrame(typeByte byte, remLen int) []byte {
	frame := []byte{typeByte}
	n := remLen
	for {
		b := byte(n % 128)
		n /= 128
		if n > 0 {
			b |= 0x80
		}
		frame = append(frame, b)
		if n == 0 {
			break
		}
	}
	frame = append(frame, make([]byte, remLen)...)
	return frame
}

func TestFramerSingleFeed(t *testing.T) {
	f := NewFramer(0)
	frame := varintFrame(0x20, 2) // CONNACK-shaped, 2 byte payload
	frames, err := f.Feed(frame)
	if err != nil {
		t.Fatalf("Feed: %v", err)
	}
	if len(frames) != 1 || len(frames[0]) != len(frame) {
		t.Fatalf("frames = %v, want one frame of length %d", frames, len(frame))
	}
}

func TestFramerMultiplePacketsInOneFeed(t *testing.T) {
	f := NewFramer(0)
	a := varintFrame(0xD0, 0)  // PINGRESP, no payload
	b := varintFrame(0x30, 10) // PUBLISH-shaped
	frames, err := f.Feed(append(append([]byte{}, a...), b...))
	if err != nil {
		t.Fatalf("Feed: %v", err)
	}
	if len(frames) != 2 {
		t.Fatalf("got %d frames, want 2", len(frames))
	}
}

func TestFramerPartialHeader(t *testing.T) {
	f := NewFramer(0)
	frame := varintFrame(0x30, 200)

	// Feed only the first byte (type byte, no length byte yet).
	frames, err := f.Feed(frame[:1])
	if err != nil || len(frames) != 0 {
		t.Fatalf("Feed(1 byte) = %v, %v; want 0 frames, nil err", frames, err)
	}

	// Feed the rest of the varint length bytes but none of the payload.
	frames, err = f.Feed(frame[1:3])
	if err != nil || len(frames) != 0 {
		t.Fatalf("Feed(header) = %v, %v; want 0 frames, nil err", frames, err)
	}

	// Feed the remaining payload in two chunks.
	frames, err = f.Feed(frame[3 : 3+100])
	if err != nil || len(frames) != 0 {
		t.Fatalf("Feed(partial payload) = %v, %v; want 0 frames, nil err", frames, err)
	}
	frames, err = f.Feed(frame[3+100:])
	if err != nil {
		t.Fatalf("Feed(rest): %v", err)
	}
	if len(frames) != 1 || len(frames[0]) != len(frame) {
		t.Fatalf("frames = %v, want one frame of length %d", frames, len(frame))
	}
}

func TestFramerVarintBoundaries(t *testing.T) {
	for _, remLen := range []int{0, 1, 127, 128, 16383, 16384} {
		t.Run("", func(t *testing.T) {
			f := NewFramer(0)
			frame := varintFrame(0x30, remLen)
			frames, err := f.Feed(frame)
			if err != nil {
				t.Fatalf("remLen=%d: Feed: %v", remLen, err)
			}
			if len(frames) != 1 || len(frames[0]) != len(frame) {
				t.Fatalf("remLen=%d: frames = %d frames, want 1 of length %d", remLen, len(frames), len(frame))
			}
		})
	}
}

func TestFramerMaxPacketSizeEnforced(t *testing.T) {
	f := NewFramer(10)
	frame := varintFrame(0x30, 20) // total well over the 10 byte cap
	_, err := f.Feed(frame)
	if err != ErrPacketTooLarge {
		t.Fatalf("err = %v, want ErrPacketTooLarge", err)
	}
}

func TestFramerMalformedVarint(t *testing.T) {
	f := NewFramer(0)
	// Five bytes all with the continuation bit set: no terminator within
	// the 4-byte varint limit.
	bad := []byte{0x30, 0xFF, 0xFF, 0xFF, 0xFF}
	_, err := f.Feed(bad)
	if err != ErrMalformedPacket {
		t.Fatalf("err = %v, want ErrMalformedPacket", err)
	}
}

func TestFramerReset(t *testing.T) {
	f := NewFramer(0)
	frame := varintFrame(0x30, 50)
	if _, err := f.Feed(frame[:10]); err != nil {
		t.Fatalf("Feed: %v", err)
	}
	f.Reset()
	if len(f.buf) != 0 {
		t.Fatalf("buf = %v, want empty after Reset", f.buf)
	}
	// A fresh frame fed after Reset should parse cleanly with no leftover
	// bytes from the discarded partial frame.
	frames, err := f.Feed(varintFrame(0xD0, 0))
	if err != nil || len(frames) != 1 {
		t.Fatalf("Feed after Reset = %v, %v", frames, err)
	}
}
