package inflight

import (
	"errors"
	"testing"

	"github.com/golang-io/mqttcore/packet"
)

func newPublish(id uint16) *packet.PUBLISH {
	return &packet.PUBLISH{
		FixedHeader: &packet.FixedHeader{Kind: 0x3, QoS: 1},
		PacketID:    id,
		Message:     &packet.Message{TopicName: "a/b", Content: []byte("hi")},
	}
}

func TestInsertLookupRemove(t *testing.T) {
	s := New()
	e := &Entry{PacketID: 7, Publish: newPublish(7), Direction: Outbound, State: SentPub}
	s.Insert(e)

	got, ok := s.Lookup(7)
	if !ok || got.PacketID != 7 {
		t.Fatalf("Lookup failed: got=%v ok=%v", got, ok)
	}

	if _, ok := s.Remove(7); !ok {
		t.Fatal("Remove reported not found")
	}
	if _, ok := s.Lookup(7); ok {
		t.Fatal("entry still present after Remove")
	}
}

func TestEnumerateSendOrderPreservesInsertionOrder(t *testing.T) {
	s := New()
	for _, id := range []uint16{3, 1, 2} {
		s.Insert(&Entry{PacketID: id, Publish: newPublish(id), Direction: Outbound, State: SentPub})
	}
	order := s.EnumerateSendOrder()
	want := []uint16{3, 1, 2}
	for i, e := range order {
		if e.PacketID != want[i] {
			t.Fatalf("order[%d] = %d, want %d", i, e.PacketID, want[i])
		}
	}
}

func TestReplayPlanResendsSentPubWithDup(t *testing.T) {
	s := New()
	s.Insert(&Entry{PacketID: 1, Publish: newPublish(1), Direction: Outbound, State: SentPub})

	plan := s.ReplayPlan()
	if len(plan) != 1 || plan[0].Kind != 0x3 {
		t.Fatalf("expected one PUBLISH resend, got %+v", plan)
	}
	if plan[0].Publish.Dup != 1 {
		t.Fatal("resent PUBLISH must have DUP=1")
	}
	// original entry's payload must be untouched
	if orig, _ := s.Lookup(1); orig.Publish.Dup == 1 {
		t.Fatal("ReplayPlan mutated the stored entry instead of a copy")
	}
}

func TestReplayPlanResendsPubrelNotOriginalPublish(t *testing.T) {
	s := New()
	s.Insert(&Entry{PacketID: 2, Publish: newPublish(2), Direction: Outbound, State: SentPubrel})

	plan := s.ReplayPlan()
	if len(plan) != 1 || plan[0].Kind != 0x6 {
		t.Fatalf("expected one PUBREL resend, got %+v", plan)
	}
}

func TestReplayPlanSkipsInboundEntries(t *testing.T) {
	s := New()
	s.Insert(&Entry{PacketID: 9, Publish: newPublish(9), Direction: Inbound, State: ReceivedPub})

	if plan := s.ReplayPlan(); len(plan) != 0 {
		t.Fatalf("inbound entries must not be retransmitted, got %+v", plan)
	}
}

func TestClearFailsAllWaiters(t *testing.T) {
	s := New()
	w := make(Waiter, 1)
	s.Insert(&Entry{PacketID: 5, Publish: newPublish(5), Direction: Outbound, State: SentPub, Waiter: w})

	sessionReset := errors.New("session reset")
	s.Clear(sessionReset)

	select {
	case err := <-w:
		if err != sessionReset {
			t.Fatalf("waiter got %v, want %v", err, sessionReset)
		}
	default:
		t.Fatal("waiter was not completed")
	}
	if s.Len() != 0 {
		t.Fatal("store not empty after Clear")
	}
}
