package dispatch

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/golang-io/mqttcore/packet"
)

func TestRegistryDeliverMatchesFilter(t *testing.T) {
	r := NewRegistry()

	var mu sync.Mutex
	var got []string
	l := ListenerFunc(func(d Delivery) bool {
		mu.Lock()
		got = append(got, d.Message.TopicName)
		mu.Unlock()
		return true
	})
	r.Add("sub-1", "a/+", nil, l)

	r.Deliver(context.Background(), Delivery{Message: &packet.Message{TopicName: "a/b"}}, nil)
	r.Deliver(context.Background(), Delivery{Message: &packet.Message{TopicName: "c/d"}}, nil)

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 1 || got[0] != "a/b" {
		t.Fatalf("got = %v, want [a/b]", got)
	}
}

func TestRegistryRemoveStopsDelivery(t *testing.T) {
	r := NewRegistry()
	calls := 0
	l := ListenerFunc(func(d Delivery) bool { calls++; return true })
	r.Add("sub-1", "a/b", nil, l)
	r.Remove("sub-1")

	r.Deliver(context.Background(), Delivery{Message: &packet.Message{TopicName: "a/b"}}, nil)
	if calls != 0 {
		t.Fatalf("calls = %d, want 0 after Remove", calls)
	}
}

func TestRegistryDeliverFiltersBySubscriptionID(t *testing.T) {
	r := NewRegistry()
	calls := 0
	l := ListenerFunc(func(d Delivery) bool { calls++; return true })
	r.Add("sub-1", "a/b", []uint32{5}, l)

	// A publish carrying no subscription identifiers never matches a
	// listener that registered with one.
	r.Deliver(context.Background(), Delivery{Message: &packet.Message{TopicName: "a/b"}}, nil)
	if calls != 0 {
		t.Fatalf("calls = %d, want 0 for a publish with no matching subscription id", calls)
	}

	r.Deliver(context.Background(), Delivery{Message: &packet.Message{TopicName: "a/b"}}, []uint32{5})
	if calls != 1 {
		t.Fatalf("calls = %d, want 1 once the subscription id matches", calls)
	}
}

func TestRegistryDeliverToMultipleListeners(t *testing.T) {
	r := NewRegistry()
	var mu sync.Mutex
	hits := map[string]bool{}
	r.Add("sub-1", "a/#", nil, ListenerFunc(func(d Delivery) bool {
		mu.Lock()
		hits["sub-1"] = true
		mu.Unlock()
		return true
	}))
	r.Add("sub-2", "a/b", nil, ListenerFunc(func(d Delivery) bool {
		mu.Lock()
		hits["sub-2"] = true
		mu.Unlock()
		return true
	}))

	r.Deliver(context.Background(), Delivery{Message: &packet.Message{TopicName: "a/b"}}, nil)

	mu.Lock()
	defer mu.Unlock()
	if !hits["sub-1"] || !hits["sub-2"] {
		t.Fatalf("hits = %v, want both listeners reached", hits)
	}
}

func TestRegistryDeliverDropsAListenerThatNeverReturns(t *testing.T) {
	r := NewRegistry()
	blocked := make(chan struct{})
	r.Add("slow", "a/b", nil, ListenerFunc(func(d Delivery) bool {
		<-blocked
		return true
	}))

	done := make(chan struct{})
	go func() {
		r.Deliver(context.Background(), Delivery{Message: &packet.Message{TopicName: "a/b"}}, nil)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(acceptTimeout + time.Second):
		t.Fatal("Deliver did not return within acceptTimeout for a listener that never returns")
	}
	close(blocked)
}
