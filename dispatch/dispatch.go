// Package dispatch demultiplexes inbound MQTT packets: request/response
// packets resolve a waiter held by the engine or the inflight store, and
// PUBLISH packets fan out to registered listeners filtered by topic and,
// for v5, subscription identifier.
package dispatch

import (
	"context"
	"sync"
	"time"

	"github.com/golang-io/mqttcore/packet"
	"github.com/golang-io/mqttcore/topic"
	"golang.org/x/sync/errgroup"
)

// acceptTimeout bounds how long Deliver waits on a single listener's
// Accept before treating it as a drop. A listener is expected to enqueue
// and return, never do the application work inline; this is a backstop
// against one that doesn't, so it can't stall the engine's read loop.
const acceptTimeout = 2 * time.Second

// Delivery is a PUBLISH handed to a listener.
type Delivery struct {
	Message *packet.Message
	Props   *packet.PublishProperties
	QoS     uint8
	Retain  uint8
}

// Listener receives deliveries matching its subscription filter. Accept
// must not block for long: the dispatcher treats a listener that cannot
// keep up as a drop, never as a reason to stall other listeners or the
// engine's read loop.
type Listener interface {
	Accept(d Delivery) (ok bool)
}

// ListenerFunc adapts a function to a Listener.
type ListenerFunc func(d Delivery) bool

func (f ListenerFunc) Accept(d Delivery) bool { return f(d) }

type entry struct {
	name                string
	filter              string
	subscriptionIDs      map[uint32]struct{} // empty = match regardless of subscription identifier
	listener            Listener
}

// Registry holds listeners keyed by opaque name, each with its topic
// filter. It is the client engine's single-threaded-owned fan-out table:
// callers add/remove by name from outside the engine goroutine, but
// Deliver is only ever called from the engine's own run loop.
type Registry struct {
	mu      sync.RWMutex
	byName  map[string]*entry
}

func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]*entry)}
}

// Add registers a listener under name for the given topic filter. An
// empty subscriptionIDs set means "match any publish on this filter,
// with or without a subscription identifier" (the v3.1.1 and
// no-subscription-identifier v5 case).
func (r *Registry) Add(name, filter string, subscriptionIDs []uint32, l Listener) {
	ids := make(map[uint32]struct{}, len(subscriptionIDs))
	for _, id := range subscriptionIDs {
		ids[id] = struct{}{}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byName[name] = &entry{name: name, filter: filter, subscriptionIDs: ids, listener: l}
}

func (r *Registry) Remove(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.byName, name)
}

// Deliver fans a PUBLISH out to every matching listener concurrently,
// using errgroup the way the teacher's TopicSubscribed.Exchange fanned
// publishes out to subscribed connections. A listener returning false
// (backpressure/drop) is not an error for the group: Deliver never fails
// because a slow listener dropped a message.
func (r *Registry) Deliver(ctx context.Context, d Delivery, publishSubIDs []uint32) {
	r.mu.RLock()
	matches := make([]*entry, 0, len(r.byName))
	for _, e := range r.byName {
		if !topic.Matches(e.filter, d.Message.TopicName) {
			continue
		}
		if len(e.subscriptionIDs) > 0 && !intersects(e.subscriptionIDs, publishSubIDs) {
			continue
		}
		matches = append(matches, e)
	}
	r.mu.RUnlock()

	if len(matches) == 0 {
		return
	}
	g, _ := errgroup.WithContext(ctx)
	for _, e := range matches {
		e := e
		g.Go(func() error {
			acceptWithTimeout(e.listener, d)
			return nil
		})
	}
	_ = g.Wait()
}

// acceptWithTimeout calls l.Accept and honors its drop signal: a false
// return or a listener that doesn't answer within acceptTimeout is
// silently dropped, never propagated as a Deliver failure.
func acceptWithTimeout(l Listener, d Delivery) {
	done := make(chan bool, 1)
	go func() { done <- l.Accept(d) }()
	select {
	case <-done:
	case <-time.After(acceptTimeout):
	}
}

func intersects(set map[uint32]struct{}, ids []uint32) bool {
	if len(ids) == 0 {
		return false
	}
	for _, id := range ids {
		if _, ok := set[id]; ok {
			return true
		}
	}
	return false
}
