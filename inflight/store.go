// Package inflight tracks QoS 1/2 exchanges that have been sent or
// received but not yet acknowledged to completion. Entries survive a
// reconnect so the engine can replay them per the rules in resend.go;
// they are discarded only when Session Present comes back false, meaning
// the server itself discarded the session.
package inflight

import (
	"container/list"
	"sync"
	"time"

	"github.com/golang-io/mqttcore/packet"
)

// Direction distinguishes a PUBLISH this client originated (Outbound) from
// one the server is delivering to this client (Inbound); the resend rules
// on reconnect differ for each.
type Direction uint8

const (
	Outbound Direction = iota
	Inbound
)

// State is the exchange's position in the QoS handshake.
type State uint8

const (
	// SentPub: Outbound QoS 1/2 PUBLISH sent, awaiting PUBACK/PUBREC.
	SentPub State = iota
	// SentPubrel: Outbound QoS 2, PUBREC received, PUBREL sent, awaiting PUBCOMP.
	SentPubrel
	// ReceivedPub: Inbound QoS 2 PUBLISH received, PUBREC sent, awaiting PUBREL.
	ReceivedPub
)

// Waiter is completed exactly once when the exchange reaches a terminal
// state or is abandoned (session reset, client closed).
type Waiter chan error

// Entry is one in-flight exchange.
type Entry struct {
	PacketID  uint16
	Publish   *packet.PUBLISH
	Direction Direction
	State     State
	Waiter    Waiter
	LastSent  time.Time

	elem *list.Element // position in the store's send-order list
}

// Store is a concurrency-safe map of in-flight exchanges keyed by packet
// identifier, plus an insertion-ordered list used to replay outbound
// entries in the order they were originally sent.
type Store struct {
	mu      sync.RWMutex
	entries map[uint16]*Entry
	order   *list.List
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		entries: make(map[uint16]*Entry),
		order:   list.New(),
	}
}

// Insert adds a new in-flight entry. It panics if PacketID is already
// tracked — callers must not reuse an identifier idalloc hasn't released.
func (s *Store) Insert(e *Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.entries[e.PacketID]; exists {
		panic("inflight: duplicate packet identifier inserted")
	}
	e.elem = s.order.PushBack(e.PacketID)
	s.entries[e.PacketID] = e
}

// Lookup returns the entry for id, if any.
func (s *Store) Lookup(id uint16) (*Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[id]
	return e, ok
}

// Transition moves an existing entry to a new state in place, used when a
// QoS 2 outbound exchange advances from SentPub (PUBREC received) to
// SentPubrel.
func (s *Store) Transition(id uint16, state State) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok {
		return false
	}
	e.State = state
	e.LastSent = time.Now()
	return true
}

// Remove deletes the entry for id. It does not touch the waiter: the
// caller observed the terminal acknowledgement (PUBACK for QoS 1, PUBCOMP
// for QoS 2 outbound; PUBREL for QoS 2 inbound) and knows its reason code,
// so it resolves e.Waiter itself with the right success/failure value
// before or after calling Remove.
func (s *Store) Remove(id uint16) (*Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok {
		return nil, false
	}
	delete(s.entries, id)
	s.order.Remove(e.elem)
	return e, true
}

// Len reports the number of tracked exchanges.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// EnumerateSendOrder returns every tracked entry in the order it was
// inserted, which is also the order a resend pass should retransmit in.
func (s *Store) EnumerateSendOrder() []*Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Entry, 0, s.order.Len())
	for el := s.order.Front(); el != nil; el = el.Next() {
		id := el.Value.(uint16)
		out = append(out, s.entries[id])
	}
	return out
}

// Clear empties the store, failing every waiter with err. Used when Session
// Present comes back false on reconnect: the server discarded the session,
// so no in-flight exchange can be resumed.
func (s *Store) Clear(err error) {
	s.mu.Lock()
	entries := make([]*Entry, 0, len(s.entries))
	for _, e := range s.entries {
		entries = append(entries, e)
	}
	s.entries = make(map[uint16]*Entry)
	s.order = list.New()
	s.mu.Unlock()

	for _, e := range entries {
		if e.Waiter != nil {
			e.Waiter <- err
		}
	}
}
