package engine

import (
	"testing"

	"github.com/golang-io/mqttcore/packet"
)

func TestAssignOutboundAliasLRUEviction(t *testing.T) {
	e := New(Config{Version: packet.VERSION500, ClientID: "t"}, nil, nil, NewMetrics("t"))
	e.serverTopicAliasMax = 2

	a1, sendA1 := e.assignOutboundAlias("a")
	if a1 != 1 || !sendA1 {
		t.Fatalf("assign a = (%d,%v), want (1,true)", a1, sendA1)
	}
	b1, sendB1 := e.assignOutboundAlias("b")
	if b1 != 2 || !sendB1 {
		t.Fatalf("assign b = (%d,%v), want (2,true)", b1, sendB1)
	}

	// Touch "a" again so "b" becomes the least recently used entry.
	if a2, send := e.assignOutboundAlias("a"); a2 != 1 || send {
		t.Fatalf("re-assign a = (%d,%v), want (1,false)", a2, send)
	}

	// The ceiling is reached: "b" must be the one evicted, not "a", since
	// "a" was touched more recently.
	c1, sendC1 := e.assignOutboundAlias("c")
	if c1 != 2 || !sendC1 {
		t.Fatalf("assign c = (%d,%v), want (2,true) reusing b's alias", c1, sendC1)
	}
	if _, ok := e.outboundAlias["b"]; ok {
		t.Fatal("b should have been evicted as least recently used")
	}
	if a3, send := e.assignOutboundAlias("a"); a3 != 1 || send {
		t.Fatalf("a should still be cached: got (%d,%v), want (1,false)", a3, send)
	}
}
