package client

import (
	"context"
	"testing"
	"time"
)

func TestIDBeforeConnectReturnsConfigured(t *testing.T) {
	c := New(ClientID("device-1"))
	if c.ID() != "device-1" {
		t.Fatalf("ID() = %q, want %q", c.ID(), "device-1")
	}
}

func TestDisconnectBeforeConnectIsNoop(t *testing.T) {
	c := New()
	if err := c.Disconnect(context.Background()); err != nil {
		t.Fatalf("Disconnect: %v", err)
	}
}

func TestWaitEngineTimesOutWithoutConnect(t *testing.T) {
	c := New()
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := c.waitEngine(ctx); err == nil {
		t.Fatal("expected waitEngine to time out with no Connect ever called")
	}
}

func TestWaitEngineUnblocksOnSetEngine(t *testing.T) {
	c := New()
	done := make(chan error, 1)
	go func() {
		_, err := c.waitEngine(context.Background())
		done <- err
	}()

	// Give the goroutine a moment to start waiting before installing an
	// engine; setEngine(nil) is enough to exercise the close(ready) path
	// without standing up a real connection.
	time.Sleep(10 * time.Millisecond)
	c.setEngine(nil)

	select {
	case err := <-done:
		if err == nil {
			t.Fatal("expected waitEngine to report not-connected for a nil engine")
		}
	case <-time.After(time.Second):
		t.Fatal("waitEngine did not unblock after setEngine")
	}
}
