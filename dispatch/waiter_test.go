package dispatch

import (
	"errors"
	"testing"
)

func TestWaiterResolve(t *testing.T) {
	w := NewWaiter[int]()
	w.Arm()
	w.Resolve(42)
	res := <-w.Chan()
	v, err := res.Unpack()
	if err != nil || v != 42 {
		t.Fatalf("Unpack() = %d, %v; want 42, nil", v, err)
	}
}

func TestWaiterFail(t *testing.T) {
	w := NewWaiter[int]()
	w.Arm()
	want := errors.New("boom")
	w.Fail(want)
	res := <-w.Chan()
	_, err := res.Unpack()
	if err != want {
		t.Fatalf("err = %v, want %v", err, want)
	}
}

func TestWaiterRearm(t *testing.T) {
	w := NewWaiter[int]()
	w.Arm()
	w.Resolve(1)
	<-w.Chan()

	w.Arm()
	w.Resolve(2)
	v, err := (<-w.Chan()).Unpack()
	if err != nil || v != 2 {
		t.Fatalf("Unpack() = %d, %v; want 2, nil", v, err)
	}
}

func TestWaiterFailWithoutArmIsNoop(t *testing.T) {
	w := NewWaiter[int]()
	// No Arm call: ch has no buffered capacity consumer waiting, but the
	// channel itself is still buffered size 1 from NewWaiter, so Fail
	// still succeeds once without panicking.
	w.Fail(errors.New("boom"))
}
