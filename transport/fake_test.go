package transport

import (
	"context"
	"testing"
)

func TestPipeRoundTrip(t *testing.T) {
	client, server := Pipe()
	defer client.Close()
	defer server.Close()

	want := []byte("hello mqtt")
	go func() {
		if _, err := client.Write(want); err != nil {
			t.Error(err)
		}
	}()

	got := make([]byte, len(want))
	n, err := server.Read(got)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(got[:n]) != string(want) {
		t.Fatalf("got %q, want %q", got[:n], want)
	}
}

func TestDialUnsupportedScheme(t *testing.T) {
	if _, err := Dial(context.Background(), "ftp", "example.com:21", nil, ""); err == nil {
		t.Fatal("expected error for unsupported scheme")
	}
}
