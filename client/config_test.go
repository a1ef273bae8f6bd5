package client

import (
	"testing"
	"time"

	"github.com/golang-io/mqttcore/packet"
)

func TestNewConfigDefaults(t *testing.T) {
	cfg := newConfig()
	if cfg.Version != packet.VERSION311 {
		t.Fatalf("Version = %v, want VERSION311", cfg.Version)
	}
	if !cfg.CleanStart {
		t.Fatal("CleanStart default = false, want true")
	}
	if cfg.ClientID == "" {
		t.Fatal("ClientID default is empty")
	}
}

func TestOptionsOverrideDefaults(t *testing.T) {
	cfg := newConfig(
		URL("mqtts://broker.example:8883"),
		ClientID("device-42"),
		Version(packet.VERSION500),
		KeepAlive(30*time.Second),
		CleanStart(false),
		Credentials("alice", "secret"),
		ReceiveMaximum(100),
		UserProperty("region", "us-east"),
	)
	if cfg.URL != "mqtts://broker.example:8883" {
		t.Fatalf("URL = %q", cfg.URL)
	}
	if cfg.ClientID != "device-42" {
		t.Fatalf("ClientID = %q", cfg.ClientID)
	}
	if cfg.Version != packet.VERSION500 {
		t.Fatalf("Version = %v, want VERSION500", cfg.Version)
	}
	if cfg.KeepAlive != 30*time.Second {
		t.Fatalf("KeepAlive = %v", cfg.KeepAlive)
	}
	if cfg.CleanStart {
		t.Fatal("CleanStart = true, want false")
	}
	if cfg.Username != "alice" || cfg.Password != "secret" {
		t.Fatalf("Credentials = %q/%q", cfg.Username, cfg.Password)
	}
	if cfg.ReceiveMaximum != 100 {
		t.Fatalf("ReceiveMaximum = %d", cfg.ReceiveMaximum)
	}
	if got := cfg.UserProperties["region"]; len(got) != 1 || got[0] != "us-east" {
		t.Fatalf("UserProperties[region] = %v", got)
	}
}

func TestVersionOptionAcceptsWireStrings(t *testing.T) {
	cfg := newConfig(Version("5.0.0"))
	if cfg.Version != packet.VERSION500 {
		t.Fatalf("Version = %v, want VERSION500", cfg.Version)
	}
	cfg = newConfig(Version("3.1.1"))
	if cfg.Version != packet.VERSION311 {
		t.Fatalf("Version = %v, want VERSION311", cfg.Version)
	}
}

func TestEngineConfigCarriesFields(t *testing.T) {
	cfg := newConfig(ClientID("device-1"), SessionExpiry(3600), DrainTimeout(250*time.Millisecond))
	ec := cfg.engineConfig()
	if ec.ClientID != "device-1" {
		t.Fatalf("ClientID = %q", ec.ClientID)
	}
	if ec.SessionExpiry != 3600 {
		t.Fatalf("SessionExpiry = %d", ec.SessionExpiry)
	}
	if ec.DrainTimeout != 250*time.Millisecond {
		t.Fatalf("DrainTimeout = %v", ec.DrainTimeout)
	}
}
