package config

import (
	"testing"
	"time"
)

func TestLoadBytesAppliesDefaults(t *testing.T) {
	cfg, err := LoadBytes([]byte(`resolver-socket: /run/bgpscand/resolver.sock`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.ScanInterval() != 60*time.Second {
		t.Errorf("expected default scan interval 60s, got %s", cfg.ScanInterval())
	}
	if cfg.ImportInterval() != 60*time.Second {
		t.Errorf("expected default import interval 60s, got %s", cfg.ImportInterval())
	}
	if cfg.ImportCheck {
		t.Error("expected import-check to default to false")
	}
}

func TestLoadBytesRejectsOutOfRangeScanInterval(t *testing.T) {
	_, err := LoadBytes([]byte(`
resolver-socket: /run/bgpscand/resolver.sock
scan-interval: 120
`))
	if err == nil {
		t.Fatal("expected a validation error for a scan interval above 60")
	}
}

func TestLoadBytesRequiresResolverSocket(t *testing.T) {
	_, err := LoadBytes([]byte(`scan-interval: 30`))
	if err == nil {
		t.Fatal("expected a validation error when resolver-socket is missing")
	}
}

func TestLoadBytesRejectsUnknownFields(t *testing.T) {
	_, err := LoadBytes([]byte(`
resolver-socket: /run/bgpscand/resolver.sock
bogus-field: true
`))
	if err == nil {
		t.Fatal("expected UnmarshalStrict to reject an unknown field")
	}
}
