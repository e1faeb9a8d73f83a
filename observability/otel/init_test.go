package otel

import (
	"context"
	"testing"
)

func TestParseHeaders(t *testing.T) {
	got := ParseHeaders(" api-key = abc ,broken, =skip,tenant=ledger,")
	if len(got) != 2 {
		t.Fatalf("expected 2 headers, got %v", got)
	}
	if got["api-key"] != "abc" || got["tenant"] != "ledger" {
		t.Fatalf("unexpected headers: %v", got)
	}
}

func TestInitValidation(t *testing.T) {
	if _, err := Init(context.Background(), Config{}); err == nil {
		t.Fatalf("expected missing service name to fail")
	}
	if _, err := Init(context.Background(), Config{ServiceName: "ledgerd", SampleRatio: 1.5}); err == nil {
		t.Fatalf("expected out of range sample ratio to fail")
	}
}

func TestInitWithoutExporters(t *testing.T) {
	cfg := Config{ServiceName: "ledgerd"}
	if cfg.Enabled() {
		t.Fatalf("no exporters requested")
	}
	shutdown, err := Init(context.Background(), cfg)
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}
