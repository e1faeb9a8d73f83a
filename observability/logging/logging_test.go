package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoggerRenamesStandardKeys(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, " ledgerd ", "test")
	logger.Warn("pool accrued", "asset", "usdc")

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("decode log line: %v", err)
	}
	if line["message"] != "pool accrued" {
		t.Fatalf("unexpected message: %v", line["message"])
	}
	if line["severity"] != "WARN" {
		t.Fatalf("unexpected severity: %v", line["severity"])
	}
	if line["service"] != "ledgerd" || line["env"] != "test" {
		t.Fatalf("missing service attributes: %v", line)
	}
	if _, ok := line["timestamp"]; !ok {
		t.Fatalf("timestamp key missing: %v", line)
	}
}

func TestSetupWithFileWritesRotatingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledgerd.log")
	logger, closer := SetupWithFile("ledgerd", "", FileConfig{Path: path, MaxSizeMB: 1})
	logger.Info("listed asset", "asset", "usdc")
	if err := closer.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(data), "listed asset") {
		t.Fatalf("log file missing record: %s", data)
	}
}

func TestMaskField(t *testing.T) {
	if attr := MaskField("dsn", "postgres://user:pw@db/ledger"); attr.Value.String() != RedactedValue {
		t.Fatalf("dsn not redacted: %v", attr.Value)
	}
	if attr := MaskField("Asset", "usdc"); attr.Value.String() != "usdc" {
		t.Fatalf("allowlisted key redacted: %v", attr.Value)
	}
	if attr := MaskField("secret", " "); attr.Value.String() != " " {
		t.Fatalf("empty value should pass through: %q", attr.Value.String())
	}
}
