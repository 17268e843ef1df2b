package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/rs/zerolog"
)

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to decode log line %q: %v", buf.String(), err)
	}
	return entry
}

func TestInfoCarriesServiceAndFields(t *testing.T) {
	var buf bytes.Buffer
	logg := New(Options{ServiceName: "wallet", Output: &buf})

	ctx := logg.WithWalletID(context.Background(), "w-123")
	ctx = logg.WithReference(ctx, "txn-abc")
	logg.Info(ctx, "ledger.credit")

	entry := decodeLine(t, &buf)
	if entry["service"] != "wallet" {
		t.Fatalf("expected service field, got %v", entry["service"])
	}
	if entry["wallet_id"] != "w-123" {
		t.Fatalf("expected wallet_id field, got %v", entry["wallet_id"])
	}
	if entry["reference"] != "txn-abc" {
		t.Fatalf("expected reference field, got %v", entry["reference"])
	}
	if entry["message"] != "ledger.credit" {
		t.Fatalf("unexpected message %v", entry["message"])
	}
}

func TestErrorIncludesStack(t *testing.T) {
	var buf bytes.Buffer
	logg := New(Options{ServiceName: "wallet", Output: &buf})

	logg.Error(context.Background(), "ledger.invariant", errors.New("balance drift"))

	entry := decodeLine(t, &buf)
	if entry["error"] != "balance drift" {
		t.Fatalf("expected error field, got %v", entry["error"])
	}
	if _, ok := entry["stack"]; !ok {
		t.Fatal("expected stack field on error logs")
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logg := New(Options{ServiceName: "wallet", Output: &buf, Level: zerolog.WarnLevel})

	logg.Info(context.Background(), "ignored")
	if buf.Len() != 0 {
		t.Fatalf("expected info to be filtered, got %q", buf.String())
	}
}

func TestParseLevel(t *testing.T) {
	if ParseLevel("debug") != zerolog.DebugLevel {
		t.Fatal("expected debug level")
	}
	if ParseLevel("") != zerolog.InfoLevel {
		t.Fatal("expected default info level")
	}
	if ParseLevel("nope") != zerolog.InfoLevel {
		t.Fatal("expected fallback info level")
	}
}
