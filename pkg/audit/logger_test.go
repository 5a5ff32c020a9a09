package audit

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/castlegate-ai/castlegate/pkg/models"
)

func tempCfg(t *testing.T) models.AuditConfig {
	t.Helper()
	return models.AuditConfig{
		Enabled:       true,
		DBPath:        filepath.Join(t.TempDir(), "audit_test.db"),
		RetentionDays: 90,
	}
}

func mustNew(t *testing.T, cfg models.AuditConfig) *Logger {
	t.Helper()
	l, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = l.Close() })
	return l
}

func sampleEntry() models.AuditEntry {
	hash, prefix := HashIdentity("session-abc123")
	return models.AuditEntry{
		RequestID:      "req-001",
		IdentityHash:   hash,
		IdentityPrefix: prefix,
		Route:          "/analysis/move",
		Plan:           models.PlanFree,
		Path:           "generated",
		SpeechPath:     "premium",
		StoreProvider:  "primary",
		StatusCode:     200,
		LatencyMs:      150,
		CreatedAt:      time.Now(),
	}
}

func TestLogAndQuery(t *testing.T) {
	l := mustNew(t, tempCfg(t))
	ctx := context.Background()

	if err := l.Log(ctx, sampleEntry()); err != nil {
		t.Fatalf("Log: %v", err)
	}

	entries, err := l.Query(ctx, models.AuditQueryOpts{Route: "/analysis/move"})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	if entries[0].RequestID != "req-001" {
		t.Errorf("expected req-001, got %s", entries[0].RequestID)
	}
	if entries[0].Path != "generated" || entries[0].SpeechPath != "premium" {
		t.Errorf("unexpected paths: %+v", entries[0])
	}
}

func TestQueryByPath(t *testing.T) {
	l := mustNew(t, tempCfg(t))
	ctx := context.Background()

	_ = l.Log(ctx, sampleEntry())
	e2 := sampleEntry()
	e2.RequestID = "req-002"
	e2.Path = "memo"
	_ = l.Log(ctx, e2)

	entries, err := l.Query(ctx, models.AuditQueryOpts{Path: "memo"})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(entries) != 1 || entries[0].RequestID != "req-002" {
		t.Fatalf("expected only req-002, got %+v", entries)
	}
}

func TestQueryByPrefix(t *testing.T) {
	l := mustNew(t, tempCfg(t))
	ctx := context.Background()

	_ = l.Log(ctx, sampleEntry())

	entries, err := l.Query(ctx, models.AuditQueryOpts{IdentityPrefix: "session-"})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1, got %d", len(entries))
	}
}

func TestQueryLimit(t *testing.T) {
	l := mustNew(t, tempCfg(t))
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		e := sampleEntry()
		e.RequestID = string(rune('a' + i))
		_ = l.Log(ctx, e)
	}

	entries, err := l.Query(ctx, models.AuditQueryOpts{Limit: 3})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(entries) != 3 {
		t.Errorf("expected 3 entries, got %d", len(entries))
	}
}

func TestCleanup(t *testing.T) {
	cfg := tempCfg(t)
	cfg.RetentionDays = 0 // everything is old
	l := mustNew(t, cfg)
	ctx := context.Background()

	entry := sampleEntry()
	entry.CreatedAt = time.Now().AddDate(0, 0, -1)
	_ = l.Log(ctx, entry)

	deleted, err := l.Cleanup(ctx)
	if err != nil {
		t.Fatalf("Cleanup: %v", err)
	}
	if deleted != 1 {
		t.Errorf("expected 1 deleted, got %d", deleted)
	}
}

func TestStats(t *testing.T) {
	l := mustNew(t, tempCfg(t))
	ctx := context.Background()

	_ = l.Log(ctx, sampleEntry())
	e2 := sampleEntry()
	e2.RequestID = "req-002"
	_ = l.Log(ctx, e2)

	stats, err := l.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if len(stats) == 0 {
		t.Fatal("expected stats")
	}
	if stats[0].Count != 2 {
		t.Errorf("expected count 2, got %d", stats[0].Count)
	}
}

func TestHashIdentity(t *testing.T) {
	hash, prefix := HashIdentity("session-abc123xyz")
	if len(hash) != 64 {
		t.Errorf("expected 64-char hash, got %d", len(hash))
	}
	if prefix != "session-" {
		t.Errorf("expected prefix session-, got %s", prefix)
	}

	shortHash, shortPrefix := HashIdentity("ab")
	if shortPrefix != "ab" {
		t.Errorf("expected short identity kept whole, got %s", shortPrefix)
	}
	if shortHash == hash {
		t.Error("distinct identities must hash differently")
	}
}

func TestNilLoggerSafe(t *testing.T) {
	var l *Logger
	if err := l.Log(context.Background(), sampleEntry()); err != nil {
		t.Errorf("nil logger should be safe: %v", err)
	}
	if err := l.Close(); err != nil {
		t.Errorf("nil logger close should be safe: %v", err)
	}
}

func TestNewInvalidPath(t *testing.T) {
	cfg := models.AuditConfig{
		Enabled: true,
		DBPath:  filepath.Join(os.TempDir(), "nonexistent", "deep", "path", "audit.db"),
	}
	_, err := New(cfg)
	if err == nil {
		t.Error("expected error for invalid path")
	}
}
