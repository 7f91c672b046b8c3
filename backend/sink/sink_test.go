package sink

import (
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"mcslp/backend/address"
	"mcslp/backend/enrich"
)

func mustAddr(t *testing.T, s string) address.Address {
	a, ok := address.FromNetIP(net.ParseIP(s))
	if !ok {
		t.Fatalf("bad address %q", s)
	}
	return a
}

func TestTextCatalogAppendFormat(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "catalog.txt")
	cat := NewTextCatalog(path)

	es := enrich.EnrichedServer{
		Address:   mustAddr(t, "203.0.113.17"),
		Version:   "1.20.4",
		PlayersOn: 25, PlayersMax: 100,
		MOTD:      "Welcome\nhome",
		Country:   "United States",
		Quality:   50,
		Timestamp: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
	if err := cat.Append(es); err != nil {
		t.Fatalf("append: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	line := strings.TrimSpace(string(data))
	fields := strings.Split(line, "|")
	if len(fields) != 7 {
		t.Fatalf("expected 7 fields, got %d: %v", len(fields), fields)
	}
	if fields[0] != "203.0.113.17" || fields[1] != "1.20.4" || fields[2] != "25/100" {
		t.Fatalf("unexpected fields: %v", fields)
	}
	if strings.Contains(fields[3], "\n") {
		t.Fatalf("motd should have newlines replaced with spaces: %q", fields[3])
	}
}

func TestDedupAcrossSessionsScenario(t *testing.T) {
	// Matches §8 scenario 6.
	dir := t.TempDir()
	textPath := filepath.Join(dir, "catalog.txt")

	seen1 := NewSeenSet()
	s1 := New(seen1, textPath, "", false, nil)
	es := enrich.EnrichedServer{Address: mustAddr(t, "203.0.113.17"), Version: "1.20.4", Timestamp: time.Now()}
	if err := s1.Append(es); err != nil {
		t.Fatalf("append: %v", err)
	}

	seen2 := NewSeenSet()
	if err := seen2.SeedFromCatalog(textPath); err != nil {
		t.Fatalf("seed: %v", err)
	}
	s2 := New(seen2, textPath, "", false, nil)
	if err := s2.Append(es); err != nil {
		t.Fatalf("append: %v", err)
	}
	if s2.DuplicatesSkipped != 1 {
		t.Fatalf("expected duplicate to be skipped, got %d", s2.DuplicatesSkipped)
	}

	data, _ := os.ReadFile(textPath)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected catalog length unchanged at 1 line, got %d", len(lines))
	}
}

func TestSeenSetTrimRetainsMostRecent(t *testing.T) {
	s := NewSeenSet()
	for i := 0; i < seenSetTrimThreshold+10; i++ {
		a := address.FromOctets(byte(i>>24), byte(i>>16), byte(i>>8), byte(i))
		s.Insert(a)
	}
	if s.Len() > seenSetTrimRetain {
		t.Fatalf("expected trim to cap at %d, got %d", seenSetTrimRetain, s.Len())
	}
	lastVal := seenSetTrimThreshold + 9
	last := address.FromOctets(byte(lastVal>>24), byte(lastVal>>16), byte(lastVal>>8), byte(lastVal))
	if !s.Contains(last) {
		t.Fatalf("expected most recently inserted entry to survive trim")
	}
}

func TestCSVExportWritesHeaderAndRows(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "export.csv")
	servers := []enrich.EnrichedServer{
		{Address: mustAddr(t, "1.2.3.4"), Version: "1.20.4", PlayersOn: 5, PlayersMax: 20, Timestamp: time.Now()},
	}
	if err := WriteCSVExport(path, servers); err != nil {
		t.Fatalf("export: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected header + 1 row, got %d lines", len(lines))
	}
}
