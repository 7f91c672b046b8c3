package enrich

import (
	"context"
	"net"
	"testing"
	"time"

	"mcslp/backend/address"
	"mcslp/backend/fingerprint"
	"mcslp/backend/protocol"
)

func mustAddr(t *testing.T, s string) address.Address {
	ip := net.ParseIP(s)
	a, ok := address.FromNetIP(ip)
	if !ok {
		t.Fatalf("bad address %q", s)
	}
	return a
}

type stubResolver struct {
	host string
	ok   bool
}

func (s stubResolver) PTR(ctx context.Context, addr address.Address) (string, bool) {
	return s.host, s.ok
}

func TestEnrichSuccessfulProbeScenario(t *testing.T) {
	// Matches §8 scenario 3 exactly.
	status := protocol.RawStatus{
		VersionName:     "1.20.4",
		VersionProtocol: 765,
		PlayersOnline:   25,
		PlayersMax:      100,
		Description:     "Welcome",
		RawJSON:         `{"version":{"name":"1.20.4","protocol":765},"players":{"online":25,"max":100},"description":{"text":"Welcome"}}`,
	}
	e := New(fingerprint.NewEngine(fingerprint.DefaultRuleSet()), nil, false, nil)
	es := e.Enrich(context.Background(), mustAddr(t, "203.0.113.17"), 25565, status, 120, time.Unix(0, 0))

	if es.Version != "1.20.4" || es.PlayersOn != 25 || es.PlayersMax != 100 {
		t.Fatalf("unexpected fields: %+v", es)
	}
	if es.MOTD != "Welcome" {
		t.Fatalf("expected motd Welcome, got %q", es.MOTD)
	}
	if es.Quality != 55 {
		t.Fatalf("expected quality 55 (20+20+15), got %d", es.Quality)
	}
	if es.Modded {
		t.Fatalf("expected modded=false for vanilla banner")
	}
}

func TestEnrichMalformedFallbackScenario(t *testing.T) {
	// Matches §8 scenario 4: players 0/10, motd "No description", modded=false.
	status := protocol.RawStatus{
		PlayersOnline: 0,
		PlayersMax:    10,
		RawJSON:       `{"players":{"online":0,"max":10}}`,
	}
	e := New(fingerprint.NewEngine(fingerprint.DefaultRuleSet()), nil, false, nil)
	es := e.Enrich(context.Background(), mustAddr(t, "203.0.113.17"), 25565, status, 50, time.Unix(0, 0))

	if es.PlayersOn != 0 || es.PlayersMax != 10 {
		t.Fatalf("unexpected players: %+v", es)
	}
	if es.MOTD != "No description" {
		t.Fatalf("expected fallback motd, got %q", es.MOTD)
	}
	if es.Modded {
		t.Fatalf("expected modded=false")
	}
}

func TestEnrichStripsColorCodes(t *testing.T) {
	status := protocol.RawStatus{Description: "§aHello §lWorld"}
	e := New(nil, nil, false, nil)
	es := e.Enrich(context.Background(), mustAddr(t, "1.2.3.4"), 25565, status, 10, time.Unix(0, 0))
	if es.MOTD != "Hello World" {
		t.Fatalf("expected color codes stripped, got %q", es.MOTD)
	}
}

func TestEnrichModdedDetection(t *testing.T) {
	status := protocol.RawStatus{
		Description: "Running on Paper with Forge compat",
		RawJSON:     `{"description":{"text":"Running on Paper with Forge compat"}}`,
	}
	e := New(fingerprint.NewEngine(fingerprint.DefaultRuleSet()), nil, false, nil)
	es := e.Enrich(context.Background(), mustAddr(t, "1.2.3.4"), 25565, status, 10, time.Unix(0, 0))
	if !es.Modded {
		t.Fatalf("expected modded=true")
	}
	if len(es.Platforms) < 2 {
		t.Fatalf("expected at least 2 platforms, got %v", es.Platforms)
	}
}

func TestEnrichQualityScoreClampsAt100(t *testing.T) {
	status := protocol.RawStatus{
		VersionName:   "1.21.1",
		PlayersOnline: 200,
		Description:   "A very long and descriptive MOTD string here",
	}
	e := New(nil, nil, false, nil)
	es := e.Enrich(context.Background(), mustAddr(t, "1.2.3.4"), 25565, status, 5, time.Unix(0, 0))
	if es.Quality != 100 {
		t.Fatalf("expected clamped quality 100, got %d", es.Quality)
	}
}

func TestEnrichGeoIPDisabledYieldsUnknown(t *testing.T) {
	e := New(nil, stubResolver{host: "server.us.example.net", ok: true}, false, nil)
	es := e.Enrich(context.Background(), mustAddr(t, "1.2.3.4"), 25565, protocol.RawStatus{}, 10, time.Unix(0, 0))
	if es.Country != "Unknown" {
		t.Fatalf("expected Unknown when geoip disabled, got %q", es.Country)
	}
}

func TestEnrichGeoIPMatchesCountry(t *testing.T) {
	e := New(nil, stubResolver{host: "node1.de.hosting.example", ok: true}, true, nil)
	es := e.Enrich(context.Background(), mustAddr(t, "1.2.3.4"), 25565, protocol.RawStatus{}, 10, time.Unix(0, 0))
	if es.Country != "Germany" {
		t.Fatalf("expected Germany, got %q", es.Country)
	}
}

func TestEnrichGeoIPResolveFailureYieldsUnknown(t *testing.T) {
	e := New(nil, stubResolver{ok: false}, true, nil)
	es := e.Enrich(context.Background(), mustAddr(t, "1.2.3.4"), 25565, protocol.RawStatus{}, 10, time.Unix(0, 0))
	if es.Country != "Unknown" {
		t.Fatalf("expected Unknown on resolve failure, got %q", es.Country)
	}
}

func TestPassesFiltersVersionAndPlayerRange(t *testing.T) {
	e := New(nil, nil, false, []string{"1.20.4"})
	ok := EnrichedServer{Version: "1.20.4", PlayersOn: 5}
	bad := EnrichedServer{Version: "1.19.2", PlayersOn: 5}
	if !e.PassesFilters(ok, 0, 100) {
		t.Fatalf("expected ok to pass filters")
	}
	if e.PassesFilters(bad, 0, 100) {
		t.Fatalf("expected bad version to fail filters")
	}
}

func TestPassesFiltersPlayerBounds(t *testing.T) {
	e := New(nil, nil, false, nil)
	if e.PassesFilters(EnrichedServer{PlayersOn: 0}, 1, 100) {
		t.Fatalf("expected below-min to fail")
	}
	if e.PassesFilters(EnrichedServer{PlayersOn: 101}, 0, 100) {
		t.Fatalf("expected above-max to fail")
	}
}
