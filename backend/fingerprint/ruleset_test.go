package fingerprint

import "testing"

func TestDefaultRuleSetMatchesForgeBanner(t *testing.T) {
	rs := DefaultRuleSet()
	ev := Evidence{Banner: `{"description":{"text":"Running Forge 1.20.1"}}`}
	res := rs.Match(Input{Port: 25565}, ev)
	if res.Platform != "forge" {
		t.Fatalf("expected forge match, got %+v", res)
	}
}

func TestDefaultRuleSetIgnoresCase(t *testing.T) {
	rs := DefaultRuleSet()
	ev := Evidence{Banner: `"SPIGOT 1.19.4"`}
	res := rs.Match(Input{Port: 25565}, ev)
	if res.Platform != "spigot" {
		t.Fatalf("expected spigot match, got %+v", res)
	}
}

func TestDefaultRuleSetNoMatchOnVanilla(t *testing.T) {
	rs := DefaultRuleSet()
	ev := Evidence{Banner: `{"version":{"name":"1.20.4"},"description":{"text":"A Minecraft Server"}}`}
	res := rs.Match(Input{Port: 25565}, ev)
	if res.Platform != "" {
		t.Fatalf("expected no match, got %+v", res)
	}
}

func TestMatchAllReturnsEveryIndicator(t *testing.T) {
	rs := DefaultRuleSet()
	ev := Evidence{Banner: `"Paper/Spigot hybrid with Forge mods"`}
	matches := rs.MatchAll(Input{Port: 25565}, ev)
	if len(matches) < 3 {
		t.Fatalf("expected at least 3 indicators (paper, spigot, forge), got %d: %+v", len(matches), matches)
	}
}

func TestPassiveMatcherUsesHintMap(t *testing.T) {
	rules := []Rule{
		{
			ID:       "hostname-hint",
			Platform: "bungee",
			Matchers: []MatcherConfig{
				{Type: "passive", Key: "ptr", Contains: "bungee", IgnoreCase: true},
			},
		},
	}
	rs, err := compileRules(rules)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	ev := Evidence{Passive: map[string]string{"ptr": "bungeecord.example.net"}}
	res := rs.Match(Input{}, ev)
	if res.Platform != "bungee" {
		t.Fatalf("expected bungee match via passive hint, got %+v", res)
	}
}

func TestEngineIdentifyDedupesPlatforms(t *testing.T) {
	e := NewEngine(DefaultRuleSet())
	modded, platforms := e.Identify(Input{Port: 25565}, Evidence{Banner: "forge forge fabric"})
	if !modded {
		t.Fatalf("expected modded=true")
	}
	seen := map[string]int{}
	for _, p := range platforms {
		seen[p]++
	}
	if seen["forge"] != 1 {
		t.Fatalf("expected forge deduped to 1 occurrence, got %d", seen["forge"])
	}
}

func TestEngineIdentifyNilRuleSet(t *testing.T) {
	e := &Engine{}
	modded, platforms := e.Identify(Input{}, Evidence{Banner: "forge"})
	if modded || platforms != nil {
		t.Fatalf("expected no match with nil ruleset, got modded=%v platforms=%v", modded, platforms)
	}
}
