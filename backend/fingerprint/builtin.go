package fingerprint

// DefaultRuleSet returns the built-in modded-platform keyword rules:
// one banner-contains rule per keyword in §3's modded-indicator set,
// tagged with the platform name it evidences. This is the static
// equivalent of the teacher's embedded FingerprintHub rule set, scaled
// down from general web-service fingerprints to the one signal a
// status payload offers: keywords embedded in its raw JSON (plugin
// lists, mod loader banners, server brands).
func DefaultRuleSet() *RuleSet {
	keywords := []string{
		"forge", "fabric", "bukkit", "spigot", "paper",
		"sponge", "mod", "plugin", "cauldron", "mohist", "magma",
	}
	rules := make([]Rule, 0, len(keywords))
	for _, kw := range keywords {
		rules = append(rules, Rule{
			ID:         "modded-" + kw,
			Platform:   kw,
			Confidence: 70,
			Matchers: []MatcherConfig{
				{Type: "banner", Contains: kw, IgnoreCase: true},
			},
			Tags: []string{kw, "modded"},
		})
	}
	compiled, err := compileRules(rules)
	if err != nil {
		return &RuleSet{}
	}
	return compiled
}
