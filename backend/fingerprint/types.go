// Package fingerprint matches a Minecraft status payload's raw JSON
// against a ruleset of mod-platform keyword signatures. It is a
// generalization of the teacher's HTTP/TLS fingerprinting engine,
// trimmed to the one evidence shape the Enricher has available — the
// server's banner text — while keeping the same rule/matcher shape.
package fingerprint

// Evidence is the sample data matchers inspect: the raw SLP status
// JSON, plus any passive hints (e.g. the PTR-resolved hostname) a
// caller wants rules to key off.
type Evidence struct {
	Banner  string
	Passive map[string]string
}

// Input carries fields a rule may scope itself to; currently just the
// probed port, kept so rules can be port-specific if ever needed.
type Input struct {
	Port int
}

// MatchResult is one rule's verdict.
type MatchResult struct {
	RuleID     string
	Platform   string
	Confidence int
	Tags       []string
}
