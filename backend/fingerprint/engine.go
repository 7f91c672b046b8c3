package fingerprint

// Engine matches status-payload evidence against a RuleSet.
type Engine struct {
	Rules *RuleSet
}

func NewEngine(rules *RuleSet) *Engine {
	return &Engine{Rules: rules}
}

// Identify returns every modded-platform indicator the evidence
// matches, plus whether any rule matched at all.
func (e *Engine) Identify(input Input, evidence Evidence) (modded bool, platforms []string) {
	if e.Rules == nil {
		return false, nil
	}
	matches := e.Rules.MatchAll(input, evidence)
	if len(matches) == 0 {
		return false, nil
	}
	seen := make(map[string]struct{}, len(matches))
	for _, m := range matches {
		if m.Platform == "" {
			continue
		}
		if _, ok := seen[m.Platform]; ok {
			continue
		}
		seen[m.Platform] = struct{}{}
		platforms = append(platforms, m.Platform)
	}
	return true, platforms
}
