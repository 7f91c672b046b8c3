package fingerprint

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
)

// Rule defines one mod-platform matching rule.
type Rule struct {
	ID         string          `json:"id"`
	Platform   string          `json:"platform"`
	Confidence int             `json:"confidence"`
	Ports      []int           `json:"ports"`
	Matchers   []MatcherConfig `json:"matchers"`
	Tags       []string        `json:"tags"`
}

// MatcherConfig describes one concrete match condition.
type MatcherConfig struct {
	Type       string `json:"type"`
	Key        string `json:"key"`
	Pattern    string `json:"pattern"`
	Contains   string `json:"contains"`
	Equals     string `json:"equals"`
	IgnoreCase bool   `json:"ignoreCase"`
}

// RuleSet holds the compiled rule list.
type RuleSet struct {
	rules []compiledRule
}

type compiledRule struct {
	raw      Rule
	matchers []matcherFunc
}

type matcherFunc func(input Input, evidence Evidence) bool

// LoadRuleSet reads and compiles a rule list from a JSON file.
func LoadRuleSet(path string) (*RuleSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseRuleSet(data)
}

// ParseRuleSet compiles a rule list from JSON bytes.
func ParseRuleSet(data []byte) (*RuleSet, error) {
	var list []Rule
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("parse fingerprint rules: %w", err)
	}
	return compileRules(list)
}

func compileRules(list []Rule) (*RuleSet, error) {
	rs := &RuleSet{}
	for _, rule := range list {
		if rule.ID == "" {
			return nil, errors.New("rule missing id")
		}
		compiled, err := compileRule(rule)
		if err != nil {
			return nil, fmt.Errorf("compile rule %s: %w", rule.ID, err)
		}
		rs.rules = append(rs.rules, compiled)
	}
	return rs, nil
}

func compileRule(rule Rule) (compiledRule, error) {
	cr := compiledRule{raw: rule}
	for _, cfg := range rule.Matchers {
		mf, err := buildMatcher(cfg)
		if err != nil {
			return compiledRule{}, err
		}
		cr.matchers = append(cr.matchers, mf)
	}
	return cr, nil
}

func buildMatcher(cfg MatcherConfig) (matcherFunc, error) {
	switch cfg.Type {
	case "banner":
		re, err := compilePattern(cfg)
		if err != nil {
			return nil, err
		}
		return func(_ Input, ev Evidence) bool {
			return re.MatchString(ev.Banner)
		}, nil
	case "passive":
		re, err := compilePattern(cfg)
		if err != nil {
			return nil, err
		}
		key := strings.ToLower(cfg.Key)
		return func(_ Input, ev Evidence) bool {
			val := ev.Passive[key]
			return re.MatchString(val)
		}, nil
	default:
		return nil, fmt.Errorf("unknown matcher type %s", cfg.Type)
	}
}

func compilePattern(cfg MatcherConfig) (*regexp.Regexp, error) {
	if cfg.Pattern != "" {
		if cfg.IgnoreCase {
			return regexp.Compile("(?i)" + cfg.Pattern)
		}
		return regexp.Compile(cfg.Pattern)
	}
	var pattern string
	if cfg.Contains != "" {
		pattern = regexp.QuoteMeta(cfg.Contains)
	} else if cfg.Equals != "" {
		pattern = "^" + regexp.QuoteMeta(cfg.Equals) + "$"
	}
	if pattern == "" {
		return nil, errors.New("empty matcher pattern")
	}
	if cfg.IgnoreCase {
		pattern = "(?i)" + pattern
	}
	return regexp.Compile(pattern)
}

// Match returns the first rule whose matchers all pass.
func (rs *RuleSet) Match(input Input, evidence Evidence) MatchResult {
	for _, rule := range rs.rules {
		if !ruleMatchesPort(rule.raw, input.Port) {
			continue
		}
		if !allMatch(rule, input, evidence) {
			continue
		}
		return MatchResult{
			RuleID:     rule.raw.ID,
			Platform:   rule.raw.Platform,
			Confidence: rule.raw.Confidence,
			Tags:       rule.raw.Tags,
		}
	}
	return MatchResult{}
}

// MatchAll returns every rule whose matchers all pass, so the Enricher
// can report all modded-platform indicators a payload carries rather
// than stopping at the first.
func (rs *RuleSet) MatchAll(input Input, evidence Evidence) []MatchResult {
	var out []MatchResult
	for _, rule := range rs.rules {
		if !ruleMatchesPort(rule.raw, input.Port) {
			continue
		}
		if !allMatch(rule, input, evidence) {
			continue
		}
		out = append(out, MatchResult{
			RuleID:     rule.raw.ID,
			Platform:   rule.raw.Platform,
			Confidence: rule.raw.Confidence,
			Tags:       rule.raw.Tags,
		})
	}
	return out
}

func allMatch(rule compiledRule, input Input, evidence Evidence) bool {
	for _, fn := range rule.matchers {
		if !fn(input, evidence) {
			return false
		}
	}
	return true
}

func ruleMatchesPort(rule Rule, port int) bool {
	if len(rule.Ports) == 0 {
		return true
	}
	for _, p := range rule.Ports {
		if p == port {
			return true
		}
	}
	return false
}
