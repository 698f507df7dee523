package engine

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/miradorstack/mirador-spiro/internal/spiro"
)

// Check names accepted in rule matches.
const (
	CheckEV         = "ev"
	CheckFlowTiming = "flow_timing"
)

// RuleEngine turns validity verdicts into operator recommendations.
type RuleEngine struct {
	rules  []Rule
	logger *slog.Logger
}

// Rule represents a single recommendation rule.
type Rule struct {
	ID              string    `yaml:"id"`
	Match           RuleMatch `yaml:"match"`
	Recommendations []string  `yaml:"recommendations"`
}

// RuleMatch lists optional conditions; all present conditions must hold.
type RuleMatch struct {
	Check          string `yaml:"check"`
	Verdict        string `yaml:"verdict"`
	MinTransitions int    `yaml:"min_transitions"`
	MinRebounds    int    `yaml:"min_rebounds"`
}

// RuleConfigFile is the YAML root structure.
type RuleConfigFile struct {
	Rules []Rule `yaml:"rules"`
}

// NewRuleEngine loads rules from the provided path. An empty path or a
// missing file yields a nil engine.
func NewRuleEngine(path string, logger *slog.Logger) (*RuleEngine, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	return ParseRules(data, logger)
}

// ParseRules builds a RuleEngine from YAML rule-pack bytes.
func ParseRules(data []byte, logger *slog.Logger) (*RuleEngine, error) {
	var cfg RuleConfigFile
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse rules: %w", err)
	}
	for _, rule := range cfg.Rules {
		switch rule.Match.Check {
		case "", CheckEV, CheckFlowTiming:
		default:
			return nil, fmt.Errorf("rule %q: unknown check %q", rule.ID, rule.Match.Check)
		}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RuleEngine{rules: cfg.Rules, logger: logger}, nil
}

// Len returns the number of loaded rules.
func (e *RuleEngine) Len() int {
	if e == nil {
		return 0
	}
	return len(e.rules)
}

// Recommend returns the recommendations of every matching rule, in rule
// order and without duplicates.
func (e *RuleEngine) Recommend(analysis spiro.Analysis) []string {
	if e == nil {
		return nil
	}

	matched := make([]string, 0)
	for _, rule := range e.rules {
		if !rule.Match.matches(analysis) {
			continue
		}
		e.logger.Debug("rule matched", slog.String("rule", rule.ID))
		matched = appendUnique(matched, rule.Recommendations...)
	}
	return matched
}

func (m RuleMatch) matches(analysis spiro.Analysis) bool {
	if m.Check != "" || m.Verdict != "" {
		if !verdictMatches(m.Check, m.Verdict, analysis.Metrics) {
			return false
		}
	}
	if m.MinTransitions > 0 && analysis.Transitions.Len() < m.MinTransitions {
		return false
	}
	if m.MinRebounds > 0 && len(analysis.FlowRebounds) < m.MinRebounds {
		return false
	}
	return true
}

// verdictMatches with no check named tests the verdict against any check.
func verdictMatches(check, verdict string, metrics spiro.MetricsResult) bool {
	verdicts := map[string]spiro.Verdict{
		CheckEV:         metrics.EVCheck,
		CheckFlowTiming: metrics.FlowTimingCheck,
	}
	if check != "" {
		got, ok := verdicts[check]
		if !ok {
			return false
		}
		return verdict == "" || strings.EqualFold(verdict, string(got))
	}
	for _, got := range verdicts {
		if strings.EqualFold(verdict, string(got)) {
			return true
		}
	}
	return false
}

func appendUnique(existing []string, additions ...string) []string {
	seen := make(map[string]struct{}, len(existing))
	for _, rec := range existing {
		seen[rec] = struct{}{}
	}
	for _, item := range additions {
		if item == "" {
			continue
		}
		if _, ok := seen[item]; ok {
			continue
		}
		existing = append(existing, item)
		seen[item] = struct{}{}
	}
	return existing
}
