package alerts

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/homesense/energy-insights/internal/rollup"
)

// Operator is a threshold comparison. Closed set: >, >=, <, <=.
type Operator string

const (
	OpGreater   Operator = ">"
	OpGreaterEq Operator = ">="
	OpLess      Operator = "<"
	OpLessEq    Operator = "<="
)

// Test applies the operator to an observed value and a threshold.
func (op Operator) Test(value, threshold float64) bool {
	switch op {
	case OpGreater:
		return value > threshold
	case OpGreaterEq:
		return value >= threshold
	case OpLess:
		return value < threshold
	case OpLessEq:
		return value <= threshold
	default:
		return false
	}
}

// Valid reports whether op is a known operator.
func (op Operator) Valid() bool {
	switch op {
	case OpGreater, OpGreaterEq, OpLess, OpLessEq:
		return true
	}
	return false
}

// Rule is one alert rule. Rules are loaded once at worker startup and
// immutable for the duration of the run.
type Rule struct {
	ID       string
	Scope    rollup.Scope
	ScopeID  string
	Metric   string
	Window   time.Duration
	Op       Operator
	Value    float64
	Cooldown time.Duration
}

// ruleSpec is the on-disk YAML shape:
// {id, scope, scope_id, metric, window, op, value, cooldown_sec}.
type ruleSpec struct {
	ID          string  `yaml:"id"`
	Scope       string  `yaml:"scope"`
	ScopeID     string  `yaml:"scope_id"`
	Metric      string  `yaml:"metric"`
	Window      string  `yaml:"window"`
	Op          string  `yaml:"op"`
	Value       float64 `yaml:"value"`
	CooldownSec int     `yaml:"cooldown_sec"`
}

type rulesFile struct {
	Rules []ruleSpec `yaml:"rules"`
}

// LoadRules reads and validates the rule file.
func LoadRules(path string) ([]Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rules file: %w", err)
	}
	return ParseRules(data)
}

// ParseRules decodes and validates a YAML rule document.
func ParseRules(data []byte) ([]Rule, error) {
	var file rulesFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse rules: %w", err)
	}

	seen := make(map[string]bool)
	rules := make([]Rule, 0, len(file.Rules))
	for i, spec := range file.Rules {
		rule, err := spec.toRule()
		if err != nil {
			return nil, fmt.Errorf("rule %d (%q): %w", i, spec.ID, err)
		}
		if seen[rule.ID] {
			return nil, fmt.Errorf("rule %d: duplicate id %q", i, rule.ID)
		}
		seen[rule.ID] = true
		rules = append(rules, rule)
	}
	return rules, nil
}

func (s ruleSpec) toRule() (Rule, error) {
	if s.ID == "" {
		return Rule{}, fmt.Errorf("missing id")
	}
	scope := rollup.Scope(s.Scope)
	if !scope.Valid() {
		return Rule{}, fmt.Errorf("unknown scope %q", s.Scope)
	}
	if s.ScopeID == "" {
		return Rule{}, fmt.Errorf("missing scope_id")
	}
	switch s.Metric {
	case rollup.MetricEnergyWhSum, rollup.MetricPowerAvgW, rollup.MetricPowerMaxW:
	default:
		return Rule{}, fmt.Errorf("unknown metric %q", s.Metric)
	}
	window, err := time.ParseDuration(s.Window)
	if err != nil || window <= 0 {
		return Rule{}, fmt.Errorf("invalid window %q", s.Window)
	}
	op := Operator(s.Op)
	if !op.Valid() {
		return Rule{}, fmt.Errorf("unknown operator %q", s.Op)
	}
	if s.CooldownSec <= 0 {
		return Rule{}, fmt.Errorf("cooldown_sec must be positive, got %d", s.CooldownSec)
	}

	return Rule{
		ID:       s.ID,
		Scope:    scope,
		ScopeID:  s.ScopeID,
		Metric:   s.Metric,
		Window:   window,
		Op:       op,
		Value:    s.Value,
		Cooldown: time.Duration(s.CooldownSec) * time.Second,
	}, nil
}

// granularity picks the rollup view a rule is evaluated against.
// Household rules read the 5-minute view. Device rules read the
// 1-minute view for reactivity unless the rule window is an hour or
// more, in which case the hourly view matches the rule's intent.
func (r Rule) granularity() rollup.Granularity {
	if r.Scope == rollup.ScopeHousehold {
		return rollup.Household5m
	}
	if r.Window >= time.Hour {
		return rollup.Device1h
	}
	return rollup.Device1m
}
