// Package timeout resolves per-statement execution deadlines from
// configured SQL pattern rules.
package timeout

import (
	"fmt"
	"regexp"
	"time"
)

// Rule maps a SQL regex pattern to a timeout.
type Rule struct {
	Pattern string
	Timeout time.Duration
}

type compiledRule struct {
	pattern *regexp.Regexp
	timeout time.Duration
}

// Manager picks the timeout for a statement. First matching rule wins,
// falling back to the default. Safe for concurrent use.
type Manager struct {
	rules          []compiledRule
	defaultTimeout time.Duration
}

// NewManager compiles the rules. Returns an error naming the offending
// pattern if one does not compile.
func NewManager(defaultTimeout time.Duration, rules []Rule) (*Manager, error) {
	compiled := make([]compiledRule, len(rules))
	for i, r := range rules {
		re, err := regexp.Compile(r.Pattern)
		if err != nil {
			return nil, fmt.Errorf("timeout: invalid regex pattern %q: %v", r.Pattern, err)
		}
		compiled[i] = compiledRule{pattern: re, timeout: r.Timeout}
	}
	return &Manager{rules: compiled, defaultTimeout: defaultTimeout}, nil
}

// Default returns the fallback timeout used when no rule matches.
func (m *Manager) Default() time.Duration { return m.defaultTimeout }

// Resolve returns the timeout for sql and the pattern of the matching
// rule, or the default timeout and an empty pattern.
func (m *Manager) Resolve(sql string) (time.Duration, string) {
	for _, rule := range m.rules {
		if rule.pattern.MatchString(sql) {
			return rule.timeout, rule.pattern.String()
		}
	}
	return m.defaultTimeout, ""
}
