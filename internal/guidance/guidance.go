// Package guidance matches error messages against configured patterns and
// returns steering hints for the calling agent.
package guidance

import (
	"fmt"
	"regexp"
	"strings"
)

// Rule maps an error-message pattern to a guidance message.
type Rule struct {
	Pattern string
	Message string
}

type compiledRule struct {
	pattern *regexp.Regexp
	message string
}

// Advisor evaluates error messages against all rules. Safe for concurrent
// use; rules are fixed at construction.
type Advisor struct {
	rules []compiledRule
}

// NewAdvisor compiles the rule patterns. Returns an error naming the
// offending pattern if one does not compile.
func NewAdvisor(rules []Rule) (*Advisor, error) {
	compiled := make([]compiledRule, len(rules))
	for i, r := range rules {
		re, err := regexp.Compile(r.Pattern)
		if err != nil {
			return nil, fmt.Errorf("guidance: invalid regex pattern %q: %v", r.Pattern, err)
		}
		compiled[i] = compiledRule{pattern: re, message: r.Message}
	}
	return &Advisor{rules: compiled}, nil
}

// Advise returns all guidance messages whose patterns match errMsg, joined
// with newlines, plus the matched patterns for logging. Empty results mean
// no rule matched.
func (a *Advisor) Advise(errMsg string) (string, []string) {
	var messages []string
	var patterns []string
	for _, rule := range a.rules {
		if rule.pattern.MatchString(errMsg) {
			messages = append(messages, rule.message)
			patterns = append(patterns, rule.pattern.String())
		}
	}
	return strings.Join(messages, "\n"), patterns
}
