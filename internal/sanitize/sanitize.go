// Package sanitize applies regex-based redaction to result field values
// before they leave the server.
package sanitize

import (
	"fmt"
	"regexp"
)

// Rule defines one redaction: matches of Pattern are replaced with
// Replacement.
type Rule struct {
	Pattern     string
	Replacement string
}

type compiledRule struct {
	pattern     *regexp.Regexp
	replacement string
}

// Sanitizer redacts string values in result rows, recursing into JSONB
// objects and arrays. Safe for concurrent use on distinct row sets.
type Sanitizer struct {
	rules []compiledRule
}

// NewSanitizer compiles the rules. Returns an error naming the offending
// pattern if one does not compile.
func NewSanitizer(rules []Rule) (*Sanitizer, error) {
	compiled := make([]compiledRule, len(rules))
	for i, r := range rules {
		re, err := regexp.Compile(r.Pattern)
		if err != nil {
			return nil, fmt.Errorf("sanitize: invalid regex pattern %q: %v", r.Pattern, err)
		}
		compiled[i] = compiledRule{pattern: re, replacement: r.Replacement}
	}
	return &Sanitizer{rules: compiled}, nil
}

// HasRules reports whether any redaction rules are configured.
func (s *Sanitizer) HasRules() bool { return len(s.rules) > 0 }

// Rows redacts every field value in rows, in place, and returns rows.
func (s *Sanitizer) Rows(rows []map[string]interface{}) []map[string]interface{} {
	if len(s.rules) == 0 {
		return rows
	}
	for _, row := range rows {
		for k, v := range row {
			row[k] = s.value(v)
		}
	}
	return rows
}

func (s *Sanitizer) value(v interface{}) interface{} {
	switch val := v.(type) {
	case string:
		out := val
		for _, rule := range s.rules {
			out = rule.pattern.ReplaceAllString(out, rule.replacement)
		}
		return out
	case map[string]interface{}:
		for k, item := range val {
			val[k] = s.value(item)
		}
		return val
	case []interface{}:
		for i, item := range val {
			val[i] = s.value(item)
		}
		return val
	default:
		// Numbers, bools, nil pass through untouched.
		return v
	}
}
