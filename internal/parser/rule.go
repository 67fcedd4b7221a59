package parser

import (
	"strings"

	"github.com/saviobatista/movement-logger/internal/types"
)

// ruleSplit is the outcome of locating the flight-rule token
type ruleSplit struct {
	rule types.FlightRule
	// preEnd is where the pre-rule text ends; len(line) when no rule was found
	preEnd int
	// postStart is where the post-rule text begins
	postStart int
	found     bool
}

func (f Feed) splitRule(line string) ruleSplit {
	m := f.RulePattern.FindStringSubmatchIndex(line)
	if m == nil {
		return ruleSplit{rule: types.RuleUnknown, preEnd: len(line), postStart: len(line)}
	}
	rule, ok := f.RuleCodes[line[m[2]:m[3]]]
	if !ok {
		rule = types.RuleUnknown
	}
	return ruleSplit{rule: rule, preEnd: m[0], postStart: m[1], found: true}
}

// runway returns the first runway designator in the post-rule text
func (f Feed) runway(post string) (string, bool) {
	m := f.RunwayPattern.FindStringSubmatch(post)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// responsible returns the last whitespace-separated token of the post-rule text
func responsible(post string) (string, bool) {
	fields := strings.Fields(post)
	if len(fields) == 0 {
		return "", false
	}
	return fields[len(fields)-1], true
}
