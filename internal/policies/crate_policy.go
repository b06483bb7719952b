package policies

import (
	"fmt"
	"strings"

	"github.com/ZanzyTHEbar/errbuilder-go"
)

// CratePolicy matches crate names against a list of patterns. A pattern is
// an exact name, a prefix ending in `*`, or `*` alone.
type CratePolicy struct {
	Name     string
	Patterns []string
	exact    map[string]int
	prefixes []prefixPattern
	wildcard int
}

type prefixPattern struct {
	prefix  string
	pattern int
}

type patternKind int

const (
	patternExact patternKind = iota
	patternPrefix
	patternWildcard
	patternInvalid
)

func NewCratePolicy(name string, patterns []string) CratePolicy {
	policy := CratePolicy{Name: name, Patterns: patterns, wildcard: -1}
	policy.compile()
	return policy
}

// Match returns the first pattern that matches name.
func (p CratePolicy) Match(name string) (string, bool) {
	best := -1
	if idx, found := p.exact[name]; found {
		best = minIndex(best, idx)
	}
	for _, entry := range p.prefixes {
		if strings.HasPrefix(name, entry.prefix) {
			best = minIndex(best, entry.pattern)
		}
	}
	if p.wildcard >= 0 {
		best = minIndex(best, p.wildcard)
	}
	if best >= 0 && best < len(p.Patterns) {
		return p.Patterns[best], true
	}
	return "", false
}

func (p CratePolicy) Contains(name string) bool {
	_, ok := p.Match(name)
	return ok
}

// Deny fails with PermissionDenied when name is on the list.
func (p CratePolicy) Deny(name string) error {
	pattern, ok := p.Match(name)
	if !ok {
		return nil
	}
	return errbuilder.New().
		WithCode(errbuilder.CodePermissionDenied).
		WithMsg(fmt.Sprintf("crate %s is on the %s (pattern %q)", name, p.Name, pattern))
}

// Filter splits names into those allowed and those denied.
func (p CratePolicy) Filter(names []string) (allowed []string, denied []string) {
	for _, name := range names {
		if p.Contains(name) {
			denied = append(denied, name)
			continue
		}
		allowed = append(allowed, name)
	}
	return allowed, denied
}

func (p *CratePolicy) compile() {
	p.exact = map[string]int{}
	p.prefixes = nil
	p.wildcard = -1
	for idx, pattern := range p.Patterns {
		name, kind := parseNamePattern(pattern)
		switch kind {
		case patternWildcard:
			if p.wildcard < 0 {
				p.wildcard = idx
			}
		case patternExact:
			if _, ok := p.exact[name]; !ok {
				p.exact[name] = idx
			}
		case patternPrefix:
			p.prefixes = append(p.prefixes, prefixPattern{prefix: name, pattern: idx})
		}
	}
}

func parseNamePattern(value string) (string, patternKind) {
	pattern := strings.TrimSpace(value)
	if pattern == "" {
		return "", patternInvalid
	}
	if pattern == "*" {
		return "", patternWildcard
	}
	if strings.HasSuffix(pattern, "*") {
		return strings.TrimSuffix(pattern, "*"), patternPrefix
	}
	return pattern, patternExact
}

func minIndex(current int, candidate int) int {
	if candidate < 0 {
		return current
	}
	if current < 0 || candidate < current {
		return candidate
	}
	return current
}
