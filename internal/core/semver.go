package core

import (
	"fmt"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/ZanzyTHEbar/errbuilder-go"

	"crate-tool/internal/types"
)

// IsUpgradableTo reports whether from may be replaced by to under the
// compatible-release rules. Downgrades never match; from→from always does.
func IsUpgradableTo(from semver.Version, to semver.Version, rule types.CompatibilityRule) bool {
	if types.CompareVersions(to, from) < 0 {
		return false
	}
	switch {
	case from.Major() > 0:
		return to.Major() == from.Major()
	case rule == types.RuleRelaxed && to.Major() == 0:
		return true
	case from.Minor() > 0:
		return to.Major() == 0 && to.Minor() == from.Minor()
	default:
		return to.Major() == 0 && to.Minor() == 0 && to.Patch() == from.Patch()
	}
}

// IdentityUpgradableTo is IsUpgradableTo plus a same-name check.
func IdentityUpgradableTo(from types.CrateIdentity, to types.CrateIdentity, rule types.CompatibilityRule) bool {
	return from.Name == to.Name && IsUpgradableTo(from.Version, to.Version, rule)
}

// requirementCache memoizes parsed cargo version requirements.
type requirementCache struct {
	constraints map[string]*semver.Constraints
}

func newRequirementCache() *requirementCache {
	return &requirementCache{constraints: map[string]*semver.Constraints{}}
}

func (c *requirementCache) parse(req string) (*semver.Constraints, error) {
	if parsed, ok := c.constraints[req]; ok {
		return parsed, nil
	}
	parsed, err := semver.NewConstraint(req)
	if err != nil {
		return nil, err
	}
	c.constraints[req] = parsed
	return parsed, nil
}

// RequirementMatcher evaluates cargo-style version requirements. A bare
// version in cargo means a caret requirement, unlike in most Go tools.
type RequirementMatcher struct {
	cache *requirementCache
}

func NewRequirementMatcher() RequirementMatcher {
	return RequirementMatcher{cache: newRequirementCache()}
}

// Matches reports whether version satisfies req. Under RuleRelaxed a caret
// requirement on a 0.x version also accepts later 0.y minors.
func (m RequirementMatcher) Matches(req string, version semver.Version, rule types.CompatibilityRule) (bool, error) {
	strict, err := m.cache.parse(cargoRequirement(req, types.RuleStrict))
	if err != nil {
		return false, errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg(fmt.Sprintf("invalid version requirement %q", req)).
			WithCause(err)
	}
	if strict.Check(&version) || rule == types.RuleStrict {
		return strict.Check(&version), nil
	}
	relaxed, err := m.cache.parse(cargoRequirement(req, types.RuleRelaxed))
	if err != nil {
		return false, errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg(fmt.Sprintf("invalid version requirement %q", req)).
			WithCause(err)
	}
	return relaxed.Check(&version), nil
}

// cargoRequirement rewrites a cargo requirement into constraint syntax.
func cargoRequirement(req string, rule types.CompatibilityRule) string {
	req = strings.TrimSpace(req)
	if req == "" || req == "*" {
		return "*"
	}
	terms := strings.Split(req, ",")
	for i, term := range terms {
		term = strings.TrimSpace(term)
		caret := false
		switch {
		case strings.HasPrefix(term, "^"):
			caret = true
			term = strings.TrimSpace(strings.TrimPrefix(term, "^"))
		case term != "" && term[0] >= '0' && term[0] <= '9':
			caret = true
		}
		if !caret {
			terms[i] = term
			continue
		}
		if rule == types.RuleRelaxed && strings.HasPrefix(term, "0.") {
			terms[i] = fmt.Sprintf(">=%s, <1.0.0", term)
			continue
		}
		terms[i] = "^" + term
	}
	return strings.Join(terms, ", ")
}
