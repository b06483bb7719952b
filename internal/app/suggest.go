package app

import (
	"context"

	"github.com/Masterminds/semver/v3"
	"github.com/rs/zerolog/log"

	"crate-tool/internal/core"
	"crate-tool/internal/types"
)

// SuggestUpdates lists, for each managed crate, the newest version in the
// vendor directory it may upgrade to under req.Rule without breaking the
// requirement of any managed crate that depends on it. It changes
// nothing on disk.
func (s Service) SuggestUpdates(ctx context.Context, req SuggestRequest) ([]types.UpdateSuggestion, error) {
	managed, err := s.crateIndex(s.managedDir())
	if err != nil {
		return nil, err
	}
	vendored, err := s.crateIndex(s.PseudoCrate.Dir().Join("vendor"))
	if err != nil {
		return nil, err
	}
	dependents := map[string][]types.CrateRecord{}
	for _, entry := range managed.Entries() {
		for dep, requirement := range entry.Value.Dependencies {
			if requirement != "" {
				dependents[dep] = append(dependents[dep], entry.Value)
			}
		}
	}
	matcher := core.NewRequirementMatcher()
	var suggestions []types.UpdateSuggestion
	for _, entry := range managed.MostRecent() {
		current := entry.Identity
		candidates := vendored.Versions(current.Name)
		for i := len(candidates) - 1; i >= 0; i-- {
			candidate := candidates[i].Identity.Version
			if types.CompareVersions(candidate, current.Version) <= 0 {
				break
			}
			if !core.IsUpgradableTo(current.Version, candidate, req.Rule) {
				continue
			}
			if !acceptedByDependents(ctx, matcher, dependents[current.Name], current.Name, candidate, req.Rule) {
				continue
			}
			suggestions = append(suggestions, types.UpdateSuggestion{
				Name:       current.Name,
				OldVersion: current.Version.String(),
				Version:    candidate.String(),
			})
			break
		}
	}
	return suggestions, nil
}

func acceptedByDependents(ctx context.Context, matcher core.RequirementMatcher, dependents []types.CrateRecord, name string, version semver.Version, rule types.CompatibilityRule) bool {
	for _, dependent := range dependents {
		requirement := dependent.Dependencies[name]
		ok, err := matcher.Matches(requirement, version, rule)
		if err != nil {
			log.Ctx(ctx).Warn().
				Str("crate", dependent.Name()).
				Str("dependency", name).
				Err(err).
				Msg("ignoring unparsable requirement")
			continue
		}
		if !ok {
			log.Ctx(ctx).Debug().
				Str("crate", name).
				Str("version", version.String()).
				Str("dependent", dependent.Name()).
				Msg("upgrade blocked by dependent")
			return false
		}
	}
	return true
}
