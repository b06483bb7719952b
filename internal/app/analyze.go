package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/rs/zerolog/log"

	"crate-tool/internal/core"
	"crate-tool/internal/shared"
	"crate-tool/internal/types"
)

// AnalyzeImport reports what importing a crate would involve without
// changing anything. Every version of the crate in the vendor directory is
// checked against the crates already in the managed and legacy trees.
func (s Service) AnalyzeImport(ctx context.Context, req AnalyzeImportRequest) (ImportAnalysis, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return ImportAnalysis{}, errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("crate name is required")
	}
	analysis := ImportAnalysis{Name: name}
	if s.isManaged(name) {
		analysis.Status = fmt.Sprintf("crate already imported at %s", s.managedDirFor(name))
		return analysis, nil
	}
	if shared.Exists(s.legacyDirFor(name).Abs()) {
		analysis.Status = fmt.Sprintf("legacy crate already imported at %s", s.legacyDirFor(name))
		return analysis, nil
	}
	denylist, err := s.crateDenylist()
	if err != nil {
		return analysis, err
	}
	if denylist.Contains(name) {
		analysis.Status = fmt.Sprintf("crate %s is on the import denylist", name)
		return analysis, nil
	}

	managed, err := s.crateIndex(s.managedDir())
	if err != nil {
		return analysis, err
	}
	legacy, err := s.crateIndex(s.legacyDir())
	if err != nil {
		return analysis, err
	}
	vendorDir := s.PseudoCrate.Dir().Join("vendor")
	vendored, err := s.crateIndex(vendorDir)
	if err != nil {
		return analysis, err
	}
	candidates := vendored.Versions(name)
	if len(candidates) == 0 {
		return analysis, errbuilder.New().
			WithCode(errbuilder.CodeNotFound).
			WithMsg(fmt.Sprintf("crate %s not found in %s", name, vendorDir))
	}

	matcher := core.NewRequirementMatcher()
	for _, candidate := range candidates {
		version := ImportVersion{Version: candidate.Identity.Version.String()}
		log.Ctx(ctx).Debug().
			Str("crate", name).
			Str("version", version.Version).
			Msg("analyzing dependencies")
		deps := candidate.Value.Dependencies
		for _, dep := range sortedKeys(deps) {
			analyzed := analyzeDependency(ctx, matcher, dep, deps[dep], managed, legacy)
			analyzed.Denylisted = analyzed.State == DepNotImported && denylist.Contains(dep)
			if analyzed.State == DepNotImported || analyzed.State == DepUnsatisfied {
				version.Problems = true
			}
			version.Deps = append(version.Deps, analyzed)
		}
		analysis.Versions = append(analysis.Versions, version)
	}
	return analysis, nil
}

// analyzeDependency checks one requirement against the managed tree, or
// the legacy tree when the managed tree has no copy of the dependency.
func analyzeDependency(ctx context.Context, matcher core.RequirementMatcher, name string, requirement string, managed *core.NameVersionIndex[types.CrateRecord], legacy *core.NameVersionIndex[types.CrateRecord]) DependencyAnalysis {
	out := DependencyAnalysis{Name: name, Requirement: requirement, State: DepNotImported}
	index := managed
	if !index.ContainsName(name) {
		index = legacy
	}
	versions := index.Versions(name)
	if len(versions) == 0 {
		return out
	}
	matched := false
	for _, entry := range versions {
		ok, err := matcher.Matches(requirement, entry.Identity.Version, types.RuleRelaxed)
		if err != nil {
			log.Ctx(ctx).Warn().
				Str("dependency", name).
				Err(err).
				Msg("ignoring unparsable requirement")
		}
		matched = matched || ok
		out.Available = append(out.Available, AvailableVersion{
			Version:   entry.Identity.Version.String(),
			Path:      entry.Value.Path.String(),
			Satisfies: ok,
		})
	}
	switch {
	case !matched:
		out.State = DepUnsatisfied
	case len(versions) > 1:
		out.State = DepAmbiguous
	default:
		out.State = DepSatisfied
	}
	return out
}
