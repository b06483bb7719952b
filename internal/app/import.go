package app

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/rs/zerolog/log"

	"crate-tool/internal/pipeline"
	"crate-tool/internal/shared"
	"crate-tool/internal/types"
)

// Import brings a new crate and every dependency it needs that is not yet
// in the tree into the managed tree, then regenerates them all.
func (s Service) Import(ctx context.Context, req ImportRequest) (ImportResult, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return ImportResult{}, errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("crate name is required")
	}
	if err := s.Recover(ctx); err != nil {
		return ImportResult{}, err
	}
	denylist, err := s.crateDenylist()
	if err != nil {
		return ImportResult{}, err
	}
	if err := denylist.Deny(name); err != nil {
		return ImportResult{}, err
	}
	if s.isManaged(name) {
		return ImportResult{}, errbuilder.New().
			WithCode(errbuilder.CodeAlreadyExists).
			WithMsg(fmt.Sprintf("crate %s already exists at %s", name, s.managedDirFor(name)))
	}

	added, snapshot, err := s.addCrateAndDependencies(ctx, name)
	if err != nil {
		return ImportResult{}, err
	}
	result := ImportResult{Added: added}
	for _, dep := range added {
		if err := denylist.Deny(dep); err != nil {
			return result, err
		}
		if err := s.seedCrate(ctx, dep, snapshot); err != nil {
			return result, err
		}
	}
	result.Summary, err = s.regenerate(ctx, added, snapshot, RegenerateRequest{UpdateMetadata: true})
	if err != nil {
		return result, err
	}
	if err := s.writeCrateList(); err != nil {
		return result, err
	}
	return result, result.Summary.Err()
}

// addCrateAndDependencies adds name to the pseudo-crate and follows its
// direct dependencies until every crate in the closure is either already
// known or newly added. Added crates are pinned to their vendored version.
func (s Service) addCrateAndDependencies(ctx context.Context, name string) ([]string, types.VendoredSnapshot, error) {
	known := map[string]bool{}
	deps, err := s.depNames()
	if err != nil {
		return nil, types.VendoredSnapshot{}, err
	}
	for _, dep := range deps {
		known[dep] = true
	}
	legacy, err := s.crateIndex(s.legacyDir())
	if err != nil {
		return nil, types.VendoredSnapshot{}, err
	}
	for _, legacyName := range legacy.Names() {
		known[legacyName] = true
	}

	pending := []string{name}
	added := map[string]bool{}
	for len(pending) > 0 {
		current := pending[0]
		pending = pending[1:]
		if added[current] {
			continue
		}
		log.Ctx(ctx).Info().Str("crate", current).Msg("adding")
		if err := s.PseudoCrate.AddUnpinned(ctx, current, ""); err != nil {
			return nil, types.VendoredSnapshot{}, err
		}
		if _, err := s.PseudoCrate.Vendor(ctx); err != nil {
			return nil, types.VendoredSnapshot{}, err
		}
		added[current] = true
		next, err := s.PseudoCrate.DepsOf(ctx, current)
		if err != nil {
			return nil, types.VendoredSnapshot{}, err
		}
		for _, dep := range next {
			if !added[dep] && !known[dep] {
				log.Ctx(ctx).Debug().Str("crate", current).Str("dependency", dep).Msg("depends on")
				pending = append(pending, dep)
			}
		}
	}

	names := sortedKeys(added)
	snapshot, err := s.PseudoCrate.Vendor(ctx)
	if err != nil {
		return nil, types.VendoredSnapshot{}, err
	}
	for _, dep := range names {
		version, ok := snapshot.Deps[dep]
		if !ok {
			return nil, types.VendoredSnapshot{}, errbuilder.New().
				WithCode(errbuilder.CodeInternal).
				WithMsg(fmt.Sprintf("crate %s missing from vendored snapshot", dep))
		}
		if err := s.PseudoCrate.Add(ctx, dep, version); err != nil {
			return nil, types.VendoredSnapshot{}, err
		}
	}
	return names, snapshot, nil
}

// seedCrate copies a vendored crate into the managed tree and writes the
// customizations it needs to be regenerated: generator config, license
// markers, METADATA and an empty build file.
func (s Service) seedCrate(ctx context.Context, name string, snapshot types.VendoredSnapshot) error {
	log.Ctx(ctx).Info().Str("crate", name).Msg("seeding customizations")
	if s.isManaged(name) {
		return errbuilder.New().
			WithCode(errbuilder.CodeAlreadyExists).
			WithMsg(fmt.Sprintf("crate %s already exists at %s", name, s.managedDirFor(name)))
	}
	if shared.Exists(s.legacyDirFor(name).Abs()) {
		return errbuilder.New().
			WithCode(errbuilder.CodeAlreadyExists).
			WithMsg(fmt.Sprintf("legacy crate %s already exists at %s", name, s.legacyDirFor(name)))
	}
	managed := s.managedDirFor(name)
	if err := shared.CopyDir(snapshot.DirFor(name).Abs(), managed.Abs()); err != nil {
		return err
	}
	result, err := s.Generator.Autoconfig(ctx, managed.Abs())
	if err != nil {
		return err
	}
	if !result.Success() {
		return errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg(fmt.Sprintf("failed to generate %s for %s", types.GeneratorConfigName, name)).
			WithCause(shared.ResultError(result))
	}

	record, err := s.Scanner.ReadCrate(managed)
	if err != nil {
		return err
	}
	licenses, err := s.Licenses.Classify(managed.Abs(), name, record.License)
	if err != nil {
		return err
	}
	if len(licenses.Unsatisfied) > 0 && len(licenses.Satisfied) == 0 {
		return errbuilder.New().
			WithCode(errbuilder.CodeFailedPrecondition).
			WithMsg(fmt.Sprintf("could not find license files for all licenses of %s, missing %s", name, strings.Join(licenses.Unsatisfied, ", ")))
	}
	if err := linkSingleLicense(managed, licenses); err != nil {
		return err
	}
	if err := s.Licenses.UpdateModuleLicenseFiles(managed.Abs(), licenses); err != nil {
		return err
	}
	metadata := pipeline.NewMetadata(
		name,
		record.Identity.Version.String(),
		record.Description,
		s.Licenses.MostRestrictiveType(licenses),
		timeNow(s.Clock),
	)
	if err := s.Metadata.WriteMetadata(managed.Join(types.MetadataFileName).Abs(), metadata); err != nil {
		return err
	}
	// Health checks treat a crate with no build file as unhealthy.
	if err := os.WriteFile(managed.Join(types.BuildFileName).Abs(), nil, 0o644); err != nil {
		return errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg(fmt.Sprintf("failed to write %s", managed.Join(types.BuildFileName))).
			WithCause(err)
	}
	return nil
}

// linkSingleLicense points LICENSE at the only license file when exactly
// one license applies and LICENSE does not exist yet.
func linkSingleLicense(dir types.RootedPath, licenses types.LicenseState) error {
	if len(licenses.Satisfied) != 1 || len(licenses.Unsatisfied) > 0 {
		return nil
	}
	link := dir.Join("LICENSE")
	if shared.Exists(link.Abs()) {
		return nil
	}
	for _, file := range licenses.Satisfied {
		if err := os.Symlink(file, link.Abs()); err != nil {
			return errbuilder.New().
				WithCode(errbuilder.CodeInternal).
				WithMsg(fmt.Sprintf("failed to symlink %s", link)).
				WithCause(err)
		}
	}
	return nil
}
