package app

import (
	"context"
	"fmt"
	"path/filepath"
	"slices"
	"strings"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/rs/zerolog/log"

	"crate-tool/internal/core"
	"crate-tool/internal/pipeline"
	"crate-tool/internal/types"
)

// PreuploadCheck verifies that the pseudo-crate dependencies, the managed
// crate directories and crate-list.txt agree, then requires every managed
// crate touched by req.Files to regenerate without any difference.
func (s Service) PreuploadCheck(ctx context.Context, req PreuploadRequest) (types.BatchSummary, error) {
	deps, err := s.depNames()
	if err != nil {
		return types.BatchSummary{}, err
	}
	dirs, err := s.managedNames()
	if err != nil {
		return types.BatchSummary{}, err
	}
	if !slices.Equal(deps, dirs) {
		return types.BatchSummary{}, errbuilder.New().
			WithCode(errbuilder.CodeFailedPrecondition).
			WithMsg(fmt.Sprintf("deps in %s/Cargo.toml don't match directories in %s\ndirectories not in Cargo.toml: %s\nCargo.toml deps with no directory: %s",
				s.PseudoCrate.Dir(), s.managedDir(),
				strings.Join(difference(dirs, deps), ", "),
				strings.Join(difference(deps, dirs), ", ")))
	}
	list, err := s.PseudoCrate.ReadCrateList()
	if err != nil {
		return types.BatchSummary{}, err
	}
	if !slices.Equal(deps, list) {
		return types.BatchSummary{}, errbuilder.New().
			WithCode(errbuilder.CodeFailedPrecondition).
			WithMsg(fmt.Sprintf("deps in %s/Cargo.toml don't match deps in %s\nCargo.toml: %s\n%s: %s",
				s.PseudoCrate.Dir(), types.CrateListFileName,
				strings.Join(deps, ", "),
				types.CrateListFileName, strings.Join(list, ", ")))
	}

	changed := s.changedCrates(req.Files)
	if len(changed) == 0 {
		return types.BatchSummary{}, nil
	}
	snapshot, err := s.PseudoCrate.Vendor(ctx)
	if err != nil {
		return types.BatchSummary{}, err
	}
	dest, err := s.vendoredIndex(snapshot)
	if err != nil {
		return types.BatchSummary{}, err
	}
	source := core.NewNameVersionIndex[types.CrateRecord]()
	for _, name := range changed {
		record, err := s.managedCrate(name)
		if err != nil {
			return types.BatchSummary{}, err
		}
		if err := source.InsertOrError(record.Identity, record); err != nil {
			return types.BatchSummary{}, err
		}
	}
	resolver, err := core.NewVersionResolver(source, dest, types.RuleStrict)
	if err != nil {
		return types.BatchSummary{}, err
	}
	summary := types.BatchSummary{}
	for _, entry := range source.Entries() {
		log.Ctx(ctx).Info().Str("crate", entry.Identity.Name).Msg("checking")
		version := entry.Identity.Version.String()
		if err := s.verifyUnchanged(ctx, entry.Value, resolver); err != nil {
			summary.Verdicts = append(summary.Verdicts, unhealthy(entry.Identity.Name, version, err))
			continue
		}
		summary.Verdicts = append(summary.Verdicts, healthy(entry.Identity.Name, version))
	}
	return summary, summary.Err()
}

// verifyUnchanged stages a managed crate and fails unless the result is
// identical to what is committed.
func (s Service) verifyUnchanged(ctx context.Context, record types.CrateRecord, resolver *core.VersionResolver[types.CrateRecord]) error {
	vendored, ok := resolver.CompatibleItem(record.Identity)
	if !ok {
		return errbuilder.New().
			WithCode(errbuilder.CodeNotFound).
			WithMsg(fmt.Sprintf("no compatible vendored crate found for %s", record.Identity))
	}
	crate, err := pipeline.NewManagedCrate(record, s.tools()).VendorRecord(vendored)
	if err != nil {
		return err
	}
	staged, err := crate.Stage(ctx)
	if err != nil {
		return err
	}
	defer discardStaged(ctx, staged)
	if err := staged.Check(); err != nil {
		return err
	}
	diff, err := staged.DiffAgainstCommitted()
	if err != nil {
		return err
	}
	if diff != "" {
		return errbuilder.New().
			WithCode(errbuilder.CodeFailedPrecondition).
			WithMsg(fmt.Sprintf("regenerating %s changes %s:\n%s", record.Name(), types.BuildFileName, diff))
	}
	changed, err := staged.DiffTree()
	if err != nil {
		return err
	}
	if len(changed) > 0 {
		return errbuilder.New().
			WithCode(errbuilder.CodeFailedPrecondition).
			WithMsg(fmt.Sprintf("found differences between %s and %s: %s", record.Path, staged.StagingPath(), strings.Join(changed, ", ")))
	}
	return nil
}

// changedCrates maps changed file paths to the managed crates they live
// in. Paths may be relative to the managed tree or to the repo root.
func (s Service) changedCrates(files []string) []string {
	prefix := filepath.Clean(s.ManagedPath) + string(filepath.Separator)
	var names []string
	for _, file := range files {
		path := filepath.Clean(strings.TrimSpace(file))
		path = strings.TrimPrefix(path, prefix)
		parts := strings.Split(filepath.ToSlash(path), "/")
		if len(parts) > 2 && parts[0] == managedCratesDir {
			names = append(names, parts[1])
		}
	}
	return uniqueSorted(names)
}

// difference returns the values of a missing from b. Both are sorted.
func difference(a []string, b []string) []string {
	var out []string
	for _, value := range a {
		if _, found := slices.BinarySearch(b, value); !found {
			out = append(out, value)
		}
	}
	return out
}
