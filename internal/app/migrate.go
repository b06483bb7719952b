package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/rs/zerolog/log"

	"crate-tool/internal/core"
	"crate-tool/internal/pipeline"
	"crate-tool/internal/shared"
	"crate-tool/internal/types"
)

// MigrationHealth reports whether the legacy copy of a crate can move into
// the managed tree without changing what gets built. The crate is added to
// the pseudo-crate only for the duration of the check.
func (s Service) MigrationHealth(ctx context.Context, req MigrationHealthRequest) (MigrationHealthResult, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return MigrationHealthResult{}, errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("crate name is required")
	}
	if s.isManaged(name) {
		return MigrationHealthResult{}, errbuilder.New().
			WithCode(errbuilder.CodeAlreadyExists).
			WithMsg(fmt.Sprintf("crate %s already exists in %s", name, s.managedDir()))
	}
	legacy, err := s.singleCrate(name, s.legacyDirFor(name))
	if err != nil {
		return MigrationHealthResult{}, err
	}
	result := MigrationHealthResult{Name: name, Version: legacy.Identity.Version.String()}
	log.Ctx(ctx).Debug().
		Str("crate", name).
		Str("version", result.Version).
		Str("path", legacy.Path.String()).
		Msg("checking migration health")

	reasons, err := s.ineligibility(legacy)
	if err != nil {
		return result, err
	}
	if len(reasons) > 0 {
		result.Diagnostics = reasons
		return result, nil
	}
	if result.Diagnostics, err = s.checkLegacy(ctx, legacy); err != nil || len(result.Diagnostics) > 0 {
		return result, err
	}

	if req.Unpinned {
		err = s.PseudoCrate.AddUnpinned(ctx, name, result.Version)
	} else {
		err = s.PseudoCrate.Add(ctx, name, result.Version)
	}
	if err != nil {
		return result, err
	}
	snapshot, err := s.PseudoCrate.Vendor(ctx)
	if err != nil {
		return result, errors.Join(err, s.PseudoCrate.Remove(ctx, name))
	}
	staged, stageErr := s.stageVendored(ctx, legacy, snapshot)
	if err := s.PseudoCrate.Remove(ctx, name); err != nil {
		return result, err
	}
	if _, err := s.PseudoCrate.Vendor(ctx); err != nil {
		return result, err
	}
	if stageErr != nil {
		return result, stageErr
	}
	if staged == nil {
		result.Diagnostics = []string{"couldn't find a compatible version to migrate to"}
		return result, nil
	}
	defer discardStaged(ctx, staged)

	if version := staged.VendoredVersion().String(); version != result.Version {
		log.Ctx(ctx).Info().
			Str("crate", name).
			Str("from", result.Version).
			Str("to", version).
			Msg("source and destination versions are different")
		result.Version = version
	}
	result.Diagnostics = stagedDiagnostics(staged)
	changed, err := staged.DiffTree()
	if err != nil {
		return result, err
	}
	if len(result.Diagnostics) > 0 {
		return result, nil
	}
	result.Healthy = true
	if len(changed) > 0 {
		diff := fmt.Sprintf("found differences between %s and %s: %s", legacy.Path, staged.StagingPath(), strings.Join(changed, ", "))
		if !req.Unpinned {
			result.Healthy = false
			result.Diagnostics = []string{diff}
			return result, nil
		}
		result.Diagnostics = []string{
			diff,
			"the crate was added with an unpinned version, and diffs were found which must be inspected manually",
		}
	}
	return result, nil
}

// ineligibility lists why a legacy crate cannot be migrated at all.
func (s Service) ineligibility(record types.CrateRecord) ([]string, error) {
	var reasons []string
	if !record.CratesIO {
		reasons = append(reasons, "the crate is not published on crates.io")
	}
	denylist, err := s.migrationDenylist()
	if err != nil {
		return nil, err
	}
	if denylist.Contains(record.Name()) {
		reasons = append(reasons, "this crate is on the migration denylist")
	}
	for _, file := range []string{types.BuildFileName, types.GeneratorConfigName} {
		if !shared.Exists(record.Path.Join(file).Abs()) {
			reasons = append(reasons, fmt.Sprintf("there is no %s file in %s", file, record.Path))
		}
	}
	return reasons, nil
}

// checkLegacy regenerates the legacy crate in place and reports anything
// that keeps its committed build file from being reproduced.
func (s Service) checkLegacy(ctx context.Context, record types.CrateRecord) ([]string, error) {
	crate, err := pipeline.NewManagedCrate(record, s.tools()).AsLegacy()
	if err != nil {
		return nil, err
	}
	staged, err := crate.Stage(ctx)
	if err != nil {
		return nil, err
	}
	defer discardStaged(ctx, staged)
	return stagedDiagnostics(staged), nil
}

// stageVendored stages the vendored counterpart of a legacy crate with the
// legacy customizations. It returns nil when the snapshot holds no
// compatible version.
func (s Service) stageVendored(ctx context.Context, legacy types.CrateRecord, snapshot types.VendoredSnapshot) (*pipeline.StagedCrate, error) {
	dest, err := s.vendoredIndex(snapshot)
	if err != nil {
		return nil, err
	}
	dest.Retain(func(id types.CrateIdentity, _ types.CrateRecord) bool {
		return id.Name == legacy.Name()
	})
	source := core.NewNameVersionIndex[types.CrateRecord]()
	if err := source.InsertOrError(legacy.Identity, legacy); err != nil {
		return nil, err
	}
	resolver, err := core.NewVersionResolver(source, dest, types.RuleStrict)
	if err != nil {
		return nil, err
	}
	pairs := resolver.CompatiblePairs()
	if len(pairs) != 1 {
		return nil, nil
	}
	crate, err := pipeline.NewManagedCrate(legacy, s.tools()).VendorRecord(pairs[0].Dest.Value)
	if err != nil {
		return nil, err
	}
	return crate.Stage(ctx)
}

// stagedDiagnostics returns the first actionable problems of a staged
// crate, empty when it reproduces the committed build file.
func stagedDiagnostics(staged *pipeline.StagedCrate) []string {
	var out []string
	for _, outcome := range staged.PatchOutcomes() {
		if !outcome.Result.Success() {
			out = append(out, fmt.Sprintf("failed to apply %s: %s", outcome.Patch, firstLine(outcome.Result)))
		}
	}
	if !staged.GeneratorSuccess() {
		return append(out, fmt.Sprintf("cargo_embargo execution did not succeed for %s: %s", staged.StagingPath(), firstLine(staged.GeneratorResult())))
	}
	diff, err := staged.DiffAgainstCommitted()
	if err != nil {
		return append(out, err.Error())
	}
	if diff != "" {
		out = append(out, "running cargo_embargo produced changes to the Android.bp file\n"+diff)
	}
	return out
}

func firstLine(result types.CommandResult) string {
	for _, text := range []string{result.Stderr, result.Stdout} {
		if line := strings.TrimSpace(strings.SplitN(strings.TrimSpace(text), "\n", 2)[0]); line != "" {
			return line
		}
	}
	return fmt.Sprintf("exit status %d", result.ExitCode)
}

// Migrate moves healthy legacy crates into the managed tree, registers
// them with the pseudo-crate and regenerates them. Legacy build files of
// every crate that regenerated cleanly are replaced by a pointer comment.
func (s Service) Migrate(ctx context.Context, req MigrateRequest) (types.BatchSummary, error) {
	if err := s.Recover(ctx); err != nil {
		return types.BatchSummary{}, err
	}
	names := uniqueSorted(req.Names)
	if len(names) == 0 {
		return types.BatchSummary{}, errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("at least one crate name is required")
	}
	unpinned := map[string]bool{}
	for _, name := range req.Unpinned {
		unpinned[name] = true
	}

	summary := types.BatchSummary{}
	var migrated []string
	for _, name := range names {
		version, err := s.migrateCrate(ctx, name, unpinned[name])
		if err != nil {
			summary.Verdicts = append(summary.Verdicts, unhealthy(name, version, err))
			if req.FailFast {
				return summary, err
			}
			continue
		}
		migrated = append(migrated, name)
	}
	if len(migrated) > 0 {
		snapshot, err := s.PseudoCrate.Vendor(ctx)
		if err != nil {
			return summary, err
		}
		regenerated, err := s.regenerate(ctx, migrated, snapshot, RegenerateRequest{FailFast: req.FailFast})
		summary.Verdicts = append(summary.Verdicts, regenerated.Verdicts...)
		if err != nil {
			return summary, err
		}
		if err := s.writeCrateList(); err != nil {
			return summary, err
		}
		for _, verdict := range regenerated.Verdicts {
			if verdict.Verdict != types.VerdictHealthy {
				continue
			}
			if err := s.scrubLegacy(verdict.Name); err != nil {
				return summary, err
			}
		}
	}
	sort.SliceStable(summary.Verdicts, func(i, j int) bool {
		return summary.Verdicts[i].Name < summary.Verdicts[j].Name
	})
	return summary, summary.Err()
}

// migrateCrate copies a healthy legacy crate into the managed tree and
// pins it in the pseudo-crate.
func (s Service) migrateCrate(ctx context.Context, name string, unpinned bool) (string, error) {
	health, err := s.MigrationHealth(ctx, MigrationHealthRequest{Name: name, Unpinned: unpinned})
	if err != nil {
		return health.Version, err
	}
	if !health.Healthy {
		diagnostic := "no diagnostic"
		if len(health.Diagnostics) > 0 {
			diagnostic = health.Diagnostics[0]
		}
		return health.Version, errbuilder.New().
			WithCode(errbuilder.CodeFailedPrecondition).
			WithMsg(fmt.Sprintf("crate %s is UNHEALTHY: %s", name, diagnostic))
	}
	if err := os.MkdirAll(s.managedDir().Abs(), 0o755); err != nil {
		return health.Version, errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg(fmt.Sprintf("failed to create %s", s.managedDir())).
			WithCause(err)
	}
	if err := shared.CopyDir(s.legacyDirFor(name).Abs(), s.managedDirFor(name).Abs()); err != nil {
		return health.Version, err
	}
	if unpinned {
		err = s.PseudoCrate.AddUnpinned(ctx, name, health.Version)
	} else {
		err = s.PseudoCrate.Add(ctx, name, health.Version)
	}
	if err != nil {
		if removeErr := os.RemoveAll(s.managedDirFor(name).Abs()); removeErr != nil {
			err = errors.Join(err, removeErr)
		}
	}
	return health.Version, err
}

// scrubLegacy removes the build files of a migrated legacy crate and
// leaves a comment pointing at its new home.
func (s Service) scrubLegacy(name string) error {
	dir := s.legacyDirFor(name)
	buildFiles, err := filepath.Glob(dir.Join("*.bp").Abs())
	if err != nil {
		return errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("invalid build file pattern").
			WithCause(err)
	}
	remove := append(buildFiles, dir.Join(types.GeneratorConfigName).Abs(), dir.Join("TEST_MAPPING").Abs())
	for _, path := range remove {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return errbuilder.New().
				WithCode(errbuilder.CodeInternal).
				WithMsg(fmt.Sprintf("failed to remove %s", path)).
				WithCause(err)
		}
	}
	stub := fmt.Sprintf("// This crate has been migrated to %s.\n", s.ManagedPath)
	if err := os.WriteFile(dir.Join(types.BuildFileName).Abs(), []byte(stub), 0o644); err != nil {
		return errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg(fmt.Sprintf("failed to write %s", dir.Join(types.BuildFileName))).
			WithCause(err)
	}
	return nil
}
