package app

import (
	"context"
	"fmt"
	"os"
	"sort"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/rs/zerolog/log"

	"crate-tool/internal/core"
	"crate-tool/internal/pipeline"
	"crate-tool/internal/policies"
	"crate-tool/internal/shared"
	"crate-tool/internal/types"
)

// Recover finishes or rolls back promotions interrupted by a crash. Every
// mutating operation calls it first.
func (s Service) Recover(ctx context.Context) error {
	dir := s.managedDir().Abs()
	if !shared.IsDir(dir) {
		return nil
	}
	restored, err := pipeline.RecoverAside(dir)
	if err != nil {
		return err
	}
	for _, path := range restored {
		log.Ctx(ctx).Warn().Str("path", path).Msg("rolled back interrupted promotion")
	}
	return nil
}

// crateIndex scans dir for crates published on crates.io. A missing dir
// yields an empty index.
func (s Service) crateIndex(dir types.RootedPath) (*core.NameVersionIndex[types.CrateRecord], error) {
	index := core.NewNameVersionIndex[types.CrateRecord]()
	if !shared.IsDir(dir.Abs()) {
		return index, nil
	}
	records, err := s.Scanner.ScanCrates(dir.Root, dir.Rel)
	if err != nil {
		return nil, err
	}
	for _, record := range records {
		if !record.CratesIO {
			continue
		}
		if err := index.InsertOrError(record.Identity, record); err != nil {
			return nil, err
		}
	}
	return index, nil
}

// managedCrate reads the single managed version of name.
func (s Service) managedCrate(name string) (types.CrateRecord, error) {
	dir := s.managedDirFor(name)
	if !shared.IsDir(dir.Abs()) {
		return types.CrateRecord{}, errbuilder.New().
			WithCode(errbuilder.CodeNotFound).
			WithMsg(fmt.Sprintf("crate %s not found in %s", name, s.managedDir()))
	}
	return s.singleCrate(name, dir)
}

// singleCrate requires dir to hold exactly one crates.io version of name.
func (s Service) singleCrate(name string, dir types.RootedPath) (types.CrateRecord, error) {
	index, err := s.crateIndex(dir)
	if err != nil {
		return types.CrateRecord{}, err
	}
	versions := index.Versions(name)
	if len(versions) != 1 {
		return types.CrateRecord{}, errbuilder.New().
			WithCode(errbuilder.CodeFailedPrecondition).
			WithMsg(fmt.Sprintf("expected a single crate version for %s, but found %d", name, len(versions)))
	}
	return versions[0].Value, nil
}

func (s Service) vendoredIndex(snapshot types.VendoredSnapshot) (*core.NameVersionIndex[types.CrateRecord], error) {
	return s.crateIndex(snapshot.VendorDir)
}

// managedNames lists the crate directories under the managed tree.
func (s Service) managedNames() ([]string, error) {
	entries, err := os.ReadDir(s.managedDir().Abs())
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg(fmt.Sprintf("failed to read %s", s.managedDir())).
			WithCause(err)
	}
	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

func (s Service) isManaged(name string) bool {
	return shared.IsDir(s.managedDirFor(name).Abs())
}

func (s Service) depNames() ([]string, error) {
	deps, err := s.PseudoCrate.Deps()
	if err != nil {
		return nil, err
	}
	return sortedKeys(deps), nil
}

func (s Service) repoConfig() (types.RepoConfig, error) {
	return s.Config.LoadRepoConfig(s.repoConfigPath())
}

func (s Service) crateDenylist() (policies.CratePolicy, error) {
	cfg, err := s.repoConfig()
	if err != nil {
		return policies.CratePolicy{}, err
	}
	return policies.NewCratePolicy("crate denylist", cfg.CrateDenylist), nil
}

func (s Service) migrationDenylist() (policies.CratePolicy, error) {
	cfg, err := s.repoConfig()
	if err != nil {
		return policies.CratePolicy{}, err
	}
	return policies.NewCratePolicy("migration denylist", cfg.MigrationDenylist), nil
}

// writeCrateList snapshots the pseudo-crate's dependency names.
func (s Service) writeCrateList() error {
	names, err := s.depNames()
	if err != nil {
		return err
	}
	return s.PseudoCrate.WriteCrateList(names)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func uniqueSorted(values []string) []string {
	seen := map[string]bool{}
	var out []string
	for _, value := range values {
		if value == "" || seen[value] {
			continue
		}
		seen[value] = true
		out = append(out, value)
	}
	sort.Strings(out)
	return out
}

func healthy(name string, version string) types.CrateVerdict {
	return types.CrateVerdict{Name: name, Version: version, Verdict: types.VerdictHealthy}
}

func unhealthy(name string, version string, err error) types.CrateVerdict {
	return types.CrateVerdict{Name: name, Version: version, Verdict: types.VerdictUnhealthy, Diagnostic: err.Error()}
}
