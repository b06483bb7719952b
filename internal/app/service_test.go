package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/stretchr/testify/require"

	"crate-tool/internal/core"
	"crate-tool/internal/shared"
	"crate-tool/internal/types"
)

func generatedBuild(name string) string {
	return fmt.Sprintf("rust_library {\n    name: \"lib%s\",\n}\n", name)
}

// fakeGenerator writes a build file derived from the crate directory name.
type fakeGenerator struct {
	failing map[string]bool
}

func (g fakeGenerator) Generate(ctx context.Context, dir string) (types.CommandResult, error) {
	name := filepath.Base(dir)
	if g.failing[name] {
		return types.CommandResult{ExitCode: 1, Stderr: "error: could not compile " + name}, nil
	}
	if err := os.WriteFile(filepath.Join(dir, types.BuildFileName), []byte(generatedBuild(name)), 0o644); err != nil {
		return types.CommandResult{}, err
	}
	return types.CommandResult{}, nil
}

func (g fakeGenerator) Autoconfig(ctx context.Context, dir string) (types.CommandResult, error) {
	return types.CommandResult{}, os.WriteFile(filepath.Join(dir, types.GeneratorConfigName), []byte("{}\n"), 0o644)
}

type fakePatcher struct{}

func (fakePatcher) Apply(ctx context.Context, dir string, patchFile string) (types.CommandResult, error) {
	return types.CommandResult{}, nil
}

// fakePseudoCrate resolves requirements against a registry directory laid
// out as <name>/<version>/ and vendors by copying.
type fakePseudoCrate struct {
	dir      types.RootedPath
	registry string
	deps     map[string]string
	depsOf   map[string][]string

	// failAddAt makes the n-th call to Add or AddUnpinned fail.
	failAddAt  int
	addCalls   int
	failVendor bool
}

func (p *fakePseudoCrate) Dir() types.RootedPath {
	return p.dir
}

func (p *fakePseudoCrate) Deps() (map[string]string, error) {
	out := make(map[string]string, len(p.deps))
	for name, req := range p.deps {
		out[name] = req
	}
	return out, nil
}

func (p *fakePseudoCrate) Add(ctx context.Context, name string, version string) error {
	return p.AddUnpinned(ctx, name, "="+version)
}

func (p *fakePseudoCrate) AddUnpinned(ctx context.Context, name string, req string) error {
	p.addCalls++
	if p.addCalls == p.failAddAt {
		return fmt.Errorf("cargo add %s failed", name)
	}
	p.deps[name] = req
	return nil
}

func (p *fakePseudoCrate) Remove(ctx context.Context, name string) error {
	delete(p.deps, name)
	return nil
}

func (p *fakePseudoCrate) Vendor(ctx context.Context) (types.VendoredSnapshot, error) {
	snapshot := types.VendoredSnapshot{VendorDir: p.dir.Join("vendor"), Deps: map[string]string{}}
	if p.failVendor {
		return snapshot, errors.New("cargo vendor failed")
	}
	if err := shared.EnsureEmptyDir(snapshot.VendorDir.Abs()); err != nil {
		return snapshot, err
	}
	for name, req := range p.deps {
		version, err := p.pick(name, req)
		if err != nil {
			return snapshot, err
		}
		if err := shared.CopyDir(filepath.Join(p.registry, name, version), snapshot.DirFor(name).Abs()); err != nil {
			return snapshot, err
		}
		snapshot.Deps[name] = version
	}
	return snapshot, nil
}

func (p *fakePseudoCrate) pick(name string, req string) (string, error) {
	entries, err := os.ReadDir(filepath.Join(p.registry, name))
	if err != nil {
		return "", err
	}
	var versions []semver.Version
	for _, entry := range entries {
		version, err := types.ParseVersion(entry.Name())
		if err != nil {
			return "", err
		}
		versions = append(versions, version)
	}
	sort.Slice(versions, func(i, j int) bool {
		return types.CompareVersions(versions[i], versions[j]) > 0
	})
	for _, version := range versions {
		switch {
		case req == "":
			return version.String(), nil
		case strings.HasPrefix(req, "="):
			if version.String() == strings.TrimPrefix(req, "=") {
				return version.String(), nil
			}
		default:
			base, err := types.ParseVersion(req)
			if err != nil {
				return "", err
			}
			if core.IsUpgradableTo(base, version, types.RuleStrict) {
				return version.String(), nil
			}
		}
	}
	return "", fmt.Errorf("no version of %s matches %q", name, req)
}

func (p *fakePseudoCrate) DepsOf(ctx context.Context, name string) ([]string, error) {
	return p.depsOf[name], nil
}

func (p *fakePseudoCrate) ReadCrateList() ([]string, error) {
	data, err := os.ReadFile(p.dir.Join(types.CrateListFileName).Abs())
	if err != nil {
		return nil, err
	}
	return strings.Fields(string(data)), nil
}

func (p *fakePseudoCrate) WriteCrateList(names []string) error {
	ordered := append([]string(nil), names...)
	sort.Strings(ordered)
	content := strings.Join(ordered, "\n")
	if content != "" {
		content += "\n"
	}
	return os.WriteFile(p.dir.Join(types.CrateListFileName).Abs(), []byte(content), 0o644)
}

type repoFixture struct {
	root        string
	service     Service
	pseudoCrate *fakePseudoCrate
	generator   fakeGenerator
}

func newRepoFixture(t *testing.T) *repoFixture {
	t.Helper()
	root := t.TempDir()
	service := NewService(Config{RepoRoot: root})
	pseudo := &fakePseudoCrate{
		dir:      types.NewRootedPath(root, filepath.Join(DefaultManagedPath, pseudoCrateDir)),
		registry: filepath.Join(root, "registry"),
		deps:     map[string]string{},
		depsOf:   map[string][]string{},
	}
	require.NoError(t, os.MkdirAll(pseudo.dir.Abs(), 0o755))
	f := &repoFixture{
		root:        root,
		pseudoCrate: pseudo,
		generator:   fakeGenerator{failing: map[string]bool{}},
	}
	service.PseudoCrate = pseudo
	service.Generator = f.generator
	service.Patcher = fakePatcher{}
	service.Clock = func() time.Time { return time.Date(2026, 10, 16, 0, 0, 0, 0, time.UTC) }
	f.service = service
	return f
}

func writeTestFile(t *testing.T, path string, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func cargoToml(name string, version string, extra string) string {
	return fmt.Sprintf("[package]\nname = %q\nversion = %q\nlicense = \"MIT\"\n%s", name, version, extra)
}

// publish adds an upstream crate version to the registry.
func (f *repoFixture) publish(t *testing.T, name string, version string, extra string) string {
	t.Helper()
	dir := filepath.Join(f.root, "registry", name, version)
	writeTestFile(t, filepath.Join(dir, "Cargo.toml"), cargoToml(name, version, extra))
	writeTestFile(t, filepath.Join(dir, "src", "lib.rs"), fmt.Sprintf("// %s %s\n", name, version))
	writeTestFile(t, filepath.Join(dir, "LICENSE-MIT"), "MIT License\n")
	return dir
}

// customize adds the files a regenerated crate carries next to its
// upstream sources.
func customize(t *testing.T, dir string, name string, version string) {
	t.Helper()
	writeTestFile(t, filepath.Join(dir, types.BuildFileName), generatedBuild(name))
	writeTestFile(t, filepath.Join(dir, types.GeneratorConfigName), "{}\n")
	writeTestFile(t, filepath.Join(dir, types.MetadataFileName), fmt.Sprintf(
		"name: %s\nthird_party:\n  version: %s\n  license_type: NOTICE\n  last_upgrade_date:\n    year: 2024\n    month: 1\n    day: 2\n  homepage: https://crates.io/crates/%s\n",
		name, version, name))
}

// manage publishes name@version and commits it to the managed tree,
// pinned in the pseudo-crate.
func (f *repoFixture) manage(t *testing.T, name string, version string, extra string) string {
	t.Helper()
	src := f.publish(t, name, version, extra)
	dir := f.service.managedDirFor(name).Abs()
	require.NoError(t, shared.CopyDir(src, dir))
	customize(t, dir, name, version)
	f.pseudoCrate.deps[name] = "=" + version
	return dir
}

// legacy publishes name@version and commits it to the legacy tree.
func (f *repoFixture) legacy(t *testing.T, name string, version string) string {
	t.Helper()
	src := f.publish(t, name, version, "")
	dir := f.service.legacyDirFor(name).Abs()
	require.NoError(t, shared.CopyDir(src, dir))
	customize(t, dir, name, version)
	return dir
}

func readTestFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func verdictNames(summary types.BatchSummary) map[string]types.Verdict {
	out := map[string]types.Verdict{}
	for _, verdict := range summary.Verdicts {
		out[verdict.Name] = verdict.Verdict
	}
	return out
}
