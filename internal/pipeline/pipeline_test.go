package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crate-tool/internal/adapters"
	"crate-tool/internal/types"
)

const committedBuild = "rust_library {\n    name: \"libfoo\",\n}\n"

type stubGenerator struct {
	output string
	fail   bool
	calls  []string
}

func (g *stubGenerator) Generate(ctx context.Context, dir string) (types.CommandResult, error) {
	g.calls = append(g.calls, dir)
	if g.fail {
		return types.CommandResult{ExitCode: 1, Stderr: "cargo_embargo: boom"}, nil
	}
	if err := os.WriteFile(filepath.Join(dir, types.BuildFileName), []byte(g.output), 0o644); err != nil {
		return types.CommandResult{}, err
	}
	return types.CommandResult{}, nil
}

func (g *stubGenerator) Autoconfig(ctx context.Context, dir string) (types.CommandResult, error) {
	return types.CommandResult{}, os.WriteFile(filepath.Join(dir, types.GeneratorConfigName), []byte("{}"), 0o644)
}

type stubPatcher struct {
	failing map[string]bool
	applied []string
}

func (p *stubPatcher) Apply(ctx context.Context, dir string, patchFile string) (types.CommandResult, error) {
	name := filepath.Base(patchFile)
	p.applied = append(p.applied, name)
	if p.failing[name] {
		return types.CommandResult{ExitCode: 1, Stdout: "Hunk #1 FAILED"}, nil
	}
	return types.CommandResult{}, nil
}

type fixture struct {
	root      string
	crate     types.CrateRecord
	snapshot  types.VendoredSnapshot
	generator *stubGenerator
	patcher   *stubPatcher
	tools     Tools
}

func mkfile(t *testing.T, path string, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	root := t.TempDir()
	managed := filepath.Join(root, "crates", "foo")
	mkfile(t, filepath.Join(managed, "Cargo.toml"), "[package]\nname = \"foo\"\nversion = \"1.2.3\"\nlicense = \"MIT\"\n")
	mkfile(t, filepath.Join(managed, "src", "lib.rs"), "// old\n")
	mkfile(t, filepath.Join(managed, "Android.bp"), committedBuild)
	mkfile(t, filepath.Join(managed, "cargo_embargo.json"), "{}\n")
	mkfile(t, filepath.Join(managed, "METADATA"), "name: foo\nthird_party:\n  version: 1.2.3\n  license_type: notice\n  last_upgrade_date:\n    year: 2024\n    month: 1\n    day: 2\n")
	mkfile(t, filepath.Join(managed, "android_config.toml"), "deletions = [\"benches\"]\n")
	mkfile(t, filepath.Join(managed, "patches", "0001-a.patch"), "a")
	mkfile(t, filepath.Join(managed, "patches", "Android.bp.patch"), "bp")
	require.NoError(t, os.Symlink("LICENSE-MIT", filepath.Join(managed, "LICENSE")))

	vendored := filepath.Join(root, "pseudo_crate", "vendor", "foo")
	mkfile(t, filepath.Join(vendored, "Cargo.toml"), "[package]\nname = \"foo\"\nversion = \"1.2.4\"\nlicense = \"MIT\"\n")
	mkfile(t, filepath.Join(vendored, "src", "lib.rs"), "// new\n")
	mkfile(t, filepath.Join(vendored, "benches", "bench.rs"), "// bench\n")
	mkfile(t, filepath.Join(vendored, "LICENSE-MIT"), "MIT License\n")
	mkfile(t, filepath.Join(vendored, ".git", "HEAD"), "ref")

	scanner := adapters.NewCrateScannerAdapter()
	crate, err := scanner.ReadCrate(types.NewRootedPath(root, "crates/foo"))
	require.NoError(t, err)

	f := &fixture{
		root:      root,
		crate:     crate,
		snapshot:  types.VendoredSnapshot{VendorDir: types.NewRootedPath(root, "pseudo_crate/vendor")},
		generator: &stubGenerator{output: committedBuild},
		patcher:   &stubPatcher{failing: map[string]bool{}},
	}
	f.tools = Tools{
		Scanner:   scanner,
		Generator: f.generator,
		Patcher:   f.patcher,
		Config:    adapters.NewConfigFileAdapter(),
		Metadata:  adapters.NewMetadataFileAdapter(),
		Differ:    adapters.NewDifferAdapter(),
		Clock:     func() time.Time { return time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC) },
	}
	return f
}

func (f *fixture) stage(t *testing.T) *StagedCrate {
	t.Helper()
	vendored, err := NewManagedCrate(f.crate, f.tools).Vendor(f.snapshot)
	require.NoError(t, err)
	staged, err := vendored.Stage(t.Context())
	require.NoError(t, err)
	return staged
}

func TestStageOverlaysCustomizations(t *testing.T) {
	f := newFixture(t)
	staged := f.stage(t)
	staging := staged.StagingPath().Abs()

	assert.Equal(t, filepath.Join("out", "rust-crate-temporary-build", "foo"), staged.StagingPath().Rel)
	assert.FileExists(t, filepath.Join(staging, "cargo_embargo.json"))
	assert.FileExists(t, filepath.Join(staging, "METADATA"))
	assert.FileExists(t, filepath.Join(staging, "patches", "0001-a.patch"))
	assert.NoDirExists(t, filepath.Join(staging, "benches"))
	assert.NoDirExists(t, filepath.Join(staging, ".git"))
	link, err := os.Readlink(filepath.Join(staging, "LICENSE"))
	require.NoError(t, err)
	assert.Equal(t, "LICENSE-MIT", link)
	data, err := os.ReadFile(filepath.Join(staging, "src", "lib.rs"))
	require.NoError(t, err)
	assert.Equal(t, "// new\n", string(data))

	if diff := cmp.Diff([]string{"0001-a.patch"}, f.patcher.applied); diff != "" {
		t.Fatalf("applied patches (-want +got):\n%s", diff)
	}
	require.NoError(t, staged.Check())
	diff, err := staged.DiffAgainstCommitted()
	require.NoError(t, err)
	assert.Empty(t, diff)
	assert.True(t, staged.IsMigratable())
	assert.Equal(t, "1.2.4", staged.VendoredVersion().String())
}

func TestStageIsIdempotent(t *testing.T) {
	f := newFixture(t)
	first := f.stage(t)
	snapshot := filepath.Join(t.TempDir(), "first")
	require.NoError(t, os.Rename(first.StagingPath().Abs(), snapshot))
	mkfile(t, filepath.Join(first.StagingPath().Abs(), "stale.txt"), "stale")

	second := f.stage(t)
	assert.NoFileExists(t, filepath.Join(second.StagingPath().Abs(), "stale.txt"))
	if diff := cmp.Diff(treeBytes(t, snapshot), treeBytes(t, second.StagingPath().Abs())); diff != "" {
		t.Fatalf("second staging differs (-first +second):\n%s", diff)
	}
}

// treeBytes maps every entry below root to its raw content, or to its
// target for symlinks.
func treeBytes(t *testing.T, root string) map[string]string {
	t.Helper()
	out := map[string]string{}
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		switch {
		case d.Type()&os.ModeSymlink != 0:
			target, err := os.Readlink(path)
			if err != nil {
				return err
			}
			out[rel] = "-> " + target
		case d.IsDir():
			out[rel+"/"] = ""
		default:
			data, err := os.ReadFile(path)
			if err != nil {
				return err
			}
			out[rel] = string(data)
		}
		return nil
	})
	require.NoError(t, err)
	return out
}

func TestStageOverlayDirectoryCollision(t *testing.T) {
	f := newFixture(t)
	upstream := filepath.Join(f.root, "pseudo_crate", "vendor", "foo", "patches", "0001-a.patch")
	mkfile(t, upstream, "UPSTREAM")

	vendored, err := NewManagedCrate(f.crate, f.tools).Vendor(f.snapshot)
	require.NoError(t, err)
	_, err = vendored.Stage(t.Context())
	require.Error(t, err)
	assert.Equal(t, errbuilder.CodeAlreadyExists, errbuilder.CodeOf(err))
	assert.Contains(t, err.Error(), "patches exists")
	assert.Empty(t, f.patcher.applied)

	data, err := os.ReadFile(upstream)
	require.NoError(t, err)
	assert.Equal(t, "UPSTREAM", string(data))
}

func TestStageOverlayCollision(t *testing.T) {
	f := newFixture(t)
	mkfile(t, filepath.Join(f.root, "pseudo_crate", "vendor", "foo", "cargo_embargo.json"), "{}")

	vendored, err := NewManagedCrate(f.crate, f.tools).Vendor(f.snapshot)
	require.NoError(t, err)
	_, err = vendored.Stage(t.Context())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "destination file")
	assert.Contains(t, err.Error(), "exists")
}

func TestStageDeletionMustBeDirectory(t *testing.T) {
	f := newFixture(t)
	mkfile(t, filepath.Join(f.crate.Path.Abs(), "android_config.toml"), "deletions = [\"src/lib.rs\"]\n")

	vendored, err := NewManagedCrate(f.crate, f.tools).Vendor(f.snapshot)
	require.NoError(t, err)
	_, err = vendored.Stage(t.Context())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "is not a directory")
}

func TestCheckReportsFirstFailingPatch(t *testing.T) {
	f := newFixture(t)
	mkfile(t, filepath.Join(f.crate.Path.Abs(), "patches", "0002-b.patch"), "b")
	f.patcher.failing["0001-a.patch"] = true

	staged := f.stage(t)
	assert.Equal(t, []string{"0001-a.patch", "0002-b.patch"}, f.patcher.applied)
	assert.False(t, staged.PatchSuccess())
	assert.Len(t, staged.PatchOutcomes(), 2)

	err := staged.Check()
	require.Error(t, err)
	assert.Equal(t, errbuilder.CodeFailedPrecondition, errbuilder.CodeOf(err))
	assert.Contains(t, err.Error(), "0001-a.patch")
	assert.False(t, staged.IsMigratable())
}

func TestCheckReportsGeneratorFailure(t *testing.T) {
	f := newFixture(t)
	f.generator.fail = true

	staged := f.stage(t)
	err := staged.Check()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cargo_embargo execution failed for foo")
	_, err = staged.DiffAgainstCommitted()
	require.Error(t, err)

	err = staged.Promote(t.Context(), PromoteOptions{})
	require.Error(t, err)
	data, readErr := os.ReadFile(filepath.Join(f.crate.Path.Abs(), "src", "lib.rs"))
	require.NoError(t, readErr)
	assert.Equal(t, "// old\n", string(data))
}

func TestBuildFileChangeIsNotMigratable(t *testing.T) {
	f := newFixture(t)
	f.generator.output = "rust_library {\n    name: \"libfoo\",\n    features: [\"std\"],\n}\n"

	staged := f.stage(t)
	require.NoError(t, staged.Check())
	diff, err := staged.DiffAgainstCommitted()
	require.NoError(t, err)
	assert.Contains(t, diff, "features")
	assert.False(t, staged.IsMigratable())
}

func TestPromoteReplacesCrate(t *testing.T) {
	f := newFixture(t)
	staged := f.stage(t)
	require.NoError(t, staged.Check())
	require.NoError(t, staged.Promote(t.Context(), PromoteOptions{UpdateMetadata: true}))

	managed := f.crate.Path.Abs()
	data, err := os.ReadFile(filepath.Join(managed, "src", "lib.rs"))
	require.NoError(t, err)
	assert.Equal(t, "// new\n", string(data))
	assert.NoDirExists(t, managed+".aside")
	assert.NoDirExists(t, staged.StagingPath().Abs())

	metadata, err := adapters.NewMetadataFileAdapter().ReadMetadata(filepath.Join(managed, "METADATA"))
	require.NoError(t, err)
	assert.Equal(t, "1.2.4", metadata.ThirdParty.Version)
	assert.Equal(t, "NOTICE", metadata.ThirdParty.LicenseType)
	assert.Equal(t, types.Date{Year: 2026, Month: 10, Day: 16}, metadata.ThirdParty.LastUpgradeDate)

	err = staged.Promote(t.Context(), PromoteOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "staged crate not found")
}

func TestPromoteRequiresCheck(t *testing.T) {
	f := newFixture(t)
	staged := f.stage(t)
	err := staged.Promote(t.Context(), PromoteOptions{})
	require.Error(t, err)
	assert.Equal(t, errbuilder.CodeFailedPrecondition, errbuilder.CodeOf(err))
	assert.DirExists(t, staged.StagingPath().Abs())
}

func TestPromoteWithoutStaging(t *testing.T) {
	f := newFixture(t)
	staged := f.stage(t)
	require.NoError(t, staged.Check())
	require.NoError(t, os.RemoveAll(staged.StagingPath().Abs()))

	err := staged.Promote(t.Context(), PromoteOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "staged crate not found")
	assert.FileExists(t, filepath.Join(f.crate.Path.Abs(), "Cargo.toml"))
}

func TestDiscardSpendsHandle(t *testing.T) {
	f := newFixture(t)
	staged := f.stage(t)
	require.NoError(t, staged.Discard())
	assert.NoDirExists(t, staged.StagingPath().Abs())
	require.Error(t, staged.Check())
	require.Error(t, staged.Discard())
}

func TestHandlesAreConsumed(t *testing.T) {
	f := newFixture(t)
	crate := NewManagedCrate(f.crate, f.tools)
	vendored, err := crate.Vendor(f.snapshot)
	require.NoError(t, err)

	_, err = crate.Vendor(f.snapshot)
	require.Error(t, err)
	assert.Equal(t, errbuilder.CodeFailedPrecondition, errbuilder.CodeOf(err))
	_, err = crate.AsLegacy()
	require.Error(t, err)

	_, err = vendored.Stage(t.Context())
	require.NoError(t, err)
	_, err = vendored.Stage(t.Context())
	require.Error(t, err)
}

func TestVendorMissingCrate(t *testing.T) {
	f := newFixture(t)
	snapshot := types.VendoredSnapshot{VendorDir: types.NewRootedPath(f.root, "elsewhere")}
	_, err := NewManagedCrate(f.crate, f.tools).Vendor(snapshot)
	require.Error(t, err)
	assert.Equal(t, errbuilder.CodeNotFound, errbuilder.CodeOf(err))
}

func TestLegacyStageSkipsOverlay(t *testing.T) {
	f := newFixture(t)
	legacy, err := NewManagedCrate(f.crate, f.tools).AsLegacy()
	require.NoError(t, err)
	assert.True(t, legacy.IsLegacy())

	staged, err := legacy.Stage(t.Context())
	require.NoError(t, err)
	assert.Empty(t, f.patcher.applied)
	require.NoError(t, staged.Check())
	changed, err := staged.DiffTree()
	require.NoError(t, err)
	assert.Empty(t, changed)
}

func TestRecoverAside(t *testing.T) {
	dir := t.TempDir()
	mkfile(t, filepath.Join(dir, "bar.aside", "Cargo.toml"), "bar")
	mkfile(t, filepath.Join(dir, "baz", "Cargo.toml"), "new baz")
	mkfile(t, filepath.Join(dir, "baz.aside", "Cargo.toml"), "old baz")

	restored, err := RecoverAside(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "bar")}, restored)
	assert.FileExists(t, filepath.Join(dir, "bar", "Cargo.toml"))
	assert.NoDirExists(t, filepath.Join(dir, "bar.aside"))
	assert.NoDirExists(t, filepath.Join(dir, "baz.aside"))
	data, err := os.ReadFile(filepath.Join(dir, "baz", "Cargo.toml"))
	require.NoError(t, err)
	assert.Equal(t, "new baz", string(data))
}
