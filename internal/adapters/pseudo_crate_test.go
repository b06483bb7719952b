package adapters

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crate-tool/internal/types"
)

// fakeCargo writes a shell script that records its arguments and prints
// canned `cargo tree` output.
func fakeCargo(t *testing.T, exitCode int) (string, string) {
	t.Helper()
	dir := t.TempDir()
	logPath := filepath.Join(dir, "args.log")
	script := "#!/bin/sh\n" +
		"echo \"$@\" >> " + logPath + "\n" +
		"if [ \"$1\" = tree ]; then\n" +
		"  echo 'foo v1.2.3'\n" +
		"  echo 'serde v1.0.200'\n" +
		"  echo 'libc v0.2.150'\n" +
		"  echo 'serde v1.0.200 (*)'\n" +
		"fi\n" +
		"exit " + string(rune('0'+exitCode)) + "\n"
	path := filepath.Join(dir, "cargo")
	require.NoError(t, os.WriteFile(path, []byte(script), 0755))
	return path, logPath
}

func pseudoCrateFixture(t *testing.T) types.RootedPath {
	t.Helper()
	root := t.TempDir()
	dir := types.NewRootedPath(root, "pseudo_crate")
	writeManifest(t, dir.Abs(), `
[package]
name = "android-pseudo-crate"
version = "0.1.0"
publish = false

[dependencies]
foo = "=1.2.3"
bar = { version = "0.4" }
`)
	writeManifest(t, dir.Join("vendor", "foo").Abs(), "[package]\nname = \"foo\"\nversion = \"1.2.3\"\n")
	writeManifest(t, dir.Join("vendor", "bar").Abs(), "[package]\nname = \"bar\"\nversion = \"0.4.7\"\n")
	return dir
}

func TestPseudoCrateDeps(t *testing.T) {
	adapter := NewPseudoCrateAdapter(pseudoCrateFixture(t), "")
	deps, err := adapter.Deps()
	require.NoError(t, err)
	if diff := cmp.Diff(map[string]string{"foo": "=1.2.3", "bar": "0.4"}, deps); diff != "" {
		t.Fatalf("unexpected deps (-want +got):\n%s", diff)
	}
	assert.Equal(t, "cargo", adapter.Cargo)
}

func TestPseudoCrateCommands(t *testing.T) {
	cargo, logPath := fakeCargo(t, 0)
	adapter := NewPseudoCrateAdapter(pseudoCrateFixture(t), cargo)

	require.NoError(t, adapter.Add(t.Context(), "foo", "1.2.3"))
	require.NoError(t, adapter.AddUnpinned(t.Context(), "bar", "0.4"))
	require.NoError(t, adapter.AddUnpinned(t.Context(), "baz", ""))
	require.NoError(t, adapter.Remove(t.Context(), "baz"))

	snapshot, err := adapter.Vendor(t.Context())
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("pseudo_crate", "vendor"), snapshot.VendorDir.Rel)
	assert.Equal(t, map[string]string{"foo": "1.2.3", "bar": "0.4.7"}, snapshot.Deps)

	deps, err := adapter.DepsOf(t.Context(), "foo")
	require.NoError(t, err)
	assert.Equal(t, []string{"libc", "serde"}, deps)

	data, err := os.ReadFile(logPath)
	require.NoError(t, err)
	want := []string{
		"add foo@=1.2.3",
		"add bar@0.4",
		"add baz",
		"remove baz",
		"vendor",
		"tree --prefix none -e normal -p foo --depth 1",
	}
	if diff := cmp.Diff(want, strings.Split(strings.TrimSpace(string(data)), "\n")); diff != "" {
		t.Fatalf("unexpected cargo invocations (-want +got):\n%s", diff)
	}
}

func TestPseudoCrateCommandFailure(t *testing.T) {
	cargo, _ := fakeCargo(t, 1)
	adapter := NewPseudoCrateAdapter(pseudoCrateFixture(t), cargo)
	err := adapter.Add(t.Context(), "foo", "1.2.3")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cargo add foo@=1.2.3 failed")
}

func TestPseudoCrateCrateList(t *testing.T) {
	adapter := NewPseudoCrateAdapter(pseudoCrateFixture(t), "")
	require.NoError(t, adapter.WriteCrateList([]string{"zeta", "alpha", "mid"}))

	data, err := os.ReadFile(adapter.Dir().Join("crate-list.txt").Abs())
	require.NoError(t, err)
	assert.Equal(t, "alpha\nmid\nzeta\n", string(data))

	names, err := adapter.ReadCrateList()
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "mid", "zeta"}, names)
}
