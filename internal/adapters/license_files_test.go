package adapters

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crate-tool/internal/types"
)

func touch(t *testing.T, dir string, names ...string) {
	t.Helper()
	for _, name := range names {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(name), 0o644))
	}
}

func TestLicenseClassifyPrefersApache(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "LICENSE-MIT", "LICENSE-APACHE", "README.md")

	state, err := NewLicenseFileAdapter().Classify(dir, "foo", "MIT OR Apache-2.0")
	require.NoError(t, err)
	if diff := cmp.Diff(map[string]string{"Apache-2.0": "LICENSE-APACHE"}, state.Satisfied); diff != "" {
		t.Fatalf("satisfied (-want +got):\n%s", diff)
	}
	assert.Empty(t, state.Unsatisfied)
}

func TestLicenseClassifySlashMeansOr(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "LICENSE-MIT.md")

	state, err := NewLicenseFileAdapter().Classify(dir, "foo", "MIT/Apache-2.0")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"MIT": "LICENSE-MIT.md"}, state.Satisfied)
	assert.Empty(t, state.Unsatisfied)
}

func TestLicenseClassifyConjunctionReportsMissing(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "LICENSE-MIT")

	state, err := NewLicenseFileAdapter().Classify(dir, "foo", "(MIT OR Apache-2.0) AND Unicode-3.0")
	require.NoError(t, err)
	assert.Contains(t, state.Unsatisfied, "Unicode-3.0")
}

func TestLicenseClassifyGenericFile(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "LICENSE")

	state, err := NewLicenseFileAdapter().Classify(dir, "foo", "ISC")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"ISC": "LICENSE"}, state.Satisfied)
}

func TestLicenseClassifyMissingDir(t *testing.T) {
	_, err := NewLicenseFileAdapter().Classify(filepath.Join(t.TempDir(), "nope"), "foo", "MIT")
	require.Error(t, err)
}

func TestMostRestrictiveType(t *testing.T) {
	adapter := NewLicenseFileAdapter()
	assert.Equal(t, "NOTICE", adapter.MostRestrictiveType(types.LicenseState{
		Satisfied: map[string]string{"MIT": "LICENSE-MIT", "Unlicense": "UNLICENSE"},
	}))
	assert.Equal(t, "RECIPROCAL", adapter.MostRestrictiveType(types.LicenseState{
		Satisfied: map[string]string{"MPL-2.0": "LICENSE-MPL", "MIT": "LICENSE-MIT"},
	}))
	assert.Equal(t, "UNKNOWN", adapter.MostRestrictiveType(types.LicenseState{
		Satisfied:   map[string]string{"MIT": "LICENSE-MIT"},
		Unsatisfied: []string{"Apache-2.0"},
	}))
}

func TestUpdateModuleLicenseFiles(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "MODULE_LICENSE_GPL")

	state := types.LicenseState{Satisfied: map[string]string{"Apache-2.0": "LICENSE-APACHE", "MIT": "LICENSE-MIT"}}
	require.NoError(t, NewLicenseFileAdapter().UpdateModuleLicenseFiles(dir, state))

	matches, err := filepath.Glob(filepath.Join(dir, "MODULE_LICENSE_*"))
	require.NoError(t, err)
	var names []string
	for _, match := range matches {
		names = append(names, filepath.Base(match))
	}
	assert.ElementsMatch(t, []string{"MODULE_LICENSE_APACHE2", "MODULE_LICENSE_MIT"}, names)
}

func TestParseLicenseExpression(t *testing.T) {
	got := parseLicenseExpression("(MIT OR Apache-2.0) AND Unicode-3.0")
	want := [][]string{{"MIT", "Unicode-3.0"}, {"Apache-2.0", "Unicode-3.0"}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("expression (-want +got):\n%s", diff)
	}
	assert.Equal(t, [][]string{{"Apache-2.0"}}, parseLicenseExpression("Apache-2.0 WITH LLVM-exception"))
	assert.Equal(t, [][]string{{"MIT"}, {"Apache-2.0"}}, parseLicenseExpression("MIT/Apache-2.0"))
	assert.Nil(t, parseLicenseExpression(""))
}
